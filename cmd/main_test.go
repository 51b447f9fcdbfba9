package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-gate/internal/config"
)

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	full := append([]string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--db", filepath.Join(dir, "scans.db"),
		"--log-level", "error",
	}, args...)
	rootCmd.SetArgs(full)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLIGateCycle(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "gates", "create", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "gate 1 created: A1")

	out, err = runCLI(t, dir, "gates", "doors", "1", "a1-d1", "A1-D2")
	require.NoError(t, err)
	assert.Contains(t, out, "A1-D1 > A1-D2")

	out, err = runCLI(t, dir, "scan", "A1-D1")
	require.NoError(t, err)
	assert.Contains(t, out, "scan 1 recorded")
	assert.NotContains(t, out, "action")

	out, err = runCLI(t, dir, "scan", "A1-D2")
	require.NoError(t, err)
	assert.Contains(t, out, "action 1: gate A1 completed")

	out, err = runCLI(t, dir, "actions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "A1-D1 > A1-D2")

	out, err = runCLI(t, dir, "actions", "close", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "action 1 closed")

	_, err = runCLI(t, dir, "actions", "close", "1")
	assert.EqualError(t, err, "action event 1 not found or already closed")
}

func TestCLIExport(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "scan", "hello, world", "--source", "cli")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "export", "--format", "csv", "--out", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "id,scanned_at_sgt,qr_text,source\n")
	assert.Contains(t, out, `"hello, world",CLI`)

	_, err = runCLI(t, dir, "export", "--format", "xml", "--out", "-")
	assert.Error(t, err)
}

func TestCLIRejectsBadID(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "actions", "close", "abc")
	assert.EqualError(t, err, `invalid id "abc"`)
}

func TestCLIDriverFlagBeatsEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	dir := t.TempDir()

	_, err := runCLI(t, dir, "--driver", "sqlite", "gates", "list")
	require.NoError(t, err)
}

func TestCLIConfigInit(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "--driver", "sqlite", "config", "init")
	require.NoError(t, err)
	path := filepath.Join(dir, "missing.yaml")
	assert.Contains(t, out, "config written to "+path)

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scans.db"), saved.Store.Path)
	assert.Equal(t, "sqlite", saved.Store.Driver)
	assert.NoError(t, saved.Validate())
}
