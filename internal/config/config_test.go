package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "RENDER", "DB_PATH", "HTTP_ADDR", "STORE_DRIVER", "STORE_DSN",
	"APP_ENV", "LOG_LEVEL", "DOOR2_TIMEOUT_SECONDS", "SCAN_DEDUPE_WINDOW",
}

// clearEnv unsets every variable the loader reads; t.Setenv restores them.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5053", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "qr_scans.db", cfg.Store.Path)

	d, err := cfg.Scan.Door2TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, d)

	w, err := cfg.Scan.DedupeWindowDuration()
	require.NoError(t, err)
	assert.Equal(t, 1600*time.Millisecond, w)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "qr-gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
http:
  addr: 127.0.0.1:9000
store:
  path: data/scans.db
scan:
  door2_timeout: 45s
  dedupe_window: "0"
logging:
  level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "data/scans.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)

	d, _ := cfg.Scan.Door2TimeoutDuration()
	assert.Equal(t, 45*time.Second, d)
	w, _ := cfg.Scan.DedupeWindowDuration()
	assert.Zero(t, w)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mysql")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "store.dsn is required for mysql")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Run("PORT moves the database to /tmp", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "10000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/qr_scans.db", cfg.Store.Path)
		assert.Equal(t, "0.0.0.0:10000", cfg.HTTP.Addr)
	})

	t.Run("invalid PORT falls back to default", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "http")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "0.0.0.0:5053", cfg.HTTP.Addr)
	})

	t.Run("RENDER=true without PORT", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENDER", "TRUE")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/qr_scans.db", cfg.Store.Path)
		assert.Equal(t, "0.0.0.0:5053", cfg.HTTP.Addr)
	})

	t.Run("DB_PATH wins over hosted default", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("DB_PATH", " /data/gate.db ")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/data/gate.db", cfg.Store.Path)
	})

	t.Run("configured path survives hosting", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8080")

		cfg := DefaultConfig()
		cfg.Store.Path = "/srv/scans.db"
		cfg.applyEnvOverrides()

		assert.Equal(t, "/srv/scans.db", cfg.Store.Path)
	})

	t.Run("HTTP_ADDR beats PORT", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("HTTP_ADDR", ":7000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, ":7000", cfg.HTTP.Addr)
	})

	t.Run("store and scan settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STORE_DRIVER", "MySQL")
		t.Setenv("STORE_DSN", "u:p@tcp(db:3306)/gate")
		t.Setenv("DOOR2_TIMEOUT_SECONDS", "30")
		t.Setenv("SCAN_DEDUPE_WINDOW", "2s")
		t.Setenv("LOG_LEVEL", "warn")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "mysql", cfg.Store.Driver)
		assert.Equal(t, "u:p@tcp(db:3306)/gate", cfg.Store.DSN)
		assert.Equal(t, "warn", cfg.Logging.Level)
		d, err := cfg.Scan.Door2TimeoutDuration()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, d)
		w, err := cfg.Scan.DedupeWindowDuration()
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, w)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Store.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "unsupported store driver")

	cfg = DefaultConfig()
	cfg.Store.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "store.dsn is required")

	cfg = DefaultConfig()
	cfg.Scan.Door2Timeout = "soon"
	assert.ErrorContains(t, cfg.Validate(), "scan.door2_timeout")

	cfg = DefaultConfig()
	cfg.Scan.DedupeWindow = "-1s"
	assert.ErrorContains(t, cfg.Validate(), "must not be negative")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "qr-gate.yaml")

	cfg := DefaultConfig()
	cfg.Store.Path = "elsewhere.db"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
