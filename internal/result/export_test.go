package result

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-gate/internal/store"
)

type fakeLister struct {
	scans []store.Scan
	limit int
	err   error
}

func (f *fakeLister) ListScans(_ context.Context, limit int) ([]store.Scan, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.Scan, len(f.scans))
	copy(out, f.scans)
	return out, nil
}

// newest first, the way the store returns them
func sampleScans() []store.Scan {
	return []store.Scan{
		{ID: 2, ScannedAtUTC: "2024-01-02T03:04:06Z", QRText: "G1-2, side", Source: "CAMERA", ScannedAtSGT: "02-Jan-2024 11:04:06 SGT"},
		{ID: 1, ScannedAtUTC: "2024-01-02T03:04:05Z", QRText: "G1-1", Source: "MANUAL", ScannedAtSGT: "02-Jan-2024 11:04:05 SGT"},
	}
}

func TestExportCSV(t *testing.T) {
	lister := &fakeLister{scans: sampleScans()}
	out, err := NewExporter(lister).Export(context.Background(), "CSV")
	require.NoError(t, err)

	want := "id,scanned_at_sgt,qr_text,source\n" +
		"1,02-Jan-2024 11:04:05 SGT,G1-1,MANUAL\n" +
		"2,02-Jan-2024 11:04:06 SGT,\"G1-2, side\",CAMERA\n"
	assert.Equal(t, want, string(out))
	assert.Equal(t, MaxRows, lister.limit)
}

func TestExportCSVEmpty(t *testing.T) {
	out, err := NewExporter(&fakeLister{}).Export(context.Background(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "id,scanned_at_sgt,qr_text,source\n", string(out))
}

func TestExportJSON(t *testing.T) {
	out, err := NewExporter(&fakeLister{scans: sampleScans()}).Export(context.Background(), "json")
	require.NoError(t, err)

	var got []store.Scan
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got, 2)
	assert.EqualValues(t, 1, got[0].ID)
	assert.EqualValues(t, 2, got[1].ID)
}

func TestExportPDF(t *testing.T) {
	out, err := NewExporter(&fakeLister{scans: sampleScans()}).Export(context.Background(), "pdf")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestPDFTextMarksUnsupportedRunes(t *testing.T) {
	tr := gofpdf.New("P", "mm", "A4", "").UnicodeTranslatorFromDescriptor("")
	assert.Equal(t, "caf\xe9 ?? G1-1.", pdfText(tr, "caf\u00e9 \u95e8\u53e3 G1-1."))

	scans := []store.Scan{{ID: 1, ScannedAtSGT: "02-Jan-2024 11:04:05 SGT", QRText: "\u95e8\u53e3-1", Source: "CAMERA"}}
	out, err := NewExporter(&fakeLister{scans: scans}).Export(context.Background(), "pdf")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestFormatsHaveContentTypes(t *testing.T) {
	for _, f := range Formats {
		mime, name, err := ContentType(f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, mime)
		assert.Equal(t, "qr_scans."+f, name)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	lister := &fakeLister{}
	_, err := NewExporter(lister).Export(context.Background(), "xml")
	require.Error(t, err)
	assert.Zero(t, lister.limit, "store must not be read for an unknown format")
}

func TestExportStoreError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewExporter(&fakeLister{err: boom}).Export(context.Background(), "csv")
	assert.ErrorIs(t, err, boom)
}

func TestContentType(t *testing.T) {
	mime, name, err := ContentType("csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", mime)
	assert.Equal(t, "qr_scans.csv", name)

	_, _, err = ContentType("docx")
	assert.Error(t, err)
}
