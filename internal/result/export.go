package result

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"qr-gate/internal/store"
	"qr-gate/pkg/timefmt"

	"github.com/jung-kurt/gofpdf"
)

// MaxRows caps how many scans one export reads.
const MaxRows = 200000

// Formats lists the supported export formats.
var Formats = []string{"csv", "json", "pdf"}

// ScanLister is the part of the store an Exporter reads from.
type ScanLister interface {
	ListScans(ctx context.Context, limit int) ([]store.Scan, error)
}

type Exporter struct {
	st  ScanLister
	now func() time.Time
}

func NewExporter(st ScanLister) *Exporter { return &Exporter{st: st, now: time.Now} }

// ContentType returns the MIME type and download file name for format.
func ContentType(format string) (mime, filename string, err error) {
	switch strings.ToLower(format) {
	case "csv":
		return "text/csv; charset=utf-8", "qr_scans.csv", nil
	case "json":
		return "application/json", "qr_scans.json", nil
	case "pdf":
		return "application/pdf", "qr_scans.pdf", nil
	}
	return "", "", fmt.Errorf("unknown format %s", format)
}

// Export renders every scan, oldest first.
//
// The PDF uses the built-in Arial font, which only covers cp1252. Characters
// outside it, such as CJK payloads, print as '?'; the csv and json formats
// keep the exact text.
func (e *Exporter) Export(ctx context.Context, format string) ([]byte, error) {
	format = strings.ToLower(format)
	if _, _, err := ContentType(format); err != nil {
		return nil, err
	}
	all, err := e.st.ListScans(ctx, MaxRows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	switch format {
	case "json":
		return json.MarshalIndent(all, "", "  ")
	case "csv":
		var b bytes.Buffer
		w := csv.NewWriter(&b)
		_ = w.Write([]string{"id", "scanned_at_sgt", "qr_text", "source"})
		for _, sc := range all {
			_ = w.Write([]string{strconv.FormatInt(sc.ID, 10), sc.ScannedAtSGT, sc.QRText, sc.Source})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	default:
		return e.pdf(all)
	}
}

func (e *Exporter) pdf(all []store.Scan) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, "QR Scan Log")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(40, 6, fmt.Sprintf("Generated %s, %d scans", timefmt.SGT(timefmt.Format(e.now())), len(all)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, sc := range all {
		line := fmt.Sprintf("#%d  %s  [%s]  %s", sc.ID, sc.ScannedAtSGT, sc.Source, sc.QRText)
		pdf.MultiCell(0, 6, pdfText(tr, line), "0", "L", false)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pdfText encodes s for a core font. The translator turns runes its code
// page lacks into '.', which reads as punctuation; they become '?' instead.
func pdfText(tr func(string) string, s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		if t := tr(string(r)); t != "." {
			b.WriteString(t)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
