package store

import (
	"context"
	"database/sql"
	"strings"

	"qr-gate/internal/matcher"
	"qr-gate/pkg/timefmt"
)

// Scan is one logged QR scan.
type Scan struct {
	ID           int64  `json:"id"`
	ScannedAtUTC string `json:"scanned_at_utc"`
	QRText       string `json:"qr_text"`
	Source       string `json:"source"`
	ScannedAtSGT string `json:"scanned_at_sgt"`
}

// GateSummary aggregates scans sharing the same payload.
type GateSummary struct {
	GateCode         string `json:"gate_code"`
	ScanCount        int64  `json:"scan_count"`
	LastScannedAtUTC string `json:"last_scanned_at_utc"`
	LastScannedAtSGT string `json:"last_scanned_at_sgt"`
}

// ScanResult is what AddScan recorded.
type ScanResult struct {
	Scan Scan
	// Actions are the action events this scan completed, usually none.
	Actions []ActionEvent
}

// NormalizeSource upper-cases a scan source; blank becomes UNKNOWN.
func NormalizeSource(source string) string {
	s := strings.ToUpper(strings.TrimSpace(source))
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// AddScan logs a scan and advances the door sequence of every gate it matches,
// in one transaction.
func (s *Store) AddScan(ctx context.Context, qrText, source string) (ScanResult, error) {
	text := strings.TrimSpace(qrText)
	if text == "" {
		return ScanResult{}, invalid("qr_text is required")
	}
	at := s.timestamp()
	scan := Scan{
		ScannedAtUTC: at,
		QRText:       text,
		Source:       NormalizeSource(source),
		ScannedAtSGT: timefmt.SGT(at),
	}

	var actionIDs []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO scans(scanned_at_utc, qr_text, source) VALUES(?, ?, ?)`,
			scan.ScannedAtUTC, scan.QRText, scan.Source)
		if err != nil {
			return err
		}
		if scan.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		actionIDs, err = s.processScan(ctx, tx, matcher.Normalize(text), scan.ID, at)
		return err
	})
	if err != nil {
		return ScanResult{}, err
	}

	out := ScanResult{Scan: scan}
	for _, id := range actionIDs {
		ev, err := s.Action(ctx, id)
		if err != nil {
			return out, err
		}
		out.Actions = append(out.Actions, ev)
	}
	return out, nil
}

// ListScans returns the newest scans first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, scanned_at_utc, qr_text, source
    FROM scans
    ORDER BY id DESC
    LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Scan{}
	for rows.Next() {
		var sc Scan
		if err := rows.Scan(&sc.ID, &sc.ScannedAtUTC, &sc.QRText, &sc.Source); err != nil {
			return nil, err
		}
		sc.ScannedAtSGT = timefmt.SGT(sc.ScannedAtUTC)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// GateSummary groups scans by payload, most recently scanned first.
func (s *Store) GateSummary(ctx context.Context, limit int) ([]GateSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
        qr_text AS gate_code,
        COUNT(*) AS scan_count,
        MAX(scanned_at_utc) AS last_scanned_at_utc
    FROM scans
    GROUP BY qr_text
    ORDER BY last_scanned_at_utc DESC
    LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []GateSummary{}
	for rows.Next() {
		var g GateSummary
		if err := rows.Scan(&g.GateCode, &g.ScanCount, &g.LastScannedAtUTC); err != nil {
			return nil, err
		}
		g.LastScannedAtSGT = timefmt.SGT(g.LastScannedAtUTC)
		out = append(out, g)
	}
	return out, rows.Err()
}
