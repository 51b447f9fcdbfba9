package store

import (
	"context"
	"database/sql"
	"errors"

	"qr-gate/pkg/timefmt"
)

// ActionEvent is raised when a gate's full door sequence has been scanned.
type ActionEvent struct {
	ID                  int64   `json:"id"`
	GateID              int64   `json:"gate_id"`
	GateCode            string  `json:"gate_code"`
	DoorCount           int     `json:"door_count"`
	Doors               []Door  `json:"doors"`
	CompletedAtUTC      string  `json:"completed_at_utc"`
	CompletedAtSGT      string  `json:"completed_at_sgt"`
	ClosedAtUTC         *string `json:"closed_at_utc"`
	ClosedAtSGT         string  `json:"closed_at_sgt"`
	CompletedScanID     int64   `json:"completed_scan_id"`
	IsRedCard           bool    `json:"is_red_card"`
	Door2ElapsedSeconds *int    `json:"door2_elapsed_seconds"`
}

const actionColumns = `SELECT
        e.id,
        e.completed_at_utc,
        e.completed_scan_id,
        e.closed_at_utc,
        e.is_red_card,
        e.door2_elapsed_seconds,
        g.id,
        g.gate_code
    FROM action_events e
    JOIN gate_configs g ON g.id = e.gate_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(r rowScanner) (ActionEvent, error) {
	var (
		ev      ActionEvent
		closed  sql.NullString
		red     int
		elapsed sql.NullInt64
	)
	err := r.Scan(&ev.ID, &ev.CompletedAtUTC, &ev.CompletedScanID, &closed, &red, &elapsed, &ev.GateID, &ev.GateCode)
	if err != nil {
		return ActionEvent{}, err
	}
	if closed.Valid {
		ev.ClosedAtUTC = &closed.String
	}
	if elapsed.Valid {
		n := int(elapsed.Int64)
		ev.Door2ElapsedSeconds = &n
	}
	ev.IsRedCard = red != 0
	ev.CompletedAtSGT = timefmt.SGT(ev.CompletedAtUTC)
	ev.ClosedAtSGT = timefmt.SGTPtr(ev.ClosedAtUTC)
	return ev, nil
}

func (s *Store) withDoors(ctx context.Context, ev *ActionEvent) error {
	doors, err := s.doors(ctx, s.db, ev.GateID)
	if err != nil {
		return err
	}
	ev.Doors = doors
	ev.DoorCount = len(doors)
	return nil
}

// Action loads one action event.
func (s *Store) Action(ctx context.Context, id int64) (ActionEvent, error) {
	ev, err := scanAction(s.db.QueryRowContext(ctx, actionColumns+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ActionEvent{}, ErrActionNotFound
	}
	if err != nil {
		return ActionEvent{}, err
	}
	return ev, s.withDoors(ctx, &ev)
}

// ListActions returns the newest action events first. Closed events are
// skipped unless includeClosed is set.
func (s *Store) ListActions(ctx context.Context, limit int, includeClosed bool) ([]ActionEvent, error) {
	query := actionColumns
	if !includeClosed {
		query += ` WHERE e.closed_at_utc IS NULL`
	}
	query += ` ORDER BY e.id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := []ActionEvent{}
	for rows.Next() {
		ev, err := scanAction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.withDoors(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CloseAction marks an open action event closed. It reports false when the
// event does not exist or was already closed.
func (s *Store) CloseAction(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE action_events
    SET closed_at_utc = ?
    WHERE id = ? AND closed_at_utc IS NULL`, s.timestamp(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
