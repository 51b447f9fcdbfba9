package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qr-gate/internal/matcher"
	"qr-gate/internal/sequence"
	"qr-gate/pkg/timefmt"
)

// processScan moves the door sequence of every gate whose doors match payload
// and returns the ids of action events it created. It runs inside AddScan's
// transaction.
func (s *Store) processScan(ctx context.Context, tx *sql.Tx, payload string, scanID int64, at string) ([]int64, error) {
	candidates := matcher.Candidates(payload)
	if len(candidates) == 0 {
		return nil, nil
	}
	matched, order, err := s.matchDoors(ctx, tx, candidates, matcher.GateHints(payload))
	if err != nil {
		return nil, err
	}

	var created []int64
	for _, gateID := range order {
		id, err := s.stepGate(ctx, tx, gateID, matched[gateID], scanID, at)
		if err != nil {
			return nil, fmt.Errorf("gate %d: %w", gateID, err)
		}
		if id > 0 {
			created = append(created, id)
		}
	}
	return created, nil
}

// matchDoors returns, per gate, the door_nos whose door number is one of the
// candidates, restricted to gates named by hints when there are any.
func (s *Store) matchDoors(ctx context.Context, q queryer, candidates, hints []string) (map[int64]map[int]bool, []int64, error) {
	args := make([]any, 0, len(candidates)+len(hints))
	for _, c := range candidates {
		args = append(args, c)
	}
	query := `SELECT d.gate_id, d.door_no
    FROM gate_config_doors d
    WHERE UPPER(d.door_number) IN (` + placeholders(len(candidates)) + `)
    ORDER BY d.gate_id, d.door_no`
	if len(hints) > 0 {
		query = `SELECT d.gate_id, d.door_no
    FROM gate_config_doors d
    JOIN gate_configs g ON g.id = d.gate_id
    WHERE UPPER(d.door_number) IN (` + placeholders(len(candidates)) + `)
      AND UPPER(g.gate_code) IN (` + placeholders(len(hints)) + `)
    ORDER BY d.gate_id, d.door_no`
		for _, h := range hints {
			args = append(args, h)
		}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	matched := map[int64]map[int]bool{}
	var order []int64
	for rows.Next() {
		var gateID int64
		var doorNo int
		if err := rows.Scan(&gateID, &doorNo); err != nil {
			return nil, nil, err
		}
		if matched[gateID] == nil {
			matched[gateID] = map[int]bool{}
			order = append(order, gateID)
		}
		matched[gateID][doorNo] = true
	}
	return matched, order, rows.Err()
}

// cycleStateQuery reads a gate's expected door, locking the row where the
// dialect needs it.
func (s *Store) cycleStateQuery() string {
	return `SELECT next_expected_door_no FROM gate_cycle_state WHERE gate_id = ?` + s.d.lockRow
}

func (s *Store) stepGate(ctx context.Context, tx *sql.Tx, gateID int64, matched map[int]bool, scanID int64, at string) (int64, error) {
	var expected sql.NullInt64
	err := tx.QueryRowContext(ctx, s.cycleStateQuery(), gateID).Scan(&expected)
	if errors.Is(err, sql.ErrNoRows) {
		// Gates from older databases may lack a state row.
		if err := s.ensureCycleState(ctx, tx, gateID, at); err != nil {
			return 0, err
		}
		expected = sql.NullInt64{Int64: 1, Valid: true}
		err = nil
	}
	if err != nil {
		return 0, err
	}

	doors, err := s.doors(ctx, tx, gateID)
	if err != nil {
		return 0, err
	}
	if len(doors) == 0 {
		return 0, nil
	}
	required := make([]int, len(doors))
	for i, d := range doors {
		required[i] = d.DoorNo
	}

	out := sequence.Step(required, int(expected.Int64), matched)
	switch out.Kind {
	case sequence.Advance:
		if _, err := tx.ExecContext(ctx, s.d.upsertDoorState, gateID, out.Door, scanID); err != nil {
			return 0, err
		}
		return 0, s.setNext(ctx, tx, gateID, out.Next, at)

	case sequence.Complete:
		if _, err := tx.ExecContext(ctx, s.d.upsertDoorState, gateID, out.Door, scanID); err != nil {
			return 0, err
		}
		return s.completeCycle(ctx, tx, gateID, required, scanID, at)

	case sequence.Restart:
		if err := s.clearDoorState(ctx, tx, gateID); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, s.d.upsertDoorState, gateID, out.Door, scanID); err != nil {
			return 0, err
		}
		return 0, s.setNext(ctx, tx, gateID, out.Next, at)

	default:
		if err := s.clearDoorState(ctx, tx, gateID); err != nil {
			return 0, err
		}
		return 0, s.setNext(ctx, tx, gateID, 1, at)
	}
}

func (s *Store) completeCycle(ctx context.Context, tx *sql.Tx, gateID int64, required []int, scanID int64, at string) (int64, error) {
	var redCard bool
	var elapsed sql.NullInt64
	if len(required) == 2 {
		secs, ok, err := s.sinceFirstDoor(ctx, tx, gateID, required[0], at)
		if err != nil {
			return 0, err
		}
		if ok {
			elapsed = sql.NullInt64{Int64: int64(secs), Valid: true}
			redCard = sequence.RedCard(secs, s.door2Timeout)
		}
	}

	res, err := tx.ExecContext(ctx, s.d.insertIgnore+` INTO action_events(
        gate_id, completed_scan_id, completed_at_utc, is_red_card, door2_elapsed_seconds
    )
    VALUES(?, ?, ?, ?, ?)`, gateID, scanID, at, boolInt(redCard), elapsed)
	if err != nil {
		return 0, err
	}
	var id int64
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE gate_cycle_state
    SET last_completed_scan_id = ?, updated_at_utc = ?, next_expected_door_no = 1
    WHERE gate_id = ?`, scanID, at, gateID); err != nil {
		return 0, err
	}
	return id, s.clearDoorState(ctx, tx, gateID)
}

// sinceFirstDoor returns whole seconds between the scan recorded for the
// gate's first door and at. ok is false when that scan cannot be found.
func (s *Store) sinceFirstDoor(ctx context.Context, tx *sql.Tx, gateID int64, firstDoor int, at string) (int, bool, error) {
	var scannedAt string
	err := tx.QueryRowContext(ctx, `SELECT sc.scanned_at_utc
    FROM gate_cycle_door_state st
    JOIN scans sc ON sc.id = st.last_scan_id
    WHERE st.gate_id = ? AND st.door_no = ?`, gateID, firstDoor).Scan(&scannedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	first, ok := timefmt.Parse(scannedAt)
	if !ok {
		return 0, false, nil
	}
	current, ok := timefmt.Parse(at)
	if !ok {
		return 0, false, nil
	}
	return sequence.Elapsed(first, current), true, nil
}

func (s *Store) setNext(ctx context.Context, tx *sql.Tx, gateID int64, next int, at string) error {
	_, err := tx.ExecContext(ctx, `UPDATE gate_cycle_state
    SET updated_at_utc = ?, next_expected_door_no = ?
    WHERE gate_id = ?`, at, next, gateID)
	return err
}

func (s *Store) clearDoorState(ctx context.Context, tx *sql.Tx, gateID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM gate_cycle_door_state WHERE gate_id = ?`, gateID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
