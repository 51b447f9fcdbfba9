package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"qr-gate/internal/matcher"
	"qr-gate/pkg/timefmt"
)

const (
	MinDoors = 2
	MaxDoors = 6
)

// Door is one configured door; DoorNo is its 1-based position in the scan order.
type Door struct {
	DoorNo     int    `json:"door_no"`
	DoorNumber string `json:"door_number"`
}

// Gate is a configured gate with its doors in scan order.
type Gate struct {
	ID           int64  `json:"id"`
	GateCode     string `json:"gate_code"`
	DoorCount    int    `json:"door_count"`
	CreatedAtUTC string `json:"created_at_utc"`
	CreatedAtSGT string `json:"created_at_sgt"`
	Doors        []Door `json:"doors"`
}

// NormalizeGateCode trims and upper-cases a gate code.
func NormalizeGateCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", invalid("gate_code is required")
	}
	return c, nil
}

// NormalizeDoorNumbers validates a door list: 2 to 6 entries, each present and
// distinct after matcher normalisation.
func NormalizeDoorNumbers(numbers []string) ([]string, error) {
	if len(numbers) < MinDoors || len(numbers) > MaxDoors {
		return nil, invalid("door_numbers must contain between %d and %d items", MinDoors, MaxDoors)
	}
	out := make([]string, 0, len(numbers))
	seen := make(map[string]bool, len(numbers))
	for i, raw := range numbers {
		v := matcher.Normalize(raw)
		if v == "" {
			return nil, invalid("door number %d is required", i+1)
		}
		if seen[v] {
			return nil, invalid("door numbers must be unique for the gate")
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) ensureCycleState(ctx context.Context, q queryer, gateID int64, at string) error {
	_, err := q.ExecContext(ctx, s.d.insertIgnore+` INTO gate_cycle_state(
        gate_id, last_completed_scan_id, updated_at_utc, next_expected_door_no
    )
    VALUES(?, 0, ?, 1)`, gateID, at)
	return err
}

// CreateGate adds a gate with no doors.
func (s *Store) CreateGate(ctx context.Context, code string) (Gate, error) {
	c, err := NormalizeGateCode(code)
	if err != nil {
		return Gate{}, err
	}
	now := s.timestamp()

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO gate_configs(gate_code, created_at_utc) VALUES(?, ?)`, c, now)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return s.ensureCycleState(ctx, tx, id, now)
	})
	if err != nil {
		if s.d.isUnique(err) {
			return Gate{}, ErrGateExists
		}
		return Gate{}, err
	}
	return s.Gate(ctx, id)
}

// SetGateDoors replaces a gate's doors and restarts its scan sequence.
func (s *Store) SetGateDoors(ctx context.Context, gateID int64, numbers []string) (Gate, error) {
	doors, err := NormalizeDoorNumbers(numbers)
	if err != nil {
		return Gate{}, err
	}
	now := s.timestamp()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM gate_configs WHERE id = ?`, gateID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGateNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM gate_config_doors WHERE gate_id = ?`, gateID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM gate_cycle_door_state WHERE gate_id = ?`, gateID); err != nil {
			return err
		}
		if err := s.ensureCycleState(ctx, tx, gateID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE gate_cycle_state
        SET last_completed_scan_id = 0, updated_at_utc = ?, next_expected_door_no = 1
        WHERE gate_id = ?`, now, gateID); err != nil {
			return err
		}
		for i, number := range doors {
			if _, err := tx.ExecContext(ctx, `INSERT INTO gate_config_doors(gate_id, door_no, door_number, created_at_utc)
        VALUES(?, ?, ?, ?)`, gateID, i+1, number, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.d.isUnique(err) {
			return Gate{}, ErrDoorConflict
		}
		return Gate{}, err
	}
	return s.Gate(ctx, gateID)
}

// Gate loads one gate with its doors.
func (s *Store) Gate(ctx context.Context, id int64) (Gate, error) {
	var g Gate
	err := s.db.QueryRowContext(ctx, `SELECT id, gate_code, created_at_utc
    FROM gate_configs
    WHERE id = ?`, id).Scan(&g.ID, &g.GateCode, &g.CreatedAtUTC)
	if errors.Is(err, sql.ErrNoRows) {
		return Gate{}, ErrGateNotFound
	}
	if err != nil {
		return Gate{}, err
	}
	if g.Doors, err = s.doors(ctx, s.db, id); err != nil {
		return Gate{}, err
	}
	g.DoorCount = len(g.Doors)
	g.CreatedAtSGT = timefmt.SGT(g.CreatedAtUTC)
	return g, nil
}

// ListGates returns the newest gates first.
func (s *Store) ListGates(ctx context.Context, limit int) ([]Gate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM gate_configs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	// The sqlite pool holds a single connection; release it before the
	// per-gate lookups.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Gate, 0, len(ids))
	for _, id := range ids {
		g, err := s.Gate(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) doors(ctx context.Context, q queryer, gateID int64) ([]Door, error) {
	rows, err := q.QueryContext(ctx, `SELECT door_no, door_number
    FROM gate_config_doors
    WHERE gate_id = ?
    ORDER BY door_no ASC`, gateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Door{}
	for rows.Next() {
		var d Door
		if err := rows.Scan(&d.DoorNo, &d.DoorNumber); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
