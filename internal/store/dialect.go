package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

type columnMigration struct {
	table      string
	column     string
	definition string
}

// dialect carries the statements that differ between SQLite and MySQL.
//
// Sequence processing reads a gate's cycle state and writes it back in the
// same transaction. SQLite serialises those transactions through its single
// connection; MySQL needs lockRow on the read so two scans of one gate queue
// up instead of both acting on the same expected door.
type dialect struct {
	name   string
	driver string
	// singleWriter caps the pool at one connection.
	singleWriter bool

	schema       []string
	indexes      []string
	addedColumns []columnMigration

	insertIgnore    string
	upsertDoorState string
	versionQuery    string
	// lockRow is appended to reads of rows the transaction will update.
	lockRow string

	hasColumn func(ctx context.Context, q queryer, table, column string) (bool, error)
	isUnique  func(err error) bool
}

func dialectFor(name string) (dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return sqliteDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported store driver %q", name)
	}
}

var sqliteDialect = dialect{
	name:         "sqlite",
	driver:       "sqlite",
	singleWriter: true,
	versionQuery: `SELECT sqlite_version()`,
	lockRow:      "",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS scans (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scanned_at_utc TEXT NOT NULL,
    qr_text TEXT NOT NULL,
    source TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS gate_configs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    gate_code TEXT NOT NULL UNIQUE,
    created_at_utc TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS gate_config_doors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    gate_id INTEGER NOT NULL,
    door_no INTEGER NOT NULL,
    door_number TEXT NOT NULL,
    created_at_utc TEXT NOT NULL,
    FOREIGN KEY(gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE,
    UNIQUE(gate_id, door_no),
    UNIQUE(gate_id, door_number)
)`,
		`CREATE TABLE IF NOT EXISTS gate_cycle_state (
    gate_id INTEGER PRIMARY KEY,
    last_completed_scan_id INTEGER NOT NULL DEFAULT 0,
    updated_at_utc TEXT NOT NULL,
    next_expected_door_no INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY(gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS gate_cycle_door_state (
    gate_id INTEGER NOT NULL,
    door_no INTEGER NOT NULL,
    last_scan_id INTEGER NOT NULL,
    PRIMARY KEY(gate_id, door_no),
    FOREIGN KEY(gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS action_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    gate_id INTEGER NOT NULL,
    completed_scan_id INTEGER NOT NULL,
    completed_at_utc TEXT NOT NULL,
    closed_at_utc TEXT,
    is_red_card INTEGER NOT NULL DEFAULT 0,
    door2_elapsed_seconds INTEGER,
    FOREIGN KEY(gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE,
    UNIQUE(gate_id, completed_scan_id)
)`,
	},
	indexes: []string{
		`CREATE INDEX IF NOT EXISTS idx_scans_qr_text ON scans(qr_text)`,
		`CREATE INDEX IF NOT EXISTS idx_action_events_open ON action_events(closed_at_utc)`,
	},
	addedColumns: []columnMigration{
		{"gate_cycle_state", "next_expected_door_no", "INTEGER NOT NULL DEFAULT 1"},
		{"action_events", "closed_at_utc", "TEXT"},
		{"action_events", "is_red_card", "INTEGER NOT NULL DEFAULT 0"},
		{"action_events", "door2_elapsed_seconds", "INTEGER"},
	},
	insertIgnore: "INSERT OR IGNORE",
	upsertDoorState: `INSERT INTO gate_cycle_door_state(gate_id, door_no, last_scan_id)
    VALUES(?, ?, ?)
    ON CONFLICT(gate_id, door_no) DO UPDATE SET last_scan_id = excluded.last_scan_id`,
	hasColumn: func(ctx context.Context, q queryer, table, column string) (bool, error) {
		var n int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
		return n > 0, err
	},
	isUnique: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

var mysqlDialect = dialect{
	name:         "mysql",
	driver:       "mysql",
	versionQuery: `SELECT VERSION()`,
	lockRow:      " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS scans (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    scanned_at_utc VARCHAR(32) NOT NULL,
    qr_text TEXT NOT NULL,
    source VARCHAR(255) NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS gate_configs (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    gate_code VARCHAR(191) NOT NULL,
    created_at_utc VARCHAR(32) NOT NULL,
    UNIQUE KEY uniq_gate_code (gate_code)
)`,
		`CREATE TABLE IF NOT EXISTS gate_config_doors (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    gate_id BIGINT NOT NULL,
    door_no INT NOT NULL,
    door_number VARCHAR(191) NOT NULL,
    created_at_utc VARCHAR(32) NOT NULL,
    FOREIGN KEY (gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE,
    UNIQUE KEY uniq_gate_door_no (gate_id, door_no),
    UNIQUE KEY uniq_gate_door_number (gate_id, door_number)
)`,
		`CREATE TABLE IF NOT EXISTS gate_cycle_state (
    gate_id BIGINT PRIMARY KEY,
    last_completed_scan_id BIGINT NOT NULL DEFAULT 0,
    updated_at_utc VARCHAR(32) NOT NULL,
    next_expected_door_no INT NOT NULL DEFAULT 1,
    FOREIGN KEY (gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS gate_cycle_door_state (
    gate_id BIGINT NOT NULL,
    door_no INT NOT NULL,
    last_scan_id BIGINT NOT NULL,
    PRIMARY KEY (gate_id, door_no),
    FOREIGN KEY (gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS action_events (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    gate_id BIGINT NOT NULL,
    completed_scan_id BIGINT NOT NULL,
    completed_at_utc VARCHAR(32) NOT NULL,
    closed_at_utc VARCHAR(32) NULL,
    is_red_card TINYINT NOT NULL DEFAULT 0,
    door2_elapsed_seconds INT NULL,
    FOREIGN KEY (gate_id) REFERENCES gate_configs(id) ON DELETE CASCADE,
    UNIQUE KEY uniq_action (gate_id, completed_scan_id)
)`,
	},
	indexes: []string{
		`CREATE INDEX idx_scans_qr_text ON scans(qr_text(191))`,
	},
	addedColumns: []columnMigration{
		{"gate_cycle_state", "next_expected_door_no", "INT NOT NULL DEFAULT 1"},
		{"action_events", "closed_at_utc", "VARCHAR(32) NULL"},
		{"action_events", "is_red_card", "TINYINT NOT NULL DEFAULT 0"},
		{"action_events", "door2_elapsed_seconds", "INT NULL"},
	},
	insertIgnore: "INSERT IGNORE",
	upsertDoorState: `INSERT INTO gate_cycle_door_state(gate_id, door_no, last_scan_id)
    VALUES(?, ?, ?)
    ON DUPLICATE KEY UPDATE last_scan_id = VALUES(last_scan_id)`,
	hasColumn: func(ctx context.Context, q queryer, table, column string) (bool, error) {
		var n int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM information_schema.columns
    WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`, table, column).Scan(&n)
		return n > 0, err
	},
	isUnique: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == 1062
	},
}
