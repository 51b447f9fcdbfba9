package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qr-gate/internal/config"
	"qr-gate/pkg/timefmt"
)

// Store is the scan log and gate configuration database.
type Store struct {
	db           *sql.DB
	d            dialect
	now          func() time.Time
	door2Timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now; timestamps are taken from it at second precision.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDoor2Timeout sets the door 1 -> door 2 limit for two-door gates.
func WithDoor2Timeout(d time.Duration) Option {
	return func(s *Store) { s.door2Timeout = d }
}

// DefaultDoor2Timeout is used when WithDoor2Timeout is not given.
const DefaultDoor2Timeout = 20 * time.Second

// NewFromConfig opens the store described by cfg.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig, opts ...Option) (*Store, error) {
	dsn := cfg.DSN
	if cfg.Driver == "sqlite" {
		if dsn == "" {
			dsn = SQLiteDSN(cfg.Path)
			if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("failed to create database directory: %w", err)
				}
			}
		} else {
			dsn = withSQLitePragmas(dsn)
		}
	}
	return New(ctx, cfg.Driver, dsn, opts...)
}

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// SQLiteDSN turns a file path into a DSN with foreign keys, a busy timeout and WAL.
func SQLiteDSN(path string) string { return withSQLitePragmas(path) }

// withSQLitePragmas adds the default pragmas to a DSN that sets none of its
// own. Cascading deletes depend on foreign_keys being on.
func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// New opens driver ("sqlite" or "mysql") at dsn and migrates the schema.
func New(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.singleWriter {
		// One connection serialises writers and keeps the per-connection
		// pragmas in force.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		db:           db,
		d:            d,
		now:          time.Now,
		door2Timeout: DefaultDoor2Timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Driver names the dialect in use.
func (s *Store) Driver() string { return s.d.name }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ServerVersion reports the database engine version.
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := s.db.QueryRowContext(ctx, s.d.versionQuery).Scan(&v); err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return v, nil
}

func (s *Store) timestamp() string { return timefmt.Format(s.now()) }

func (s *Store) migrate(ctx context.Context) error {
	for _, ddl := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	// Databases created by earlier releases lack these columns.
	for _, c := range s.d.addedColumns {
		ok, err := s.d.hasColumn(ctx, s.db, c.table, c.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.definition)); err != nil {
			return err
		}
	}
	for _, ddl := range s.d.indexes {
		if err := s.execIgnoreDupIndex(ctx, ddl); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE gate_cycle_state
    SET next_expected_door_no = 1
    WHERE next_expected_door_no IS NULL OR next_expected_door_no < 1`)
	return err
}

// MySQL lacks IF NOT EXISTS for CREATE INDEX; an existing index is fine.
func (s *Store) execIgnoreDupIndex(ctx context.Context, ddl string) error {
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		e := err.Error()
		if strings.Contains(e, "Duplicate key name") || strings.Contains(e, "1061") {
			return nil
		}
	}
	return err
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ---- errors ----

var (
	ErrGateNotFound   = errors.New("gate not found")
	ErrGateExists     = errors.New("gate_code already exists")
	ErrDoorConflict   = errors.New("door number already exists for this gate")
	ErrActionNotFound = errors.New("action event not found")
)

// ValidationError reports input the caller must fix.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
