/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Persists employees, departments, the vacation-type catalog, leave
  requests, absences, the two maintenance logs and the audit log. Every
  domain operation runs through WithTx; the query methods live on a
  transaction-bound querier so nothing inside a transaction touches the
  pool directly.

KEY TABLES:
  employees:           balances live on the employee row
  departments:         unique name, optional head user
  vacation_types:      policy catalog (seeded once)
  leave_requests:      one canonical workflow_state per request
  absences:            UNIQUE(employee_id, date)
  accrual_log:         PRIMARY KEY(year, month)
  emergency_reset_log: PRIMARY KEY(year)
  audit_log:           append-only, no UPDATE or DELETE is ever issued
                       (Reset keeps it and appends a store_reset entry)

STORAGE FORMATS:
  amounts     TEXT decimal ("2.5"), parsed back with shopspring/decimal
  dates       TEXT YYYY-MM-DD
  timestamps  TEXT RFC3339Nano, UTC

CONCURRENCY:
  The pool is capped at one connection and transactions start with
  BEGIN IMMEDIATE (_txlock=immediate), so write transactions are fully
  serialized. A conditional UPDATE on the source state is the last line of
  defence for workflow transitions.

ERRORS:
  Driver failures are wrapped in *generic.UnavailableError. Unique
  violations the domain understands become DuplicateAbsenceError or
  ValidationError.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go: interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ leave.Store = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps a :memory: database alive across calls and
	// serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return generic.Unavailable("ping", s.db.PingContext(ctx))
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		head_user_id INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial_number TEXT,
		name TEXT NOT NULL,
		national_id TEXT NOT NULL UNIQUE,
		department_id INTEGER REFERENCES departments(id),
		job_grade TEXT NOT NULL DEFAULT '',
		hire_date TEXT NOT NULL DEFAULT '',
		regular_balance TEXT NOT NULL DEFAULT '0',
		initial_regular_balance TEXT,
		emergency_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Serial numbers are optional but unique when present
	CREATE UNIQUE INDEX IF NOT EXISTS idx_employees_serial
		ON employees(serial_number) WHERE serial_number IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_employees_department
		ON employees(department_id);

	CREATE TABLE IF NOT EXISTS vacation_types (
		code TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		deducts_regular_balance INTEGER NOT NULL DEFAULT 0,
		uses_emergency_balance INTEGER NOT NULL DEFAULT 0,
		fixed_duration INTEGER,
		max_days_per_request INTEGER,
		yearly_quota INTEGER,
		lifetime_quota INTEGER,
		requires_documentation INTEGER NOT NULL DEFAULT 0,
		allows_overlap INTEGER NOT NULL DEFAULT 0,
		auto_approve INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		type_code TEXT NOT NULL REFERENCES vacation_types(code),
		subtype TEXT NOT NULL DEFAULT '',
		relation TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		duration TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		document_ref TEXT NOT NULL DEFAULT '',
		workflow_state TEXT NOT NULL,
		rejection_reason TEXT,
		dept_actor_id INTEGER,
		dept_decided_at TEXT,
		manager_actor_id INTEGER,
		manager_decided_at TEXT,
		created_at TEXT NOT NULL,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(employee_id, type_code, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_state
		ON leave_requests(workflow_state);

	CREATE TABLE IF NOT EXISTS absences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		duration TEXT NOT NULL DEFAULT '1',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS accrual_log (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		processed_at TEXT NOT NULL,
		PRIMARY KEY (year, month)
	);

	CREATE TABLE IF NOT EXISTS emergency_reset_log (
		year INTEGER PRIMARY KEY,
		processed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		table_name TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		changes_json TEXT,
		user_id INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_record
		ON audit_log(table_name, record_id);
	CREATE INDEX IF NOT EXISTS idx_audit_user
		ON audit_log(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txStore implements leave.Tx on top of one *sql.Tx.
type txStore struct {
	q querier
}

var _ leave.Tx = (*txStore)(nil)

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx leave.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Unavailable("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}

	return generic.Unavailable("commit transaction", sqlTx.Commit())
}

// Reset deletes all domain data. For tests and demos only.
// audit_log is kept; the reset itself is appended to it.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Unavailable("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `
		DELETE FROM absences;
		DELETE FROM leave_requests;
		DELETE FROM accrual_log;
		DELETE FROM emergency_reset_log;
		DELETE FROM employees;
		DELETE FROM departments;
		DELETE FROM vacation_types;
	`); err != nil {
		return generic.Unavailable("reset", err)
	}

	tx := &txStore{q: sqlTx}
	if _, err := tx.AppendAudit(ctx, generic.AuditEntry{
		Action:    generic.AuditStoreReset,
		Table:     "*",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	return generic.Unavailable("commit transaction", sqlTx.Commit())
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// rowDecoder parses stored text columns and keeps the first failure, so a
// corrupt row surfaces as an error instead of zero values.
type rowDecoder struct {
	err error
}

func (d *rowDecoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *rowDecoder) time(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		d.fail(fmt.Errorf("corrupt timestamp %q: %w", s, err))
	}
	return t
}

func (d *rowDecoder) nullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := d.time(s.String)
	return &t
}

func (d *rowDecoder) date(s string) generic.Date {
	t, err := time.Parse(generic.DateLayout, s)
	if err != nil {
		d.fail(fmt.Errorf("corrupt date %q: %w", s, err))
	}
	return generic.Date{Time: t}
}

func (d *rowDecoder) amount(s string) generic.Amount {
	a, err := generic.ParseAmount(s, generic.UnitDays)
	if err != nil {
		d.fail(err)
	}
	return a
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError reports a UNIQUE or PRIMARY KEY violation,
// optionally on a specific "table.column" target.
func isUniqueConstraintError(err error, target string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.ExtendedCode != sqlite3.ErrConstraintUnique && se.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return target == "" || strings.Contains(se.Error(), target)
}
