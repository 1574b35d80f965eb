package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MAINTENANCE LOGS
// =============================================================================

func (t *txStore) AccrualProcessed(ctx context.Context, year int, month time.Month) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accrual_log WHERE year = ? AND month = ?`, year, int(month)).Scan(&n)
	return n > 0, generic.Unavailable("check accrual log", err)
}

func (t *txStore) MarkAccrualProcessed(ctx context.Context, year int, month time.Month, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO accrual_log (year, month, processed_at) VALUES (?, ?, ?)`,
		year, int(month), formatTime(at))
	if err != nil {
		return false, generic.Unavailable("mark accrual processed", err)
	}
	n, err := res.RowsAffected()
	return n == 1, generic.Unavailable("mark accrual processed", err)
}

func (t *txStore) EmergencyResetProcessed(ctx context.Context, year int) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emergency_reset_log WHERE year = ?`, year).Scan(&n)
	return n > 0, generic.Unavailable("check emergency reset log", err)
}

func (t *txStore) MarkEmergencyResetProcessed(ctx context.Context, year int, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO emergency_reset_log (year, processed_at) VALUES (?, ?)`,
		year, formatTime(at))
	if err != nil {
		return false, generic.Unavailable("mark emergency reset processed", err)
	}
	n, err := res.RowsAffected()
	return n == 1, generic.Unavailable("mark emergency reset processed", err)
}

// =============================================================================
// AUDIT LOG (append-only)
// =============================================================================

func (t *txStore) AppendAudit(ctx context.Context, e generic.AuditEntry) (int64, error) {
	var changes []byte
	if e.Changes != nil {
		var err error
		if changes, err = json.Marshal(e.Changes); err != nil {
			return 0, err
		}
	}
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO audit_log (action, table_name, record_id, changes_json, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.Action), e.Table, e.RecordID, nullString(string(changes)), e.UserID, formatTime(e.CreatedAt),
	)
	if err != nil {
		return 0, generic.Unavailable("append audit", err)
	}
	id, err := res.LastInsertId()
	return id, generic.Unavailable("append audit", err)
}

// QueryAudit returns entries newest first.
func (t *txStore) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	query := `SELECT id, action, table_name, record_id, changes_json, user_id, created_at FROM audit_log`
	var where []string
	var args []any
	if f.Table != "" {
		where = append(where, `table_name = ?`)
		args = append(args, f.Table)
	}
	if f.RecordID != nil {
		where = append(where, `record_id = ?`)
		args = append(args, *f.RecordID)
	}
	if f.UserID != nil {
		where = append(where, `user_id = ?`)
		args = append(args, *f.UserID)
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, `action IN (`+strings.Join(marks, ", ")+`)`)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.Unavailable("query audit", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var e generic.AuditEntry
		var action, createdAt string
		var changes []byte
		if err := rows.Scan(&e.ID, &action, &e.Table, &e.RecordID, &changes, &e.UserID, &createdAt); err != nil {
			return nil, generic.Unavailable("scan audit", err)
		}
		var dec rowDecoder
		e.Action = generic.AuditAction(action)
		e.CreatedAt = dec.time(createdAt)
		if dec.err != nil {
			return nil, generic.Unavailable("scan audit", dec.err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, generic.Unavailable("scan audit", err)
			}
		}
		out = append(out, e)
	}
	return out, generic.Unavailable("query audit", rows.Err())
}
