package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const absenceColumns = `id, employee_id, date, type, duration, notes, created_at`

// InsertAbsence relies on UNIQUE(employee_id, date) so concurrent inserts of
// the same day cannot both succeed.
func (t *txStore) InsertAbsence(ctx context.Context, a leave.Absence) (leave.AbsenceID, error) {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO absences (employee_id, date, type, duration, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.EmployeeID, a.Date.String(), a.Type, a.Duration.String(), a.Notes, formatTime(a.CreatedAt),
	)
	if isUniqueConstraintError(err, "absences.") {
		return 0, &generic.DuplicateAbsenceError{EmployeeID: int64(a.EmployeeID), Date: a.Date}
	}
	if err != nil {
		return 0, generic.Unavailable("insert absence", err)
	}
	id, err := res.LastInsertId()
	return leave.AbsenceID(id), generic.Unavailable("insert absence", err)
}

func (t *txStore) GetAbsence(ctx context.Context, id leave.AbsenceID) (*leave.Absence, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+absenceColumns+` FROM absences WHERE id = ?`, id)
	return scanAbsenceRow(row)
}

func (t *txStore) FindAbsence(ctx context.Context, employeeID leave.EmployeeID, date generic.Date) (*leave.Absence, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+absenceColumns+` FROM absences WHERE employee_id = ? AND date = ?`,
		employeeID, date.String())
	return scanAbsenceRow(row)
}

func (t *txStore) ListAbsences(ctx context.Context, filter leave.AbsenceFilter) ([]leave.Absence, error) {
	query := `SELECT ` + absenceColumns + ` FROM absences WHERE 1=1`
	var args []any
	if filter.EmployeeID != nil {
		query += ` AND employee_id = ?`
		args = append(args, *filter.EmployeeID)
	}
	if !filter.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, filter.From.String())
	}
	if !filter.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, filter.To.String())
	}
	query += ` ORDER BY date, employee_id`

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.Unavailable("list absences", err)
	}
	defer rows.Close()

	var out []leave.Absence
	for rows.Next() {
		a, err := scanAbsence(rows)
		if err != nil {
			return nil, generic.Unavailable("scan absence", err)
		}
		out = append(out, a)
	}
	return out, generic.Unavailable("list absences", rows.Err())
}

func (t *txStore) DeleteAbsence(ctx context.Context, id leave.AbsenceID) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM absences WHERE id = ?`, id)
	return generic.Unavailable("delete absence", err)
}

func scanAbsenceRow(row *sql.Row) (*leave.Absence, error) {
	a, err := scanAbsence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Unavailable("get absence", err)
	}
	return &a, nil
}

func scanAbsence(r rowScanner) (leave.Absence, error) {
	var a leave.Absence
	var date, duration, createdAt string
	if err := r.Scan(&a.ID, &a.EmployeeID, &date, &a.Type, &duration, &a.Notes, &createdAt); err != nil {
		return a, err
	}
	var dec rowDecoder
	a.Date = dec.date(date)
	a.Duration = dec.amount(duration)
	a.CreatedAt = dec.time(createdAt)
	return a, dec.err
}
