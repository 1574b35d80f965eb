package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `
	id, serial_number, name, national_id, department_id, job_grade, hire_date,
	regular_balance, initial_regular_balance, emergency_balance, status,
	created_at, updated_at`

func (t *txStore) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	return scanEmployeeRow(row)
}

func (t *txStore) GetEmployeeByNationalID(ctx context.Context, nationalID string) (*leave.Employee, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE national_id = ?`, nationalID)
	return scanEmployeeRow(row)
}

func (t *txStore) ListEmployees(ctx context.Context, filter leave.EmployeeFilter) ([]leave.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE 1=1`
	var args []any
	if filter.DepartmentID != nil {
		query += ` AND department_id = ?`
		args = append(args, *filter.DepartmentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id`

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.Unavailable("list employees", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, generic.Unavailable("scan employee", err)
		}
		out = append(out, e)
	}
	return out, generic.Unavailable("list employees", rows.Err())
}

func (t *txStore) InsertEmployee(ctx context.Context, e leave.Employee) (leave.EmployeeID, error) {
	var initial sql.NullString
	if e.InitialRegularBalance != nil {
		initial = sql.NullString{String: e.InitialRegularBalance.String(), Valid: true}
	}
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO employees (serial_number, name, national_id, department_id, job_grade, hire_date,
			regular_balance, initial_regular_balance, emergency_balance, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(e.SerialNumber), e.Name, e.NationalID, departmentArg(e.DepartmentID), e.JobGrade, e.HireDate,
		e.RegularBalance.String(), initial, e.EmergencyBalance.String(), string(statusOrActive(e.Status)),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return 0, employeeWriteError("insert employee", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, generic.Unavailable("insert employee", err)
	}
	return leave.EmployeeID(id), nil
}

func (t *txStore) UpdateEmployee(ctx context.Context, e leave.Employee) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE employees SET serial_number = ?, name = ?, department_id = ?, job_grade = ?,
			hire_date = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		nullString(e.SerialNumber), e.Name, departmentArg(e.DepartmentID), e.JobGrade,
		e.HireDate, string(statusOrActive(e.Status)), formatTime(e.UpdatedAt), e.ID,
	)
	return employeeWriteError("update employee", err)
}

func (t *txStore) UpdateBalances(ctx context.Context, id leave.EmployeeID, regular, emergency generic.Amount, at time.Time) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE employees SET regular_balance = ?, emergency_balance = ?, updated_at = ? WHERE id = ?`,
		regular.String(), emergency.String(), formatTime(at), id,
	)
	return generic.Unavailable("update balances", err)
}

func (t *txStore) SetInitialBalance(ctx context.Context, id leave.EmployeeID, value generic.Amount, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE employees SET initial_regular_balance = ?, updated_at = ?
		WHERE id = ? AND initial_regular_balance IS NULL`,
		value.String(), formatTime(at), id,
	)
	if err != nil {
		return false, generic.Unavailable("set initial balance", err)
	}
	n, err := res.RowsAffected()
	return n == 1, generic.Unavailable("set initial balance", err)
}

func (t *txStore) ResetEmergencyBalances(ctx context.Context, value generic.Amount, at time.Time) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE employees SET emergency_balance = ?, updated_at = ? WHERE status = ?`,
		value.String(), formatTime(at), string(leave.StatusActive),
	)
	if err != nil {
		return 0, generic.Unavailable("reset emergency balances", err)
	}
	n, err := res.RowsAffected()
	return n, generic.Unavailable("reset emergency balances", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployeeRow(row *sql.Row) (*leave.Employee, error) {
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Unavailable("get employee", err)
	}
	return &e, nil
}

func scanEmployee(r rowScanner) (leave.Employee, error) {
	var e leave.Employee
	var serial, initial sql.NullString
	var dept sql.NullInt64
	var regular, emergency, status, createdAt, updatedAt string
	err := r.Scan(
		&e.ID, &serial, &e.Name, &e.NationalID, &dept, &e.JobGrade, &e.HireDate,
		&regular, &initial, &emergency, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return e, err
	}

	var dec rowDecoder
	e.SerialNumber = serial.String
	if dept.Valid {
		id := leave.DepartmentID(dept.Int64)
		e.DepartmentID = &id
	}
	e.RegularBalance = dec.amount(regular)
	e.EmergencyBalance = dec.amount(emergency)
	if initial.Valid {
		a := dec.amount(initial.String)
		e.InitialRegularBalance = &a
	}
	e.Status = leave.EmployeeStatus(status)
	e.CreatedAt = dec.time(createdAt)
	e.UpdatedAt = dec.time(updatedAt)
	return e, dec.err
}

func departmentArg(id *leave.DepartmentID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func statusOrActive(s leave.EmployeeStatus) leave.EmployeeStatus {
	if s == "" {
		return leave.StatusActive
	}
	return s
}

func employeeWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueConstraintError(err, "employees.national_id"):
		return &generic.ValidationError{Field: "national_id", Message: "already registered"}
	case isUniqueConstraintError(err, "employees.serial_number"):
		return &generic.ValidationError{Field: "serial_number", Message: "already registered"}
	case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return &generic.ValidationError{Field: "department_id", Message: "unknown department"}
	}
	return generic.Unavailable(op, err)
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

func (t *txStore) GetDepartment(ctx context.Context, id leave.DepartmentID) (*leave.Department, error) {
	row := t.q.QueryRowContext(ctx, `SELECT id, name, head_user_id, created_at FROM departments WHERE id = ?`, id)
	return scanDepartmentRow(row)
}

func (t *txStore) GetDepartmentByName(ctx context.Context, name string) (*leave.Department, error) {
	row := t.q.QueryRowContext(ctx, `SELECT id, name, head_user_id, created_at FROM departments WHERE name = ?`, name)
	return scanDepartmentRow(row)
}

func (t *txStore) ListDepartments(ctx context.Context) ([]leave.Department, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT id, name, head_user_id, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, generic.Unavailable("list departments", err)
	}
	defer rows.Close()

	var out []leave.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, generic.Unavailable("scan department", err)
		}
		out = append(out, d)
	}
	return out, generic.Unavailable("list departments", rows.Err())
}

func (t *txStore) InsertDepartment(ctx context.Context, d leave.Department) (leave.DepartmentID, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO departments (name, head_user_id, created_at) VALUES (?, ?, ?)`,
		d.Name, userArg(d.HeadUserID), formatTime(d.CreatedAt),
	)
	if isUniqueConstraintError(err, "departments.name") {
		return 0, &generic.ValidationError{Field: "name", Message: "department already exists"}
	}
	if err != nil {
		return 0, generic.Unavailable("insert department", err)
	}
	id, err := res.LastInsertId()
	return leave.DepartmentID(id), generic.Unavailable("insert department", err)
}

func (t *txStore) SetDepartmentHead(ctx context.Context, id leave.DepartmentID, head *leave.UserID) error {
	_, err := t.q.ExecContext(ctx, `UPDATE departments SET head_user_id = ? WHERE id = ?`, userArg(head), id)
	return generic.Unavailable("set department head", err)
}

func scanDepartmentRow(row *sql.Row) (*leave.Department, error) {
	d, err := scanDepartment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Unavailable("get department", err)
	}
	return &d, nil
}

func scanDepartment(r rowScanner) (leave.Department, error) {
	var d leave.Department
	var head sql.NullInt64
	var createdAt string
	if err := r.Scan(&d.ID, &d.Name, &head, &createdAt); err != nil {
		return d, err
	}
	if head.Valid {
		u := leave.UserID(head.Int64)
		d.HeadUserID = &u
	}
	var dec rowDecoder
	d.CreatedAt = dec.time(createdAt)
	return d, dec.err
}

func userArg(id *leave.UserID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

// =============================================================================
// VACATION TYPES
// =============================================================================

func (t *txStore) ListVacationTypes(ctx context.Context) ([]leave.VacationType, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT code, label, deducts_regular_balance, uses_emergency_balance, fixed_duration,
			max_days_per_request, yearly_quota, lifetime_quota, requires_documentation,
			allows_overlap, auto_approve, active
		FROM vacation_types ORDER BY code`)
	if err != nil {
		return nil, generic.Unavailable("list vacation types", err)
	}
	defer rows.Close()

	var out []leave.VacationType
	for rows.Next() {
		var v leave.VacationType
		var fixed, maxDays, yearly, lifetime sql.NullInt64
		if err := rows.Scan(
			&v.Code, &v.Label, &v.DeductsRegularBalance, &v.UsesEmergencyBalance, &fixed,
			&maxDays, &yearly, &lifetime, &v.RequiresDocumentation,
			&v.AllowsOverlap, &v.AutoApprove, &v.Active,
		); err != nil {
			return nil, generic.Unavailable("scan vacation type", err)
		}
		v.FixedDuration = intPtr(fixed)
		v.MaxDaysPerRequest = intPtr(maxDays)
		v.YearlyQuota = intPtr(yearly)
		v.LifetimeQuota = intPtr(lifetime)
		out = append(out, v)
	}
	return out, generic.Unavailable("list vacation types", rows.Err())
}

func (t *txStore) InsertVacationType(ctx context.Context, v leave.VacationType) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO vacation_types (code, label, deducts_regular_balance, uses_emergency_balance,
			fixed_duration, max_days_per_request, yearly_quota, lifetime_quota,
			requires_documentation, allows_overlap, auto_approve, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Code, v.Label, boolInt(v.DeductsRegularBalance), boolInt(v.UsesEmergencyBalance),
		nullInt(v.FixedDuration), nullInt(v.MaxDaysPerRequest), nullInt(v.YearlyQuota), nullInt(v.LifetimeQuota),
		boolInt(v.RequiresDocumentation), boolInt(v.AllowsOverlap), boolInt(v.AutoApprove), boolInt(v.Active),
	)
	if isUniqueConstraintError(err, "vacation_types.code") {
		return &generic.ValidationError{Field: "code", Message: "vacation type " + v.Code + " already exists"}
	}
	return generic.Unavailable("insert vacation type", err)
}
