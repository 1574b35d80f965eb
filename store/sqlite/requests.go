package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const requestColumns = `
	r.id, r.employee_id, r.type_code, r.subtype, r.relation, r.start_date, r.end_date,
	r.duration, r.notes, r.document_ref, r.workflow_state, r.rejection_reason,
	r.dept_actor_id, r.dept_decided_at, r.manager_actor_id, r.manager_decided_at, r.created_at`

func (t *txStore) InsertRequest(ctx context.Context, r leave.LeaveRequest) (leave.RequestID, error) {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO leave_requests (employee_id, type_code, subtype, relation, start_date, end_date,
			duration, notes, document_ref, workflow_state, rejection_reason,
			dept_actor_id, dept_decided_at, manager_actor_id, manager_decided_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EmployeeID, r.TypeCode, r.Subtype, r.Relation, r.StartDate.String(), r.EndDate.String(),
		r.Duration.String(), r.Notes, r.DocumentRef, string(r.State), nullString(r.RejectionReason),
		userArg(r.DeptActorID), nullTime(r.DeptDecidedAt), userArg(r.ManagerActorID), nullTime(r.ManagerDecidedAt),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return 0, generic.Unavailable("insert leave request", err)
	}
	id, err := res.LastInsertId()
	return leave.RequestID(id), generic.Unavailable("insert leave request", err)
}

func (t *txStore) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests r WHERE r.id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Unavailable("get leave request", err)
	}
	return &r, nil
}

func (t *txStore) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests r`
	var where []string
	var args []any

	if filter.DepartmentID != nil {
		query += ` JOIN employees e ON e.id = r.employee_id`
		where = append(where, `e.department_id = ?`)
		args = append(args, *filter.DepartmentID)
	}
	if filter.EmployeeID != nil {
		where = append(where, `r.employee_id = ?`)
		args = append(args, *filter.EmployeeID)
	}
	if filter.TypeCode != "" {
		where = append(where, `r.type_code = ?`)
		args = append(args, filter.TypeCode)
	}
	if len(filter.States) > 0 {
		marks := make([]string, len(filter.States))
		for i, s := range filter.States {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, `r.workflow_state IN (`+strings.Join(marks, ", ")+`)`)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY r.start_date, r.id`

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.Unavailable("list leave requests", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, generic.Unavailable("scan leave request", err)
		}
		out = append(out, r)
	}
	return out, generic.Unavailable("list leave requests", rows.Err())
}

// TransitionRequest is a compare-and-set on workflow_state.
func (t *txStore) TransitionRequest(ctx context.Context, r leave.LeaveRequest, from leave.WorkflowState) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE leave_requests SET workflow_state = ?, rejection_reason = ?,
			dept_actor_id = ?, dept_decided_at = ?, manager_actor_id = ?, manager_decided_at = ?
		WHERE id = ? AND workflow_state = ?`,
		string(r.State), nullString(r.RejectionReason),
		userArg(r.DeptActorID), nullTime(r.DeptDecidedAt), userArg(r.ManagerActorID), nullTime(r.ManagerDecidedAt),
		r.ID, string(from),
	)
	if err != nil {
		return false, generic.Unavailable("transition leave request", err)
	}
	n, err := res.RowsAffected()
	return n == 1, generic.Unavailable("transition leave request", err)
}

func scanRequest(s rowScanner) (leave.LeaveRequest, error) {
	var r leave.LeaveRequest
	var start, end, duration, state, createdAt string
	var reason, deptAt, mgrAt sql.NullString
	var deptActor, mgrActor sql.NullInt64
	err := s.Scan(
		&r.ID, &r.EmployeeID, &r.TypeCode, &r.Subtype, &r.Relation, &start, &end,
		&duration, &r.Notes, &r.DocumentRef, &state, &reason,
		&deptActor, &deptAt, &mgrActor, &mgrAt, &createdAt,
	)
	if err != nil {
		return r, err
	}

	var dec rowDecoder
	r.StartDate = dec.date(start)
	r.EndDate = dec.date(end)
	r.Duration = dec.amount(duration)
	r.State = leave.WorkflowState(state)
	r.RejectionReason = reason.String
	r.DeptActorID = userPtr(deptActor)
	r.DeptDecidedAt = dec.nullTime(deptAt)
	r.ManagerActorID = userPtr(mgrActor)
	r.ManagerDecidedAt = dec.nullTime(mgrAt)
	r.CreatedAt = dec.time(createdAt)
	return r, dec.err
}

func userPtr(v sql.NullInt64) *leave.UserID {
	if !v.Valid {
		return nil
	}
	u := leave.UserID(v.Int64)
	return &u
}
