package leave

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// clock returns now() from an optional override.
func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

func logger(l *logrus.Entry) *logrus.Entry {
	if l != nil {
		return l
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// loadEmployee returns the employee or a NotFoundError. With activeOnly an
// inactive employee is reported as not found.
func loadEmployee(ctx context.Context, tx Tx, id EmployeeID, activeOnly bool) (*Employee, error) {
	emp, err := tx.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp == nil || (activeOnly && !emp.IsActive()) {
		return nil, &generic.NotFoundError{Resource: "employee", Key: id}
	}
	return emp, nil
}

func loadRequest(ctx context.Context, tx Tx, id RequestID) (*LeaveRequest, error) {
	req, err := tx.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &generic.NotFoundError{Resource: "leave_request", Key: id}
	}
	return req, nil
}

// writeAudit appends one audit row inside tx.
func writeAudit(ctx context.Context, tx Tx, at time.Time, action generic.AuditAction, table string, recordID int64, user UserID, changes map[string]any) error {
	_, err := tx.AppendAudit(ctx, generic.AuditEntry{
		Action:    action,
		Table:     table,
		RecordID:  recordID,
		Changes:   changes,
		UserID:    int64(user),
		CreatedAt: at,
	})
	return err
}

func userPtr(u UserID) *UserID { return &u }

func timePtr(t time.Time) *time.Time { return &t }
