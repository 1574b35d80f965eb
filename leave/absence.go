package leave

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// AbsenceInput records one day of absence. Duration defaults to one day.
type AbsenceInput struct {
	EmployeeID EmployeeID
	Date       string
	Type       string
	Duration   *generic.Amount
	Notes      string
	ActorID    UserID
}

// AbsenceRegister keeps at most one absence per employee per calendar day.
// Absences are informational and never touch a balance.
type AbsenceRegister struct {
	Store Store
	Log   *logrus.Entry
	Now   func() time.Time
}

// RecordAbsence fails with *generic.DuplicateAbsenceError if the day is
// already recorded for the employee.
func (r *AbsenceRegister) RecordAbsence(ctx context.Context, in AbsenceInput) (AbsenceID, error) {
	date, err := generic.ParseDate("date", in.Date)
	if err != nil {
		return 0, err
	}
	kind := strings.TrimSpace(in.Type)
	if kind == "" {
		return 0, &generic.ValidationError{Field: "type", Message: "is required"}
	}
	duration := generic.NewAmountFromInt(1, generic.UnitDays)
	if in.Duration != nil {
		duration = *in.Duration
	}
	if !duration.IsPositive() {
		return 0, &generic.ValidationError{Field: "duration", Message: "must be positive"}
	}

	a := Absence{EmployeeID: in.EmployeeID, Date: date, Type: kind, Duration: duration, Notes: in.Notes}
	err = r.Store.WithTx(ctx, func(tx Tx) error {
		if _, err := loadEmployee(ctx, tx, in.EmployeeID, false); err != nil {
			return err
		}
		existing, err := tx.FindAbsence(ctx, in.EmployeeID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return &generic.DuplicateAbsenceError{EmployeeID: int64(in.EmployeeID), Date: date}
		}

		a.CreatedAt = clock(r.Now)
		a.ID, err = tx.InsertAbsence(ctx, a)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, a.CreatedAt, generic.AuditAbsenceRecorded, TableAbsences, int64(a.ID), in.ActorID, map[string]any{
			"employee_id": a.EmployeeID,
			"date":        a.Date.String(),
			"type":        a.Type,
			"duration":    a.Duration.String(),
		})
	})
	if err != nil {
		return 0, err
	}

	logger(r.Log).WithFields(logrus.Fields{"absence_id": a.ID, "employee_id": a.EmployeeID, "date": a.Date.String()}).
		Debug("absence recorded")
	return a.ID, nil
}

// DeleteAbsence removes the record; an unknown id is NotFound.
func (r *AbsenceRegister) DeleteAbsence(ctx context.Context, id AbsenceID, actor UserID) error {
	return r.Store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetAbsence(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &generic.NotFoundError{Resource: "absence", Key: id}
		}
		if err := tx.DeleteAbsence(ctx, id); err != nil {
			return err
		}
		return writeAudit(ctx, tx, clock(r.Now), generic.AuditAbsenceDeleted, TableAbsences, int64(id), actor, map[string]any{
			"employee_id": a.EmployeeID,
			"date":        a.Date.String(),
			"type":        a.Type,
		})
	})
}

func (r *AbsenceRegister) ListAbsences(ctx context.Context, filter AbsenceFilter) ([]Absence, error) {
	var out []Absence
	err := r.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListAbsences(ctx, filter)
		return err
	})
	return out, err
}
