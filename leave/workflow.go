/*
workflow.go - Leave Request Workflow Engine

PURPOSE:
  Drives a leave request through the two-stage approval sequence and is the
  only code that debits a balance for leave.

STATE MACHINE:

    submit ──► pending_dept ──dept approve──► pending_manager ──mgr approve──► approved
                    │                              │
                    ├──dept reject──► rejected ◄───┤ mgr reject
                    │                              │
                    └──cancel──► cancelled ◄───────┘ cancel

  approved, rejected and cancelled are terminal. An auto-approve type is
  debited at submission and stored directly as approved.

STAGE ELIGIBILITY:
  dept_head  acts on pending_dept, only for employees of their own department
  manager    acts on pending_manager, any department
  employee   never decides; may cancel their own open request
  Scope is checked before state, so an out-of-scope actor always gets
  Forbidden regardless of where the request is.

BALANCE RULES:
  Nothing is debited at submission. Manager approval debits the balance the
  type names (regular or emergency) inside the same transaction as the state
  change; InsufficientBalance aborts both. Rejection and cancellation of an
  open request have no balance effect since nothing was debited.

SUBMISSION CHECKS (in order):
  1. type exists and is active
  2. dates parse, end >= start, half day only on single-day non-fixed types
  3. documentation reference present if the type requires it
  4. max_days_per_request
  5. employee exists and is active
  6. yearly_quota (days in the start date's year) and lifetime_quota (count)
  7. overlap with the employee's open requests, unless the type allows it

SEE ALSO:
  - request.go: states and the transition table
  - ledger.go:  DebitTx
*/
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

var halfDay = decimal.RequireFromString("0.5")

type Workflow struct {
	Store    Store
	Registry *Registry
	Ledger   *Ledger
	Log      *logrus.Entry
	Now      func() time.Time
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates and stores a new request in pending_dept, or approved for
// auto-approve types.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (RequestID, error) {
	policy, err := w.Registry.GetPolicy(in.TypeCode)
	if err != nil {
		return 0, err
	}
	if !policy.Active {
		return 0, &generic.ValidationError{Field: "type_code", Message: fmt.Sprintf("vacation type %q is not active", policy.Code)}
	}

	start, end, err := requestDates(in.StartDate, in.EndDate)
	if err != nil {
		return 0, err
	}
	duration, err := Duration(policy, start, end, in.HalfDay)
	if err != nil {
		return 0, err
	}
	if policy.RequiresDocumentation && strings.TrimSpace(in.DocumentRef) == "" {
		return 0, &generic.ValidationError{Field: "document_ref", Message: fmt.Sprintf("%s requires supporting documentation", policy.Code)}
	}
	if policy.MaxDaysPerRequest != nil {
		limit := generic.NewAmountFromInt(*policy.MaxDaysPerRequest, generic.UnitDays)
		if duration.GreaterThan(limit) {
			return 0, &generic.QuotaError{
				Quota: "max_days_per_request", TypeCode: policy.Code,
				Limit: limit, Used: generic.ZeroDays(), Requested: duration,
			}
		}
	}

	req := LeaveRequest{
		EmployeeID:  in.EmployeeID,
		TypeCode:    policy.Code,
		Subtype:     strings.TrimSpace(in.Subtype),
		Relation:    strings.TrimSpace(in.Relation),
		StartDate:   start,
		EndDate:     end,
		Duration:    duration,
		Notes:       in.Notes,
		DocumentRef: strings.TrimSpace(in.DocumentRef),
		State:       StatePendingDept,
	}

	err = w.Store.WithTx(ctx, func(tx Tx) error {
		if _, err := loadEmployee(ctx, tx, in.EmployeeID, true); err != nil {
			return err
		}
		existing, err := tx.ListRequests(ctx, RequestFilter{EmployeeID: &req.EmployeeID})
		if err != nil {
			return err
		}
		if err := checkQuotas(policy, existing, req); err != nil {
			return err
		}
		if !policy.AllowsOverlap {
			if err := checkOverlap(existing, req); err != nil {
				return err
			}
		}

		now := clock(w.Now)
		req.CreatedAt = now

		var debit map[string]any
		if policy.AutoApprove {
			if kind, ok := policy.BalanceKind(); ok {
				before, after, err := w.Ledger.DebitTx(ctx, tx, req.EmployeeID, kind, req.Duration, now)
				if err != nil {
					return err
				}
				debit = balanceChange(kind, req.Duration, before, after)
			}
			req.State = StateApproved
			req.ManagerActorID = userPtr(SystemUser)
			req.ManagerDecidedAt = timePtr(now)
		}

		req.ID, err = tx.InsertRequest(ctx, req)
		if err != nil {
			return err
		}

		if err := writeAudit(ctx, tx, now, generic.AuditRequestSubmitted, TableLeaveRequests, int64(req.ID), in.ActorID, map[string]any{
			"employee_id": req.EmployeeID,
			"type_code":   req.TypeCode,
			"start_date":  req.StartDate.String(),
			"end_date":    req.EndDate.String(),
			"duration":    req.Duration.String(),
			"after":       string(StatePendingDept),
		}); err != nil {
			return err
		}
		if req.State == StateApproved {
			changes := map[string]any{"before": string(StatePendingDept), "after": string(StateApproved), "auto_approved": true}
			if debit != nil {
				changes["debit"] = debit
			}
			return writeAudit(ctx, tx, now, generic.AuditRequestApproved, TableLeaveRequests, int64(req.ID), SystemUser, changes)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger(w.Log).WithFields(logrus.Fields{
		"request_id":  req.ID,
		"employee_id": req.EmployeeID,
		"type_code":   req.TypeCode,
		"duration":    req.Duration.String(),
		"state":       req.State,
	}).Info("leave request submitted")
	return req.ID, nil
}

func requestDates(rawStart, rawEnd string) (generic.Date, generic.Date, error) {
	start, err := generic.ParseDate("start_date", rawStart)
	if err != nil {
		return generic.Date{}, generic.Date{}, err
	}
	if strings.TrimSpace(rawEnd) == "" {
		return start, start, nil
	}
	end, err := generic.ParseDate("end_date", rawEnd)
	if err != nil {
		return generic.Date{}, generic.Date{}, err
	}
	if end.Before(start) {
		return generic.Date{}, generic.Date{}, &generic.ValidationError{Field: "end_date", Message: "must not be before start_date"}
	}
	return start, end, nil
}

// Duration is the number of days a request consumes: the type's fixed
// duration if it has one, 0.5 for a half day, otherwise the inclusive span.
func Duration(policy VacationType, start, end generic.Date, half bool) (generic.Amount, error) {
	if end.Before(start) {
		return generic.Amount{}, &generic.ValidationError{Field: "end_date", Message: "must not be before start_date"}
	}
	if policy.FixedDuration != nil {
		if half {
			return generic.Amount{}, &generic.ValidationError{Field: "half_day", Message: fmt.Sprintf("%s has a fixed duration", policy.Code)}
		}
		return generic.NewAmountFromInt(*policy.FixedDuration, generic.UnitDays), nil
	}
	if half {
		if !start.Equal(end) {
			return generic.Amount{}, &generic.ValidationError{Field: "half_day", Message: "only allowed for single-day requests"}
		}
		return generic.Amount{Value: halfDay, Unit: generic.UnitDays}, nil
	}
	return generic.NewAmountFromInt(generic.InclusiveDays(start, end), generic.UnitDays), nil
}

func checkQuotas(policy VacationType, existing []LeaveRequest, req LeaveRequest) error {
	if policy.YearlyQuota == nil && policy.LifetimeQuota == nil {
		return nil
	}

	yearStart := generic.StartOfYear(req.StartDate.Year())
	yearEnd := generic.EndOfYear(req.StartDate.Year())

	usedDays := generic.ZeroDays()
	usedCount := 0
	for _, r := range existing {
		if r.TypeCode != req.TypeCode || !r.counts() {
			continue
		}
		usedCount++
		if r.StartDate.AfterOrEqual(yearStart) && r.StartDate.BeforeOrEqual(yearEnd) {
			usedDays = usedDays.Add(r.Duration)
		}
	}

	if policy.YearlyQuota != nil {
		limit := generic.NewAmountFromInt(*policy.YearlyQuota, generic.UnitDays)
		if usedDays.Add(req.Duration).GreaterThan(limit) {
			return &generic.QuotaError{
				Quota: "yearly_quota", TypeCode: req.TypeCode,
				Limit: limit, Used: usedDays, Requested: req.Duration,
			}
		}
	}
	if policy.LifetimeQuota != nil && usedCount+1 > *policy.LifetimeQuota {
		return &generic.QuotaError{
			Quota: "lifetime_quota", TypeCode: req.TypeCode,
			Limit:     generic.NewAmountFromInt(*policy.LifetimeQuota, generic.UnitDays),
			Used:      generic.NewAmountFromInt(usedCount, generic.UnitDays),
			Requested: generic.NewAmountFromInt(1, generic.UnitDays),
		}
	}
	return nil
}

// checkOverlap rejects req if it shares a day with an open request.
func checkOverlap(existing []LeaveRequest, req LeaveRequest) error {
	for _, r := range existing {
		if r.State.IsTerminal() {
			continue
		}
		if generic.Overlaps(r.StartDate, r.EndDate, req.StartDate, req.EndDate) {
			return fmt.Errorf("%w: request %d covers %s to %s", generic.ErrOverlap, r.ID, r.StartDate, r.EndDate)
		}
	}
	return nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide applies an approve or reject decision at the stage the actor's role
// owns.
func (w *Workflow) Decide(ctx context.Context, in DecideInput) error {
	if in.Decision != DecisionApprove && in.Decision != DecisionReject {
		return &generic.ValidationError{Field: "decision", Message: "must be approve or reject"}
	}
	reason := strings.TrimSpace(in.Reason)
	if in.Decision == DecisionReject && reason == "" {
		return &generic.ValidationError{Field: "reason", Message: "is required when rejecting"}
	}

	var from, to WorkflowState
	err := w.Store.WithTx(ctx, func(tx Tx) error {
		req, err := loadRequest(ctx, tx, in.RequestID)
		if err != nil {
			return err
		}

		switch in.Actor.Role {
		case RoleDeptHead:
			emp, err := loadEmployee(ctx, tx, req.EmployeeID, false)
			if err != nil {
				return err
			}
			if !emp.InDepartment(in.Actor.DepartmentID) {
				return &generic.ForbiddenError{Role: string(in.Actor.Role), Reason: "employee is not in the actor's department"}
			}
			from, to = StatePendingDept, StatePendingManager
		case RoleManager:
			from, to = StatePendingManager, StateApproved
		default:
			return &generic.ForbiddenError{Role: string(in.Actor.Role), Reason: "only department heads and managers decide leave requests"}
		}
		if in.Decision == DecisionReject {
			to = StateRejected
		}
		if req.State != from {
			return &generic.TransitionError{RequestID: int64(req.ID), From: string(req.State), To: string(to)}
		}
		if err := req.transition(to); err != nil {
			return err
		}

		now := clock(w.Now)
		changes := map[string]any{"before": string(from), "after": string(to)}

		if from == StatePendingDept {
			req.DeptActorID, req.DeptDecidedAt = userPtr(in.Actor.UserID), timePtr(now)
		} else {
			req.ManagerActorID, req.ManagerDecidedAt = userPtr(in.Actor.UserID), timePtr(now)
		}
		if to == StateRejected {
			req.RejectionReason = reason
			changes["reason"] = reason
		}

		if to == StateApproved {
			policy, err := w.Registry.GetPolicy(req.TypeCode)
			if err != nil {
				return err
			}
			if kind, ok := policy.BalanceKind(); ok {
				before, after, err := w.Ledger.DebitTx(ctx, tx, req.EmployeeID, kind, req.Duration, now)
				if err != nil {
					return err
				}
				changes["debit"] = balanceChange(kind, req.Duration, before, after)
			}
		}

		ok, err := tx.TransitionRequest(ctx, *req, from)
		if err != nil {
			return err
		}
		if !ok {
			return &generic.TransitionError{RequestID: int64(req.ID), From: string(from), To: string(to)}
		}
		return writeAudit(ctx, tx, now, decisionAction(from, to), TableLeaveRequests, int64(req.ID), in.Actor.UserID, changes)
	})
	if err != nil {
		return err
	}

	logger(w.Log).WithFields(logrus.Fields{
		"request_id": in.RequestID,
		"actor_id":   in.Actor.UserID,
		"role":       in.Actor.Role,
		"from":       from,
		"to":         to,
	}).Info("leave request decided")
	return nil
}

func decisionAction(from, to WorkflowState) generic.AuditAction {
	switch {
	case from == StatePendingDept && to == StatePendingManager:
		return generic.AuditRequestDeptApproved
	case from == StatePendingDept:
		return generic.AuditRequestDeptRejected
	case to == StateApproved:
		return generic.AuditRequestApproved
	default:
		return generic.AuditRequestRejected
	}
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws an open request. Managers may cancel any request; anyone
// else only requests of the employee they are linked to.
func (w *Workflow) Cancel(ctx context.Context, id RequestID, actor Actor) error {
	var from WorkflowState
	err := w.Store.WithTx(ctx, func(tx Tx) error {
		req, err := loadRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if actor.Role != RoleManager && !actor.IsEmployee(req.EmployeeID) {
			return &generic.ForbiddenError{Role: string(actor.Role), Reason: "only the requesting employee or a manager may cancel"}
		}

		from = req.State
		if err := req.transition(StateCancelled); err != nil {
			return err
		}
		ok, err := tx.TransitionRequest(ctx, *req, from)
		if err != nil {
			return err
		}
		if !ok {
			return &generic.TransitionError{RequestID: int64(req.ID), From: string(from), To: string(StateCancelled)}
		}
		return writeAudit(ctx, tx, clock(w.Now), generic.AuditRequestCancelled, TableLeaveRequests, int64(req.ID), actor.UserID,
			map[string]any{"before": string(from), "after": string(StateCancelled)})
	})
	if err != nil {
		return err
	}

	logger(w.Log).WithFields(logrus.Fields{"request_id": id, "actor_id": actor.UserID, "from": from}).
		Info("leave request cancelled")
	return nil
}
