package leave_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmit_AnnualRequest_DurationIsInclusiveSpan(t *testing.T) {
	// GIVEN: An active employee with 30 regular days
	// WHEN: Submitting annual leave from March 10 to March 14
	// THEN: The request is pending_dept with a duration of 5 and nothing is debited

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")

	req := h.request(id)
	assert.Equal(t, leave.StatePendingDept, req.State)
	assert.Equal(t, "5", req.Duration.String())
	assert.Equal(t, "30", h.balances(emp).Regular.String())
}

func TestSubmit_FixedDurationOverridesDates(t *testing.T) {
	// GIVEN: The marriage type has a fixed duration of 14 days
	// WHEN: Submitting with only a start date
	// THEN: The duration is 14 and the end date defaults to the start date

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	id := h.mustSubmit(emp, "marriage", "2024-05-01", "")

	req := h.request(id)
	assert.Equal(t, "14", req.Duration.String())
	assert.Equal(t, "2024-05-01", req.EndDate.String())
}

func TestSubmit_HalfDay(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	t.Run("single day counts 0.5", func(t *testing.T) {
		id, err := h.svc.SubmitLeaveRequest(h.ctx, leave.SubmitInput{
			EmployeeID: emp, TypeCode: "annual", StartDate: "2024-04-02", HalfDay: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "0.5", h.request(id).Duration.String())
	})

	t.Run("rejected over a range", func(t *testing.T) {
		_, err := h.svc.SubmitLeaveRequest(h.ctx, leave.SubmitInput{
			EmployeeID: emp, TypeCode: "annual", StartDate: "2024-04-10", EndDate: "2024-04-11", HalfDay: true,
		})
		assert.ErrorIs(t, err, generic.ErrValidation)
	})

	t.Run("rejected for fixed-duration types", func(t *testing.T) {
		_, err := h.svc.SubmitLeaveRequest(h.ctx, leave.SubmitInput{
			EmployeeID: emp, TypeCode: "bereavement_d2", StartDate: "2024-04-20", HalfDay: true,
		})
		assert.ErrorIs(t, err, generic.ErrValidation)
	})
}

func TestSubmit_ValidationFailures(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	tests := []struct {
		name  string
		input leave.SubmitInput
		kind  generic.Kind
	}{
		{
			name:  "unknown type",
			input: leave.SubmitInput{EmployeeID: emp, TypeCode: "sabbatical", StartDate: "2024-04-01"},
			kind:  generic.KindNotFound,
		},
		{
			name:  "end before start",
			input: leave.SubmitInput{EmployeeID: emp, TypeCode: "annual", StartDate: "2024-04-05", EndDate: "2024-04-01"},
			kind:  generic.KindValidation,
		},
		{
			name:  "malformed date",
			input: leave.SubmitInput{EmployeeID: emp, TypeCode: "annual", StartDate: "05/04/2024"},
			kind:  generic.KindValidation,
		},
		{
			name:  "missing documentation",
			input: leave.SubmitInput{EmployeeID: emp, TypeCode: "sick", StartDate: "2024-04-01"},
			kind:  generic.KindValidation,
		},
		{
			name:  "unknown employee",
			input: leave.SubmitInput{EmployeeID: 999, TypeCode: "annual", StartDate: "2024-04-01"},
			kind:  generic.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.SubmitLeaveRequest(h.ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, generic.KindOf(err))
		})
	}
}

func TestSubmit_InactiveEmployee_NotFound(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	require.NoError(t, h.svc.SetEmployeeStatus(h.ctx, emp, leave.StatusInactive, 1))

	_, err := h.submit(emp, "annual", "2024-04-01", "2024-04-02")

	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestSubmit_OverlapWithOpenRequest_Rejected(t *testing.T) {
	// GIVEN: A pending annual request for April 1-5
	// WHEN: Submitting another request for April 4-8
	// THEN: It fails as an overlap (a validation failure)
	// AND:  Once the first is cancelled, the same dates are accepted

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	first := h.mustSubmit(emp, "annual", "2024-04-01", "2024-04-05")

	_, err := h.submit(emp, "annual", "2024-04-04", "2024-04-08")
	assert.ErrorIs(t, err, generic.ErrOverlap)
	assert.Equal(t, generic.KindValidation, generic.KindOf(err))

	require.NoError(t, h.svc.Cancel(h.ctx, first, manager))
	_, err = h.submit(emp, "annual", "2024-04-04", "2024-04-08")
	assert.NoError(t, err)
}

func TestSubmit_MaxDaysPerRequest(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	_, err := h.submit(emp, "emergency", "2024-04-01", "2024-04-04")

	var quota *generic.QuotaError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, "max_days_per_request", quota.Quota)
	assert.Equal(t, "3", quota.Limit.String())
	assert.Equal(t, "4", quota.Requested.String())
}

func TestSubmit_YearlyQuota_CountsDaysInStartYear(t *testing.T) {
	// GIVEN: Four 3-day emergency requests in 2024 (12 days, the yearly quota)
	// WHEN: Submitting one more emergency day in 2024
	// THEN: QuotaExceeded; a request starting in 2025 is still accepted

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	for _, start := range []string{"2024-02-05", "2024-04-08", "2024-06-10", "2024-08-12"} {
		d, err := generic.ParseDate("start", start)
		require.NoError(t, err)
		h.mustSubmit(emp, "emergency", start, d.AddDays(2).String())
	}

	_, err := h.submit(emp, "emergency", "2024-10-01", "")
	var quota *generic.QuotaError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, "yearly_quota", quota.Quota)
	assert.Equal(t, "12", quota.Used.String())

	_, err = h.submit(emp, "emergency", "2025-01-06", "")
	assert.NoError(t, err)
}

func TestSubmit_LifetimeQuota_IgnoresRejectedRequests(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	first := h.mustSubmit(emp, "marriage", "2024-05-01", "")
	_, err := h.submit(emp, "marriage", "2024-09-01", "")
	assert.ErrorIs(t, err, generic.ErrQuotaExceeded)

	require.NoError(t, h.svc.Decide(h.ctx, reject(deptHead(dep), first, "wrong dates")))
	_, err = h.submit(emp, "marriage", "2024-09-01", "")
	assert.NoError(t, err)
}

func TestSubmit_AutoApprove_DebitsAtSubmission(t *testing.T) {
	// GIVEN: An auto-approve type that deducts the regular balance
	// WHEN: Submitting a 2-day request
	// THEN: The request is stored approved by the system user and 2 days are debited
	// AND:  A request larger than the balance is refused and nothing is stored

	training := leave.VacationType{
		Code: "training", Label: "Training", DeductsRegularBalance: true,
		AutoApprove: true, Active: true,
	}
	h := newHarness(t, training)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 3, "2015-06-01")

	id := h.mustSubmit(emp, "training", "2024-04-01", "2024-04-02")

	req := h.request(id)
	assert.Equal(t, leave.StateApproved, req.State)
	require.NotNil(t, req.ManagerActorID)
	assert.Equal(t, leave.SystemUser, *req.ManagerActorID)
	assert.Equal(t, "1", h.balances(emp).Regular.String())

	_, err := h.submit(emp, "training", "2024-05-01", "2024-05-02")
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	reqs, err := h.svc.ListRequests(h.ctx, leave.RequestFilter{EmployeeID: &emp})
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestSubmit_InactiveType_Rejected(t *testing.T) {
	retired := leave.VacationType{Code: "study", Label: "Study", Active: false}
	h := newHarness(t, retired)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")

	_, err := h.submit(emp, "study", "2024-04-01", "")

	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// DECISIONS
// =============================================================================

func TestDecide_TwoStageApproval_DebitsOnFinalApproval(t *testing.T) {
	// GIVEN: A pending 5-day annual request
	// WHEN: The dept head approves, then the manager approves
	// THEN: The state walks pending_dept -> pending_manager -> approved
	// AND:  The balance is debited exactly once, at the final step

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")

	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))
	req := h.request(id)
	assert.Equal(t, leave.StatePendingManager, req.State)
	require.NotNil(t, req.DeptActorID)
	assert.Equal(t, leave.UserID(20), *req.DeptActorID)
	assert.NotNil(t, req.DeptDecidedAt)
	assert.Equal(t, "30", h.balances(emp).Regular.String())

	require.NoError(t, h.svc.Decide(h.ctx, approve(manager, id)))
	req = h.request(id)
	assert.Equal(t, leave.StateApproved, req.State)
	require.NotNil(t, req.ManagerActorID)
	assert.Equal(t, leave.UserID(30), *req.ManagerActorID)
	assert.Equal(t, "25", h.balances(emp).Regular.String())
}

func TestDecide_EmergencyType_DebitsEmergencyBalance(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "emergency", "2024-03-11", "2024-03-12")

	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))
	require.NoError(t, h.svc.Decide(h.ctx, approve(manager, id)))

	b := h.balances(emp)
	assert.Equal(t, "10", b.Emergency.String())
	assert.Equal(t, "30", b.Regular.String())
}

func TestDecide_NonDeductingType_LeavesBalancesAlone(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "marriage", "2024-05-01", "")

	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))
	require.NoError(t, h.svc.Decide(h.ctx, approve(manager, id)))

	b := h.balances(emp)
	assert.Equal(t, leave.StateApproved, h.request(id).State)
	assert.Equal(t, "30", b.Regular.String())
	assert.Equal(t, "12", b.Emergency.String())
}

func TestDecide_InsufficientBalance_RequestStaysPendingManager(t *testing.T) {
	// GIVEN: An employee with 2 regular days and a 5-day annual request at pending_manager
	// WHEN: The manager approves
	// THEN: InsufficientBalance with shortfall 3; state and balance are unchanged

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 2, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")
	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))

	err := h.svc.Decide(h.ctx, approve(manager, id))

	var short *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "2", short.Available.String())
	assert.Equal(t, "5", short.Requested.String())
	assert.Equal(t, "3", short.Shortfall.String())

	req := h.request(id)
	assert.Equal(t, leave.StatePendingManager, req.State)
	assert.Nil(t, req.ManagerActorID)
	assert.Equal(t, "2", h.balances(emp).Regular.String())
}

func TestDecide_DeptHeadOfAnotherDepartment_Forbidden(t *testing.T) {
	h := newHarness(t)
	finance := h.department("Finance")
	it := h.department("IT")
	emp := h.employee("100000000001", finance, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")

	err := h.svc.Decide(h.ctx, approve(deptHead(it), id))

	assert.ErrorIs(t, err, generic.ErrForbidden)
	assert.Equal(t, leave.StatePendingDept, h.request(id).State)
}

func TestDecide_ScopeCheckedBeforeState(t *testing.T) {
	// An out-of-department head gets Forbidden even when the request is
	// already past their stage.
	h := newHarness(t)
	finance := h.department("Finance")
	it := h.department("IT")
	emp := h.employee("100000000001", finance, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")
	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(finance), id)))

	err := h.svc.Decide(h.ctx, approve(deptHead(it), id))

	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestDecide_WrongStage_InvalidTransition(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")

	t.Run("manager cannot skip the department stage", func(t *testing.T) {
		err := h.svc.Decide(h.ctx, approve(manager, id))
		var trans *generic.TransitionError
		require.ErrorAs(t, err, &trans)
		assert.Equal(t, string(leave.StatePendingDept), trans.From)
	})

	t.Run("dept head cannot approve twice", func(t *testing.T) {
		require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))
		err := h.svc.Decide(h.ctx, approve(deptHead(dep), id))
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	})

	t.Run("employees never decide", func(t *testing.T) {
		actor := leave.Actor{UserID: 40, Role: leave.RoleEmployee, EmployeeID: &emp}
		err := h.svc.Decide(h.ctx, approve(actor, id))
		assert.ErrorIs(t, err, generic.ErrForbidden)
	})
}

func TestDecide_Reject(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")
	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))

	err := h.svc.Decide(h.ctx, reject(manager, id, "  "))
	assert.ErrorIs(t, err, generic.ErrValidation, "a rejection needs a reason")

	require.NoError(t, h.svc.Decide(h.ctx, reject(manager, id, "busy season")))
	req := h.request(id)
	assert.Equal(t, leave.StateRejected, req.State)
	assert.Equal(t, "busy season", req.RejectionReason)
	assert.Equal(t, "30", h.balances(emp).Regular.String())

	err = h.svc.Decide(h.ctx, approve(manager, id))
	assert.ErrorIs(t, err, generic.ErrInvalidTransition, "rejected is terminal")
}

func TestDecide_ConcurrentApprovals_DebitOnce(t *testing.T) {
	// GIVEN: A request at pending_manager
	// WHEN: Two managers approve it at the same time
	// THEN: Exactly one succeeds and the balance is debited once

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")
	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.svc.Decide(h.ctx, approve(manager, id))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, "25", h.balances(emp).Regular.String())
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	other := h.employee("100000000002", dep, 30, "2015-06-01")
	self := leave.Actor{UserID: 41, Role: leave.RoleEmployee, EmployeeID: &emp}
	stranger := leave.Actor{UserID: 42, Role: leave.RoleEmployee, EmployeeID: &other}

	t.Run("employee cancels their own open request", func(t *testing.T) {
		id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-11")
		require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))

		require.NoError(t, h.svc.Cancel(h.ctx, id, self))
		assert.Equal(t, leave.StateCancelled, h.request(id).State)
	})

	t.Run("another employee is forbidden", func(t *testing.T) {
		id := h.mustSubmit(emp, "annual", "2024-04-10", "2024-04-11")
		err := h.svc.Cancel(h.ctx, id, stranger)
		assert.ErrorIs(t, err, generic.ErrForbidden)
		assert.Equal(t, leave.StatePendingDept, h.request(id).State)
	})

	t.Run("approved requests cannot be cancelled", func(t *testing.T) {
		id := h.mustSubmit(emp, "annual", "2024-05-10", "2024-05-11")
		require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))
		require.NoError(t, h.svc.Decide(h.ctx, approve(manager, id)))

		err := h.svc.Cancel(h.ctx, id, manager)
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)
		assert.Equal(t, "28", h.balances(emp).Regular.String())
	})

	t.Run("unknown request", func(t *testing.T) {
		err := h.svc.Cancel(h.ctx, 9999, manager)
		assert.ErrorIs(t, err, generic.ErrNotFound)
	})
}

// =============================================================================
// QUEUES & AUDIT
// =============================================================================

func TestPendingFor_RoutesByStage(t *testing.T) {
	h := newHarness(t)
	finance := h.department("Finance")
	it := h.department("IT")
	a := h.employee("100000000001", finance, 30, "2015-06-01")
	b := h.employee("100000000002", it, 30, "2015-06-01")

	ra := h.mustSubmit(a, "annual", "2024-03-10", "2024-03-11")
	rb := h.mustSubmit(b, "annual", "2024-03-10", "2024-03-11")
	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(it), rb)))

	queue, err := h.svc.PendingFor(h.ctx, deptHead(finance))
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, ra, queue[0].ID)

	queue, err = h.svc.PendingFor(h.ctx, manager)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, rb, queue[0].ID)

	_, err = h.svc.PendingFor(h.ctx, leave.Actor{UserID: 5, Role: leave.RoleEmployee})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestWorkflow_WritesAuditTrail(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-14")
	require.NoError(t, h.svc.Decide(h.ctx, approve(deptHead(dep), id)))
	require.NoError(t, h.svc.Decide(h.ctx, approve(manager, id)))

	recordID := int64(id)
	entries, err := h.svc.AuditTrail(h.ctx, generic.AuditFilter{Table: leave.TableLeaveRequests, RecordID: &recordID})
	require.NoError(t, err)

	var actions []generic.AuditAction
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	// newest first
	assert.Equal(t, []generic.AuditAction{
		generic.AuditRequestApproved,
		generic.AuditRequestDeptApproved,
		generic.AuditRequestSubmitted,
	}, actions)
	assert.Equal(t, int64(30), entries[0].UserID)
	debit, ok := entries[0].Changes["debit"].(map[string]any)
	require.True(t, ok, "approval entry carries the debit")
	assert.Equal(t, "30", debit["before"])
	assert.Equal(t, "25", debit["after"])
}

func TestDuration(t *testing.T) {
	start, _ := generic.ParseDate("start", "2024-02-27")
	end, _ := generic.ParseDate("end", "2024-03-02")

	d, err := leave.Duration(leave.VacationType{Code: "annual"}, start, end, false)
	require.NoError(t, err)
	assert.Equal(t, "5", d.String(), "leap-year February is counted")

	d, err = leave.Duration(leave.VacationType{Code: "hajj", FixedDuration: intp(20)}, start, end, false)
	require.NoError(t, err)
	assert.Equal(t, "20", d.String())

	_, err = leave.Duration(leave.VacationType{Code: "annual"}, end, start, false)
	assert.True(t, errors.Is(err, generic.ErrValidation))
}
