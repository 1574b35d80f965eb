package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *sqlite.Store
	svc   *leave.Service
}

func newHarness(t *testing.T, extra ...leave.VacationType) *harness {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	registry := leave.NewRegistry()
	_, err = registry.Seed(ctx, store, append(factory.DefaultCatalog(), extra...), testNow)
	require.NoError(t, err)

	svc := leave.NewService(store, registry, leave.Options{
		Clock: func() time.Time { return testNow },
	})
	return &harness{t: t, ctx: ctx, store: store, svc: svc}
}

func (h *harness) department(name string) leave.DepartmentID {
	h.t.Helper()
	id, err := h.svc.CreateDepartment(h.ctx, name, 1)
	require.NoError(h.t, err)
	return id
}

// employee creates an active employee in dep with the given regular balance.
func (h *harness) employee(nationalID string, dep leave.DepartmentID, regular float64, hireDate string) leave.EmployeeID {
	h.t.Helper()
	bal := generic.Days(regular)
	id, err := h.svc.CreateEmployee(h.ctx, leave.EmployeeInput{
		Name:           "Employee " + nationalID,
		NationalID:     nationalID,
		DepartmentID:   &dep,
		HireDate:       hireDate,
		RegularBalance: &bal,
		ActorID:        1,
	})
	require.NoError(h.t, err)
	return id
}

func (h *harness) submit(emp leave.EmployeeID, code, start, end string) (leave.RequestID, error) {
	return h.svc.SubmitLeaveRequest(h.ctx, leave.SubmitInput{
		EmployeeID:  emp,
		TypeCode:    code,
		StartDate:   start,
		EndDate:     end,
		DocumentRef: "doc-1",
		ActorID:     10,
	})
}

func (h *harness) mustSubmit(emp leave.EmployeeID, code, start, end string) leave.RequestID {
	h.t.Helper()
	id, err := h.submit(emp, code, start, end)
	require.NoError(h.t, err)
	return id
}

func (h *harness) request(id leave.RequestID) *leave.LeaveRequest {
	h.t.Helper()
	req, err := h.svc.GetRequest(h.ctx, id)
	require.NoError(h.t, err)
	return req
}

func (h *harness) balances(id leave.EmployeeID) leave.Balances {
	h.t.Helper()
	b, err := h.svc.GetBalances(h.ctx, id)
	require.NoError(h.t, err)
	return b
}

func deptHead(dep leave.DepartmentID) leave.Actor {
	return leave.Actor{UserID: 20, Role: leave.RoleDeptHead, DepartmentID: &dep}
}

var manager = leave.Actor{UserID: 30, Role: leave.RoleManager}

func approve(actor leave.Actor, id leave.RequestID) leave.DecideInput {
	return leave.DecideInput{RequestID: id, Actor: actor, Decision: leave.DecisionApprove}
}

func reject(actor leave.Actor, id leave.RequestID, reason string) leave.DecideInput {
	return leave.DecideInput{RequestID: id, Actor: actor, Decision: leave.DecisionReject, Reason: reason}
}

func days(v float64) generic.Amount { return generic.Days(v) }

func intp(v int) *int { return &v }
