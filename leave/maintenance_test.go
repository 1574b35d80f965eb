package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

func TestMonthlyAccrual_TenureTiers(t *testing.T) {
	asOf := generic.NewDate(2024, time.March, 1)

	tests := []struct {
		name string
		hire generic.Date
		want string
	}{
		{"new hire", generic.NewDate(2023, time.June, 1), "2.5"},
		{"one day short of 25 years", generic.NewDate(1999, time.March, 2), "2.5"},
		{"25th anniversary", generic.NewDate(1999, time.March, 1), "3.75"},
		{"over 25 years", generic.NewDate(1990, time.January, 15), "3.75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leave.MonthlyAccrual(tt.hire, asOf).String())
		})
	}
}

func TestMonthlyAccrual_AnniversaryAcrossLeapYears(t *testing.T) {
	// 2000-03-01..2025-03-01 is 9131 days, 24.9993 years at 365.25 days per
	// year. The 25th anniversary still moves the employee to the senior tier.
	asOf := generic.NewDate(2025, time.March, 1)

	assert.Equal(t, "3.75", leave.MonthlyAccrual(generic.NewDate(2000, time.March, 1), asOf).String())
	assert.Equal(t, "2.5", leave.MonthlyAccrual(generic.NewDate(2000, time.March, 2), asOf).String())
	assert.Equal(t, "2.5", leave.MonthlyAccrual(generic.NewDate(2000, time.April, 6), asOf).String())
}

func TestRunMonthlyAccrual_CreditsActiveEmployeesOnce(t *testing.T) {
	// GIVEN: A junior employee, a senior employee and an inactive employee
	// WHEN: Running the March accrual twice
	// THEN: The first run credits 2.5 and 3.75; the second is a no-op

	h := newHarness(t)
	dep := h.department("Finance")
	junior := h.employee("100000000001", dep, 30, "2015-06-01")
	senior := h.employee("100000000002", dep, 30, "1995-06-01")
	gone := h.employee("100000000003", dep, 30, "2000-06-01")
	require.NoError(t, h.svc.SetEmployeeStatus(h.ctx, gone, leave.StatusInactive, 1))

	asOf := generic.NewDate(2024, time.March, 15)
	res, err := h.svc.RunMonthlyAccrual(h.ctx, asOf)
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, 2, res.Credited)
	assert.Equal(t, "6.25", res.Total.String())

	assert.Equal(t, "32.5", h.balances(junior).Regular.String())
	assert.Equal(t, "33.75", h.balances(senior).Regular.String())

	again, err := h.svc.RunMonthlyAccrual(h.ctx, generic.NewDate(2024, time.March, 31))
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, "32.5", h.balances(junior).Regular.String())

	emp, err := h.svc.GetEmployee(h.ctx, gone)
	require.NoError(t, err)
	assert.Equal(t, "30", emp.RegularBalance.String())
}

func TestRunMonthlyAccrual_NextMonthRunsAgain(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 0, "2015-06-01")

	_, err := h.svc.RunMonthlyAccrual(h.ctx, generic.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	_, err = h.svc.RunMonthlyAccrual(h.ctx, generic.NewDate(2024, time.April, 1))
	require.NoError(t, err)

	assert.Equal(t, "5", h.balances(emp).Regular.String())
}

func TestRunMonthlyAccrual_SkipsUnusableHireDates(t *testing.T) {
	// GIVEN: An imported employee with a garbage hire date and one hired in the future
	// WHEN: Running the accrual
	// THEN: Both are skipped, the run still completes for everyone else

	h := newHarness(t)
	dep := h.department("Finance")
	ok := h.employee("100000000001", dep, 0, "2015-06-01")
	future := h.employee("100000000002", dep, 0, "2024-12-01")

	res, err := h.svc.ImportEmployees(h.ctx, []leave.EmployeeRecord{
		{Row: 2, Name: "Legacy", NationalID: "100000000003", HireDate: "sometime in 1999"},
	}, leave.ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	acc, err := h.svc.RunMonthlyAccrual(h.ctx, generic.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, acc.Credited)
	assert.Len(t, acc.Skipped, 2)
	assert.Contains(t, acc.Skipped, future)
	assert.Equal(t, "2.5", h.balances(ok).Regular.String())
	assert.True(t, h.balances(future).Regular.IsZero())
}

// failingMarkStore hands out transactions whose accrual mark always fails.
type failingMarkStore struct {
	leave.Store
}

type failingMarkTx struct {
	leave.Tx
}

func (s failingMarkStore) WithTx(ctx context.Context, fn func(tx leave.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx leave.Tx) error {
		return fn(failingMarkTx{Tx: tx})
	})
}

func (failingMarkTx) MarkAccrualProcessed(context.Context, int, time.Month, time.Time) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestRunMonthlyAccrual_FailureLeavesNoPartialRun(t *testing.T) {
	// GIVEN: Two employees and a store whose accrual_log insert fails
	// WHEN: Running the accrual
	// THEN: The error surfaces, no balance moved and the month is still open

	h := newHarness(t)
	dep := h.department("Finance")
	a := h.employee("100000000001", dep, 10, "2015-06-01")
	b := h.employee("100000000002", dep, 10, "1995-06-01")

	broken := &leave.AccrualService{
		Store:  failingMarkStore{Store: h.store},
		Ledger: &leave.Ledger{Store: h.store, Now: func() time.Time { return testNow }},
		Now:    func() time.Time { return testNow },
	}
	asOf := generic.NewDate(2024, time.March, 1)

	_, err := broken.RunMonthlyAccrual(h.ctx, asOf)
	require.EqualError(t, err, "disk I/O error")

	assert.Equal(t, "10", h.balances(a).Regular.String())
	assert.Equal(t, "10", h.balances(b).Regular.String())

	res, err := h.svc.RunMonthlyAccrual(h.ctx, asOf)
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, "12.5", h.balances(a).Regular.String())
}

func TestRunMonthlyAccrual_RequiresDate(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RunMonthlyAccrual(h.ctx, generic.Date{})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// EMERGENCY RESET
// =============================================================================

func TestRunEmergencyReset_OncePerYear(t *testing.T) {
	// GIVEN: An employee who used 2 emergency days
	// WHEN: Running the 2025 reset twice, then the 2026 reset
	// THEN: The balance returns to 12 once per year, not on the repeat

	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	require.NoError(t, h.svc.Debit(h.ctx, emp, leave.BalanceEmergency, days(2), 1))

	res, err := h.svc.RunEmergencyReset(h.ctx, generic.NewDate(2025, time.January, 1))
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, int64(1), res.Reset)
	assert.Equal(t, "12", h.balances(emp).Emergency.String())

	require.NoError(t, h.svc.Debit(h.ctx, emp, leave.BalanceEmergency, days(5), 1))
	again, err := h.svc.RunEmergencyReset(h.ctx, generic.NewDate(2025, time.June, 30))
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, "7", h.balances(emp).Emergency.String())

	done, err := h.svc.EmergencyResetDone(h.ctx, 2025)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = h.svc.RunEmergencyReset(h.ctx, generic.NewDate(2026, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, "12", h.balances(emp).Emergency.String())
}

func TestRunEmergencyReset_LeavesRegularBalanceAlone(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 17.5, "2015-06-01")

	_, err := h.svc.RunEmergencyReset(h.ctx, generic.NewDate(2024, time.January, 1))
	require.NoError(t, err)

	assert.Equal(t, "17.5", h.balances(emp).Regular.String())
}

func TestRunEmergencyReset_WritesRunAudit(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RunEmergencyReset(h.ctx, generic.NewDate(2024, time.January, 1))
	require.NoError(t, err)

	entries, err := h.svc.AuditTrail(h.ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditEmergencyReset}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2024), entries[0].RecordID)
	assert.Equal(t, int64(0), entries[0].UserID)
}
