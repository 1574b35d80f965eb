package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES & DEPARTMENTS
// =============================================================================

func TestCreateEmployee_Defaults(t *testing.T) {
	// GIVEN: No balances in the input
	// WHEN: Creating an employee with a department name
	// THEN: Regular is 30, emergency 12, the initial snapshot is 30 and the department exists

	h := newHarness(t)
	id, err := h.svc.CreateEmployee(h.ctx, leave.EmployeeInput{
		Name: " Huda ", NationalID: "119876543210", Department: "Legal", HireDate: "2020-01-15", ActorID: 1,
	})
	require.NoError(t, err)

	emp, err := h.svc.GetEmployee(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Huda", emp.Name)
	assert.Equal(t, leave.StatusActive, emp.Status)
	assert.Equal(t, "30", emp.RegularBalance.String())
	assert.Equal(t, "12", emp.EmergencyBalance.String())
	require.NotNil(t, emp.InitialRegularBalance)
	assert.Equal(t, "30", emp.InitialRegularBalance.String())

	deps, err := h.svc.ListDepartments(h.ctx)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "Legal", deps[0].Name)
	require.NotNil(t, emp.DepartmentID)
	assert.Equal(t, deps[0].ID, *emp.DepartmentID)
}

func TestCreateEmployee_Validation(t *testing.T) {
	h := newHarness(t)
	h.employee("100000000001", h.department("Finance"), 30, "2015-06-01")
	missing := leave.DepartmentID(99)

	tests := []struct {
		name  string
		input leave.EmployeeInput
		kind  generic.Kind
	}{
		{"missing name", leave.EmployeeInput{NationalID: "100000000002"}, generic.KindValidation},
		{"short national id", leave.EmployeeInput{Name: "A", NationalID: "12345"}, generic.KindValidation},
		{"duplicate national id", leave.EmployeeInput{Name: "A", NationalID: "100000000001"}, generic.KindValidation},
		{"bad hire date", leave.EmployeeInput{Name: "A", NationalID: "100000000003", HireDate: "15/01/2020"}, generic.KindValidation},
		{"unknown department", leave.EmployeeInput{Name: "A", NationalID: "100000000004", DepartmentID: &missing}, generic.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateEmployee(h.ctx, tt.input)
			assert.Equal(t, tt.kind, generic.KindOf(err))
		})
	}
}

func TestUpdateEmployee_DoesNotTouchBalances(t *testing.T) {
	h := newHarness(t)
	finance := h.department("Finance")
	it := h.department("IT")
	emp := h.employee("100000000001", finance, 30, "2015-06-01")
	name, grade := "Renamed", "B2"

	require.NoError(t, h.svc.UpdateEmployee(h.ctx, emp, leave.EmployeeUpdate{Name: &name, JobGrade: &grade, DepartmentID: &it}, 1))

	got, err := h.svc.GetEmployee(h.ctx, emp)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "B2", got.JobGrade)
	assert.Equal(t, it, *got.DepartmentID)
	assert.Equal(t, "30", got.RegularBalance.String())
}

func TestSetEmployeeStatus_KeepsHistory(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")
	emp := h.employee("100000000001", dep, 30, "2015-06-01")
	id := h.mustSubmit(emp, "annual", "2024-03-10", "2024-03-11")

	require.NoError(t, h.svc.SetEmployeeStatus(h.ctx, emp, leave.StatusInactive, 1))

	got, err := h.svc.GetEmployee(h.ctx, emp)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusInactive, got.Status)
	assert.Equal(t, leave.StatePendingDept, h.request(id).State)

	assert.ErrorIs(t, h.svc.SetEmployeeStatus(h.ctx, emp, "retired", 1), generic.ErrValidation)
}

func TestDepartments(t *testing.T) {
	h := newHarness(t)
	dep := h.department("Finance")

	_, err := h.svc.CreateDepartment(h.ctx, "Finance", 1)
	assert.ErrorIs(t, err, generic.ErrValidation)

	same, err := h.svc.EnsureDepartment(h.ctx, "Finance", 1)
	require.NoError(t, err)
	assert.Equal(t, dep, same.ID)

	head := leave.UserID(20)
	require.NoError(t, h.svc.SetDepartmentHead(h.ctx, dep, &head, 1))
	deps, err := h.svc.ListDepartments(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, deps[0].HeadUserID)
	assert.Equal(t, head, *deps[0].HeadUserID)

	assert.ErrorIs(t, h.svc.SetDepartmentHead(h.ctx, 99, &head, 1), generic.ErrNotFound)
}

// =============================================================================
// BULK IMPORT
// =============================================================================

func TestImportEmployees_InsertsUpdatesAndReportsRows(t *testing.T) {
	// GIVEN: One existing employee and a sheet with a new row, an update and two bad rows
	// WHEN: Importing with department creation enabled
	// THEN: Good rows are applied, bad rows are reported by sheet row

	h := newHarness(t)
	existing := h.employee("100000000001", h.department("Finance"), 30, "2015-06-01")
	bal := days(21)

	res, err := h.svc.ImportEmployees(h.ctx, []leave.EmployeeRecord{
		{Row: 2, Name: "New Hire", NationalID: "100000000009", Department: "Audit", HireDate: "2023-02-01", VacationBalance: &bal},
		{Row: 3, Name: "Updated Name", NationalID: "100000000001", JobGrade: "A1"},
		{Row: 4, Name: "", NationalID: "100000000010"},
		{Row: 5, Name: "Short ID", NationalID: "123"},
	}, leave.ImportOptions{CreateDepartments: true, ActorID: 1, RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 4, res.Errors[0].Row)
	assert.Equal(t, 5, res.Errors[1].Row)

	updated, err := h.svc.GetEmployee(h.ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, "Updated Name", updated.Name)
	assert.Equal(t, "A1", updated.JobGrade)

	all, err := h.svc.ListEmployees(h.ctx, leave.EmployeeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "21", all[1].RegularBalance.String())
	assert.Equal(t, "21", all[1].InitialRegularBalance.String())
}

func TestImportEmployees_UnknownDepartmentWithoutCreate(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ImportEmployees(h.ctx, []leave.EmployeeRecord{
		{Row: 2, Name: "A", NationalID: "100000000009", Department: "Nowhere"},
	}, leave.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "Nowhere")
}

func TestImportEmployees_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ImportEmployees(h.ctx, []leave.EmployeeRecord{
		{Row: 2, Name: "A", NationalID: "100000000009", Department: "Audit"},
	}, leave.ImportOptions{DryRun: true, CreateDepartments: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Inserted)

	all, err := h.svc.ListEmployees(h.ctx, leave.EmployeeFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	deps, err := h.svc.ListDepartments(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

// =============================================================================
// POLICY REGISTRY
// =============================================================================

func TestRegistry_SeededCatalog(t *testing.T) {
	h := newHarness(t)

	types := h.svc.ListPolicies()
	assert.Len(t, types, len(factory.DefaultCatalog()))

	emergency, err := h.svc.GetPolicy("emergency")
	require.NoError(t, err)
	assert.True(t, emergency.UsesEmergencyBalance)
	require.NotNil(t, emergency.MaxDaysPerRequest)
	assert.Equal(t, 3, *emergency.MaxDaysPerRequest)
	require.NotNil(t, emergency.YearlyQuota)
	assert.Equal(t, 12, *emergency.YearlyQuota)

	_, err = h.svc.GetPolicy("nope")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRegistry_SeedLeavesExistingCatalogAlone(t *testing.T) {
	h := newHarness(t)
	registry := leave.NewRegistry()

	n, err := registry.Seed(h.ctx, h.store, []leave.VacationType{{Code: "other", Label: "Other", Active: true}}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = registry.GetPolicy("other")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = registry.GetPolicy("annual")
	assert.NoError(t, err)
}
