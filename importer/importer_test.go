package importer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeService struct {
	rows        []leave.EmployeeRecord
	opts        leave.ImportOptions
	employees   []leave.Employee
	departments []leave.Department
}

func (f *fakeService) ImportEmployees(_ context.Context, rows []leave.EmployeeRecord, opts leave.ImportOptions) (leave.ImportResult, error) {
	f.rows, f.opts = rows, opts
	return leave.ImportResult{RunID: opts.RunID, DryRun: opts.DryRun, Total: len(rows), Inserted: len(rows), Errors: []leave.RowError{}}, nil
}

func (f *fakeService) ListEmployees(context.Context, leave.EmployeeFilter) ([]leave.Employee, error) {
	return f.employees, nil
}

func (f *fakeService) ListDepartments(context.Context) ([]leave.Department, error) {
	return f.departments, nil
}

// workbook builds an xlsx in memory; nil rows are left empty.
func workbook(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		if row == nil {
			continue
		}
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", axis, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

// =============================================================================
// IMPORT
// =============================================================================

func TestImport_ArabicHeaders(t *testing.T) {
	// GIVEN: The HR workbook with Arabic headers, a blank row and a bad balance
	// WHEN: Importing
	// THEN: Values are normalized, the bad row is reported by sheet row

	svc := &fakeService{}
	im := New(svc, nil, 0)
	file := workbook(t,
		[]any{"الاسم", "الرقم الوطني", "القسم", "تاريخ التعيين", "رصيد الإجازات", "ملاحظات"},
		[]any{" هدى ", "1198 7654 3210", "المالية", "3/1/2024", 21.5, "x"},
		nil,
		[]any{"Ali", 119876543211, "IT", "01-02-2010", "lots"},
		[]any{"Sara", "119876543212", "", "2015-6-1 08:00"},
	)

	res, err := im.Import(context.Background(), file, Options{CreateDepartments: true, ActorID: 9})
	require.NoError(t, err)

	require.Len(t, svc.rows, 2)
	first := svc.rows[0]
	assert.Equal(t, 2, first.Row)
	assert.Equal(t, "هدى", first.Name)
	assert.Equal(t, "119876543210", first.NationalID)
	assert.Equal(t, "المالية", first.Department)
	assert.Equal(t, "2024-03-01", first.HireDate)
	require.NotNil(t, first.VacationBalance)
	assert.Equal(t, "21.5", first.VacationBalance.String())

	assert.Equal(t, 5, svc.rows[1].Row)
	assert.Equal(t, "2015-06-01", svc.rows[1].HireDate)
	assert.Nil(t, svc.rows[1].VacationBalance)

	assert.True(t, svc.opts.CreateDepartments)
	assert.Equal(t, leave.UserID(9), svc.opts.ActorID)
	assert.NotEmpty(t, svc.opts.RunID)

	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Row)
	assert.Equal(t, "119876543211", res.Errors[0].NationalID)
}

func TestImport_MissingColumns(t *testing.T) {
	im := New(&fakeService{}, nil, 0)
	file := workbook(t, []any{"Name", "Department"}, []any{"A", "IT"})

	_, err := im.Import(context.Background(), file, Options{})
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, ColNationalID)
}

func TestImport_RowLimit(t *testing.T) {
	svc := &fakeService{}
	im := New(svc, nil, 2)
	file := workbook(t,
		[]any{"name", "national_id"},
		[]any{"A", "100000000001"},
		[]any{"B", "100000000002"},
		[]any{"C", "100000000003"},
	)

	_, err := im.Import(context.Background(), file, Options{})
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Nil(t, svc.rows, "nothing reaches the service")
}

func TestImport_NotAWorkbook(t *testing.T) {
	im := New(&fakeService{}, nil, 0)
	_, err := im.Import(context.Background(), strings.NewReader("name,national_id\n"), Options{})
	assert.Equal(t, generic.KindValidation, generic.KindOf(err))
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"2024-03-01":       "2024-03-01",
		"2024-3-1":         "2024-03-01",
		"2024-03-01 10:00": "2024-03-01",
		"3/1/2024":         "2024-03-01",
		"12/31/1999":       "1999-12-31",
		"01-03-2024":       "2024-03-01",
		"45352":            "2024-03-01",
		" sometime ":       "sometime",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeDate(in), "input %q", in)
	}
}

func TestMapHeaders(t *testing.T) {
	cols := mapHeaders([]string{"National ID", "Name", "hire_date", "name", "Unknown"})
	assert.Equal(t, map[string]int{ColNationalID: 0, ColName: 1, ColHireDate: 2}, cols)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportBalances(t *testing.T) {
	dep := leave.DepartmentID(1)
	initial := generic.Days(30)
	svc := &fakeService{
		departments: []leave.Department{{ID: dep, Name: "Finance"}},
		employees: []leave.Employee{
			{
				ID: 1, SerialNumber: "S-1", Name: "Huda", NationalID: "119876543210", DepartmentID: &dep,
				HireDate: "2015-06-01", RegularBalance: generic.Days(32.5), InitialRegularBalance: &initial,
				EmergencyBalance: generic.Days(12), Status: leave.StatusActive,
			},
			{
				ID: 2, Name: "Ali", NationalID: "119876543211",
				RegularBalance: generic.Days(0), EmergencyBalance: generic.Days(10), Status: leave.StatusInactive,
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, New(svc, nil, 0).ExportBalances(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Balances")
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "Regular balance", rows[0][6])
	assert.Equal(t, []string{"S-1", "Huda", "119876543210", "Finance", "", "2015-06-01", "32.5", "12", "30", "active"}, rows[1])
	assert.Equal(t, "Ali", rows[2][1])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "inactive", rows[2][9])
}
