/*
Package importer moves employee data between spreadsheets and the leave core.

PURPOSE:
  Bulk onboarding from the HR workbook and a balance report back out. It is
  an adapter: parsing happens here, every write goes through
  leave.Service.ImportEmployees in a single transaction.

IMPORT:
  - first sheet, first row is the header
  - Arabic or English headers (see headerAliases)
  - required columns: name, national_id
  - national ids keep digits only; dates are normalized to YYYY-MM-DD
  - fully empty rows are skipped; rows beyond MaxRows are rejected
  - a row that cannot be parsed (e.g. a non-numeric balance) is reported in
    ImportResult.Errors and not sent to the core

EXPORT:
  ExportBalances writes one row per employee with regular, emergency and
  initial balances.

USAGE:
  im := importer.New(svc, logger, 5000)
  res, err := im.Import(ctx, file, importer.Options{DryRun: true})
*/
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// DefaultMaxRows bounds a single import.
const DefaultMaxRows = 5000

// ErrMissingColumns is returned when a required header is absent.
var ErrMissingColumns = errors.New("missing required columns")

// EmployeeService is the part of leave.Service the importer needs.
type EmployeeService interface {
	ImportEmployees(ctx context.Context, rows []leave.EmployeeRecord, opts leave.ImportOptions) (leave.ImportResult, error)
	ListEmployees(ctx context.Context, filter leave.EmployeeFilter) ([]leave.Employee, error)
	ListDepartments(ctx context.Context) ([]leave.Department, error)
}

type Options struct {
	DryRun            bool
	CreateDepartments bool
	ActorID           leave.UserID
}

type Importer struct {
	svc     EmployeeService
	log     *logrus.Entry
	maxRows int
}

func New(svc EmployeeService, log *logrus.Entry, maxRows int) *Importer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Importer{svc: svc, log: log, maxRows: maxRows}
}

// =============================================================================
// IMPORT
// =============================================================================

// Import parses the workbook in r and applies it.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts Options) (leave.ImportResult, error) {
	runID := uuid.NewString()
	log := im.log.WithField("run_id", runID)

	records, rowErrs, err := im.ReadEmployees(r)
	if err != nil {
		log.WithError(err).Warn("employee workbook rejected")
		return leave.ImportResult{}, err
	}
	log.WithFields(logrus.Fields{"rows": len(records), "parse_errors": len(rowErrs)}).Info("employee workbook parsed")

	res, err := im.svc.ImportEmployees(ctx, records, leave.ImportOptions{
		DryRun:            opts.DryRun,
		CreateDepartments: opts.CreateDepartments,
		ActorID:           opts.ActorID,
		RunID:             runID,
	})
	if err != nil {
		return leave.ImportResult{}, err
	}

	res.Total += len(rowErrs)
	res.Errors = append(rowErrs, res.Errors...)
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Row < res.Errors[j].Row })
	return res, nil
}

// ReadEmployees parses the first sheet. Row-level problems are returned as
// RowErrors; a structural problem (unreadable file, missing columns, too many
// rows) is returned as a ValidationError.
func (im *Importer) ReadEmployees(r io.Reader) ([]leave.EmployeeRecord, []leave.RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, &generic.ValidationError{Field: "file", Message: fmt.Sprintf("not a readable xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &generic.ValidationError{Field: "file", Message: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, &generic.ValidationError{Field: "file", Message: fmt.Sprintf("failed to read rows: %v", err)}
	}
	if len(rows) == 0 {
		return nil, nil, &generic.ValidationError{Field: "file", Message: "sheet is empty"}
	}

	cols := mapHeaders(rows[0])
	var missing []string
	for _, c := range []string{ColName, ColNationalID} {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &generic.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("%v: %s", ErrMissingColumns, strings.Join(missing, ", ")),
		}
	}

	var records []leave.EmployeeRecord
	var rowErrs []leave.RowError
	for i, row := range rows[1:] {
		sheetRow := i + 2
		if blank(row) {
			continue
		}
		if len(records)+len(rowErrs) >= im.maxRows {
			return nil, nil, &generic.ValidationError{Field: "file", Message: fmt.Sprintf("more than %d data rows", im.maxRows)}
		}

		rec := leave.EmployeeRecord{
			Row:          sheetRow,
			Name:         cell(row, cols, ColName),
			NationalID:   digitsOnly(cell(row, cols, ColNationalID)),
			SerialNumber: cell(row, cols, ColSerialNumber),
			Department:   cell(row, cols, ColDepartment),
			JobGrade:     cell(row, cols, ColJobGrade),
			HireDate:     normalizeDate(cell(row, cols, ColHireDate)),
		}
		if raw := cell(row, cols, ColVacationBalance); raw != "" {
			balance, err := generic.ParseAmount(raw, generic.UnitDays)
			if err != nil {
				rowErrs = append(rowErrs, leave.RowError{
					Row: sheetRow, NationalID: rec.NationalID,
					Message: fmt.Sprintf("vacation_balance: %q is not a number", raw),
				})
				continue
			}
			rec.VacationBalance = &balance
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// EXPORT
// =============================================================================

var exportHeader = []any{
	"Serial", "Name", "National ID", "Department", "Job grade", "Hire date",
	"Regular balance", "Emergency balance", "Initial balance", "Status",
}

// ExportBalances writes an xlsx report of every employee's balances to w.
func (im *Importer) ExportBalances(ctx context.Context, w io.Writer) error {
	employees, err := im.svc.ListEmployees(ctx, leave.EmployeeFilter{})
	if err != nil {
		return err
	}
	departments, err := im.svc.ListDepartments(ctx)
	if err != nil {
		return err
	}
	names := make(map[leave.DepartmentID]string, len(departments))
	for _, d := range departments {
		names[d.ID] = d.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Balances"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return err
	}

	for i, e := range employees {
		dept := ""
		if e.DepartmentID != nil {
			dept = names[*e.DepartmentID]
		}
		var initial any
		if e.InitialRegularBalance != nil {
			initial = e.InitialRegularBalance.Float64()
		}
		row := []any{
			e.SerialNumber, e.Name, e.NationalID, dept, e.JobGrade, e.HireDate,
			e.RegularBalance.Float64(), e.EmergencyBalance.Float64(), initial, string(e.Status),
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &row); err != nil {
			return err
		}
	}

	im.log.WithField("employees", len(employees)).Info("balance report exported")
	_, err = f.WriteTo(w)
	return err
}
