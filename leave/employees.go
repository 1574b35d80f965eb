/*
employees.go - Employee and department administration, bulk import

PURPOSE:
  Administrative edits of the reference data the workflow depends on:
  employees (with their opening balances) and departments. Employees are
  never deleted; SetEmployeeStatus deactivates them.

OPENING BALANCES:
  A new employee starts with regular 30 and emergency 12 days unless the
  caller supplies values. The opening regular balance is also written as
  initial_regular_balance through the ledger, exactly once.

BULK IMPORT:
  ImportEmployees applies parsed spreadsheet rows in one transaction.
  Rows are matched on national id: unknown ids are inserted, known ids get
  their profile fields updated and, if they have none yet, an initial
  balance. A row that fails validation is reported in ImportResult.Errors
  and skipped; a store failure aborts the whole import. DryRun performs every
  check and write, then rolls back.

SEE ALSO:
  - importer/: spreadsheet parsing
  - ledger.go: SetInitialTx
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

const (
	DefaultRegularBalance = 30
	NationalIDLength      = 12
)

// ValidNationalID reports whether s is exactly twelve ASCII digits.
func ValidNationalID(s string) bool {
	if len(s) != NationalIDLength {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// EmployeeInput creates an employee. Department names are resolved (and
// created) when DepartmentID is nil.
type EmployeeInput struct {
	Name             string
	NationalID       string
	SerialNumber     string
	DepartmentID     *DepartmentID
	Department       string
	JobGrade         string
	HireDate         string
	RegularBalance   *generic.Amount
	EmergencyBalance *generic.Amount
	ActorID          UserID
}

// EmployeeUpdate changes the non-nil profile fields.
type EmployeeUpdate struct {
	Name         *string
	SerialNumber *string
	DepartmentID *DepartmentID
	JobGrade     *string
	HireDate     *string
}

type Directory struct {
	Store  Store
	Ledger *Ledger
	Log    *logrus.Entry
	Now    func() time.Time

	// EmergencyAllowance is the opening emergency balance; zero means
	// DefaultEmergencyAllowance.
	EmergencyAllowance int
}

func (d *Directory) emergencyDefault() generic.Amount {
	if d.EmergencyAllowance > 0 {
		return generic.NewAmountFromInt(d.EmergencyAllowance, generic.UnitDays)
	}
	return generic.NewAmountFromInt(DefaultEmergencyAllowance, generic.UnitDays)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (d *Directory) CreateEmployee(ctx context.Context, in EmployeeInput) (EmployeeID, error) {
	emp, err := d.newEmployee(in)
	if err != nil {
		return 0, err
	}
	if emp.HireDate != "" {
		if _, err := emp.ParsedHireDate(); err != nil {
			return 0, err
		}
	}

	err = d.Store.WithTx(ctx, func(tx Tx) error {
		now := clock(d.Now)
		if emp.DepartmentID == nil && strings.TrimSpace(in.Department) != "" {
			dep, err := d.ensureDepartment(ctx, tx, in.Department, in.ActorID, now)
			if err != nil {
				return err
			}
			emp.DepartmentID = &dep.ID
		} else if err := checkDepartment(ctx, tx, emp.DepartmentID); err != nil {
			return err
		}

		emp.ID, err = d.insertEmployee(ctx, tx, emp, now)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, now, generic.AuditEmployeeCreated, TableEmployees, int64(emp.ID), in.ActorID, employeeChanges(emp))
	})
	if err != nil {
		return 0, err
	}

	logger(d.Log).WithFields(logrus.Fields{"employee_id": emp.ID, "serial": emp.SerialNumber}).Info("employee created")
	return emp.ID, nil
}

func (d *Directory) newEmployee(in EmployeeInput) (Employee, error) {
	emp := Employee{
		Name:         strings.TrimSpace(in.Name),
		NationalID:   strings.TrimSpace(in.NationalID),
		SerialNumber: strings.TrimSpace(in.SerialNumber),
		DepartmentID: in.DepartmentID,
		JobGrade:     strings.TrimSpace(in.JobGrade),
		HireDate:     strings.TrimSpace(in.HireDate),
		Status:       StatusActive,

		RegularBalance:   generic.NewAmountFromInt(DefaultRegularBalance, generic.UnitDays),
		EmergencyBalance: d.emergencyDefault(),
	}
	if emp.Name == "" {
		return Employee{}, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	if !ValidNationalID(emp.NationalID) {
		return Employee{}, &generic.ValidationError{Field: "national_id", Message: fmt.Sprintf("must be %d digits", NationalIDLength)}
	}
	if in.RegularBalance != nil {
		emp.RegularBalance = *in.RegularBalance
	}
	if in.EmergencyBalance != nil {
		emp.EmergencyBalance = *in.EmergencyBalance
	}
	if emp.RegularBalance.IsNegative() || emp.EmergencyBalance.IsNegative() {
		return Employee{}, &generic.ValidationError{Field: "balance", Message: "must not be negative"}
	}
	return emp, nil
}

// insertEmployee stores emp and records its opening regular balance.
func (d *Directory) insertEmployee(ctx context.Context, tx Tx, emp Employee, now time.Time) (EmployeeID, error) {
	existing, err := tx.GetEmployeeByNationalID(ctx, emp.NationalID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, &generic.ValidationError{Field: "national_id", Message: "already registered"}
	}

	emp.CreatedAt, emp.UpdatedAt = now, now
	emp.InitialRegularBalance = nil
	id, err := tx.InsertEmployee(ctx, emp)
	if err != nil {
		return 0, err
	}
	if _, err := d.Ledger.SetInitialTx(ctx, tx, id, emp.RegularBalance, now); err != nil {
		return 0, err
	}
	return id, nil
}

// GetEmployee returns active and inactive employees alike.
func (d *Directory) GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error) {
	var out *Employee
	err := d.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = loadEmployee(ctx, tx, id, false)
		return err
	})
	return out, err
}

func (d *Directory) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	var out []Employee
	err := d.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListEmployees(ctx, filter)
		return err
	})
	return out, err
}

// UpdateEmployee edits profile fields. Balances are changed only through the
// ledger.
func (d *Directory) UpdateEmployee(ctx context.Context, id EmployeeID, upd EmployeeUpdate, actor UserID) error {
	return d.Store.WithTx(ctx, func(tx Tx) error {
		emp, err := loadEmployee(ctx, tx, id, false)
		if err != nil {
			return err
		}
		changes := map[string]any{}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return &generic.ValidationError{Field: "name", Message: "must not be empty"}
			}
			emp.Name, changes["name"] = name, name
		}
		if upd.SerialNumber != nil {
			emp.SerialNumber = strings.TrimSpace(*upd.SerialNumber)
			changes["serial_number"] = emp.SerialNumber
		}
		if upd.JobGrade != nil {
			emp.JobGrade = strings.TrimSpace(*upd.JobGrade)
			changes["job_grade"] = emp.JobGrade
		}
		if upd.HireDate != nil {
			hire := strings.TrimSpace(*upd.HireDate)
			if _, err := generic.ParseDate("hire_date", hire); err != nil {
				return err
			}
			emp.HireDate, changes["hire_date"] = hire, hire
		}
		if upd.DepartmentID != nil {
			if err := checkDepartment(ctx, tx, upd.DepartmentID); err != nil {
				return err
			}
			emp.DepartmentID, changes["department_id"] = upd.DepartmentID, *upd.DepartmentID
		}
		if len(changes) == 0 {
			return nil
		}

		now := clock(d.Now)
		emp.UpdatedAt = now
		if err := tx.UpdateEmployee(ctx, *emp); err != nil {
			return err
		}
		return writeAudit(ctx, tx, now, generic.AuditEmployeeUpdated, TableEmployees, int64(id), actor, changes)
	})
}

// SetEmployeeStatus activates or deactivates an employee.
func (d *Directory) SetEmployeeStatus(ctx context.Context, id EmployeeID, status EmployeeStatus, actor UserID) error {
	if status != StatusActive && status != StatusInactive {
		return &generic.ValidationError{Field: "status", Message: "must be active or inactive"}
	}
	return d.Store.WithTx(ctx, func(tx Tx) error {
		emp, err := loadEmployee(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if emp.Status == status {
			return nil
		}
		before := emp.Status
		now := clock(d.Now)
		emp.Status, emp.UpdatedAt = status, now
		if err := tx.UpdateEmployee(ctx, *emp); err != nil {
			return err
		}
		return writeAudit(ctx, tx, now, generic.AuditEmployeeStatus, TableEmployees, int64(id), actor,
			map[string]any{"before": string(before), "after": string(status)})
	})
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

// CreateDepartment fails with a ValidationError if the name is taken.
func (d *Directory) CreateDepartment(ctx context.Context, name string, actor UserID) (DepartmentID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	var id DepartmentID
	err := d.Store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetDepartmentByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return &generic.ValidationError{Field: "name", Message: "department already exists"}
		}
		dep, err := d.ensureDepartment(ctx, tx, name, actor, clock(d.Now))
		if err != nil {
			return err
		}
		id = dep.ID
		return nil
	})
	return id, err
}

// EnsureDepartment returns the department named name, creating it if needed.
func (d *Directory) EnsureDepartment(ctx context.Context, name string, actor UserID) (*Department, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	var out *Department
	err := d.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = d.ensureDepartment(ctx, tx, name, actor, clock(d.Now))
		return err
	})
	return out, err
}

func (d *Directory) ensureDepartment(ctx context.Context, tx Tx, name string, actor UserID, now time.Time) (*Department, error) {
	name = strings.TrimSpace(name)
	dep, err := tx.GetDepartmentByName(ctx, name)
	if err != nil || dep != nil {
		return dep, err
	}
	dep = &Department{Name: name, CreatedAt: now}
	dep.ID, err = tx.InsertDepartment(ctx, *dep)
	if err != nil {
		return nil, err
	}
	if err := writeAudit(ctx, tx, now, generic.AuditDepartmentCreated, TableDepartments, int64(dep.ID), actor,
		map[string]any{"name": name}); err != nil {
		return nil, err
	}
	return dep, nil
}

func (d *Directory) ListDepartments(ctx context.Context) ([]Department, error) {
	var out []Department
	err := d.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListDepartments(ctx)
		return err
	})
	return out, err
}

// SetDepartmentHead assigns (or with nil clears) the head user.
func (d *Directory) SetDepartmentHead(ctx context.Context, id DepartmentID, head *UserID, actor UserID) error {
	return d.Store.WithTx(ctx, func(tx Tx) error {
		if err := checkDepartment(ctx, tx, &id); err != nil {
			return err
		}
		if err := tx.SetDepartmentHead(ctx, id, head); err != nil {
			return err
		}
		var value any
		if head != nil {
			value = *head
		}
		return writeAudit(ctx, tx, clock(d.Now), generic.AuditDepartmentHeadSet, TableDepartments, int64(id), actor,
			map[string]any{"head_user_id": value})
	})
}

func checkDepartment(ctx context.Context, tx Tx, id *DepartmentID) error {
	if id == nil {
		return nil
	}
	dep, err := tx.GetDepartment(ctx, *id)
	if err != nil {
		return err
	}
	if dep == nil {
		return &generic.NotFoundError{Resource: "department", Key: *id}
	}
	return nil
}

// =============================================================================
// BULK IMPORT
// =============================================================================

// EmployeeRecord is one parsed spreadsheet row. Row is the 1-based sheet row
// used in error reports.
type EmployeeRecord struct {
	Row             int
	Name            string
	NationalID      string
	SerialNumber    string
	Department      string
	JobGrade        string
	HireDate        string
	VacationBalance *generic.Amount
}

type ImportOptions struct {
	DryRun            bool
	CreateDepartments bool
	ActorID           UserID
	RunID             string
}

type RowError struct {
	Row        int    `json:"row"`
	NationalID string `json:"national_id,omitempty"`
	Message    string `json:"message"`
}

type ImportResult struct {
	RunID    string     `json:"run_id,omitempty"`
	DryRun   bool       `json:"dry_run"`
	Total    int        `json:"total"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Errors   []RowError `json:"errors"`
}

var errDryRun = errors.New("dry run")

// ImportEmployees applies rows in one transaction.
func (d *Directory) ImportEmployees(ctx context.Context, rows []EmployeeRecord, opts ImportOptions) (ImportResult, error) {
	log := logger(d.Log).WithField("run_id", opts.RunID)

	var res ImportResult
	err := d.Store.WithTx(ctx, func(tx Tx) error {
		res = ImportResult{RunID: opts.RunID, DryRun: opts.DryRun, Total: len(rows), Errors: []RowError{}}
		now := clock(d.Now)

		for _, rec := range rows {
			inserted, err := d.importRow(ctx, tx, rec, opts, now)
			if err != nil {
				if generic.IsClientError(err) {
					res.Errors = append(res.Errors, RowError{Row: rec.Row, NationalID: rec.NationalID, Message: err.Error()})
					continue
				}
				return err
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}

		if err := writeAudit(ctx, tx, now, generic.AuditEmployeesImported, TableEmployees, 0, opts.ActorID, map[string]any{
			"run_id":   opts.RunID,
			"total":    res.Total,
			"inserted": res.Inserted,
			"updated":  res.Updated,
			"errors":   len(res.Errors),
		}); err != nil {
			return err
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		err = nil
	}
	if err != nil {
		return ImportResult{}, err
	}

	log.WithFields(logrus.Fields{
		"dry_run":  res.DryRun,
		"total":    res.Total,
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"errors":   len(res.Errors),
	}).Info("employee import finished")
	return res, nil
}

// importRow reports whether the row created a new employee.
func (d *Directory) importRow(ctx context.Context, tx Tx, rec EmployeeRecord, opts ImportOptions, now time.Time) (bool, error) {
	nationalID := strings.TrimSpace(rec.NationalID)
	if strings.TrimSpace(rec.Name) == "" {
		return false, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	if !ValidNationalID(nationalID) {
		return false, &generic.ValidationError{Field: "national_id", Message: fmt.Sprintf("must be %d digits", NationalIDLength)}
	}
	if rec.VacationBalance != nil && rec.VacationBalance.IsNegative() {
		return false, &generic.ValidationError{Field: "vacation_balance", Message: "must not be negative"}
	}

	var depID *DepartmentID
	if name := strings.TrimSpace(rec.Department); name != "" {
		dep, err := tx.GetDepartmentByName(ctx, name)
		if err != nil {
			return false, err
		}
		if dep == nil {
			if !opts.CreateDepartments {
				return false, &generic.NotFoundError{Resource: "department", Key: name}
			}
			if dep, err = d.ensureDepartment(ctx, tx, name, opts.ActorID, now); err != nil {
				return false, err
			}
		}
		depID = &dep.ID
	}

	existing, err := tx.GetEmployeeByNationalID(ctx, nationalID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		emp, err := d.newEmployee(EmployeeInput{
			Name:           rec.Name,
			NationalID:     nationalID,
			SerialNumber:   rec.SerialNumber,
			DepartmentID:   depID,
			JobGrade:       rec.JobGrade,
			HireDate:       rec.HireDate,
			RegularBalance: rec.VacationBalance,
		})
		if err != nil {
			return false, err
		}
		if _, err := d.insertEmployee(ctx, tx, emp, now); err != nil {
			return false, err
		}
		return true, nil
	}

	existing.Name = strings.TrimSpace(rec.Name)
	if s := strings.TrimSpace(rec.SerialNumber); s != "" {
		existing.SerialNumber = s
	}
	if g := strings.TrimSpace(rec.JobGrade); g != "" {
		existing.JobGrade = g
	}
	if h := strings.TrimSpace(rec.HireDate); h != "" {
		existing.HireDate = h
	}
	if depID != nil {
		existing.DepartmentID = depID
	}
	existing.UpdatedAt = now
	if err := tx.UpdateEmployee(ctx, *existing); err != nil {
		return false, err
	}
	if rec.VacationBalance != nil {
		if _, err := d.Ledger.SetInitialTx(ctx, tx, existing.ID, *rec.VacationBalance, now); err != nil {
			return false, err
		}
	}
	return false, nil
}

func employeeChanges(e Employee) map[string]any {
	changes := map[string]any{
		"name":              e.Name,
		"national_id":       e.NationalID,
		"serial_number":     e.SerialNumber,
		"job_grade":         e.JobGrade,
		"hire_date":         e.HireDate,
		"regular_balance":   e.RegularBalance.String(),
		"emergency_balance": e.EmergencyBalance.String(),
	}
	if e.DepartmentID != nil {
		changes["department_id"] = *e.DepartmentID
	}
	return changes
}
