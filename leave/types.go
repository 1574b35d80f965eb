// Package leave implements the employee leave lifecycle: balances, the
// two-stage approval workflow, per-type policy rules, periodic balance
// maintenance and the absence register.
package leave

import (
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID int64
type DepartmentID int64
type RequestID int64
type AbsenceID int64
type UserID int64

// SystemUser is the acting user recorded for scheduled runs.
const SystemUser UserID = 0

// Persisted table names, used as the audit log's "affected table".
const (
	TableEmployees         = "employees"
	TableDepartments       = "departments"
	TableVacationTypes     = "vacation_types"
	TableLeaveRequests     = "leave_requests"
	TableAbsences          = "absences"
	TableAccrualLog        = "accrual_log"
	TableEmergencyResetLog = "emergency_reset_log"
)

// =============================================================================
// EMPLOYEE & DEPARTMENT
// =============================================================================

type EmployeeStatus string

const (
	StatusActive   EmployeeStatus = "active"
	StatusInactive EmployeeStatus = "inactive"
)

// Employee is never physically deleted; leave and absence history keep
// referencing it after it is deactivated.
type Employee struct {
	ID           EmployeeID
	SerialNumber string
	Name         string
	NationalID   string
	DepartmentID *DepartmentID
	JobGrade     string

	// HireDate is kept as entered. Imported rows may carry an empty or
	// unparsable value; accrual skips those employees.
	HireDate string

	RegularBalance        generic.Amount
	InitialRegularBalance *generic.Amount // set once, never overwritten
	EmergencyBalance      generic.Amount

	Status    EmployeeStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Employee) IsActive() bool { return e.Status == StatusActive }

// ParsedHireDate parses HireDate as YYYY-MM-DD.
func (e Employee) ParsedHireDate() (generic.Date, error) {
	return generic.ParseDate("hire_date", e.HireDate)
}

func (e Employee) InDepartment(id *DepartmentID) bool {
	return id != nil && e.DepartmentID != nil && *id == *e.DepartmentID
}

type Department struct {
	ID         DepartmentID
	Name       string
	HeadUserID *UserID
	CreatedAt  time.Time
}

// =============================================================================
// VACATION TYPE - Policy row
// =============================================================================

// VacationType is one row of the policy catalog. It is configuration: request
// processing reads it and never mutates it.
type VacationType struct {
	Code  string
	Label string

	DeductsRegularBalance bool
	UsesEmergencyBalance  bool

	FixedDuration     *int // days; overrides the entered date span
	MaxDaysPerRequest *int
	YearlyQuota       *int // days per calendar year
	LifetimeQuota     *int // number of requests, ever

	RequiresDocumentation bool
	AllowsOverlap         bool
	AutoApprove           bool
	Active                bool
}

// BalanceKind returns the balance an approval debits, if any.
func (t VacationType) BalanceKind() (BalanceKind, bool) {
	switch {
	case t.DeductsRegularBalance:
		return BalanceRegular, true
	case t.UsesEmergencyBalance:
		return BalanceEmergency, true
	}
	return "", false
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceKind string

const (
	BalanceRegular   BalanceKind = "regular"
	BalanceEmergency BalanceKind = "emergency"
)

func (k BalanceKind) Valid() bool {
	return k == BalanceRegular || k == BalanceEmergency
}

type Balances struct {
	EmployeeID EmployeeID
	Regular    generic.Amount
	Emergency  generic.Amount
	Initial    *generic.Amount
}

func (b Balances) Of(kind BalanceKind) generic.Amount {
	if kind == BalanceEmergency {
		return b.Emergency
	}
	return b.Regular
}

func balancesOf(e *Employee) Balances {
	return Balances{
		EmployeeID: e.ID,
		Regular:    e.RegularBalance,
		Emergency:  e.EmergencyBalance,
		Initial:    e.InitialRegularBalance,
	}
}

// =============================================================================
// ACTORS
// =============================================================================

type Role string

const (
	RoleManager  Role = "manager"
	RoleDeptHead Role = "dept_head"
	RoleEmployee Role = "employee"
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleManager, RoleDeptHead, RoleEmployee:
		return r, true
	}
	return "", false
}

// Actor is an already-authenticated caller. Authentication happens outside
// this package; only workflow-stage eligibility is checked here.
type Actor struct {
	UserID       UserID
	Role         Role
	DepartmentID *DepartmentID // dept heads: the department they head
	EmployeeID   *EmployeeID   // set when the user is also an employee
}

func (a Actor) IsEmployee(id EmployeeID) bool {
	return a.EmployeeID != nil && *a.EmployeeID == id
}

// =============================================================================
// ABSENCE
// =============================================================================

// Absence is informational: it never touches a balance.
type Absence struct {
	ID         AbsenceID
	EmployeeID EmployeeID
	Date       generic.Date
	Type       string
	Duration   generic.Amount
	Notes      string
	CreatedAt  time.Time
}
