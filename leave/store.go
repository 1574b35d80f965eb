/*
store.go - Persistence interfaces for the leave core

PURPOSE:
  Defines the boundary between domain logic and the database. Every mutating
  operation in this package runs inside Store.WithTx: read current state,
  validate, write new state and the audit row, commit. Returning an error from
  the callback rolls everything back, so a failed operation leaves the store
  exactly as it was.

KEY INTERFACES:
  EmployeeStore:    employees and their balances
  DepartmentStore:  departments
  CatalogStore:     vacation_types
  RequestStore:     leave_requests
  AbsenceStore:     absences
  MaintenanceStore: accrual_log / emergency_reset_log idempotency rows
  AuditStore:       audit_log (append-only)
  Tx:               all of the above, bound to one transaction
  Store:            opens transactions

LOOKUP CONTRACT:
  Get* methods return (nil, nil) when the row does not exist. The domain
  layer turns that into a NotFoundError with the right resource name.

CONCURRENCY:
  Implementations must serialize transactions that touch the same rows so
  that two concurrent transitions of one request cannot both observe the
  source state. store/sqlite does this with a single connection and
  BEGIN IMMEDIATE.

SEE ALSO:
  - store/sqlite: implementation
*/
package leave

import (
	"context"
	"time"

	"github.com/warp/leave-engine/generic"
)

type EmployeeFilter struct {
	DepartmentID *DepartmentID
	Status       EmployeeStatus
}

type AbsenceFilter struct {
	EmployeeID *EmployeeID
	From       generic.Date
	To         generic.Date
}

type EmployeeStore interface {
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	GetEmployeeByNationalID(ctx context.Context, nationalID string) (*Employee, error)
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error)
	InsertEmployee(ctx context.Context, e Employee) (EmployeeID, error)

	// UpdateEmployee writes profile fields and status. Balances are not touched.
	UpdateEmployee(ctx context.Context, e Employee) error

	UpdateBalances(ctx context.Context, id EmployeeID, regular, emergency generic.Amount, at time.Time) error

	// SetInitialBalance writes initial_regular_balance only if it is NULL and
	// reports whether it did.
	SetInitialBalance(ctx context.Context, id EmployeeID, value generic.Amount, at time.Time) (bool, error)

	// ResetEmergencyBalances sets the emergency balance of every active
	// employee and returns how many rows changed.
	ResetEmergencyBalances(ctx context.Context, value generic.Amount, at time.Time) (int64, error)
}

type DepartmentStore interface {
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)
	GetDepartmentByName(ctx context.Context, name string) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	InsertDepartment(ctx context.Context, d Department) (DepartmentID, error)
	SetDepartmentHead(ctx context.Context, id DepartmentID, head *UserID) error
}

type CatalogStore interface {
	ListVacationTypes(ctx context.Context) ([]VacationType, error)
	InsertVacationType(ctx context.Context, t VacationType) error
}

type RequestStore interface {
	InsertRequest(ctx context.Context, r LeaveRequest) (RequestID, error)
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)

	// TransitionRequest persists r's state and decision fields only if the
	// stored state still equals from. It reports whether a row was updated.
	TransitionRequest(ctx context.Context, r LeaveRequest, from WorkflowState) (bool, error)
}

type AbsenceStore interface {
	// InsertAbsence fails with *generic.DuplicateAbsenceError when the
	// (employee, date) pair exists.
	InsertAbsence(ctx context.Context, a Absence) (AbsenceID, error)
	GetAbsence(ctx context.Context, id AbsenceID) (*Absence, error)
	FindAbsence(ctx context.Context, employeeID EmployeeID, date generic.Date) (*Absence, error)
	ListAbsences(ctx context.Context, filter AbsenceFilter) ([]Absence, error)
	DeleteAbsence(ctx context.Context, id AbsenceID) error
}

type MaintenanceStore interface {
	AccrualProcessed(ctx context.Context, year int, month time.Month) (bool, error)
	// MarkAccrualProcessed reports false if the row already existed.
	MarkAccrualProcessed(ctx context.Context, year int, month time.Month, at time.Time) (bool, error)

	EmergencyResetProcessed(ctx context.Context, year int) (bool, error)
	MarkEmergencyResetProcessed(ctx context.Context, year int, at time.Time) (bool, error)
}

// AuditStore is append-only: there is no update or delete.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry generic.AuditEntry) (int64, error)
	QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error)
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	EmployeeStore
	DepartmentStore
	CatalogStore
	RequestStore
	AbsenceStore
	MaintenanceStore
	AuditStore
}

// Store opens transactions.
type Store interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back and the error returned.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
