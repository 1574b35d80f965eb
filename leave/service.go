package leave

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// Options configures NewService. Zero values select the defaults.
type Options struct {
	Logger             *logrus.Entry
	Clock              func() time.Time
	EmergencyAllowance int
}

// Service is the transport-independent boundary of the leave core. Every
// method is safe for concurrent use.
type Service struct {
	store    Store
	registry *Registry
	log      *logrus.Entry

	Ledger    *Ledger
	Accrual   *AccrualService
	Reset     *EmergencyResetService
	Workflow  *Workflow
	Absences  *AbsenceRegister
	Directory *Directory
}

func NewService(store Store, registry *Registry, opts Options) *Service {
	log := logger(opts.Logger)
	ledger := &Ledger{Store: store, Log: log.WithField("component", "ledger"), Now: opts.Clock}
	return &Service{
		store:    store,
		registry: registry,
		log:      log,
		Ledger:   ledger,
		Accrual: &AccrualService{
			Store: store, Ledger: ledger, Now: opts.Clock,
			Log: log.WithField("component", "accrual"),
		},
		Reset: &EmergencyResetService{
			Store: store, Allowance: opts.EmergencyAllowance, Now: opts.Clock,
			Log: log.WithField("component", "emergency_reset"),
		},
		Workflow: &Workflow{
			Store: store, Registry: registry, Ledger: ledger, Now: opts.Clock,
			Log: log.WithField("component", "workflow"),
		},
		Absences: &AbsenceRegister{
			Store: store, Now: opts.Clock,
			Log: log.WithField("component", "absences"),
		},
		Directory: &Directory{
			Store: store, Ledger: ledger, Now: opts.Clock, EmergencyAllowance: opts.EmergencyAllowance,
			Log: log.WithField("component", "directory"),
		},
	}
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (s *Service) SubmitLeaveRequest(ctx context.Context, in SubmitInput) (RequestID, error) {
	return s.Workflow.Submit(ctx, in)
}

func (s *Service) Decide(ctx context.Context, in DecideInput) error {
	return s.Workflow.Decide(ctx, in)
}

func (s *Service) Cancel(ctx context.Context, id RequestID, actor Actor) error {
	return s.Workflow.Cancel(ctx, id, actor)
}

func (s *Service) GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error) {
	var out *LeaveRequest
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = loadRequest(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error) {
	var out []LeaveRequest
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListRequests(ctx, filter)
		return err
	})
	return out, err
}

// PendingFor lists the requests waiting on actor's stage: pending_dept in
// their department for a dept head, pending_manager for a manager.
func (s *Service) PendingFor(ctx context.Context, actor Actor) ([]LeaveRequest, error) {
	switch actor.Role {
	case RoleDeptHead:
		if actor.DepartmentID == nil {
			return nil, &generic.ForbiddenError{Role: string(actor.Role), Reason: "department head without a department"}
		}
		return s.ListRequests(ctx, RequestFilter{DepartmentID: actor.DepartmentID, States: []WorkflowState{StatePendingDept}})
	case RoleManager:
		return s.ListRequests(ctx, RequestFilter{States: []WorkflowState{StatePendingManager}})
	}
	return nil, &generic.ForbiddenError{Role: string(actor.Role), Reason: "no approval stage for this role"}
}

// =============================================================================
// BALANCES & MAINTENANCE
// =============================================================================

func (s *Service) GetBalances(ctx context.Context, id EmployeeID) (Balances, error) {
	return s.Ledger.GetBalances(ctx, id)
}

func (s *Service) Debit(ctx context.Context, id EmployeeID, kind BalanceKind, amount generic.Amount, actor UserID) error {
	return s.Ledger.Debit(ctx, id, kind, amount, actor)
}

func (s *Service) Credit(ctx context.Context, id EmployeeID, kind BalanceKind, amount generic.Amount, actor UserID) error {
	return s.Ledger.Credit(ctx, id, kind, amount, actor)
}

func (s *Service) SetInitialBalanceIfUnset(ctx context.Context, id EmployeeID, value generic.Amount, actor UserID) (bool, error) {
	return s.Ledger.SetInitialBalanceIfUnset(ctx, id, value, actor)
}

func (s *Service) RunMonthlyAccrual(ctx context.Context, asOf generic.Date) (AccrualResult, error) {
	return s.Accrual.RunMonthlyAccrual(ctx, asOf)
}

func (s *Service) RunEmergencyReset(ctx context.Context, asOf generic.Date) (ResetResult, error) {
	return s.Reset.RunEmergencyReset(ctx, asOf)
}

// EmergencyResetDone reports whether the reset already ran for year.
func (s *Service) EmergencyResetDone(ctx context.Context, year int) (bool, error) {
	var done bool
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		done, err = tx.EmergencyResetProcessed(ctx, year)
		return err
	})
	return done, err
}

// =============================================================================
// ABSENCES
// =============================================================================

func (s *Service) RecordAbsence(ctx context.Context, in AbsenceInput) (AbsenceID, error) {
	return s.Absences.RecordAbsence(ctx, in)
}

func (s *Service) DeleteAbsence(ctx context.Context, id AbsenceID, actor UserID) error {
	return s.Absences.DeleteAbsence(ctx, id, actor)
}

func (s *Service) ListAbsences(ctx context.Context, filter AbsenceFilter) ([]Absence, error) {
	return s.Absences.ListAbsences(ctx, filter)
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Service) GetPolicy(code string) (VacationType, error) { return s.registry.GetPolicy(code) }
func (s *Service) ListPolicies() []VacationType               { return s.registry.List() }

// =============================================================================
// EMPLOYEES & DEPARTMENTS
// =============================================================================

func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (EmployeeID, error) {
	return s.Directory.CreateEmployee(ctx, in)
}

func (s *Service) GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error) {
	return s.Directory.GetEmployee(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	return s.Directory.ListEmployees(ctx, filter)
}

func (s *Service) UpdateEmployee(ctx context.Context, id EmployeeID, upd EmployeeUpdate, actor UserID) error {
	return s.Directory.UpdateEmployee(ctx, id, upd, actor)
}

func (s *Service) SetEmployeeStatus(ctx context.Context, id EmployeeID, status EmployeeStatus, actor UserID) error {
	return s.Directory.SetEmployeeStatus(ctx, id, status, actor)
}

func (s *Service) ImportEmployees(ctx context.Context, rows []EmployeeRecord, opts ImportOptions) (ImportResult, error) {
	return s.Directory.ImportEmployees(ctx, rows, opts)
}

func (s *Service) CreateDepartment(ctx context.Context, name string, actor UserID) (DepartmentID, error) {
	return s.Directory.CreateDepartment(ctx, name, actor)
}

func (s *Service) EnsureDepartment(ctx context.Context, name string, actor UserID) (*Department, error) {
	return s.Directory.EnsureDepartment(ctx, name, actor)
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.Directory.ListDepartments(ctx)
}

func (s *Service) SetDepartmentHead(ctx context.Context, id DepartmentID, head *UserID, actor UserID) error {
	return s.Directory.SetDepartmentHead(ctx, id, head, actor)
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Service) AuditTrail(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var out []generic.AuditEntry
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.QueryAudit(ctx, filter)
		return err
	})
	return out, err
}
