/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos of the HR frontend. Each scenario creates departments,
	employees and leave requests in the state that shows off one feature.

AVAILABLE SCENARIOS:

	two-stage-approval:   One request waiting for the department head, one
	                      waiting for the manager
	insufficient-balance: Manager approval that fails on a 2-day balance
	emergency-reset:      Partly used emergency balances before the yearly reset
	tenure-accrual:       Employees either side of the 25-year accrual tier,
	                      plus an imported row with an unusable hire date
	absences:             A month of recorded absences

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Re-seed the vacation-type catalog
 3. Create departments and employees through leave.Service
 4. Submit and decide requests so they land in the wanted state

Dates are relative to the loader's clock, so a scenario loaded today has
requests starting next week.

USAGE VIA API:

	GET  /api/scenarios
	GET  /api/scenarios/current
	POST /api/scenarios/load   {"scenario_id": "two-stage-approval"}

NOTE:

	Scenarios reset the database. The routes are only mounted when the
	server runs with -demo.

SEE ALSO:
  - server.go: route registration
  - store/sqlite/sqlite.go: Reset
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "two-stage-approval",
		Name:        "Two-Stage Approval",
		Description: "Annual leave waiting for the department head and for the manager",
		Category:    "workflow",
	},
	{
		ID:          "insufficient-balance",
		Name:        "Insufficient Balance",
		Description: "A 3-day request on a 2-day balance, already approved by the department",
		Category:    "workflow",
	},
	{
		ID:          "emergency-reset",
		Name:        "Emergency Reset",
		Description: "Used emergency days waiting for the yearly reset",
		Category:    "maintenance",
	},
	{
		ID:          "tenure-accrual",
		Name:        "Tenure Accrual",
		Description: "Employees either side of the 25-year accrual tier",
		Category:    "maintenance",
	},
	{
		ID:          "absences",
		Name:        "Absence Register",
		Description: "A month of late arrivals and unexcused absences",
		Category:    "absences",
	},
}

// DemoStore is a leave.Store that can be wiped.
type DemoStore interface {
	leave.Store
	Reset(ctx context.Context) error
}

// ScenarioLoader resets the store and loads demo scenarios.
type ScenarioLoader struct {
	Store    DemoStore
	Registry *leave.Registry
	Catalog  []leave.VacationType
	Service  *leave.Service
	Now      func() time.Time
	Log      *logrus.Entry

	mu      sync.Mutex
	current string
}

// Load wipes the store, re-seeds the catalog and runs the scenario loader.
func (sl *ScenarioLoader) Load(ctx context.Context, id string) error {
	load, ok := map[string]func(context.Context, *scenarioBuilder) error{
		"two-stage-approval":   loadTwoStageApprovalScenario,
		"insufficient-balance": loadInsufficientBalanceScenario,
		"emergency-reset":      loadEmergencyResetScenario,
		"tenure-accrual":       loadTenureAccrualScenario,
		"absences":             loadAbsencesScenario,
	}[id]
	if !ok {
		return &generic.NotFoundError{Resource: "scenario", Key: id}
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now
	if sl.Now != nil {
		now = sl.Now
	}

	// Reset first
	if err := sl.Store.Reset(ctx); err != nil {
		return err
	}
	sl.current = ""
	if _, err := sl.Registry.Seed(ctx, sl.Store, sl.Catalog, now()); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	b := &scenarioBuilder{svc: sl.Service, today: generic.DateOf(now())}
	if err := load(ctx, b); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	sl.current = id
	if sl.Log != nil {
		sl.Log.WithField("scenario", id).Info("demo scenario loaded")
	}
	return nil
}

// Current returns the id of the loaded scenario, or "".
func (sl *ScenarioLoader) Current() string {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.current
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.Scenarios.Current()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Scenarios.Load(r.Context(), req.ScenarioID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioBuilder wraps the service calls the loaders repeat. The first
// error sticks and later calls are no-ops.
type scenarioBuilder struct {
	svc   *leave.Service
	today generic.Date
	err   error
}

func (b *scenarioBuilder) department(ctx context.Context, name string, head leave.UserID) leave.DepartmentID {
	if b.err != nil {
		return 0
	}
	var id leave.DepartmentID
	id, b.err = b.svc.CreateDepartment(ctx, name, leave.SystemUser)
	if b.err == nil {
		b.err = b.svc.SetDepartmentHead(ctx, id, &head, leave.SystemUser)
	}
	return id
}

func (b *scenarioBuilder) employee(ctx context.Context, name, nationalID string, dep leave.DepartmentID, hire generic.Date, regular float64) leave.EmployeeID {
	if b.err != nil {
		return 0
	}
	bal := generic.Days(regular)
	var id leave.EmployeeID
	id, b.err = b.svc.CreateEmployee(ctx, leave.EmployeeInput{
		Name:           name,
		NationalID:     nationalID,
		DepartmentID:   &dep,
		HireDate:       hire.String(),
		RegularBalance: &bal,
		ActorID:        leave.SystemUser,
	})
	return id
}

// request submits code for emp starting offset days from today.
func (b *scenarioBuilder) request(ctx context.Context, emp leave.EmployeeID, code string, offset, days int) leave.RequestID {
	if b.err != nil {
		return 0
	}
	start := b.today.AddDays(offset)
	var id leave.RequestID
	id, b.err = b.svc.SubmitLeaveRequest(ctx, leave.SubmitInput{
		EmployeeID:  emp,
		TypeCode:    code,
		StartDate:   start.String(),
		EndDate:     start.AddDays(days - 1).String(),
		DocumentRef: "demo-document.pdf",
		ActorID:     leave.UserID(emp),
	})
	return id
}

func (b *scenarioBuilder) approve(ctx context.Context, id leave.RequestID, actor leave.Actor) {
	if b.err != nil {
		return
	}
	b.err = b.svc.Decide(ctx, leave.DecideInput{RequestID: id, Actor: actor, Decision: leave.DecisionApprove})
}

func deptHeadActor(dep leave.DepartmentID, head leave.UserID) leave.Actor {
	return leave.Actor{UserID: head, Role: leave.RoleDeptHead, DepartmentID: &dep}
}

var demoManager = leave.Actor{UserID: 900, Role: leave.RoleManager}

func loadTwoStageApprovalScenario(ctx context.Context, b *scenarioBuilder) error {
	finance := b.department(ctx, "Finance", 101)
	it := b.department(ctx, "IT", 102)

	huda := b.employee(ctx, "Huda Al-Sabah", "119876543210", finance, b.today.AddYears(-8), 30)
	ali := b.employee(ctx, "Ali Hassan", "119876543211", it, b.today.AddYears(-3), 18.5)

	// Waiting for the Finance head
	b.request(ctx, huda, "annual", 7, 5)

	// Approved by the IT head, waiting for the manager
	second := b.request(ctx, ali, "annual", 14, 3)
	b.approve(ctx, second, deptHeadActor(it, 102))

	// Already through both stages
	done := b.request(ctx, huda, "annual", 30, 2)
	b.approve(ctx, done, deptHeadActor(finance, 101))
	b.approve(ctx, done, demoManager)
	return b.err
}

func loadInsufficientBalanceScenario(ctx context.Context, b *scenarioBuilder) error {
	sales := b.department(ctx, "Sales", 103)
	emp := b.employee(ctx, "Sara Ahmad", "119876543212", sales, b.today.AddYears(-1), 2)

	id := b.request(ctx, emp, "annual", 7, 3)
	b.approve(ctx, id, deptHeadActor(sales, 103))
	return b.err
}

func loadEmergencyResetScenario(ctx context.Context, b *scenarioBuilder) error {
	ops := b.department(ctx, "Operations", 104)
	used := map[string]float64{"119876543213": 5, "119876543214": 12, "119876543215": 0.5}
	for nationalID, days := range used {
		emp := b.employee(ctx, "Operator "+nationalID[len(nationalID)-2:], nationalID, ops, b.today.AddYears(-4), 30)
		if b.err != nil {
			return b.err
		}
		if err := b.svc.Debit(ctx, emp, leave.BalanceEmergency, generic.Days(days), leave.SystemUser); err != nil {
			return err
		}
	}
	return b.err
}

func loadTenureAccrualScenario(ctx context.Context, b *scenarioBuilder) error {
	legal := b.department(ctx, "Legal", 105)

	// 25th anniversary today: 45 days a year
	b.employee(ctx, "Khalid Senior", "119876543216", legal, b.today.AddYears(-25), 30)
	// one day short: still 30 days a year
	b.employee(ctx, "Mona Almost", "119876543217", legal, b.today.AddYears(-25).AddDays(1), 30)
	b.employee(ctx, "Yousef New", "119876543218", legal, b.today.AddMonths(-2), 0)
	if b.err != nil {
		return b.err
	}

	// Legacy rows keep whatever the spreadsheet had; accrual skips them.
	res, err := b.svc.ImportEmployees(ctx, []leave.EmployeeRecord{
		{Row: 2, Name: "Legacy Record", NationalID: "119876543219", Department: "Legal", HireDate: "sometime in 1999"},
	}, leave.ImportOptions{ActorID: leave.SystemUser, RunID: "demo"})
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("row %d: %s", res.Errors[0].Row, res.Errors[0].Message)
	}
	return nil
}

func loadAbsencesScenario(ctx context.Context, b *scenarioBuilder) error {
	hr := b.department(ctx, "HR", 106)
	emp := b.employee(ctx, "Noura Salem", "119876543220", hr, b.today.AddYears(-6), 30)
	if b.err != nil {
		return b.err
	}

	half := generic.Days(0.5)
	for i, typ := range []string{"late", "unexcused", "late", "early_leave"} {
		in := leave.AbsenceInput{
			EmployeeID: emp,
			Date:       b.today.AddDays(-3 * (i + 1)).String(),
			Type:       typ,
			ActorID:    leave.SystemUser,
		}
		if typ != "unexcused" {
			in.Duration = &half
		}
		if _, err := b.svc.RecordAbsence(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
