/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes leave.Service over REST. Handlers parse and shape-check the
  request, call exactly one service operation and serialize the result.
  Business rules live in the leave package.

ENDPOINTS:
  Employees:
    GET    /api/employees                         List (?department_id, ?status)
    POST   /api/employees                         Create
    GET    /api/employees/{id}                    Get
    PATCH  /api/employees/{id}                    Update profile
    PUT    /api/employees/{id}/status             Activate / deactivate
    GET    /api/employees/{id}/balances           Regular, emergency, initial
    POST   /api/employees/{id}/balances/debit     Manual debit
    POST   /api/employees/{id}/balances/credit    Manual credit
    POST   /api/employees/{id}/balances/initial   Set initial balance if unset
    GET    /api/employees/{id}/requests           Requests of one employee
    POST   /api/employees/{id}/requests           Submit a leave request
    GET    /api/employees/{id}/absences           Absences (?from, ?to)
    POST   /api/employees/{id}/absences           Record an absence

  Departments:
    GET    /api/departments
    POST   /api/departments
    PUT    /api/departments/{id}/head

  Leave requests:
    GET    /api/requests                          List (?employee_id, ?department_id, ?type, ?state)
    GET    /api/requests/pending                  Queue for the calling actor's stage
    GET    /api/requests/{id}
    POST   /api/requests/{id}/decision            {"decision": "approve"|"reject", "reason"}
    POST   /api/requests/{id}/approve
    POST   /api/requests/{id}/reject
    POST   /api/requests/{id}/cancel

  Absences:
    DELETE /api/absences/{id}

  Policies:
    GET    /api/policies                          Catalog (JSON, or YAML with ?format=yaml)
    GET    /api/policies/{code}

  Admin:
    POST   /api/admin/accrual                     Run monthly accrual {as_of}
    POST   /api/admin/emergency-reset             Run emergency reset {as_of}
    POST   /api/admin/maintenance                 Run the scheduler's check now
    POST   /api/admin/import                      xlsx upload (?dry_run, ?create_departments)
    GET    /api/admin/export/balances             xlsx balance report
    GET    /api/audit                             Audit trail (?table, ?record_id, ?user_id, ?limit)

  Scenarios (demo mode only):
    GET    /api/scenarios
    GET    /api/scenarios/current
    POST   /api/scenarios/load                    {"scenario_id"}; resets the database

ACTOR:
  The caller is authenticated upstream and identified by headers:
    X-Actor-ID          user id (required for every mutation)
    X-Actor-Role        manager | dept_head | employee
    X-Actor-Department  department id (dept heads)
    X-Actor-Employee    employee id the user is linked to, if any

ERROR HANDLING:
  Errors are returned as {"error", "kind", "details"} with the status
  picked by generic.KindOf:
  - 400: validation
  - 403: forbidden
  - 404: not found
  - 409: invalid transition, duplicate absence
  - 422: insufficient balance, quota exceeded
  - 503: store unavailable
  - 500: anything else (logged, details withheld)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/importer"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *leave.Service
	Importer      *importer.Importer
	PolicyFactory *factory.PolicyFactory
	Scheduler     *MaintenanceScheduler // optional
	Scenarios     *ScenarioLoader       // optional, demo mode only
	Log           *logrus.Entry

	// MaxUploadBytes bounds import uploads.
	MaxUploadBytes int64

	validate *validator.Validate
}

// NewHandler creates a handler around svc.
func NewHandler(svc *leave.Service, im *importer.Importer, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Handler{
		Service:        svc,
		Importer:       im,
		PolicyFactory:  factory.NewPolicyFactory(),
		Log:            log,
		MaxUploadBytes: 10 << 20,
		validate:       v,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	var filter leave.EmployeeFilter
	if v := r.URL.Query().Get("department_id"); v != "" {
		id, err := parseID("department_id", v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		dep := leave.DepartmentID(id)
		filter.DepartmentID = &dep
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = leave.EmployeeStatus(v)
	}

	employees, err := h.Service.ListEmployees(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := leave.EmployeeInput{
		Name:         req.Name,
		NationalID:   req.NationalID,
		SerialNumber: req.SerialNumber,
		Department:   req.Department,
		JobGrade:     req.JobGrade,
		HireDate:     req.HireDate,
		ActorID:      actor.UserID,
	}
	if req.DepartmentID != nil {
		dep := leave.DepartmentID(*req.DepartmentID)
		in.DepartmentID = &dep
	}
	if req.RegularBalance != nil {
		a := generic.Days(*req.RegularBalance)
		in.RegularBalance = &a
	}
	if req.EmergencyBalance != nil {
		a := generic.Days(*req.EmergencyBalance)
		in.EmergencyBalance = &a
	}

	id, err := h.Service.CreateEmployee(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	emp, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	emp, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	var req UpdateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	upd := leave.EmployeeUpdate{
		Name:         req.Name,
		SerialNumber: req.SerialNumber,
		JobGrade:     req.JobGrade,
		HireDate:     req.HireDate,
	}
	if req.DepartmentID != nil {
		dep := leave.DepartmentID(*req.DepartmentID)
		upd.DepartmentID = &dep
	}
	if err := h.Service.UpdateEmployee(r.Context(), id, upd, actor.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	emp, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

func (h *Handler) SetEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Service.SetEmployeeStatus(r.Context(), id, leave.EmployeeStatus(req.Status), actor.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DEPARTMENT HANDLERS
// =============================================================================

func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	deps, err := h.Service.ListDepartments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]DepartmentDTO, len(deps))
	for i, d := range deps {
		dtos[i] = toDepartmentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CreateDepartmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.Service.CreateDepartment(r.Context(), req.Name, actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DepartmentDTO{ID: int64(id), Name: strings.TrimSpace(req.Name)})
}

func (h *Handler) SetDepartmentHead(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req SetDepartmentHeadRequest
	if !h.decode(w, r, &req) {
		return
	}
	var head *leave.UserID
	if req.HeadUserID != nil {
		u := leave.UserID(*req.HeadUserID)
		head = &u
	}
	if err := h.Service.SetDepartmentHead(r.Context(), leave.DepartmentID(id), head, actor.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	b, err := h.Service.GetBalances(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(b))
}

func (h *Handler) DebitBalance(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.Service.Debit)
}

func (h *Handler) CreditBalance(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.Service.Credit)
}

type balanceOp func(ctx context.Context, id leave.EmployeeID, kind leave.BalanceKind, amount generic.Amount, actor leave.UserID) error

func (h *Handler) changeBalance(w http.ResponseWriter, r *http.Request, op balanceOp) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	var req BalanceChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := op(r.Context(), id, leave.BalanceKind(req.Kind), generic.Days(req.Amount), actor.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.GetBalances(w, r)
}

func (h *Handler) SetInitialBalance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	var req InitialBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	set, err := h.Service.SetInitialBalanceIfUnset(r.Context(), id, generic.Days(req.Value), actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"set": set})
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	types := h.Service.ListPolicies()
	if r.URL.Query().Get("format") == "yaml" {
		data, err := h.PolicyFactory.MarshalCatalog(types)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	dtos := make([]PolicyDTO, len(types))
	for i, t := range types {
		dtos[i] = toPolicyDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPolicy(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind generic.Kind) int {
	switch kind {
	case generic.KindNotFound:
		return http.StatusNotFound
	case generic.KindForbidden:
		return http.StatusForbidden
	case generic.KindInvalidTransition, generic.KindDuplicateAbsence:
		return http.StatusConflict
	case generic.KindInsufficientBalance, generic.KindQuotaExceeded:
		return http.StatusUnprocessableEntity
	case generic.KindValidation:
		return http.StatusBadRequest
	case generic.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := generic.KindOf(err)
	status := statusFor(kind)
	resp := ErrorResponse{Error: err.Error(), Kind: string(kind), Details: errorDetails(err)}

	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"kind":   kind,
		}).Error("request failed")
		resp.Error = http.StatusText(status)
		resp.Details = nil
	}
	writeJSON(w, status, resp)
}

// errorDetails exposes the structured fields of domain errors.
func errorDetails(err error) any {
	var (
		short *generic.InsufficientBalanceError
		quota *generic.QuotaError
		trans *generic.TransitionError
		valid *generic.ValidationError
		dup   *generic.DuplicateAbsenceError
	)
	switch {
	case errors.As(err, &short):
		return map[string]any{
			"employee_id": short.EmployeeID,
			"kind":        short.Kind,
			"available":   short.Available.Float64(),
			"requested":   short.Requested.Float64(),
			"shortfall":   short.Shortfall.Float64(),
		}
	case errors.As(err, &quota):
		return map[string]any{
			"quota":     quota.Quota,
			"type_code": quota.TypeCode,
			"limit":     quota.Limit.Float64(),
			"used":      quota.Used.Float64(),
			"requested": quota.Requested.Float64(),
		}
	case errors.As(err, &trans):
		return map[string]any{"request_id": trans.RequestID, "from": trans.From, "to": trans.To}
	case errors.As(err, &valid):
		if valid.Field != "" {
			return map[string]any{"field": valid.Field}
		}
	case errors.As(err, &dup):
		return map[string]any{"employee_id": dup.EmployeeID, "date": dup.Date.String()}
	}
	return nil
}

// decode reads a JSON body into dst and runs validator tags. It writes the
// error response itself and reports whether the caller may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, &generic.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.writeError(w, r, err)
			return false
		}
		fields := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			fields[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Message: fieldMessage(fe)}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   fields[0].Message,
			Kind:    string(generic.KindValidation),
			Details: fields,
		})
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	case "gt", "gte":
		return fmt.Sprintf("%s must be %s %s", fe.Field(), map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &generic.ValidationError{Field: field, Message: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}

func (h *Handler) employeeID(w http.ResponseWriter, r *http.Request) (leave.EmployeeID, bool) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return leave.EmployeeID(id), true
}

// =============================================================================
// ACTOR
// =============================================================================

const (
	HeaderActorID         = "X-Actor-ID"
	HeaderActorRole       = "X-Actor-Role"
	HeaderActorDepartment = "X-Actor-Department"
	HeaderActorEmployee   = "X-Actor-Employee"
)

// actorFrom reads the authenticated caller from request headers.
func actorFrom(r *http.Request) (leave.Actor, error) {
	raw := r.Header.Get(HeaderActorID)
	if raw == "" {
		return leave.Actor{}, &generic.ValidationError{Field: HeaderActorID, Message: "header is required"}
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uid < 0 {
		return leave.Actor{}, &generic.ValidationError{Field: HeaderActorID, Message: "must be a non-negative integer"}
	}
	actor := leave.Actor{UserID: leave.UserID(uid), Role: leave.RoleEmployee}

	if v := r.Header.Get(HeaderActorRole); v != "" {
		role, ok := leave.ParseRole(v)
		if !ok {
			return leave.Actor{}, &generic.ValidationError{Field: HeaderActorRole, Message: "must be manager, dept_head or employee"}
		}
		actor.Role = role
	}
	if v := r.Header.Get(HeaderActorDepartment); v != "" {
		id, err := parseID(HeaderActorDepartment, v)
		if err != nil {
			return leave.Actor{}, err
		}
		dep := leave.DepartmentID(id)
		actor.DepartmentID = &dep
	}
	if v := r.Header.Get(HeaderActorEmployee); v != "" {
		id, err := parseID(HeaderActorEmployee, v)
		if err != nil {
			return leave.Actor{}, err
		}
		emp := leave.EmployeeID(id)
		actor.EmployeeID = &emp
	}
	return actor, nil
}
