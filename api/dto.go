/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication and keeps the domain
  types (decimal amounts, typed ids, calendar dates) out of the wire format.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, date layout, enums). Business rules stay in the leave package;
  a request that passes these tags can still fail there.

AMOUNTS:
  Day counts are JSON numbers (2.5, 3.75). They are converted to
  decimal-backed generic.Amount on the way in.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES & DEPARTMENTS
// =============================================================================

type EmployeeDTO struct {
	ID                    int64    `json:"id"`
	SerialNumber          string   `json:"serial_number,omitempty"`
	Name                  string   `json:"name"`
	NationalID            string   `json:"national_id"`
	DepartmentID          *int64   `json:"department_id,omitempty"`
	JobGrade              string   `json:"job_grade,omitempty"`
	HireDate              string   `json:"hire_date,omitempty"`
	RegularBalance        float64  `json:"regular_balance"`
	InitialRegularBalance *float64 `json:"initial_regular_balance,omitempty"`
	EmergencyBalance      float64  `json:"emergency_balance"`
	Status                string   `json:"status"`
}

type CreateEmployeeRequest struct {
	Name             string   `json:"name" validate:"required,max=200"`
	NationalID       string   `json:"national_id" validate:"required,len=12,numeric"`
	SerialNumber     string   `json:"serial_number" validate:"omitempty,max=50"`
	DepartmentID     *int64   `json:"department_id" validate:"omitempty,gt=0"`
	Department       string   `json:"department" validate:"omitempty,max=200"`
	JobGrade         string   `json:"job_grade" validate:"omitempty,max=50"`
	HireDate         string   `json:"hire_date" validate:"omitempty,datetime=2006-01-02"`
	RegularBalance   *float64 `json:"regular_balance" validate:"omitempty,gte=0"`
	EmergencyBalance *float64 `json:"emergency_balance" validate:"omitempty,gte=0"`
}

type UpdateEmployeeRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=200"`
	SerialNumber *string `json:"serial_number" validate:"omitempty,max=50"`
	DepartmentID *int64  `json:"department_id" validate:"omitempty,gt=0"`
	JobGrade     *string `json:"job_grade" validate:"omitempty,max=50"`
	HireDate     *string `json:"hire_date" validate:"omitempty,datetime=2006-01-02"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

type DepartmentDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadUserID *int64 `json:"head_user_id,omitempty"`
}

type CreateDepartmentRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type SetDepartmentHeadRequest struct {
	HeadUserID *int64 `json:"head_user_id" validate:"omitempty,gte=0"`
}

// =============================================================================
// BALANCES
// =============================================================================

type BalancesDTO struct {
	EmployeeID int64    `json:"employee_id"`
	Regular    float64  `json:"regular"`
	Emergency  float64  `json:"emergency"`
	Initial    *float64 `json:"initial_regular,omitempty"`
}

type BalanceChangeRequest struct {
	Kind   string  `json:"kind" validate:"required,oneof=regular emergency"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type InitialBalanceRequest struct {
	Value float64 `json:"value" validate:"gte=0"`
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type SubmitLeaveRequestDTO struct {
	TypeCode    string `json:"type_code" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	HalfDay     bool   `json:"half_day"`
	Subtype     string `json:"subtype" validate:"omitempty,max=100"`
	Relation    string `json:"relation" validate:"omitempty,max=100"`
	Notes       string `json:"notes" validate:"omitempty,max=2000"`
	DocumentRef string `json:"document_ref" validate:"omitempty,max=500"`
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"required_if=Decision reject,max=2000"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type LeaveRequestDTO struct {
	ID               int64      `json:"id"`
	EmployeeID       int64      `json:"employee_id"`
	TypeCode         string     `json:"type_code"`
	Subtype          string     `json:"subtype,omitempty"`
	Relation         string     `json:"relation,omitempty"`
	StartDate        string     `json:"start_date"`
	EndDate          string     `json:"end_date"`
	Duration         float64    `json:"duration"`
	Notes            string     `json:"notes,omitempty"`
	DocumentRef      string     `json:"document_ref,omitempty"`
	State            string     `json:"state"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
	DeptActorID      *int64     `json:"dept_actor_id,omitempty"`
	DeptDecidedAt    *time.Time `json:"dept_decided_at,omitempty"`
	ManagerActorID   *int64     `json:"manager_actor_id,omitempty"`
	ManagerDecidedAt *time.Time `json:"manager_decided_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

// =============================================================================
// ABSENCES
// =============================================================================

type RecordAbsenceRequest struct {
	Date     string   `json:"date" validate:"required,datetime=2006-01-02"`
	Type     string   `json:"type" validate:"required,max=100"`
	Duration *float64 `json:"duration" validate:"omitempty,gt=0"`
	Notes    string   `json:"notes" validate:"omitempty,max=2000"`
}

type AbsenceDTO struct {
	ID         int64   `json:"id"`
	EmployeeID int64   `json:"employee_id"`
	Date       string  `json:"date"`
	Type       string  `json:"type"`
	Duration   float64 `json:"duration"`
	Notes      string  `json:"notes,omitempty"`
}

// =============================================================================
// POLICIES
// =============================================================================

type PolicyDTO struct {
	Code                  string `json:"code"`
	Label                 string `json:"label"`
	DeductsRegularBalance bool   `json:"deducts_regular_balance"`
	UsesEmergencyBalance  bool   `json:"uses_emergency_balance"`
	FixedDuration         *int   `json:"fixed_duration,omitempty"`
	MaxDaysPerRequest     *int   `json:"max_days_per_request,omitempty"`
	YearlyQuota           *int   `json:"yearly_quota,omitempty"`
	LifetimeQuota         *int   `json:"lifetime_quota,omitempty"`
	RequiresDocumentation bool   `json:"requires_documentation"`
	AllowsOverlap         bool   `json:"allows_overlap"`
	AutoApprove           bool   `json:"auto_approve"`
	Active                bool   `json:"active"`
}

// =============================================================================
// MAINTENANCE & AUDIT
// =============================================================================

type RunRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type AccrualResultDTO struct {
	Year             int     `json:"year"`
	Month            int     `json:"month"`
	AlreadyProcessed bool    `json:"already_processed"`
	Credited         int     `json:"credited"`
	Skipped          []int64 `json:"skipped"`
	Total            float64 `json:"total"`
}

type ResetResultDTO struct {
	Year             int   `json:"year"`
	AlreadyProcessed bool  `json:"already_processed"`
	Reset            int64 `json:"reset"`
}

type AuditEntryDTO struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	Table     string         `json:"table"`
	RecordID  int64          `json:"record_id"`
	Changes   map[string]any `json:"changes,omitempty"`
	UserID    int64          `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"` // "workflow", "maintenance" or "absences"
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// FieldError is one failed validator tag.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:               int64(e.ID),
		SerialNumber:     e.SerialNumber,
		Name:             e.Name,
		NationalID:       e.NationalID,
		JobGrade:         e.JobGrade,
		HireDate:         e.HireDate,
		RegularBalance:   e.RegularBalance.Float64(),
		EmergencyBalance: e.EmergencyBalance.Float64(),
		Status:           string(e.Status),
	}
	if e.DepartmentID != nil {
		id := int64(*e.DepartmentID)
		dto.DepartmentID = &id
	}
	dto.InitialRegularBalance = amountPtr(e.InitialRegularBalance)
	return dto
}

func toDepartmentDTO(d leave.Department) DepartmentDTO {
	dto := DepartmentDTO{ID: int64(d.ID), Name: d.Name}
	if d.HeadUserID != nil {
		id := int64(*d.HeadUserID)
		dto.HeadUserID = &id
	}
	return dto
}

func toBalancesDTO(b leave.Balances) BalancesDTO {
	return BalancesDTO{
		EmployeeID: int64(b.EmployeeID),
		Regular:    b.Regular.Float64(),
		Emergency:  b.Emergency.Float64(),
		Initial:    amountPtr(b.Initial),
	}
}

func toLeaveRequestDTO(r leave.LeaveRequest) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:               int64(r.ID),
		EmployeeID:       int64(r.EmployeeID),
		TypeCode:         r.TypeCode,
		Subtype:          r.Subtype,
		Relation:         r.Relation,
		StartDate:        r.StartDate.String(),
		EndDate:          r.EndDate.String(),
		Duration:         r.Duration.Float64(),
		Notes:            r.Notes,
		DocumentRef:      r.DocumentRef,
		State:            string(r.State),
		RejectionReason:  r.RejectionReason,
		DeptActorID:      userIDPtr(r.DeptActorID),
		DeptDecidedAt:    r.DeptDecidedAt,
		ManagerActorID:   userIDPtr(r.ManagerActorID),
		ManagerDecidedAt: r.ManagerDecidedAt,
		CreatedAt:        r.CreatedAt,
	}
}

func toAbsenceDTO(a leave.Absence) AbsenceDTO {
	return AbsenceDTO{
		ID:         int64(a.ID),
		EmployeeID: int64(a.EmployeeID),
		Date:       a.Date.String(),
		Type:       a.Type,
		Duration:   a.Duration.Float64(),
		Notes:      a.Notes,
	}
}

func toPolicyDTO(p leave.VacationType) PolicyDTO {
	return PolicyDTO{
		Code:                  p.Code,
		Label:                 p.Label,
		DeductsRegularBalance: p.DeductsRegularBalance,
		UsesEmergencyBalance:  p.UsesEmergencyBalance,
		FixedDuration:         p.FixedDuration,
		MaxDaysPerRequest:     p.MaxDaysPerRequest,
		YearlyQuota:           p.YearlyQuota,
		LifetimeQuota:         p.LifetimeQuota,
		RequiresDocumentation: p.RequiresDocumentation,
		AllowsOverlap:         p.AllowsOverlap,
		AutoApprove:           p.AutoApprove,
		Active:                p.Active,
	}
}

func toAccrualResultDTO(r leave.AccrualResult) AccrualResultDTO {
	skipped := make([]int64, len(r.Skipped))
	for i, id := range r.Skipped {
		skipped[i] = int64(id)
	}
	return AccrualResultDTO{
		Year:             r.Year,
		Month:            int(r.Month),
		AlreadyProcessed: r.AlreadyProcessed,
		Credited:         r.Credited,
		Skipped:          skipped,
		Total:            r.Total.Float64(),
	}
}

func toResetResultDTO(r leave.ResetResult) ResetResultDTO {
	return ResetResultDTO{Year: r.Year, AlreadyProcessed: r.AlreadyProcessed, Reset: r.Reset}
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Action:    string(e.Action),
		Table:     e.Table,
		RecordID:  e.RecordID,
		Changes:   e.Changes,
		UserID:    e.UserID,
		CreatedAt: e.CreatedAt,
	}
}

func amountPtr(a *generic.Amount) *float64 {
	if a == nil {
		return nil
	}
	f := a.Float64()
	return &f
}

func userIDPtr(u *leave.UserID) *int64 {
	if u == nil {
		return nil
	}
	id := int64(*u)
	return &id
}
