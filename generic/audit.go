package generic

import "time"

// =============================================================================
// AUDIT LOG - Separate from state, tracks who did what when
// =============================================================================

// AuditEntry records one mutating operation. Entries are append-only: the
// store has no update or delete for them.
type AuditEntry struct {
	ID        int64
	Action    AuditAction
	Table     string         // affected table, e.g. "leave_requests"
	RecordID  int64          // affected row id (0 for run-level entries)
	Changes   map[string]any // before/after or action-specific payload
	UserID    int64          // acting user, 0 = system
	CreatedAt time.Time
}

type AuditAction string

const (
	AuditRequestSubmitted    AuditAction = "request_submitted"
	AuditRequestDeptApproved AuditAction = "request_dept_approved"
	AuditRequestDeptRejected AuditAction = "request_dept_rejected"
	AuditRequestApproved     AuditAction = "request_approved"
	AuditRequestRejected     AuditAction = "request_rejected"
	AuditRequestCancelled    AuditAction = "request_cancelled"
	AuditBalanceDebit        AuditAction = "balance_debit"
	AuditBalanceCredit       AuditAction = "balance_credit"
	AuditInitialBalanceSet   AuditAction = "initial_balance_set"
	AuditMonthlyAccrual      AuditAction = "monthly_accrual"
	AuditEmergencyReset      AuditAction = "emergency_reset"
	AuditAbsenceRecorded     AuditAction = "absence_recorded"
	AuditAbsenceDeleted      AuditAction = "absence_deleted"
	AuditEmployeeCreated     AuditAction = "employee_created"
	AuditEmployeeUpdated     AuditAction = "employee_updated"
	AuditEmployeeStatus      AuditAction = "employee_status_changed"
	AuditDepartmentCreated   AuditAction = "department_created"
	AuditDepartmentHeadSet   AuditAction = "department_head_set"
	AuditEmployeesImported   AuditAction = "employees_imported"
	AuditVacationTypesSeeded AuditAction = "vacation_types_seeded"
	AuditStoreReset          AuditAction = "store_reset"
)

// AuditFilter narrows an audit query. Nil fields do not filter.
type AuditFilter struct {
	Table    string
	RecordID *int64
	UserID   *int64
	Actions  []AuditAction
	Limit    int
}
