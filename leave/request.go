package leave

import (
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// WORKFLOW STATE - One canonical state per request
// =============================================================================

// WorkflowState is the request's position in the two-stage approval sequence.
type WorkflowState string

const (
	StatePendingDept    WorkflowState = "pending_dept"
	StatePendingManager WorkflowState = "pending_manager"
	StateApproved       WorkflowState = "approved"
	StateRejected       WorkflowState = "rejected"
	StateCancelled      WorkflowState = "cancelled"
)

// transitions is the complete transition table. Terminal states have no
// outgoing edges. Auto-approved requests are inserted as approved and never
// pass through it.
var transitions = map[WorkflowState][]WorkflowState{
	StatePendingDept:    {StatePendingManager, StateRejected, StateCancelled},
	StatePendingManager: {StateApproved, StateRejected, StateCancelled},
	StateApproved:       nil,
	StateRejected:       nil,
	StateCancelled:      nil,
}

func (s WorkflowState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s WorkflowState) IsTerminal() bool {
	return s == StateApproved || s == StateRejected || s == StateCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s WorkflowState) CanTransitionTo(next WorkflowState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OpenStates are the non-terminal states.
var OpenStates = []WorkflowState{StatePendingDept, StatePendingManager}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveRequest struct {
	ID         RequestID
	EmployeeID EmployeeID
	TypeCode   string
	Subtype    string // e.g. birth type
	Relation   string // e.g. degree of relation for bereavement

	StartDate generic.Date
	EndDate   generic.Date
	Duration  generic.Amount

	Notes       string
	DocumentRef string

	State           WorkflowState
	RejectionReason string

	DeptActorID      *UserID
	DeptDecidedAt    *time.Time
	ManagerActorID   *UserID
	ManagerDecidedAt *time.Time

	CreatedAt time.Time
}

// counts reports whether the request still consumes quota.
func (r LeaveRequest) counts() bool {
	return r.State != StateRejected && r.State != StateCancelled
}

// transition moves r to next if the table allows it.
func (r *LeaveRequest) transition(next WorkflowState) error {
	if !r.State.CanTransitionTo(next) {
		return &generic.TransitionError{RequestID: int64(r.ID), From: string(r.State), To: string(next)}
	}
	r.State = next
	return nil
}

// RequestFilter narrows ListRequests. Zero-valued fields do not filter.
type RequestFilter struct {
	EmployeeID   *EmployeeID
	DepartmentID *DepartmentID
	TypeCode     string
	States       []WorkflowState
}

// =============================================================================
// INPUTS
// =============================================================================

// SubmitInput carries raw dates so malformed input is reported as a
// ValidationError by the core rather than by each transport.
type SubmitInput struct {
	EmployeeID  EmployeeID
	TypeCode    string
	StartDate   string
	EndDate     string
	HalfDay     bool
	Subtype     string
	Relation    string
	Notes       string
	DocumentRef string
	ActorID     UserID
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type DecideInput struct {
	RequestID RequestID
	Actor     Actor
	Decision  Decision
	Reason    string
}
