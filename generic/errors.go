/*
errors.go - Centralized error kinds for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure a caller can see belongs to exactly one kind, and every kind
  is recoverable except Unavailable (the store itself failed).

ERROR CATEGORIES:
  1. Lookup errors     - NotFound
  2. Authorization     - Forbidden (workflow-stage eligibility, not authentication)
  3. Workflow errors   - InvalidTransition
  4. Business rules    - InsufficientBalance, QuotaExceeded, DuplicateAbsence
  5. Input errors      - Validation
  6. Store errors      - Unavailable

USAGE:
  Structured errors carry details and unwrap to a sentinel:

    var balErr *generic.InsufficientBalanceError
    if errors.As(err, &balErr) {
        fmt.Println(balErr.Shortfall)
    }
    if errors.Is(err, generic.ErrInsufficientBalance) { ... }

SEE ALSO:
  - leave/: returns these errors
  - store/sqlite: maps driver errors onto them
  - api/handlers.go: maps kinds onto HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned for an unknown (or inactive) employee, request,
	// absence, department or vacation type.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor's role or department does not
	// allow the attempted workflow step.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when the request is not in the state the
	// transition starts from.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInsufficientBalance is returned when a debit would make a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateAbsence is returned when an absence already exists for the
	// same employee and date.
	ErrDuplicateAbsence = errors.New("duplicate absence")

	// ErrQuotaExceeded is returned when a per-request, yearly or lifetime
	// quota would be exceeded.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrOverlap is a validation failure: the dates collide with another
	// open request of the same employee.
	ErrOverlap = fmt.Errorf("%w: overlapping leave request", ErrValidation)

	// ErrUnavailable is returned when the store fails. Callers must not assume
	// the operation succeeded.
	ErrUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "employee", "leave_request", "vacation_type", ...
	Key      any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ForbiddenError explains which eligibility rule the actor failed.
type ForbiddenError struct {
	Role   string
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden for role %q: %s", e.Role, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// TransitionError records the state a request was in and where the caller
// tried to move it.
type TransitionError struct {
	RequestID int64
	From      string
	To        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("leave request %d: cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID int64
	Kind       string // "regular" or "emergency"
	Available  Amount
	Requested  Amount
	Shortfall  Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %v, requested %v, shortfall %v",
		e.Kind, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// DuplicateAbsenceError identifies the (employee, date) pair already recorded.
type DuplicateAbsenceError struct {
	EmployeeID int64
	Date       Date
}

func (e *DuplicateAbsenceError) Error() string {
	return fmt.Sprintf("absence already recorded for employee %d on %s", e.EmployeeID, e.Date)
}

func (e *DuplicateAbsenceError) Unwrap() error { return ErrDuplicateAbsence }

// QuotaError names the violated quota.
type QuotaError struct {
	Quota     string // "max_days_per_request", "yearly_quota", "lifetime_quota"
	TypeCode  string
	Limit     Amount
	Used      Amount
	Requested Amount
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s exceeded for %s: limit %v, used %v, requested %v",
		e.Quota, e.TypeCode, e.Limit, e.Used, e.Requested)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// ValidationError provides details about a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnavailableError wraps a store failure. It matches ErrUnavailable and still
// exposes the driver error through errors.As / errors.Unwrap.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps err unless it is nil or already classified.
func Unavailable(op string, err error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind is a stable, transport-neutral error classification.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindInvalidTransition   Kind = "invalid_transition"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindDuplicateAbsence    Kind = "duplicate_absence"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindValidation          Kind = "validation"
	KindUnavailable         Kind = "unavailable"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrDuplicateAbsence, KindDuplicateAbsence},
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrValidation, KindValidation},
	{ErrUnavailable, KindUnavailable},
}

// KindOf classifies err. Unclassified non-nil errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsClientError returns true if the error is due to the caller's input or
// the current state of the data, i.e. retrying unchanged will fail again.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindForbidden, KindInvalidTransition, KindInsufficientBalance,
		KindDuplicateAbsence, KindQuotaExceeded, KindValidation:
		return true
	}
	return false
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
