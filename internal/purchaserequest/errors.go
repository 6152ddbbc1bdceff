package purchaserequest

import (
	"errors"
	"fmt"
)

// Reason codes carried by DomainError.
const (
	CodeRequestNotFound      = "REQUEST_NOT_FOUND"
	CodeUserNotAuthenticated = "USER_NOT_AUTHENTICATED"
	CodeTerminalState        = "TERMINAL_STATE"
	CodeNoPendingStep        = "NO_PENDING_STEP"
	CodeNotAssignedApprover  = "NOT_ASSIGNED_APPROVER"

	CodeInvalidState    = "INVALID_STATE"
	CodeNotRequester    = "NOT_REQUESTER"
	CodeEmptyRequest    = "EMPTY_REQUEST"
	CodeReasonRequired  = "REASON_REQUIRED"
	CodeVersionMismatch = "VERSION_MISMATCH"
	CodeUnknownIntent   = "UNKNOWN_INTENT"
)

// DomainError explains why an action on a purchase request is denied.
// It is returned as data by eligibility checks and as an error by the
// aggregate's mutating operations.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewDomainError creates a DomainError with a formatted message.
func NewDomainError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *DomainError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorCode implements domain.CodedError.
func (e *DomainError) ErrorCode() string { return e.Code }

// AsDomainError extracts a DomainError from err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	de, ok := AsDomainError(err)
	return ok && de.Code == code
}

// Decision is the outcome of an entity-level rule check.
type Decision struct {
	Allowed bool
	Reason  *DomainError
}

// Allow returns a positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a negative decision carrying reason.
func Deny(code, format string, args ...any) Decision {
	return Decision{Reason: NewDomainError(code, format, args...)}
}

// Err returns the denial reason as an error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == nil {
		return NewDomainError(CodeInvalidState, "action denied")
	}
	return d.Reason
}
