package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAggregateNotFound is returned when an aggregate doesn't exist.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrConcurrencyConflict is returned when there's an optimistic concurrency conflict.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate version mismatch")

	// ErrCommandAlreadyProcessed is returned when a command has already been processed.
	ErrCommandAlreadyProcessed = errors.New("command already processed")

	// ErrCommandNotFound is returned when a command handler is not registered.
	ErrCommandNotFound = errors.New("command handler not found")

	// ErrInvalidCommand is returned when a command is invalid.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrIdempotencyKeyConflict is returned when a command ID already
	// recorded for one command is sent with a different one.
	ErrIdempotencyKeyConflict = errors.New("idempotency key reused for a different command")
)

// ErrHandlerPanicked wraps a panic recovered from a command handler.
var ErrHandlerPanicked = errors.New("command handler panicked")

// CodeIdempotencyKeyConflict is the error code of IdempotencyConflictError.
const CodeIdempotencyKeyConflict = "IDEMPOTENCY_KEY_CONFLICT"

// IdempotencyConflictError reports a command ID that was recorded for another
// aggregate or command type.
type IdempotencyConflictError struct {
	CommandID           string
	RecordedAggregateID string
	RecordedCommandType string
	AggregateID         string
	CommandType         string
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("%s: command %s was recorded as %s on %s, got %s on %s",
		ErrIdempotencyKeyConflict, e.CommandID,
		e.RecordedCommandType, e.RecordedAggregateID,
		e.CommandType, e.AggregateID)
}

func (e *IdempotencyConflictError) ErrorCode() string { return CodeIdempotencyKeyConflict }
func (e *IdempotencyConflictError) Unwrap() error     { return ErrIdempotencyKeyConflict }

// CodedError is a business rule rejection carrying a stable code.
type CodedError interface {
	error
	ErrorCode() string
}

// ErrorCode returns the code of the first CodedError in err's chain, or "".
func ErrorCode(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}
