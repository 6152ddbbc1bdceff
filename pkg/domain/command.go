package domain

import "time"

// Command represents an intention to change the system state.
type Command interface {
	// ID returns the unique identifier for this command.
	// Clients provide it as an idempotency key.
	ID() string

	// AggregateID returns the ID of the aggregate this command targets.
	AggregateID() string

	// CommandType returns the type name used to route the command.
	CommandType() string
}

// CommandMetadata contains contextual information about a command.
type CommandMetadata struct {
	// CommandID is the unique identifier for this command (for idempotency)
	CommandID string

	// CorrelationID is used to trace related commands and events
	CorrelationID string

	// PrincipalID is the identifier of the principal executing this command
	PrincipalID string

	// TenantID is the identifier of the tenant this command belongs to
	TenantID string

	// Timestamp is when the command was created
	Timestamp time.Time

	// Custom allows for application-specific metadata
	Custom map[string]string
}

// CommandEnvelope wraps a command with its metadata.
type CommandEnvelope struct {
	Command  Command
	Metadata CommandMetadata
}

// NewCommandEnvelope wraps cmd, filling the command ID and timestamp from the command when missing.
func NewCommandEnvelope(cmd Command, metadata CommandMetadata) *CommandEnvelope {
	if metadata.CommandID == "" && cmd != nil {
		metadata.CommandID = cmd.ID()
	}
	if metadata.Timestamp.IsZero() {
		metadata.Timestamp = Now()
	}
	return &CommandEnvelope{Command: cmd, Metadata: metadata}
}

// CommandType returns the routing type of the wrapped command.
func (e *CommandEnvelope) CommandType() string {
	if e.Command == nil {
		return ""
	}
	return e.Command.CommandType()
}

// CommandResult represents the result of processing a command.
type CommandResult struct {
	// CommandID is the ID of the command that was processed
	CommandID string

	// AggregateID is the stream the command was recorded against
	AggregateID string

	// CommandType is the routing type of the recorded command
	CommandType string

	// Events are the events produced by the command
	Events []*Event

	// AlreadyProcessed indicates if this was a duplicate command
	AlreadyProcessed bool

	// ProcessedAt is when the command was originally processed
	ProcessedAt time.Time
}

// SameCommand returns an *IdempotencyConflictError unless the recorded
// command targeted aggregateID with commandType.
func (r *CommandResult) SameCommand(aggregateID, commandType string) error {
	if r.AggregateID == aggregateID && r.CommandType == commandType {
		return nil
	}
	return &IdempotencyConflictError{
		CommandID:           r.CommandID,
		RecordedAggregateID: r.AggregateID,
		RecordedCommandType: r.CommandType,
		AggregateID:         aggregateID,
		CommandType:         commandType,
	}
}
