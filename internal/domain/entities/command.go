package entities

import "fmt"

// CommandOp is the operation of a batch command.
type CommandOp string

const (
	OpMakeStatement   CommandOp = "make"
	OpCancelStatement CommandOp = "cancel"
)

// Command is one step of an atomic batch of statement creations and
// cancellations.
//
// Callers fill Subject/Predicate/Object/Metadata for OpMakeStatement and
// StatementID/Metadata for OpCancelStatement. The store assigns StatementID
// for new statements and CancellationID for cancellations before handing the
// batch to storage.
type Command struct {
	Op             CommandOp `json:"op"`
	StatementID    Tid       `json:"statement_id,omitempty"`
	CancellationID Tid       `json:"cancellation_id,omitempty"`
	Subject        Tid       `json:"subject,omitempty"`
	Predicate      Tid       `json:"predicate,omitempty"`
	Object         Object    `json:"object"`
	Metadata       Metadata  `json:"metadata,omitempty"`
}

// MakeStatementCommand returns a command that creates a statement.
func MakeStatementCommand(subject, predicate Tid, object Object, metadata Metadata) Command {
	return Command{
		Op:        OpMakeStatement,
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Metadata:  metadata,
	}
}

// CancelStatementCommand returns a command that cancels a statement.
func CancelStatementCommand(statementID Tid, metadata Metadata) Command {
	return Command{
		Op:          OpCancelStatement,
		StatementID: statementID,
		Metadata:    metadata,
	}
}

// Validate checks the caller-supplied fields of the command.
func (c Command) Validate() error {
	switch c.Op {
	case OpMakeStatement:
		return ValidateStatementParts(c.Subject, c.Predicate, c.Object, c.Metadata)
	case OpCancelStatement:
		if !c.StatementID.Valid() {
			return fmt.Errorf("%w: statement id %d", ErrInvalidStatement, c.StatementID)
		}
		if err := c.Metadata.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStatement, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidStatement, c.Op)
	}
}

// Statement returns the statement a make command creates. Only meaningful
// once the store has assigned StatementID.
func (c Command) Statement() Statement {
	return Statement{
		ID:        c.StatementID,
		Subject:   c.Subject,
		Predicate: c.Predicate,
		Object:    c.Object,
		Metadata:  c.Metadata,
	}
}
