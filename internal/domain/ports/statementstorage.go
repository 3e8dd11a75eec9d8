package ports

import (
	"context"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

// StatementStorage is the physical storage of statements. Implementations
// exist per storage technology plus one composite that spreads statements
// across several of them.
//
// Ids are always assigned by the caller. Implementations never retry.
type StatementStorage interface {
	// StoreStatement persists a new active statement together with its
	// metadata as one unit.
	StoreStatement(ctx context.Context, st entities.Statement) error

	// CancelStatement sets the cancellation of an active statement.
	// It fails with entities.ErrStatementNotFound or
	// entities.ErrStatementAlreadyCancelled.
	CancelStatement(ctx context.Context, statementID, cancellationID entities.Tid, metadata entities.Metadata) error

	// RetrieveStatement returns one statement, cancelled or not.
	RetrieveStatement(ctx context.Context, statementID entities.Tid) (entities.Statement, error)

	// FindStatements returns every statement matching the query, ordered
	// by statement id.
	FindStatements(ctx context.Context, q entities.StatementQuery) ([]entities.Statement, error)

	// StoreBatch applies the commands in order as one atomic unit. Every
	// command already carries its ids. On failure nothing is left applied
	// and the error is an *entities.BatchError when a command is to blame.
	StoreBatch(ctx context.Context, cmds []entities.Command) error

	// RevertBatch undoes a batch previously applied by StoreBatch: created
	// statements are removed and cancellations are cleared.
	RevertBatch(ctx context.Context, cmds []entities.Command) error
}
