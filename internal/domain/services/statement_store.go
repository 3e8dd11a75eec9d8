package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// StatementStore is the entity-statement store: it issues ids, validates
// statements, hands them to storage and invalidates the entity data cache
// for every entity a write touches.
type StatementStore struct {
	storage     ports.StatementStorage
	ids         ports.IDGenerator
	invalidator ports.CacheInvalidator
	logger      *zap.Logger
}

// NewStatementStore creates a new StatementStore. The invalidator may be nil
// when no cache is in use.
func NewStatementStore(
	storage ports.StatementStorage,
	ids ports.IDGenerator,
	invalidator ports.CacheInvalidator,
	logger *zap.Logger,
) *StatementStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementStore{
		storage:     storage,
		ids:         ids,
		invalidator: invalidator,
		logger:      logger,
	}
}

// GenerateUniqueEntityID returns an id that has never been issued before.
func (s *StatementStore) GenerateUniqueEntityID(ctx context.Context) (entities.Tid, error) {
	id, err := s.ids.GenerateUnique(ctx)
	if err != nil {
		return 0, entities.BackendError("generating id", err)
	}
	return id, nil
}

// MakeStatement creates an active statement without metadata.
func (s *StatementStore) MakeStatement(
	ctx context.Context,
	subject, predicate entities.Tid,
	object entities.Object,
) (entities.Tid, error) {
	return s.MakeStatementWithMetadata(ctx, subject, predicate, object, nil)
}

// MakeStatementWithMetadata creates an active statement and stores its
// metadata in the same write.
func (s *StatementStore) MakeStatementWithMetadata(
	ctx context.Context,
	subject, predicate entities.Tid,
	object entities.Object,
	metadata entities.Metadata,
) (entities.Tid, error) {
	if err := entities.ValidateStatementParts(subject, predicate, object, metadata); err != nil {
		return 0, err
	}

	id, err := s.GenerateUniqueEntityID(ctx)
	if err != nil {
		return 0, err
	}

	st := entities.Statement{
		ID:        id,
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Metadata:  metadata.Clone(),
	}
	if err := s.storage.StoreStatement(ctx, st); err != nil {
		return 0, entities.BackendError("storing statement", err)
	}

	s.invalidate(ctx, affectedEntities(st))
	s.logger.Debug("statement created",
		zap.Int64("statement_id", int64(id)),
		zap.Int64("subject", int64(subject)),
		zap.Int64("predicate", int64(predicate)))
	return id, nil
}

// CancelStatement cancels an active statement and returns the id of the
// cancellation.
func (s *StatementStore) CancelStatement(
	ctx context.Context,
	statementID entities.Tid,
	metadata entities.Metadata,
) (entities.Tid, error) {
	cmd := entities.CancelStatementCommand(statementID, metadata)
	if err := cmd.Validate(); err != nil {
		return 0, err
	}

	st, err := s.GetStatement(ctx, statementID)
	if err != nil {
		return 0, err
	}
	if st.IsCancelled() {
		return 0, fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementAlreadyCancelled)
	}

	cancellationID, err := s.GenerateUniqueEntityID(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.storage.CancelStatement(ctx, statementID, cancellationID, metadata.Clone()); err != nil {
		return 0, entities.BackendError("cancelling statement", err)
	}

	s.invalidate(ctx, affectedEntities(st))
	s.logger.Debug("statement cancelled",
		zap.Int64("statement_id", int64(statementID)),
		zap.Int64("cancellation_id", int64(cancellationID)))
	return cancellationID, nil
}

// MakeMultipleStatementsAndCancellations runs the commands as one atomic
// batch. The result holds, per command, the new statement id or the
// cancellation id. On failure nothing is applied and the error is an
// *entities.BatchError naming the failing command.
func (s *StatementStore) MakeMultipleStatementsAndCancellations(
	ctx context.Context,
	cmds []entities.Command,
) ([]entities.Tid, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	batch := make([]entities.Command, len(cmds))
	for i, cmd := range cmds {
		if err := cmd.Validate(); err != nil {
			return nil, &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
		}
		cmd.Metadata = cmd.Metadata.Clone()
		batch[i] = cmd
	}

	affected, err := s.prepareBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	if err := s.storage.StoreBatch(ctx, batch); err != nil {
		return nil, entities.BackendError("storing batch", err)
	}

	s.invalidate(ctx, affected)

	results := make([]entities.Tid, len(batch))
	for i, cmd := range batch {
		if cmd.Op == entities.OpMakeStatement {
			results[i] = cmd.StatementID
		} else {
			results[i] = cmd.CancellationID
		}
	}
	s.logger.Debug("batch applied", zap.Int("commands", len(batch)))
	return results, nil
}

// prepareBatch assigns ids to every command and collects the entities the
// batch touches. Cancellations of statements that do not exist, or that are
// already cancelled, fail here before anything is written.
func (s *StatementStore) prepareBatch(ctx context.Context, batch []entities.Command) ([]entities.Tid, error) {
	var affected []entities.Tid
	made := make(map[entities.Tid]entities.Statement)
	cancelled := make(map[entities.Tid]bool)

	for i := range batch {
		cmd := &batch[i]
		id, err := s.GenerateUniqueEntityID(ctx)
		if err != nil {
			return nil, err
		}

		switch cmd.Op {
		case entities.OpMakeStatement:
			cmd.StatementID = id
			st := cmd.Statement()
			made[id] = st
			affected = append(affected, affectedEntities(st)...)
		case entities.OpCancelStatement:
			cmd.CancellationID = id
			st, ok := made[cmd.StatementID]
			if !ok {
				st, err = s.GetStatement(ctx, cmd.StatementID)
				if err != nil {
					return nil, &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
				}
			}
			if st.IsCancelled() || cancelled[cmd.StatementID] {
				return nil, &entities.BatchError{Index: i, Op: cmd.Op, Err: entities.ErrStatementAlreadyCancelled}
			}
			cancelled[cmd.StatementID] = true
			affected = append(affected, affectedEntities(st)...)
		}
	}
	return affected, nil
}

// GetStatements returns the statements matching the query ordered by
// statement id, which is creation order.
func (s *StatementStore) GetStatements(ctx context.Context, q entities.StatementQuery) ([]entities.Statement, error) {
	if !q.Object.IsZero() {
		if err := q.Object.Validate(); err != nil {
			return nil, fmt.Errorf("%w: query object: %w", entities.ErrInvalidStatement, err)
		}
	}
	sts, err := s.storage.FindStatements(ctx, q)
	if err != nil {
		return nil, entities.BackendError("finding statements", err)
	}
	return sts, nil
}

// GetStatement returns one statement, cancelled or not.
func (s *StatementStore) GetStatement(ctx context.Context, statementID entities.Tid) (entities.Statement, error) {
	if !statementID.Valid() {
		return entities.Statement{}, fmt.Errorf("%w: statement id %d", entities.ErrInvalidStatement, statementID)
	}
	st, err := s.storage.RetrieveStatement(ctx, statementID)
	if err != nil {
		return entities.Statement{}, entities.BackendError("retrieving statement", err)
	}
	return st, nil
}

// invalidate drops the cache entries of the given entities. The write has
// already been committed at this point, so failures are logged only.
func (s *StatementStore) invalidate(ctx context.Context, ids []entities.Tid) {
	if s.invalidator == nil {
		return
	}
	seen := make(map[entities.Tid]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := s.invalidator.InvalidateData(ctx, id); err != nil && !errors.Is(err, entities.ErrEntityNotInCache) {
			s.logger.Warn("cache invalidation failed",
				zap.Int64("entity", int64(id)),
				zap.Error(err))
		}
	}
}

func affectedEntities(st entities.Statement) []entities.Tid {
	if obj, ok := st.Object.Entity(); ok {
		return []entities.Tid{st.Subject, obj}
	}
	return []entities.Tid{st.Subject}
}
