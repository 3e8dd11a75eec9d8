package datatable

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Storage implements ports.StatementStorage on a DataTable.
type Storage struct {
	table      ports.DataTable
	metaCols   []QualifierColumn
	cancelCols []QualifierColumn
	logger     *zap.Logger
}

// New creates a Storage. The table must have been created with Schema and
// the same columns.
func New(table ports.DataTable, columns []QualifierColumn, logger *zap.Logger) (*Storage, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{table: table, logger: logger}
	for _, c := range columns {
		if c.Cancellation {
			s.cancelCols = append(s.cancelCols, c)
		} else {
			s.metaCols = append(s.metaCols, c)
		}
	}
	return s, nil
}

// StoreStatement inserts one row.
func (s *Storage) StoreStatement(ctx context.Context, st entities.Statement) error {
	return s.storeStatement(ctx, s.table, st)
}

// CancelStatement sets the cancellation columns of an active statement.
func (s *Storage) CancelStatement(
	ctx context.Context,
	statementID, cancellationID entities.Tid,
	metadata entities.Metadata,
) error {
	return s.inTransaction(ctx, func(ctx context.Context, table ports.DataTable) error {
		return s.cancelStatement(ctx, table, statementID, cancellationID, metadata)
	})
}

// RetrieveStatement returns one statement.
func (s *Storage) RetrieveStatement(ctx context.Context, statementID entities.Tid) (entities.Statement, error) {
	row, err := s.findRow(ctx, s.table, statementID)
	if err != nil {
		return entities.Statement{}, err
	}
	return s.decodeRow(row)
}

// FindStatements returns matching statements ordered by statement id.
func (s *Storage) FindStatements(ctx context.Context, q entities.StatementQuery) ([]entities.Statement, error) {
	filter := ports.Row{}
	if q.Subject != 0 {
		filter[ColSubject] = int64(q.Subject)
	}
	if q.Predicate != 0 {
		filter[ColPredicate] = int64(q.Predicate)
	}
	if !q.Object.IsZero() {
		for k, v := range objectFilter(q.Object) {
			filter[k] = v
		}
	}
	if !q.IncludeCancelled {
		filter[ColCancellationID] = nil
	}

	rows, err := s.table.FindRows(ctx, filter, 0)
	if err != nil {
		return nil, fmt.Errorf("finding statements: %w", err)
	}
	out := make([]entities.Statement, 0, len(rows))
	for _, row := range rows {
		st, err := s.decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StoreBatch applies the commands in one table transaction. Tables without
// transactions get the already applied commands undone on failure.
func (s *Storage) StoreBatch(ctx context.Context, cmds []entities.Command) error {
	if !s.table.SupportsTransactions() {
		for i, cmd := range cmds {
			if err := s.apply(ctx, s.table, cmd); err != nil {
				if rvErr := s.RevertBatch(ctx, cmds[:i]); rvErr != nil {
					s.logger.Error("reverting partial batch failed", zap.Int("applied", i), zap.Error(rvErr))
					err = errors.Join(err, rvErr)
				}
				return &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
			}
		}
		return nil
	}

	return s.table.RunInTransaction(ctx, func(ctx context.Context, tx ports.DataTable) error {
		for i, cmd := range cmds {
			if err := s.apply(ctx, tx, cmd); err != nil {
				return &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
			}
		}
		return nil
	})
}

// RevertBatch undoes the commands in reverse order. Rows that are already
// gone, or cancellations that were replaced, are left alone.
func (s *Storage) RevertBatch(ctx context.Context, cmds []entities.Command) error {
	return s.inTransaction(ctx, func(ctx context.Context, table ports.DataTable) error {
		for i := len(cmds) - 1; i >= 0; i-- {
			cmd := cmds[i]
			row, err := s.findRow(ctx, table, cmd.StatementID)
			if errors.Is(err, entities.ErrStatementNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			id := row.Int64(ports.RowIDColumn)

			switch cmd.Op {
			case entities.OpMakeStatement:
				if err := table.DeleteRow(ctx, id); err != nil {
					return fmt.Errorf("reverting statement %d: %w", cmd.StatementID, err)
				}
			case entities.OpCancelStatement:
				if entities.Tid(row.Int64(ColCancellationID)) != cmd.CancellationID {
					continue
				}
				values := ports.Row{ColCancellationID: nil, ColExtraCancellationMetadata: nil}
				for _, c := range s.cancelCols {
					values[c.Column] = nil
				}
				if err := table.UpdateRow(ctx, id, values); err != nil {
					return fmt.Errorf("reverting cancellation of %d: %w", cmd.StatementID, err)
				}
			}
		}
		return nil
	})
}

func (s *Storage) apply(ctx context.Context, table ports.DataTable, cmd entities.Command) error {
	switch cmd.Op {
	case entities.OpMakeStatement:
		return s.storeStatement(ctx, table, cmd.Statement())
	case entities.OpCancelStatement:
		return s.cancelStatement(ctx, table, cmd.StatementID, cmd.CancellationID, cmd.Metadata)
	default:
		return fmt.Errorf("%w: unknown command %q", entities.ErrInvalidStatement, cmd.Op)
	}
}

func (s *Storage) storeStatement(ctx context.Context, table ports.DataTable, st entities.Statement) error {
	row, extra, err := encodeMetadata(st.Metadata, s.metaCols)
	if err != nil {
		return err
	}
	row[ColStatementID] = int64(st.ID)
	row[ColSubject] = int64(st.Subject)
	row[ColPredicate] = int64(st.Predicate)
	encodeObject(row, st.Object)
	row[ColExtraMetadata] = extra
	row[ColCancellationID] = nil

	if _, err := table.CreateRow(ctx, row); err != nil {
		return fmt.Errorf("inserting statement %d: %w", st.ID, err)
	}
	return nil
}

func (s *Storage) cancelStatement(
	ctx context.Context,
	table ports.DataTable,
	statementID, cancellationID entities.Tid,
	metadata entities.Metadata,
) error {
	row, err := s.findRow(ctx, table, statementID)
	if err != nil {
		return err
	}
	if !row.IsNull(ColCancellationID) {
		return fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementAlreadyCancelled)
	}

	values, extra, err := encodeMetadata(metadata, s.cancelCols)
	if err != nil {
		return err
	}
	values[ColCancellationID] = int64(cancellationID)
	values[ColExtraCancellationMetadata] = extra

	if err := table.UpdateRow(ctx, row.Int64(ports.RowIDColumn), values); err != nil {
		return fmt.Errorf("cancelling statement %d: %w", statementID, err)
	}
	return nil
}

func (s *Storage) findRow(ctx context.Context, table ports.DataTable, statementID entities.Tid) (ports.Row, error) {
	rows, err := table.FindRows(ctx, ports.Row{ColStatementID: int64(statementID)}, 1)
	if err != nil {
		return nil, fmt.Errorf("finding statement %d: %w", statementID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementNotFound)
	}
	return rows[0], nil
}

func (s *Storage) decodeRow(row ports.Row) (entities.Statement, error) {
	obj, err := decodeObject(row)
	if err != nil {
		return entities.Statement{}, err
	}
	md, err := decodeMetadata(row, ColExtraMetadata, s.metaCols)
	if err != nil {
		return entities.Statement{}, err
	}
	st := entities.Statement{
		ID:        entities.Tid(row.Int64(ColStatementID)),
		Subject:   entities.Tid(row.Int64(ColSubject)),
		Predicate: entities.Tid(row.Int64(ColPredicate)),
		Object:    obj,
		Metadata:  md,
	}
	if !row.IsNull(ColCancellationID) {
		st.CancellationID = entities.Tid(row.Int64(ColCancellationID))
		st.CancellationMetadata, err = decodeMetadata(row, ColExtraCancellationMetadata, s.cancelCols)
		if err != nil {
			return entities.Statement{}, err
		}
	}
	return st, nil
}

func (s *Storage) inTransaction(ctx context.Context, fn func(ctx context.Context, table ports.DataTable) error) error {
	if !s.table.SupportsTransactions() {
		return fn(ctx, s.table)
	}
	return s.table.RunInTransaction(ctx, fn)
}
