package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

// StatementStorage is a mock implementation of ports.StatementStorage
// keeping statements in a map. Batches are atomic.
type StatementStorage struct {
	mu         sync.Mutex
	statements map[entities.Tid]entities.Statement

	// Err, when set, is returned by every call.
	Err error
	// FailOn, when set, is consulted before each command is applied and
	// makes the command fail with the returned error.
	FailOn func(cmd entities.Command) error

	Reverted [][]entities.Command
}

// NewStatementStorage creates an empty mock storage.
func NewStatementStorage() *StatementStorage {
	return &StatementStorage{statements: make(map[entities.Tid]entities.Statement)}
}

// Len returns the number of stored statements, cancelled ones included.
func (m *StatementStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statements)
}

// StoreStatement stores a new statement.
func (m *StatementStorage) StoreStatement(_ context.Context, st entities.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cmd := entities.MakeStatementCommand(st.Subject, st.Predicate, st.Object, st.Metadata)
	cmd.StatementID = st.ID
	return m.apply(m.statements, cmd)
}

// CancelStatement cancels a stored statement.
func (m *StatementStorage) CancelStatement(_ context.Context, statementID, cancellationID entities.Tid, metadata entities.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cmd := entities.CancelStatementCommand(statementID, metadata)
	cmd.CancellationID = cancellationID
	return m.apply(m.statements, cmd)
}

// RetrieveStatement returns one statement.
func (m *StatementStorage) RetrieveStatement(_ context.Context, statementID entities.Tid) (entities.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return entities.Statement{}, m.Err
	}
	st, ok := m.statements[statementID]
	if !ok {
		return entities.Statement{}, fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementNotFound)
	}
	return st.Clone(), nil
}

// FindStatements returns matching statements ordered by id.
func (m *StatementStorage) FindStatements(_ context.Context, q entities.StatementQuery) ([]entities.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []entities.Statement
	for _, st := range m.statements {
		if q.Matches(st) {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StoreBatch applies the commands to a copy and swaps it in on success.
func (m *StatementStorage) StoreBatch(_ context.Context, cmds []entities.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	next := make(map[entities.Tid]entities.Statement, len(m.statements)+len(cmds))
	for id, st := range m.statements {
		next[id] = st
	}
	for i, cmd := range cmds {
		if err := m.apply(next, cmd); err != nil {
			return &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
		}
	}
	m.statements = next
	return nil
}

// RevertBatch undoes an applied batch.
func (m *StatementStorage) RevertBatch(_ context.Context, cmds []entities.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Reverted = append(m.Reverted, cmds)
	for i := len(cmds) - 1; i >= 0; i-- {
		cmd := cmds[i]
		switch cmd.Op {
		case entities.OpMakeStatement:
			delete(m.statements, cmd.StatementID)
		case entities.OpCancelStatement:
			st, ok := m.statements[cmd.StatementID]
			if ok && st.CancellationID == cmd.CancellationID {
				st.CancellationID = 0
				st.CancellationMetadata = nil
				m.statements[cmd.StatementID] = st
			}
		}
	}
	return nil
}

func (m *StatementStorage) apply(into map[entities.Tid]entities.Statement, cmd entities.Command) error {
	if m.FailOn != nil {
		if err := m.FailOn(cmd); err != nil {
			return err
		}
	}
	switch cmd.Op {
	case entities.OpMakeStatement:
		into[cmd.StatementID] = cmd.Statement().Clone()
	case entities.OpCancelStatement:
		st, ok := into[cmd.StatementID]
		if !ok {
			return fmt.Errorf("statement %d: %w", cmd.StatementID, entities.ErrStatementNotFound)
		}
		if st.IsCancelled() {
			return fmt.Errorf("statement %d: %w", cmd.StatementID, entities.ErrStatementAlreadyCancelled)
		}
		st.CancellationID = cmd.CancellationID
		st.CancellationMetadata = cmd.Metadata.Clone()
		into[cmd.StatementID] = st
	default:
		return fmt.Errorf("unknown command %q", cmd.Op)
	}
	return nil
}
