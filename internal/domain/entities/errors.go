package entities

import (
	"errors"
	"fmt"
)

// Store and cache errors. Callers test for them with errors.Is.
var (
	ErrInvalidStatement          = errors.New("invalid statement")
	ErrStatementNotFound         = errors.New("statement not found")
	ErrStatementAlreadyCancelled = errors.New("statement already cancelled")
	ErrBackendFailure            = errors.New("backend failure")
	ErrEntityNotInCache          = errors.New("entity not in cache")
	ErrEntityNotFound            = errors.New("entity does not exist")
	ErrInvalidEntity             = errors.New("invalid entity operation")
)

// BatchError reports which command of a batch made the whole batch fail.
type BatchError struct {
	Index int
	Op    CommandOp
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s command %d: %v", e.Op, e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// BackendError wraps err as a backend failure unless it already carries one
// of the domain errors.
func BackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendFailure) ||
		errors.Is(err, ErrStatementNotFound) ||
		errors.Is(err, ErrStatementAlreadyCancelled) ||
		errors.Is(err, ErrInvalidStatement) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendFailure, op, err)
}
