package a

import (
	"errors"
	"io"
)

var ErrStatementNotFound = errors.New("statement not found")

var ErrCount = 3

func bad(err error) bool {
	if err == ErrStatementNotFound { // want "comparison with ErrStatementNotFound misses wrapped errors"
		return true
	}
	return ErrStatementNotFound != err // want "comparison with ErrStatementNotFound misses wrapped errors"
}

func good(err error, n int) bool {
	// errors.Is, nil checks and non-error values - should not flag
	if errors.Is(err, ErrStatementNotFound) || err == nil || n == ErrCount {
		return true
	}
	return err == io.EOF
}
