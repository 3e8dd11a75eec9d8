package ports

import (
	"context"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

// IDGenerator issues ids that are never handed out twice.
type IDGenerator interface {
	GenerateUnique(ctx context.Context) (entities.Tid, error)
}

// Clock is the wall-clock source used for metadata timestamps and TTLs.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
