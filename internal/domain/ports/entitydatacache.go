package ports

import (
	"context"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

// CacheInvalidator is what writers of the statement store need from the
// entity data cache.
type CacheInvalidator interface {
	// InvalidateData makes the next GetData for the entity miss.
	InvalidateData(ctx context.Context, id entities.Tid) error
}

// EntityDataCache stores aggregated entity data under a caller-controlled
// version tag (dataID) and an optional time to live.
type EntityDataCache interface {
	CacheInvalidator

	// GetData returns the cached data if an entry exists, has not expired and
	// was stored with the same dataID. Otherwise it returns
	// entities.ErrEntityNotInCache.
	GetData(ctx context.Context, id entities.Tid, dataID string) (entities.EntityData, error)

	// SetData stores or overwrites the entry. A ttl <= 0 never expires.
	SetData(ctx context.Context, id entities.Tid, data entities.EntityData, dataID string, ttl time.Duration) error

	// Clean removes expired entries and, when dataID is not empty, entries
	// stored with a different dataID.
	Clean(ctx context.Context, dataID string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error
}
