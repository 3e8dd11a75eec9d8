// Package memory provides an in-process entity data cache. Entries live as
// long as the process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache"
)

type entry struct {
	data      entities.EntityData
	dataID    string
	expiresAt time.Time
}

// Cache implements ports.EntityDataCache with a map.
type Cache struct {
	mu      sync.RWMutex
	entries map[entities.Tid]entry
	clock   ports.Clock
}

// NewCache creates an empty cache. A nil clock uses the system clock.
func NewCache(clock ports.Clock) *Cache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Cache{
		entries: make(map[entities.Tid]entry),
		clock:   clock,
	}
}

// GetData returns a copy of the cached data.
func (c *Cache) GetData(_ context.Context, id entities.Tid, dataID string) (entities.EntityData, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	switch {
	case !ok:
		return entities.EntityData{}, entitycache.Miss(id, "not cached")
	case entitycache.Expired(e.expiresAt, c.clock.Now()):
		return entities.EntityData{}, entitycache.Miss(id, "expired")
	case e.dataID != dataID:
		return entities.EntityData{}, entitycache.Miss(id, "cached with data id "+e.dataID)
	}
	return e.data.Clone(), nil
}

// SetData stores a copy of data.
func (c *Cache) SetData(_ context.Context, id entities.Tid, data entities.EntityData, dataID string, ttl time.Duration) error {
	e := entry{
		data:      data.Clone(),
		dataID:    dataID,
		expiresAt: entitycache.ExpiresAt(c.clock.Now(), ttl),
	}
	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
	return nil
}

// InvalidateData drops the entry of the entity.
func (c *Cache) InvalidateData(_ context.Context, id entities.Tid) error {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}

// Clean drops expired entries and, with a dataID, entries of other data ids.
func (c *Cache) Clean(_ context.Context, dataID string) error {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if entitycache.Expired(e.expiresAt, now) || (dataID != "" && e.dataID != dataID) {
			delete(c.entries, id)
		}
	}
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[entities.Tid]entry)
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
