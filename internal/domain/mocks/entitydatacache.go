package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

type cacheEntry struct {
	data   entities.EntityData
	dataID string
}

// EntityDataCache is a mock implementation of ports.EntityDataCache. It
// ignores TTLs and records every invalidation.
type EntityDataCache struct {
	mu      sync.Mutex
	entries map[entities.Tid]cacheEntry

	// Err, when set, is returned by every call.
	Err error

	Invalidated []entities.Tid
	Gets        int
	Sets        int
}

// NewEntityDataCache creates an empty mock cache.
func NewEntityDataCache() *EntityDataCache {
	return &EntityDataCache{entries: make(map[entities.Tid]cacheEntry)}
}

// GetData returns the entry stored under id and dataID.
func (m *EntityDataCache) GetData(_ context.Context, id entities.Tid, dataID string) (entities.EntityData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.Err != nil {
		return entities.EntityData{}, m.Err
	}
	e, ok := m.entries[id]
	if !ok || e.dataID != dataID {
		return entities.EntityData{}, entities.ErrEntityNotInCache
	}
	return e.data.Clone(), nil
}

// SetData stores an entry.
func (m *EntityDataCache) SetData(_ context.Context, id entities.Tid, data entities.EntityData, dataID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.Err != nil {
		return m.Err
	}
	m.entries[id] = cacheEntry{data: data.Clone(), dataID: dataID}
	return nil
}

// InvalidateData drops the entry and records the id.
func (m *EntityDataCache) InvalidateData(_ context.Context, id entities.Tid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, id)
	if m.Err != nil {
		return m.Err
	}
	delete(m.entries, id)
	return nil
}

// Clean drops entries stored with a different dataID.
func (m *EntityDataCache) Clean(_ context.Context, dataID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for id, e := range m.entries {
		if dataID != "" && e.dataID != dataID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Clear drops every entry.
func (m *EntityDataCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = make(map[entities.Tid]cacheEntry)
	return nil
}

// InvalidatedIDs returns a copy of the recorded invalidations.
func (m *EntityDataCache) InvalidatedIDs() []entities.Tid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Tid(nil), m.Invalidated...)
}
