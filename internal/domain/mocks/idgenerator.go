package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

// IDGenerator is a mock implementation of ports.IDGenerator that hands out
// consecutive ids.
type IDGenerator struct {
	mu   sync.Mutex
	next entities.Tid
	Err  error
}

// NewIDGenerator creates a generator whose first id is start.
func NewIDGenerator(start entities.Tid) *IDGenerator {
	return &IDGenerator{next: start}
}

// GenerateUnique returns the next id.
func (g *IDGenerator) GenerateUnique(_ context.Context) (entities.Tid, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return 0, g.Err
	}
	id := g.next
	g.next++
	return id, nil
}

// Clock is a mock implementation of ports.Clock that only moves when told to.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
