package idgen

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/mocks"
)

var start = time.Date(2025, 1, 3, 21, 53, 3, 0, time.UTC)

func TestGenerator_StoppedClock(t *testing.T) {
	clock := mocks.NewClock(start)
	g := New("", clock, nil)
	ctx := context.Background()

	first, err := g.GenerateUnique(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.TidFromTime(start), first)

	prev := first
	for i := 0; i < 100; i++ {
		id, err := g.GenerateUnique(ctx)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}

	clock.Advance(time.Hour)
	id, err := g.GenerateUnique(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.TidFromTime(start.Add(time.Hour)), id, "ids follow the clock once it catches up")
}

func TestGenerator_LockFilePersistsLastID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tid.lock")
	ctx := context.Background()

	g1 := New(path, mocks.NewClock(start.Add(time.Minute)), nil)
	id1, err := g1.GenerateUnique(ctx)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, id1.String(), string(data))

	// A second process whose clock is behind continues after the stored id.
	g2 := New(path, mocks.NewClock(start), nil)
	id2, err := g2.GenerateUnique(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1+1, id2)
}

func TestGenerator_SharedLockFileNeverRepeats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tid.lock")
	clock := mocks.NewClock(start)
	gens := []*Generator{New(path, clock, nil), New(path, clock, nil), New(path, clock, nil)}
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[entities.Tid]bool)
		wg   sync.WaitGroup
	)
	for _, g := range gens {
		wg.Add(1)
		go func(g *Generator) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := g.GenerateUnique(ctx)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, seen, 300)
}

func TestGenerator_Errors(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New("", nil, nil).GenerateUnique(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("corrupt lock file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tid.lock")
		require.NoError(t, os.WriteFile(path, []byte("not a number"), 0o644))
		_, err := New(path, nil, nil).GenerateUnique(context.Background())
		assert.ErrorIs(t, err, entities.ErrInvalidTid)
	})

	t.Run("unwritable location", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "tid.lock")
		_, err := New(path, nil, nil).GenerateUnique(context.Background())
		assert.Error(t, err)
	})
}
