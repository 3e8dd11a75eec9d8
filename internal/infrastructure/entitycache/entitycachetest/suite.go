// Package entitycachetest holds the behaviour every ports.EntityDataCache
// implementation must show.
package entitycachetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/mocks"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Start is the time the suite's clocks start at.
var Start = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// Factory creates an empty cache reading time from clock.
type Factory func(t *testing.T, clock *mocks.Clock) ports.EntityDataCache

// Data returns a small entity for the given id.
func Data(id entities.Tid, name string) entities.EntityData {
	sts := []entities.Statement{
		{ID: id + 1, Subject: id, Predicate: entities.PredicateEntityType, Object: entities.EntityObject(entities.TypePerson)},
		{ID: id + 2, Subject: id, Predicate: entities.PredicateEntityName, Object: entities.StringObject(name),
			Metadata: entities.StatementMetadata(5, Start, "")},
	}
	return entities.BuildEntityData(id, sts, nil)
}

// Run runs the suite.
func Run(t *testing.T, newCache Factory) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		_, err := cache.GetData(ctx, 100, "v1")
		assert.ErrorIs(t, err, entities.ErrEntityNotInCache)
	})

	t.Run("set and get", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		data := Data(100, "Averroes")
		require.NoError(t, cache.SetData(ctx, 100, data, "v1", time.Hour))

		got, err := cache.GetData(ctx, 100, "v1")
		require.NoError(t, err)
		assert.Equal(t, entities.Tid(100), got.ID)
		assert.Equal(t, "Averroes", got.Name)
		assert.Equal(t, entities.TypePerson, got.Type)
		assert.Len(t, got.Statements, 2)
	})

	t.Run("overwrite", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		require.NoError(t, cache.SetData(ctx, 100, Data(100, "old"), "v1", 0))
		require.NoError(t, cache.SetData(ctx, 100, Data(100, "new"), "v1", 0))

		got, err := cache.GetData(ctx, 100, "v1")
		require.NoError(t, err)
		assert.Equal(t, "new", got.Name)
	})

	t.Run("data id gating", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		require.NoError(t, cache.SetData(ctx, 100, Data(100, "a"), "v1", 100*time.Second))

		_, err := cache.GetData(ctx, 100, "v2")
		assert.ErrorIs(t, err, entities.ErrEntityNotInCache)
		_, err = cache.GetData(ctx, 100, "v1")
		assert.NoError(t, err)
	})

	t.Run("ttl", func(t *testing.T) {
		clock := mocks.NewClock(Start)
		cache := newCache(t, clock)
		require.NoError(t, cache.SetData(ctx, 100, Data(100, "a"), "v1", time.Second))
		require.NoError(t, cache.SetData(ctx, 101, Data(101, "b"), "v1", 0))

		clock.Advance(500 * time.Millisecond)
		_, err := cache.GetData(ctx, 100, "v1")
		assert.NoError(t, err)

		clock.Advance(time.Second)
		_, err = cache.GetData(ctx, 100, "v1")
		assert.ErrorIs(t, err, entities.ErrEntityNotInCache)

		clock.Advance(1000 * time.Hour)
		_, err = cache.GetData(ctx, 101, "v1")
		assert.NoError(t, err, "no ttl never expires")
	})

	t.Run("invalidate", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		require.NoError(t, cache.SetData(ctx, 100, Data(100, "a"), "v1", time.Hour))
		require.NoError(t, cache.SetData(ctx, 101, Data(101, "b"), "v1", time.Hour))

		require.NoError(t, cache.InvalidateData(ctx, 100))
		_, err := cache.GetData(ctx, 100, "v1")
		assert.ErrorIs(t, err, entities.ErrEntityNotInCache)
		_, err = cache.GetData(ctx, 101, "v1")
		assert.NoError(t, err)

		assert.NoError(t, cache.InvalidateData(ctx, 999), "invalidating an absent entry is fine")
	})

	t.Run("clean", func(t *testing.T) {
		clock := mocks.NewClock(Start)
		cache := newCache(t, clock)
		require.NoError(t, cache.SetData(ctx, 100, Data(100, "expiring"), "v2", time.Second))
		require.NoError(t, cache.SetData(ctx, 101, Data(101, "old version"), "v1", 0))
		require.NoError(t, cache.SetData(ctx, 102, Data(102, "current"), "v2", 0))
		clock.Advance(2 * time.Second)

		require.NoError(t, cache.Clean(ctx, ""))
		_, err := cache.GetData(ctx, 101, "v1")
		assert.NoError(t, err, "no data id keeps every live entry")

		require.NoError(t, cache.Clean(ctx, "v2"))
		_, err = cache.GetData(ctx, 101, "v1")
		assert.ErrorIs(t, err, entities.ErrEntityNotInCache)
		_, err = cache.GetData(ctx, 102, "v2")
		assert.NoError(t, err)

		clock.Advance(-2 * time.Second)
		_, err = cache.GetData(ctx, 100, "v2")
		assert.ErrorIs(t, err, entities.ErrEntityNotInCache, "expired entries are removed, not just hidden")
	})

	t.Run("clear", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		for i := entities.Tid(100); i < 105; i++ {
			require.NoError(t, cache.SetData(ctx, i, Data(i, "x"), "v1", 0))
		}
		require.NoError(t, cache.Clear(ctx))
		for i := entities.Tid(100); i < 105; i++ {
			_, err := cache.GetData(ctx, i, "v1")
			assert.ErrorIs(t, err, entities.ErrEntityNotInCache)
		}
	})

	t.Run("returned data is a copy", func(t *testing.T) {
		cache := newCache(t, mocks.NewClock(Start))
		data := Data(100, "a")
		require.NoError(t, cache.SetData(ctx, 100, data, "v1", 0))
		data.Statements[0].Subject = 1

		got, err := cache.GetData(ctx, 100, "v1")
		require.NoError(t, err)
		got.Statements[1].Object = entities.StringObject("changed")

		again, err := cache.GetData(ctx, 100, "v1")
		require.NoError(t, err)
		assert.Equal(t, entities.Tid(100), again.Statements[0].Subject)
		assert.Equal(t, "a", again.Name)
		assert.True(t, again.Statements[1].Object.Equal(entities.StringObject("a")))
	})
}
