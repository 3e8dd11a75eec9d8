package datatable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/mocks"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
	"github.com/ersonp/tidstore/internal/infrastructure/datatable/memory"
	"github.com/ersonp/tidstore/internal/infrastructure/datatable/sqlite"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache/entitycachetest"
)

func sqliteTable(t *testing.T) ports.DataTable {
	t.Helper()
	db, err := sqlite.Open(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	table, err := db.Table(context.Background(), Schema("entity_cache"))
	require.NoError(t, err)
	return table
}

func TestCache(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		entitycachetest.Run(t, func(t *testing.T, clock *mocks.Clock) ports.EntityDataCache {
			return NewCache(memory.NewTable(Schema("entity_cache")), entitycache.NewCodec(false), clock, zaptest.NewLogger(t))
		})
	})
	t.Run("sqlite", func(t *testing.T) {
		entitycachetest.Run(t, func(t *testing.T, clock *mocks.Clock) ports.EntityDataCache {
			return NewCache(sqliteTable(t), entitycache.NewCodec(true), clock, zaptest.NewLogger(t))
		})
	})
}

func TestCache_GetObjectsForPredicate(t *testing.T) {
	clock := mocks.NewClock(entitycachetest.Start)
	table := sqliteTable(t)
	cache := NewCache(table, entitycache.NewCodec(false), clock, zaptest.NewLogger(t))
	ctx := context.Background()

	data := entitycachetest.Data(100, "Averroes")
	data.Statements = append(data.Statements, entities.Statement{
		ID: 150, Subject: 100, Predicate: entities.PredicateMemberOf, Object: entities.EntityObject(7),
	}, entities.Statement{
		ID: 151, Subject: 100, Predicate: entities.PredicateMemberOf, Object: entities.EntityObject(8),
	})
	require.NoError(t, cache.SetData(ctx, 100, data, "v1", 0))

	objs, err := cache.GetObjectsForPredicate(ctx, 100, "v1", entities.PredicateMemberOf)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.True(t, objs[0].Equal(entities.EntityObject(7)))
	assert.True(t, objs[1].Equal(entities.EntityObject(8)))

	objs, err = cache.GetObjectsForPredicate(ctx, 100, "v1", entities.PredicateEntityName)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.True(t, objs[0].Equal(entities.StringObject("Averroes")))

	objs, err = cache.GetObjectsForPredicate(ctx, 100, "v1", entities.PredicateEntityDescription)
	require.NoError(t, err)
	assert.Empty(t, objs)

	_, err = cache.GetObjectsForPredicate(ctx, 100, "v2", entities.PredicateMemberOf)
	assert.ErrorIs(t, err, entities.ErrEntityNotInCache)
}

func TestCache_OneRowPerEntity(t *testing.T) {
	table := memory.NewTable(Schema("entity_cache"))
	cache := NewCache(table, entitycache.NewCodec(false), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, cache.SetData(ctx, 100, entitycachetest.Data(100, "x"), "v1", 0))
	}
	rows, err := table.FindRows(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCache_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/cache.db"
	ctx := context.Background()

	open := func() (*sqlite.DB, *Cache) {
		db, err := sqlite.Open(config.SQLiteConfig{Path: path})
		require.NoError(t, err)
		table, err := db.Table(ctx, Schema("entity_cache"))
		require.NoError(t, err)
		return db, NewCache(table, entitycache.NewCodec(true), nil, nil)
	}

	db, cache := open()
	require.NoError(t, cache.SetData(ctx, 100, entitycachetest.Data(100, "kept"), "v1", 0))
	require.NoError(t, db.Close())

	db, cache = open()
	defer db.Close()
	got, err := cache.GetData(ctx, 100, "v1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}
