package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/ersonp/tidstore/internal/application/handlers"
	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/domain/services"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
	memtable "github.com/ersonp/tidstore/internal/infrastructure/datatable/memory"
	"github.com/ersonp/tidstore/internal/infrastructure/datatable/sqlite"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache"
	cachetable "github.com/ersonp/tidstore/internal/infrastructure/entitycache/datatable"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache/dynamodb"
	memcache "github.com/ersonp/tidstore/internal/infrastructure/entitycache/memory"
	"github.com/ersonp/tidstore/internal/infrastructure/idgen"
	"github.com/ersonp/tidstore/internal/infrastructure/logging"
	stmttable "github.com/ersonp/tidstore/internal/infrastructure/statementstorage/datatable"
	"github.com/ersonp/tidstore/internal/infrastructure/statementstorage/multi"
	"github.com/ersonp/tidstore/internal/infrastructure/statementstorage/qdrant"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - storages and caches are internal.
type Deps struct {
	Config           *config.Config
	StatementHandler *handlers.StatementHandler
	QueryHandler     *handlers.QueryHandler
	EntityHandler    *handlers.EntityHandler
	// CacheHandler is nil when the cache backend is "none".
	CacheHandler *handlers.CacheHandler
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withBackends(ctx, func(b *backends) error {
		deps, err := b.deps(ctx)
		if err != nil {
			return err
		}
		return fn(deps)
	})
}

// withBackends loads the config of the current directory and hands out a
// backend set that is closed once fn returns.
func withBackends(ctx context.Context, fn func(*backends) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	b := newBackends(cfg, logger)
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing backends", zap.Error(err))
		}
	}()
	return fn(b)
}

// backends opens storages and caches on demand, each at most once.
type backends struct {
	cfg      *config.Config
	logger   *zap.Logger
	clock    ports.Clock
	db       *sqlite.DB
	storages map[string]ports.StatementStorage
	closers  []io.Closer
}

func newBackends(cfg *config.Config, logger *zap.Logger) *backends {
	return &backends{
		cfg:      cfg,
		logger:   logger,
		clock:    ports.SystemClock{},
		storages: make(map[string]ports.StatementStorage),
	}
}

// Close closes everything opened, most recent first.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *backends) deps(ctx context.Context) (*Deps, error) {
	storage, err := b.statementStorage(ctx)
	if err != nil {
		return nil, err
	}
	cache, err := b.entityCache(ctx)
	if err != nil {
		return nil, err
	}

	ids := idgen.New(b.cfg.IDGen.LockFile, b.clock, b.logger.Named("idgen"))

	var invalidator ports.CacheInvalidator
	if cache != nil {
		invalidator = cache
	}
	store := services.NewStatementStore(storage, ids, invalidator, b.logger.Named("store"))
	entityService := services.NewEntityService(store, cache, b.clock, services.CacheSettings{
		DataID: b.cfg.Cache.DataID,
		TTL:    b.cfg.Cache.TTL,
	}, b.logger.Named("entities"))

	deps := &Deps{
		Config:           b.cfg,
		StatementHandler: handlers.NewStatementHandler(store, b.clock),
		QueryHandler:     handlers.NewQueryHandler(store),
		EntityHandler:    handlers.NewEntityHandler(entityService),
	}
	if cache != nil {
		deps.CacheHandler = handlers.NewCacheHandler(cache, b.cfg.Cache.DataID)
	}
	return deps, nil
}

func (b *backends) sqliteDB() (*sqlite.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := sqlite.Open(b.cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	b.db = db
	b.closers = append(b.closers, db)
	return db, nil
}

func (b *backends) qualifierColumns() ([]stmttable.QualifierColumn, error) {
	cols := make([]stmttable.QualifierColumn, 0, len(b.cfg.Columns))
	for _, m := range b.cfg.Columns {
		kind, err := m.ObjectKind()
		if err != nil {
			return nil, err
		}
		cols = append(cols, stmttable.QualifierColumn{
			Column:       m.Column,
			Predicate:    entities.Tid(m.Predicate),
			Cancellation: m.Cancellation,
			Kind:         kind,
		})
	}
	return cols, nil
}

// statementStorage composes the configured storages: the default one, one
// per route and the read-only legacy ones.
func (b *backends) statementStorage(ctx context.Context) (*multi.Storage, error) {
	sc := b.cfg.Storage

	def, err := b.backend(ctx, sc.Default, false)
	if err != nil {
		return nil, err
	}

	routes := make([]multi.Route, 0, len(sc.Routes))
	for _, r := range sc.Routes {
		be, err := b.backend(ctx, r.Backend, false)
		if err != nil {
			return nil, err
		}
		preds := make([]entities.Tid, len(r.Predicates))
		for i, p := range r.Predicates {
			preds[i] = entities.Tid(p)
		}
		routes = append(routes, multi.Route{Backend: be, Predicates: preds})
	}

	legacy := make([]multi.Backend, 0, len(sc.Legacy))
	for _, name := range sc.Legacy {
		be, err := b.backend(ctx, name, true)
		if err != nil {
			return nil, err
		}
		legacy = append(legacy, be)
	}

	return multi.New(def, routes, legacy, b.logger.Named("storage"))
}

// backend opens the storage of one backend. A legacy storage uses the
// backend's table or collection name with legacySuffix appended.
func (b *backends) backend(ctx context.Context, name string, legacy bool) (multi.Backend, error) {
	key := name
	if legacy {
		key += legacySuffix
	}
	if s, ok := b.storages[key]; ok {
		return multi.Backend{Name: key, Storage: s}, nil
	}

	var s ports.StatementStorage
	switch name {
	case config.BackendSQLite, config.BackendMemory:
		cols, err := b.qualifierColumns()
		if err != nil {
			return multi.Backend{}, err
		}
		table := config.SanitizeTableName(b.cfg.SQLite.StatementsTable)
		if legacy {
			table += legacySuffix
		}
		schema := stmttable.Schema(table, cols)

		var t ports.DataTable
		if name == config.BackendMemory {
			t = memtable.NewTable(schema)
		} else {
			db, err := b.sqliteDB()
			if err != nil {
				return multi.Backend{}, err
			}
			st, err := db.Table(ctx, schema)
			if err != nil {
				return multi.Backend{}, fmt.Errorf("opening statements table: %w", err)
			}
			t = st
		}
		ts, err := stmttable.New(t, cols, b.logger.Named(key))
		if err != nil {
			return multi.Backend{}, err
		}
		s = ts
	case config.BackendQdrant:
		qcfg := b.cfg.Qdrant
		if legacy {
			qcfg.Collection += legacySuffix
		}
		qs, err := qdrant.NewStorage(qcfg, b.logger.Named(key))
		if err != nil {
			return multi.Backend{}, fmt.Errorf("creating qdrant storage: %w", err)
		}
		b.closers = append(b.closers, qs)
		s = qs
	default:
		return multi.Backend{}, fmt.Errorf("unknown storage backend %q", name)
	}

	b.storages[key] = s
	return multi.Backend{Name: key, Storage: s}, nil
}

// entityCache opens the configured cache. It returns nil for "none".
func (b *backends) entityCache(ctx context.Context) (ports.EntityDataCache, error) {
	codec := entitycache.NewCodec(b.cfg.Cache.Compress)
	logger := b.logger.Named("cache")

	switch b.cfg.Cache.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return memcache.NewCache(b.clock), nil
	case config.BackendSQLite:
		db, err := b.sqliteDB()
		if err != nil {
			return nil, err
		}
		t, err := db.Table(ctx, cachetable.Schema(config.SanitizeTableName(b.cfg.SQLite.CacheTable)))
		if err != nil {
			return nil, fmt.Errorf("opening cache table: %w", err)
		}
		return cachetable.NewCache(t, codec, b.clock, logger), nil
	case config.BackendDynamoDB:
		c, err := dynamodb.NewCacheFromConfig(ctx, b.cfg.DynamoDB, codec, b.clock, logger)
		if err != nil {
			return nil, fmt.Errorf("creating dynamodb cache: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", b.cfg.Cache.Backend)
	}
}

// provision creates the tables and collections the configuration uses and
// reports what it prepared.
func (b *backends) provision(ctx context.Context) ([]string, error) {
	if _, err := b.statementStorage(ctx); err != nil {
		return nil, err
	}

	var done []string
	for _, key := range slices.Sorted(maps.Keys(b.storages)) {
		if q, ok := b.storages[key].(*qdrant.Storage); ok {
			if err := q.EnsureCollection(ctx); err != nil {
				return done, fmt.Errorf("provisioning %s: %w", key, err)
			}
		}
		done = append(done, "storage "+key)
	}

	cache, err := b.entityCache(ctx)
	if err != nil {
		return done, err
	}
	if d, ok := cache.(*dynamodb.Cache); ok {
		if err := d.EnsureTable(ctx); err != nil {
			return done, fmt.Errorf("provisioning dynamodb cache: %w", err)
		}
	}
	if cache != nil {
		done = append(done, "cache "+b.cfg.Cache.Backend)
	}
	return done, nil
}
