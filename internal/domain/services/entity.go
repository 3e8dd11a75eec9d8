package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// CacheSettings controls how EntityService uses the entity data cache.
type CacheSettings struct {
	// DataID tags every cached entry. Changing it makes older entries stale.
	DataID string
	// TTL of cached entries. Zero or less never expires.
	TTL time.Duration
}

// EntityService is the typed entity layer on top of the statement store.
// Reads go through the entity data cache.
type EntityService struct {
	store    *StatementStore
	cache    ports.EntityDataCache
	clock    ports.Clock
	settings CacheSettings
	logger   *zap.Logger
	group    singleflight.Group
}

// NewEntityService creates a new EntityService. The cache may be nil.
func NewEntityService(
	store *StatementStore,
	cache ports.EntityDataCache,
	clock ports.Clock,
	settings CacheSettings,
	logger *zap.Logger,
) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &EntityService{
		store:    store,
		cache:    cache,
		clock:    clock,
		settings: settings,
		logger:   logger,
	}
}

// GetEntityData returns the aggregated data of an entity, from the cache
// when possible. Concurrent misses for the same entity share one rebuild.
func (s *EntityService) GetEntityData(ctx context.Context, id entities.Tid) (entities.EntityData, error) {
	if !id.Valid() {
		return entities.EntityData{}, fmt.Errorf("%w: entity id %d", entities.ErrInvalidEntity, id)
	}

	if s.cache != nil {
		data, err := s.cache.GetData(ctx, id, s.settings.DataID)
		switch {
		case err == nil:
			return data, nil
		case !errors.Is(err, entities.ErrEntityNotInCache):
			s.logger.Warn("entity cache read failed, treating as miss",
				zap.Int64("entity", int64(id)),
				zap.Error(err))
		}
	}

	v, err, _ := s.group.Do(strconv.FormatInt(int64(id), 10), func() (any, error) {
		data, err := s.buildEntityData(ctx, id)
		if err != nil {
			return entities.EntityData{}, err
		}
		if s.cache != nil {
			if err := s.cache.SetData(ctx, id, data, s.settings.DataID, s.settings.TTL); err != nil {
				s.logger.Warn("entity cache write failed",
					zap.Int64("entity", int64(id)),
					zap.Error(err))
			}
		}
		return data, nil
	})
	if err != nil {
		return entities.EntityData{}, err
	}
	return v.(entities.EntityData).Clone(), nil
}

func (s *EntityService) buildEntityData(ctx context.Context, id entities.Tid) (entities.EntityData, error) {
	asSubject, err := s.store.GetStatements(ctx, entities.StatementQuery{Subject: id})
	if err != nil {
		return entities.EntityData{}, fmt.Errorf("getting statements about %d: %w", id, err)
	}
	if len(asSubject) == 0 {
		return entities.EntityData{}, fmt.Errorf("entity %d: %w", id, entities.ErrEntityNotFound)
	}
	asObject, err := s.store.GetStatements(ctx, entities.StatementQuery{Object: entities.EntityObject(id)})
	if err != nil {
		return entities.EntityData{}, fmt.Errorf("getting statements pointing at %d: %w", id, err)
	}

	data := entities.BuildEntityData(id, asSubject, asObject)
	if data.IsMerged() {
		final, err := s.resolveMerge(ctx, id, data.MergedInto)
		if err != nil {
			return entities.EntityData{}, err
		}
		data.MergedInto = final
	}
	return data, nil
}

// resolveMerge follows MergedInto statements from target until it reaches an
// entity that has not been merged. A cycle stops at the last entity before
// the loop closes.
func (s *EntityService) resolveMerge(ctx context.Context, from, target entities.Tid) (entities.Tid, error) {
	visited := map[entities.Tid]bool{from: true}
	for !visited[target] {
		visited[target] = true
		sts, err := s.store.GetStatements(ctx, entities.StatementQuery{
			Subject:   target,
			Predicate: entities.PredicateMergedInto,
		})
		if err != nil {
			return 0, fmt.Errorf("resolving merge of %d: %w", from, err)
		}
		if len(sts) == 0 {
			return target, nil
		}
		next, ok := sts[0].Object.Entity()
		if !ok || visited[next] {
			s.logger.Warn("merge chain does not terminate",
				zap.Int64("entity", int64(from)),
				zap.Int64("at", int64(target)))
			return target, nil
		}
		target = next
	}
	return target, nil
}

// CreateEntity creates an entity of the given type and name in one batch.
// Extra pairs become further statements about the new entity. Every
// statement is attributed to author.
func (s *EntityService) CreateEntity(
	ctx context.Context,
	entityType entities.Tid,
	name string,
	extra entities.Metadata,
	author entities.Tid,
) (entities.Tid, error) {
	name = strings.TrimSpace(name)
	if !entityType.Valid() || !author.Valid() || name == "" {
		return 0, fmt.Errorf("%w: type, name and author are required", entities.ErrInvalidEntity)
	}

	id, err := s.store.GenerateUniqueEntityID(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	md := entities.StatementMetadata(author, now, "")
	cmds := []entities.Command{
		entities.MakeStatementCommand(id, entities.PredicateEntityType, entities.EntityObject(entityType), md),
		entities.MakeStatementCommand(id, entities.PredicateEntityName, entities.StringObject(name), md),
		entities.MakeStatementCommand(id, entities.PredicateEntityCreationTimestamp, entities.TimestampObject(now), md),
	}
	for _, pair := range extra {
		cmds = append(cmds, entities.MakeStatementCommand(id, pair.Predicate, pair.Object, md))
	}

	if _, err := s.store.MakeMultipleStatementsAndCancellations(ctx, cmds); err != nil {
		return 0, fmt.Errorf("creating entity: %w", err)
	}
	s.logger.Info("entity created",
		zap.Int64("entity", int64(id)),
		zap.Int64("type", int64(entityType)),
		zap.String("name", name))
	return id, nil
}

// RenameEntity replaces the name of an entity. The old name is cancelled and
// the new one made in the same batch, so the entity is never without a name.
func (s *EntityService) RenameEntity(
	ctx context.Context,
	id entities.Tid,
	name string,
	author entities.Tid,
	note string,
) error {
	name = strings.TrimSpace(name)
	if name == "" || !author.Valid() {
		return fmt.Errorf("%w: name and author are required", entities.ErrInvalidEntity)
	}
	if _, err := s.GetEntityData(ctx, id); err != nil {
		return err
	}

	current, err := s.store.GetStatements(ctx, entities.StatementQuery{
		Subject:   id,
		Predicate: entities.PredicateEntityName,
	})
	if err != nil {
		return fmt.Errorf("getting current name: %w", err)
	}
	if len(current) == 1 && current[0].Object.Equal(entities.StringObject(name)) {
		return nil
	}

	now := s.clock.Now()
	cmds := make([]entities.Command, 0, len(current)+1)
	for _, st := range current {
		cmds = append(cmds, entities.CancelStatementCommand(st.ID, entities.CancellationMetadata(author, now, note)))
	}
	cmds = append(cmds, entities.MakeStatementCommand(
		id, entities.PredicateEntityName, entities.StringObject(name),
		entities.StatementMetadata(author, now, note)))

	if _, err := s.store.MakeMultipleStatementsAndCancellations(ctx, cmds); err != nil {
		return fmt.Errorf("renaming entity: %w", err)
	}
	return nil
}

// MergeEntities records that entity has been superseded by into. Lookups
// of entity then report into, or whatever into is later merged into.
func (s *EntityService) MergeEntities(
	ctx context.Context,
	entity, into, author entities.Tid,
	note string,
) error {
	if entity == into {
		return fmt.Errorf("%w: cannot merge entity %d into itself", entities.ErrInvalidEntity, entity)
	}
	if !author.Valid() {
		return fmt.Errorf("%w: author is required", entities.ErrInvalidEntity)
	}

	src, err := s.GetEntityData(ctx, entity)
	if err != nil {
		return err
	}
	if src.IsMerged() {
		return fmt.Errorf("%w: entity %d is already merged", entities.ErrInvalidEntity, entity)
	}
	dst, err := s.GetEntityData(ctx, into)
	if err != nil {
		return err
	}
	if dst.IsMerged() {
		return fmt.Errorf("%w: entity %d is merged into %d", entities.ErrInvalidEntity, into, dst.MergedInto)
	}

	now := s.clock.Now()
	md := entities.Metadata{
		{Predicate: entities.PredicateMergedBy, Object: entities.EntityObject(author)},
		{Predicate: entities.PredicateMergeTimestamp, Object: entities.TimestampObject(now)},
	}
	if note != "" {
		md = append(md, entities.MetadataPair{
			Predicate: entities.PredicateMergeEditorialNote,
			Object:    entities.StringObject(note),
		})
	}
	if _, err := s.store.MakeStatementWithMetadata(ctx, entity, entities.PredicateMergedInto, entities.EntityObject(into), md); err != nil {
		return fmt.Errorf("merging entity: %w", err)
	}

	// Every entity whose chain passes through entity now resolves further.
	if s.cache != nil {
		predecessors, err := s.mergedPredecessors(ctx, entity)
		if err != nil {
			s.logger.Warn("collecting merged entities failed",
				zap.Int64("entity", int64(entity)),
				zap.Error(err))
		}
		for _, id := range predecessors {
			if err := s.cache.InvalidateData(ctx, id); err != nil && !errors.Is(err, entities.ErrEntityNotInCache) {
				s.logger.Warn("cache invalidation failed",
					zap.Int64("entity", int64(id)),
					zap.Error(err))
			}
		}
	}
	s.logger.Info("entities merged",
		zap.Int64("entity", int64(entity)),
		zap.Int64("into", int64(into)))
	return nil
}

// mergedPredecessors returns every entity merged, directly or through a
// chain, into id. It reads the store, not the cache.
func (s *EntityService) mergedPredecessors(ctx context.Context, id entities.Tid) ([]entities.Tid, error) {
	visited := map[entities.Tid]bool{id: true}
	queue := []entities.Tid{id}
	var found []entities.Tid
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		sts, err := s.store.GetStatements(ctx, entities.StatementQuery{
			Predicate: entities.PredicateMergedInto,
			Object:    entities.EntityObject(next),
		})
		if err != nil {
			return found, fmt.Errorf("finding entities merged into %d: %w", next, err)
		}
		for _, st := range sts {
			if visited[st.Subject] {
				continue
			}
			visited[st.Subject] = true
			found = append(found, st.Subject)
			queue = append(queue, st.Subject)
		}
	}
	return found, nil
}

// EntitiesOfType returns the ids of all entities with the given type.
func (s *EntityService) EntitiesOfType(ctx context.Context, entityType entities.Tid) ([]entities.Tid, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: type %d", entities.ErrInvalidEntity, entityType)
	}
	sts, err := s.store.GetStatements(ctx, entities.StatementQuery{
		Predicate: entities.PredicateEntityType,
		Object:    entities.EntityObject(entityType),
	})
	if err != nil {
		return nil, fmt.Errorf("getting entities of type %d: %w", entityType, err)
	}

	seen := make(map[entities.Tid]bool, len(sts))
	ids := make([]entities.Tid, 0, len(sts))
	for _, st := range sts {
		if !seen[st.Subject] {
			seen[st.Subject] = true
			ids = append(ids, st.Subject)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
