package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/services"
)

// EntityHandler handles entity operations at the application layer.
type EntityHandler struct {
	entityService *services.EntityService
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(entityService *services.EntityService) *EntityHandler {
	return &EntityHandler{
		entityService: entityService,
	}
}

// CreateRequest describes an entity to create.
type CreateRequest struct {
	Type     string
	Name     string
	Author   string
	Metadata []string
}

// HandleCreate creates an entity and returns its id.
func (h *EntityHandler) HandleCreate(ctx context.Context, req CreateRequest) (entities.Tid, error) {
	entityType, err := ParseID(req.Type)
	if err != nil {
		return 0, err
	}
	author, err := ParseID(req.Author)
	if err != nil {
		return 0, err
	}
	extra, err := ParseMetadata(req.Metadata)
	if err != nil {
		return 0, err
	}
	return h.entityService.CreateEntity(ctx, entityType, req.Name, extra, author)
}

// EntityView is EntityData plus the redirect followed, if any.
type EntityView struct {
	Data entities.EntityData `json:"data"`
	// RedirectedFrom is the requested id when it had been merged.
	RedirectedFrom entities.Tid `json:"redirected_from,omitempty"`
}

// HandleShow returns the data of an entity. With follow set, a merged
// entity is replaced by the entity it was merged into.
func (h *EntityHandler) HandleShow(ctx context.Context, id string, follow bool) (*EntityView, error) {
	tid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	data, err := h.entityService.GetEntityData(ctx, tid)
	if err != nil {
		return nil, err
	}
	if !follow || !data.IsMerged() {
		return &EntityView{Data: data}, nil
	}

	target, err := h.entityService.GetEntityData(ctx, data.MergedInto)
	if err != nil {
		return nil, fmt.Errorf("following merge of %d: %w", tid, err)
	}
	return &EntityView{Data: target, RedirectedFrom: tid}, nil
}

// HandleRename gives an entity a new name.
func (h *EntityHandler) HandleRename(ctx context.Context, id, name, author, note string) error {
	tid, err := ParseID(id)
	if err != nil {
		return err
	}
	a, err := ParseID(author)
	if err != nil {
		return err
	}
	return h.entityService.RenameEntity(ctx, tid, name, a, note)
}

// HandleMerge merges one entity into another.
func (h *EntityHandler) HandleMerge(ctx context.Context, id, into, author, note string) error {
	from, err := ParseID(id)
	if err != nil {
		return err
	}
	to, err := ParseID(into)
	if err != nil {
		return err
	}
	a, err := ParseID(author)
	if err != nil {
		return err
	}
	return h.entityService.MergeEntities(ctx, from, to, a, note)
}

// EntityListResult contains the result of listing entities.
type EntityListResult struct {
	Type     entities.Tid          `json:"type"`
	Entities []entities.EntityData `json:"entities"`
	Total    int                   `json:"total"`
}

// HandleList returns the entities of a type, merged ones excluded.
func (h *EntityHandler) HandleList(ctx context.Context, entityType string) (*EntityListResult, error) {
	t, err := ParseID(entityType)
	if err != nil {
		return nil, err
	}
	ids, err := h.entityService.EntitiesOfType(ctx, t)
	if err != nil {
		return nil, err
	}

	result := &EntityListResult{Type: t, Entities: make([]entities.EntityData, 0, len(ids))}
	for _, id := range ids {
		data, err := h.entityService.GetEntityData(ctx, id)
		if err != nil {
			return nil, err
		}
		if data.IsMerged() {
			continue
		}
		result.Entities = append(result.Entities, data)
	}
	result.Total = len(result.Entities)
	return result, nil
}
