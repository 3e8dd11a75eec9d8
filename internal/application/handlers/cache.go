package handlers

import (
	"context"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// CacheHandler handles entity data cache maintenance.
type CacheHandler struct {
	cache  ports.EntityDataCache
	dataID string
}

// NewCacheHandler creates a new CacheHandler. dataID is the version tag
// entries are kept for by HandleClean.
func NewCacheHandler(cache ports.EntityDataCache, dataID string) *CacheHandler {
	return &CacheHandler{
		cache:  cache,
		dataID: dataID,
	}
}

// HandleClean removes expired entries. Unless keepOtherVersions is set,
// entries stored under another data id are removed as well.
func (h *CacheHandler) HandleClean(ctx context.Context, keepOtherVersions bool) error {
	dataID := h.dataID
	if keepOtherVersions {
		dataID = ""
	}
	return h.cache.Clean(ctx, dataID)
}

// HandleClear removes every entry.
func (h *CacheHandler) HandleClear(ctx context.Context) error {
	return h.cache.Clear(ctx)
}

// HandleInvalidate drops the entries of the given entities.
func (h *CacheHandler) HandleInvalidate(ctx context.Context, ids []string) ([]entities.Tid, error) {
	out := make([]entities.Tid, 0, len(ids))
	for _, s := range ids {
		id, err := ParseID(s)
		if err != nil {
			return nil, err
		}
		if err := h.cache.InvalidateData(ctx, id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
