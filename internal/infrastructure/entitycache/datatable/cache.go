// Package datatable provides a persistent entity data cache on a
// ports.DataTable. Next to the encoded blob every row keeps a small
// predicate index so single predicates can be read without decoding the
// whole entity.
package datatable

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache"
)

// Column names of the cache table.
const (
	ColTID            = "tid"
	ColDataID         = "dataId"
	ColSetAt          = "setAt"
	ColExpires        = "expires"
	ColData           = "data"
	ColPredicateIndex = "predicateIndex"
)

// Schema returns the cache table layout.
func Schema(table string) ports.TableSchema {
	return ports.TableSchema{
		Name: table,
		Columns: []ports.Column{
			{Name: ColTID, Type: ports.ColumnInteger, Indexed: true},
			{Name: ColDataID, Type: ports.ColumnText},
			{Name: ColSetAt, Type: ports.ColumnInteger},
			{Name: ColExpires, Type: ports.ColumnInteger},
			{Name: ColData, Type: ports.ColumnBlob},
			{Name: ColPredicateIndex, Type: ports.ColumnText},
		},
	}
}

// Cache implements ports.EntityDataCache on a DataTable.
type Cache struct {
	table  ports.DataTable
	codec  entitycache.Codec
	clock  ports.Clock
	logger *zap.Logger
}

// NewCache creates a cache on a table created with Schema.
func NewCache(table ports.DataTable, codec entitycache.Codec, clock ports.Clock, logger *zap.Logger) *Cache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{table: table, codec: codec, clock: clock, logger: logger}
}

// GetData decodes the cached blob.
func (c *Cache) GetData(ctx context.Context, id entities.Tid, dataID string) (entities.EntityData, error) {
	row, err := c.validRow(ctx, id, dataID)
	if err != nil {
		return entities.EntityData{}, err
	}
	return c.codec.Decode(row.Bytes(ColData))
}

// GetObjectsForPredicate returns the objects of the active statements with
// the given predicate, read from the predicate index of the entry.
func (c *Cache) GetObjectsForPredicate(
	ctx context.Context,
	id entities.Tid,
	dataID string,
	predicate entities.Tid,
) ([]entities.Object, error) {
	row, err := c.validRow(ctx, id, dataID)
	if err != nil {
		return nil, err
	}
	var index map[string][]entities.Object
	if err := json.Unmarshal(row.Bytes(ColPredicateIndex), &index); err != nil {
		return nil, fmt.Errorf("decoding predicate index of %d: %w", id, err)
	}
	return index[strconv.FormatInt(int64(predicate), 10)], nil
}

// SetData stores or replaces the entry.
func (c *Cache) SetData(ctx context.Context, id entities.Tid, data entities.EntityData, dataID string, ttl time.Duration) error {
	blob, err := c.codec.Encode(data)
	if err != nil {
		return err
	}
	index, err := predicateIndex(data)
	if err != nil {
		return err
	}

	now := c.clock.Now()
	values := ports.Row{
		ColTID:            int64(id),
		ColDataID:         dataID,
		ColSetAt:          now.UnixMilli(),
		ColExpires:        nil,
		ColData:           blob,
		ColPredicateIndex: index,
	}
	if exp := entitycache.ExpiresAt(now, ttl); !exp.IsZero() {
		values[ColExpires] = exp.UnixMilli()
	}

	return c.inTransaction(ctx, func(ctx context.Context, table ports.DataTable) error {
		rows, err := table.FindRows(ctx, ports.Row{ColTID: int64(id)}, 0)
		if err != nil {
			return fmt.Errorf("finding cache row %d: %w", id, err)
		}
		if len(rows) == 0 {
			if _, err := table.CreateRow(ctx, values); err != nil {
				return fmt.Errorf("creating cache row %d: %w", id, err)
			}
			return nil
		}
		if err := table.UpdateRow(ctx, rows[0].Int64(ports.RowIDColumn), values); err != nil {
			return fmt.Errorf("updating cache row %d: %w", id, err)
		}
		for _, extra := range rows[1:] {
			if err := table.DeleteRow(ctx, extra.Int64(ports.RowIDColumn)); err != nil {
				return fmt.Errorf("deleting duplicate cache row %d: %w", id, err)
			}
		}
		return nil
	})
}

// InvalidateData deletes the entry.
func (c *Cache) InvalidateData(ctx context.Context, id entities.Tid) error {
	return c.deleteWhere(ctx, ports.Row{ColTID: int64(id)}, func(ports.Row) bool { return true })
}

// Clean deletes expired entries and, with a dataID, entries of other data
// ids.
func (c *Cache) Clean(ctx context.Context, dataID string) error {
	now := c.clock.Now()
	return c.deleteWhere(ctx, nil, func(row ports.Row) bool {
		return rowExpired(row, now) || (dataID != "" && row.Text(ColDataID) != dataID)
	})
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.deleteWhere(ctx, nil, func(ports.Row) bool { return true })
}

func (c *Cache) validRow(ctx context.Context, id entities.Tid, dataID string) (ports.Row, error) {
	rows, err := c.table.FindRows(ctx, ports.Row{ColTID: int64(id)}, 1)
	if err != nil {
		return nil, fmt.Errorf("finding cache row %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, entitycache.Miss(id, "not cached")
	}
	row := rows[0]
	if rowExpired(row, c.clock.Now()) {
		return nil, entitycache.Miss(id, "expired")
	}
	if stored := row.Text(ColDataID); stored != dataID {
		return nil, entitycache.Miss(id, "cached with data id "+stored)
	}
	return row, nil
}

func (c *Cache) deleteWhere(ctx context.Context, filter ports.Row, match func(ports.Row) bool) error {
	return c.inTransaction(ctx, func(ctx context.Context, table ports.DataTable) error {
		rows, err := table.FindRows(ctx, filter, 0)
		if err != nil {
			return fmt.Errorf("finding cache rows: %w", err)
		}
		deleted := 0
		for _, row := range rows {
			if !match(row) {
				continue
			}
			if err := table.DeleteRow(ctx, row.Int64(ports.RowIDColumn)); err != nil {
				return fmt.Errorf("deleting cache row: %w", err)
			}
			deleted++
		}
		if deleted > 0 {
			c.logger.Debug("cache rows deleted", zap.Int("count", deleted))
		}
		return nil
	})
}

func (c *Cache) inTransaction(ctx context.Context, fn func(ctx context.Context, table ports.DataTable) error) error {
	if !c.table.SupportsTransactions() {
		return fn(ctx, c.table)
	}
	return c.table.RunInTransaction(ctx, fn)
}

func rowExpired(row ports.Row, now time.Time) bool {
	if row.IsNull(ColExpires) {
		return false
	}
	return entitycache.Expired(time.UnixMilli(row.Int64(ColExpires)), now)
}

func predicateIndex(data entities.EntityData) (string, error) {
	index := make(map[string][]entities.Object)
	for _, st := range data.Statements {
		key := strconv.FormatInt(int64(st.Predicate), 10)
		index[key] = append(index[key], st.Object)
	}
	raw, err := json.Marshal(index)
	if err != nil {
		return "", fmt.Errorf("encoding predicate index of %d: %w", data.ID, err)
	}
	return string(raw), nil
}
