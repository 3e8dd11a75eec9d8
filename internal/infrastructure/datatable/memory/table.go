// Package memory provides an in-process implementation of ports.DataTable.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Table keeps rows in a map. Transactions work on a snapshot that replaces
// the live rows on commit; writers are serialized while one is open.
type Table struct {
	mu     sync.RWMutex
	schema ports.TableSchema
	data   *tableData
}

type tableData struct {
	rows   map[int64]ports.Row
	nextID int64
}

// NewTable creates an empty table.
func NewTable(schema ports.TableSchema) *Table {
	return &Table{
		schema: schema,
		data:   &tableData{rows: make(map[int64]ports.Row), nextID: 1},
	}
}

// Schema returns the table schema.
func (t *Table) Schema() ports.TableSchema {
	return t.schema
}

// CreateRow inserts a row.
func (t *Table) CreateRow(ctx context.Context, row ports.Row) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.create(ctx, t.schema, row)
}

// UpdateRow updates an existing row.
func (t *Table) UpdateRow(ctx context.Context, id int64, values ports.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.update(ctx, t.schema, id, values)
}

// DeleteRow removes a row.
func (t *Table) DeleteRow(ctx context.Context, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.delete(ctx, id)
}

// GetRow returns one row.
func (t *Table) GetRow(ctx context.Context, id int64) (ports.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.get(ctx, id)
}

// FindRows returns matching rows ordered by id.
func (t *Table) FindRows(ctx context.Context, filter ports.Row, limit int) ([]ports.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.find(ctx, t.schema, filter, limit)
}

// SupportsTransactions reports true.
func (t *Table) SupportsTransactions() bool {
	return true
}

// RunInTransaction runs fn against a snapshot of the table and makes the
// snapshot live when fn succeeds.
func (t *Table) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.DataTable) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data.clone()
	if err := fn(ctx, &txTable{schema: t.schema, data: snapshot}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.data = snapshot
	return nil
}

// txTable is the view handed to a transaction function. The owning Table
// holds its lock for the whole transaction.
type txTable struct {
	schema ports.TableSchema
	data   *tableData
}

func (t *txTable) CreateRow(ctx context.Context, row ports.Row) (int64, error) {
	return t.data.create(ctx, t.schema, row)
}

func (t *txTable) UpdateRow(ctx context.Context, id int64, values ports.Row) error {
	return t.data.update(ctx, t.schema, id, values)
}

func (t *txTable) DeleteRow(ctx context.Context, id int64) error {
	return t.data.delete(ctx, id)
}

func (t *txTable) GetRow(ctx context.Context, id int64) (ports.Row, error) {
	return t.data.get(ctx, id)
}

func (t *txTable) FindRows(ctx context.Context, filter ports.Row, limit int) ([]ports.Row, error) {
	return t.data.find(ctx, t.schema, filter, limit)
}

func (t *txTable) SupportsTransactions() bool {
	return true
}

// RunInTransaction joins the enclosing transaction.
func (t *txTable) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.DataTable) error) error {
	return fn(ctx, t)
}

func (d *tableData) clone() *tableData {
	out := &tableData{rows: make(map[int64]ports.Row, len(d.rows)), nextID: d.nextID}
	for id, row := range d.rows {
		out.rows[id] = row
	}
	return out
}

func (d *tableData) create(ctx context.Context, schema ports.TableSchema, row ports.Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stored, err := normalizeRow(schema, row)
	if err != nil {
		return 0, err
	}
	id := d.nextID
	d.nextID++
	stored[ports.RowIDColumn] = id
	d.rows[id] = stored
	return id, nil
}

func (d *tableData) update(ctx context.Context, schema ports.TableSchema, id int64, values ports.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	existing, ok := d.rows[id]
	if !ok {
		return fmt.Errorf("row %d: %w", id, ports.ErrRowNotFound)
	}
	changes, err := normalizeRow(schema, values)
	if err != nil {
		return err
	}
	// Rows are copied on write so that snapshots never share a mutated row.
	updated := existing.Clone()
	for k, v := range changes {
		updated[k] = v
	}
	updated[ports.RowIDColumn] = id
	d.rows[id] = updated
	return nil
}

func (d *tableData) delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := d.rows[id]; !ok {
		return fmt.Errorf("row %d: %w", id, ports.ErrRowNotFound)
	}
	delete(d.rows, id)
	return nil
}

func (d *tableData) get(ctx context.Context, id int64) (ports.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := d.rows[id]
	if !ok {
		return nil, fmt.Errorf("row %d: %w", id, ports.ErrRowNotFound)
	}
	return row.Clone(), nil
}

func (d *tableData) find(ctx context.Context, schema ports.TableSchema, filter ports.Row, limit int) ([]ports.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want, err := normalizeRow(schema, filter)
	if err != nil {
		return nil, err
	}
	if idv, ok := filter[ports.RowIDColumn]; ok {
		id, err := ports.NormalizeValue(idv)
		if err != nil {
			return nil, err
		}
		want[ports.RowIDColumn] = id
	}

	ids := make([]int64, 0, len(d.rows))
	for id, row := range d.rows {
		if matches(row, want) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]ports.Row, len(ids))
	for i, id := range ids {
		out[i] = d.rows[id].Clone()
	}
	return out, nil
}

func matches(row, filter ports.Row) bool {
	for col, want := range filter {
		got := row[col]
		if want == nil || got == nil {
			if want != got {
				return false
			}
			continue
		}
		if wb, ok := want.([]byte); ok {
			gb, ok := got.([]byte)
			if !ok || !bytes.Equal(wb, gb) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

// normalizeRow checks every column against the schema and converts values
// to the row value types. The id column is never copied.
func normalizeRow(schema ports.TableSchema, row ports.Row) (ports.Row, error) {
	out := make(ports.Row, len(row))
	for col, v := range row {
		if col == ports.RowIDColumn {
			continue
		}
		if !schema.HasColumn(col) {
			return nil, fmt.Errorf("table %s has no column %q", schema.Name, col)
		}
		nv, err := ports.NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out[col] = nv
	}
	return out, nil
}
