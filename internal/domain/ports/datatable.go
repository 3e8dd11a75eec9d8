package ports

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// RowIDColumn is the name of the id column every DataTable row carries.
const RowIDColumn = "id"

// ErrRowNotFound is returned when a row id does not exist.
var ErrRowNotFound = errors.New("row not found")

// Row maps column names to values. Values are int64, float64, string,
// []byte or nil.
type Row map[string]any

// ColumnType is the storage class of a column.
type ColumnType int

const (
	ColumnInteger ColumnType = iota
	ColumnText
	ColumnReal
	ColumnBlob
)

// Column describes one column of a table.
type Column struct {
	Name    string
	Type    ColumnType
	Indexed bool
}

// TableSchema describes a table. The id column is implicit.
type TableSchema struct {
	Name    string
	Columns []Column
}

// HasColumn reports whether the schema declares the column.
func (s TableSchema) HasColumn(name string) bool {
	if name == RowIDColumn {
		return true
	}
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// DataTable is a generic persistent table with integer row ids assigned by
// the table itself.
type DataTable interface {
	// CreateRow inserts a row and returns its id. Any id in row is ignored.
	CreateRow(ctx context.Context, row Row) (int64, error)

	// UpdateRow sets the given columns of an existing row.
	UpdateRow(ctx context.Context, id int64, values Row) error

	// DeleteRow removes a row.
	DeleteRow(ctx context.Context, id int64) error

	// GetRow returns one row or ErrRowNotFound.
	GetRow(ctx context.Context, id int64) (Row, error)

	// FindRows returns the rows whose columns equal every value in filter,
	// ordered by id. A nil filter value matches NULL. A limit <= 0 means
	// no limit. An empty filter returns every row.
	FindRows(ctx context.Context, filter Row, limit int) ([]Row, error)

	// SupportsTransactions reports whether RunInTransaction is atomic.
	SupportsTransactions() bool

	// RunInTransaction runs fn against a table bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx DataTable) error) error
}

// NormalizeValue converts a Go value to one of the value types a Row holds.
// Named integer types such as entities.Tid become int64.
func NormalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case int64, float64, string:
		return x, nil
	case []byte:
		return append([]byte(nil), x...), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported column value type %T", v)
	}
}

// Int64 reads an integer column, treating NULL as 0.
func (r Row) Int64(column string) int64 {
	switch v := r[column].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Text reads a text column, treating NULL as "".
func (r Row) Text(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Bytes reads a blob column.
func (r Row) Bytes(column string) []byte {
	switch v := r[column].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// IsNull reports whether the column is NULL or absent.
func (r Row) IsNull(column string) bool {
	return r[column] == nil
}

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}
