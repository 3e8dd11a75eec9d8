package datatable

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// overflowEntry is one element of an overflow column: either a reference to
// a mapped column (C) or an unmapped pair (P, O).
type overflowEntry struct {
	C string           `json:"c,omitempty"`
	P entities.Tid     `json:"p,omitempty"`
	O *entities.Object `json:"o,omitempty"`
}

// encodeMetadata splits metadata into mapped column values and the overflow
// JSON. The overflow is nil when the mapped columns alone reproduce md.
func encodeMetadata(md entities.Metadata, columns []QualifierColumn) (ports.Row, any, error) {
	values := make(ports.Row, len(columns))
	for _, c := range columns {
		values[c.Column] = nil
	}

	used := make(map[string]bool, len(columns))
	entries := make([]overflowEntry, 0, len(md))
	var placed []int
	for _, pair := range md {
		idx := -1
		for i, c := range columns {
			if c.Predicate == pair.Predicate && c.Kind == pair.Object.Kind() && !used[c.Column] {
				idx = i
				break
			}
		}
		if idx < 0 {
			o := pair.Object
			entries = append(entries, overflowEntry{P: pair.Predicate, O: &o})
			continue
		}
		c := columns[idx]
		used[c.Column] = true
		values[c.Column] = columnValue(pair.Object)
		entries = append(entries, overflowEntry{C: c.Column})
		placed = append(placed, idx)
	}

	if len(placed) == len(entries) && ascending(placed) {
		return values, nil, nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding overflow metadata: %w", err)
	}
	return values, string(data), nil
}

// decodeMetadata rebuilds the metadata list from a row.
func decodeMetadata(row ports.Row, overflowCol string, columns []QualifierColumn) (entities.Metadata, error) {
	byName := make(map[string]QualifierColumn, len(columns))
	for _, c := range columns {
		byName[c.Column] = c
	}

	if row.IsNull(overflowCol) {
		var md entities.Metadata
		for _, c := range columns {
			if row.IsNull(c.Column) {
				continue
			}
			obj, err := columnObject(row, c)
			if err != nil {
				return nil, err
			}
			md = append(md, entities.MetadataPair{Predicate: c.Predicate, Object: obj})
		}
		return md, nil
	}

	var entries []overflowEntry
	if err := json.Unmarshal(row.Bytes(overflowCol), &entries); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", overflowCol, err)
	}
	md := make(entities.Metadata, 0, len(entries))
	for _, e := range entries {
		if e.C != "" {
			c, ok := byName[e.C]
			if !ok {
				return nil, fmt.Errorf("%s references unknown column %q", overflowCol, e.C)
			}
			obj, err := columnObject(row, c)
			if err != nil {
				return nil, err
			}
			md = append(md, entities.MetadataPair{Predicate: c.Predicate, Object: obj})
			continue
		}
		if e.O == nil {
			return nil, fmt.Errorf("%s entry for predicate %d has no value", overflowCol, e.P)
		}
		md = append(md, entities.MetadataPair{Predicate: e.P, Object: *e.O})
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

func columnValue(o entities.Object) any {
	switch o.Kind() {
	case entities.ObjectEntity:
		t, _ := o.Entity()
		return int64(t)
	case entities.ObjectNumber:
		n, _ := o.Number()
		return n
	default:
		return o.Literal()
	}
}

func columnObject(row ports.Row, c QualifierColumn) (entities.Object, error) {
	switch c.Kind {
	case entities.ObjectEntity:
		return entities.EntityObject(entities.Tid(row.Int64(c.Column))), nil
	case entities.ObjectNumber:
		switch v := row[c.Column].(type) {
		case float64:
			return entities.NumberObject(v), nil
		case int64:
			return entities.NumberObject(float64(v)), nil
		default:
			return entities.Object{}, fmt.Errorf("column %s holds %T, want number", c.Column, v)
		}
	case entities.ObjectTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, row.Text(c.Column))
		if err != nil {
			return entities.Object{}, fmt.Errorf("column %s: %w", c.Column, err)
		}
		return entities.TimestampObject(ts), nil
	default:
		return entities.StringObject(row.Text(c.Column)), nil
	}
}

func ascending(idx []int) bool {
	for i := 1; i < len(idx); i++ {
		if idx[i] <= idx[i-1] {
			return false
		}
	}
	return true
}

// objectFilter returns the row filter selecting statements with object o.
func objectFilter(o entities.Object) ports.Row {
	if t, ok := o.Entity(); ok {
		return ports.Row{ColObject: int64(t), ColValueType: int64(entities.ObjectEntity)}
	}
	return ports.Row{ColValue: o.Literal(), ColValueType: int64(o.Kind())}
}

func encodeObject(row ports.Row, o entities.Object) {
	row[ColValueType] = int64(o.Kind())
	if t, ok := o.Entity(); ok {
		row[ColObject] = int64(t)
		row[ColValue] = nil
		return
	}
	row[ColObject] = nil
	row[ColValue] = o.Literal()
}

func decodeObject(row ports.Row) (entities.Object, error) {
	kind := entities.ObjectKind(row.Int64(ColValueType))
	if kind == entities.ObjectEntity {
		return entities.EntityObject(entities.Tid(row.Int64(ColObject))), nil
	}
	obj, err := entities.LiteralObject(kind, row.Text(ColValue))
	if err != nil {
		return entities.Object{}, fmt.Errorf("statement %d: %w", row.Int64(ColStatementID), err)
	}
	return obj, nil
}
