// Package datatable stores statements as rows of a ports.DataTable.
//
// Each statement is one row. Metadata pairs whose predicate has a mapped
// column are written to that column; the rest go to a JSON overflow column
// that also records where the mapped pairs sat, so the original order of
// the pairs survives a round trip.
package datatable

import (
	"fmt"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Fixed column names of the statements table.
const (
	ColStatementID               = "statementId"
	ColSubject                   = "subject"
	ColPredicate                 = "predicate"
	ColObject                    = "object"
	ColValue                     = "value"
	ColValueType                 = "valueType"
	ColExtraMetadata             = "extraMetadata"
	ColCancellationID            = "cancellationId"
	ColExtraCancellationMetadata = "extraCancellationMetadata"
)

var fixedColumns = map[string]bool{
	ports.RowIDColumn:            true,
	ColStatementID:               true,
	ColSubject:                   true,
	ColPredicate:                 true,
	ColObject:                    true,
	ColValue:                     true,
	ColValueType:                 true,
	ColExtraMetadata:             true,
	ColCancellationID:            true,
	ColExtraCancellationMetadata: true,
}

// QualifierColumn promotes one metadata predicate to its own column.
type QualifierColumn struct {
	Column    string
	Predicate entities.Tid
	// Cancellation selects cancellation metadata instead of statement metadata.
	Cancellation bool
	Kind         entities.ObjectKind
}

func (c QualifierColumn) columnType() ports.ColumnType {
	switch c.Kind {
	case entities.ObjectEntity:
		return ports.ColumnInteger
	case entities.ObjectNumber:
		return ports.ColumnReal
	default:
		return ports.ColumnText
	}
}

// Schema returns the table layout for the given qualifier columns.
func Schema(table string, columns []QualifierColumn) ports.TableSchema {
	cols := []ports.Column{
		{Name: ColStatementID, Type: ports.ColumnInteger, Indexed: true},
		{Name: ColSubject, Type: ports.ColumnInteger, Indexed: true},
		{Name: ColPredicate, Type: ports.ColumnInteger, Indexed: true},
		{Name: ColObject, Type: ports.ColumnInteger, Indexed: true},
		{Name: ColValue, Type: ports.ColumnText, Indexed: true},
		{Name: ColValueType, Type: ports.ColumnInteger},
	}
	for _, c := range columns {
		if !c.Cancellation {
			cols = append(cols, ports.Column{Name: c.Column, Type: c.columnType(), Indexed: true})
		}
	}
	cols = append(cols,
		ports.Column{Name: ColExtraMetadata, Type: ports.ColumnText},
		ports.Column{Name: ColCancellationID, Type: ports.ColumnInteger, Indexed: true},
	)
	for _, c := range columns {
		if c.Cancellation {
			cols = append(cols, ports.Column{Name: c.Column, Type: c.columnType(), Indexed: true})
		}
	}
	cols = append(cols, ports.Column{Name: ColExtraCancellationMetadata, Type: ports.ColumnText})
	return ports.TableSchema{Name: table, Columns: cols}
}

func validateColumns(columns []QualifierColumn) error {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c.Column == "" || fixedColumns[c.Column] {
			return fmt.Errorf("qualifier column %q clashes with a fixed column", c.Column)
		}
		if seen[c.Column] {
			return fmt.Errorf("qualifier column %q declared twice", c.Column)
		}
		seen[c.Column] = true
		if !c.Predicate.Valid() {
			return fmt.Errorf("qualifier column %s: invalid predicate %d", c.Column, c.Predicate)
		}
		if c.Kind == entities.ObjectNone {
			return fmt.Errorf("qualifier column %s: no kind", c.Column)
		}
	}
	return nil
}
