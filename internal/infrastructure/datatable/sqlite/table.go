package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/ersonp/tidstore/internal/domain/ports"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Table implements ports.DataTable on one SQLite table. A Table obtained
// inside RunInTransaction is bound to that transaction and must not be
// used after the transaction function returns.
type Table struct {
	db     *sql.DB
	q      querier
	schema ports.TableSchema
}

// Schema returns the table schema.
func (t *Table) Schema() ports.TableSchema {
	return t.schema
}

// CreateRow inserts a row.
func (t *Table) CreateRow(ctx context.Context, row ports.Row) (int64, error) {
	cols, args, err := t.columnsAndArgs(row)
	if err != nil {
		return 0, err
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(t.schema.Name))
	} else {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quote(c)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(t.schema.Name), strings.Join(quoted, ", "), placeholders(len(cols)))
	}

	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", t.schema.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading row id: %w", err)
	}
	return id, nil
}

// UpdateRow sets the given columns of a row.
func (t *Table) UpdateRow(ctx context.Context, id int64, values ports.Row) error {
	cols, args, err := t.columnsAndArgs(values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		_, err := t.GetRow(ctx, id)
		return err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quote(t.schema.Name), strings.Join(sets, ", "), quote(ports.RowIDColumn))

	res, err := t.q.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return fmt.Errorf("updating %s row %d: %w", t.schema.Name, id, err)
	}
	return checkAffected(res, id)
}

// DeleteRow removes a row.
func (t *Table) DeleteRow(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(t.schema.Name), quote(ports.RowIDColumn))
	res, err := t.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting %s row %d: %w", t.schema.Name, id, err)
	}
	return checkAffected(res, id)
}

// GetRow returns one row.
func (t *Table) GetRow(ctx context.Context, id int64) (ports.Row, error) {
	rows, err := t.FindRows(ctx, ports.Row{ports.RowIDColumn: id}, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("row %d: %w", id, ports.ErrRowNotFound)
	}
	return rows[0], nil
}

// FindRows returns matching rows ordered by id.
func (t *Table) FindRows(ctx context.Context, filter ports.Row, limit int) ([]ports.Row, error) {
	cols := make([]string, 0, len(filter))
	for c := range filter {
		if !t.schema.HasColumn(c) {
			return nil, fmt.Errorf("table %s has no column %q", t.schema.Name, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var (
		where []string
		args  []any
	)
	for _, c := range cols {
		v, err := ports.NormalizeValue(filter[c])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		if v == nil {
			where = append(where, quote(c)+" IS NULL")
			continue
		}
		where = append(where, quote(c)+" = ?")
		args = append(args, v)
	}

	query := "SELECT * FROM " + quote(t.schema.Name)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + quote(ports.RowIDColumn)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return t.queryRows(ctx, query, args...)
}

// SupportsTransactions reports true.
func (t *Table) SupportsTransactions() bool {
	return true
}

// RunInTransaction runs fn inside a database transaction. Called on a
// transaction-bound Table it joins the running transaction.
func (t *Table) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.DataTable) error) error {
	if t.db == nil {
		return fn(ctx, t)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(ctx, &Table{q: tx, schema: t.schema}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *Table) columnsAndArgs(row ports.Row) ([]string, []any, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		if c == ports.RowIDColumn {
			continue
		}
		if !t.schema.HasColumn(c) {
			return nil, nil, fmt.Errorf("table %s has no column %q", t.schema.Name, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := ports.NormalizeValue(row[c])
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", c, err)
		}
		args[i] = v
	}
	return cols, args, nil
}

func (t *Table) queryRows(ctx context.Context, query string, args ...any) ([]ports.Row, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.schema.Name, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []ports.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.schema.Name, err)
		}
		row := make(ports.Row, len(names))
		for i, name := range names {
			v, err := ports.NormalizeValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", t.schema.Name, err)
	}
	return out, nil
}

func checkAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("row %d: %w", id, ports.ErrRowNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
