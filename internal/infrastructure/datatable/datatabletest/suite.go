// Package datatabletest holds the behaviour every ports.DataTable
// implementation must show.
package datatabletest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Schema is the table layout the suite works with.
var Schema = ports.TableSchema{
	Name: "people",
	Columns: []ports.Column{
		{Name: "name", Type: ports.ColumnText, Indexed: true},
		{Name: "age", Type: ports.ColumnInteger},
		{Name: "score", Type: ports.ColumnReal},
		{Name: "photo", Type: ports.ColumnBlob},
		{Name: "note", Type: ports.ColumnText},
	},
}

// Factory creates an empty table with the given schema.
type Factory func(t *testing.T, schema ports.TableSchema) ports.DataTable

// Run runs the suite.
func Run(t *testing.T, newTable Factory) {
	t.Run("create and get", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()

		id, err := table.CreateRow(ctx, ports.Row{"name": "ada", "age": 36, "score": 1.5, "photo": []byte{1, 2}})
		require.NoError(t, err)
		assert.Positive(t, id)

		row, err := table.GetRow(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, row.Int64(ports.RowIDColumn))
		assert.Equal(t, "ada", row.Text("name"))
		assert.Equal(t, int64(36), row.Int64("age"))
		assert.Equal(t, 1.5, row["score"])
		assert.Equal(t, []byte{1, 2}, row.Bytes("photo"))
		assert.True(t, row.IsNull("note"))

		second, err := table.CreateRow(ctx, ports.Row{"name": "bob"})
		require.NoError(t, err)
		assert.Greater(t, second, id)
	})

	t.Run("unknown column is rejected", func(t *testing.T) {
		table := newTable(t, Schema)
		_, err := table.CreateRow(context.Background(), ports.Row{"nope": 1})
		assert.Error(t, err)
	})

	t.Run("update and delete", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()
		id, err := table.CreateRow(ctx, ports.Row{"name": "ada", "note": "x"})
		require.NoError(t, err)

		require.NoError(t, table.UpdateRow(ctx, id, ports.Row{"age": int64(37), "note": nil}))
		row, err := table.GetRow(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "ada", row.Text("name"), "untouched columns keep their value")
		assert.Equal(t, int64(37), row.Int64("age"))
		assert.True(t, row.IsNull("note"))

		require.NoError(t, table.DeleteRow(ctx, id))
		_, err = table.GetRow(ctx, id)
		assert.True(t, errors.Is(err, ports.ErrRowNotFound))

		assert.ErrorIs(t, table.UpdateRow(ctx, id, ports.Row{"age": 1}), ports.ErrRowNotFound)
		assert.ErrorIs(t, table.DeleteRow(ctx, id), ports.ErrRowNotFound)
	})

	t.Run("find rows", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()
		for _, r := range []ports.Row{
			{"name": "ada", "age": 36},
			{"name": "bob", "age": 36, "note": "n"},
			{"name": "cy", "age": 20},
			{"name": "ada", "age": 50, "note": "n"},
		} {
			_, err := table.CreateRow(ctx, r)
			require.NoError(t, err)
		}

		tests := []struct {
			name   string
			filter ports.Row
			limit  int
			names  []string
		}{
			{name: "empty filter", filter: nil, names: []string{"ada", "bob", "cy", "ada"}},
			{name: "one column", filter: ports.Row{"age": 36}, names: []string{"ada", "bob"}},
			{name: "two columns", filter: ports.Row{"name": "ada", "age": int64(50)}, names: []string{"ada"}},
			{name: "null matches", filter: ports.Row{"note": nil}, names: []string{"ada", "cy"}},
			{name: "limit", filter: ports.Row{"note": "n"}, limit: 1, names: []string{"bob"}},
			{name: "no match", filter: ports.Row{"name": "zed"}, names: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rows, err := table.FindRows(ctx, tt.filter, tt.limit)
				require.NoError(t, err)
				names := make([]string, len(rows))
				for i, r := range rows {
					names[i] = r.Text("name")
				}
				assert.Equal(t, tt.names, names)
			})
		}

		_, err := table.FindRows(ctx, ports.Row{"nope": 1}, 0)
		assert.Error(t, err)
	})

	t.Run("transaction commits", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()
		if !table.SupportsTransactions() {
			t.Skip("no transactions")
		}

		var created int64
		err := table.RunInTransaction(ctx, func(ctx context.Context, tx ports.DataTable) error {
			id, err := tx.CreateRow(ctx, ports.Row{"name": "ada"})
			if err != nil {
				return err
			}
			created = id
			rows, err := tx.FindRows(ctx, ports.Row{"name": "ada"}, 0)
			if err != nil {
				return err
			}
			assert.Len(t, rows, 1, "a transaction sees its own writes")
			return tx.UpdateRow(ctx, id, ports.Row{"age": 1})
		})
		require.NoError(t, err)

		row, err := table.GetRow(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, int64(1), row.Int64("age"))
	})

	t.Run("transaction rolls back", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()
		if !table.SupportsTransactions() {
			t.Skip("no transactions")
		}
		keep, err := table.CreateRow(ctx, ports.Row{"name": "keep", "age": 1})
		require.NoError(t, err)

		boom := errors.New("boom")
		err = table.RunInTransaction(ctx, func(ctx context.Context, tx ports.DataTable) error {
			if _, err := tx.CreateRow(ctx, ports.Row{"name": "temp"}); err != nil {
				return err
			}
			if err := tx.UpdateRow(ctx, keep, ports.Row{"age": 2}); err != nil {
				return err
			}
			if err := tx.DeleteRow(ctx, keep); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		rows, err := table.FindRows(ctx, nil, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "keep", rows[0].Text("name"))
		assert.Equal(t, int64(1), rows[0].Int64("age"))
	})

	t.Run("nested transaction joins the outer one", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()
		if !table.SupportsTransactions() {
			t.Skip("no transactions")
		}

		err := table.RunInTransaction(ctx, func(ctx context.Context, tx ports.DataTable) error {
			return tx.RunInTransaction(ctx, func(ctx context.Context, inner ports.DataTable) error {
				_, err := inner.CreateRow(ctx, ports.Row{"name": "nested"})
				return err
			})
		})
		require.NoError(t, err)

		rows, err := table.FindRows(ctx, ports.Row{"name": "nested"}, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("returned rows are copies", func(t *testing.T) {
		table := newTable(t, Schema)
		ctx := context.Background()
		id, err := table.CreateRow(ctx, ports.Row{"name": "ada"})
		require.NoError(t, err)

		row, err := table.GetRow(ctx, id)
		require.NoError(t, err)
		row["name"] = "changed"

		again, err := table.GetRow(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "ada", again.Text("name"))
	})
}
