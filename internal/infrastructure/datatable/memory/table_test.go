package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/datatable/datatabletest"
)

func TestTable(t *testing.T) {
	datatabletest.Run(t, func(_ *testing.T, schema ports.TableSchema) ports.DataTable {
		return NewTable(schema)
	})
}

func TestTable_NamedIntegerValues(t *testing.T) {
	table := NewTable(datatabletest.Schema)
	ctx := context.Background()

	_, err := table.CreateRow(ctx, ports.Row{"age": entities.Tid(42)})
	require.NoError(t, err)

	rows, err := table.FindRows(ctx, ports.Row{"age": 42}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTable_ConcurrentWriters(t *testing.T) {
	table := NewTable(datatabletest.Schema)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := table.RunInTransaction(ctx, func(ctx context.Context, tx ports.DataTable) error {
				_, err := tx.CreateRow(ctx, ports.Row{"name": "tx"})
				return err
			})
			assert.NoError(t, err)
			_, err = table.CreateRow(ctx, ports.Row{"name": "plain"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := table.FindRows(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 20)
}
