package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/datatable/memory"
	"github.com/ersonp/tidstore/internal/infrastructure/statementstorage/datatable"
)

func newTableStorage(t *testing.T) ports.StatementStorage {
	t.Helper()
	s, err := datatable.New(memory.NewTable(datatable.Schema("statements", nil)), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

// failingBatches fails every StoreBatch call.
type failingBatches struct {
	ports.StatementStorage
}

func (failingBatches) StoreBatch(_ context.Context, cmds []entities.Command) error {
	return &entities.BatchError{Index: len(cmds) - 1, Op: cmds[len(cmds)-1].Op, Err: errors.New("disk full")}
}

type fixture struct {
	multi   *Storage
	primary ports.StatementStorage
	routed  ports.StatementStorage
	legacy  ports.StatementStorage
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		primary: newTableStorage(t),
		routed:  newTableStorage(t),
		legacy:  newTableStorage(t),
	}
	m, err := New(
		Backend{Name: "primary", Storage: f.primary},
		[]Route{{Backend: Backend{Name: "descriptions", Storage: f.routed}, Predicates: []entities.Tid{entities.PredicateEntityDescription}}},
		[]Backend{{Name: "legacy", Storage: f.legacy}},
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	f.multi = m
	return f
}

func ids(sts []entities.Statement) []entities.Tid {
	var out []entities.Tid
	for _, st := range sts {
		out = append(out, st.ID)
	}
	return out
}

func name(id, subject entities.Tid, s string) entities.Statement {
	return entities.Statement{ID: id, Subject: subject, Predicate: entities.PredicateEntityName, Object: entities.StringObject(s)}
}

func description(id, subject entities.Tid, s string) entities.Statement {
	return entities.Statement{ID: id, Subject: subject, Predicate: entities.PredicateEntityDescription, Object: entities.StringObject(s)}
}

func TestNew(t *testing.T) {
	s := newTableStorage(t)

	_, err := New(Backend{Name: "none"}, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Backend{Name: "a", Storage: s}, []Route{
		{Backend: Backend{Name: "b", Storage: s}, Predicates: []entities.Tid{5}},
		{Backend: Backend{Name: "c", Storage: s}, Predicates: []entities.Tid{5}},
	}, nil, nil)
	assert.ErrorContains(t, err, "routed twice")
}

func TestNew_FoldsRoutesSharingAStorage(t *testing.T) {
	primary, other := newTableStorage(t), newTableStorage(t)

	s, err := New(Backend{Name: "sqlite", Storage: primary}, []Route{
		{Backend: Backend{Name: "sqlite", Storage: primary}, Predicates: []entities.Tid{5}},
		{Backend: Backend{Name: "qdrant", Storage: other}, Predicates: []entities.Tid{6}},
		{Backend: Backend{Name: "qdrant", Storage: other}, Predicates: []entities.Tid{6, 7}},
	}, nil, nil)
	require.NoError(t, err)

	assert.Len(t, s.writable, 2)
	assert.Equal(t, 0, s.forPredicate(5))
	assert.Equal(t, 1, s.forPredicate(6))
	assert.Equal(t, 1, s.forPredicate(7))
	assert.Equal(t, 0, s.forPredicate(8))
}

func TestStorage_Routing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.multi.StoreStatement(ctx, name(10, 1, "ada")))
	require.NoError(t, f.multi.StoreStatement(ctx, description(11, 1, "mathematician")))

	_, err := f.primary.RetrieveStatement(ctx, 10)
	assert.NoError(t, err)
	_, err = f.routed.RetrieveStatement(ctx, 11)
	assert.NoError(t, err)
	_, err = f.primary.RetrieveStatement(ctx, 11)
	assert.ErrorIs(t, err, entities.ErrStatementNotFound)

	sts, err := f.multi.FindStatements(ctx, entities.StatementQuery{Subject: 1})
	require.NoError(t, err)
	assert.Equal(t, []entities.Tid{10, 11}, ids(sts))
}

func TestStorage_MergesLegacy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 20 lives in both storages and is cancelled only in the primary one.
	require.NoError(t, f.legacy.StoreStatement(ctx, name(20, 1, "old")))
	require.NoError(t, f.legacy.StoreStatement(ctx, name(21, 1, "legacy only")))
	require.NoError(t, f.primary.StoreStatement(ctx, name(20, 1, "old")))
	require.NoError(t, f.primary.CancelStatement(ctx, 20, 22, nil))
	require.NoError(t, f.primary.StoreStatement(ctx, name(23, 1, "new")))

	sts, err := f.multi.FindStatements(ctx, entities.StatementQuery{Subject: 1})
	require.NoError(t, err)
	assert.Equal(t, []entities.Tid{21, 23}, ids(sts))

	sts, err = f.multi.FindStatements(ctx, entities.StatementQuery{Subject: 1, IncludeCancelled: true})
	require.NoError(t, err)
	require.Equal(t, []entities.Tid{20, 21, 23}, ids(sts))
	assert.True(t, sts[0].IsCancelled(), "the cancelled copy wins")

	st, err := f.multi.RetrieveStatement(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, entities.Tid(22), st.CancellationID)

	_, err = f.multi.RetrieveStatement(ctx, 99)
	assert.ErrorIs(t, err, entities.ErrStatementNotFound)
}

func TestStorage_CancelMigratesLegacyStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.legacy.StoreStatement(ctx, description(30, 1, "legacy")))

	require.NoError(t, f.multi.CancelStatement(ctx, 30, 31, nil))
	assert.ErrorIs(t, f.multi.CancelStatement(ctx, 30, 32, nil), entities.ErrStatementAlreadyCancelled)

	st, err := f.routed.RetrieveStatement(ctx, 30)
	require.NoError(t, err, "copied to the routed storage")
	assert.Equal(t, entities.Tid(31), st.CancellationID)

	legacy, err := f.legacy.RetrieveStatement(ctx, 30)
	require.NoError(t, err)
	assert.False(t, legacy.IsCancelled(), "legacy storages are never written")

	sts, err := f.multi.FindStatements(ctx, entities.StatementQuery{Subject: 1})
	require.NoError(t, err)
	assert.Empty(t, sts)
}

func TestStorage_StoreBatch(t *testing.T) {
	t.Run("spans storages", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.legacy.StoreStatement(ctx, name(40, 1, "legacy")))

		mkName := entities.MakeStatementCommand(1, entities.PredicateEntityName, entities.StringObject("new"), nil)
		mkName.StatementID = 41
		mkDesc := entities.MakeStatementCommand(1, entities.PredicateEntityDescription, entities.StringObject("d"), nil)
		mkDesc.StatementID = 42
		cancel := entities.CancelStatementCommand(40, nil)
		cancel.CancellationID = 43

		require.NoError(t, f.multi.StoreBatch(ctx, []entities.Command{mkName, mkDesc, cancel}))

		sts, err := f.multi.FindStatements(ctx, entities.StatementQuery{Subject: 1})
		require.NoError(t, err)
		assert.Equal(t, []entities.Tid{41, 42}, ids(sts))
	})

	t.Run("failing group reverts committed groups", func(t *testing.T) {
		primary := newTableStorage(t)
		m, err := New(
			Backend{Name: "primary", Storage: primary},
			[]Route{{Backend: Backend{Name: "broken", Storage: failingBatches{newTableStorage(t)}}, Predicates: []entities.Tid{entities.PredicateEntityDescription}}},
			nil,
			zaptest.NewLogger(t),
		)
		require.NoError(t, err)
		ctx := context.Background()

		mkName := entities.MakeStatementCommand(1, entities.PredicateEntityName, entities.StringObject("n"), nil)
		mkName.StatementID = 50
		mkDesc := entities.MakeStatementCommand(1, entities.PredicateEntityDescription, entities.StringObject("d"), nil)
		mkDesc.StatementID = 51

		err = m.StoreBatch(ctx, []entities.Command{mkName, mkDesc})
		var batchErr *entities.BatchError
		require.True(t, errors.As(err, &batchErr))
		assert.Equal(t, 1, batchErr.Index)
		assert.ErrorContains(t, err, "disk full")

		_, err = primary.RetrieveStatement(ctx, 50)
		assert.ErrorIs(t, err, entities.ErrStatementNotFound)
	})

	t.Run("cancel of unknown statement", func(t *testing.T) {
		f := newFixture(t)
		cancel := entities.CancelStatementCommand(99, nil)
		cancel.CancellationID = 100

		err := f.multi.StoreBatch(context.Background(), []entities.Command{cancel})
		var batchErr *entities.BatchError
		require.True(t, errors.As(err, &batchErr))
		assert.Equal(t, 0, batchErr.Index)
		assert.ErrorIs(t, err, entities.ErrStatementNotFound)
	})
}
