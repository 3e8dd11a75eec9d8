package a

import "context"

type StatementStore struct{}

func (s *StatementStore) MakeStatement(ctx context.Context, subject, predicate int64, object string) (int64, error) {
	return 0, nil
}

func (s *StatementStore) CancelStatement(ctx context.Context, id int64) (int64, error) {
	return 0, nil
}

type Storage struct{}

func (s Storage) CancelStatement(ctx context.Context, id int64) error {
	return nil
}

func bad(ctx context.Context, names []string, ids []int64, store *StatementStore) {
	for _, name := range names {
		store.MakeStatement(ctx, 1, 2002, name) // want "MakeStatement called inside loop"
	}
	for i := 0; i < len(ids); i++ {
		store.CancelStatement(ctx, ids[i]) // want "CancelStatement called inside loop"
	}
}

func good(ctx context.Context, ids []int64, store *StatementStore, storage Storage) {
	// Storage-level cancels apply a batch one step at a time - should not flag
	for _, id := range ids {
		storage.CancelStatement(ctx, id)
	}
	store.CancelStatement(ctx, 1)
}
