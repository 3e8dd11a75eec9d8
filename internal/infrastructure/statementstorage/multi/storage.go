// Package multi spreads one logical statement store over several physical
// storages. Writes go to the storage routed for the statement predicate;
// reads consult every storage, including read-only legacy ones kept around
// during migrations, and merge the results by statement id.
package multi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Backend is a named storage.
type Backend struct {
	Name    string
	Storage ports.StatementStorage
}

// Route sends the statements of some predicates to a storage other than
// the default one.
type Route struct {
	Backend
	Predicates []entities.Tid
}

// Storage implements ports.StatementStorage over several storages.
type Storage struct {
	writable []Backend
	legacy   []Backend
	routes   map[entities.Tid]int
	logger   *zap.Logger
}

// New creates a Storage. Index 0 of the writable storages is always the
// default one.
func New(def Backend, routes []Route, legacy []Backend, logger *zap.Logger) (*Storage, error) {
	if def.Storage == nil {
		return nil, errors.New("multi storage needs a default storage")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		writable: []Backend{def},
		routes:   make(map[entities.Tid]int),
		logger:   logger,
	}
	// Routes naming an already known storage share its index, so a batch
	// touching them commits as one group.
	index := map[string]int{def.Name: 0}
	for _, r := range routes {
		if r.Storage == nil {
			return nil, fmt.Errorf("route %s has no storage", r.Name)
		}
		i, known := index[r.Name]
		if !known || r.Name == "" {
			s.writable = append(s.writable, r.Backend)
			i = len(s.writable) - 1
			if r.Name != "" {
				index[r.Name] = i
			}
		}
		for _, p := range r.Predicates {
			if prev, dup := s.routes[p]; dup && prev != i {
				return nil, fmt.Errorf("predicate %d routed twice", p)
			}
			s.routes[p] = i
		}
	}
	for _, l := range legacy {
		if l.Storage == nil {
			return nil, fmt.Errorf("legacy storage %s is nil", l.Name)
		}
		s.legacy = append(s.legacy, l)
	}
	return s, nil
}

func (s *Storage) forPredicate(predicate entities.Tid) int {
	if i, ok := s.routes[predicate]; ok {
		return i
	}
	return 0
}

// StoreStatement writes to the storage routed for the predicate.
func (s *Storage) StoreStatement(ctx context.Context, st entities.Statement) error {
	return s.writable[s.forPredicate(st.Predicate)].Storage.StoreStatement(ctx, st)
}

// CancelStatement cancels the statement in the writable storage holding it.
// A statement found only in a legacy storage is first copied to its routed
// storage and cancelled there.
func (s *Storage) CancelStatement(
	ctx context.Context,
	statementID, cancellationID entities.Tid,
	md entities.Metadata,
) error {
	st, owner, err := s.locate(ctx, statementID)
	if err != nil {
		return err
	}
	if st.IsCancelled() {
		return fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementAlreadyCancelled)
	}
	if owner < 0 {
		owner = s.forPredicate(st.Predicate)
		if err := s.writable[owner].Storage.StoreStatement(ctx, st); err != nil {
			return fmt.Errorf("migrating statement %d to %s: %w", statementID, s.writable[owner].Name, err)
		}
		s.logger.Info("statement migrated from legacy storage",
			zap.Int64("statement_id", int64(statementID)),
			zap.String("storage", s.writable[owner].Name))
	}
	return s.writable[owner].Storage.CancelStatement(ctx, statementID, cancellationID, md)
}

// RetrieveStatement looks the statement up in every storage.
func (s *Storage) RetrieveStatement(ctx context.Context, statementID entities.Tid) (entities.Statement, error) {
	st, _, err := s.locate(ctx, statementID)
	return st, err
}

// locate returns the merged statement and the index of the writable storage
// holding it, or -1 when only legacy storages have it.
func (s *Storage) locate(ctx context.Context, statementID entities.Tid) (entities.Statement, int, error) {
	all := s.all()
	found := make([]*entities.Statement, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range all {
		g.Go(func() error {
			st, err := b.Storage.RetrieveStatement(gctx, statementID)
			if errors.Is(err, entities.ErrStatementNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name, err)
			}
			found[i] = &st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entities.Statement{}, -1, err
	}

	owner := -1
	var best *entities.Statement
	for i, st := range found {
		if st == nil {
			continue
		}
		if owner < 0 && i < len(s.writable) {
			owner = i
		}
		if best == nil || (st.IsCancelled() && !best.IsCancelled()) {
			best = st
		}
	}
	if best == nil {
		return entities.Statement{}, -1, fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementNotFound)
	}
	return *best, owner, nil
}

// FindStatements queries every storage in parallel and merges the results.
// Cancellation is filtered after the merge so that a cancelled copy in one
// storage hides an active copy in another.
func (s *Storage) FindStatements(ctx context.Context, q entities.StatementQuery) ([]entities.Statement, error) {
	all := s.all()
	results := make([][]entities.Statement, len(all))

	wide := q
	wide.IncludeCancelled = true

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range all {
		g.Go(func() error {
			sts, err := b.Storage.FindStatements(gctx, wide)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name, err)
			}
			results[i] = sts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[entities.Tid]entities.Statement)
	for _, sts := range results {
		for _, st := range sts {
			if prev, ok := merged[st.ID]; ok && (prev.IsCancelled() || !st.IsCancelled()) {
				continue
			}
			merged[st.ID] = st
		}
	}

	out := make([]entities.Statement, 0, len(merged))
	for _, st := range merged {
		if st.IsCancelled() && !q.IncludeCancelled {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// group is the part of a batch that goes to one writable storage.
type group struct {
	storage int
	cmds    []entities.Command
	// origin maps each command back to its index in the caller's batch.
	origin []int
}

// StoreBatch splits the batch per storage and commits the groups one after
// the other. When a group fails, the groups already committed are reverted.
func (s *Storage) StoreBatch(ctx context.Context, cmds []entities.Command) error {
	groups, err := s.plan(ctx, cmds)
	if err != nil {
		return err
	}

	for gi, grp := range groups {
		err := s.writable[grp.storage].Storage.StoreBatch(ctx, grp.cmds)
		if err == nil {
			continue
		}

		idx := grp.origin[0]
		var batchErr *entities.BatchError
		if errors.As(err, &batchErr) && batchErr.Index < len(grp.origin) {
			idx = grp.origin[batchErr.Index]
			err = batchErr.Err
		}

		for ri := gi - 1; ri >= 0; ri-- {
			done := groups[ri]
			if rvErr := s.writable[done.storage].Storage.RevertBatch(ctx, done.cmds); rvErr != nil {
				s.logger.Error("reverting committed batch group failed",
					zap.String("storage", s.writable[done.storage].Name),
					zap.Error(rvErr))
				err = errors.Join(err, rvErr)
			}
		}
		return &entities.BatchError{Index: idx, Op: cmds[idx].Op, Err: err}
	}
	return nil
}

// plan assigns every command to a writable storage. Cancellations of
// statements that only exist in a legacy storage get a copy of the
// statement prepended in the target group.
func (s *Storage) plan(ctx context.Context, cmds []entities.Command) ([]*group, error) {
	var groups []*group
	byStorage := make(map[int]*group)
	made := make(map[entities.Tid]int)

	add := func(storage, origin int, cmd entities.Command) {
		grp, ok := byStorage[storage]
		if !ok {
			grp = &group{storage: storage}
			byStorage[storage] = grp
			groups = append(groups, grp)
		}
		grp.cmds = append(grp.cmds, cmd)
		grp.origin = append(grp.origin, origin)
	}

	for i, cmd := range cmds {
		switch cmd.Op {
		case entities.OpMakeStatement:
			target := s.forPredicate(cmd.Predicate)
			made[cmd.StatementID] = target
			add(target, i, cmd)
		case entities.OpCancelStatement:
			if target, ok := made[cmd.StatementID]; ok {
				add(target, i, cmd)
				continue
			}
			st, owner, err := s.locate(ctx, cmd.StatementID)
			if err != nil {
				return nil, &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
			}
			if owner < 0 {
				owner = s.forPredicate(st.Predicate)
				cp := entities.MakeStatementCommand(st.Subject, st.Predicate, st.Object, st.Metadata)
				cp.StatementID = st.ID
				add(owner, i, cp)
			}
			add(owner, i, cmd)
		default:
			return nil, &entities.BatchError{
				Index: i,
				Op:    cmd.Op,
				Err:   fmt.Errorf("%w: unknown command %q", entities.ErrInvalidStatement, cmd.Op),
			}
		}
	}
	return groups, nil
}

// RevertBatch asks every writable storage to revert the batch. Storages
// ignore commands for statements they don't hold.
func (s *Storage) RevertBatch(ctx context.Context, cmds []entities.Command) error {
	var errs []error
	for _, b := range s.writable {
		if err := b.Storage.RevertBatch(ctx, cmds); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Storage) all() []Backend {
	out := make([]Backend, 0, len(s.writable)+len(s.legacy))
	out = append(out, s.writable...)
	return append(out, s.legacy...)
}
