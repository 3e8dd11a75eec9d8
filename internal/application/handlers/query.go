package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/services"
)

// QueryHandler handles statement queries.
type QueryHandler struct {
	store *services.StatementStore
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(store *services.StatementStore) *QueryHandler {
	return &QueryHandler{
		store: store,
	}
}

// QueryParams are the string-level filters of a query. Empty fields match
// anything.
type QueryParams struct {
	Subject          string
	Predicate        string
	Object           string
	IncludeCancelled bool
}

// QueryResult contains the result of a query.
type QueryResult struct {
	Query      entities.StatementQuery `json:"query"`
	Statements []entities.Statement    `json:"statements"`
}

// Handle returns the statements matching the filters.
func (h *QueryHandler) Handle(ctx context.Context, params QueryParams) (*QueryResult, error) {
	q := entities.StatementQuery{IncludeCancelled: params.IncludeCancelled}
	var err error
	if params.Subject != "" {
		if q.Subject, err = ParseID(params.Subject); err != nil {
			return nil, err
		}
	}
	if params.Predicate != "" {
		if q.Predicate, err = ParseID(params.Predicate); err != nil {
			return nil, err
		}
	}
	if params.Object != "" {
		if q.Object, err = ParseObject(params.Object); err != nil {
			return nil, err
		}
	}

	sts, err := h.store.GetStatements(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying statements: %w", err)
	}
	return &QueryResult{
		Query:      q,
		Statements: sts,
	}, nil
}
