package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

func TestEntityHandler_CreateShowRename(t *testing.T) {
	f := newFixture(t)
	h := NewEntityHandler(f.entities)
	ctx := t.Context()

	id, err := h.HandleCreate(ctx, CreateRequest{
		Type:     "person",
		Name:     "Averroes",
		Author:   "300",
		Metadata: []string{"description=s:Philosopher"},
	})
	require.NoError(t, err)

	view, err := h.HandleShow(ctx, id.String(), true)
	require.NoError(t, err)
	assert.Equal(t, id, view.Data.ID)
	assert.Equal(t, entities.TypePerson, view.Data.Type)
	assert.Equal(t, "Averroes", view.Data.Name)
	assert.Zero(t, view.RedirectedFrom)
	desc, ok := view.Data.ObjectForPredicate(entities.PredicateEntityDescription)
	require.True(t, ok)
	assert.True(t, desc.Equal(entities.StringObject("Philosopher")))

	require.NoError(t, h.HandleRename(ctx, id.String(), "Ibn Rushd", "300", "native name"))

	view, err = h.HandleShow(ctx, id.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "Ibn Rushd", view.Data.Name)
	assert.Len(t, view.Data.AllStatementsForPredicate(entities.PredicateEntityName, 0, entities.Object{}), 1)
}

func TestEntityHandler_Errors(t *testing.T) {
	f := newFixture(t)
	h := NewEntityHandler(f.entities)
	ctx := t.Context()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "create without name",
			run: func() error {
				_, err := h.HandleCreate(ctx, CreateRequest{Type: "person", Name: " ", Author: "300"})
				return err
			},
			want: entities.ErrInvalidEntity,
		},
		{
			name: "create with bad type",
			run: func() error {
				_, err := h.HandleCreate(ctx, CreateRequest{Type: "?", Name: "x", Author: "300"})
				return err
			},
			want: entities.ErrInvalidTid,
		},
		{
			name: "show unknown entity",
			run: func() error {
				_, err := h.HandleShow(ctx, "4242", true)
				return err
			},
			want: entities.ErrEntityNotFound,
		},
		{
			name: "rename unknown entity",
			run: func() error {
				return h.HandleRename(ctx, "4242", "x", "300", "")
			},
			want: entities.ErrEntityNotFound,
		},
		{
			name: "merge into itself",
			run: func() error {
				return h.HandleMerge(ctx, "4242", "4242", "300", "")
			},
			want: entities.ErrInvalidEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}
}

func TestEntityHandler_MergeAndList(t *testing.T) {
	f := newFixture(t)
	h := NewEntityHandler(f.entities)
	ctx := t.Context()

	dup, err := h.HandleCreate(ctx, CreateRequest{Type: "person", Name: "Averroes", Author: "300"})
	require.NoError(t, err)
	kept, err := h.HandleCreate(ctx, CreateRequest{Type: "person", Name: "Ibn Rushd", Author: "300"})
	require.NoError(t, err)
	_, err = h.HandleCreate(ctx, CreateRequest{Type: "work", Name: "Tahafut al-Tahafut", Author: "300"})
	require.NoError(t, err)

	require.NoError(t, h.HandleMerge(ctx, dup.String(), kept.String(), "300", "same person"))

	view, err := h.HandleShow(ctx, dup.String(), false)
	require.NoError(t, err)
	assert.Equal(t, dup, view.Data.ID)
	assert.Equal(t, kept, view.Data.MergedInto)

	view, err = h.HandleShow(ctx, dup.String(), true)
	require.NoError(t, err)
	assert.Equal(t, kept, view.Data.ID)
	assert.Equal(t, dup, view.RedirectedFrom)

	list, err := h.HandleList(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, entities.TypePerson, list.Type)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, kept, list.Entities[0].ID)

	err = h.HandleMerge(ctx, dup.String(), kept.String(), "300", "")
	assert.ErrorIs(t, err, entities.ErrInvalidEntity)
}
