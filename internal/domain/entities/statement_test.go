package entities

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateStatementParts(t *testing.T) {
	tests := []struct {
		name      string
		subject   Tid
		predicate Tid
		object    Object
		metadata  Metadata
		wantErr   bool
	}{
		{name: "valid", subject: 1, predicate: PredicateEntityName, object: StringObject("x")},
		{name: "invalid subject", subject: 0, predicate: PredicateEntityName, object: StringObject("x"), wantErr: true},
		{name: "invalid predicate", subject: 1, predicate: -1, object: StringObject("x"), wantErr: true},
		{name: "missing object", subject: 1, predicate: PredicateEntityName, wantErr: true},
		{
			name:      "bad metadata predicate",
			subject:   1,
			predicate: PredicateEntityName,
			object:    StringObject("x"),
			metadata:  Metadata{{Predicate: 0, Object: StringObject("y")}},
			wantErr:   true,
		},
		{
			name:      "bad metadata value",
			subject:   1,
			predicate: PredicateEntityName,
			object:    StringObject("x"),
			metadata:  Metadata{{Predicate: PredicateObjectLang, Object: Object{}}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStatementParts(tt.subject, tt.predicate, tt.object, tt.metadata)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStatement)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommand_Validate(t *testing.T) {
	assert.NoError(t, MakeStatementCommand(1, 2, EntityObject(3), nil).Validate())
	assert.NoError(t, CancelStatementCommand(9, nil).Validate())
	assert.ErrorIs(t, CancelStatementCommand(0, nil).Validate(), ErrInvalidStatement)
	assert.ErrorIs(t, Command{Op: "rename"}.Validate(), ErrInvalidStatement)
}

func TestStatementQuery_Matches(t *testing.T) {
	active := Statement{ID: 10, Subject: 1, Predicate: 2, Object: StringObject("a")}
	cancelled := Statement{ID: 11, Subject: 1, Predicate: 2, Object: StringObject("b"), CancellationID: 12}

	tests := []struct {
		name      string
		query     StatementQuery
		statement Statement
		expected  bool
	}{
		{name: "all wildcards", query: StatementQuery{}, statement: active, expected: true},
		{name: "subject match", query: StatementQuery{Subject: 1}, statement: active, expected: true},
		{name: "subject mismatch", query: StatementQuery{Subject: 5}, statement: active, expected: false},
		{name: "predicate mismatch", query: StatementQuery{Predicate: 3}, statement: active, expected: false},
		{name: "object match", query: StatementQuery{Object: StringObject("a")}, statement: active, expected: true},
		{name: "object kind mismatch", query: StatementQuery{Object: EntityObject(1)}, statement: active, expected: false},
		{name: "cancelled excluded by default", query: StatementQuery{Subject: 1}, statement: cancelled, expected: false},
		{name: "cancelled included on request", query: StatementQuery{Subject: 1, IncludeCancelled: true}, statement: cancelled, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.query.Matches(tt.statement))
		})
	}
}

func TestStatementMetadata(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	md := StatementMetadata(77, ts, "")
	assert.Len(t, md, 2)
	author, ok := md.Get(PredicateStatementAuthor)
	assert.True(t, ok)
	assert.True(t, author.Equal(EntityObject(77)))

	md = CancellationMetadata(77, ts, "duplicate")
	assert.Len(t, md, 3)
	note, ok := md.Get(PredicateCancellationEditorialNote)
	assert.True(t, ok)
	assert.True(t, note.Equal(StringObject("duplicate")))
}

func TestStatement_CloneIsDeep(t *testing.T) {
	st := Statement{ID: 1, Metadata: Metadata{{Predicate: 3001, Object: EntityObject(5)}}}

	clone := st.Clone()
	clone.Metadata[0].Object = EntityObject(6)

	assert.True(t, st.Metadata[0].Object.Equal(EntityObject(5)))
}

func TestBatchError(t *testing.T) {
	err := fmt.Errorf("running batch: %w", &BatchError{Index: 1, Op: OpCancelStatement, Err: ErrStatementNotFound})

	assert.ErrorIs(t, err, ErrStatementNotFound)
	var batchErr *BatchError
	assert.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Index)
	assert.Contains(t, err.Error(), "cancel command 1")
}

func TestBackendError(t *testing.T) {
	assert.NoError(t, BackendError("op", nil))

	wrapped := BackendError("inserting row", errors.New("disk full"))
	assert.ErrorIs(t, wrapped, ErrBackendFailure)
	assert.Contains(t, wrapped.Error(), "disk full")

	notFound := fmt.Errorf("cancel: %w", ErrStatementNotFound)
	assert.Same(t, notFound, BackendError("op", notFound))
}
