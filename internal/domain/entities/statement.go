package entities

import (
	"fmt"
	"time"
)

// MetadataPair is one (predicate, value) qualifier attached to a statement
// or to its cancellation.
type MetadataPair struct {
	Predicate Tid    `json:"p"`
	Object    Object `json:"o"`
}

// Metadata is an ordered list of qualifiers.
type Metadata []MetadataPair

// Validate checks every pair.
func (m Metadata) Validate() error {
	for i, pair := range m {
		if !pair.Predicate.Valid() {
			return fmt.Errorf("metadata %d: invalid predicate %d", i, pair.Predicate)
		}
		if err := pair.Object.Validate(); err != nil {
			return fmt.Errorf("metadata %d: %w", i, err)
		}
	}
	return nil
}

// Get returns the value of the first pair with the given predicate.
func (m Metadata) Get(predicate Tid) (Object, bool) {
	for _, pair := range m {
		if pair.Predicate == predicate {
			return pair.Object, true
		}
	}
	return Object{}, false
}

// Clone returns a copy that shares no backing array with m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	copy(out, m)
	return out
}

// StatementMetadata builds the usual metadata for a new statement.
func StatementMetadata(author Tid, ts time.Time, note string) Metadata {
	md := Metadata{
		{Predicate: PredicateStatementAuthor, Object: EntityObject(author)},
		{Predicate: PredicateStatementTimestamp, Object: TimestampObject(ts)},
	}
	if note != "" {
		md = append(md, MetadataPair{Predicate: PredicateStatementEditorialNote, Object: StringObject(note)})
	}
	return md
}

// CancellationMetadata builds the usual metadata for a cancellation.
func CancellationMetadata(cancelledBy Tid, ts time.Time, note string) Metadata {
	md := Metadata{
		{Predicate: PredicateCancelledBy, Object: EntityObject(cancelledBy)},
		{Predicate: PredicateCancellationTimestamp, Object: TimestampObject(ts)},
	}
	if note != "" {
		md = append(md, MetadataPair{Predicate: PredicateCancellationEditorialNote, Object: StringObject(note)})
	}
	return md
}

// Statement is an immutable (subject, predicate, object) fact. The only
// transition a stored statement ever makes is from active to cancelled.
type Statement struct {
	ID        Tid      `json:"id"`
	Subject   Tid      `json:"subject"`
	Predicate Tid      `json:"predicate"`
	Object    Object   `json:"object"`
	Metadata  Metadata `json:"metadata,omitempty"`

	// CancellationID is 0 while the statement is active.
	CancellationID       Tid      `json:"cancellation_id,omitempty"`
	CancellationMetadata Metadata `json:"cancellation_metadata,omitempty"`
}

// IsCancelled reports whether the statement has been cancelled.
func (s Statement) IsCancelled() bool {
	return s.CancellationID != 0
}

// Clone returns a deep copy.
func (s Statement) Clone() Statement {
	s.Metadata = s.Metadata.Clone()
	s.CancellationMetadata = s.CancellationMetadata.Clone()
	return s
}

// ValidateStatementParts checks the parts of a statement before anything is
// written.
func ValidateStatementParts(subject, predicate Tid, object Object, metadata Metadata) error {
	if !subject.Valid() {
		return fmt.Errorf("%w: subject %d", ErrInvalidStatement, subject)
	}
	if !predicate.Valid() {
		return fmt.Errorf("%w: predicate %d", ErrInvalidStatement, predicate)
	}
	if err := object.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStatement, err)
	}
	if err := metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStatement, err)
	}
	return nil
}

// StatementQuery selects statements. Zero-valued fields are wildcards.
type StatementQuery struct {
	Subject          Tid
	Predicate        Tid
	Object           Object
	IncludeCancelled bool
}

// Matches reports whether st satisfies the query.
func (q StatementQuery) Matches(st Statement) bool {
	if q.Subject != 0 && st.Subject != q.Subject {
		return false
	}
	if q.Predicate != 0 && st.Predicate != q.Predicate {
		return false
	}
	if !q.Object.IsZero() && !st.Object.Equal(q.Object) {
		return false
	}
	return q.IncludeCancelled || !st.IsCancelled()
}
