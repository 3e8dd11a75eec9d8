package entities

import "strconv"

// EntityData is the aggregated, cache-resident view of one entity: every
// active statement about it and every active statement pointing at it.
// It is derived from the statement store and never authoritative.
type EntityData struct {
	ID                 Tid         `json:"id"`
	Type               Tid         `json:"type"`
	Name               string      `json:"name"`
	Statements         []Statement `json:"statements"`
	StatementsAsObject []Statement `json:"statements_as_object"`
	// MergedInto is 0 unless the entity has been superseded.
	MergedInto Tid `json:"merged_into,omitempty"`
}

// BuildEntityData aggregates the given statements into an EntityData.
// Cancelled statements are skipped. MergedInto holds the direct merge
// target only; following merge chains is up to the caller.
func BuildEntityData(id Tid, asSubject, asObject []Statement) EntityData {
	data := EntityData{
		ID:                 id,
		Statements:         make([]Statement, 0, len(asSubject)),
		StatementsAsObject: make([]Statement, 0, len(asObject)),
	}
	for _, st := range asSubject {
		if st.IsCancelled() {
			continue
		}
		data.Statements = append(data.Statements, st)
		switch st.Predicate {
		case PredicateEntityType:
			if t, ok := st.Object.Entity(); ok && data.Type == 0 {
				data.Type = t
			}
		case PredicateEntityName:
			if s, ok := st.Object.Str(); ok && data.Name == "" {
				data.Name = s
			}
		case PredicateMergedInto:
			if t, ok := st.Object.Entity(); ok && data.MergedInto == 0 {
				data.MergedInto = t
			}
		}
	}
	for _, st := range asObject {
		if !st.IsCancelled() {
			data.StatementsAsObject = append(data.StatementsAsObject, st)
		}
	}
	return data
}

// IsMerged reports whether the entity has been merged into another one.
func (d EntityData) IsMerged() bool {
	return d.MergedInto != 0
}

// StatementForPredicate returns the first statement with the given predicate.
func (d EntityData) StatementForPredicate(predicate Tid) (Statement, bool) {
	for _, st := range d.Statements {
		if st.Predicate == predicate {
			return st, true
		}
	}
	return Statement{}, false
}

// ObjectForPredicate returns the object of the first statement with the
// given predicate.
func (d EntityData) ObjectForPredicate(predicate Tid) (Object, bool) {
	st, ok := d.StatementForPredicate(predicate)
	if !ok {
		return Object{}, false
	}
	return st.Object, true
}

// AllStatementsForPredicate returns the statements with the given predicate.
// When qualification is non-zero only statements carrying a metadata pair
// with that predicate are returned, further restricted to the given value
// unless value is the zero Object.
func (d EntityData) AllStatementsForPredicate(predicate, qualification Tid, value Object) []Statement {
	var out []Statement
	for _, st := range d.Statements {
		if st.Predicate != predicate {
			continue
		}
		if qualification != 0 {
			q, ok := st.Metadata.Get(qualification)
			if !ok || (!value.IsZero() && !q.Equal(value)) {
				continue
			}
		}
		out = append(out, st)
	}
	return out
}

// AllObjectsForPredicate returns the objects of all statements with the given
// predicate, in statement order.
func (d EntityData) AllObjectsForPredicate(predicate Tid) []Object {
	var out []Object
	for _, st := range d.Statements {
		if st.Predicate == predicate {
			out = append(out, st.Object)
		}
	}
	return out
}

// ObjectsByQualification groups the objects of the given predicate by the
// value of one of their qualifiers, e.g. names by language. Statements
// without the qualifier are grouped under "".
func (d EntityData) ObjectsByQualification(predicate, qualification Tid) map[string][]Object {
	out := make(map[string][]Object)
	for _, st := range d.Statements {
		if st.Predicate != predicate {
			continue
		}
		key := ""
		if q, ok := st.Metadata.Get(qualification); ok {
			key = qualifierKey(q)
		}
		out[key] = append(out[key], st.Object)
	}
	return out
}

func qualifierKey(o Object) string {
	if t, ok := o.Entity(); ok {
		return strconv.FormatInt(int64(t), 10)
	}
	return o.Literal()
}

// Clone returns a deep copy.
func (d EntityData) Clone() EntityData {
	out := d
	out.Statements = cloneStatements(d.Statements)
	out.StatementsAsObject = cloneStatements(d.StatementsAsObject)
	return out
}

func cloneStatements(in []Statement) []Statement {
	if in == nil {
		return nil
	}
	out := make([]Statement, len(in))
	for i, st := range in {
		out[i] = st.Clone()
	}
	return out
}
