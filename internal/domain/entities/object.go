package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// ObjectKind identifies which arm of the Object union is populated.
type ObjectKind uint8

const (
	// ObjectNone is the zero Object. In queries it acts as a wildcard.
	ObjectNone ObjectKind = iota
	ObjectEntity
	ObjectString
	ObjectNumber
	ObjectTimestamp
)

// String returns a short name for the kind.
func (k ObjectKind) String() string {
	switch k {
	case ObjectEntity:
		return "entity"
	case ObjectString:
		return "string"
	case ObjectNumber:
		return "number"
	case ObjectTimestamp:
		return "timestamp"
	default:
		return "none"
	}
}

// IsLiteral reports whether the kind is one of the literal kinds.
func (k ObjectKind) IsLiteral() bool {
	return k == ObjectString || k == ObjectNumber || k == ObjectTimestamp
}

// Object is the object of a statement or the value of a metadata pair:
// either a reference to an entity or a literal value, never both.
// The kind is fixed when the Object is built.
type Object struct {
	kind   ObjectKind
	entity Tid
	str    string
	num    float64
	ts     time.Time
}

// EntityObject returns an Object referencing an entity.
func EntityObject(t Tid) Object {
	return Object{kind: ObjectEntity, entity: t}
}

// StringObject returns a string literal.
func StringObject(s string) Object {
	return Object{kind: ObjectString, str: s}
}

// NumberObject returns a numeric literal.
func NumberObject(n float64) Object {
	if n == 0 {
		n = 0 // -0 and 0 share one literal
	}
	return Object{kind: ObjectNumber, num: n}
}

// TimestampObject returns a timestamp literal, normalized to UTC.
func TimestampObject(ts time.Time) Object {
	return Object{kind: ObjectTimestamp, ts: ts.UTC()}
}

// Kind returns the populated arm.
func (o Object) Kind() ObjectKind { return o.kind }

// IsZero reports whether o is the empty Object.
func (o Object) IsZero() bool { return o.kind == ObjectNone }

// IsEntity reports whether o references an entity.
func (o Object) IsEntity() bool { return o.kind == ObjectEntity }

// Entity returns the referenced entity and true, or 0 and false for literals.
func (o Object) Entity() (Tid, bool) {
	if o.kind != ObjectEntity {
		return 0, false
	}
	return o.entity, true
}

// Str returns the string literal and true, or "" and false.
func (o Object) Str() (string, bool) {
	if o.kind != ObjectString {
		return "", false
	}
	return o.str, true
}

// Number returns the numeric literal and true, or 0 and false.
func (o Object) Number() (float64, bool) {
	if o.kind != ObjectNumber {
		return 0, false
	}
	return o.num, true
}

// Timestamp returns the timestamp literal and true, or the zero time and false.
func (o Object) Timestamp() (time.Time, bool) {
	if o.kind != ObjectTimestamp {
		return time.Time{}, false
	}
	return o.ts, true
}

// Validate checks that the populated arm holds an acceptable value.
func (o Object) Validate() error {
	switch o.kind {
	case ObjectEntity:
		if !o.entity.Valid() {
			return fmt.Errorf("entity object %d out of range", o.entity)
		}
	case ObjectString:
		if !utf8.ValidString(o.str) {
			return errors.New("string object is not valid UTF-8")
		}
	case ObjectNumber:
		if math.IsNaN(o.num) || math.IsInf(o.num, 0) {
			return fmt.Errorf("number object %v is not finite", o.num)
		}
	case ObjectTimestamp:
		if o.ts.IsZero() {
			return errors.New("timestamp object is zero")
		}
	default:
		return errors.New("object has no value")
	}
	return nil
}

// Equal reports whether two Objects have the same kind and value.
func (o Object) Equal(other Object) bool {
	if o.kind != other.kind {
		return false
	}
	switch o.kind {
	case ObjectEntity:
		return o.entity == other.entity
	case ObjectString:
		return o.str == other.str
	case ObjectNumber:
		return o.num == other.num
	case ObjectTimestamp:
		return o.ts.Equal(other.ts)
	default:
		return true
	}
}

// Literal returns the canonical string encoding of a literal object, the form
// stored in value columns and compared for exact matches.
func (o Object) Literal() string {
	switch o.kind {
	case ObjectString:
		return o.str
	case ObjectNumber:
		return strconv.FormatFloat(o.num, 'g', -1, 64)
	case ObjectTimestamp:
		return o.ts.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// LiteralObject rebuilds a literal Object from its kind and canonical string.
func LiteralObject(kind ObjectKind, literal string) (Object, error) {
	switch kind {
	case ObjectString:
		return StringObject(literal), nil
	case ObjectNumber:
		n, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return Object{}, fmt.Errorf("parsing number literal: %w", err)
		}
		return NumberObject(n), nil
	case ObjectTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, literal)
		if err != nil {
			return Object{}, fmt.Errorf("parsing timestamp literal: %w", err)
		}
		return TimestampObject(ts), nil
	default:
		return Object{}, fmt.Errorf("kind %s is not a literal kind", kind)
	}
}

// String renders the object for display.
func (o Object) String() string {
	switch o.kind {
	case ObjectEntity:
		return "#" + o.entity.String()
	case ObjectString:
		return strconv.Quote(o.str)
	case ObjectNone:
		return "<none>"
	default:
		return o.Literal()
	}
}

type objectJSON struct {
	E *Tid     `json:"e,omitempty"`
	S *string  `json:"s,omitempty"`
	N *float64 `json:"n,omitempty"`
	T *string  `json:"t,omitempty"`
}

// MarshalJSON encodes the object as a single-key JSON object tagged by kind.
func (o Object) MarshalJSON() ([]byte, error) {
	var j objectJSON
	switch o.kind {
	case ObjectEntity:
		j.E = &o.entity
	case ObjectString:
		j.S = &o.str
	case ObjectNumber:
		j.N = &o.num
	case ObjectTimestamp:
		s := o.Literal()
		j.T = &s
	default:
		return []byte("null"), nil
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes the tagged form written by MarshalJSON.
func (o *Object) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Object{}
		return nil
	}
	var j objectJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("decoding object: %w", err)
	}
	switch {
	case j.E != nil:
		*o = EntityObject(*j.E)
	case j.S != nil:
		*o = StringObject(*j.S)
	case j.N != nil:
		*o = NumberObject(*j.N)
	case j.T != nil:
		ts, err := time.Parse(time.RFC3339Nano, *j.T)
		if err != nil {
			return fmt.Errorf("decoding timestamp object: %w", err)
		}
		*o = TimestampObject(ts)
	default:
		*o = Object{}
	}
	return nil
}
