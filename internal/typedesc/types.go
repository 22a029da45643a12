package typedesc

import (
	"fmt"
	"strings"
)

// Type is a sealed interface over the declared type descriptors.
// Only types in this package implement it.
//
// Variants:
//   - Primitive: int, float, bool, string, datetime, none
//   - Literal: fixed set of allowed values
//   - Optional: inner type or null
//   - Sequence, Set, Mapping, Tuple: containers
//   - *Record: ordered named fields (pointer variant so records can
//     reference themselves)
//   - Union: ordered list of alternatives, resolved first-match
//   - Enum: fixed named value set
//   - ForeignRef: reference to another table by integer id
type Type interface {
	typeNode() // Marker method - seals interface to this package
}

// PrimitiveKind identifies a primitive type.
type PrimitiveKind int

const (
	KindInt PrimitiveKind = iota
	KindFloat
	KindBool
	KindString
	KindDateTime
	KindNone
)

// String returns the schema-facing name of the kind.
func (k PrimitiveKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindDateTime:
		return "datetime"
	case KindNone:
		return "none"
	default:
		return fmt.Sprintf("primitive(%d)", int(k))
	}
}

// Primitive is a leaf scalar type.
type Primitive struct {
	Kind PrimitiveKind
}

func (Primitive) typeNode() {}

// Literal restricts values to a fixed set. Members are string, int64 or
// float64 values.
type Literal struct {
	Values []any
}

func (Literal) typeNode() {}

// Optional accepts null or a value of the inner type.
type Optional struct {
	Inner Type
}

func (Optional) typeNode() {}

// Sequence is an ordered list of elements of one type.
type Sequence struct {
	Elem Type
}

func (Sequence) typeNode() {}

// Set is an unordered collection of unique elements. The wire format has no
// set kind, so sets travel as arrays and are deduplicated on deserialization.
type Set struct {
	Elem Type
}

func (Set) typeNode() {}

// Mapping is a key/value dictionary. Wire keys are strings; the key
// descriptor deserializes them independently of values.
type Mapping struct {
	Key   Type
	Value Type
}

func (Mapping) typeNode() {}

// Tuple is an ordered heterogeneous list. When Variadic is true, Elems holds
// a single descriptor applied to every element and the arity is free.
type Tuple struct {
	Elems    []Type
	Variadic bool
}

func (Tuple) typeNode() {}

// RecordField is one named field of a Record.
type RecordField struct {
	Name       string
	Type       Type
	HasDefault bool
}

// Record is an ordered set of named fields. Identity is the record name;
// the codec registry keys forward stubs by it, which is what makes
// self-referential records derivable.
type Record struct {
	Name   string
	Fields []RecordField
}

func (*Record) typeNode() {}

// Union is an ordered list of alternatives. Deserialization tries each
// alternative in declared order and takes the first success, so alternatives
// must be distinguishable by wire shape.
type Union struct {
	Alts []Type
}

func (Union) typeNode() {}

// Enum is a named fixed set of string values.
type Enum struct {
	Name   string
	Values []string
}

func (Enum) typeNode() {}

// ForeignRef references a row of another table by its integer id.
type ForeignRef struct {
	Table string
}

func (ForeignRef) typeNode() {}

// Name returns a short human-readable name for a descriptor, used in
// derivation error traces and value-shape error messages.
func Name(t Type) string {
	switch tt := t.(type) {
	case Primitive:
		return tt.Kind.String()
	case Literal:
		parts := make([]string, len(tt.Values))
		for i, v := range tt.Values {
			parts[i] = fmt.Sprintf("%v", v)
		}
		return "literal[" + strings.Join(parts, ",") + "]"
	case Optional:
		return "optional[" + Name(tt.Inner) + "]"
	case Sequence:
		return "list[" + Name(tt.Elem) + "]"
	case Set:
		return "set[" + Name(tt.Elem) + "]"
	case Mapping:
		return "map[" + Name(tt.Key) + "," + Name(tt.Value) + "]"
	case Tuple:
		if tt.Variadic {
			return "tuple[" + Name(tt.Elems[0]) + ",...]"
		}
		parts := make([]string, len(tt.Elems))
		for i, e := range tt.Elems {
			parts[i] = Name(e)
		}
		return "tuple[" + strings.Join(parts, ",") + "]"
	case *Record:
		return tt.Name
	case Union:
		parts := make([]string, len(tt.Alts))
		for i, a := range tt.Alts {
			parts[i] = Name(a)
		}
		return "union[" + strings.Join(parts, "|") + "]"
	case Enum:
		return tt.Name
	case ForeignRef:
		return "ref[" + tt.Table + "]"
	default:
		return fmt.Sprintf("%T", t)
	}
}
