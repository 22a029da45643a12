package codec

import (
	"errors"
	"time"

	"github.com/gridapi/gridapi/internal/typedesc"
)

// Serializer renders a typed value back to wire form. A nil Serializer is an
// explicit no-op: the typed value already is the wire value and callers skip
// the call entirely.
type Serializer func(value any) any

// DeriveSerializer builds a Serializer for the given descriptor. It returns
// (nil, nil) when the type needs no transformation.
func DeriveSerializer(t typedesc.Type, reg *Registry) (Serializer, error) {
	switch tt := t.(type) {
	case typedesc.Primitive:
		if tt.Kind == typedesc.KindDateTime {
			return serializeDateTime, nil
		}
		return nil, nil

	case typedesc.Literal:
		return nil, nil

	case typedesc.Optional:
		inner, err := DeriveSerializer(tt.Inner, reg)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, nil
		}
		return serializeNullable(inner), nil

	case typedesc.Sequence:
		return deriveListSerializer(tt.Elem, reg)

	case typedesc.Set:
		return deriveListSerializer(tt.Elem, reg)

	case typedesc.Mapping:
		val, err := DeriveSerializer(tt.Value, reg)
		if err != nil {
			return nil, err
		}
		if val == nil {
			return nil, nil
		}
		return serializeMapping(val), nil

	case typedesc.Tuple:
		if tt.Variadic {
			return deriveListSerializer(tt.Elems[0], reg)
		}
		elems := make([]Serializer, len(tt.Elems))
		allNil := true
		for i, et := range tt.Elems {
			fn, err := DeriveSerializer(et, reg)
			if err != nil {
				return nil, err
			}
			elems[i] = fn
			if fn != nil {
				allNil = false
			}
		}
		if allNil {
			return nil, nil
		}
		return serializeTuple(elems), nil

	case *typedesc.Record:
		return deriveRecordSerializer(tt, reg)

	case typedesc.Union:
		return deriveUnionSerializer(tt, reg)

	case typedesc.Enum:
		return nil, nil

	case typedesc.ForeignRef:
		return nil, nil

	default:
		return nil, noCodec("serializer", typedesc.Name(t))
	}
}

// apply runs fn over value, treating a nil Serializer as identity.
func apply(fn Serializer, value any) any {
	if fn == nil {
		return value
	}
	return fn(value)
}

func serializeDateTime(value any) any {
	if value == nil {
		return nil
	}
	if t, ok := value.(time.Time); ok {
		return t.UnixMilli()
	}
	return value
}

func serializeNullable(inner Serializer) Serializer {
	return func(value any) any {
		if value == nil {
			return nil
		}
		return inner(value)
	}
}

func deriveListSerializer(elem typedesc.Type, reg *Registry) (Serializer, error) {
	fn, err := DeriveSerializer(elem, reg)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, nil
	}
	return serializeNullable(func(value any) any {
		items, ok := value.([]any)
		if !ok {
			return value
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fn(item)
		}
		return out
	}), nil
}

func serializeMapping(val Serializer) Serializer {
	return serializeNullable(func(value any) any {
		m, ok := value.(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = val(item)
		}
		return out
	})
}

func serializeTuple(elems []Serializer) Serializer {
	return serializeNullable(func(value any) any {
		items, ok := value.([]any)
		if !ok || len(items) != len(elems) {
			return value
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = apply(elems[i], item)
		}
		return out
	})
}

// deriveRecordSerializer always produces a function, even when every field is
// a no-op, so the registry entry doubles as the forward stub for
// self-referential records.
func deriveRecordSerializer(rec *typedesc.Record, reg *Registry) (Serializer, error) {
	if s, ok := reg.serializers[rec.Name]; ok {
		return s, nil
	}

	type fieldEntry struct {
		name string
		fn   Serializer
	}
	var fields []fieldEntry

	ser := func(value any) any {
		if value == nil {
			return nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		for _, f := range fields {
			if f.fn == nil {
				continue
			}
			if v, present := out[f.name]; present {
				out[f.name] = f.fn(v)
			}
		}
		return out
	}

	reg.serializers[rec.Name] = ser

	for _, f := range rec.Fields {
		fn, err := DeriveSerializer(f.Type, reg)
		if err != nil {
			delete(reg.serializers, rec.Name)
			var nce *NoCodecError
			if errors.As(err, &nce) {
				return nil, nce.AddTrace(rec.Name, f.Name)
			}
			return nil, err
		}
		if fn != nil {
			fields = append(fields, fieldEntry{name: f.Name, fn: fn})
		}
	}

	return ser, nil
}

// deriveUnionSerializer matches the runtime value's shape against each
// alternative in declared order and applies that alternative's serializer.
func deriveUnionSerializer(u typedesc.Union, reg *Registry) (Serializer, error) {
	type altEntry struct {
		t  typedesc.Type
		fn Serializer
	}
	alts := make([]altEntry, len(u.Alts))
	allNil := true
	for i, alt := range u.Alts {
		fn, err := DeriveSerializer(alt, reg)
		if err != nil {
			return nil, err
		}
		alts[i] = altEntry{t: alt, fn: fn}
		if fn != nil {
			allNil = false
		}
	}
	if allNil {
		return nil, nil
	}
	return func(value any) any {
		for _, alt := range alts {
			if matchesShape(alt.t, value) {
				return apply(alt.fn, value)
			}
		}
		return value
	}, nil
}

// matchesShape reports whether a typed runtime value could have been produced
// by the given descriptor's deserializer. It only inspects the outermost
// shape: union alternatives that agree on the outer shape resolve to the
// earliest declared one.
func matchesShape(t typedesc.Type, value any) bool {
	switch tt := t.(type) {
	case typedesc.Primitive:
		switch tt.Kind {
		case typedesc.KindInt:
			_, ok := value.(int64)
			return ok
		case typedesc.KindFloat:
			_, ok := value.(float64)
			return ok
		case typedesc.KindBool:
			_, ok := value.(bool)
			return ok
		case typedesc.KindString:
			_, ok := value.(string)
			return ok
		case typedesc.KindDateTime:
			_, ok := value.(time.Time)
			return ok
		case typedesc.KindNone:
			return value == nil
		}
		return false
	case typedesc.Literal:
		for _, member := range tt.Values {
			if _, ok := literalMatch(member, value); ok {
				return true
			}
		}
		return false
	case typedesc.Optional:
		return value == nil || matchesShape(tt.Inner, value)
	case typedesc.Sequence, typedesc.Set, typedesc.Tuple:
		_, ok := value.([]any)
		return ok
	case typedesc.Mapping, *typedesc.Record:
		_, ok := value.(map[string]any)
		return ok
	case typedesc.Union:
		for _, alt := range tt.Alts {
			if matchesShape(alt, value) {
				return true
			}
		}
		return false
	case typedesc.Enum:
		_, ok := value.(string)
		return ok
	case typedesc.ForeignRef:
		_, ok := value.(int64)
		return ok
	}
	return false
}
