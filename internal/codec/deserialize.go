package codec

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gridapi/gridapi/internal/typedesc"
)

// Deserializer validates a raw wire value and returns its typed form.
// A failed shape check returns a *ValueError.
type Deserializer func(value any) (any, error)

// DeriveDeserializer builds a Deserializer for the given descriptor.
// Record and enum codecs are memoized in the registry; a forward stub is
// registered before descending into record fields so self-referential
// records derive without infinite recursion.
func DeriveDeserializer(t typedesc.Type, reg *Registry) (Deserializer, error) {
	switch tt := t.(type) {
	case typedesc.Primitive:
		switch tt.Kind {
		case typedesc.KindInt:
			return deserializeInt, nil
		case typedesc.KindFloat:
			return deserializeFloat, nil
		case typedesc.KindBool:
			return deserializeBool, nil
		case typedesc.KindString:
			return deserializeString, nil
		case typedesc.KindDateTime:
			return deserializeDateTime, nil
		case typedesc.KindNone:
			return deserializeNone, nil
		default:
			return nil, noCodec("deserializer", tt.Kind.String())
		}

	case typedesc.Literal:
		return deriveLiteralDeserializer(tt)

	case typedesc.Optional:
		inner, err := DeriveDeserializer(tt.Inner, reg)
		if err != nil {
			return nil, err
		}
		return deserializeNullable(inner), nil

	case typedesc.Sequence:
		elem, err := DeriveDeserializer(tt.Elem, reg)
		if err != nil {
			return nil, err
		}
		return deserializeList(elem), nil

	case typedesc.Set:
		elem, err := DeriveDeserializer(tt.Elem, reg)
		if err != nil {
			return nil, err
		}
		return deserializeSet(elem), nil

	case typedesc.Mapping:
		key, err := DeriveDeserializer(tt.Key, reg)
		if err != nil {
			return nil, err
		}
		val, err := DeriveDeserializer(tt.Value, reg)
		if err != nil {
			return nil, err
		}
		return deserializeMapping(key, val), nil

	case typedesc.Tuple:
		if tt.Variadic {
			elem, err := DeriveDeserializer(tt.Elems[0], reg)
			if err != nil {
				return nil, err
			}
			return deserializeList(elem), nil
		}
		elems := make([]Deserializer, len(tt.Elems))
		for i, et := range tt.Elems {
			fn, err := DeriveDeserializer(et, reg)
			if err != nil {
				return nil, err
			}
			elems[i] = fn
		}
		return deserializeTuple(elems), nil

	case *typedesc.Record:
		return deriveRecordDeserializer(tt, reg)

	case typedesc.Union:
		return deriveUnionDeserializer(tt, reg)

	case typedesc.Enum:
		return deriveEnumDeserializer(tt), nil

	case typedesc.ForeignRef:
		return deserializeInt, nil

	default:
		return nil, noCodec("deserializer", typedesc.Name(t))
	}
}

func deserializeInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return nil, valueErrorf("expect integer but get: %v", v)
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), nil
		}
		return nil, valueErrorf("expect integer but get: %v", v)
	case float32:
		return deserializeInt(float64(v))
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, valueErrorf("expect integer but get: %q", v)
		}
		return i, nil
	default:
		return nil, valueErrorf("expect integer but get: %T", value)
	}
}

func deserializeFloat(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, valueErrorf("expect float but get: %v", v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, valueErrorf("expect float but get: %q", v)
		}
		return f, nil
	default:
		return nil, valueErrorf("expect float but get: %T", value)
	}
}

func deserializeBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		// Only the exact strings are accepted; "1"/"yes" are shape errors.
		if v == "true" {
			return true, nil
		}
		if v == "false" {
			return false, nil
		}
		return nil, valueErrorf("expect bool string but get: %q", v)
	default:
		return nil, valueErrorf("expect bool value but get: %T", value)
	}
}

func deserializeString(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return nil, valueErrorf("expect string but get: %T", value)
}

func deserializeNone(value any) (any, error) {
	if value != nil {
		return nil, valueErrorf("expect none but get: %T", value)
	}
	return nil, nil
}

// naiveTimeLayouts are tried in order for string datetimes. Zoned layouts
// are parsed first and then stripped to a naive instant.
var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func deserializeDateTime(value any) (any, error) {
	switch v := value.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			// Strip the timezone: keep the wall-clock reading as a
			// naive UTC instant.
			return time.Date(t.Year(), t.Month(), t.Day(),
				t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
		}
		for _, layout := range naiveTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, valueErrorf("expect ISO-8601 datetime but get: %q", v)
	case time.Time:
		return v, nil
	default:
		// Integers are milliseconds since the UNIX epoch.
		n, err := deserializeInt(value)
		if err != nil {
			return nil, valueErrorf("expect datetime but get: %T", value)
		}
		return time.UnixMilli(n.(int64)).UTC(), nil
	}
}

func deriveLiteralDeserializer(lit typedesc.Literal) (Deserializer, error) {
	for _, member := range lit.Values {
		switch member.(type) {
		case string, int64, float64:
		default:
			return nil, noCodec("deserializer", typedesc.Name(lit))
		}
	}
	return func(value any) (any, error) {
		for _, member := range lit.Values {
			norm, ok := literalMatch(member, value)
			if ok {
				return norm, nil
			}
		}
		return nil, valueErrorf("expect one of %v but get: %v", lit.Values, value)
	}, nil
}

// literalMatch checks a candidate against one literal member, returning the
// normalized typed value on a match. Numeric members compare across
// int/float wire forms.
func literalMatch(member, value any) (any, bool) {
	switch m := member.(type) {
	case string:
		if s, ok := value.(string); ok && s == m {
			return m, true
		}
	case int64:
		if n, err := deserializeInt(value); err == nil && n.(int64) == m {
			return m, true
		}
	case float64:
		if f, err := deserializeFloat(value); err == nil && f.(float64) == m {
			return m, true
		}
	}
	return nil, false
}

func deserializeNullable(inner Deserializer) Deserializer {
	return func(value any) (any, error) {
		if value == nil {
			return nil, nil
		}
		return inner(value)
	}
}

func deserializeList(elem Deserializer) Deserializer {
	return func(value any) (any, error) {
		items, ok := value.([]any)
		if !ok {
			return nil, valueErrorf("expect list but get: %T", value)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := elem(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

// deserializeSet accepts an array (the wire format has no set kind) and
// deduplicates elements, keeping first-occurrence order.
func deserializeSet(elem Deserializer) Deserializer {
	return func(value any) (any, error) {
		items, ok := value.([]any)
		if !ok {
			return nil, valueErrorf("expect set but get: %T", value)
		}
		out := make([]any, 0, len(items))
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			v, err := elem(item)
			if err != nil {
				return nil, err
			}
			key, err := json.Marshal(v)
			if err != nil {
				return nil, valueErrorf("set element is not comparable: %v", v)
			}
			if seen[string(key)] {
				continue
			}
			seen[string(key)] = true
			out = append(out, v)
		}
		return out, nil
	}
}

// deserializeMapping validates keys with the key deserializer but keeps them
// in their wire (string) form so the result stays JSON-addressable.
func deserializeMapping(key, val Deserializer) Deserializer {
	return func(value any) (any, error) {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, valueErrorf("expect mapping but get: %T", value)
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			if _, err := key(k); err != nil {
				return nil, err
			}
			v, err := val(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
}

func deserializeTuple(elems []Deserializer) Deserializer {
	return func(value any) (any, error) {
		items, ok := value.([]any)
		if !ok {
			return nil, valueErrorf("expect list but get: %T", value)
		}
		if len(items) != len(elems) {
			return nil, valueErrorf("expect list of length %d but get %d", len(elems), len(items))
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := elems[i](item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

func deriveRecordDeserializer(rec *typedesc.Record, reg *Registry) (Deserializer, error) {
	if d, ok := reg.deserializers[rec.Name]; ok {
		return d, nil
	}

	type fieldEntry struct {
		name       string
		fn         Deserializer
		hasDefault bool
	}
	var fields []fieldEntry

	deser := func(value any) (any, error) {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, valueErrorf("expect mapping but get: %T", value)
		}
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			raw, present := m[f.name]
			if !present {
				if f.hasDefault {
					continue
				}
				return nil, valueErrorf("expect the field %s but it's missing", f.name)
			}
			v, err := f.fn(raw)
			if err != nil {
				return nil, err
			}
			out[f.name] = v
		}
		return out, nil
	}

	// Forward stub: registered before descending so fields referencing this
	// record (directly or transitively) resolve to the closure above.
	reg.deserializers[rec.Name] = deser

	for _, f := range rec.Fields {
		fn, err := DeriveDeserializer(f.Type, reg)
		if err != nil {
			delete(reg.deserializers, rec.Name)
			var nce *NoCodecError
			if errors.As(err, &nce) {
				return nil, nce.AddTrace(rec.Name, f.Name)
			}
			return nil, err
		}
		fields = append(fields, fieldEntry{name: f.Name, fn: fn, hasDefault: f.HasDefault})
	}

	return deser, nil
}

func deriveUnionDeserializer(u typedesc.Union, reg *Registry) (Deserializer, error) {
	nonNull := make([]typedesc.Type, 0, len(u.Alts))
	for _, alt := range u.Alts {
		if p, ok := alt.(typedesc.Primitive); ok && p.Kind == typedesc.KindNone {
			continue
		}
		nonNull = append(nonNull, alt)
	}

	// Exactly one non-null alternative plus null reduces to Optional.
	if len(u.Alts) == 2 && len(nonNull) == 1 {
		inner, err := DeriveDeserializer(nonNull[0], reg)
		if err != nil {
			return nil, err
		}
		return deserializeNullable(inner), nil
	}

	alts := make([]Deserializer, len(u.Alts))
	for i, alt := range u.Alts {
		fn, err := DeriveDeserializer(alt, reg)
		if err != nil {
			return nil, err
		}
		alts[i] = fn
	}
	names := typedesc.Name(u)

	// Declared-order first success. Alternatives must be distinguishable by
	// wire shape; overlapping alternatives resolve to the earliest match.
	return func(value any) (any, error) {
		for _, fn := range alts {
			v, err := fn(value)
			if err == nil {
				return v, nil
			}
			if !IsValueError(err) {
				return nil, err
			}
		}
		return nil, valueErrorf("expect one of the type: %s but get: %v", names, value)
	}, nil
}

func deriveEnumDeserializer(e typedesc.Enum) Deserializer {
	members := make(map[string]bool, len(e.Values))
	for _, v := range e.Values {
		members[v] = true
	}
	return func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, valueErrorf("expect %s value but get: %T", e.Name, value)
		}
		if !members[s] {
			return nil, valueErrorf("expect one of %v but get: %q", e.Values, s)
		}
		return s, nil
	}
}
