package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/gridapi/gridapi/internal/typedesc"
)

// EncodeValue converts a typed value to its storage form: datetimes become
// epoch milliseconds, containers become canonical JSON TEXT, scalars pass
// through for the driver.
func EncodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string:
		return val, nil
	case int:
		return int64(val), nil
	case time.Time:
		return val.UnixMilli(), nil
	case []any, map[string]any:
		data, err := marshalCanonical(val)
		if err != nil {
			return nil, fmt.Errorf("encode container: %w", err)
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported storage value type: %T", v)
	}
}

// DecodeColumn converts a scanned database value back to the wire form the
// field's deserializer accepts. Containers come back from JSON with numbers
// preserved as json.Number.
func DecodeColumn(f typedesc.FieldDescriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	// The driver may surface TEXT as raw bytes.
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch base := typedesc.Base(f.Type).(type) {
	case typedesc.Primitive:
		if base.Kind == typedesc.KindBool {
			switch b := v.(type) {
			case bool:
				return b, nil
			case int64:
				return b != 0, nil
			}
		}
		return v, nil
	case typedesc.Sequence, typedesc.Set, typedesc.Mapping, typedesc.Tuple, *typedesc.Record:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: expected JSON TEXT, got %T", f.Column(), v)
		}
		return decodeJSON(s)
	case typedesc.Union:
		// Union columns hold whatever shape the value had; only container
		// shapes round-trip through JSON TEXT.
		if s, ok := v.(string); ok && looksLikeJSONContainer(s) {
			return decodeJSON(s)
		}
		return v, nil
	default:
		return v, nil
	}
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stored JSON: %w", err)
	}
	return out, nil
}

func looksLikeJSONContainer(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{")
}

// marshalCanonical renders a container value as deterministic JSON: object
// keys sorted, strings NFC-normalized, no HTML escaping, datetimes as epoch
// milliseconds. Stored bytes for equal values are byte-identical.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case float64:
		return json.Marshal(val)
	case json.Number:
		return []byte(val.String()), nil
	case string:
		return marshalCanonicalString(val)
	case time.Time:
		return []byte(strconv.FormatInt(val.UnixMilli(), 10)), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := marshalCanonical(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kdata, err := marshalCanonicalString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kdata)
			buf.WriteByte(':')
			vdata, err := marshalCanonical(val[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			buf.Write(vdata)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString produces a JSON string with NFC normalization and
// without HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline, remove it
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}
