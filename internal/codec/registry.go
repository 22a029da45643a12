package codec

import (
	"errors"

	"github.com/gridapi/gridapi/internal/typedesc"
)

// Registry memoizes record-level codecs by record name. It is populated once
// at schema-registration time; all lookups after that are read-only.
type Registry struct {
	deserializers map[string]Deserializer
	serializers   map[string]Serializer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		deserializers: make(map[string]Deserializer),
		serializers:   make(map[string]Serializer),
	}
}

// FieldCodec is the derived codec pair for one table field. Serialize is nil
// when the typed value already is the wire value.
type FieldCodec struct {
	Deserialize Deserializer
	Serialize   Serializer
}

// FieldCodecs maps accepted field names to their codec. Foreign-reference
// fields appear under both the declared name and the "_id" column alias.
type FieldCodecs map[string]FieldCodec

// ForeignKeyNaming selects which name a foreign-reference field carries in
// serialized responses.
type ForeignKeyNaming string

const (
	// FKFieldName responds with the declared field name ("owner").
	FKFieldName ForeignKeyNaming = "field"
	// FKDBFieldName responds with the storage column name ("owner_id").
	FKDBFieldName ForeignKeyNaming = "db_field"
)

// DeriveConfig tunes field-codec derivation for one table.
type DeriveConfig struct {
	ForeignKeyNaming ForeignKeyNaming

	// Overrides replace the derived codec for the named fields. Used for
	// storage-specific value handling that the declared type cannot express.
	Overrides map[string]FieldCodec
}

// DeriveFieldCodecs derives the codec pair for every field of a table.
// Nullable fields get a null-accepting wrapper even when the declared type is
// not Optional. A failed derivation reports the field path that defeated it.
func DeriveFieldCodecs(fields []typedesc.FieldDescriptor, reg *Registry, cfg DeriveConfig) (FieldCodecs, error) {
	codecs := make(FieldCodecs, len(fields))
	for _, f := range fields {
		if override, ok := cfg.Overrides[f.Name]; ok {
			codecs[f.Name] = override
			if f.IsForeignRef() {
				codecs[f.Column()] = override
			}
			continue
		}

		deser, err := DeriveDeserializer(f.Type, reg)
		if err != nil {
			var nce *NoCodecError
			if errors.As(err, &nce) {
				return nil, nce.AddTrace(f.Name)
			}
			return nil, err
		}
		ser, err := DeriveSerializer(f.Type, reg)
		if err != nil {
			var nce *NoCodecError
			if errors.As(err, &nce) {
				return nil, nce.AddTrace(f.Name)
			}
			return nil, err
		}

		if f.Nullable {
			deser = deserializeNullable(deser)
			if ser != nil {
				ser = serializeNullable(ser)
			}
		}

		fc := FieldCodec{Deserialize: deser, Serialize: ser}
		codecs[f.Name] = fc
		if f.IsForeignRef() {
			// Filters and bodies may address the reference by either its
			// declared name or its storage column.
			codecs[f.Column()] = fc
		}
	}
	return codecs, nil
}

// RowSerializer renders one typed row to its wire map, applying the per-field
// serializers and the configured foreign-key naming policy.
type RowSerializer func(row map[string]any) map[string]any

// DeriveRowSerializer builds the row serializer for a table. Rows are keyed
// by declared field name on input; foreign-reference keys are renamed when
// the naming policy asks for column names.
func DeriveRowSerializer(fields []typedesc.FieldDescriptor, codecs FieldCodecs, naming ForeignKeyNaming) RowSerializer {
	type fieldEntry struct {
		name    string
		outName string
		fn      Serializer
	}
	entries := make([]fieldEntry, 0, len(fields))
	for _, f := range fields {
		out := f.Name
		if f.IsForeignRef() && naming == FKDBFieldName {
			out = f.Column()
		}
		entries = append(entries, fieldEntry{
			name:    f.Name,
			outName: out,
			fn:      codecs[f.Name].Serialize,
		})
	}

	return func(row map[string]any) map[string]any {
		out := make(map[string]any, len(row))
		for _, e := range entries {
			v, present := row[e.name]
			if !present {
				continue
			}
			if e.fn != nil && v != nil {
				v = e.fn(v)
			}
			out[e.outName] = v
		}
		return out
	}
}
