package schema

import (
	"github.com/gridapi/gridapi/internal/typedesc"
)

// Schema is the compiled form of a schema directory.
type Schema struct {
	// Tables in declaration order.
	Tables []*TableSpec

	// Records and Enums are the shared named types referenced by fields.
	Records map[string]*typedesc.Record
	Enums   map[string]typedesc.Enum

	byName map[string]*TableSpec
}

// Table returns the named table spec.
func (s *Schema) Table(name string) (*TableSpec, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// TableSpec is one compiled table declaration. Field order is declaration
// order with the implicit id key first.
type TableSpec struct {
	Name   string
	Fields []typedesc.FieldDescriptor

	// Defaults holds declared default values in wire form, keyed by field
	// name. Fields present here have HasDefault set.
	Defaults map[string]any

	byName map[string]typedesc.FieldDescriptor
}

func newTableSpec(name string, fields []typedesc.FieldDescriptor, defaults map[string]any) *TableSpec {
	t := &TableSpec{
		Name:     name,
		Fields:   fields,
		Defaults: defaults,
		byName:   make(map[string]typedesc.FieldDescriptor, len(fields)),
	}
	for _, f := range fields {
		t.byName[f.Name] = f
		if f.IsForeignRef() {
			// A reference answers to its column alias as well.
			t.byName[f.Column()] = f
		}
	}
	return t
}

// Field resolves a field by declared name or, for foreign references, by the
// "_id" column alias.
func (t *TableSpec) Field(name string) (typedesc.FieldDescriptor, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Has reports whether the name resolves to a field of the table.
func (t *TableSpec) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Column resolves an accepted field name to its storage column, or "" when
// the name is unknown.
func (t *TableSpec) Column(name string) string {
	f, ok := t.byName[name]
	if !ok {
		return ""
	}
	return f.Column()
}

// FieldNames returns the declared field names in order.
func (t *TableSpec) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

func idField() typedesc.FieldDescriptor {
	return typedesc.FieldDescriptor{
		Name:       "id",
		Type:       typedesc.Primitive{Kind: typedesc.KindInt},
		PrimaryKey: true,
		HasDefault: true,
	}
}
