package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/gridapi/gridapi/internal/typedesc"
)

// CompileSchema parses a CUE value holding table, record and enum structs
// into a Schema.
//
// Records compile in two phases: shells are registered for every record name
// first, then fields are filled in, so records may reference themselves and
// each other regardless of declaration order.
func CompileSchema(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &schemaCompiler{
		records: make(map[string]*typedesc.Record),
		enums:   make(map[string]typedesc.Enum),
	}

	if err := c.compileEnums(v.LookupPath(cue.ParsePath("enum"))); err != nil {
		return nil, err
	}
	if err := c.compileRecords(v.LookupPath(cue.ParsePath("record"))); err != nil {
		return nil, err
	}

	out := &Schema{
		Records: c.records,
		Enums:   c.enums,
		byName:  make(map[string]*TableSpec),
	}

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if tablesVal.Exists() {
		iter, err := tablesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := c.compileTable(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			if _, dup := out.byName[spec.Name]; dup {
				return nil, &CompileError{
					Field:   "table." + spec.Name,
					Message: "duplicate table name",
					Pos:     iter.Value().Pos(),
				}
			}
			out.Tables = append(out.Tables, spec)
			out.byName[spec.Name] = spec
		}
	}

	if len(out.Tables) == 0 {
		return nil, &CompileError{
			Field:   "table",
			Message: "at least one table is required",
			Pos:     v.Pos(),
		}
	}

	// References must resolve inside the schema.
	for _, t := range out.Tables {
		for _, f := range t.Fields {
			ref, ok := typedesc.Base(f.Type).(typedesc.ForeignRef)
			if !ok {
				continue
			}
			if _, ok := out.byName[ref.Table]; !ok {
				return nil, &CompileError{
					Field:   fmt.Sprintf("table.%s.fields.%s", t.Name, f.Name),
					Message: fmt.Sprintf("reference to undeclared table %q", ref.Table),
				}
			}
		}
	}

	return out, nil
}

type schemaCompiler struct {
	records map[string]*typedesc.Record
	enums   map[string]typedesc.Enum
}

func (c *schemaCompiler) compileEnums(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		list, err := iter.Value().List()
		if err != nil {
			return &CompileError{
				Field:   "enum." + name,
				Message: "enum must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		var values []string
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return &CompileError{
					Field:   "enum." + name,
					Message: "enum values must be strings",
					Pos:     list.Value().Pos(),
				}
			}
			values = append(values, s)
		}
		if len(values) == 0 {
			return &CompileError{
				Field:   "enum." + name,
				Message: "enum must have at least one value",
				Pos:     iter.Value().Pos(),
			}
		}
		c.enums[name] = typedesc.Enum{Name: name, Values: values}
	}
	return nil
}

func (c *schemaCompiler) compileRecords(v cue.Value) error {
	if !v.Exists() {
		return nil
	}

	// Phase one: shells, so fields can reference any record by name.
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		c.records[name] = &typedesc.Record{Name: name}
	}

	// Phase two: fields.
	iter, err = v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		fieldsVal := iter.Value().LookupPath(cue.ParsePath("fields"))
		if !fieldsVal.Exists() {
			return &CompileError{
				Field:   "record." + name,
				Message: "record must declare fields",
				Pos:     iter.Value().Pos(),
			}
		}
		fieldIter, err := fieldsVal.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		var fields []typedesc.RecordField
		for fieldIter.Next() {
			fname := fieldIter.Label()
			ft, err := c.parseType(fieldIter.Value(), "record."+name+".fields."+fname)
			if err != nil {
				return err
			}
			fields = append(fields, typedesc.RecordField{
				Name:       fname,
				Type:       ft,
				HasDefault: fieldIter.Value().LookupPath(cue.ParsePath("default")).Exists(),
			})
		}
		c.records[name].Fields = fields
	}
	return nil
}

func (c *schemaCompiler) compileTable(name string, v cue.Value) (*TableSpec, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "table." + name,
			Message: "table must declare fields",
			Pos:     v.Pos(),
		}
	}

	fields := []typedesc.FieldDescriptor{idField()}
	defaults := make(map[string]any)

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		fname := iter.Label()
		fv := iter.Value()
		path := fmt.Sprintf("table.%s.fields.%s", name, fname)

		if fname == "id" {
			return nil, &CompileError{
				Field:   path,
				Message: "id is implicit and cannot be declared",
				Pos:     fv.Pos(),
			}
		}

		ft, err := c.parseType(fv, path)
		if err != nil {
			return nil, err
		}

		fd := typedesc.FieldDescriptor{Name: fname, Type: ft}

		if nv := fv.LookupPath(cue.ParsePath("nullable")); nv.Exists() {
			b, err := nv.Bool()
			if err != nil {
				return nil, &CompileError{Field: path, Message: "nullable must be a bool", Pos: nv.Pos()}
			}
			fd.Nullable = b
		}
		if uv := fv.LookupPath(cue.ParsePath("unique")); uv.Exists() {
			b, err := uv.Bool()
			if err != nil {
				return nil, &CompileError{Field: path, Message: "unique must be a bool", Pos: uv.Pos()}
			}
			fd.Unique = b
		}
		if dv := fv.LookupPath(cue.ParsePath("default")); dv.Exists() {
			var def any
			if err := dv.Decode(&def); err != nil {
				return nil, formatCUEError(err)
			}
			fd.HasDefault = true
			defaults[fname] = def
		}

		fields = append(fields, fd)
	}

	if len(fields) == 1 {
		return nil, &CompileError{
			Field:   "table." + name,
			Message: "table must declare at least one field",
			Pos:     v.Pos(),
		}
	}

	return newTableSpec(name, fields, defaults), nil
}

// parseType compiles one type spec. Containers nest type specs under elem,
// key, value or elems.
func (c *schemaCompiler) parseType(v cue.Value, path string) (typedesc.Type, error) {
	kindVal := v.LookupPath(cue.ParsePath("type"))
	if !kindVal.Exists() {
		return nil, &CompileError{Field: path, Message: "missing type", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, &CompileError{Field: path, Message: "type must be a string", Pos: kindVal.Pos()}
	}

	switch kind {
	case "int":
		return typedesc.Primitive{Kind: typedesc.KindInt}, nil
	case "float":
		return typedesc.Primitive{Kind: typedesc.KindFloat}, nil
	case "bool":
		return typedesc.Primitive{Kind: typedesc.KindBool}, nil
	case "string":
		return typedesc.Primitive{Kind: typedesc.KindString}, nil
	case "datetime":
		return typedesc.Primitive{Kind: typedesc.KindDateTime}, nil
	case "none":
		return typedesc.Primitive{Kind: typedesc.KindNone}, nil

	case "optional":
		inner, err := c.parseChild(v, "inner", path)
		if err != nil {
			return nil, err
		}
		return typedesc.Optional{Inner: inner}, nil

	case "list":
		elem, err := c.parseChild(v, "elem", path)
		if err != nil {
			return nil, err
		}
		return typedesc.Sequence{Elem: elem}, nil

	case "set":
		elem, err := c.parseChild(v, "elem", path)
		if err != nil {
			return nil, err
		}
		return typedesc.Set{Elem: elem}, nil

	case "map":
		key, err := c.parseChild(v, "key", path)
		if err != nil {
			return nil, err
		}
		val, err := c.parseChild(v, "value", path)
		if err != nil {
			return nil, err
		}
		return typedesc.Mapping{Key: key, Value: val}, nil

	case "tuple":
		elems, err := c.parseChildList(v, "elems", path)
		if err != nil {
			return nil, err
		}
		variadic := false
		if vv := v.LookupPath(cue.ParsePath("variadic")); vv.Exists() {
			variadic, err = vv.Bool()
			if err != nil {
				return nil, &CompileError{Field: path, Message: "variadic must be a bool", Pos: vv.Pos()}
			}
		}
		if variadic && len(elems) != 1 {
			return nil, &CompileError{
				Field:   path,
				Message: "variadic tuple takes exactly one element type",
				Pos:     v.Pos(),
			}
		}
		return typedesc.Tuple{Elems: elems, Variadic: variadic}, nil

	case "union":
		alts, err := c.parseChildList(v, "alts", path)
		if err != nil {
			return nil, err
		}
		if len(alts) < 2 {
			return nil, &CompileError{
				Field:   path,
				Message: "union needs at least two alternatives",
				Pos:     v.Pos(),
			}
		}
		return typedesc.Union{Alts: alts}, nil

	case "literal":
		valuesVal := v.LookupPath(cue.ParsePath("values"))
		if !valuesVal.Exists() {
			return nil, &CompileError{Field: path, Message: "literal needs values", Pos: v.Pos()}
		}
		list, err := valuesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var values []any
		for list.Next() {
			lv := list.Value()
			switch lv.Kind() {
			case cue.StringKind:
				s, _ := lv.String()
				values = append(values, s)
			case cue.IntKind:
				n, _ := lv.Int64()
				values = append(values, n)
			case cue.FloatKind, cue.NumberKind:
				f, _ := lv.Float64()
				values = append(values, f)
			default:
				return nil, &CompileError{
					Field:   path,
					Message: "literal values must be strings or numbers",
					Pos:     lv.Pos(),
				}
			}
		}
		return typedesc.Literal{Values: values}, nil

	case "record":
		rname, err := c.childName(v, "record", path)
		if err != nil {
			return nil, err
		}
		rec, ok := c.records[rname]
		if !ok {
			return nil, &CompileError{
				Field:   path,
				Message: fmt.Sprintf("reference to undeclared record %q", rname),
				Pos:     v.Pos(),
			}
		}
		return rec, nil

	case "enum":
		ename, err := c.childName(v, "enum", path)
		if err != nil {
			return nil, err
		}
		e, ok := c.enums[ename]
		if !ok {
			return nil, &CompileError{
				Field:   path,
				Message: fmt.Sprintf("reference to undeclared enum %q", ename),
				Pos:     v.Pos(),
			}
		}
		return e, nil

	case "ref":
		tname, err := c.childName(v, "table", path)
		if err != nil {
			return nil, err
		}
		return typedesc.ForeignRef{Table: tname}, nil

	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %q", kind),
			Pos:     kindVal.Pos(),
		}
	}
}

func (c *schemaCompiler) parseChild(v cue.Value, label, path string) (typedesc.Type, error) {
	child := v.LookupPath(cue.ParsePath(label))
	if !child.Exists() {
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("missing %s type", label),
			Pos:     v.Pos(),
		}
	}
	return c.parseType(child, path+"."+label)
}

func (c *schemaCompiler) parseChildList(v cue.Value, label, path string) ([]typedesc.Type, error) {
	child := v.LookupPath(cue.ParsePath(label))
	if !child.Exists() {
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("missing %s list", label),
			Pos:     v.Pos(),
		}
	}
	list, err := child.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []typedesc.Type
	for i := 0; list.Next(); i++ {
		t, err := c.parseType(list.Value(), fmt.Sprintf("%s.%s[%d]", path, label, i))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *schemaCompiler) childName(v cue.Value, label, path string) (string, error) {
	child := v.LookupPath(cue.ParsePath(label))
	if !child.Exists() {
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("missing %s name", label),
			Pos:     v.Pos(),
		}
	}
	s, err := child.String()
	if err != nil || strings.TrimSpace(s) == "" {
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("%s must be a non-empty string", label),
			Pos:     child.Pos(),
		}
	}
	return s, nil
}

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
