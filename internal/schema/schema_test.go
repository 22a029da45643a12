package schema

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridapi/gridapi/internal/typedesc"
)

func compileString(t *testing.T, src string) (*Schema, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileSchema(v)
}

func TestCompileSchema_Basic(t *testing.T) {
	s, err := compileString(t, `
table: tasks: {
	fields: {
		title: {type: "string"}
		done:  {type: "bool", default: false}
		due:   {type: "datetime", nullable: true}
		score: {type: "float"}
	}
}
`)
	require.NoError(t, err)
	require.Len(t, s.Tables, 1)

	tasks, ok := s.Table("tasks")
	require.True(t, ok)
	assert.Equal(t, "tasks", tasks.Name)
	assert.Equal(t, []string{"id", "title", "done", "due", "score"}, tasks.FieldNames())

	id, ok := tasks.Field("id")
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.HasDefault)
	assert.Equal(t, typedesc.Primitive{Kind: typedesc.KindInt}, id.Type)

	done, ok := tasks.Field("done")
	require.True(t, ok)
	assert.True(t, done.HasDefault)
	assert.Equal(t, false, tasks.Defaults["done"])

	due, ok := tasks.Field("due")
	require.True(t, ok)
	assert.True(t, due.Nullable)
}

func TestCompileSchema_ForeignRef(t *testing.T) {
	s, err := compileString(t, `
table: users: {
	fields: {
		name: {type: "string", unique: true}
	}
}
table: tasks: {
	fields: {
		title: {type: "string"}
		owner: {type: "ref", table: "users"}
	}
}
`)
	require.NoError(t, err)

	tasks, _ := s.Table("tasks")
	owner, ok := tasks.Field("owner")
	require.True(t, ok)
	assert.Equal(t, typedesc.ForeignRef{Table: "users"}, owner.Type)
	assert.Equal(t, "owner_id", owner.Column())

	// The column alias resolves to the same field.
	alias, ok := tasks.Field("owner_id")
	require.True(t, ok)
	assert.Equal(t, owner, alias)
	assert.Equal(t, "owner_id", tasks.Column("owner"))

	users, _ := s.Table("users")
	name, _ := users.Field("name")
	assert.True(t, name.Unique)
}

func TestCompileSchema_DanglingRef(t *testing.T) {
	_, err := compileString(t, `
table: tasks: {
	fields: {
		owner: {type: "ref", table: "nobody"}
	}
}
`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, `undeclared table "nobody"`)
}

func TestCompileSchema_RecordsAndEnums(t *testing.T) {
	s, err := compileString(t, `
enum: Status: ["open", "closed"]

record: Node: {
	fields: {
		value: {type: "int"}
		next:  {type: "record", record: "Node", nullable: true}
	}
}

table: tasks: {
	fields: {
		status: {type: "enum", enum: "Status", default: "open"}
		chain:  {type: "record", record: "Node", nullable: true}
		tags:   {type: "set", elem: {type: "string"}}
		meta:   {type: "map", key: {type: "string"}, value: {type: "int"}}
		pos:    {type: "tuple", elems: [{type: "float"}, {type: "float"}]}
	}
}
`)
	require.NoError(t, err)

	require.Contains(t, s.Enums, "Status")
	assert.Equal(t, []string{"open", "closed"}, s.Enums["Status"].Values)

	node, ok := s.Records["Node"]
	require.True(t, ok)
	require.Len(t, node.Fields, 2)
	// The self-reference resolves to the same shell pointer.
	next := node.Fields[1].Type.(typedesc.Optional)
	assert.Same(t, node, next.Inner)

	tasks, _ := s.Table("tasks")
	chain, _ := tasks.Field("chain")
	assert.Same(t, node, typedesc.Base(chain.Type).(*typedesc.Record))
}

func TestCompileSchema_MutualRecords(t *testing.T) {
	s, err := compileString(t, `
record: A: {
	fields: {b: {type: "record", record: "B", nullable: true}}
}
record: B: {
	fields: {a: {type: "record", record: "A", nullable: true}}
}
table: t: {
	fields: {root: {type: "record", record: "A", nullable: true}}
}
`)
	require.NoError(t, err)
	a := s.Records["A"]
	b := s.Records["B"]
	assert.Same(t, b, a.Fields[0].Type.(typedesc.Optional).Inner)
	assert.Same(t, a, b.Fields[0].Type.(typedesc.Optional).Inner)
}

func TestCompileSchema_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "no tables",
			src:  `enum: Status: ["open"]`,
			want: "at least one table is required",
		},
		{
			name: "declared id",
			src:  `table: t: {fields: {id: {type: "int"}}}`,
			want: "id is implicit",
		},
		{
			name: "missing type",
			src:  `table: t: {fields: {x: {nullable: true}}}`,
			want: "missing type",
		},
		{
			name: "unknown kind",
			src:  `table: t: {fields: {x: {type: "decimal"}}}`,
			want: `unsupported type kind: "decimal"`,
		},
		{
			name: "unknown enum",
			src:  `table: t: {fields: {x: {type: "enum", enum: "Missing"}}}`,
			want: `undeclared enum "Missing"`,
		},
		{
			name: "unknown record",
			src:  `table: t: {fields: {x: {type: "record", record: "Missing"}}}`,
			want: `undeclared record "Missing"`,
		},
		{
			name: "empty enum",
			src: `
enum: Status: []
table: t: {fields: {x: {type: "int"}}}
`,
			want: "at least one value",
		},
		{
			name: "list without elem",
			src:  `table: t: {fields: {x: {type: "list"}}}`,
			want: "missing elem type",
		},
		{
			name: "variadic tuple arity",
			src:  `table: t: {fields: {x: {type: "tuple", variadic: true, elems: [{type: "int"}, {type: "int"}]}}}`,
			want: "exactly one element type",
		},
		{
			name: "single alt union",
			src:  `table: t: {fields: {x: {type: "union", alts: [{type: "int"}]}}}`,
			want: "at least two alternatives",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Message, tt.want)
		})
	}
}

func TestCompileSchema_Literal(t *testing.T) {
	s, err := compileString(t, `
table: t: {
	fields: {
		priority: {type: "literal", values: [1, 2, 3]}
		channel:  {type: "literal", values: ["email", "sms"]}
	}
}
`)
	require.NoError(t, err)
	tbl, _ := s.Table("t")
	p, _ := tbl.Field("priority")
	assert.Equal(t, typedesc.Literal{Values: []any{int64(1), int64(2), int64(3)}}, p.Type)
	c, _ := tbl.Field("channel")
	assert.Equal(t, typedesc.Literal{Values: []any{"email", "sms"}}, c.Type)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.cue"), []byte(`
package app

table: users: {
	fields: {
		name: {type: "string"}
	}
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.cue"), []byte(`
package app

table: tasks: {
	fields: {
		title: {type: "string"}
		owner: {type: "ref", table: "users"}
	}
}
`), 0o644))

	result, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FileCount)
	require.NotNil(t, result.Schema)
	assert.Len(t, result.Schema.Tables, 2)
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}
