package querysql

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/queryir"
	"github.com/gridapi/gridapi/internal/schema"
	"github.com/gridapi/gridapi/internal/store"
)

const testSchema = `
table: tasks: {
	fields: {
		g:      {type: "int"}
		value:  {type: "int"}
		status: {type: "string"}
	}
}
`

func testSpec(t *testing.T) (*schema.TableSpec, codec.FieldCodecs) {
	t.Helper()
	v := cuecontext.New().CompileString(testSchema)
	require.NoError(t, v.Err())
	s, err := schema.CompileSchema(v)
	require.NoError(t, err)
	spec, ok := s.Table("tasks")
	require.True(t, ok)
	codecs, err := codec.DeriveFieldCodecs(spec.Fields, codec.NewRegistry(), codec.DeriveConfig{})
	require.NoError(t, err)
	return spec, codecs
}

// render flattens a compiled plan for golden comparison.
func render(c *Compiled) []byte {
	return []byte(fmt.Sprintf("-- query\n%s\n-- args\n%v\n-- count\n%s\n-- args\n%v\n",
		c.Query, c.QueryArgs, c.Count, c.CountArgs))
}

func assertGolden(t *testing.T, name string, c *Compiled) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, render(c))
}

func TestCompile_PlainDefault(t *testing.T) {
	spec, _ := testSpec(t)
	c, err := NewCompiler(spec).Compile(&queryir.Plan{Limit: 50})
	require.NoError(t, err)

	assert.Contains(t, c.Query, "ORDER BY id ASC")
	assert.NotContains(t, c.Query, "WHERE")
	assertGolden(t, "plain_default", c)
}

func TestCompile_FilteredDistinct(t *testing.T) {
	spec, _ := testSpec(t)
	c, err := NewCompiler(spec).Compile(&queryir.Plan{
		Predicates: []queryir.Predicate{
			{Field: "value", Op: queryir.OpGt, Value: int64(3)},
			{Field: "status", Op: queryir.OpEq, Value: "a"},
		},
		Sort:     []queryir.SortKey{{Field: "value", Desc: true}},
		Distinct: true,
		Limit:    10,
		Offset:   5,
	})
	require.NoError(t, err)

	// Values are parameterized, never interpolated.
	assert.NotContains(t, c.Query, "'a'")
	assert.Equal(t, []any{int64(3), "a", 10, 5}, c.QueryArgs)
	assert.Equal(t, []any{int64(3), "a"}, c.CountArgs)
	assertGolden(t, "filtered_distinct", c)
}

func TestCompile_EmptyInMatchesNothing(t *testing.T) {
	spec, _ := testSpec(t)
	c, err := NewCompiler(spec).Compile(&queryir.Plan{
		Predicates: []queryir.Predicate{{Field: "status", Op: queryir.OpIn, Values: []any{}}},
		Limit:      50,
	})
	require.NoError(t, err)

	assert.Contains(t, c.Query, "0 = 1")
	assertGolden(t, "in_empty", c)
}

func TestCompile_Extremum(t *testing.T) {
	spec, _ := testSpec(t)
	c, err := NewCompiler(spec).Compile(&queryir.Plan{
		Predicates: []queryir.Predicate{
			{Field: "g", Op: queryir.OpEq, Value: int64(1)},
			{Field: "status", Op: queryir.OpEq, Value: "a"},
		},
		Aggregation: queryir.Extremum{Kind: queryir.OpMax, Field: "value", GroupBy: []string{"g"}},
		Limit:       50,
	})
	require.NoError(t, err)

	// The grouping-field filter is pushed into the sub-query; the rest
	// stays on the outer query.
	assert.Contains(t, c.Query, "MAX(value)")
	assert.Contains(t, c.Query, "GROUP BY g")
	assert.Contains(t, c.Query, "tasks.status = ?")
	assert.Equal(t, []any{int64(1), "a", 50, 0}, c.QueryArgs)
	assertGolden(t, "extremum_max", c)
}

func TestCompile_GroupBy(t *testing.T) {
	spec, _ := testSpec(t)
	c, err := NewCompiler(spec).Compile(&queryir.Plan{
		Aggregation: queryir.GroupBy{Fields: []string{"g", "status"}},
		Limit:       2,
	})
	require.NoError(t, err)

	// Pagination applies to the grouped sub-query, not the joined rows.
	assert.Contains(t, c.Query, "LIMIT ? OFFSET ?) AS grp")
	assert.Equal(t, []any{2, 0}, c.QueryArgs)
	assertGolden(t, "group_by", c)
}

func seedRows(t *testing.T) (*store.Table, *Compiler, codec.FieldCodecs) {
	t.Helper()
	spec, codecs := testSpec(t)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tbl, err := store.NewTable(st, spec, codecs)
	require.NoError(t, err)
	require.NoError(t, tbl.EnsureTable(context.Background()))

	return tbl, NewCompiler(spec), codecs
}

func insert(t *testing.T, tbl *store.Table, g, value int64, status string) {
	t.Helper()
	_, err := tbl.Insert(context.Background(), map[string]any{"g": g, "value": value, "status": status})
	require.NoError(t, err)
}

func runQuery(t *testing.T, tbl *store.Table, codecs codec.FieldCodecs, comp *Compiler, rawQuery string) ([]map[string]any, int64) {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	req, err := queryir.ParseParams(values, tbl.Spec(), 50)
	require.NoError(t, err)
	plan, err := queryir.BuildPlan(req, codecs)
	require.NoError(t, err)
	c, err := comp.Compile(plan)
	require.NoError(t, err)

	ctx := context.Background()
	rows, err := tbl.Query(ctx, c.Query, c.QueryArgs...)
	require.NoError(t, err)
	total, err := tbl.Count(ctx, c.Count, c.CountArgs...)
	require.NoError(t, err)
	return rows, total
}

func TestExecute_ExtremumCorrectness(t *testing.T) {
	tbl, comp, codecs := seedRows(t)
	insert(t, tbl, 1, 3, "a")
	insert(t, tbl, 1, 5, "a")
	insert(t, tbl, 2, 1, "a")

	rows, total := runQuery(t, tbl, codecs, comp, "value[max]=g")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), total)

	got := map[int64]int64{}
	for _, row := range rows {
		got[row["g"].(int64)] = row["value"].(int64)
	}
	assert.Equal(t, map[int64]int64{1: 5, 2: 1}, got)
}

func TestExecute_ExtremumMin(t *testing.T) {
	tbl, comp, codecs := seedRows(t)
	insert(t, tbl, 1, 3, "a")
	insert(t, tbl, 1, 5, "a")
	insert(t, tbl, 2, 9, "a")

	rows, total := runQuery(t, tbl, codecs, comp, "value[min]=g")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), total)
	got := map[int64]int64{}
	for _, row := range rows {
		got[row["g"].(int64)] = row["value"].(int64)
	}
	assert.Equal(t, map[int64]int64{1: 3, 2: 9}, got)
}

func TestExecute_GroupByPagination(t *testing.T) {
	tbl, comp, codecs := seedRows(t)
	// 10 rows in 3 distinct groups.
	for i := 0; i < 10; i++ {
		insert(t, tbl, int64(i%3), int64(i), "a")
	}

	rows, total := runQuery(t, tbl, codecs, comp, "group_by=g&limit=2")
	assert.Equal(t, int64(3), total)
	assert.LessOrEqual(t, len(rows), 2)

	// Each surfaced row belongs to a distinct paged group.
	seen := map[int64]bool{}
	for _, row := range rows {
		g := row["g"].(int64)
		assert.False(t, seen[g])
		seen[g] = true
	}
}

func TestExecute_InFilter(t *testing.T) {
	tbl, comp, codecs := seedRows(t)
	insert(t, tbl, 1, 1, "a")
	insert(t, tbl, 2, 2, "b")
	insert(t, tbl, 3, 3, "c")

	rows, total := runQuery(t, tbl, codecs, comp, "status[in]=a,b")
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Contains(t, []string{"a", "b"}, row["status"])
	}

	// An empty membership list matches nothing.
	rows, total = runQuery(t, tbl, codecs, comp, "status[in]=")
	assert.Equal(t, int64(0), total)
	assert.Empty(t, rows)
}

func TestExecute_SortAndPaging(t *testing.T) {
	tbl, comp, codecs := seedRows(t)
	insert(t, tbl, 1, 30, "a")
	insert(t, tbl, 1, 10, "a")
	insert(t, tbl, 1, 20, "a")

	rows, total := runQuery(t, tbl, codecs, comp, "sorted_by=-value&limit=2")
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(30), rows[0]["value"])
	assert.Equal(t, int64(20), rows[1]["value"])

	rows, _ = runQuery(t, tbl, codecs, comp, "sorted_by=-value&limit=2&offset=2")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0]["value"])
}

func TestExecute_Distinct(t *testing.T) {
	tbl, comp, codecs := seedRows(t)
	insert(t, tbl, 1, 1, "a")
	insert(t, tbl, 1, 1, "a")

	// Rows differ by id, so distinct over full rows keeps both; the count
	// matches the distinct row set.
	_, total := runQuery(t, tbl, codecs, comp, "unique=true")
	assert.Equal(t, int64(2), total)
}
