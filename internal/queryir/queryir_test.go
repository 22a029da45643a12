package queryir

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/typedesc"
)

type fieldSet map[string]bool

func (f fieldSet) Has(name string) bool { return f[name] }

var taskFields = fieldSet{
	"id": true, "title": true, "value": true, "g": true,
	"status": true, "due": true, "owner": true, "owner_id": true,
}

func parse(t *testing.T, rawQuery string) (*Request, error) {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	return ParseParams(values, taskFields, 50)
}

func taskCodecs(t *testing.T) codec.FieldCodecs {
	t.Helper()
	codecs, err := codec.DeriveFieldCodecs([]typedesc.FieldDescriptor{
		{Name: "id", Type: typedesc.Primitive{Kind: typedesc.KindInt}, PrimaryKey: true},
		{Name: "title", Type: typedesc.Primitive{Kind: typedesc.KindString}},
		{Name: "value", Type: typedesc.Primitive{Kind: typedesc.KindInt}},
		{Name: "g", Type: typedesc.Primitive{Kind: typedesc.KindInt}},
		{Name: "status", Type: typedesc.Primitive{Kind: typedesc.KindString}},
		{Name: "due", Type: typedesc.Primitive{Kind: typedesc.KindDateTime}},
		{Name: "owner", Type: typedesc.ForeignRef{Table: "users"}},
	}, codec.NewRegistry(), codec.DeriveConfig{})
	require.NoError(t, err)
	return codecs
}

func TestParseParams_Filters(t *testing.T) {
	req, err := parse(t, "title=hello&value[gt]=3&status[in]=a,b")
	require.NoError(t, err)

	assert.Len(t, req.Filters, 3)
	assert.ElementsMatch(t, []FilterSpec{
		{Field: "title", Op: OpEq, Raw: "hello"},
		{Field: "value", Op: OpGt, Raw: "3"},
		{Field: "status", Op: OpIn, Raw: "a,b"},
	}, req.Filters)
	assert.Equal(t, 50, req.Limit)
	assert.Equal(t, 0, req.Offset)
}

func TestParseParams_Reserved(t *testing.T) {
	req, err := parse(t, "limit=10&offset=20&unique=true&sorted_by=g,-value&fields=id,title&group_by=g")
	require.NoError(t, err)

	assert.Empty(t, req.Filters)
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, 20, req.Offset)
	assert.True(t, req.Unique)
	assert.Equal(t, []SortKey{{Field: "g"}, {Field: "value", Desc: true}}, req.Sort)
	assert.Equal(t, []string{"id", "title"}, req.Fields)
	assert.Equal(t, []string{"g"}, req.GroupBy)
}

func TestParseParams_Extremum(t *testing.T) {
	req, err := parse(t, "value[max]=g,status")
	require.NoError(t, err)
	require.Len(t, req.Extremums, 1)
	assert.Equal(t, Extremum{Kind: OpMax, Field: "value", GroupBy: []string{"g", "status"}}, req.Extremums[0])

	// Empty value means one group over the whole set.
	req, err = parse(t, "value[min]=")
	require.NoError(t, err)
	require.Len(t, req.Extremums, 1)
	assert.Empty(t, req.Extremums[0].GroupBy)
}

func TestParseParams_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "unknown field", query: "nope=1", want: "unknown field: nope"},
		{name: "unknown field with op", query: "nope[gt]=1", want: "unknown field: nope"},
		{name: "unknown operator", query: "value[like]=1", want: `unknown operator "like"`},
		{name: "malformed name", query: "value%5Bgt=1", want: "invalid parameter"},
		{name: "bad limit", query: "limit=abc", want: "invalid limit"},
		{name: "negative offset", query: "offset=-1", want: "invalid offset"},
		{name: "bad unique", query: "unique=yes", want: "invalid unique flag"},
		{name: "unknown sort field", query: "sorted_by=-nope", want: "unknown sort field: nope"},
		{name: "unknown group field", query: "group_by=nope", want: "unknown group_by field: nope"},
		{name: "unknown extremum group", query: "value[max]=nope", want: `unknown grouping field "nope"`},
		{name: "duplicate extremum", query: "value[max]=g&value[max]=status", want: "duplicate max aggregation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.query)
			require.Error(t, err)
			assert.True(t, IsBadRequest(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildPlan_TypedValues(t *testing.T) {
	codecs := taskCodecs(t)

	req, err := parse(t, "value[gt]=3&due=2024-03-01T00:00:00&owner_id=7")
	require.NoError(t, err)

	plan, err := BuildPlan(req, codecs)
	require.NoError(t, err)
	require.Len(t, plan.Predicates, 3)

	byField := map[string]Predicate{}
	for _, p := range plan.Predicates {
		byField[p.Field] = p
	}
	assert.Equal(t, int64(3), byField["value"].Value)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), byField["due"].Value)
	assert.Equal(t, int64(7), byField["owner_id"].Value)
	assert.Nil(t, plan.Aggregation)
}

func TestBuildPlan_InSplitting(t *testing.T) {
	codecs := taskCodecs(t)

	req, err := parse(t, "value[in]=1,2,3")
	require.NoError(t, err)
	plan, err := BuildPlan(req, codecs)
	require.NoError(t, err)
	require.Len(t, plan.Predicates, 1)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, plan.Predicates[0].Values)

	// Empty list stays an (empty) membership filter.
	req, err = parse(t, "value[in]=")
	require.NoError(t, err)
	plan, err = BuildPlan(req, codecs)
	require.NoError(t, err)
	require.Len(t, plan.Predicates, 1)
	assert.Equal(t, OpIn, plan.Predicates[0].Op)
	assert.Empty(t, plan.Predicates[0].Values)
	assert.NotNil(t, plan.Predicates[0].Values)
}

func TestBuildPlan_BadValue(t *testing.T) {
	codecs := taskCodecs(t)

	req, err := parse(t, "value=abc")
	require.NoError(t, err)
	_, err = BuildPlan(req, codecs)
	require.Error(t, err)
	assert.True(t, IsBadRequest(err))
	assert.Contains(t, err.Error(), `invalid value "abc" for value`)

	req, err = parse(t, "value[in]=1,x")
	require.NoError(t, err)
	_, err = BuildPlan(req, codecs)
	require.Error(t, err)
	assert.True(t, IsBadRequest(err))
}

func TestBuildPlan_AggregationExclusivity(t *testing.T) {
	codecs := taskCodecs(t)

	// group_by together with any extremum is rejected, regardless of fields.
	req, err := parse(t, "group_by=g&value[max]=g")
	require.NoError(t, err)
	_, err = BuildPlan(req, codecs)
	require.Error(t, err)
	assert.True(t, IsBadRequest(err))

	// Two extremums are rejected even across different fields.
	req, err = parse(t, "value[max]=g&g[min]=status")
	require.NoError(t, err)
	_, err = BuildPlan(req, codecs)
	require.Error(t, err)
	assert.True(t, IsBadRequest(err))
}

func TestBuildPlan_AggregationSelection(t *testing.T) {
	codecs := taskCodecs(t)

	req, err := parse(t, "group_by=g,status")
	require.NoError(t, err)
	plan, err := BuildPlan(req, codecs)
	require.NoError(t, err)
	assert.Equal(t, GroupBy{Fields: []string{"g", "status"}}, plan.Aggregation)

	req, err = parse(t, "value[max]=g&status=a")
	require.NoError(t, err)
	plan, err = BuildPlan(req, codecs)
	require.NoError(t, err)
	assert.Equal(t, Extremum{Kind: OpMax, Field: "value", GroupBy: []string{"g"}}, plan.Aggregation)
	require.Len(t, plan.Predicates, 1)
	assert.Equal(t, "status", plan.Predicates[0].Field)
}
