package queryir

import (
	"strings"

	"github.com/gridapi/gridapi/internal/codec"
)

// BuildPlan resolves a parsed request into a Plan, deserializing raw filter
// values through the field codecs and enforcing the single-aggregation
// invariant.
func BuildPlan(req *Request, codecs codec.FieldCodecs) (*Plan, error) {
	if len(req.GroupBy) > 0 && len(req.Extremums) > 0 {
		return nil, badRequestf("group_by cannot be combined with a max/min aggregation")
	}
	if len(req.Extremums) > 1 {
		return nil, badRequestf("at most one max/min aggregation is permitted per request")
	}

	plan := &Plan{
		Fields:   req.Fields,
		Sort:     req.Sort,
		Distinct: req.Unique,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}

	for _, f := range req.Filters {
		fc, ok := codecs[f.Field]
		if !ok {
			return nil, badRequestf("unknown field: %s", f.Field)
		}
		p := Predicate{Field: f.Field, Op: f.Op}

		if f.Op == OpIn {
			// An empty list matches nothing; the compiler renders it as a
			// contradiction rather than dropping the filter.
			p.Values = []any{}
			if f.Raw != "" {
				for _, elem := range strings.Split(f.Raw, ",") {
					v, err := fc.Deserialize(elem)
					if err != nil {
						return nil, badRequestf("invalid value %q for %s[in]: %v", elem, f.Field, err)
					}
					p.Values = append(p.Values, v)
				}
			}
		} else {
			v, err := fc.Deserialize(f.Raw)
			if err != nil {
				return nil, badRequestf("invalid value %q for %s: %v", f.Raw, f.Field, err)
			}
			p.Value = v
		}

		plan.Predicates = append(plan.Predicates, p)
	}

	switch {
	case len(req.GroupBy) > 0:
		plan.Aggregation = GroupBy{Fields: req.GroupBy}
	case len(req.Extremums) == 1:
		plan.Aggregation = req.Extremums[0]
	}

	return plan, nil
}
