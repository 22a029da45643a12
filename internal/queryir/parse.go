package queryir

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// FieldSet answers whether a name resolves to a filterable field. The schema
// table spec satisfies it.
type FieldSet interface {
	Has(name string) bool
}

// paramPattern matches a bare field name or field[op].
var paramPattern = regexp.MustCompile(`^([A-Za-z0-9_]+)(?:\[([A-Za-z0-9]+)\])?$`)

var filterOps = map[string]Op{
	"gt":  OpGt,
	"gte": OpGte,
	"lt":  OpLt,
	"lte": OpLte,
	"in":  OpIn,
	"max": OpMax,
	"min": OpMin,
}

var reservedParams = map[string]bool{
	"fields":    true,
	"limit":     true,
	"offset":    true,
	"unique":    true,
	"sorted_by": true,
	"group_by":  true,
}

// ParseParams parses raw query parameters into a Request. Reserved control
// parameters are handled in place; every other parameter must name a known
// field, optionally with an operator suffix. Unknown names, unknown
// operators and malformed values are bad-request errors.
func ParseParams(values url.Values, fields FieldSet, defaultLimit int) (*Request, error) {
	req := &Request{Limit: defaultLimit}

	for name, raws := range values {
		if reservedParams[name] {
			if err := parseReserved(req, name, raws, fields); err != nil {
				return nil, err
			}
			continue
		}

		m := paramPattern.FindStringSubmatch(name)
		if m == nil {
			return nil, badRequestf("invalid parameter: %s", name)
		}
		field, opName := m[1], m[2]
		if !fields.Has(field) {
			return nil, badRequestf("unknown field: %s", field)
		}

		op := OpEq
		if opName != "" {
			var ok bool
			op, ok = filterOps[opName]
			if !ok {
				return nil, badRequestf("unknown operator %q in parameter %s", opName, name)
			}
		}

		for _, raw := range raws {
			if op == OpMax || op == OpMin {
				ext, err := parseExtremum(op, field, raw, fields)
				if err != nil {
					return nil, err
				}
				for _, prev := range req.Extremums {
					if prev.Kind == ext.Kind && prev.Field == ext.Field {
						return nil, badRequestf("duplicate %s aggregation on field %s", op, field)
					}
				}
				req.Extremums = append(req.Extremums, ext)
				continue
			}
			req.Filters = append(req.Filters, FilterSpec{Field: field, Op: op, Raw: raw})
		}
	}

	return req, nil
}

// parseExtremum reads the grouping-field list carried in the parameter
// value. An empty value means one group over the whole filtered set.
func parseExtremum(kind Op, field, raw string, fields FieldSet) (Extremum, error) {
	ext := Extremum{Kind: kind, Field: field}
	if raw == "" {
		return ext, nil
	}
	for _, g := range strings.Split(raw, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !fields.Has(g) {
			return Extremum{}, badRequestf("unknown grouping field %q in %s[%s]", g, field, kind)
		}
		ext.GroupBy = append(ext.GroupBy, g)
	}
	return ext, nil
}

func parseReserved(req *Request, name string, raws []string, fields FieldSet) error {
	// Repeated reserved parameters keep the first occurrence.
	raw := raws[0]

	switch name {
	case "limit":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequestf("invalid limit: %q", raw)
		}
		req.Limit = n
	case "offset":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequestf("invalid offset: %q", raw)
		}
		req.Offset = n
	case "unique":
		switch raw {
		case "true":
			req.Unique = true
		case "false":
			req.Unique = false
		default:
			return badRequestf("invalid unique flag: %q", raw)
		}
	case "sorted_by":
		for _, part := range splitList(raw) {
			key := SortKey{Field: part}
			if strings.HasPrefix(part, "-") {
				key = SortKey{Field: part[1:], Desc: true}
			}
			if !fields.Has(key.Field) {
				return badRequestf("unknown sort field: %s", key.Field)
			}
			req.Sort = append(req.Sort, key)
		}
	case "group_by":
		for _, part := range splitList(raw) {
			if !fields.Has(part) {
				return badRequestf("unknown group_by field: %s", part)
			}
			req.GroupBy = append(req.GroupBy, part)
		}
	case "fields":
		req.Fields = splitList(raw)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
