// Package queryir turns flat request parameters into a typed query plan.
//
// The package has two stages. ParseParams applies the parameter
// micro-syntax: a name is either a bare field (equality) or field[op] with
// op in {gt, gte, lt, lte, in, max, min}, while the reserved names fields,
// limit, offset, unique, sorted_by and group_by carry control meaning and
// are split out. BuildPlan then resolves raw values through the field
// codecs and picks the plan shape.
//
// A plan carries at most one aggregation: a GroupBy projection or an
// Extremum (the row achieving max/min of a field per group, with the
// grouping fields taken from the parameter value). Requesting both, or two
// extremums, is rejected as a bad request rather than resolved by some
// implicit precedence; applying two aggregations is not commutative and the
// micro-syntax has no way to order them.
//
// Plans are per-request values. Nothing in this package is shared or
// mutated across requests.
package queryir
