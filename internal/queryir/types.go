package queryir

import (
	"errors"
	"fmt"
)

// Op identifies a filter or aggregation operator from the parameter
// micro-syntax.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpMax Op = "max"
	OpMin Op = "min"
)

// FilterSpec is one parsed filter parameter with its raw, undeserialized
// value. Specs are constructed per request and discarded with it.
type FilterSpec struct {
	Field string
	Op    Op
	Raw   string
}

// SortKey is one ordering directive.
type SortKey struct {
	Field string
	Desc  bool
}

// Aggregation is a sealed interface over the plan's aggregation directives.
// Only types in this package implement it. A plan holds at most one.
type Aggregation interface {
	aggregationNode() // Marker method - seals interface to this package
}

// GroupBy projects the result onto the grouping fields, paging over groups.
type GroupBy struct {
	Fields []string
}

func (GroupBy) aggregationNode() {}

// Extremum selects, per group, the row achieving the max/min of Field.
// GroupBy holds the grouping fields carried in the parameter value; empty
// means a single group over the whole filtered set.
type Extremum struct {
	Kind    Op // OpMax or OpMin
	Field   string
	GroupBy []string
}

func (Extremum) aggregationNode() {}

// Request is the parsed form of one request's parameters, before value
// resolution.
type Request struct {
	Filters   []FilterSpec
	Extremums []Extremum
	GroupBy   []string
	Sort      []SortKey

	// Fields restricts the response to a subset of serialized fields. It
	// shapes the response only and never reaches the compiled query.
	Fields []string

	Unique bool
	Limit  int
	Offset int
}

// Predicate is a filter with its value resolved to typed form.
type Predicate struct {
	Field  string
	Op     Op
	Value  any   // scalar operators
	Values []any // OpIn
}

// Plan is the compiled representation of a request's filter, sort,
// aggregation and pagination intent. At most one aggregation is set.
type Plan struct {
	Fields      []string
	Predicates  []Predicate
	Sort        []SortKey
	Aggregation Aggregation // nil, GroupBy or Extremum
	Distinct    bool
	Limit       int
	Offset      int
}

// BadRequestError reports malformed request parameters: unknown fields or
// operators, unparseable values, or conflicting aggregations. It maps to a
// bad-request response at the API boundary.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

func badRequestf(format string, args ...any) *BadRequestError {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}

// IsBadRequest reports whether err is (or wraps) a BadRequestError.
func IsBadRequest(err error) bool {
	var bre *BadRequestError
	return errors.As(err, &bre)
}
