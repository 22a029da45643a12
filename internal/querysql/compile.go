package querysql

import (
	"fmt"
	"strings"

	"github.com/gridapi/gridapi/internal/queryir"
	"github.com/gridapi/gridapi/internal/schema"
	"github.com/gridapi/gridapi/internal/store"
)

// Compiled is the executable form of a plan: the row query, the total-count
// query and their parameter lists. Values are never interpolated; every
// value travels as a ? parameter.
type Compiled struct {
	Query     string
	QueryArgs []any
	Count     string
	CountArgs []any
}

// Compiler compiles query plans to parameterized SQLite SQL for one table.
type Compiler struct {
	spec *schema.TableSpec
}

// NewCompiler creates a Compiler for the given table.
func NewCompiler(spec *schema.TableSpec) *Compiler {
	return &Compiler{spec: spec}
}

// Compile converts a plan into its SQL form. The plan shape picks the
// strategy: plain filter, grouped extremum, or group-by projection.
//
// Every row query carries an ORDER BY with an id tiebreaker so paging is
// deterministic.
func (c *Compiler) Compile(plan *queryir.Plan) (*Compiled, error) {
	switch agg := plan.Aggregation.(type) {
	case nil:
		return c.compileFilter(plan)
	case queryir.Extremum:
		return c.compileExtremum(plan, agg)
	case queryir.GroupBy:
		return c.compileGroupBy(plan, agg)
	default:
		return nil, fmt.Errorf("unsupported aggregation type: %T", agg)
	}
}

// compileFilter handles the no-aggregation case:
//
//	SELECT [DISTINCT] cols FROM t WHERE ... ORDER BY ... LIMIT ? OFFSET ?
//
// with the total taken as a count over the same filtered (and distinct) set
// before pagination.
func (c *Compiler) compileFilter(plan *queryir.Plan) (*Compiled, error) {
	where, args, err := c.compilePredicates(plan.Predicates, "")
	if err != nil {
		return nil, err
	}

	distinct := ""
	if plan.Distinct {
		distinct = "DISTINCT "
	}

	base := fmt.Sprintf("SELECT %s%s FROM %s%s",
		distinct, c.columnList(""), c.spec.Name, where)

	query := base + c.orderBy(plan.Sort, "") + " LIMIT ? OFFSET ?"
	queryArgs := append(append([]any{}, args...), plan.Limit, plan.Offset)

	count := fmt.Sprintf("SELECT COUNT(*) FROM (%s)", base)
	countArgs := append([]any{}, args...)

	return &Compiled{Query: query, QueryArgs: queryArgs, Count: count, CountArgs: countArgs}, nil
}

// compileExtremum handles max/min per group. A sub-query groups the table by
// the extremum's grouping fields and selects the id and extremum value per
// group; the outer query joins back on (id, value) equality, which keeps
// exactly the rows achieving the extremum. Filters on grouping fields are
// pushed into the sub-query; all other filters stay on the outer query.
func (c *Compiler) compileExtremum(plan *queryir.Plan, ext queryir.Extremum) (*Compiled, error) {
	fn := "MAX"
	if ext.Kind == queryir.OpMin {
		fn = "MIN"
	}

	grouping := make(map[string]bool, len(ext.GroupBy))
	groupCols := make([]string, len(ext.GroupBy))
	for i, g := range ext.GroupBy {
		col := c.spec.Column(g)
		if col == "" {
			return nil, fmt.Errorf("unknown grouping field: %s", g)
		}
		grouping[col] = true
		groupCols[i] = col
	}

	targetCol := c.spec.Column(ext.Field)
	if targetCol == "" {
		return nil, fmt.Errorf("unknown extremum field: %s", ext.Field)
	}

	var pushed, outer []queryir.Predicate
	for _, p := range plan.Predicates {
		if grouping[c.spec.Column(p.Field)] {
			pushed = append(pushed, p)
		} else {
			outer = append(outer, p)
		}
	}

	subWhere, subArgs, err := c.compilePredicates(pushed, "")
	if err != nil {
		return nil, err
	}
	groupClause := ""
	if len(groupCols) > 0 {
		groupClause = " GROUP BY " + strings.Join(groupCols, ", ")
	}
	sub := fmt.Sprintf("SELECT id AS ext_id, %s(%s) AS ext_value FROM %s%s%s",
		fn, targetCol, c.spec.Name, subWhere, groupClause)

	outerWhere, outerArgs, err := c.compilePredicates(outer, c.spec.Name)
	if err != nil {
		return nil, err
	}

	distinct := ""
	if plan.Distinct {
		distinct = "DISTINCT "
	}

	qual := c.spec.Name + "."
	base := fmt.Sprintf(
		"SELECT %s%s FROM %s INNER JOIN (%s) AS ext ON (%sid = ext.ext_id AND %s%s = ext.ext_value)%s",
		distinct, c.columnList(c.spec.Name), c.spec.Name, sub,
		qual, qual, targetCol, outerWhere)
	baseArgs := append(append([]any{}, subArgs...), outerArgs...)

	query := base + c.orderBy(plan.Sort, c.spec.Name) + " LIMIT ? OFFSET ?"
	queryArgs := append(append([]any{}, baseArgs...), plan.Limit, plan.Offset)

	count := fmt.Sprintf("SELECT COUNT(*) FROM (%s)", base)

	return &Compiled{Query: query, QueryArgs: queryArgs, Count: count, CountArgs: baseArgs}, nil
}

// compileGroupBy handles the group-by projection. The sub-query projects the
// filtered table onto the grouping columns and pages over the groups; the
// outer query joins back on column-wise equality and groups again so one
// representative row per paged group surfaces. The total is the number of
// distinct groups, not the joined row count.
func (c *Compiler) compileGroupBy(plan *queryir.Plan, group queryir.GroupBy) (*Compiled, error) {
	groupCols := make([]string, len(group.Fields))
	for i, g := range group.Fields {
		col := c.spec.Column(g)
		if col == "" {
			return nil, fmt.Errorf("unknown group_by field: %s", g)
		}
		groupCols[i] = col
	}

	where, args, err := c.compilePredicates(plan.Predicates, "")
	if err != nil {
		return nil, err
	}

	aliased := make([]string, len(groupCols))
	joinConds := make([]string, len(groupCols))
	qualGroup := make([]string, len(groupCols))
	for i, col := range groupCols {
		alias := fmt.Sprintf("grp_%d", i)
		aliased[i] = fmt.Sprintf("%s AS %s", col, alias)
		joinConds[i] = fmt.Sprintf("%s.%s = grp.%s", c.spec.Name, col, alias)
		qualGroup[i] = fmt.Sprintf("%s.%s", c.spec.Name, col)
	}

	sub := fmt.Sprintf("SELECT %s FROM %s%s GROUP BY %s%s LIMIT ? OFFSET ?",
		strings.Join(aliased, ", "), c.spec.Name, where,
		strings.Join(groupCols, ", "), c.groupOrder(plan.Sort, groupCols))
	subArgs := append(append([]any{}, args...), plan.Limit, plan.Offset)

	outerWhere, outerArgs, err := c.compilePredicates(plan.Predicates, c.spec.Name)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s INNER JOIN (%s) AS grp ON (%s)%s GROUP BY %s%s",
		c.columnList(c.spec.Name), c.spec.Name, sub, strings.Join(joinConds, " AND "),
		outerWhere, strings.Join(qualGroup, ", "), c.orderBy(plan.Sort, c.spec.Name))
	queryArgs := append(append([]any{}, subArgs...), outerArgs...)

	count := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT %s FROM %s%s GROUP BY %s)",
		strings.Join(groupCols, ", "), c.spec.Name, where, strings.Join(groupCols, ", "))
	countArgs := append([]any{}, args...)

	return &Compiled{Query: query, QueryArgs: queryArgs, Count: count, CountArgs: countArgs}, nil
}

// compilePredicates renders a WHERE clause, encoding every typed value to
// its storage form. An empty membership filter compiles to a contradiction
// so it matches nothing rather than everything.
func (c *Compiler) compilePredicates(preds []queryir.Predicate, qualifier string) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}

	qual := ""
	if qualifier != "" {
		qual = qualifier + "."
	}

	var parts []string
	var args []any
	for _, p := range preds {
		col := c.spec.Column(p.Field)
		if col == "" {
			return "", nil, fmt.Errorf("unknown filter field: %s", p.Field)
		}
		col = qual + col

		switch p.Op {
		case queryir.OpEq:
			parts = append(parts, col+" = ?")
			v, err := store.EncodeValue(p.Value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		case queryir.OpGt, queryir.OpGte, queryir.OpLt, queryir.OpLte:
			parts = append(parts, col+" "+sqlComparison(p.Op)+" ?")
			v, err := store.EncodeValue(p.Value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		case queryir.OpIn:
			if len(p.Values) == 0 {
				parts = append(parts, "0 = 1")
				continue
			}
			placeholders := make([]string, len(p.Values))
			for i, val := range p.Values {
				placeholders[i] = "?"
				v, err := store.EncodeValue(val)
				if err != nil {
					return "", nil, err
				}
				args = append(args, v)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		default:
			return "", nil, fmt.Errorf("unsupported filter operator: %s", p.Op)
		}
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sqlComparison(op queryir.Op) string {
	switch op {
	case queryir.OpGt:
		return ">"
	case queryir.OpGte:
		return ">="
	case queryir.OpLt:
		return "<"
	case queryir.OpLte:
		return "<="
	default:
		return "="
	}
}

// groupOrder renders a deterministic ordering for the group-paging
// sub-query: requested sort keys that name grouping columns first, then the
// remaining grouping columns ascending.
func (c *Compiler) groupOrder(sort []queryir.SortKey, groupCols []string) string {
	grouping := make(map[string]bool, len(groupCols))
	for _, col := range groupCols {
		grouping[col] = true
	}

	var parts []string
	used := make(map[string]bool, len(groupCols))
	for _, key := range sort {
		col := c.spec.Column(key.Field)
		if !grouping[col] || used[col] {
			continue
		}
		used[col] = true
		dir := "ASC"
		if key.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	for _, col := range groupCols {
		if !used[col] {
			parts = append(parts, col+" ASC")
		}
	}

	return " ORDER BY " + strings.Join(parts, ", ")
}

// orderBy renders the sort keys followed by the mandatory id tiebreaker.
func (c *Compiler) orderBy(sort []queryir.SortKey, qualifier string) string {
	qual := ""
	if qualifier != "" {
		qual = qualifier + "."
	}

	var parts []string
	for _, key := range sort {
		col := c.spec.Column(key.Field)
		dir := "ASC"
		if key.Desc {
			dir = "DESC"
		}
		parts = append(parts, qual+col+" "+dir)
	}
	parts = append(parts, qual+"id ASC")

	return " ORDER BY " + strings.Join(parts, ", ")
}

// columnList renders the table's columns in declared field order, optionally
// qualified for join queries.
func (c *Compiler) columnList(qualifier string) string {
	qual := ""
	if qualifier != "" {
		qual = qualifier + "."
	}
	cols := make([]string, len(c.spec.Fields))
	for i, f := range c.spec.Fields {
		cols[i] = qual + f.Column()
	}
	return strings.Join(cols, ", ")
}
