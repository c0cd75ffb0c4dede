package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
	"github.com/syssam/queryx/expr"
)

// SelectBuilder builds SELECT statements.
type SelectBuilder struct {
	Builder
	distinct  bool
	columns   []string
	froms     []*TableInfo
	joins     []string
	groupBy   []string
	orderBy   []string
	limit     int
	offset    int
	hasLimit  bool
	hasOffset bool
}

// Select returns a new SELECT builder for the given dialect and capability
// set.
func Select(d string, caps dialect.Capabilities) *SelectBuilder {
	s := &SelectBuilder{}
	s.init(d, caps)
	return s
}

// SubSelect returns a sub-query builder that shares this builder's
// parameter registry and sees its tables for alias resolution.
func (s *SelectBuilder) SubSelect() *SelectBuilder {
	sub := &SelectBuilder{}
	sub.initChild(&s.Builder)
	return sub
}

// Distinct marks the statement DISTINCT.
func (s *SelectBuilder) Distinct() *SelectBuilder {
	s.distinct = true
	return s
}

// Columns appends plain column names to the projection.
func (s *SelectBuilder) Columns(names ...string) *SelectBuilder {
	for _, name := range names {
		if name == "*" {
			s.columns = append(s.columns, "*")
			continue
		}
		s.columns = append(s.columns, s.Quote(name))
	}
	return s
}

// ColumnSpec appends a captured expression (e.g. an aggregate or an aliased
// column) to the projection. A specification resolving to a pristine
// non-string literal renders its textual form.
func (s *SelectBuilder) ColumnSpec(spec expr.Spec) *SelectBuilder {
	frag, err := s.dispatchProjectionSpec(spec)
	if err != nil {
		s.addErr(err)
		return s
	}
	s.columns = append(s.columns, frag)
	return s
}

// ColumnSelect appends an aliased scalar sub-select to the projection.
func (s *SelectBuilder) ColumnSelect(sub *SelectBuilder, alias string) *SelectBuilder {
	if alias == "" {
		s.addErr(queryx.NewResolutionError("", "sub-select column requires a non-empty alias"))
		return s
	}
	frag, err := sub.Render()
	if err != nil {
		s.addErr(err)
		return s
	}
	s.columns = append(s.columns, "("+frag+") AS "+s.Quote(alias))
	return s
}

// From registers a table source ("name", "owner.name alias", "name AS alias").
func (s *SelectBuilder) From(table string) *SelectBuilder {
	t := s.addTable(table, true)
	s.froms = append(s.froms, t)
	return s
}

// FromSelect registers an aliased sub-select as the table source.
func (s *SelectBuilder) FromSelect(sub *SelectBuilder, alias string) *SelectBuilder {
	if alias == "" {
		s.addErr(queryx.NewResolutionError("", "sub-select source requires a non-empty alias"))
		return s
	}
	frag, err := sub.Render()
	if err != nil {
		s.addErr(err)
		return s
	}
	t := &TableInfo{Alias: alias, subSQL: frag}
	s.tables = append(s.tables, t)
	s.froms = append(s.froms, t)
	return s
}

func (s *SelectBuilder) join(kind, table string, on expr.Spec) *SelectBuilder {
	t := s.addTable(table, true)
	clause := kind + " " + t.qualified(s.dialect)
	if on != nil {
		frag, err := s.dispatchSpec(on)
		if err != nil {
			s.addErr(err)
			return s
		}
		clause += " ON " + frag
	}
	s.joins = append(s.joins, clause)
	return s
}

// Join appends an inner join.
func (s *SelectBuilder) Join(table string, on expr.Spec) *SelectBuilder {
	return s.join("JOIN", table, on)
}

// LeftJoin appends a left outer join.
func (s *SelectBuilder) LeftJoin(table string, on expr.Spec) *SelectBuilder {
	return s.join("LEFT JOIN", table, on)
}

// RightJoin appends a right outer join.
func (s *SelectBuilder) RightJoin(table string, on expr.Spec) *SelectBuilder {
	return s.join("RIGHT JOIN", table, on)
}

// Where captures a specification and appends it to the WHERE clause,
// joined by AND.
func (s *SelectBuilder) Where(spec expr.Spec) *SelectBuilder {
	s.whereSpec(spec, false)
	return s
}

// OrWhere appends a WHERE fragment joined by OR. The OR applies to this
// fragment only.
func (s *SelectBuilder) OrWhere(spec expr.Spec) *SelectBuilder {
	s.whereSpec(spec, true)
	return s
}

// WhereCol appends a plain "col = value" condition.
func (s *SelectBuilder) WhereCol(col string, v any) *SelectBuilder {
	s.whereCol(col, v, false)
	return s
}

// WhereRaw appends a raw condition fragment, binding each "?" to the
// corresponding argument.
func (s *SelectBuilder) WhereRaw(frag string, args ...any) *SelectBuilder {
	s.whereRaw(frag, false, args...)
	return s
}

// OpenBracket opens a parenthesized WHERE block.
func (s *SelectBuilder) OpenBracket() *SelectBuilder {
	s.where.openBlock("AND")
	return s
}

// OrOpenBracket opens a parenthesized WHERE block joined by OR.
func (s *SelectBuilder) OrOpenBracket() *SelectBuilder {
	s.where.openBlock("OR")
	return s
}

// CloseBracket closes the innermost WHERE block.
func (s *SelectBuilder) CloseBracket() *SelectBuilder {
	s.addErr(s.where.closeBlock())
	return s
}

// GroupBy appends GROUP BY columns.
func (s *SelectBuilder) GroupBy(cols ...string) *SelectBuilder {
	for _, c := range cols {
		s.groupBy = append(s.groupBy, s.Quote(c))
	}
	return s
}

// Having captures a specification and appends it to the HAVING clause.
func (s *SelectBuilder) Having(spec expr.Spec) *SelectBuilder {
	s.havingSpec(spec, false)
	return s
}

// OrHaving appends a HAVING fragment joined by OR.
func (s *SelectBuilder) OrHaving(spec expr.Spec) *SelectBuilder {
	s.havingSpec(spec, true)
	return s
}

// OrderBy appends ascending ORDER BY columns.
func (s *SelectBuilder) OrderBy(cols ...string) *SelectBuilder {
	for _, c := range cols {
		s.orderBy = append(s.orderBy, s.Quote(c))
	}
	return s
}

// OrderByDesc appends a descending ORDER BY column.
func (s *SelectBuilder) OrderByDesc(col string) *SelectBuilder {
	s.orderBy = append(s.orderBy, s.Quote(col)+" DESC")
	return s
}

// Limit caps the number of returned rows. The rendered syntax follows the
// capability matrix: TOP, FIRST/SKIP or LIMIT/OFFSET, never more than one.
func (s *SelectBuilder) Limit(n int) *SelectBuilder {
	s.limit = n
	s.hasLimit = true
	return s
}

// Offset skips the first n rows.
func (s *SelectBuilder) Offset(n int) *SelectBuilder {
	s.offset = n
	s.hasOffset = true
	return s
}

// Render emits the token-bearing SQL text.
func (s *SelectBuilder) Render() (string, error) {
	if err := s.Err(); err != nil {
		return "", err
	}
	strategy := s.caps.RowLimit()
	if (s.hasLimit || s.hasOffset) && strategy == dialect.RowLimitNone {
		return "", queryx.NewResolutionError("limit", "no row-limit capability enabled")
	}
	if s.hasOffset && strategy == dialect.RowLimitTop {
		return "", queryx.NewResolutionError("offset", "row-limit capability cannot skip rows")
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.distinct {
		sb.WriteString("DISTINCT ")
	}
	if s.hasLimit && strategy == dialect.RowLimitTop {
		sb.WriteString("TOP " + strconv.Itoa(s.limit) + " ")
	}
	if strategy == dialect.RowLimitFirstSkip {
		if s.hasLimit {
			sb.WriteString("FIRST " + strconv.Itoa(s.limit) + " ")
		}
		if s.hasOffset {
			sb.WriteString("SKIP " + strconv.Itoa(s.offset) + " ")
		}
	}
	if len(s.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(s.columns, ", "))
	}
	if len(s.froms) > 0 {
		sb.WriteString(" FROM ")
		refs := make([]string, len(s.froms))
		for i, t := range s.froms {
			refs[i] = t.qualified(s.dialect)
		}
		sb.WriteString(strings.Join(refs, ", "))
	}
	for _, j := range s.joins {
		sb.WriteString(" " + j)
	}
	if !s.where.empty() {
		sb.WriteString(" WHERE " + s.where.finish())
	}
	if len(s.groupBy) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(s.groupBy, ", "))
	}
	if !s.having.empty() {
		sb.WriteString(" HAVING " + s.having.finish())
	}
	if len(s.orderBy) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(s.orderBy, ", "))
	}
	if strategy == dialect.RowLimitOffset {
		if s.hasLimit {
			sb.WriteString(" LIMIT " + strconv.Itoa(s.limit))
		}
		if s.hasOffset {
			sb.WriteString(" OFFSET " + strconv.Itoa(s.offset))
		}
	}
	return sb.String(), nil
}

// Fill renders the statement and binds its parameters into positional
// markers, returning the executable query and argument list.
func (s *SelectBuilder) Fill() (string, []any, error) {
	q, err := s.Render()
	if err != nil {
		return "", nil, err
	}
	return s.fill(q)
}
