package sql

import (
	"strings"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
	"github.com/syssam/queryx/expr"
)

// UpdateBuilder builds UPDATE statements. The target table is never aliased.
type UpdateBuilder struct {
	Builder
	sets []string
}

// Update returns a new UPDATE builder for the given target table.
func Update(d string, caps dialect.Capabilities, table string) *UpdateBuilder {
	u := &UpdateBuilder{}
	u.init(d, caps)
	u.addTable(table, false)
	return u
}

// Set appends a "col = value" assignment.
func (u *UpdateBuilder) Set(col string, v any) *UpdateBuilder {
	u.sets = append(u.sets, u.Quote(col)+" = "+u.param(v, u.columnHint(col)))
	return u
}

// SetSpec appends a captured assignment (a SetMember expression renders
// "name = (value)").
func (u *UpdateBuilder) SetSpec(spec expr.Spec) *UpdateBuilder {
	frag, err := u.dispatchSpec(spec)
	if err != nil {
		u.addErr(err)
		return u
	}
	u.sets = append(u.sets, frag)
	return u
}

// Where captures a specification and appends it to the WHERE clause.
func (u *UpdateBuilder) Where(spec expr.Spec) *UpdateBuilder {
	u.whereSpec(spec, false)
	return u
}

// OrWhere appends a WHERE fragment joined by OR.
func (u *UpdateBuilder) OrWhere(spec expr.Spec) *UpdateBuilder {
	u.whereSpec(spec, true)
	return u
}

// WhereCol appends a plain "col = value" condition.
func (u *UpdateBuilder) WhereCol(col string, v any) *UpdateBuilder {
	u.whereCol(col, v, false)
	return u
}

// WhereRaw appends a raw condition fragment, binding each "?" to the
// corresponding argument.
func (u *UpdateBuilder) WhereRaw(frag string, args ...any) *UpdateBuilder {
	u.whereRaw(frag, false, args...)
	return u
}

// OpenBracket opens a parenthesized WHERE block.
func (u *UpdateBuilder) OpenBracket() *UpdateBuilder {
	u.where.openBlock("AND")
	return u
}

// CloseBracket closes the innermost WHERE block.
func (u *UpdateBuilder) CloseBracket() *UpdateBuilder {
	u.addErr(u.where.closeBlock())
	return u
}

// Render emits the token-bearing SQL text.
func (u *UpdateBuilder) Render() (string, error) {
	if err := u.Err(); err != nil {
		return "", err
	}
	if len(u.tables) != 1 {
		return "", queryx.NewResolutionError("", "update requires exactly one table")
	}
	if len(u.sets) == 0 {
		return "", queryx.NewResolutionError(u.tables[0].Name, "update has no SET assignments")
	}
	var sb strings.Builder
	sb.WriteString("UPDATE " + u.tables[0].qualified(u.dialect))
	sb.WriteString(" SET " + strings.Join(u.sets, ", "))
	if !u.where.empty() {
		sb.WriteString(" WHERE " + u.where.finish())
	}
	return sb.String(), nil
}

// Fill renders the statement and binds its parameters.
func (u *UpdateBuilder) Fill() (string, []any, error) {
	q, err := u.Render()
	if err != nil {
		return "", nil, err
	}
	return u.fill(q)
}
