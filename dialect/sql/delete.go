package sql

import (
	"strings"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
	"github.com/syssam/queryx/expr"
)

// DeleteBuilder builds DELETE statements. The target table is never aliased.
type DeleteBuilder struct {
	Builder
}

// Delete returns a new DELETE builder for the given target table.
func Delete(d string, caps dialect.Capabilities, table string) *DeleteBuilder {
	del := &DeleteBuilder{}
	del.init(d, caps)
	del.addTable(table, false)
	return del
}

// Where captures a specification and appends it to the WHERE clause.
func (d *DeleteBuilder) Where(spec expr.Spec) *DeleteBuilder {
	d.whereSpec(spec, false)
	return d
}

// OrWhere appends a WHERE fragment joined by OR.
func (d *DeleteBuilder) OrWhere(spec expr.Spec) *DeleteBuilder {
	d.whereSpec(spec, true)
	return d
}

// WhereCol appends a plain "col = value" condition.
func (d *DeleteBuilder) WhereCol(col string, v any) *DeleteBuilder {
	d.whereCol(col, v, false)
	return d
}

// WhereRaw appends a raw condition fragment, binding each "?" to the
// corresponding argument.
func (d *DeleteBuilder) WhereRaw(frag string, args ...any) *DeleteBuilder {
	d.whereRaw(frag, false, args...)
	return d
}

// OpenBracket opens a parenthesized WHERE block.
func (d *DeleteBuilder) OpenBracket() *DeleteBuilder {
	d.where.openBlock("AND")
	return d
}

// CloseBracket closes the innermost WHERE block.
func (d *DeleteBuilder) CloseBracket() *DeleteBuilder {
	d.addErr(d.where.closeBlock())
	return d
}

// Render emits the token-bearing SQL text.
func (d *DeleteBuilder) Render() (string, error) {
	if err := d.Err(); err != nil {
		return "", err
	}
	if len(d.tables) != 1 {
		return "", queryx.NewResolutionError("", "delete requires exactly one table")
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM " + d.tables[0].qualified(d.dialect))
	if !d.where.empty() {
		sb.WriteString(" WHERE " + d.where.finish())
	}
	return sb.String(), nil
}

// Fill renders the statement and binds its parameters.
func (d *DeleteBuilder) Fill() (string, []any, error) {
	q, err := d.Render()
	if err != nil {
		return "", nil, err
	}
	return d.fill(q)
}
