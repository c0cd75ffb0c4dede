package sql

import (
	"strings"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
)

// InsertBuilder builds INSERT statements. An insert targets exactly one
// table and never aliases it.
type InsertBuilder struct {
	Builder
	columns   []string
	hints     []*Column
	rows      [][]string
	returning []string
}

// Insert returns a new INSERT builder for the given target table.
func Insert(d string, caps dialect.Capabilities, table string) *InsertBuilder {
	i := &InsertBuilder{}
	i.init(d, caps)
	i.addTable(table, false)
	return i
}

// Columns sets the column list. Schema hints are attached per column when
// the table snapshot is resolved.
func (i *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	for _, c := range cols {
		i.columns = append(i.columns, c)
		i.hints = append(i.hints, i.columnHint(c))
	}
	return i
}

// Values appends one row of values, parameterized in column order.
func (i *InsertBuilder) Values(vs ...any) *InsertBuilder {
	if len(i.columns) > 0 && len(vs) != len(i.columns) {
		i.addErr(queryx.NewResolutionError(i.tableName(), "value count does not match column count"))
		return i
	}
	row := make([]string, len(vs))
	for n, v := range vs {
		var hint *Column
		if n < len(i.hints) {
			hint = i.hints[n]
		}
		row[n] = i.param(v, hint)
	}
	i.rows = append(i.rows, row)
	return i
}

// Set appends a single column/value pair to the first row, as an
// alternative to Columns/Values.
func (i *InsertBuilder) Set(col string, v any) *InsertBuilder {
	if len(i.rows) == 0 {
		i.rows = append(i.rows, nil)
	}
	if len(i.rows) > 1 {
		i.addErr(queryx.NewResolutionError(col, "Set cannot be mixed with multi-row Values"))
		return i
	}
	i.columns = append(i.columns, col)
	i.hints = append(i.hints, i.columnHint(col))
	i.rows[0] = append(i.rows[0], i.param(v, i.columnHint(col)))
	return i
}

// Returning appends a RETURNING clause (Postgres only).
func (i *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	if i.dialect != dialect.Postgres {
		i.addErr(queryx.NewResolutionError("returning", "RETURNING is only supported on postgres"))
		return i
	}
	for _, c := range cols {
		i.returning = append(i.returning, i.Quote(c))
	}
	return i
}

func (i *InsertBuilder) tableName() string {
	if len(i.tables) == 0 {
		return ""
	}
	return i.tables[0].Name
}

// Render emits the token-bearing SQL text.
func (i *InsertBuilder) Render() (string, error) {
	if err := i.Err(); err != nil {
		return "", err
	}
	if len(i.tables) != 1 {
		return "", queryx.NewResolutionError(i.tableName(), "insert requires exactly one table")
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO " + i.tables[0].qualified(i.dialect))
	if len(i.rows) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		if len(i.columns) > 0 {
			quoted := make([]string, len(i.columns))
			for n, c := range i.columns {
				quoted[n] = i.Quote(c)
			}
			sb.WriteString(" (" + strings.Join(quoted, ", ") + ")")
		}
		sb.WriteString(" VALUES ")
		rows := make([]string, len(i.rows))
		for n, row := range i.rows {
			rows[n] = "(" + strings.Join(row, ", ") + ")"
		}
		sb.WriteString(strings.Join(rows, ", "))
	}
	if len(i.returning) > 0 {
		sb.WriteString(" RETURNING " + strings.Join(i.returning, ", "))
	}
	return sb.String(), nil
}

// Fill renders the statement and binds its parameters.
func (i *InsertBuilder) Fill() (string, []any, error) {
	q, err := i.Render()
	if err != nil {
		return "", nil, err
	}
	return i.fill(q)
}
