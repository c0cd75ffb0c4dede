package sql

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
	"github.com/syssam/queryx/expr"
)

// paramTokenRe matches the parameter tokens left in rendered SQL text,
// resolved to positional markers at fill time.
var paramTokenRe = regexp.MustCompile(`\[\$([A-Za-z0-9_]+)\]`)

// wellKnownRe matches the reserved well-known parameter literal pattern.
// In virtual mode a string literal of this shape becomes a named placeholder
// resolved at fill time instead of a fresh value.
var wellKnownRe = regexp.MustCompile(`^@@([A-Za-z_][A-Za-z0-9_]*)$`)

// Parameter is one value captured during dispatch and bound at fill time.
type Parameter struct {
	// Name is the temporary token name (uuid-derived) or the well-known name.
	Name string
	// Ordinal is assigned at fill time, in token order, starting at 1.
	Ordinal int
	// Value is the captured value. Virtual parameters may stay unbound
	// until the batch layer supplies a value.
	Value any
	// Virtual marks a well-known parameter of a compiled command.
	Virtual bool
	// Column is the schema hint attached during dispatch, if any.
	Column *Column
}

// dump renders the parameter for a command dump.
func (p *Parameter) dump() queryx.ParamDump {
	d := queryx.ParamDump{Name: p.Name, Value: p.Value}
	if p.Column != nil {
		d.Type = p.Column.Type.String()
		d.Size = p.Column.Size
		d.Precision = p.Column.Precision
		d.Scale = p.Column.Scale
	}
	return d
}

// TableInfo describes one table referenced by a builder: owner (schema),
// name, alias and the resolved column snapshot. Immutable after creation.
type TableInfo struct {
	Owner   string
	Name    string
	Alias   string
	Columns *ColumnMap

	// subSQL holds the rendered text of an aliased sub-select acting as a
	// table source.
	subSQL string
}

// parseTableExpr parses "owner.name alias", "name AS alias" and plain
// "name" forms.
func parseTableExpr(s string) *TableInfo {
	t := &TableInfo{}
	fields := strings.Fields(strings.TrimSpace(s))
	switch {
	case len(fields) >= 3 && strings.EqualFold(fields[1], "as"):
		t.Alias = fields[2]
	case len(fields) == 2:
		t.Alias = fields[1]
	}
	if len(fields) > 0 {
		name := fields[0]
		if i := strings.LastIndex(name, "."); i >= 0 {
			t.Owner, name = name[:i], name[i+1:]
		}
		t.Name = name
	}
	return t
}

// qualified renders the owner-qualified, quoted table reference with its
// alias, if any.
func (t *TableInfo) qualified(d string) string {
	if t.subSQL != "" {
		return "(" + t.subSQL + ") " + t.Alias
	}
	s := quoteIdent(d, t.Name)
	if t.Owner != "" {
		s = quoteIdent(d, t.Owner) + "." + s
	}
	if t.Alias != "" {
		s += " " + t.Alias
	}
	return s
}

// condAcc accumulates bracket-balanced WHERE/HAVING condition text.
// The open-bracket count never goes below zero and any still-open brackets
// are force-closed when the statement is filled.
type condAcc struct {
	buf   strings.Builder
	open  int
	fresh bool // next fragment needs no joiner (start of text or block)
}

func (c *condAcc) add(frag, joiner string) {
	if c.buf.Len() > 0 && !c.fresh {
		c.buf.WriteString(" " + joiner + " ")
	}
	c.fresh = false
	c.buf.WriteString("(" + frag + ")")
}

func (c *condAcc) openBlock(joiner string) {
	if c.buf.Len() > 0 && !c.fresh {
		c.buf.WriteString(" " + joiner + " ")
	}
	c.buf.WriteString("(")
	c.open++
	c.fresh = true
}

func (c *condAcc) closeBlock() error {
	if c.open == 0 {
		return queryx.NewResolutionError("", "closing a condition block with none open")
	}
	c.buf.WriteString(")")
	c.open--
	c.fresh = false
	return nil
}

// finish force-closes any open brackets and returns the accumulated text.
func (c *condAcc) finish() string {
	for c.open > 0 {
		c.buf.WriteString(")")
		c.open--
	}
	return c.buf.String()
}

func (c *condAcc) empty() bool { return c.buf.Len() == 0 }

// paramRegistry is the ordered parameter store. Sub-builders share their
// parent's registry so one fill pass binds the whole statement.
type paramRegistry struct {
	params map[string]*Parameter
	order  []string
}

func newParamRegistry() *paramRegistry {
	return &paramRegistry{params: make(map[string]*Parameter)}
}

func (r *paramRegistry) add(p *Parameter) {
	r.params[p.Name] = p
	r.order = append(r.order, p.Name)
}

func (r *paramRegistry) get(name string) (*Parameter, bool) {
	p, ok := r.params[name]
	return p, ok
}

// Builder is the shared base of the four statement builders. It holds the
// table list, the parameter registry, the virtual-mode flag and the
// bracket-balanced WHERE/HAVING accumulators. Builders are not safe for
// concurrent use; only the pool and the schema cache are shared state.
type Builder struct {
	dialect  string
	caps     dialect.Capabilities
	parent   *Builder
	resolver *Resolver
	tables   []*TableInfo
	reg      *paramRegistry
	virtual  bool
	where    condAcc
	having   condAcc
	errs     []error
	onTemp   func(*Parameter)
	onParam  func(*Parameter)
}

func (b *Builder) init(d string, caps dialect.Capabilities) {
	b.dialect = d
	b.caps = caps
	b.reg = newParamRegistry()
}

// initChild wires a sub-builder: it inherits dialect, capability set,
// virtual mode and resolver, shares the parameter registry, and sees the
// parent's tables read-only through the ancestor chain.
func (b *Builder) initChild(parent *Builder) {
	b.dialect = parent.dialect
	b.caps = parent.caps
	b.virtual = parent.virtual
	b.resolver = parent.resolver
	b.reg = parent.reg
	b.parent = parent
}

// Dialect returns the builder's dialect name.
func (b *Builder) Dialect() string { return b.dialect }

// SetVirtual flips the builder into virtual mode: literals matching the
// well-known token pattern become named placeholders, and NULL comparisons
// render "=" / "<>" instead of IS / IS NOT so compiled commands stay
// rebindable across batches.
func (b *Builder) SetVirtual(v bool) { b.virtual = v }

// Virtual reports the virtual-mode flag.
func (b *Builder) Virtual() bool { return b.virtual }

// OnTempParameter registers the hook fired when a literal is captured into
// a temporary parameter.
func (b *Builder) OnTempParameter(f func(*Parameter)) { b.onTemp = f }

// OnParameter registers the hook fired when a parameter is finally bound to
// a positional marker at fill time.
func (b *Builder) OnParameter(f func(*Parameter)) { b.onParam = f }

// Tables returns the registered table list.
func (b *Builder) Tables() []*TableInfo { return b.tables }

// Parameters returns the registered parameters in registration order.
func (b *Builder) Parameters() []*Parameter {
	ps := make([]*Parameter, len(b.reg.order))
	for i, name := range b.reg.order {
		ps[i] = b.reg.params[name]
	}
	return ps
}

// OpenBracketCount returns the WHERE accumulator's open-bracket count.
// It is never negative and is exactly zero after Fill.
func (b *Builder) OpenBracketCount() int { return b.where.open }

// Err returns the deferred build errors, if any. A builder with a pending
// error refuses to render.
func (b *Builder) Err() error { return errors.Join(b.errs...) }

func (b *Builder) addErr(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// Quote decorates an identifier for the builder's dialect.
func (b *Builder) Quote(ident string) string { return quoteIdent(b.dialect, ident) }

// quoteIdent decorates an identifier per dialect.
func quoteIdent(d, ident string) string {
	switch d {
	case dialect.MySQL:
		return "`" + ident + "`"
	case dialect.SQLServer:
		return "[" + ident + "]"
	default:
		return `"` + ident + `"`
	}
}

// marker renders the dialect's positional parameter marker.
func (b *Builder) marker(ordinal int) string {
	if b.dialect == dialect.Postgres {
		return fmt.Sprintf("$%d", ordinal)
	}
	return "?"
}

// addTable parses and registers a table expression. Modification builders
// pass allowAlias=false: aliasing the target of an INSERT/UPDATE/DELETE is
// rejected outright.
func (b *Builder) addTable(s string, allowAlias bool) *TableInfo {
	t := parseTableExpr(s)
	if t.Name == "" {
		b.addErr(queryx.NewResolutionError(s, "missing table name"))
		return t
	}
	if !allowAlias && t.Alias != "" {
		b.addErr(queryx.NewResolutionError(t.Name, "modification statements cannot alias their target table"))
		return t
	}
	b.tables = append(b.tables, t)
	return t
}

// aliasTable resolves a name as a table alias, walking the ancestor builder
// chain so sub-queries see their parents' aliases.
func (b *Builder) aliasTable(name string) *TableInfo {
	for p := b; p != nil; p = p.parent {
		for _, t := range p.tables {
			if t.Alias != "" && t.Alias == name {
				return t
			}
		}
	}
	return nil
}

// namedTable resolves a name (and optional owner) as a table by
// case-insensitive match, walking the same ancestor chain.
func (b *Builder) namedTable(name, owner string) *TableInfo {
	for p := b; p != nil; p = p.parent {
		for _, t := range p.tables {
			if strings.EqualFold(t.Name, name) && (owner == "" || strings.EqualFold(t.Owner, owner)) {
				return t
			}
		}
	}
	return nil
}

// ResolveTables populates the ColumnMap snapshot of every registered table
// through the schema resolver, when one is attached.
func (b *Builder) ResolveTables(ctx context.Context) error {
	if b.resolver == nil {
		return nil
	}
	for _, t := range b.tables {
		if t.Columns != nil || t.Name == "" {
			continue
		}
		m, err := b.resolver.Schema(ctx, t.Name, t.Owner)
		if err != nil {
			return err
		}
		t.Columns = m
	}
	return nil
}

// tempName returns a fresh temporary parameter name.
func tempName() string {
	return "p" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// param registers a captured literal and returns its token. In virtual mode
// a string literal matching the well-known pattern is registered once as a
// named placeholder instead of a fresh value.
func (b *Builder) param(v any, col *Column) string {
	if b.virtual {
		if s, ok := v.(string); ok {
			if m := wellKnownRe.FindStringSubmatch(s); m != nil {
				name := m[1]
				if p, ok := b.reg.get(name); ok {
					if col != nil && p.Column == nil {
						p.Column = col
					}
					return "[$" + name + "]"
				}
				p := &Parameter{Name: name, Virtual: true, Column: col}
				b.reg.add(p)
				if b.onTemp != nil {
					b.onTemp(p)
				}
				return "[$" + name + "]"
			}
		}
	}
	p := &Parameter{Name: tempName(), Value: v, Column: col}
	b.reg.add(p)
	if b.onTemp != nil {
		b.onTemp(p)
	}
	return "[$" + p.Name + "]"
}

// BindWellKnown supplies the value of a well-known parameter before fill.
func (b *Builder) BindWellKnown(name string, v any) error {
	p, ok := b.reg.get(name)
	if !ok || !p.Virtual {
		return queryx.NewResolutionError(name, "no well-known parameter with that name")
	}
	p.Value = v
	return nil
}

// whereSpec captures a specification and appends it to the WHERE accumulator.
func (b *Builder) whereSpec(spec expr.Spec, or bool) {
	frag, err := b.dispatchSpec(spec)
	if err != nil {
		b.addErr(err)
		return
	}
	b.where.add(frag, joiner(or))
}

// havingSpec captures a specification and appends it to the HAVING accumulator.
func (b *Builder) havingSpec(spec expr.Spec, or bool) {
	frag, err := b.dispatchSpec(spec)
	if err != nil {
		b.addErr(err)
		return
	}
	b.having.add(frag, joiner(or))
}

// whereCol appends a plain "col = value" condition.
func (b *Builder) whereCol(col string, v any, or bool) {
	b.where.add(b.Quote(col)+" = "+b.param(v, b.columnHint(col)), joiner(or))
}

// whereRaw appends a raw fragment, replacing each "?" with a parameter
// token bound to the corresponding argument, in order.
func (b *Builder) whereRaw(frag string, or bool, args ...any) {
	b.where.add(b.bindRaw(frag, args...), joiner(or))
}

// bindRaw replaces each "?" in the fragment with a registered parameter token.
func (b *Builder) bindRaw(frag string, args ...any) string {
	var sb strings.Builder
	n := 0
	for _, r := range frag {
		if r == '?' && n < len(args) {
			sb.WriteString(b.param(args[n], nil))
			n++
			continue
		}
		sb.WriteRune(r)
	}
	if n < len(args) {
		b.addErr(queryx.NewResolutionError("", fmt.Sprintf("raw fragment has %d markers for %d arguments", n, len(args))))
	}
	return sb.String()
}

func joiner(or bool) string {
	if or {
		return "OR"
	}
	return "AND"
}

// columnHint looks up the schema hint for a bare column name against the
// builder's first table.
func (b *Builder) columnHint(col string) *Column {
	if len(b.tables) == 0 {
		return nil
	}
	return b.tables[0].Columns.Get(col)
}

// dispatchSpec runs a capture session and dispatches its result.
func (b *Builder) dispatchSpec(spec expr.Spec) (string, error) {
	r, err := expr.Capture(spec)
	if err != nil {
		return "", err
	}
	defer r.Release()
	if n, ok := r.Node(); ok {
		return b.dispatch(n, nil)
	}
	if lit, ok := r.Literal(); ok {
		if lit == nil {
			// The callback returned nothing; fall back to the terminal
			// expression recorded by the session.
			return b.dispatch(r.Last, nil)
		}
		if s, ok := lit.(string); ok {
			// A pristine string literal is a raw condition fragment.
			return s, nil
		}
		return b.dispatch(lit, nil)
	}
	return "", queryx.NewCaptureError("resolves to nothing")
}

// dispatchProjectionSpec is dispatchSpec for projection positions. Captured
// expressions dispatch normally and pristine strings stay raw fragments,
// but other pristine literals render textually: a parameter marker cannot
// occupy a projection position on every engine.
func (b *Builder) dispatchProjectionSpec(spec expr.Spec) (string, error) {
	r, err := expr.Capture(spec)
	if err != nil {
		return "", err
	}
	defer r.Release()
	if n, ok := r.Node(); ok {
		return b.dispatch(n, nil)
	}
	if lit, ok := r.Literal(); ok && lit != nil {
		if s, ok := lit.(string); ok {
			return s, nil
		}
		return literalText(lit), nil
	}
	return b.dispatch(r.Last, nil)
}

// fill resolves the parameter tokens left in rendered SQL text into
// positional markers, assigning ordinals in token order, attaching schema
// hints and firing the OnParameter hook. A token with no registered
// parameter is a resolution error.
func (b *Builder) fill(rendered string) (string, []any, error) {
	matches := paramTokenRe.FindAllStringSubmatchIndex(rendered, -1)
	var (
		out  strings.Builder
		args = make([]any, 0, len(matches))
		last int
	)
	ordinal := 0
	for _, m := range matches {
		out.WriteString(rendered[last:m[0]])
		name := rendered[m[2]:m[3]]
		p, ok := b.reg.get(name)
		if !ok {
			return "", nil, queryx.NewResolutionError(name, "no parameter registered for token")
		}
		ordinal++
		p.Ordinal = ordinal
		if b.onParam != nil {
			b.onParam(p)
		}
		out.WriteString(b.marker(ordinal))
		args = append(args, p.Value)
		last = m[1]
	}
	out.WriteString(rendered[last:])
	return out.String(), args, nil
}

// Dump builds a reproducible command dump for the given rendered SQL.
func (b *Builder) Dump(query string) queryx.CommandDump {
	d := queryx.CommandDump{SQL: query}
	for _, p := range b.Parameters() {
		d.Params = append(d.Params, p.dump())
	}
	return d
}

// literalText renders a literal's textual form directly, used in contexts
// where parameterization is invalid (e.g. aliases).
func literalText(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + escapeStringValue(t) + "'"
	default:
		return fmt.Sprint(t)
	}
}
