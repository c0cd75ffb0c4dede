package sql

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/expr"
)

// dispatch renders a captured node (or a plain literal) into an SQL
// fragment, registering parameters as it walks. hint carries the column
// schema the value is compared against, when known.
func (b *Builder) dispatch(v any, hint *Column) (string, error) {
	switch t := v.(type) {
	case *expr.Node:
		return b.dispatchNode(t, hint)
	case *expr.Value:
		return b.dispatchNode(t.Node(), hint)
	default:
		return b.param(v, hint), nil
	}
}

func (b *Builder) dispatchNode(n *expr.Node, hint *Column) (string, error) {
	if n == nil {
		return b.param(nil, hint), nil
	}
	switch n.Kind() {
	case expr.KindPlaceholder:
		// A placeholder name is meaningful only when it denotes a known
		// table alias or table owner; otherwise it renders empty.
		if t := b.aliasTable(n.Name()); t != nil {
			return n.Name(), nil
		}
		if t := b.namedTable(n.Name(), ""); t != nil {
			return b.Quote(t.Name), nil
		}
		return "", nil

	case expr.KindMember:
		return b.member(n)

	case expr.KindSetMember:
		left, err := b.member(n)
		if err != nil {
			return "", err
		}
		right, err := b.dispatch(n.Args()[0], b.columnOf(n))
		if err != nil {
			return "", err
		}
		return left + " = (" + right + ")", nil

	case expr.KindIndex, expr.KindSetIndex:
		// Index-style access is reserved; rendering passes through to
		// the host expression.
		return b.dispatchNode(n.Host(), hint)

	case expr.KindInvoke:
		// Escape hatch: string arguments concatenate raw, everything
		// else dispatches recursively.
		var sb strings.Builder
		for _, arg := range n.Args() {
			if s, ok := arg.(string); ok {
				sb.WriteString(s)
				continue
			}
			frag, err := b.dispatch(arg, hint)
			if err != nil {
				return "", err
			}
			sb.WriteString(frag)
		}
		return sb.String(), nil

	case expr.KindMethod:
		return b.method(n)

	case expr.KindBinary:
		return b.binary(n)

	case expr.KindUnary:
		x, err := b.dispatchNode(n.Host(), hint)
		if err != nil {
			return "", err
		}
		if n.Op() == expr.OpNeg {
			return "!(" + x + ")", nil
		}
		return "(NOT " + x + ")", nil

	case expr.KindConvert:
		// Dialect-specific cast rendering is an extension point; the
		// generic dispatcher passes through to the target expression.
		return b.dispatchNode(n.Host(), hint)

	case expr.KindLiteral:
		return b.param(n.Value(), hint), nil

	default:
		return "", queryx.NewResolutionError(n.Kind().String(), "unsupported node kind")
	}
}

// member renders a Member/SetMember column reference: "alias.column" when
// the immediate parent denotes a table or alias, else the decorated bare
// name.
func (b *Builder) member(n *expr.Node) (string, error) {
	if prefix, _ := b.tablePrefix(n.Host()); prefix != "" {
		return prefix + "." + b.Quote(n.Name()), nil
	}
	return b.Quote(n.Name()), nil
}

// tablePrefix resolves whether a node denotes a table position, returning
// the rendered prefix (alias left bare, table name quoted) and the table.
func (b *Builder) tablePrefix(host *expr.Node) (string, *TableInfo) {
	if host == nil {
		return "", nil
	}
	switch host.Kind() {
	case expr.KindPlaceholder, expr.KindMember:
		name := host.Name()
		if t := b.aliasTable(name); t != nil {
			return name, t
		}
		owner := ""
		if hh := host.Host(); hh != nil && hh.Kind() == expr.KindMember {
			owner = hh.Name()
		}
		if t := b.namedTable(name, owner); t != nil {
			prefix := b.Quote(t.Name)
			if owner != "" {
				prefix = b.Quote(t.Owner) + "." + prefix
			}
			return prefix, t
		}
	case expr.KindInvoke:
		// Raw-fragment hosts act as literal owner/table names.
		if s, err := b.dispatchNode(host, nil); err == nil && s != "" {
			return s, nil
		}
	}
	return "", nil
}

// columnOf resolves the schema hint for a column-position node.
func (b *Builder) columnOf(v any) *Column {
	n, ok := v.(*expr.Node)
	if !ok || n == nil {
		return nil
	}
	switch n.Kind() {
	case expr.KindMember, expr.KindSetMember:
		if _, t := b.tablePrefix(n.Host()); t != nil {
			return t.Columns.Get(n.Name())
		}
		return b.columnHint(n.Name())
	case expr.KindIndex, expr.KindSetIndex, expr.KindConvert, expr.KindUnary:
		return b.columnOf(n.Host())
	default:
		return nil
	}
}

// method renders the fixed virtual-method vocabulary and generic function
// calls.
func (b *Builder) method(n *expr.Node) (string, error) {
	name := strings.ToUpper(n.Name())
	args := n.Args()

	// Root-level logical negation: NOT(x).
	if name == expr.MethodNot {
		if len(args) != 1 {
			return "", queryx.NewResolutionError(name, "expects exactly one argument")
		}
		x, err := b.dispatch(args[0], nil)
		if err != nil {
			return "", err
		}
		return "(NOT " + x + ")", nil
	}

	hostStr, err := b.dispatchNode(n.Host(), nil)
	if err != nil {
		return "", err
	}
	hint := b.columnOf(n.Host())

	switch name {
	case expr.MethodBetween:
		if len(args) != 2 {
			return "", queryx.NewResolutionError(name, "expects exactly two arguments")
		}
		lo, err := b.dispatch(args[0], hint)
		if err != nil {
			return "", err
		}
		hi, err := b.dispatch(args[1], hint)
		if err != nil {
			return "", err
		}
		return hostStr + " BETWEEN " + lo + " AND " + hi, nil

	case expr.MethodIn, expr.MethodNotIn:
		vals, err := b.flatten(args, hint)
		if err != nil {
			return "", err
		}
		if len(vals) == 0 {
			return "", queryx.NewResolutionError(name, "expects at least one value")
		}
		kw := " IN("
		if name == expr.MethodNotIn {
			kw = " NOT IN("
		}
		return hostStr + kw + strings.Join(vals, ", ") + ")", nil

	case expr.MethodLike, expr.MethodNotLike:
		if len(args) != 1 {
			return "", queryx.NewResolutionError(name, "expects exactly one argument")
		}
		pattern, err := b.dispatch(args[0], hint)
		if err != nil {
			return "", err
		}
		kw := " LIKE "
		if name == expr.MethodNotLike {
			kw = " NOT LIKE "
		}
		return hostStr + kw + pattern, nil

	case expr.MethodAs:
		// The alias is never parameterized and must be non-empty.
		if len(args) != 1 {
			return "", queryx.NewResolutionError(name, "expects exactly one argument")
		}
		alias, _ := args[0].(string)
		if alias == "" {
			return "", queryx.NewResolutionError(name, "alias must be a non-empty string")
		}
		return hostStr + " AS " + b.Quote(alias), nil

	case expr.MethodCount:
		switch len(args) {
		case 0:
			return "COUNT(*)", nil
		case 1:
			x, err := b.dispatch(args[0], hint)
			if err != nil {
				return "", err
			}
			return "COUNT(" + x + ")", nil
		default:
			return "", queryx.NewResolutionError(name, "expects at most one argument")
		}

	case expr.MethodCount0:
		return "COUNT(0)", nil

	default:
		// Generic function call: name(args...) with each argument
		// recursively dispatched and parameterized.
		rendered := make([]string, 0, len(args))
		for _, arg := range args {
			x, err := b.dispatch(arg, hint)
			if err != nil {
				return "", err
			}
			rendered = append(rendered, x)
		}
		return fmt.Sprintf("%s(%s)", n.Name(), strings.Join(rendered, ", ")), nil
	}
}

// flatten expands enumerable/array arguments of IN/NOTIN into a flat list
// of rendered values.
func (b *Builder) flatten(args []any, hint *Column) ([]string, error) {
	var out []string
	for _, arg := range args {
		if _, ok := arg.(*expr.Node); !ok {
			rv := reflect.ValueOf(arg)
			if arg != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
				for i := 0; i < rv.Len(); i++ {
					frag, err := b.dispatch(rv.Index(i).Interface(), hint)
					if err != nil {
						return nil, err
					}
					out = append(out, frag)
				}
				continue
			}
		}
		frag, err := b.dispatch(arg, hint)
		if err != nil {
			return nil, err
		}
		out = append(out, frag)
	}
	return out, nil
}

// binary renders operator applications. Equality against a null literal
// renders IS / IS NOT outside virtual mode; virtual-mode builders keep
// "=" / "<>" so compiled commands stay rebindable.
func (b *Builder) binary(n *expr.Node) (string, error) {
	left, err := b.dispatchNode(n.Host(), nil)
	if err != nil {
		return "", err
	}
	hint := b.columnOf(n.Host())
	right := n.Args()[0]
	op := n.Op()

	if (op == expr.OpEQ || op == expr.OpNEQ) && !b.virtual && isNullOperand(right) {
		if op == expr.OpEQ {
			return left + " IS NULL", nil
		}
		return left + " IS NOT NULL", nil
	}

	rightStr, err := b.dispatch(right, hint)
	if err != nil {
		return "", err
	}
	if op == expr.OpAnd || op == expr.OpOr {
		return "(" + left + " " + op.String() + " " + rightStr + ")", nil
	}
	return left + " " + op.String() + " " + rightStr, nil
}

func isNullOperand(v any) bool {
	if v == nil {
		return true
	}
	if n, ok := v.(*expr.Node); ok {
		return n.IsNullLiteral()
	}
	return false
}
