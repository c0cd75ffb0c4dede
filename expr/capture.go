package expr

import (
	"errors"
	"fmt"

	"github.com/syssam/queryx"
)

// Session is the arena that owns every node created during one capture
// call. Nodes reference each other only within their session; releasing
// the session releases the whole tree in one step.
type Session struct {
	nodes    []*Node
	last     *Node
	names    []string
	released bool
}

// newNode appends a node to the arena and tracks it as the session's
// terminal expression.
func (s *Session) newNode(kind Kind, host *Node, name string, op Op, args []any, val any) *Node {
	n := &Node{kind: kind, sess: s, host: host, name: name, op: op, args: args, val: val}
	s.nodes = append(s.nodes, n)
	if kind != KindPlaceholder {
		s.last = n
	}
	return n
}

// Last returns the terminal node produced during the session. It is tracked
// separately from the callback's return value, which may be an earlier or
// unrelated node.
func (s *Session) Last() *Node { return s.last }

// Len returns the number of nodes owned by the arena.
func (s *Session) Len() int { return len(s.nodes) }

// Placeholders returns the declared placeholder names.
func (s *Session) Placeholders() []string { return s.names }

// Release drops the arena. Nodes obtained from this session must not be
// used afterwards.
func (s *Session) Release() {
	s.nodes = nil
	s.last = nil
	s.released = true
}

// Value is the symbolic stand-in handed to a capture callback. Every method
// appends one node to the session and returns a new Value wrapping it, so
// the callback's final return value is the last node produced (or a plain
// literal it chose to return instead).
type Value struct {
	node *Node
	sess *Session
}

// Node returns the node this value wraps.
func (v *Value) Node() *Node { return v.node }

// operand unwraps *Value arguments so nodes from the same session link
// directly; anything else stays a plain literal.
func (v *Value) operand(x any) any {
	if ov, ok := x.(*Value); ok {
		return ov.node
	}
	return x
}

func (v *Value) operands(xs []any) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = v.operand(x)
	}
	return out
}

func (v *Value) wrap(n *Node) *Value {
	return &Value{node: n, sess: v.sess}
}

// Member records a member access and returns the new symbolic value.
func (v *Value) Member(name string) *Value {
	return v.wrap(v.sess.newNode(KindMember, v.node, name, OpNone, nil, nil))
}

// Set records a member assignment (rendered as "name = (value)").
func (v *Value) Set(name string, value any) *Value {
	return v.wrap(v.sess.newNode(KindSetMember, v.node, name, OpNone, []any{v.operand(value)}, nil))
}

// Index records an indexed access.
func (v *Value) Index(indexes ...any) *Value {
	return v.wrap(v.sess.newNode(KindIndex, v.node, "", OpNone, v.operands(indexes), nil))
}

// SetIndex records an indexed assignment. The value is the last argument.
func (v *Value) SetIndex(value any, indexes ...any) *Value {
	args := append(v.operands(indexes), v.operand(value))
	return v.wrap(v.sess.newNode(KindSetIndex, v.node, "", OpNone, args, nil))
}

// Invoke records a generic invocation. String arguments pass through as raw
// SQL fragments; it is the escape hatch for literal owner and table names.
func (v *Value) Invoke(args ...any) *Value {
	return v.wrap(v.sess.newNode(KindInvoke, v.node, "", OpNone, v.operands(args), nil))
}

// Method records a named method call on the current value.
func (v *Value) Method(name string, args ...any) *Value {
	return v.wrap(v.sess.newNode(KindMethod, v.node, name, OpNone, v.operands(args), nil))
}

// Literal wraps a plain value as a standalone literal node. Use it where a
// raw value needs a tree position of its own, e.g. a bound string argument
// to Invoke, which treats plain strings as raw fragments.
func (v *Value) Literal(x any) *Value {
	return v.wrap(Literal(v.sess, x))
}

// Convert records a type-conversion marker. Rendering passes through to the
// converted expression; dialect-specific casts are an extension point.
func (v *Value) Convert(target any) *Value {
	return v.wrap(v.sess.newNode(KindConvert, v.node, "", OpNone, nil, target))
}

func (v *Value) binary(op Op, right any) *Value {
	return v.wrap(v.sess.newNode(KindBinary, v.node, "", op, []any{v.operand(right)}, nil))
}

// Eq records an equality comparison. A nil right side renders as IS NULL
// outside virtual mode.
func (v *Value) Eq(right any) *Value { return v.binary(OpEQ, right) }

// Neq records an inequality comparison. A nil right side renders as
// IS NOT NULL outside virtual mode.
func (v *Value) Neq(right any) *Value { return v.binary(OpNEQ, right) }

// Gt records a greater-than comparison.
func (v *Value) Gt(right any) *Value { return v.binary(OpGT, right) }

// Gte records a greater-or-equal comparison.
func (v *Value) Gte(right any) *Value { return v.binary(OpGTE, right) }

// Lt records a less-than comparison.
func (v *Value) Lt(right any) *Value { return v.binary(OpLT, right) }

// Lte records a less-or-equal comparison.
func (v *Value) Lte(right any) *Value { return v.binary(OpLTE, right) }

// Add records an addition.
func (v *Value) Add(right any) *Value { return v.binary(OpAdd, right) }

// Sub records a subtraction.
func (v *Value) Sub(right any) *Value { return v.binary(OpSub, right) }

// Mul records a multiplication.
func (v *Value) Mul(right any) *Value { return v.binary(OpMul, right) }

// Div records a division.
func (v *Value) Div(right any) *Value { return v.binary(OpDiv, right) }

// Mod records a modulo.
func (v *Value) Mod(right any) *Value { return v.binary(OpMod, right) }

// Pow records an exponentiation.
func (v *Value) Pow(right any) *Value { return v.binary(OpPow, right) }

// And records a logical conjunction.
func (v *Value) And(right any) *Value { return v.binary(OpAnd, right) }

// Or records a logical disjunction.
func (v *Value) Or(right any) *Value { return v.binary(OpOr, right) }

// Not records a logical negation, rendered "(NOT x)".
func (v *Value) Not() *Value {
	return v.wrap(v.sess.newNode(KindUnary, v.node, "", OpNot, nil, nil))
}

// Neg records an arithmetic negation, rendered "!(x)" for dialect
// compatibility (kept distinct from logical NOT).
func (v *Value) Neg() *Value {
	return v.wrap(v.sess.newNode(KindUnary, v.node, "", OpNeg, nil, nil))
}

// Reserved method vocabulary recognized by the dispatcher when the host is
// a column position.
const (
	MethodNot     = "NOT"
	MethodBetween = "BETWEEN"
	MethodIn      = "IN"
	MethodNotIn   = "NOTIN"
	MethodLike    = "LIKE"
	MethodNotLike = "NOTLIKE"
	MethodAs      = "AS"
	MethodCount   = "COUNT"
	MethodCount0  = "COUNT0"
)

// Between records "col BETWEEN lo AND hi".
func (v *Value) Between(lo, hi any) *Value { return v.Method(MethodBetween, lo, hi) }

// In records "col IN(v1, v2, ...)"; slice and array arguments are flattened.
func (v *Value) In(vs ...any) *Value { return v.Method(MethodIn, vs...) }

// NotIn records "col NOT IN(v1, v2, ...)".
func (v *Value) NotIn(vs ...any) *Value { return v.Method(MethodNotIn, vs...) }

// Like records "col LIKE x".
func (v *Value) Like(pattern any) *Value { return v.Method(MethodLike, pattern) }

// NotLike records "col NOT LIKE x".
func (v *Value) NotLike(pattern any) *Value { return v.Method(MethodNotLike, pattern) }

// As records "expr AS alias". The alias is never parameterized and must be
// non-empty.
func (v *Value) As(alias string) *Value { return v.Method(MethodAs, alias) }

// Count records "COUNT(*)" with no arguments or "COUNT(x)" with one.
func (v *Value) Count(args ...any) *Value { return v.Method(MethodCount, args...) }

// Count0 records "COUNT(0)".
func (v *Value) Count0() *Value { return v.Method(MethodCount0) }

// Spec is a capture specification: a callback receiving one placeholder
// value and returning either a symbolic value, a node, or a plain literal.
type Spec func(q *Value) any

// Result is the outcome of one capture session.
type Result struct {
	// Out is what the callback returned: *Value, *Node or a plain literal.
	Out any
	// Last is the terminal node produced during the session, tracked
	// separately from Out.
	Last *Node
	// Names are the declared placeholder names.
	Names []string

	sess *Session
}

// Node resolves Out to a node when it is one.
func (r *Result) Node() (*Node, bool) {
	switch out := r.Out.(type) {
	case *Value:
		return out.node, true
	case *Node:
		return out, true
	default:
		return nil, false
	}
}

// Literal reports whether the callback returned a pristine literal rather
// than a captured expression, and yields it.
func (r *Result) Literal() (any, bool) {
	if _, ok := r.Node(); ok {
		return nil, false
	}
	return r.Out, true
}

// Session exposes the owning arena, e.g. for bulk release.
func (r *Result) Session() *Session { return r.sess }

// Release drops the session arena backing this result.
func (r *Result) Release() { r.sess.Release() }

// Capture runs one specification against a single placeholder named "q".
func Capture(spec Spec) (*Result, error) {
	return CaptureNamed([]string{"q"}, func(qs []*Value) any { return spec(qs[0]) })
}

// CaptureNamed runs a callback against one placeholder per declared name.
// Declaring zero placeholders is a configuration error and fails fast.
func CaptureNamed(names []string, fn func(qs []*Value) any) (*Result, error) {
	if len(names) == 0 {
		return nil, queryx.NewCaptureError("no capturable placeholders declared")
	}
	for i, name := range names {
		if name == "" {
			return nil, queryx.NewCaptureError(fmt.Sprintf("placeholder %d has no name", i))
		}
	}
	sess := &Session{names: names}
	qs := make([]*Value, len(names))
	for i, name := range names {
		qs[i] = &Value{
			node: sess.newNode(KindPlaceholder, nil, name, OpNone, nil, nil),
			sess: sess,
		}
	}
	out := fn(qs)
	if out == nil && sess.last == nil {
		return nil, queryx.NewCaptureError("resolves to nothing")
	}
	return &Result{Out: out, Last: sess.last, Names: names, sess: sess}, nil
}

// CaptureN runs a callback against n placeholders with generated names
// q0, q1, and so on.
func CaptureN(n int, fn func(qs []*Value) any) (*Result, error) {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("q%d", i)
	}
	return CaptureNamed(names, fn)
}

// CaptureAll runs several specifications, each in its own session. A
// specification that fails reports its failure with its 0-based index.
func CaptureAll(specs ...Spec) ([]*Result, error) {
	results := make([]*Result, 0, len(specs))
	for i, spec := range specs {
		r, err := Capture(spec)
		if err != nil {
			for _, done := range results {
				done.Release()
			}
			reason := err.Error()
			var ce *queryx.CaptureError
			if errors.As(err, &ce) {
				reason = ce.Reason
			}
			return nil, queryx.NewCaptureErrorAt(i, reason)
		}
		results = append(results, r)
	}
	return results, nil
}

// Literal wraps a plain value as a literal node inside the given session,
// giving it a tree position of its own. Rendering binds it as a parameter.
func Literal(sess *Session, v any) *Node {
	return sess.newNode(KindLiteral, nil, "", OpNone, nil, v)
}
