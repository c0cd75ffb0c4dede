package expr

// Kind discriminates the variants of a Node.
type Kind uint8

// Node variants.
const (
	KindInvalid Kind = iota
	KindPlaceholder
	KindMember
	KindSetMember
	KindIndex
	KindSetIndex
	KindInvoke
	KindMethod
	KindBinary
	KindUnary
	KindConvert
	KindLiteral
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindPlaceholder:
		return "Placeholder"
	case KindMember:
		return "Member"
	case KindSetMember:
		return "SetMember"
	case KindIndex:
		return "Index"
	case KindSetIndex:
		return "SetIndex"
	case KindInvoke:
		return "Invoke"
	case KindMethod:
		return "Method"
	case KindBinary:
		return "Binary"
	case KindUnary:
		return "Unary"
	case KindConvert:
		return "Convert"
	case KindLiteral:
		return "Literal"
	default:
		return "Invalid"
	}
}

// Op is a binary or unary operator carried by Binary/Unary nodes.
type Op uint8

// Operators.
const (
	OpNone Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpAnd
	OpOr
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpEQ
	OpNEQ
	OpNot
	OpNeg
)

// String returns the SQL spelling of the operator.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpPow:
		return "^"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpEQ:
		return "="
	case OpNEQ:
		return "<>"
	case OpNot:
		return "NOT"
	case OpNeg:
		return "!"
	default:
		return ""
	}
}

// Node is one fragment of a captured symbolic expression. Nodes form a tree
// through the host pointer (the parent in the capture chain); ownership is
// strictly a tree, never a graph. Nodes are immutable once built and are
// owned by the Session that created them. Identity is reference-based;
// nodes never merge.
type Node struct {
	kind Kind
	sess *Session
	host *Node
	name string
	op   Op
	args []any // method/invoke/index arguments; Binary: args[0] is the right operand; Set*: last arg is the value
	val  any   // literal value, or Convert target
}

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Host returns the parent node in the capture chain (nil for roots).
func (n *Node) Host() *Node { return n.host }

// Name returns the member, method or placeholder name.
func (n *Node) Name() string { return n.name }

// Op returns the operator of a Binary/Unary node.
func (n *Node) Op() Op { return n.op }

// Args returns the node's argument list. Entries are either *Node or plain
// literal values; the dispatcher decides which.
func (n *Node) Args() []any { return n.args }

// Value returns the literal's value, or the Convert node's target.
func (n *Node) Value() any { return n.val }

// IsNullLiteral reports whether the node is a literal nil. It drives the
// IS NULL / IS NOT NULL rendering branch on equality comparisons.
func (n *Node) IsNullLiteral() bool {
	return n.kind == KindLiteral && n.val == nil
}

// Root walks host pointers up to the root of the chain.
func (n *Node) Root() *Node {
	r := n
	for r.host != nil {
		r = r.host
	}
	return r
}
