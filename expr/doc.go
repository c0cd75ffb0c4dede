// Package expr captures symbolic expressions as typed node trees.
//
// A capture callback receives a placeholder Value; every member access,
// method call, indexing or operator application against that value (or
// against values derived from it) appends one node to the chain and returns
// a new symbolic value, so the callback's final return value is either a
// pristine literal or the last node produced:
//
//	r, err := expr.Capture(func(q *expr.Value) any {
//	    return q.Member("Id").Eq(5)
//	})
//
// Nodes carry no semantics of their own; the dialect/sql dispatcher assigns
// meaning when it walks the tree. All nodes created during a session are
// owned by its arena and are released together.
package expr
