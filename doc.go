// Package queryx is a programmatic SQL construction and execution engine.
//
// Client code builds SELECT/INSERT/UPDATE/DELETE statements by chaining
// symbolic operations against a placeholder value instead of writing raw
// SQL. The expr package turns such a chain into a typed expression tree,
// the dialect/sql package renders that tree into parameterized SQL text
// under a configurable dialect capability matrix, and executes it through
// a pooled connection layer with LIFO transaction stacks.
//
// The root package holds the error taxonomy shared by all layers and the
// result-cache contract.
package queryx
