// Package sql turns captured expression trees into dialect-correct SQL
// statements and executes them over database/sql.
//
// This package is the core of the engine: it renders SELECT/INSERT/UPDATE/
// DELETE statements from expr capture sessions, resolves table and column
// schema, binds parameters safely, and manages connections, transactions
// and buffered result cursors.
//
// # Builder Types
//
// The package provides specialized builders for different SQL operations:
//
//   - Builder: shared rendering state (dialect, capabilities, parameters,
//     table registry, bracket-balanced condition accumulators)
//   - SelectBuilder: SELECT with joins, sub-selects, grouping and row limits
//   - InsertBuilder: INSERT with multi-row VALUES and RETURNING support
//   - UpdateBuilder: UPDATE with SET and WHERE clauses
//   - DeleteBuilder: DELETE with WHERE predicates
//
// # Conditions
//
// WHERE and HAVING conditions are captured from ordinary Go expressions
// against a placeholder value:
//
//	s := sql.Select(dialect.Postgres, caps).
//	    From("Users").
//	    Where(func(q *expr.Value) any { return q.Member("Id").Eq(5) }).
//	    Limit(1)
//	query, args, err := s.Fill()
//
// Rendering produces parameter tokens that Fill resolves to the dialect's
// placeholder style ($n for Postgres, ? elsewhere) with bound arguments in
// order.
//
// # Execution
//
// Pool owns the live connections, the per-connection transaction stacks and
// the schema cache. Commands created on a pooled connection execute against
// the top transaction of that connection, or the bare connection when no
// transaction is open:
//
//	pool := sql.NewPool(drv, dialect.ByDialect(dialect.Postgres))
//	conn, _ := pool.Open(ctx)
//	tx, _ := conn.Begin(ctx, nil)
//	cmd, _ := conn.Command(stmt)
//	rows, _ := cmd.QueryBuffered(ctx)
//	tx.Commit(ctx)
//
// BufferedRows materializes a result set once and allows repeated,
// random-access consumption via SetPosition.
package sql
