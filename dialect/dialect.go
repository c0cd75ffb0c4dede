package dialect

import "context"

// Supported dialect names.
const (
	MySQL     = "mysql"
	SQLite    = "sqlite"
	Postgres  = "postgres"
	Firebird  = "firebird"
	SQLServer = "sqlserver"
)

// ExecQuerier wraps the two basic statement operations.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. args is
	// expected to be a []any; v, when non-nil, receives the result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows, which are bound to v.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal connection trait this engine executes through.
// It never speaks a wire protocol itself; an implementation adapts a
// native client library.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a driver-level transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
