// Package dialect provides the database abstraction consumed by queryx.
//
// It defines the driver trait set the engine executes through, the dialect
// name constants, and the capability matrix that controls which SQL clause
// variants a builder may emit.
//
// # Dialect Constants
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres  = "postgres"
//	dialect.MySQL     = "mysql"
//	dialect.SQLite    = "sqlite"
//	dialect.Firebird  = "firebird"
//	dialect.SQLServer = "sqlserver"
//
// # Driver Interface
//
// The Driver interface is the minimal connection trait:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// dialect/sql adapts database/sql to this trait.
//
// # Capabilities
//
// Capabilities is a flag set supplied at pool construction time. The
// row-limit strategy a SELECT may use is a pure function of the flags,
// chosen with priority TOP > FIRST/SKIP > LIMIT/OFFSET, so at most one
// limiting syntax ever appears in a rendered statement. Capability sets can
// also be loaded from YAML with LoadCapabilities.
package dialect
