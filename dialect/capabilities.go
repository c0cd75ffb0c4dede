package dialect

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// RowLimitStrategy selects which row-limiting syntax a statement may use.
// At most one strategy applies to a single rendered statement.
type RowLimitStrategy uint8

// Row-limit strategies, in selection priority order.
const (
	RowLimitNone RowLimitStrategy = iota
	RowLimitTop
	RowLimitFirstSkip
	RowLimitOffset
)

// String returns the strategy name.
func (s RowLimitStrategy) String() string {
	switch s {
	case RowLimitTop:
		return "TOP"
	case RowLimitFirstSkip:
		return "FIRST/SKIP"
	case RowLimitOffset:
		return "LIMIT/OFFSET"
	default:
		return "none"
	}
}

// Capabilities is the dialect feature matrix supplied at pool construction
// time. It is the only configuration surface of the engine core.
type Capabilities struct {
	// SingleConnection pools exactly one physical connection.
	SingleConnection bool `yaml:"single_connection"`
	// SingleTransaction keeps at most one live driver-level transaction
	// per connection; nested begins return deferred no-op handles.
	SingleTransaction bool `yaml:"single_transaction"`
	// Top enables the "TOP n" row-limit prefix.
	Top bool `yaml:"top"`
	// FirstSkip enables the "FIRST n SKIP m" row-limit prefix.
	FirstSkip bool `yaml:"first_skip"`
	// LimitOffset enables trailing "LIMIT n OFFSET m" clauses.
	LimitOffset bool `yaml:"limit_offset"`
	// SchemaIntrospection allows reading column metadata from the database.
	SchemaIntrospection bool `yaml:"schema_introspection"`
	// StoredProcedures allows procedure-typed commands.
	StoredProcedures bool `yaml:"stored_procedures"`
	// DumpCommands logs every executed command with its bound parameters.
	DumpCommands bool `yaml:"dump_commands"`
}

// RowLimit returns the active row-limit strategy. The choice is a pure
// function of the flags with priority TOP > FIRST/SKIP > LIMIT/OFFSET.
func (c Capabilities) RowLimit() RowLimitStrategy {
	switch {
	case c.Top:
		return RowLimitTop
	case c.FirstSkip:
		return RowLimitFirstSkip
	case c.LimitOffset:
		return RowLimitOffset
	default:
		return RowLimitNone
	}
}

// ByDialect returns the default capability set for a known dialect name.
func ByDialect(name string) Capabilities {
	switch name {
	case Postgres, MySQL, SQLite:
		return Capabilities{
			LimitOffset:         true,
			SchemaIntrospection: true,
			StoredProcedures:    name != SQLite,
		}
	case Firebird:
		return Capabilities{
			FirstSkip:           true,
			SchemaIntrospection: true,
			StoredProcedures:    true,
		}
	case SQLServer:
		return Capabilities{
			Top:                 true,
			SchemaIntrospection: true,
			StoredProcedures:    true,
		}
	default:
		return Capabilities{}
	}
}

// ParseCapabilities reads a capability set from YAML.
func ParseCapabilities(data []byte) (Capabilities, error) {
	var c Capabilities
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Capabilities{}, fmt.Errorf("dialect: parse capabilities: %w", err)
	}
	return c, nil
}

// LoadCapabilities reads a capability set from a YAML stream.
func LoadCapabilities(r io.Reader) (Capabilities, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Capabilities{}, fmt.Errorf("dialect: load capabilities: %w", err)
	}
	return ParseCapabilities(data)
}
