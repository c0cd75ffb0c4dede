package dialect_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/queryx/dialect"
)

func TestRowLimit(t *testing.T) {
	tests := []struct {
		name string
		caps dialect.Capabilities
		want dialect.RowLimitStrategy
	}{
		{"none", dialect.Capabilities{}, dialect.RowLimitNone},
		{"top_only", dialect.Capabilities{Top: true}, dialect.RowLimitTop},
		{"first_skip_only", dialect.Capabilities{FirstSkip: true}, dialect.RowLimitFirstSkip},
		{"limit_offset_only", dialect.Capabilities{LimitOffset: true}, dialect.RowLimitOffset},
		// Priority: TOP beats FIRST/SKIP beats LIMIT/OFFSET.
		{"top_beats_all", dialect.Capabilities{Top: true, FirstSkip: true, LimitOffset: true}, dialect.RowLimitTop},
		{"first_skip_beats_offset", dialect.Capabilities{FirstSkip: true, LimitOffset: true}, dialect.RowLimitFirstSkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.RowLimit())
		})
	}
}

func TestByDialect(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		caps := dialect.ByDialect(dialect.Postgres)
		assert.Equal(t, dialect.RowLimitOffset, caps.RowLimit())
		assert.True(t, caps.SchemaIntrospection)
		assert.True(t, caps.StoredProcedures)
	})

	t.Run("sqlite", func(t *testing.T) {
		caps := dialect.ByDialect(dialect.SQLite)
		assert.Equal(t, dialect.RowLimitOffset, caps.RowLimit())
		assert.False(t, caps.StoredProcedures)
	})

	t.Run("firebird", func(t *testing.T) {
		caps := dialect.ByDialect(dialect.Firebird)
		assert.Equal(t, dialect.RowLimitFirstSkip, caps.RowLimit())
	})

	t.Run("sqlserver", func(t *testing.T) {
		caps := dialect.ByDialect(dialect.SQLServer)
		assert.Equal(t, dialect.RowLimitTop, caps.RowLimit())
	})

	t.Run("unknown", func(t *testing.T) {
		caps := dialect.ByDialect("oracle")
		assert.Equal(t, dialect.Capabilities{}, caps)
	})
}

func TestParseCapabilities(t *testing.T) {
	data := []byte(`
single_connection: true
single_transaction: true
limit_offset: true
schema_introspection: true
dump_commands: true
`)
	caps, err := dialect.ParseCapabilities(data)
	require.NoError(t, err)
	assert.True(t, caps.SingleConnection)
	assert.True(t, caps.SingleTransaction)
	assert.True(t, caps.DumpCommands)
	assert.Equal(t, dialect.RowLimitOffset, caps.RowLimit())
	assert.False(t, caps.Top)
}

func TestParseCapabilitiesInvalid(t *testing.T) {
	_, err := dialect.ParseCapabilities([]byte("single_connection: [not a bool"))
	require.Error(t, err)
}

func TestLoadCapabilities(t *testing.T) {
	caps, err := dialect.LoadCapabilities(strings.NewReader("top: true\nstored_procedures: true\n"))
	require.NoError(t, err)
	assert.Equal(t, dialect.RowLimitTop, caps.RowLimit())
	assert.True(t, caps.StoredProcedures)
}
