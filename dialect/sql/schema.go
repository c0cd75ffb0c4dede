package sql

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
)

// DBType is the database-side type of a column, used for parameter hints
// and command dumps.
type DBType uint8

// Column types.
const (
	TypeOther DBType = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeFloat64
	TypeDecimal
	TypeString
	TypeBytes
	TypeTime
	TypeUUID
	TypeJSON
)

// String returns the type name.
func (t DBType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeTime:
		return "time"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "other"
	}
}

// Column is the per-column metadata consumed by the engine. Get/Set are the
// accessors an external type-schema provider supplies for projecting mapped
// objects; the core only calls them, never builds them.
type Column struct {
	Name      string
	Type      DBType
	Key       bool
	Unique    bool
	Nullable  bool
	Size      int64
	Precision int64
	Scale     int64
	Get       func(item any) any
	Set       func(item, value any)
}

// clone returns a copy so cache entries can be replaced atomically without
// sharing mutable state.
func (c *Column) clone() *Column {
	cc := *c
	return &cc
}

// ColumnMap is an ordered set of columns with case-insensitive name lookup.
type ColumnMap struct {
	columns []*Column
	index   map[string]int
}

// NewColumnMap builds a ColumnMap preserving the given order.
func NewColumnMap(cols ...*Column) *ColumnMap {
	m := &ColumnMap{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		m.append(c)
	}
	return m
}

func (m *ColumnMap) append(c *Column) {
	m.index[strings.ToLower(c.Name)] = len(m.columns)
	m.columns = append(m.columns, c)
}

// Get returns the column with the given name, or nil.
func (m *ColumnMap) Get(name string) *Column {
	if m == nil {
		return nil
	}
	if i, ok := m.index[strings.ToLower(name)]; ok {
		return m.columns[i]
	}
	return nil
}

// Columns returns the columns in declaration order.
func (m *ColumnMap) Columns() []*Column {
	if m == nil {
		return nil
	}
	return m.columns
}

// Len returns the number of columns.
func (m *ColumnMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.columns)
}

// TypeSchemaProvider supplies externally computed column mappings for Go
// types. The core consumes this interface; it never computes mappings.
type TypeSchemaProvider interface {
	// SchemaFor returns the ordered column mapping for the given type,
	// or false when the type is not mappable.
	SchemaFor(t reflect.Type) (*ColumnMap, bool)
}

// Resolver resolves and caches per-table and per-type column dictionaries.
// Database-introspected schema merges with provider-supplied type schema:
// per column, an explicit provider override wins, then the introspected
// value, then a generic default derived from the Go type. All mutation
// happens under the mutex owned by the pool; entries are replaced whole,
// never mutated in place.
type Resolver struct {
	mu       *sync.Mutex
	drv      dialect.Driver
	caps     dialect.Capabilities
	provider TypeSchemaProvider
	tables   map[string]*ColumnMap
	types    map[string]*ColumnMap
}

// NewResolver creates a standalone resolver with its own mutex. Resolution
// flows through the given driver, so a decorated driver observes
// introspection queries too.
func NewResolver(drv dialect.Driver, caps dialect.Capabilities, provider TypeSchemaProvider) *Resolver {
	return newResolver(new(sync.Mutex), drv, caps, provider)
}

func newResolver(mu *sync.Mutex, drv dialect.Driver, caps dialect.Capabilities, provider TypeSchemaProvider) *Resolver {
	return &Resolver{
		mu:       mu,
		drv:      drv,
		caps:     caps,
		provider: provider,
		tables:   make(map[string]*ColumnMap),
		types:    make(map[string]*ColumnMap),
	}
}

func tableKey(table, owner string) string {
	if owner != "" {
		return strings.ToLower(owner + "." + table)
	}
	return strings.ToLower(table)
}

// Schema returns the column dictionary for a table, introspecting the
// database on the first call and caching the result. Repeated calls return
// the same instance until the entry is invalidated.
func (r *Resolver) Schema(ctx context.Context, table, owner string) (*ColumnMap, error) {
	if !isValidIdentifier(table) {
		return nil, queryx.NewResolutionError(table, "not a valid table name")
	}
	if owner != "" && !isValidIdentifier(owner) {
		return nil, queryx.NewResolutionError(owner, "not a valid owner name")
	}
	key := tableKey(table, owner)
	r.mu.Lock()
	if m, ok := r.tables[key]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	m, err := r.introspect(ctx, table, owner)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent resolver may have won the race; keep the first entry so
	// repeated lookups stay instance-stable.
	if prev, ok := r.tables[key]; ok {
		return prev, nil
	}
	r.tables[key] = m
	return m, nil
}

// SchemaForType returns the cached provider mapping for a Go type, or false
// for anonymous or unmappable types.
func (r *Resolver) SchemaForType(t reflect.Type) (*ColumnMap, bool) {
	if t == nil || t.Name() == "" || r.provider == nil {
		return nil, false
	}
	key := t.PkgPath() + "." + t.Name()
	r.mu.Lock()
	if m, ok := r.types[key]; ok {
		r.mu.Unlock()
		return m, true
	}
	r.mu.Unlock()
	m, ok := r.provider.SchemaFor(t)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.types[key]; ok {
		return prev, true
	}
	r.types[key] = m
	return m, true
}

// RegisterTable seeds the cache with an externally supplied dictionary,
// replacing any existing entry atomically.
func (r *Resolver) RegisterTable(table, owner string, m *ColumnMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[tableKey(table, owner)] = m
}

// Invalidate removes a single table entry.
func (r *Resolver) Invalidate(table, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, tableKey(table, owner))
}

// Clear drops all cached entries.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[string]*ColumnMap)
	r.types = make(map[string]*ColumnMap)
}

// introspect reads column metadata by selecting an empty result set and
// inspecting the reader's metadata, then merges in any provider overrides.
func (r *Resolver) introspect(ctx context.Context, table, owner string) (*ColumnMap, error) {
	if !r.caps.SchemaIntrospection {
		return nil, queryx.NewResolutionError(table, "schema introspection capability not enabled")
	}
	if r.drv == nil {
		return nil, queryx.NewResolutionError(table, "no driver for schema introspection")
	}
	qualified := quoteIdent(r.drv.Dialect(), table)
	if owner != "" {
		qualified = quoteIdent(r.drv.Dialect(), owner) + "." + qualified
	}
	var rows Rows
	if err := r.drv.Query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", qualified), []any{}, &rows); err != nil {
		return nil, queryx.NewResolutionError(table, err.Error())
	}
	defer rows.Close()
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, queryx.NewResolutionError(table, err.Error())
	}
	cols := make([]*Column, 0, len(cts))
	for _, ct := range cts {
		c := &Column{Name: ct.Name(), Type: dbTypeOf(ct.DatabaseTypeName())}
		if nullable, ok := ct.Nullable(); ok {
			c.Nullable = nullable
		}
		if length, ok := ct.Length(); ok {
			c.Size = length
		}
		if precision, scale, ok := ct.DecimalSize(); ok {
			c.Precision, c.Scale = precision, scale
		}
		if c.Type == TypeOther && ct.ScanType() != nil {
			c.Type = dbTypeOfGo(ct.ScanType())
		}
		cols = append(cols, c)
	}
	return r.mergeOverrides(table, NewColumnMap(cols...)), nil
}

// mergeOverrides applies provider-supplied per-column overrides for tables
// registered by name with the provider (via a named-type lookup table).
func (r *Resolver) mergeOverrides(table string, introspected *ColumnMap) *ColumnMap {
	override, ok := r.namedOverride(table)
	if !ok {
		return introspected
	}
	return MergeColumnMaps(override, introspected)
}

// namedOverride asks the provider for a table-level mapping when it also
// implements the optional name-based lookup.
func (r *Resolver) namedOverride(table string) (*ColumnMap, bool) {
	np, ok := r.provider.(interface {
		SchemaForTable(table string) (*ColumnMap, bool)
	})
	if !ok {
		return nil, false
	}
	return np.SchemaForTable(table)
}

// MergeColumnMaps merges an explicit override mapping with an introspected
// one. Column order follows the introspected map, with override-only
// columns appended. Per field, a non-zero override value wins over the
// introspected value.
func MergeColumnMaps(override, introspected *ColumnMap) *ColumnMap {
	if override == nil {
		return introspected
	}
	if introspected == nil {
		return override
	}
	merged := make([]*Column, 0, introspected.Len())
	for _, db := range introspected.Columns() {
		c := db.clone()
		if ov := override.Get(db.Name); ov != nil {
			if ov.Type != TypeOther {
				c.Type = ov.Type
			}
			c.Key = c.Key || ov.Key
			c.Unique = c.Unique || ov.Unique
			if ov.Size != 0 {
				c.Size = ov.Size
			}
			if ov.Precision != 0 || ov.Scale != 0 {
				c.Precision, c.Scale = ov.Precision, ov.Scale
			}
			c.Get, c.Set = ov.Get, ov.Set
		}
		merged = append(merged, c)
	}
	for _, ov := range override.Columns() {
		if introspected.Get(ov.Name) == nil {
			merged = append(merged, ov.clone())
		}
	}
	return NewColumnMap(merged...)
}

// dbTypeOf maps a driver-reported database type name to a DBType.
func dbTypeOf(name string) DBType {
	switch strings.ToUpper(name) {
	case "BOOL", "BOOLEAN", "BIT":
		return TypeBool
	case "SMALLINT", "INT2", "MEDIUMINT", "INT", "INT4", "INTEGER", "SERIAL":
		return TypeInt
	case "BIGINT", "INT8", "BIGSERIAL":
		return TypeInt64
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return TypeFloat64
	case "NUMERIC", "DECIMAL", "MONEY":
		return TypeDecimal
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "LONGTEXT", "MEDIUMTEXT", "TINYTEXT", "CHARACTER VARYING":
		return TypeString
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return TypeBytes
	case "DATE", "TIME", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ", "TIMETZ":
		return TypeTime
	case "UUID", "UNIQUEIDENTIFIER":
		return TypeUUID
	case "JSON", "JSONB":
		return TypeJSON
	default:
		return TypeOther
	}
}

// dbTypeOfGo derives a generic default DBType from a declared Go type.
func dbTypeOfGo(t reflect.Type) DBType {
	if t == nil {
		return TypeOther
	}
	if t == reflect.TypeOf(time.Time{}) {
		return TypeTime
	}
	switch t.Kind() {
	case reflect.Bool:
		return TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInt
	case reflect.Int64, reflect.Uint64:
		return TypeInt64
	case reflect.Float32, reflect.Float64:
		return TypeFloat64
	case reflect.String:
		return TypeString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeBytes
		}
		return TypeOther
	case reflect.Ptr:
		return dbTypeOfGo(t.Elem())
	default:
		return TypeOther
	}
}
