package sql

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// objectColumn is the synthetic trailing column BufferObjects appends so
// consumers can recover the source item, not only its column values.
const objectColumn = "object"

// BufferedRows is a fully materialized, randomly addressable row store. It
// reads like a forward-only cursor but additionally supports SetPosition,
// which decouples reading once from the driver from consuming the rows N
// times, possibly out of order.
type BufferedRows struct {
	columns []string
	types   []DBType
	schema  *ColumnMap
	data    [][]any
	pos     int
	err     error
	closed  bool
}

// BufferOption configures how BufferRows drains the live cursor.
type BufferOption func(*bufferConfig)

type bufferConfig struct {
	limit    int
	offset   int
	progress func(n int) bool
}

// WithBufferLimit stops the drain after n rows were buffered.
func WithBufferLimit(n int) BufferOption {
	return func(c *bufferConfig) { c.limit = n }
}

// WithBufferOffset skips the first n rows of the live cursor.
func WithBufferOffset(n int) BufferOption {
	return func(c *bufferConfig) { c.offset = n }
}

// WithBufferProgress installs a per-row callback invoked with the number of
// rows buffered so far. Returning false terminates the drain early.
func WithBufferProgress(fn func(n int) bool) BufferOption {
	return func(c *bufferConfig) { c.progress = fn }
}

// BufferRows drains a live cursor once into a BufferedRows. The live rows
// are fully consumed (up to the configured limit) but not closed.
func BufferRows(rows ColumnScanner, opts ...BufferOption) (*BufferedRows, error) {
	cfg := bufferConfig{limit: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: buffer rows: %w", err)
	}
	types := make([]DBType, len(columns))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			if i < len(types) {
				types[i] = dbTypeOf(ct.DatabaseTypeName())
			}
		}
	}
	br := &BufferedRows{columns: columns, types: types, pos: -1}
	skipped := 0
	for rows.Next() {
		if skipped < cfg.offset {
			skipped++
			continue
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dialect/sql: buffer rows: scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		br.data = append(br.data, values)
		if cfg.progress != nil && !cfg.progress(len(br.data)) {
			return br, nil
		}
		if cfg.limit >= 0 && len(br.data) >= cfg.limit {
			return br, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: buffer rows: %w", err)
	}
	return br, nil
}

// BufferObjects projects mapped objects through the column map's accessors
// into a BufferedRows. A synthetic trailing "object" column holds the
// original item so later consumers can recover it via Object.
func BufferObjects[T any](items []T, columns *ColumnMap) (*BufferedRows, error) {
	if columns.Len() == 0 {
		return nil, fmt.Errorf("dialect/sql: buffer objects: empty column map")
	}
	cols := columns.Columns()
	br := &BufferedRows{
		columns: make([]string, 0, len(cols)+1),
		types:   make([]DBType, 0, len(cols)+1),
		schema:  columns,
		pos:     -1,
	}
	for _, c := range cols {
		if c.Get == nil {
			return nil, fmt.Errorf("dialect/sql: buffer objects: column %q has no accessor", c.Name)
		}
		br.columns = append(br.columns, c.Name)
		br.types = append(br.types, c.Type)
	}
	br.columns = append(br.columns, objectColumn)
	br.types = append(br.types, TypeOther)
	for _, item := range items {
		values := make([]any, 0, len(cols)+1)
		for _, c := range cols {
			values = append(values, c.Get(item))
		}
		values = append(values, item)
		br.data = append(br.data, values)
	}
	return br, nil
}

// Len returns the number of buffered rows.
func (r *BufferedRows) Len() int { return len(r.data) }

// Next advances to the next row. It returns false past the last row.
func (r *BufferedRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

// SetPosition repositions the cursor on row n (zero-based).
func (r *BufferedRows) SetPosition(n int) error {
	if r.closed {
		return fmt.Errorf("dialect/sql: buffered rows are closed")
	}
	if n < 0 || n >= len(r.data) {
		return fmt.Errorf("dialect/sql: position %d out of range [0,%d)", n, len(r.data))
	}
	r.pos = n
	return nil
}

// Reset rewinds the cursor before the first row.
func (r *BufferedRows) Reset() { r.pos = -1 }

// FieldCount returns the number of columns, including the synthetic object
// column for object-backed buffers.
func (r *BufferedRows) FieldCount() int { return len(r.columns) }

// Name returns the name of column i.
func (r *BufferedRows) Name(i int) string { return r.columns[i] }

// TypeOf returns the database type of column i.
func (r *BufferedRows) TypeOf(i int) DBType { return r.types[i] }

// Columns returns the column names.
func (r *BufferedRows) Columns() ([]string, error) {
	return append([]string(nil), r.columns...), nil
}

// SchemaTable returns the column map the buffer was projected through, if
// it was built from mapped objects.
func (r *BufferedRows) SchemaTable() *ColumnMap { return r.schema }

// Get returns the value of column i on the current row.
func (r *BufferedRows) Get(i int) any {
	return r.row()[i]
}

// GetByName returns the value of the named column on the current row.
func (r *BufferedRows) GetByName(name string) (any, error) {
	for i, c := range r.columns {
		if c == name {
			return r.row()[i], nil
		}
	}
	return nil, fmt.Errorf("dialect/sql: no column %q", name)
}

// IsNull reports whether column i is NULL on the current row.
func (r *BufferedRows) IsNull(i int) bool {
	return r.row()[i] == nil
}

// Object returns the source item of the current row for object-backed
// buffers, or nil otherwise.
func (r *BufferedRows) Object() any {
	if r.schema == nil || len(r.columns) == 0 {
		return nil
	}
	return r.row()[len(r.columns)-1]
}

func (r *BufferedRows) row() []any {
	if r.pos < 0 || r.pos >= len(r.data) {
		panic("dialect/sql: buffered rows: no current row")
	}
	return r.data[r.pos]
}

// Scan copies the current row's values into dest, one destination per
// column in order.
func (r *BufferedRows) Scan(dest ...any) error {
	row := r.row()
	if len(dest) > len(row) {
		return fmt.Errorf("dialect/sql: scan expects at most %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assignValue(d, row[i]); err != nil {
			return fmt.Errorf("dialect/sql: scan column %d: %w", i, err)
		}
	}
	return nil
}

// Err returns the deferred drain error, if any.
func (r *BufferedRows) Err() error { return r.err }

// Close releases the row store. Further reads fail.
func (r *BufferedRows) Close() error {
	r.closed = true
	r.data = nil
	r.pos = -1
	return nil
}

// assignValue assigns a buffered value to a scan destination. It covers the
// destination types the engine itself uses; anything else must implement
// sql.Scanner.
func assignValue(dest, v any) error {
	switch d := dest.(type) {
	case *any:
		*d = v
		return nil
	case sql.Scanner:
		return d.Scan(v)
	}
	if v == nil {
		return fmt.Errorf("cannot assign NULL to %T", dest)
	}
	switch d := dest.(type) {
	case *string:
		switch v := v.(type) {
		case string:
			*d = v
			return nil
		case []byte:
			*d = string(v)
			return nil
		}
	case *[]byte:
		if b, ok := v.([]byte); ok {
			*d = append([]byte(nil), b...)
			return nil
		}
	case *int64:
		switch v := v.(type) {
		case int64:
			*d = v
			return nil
		case int:
			*d = int64(v)
			return nil
		}
	case *int:
		switch v := v.(type) {
		case int64:
			*d = int(v)
			return nil
		case int:
			*d = v
			return nil
		}
	case *float64:
		if f, ok := v.(float64); ok {
			*d = f
			return nil
		}
	case *bool:
		if b, ok := v.(bool); ok {
			*d = b
			return nil
		}
	case *time.Time:
		if t, ok := v.(time.Time); ok {
			*d = t
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %T", v, dest)
}

// rowsSnapshot is the wire form of a materialized row store.
type rowsSnapshot struct {
	Columns []string `msgpack:"columns"`
	Types   []DBType `msgpack:"types"`
	Data    [][]any  `msgpack:"data"`
}

// Encode serializes the row store with msgpack, suitable as a cache
// payload. The synthetic object column and accessor schema are not
// serialized.
func (r *BufferedRows) Encode() ([]byte, error) {
	snap := rowsSnapshot{Columns: r.columns, Types: r.types, Data: r.data}
	b, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: encode buffered rows: %w", err)
	}
	return b, nil
}

// DecodeBufferedRows rebuilds a row store from its msgpack form.
func DecodeBufferedRows(b []byte) (*BufferedRows, error) {
	var snap rowsSnapshot
	if err := msgpack.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("dialect/sql: decode buffered rows: %w", err)
	}
	return &BufferedRows{
		columns: snap.Columns,
		types:   snap.Types,
		data:    snap.Data,
		pos:     -1,
	}, nil
}
