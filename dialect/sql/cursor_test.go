package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/queryx/dialect"
)

func liveRows(t *testing.T, rs *sqlmock.Rows) *Rows {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drv := OpenDB(dialect.Postgres, db)
	mock.ExpectQuery("SELECT").WillReturnRows(rs)

	var rows Rows
	require.NoError(t, drv.Query(context.Background(), "SELECT Id, Name FROM Users", []any{}, &rows))
	return &rows
}

func threeUsers() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"Id", "Name"}).
		AddRow(1, "Alice").
		AddRow(2, "Bob").
		AddRow(3, "Carol")
}

// TestBufferedRowsSetPosition checks that a buffered cursor read through to
// the end can reposition on row 0 and yield the first row's values again.
func TestBufferedRowsSetPosition(t *testing.T) {
	rows := liveRows(t, threeUsers())
	defer rows.Close()

	br, err := BufferRows(rows)
	require.NoError(t, err)
	require.Equal(t, 3, br.Len())

	require.True(t, br.Next())
	firstID, firstName := br.Get(0), br.Get(1)

	// Drain the remaining rows.
	require.True(t, br.Next())
	require.True(t, br.Next())
	require.False(t, br.Next())

	require.NoError(t, br.SetPosition(0))
	assert.Equal(t, firstID, br.Get(0))
	assert.Equal(t, firstName, br.Get(1))

	require.Error(t, br.SetPosition(3))
	require.Error(t, br.SetPosition(-1))
}

func TestBufferedRowsReadContract(t *testing.T) {
	rows := liveRows(t, threeUsers())
	defer rows.Close()

	br, err := BufferRows(rows)
	require.NoError(t, err)

	assert.Equal(t, 2, br.FieldCount())
	assert.Equal(t, "Id", br.Name(0))
	assert.Equal(t, "Name", br.Name(1))

	cols, err := br.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name"}, cols)

	require.True(t, br.Next())
	assert.False(t, br.IsNull(0))

	var id int64
	var name string
	require.NoError(t, br.Scan(&id, &name))
	assert.EqualValues(t, 1, id)
	assert.Equal(t, "Alice", name)

	v, err := br.GetByName("Name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)
	_, err = br.GetByName("Nope")
	require.Error(t, err)

	br.Reset()
	require.True(t, br.Next())
	assert.Equal(t, "Alice", br.Get(1))

	require.NoError(t, br.Close())
	assert.False(t, br.Next())
	require.Error(t, br.SetPosition(0))
}

func TestBufferedRowsNulls(t *testing.T) {
	rs := sqlmock.NewRows([]string{"Id", "Email"}).
		AddRow(1, nil)
	rows := liveRows(t, rs)
	defer rows.Close()

	br, err := BufferRows(rows)
	require.NoError(t, err)
	require.True(t, br.Next())
	assert.False(t, br.IsNull(0))
	assert.True(t, br.IsNull(1))
}

func TestBufferRowsOptions(t *testing.T) {
	t.Run("limit", func(t *testing.T) {
		rows := liveRows(t, threeUsers())
		defer rows.Close()
		br, err := BufferRows(rows, WithBufferLimit(2))
		require.NoError(t, err)
		assert.Equal(t, 2, br.Len())
	})

	t.Run("offset", func(t *testing.T) {
		rows := liveRows(t, threeUsers())
		defer rows.Close()
		br, err := BufferRows(rows, WithBufferOffset(2))
		require.NoError(t, err)
		require.Equal(t, 1, br.Len())
		require.True(t, br.Next())
		assert.Equal(t, "Carol", br.Get(1))
	})

	t.Run("progress_early_terminate", func(t *testing.T) {
		rows := liveRows(t, threeUsers())
		defer rows.Close()
		var calls int
		br, err := BufferRows(rows, WithBufferProgress(func(n int) bool {
			calls++
			return n < 2
		}))
		require.NoError(t, err)
		assert.Equal(t, 2, br.Len())
		assert.Equal(t, 2, calls)
	})
}

type bufferedUser struct {
	ID   int64
	Name string
}

func userColumns() *ColumnMap {
	return NewColumnMap(
		&Column{
			Name: "Id", Type: TypeInt64,
			Get: func(item any) any { return item.(*bufferedUser).ID },
		},
		&Column{
			Name: "Name", Type: TypeString,
			Get: func(item any) any { return item.(*bufferedUser).Name },
		},
	)
}

func TestBufferObjects(t *testing.T) {
	users := []*bufferedUser{
		{ID: 1, Name: "Alice"},
		{ID: 2, Name: "Bob"},
	}

	br, err := BufferObjects(users, userColumns())
	require.NoError(t, err)
	require.Equal(t, 2, br.Len())

	// Mapped columns plus the synthetic trailing object column.
	assert.Equal(t, 3, br.FieldCount())
	assert.Equal(t, "object", br.Name(2))
	assert.Equal(t, TypeInt64, br.TypeOf(0))
	assert.NotNil(t, br.SchemaTable())

	require.True(t, br.Next())
	assert.EqualValues(t, 1, br.Get(0))
	assert.Equal(t, "Alice", br.Get(1))
	// The original item is recoverable.
	assert.Same(t, users[0], br.Object())

	require.True(t, br.Next())
	assert.Same(t, users[1], br.Object())
}

func TestBufferObjectsErrors(t *testing.T) {
	t.Run("empty_columns", func(t *testing.T) {
		_, err := BufferObjects([]*bufferedUser{{}}, NewColumnMap())
		require.Error(t, err)
	})

	t.Run("missing_accessor", func(t *testing.T) {
		_, err := BufferObjects([]*bufferedUser{{}}, NewColumnMap(&Column{Name: "Id"}))
		require.Error(t, err)
	})
}

func TestBufferedRowsEncodeDecode(t *testing.T) {
	rows := liveRows(t, threeUsers())
	defer rows.Close()

	br, err := BufferRows(rows)
	require.NoError(t, err)

	data, err := br.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := DecodeBufferedRows(data)
	require.NoError(t, err)
	require.Equal(t, br.Len(), decoded.Len())
	assert.Equal(t, br.FieldCount(), decoded.FieldCount())
	assert.Equal(t, "Id", decoded.Name(0))
	assert.Equal(t, TypeString, decoded.TypeOf(1))

	require.True(t, decoded.Next())
	assert.EqualValues(t, 1, decoded.Get(0))
	name, err := decoded.GetByName("Name")
	require.NoError(t, err)
	assert.EqualValues(t, "Alice", name)
}

func TestDecodeBufferedRowsInvalid(t *testing.T) {
	_, err := DecodeBufferedRows([]byte{0xc1})
	require.Error(t, err)
}
