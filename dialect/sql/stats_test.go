package sql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/queryx/dialect"
)

func newStatsDriver(t *testing.T, opts ...StatsOption) (*StatsDriver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStatsDriver(OpenDB(dialect.Postgres, db), opts...), mock
}

func TestStatsDriverCounters(t *testing.T) {
	drv, mock := newStatsDriver(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("broken"))

	var rows Rows
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, &rows))
	rows.Close()
	require.NoError(t, drv.Exec(ctx, "UPDATE t SET a = 1", []any{}, nil))
	require.Error(t, drv.Query(ctx, "SELECT broken", []any{}, &rows))

	stats := drv.QueryStats().Stats()
	assert.EqualValues(t, 2, stats.TotalQueries)
	assert.EqualValues(t, 1, stats.TotalExecs)
	assert.EqualValues(t, 1, stats.Errors)

	drv.QueryStats().Reset()
	assert.EqualValues(t, 0, drv.QueryStats().Stats().TotalQueries)
}

func TestStatsDriverSlowQueryHook(t *testing.T) {
	var slow []string
	drv, mock := newStatsDriver(t,
		WithSlowThreshold(time.Nanosecond),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	var rows Rows
	require.NoError(t, drv.Query(ctx, "SELECT pg_sleep(1)", []any{}, &rows))
	rows.Close()

	require.Len(t, slow, 1)
	assert.Equal(t, "SELECT pg_sleep(1)", slow[0])
	assert.EqualValues(t, 1, drv.QueryStats().Stats().SlowQueries)
}

func TestStatsDriverThreshold(t *testing.T) {
	drv, _ := newStatsDriver(t)
	assert.Equal(t, 100*time.Millisecond, drv.SlowThreshold())
	drv.SetSlowThreshold(time.Second)
	assert.Equal(t, time.Second, drv.SlowThreshold())
}

func TestStatsTx(t *testing.T) {
	drv, mock := newStatsDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO t VALUES (1)", []any{}, nil))
	require.NoError(t, tx.Commit())

	assert.EqualValues(t, 1, drv.QueryStats().Stats().TotalExecs)
}

func TestStatsSnapshotString(t *testing.T) {
	s := StatsSnapshot{TotalQueries: 3, TotalExecs: 1, SlowQueries: 0}
	assert.Contains(t, s.String(), "queries=3")
}

func TestStatsDriverInterceptsPool(t *testing.T) {
	drv, mock := newStatsDriver(t)
	pool := NewPool(drv, dialect.Capabilities{LimitOffset: true})
	ctx := context.Background()

	conn, err := pool.Open(ctx)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "Users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	cmd, err := conn.Command(pool.Select().From("Users"))
	require.NoError(t, err)
	rows, err := cmd.Query(ctx)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	mock.ExpectExec(`DELETE FROM "Users"`).WillReturnResult(sqlmock.NewResult(0, 1))
	del, err := conn.Command(pool.Delete("Users"))
	require.NoError(t, err)
	_, err = del.Exec(ctx)
	require.NoError(t, err)

	mock.ExpectExec(`DELETE FROM "Users"`).WillReturnError(errors.New("broken"))
	failing, err := conn.Command(pool.Delete("Users"))
	require.NoError(t, err)
	_, err = failing.Exec(ctx)
	require.Error(t, err)

	stats := drv.QueryStats().Stats()
	assert.EqualValues(t, 1, stats.TotalQueries)
	assert.EqualValues(t, 2, stats.TotalExecs)
	assert.EqualValues(t, 1, stats.Errors)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsDriverInterceptsPoolTx(t *testing.T) {
	drv, mock := newStatsDriver(t)
	pool := NewPool(drv, dialect.Capabilities{LimitOffset: true})
	ctx := context.Background()

	conn, err := pool.Open(ctx)
	require.NoError(t, err)

	mock.ExpectBegin()
	tx, err := conn.Begin(ctx, nil)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "Users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	cmd, err := conn.Command(pool.Select().From("Users"))
	require.NoError(t, err)
	rows, err := cmd.Query(ctx)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	mock.ExpectCommit()
	require.NoError(t, tx.Commit(ctx))

	assert.EqualValues(t, 1, drv.QueryStats().Stats().TotalQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebugDriverInterceptsPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var lines []string
	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLog(func(_ context.Context, v ...any) {
		lines = append(lines, fmt.Sprint(v...))
	}))
	pool := NewPool(drv, dialect.Capabilities{LimitOffset: true})
	ctx := context.Background()

	conn, err := pool.Open(ctx)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "Users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	cmd, err := conn.Command(pool.Select().From("Users"))
	require.NoError(t, err)
	rows, err := cmd.Query(ctx)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `SELECT * FROM "Users"`)
	require.NoError(t, mock.ExpectationsWereMet())
}
