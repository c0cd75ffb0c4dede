package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/queryx/dialect"
)

// QueryStats accumulates execution counters. All fields are atomic; one
// instance may be shared by concurrent connections.
type QueryStats struct {
	// TotalQueries counts row-returning statements.
	TotalQueries atomic.Int64
	// TotalExecs counts non-query statements.
	TotalExecs atomic.Int64
	// TotalDuration is the accumulated execution time in nanoseconds.
	TotalDuration atomic.Int64
	// SlowQueries counts statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors counts failed statements.
	Errors atomic.Int64
}

// Stats returns a point-in-time snapshot.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset zeroes all counters.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is an immutable copy of the counters.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the mean statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a one-line summary.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is called when a statement exceeds the slow threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver decorates a Driver with execution accounting. It observes
// statements on two paths: the dialect-level Query/Exec/Tx methods, and,
// through InterceptExec, every command a Pool built over it executes on its
// pooled connections and savepoint transactions.
type StatsDriver struct {
	*Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the slow-statement threshold. The default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook registers a callback fired for every statement that
// exceeds the slow threshold.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements through slog. It is a convenience
// wrapper around WithSlowQueryHook.
func WithSlowQueryLog() StatsOption {
	return WithSlowQueryHook(func(_ context.Context, query string, args []any, duration time.Duration) {
		slog.Warn("slow query detected", "duration", duration, "query", query, "args", args)
	})
}

// NewStatsDriver decorates a Driver with execution accounting.
//
// Example:
//
//	drv, _ := sql.Open("postgres", dsn)
//	statsDriver := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	pool := sql.NewPool(statsDriver, dialect.ByDialect(dialect.Postgres))
//
//	// Later, check statistics:
//	stats := statsDriver.QueryStats().Stats()
//	fmt.Println(stats)
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the live counter set.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the current slow-statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow-statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// InterceptExec wraps a pooled execution target so commands running on a
// pooled connection, or inside one of its transactions, are recorded.
func (d *StatsDriver) InterceptExec(q ExecQuerier) ExecQuerier {
	return &statsQuerier{next: q, driver: d}
}

// Query executes a row-returning statement and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	argv, _ := args.([]any)
	d.record(ctx, query, argv, start, err, true)
	return err
}

// Exec executes a statement and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	argv, _ := args.([]any)
	d.record(ctx, query, argv, start, err, false)
	return err
}

// Tx starts a driver-level transaction whose statements are recorded.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		d.stats.TotalQueries.Add(1)
	} else {
		d.stats.TotalExecs.Add(1)
	}
	d.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		d.stats.Errors.Add(1)
	}

	d.mu.RLock()
	threshold := d.slowThreshold
	hook := d.slowHook
	d.mu.RUnlock()

	if duration > threshold {
		d.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, args, duration)
		}
	}
}

// statsQuerier records statements passing through a pooled execution target.
type statsQuerier struct {
	next   ExecQuerier
	driver *StatsDriver
}

func (s *statsQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := s.next.ExecContext(ctx, query, args...)
	s.driver.record(ctx, query, args, start, err, false)
	return res, err
}

func (s *statsQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.next.QueryContext(ctx, query, args...)
	s.driver.record(ctx, query, args, start, err, true)
	return rows, err
}

// StatsTx records statements executed on a driver-level transaction.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a row-returning statement within the transaction and
// records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	argv, _ := args.([]any)
	tx.driver.record(ctx, query, argv, start, err, true)
	return err
}

// Exec executes a statement within the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	argv, _ := args.([]any)
	tx.driver.record(ctx, query, argv, start, err, false)
	return err
}

// DebugDriver decorates a Driver with statement logging on the same two
// paths StatsDriver observes.
type DebugDriver struct {
	*Driver
	log func(context.Context, ...any)
}

// DebugOption configures a DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets a custom log function. The default logs through slog.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// NewDebugDriver decorates a Driver with statement logging.
//
// Example:
//
//	drv, _ := sql.Open("postgres", dsn)
//	debugDriver := sql.NewDebugDriver(drv, sql.DebugWithLog(func(ctx context.Context, v ...any) {
//	    log.Println(v...)
//	}))
//	pool := sql.NewPool(debugDriver, dialect.ByDialect(dialect.Postgres))
func NewDebugDriver(drv *Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(_ context.Context, v ...any) {
			slog.Info(fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InterceptExec wraps a pooled execution target so every command running
// through the pool is logged.
func (d *DebugDriver) InterceptExec(q ExecQuerier) ExecQuerier {
	return &debugQuerier{next: q, log: d.log}
}

// Query executes a row-returning statement and logs it.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log(ctx, fmt.Sprintf("query: %s args: %v", query, args))
	return d.Driver.Query(ctx, query, args, v)
}

// Exec executes a statement and logs it.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log(ctx, fmt.Sprintf("exec: %s args: %v", query, args))
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a driver-level transaction whose statements are logged.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.log(ctx, "begin transaction")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugTx{Tx: tx, log: d.log}, nil
}

// debugQuerier logs statements passing through a pooled execution target.
type debugQuerier struct {
	next ExecQuerier
	log  func(context.Context, ...any)
}

func (d *debugQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.log(ctx, fmt.Sprintf("exec: %s args: %v", query, args))
	return d.next.ExecContext(ctx, query, args...)
}

func (d *debugQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	d.log(ctx, fmt.Sprintf("query: %s args: %v", query, args))
	return d.next.QueryContext(ctx, query, args...)
}

// DebugTx logs statements executed on a driver-level transaction.
type DebugTx struct {
	dialect.Tx
	log func(context.Context, ...any)
}

// Query executes a row-returning statement within the transaction and
// logs it.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.log(ctx, fmt.Sprintf("tx query: %s args: %v", query, args))
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec executes a statement within the transaction and logs it.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.log(ctx, fmt.Sprintf("tx exec: %s args: %v", query, args))
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit commits the transaction and logs it.
func (tx *DebugTx) Commit() error {
	tx.log(context.Background(), "commit transaction")
	return tx.Tx.Commit()
}

// Rollback rolls back the transaction and logs it.
func (tx *DebugTx) Rollback() error {
	tx.log(context.Background(), "rollback transaction")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver  = (*StatsDriver)(nil)
	_ dialect.Tx      = (*StatsTx)(nil)
	_ dialect.Driver  = (*DebugDriver)(nil)
	_ dialect.Tx      = (*DebugTx)(nil)
	_ PoolDriver      = (*StatsDriver)(nil)
	_ PoolDriver      = (*DebugDriver)(nil)
	_ ExecInterceptor = (*StatsDriver)(nil)
	_ ExecInterceptor = (*DebugDriver)(nil)
)

// OpenWithStats opens a database handle already decorated with execution
// accounting.
//
// Example:
//
//	drv, stats, err := sql.OpenWithStats("postgres", dsn,
//	    sql.WithSlowThreshold(100*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pool := sql.NewPool(drv, dialect.ByDialect(dialect.Postgres))
//
//	go func() {
//	    for range time.Tick(time.Minute) {
//	        slog.Info("query stats", "stats", stats.Stats())
//	    }
//	}()
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, *QueryStats, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, nil, err
	}
	drv := NewDriver(driverName, Conn{db, driverName})
	statsDriver := NewStatsDriver(drv, opts...)
	return statsDriver, statsDriver.QueryStats(), nil
}
