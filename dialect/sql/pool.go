package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/syssam/queryx"
	"github.com/syssam/queryx/dialect"
)

// PoolDriver is the driver surface a pool executes through: the physical
// database handle for connection checkout, the dialect name, and the
// dialect-level operations schema introspection uses. Decorated drivers
// such as StatsDriver and DebugDriver satisfy it.
type PoolDriver interface {
	dialect.Driver
	DB() *sql.DB
}

// ExecInterceptor is implemented by drivers that observe pooled command
// execution. When the pool's driver implements it, every command's
// execution target is wrapped before the command runs.
type ExecInterceptor interface {
	InterceptExec(ExecQuerier) ExecQuerier
}

// Pool manages one-or-many live connections over a Driver, the
// per-connection transaction stacks and open-command lists, and owns the
// schema cache. Every structural mutation happens under one coarse mutex;
// builders themselves are not thread-safe, only the pool and the schema
// cache are shared state.
type Pool struct {
	mu       sync.Mutex
	drv      PoolDriver
	caps     dialect.Capabilities
	schema   *Resolver
	conns    map[*PoolConn]*connState
	single   *PoolConn
	sem      *semaphore.Weighted
	disposed bool
}

type connState struct {
	txs  []*PoolTx
	cmds []*Command
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithTypeSchemaProvider attaches the external type-schema provider the
// resolver merges with database introspection.
func WithTypeSchemaProvider(p TypeSchemaProvider) PoolOption {
	return func(pool *Pool) {
		pool.schema.provider = p
	}
}

// WithMaxConns caps the number of concurrently open connections in
// multi-connection mode. Open blocks until a slot frees.
func WithMaxConns(n int64) PoolOption {
	return func(pool *Pool) {
		pool.sem = semaphore.NewWeighted(n)
	}
}

// NewPool creates a pool over the given driver with the capability set
// supplied at construction time.
func NewPool(drv PoolDriver, caps dialect.Capabilities, opts ...PoolOption) *Pool {
	p := &Pool{
		drv:   drv,
		caps:  caps,
		conns: make(map[*PoolConn]*connState),
	}
	p.schema = newResolver(&p.mu, drv, caps, nil)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schema returns the pool-owned schema resolver.
func (p *Pool) Schema() *Resolver { return p.schema }

// Capabilities returns the capability set the pool was built with.
func (p *Pool) Capabilities() dialect.Capabilities { return p.caps }

// Select returns a SELECT builder wired to the pool's dialect, capability
// set and schema resolver.
func (p *Pool) Select() *SelectBuilder {
	s := Select(p.drv.Dialect(), p.caps)
	s.resolver = p.schema
	return s
}

// Insert returns an INSERT builder wired to the pool.
func (p *Pool) Insert(table string) *InsertBuilder {
	i := Insert(p.drv.Dialect(), p.caps, table)
	i.resolver = p.schema
	return i
}

// Update returns an UPDATE builder wired to the pool.
func (p *Pool) Update(table string) *UpdateBuilder {
	u := Update(p.drv.Dialect(), p.caps, table)
	u.resolver = p.schema
	return u
}

// Delete returns a DELETE builder wired to the pool.
func (p *Pool) Delete(table string) *DeleteBuilder {
	d := Delete(p.drv.Dialect(), p.caps, table)
	d.resolver = p.schema
	return d
}

// Open returns a live pooled connection. In multi-connection mode every
// call opens a fresh dedicated connection; in single-connection mode the
// one pooled connection is opened lazily and reused.
func (p *Pool) Open(ctx context.Context) (*PoolConn, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, queryx.NewLifecycleError("pool", "open")
	}
	if p.caps.SingleConnection && p.single != nil {
		c := p.single
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	if p.sem != nil && !p.caps.SingleConnection {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("dialect/sql: acquire connection slot: %w", err)
		}
	}
	conn, err := p.drv.DB().Conn(ctx)
	if err != nil {
		if p.sem != nil && !p.caps.SingleConnection {
			p.sem.Release(1)
		}
		return nil, fmt.Errorf("dialect/sql: open connection: %w", err)
	}
	return p.register(&PoolConn{pool: p, conn: conn})
}

// register adds a freshly opened connection to the pool. The pool may have
// been disposed while the connection was being opened unlocked; a disposed
// pool closes the connection instead of leaking it.
func (p *Pool) register(c *PoolConn) (*PoolConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		_ = c.conn.Close()
		if p.sem != nil && !p.caps.SingleConnection {
			p.sem.Release(1)
		}
		return nil, queryx.NewLifecycleError("pool", "open")
	}
	if p.caps.SingleConnection {
		if p.single != nil {
			// Lost the race; keep the first pooled connection.
			_ = c.conn.Close()
			return p.single, nil
		}
		p.single = c
	}
	p.conns[c] = &connState{}
	return c, nil
}

// Close tears one connection down. In multi-connection mode it disposes all
// open commands, rolls back remaining transactions LIFO, closes the
// physical connection and removes it from the pool; in single-connection
// mode it is a no-op (the connection persists until the pool is disposed).
func (p *Pool) Close(c *PoolConn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.caps.SingleConnection {
		return nil
	}
	return p.teardownLocked(c)
}

// teardownLocked unwinds and closes one connection. Commands are disposed
// first so no command outlives its connection.
func (p *Pool) teardownLocked(c *PoolConn) error {
	state, ok := p.conns[c]
	if !ok {
		return nil
	}
	for _, cmd := range state.cmds {
		cmd.closed = true
	}
	state.cmds = nil
	var err error
	for i := len(state.txs) - 1; i >= 0; i-- {
		if e := state.txs[i].rollbackLocked(context.Background()); e != nil && err == nil {
			err = e
		}
	}
	state.txs = nil
	if e := c.conn.Close(); e != nil && err == nil {
		err = e
	}
	delete(p.conns, c)
	c.removed = true
	if p.sem != nil && !p.caps.SingleConnection {
		p.sem.Release(1)
	}
	return err
}

// Dispose unwinds and closes every pooled connection, then clears the
// schema cache. The pool is unusable afterwards.
func (p *Pool) Dispose() error {
	p.mu.Lock()
	var err error
	for c := range p.conns {
		if e := p.teardownLocked(c); e != nil && err == nil {
			err = e
		}
	}
	p.single = nil
	p.disposed = true
	p.mu.Unlock()
	p.schema.Clear()
	return err
}

// PoolConn is one pooled logical connection.
type PoolConn struct {
	pool    *Pool
	conn    *sql.Conn
	removed bool
}

// state returns the registered state, or a lifecycle error when the
// connection was removed from the pool.
func (c *PoolConn) stateLocked(op string) (*connState, error) {
	state, ok := c.pool.conns[c]
	if !ok || c.removed {
		return nil, queryx.NewLifecycleError("connection", op)
	}
	return state, nil
}

// Begin pushes a new transaction onto this connection's stack. The first
// push starts a driver-level transaction; deeper pushes create savepoint
// levels. In single-transaction mode a concurrent second begin returns a
// deferred no-op handle so exactly one driver-level transaction stays live.
func (c *PoolConn) Begin(ctx context.Context, opts *TxOptions) (*PoolTx, error) {
	p := c.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := c.stateLocked("begin transaction")
	if err != nil {
		return nil, err
	}
	depth := len(state.txs)
	switch {
	case depth == 0:
		tx, err := c.conn.BeginTx(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: begin: %w", err)
		}
		t := &PoolTx{conn: c, tx: tx}
		state.txs = append(state.txs, t)
		return t, nil
	case p.caps.SingleTransaction:
		t := &PoolTx{conn: c, noop: true}
		state.txs = append(state.txs, t)
		return t, nil
	default:
		root := state.txs[0].tx
		name := fmt.Sprintf("qx_sp_%d", depth)
		if _, err := root.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return nil, fmt.Errorf("dialect/sql: savepoint: %w", err)
		}
		t := &PoolTx{conn: c, tx: root, savepoint: name}
		state.txs = append(state.txs, t)
		return t, nil
	}
}

// target returns the execution target: the top live transaction if any,
// else the bare connection.
func (c *PoolConn) target() ExecQuerier {
	p := c.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.conns[c]
	if ok {
		for i := len(state.txs) - 1; i >= 0; i-- {
			if !state.txs[i].noop && !state.txs[i].done {
				return state.txs[i].tx
			}
		}
	}
	return c.conn
}

// Statement is the builder contract the command layer consumes.
type Statement interface {
	Render() (string, error)
	Fill() (string, []any, error)
	Parameters() []*Parameter
}

// Command prepares a tracked command from a filled statement. Creating a
// command on a removed connection is a fatal lifecycle error.
func (c *PoolConn) Command(stmt Statement) (*Command, error) {
	query, args, err := stmt.Fill()
	if err != nil {
		return nil, err
	}
	dump := queryx.CommandDump{SQL: query}
	for _, p := range stmt.Parameters() {
		dump.Params = append(dump.Params, p.dump())
	}
	p := c.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := c.stateLocked("create command")
	if err != nil {
		return nil, err
	}
	cmd := &Command{conn: c, query: query, args: args, dump: dump}
	state.cmds = append(state.cmds, cmd)
	return cmd, nil
}

// PoolTx is one entry of a connection's transaction stack. Entries pop in
// strict LIFO order; disposing an uncommitted handle rolls back exactly once.
type PoolTx struct {
	conn      *PoolConn
	tx        *sql.Tx
	savepoint string
	noop      bool
	done      bool
}

// Commit pops this transaction off the stack and commits it (or releases
// its savepoint level).
func (t *PoolTx) Commit(ctx context.Context) error {
	return t.pop(ctx, true)
}

// Rollback pops this transaction off the stack and rolls it back.
func (t *PoolTx) Rollback(ctx context.Context) error {
	return t.pop(ctx, false)
}

// Close disposes the handle; if it was never committed, it rolls back.
func (t *PoolTx) Close(ctx context.Context) error {
	if t.done {
		return nil
	}
	return t.Rollback(ctx)
}

func (t *PoolTx) pop(ctx context.Context, commit bool) error {
	p := t.conn.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.done {
		return queryx.NewLifecycleError("transaction", "pop")
	}
	state, err := t.conn.stateLocked("pop transaction")
	if err != nil {
		return err
	}
	if len(state.txs) == 0 || state.txs[len(state.txs)-1] != t {
		return queryx.NewLifecycleError("transaction", "pop out of order")
	}
	state.txs = state.txs[:len(state.txs)-1]
	if commit {
		return t.commitLocked(ctx)
	}
	return t.rollbackLocked(ctx)
}

func (t *PoolTx) commitLocked(ctx context.Context) error {
	t.done = true
	switch {
	case t.noop:
		return nil
	case t.savepoint != "":
		_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.savepoint)
		return err
	default:
		return t.tx.Commit()
	}
}

func (t *PoolTx) rollbackLocked(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	switch {
	case t.noop:
		return nil
	case t.savepoint != "":
		_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.savepoint)
		return err
	default:
		return t.tx.Rollback()
	}
}

// Command is one tracked statement bound to a pooled connection.
type Command struct {
	conn    *PoolConn
	query   string
	args    []any
	dump    queryx.CommandDump
	timeout time.Duration
	closed  bool
}

// SQL returns the filled statement text.
func (c *Command) SQL() string { return c.query }

// Args returns the bound argument list.
func (c *Command) Args() []any { return c.args }

// Dump returns the reproducible command dump.
func (c *Command) Dump() queryx.CommandDump { return c.dump }

// SetTimeout passes a per-command timeout through to the driver context.
func (c *Command) SetTimeout(d time.Duration) { c.timeout = d }

func (c *Command) ready(op string) (ExecQuerier, error) {
	if c.closed {
		return nil, queryx.NewLifecycleError("command", op)
	}
	if c.conn.pool.caps.DumpCommands {
		slog.Debug("executing command", "sql", c.query, "args", c.args)
	}
	target := c.conn.target()
	if ic, ok := c.conn.pool.drv.(ExecInterceptor); ok {
		target = ic.InterceptExec(target)
	}
	return target, nil
}

func (c *Command) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

// Exec runs the command as a non-query statement. Execution errors carry
// the full command dump.
func (c *Command) Exec(ctx context.Context) (Result, error) {
	target, err := c.ready("exec")
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	res, err := target.ExecContext(ctx, c.query, c.args...)
	if err != nil {
		return nil, queryx.NewExecError(c.dump, err)
	}
	return res, nil
}

// Query runs the command and returns the live rows.
func (c *Command) Query(ctx context.Context) (*Rows, error) {
	target, err := c.ready("query")
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	rows, err := target.QueryContext(ctx, c.query, c.args...)
	if err != nil {
		return nil, queryx.NewExecError(c.dump, err)
	}
	return &Rows{rows}, nil
}

// QueryBuffered runs the command and materializes the result into a
// random-access buffered cursor.
func (c *Command) QueryBuffered(ctx context.Context, opts ...BufferOption) (*BufferedRows, error) {
	rows, err := c.Query(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return BufferRows(rows, opts...)
}

// Close removes the command from its connection's open-command list.
func (c *Command) Close() error {
	p := c.conn.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if state, ok := p.conns[c.conn]; ok {
		for i, cmd := range state.cmds {
			if cmd == c {
				state.cmds = append(state.cmds[:i], state.cmds[i+1:]...)
				break
			}
		}
	}
	return nil
}
