package orabridge

import (
	"context"
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/semihalev/go-orabridge/nca"
)

// Connection is a session on the database. At most one operation runs on
// a connection at a time; a second concurrent call fails with
// ErrBusyConnection instead of waiting.
type Connection struct {
	env    *Env
	id     HandleID
	guard  *busyGuard
	logger hclog.Logger
	closed int32
}

func newConnection(env *Env, id HandleID) *Connection {
	c := &Connection{
		env:    env,
		id:     id,
		guard:  newBusyGuard("connection", ErrBusyConnection),
		logger: env.logger.Named("connection"),
	}
	c.logger.Debug("connection opened")
	return c
}

// usable reports ErrInvalidConnection for closed connections.
func (c *Connection) usable() error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrInvalidConnection
	}
	return nil
}

// acquire takes the connection guard for an operation spanning several
// tasks.
func (c *Connection) acquire() error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.guard.acquire(); err != nil {
		c.env.metrics.BusyRejections.WithLabelValues(c.guard.object).Inc()
		return err
	}
	return nil
}

// handle resolves the native connection inside a blocking body.
func (c *Connection) handle(tc *TaskContext) (nca.Handle, error) {
	h, err := tc.Handle(c.id)
	if err != nil {
		return 0, ErrInvalidConnection
	}
	return h, nil
}

// interrupt is the Interrupt hook of tasks running SQL on c.
func (c *Connection) interrupt() {
	if err := c.Break(); err != nil {
		c.logger.Debug("break failed", "error", err)
	}
}

// Break asks the server to abort the call currently running on the
// connection. It does not take the connection guard and is best-effort.
func (c *Connection) Break() error {
	if err := c.usable(); err != nil {
		return err
	}
	h, err := c.env.arena.Get(c.id)
	if err != nil {
		return ErrInvalidConnection
	}
	return wrapf(c.env.adapter.Break(h), "break")
}

// simple runs a task that makes one native call on the connection handle.
func (c *Connection) simple(ctx context.Context, kind TaskKind, call func(ec nca.ErrorContext, h nca.Handle) error) error {
	if err := c.usable(); err != nil {
		return err
	}
	_, err := Run(ctx, c.env.sched, Task[struct{}]{
		Kind:   kind,
		Guards: []*busyGuard{c.guard},
		Blocking: func(tc *TaskContext) error {
			h, err := c.handle(tc)
			if err != nil {
				return err
			}
			return wrapf(call(tc.EC, h), "%s", kind)
		},
	})
	return err
}

// Commit commits the current transaction.
func (c *Connection) Commit(ctx context.Context) error {
	return c.simple(ctx, TaskCommit, c.env.adapter.Commit)
}

// Rollback rolls back the current transaction.
func (c *Connection) Rollback(ctx context.Context) error {
	return c.simple(ctx, TaskRollback, c.env.adapter.Rollback)
}

// Ping checks that the session is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.simple(ctx, TaskPing, c.env.adapter.Ping)
}

// ServerVersion returns the database version string.
func (c *Connection) ServerVersion(ctx context.Context) (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}
	var v string
	return Run(ctx, c.env.sched, Task[string]{
		Kind:   TaskPing,
		Guards: []*busyGuard{c.guard},
		Blocking: func(tc *TaskContext) error {
			h, err := c.handle(tc)
			if err != nil {
				return err
			}
			v, err = tc.Adapter().ServerVersion(tc.EC, h)
			return wrapf(err, "server version")
		},
		Complete: func(tc *TaskContext) (string, error) {
			return v, nil
		},
	})
}

// Close ends the session. Result sets and LOBs obtained from the
// connection become unusable.
func (c *Connection) Close(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.guard.release()
	_, err := Run(ctx, c.env.sched, Task[struct{}]{
		Kind: TaskDisconnect,
		Blocking: func(tc *TaskContext) error {
			if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
				return ErrInvalidConnection
			}
			return wrapf(c.env.arena.Release(tc.EC, c.id), "disconnect")
		},
	})
	if err == nil {
		c.logger.Debug("connection closed")
	}
	return err
}

// Describe returns the columns of a query without fetching rows. It runs
// synchronously on the calling goroutine with its own error context.
func (c *Connection) Describe(sql string) ([]ColumnMeta, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.guard.release()

	a := c.env.adapter
	ec, err := a.NewErrorContext()
	if err != nil {
		return nil, &Error{Type: ErrScheduling, Message: "error context: " + err.Error()}
	}
	defer a.FreeErrorContext(ec)

	conn, err := c.env.arena.Get(c.id)
	if err != nil {
		return nil, ErrInvalidConnection
	}
	stmt, err := a.Prepare(ec, conn, sql)
	if err != nil {
		return nil, wrapf(err, "prepare")
	}
	defer func() {
		if err := a.ReleaseStmt(ec, stmt); err != nil {
			c.logger.Warn("release statement failed", "error", err)
		}
	}()

	info, err := a.StmtInfo(ec, stmt)
	if err != nil {
		return nil, wrapf(err, "statement info")
	}
	if info.Kind != nca.StmtQuery {
		return nil, nil
	}
	if err := a.Execute(ec, stmt, 1, nca.ExecDescribeOnly); err != nil {
		return nil, wrapf(err, "describe")
	}
	cols, err := a.Columns(ec, stmt)
	if err != nil {
		return nil, wrapf(err, "columns")
	}
	ds, err := newDefineSet(a, cols, c.policy(nil))
	if err != nil {
		return nil, err
	}
	return ds.metas(), nil
}

// policy merges per-call fetch overrides over the configuration.
func (c *Connection) policy(opts *ExecuteOptions) fetchPolicy {
	cfg := c.env.cfg
	p := fetchPolicy{asString: cfg.FetchAsString, asBuffer: cfg.FetchAsBuffer}
	if opts == nil {
		return p
	}
	if opts.FetchAsString != nil {
		p.asString = opts.FetchAsString
	}
	if opts.FetchAsBuffer != nil {
		p.asBuffer = opts.FetchAsBuffer
	}
	p.byName = opts.FetchInfo
	return p
}

// adoptLob wraps a locator taken from a define or bind buffer.
func (c *Connection) adoptLob(h nca.Handle, dbType nca.DBType) *Lob {
	a := c.env.adapter
	id := c.env.arena.Add(h, func(ec nca.ErrorContext, h nca.Handle) error {
		return a.FreeSlot(ec, nca.NativeLob, h)
	})
	return newLob(c, id, dbType, false)
}

// adoptCursor wraps a nested cursor taken from a define or bind buffer.
// Define failures are reported by the first fetch so the cursor can still
// be closed.
func (c *Connection) adoptCursor(h nca.Handle, cols []nca.ColumnInfo, q queryOptions) *ResultSet {
	a := c.env.adapter
	id := c.env.arena.Add(h, func(ec nca.ErrorContext, h nca.Handle) error {
		return a.FreeSlot(ec, nca.NativeStmt, h)
	})
	ds, err := newDefineSet(a, cols, q.policy)
	rs := newResultSet(c, id, ds, q)
	rs.defineErr = err
	return rs
}
