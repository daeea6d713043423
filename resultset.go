package orabridge

import (
	"context"
	"sync/atomic"
)

// queryOptions are the per-query settings a ResultSet keeps.
type queryOptions struct {
	fetchArraySize uint32
	maxRows        uint32
	format         OutFormat
	policy         fetchPolicy
}

// ResultSet is an open query cursor. Rows are fetched on demand with
// GetRows; callers must Close it.
type ResultSet struct {
	conn  *Connection
	stmt  HandleID
	ds    *defineSet
	opts  queryOptions
	guard *busyGuard

	defineErr error
	exhausted bool
	closed    atomic.Bool
}

func newResultSet(c *Connection, stmt HandleID, ds *defineSet, q queryOptions) *ResultSet {
	return &ResultSet{
		conn:  c,
		stmt:  stmt,
		ds:    ds,
		opts:  q,
		guard: newBusyGuard("result_set", ErrBusyResultSet),
	}
}

// Columns returns the column metadata.
func (rs *ResultSet) Columns() []ColumnMeta {
	if rs.ds == nil {
		return nil
	}
	return rs.ds.metas()
}

// Format returns the row shape requested for the query.
func (rs *ResultSet) Format() OutFormat {
	return rs.opts.format
}

// GetRows fetches up to n rows in one round trip; n of 0 uses the fetch
// array size. A short or empty result means the cursor is exhausted.
func (rs *ResultSet) GetRows(ctx context.Context, n uint32) ([][]any, error) {
	return rs.getRows(ctx, n, []*busyGuard{rs.guard, rs.conn.guard})
}

// GetRowMaps is GetRows with rows keyed by column name.
func (rs *ResultSet) GetRowMaps(ctx context.Context, n uint32) ([]map[string]any, error) {
	rows, err := rs.GetRows(ctx, n)
	if err != nil {
		return nil, err
	}
	return rowMaps(rs.Columns(), rows), nil
}

// GetRow fetches a single row; it returns nil once the cursor is exhausted.
func (rs *ResultSet) GetRow(ctx context.Context) ([]any, error) {
	rows, err := rs.GetRows(ctx, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (rs *ResultSet) getRows(ctx context.Context, n uint32, guards []*busyGuard) ([][]any, error) {
	if rs.closed.Load() {
		return nil, ErrInvalidResultSet
	}
	// Completions write these fields; holding the guard orders the reads
	// after the last one and rejects a call while a fetch is running.
	if err := rs.guard.acquire(); err != nil {
		return nil, err
	}
	defineErr, exhausted := rs.defineErr, rs.exhausted
	rs.guard.release()
	if defineErr != nil {
		return nil, defineErr
	}
	if n == 0 {
		n = rs.opts.fetchArraySize
	}
	if exhausted {
		return [][]any{}, nil
	}
	var got uint32
	return Run(ctx, rs.conn.env.sched, Task[[][]any]{
		Kind:   TaskFetchRows,
		Guards: guards,
		Blocking: func(tc *TaskContext) error {
			conn, err := rs.conn.handle(tc)
			if err != nil {
				return err
			}
			stmt, err := tc.Handle(rs.stmt)
			if err != nil {
				return ErrInvalidResultSet
			}
			got, err = rs.ds.fetch(tc, conn, stmt, n)
			return err
		},
		Complete: func(tc *TaskContext) ([][]any, error) {
			if got < n {
				rs.exhausted = true
			}
			return rs.materialize(got)
		},
		Interrupt: rs.conn.interrupt,
	})
}

// Close releases the cursor and its define buffers. Closing a closed
// ResultSet is a no-op.
func (rs *ResultSet) Close(ctx context.Context) error {
	return rs.close(ctx, []*busyGuard{rs.guard, rs.conn.guard})
}

func (rs *ResultSet) close(ctx context.Context, guards []*busyGuard) error {
	if rs.closed.Load() {
		return nil
	}
	_, err := Run(ctx, rs.conn.env.sched, Task[struct{}]{
		Kind:   TaskCloseResultSet,
		Guards: guards,
		Blocking: func(tc *TaskContext) error {
			if !rs.closed.CompareAndSwap(false, true) {
				return nil
			}
			if rs.ds != nil {
				rs.ds.release(tc.EC)
			}
			return wrapf(tc.env.arena.Release(tc.EC, rs.stmt), "release cursor")
		},
	})
	return err
}

// fetchAll drains the cursor in fetch-array-sized round trips, honoring
// maxRows, and closes it. The caller holds the connection guard.
func (rs *ResultSet) fetchAll(ctx context.Context) (rows [][]any, err error) {
	defer func() {
		if cerr := rs.close(context.WithoutCancel(ctx), []*busyGuard{rs.guard}); err == nil {
			err = cerr
		}
	}()
	for {
		n := rs.opts.fetchArraySize
		if max := rs.opts.maxRows; max > 0 {
			left := max - uint32(len(rows))
			if left == 0 {
				return rows, nil
			}
			n = min(n, left)
		}
		batch, err := rs.getRows(ctx, n, []*busyGuard{rs.guard})
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if uint32(len(batch)) < n {
			return rows, nil
		}
	}
}
