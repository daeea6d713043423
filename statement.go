package orabridge

import (
	"context"
	"database/sql/driver"
	"sync/atomic"
)

// Statement implements database/sql/driver.Stmt. The SQL is parsed by the
// server on each execution; Oracle's statement cache makes repeat parses
// cheap.
type Statement struct {
	conn   *driverConn
	query  string
	closed int32
}

var (
	_ driver.StmtExecContext   = (*Statement)(nil)
	_ driver.StmtQueryContext  = (*Statement)(nil)
	_ driver.NamedValueChecker = (*Statement)(nil)
)

func newStatement(c *driverConn, query string) *Statement {
	return &Statement{conn: c, query: query}
}

// Close marks the statement closed.
func (s *Statement) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	return nil
}

// NumInput returns -1; placeholders are counted by the server.
func (s *Statement) NumInput() int {
	return -1
}

// Exec is the legacy form of ExecContext.
func (s *Statement) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query is the legacy form of QueryContext.
func (s *Statement) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// ExecContext executes the statement.
func (s *Statement) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if atomic.LoadInt32(&s.closed) != 0 {
		return nil, driver.ErrBadConn
	}
	return s.conn.ExecContext(ctx, s.query, args)
}

// QueryContext executes the statement as a query.
func (s *Statement) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if atomic.LoadInt32(&s.closed) != 0 {
		return nil, driver.ErrBadConn
	}
	return s.conn.QueryContext(ctx, s.query, args)
}

// CheckNamedValue defers to the connection.
func (s *Statement) CheckNamedValue(nv *driver.NamedValue) error {
	return s.conn.CheckNamedValue(nv)
}

func namedValues(args []driver.Value) []driver.NamedValue {
	nv := make([]driver.NamedValue, len(args))
	for i, v := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return nv
}
