package orabridge

import (
	"context"
	"database/sql/driver"
	"sync"
	"sync/atomic"
)

// tx implements database/sql/driver.Tx. Statements run inside it do not
// auto-commit.
type tx struct {
	conn     *driverConn
	finished atomic.Bool
	mu       sync.Mutex
}

func (tx *tx) Commit() error {
	return tx.finish(tx.conn.conn.Commit)
}

func (tx *tx) Rollback() error {
	return tx.finish(tx.conn.conn.Rollback)
}

func (tx *tx) finish(end func(context.Context) error) error {
	if tx.conn.closed.Load() {
		return driver.ErrBadConn
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished.Load() {
		return nil
	}
	tx.finished.Store(true)
	defer tx.conn.inTx.Store(false)
	return end(context.Background())
}
