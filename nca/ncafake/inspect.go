package ncafake

import (
	"unicode/utf8"

	"github.com/semihalev/go-orabridge/nca"
)

// Stats is a snapshot of the fake's resource accounting.
type Stats struct {
	// LiveAllocs is the number of Alloc results not yet freed.
	LiveAllocs int
	// Allocs is the total number of Alloc calls.
	Allocs int
	// DoubleFrees counts Free calls on unknown memory.
	DoubleFrees int
	// BadReleases counts releases of unknown or already released handles.
	BadReleases int
	// LiveStatements, LiveLobs and LiveObjects count open handles.
	LiveStatements int
	LiveLobs       int
	LiveObjects    int
	LiveConns      int
	// LiveErrorContexts counts error contexts not yet freed.
	LiveErrorContexts int
	// Violations counts native calls that overlapped on one connection.
	Violations int
	// MaxRunning is the peak number of concurrently running native calls.
	MaxRunning int
}

// Stats returns the current accounting.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		LiveAllocs:        len(a.allocs),
		Allocs:            a.allocCount,
		DoubleFrees:       a.doubleFrees,
		BadReleases:       a.badReleases,
		LiveStatements:    len(a.stmts),
		LiveLobs:          len(a.lobs),
		LiveObjects:       len(a.objects),
		LiveConns:         len(a.conns),
		LiveErrorContexts: a.errCtx,
		Violations:        a.violations,
		MaxRunning:        a.maxRunning,
	}
}

// Commits returns the number of commits issued on conn, including
// commit-on-success executions.
func (a *Adapter) Commits(conn nca.Handle) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[conn]; ok {
		return c.commits
	}
	return 0
}

// Rollbacks returns the number of rollbacks issued on conn.
func (a *Adapter) Rollbacks(conn nca.Handle) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[conn]; ok {
		return c.rolls
	}
	return 0
}

// LobContent returns a copy of the LOB data behind h.
func (a *Adapter) LobContent(h nca.Handle) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.lobs[h]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), l.data...), true
}

// CharCount is a helper for tests that size CLOB reads.
func CharCount(s string) uint64 {
	return uint64(utf8.RuneCountInString(s))
}
