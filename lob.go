package orabridge

import (
	"context"
	"io"
	"sync/atomic"
	"unicode/utf8"

	"github.com/semihalev/go-orabridge/nca"
)

// Lob streams a CLOB, NCLOB, BLOB or BFILE value. Offsets are 1-based and
// count characters for CLOB and NCLOB, bytes otherwise. One operation may
// run on a Lob at a time; concurrent calls fail with ErrBusyLob.
type Lob struct {
	conn   *Connection
	id     HandleID
	dbType nca.DBType
	temp   bool
	guard  *busyGuard

	chunkSize   uint32
	length      uint64
	lengthValid bool
	pieceSize   uint32
	// offset is the 1-based position of the next implicit read or write.
	offset    uint64
	autoClose bool

	// scratch is adapter memory of pieceSize units, allocated on first use.
	scratch []byte
	closed  atomic.Bool
}

func newLob(c *Connection, id HandleID, dbType nca.DBType, temp bool) *Lob {
	return &Lob{
		conn:      c,
		id:        id,
		dbType:    dbType,
		temp:      temp,
		guard:     newBusyGuard("lob", ErrBusyLob),
		pieceSize: c.env.cfg.LobPieceSize,
		offset:    1,
	}
}

// Type returns the database type.
func (l *Lob) Type() nca.DBType { return l.dbType }

// IsTemporary reports whether the LOB was created with CreateLob.
func (l *Lob) IsTemporary() bool { return l.temp }

func (l *Lob) character() bool {
	return l.dbType == nca.DBTypeClob || l.dbType == nca.DBTypeNClob
}

// scratchBytes is the scratch size for a piece of n units. Character LOBs
// reserve four bytes per character.
func (l *Lob) scratchBytes(n uint32) int {
	if l.character() {
		return int(n) * 4
	}
	return int(n)
}

// PieceSize returns the units moved per round trip; 0 until the chunk size
// is known, unless set explicitly.
func (l *Lob) PieceSize() uint32 {
	return l.pieceSize
}

// SetPieceSize changes the piece size. It fails with ErrBusyLob while an
// operation is running.
func (l *Lob) SetPieceSize(n uint32) error {
	if n == 0 {
		return usageError(5, "invalid value for parameter %s", "pieceSize")
	}
	if err := l.guard.acquire(); err != nil {
		return err
	}
	defer l.guard.release()
	if l.pieceSize != n && l.scratch != nil {
		// Reallocated at the next transfer.
		l.conn.env.adapter.Free(l.scratch)
		l.scratch = nil
	}
	l.pieceSize = n
	return nil
}

// ChunkSize returns the cached chunk size, or 0 before the first transfer.
func (l *Lob) ChunkSize() uint32 {
	return l.chunkSize
}

func (l *Lob) usable() error {
	if l.closed.Load() {
		return ErrInvalidLob
	}
	return l.conn.usable()
}

func (l *Lob) guards() []*busyGuard {
	return []*busyGuard{l.guard, l.conn.guard}
}

// handles resolves the connection and locator in a blocking body.
func (l *Lob) handles(tc *TaskContext) (conn, lob nca.Handle, err error) {
	conn, err = l.conn.handle(tc)
	if err != nil {
		return 0, 0, err
	}
	lob, err = tc.Handle(l.id)
	if err != nil {
		return 0, 0, ErrInvalidLob
	}
	return conn, lob, nil
}

// prepareScratch loads the chunk size and allocates the scratch buffer.
func (l *Lob) prepareScratch(tc *TaskContext, conn, lob nca.Handle) error {
	if l.chunkSize == 0 {
		cs, err := tc.Adapter().LobChunkSize(tc.EC, conn, lob)
		if err != nil {
			return wrapf(err, "LOB chunk size")
		}
		l.chunkSize = cs
	}
	if l.pieceSize == 0 {
		l.pieceSize = l.chunkSize
	}
	if l.scratch == nil {
		b, err := tc.Adapter().Alloc(l.scratchBytes(l.pieceSize))
		if err != nil {
			return usageError(24, "memory allocation failed")
		}
		l.scratch = b
	}
	return nil
}

// Length returns the length in characters or bytes.
func (l *Lob) Length(ctx context.Context) (uint64, error) {
	if err := l.usable(); err != nil {
		return 0, err
	}
	if err := l.guard.acquire(); err != nil {
		return 0, err
	}
	length, valid := l.length, l.lengthValid
	l.guard.release()
	if valid {
		return length, nil
	}
	return Run(ctx, l.conn.env.sched, Task[uint64]{
		Kind:   TaskLobLength,
		Guards: l.guards(),
		Blocking: func(tc *TaskContext) error {
			conn, lob, err := l.handles(tc)
			if err != nil {
				return err
			}
			n, err := tc.Adapter().LobLength(tc.EC, conn, lob)
			if err != nil {
				return wrapf(err, "LOB length")
			}
			l.length, l.lengthValid = n, true
			return nil
		},
		Complete: func(tc *TaskContext) (uint64, error) {
			return l.length, nil
		},
	})
}

// Read reads up to amount units starting at offset. An offset of 0
// continues from the end of the previous read or write; an amount of 0, or
// one larger than the piece size, reads one piece. It returns the units
// read, which is 0 at the end of the LOB.
func (l *Lob) Read(ctx context.Context, offset, amount uint64) (uint64, []byte, error) {
	if err := l.usable(); err != nil {
		return 0, nil, err
	}
	var units uint64
	var nbytes int
	return runLob(ctx, l, Task[[]byte]{
		Kind:   TaskLobRead,
		Guards: l.guards(),
		Blocking: func(tc *TaskContext) error {
			conn, lob, err := l.handles(tc)
			if err != nil {
				return err
			}
			if err := l.prepareScratch(tc, conn, lob); err != nil {
				return err
			}
			if offset == 0 {
				offset = l.offset
			}
			if amount == 0 || amount > uint64(l.pieceSize) {
				amount = uint64(l.pieceSize)
			}
			units, nbytes, err = tc.Adapter().LobRead(tc.EC, conn, lob, offset, amount, l.scratch)
			if err != nil {
				return wrapf(err, "LOB read")
			}
			if units == 0 && l.autoClose {
				return l.closeNative(tc)
			}
			return nil
		},
		Complete: func(tc *TaskContext) ([]byte, error) {
			data := []byte{}
			if nbytes > 0 && !l.closed.Load() {
				data = append(data, l.scratch[:nbytes]...)
			}
			l.offset = offset + units
			l.conn.env.metrics.LobBytes.WithLabelValues("read").Add(float64(nbytes))
			return data, nil
		},
		Interrupt: l.conn.interrupt,
	}, func(data []byte) (uint64, []byte) { return units, data })
}

// runLob runs a LOB task and closes an auto-close LOB that failed.
func runLob[T any](ctx context.Context, l *Lob, task Task[T], result func(T) (uint64, T)) (uint64, T, error) {
	res, err := Run(ctx, l.conn.env.sched, task)
	if err != nil {
		if l.autoClose {
			if cerr := l.Close(context.WithoutCancel(ctx)); cerr != nil {
				l.conn.logger.Debug("auto-close after failure", "error", cerr)
			}
		}
		var zero T
		return 0, zero, err
	}
	n, v := result(res)
	return n, v, nil
}

// Write writes data starting at offset, or at the current position when
// offset is 0, in piece-sized round trips within one task. It returns the
// units written.
func (l *Lob) Write(ctx context.Context, offset uint64, data []byte) (uint64, error) {
	if err := l.usable(); err != nil {
		return 0, err
	}
	var written uint64
	_, err := Run(ctx, l.conn.env.sched, Task[struct{}]{
		Kind:   TaskLobWrite,
		Guards: l.guards(),
		Blocking: func(tc *TaskContext) error {
			conn, lob, err := l.handles(tc)
			if err != nil {
				return err
			}
			if err := l.prepareScratch(tc, conn, lob); err != nil {
				return err
			}
			if offset == 0 {
				offset = l.offset
			}
			rest := data
			for len(rest) > 0 {
				piece := l.nextPiece(rest)
				n := copy(l.scratch, piece)
				units, err := tc.Adapter().LobWrite(tc.EC, conn, lob, offset+written, l.scratch[:n])
				if err != nil {
					return wrapf(err, "LOB write")
				}
				written += units
				rest = rest[n:]
			}
			return nil
		},
		Complete: func(tc *TaskContext) (struct{}, error) {
			l.offset = offset + written
			if written > 0 {
				l.lengthValid = false
			}
			l.conn.env.metrics.LobBytes.WithLabelValues("write").Add(float64(len(data)))
			return struct{}{}, nil
		},
		Interrupt: l.conn.interrupt,
	})
	return written, err
}

// nextPiece returns the prefix of data that fits one piece, cut on a
// character boundary for character LOBs.
func (l *Lob) nextPiece(data []byte) []byte {
	if !l.character() {
		return data[:min(len(data), len(l.scratch))]
	}
	n, chars := 0, uint32(0)
	for n < len(data) && chars < l.pieceSize {
		_, size := utf8.DecodeRune(data[n:])
		if n+size > len(l.scratch) {
			break
		}
		n += size
		chars++
	}
	return data[:n]
}

// ReadAll reads the whole LOB from the current position and closes it.
func (l *Lob) ReadAll(ctx context.Context) ([]byte, error) {
	l.autoClose = true
	var out []byte
	for {
		n, data, err := l.Read(ctx, 0, 0)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, data...)
	}
}

// Close frees the locator, and the LOB itself for temporary LOBs.
// Closing a closed LOB is a no-op.
func (l *Lob) Close(ctx context.Context) error {
	if l.closed.Load() {
		return nil
	}
	_, err := Run(ctx, l.conn.env.sched, Task[struct{}]{
		Kind:   TaskLobClose,
		Guards: l.guards(),
		Blocking: func(tc *TaskContext) error {
			return l.closeNative(tc)
		},
	})
	return err
}

func (l *Lob) closeNative(tc *TaskContext) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.scratch != nil {
		tc.Adapter().Free(l.scratch)
		l.scratch = nil
	}
	return wrapf(tc.env.arena.Release(tc.EC, l.id), "free LOB")
}

// NewReader returns an io.Reader over the LOB from the current position.
func (l *Lob) NewReader(ctx context.Context) io.Reader {
	return &lobReader{ctx: ctx, lob: l}
}

type lobReader struct {
	ctx  context.Context
	lob  *Lob
	rest []byte
	eof  bool
}

func (r *lobReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		n, data, err := r.lob.Read(r.ctx, 0, 0)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			r.eof = true
			continue
		}
		r.rest = data
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

// NewWriter returns an io.Writer appending at the current position.
func (l *Lob) NewWriter(ctx context.Context) io.Writer {
	return &lobWriter{ctx: ctx, lob: l}
}

type lobWriter struct {
	ctx context.Context
	lob *Lob
}

func (w *lobWriter) Write(p []byte) (int, error) {
	if _, err := w.lob.Write(w.ctx, 0, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CreateLob creates a temporary CLOB, NCLOB or BLOB.
func (c *Connection) CreateLob(ctx context.Context, dbType nca.DBType) (*Lob, error) {
	if dbType != nca.DBTypeClob && dbType != nca.DBTypeNClob && dbType != nca.DBTypeBlob {
		return nil, usageError(5, "invalid value for parameter %s", "type")
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	var id HandleID
	return Run(ctx, c.env.sched, Task[*Lob]{
		Kind:   TaskLobCreate,
		Guards: []*busyGuard{c.guard},
		Blocking: func(tc *TaskContext) error {
			conn, err := c.handle(tc)
			if err != nil {
				return err
			}
			a := tc.Adapter()
			h, err := a.LobCreateTemp(tc.EC, conn, dbType)
			if err != nil {
				return wrapf(err, "create temporary LOB")
			}
			id = tc.env.arena.Add(h, func(ec nca.ErrorContext, h nca.Handle) error {
				return a.LobFree(ec, conn, h, true)
			})
			return nil
		},
		Complete: func(tc *TaskContext) (*Lob, error) {
			l := newLob(c, id, dbType, true)
			l.length, l.lengthValid = 0, true
			return l, nil
		},
	})
}

// readLobContent reads a whole LOB inside a blocking body.
func readLobContent(tc *TaskContext, conn, lob nca.Handle, dbType nca.DBType) ([]byte, error) {
	a := tc.Adapter()
	length, err := a.LobLength(tc.EC, conn, lob)
	if err != nil {
		return nil, wrapf(err, "LOB length")
	}
	if length == 0 {
		return []byte{}, nil
	}
	chunk, err := a.LobChunkSize(tc.EC, conn, lob)
	if err != nil {
		return nil, wrapf(err, "LOB chunk size")
	}
	size := int(chunk)
	if dbType == nca.DBTypeClob || dbType == nca.DBTypeNClob {
		size *= 4
	}
	scratch, err := a.Alloc(size)
	if err != nil {
		return nil, usageError(24, "memory allocation failed")
	}
	defer a.Free(scratch)

	out := make([]byte, 0, length)
	for offset := uint64(1); offset <= length; {
		units, n, err := a.LobRead(tc.EC, conn, lob, offset, uint64(chunk), scratch)
		if err != nil {
			return nil, wrapf(err, "LOB read")
		}
		if units == 0 {
			break
		}
		out = append(out, scratch[:n]...)
		offset += units
	}
	tc.env.metrics.LobBytes.WithLabelValues("read").Add(float64(len(out)))
	return out, nil
}
