package orabridge

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/go-orabridge/nca"
	"github.com/semihalev/go-orabridge/nca/ncafake"
)

func TestTemporaryClobRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestConn(t, ncafake.Options{ChunkSize: 4})

	lob, err := conn.CreateLob(ctx, nca.DBTypeClob)
	require.NoError(t, err)
	assert.True(t, lob.IsTemporary())
	assert.Equal(t, nca.DBTypeClob, lob.Type())

	n, err := lob.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	text := "Grüße aus Köln, 東京"
	written, err := lob.Write(ctx, 1, []byte(text))
	require.NoError(t, err)
	assert.Equal(t, ncafake.CharCount(text), written)
	assert.Equal(t, uint32(4), lob.ChunkSize())
	assert.Equal(t, uint32(4), lob.PieceSize())

	n, err = lob.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, ncafake.CharCount(text), n)

	units, data, err := lob.Read(ctx, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), units)
	assert.Equal(t, "aus", string(data))

	// Reads continue from the previous position.
	_, data, err = lob.Read(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, " ", string(data))

	_, _, err = lob.Read(ctx, 1, 0)
	require.NoError(t, err)
	all, err := io.ReadAll(lob.NewReader(ctx))
	require.NoError(t, err)
	assert.Equal(t, []rune(text)[4:], []rune(string(all)))

	require.NoError(t, lob.Close(ctx))
	require.NoError(t, lob.Close(ctx))
	_, _, err = lob.Read(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidLob)
}

func TestLobLengthWhileWriteActive(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestConn(t, ncafake.Options{LobDelay: 150 * time.Millisecond})

	lob, err := conn.CreateLob(ctx, nca.DBTypeBlob)
	require.NoError(t, err)
	n, err := lob.Length(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	done := make(chan error, 1)
	go func() {
		_, err := lob.Write(ctx, 1, []byte{1, 2, 3, 4})
		done <- err
	}()
	require.Eventually(t, lob.guard.Active, time.Second, time.Millisecond)

	// The cached length is not served while a write is running.
	_, err = lob.Length(ctx)
	assert.ErrorIs(t, err, ErrBusyLob)

	require.NoError(t, <-done)
	n, err = lob.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
	require.NoError(t, lob.Close(ctx))
}

func TestLobZeroByteWriteKeepsLength(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestConn(t, ncafake.Options{})

	lob, err := conn.CreateLob(ctx, nca.DBTypeBlob)
	require.NoError(t, err)
	defer lob.Close(ctx)

	_, err = lob.Write(ctx, 1, []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	n, err := lob.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), n)

	written, err := lob.Write(ctx, 3, nil)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.True(t, lob.lengthValid)

	n, err = lob.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestLobReadAllClosesLob(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestConn(t, ncafake.Options{ChunkSize: 3})

	lob, err := conn.CreateLob(ctx, nca.DBTypeBlob)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0xca, 0xfe}, 10)
	w := lob.NewWriter(ctx)
	_, err = w.Write(payload[:7])
	require.NoError(t, err)
	_, err = w.Write(payload[7:])
	require.NoError(t, err)

	require.NoError(t, lob.SetPieceSize(8))
	_, _, err = lob.Read(ctx, 1, 1)
	require.NoError(t, err)

	lob.offset = 1
	data, err := lob.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.True(t, lob.closed.Load())

	_, err = lob.Length(ctx)
	assert.ErrorIs(t, err, ErrInvalidLob)
}

func TestLobSetPieceSize(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestConn(t, ncafake.Options{})

	lob, err := conn.CreateLob(ctx, nca.DBTypeNClob)
	require.NoError(t, err)
	defer lob.Close(ctx)

	err = lob.SetPieceSize(0)
	require.Error(t, err)
	assert.True(t, IsError(err, ErrUsage))

	require.NoError(t, lob.guard.acquire())
	assert.ErrorIs(t, lob.SetPieceSize(16), ErrBusyLob)
	lob.guard.release()
	require.NoError(t, lob.SetPieceSize(16))
	assert.Equal(t, uint32(16), lob.PieceSize())
}

func TestCreateLobRejectsType(t *testing.T) {
	conn, _ := newTestConn(t, ncafake.Options{})
	_, err := conn.CreateLob(context.Background(), nca.DBTypeVarchar)
	require.Error(t, err)
	assert.True(t, IsError(err, ErrUsage))
}

func TestLobBusy(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestConn(t, ncafake.Options{LobDelay: 150 * time.Millisecond})

	lob, err := conn.CreateLob(ctx, nca.DBTypeClob)
	require.NoError(t, err)
	_, err = lob.Write(ctx, 1, []byte("some text"))
	require.NoError(t, err)
	require.False(t, lob.lengthValid)

	done := make(chan error, 1)
	go func() {
		_, _, err := lob.Read(ctx, 1, 4)
		done <- err
	}()
	require.Eventually(t, lob.guard.Active, time.Second, time.Millisecond)

	_, err = lob.Length(ctx)
	assert.ErrorIs(t, err, ErrBusyLob)
	_, _, err = lob.Read(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrBusyLob)
	assert.ErrorIs(t, conn.Ping(ctx), ErrBusyConnection)

	require.NoError(t, <-done)
	n, err := lob.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)
	require.NoError(t, lob.Close(ctx))
}

func TestLobReadInterrupted(t *testing.T) {
	conn, _ := newTestConn(t, ncafake.Options{LobDelay: 2 * time.Second})

	lob, err := conn.CreateLob(context.Background(), nca.DBTypeBlob)
	require.NoError(t, err)
	defer lob.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, err = lob.Read(ctx, 1, 10)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, nca.CodeUserCancelled, e.Code)
	assert.False(t, lob.guard.Active())
}

func TestLobColumns(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("select id, notes, photo from profiles", &ncafake.Script{
		Kind: nca.StmtQuery,
		Columns: []nca.ColumnInfo{
			{Name: "ID", DBType: nca.DBTypeNumber, Precision: 9},
			{Name: "NOTES", DBType: nca.DBTypeClob, Nullable: true},
			{Name: "PHOTO", DBType: nca.DBTypeBlob, Nullable: true},
		},
		Rows: [][]any{
			{1, strings.Repeat("note ", 3000), []byte{0x89, 'P', 'N', 'G'}},
			{2, nil, nil},
		},
	})

	res, err := conn.Execute(ctx, "select id, notes, photo from profiles", nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	notes, ok := res.Rows[0][1].(*Lob)
	require.True(t, ok, "got %T", res.Rows[0][1])
	photo, ok := res.Rows[0][2].(*Lob)
	require.True(t, ok, "got %T", res.Rows[0][2])
	assert.Nil(t, res.Rows[1][1])
	assert.False(t, notes.IsTemporary())

	text, err := notes.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("note ", 3000), string(text))

	img, err := photo.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img)

	res, err = conn.Execute(ctx, "select id, notes, photo from profiles", nil, &ExecuteOptions{
		FetchAsString: []nca.DBType{nca.DBTypeClob},
		FetchAsBuffer: []nca.DBType{nca.DBTypeBlob},
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("note ", 3000), res.Rows[0][1])
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, res.Rows[0][2])
	assert.Equal(t, []any{int64(2), nil, nil}, res.Rows[1])
}

func TestLobBinds(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	var seen map[string][]any
	fake.Script("insert into docs (id, body) values (:1, :2)", &ncafake.Script{
		Kind:         nca.StmtDML,
		RowsAffected: 1,
		OnExecute:    func(b map[string][]any) { seen = b },
	})

	lob, err := conn.CreateLob(ctx, nca.DBTypeClob)
	require.NoError(t, err)
	_, err = lob.Write(ctx, 1, []byte("body text"))
	require.NoError(t, err)

	_, err = conn.Execute(ctx, "insert into docs (id, body) values (:1, :2)", []any{1, lob}, nil)
	require.NoError(t, err)
	// The statement's reference is gone; the caller's remains.
	n, err := lob.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)
	require.NoError(t, lob.Close(ctx))

	// Strings bind to CLOB parameters as data.
	_, err = conn.Execute(ctx, "insert into docs (id, body) values (:1, :2)",
		[]any{2, BindSpec{Type: TypeClob, Val: "inline body"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"inline body"}, seen["2"])

	_, err = conn.Execute(ctx, "insert into docs (id, body) values (:1, :2)", []any{3, lob}, nil)
	assert.ErrorIs(t, err, ErrInvalidLob)
}

func TestLobOutBind(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("begin :1 := get_doc(); end;", &ncafake.Script{
		Kind: nca.StmtPLSQL,
		Out:  map[string]any{"1": "document body"},
	})

	res, err := conn.Execute(ctx, "begin :1 := get_doc(); end;", []any{BindSpec{Dir: BindOut, Type: TypeClob}}, nil)
	require.NoError(t, err)
	lob, ok := res.OutBinds[0].(*Lob)
	require.True(t, ok, "got %T", res.OutBinds[0])
	data, err := lob.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "document body", string(data))
}
