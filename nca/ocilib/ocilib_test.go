package ocilib

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/go-orabridge/nca"
)

func openOrSkip(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(os.Getenv("ORABRIDGE_OCI_LIB"))
	if err != nil {
		t.Skipf("Oracle client library not available: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestExternalType(t *testing.T) {
	cases := []struct {
		native nca.NativeType
		dbType nca.DBType
		want   uint16
	}{
		{nca.NativeBytes, nca.DBTypeVarchar, sqltChr},
		{nca.NativeBytes, nca.DBTypeRaw, sqltBin},
		{nca.NativeBytes, nca.DBTypeRowid, sqltChr},
		{nca.NativeInt64, nca.DBTypeNumber, sqltInt},
		{nca.NativeFloat64, nca.DBTypeNumber, sqltBDouble},
		{nca.NativeTimestamp, nca.DBTypeDate, sqltTSTZ},
		{nca.NativeLob, nca.DBTypeBlob, sqltBlob},
		{nca.NativeLob, nca.DBTypeNClob, sqltClob},
		{nca.NativeStmt, nca.DBTypeStmt, sqltRset},
	}
	for _, c := range cases {
		got, err := externalType(c.native, c.dbType)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%d/%s", c.native, c.dbType)
	}

	_, err := externalType(nca.NativeObject, nca.DBTypeObject)
	assert.ErrorIs(t, err, nca.ErrNotSupported)
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, nca.DBTypeVarchar, columnType(1, csImplicit))
	assert.Equal(t, nca.DBTypeNVarchar, columnType(1, csNChar))
	assert.Equal(t, nca.DBTypeNClob, columnType(112, csNChar))
	assert.Equal(t, nca.DBTypeTimestampTZ, columnType(181, csImplicit))
	assert.Equal(t, nca.DBTypeNone, columnType(999, csImplicit))
}

func TestStmtKind(t *testing.T) {
	assert.Equal(t, nca.StmtQuery, stmtKind(1))
	assert.Equal(t, nca.StmtDML, stmtKind(16))
	assert.Equal(t, nca.StmtPLSQL, stmtKind(8))
	assert.Equal(t, nca.StmtDDL, stmtKind(5))
}

func TestCallbackStatus(t *testing.T) {
	assert.Equal(t, int32(ociContinue), int32(uint32(status(ociContinue))))
}

func TestConnect(t *testing.T) {
	a := openOrSkip(t)
	dsn := os.Getenv("ORABRIDGE_TEST_CONNECT")
	if dsn == "" {
		t.Skip("ORABRIDGE_TEST_CONNECT not set")
	}
	ec, err := a.NewErrorContext()
	require.NoError(t, err)
	defer a.FreeErrorContext(ec)

	conn, err := a.Connect(ec, nca.ConnectParams{
		Username:      os.Getenv("ORABRIDGE_TEST_USER"),
		Password:      os.Getenv("ORABRIDGE_TEST_PASSWORD"),
		ConnectString: dsn,
	})
	require.NoError(t, err)
	defer a.Disconnect(ec, conn)

	require.NoError(t, a.Ping(ec, conn))
	v, err := a.ServerVersion(ec, conn)
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}
