// Package nca defines the handle-based contract the bridge consumes from a
// native Oracle client library. Implementations are synchronous and not safe
// for concurrent use on the same handle; callers serialize access per
// connection, statement and LOB, and give every blocking call its own
// ErrorContext.
package nca

// Handle is an opaque native handle (connection, statement, LOB locator,
// object instance).
type Handle uintptr

// ErrorContext is a private error-reporting context for one unit of work.
type ErrorContext uintptr

// DBType identifies a database column or bind type.
type DBType uint16

// Database types. The numbering follows ODPI-C's DPI_ORACLE_TYPE values.
const (
	DBTypeNone         DBType = 2000
	DBTypeVarchar      DBType = 2001
	DBTypeNVarchar     DBType = 2002
	DBTypeChar         DBType = 2003
	DBTypeNChar        DBType = 2004
	DBTypeRowid        DBType = 2005
	DBTypeRaw          DBType = 2006
	DBTypeBinaryFloat  DBType = 2007
	DBTypeBinaryDouble DBType = 2008
	DBTypeBinaryInt    DBType = 2009
	DBTypeNumber       DBType = 2010
	DBTypeDate         DBType = 2011
	DBTypeTimestamp    DBType = 2012
	DBTypeTimestampTZ  DBType = 2013
	DBTypeTimestampLTZ DBType = 2014
	DBTypeIntervalDS   DBType = 2015
	DBTypeIntervalYM   DBType = 2016
	DBTypeClob         DBType = 2017
	DBTypeNClob        DBType = 2018
	DBTypeBlob         DBType = 2019
	DBTypeBFile        DBType = 2020
	DBTypeStmt         DBType = 2021
	DBTypeBoolean      DBType = 2022
	DBTypeObject       DBType = 2023
	DBTypeLongVarchar  DBType = 2024
	DBTypeLongRaw      DBType = 2025
	DBTypeBinaryUint   DBType = 2026
	DBTypeJSON         DBType = 2027
	DBTypeXMLType      DBType = 2032
)

var dbTypeNames = map[DBType]string{
	DBTypeNone:         "NONE",
	DBTypeVarchar:      "VARCHAR2",
	DBTypeNVarchar:     "NVARCHAR2",
	DBTypeChar:         "CHAR",
	DBTypeNChar:        "NCHAR",
	DBTypeRowid:        "ROWID",
	DBTypeRaw:          "RAW",
	DBTypeBinaryFloat:  "BINARY_FLOAT",
	DBTypeBinaryDouble: "BINARY_DOUBLE",
	DBTypeBinaryInt:    "BINARY_INTEGER",
	DBTypeNumber:       "NUMBER",
	DBTypeDate:         "DATE",
	DBTypeTimestamp:    "TIMESTAMP",
	DBTypeTimestampTZ:  "TIMESTAMP WITH TIME ZONE",
	DBTypeTimestampLTZ: "TIMESTAMP WITH LOCAL TIME ZONE",
	DBTypeIntervalDS:   "INTERVAL DAY TO SECOND",
	DBTypeIntervalYM:   "INTERVAL YEAR TO MONTH",
	DBTypeClob:         "CLOB",
	DBTypeNClob:        "NCLOB",
	DBTypeBlob:         "BLOB",
	DBTypeBFile:        "BFILE",
	DBTypeStmt:         "REF CURSOR",
	DBTypeBoolean:      "BOOLEAN",
	DBTypeObject:       "OBJECT",
	DBTypeLongVarchar:  "LONG",
	DBTypeLongRaw:      "LONG RAW",
	DBTypeBinaryUint:   "BINARY_INTEGER UNSIGNED",
	DBTypeJSON:         "JSON",
	DBTypeXMLType:      "XMLTYPE",
}

// String returns the SQL name of the type.
func (t DBType) String() string {
	if s, ok := dbTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsLob reports whether values of the type are LOB locators.
func (t DBType) IsLob() bool {
	return t == DBTypeClob || t == DBTypeNClob || t == DBTypeBlob || t == DBTypeBFile
}

// IsCharacter reports whether the type stores character data.
func (t DBType) IsCharacter() bool {
	switch t {
	case DBTypeVarchar, DBTypeNVarchar, DBTypeChar, DBTypeNChar, DBTypeRowid,
		DBTypeClob, DBTypeNClob, DBTypeLongVarchar, DBTypeXMLType, DBTypeJSON:
		return true
	}
	return false
}

// NativeType is the in-memory representation used for a bind or define slot.
type NativeType uint16

// Native representations.
const (
	// NativeBytes stores variable-length text or raw bytes with a length array.
	NativeBytes NativeType = iota + 3000
	// NativeInt64 stores an 8-byte signed integer.
	NativeInt64
	// NativeUint64 stores an 8-byte unsigned integer.
	NativeUint64
	// NativeFloat64 stores an 8-byte IEEE double.
	NativeFloat64
	// NativeBool stores a 4-byte integer, zero for false.
	NativeBool
	// NativeTimestamp stores the 13-byte encoding produced by EncodeTimestamp.
	NativeTimestamp
	// NativeIntervalDS stores an 8-byte nanosecond count.
	NativeIntervalDS
	// NativeLob stores a LOB locator handle.
	NativeLob
	// NativeStmt stores a statement handle (REF CURSOR).
	NativeStmt
	// NativeObject stores an object instance handle.
	NativeObject
	// NativeLong stores unbounded data transferred piecewise into Buffer.Pieces.
	NativeLong
)

// FixedSize returns the element size of fixed-width native types, or 0 for
// variable-width ones.
func (n NativeType) FixedSize() uint32 {
	switch n {
	case NativeInt64, NativeUint64, NativeFloat64, NativeIntervalDS:
		return 8
	case NativeBool:
		return 4
	case NativeTimestamp:
		return TimestampSize
	case NativeLob, NativeStmt, NativeObject:
		return HandleSize
	}
	return 0
}

// HoldsHandle reports whether slots of this type carry native handles.
func (n NativeType) HoldsHandle() bool {
	return n == NativeLob || n == NativeStmt || n == NativeObject
}

// StmtKind classifies a prepared statement.
type StmtKind int

const (
	StmtUnknown StmtKind = iota
	StmtQuery
	StmtDML
	StmtPLSQL
	StmtDDL
	StmtOther
)

// StmtInfo describes a prepared statement.
type StmtInfo struct {
	Kind        StmtKind
	IsReturning bool
	BindNames   []string
}

// ExecMode controls statement execution.
type ExecMode uint32

const (
	ExecDefault          ExecMode = 0
	ExecDescribeOnly     ExecMode = 0x10
	ExecCommitOnSuccess  ExecMode = 0x20
	ExecBatchErrors      ExecMode = 0x80
	ExecArrayDMLRowCount ExecMode = 0x100000
)

// ColumnInfo is the metadata of one query column.
type ColumnInfo struct {
	Name      string
	DBType    DBType
	Size      uint32
	CharSize  uint32
	Precision int16
	Scale     int8
	Nullable  bool
	TypeName  string
}

// BindTarget addresses a bind slot by 1-based position or by name.
type BindTarget struct {
	Pos  int
	Name string
}

// ByName reports whether the target uses a name.
func (t BindTarget) ByName() bool {
	return t.Name != ""
}

// BatchErrorInfo is one row failure reported in batch-error mode.
type BatchErrorInfo struct {
	Offset uint32
	Err    *Error
}

// ConnectParams holds what is needed to open a session.
type ConnectParams struct {
	Username      string
	Password      string
	ConnectString string
}

// ObjectAttr describes one attribute of a named object type.
type ObjectAttr struct {
	Name   string
	DBType DBType
}

// ObjectTypeInfo describes a named object type.
type ObjectTypeInfo struct {
	Handle     Handle
	Schema     string
	Name       string
	Attributes []ObjectAttr
}

// Piece values used by the dynamic bind callbacks.
const (
	OnePiece   uint8 = 0
	FirstPiece uint8 = 1
	NextPiece  uint8 = 2
	LastPiece  uint8 = 3
)

// InPiece is the answer to an input-side dynamic bind callback.
type InPiece struct {
	Value     []byte
	Indicator int16
	Piece     uint8
}

// OutSlot is the answer to an output-side dynamic bind callback. All fields
// point into memory obtained from Adapter.Alloc so they stay valid after the
// callback returns.
type OutSlot struct {
	Value      []byte
	Length     *uint32
	Indicator  *int16
	ReturnCode *uint16
	Piece      uint8
}

// DynamicBinder supplies buffers for binds whose row count is known only
// during execution (DML RETURNING).
type DynamicBinder interface {
	// In is called for the input side of each iteration.
	In(iter, index uint32) InPiece
	// Out is called once per returned row. rows reports the number of rows
	// returned for the iteration and is only valid while index is 0.
	Out(iter, index uint32, rows func() (uint32, error)) (OutSlot, error)
}

// Adapter is the synchronous native client contract.
type Adapter interface {
	// Alloc returns zeroed memory that stays at a fixed address until Free.
	Alloc(size int) ([]byte, error)
	// Free releases memory returned by Alloc.
	Free(b []byte)

	NewErrorContext() (ErrorContext, error)
	FreeErrorContext(ec ErrorContext)

	Connect(ec ErrorContext, p ConnectParams) (Handle, error)
	Disconnect(ec ErrorContext, conn Handle) error
	Ping(ec ErrorContext, conn Handle) error
	// Break asks the server to interrupt the call running on conn.
	Break(conn Handle) error
	Commit(ec ErrorContext, conn Handle) error
	Rollback(ec ErrorContext, conn Handle) error
	ServerVersion(ec ErrorContext, conn Handle) (string, error)

	Prepare(ec ErrorContext, conn Handle, sql string) (Handle, error)
	ReleaseStmt(ec ErrorContext, stmt Handle) error
	StmtInfo(ec ErrorContext, stmt Handle) (StmtInfo, error)
	Bind(ec ErrorContext, stmt Handle, target BindTarget, buf *Buffer) error
	BindDynamic(ec ErrorContext, stmt Handle, target BindTarget, buf *Buffer, binder DynamicBinder) error
	Execute(ec ErrorContext, stmt Handle, iters uint32, mode ExecMode) error
	RowCount(ec ErrorContext, stmt Handle) (uint64, error)
	RowCounts(ec ErrorContext, stmt Handle) ([]uint64, error)
	BatchErrors(ec ErrorContext, stmt Handle) ([]BatchErrorInfo, error)
	LastRowid(ec ErrorContext, stmt Handle) (string, error)
	Columns(ec ErrorContext, stmt Handle) ([]ColumnInfo, error)
	Define(ec ErrorContext, stmt Handle, pos int, buf *Buffer) error
	// Fetch fetches up to rows rows into the defined buffers and returns the
	// number fetched; 0 means the cursor is exhausted.
	Fetch(ec ErrorContext, stmt Handle, rows uint32) (uint32, error)

	// AllocSlot creates the per-element handle a LOB, cursor or object slot
	// needs before a define or OUT bind.
	AllocSlot(ec ErrorContext, conn Handle, native NativeType, dbType DBType) (Handle, error)
	FreeSlot(ec ErrorContext, native NativeType, h Handle) error

	LobChunkSize(ec ErrorContext, conn, lob Handle) (uint32, error)
	LobLength(ec ErrorContext, conn, lob Handle) (uint64, error)
	// LobRead reads amount units starting at the 1-based offset into buf
	// and returns the units and bytes transferred.
	LobRead(ec ErrorContext, conn, lob Handle, offset, amount uint64, buf []byte) (uint64, int, error)
	LobWrite(ec ErrorContext, conn, lob Handle, offset uint64, data []byte) (uint64, error)
	LobCreateTemp(ec ErrorContext, conn Handle, dbType DBType) (Handle, error)
	LobFree(ec ErrorContext, conn, lob Handle, temp bool) error

	DescribeObjectType(ec ErrorContext, conn Handle, name string) (ObjectTypeInfo, error)
	NewObject(ec ErrorContext, conn Handle, typ ObjectTypeInfo, attrs map[string]any) (Handle, error)
	ObjectAttributes(ec ErrorContext, conn, obj Handle) (map[string]any, error)
}
