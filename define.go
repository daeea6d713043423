package orabridge

import (
	"slices"
	"strings"

	"github.com/semihalev/go-orabridge/nca"
)

// FetchType overrides how a column is returned.
type FetchType int

const (
	// FetchDefault uses the type policy.
	FetchDefault FetchType = iota
	// FetchString returns the column as a string.
	FetchString
	// FetchBuffer returns a BLOB column as []byte.
	FetchBuffer
)

// FetchInfo overrides the fetch representation of one named column.
type FetchInfo struct {
	Type FetchType
}

// fetchPolicy is the effective set of representation overrides for a query.
type fetchPolicy struct {
	asString []nca.DBType
	asBuffer []nca.DBType
	byName   map[string]FetchInfo
}

func (p fetchPolicy) override(col nca.ColumnInfo) FetchType {
	if fi, ok := p.byName[col.Name]; ok {
		return fi.Type
	}
	if fi, ok := p.byName[strings.ToUpper(col.Name)]; ok {
		return fi.Type
	}
	if slices.Contains(p.asString, col.DBType) {
		return FetchString
	}
	if slices.Contains(p.asBuffer, col.DBType) {
		return FetchBuffer
	}
	return FetchDefault
}

// ColumnMeta describes a query column as returned to callers.
type ColumnMeta struct {
	Name      string
	DBType    nca.DBType
	Size      uint32
	Precision int16
	Scale     int8
	Nullable  bool
	// TypeName is the object type of OBJECT columns.
	TypeName string
	// FetchType is the representation applied.
	FetchType FetchType
}

// column is the define state of one query column.
type column struct {
	info   nca.ColumnInfo
	fetch  FetchType
	native nca.NativeType
	// dbType is the type the column is defined as, which differs from
	// info.DBType for conversions such as NUMBER fetched as a string.
	dbType nca.DBType
	size   uint32
	// readAll marks LOB columns whose content is read during the fetch.
	readAll bool

	buf *varBuffer
	// per-row data gathered by the blocking body
	lobData   [][]byte
	objAttrs  []map[string]any
	objType   *ObjectType
	cursorCol [][]nca.ColumnInfo
}

func (c *column) meta() ColumnMeta {
	return ColumnMeta{
		Name:      c.info.Name,
		DBType:    c.info.DBType,
		Size:      c.info.Size,
		Precision: c.info.Precision,
		Scale:     c.info.Scale,
		Nullable:  c.info.Nullable,
		TypeName:  c.info.TypeName,
		FetchType: c.fetch,
	}
}

// defineFor applies the type policy to a described column. pos is 1-based
// and only used in errors.
func defineFor(info nca.ColumnInfo, pos int, policy fetchPolicy) (*column, error) {
	c := &column{info: info, dbType: info.DBType}
	c.fetch = policy.override(info)
	asString := c.fetch == FetchString
	asBuffer := c.fetch == FetchBuffer

	switch info.DBType {
	case nca.DBTypeVarchar, nca.DBTypeNVarchar, nca.DBTypeChar, nca.DBTypeNChar:
		c.native = nca.NativeBytes
		c.size = maxOf(info.Size, 1)
	case nca.DBTypeRowid:
		c.native = nca.NativeBytes
		c.size = maxOf(info.Size, 18)
	case nca.DBTypeRaw:
		c.native = nca.NativeBytes
		c.size = maxOf(info.Size, 1)
		if asString {
			// Hex text takes two characters per byte.
			c.dbType = nca.DBTypeVarchar
			c.size *= 2
		}
	case nca.DBTypeNumber, nca.DBTypeBinaryFloat, nca.DBTypeBinaryDouble, nca.DBTypeBinaryInt,
		nca.DBTypeDate, nca.DBTypeTimestamp, nca.DBTypeTimestampTZ, nca.DBTypeTimestampLTZ:
		if asString {
			c.native = nca.NativeBytes
			c.dbType = nca.DBTypeVarchar
			c.size = DefaultMaxFetchAsString
			break
		}
		switch info.DBType {
		case nca.DBTypeNumber:
			if info.Precision > 0 && info.Precision <= 18 && info.Scale == 0 {
				c.native = nca.NativeInt64
			} else {
				c.native = nca.NativeFloat64
			}
		case nca.DBTypeBinaryInt:
			c.native = nca.NativeInt64
		case nca.DBTypeBinaryFloat, nca.DBTypeBinaryDouble:
			c.native = nca.NativeFloat64
		default:
			c.native = nca.NativeTimestamp
		}
	case nca.DBTypeIntervalDS:
		c.native = nca.NativeIntervalDS
	case nca.DBTypeBoolean:
		c.native = nca.NativeBool
	case nca.DBTypeLongVarchar, nca.DBTypeLongRaw, nca.DBTypeXMLType, nca.DBTypeJSON:
		c.native = nca.NativeLong
	case nca.DBTypeClob, nca.DBTypeNClob, nca.DBTypeBlob, nca.DBTypeBFile:
		c.native = nca.NativeLob
		c.readAll = (asString && info.DBType != nca.DBTypeBlob && info.DBType != nca.DBTypeBFile) ||
			(asBuffer && info.DBType == nca.DBTypeBlob)
	case nca.DBTypeStmt:
		c.native = nca.NativeStmt
	case nca.DBTypeObject:
		c.native = nca.NativeObject
	default:
		return nil, errUnsupportedType(info.DBType, pos)
	}
	if fixed := c.native.FixedSize(); fixed > 0 {
		c.size = fixed
	}
	return c, nil
}

// defineSet owns the define buffers of one statement. Buffers hold
// capacity rows; a fetch of more rows releases them and defines new ones.
type defineSet struct {
	adapter  nca.Adapter
	cols     []*column
	capacity uint32
	defined  bool
	reallocs int
}

func newDefineSet(a nca.Adapter, infos []nca.ColumnInfo, policy fetchPolicy) (*defineSet, error) {
	ds := &defineSet{adapter: a, cols: make([]*column, len(infos))}
	for i, info := range infos {
		c, err := defineFor(info, i+1, policy)
		if err != nil {
			return nil, err
		}
		ds.cols[i] = c
	}
	return ds, nil
}

func (ds *defineSet) metas() []ColumnMeta {
	out := make([]ColumnMeta, len(ds.cols))
	for i, c := range ds.cols {
		out[i] = c.meta()
	}
	return out
}

// ensure makes every column able to receive rows rows. It runs in a
// blocking body.
func (ds *defineSet) ensure(ec nca.ErrorContext, conn, stmt nca.Handle, rows uint32) error {
	rows = maxOf(rows, 1)
	if ds.defined && rows <= ds.capacity {
		for _, c := range ds.cols {
			if err := c.buf.allocSlots(ec, conn); err != nil {
				return wrapf(err, "allocate %s slots", c.info.Name)
			}
		}
		return nil
	}
	if ds.defined {
		ds.release(ec)
		ds.reallocs++
	}
	for i, c := range ds.cols {
		buf, err := newVarBuffer(ds.adapter, c.native, c.dbType, c.size, rows)
		if err != nil {
			return err
		}
		c.buf = buf
		if err := buf.allocSlots(ec, conn); err != nil {
			return wrapf(err, "allocate %s slots", c.info.Name)
		}
		if err := ds.adapter.Define(ec, stmt, i+1, &buf.Buffer); err != nil {
			return wrapf(err, "define column %d", i+1)
		}
	}
	ds.capacity = rows
	ds.defined = true
	return nil
}

// fetch fetches up to rows rows and gathers the per-row data that needs
// native calls: LOB content read eagerly, object attributes and nested
// cursor descriptions.
func (ds *defineSet) fetch(tc *TaskContext, conn, stmt nca.Handle, rows uint32) (uint32, error) {
	if err := ds.ensure(tc.EC, conn, stmt, rows); err != nil {
		return 0, err
	}
	n, err := ds.adapter.Fetch(tc.EC, stmt, rows)
	if err != nil {
		return 0, wrapf(err, "fetch")
	}
	for _, c := range ds.cols {
		c.lobData, c.objAttrs, c.cursorCol = nil, nil, nil
		switch {
		case c.native == nca.NativeLob && c.readAll:
			c.lobData = make([][]byte, n)
			for i := uint32(0); i < n; i++ {
				if c.buf.IsNull(i) {
					continue
				}
				data, err := readLobContent(tc, conn, c.buf.Handle(i), c.info.DBType)
				if err != nil {
					return 0, err
				}
				c.lobData[i] = data
			}
		case c.native == nca.NativeObject:
			if c.objType == nil {
				t, err := tc.env.types.describe(tc.EC, conn, c.info.TypeName)
				if err != nil {
					return 0, err
				}
				c.objType = t
			}
			c.objAttrs = make([]map[string]any, n)
			for i := uint32(0); i < n; i++ {
				if c.buf.IsNull(i) {
					continue
				}
				attrs, err := ds.adapter.ObjectAttributes(tc.EC, conn, c.buf.Handle(i))
				if err != nil {
					return 0, wrapf(err, "read %s attributes", c.info.TypeName)
				}
				c.objAttrs[i] = attrs
			}
		case c.native == nca.NativeStmt:
			c.cursorCol = make([][]nca.ColumnInfo, n)
			for i := uint32(0); i < n; i++ {
				if c.buf.IsNull(i) {
					continue
				}
				cols, err := ds.adapter.Columns(tc.EC, c.buf.Handle(i))
				if err != nil {
					return 0, wrapf(err, "describe nested cursor")
				}
				c.cursorCol[i] = cols
			}
		}
	}
	return n, nil
}

// release frees all define buffers.
func (ds *defineSet) release(ec nca.ErrorContext) {
	for _, c := range ds.cols {
		c.buf.release(ec)
		c.buf = nil
	}
	ds.defined = false
	ds.capacity = 0
}
