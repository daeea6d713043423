package orabridge

import (
	"context"
	"database/sql/driver"
	"io"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/semihalev/go-orabridge/nca"
)

// Rows implements database/sql/driver.Rows over a ResultSet, fetching one
// fetch-array-sized batch per round trip.
type Rows struct {
	ctx   context.Context
	rs    *ResultSet
	cols  []ColumnMeta
	names []string

	batch  [][]any
	pos    int
	done   bool
	closed int32
}

var (
	_ driver.RowsColumnTypeDatabaseTypeName = (*Rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*Rows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*Rows)(nil)
	_ driver.RowsColumnTypeLength           = (*Rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*Rows)(nil)
)

func newRows(ctx context.Context, rs *ResultSet) *Rows {
	cols := rs.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return &Rows{ctx: ctx, rs: rs, cols: cols, names: names}
}

// Columns returns the column names.
func (r *Rows) Columns() []string {
	return r.names
}

// Close closes the underlying cursor.
func (r *Rows) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	r.batch = nil
	return r.rs.Close(context.WithoutCancel(r.ctx))
}

// Next fills dest with the next row, fetching a new batch when the
// current one is consumed.
func (r *Rows) Next(dest []driver.Value) error {
	if atomic.LoadInt32(&r.closed) != 0 {
		return io.EOF
	}
	if r.pos >= len(r.batch) {
		if r.done {
			return io.EOF
		}
		batch, err := r.rs.GetRows(r.ctx, 0)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			r.done = true
			return io.EOF
		}
		r.batch, r.pos = batch, 0
	}
	row := r.batch[r.pos]
	r.pos++
	for i := range dest {
		dest[i] = driverValue(row[i])
	}
	return nil
}

// driverValue maps row values onto the types database/sql converts.
func driverValue(v any) driver.Value {
	switch x := v.(type) {
	case time.Duration:
		return int64(x)
	case uint64:
		return int64(x)
	}
	return v
}

// ColumnTypeDatabaseTypeName returns the Oracle type name.
func (r *Rows) ColumnTypeDatabaseTypeName(index int) string {
	c := r.cols[index]
	if c.TypeName != "" {
		return c.TypeName
	}
	return c.DBType.String()
}

// ColumnTypeNullable reports column nullability.
func (r *Rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return r.cols[index].Nullable, true
}

// ColumnTypePrecisionScale reports NUMBER precision and scale.
func (r *Rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	c := r.cols[index]
	if c.DBType != nca.DBTypeNumber {
		return 0, 0, false
	}
	return int64(c.Precision), int64(c.Scale), true
}

// ColumnTypeLength reports the size of variable-length columns.
func (r *Rows) ColumnTypeLength(index int) (length int64, ok bool) {
	c := r.cols[index]
	switch c.DBType {
	case nca.DBTypeVarchar, nca.DBTypeNVarchar, nca.DBTypeChar, nca.DBTypeNChar, nca.DBTypeRaw:
		return int64(c.Size), true
	}
	return 0, false
}

var (
	scanString  = reflect.TypeOf("")
	scanBytes   = reflect.TypeOf([]byte(nil))
	scanFloat   = reflect.TypeOf(float64(0))
	scanInt     = reflect.TypeOf(int64(0))
	scanBool    = reflect.TypeOf(false)
	scanTime    = reflect.TypeOf(time.Time{})
	scanAnyType = reflect.TypeOf((*any)(nil)).Elem()
)

// ColumnTypeScanType returns the Go type Next produces for a column.
func (r *Rows) ColumnTypeScanType(index int) reflect.Type {
	c := r.cols[index]
	switch c.FetchType {
	case FetchString:
		return scanString
	case FetchBuffer:
		return scanBytes
	}
	switch c.DBType {
	case nca.DBTypeNumber, nca.DBTypeBinaryDouble, nca.DBTypeBinaryFloat:
		if c.DBType == nca.DBTypeNumber && c.Scale == 0 && c.Precision > 0 && c.Precision <= 18 {
			return scanInt
		}
		return scanFloat
	case nca.DBTypeBinaryInt, nca.DBTypeBinaryUint, nca.DBTypeIntervalDS:
		return scanInt
	case nca.DBTypeBoolean:
		return scanBool
	case nca.DBTypeDate, nca.DBTypeTimestamp, nca.DBTypeTimestampTZ, nca.DBTypeTimestampLTZ:
		return scanTime
	case nca.DBTypeRaw, nca.DBTypeLongRaw, nca.DBTypeBlob:
		return scanBytes
	}
	if c.DBType.IsCharacter() {
		return scanString
	}
	return scanAnyType
}

// Result implements database/sql/driver.Result.
type Result struct {
	rowsAffected int64
	lastRowid    string
}

// LastInsertId is not supported; Oracle identifies rows by ROWID.
func (r *Result) LastInsertId() (int64, error) {
	return 0, ErrLastInsertID
}

// RowsAffected returns the number of rows changed.
func (r *Result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// LastRowid returns the ROWID of the last row changed by a single-row DML
// statement.
func (r *Result) LastRowid() string {
	return r.lastRowid
}
