package orabridge

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/semihalev/go-orabridge/nca"
)

// bufferCount is the number of elements v's buffer needs for iters
// iterations.
func (v *bindVar) bufferCount(iters uint32) uint32 {
	if v.isArray {
		return v.maxArraySize
	}
	return iters
}

// allocBuffer creates the bind buffer and hands it to tc.
func (v *bindVar) allocBuffer(tc *TaskContext, iters uint32) error {
	buf, err := newVarBuffer(tc.Adapter(), v.native, v.dbType, v.maxSize, v.bufferCount(iters))
	if err != nil {
		return err
	}
	buf.IsArray = v.isArray
	tc.OwnBuffer(buf)
	v.buf = buf
	return nil
}

// encodeInputs writes IN values into the buffer. LOB values take a task
// reference on their locator; object values are created later, natively.
func (v *bindVar) encodeInputs(tc *TaskContext) error {
	if !v.dir.isIn() {
		return nil
	}
	if v.isArray {
		items, _ := v.values[0].([]any)
		for i, item := range items {
			if err := v.encode(tc, uint32(i), item); err != nil {
				return err
			}
		}
		*v.buf.ActualCount = uint32(len(items))
		return nil
	}
	for i, val := range v.values {
		if err := v.encode(tc, uint32(i), val); err != nil {
			return err
		}
	}
	return nil
}

func (v *bindVar) encode(tc *TaskContext, i uint32, val any) error {
	if valuer, ok := val.(driver.Valuer); ok {
		if _, isLob := val.(*Lob); !isLob {
			dv, err := valuer.Value()
			if err != nil {
				return errors.Wrapf(err, "bind %s", v.slotName())
			}
			val = dv
		}
	}
	buf := v.buf
	if val == nil {
		buf.SetNull(i)
		return nil
	}
	if lob, ok := val.(*Lob); ok {
		if lob == nil {
			buf.SetNull(i)
			return nil
		}
		if v.native != nca.NativeLob {
			return usageError(11, "bind value and type mismatch")
		}
		if err := tc.Retain(lob.id); err != nil {
			return ErrInvalidLob
		}
		h, err := tc.Handle(lob.id)
		if err != nil {
			return ErrInvalidLob
		}
		buf.setExternal(i, h)
		return nil
	}
	if _, ok := val.(*Object); ok {
		// Filled in by the blocking body.
		return nil
	}

	switch v.native {
	case nca.NativeBytes, nca.NativeLong:
		raw, err := bindBytes(val)
		if err != nil {
			return err
		}
		if !buf.SetBytes(i, raw) {
			return usageError(58, "maxSize of %d is too small for value of length %d in row %d", buf.ElemSize, len(raw), i)
		}
	case nca.NativeInt64:
		n, ok := asInt64(val)
		if !ok {
			return usageError(11, "bind value and type mismatch")
		}
		buf.SetInt64(i, n)
	case nca.NativeUint64:
		n, ok := asUint64(val)
		if !ok {
			return usageError(11, "bind value and type mismatch")
		}
		buf.SetUint64(i, n)
	case nca.NativeFloat64:
		f, ok := asFloat64(val)
		if !ok {
			return usageError(11, "bind value and type mismatch")
		}
		buf.SetFloat64(i, f)
	case nca.NativeBool:
		b, ok := val.(bool)
		if !ok {
			return usageError(11, "bind value and type mismatch")
		}
		buf.SetBool(i, b)
	case nca.NativeTimestamp:
		t, ok := val.(time.Time)
		if !ok {
			return usageError(11, "bind value and type mismatch")
		}
		buf.SetTimestamp(i, nca.EncodeTimestamp(t))
	case nca.NativeIntervalDS:
		d, ok := val.(time.Duration)
		if !ok {
			return usageError(11, "bind value and type mismatch")
		}
		buf.SetInterval(i, int64(d))
	default:
		return usageError(12, "invalid bind data type in parameter %d", v.index+1)
	}
	return nil
}

func bindBytes(val any) ([]byte, error) {
	switch x := val.(type) {
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case json.RawMessage:
		return x, nil
	case map[string]any:
		doc, err := json.Marshal(x)
		if err != nil {
			return nil, errors.Wrap(err, "encode JSON bind")
		}
		return doc, nil
	}
	return nil, usageError(11, "bind value and type mismatch")
}

func asInt64(val any) (int64, bool) {
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func asUint64(val any) (uint64, bool) {
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, false
		}
		return uint64(rv.Int()), true
	}
	return 0, false
}

func asFloat64(val any) (float64, bool) {
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// createObjects builds native instances for object IN values. It runs in
// the blocking body.
func (v *bindVar) createObjects(tc *TaskContext, conn nca.Handle) error {
	if v.native != nca.NativeObject || !v.dir.isIn() {
		return nil
	}
	a := tc.Adapter()
	for i, val := range v.values {
		obj, ok := val.(*Object)
		if !ok || obj == nil {
			continue
		}
		h, err := a.NewObject(tc.EC, conn, obj.Type.info, obj.Attrs)
		if err != nil {
			return wrapf(err, "create %s instance", obj.Type.FullName())
		}
		tc.Own(h, func(ec nca.ErrorContext, h nca.Handle) error {
			return a.FreeSlot(ec, nca.NativeObject, h)
		})
		v.buf.setExternal(uint32(i), h)
	}
	return nil
}

// scalarValue converts element i of a scalar buffer to a Go value.
func scalarValue(buf *nca.Buffer, i uint32, asString bool) (any, error) {
	if buf.IsNull(i) {
		return nil, nil
	}
	switch buf.Native {
	case nca.NativeBytes, nca.NativeLong:
		b := buf.Bytes(i)
		if buf.DBType == nca.DBTypeJSON && !asString {
			var doc any
			if err := json.Unmarshal(b, &doc); err != nil {
				return nil, errors.Wrap(err, "decode JSON value")
			}
			return doc, nil
		}
		if asString || buf.DBType.IsCharacter() {
			return string(b), nil
		}
		return append([]byte(nil), b...), nil
	case nca.NativeInt64:
		return buf.Int64(i), nil
	case nca.NativeUint64:
		return buf.Uint64(i), nil
	case nca.NativeFloat64:
		return buf.Float64(i), nil
	case nca.NativeBool:
		return buf.Bool(i), nil
	case nca.NativeTimestamp:
		return nca.DecodeTimestamp(buf.Timestamp(i)), nil
	case nca.NativeIntervalDS:
		return time.Duration(buf.Interval(i)), nil
	}
	return nil, fmt.Errorf("no scalar value for native type %d", buf.Native)
}

// assignOut stores an OUT value into a sql.Out destination.
func assignOut(dest any, val any) error {
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(val)
	}
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Errorf("sql.Out destination must be a non-nil pointer, got %T", dest)
	}
	elem := rv.Elem()
	if val == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	src := reflect.ValueOf(val)
	switch {
	case src.Type().AssignableTo(elem.Type()):
		elem.Set(src)
	case src.Type().ConvertibleTo(elem.Type()) && convertible(src.Kind(), elem.Kind()):
		elem.Set(src.Convert(elem.Type()))
	default:
		return errors.Errorf("cannot store %T in %s", val, elem.Type())
	}
	return nil
}

// convertible limits reflect conversions to number-to-number and
// text-to-text.
func convertible(from, to reflect.Kind) bool {
	isNum := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	if isNum(from) && isNum(to) {
		return true
	}
	return from == to
}
