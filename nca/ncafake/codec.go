package ncafake

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/semihalev/go-orabridge/nca"
)

func mismatch(v any, buf *nca.Buffer) *nca.Error {
	return nca.NewError(932, "inconsistent datatypes: cannot store %T in %s", v, buf.DBType)
}

// encodeValue stores v into element i of buf, creating LOB, cursor and
// object content behind handle slots.
func (a *Adapter) encodeValue(conn nca.Handle, buf *nca.Buffer, i uint32, v any) error {
	if v == nil {
		buf.SetNull(i)
		return nil
	}
	if buf.Native.HoldsHandle() {
		h := buf.Handle(i)
		a.mu.Lock()
		defer a.mu.Unlock()
		switch buf.Native {
		case nca.NativeLob:
			l, ok := a.lobs[h]
			if !ok {
				return errInvalidHandle("LOB")
			}
			raw := encodeBytes(nca.DBTypeVarchar, v)
			if b, ok := v.([]byte); ok {
				raw = b
			}
			if raw == nil {
				return mismatch(v, buf)
			}
			l.data = append([]byte(nil), raw...)
		case nca.NativeStmt:
			sc, ok := v.(*Script)
			if !ok {
				return mismatch(v, buf)
			}
			s, ok := a.stmts[h]
			if !ok {
				return errInvalidHandle("statement")
			}
			s.conn = conn
			s.script = sc
			s.columns = sc.Columns
			s.rows = sc.Rows
			s.cursor = 0
			s.executed = true
		case nca.NativeObject:
			attrs, ok := v.(map[string]any)
			if !ok {
				return mismatch(v, buf)
			}
			o, ok := a.objects[h]
			if !ok {
				return errInvalidHandle("object")
			}
			o.attrs = copyAttrs(attrs)
		}
		buf.Indicator[i] = nca.IndicatorNotNull
		buf.Length[i] = nca.HandleSize
		return nil
	}
	return encodeScalar(buf, i, v)
}

func encodeScalar(buf *nca.Buffer, i uint32, v any) error {
	switch buf.Native {
	case nca.NativeBytes, nca.NativeLong:
		raw := encodeBytes(buf.DBType, v)
		if raw == nil {
			return mismatch(v, buf)
		}
		if !buf.SetBytes(i, raw) {
			return nca.NewError(nca.CodeValueTooLarge, "fetched column value was truncated")
		}
	case nca.NativeInt64:
		n, ok := toInt64(v)
		if !ok {
			return mismatch(v, buf)
		}
		buf.SetInt64(i, n)
	case nca.NativeUint64:
		n, ok := toInt64(v)
		if u, isU := v.(uint64); isU {
			buf.SetUint64(i, u)
			return nil
		}
		if !ok || n < 0 {
			return mismatch(v, buf)
		}
		buf.SetUint64(i, uint64(n))
	case nca.NativeFloat64:
		switch f := v.(type) {
		case float64:
			buf.SetFloat64(i, f)
		case float32:
			buf.SetFloat64(i, float64(f))
		default:
			n, ok := toInt64(v)
			if !ok {
				return mismatch(v, buf)
			}
			buf.SetFloat64(i, float64(n))
		}
	case nca.NativeBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(v, buf)
		}
		buf.SetBool(i, b)
	case nca.NativeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return mismatch(v, buf)
		}
		buf.SetTimestamp(i, nca.EncodeTimestamp(t))
	case nca.NativeIntervalDS:
		d, ok := v.(time.Duration)
		if !ok {
			return mismatch(v, buf)
		}
		buf.SetInterval(i, int64(d))
	default:
		return mismatch(v, buf)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// encodeBytes renders v the way the server converts it for a text or raw
// slot of type dbType. It returns nil when v has no such rendering.
func encodeBytes(dbType nca.DBType, v any) []byte {
	switch x := v.(type) {
	case string:
		return []byte(x)
	case []byte:
		if dbType.IsCharacter() {
			return []byte(strings.ToUpper(hex.EncodeToString(x)))
		}
		return append([]byte{}, x...)
	case int, int32, int64, uint32, uint64:
		return []byte(fmt.Sprint(x))
	case float64:
		return []byte(strconv.FormatFloat(x, 'f', -1, 64))
	case time.Time:
		return []byte(x.Format("2006-01-02 15:04:05"))
	case bool:
		if x {
			return []byte("TRUE")
		}
		return []byte("FALSE")
	}
	return nil
}

// decodeValue reads element i of buf back into a Go scalar.
func decodeValue(buf *nca.Buffer, i uint32) any {
	if buf.IsNull(i) {
		return nil
	}
	switch buf.Native {
	case nca.NativeBytes, nca.NativeLong:
		b := buf.Bytes(i)
		if buf.DBType.IsCharacter() {
			return string(b)
		}
		return append([]byte{}, b...)
	case nca.NativeInt64:
		return buf.Int64(i)
	case nca.NativeUint64:
		return buf.Uint64(i)
	case nca.NativeFloat64:
		return buf.Float64(i)
	case nca.NativeBool:
		return buf.Bool(i)
	case nca.NativeTimestamp:
		return nca.DecodeTimestamp(buf.Timestamp(i))
	case nca.NativeIntervalDS:
		return time.Duration(buf.Interval(i))
	}
	return nil
}

func (l *lob) character() bool {
	return l.dbType == nca.DBTypeClob || l.dbType == nca.DBTypeNClob
}

// units returns the length in characters (CLOB) or bytes (BLOB).
func (l *lob) units() uint64 {
	return l.count(l.data)
}

func (l *lob) count(b []byte) uint64 {
	if l.character() {
		return uint64(utf8.RuneCount(b))
	}
	return uint64(len(b))
}

// byteOffset converts a 0-based unit position to a byte position, clamped
// to the end of the data.
func (l *lob) byteOffset(pos uint64) int {
	if !l.character() {
		if pos > uint64(len(l.data)) {
			return len(l.data)
		}
		return int(pos)
	}
	off := 0
	for n := uint64(0); n < pos && off < len(l.data); n++ {
		_, size := utf8.DecodeRune(l.data[off:])
		off += size
	}
	return off
}

// span returns the byte range of amount units starting at the 1-based offset.
func (l *lob) span(offset, amount uint64) (int, int) {
	start := l.byteOffset(offset - 1)
	if !l.character() {
		end := uint64(start) + amount
		if end > uint64(len(l.data)) {
			end = uint64(len(l.data))
		}
		return start, int(end)
	}
	end := start
	for n := uint64(0); n < amount && end < len(l.data); n++ {
		_, size := utf8.DecodeRune(l.data[end:])
		end += size
	}
	return start, end
}

// write overwrites data at the 1-based offset, padding any gap.
func (l *lob) write(offset uint64, data []byte) {
	have := l.units()
	if offset-1 > have {
		pad := byte(0)
		if l.character() {
			pad = ' '
		}
		for n := have; n < offset-1; n++ {
			l.data = append(l.data, pad)
		}
	}
	start, end := l.span(offset, l.count(data))
	out := make([]byte, 0, start+len(data)+len(l.data)-end)
	out = append(out, l.data[:start]...)
	out = append(out, data...)
	out = append(out, l.data[end:]...)
	l.data = out
}
