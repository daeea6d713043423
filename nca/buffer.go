package nca

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// HandleSize is the width of a handle slot in a value array.
const HandleSize = uint32(unsafe.Sizeof(Handle(0)))

// Indicator values.
const (
	IndicatorNull    int16 = -1
	IndicatorNotNull int16 = 0
)

// Buffer is the set of parallel arrays backing one bind or define slot.
// Element i occupies Data[i*ElemSize:(i+1)*ElemSize]; Indicator, Length and
// ReturnCode hold Count elements each.
type Buffer struct {
	Native     NativeType
	DBType     DBType
	ElemSize   uint32
	Count      uint32
	Data       []byte
	Indicator  []int16
	Length     []uint32
	ReturnCode []uint16
	// ActualCount points at the element count for PL/SQL array binds.
	ActualCount *uint32
	IsArray     bool
	// Pieces holds the assembled value of each row for NativeLong slots.
	Pieces [][]byte
}

func (b *Buffer) elem(i uint32) []byte {
	off := i * b.ElemSize
	return b.Data[off : off+b.ElemSize : off+b.ElemSize]
}

// IsNull reports whether element i is null.
func (b *Buffer) IsNull(i uint32) bool {
	return b.Indicator[i] == IndicatorNull
}

// SetNull marks element i as null.
func (b *Buffer) SetNull(i uint32) {
	b.Indicator[i] = IndicatorNull
	b.Length[i] = 0
	if b.Pieces != nil {
		b.Pieces[i] = nil
	}
}

func (b *Buffer) setNotNull(i uint32, n uint32) {
	b.Indicator[i] = IndicatorNotNull
	b.Length[i] = n
}

// Bytes returns element i of a NativeBytes or NativeLong slot. The result
// aliases the buffer.
func (b *Buffer) Bytes(i uint32) []byte {
	if b.Native == NativeLong {
		return b.Pieces[i]
	}
	n := b.Length[i]
	if n > b.ElemSize {
		n = b.ElemSize
	}
	return b.elem(i)[:n]
}

// SetBytes copies v into element i. It reports false when v does not fit.
func (b *Buffer) SetBytes(i uint32, v []byte) bool {
	if b.Native == NativeLong {
		b.Pieces[i] = append([]byte(nil), v...)
		b.setNotNull(i, uint32(len(v)))
		return true
	}
	if uint32(len(v)) > b.ElemSize {
		return false
	}
	copy(b.elem(i), v)
	b.setNotNull(i, uint32(len(v)))
	return true
}

// Int64 returns element i of a NativeInt64 slot.
func (b *Buffer) Int64(i uint32) int64 {
	return int64(binary.NativeEndian.Uint64(b.elem(i)))
}

// SetInt64 stores v at element i.
func (b *Buffer) SetInt64(i uint32, v int64) {
	binary.NativeEndian.PutUint64(b.elem(i), uint64(v))
	b.setNotNull(i, 8)
}

// Uint64 returns element i of a NativeUint64 slot.
func (b *Buffer) Uint64(i uint32) uint64 {
	return binary.NativeEndian.Uint64(b.elem(i))
}

// SetUint64 stores v at element i.
func (b *Buffer) SetUint64(i uint32, v uint64) {
	binary.NativeEndian.PutUint64(b.elem(i), v)
	b.setNotNull(i, 8)
}

// Float64 returns element i of a NativeFloat64 slot.
func (b *Buffer) Float64(i uint32) float64 {
	return math.Float64frombits(binary.NativeEndian.Uint64(b.elem(i)))
}

// SetFloat64 stores v at element i.
func (b *Buffer) SetFloat64(i uint32, v float64) {
	binary.NativeEndian.PutUint64(b.elem(i), math.Float64bits(v))
	b.setNotNull(i, 8)
}

// Bool returns element i of a NativeBool slot.
func (b *Buffer) Bool(i uint32) bool {
	return binary.NativeEndian.Uint32(b.elem(i)) != 0
}

// SetBool stores v at element i.
func (b *Buffer) SetBool(i uint32, v bool) {
	var n uint32
	if v {
		n = 1
	}
	binary.NativeEndian.PutUint32(b.elem(i), n)
	b.setNotNull(i, 4)
}

// Timestamp returns the encoded timestamp at element i.
func (b *Buffer) Timestamp(i uint32) []byte {
	return b.elem(i)[:TimestampSize]
}

// SetTimestamp stores an encoded timestamp at element i.
func (b *Buffer) SetTimestamp(i uint32, enc []byte) {
	copy(b.elem(i), enc[:TimestampSize])
	b.setNotNull(i, TimestampSize)
}

// Interval returns the nanosecond count at element i.
func (b *Buffer) Interval(i uint32) int64 {
	return b.Int64(i)
}

// SetInterval stores a nanosecond count at element i.
func (b *Buffer) SetInterval(i uint32, ns int64) {
	b.SetInt64(i, ns)
}

// Handle returns the handle stored at element i.
func (b *Buffer) Handle(i uint32) Handle {
	return Handle(binary.NativeEndian.Uint64(b.elem(i)))
}

// SetHandle stores h at element i without touching the indicator.
func (b *Buffer) SetHandle(i uint32, h Handle) {
	binary.NativeEndian.PutUint64(b.elem(i), uint64(h))
}

// Elements returns the number of elements in use: *ActualCount for array
// binds, Count otherwise.
func (b *Buffer) Elements() uint32 {
	if b.IsArray && b.ActualCount != nil {
		return *b.ActualCount
	}
	return b.Count
}
