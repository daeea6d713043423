package orabridge

import (
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/semihalev/go-orabridge/nca"
)

// varBuffer is the scratch memory behind one bind or define slot: parallel
// indicator, length, return code and value arrays carved out of a single
// block of adapter memory. It is never resized; callers release it and
// allocate a new one.
type varBuffer struct {
	nca.Buffer
	adapter nca.Adapter
	block   []byte
	// slots tracks handles created with AllocSlot for LOB, cursor and
	// object elements; a zero entry has been taken by a Go wrapper.
	slots    []nca.Handle
	released bool
}

func alignUp[T constraints.Integer](n, align T) T {
	return (n + align - 1) / align * align
}

func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// newVarBuffer allocates arrays for count elements of elemSize bytes each.
// count is raised to at least 1.
func newVarBuffer(a nca.Adapter, native nca.NativeType, dbType nca.DBType, elemSize, count uint32) (*varBuffer, error) {
	count = maxOf(count, 1)
	if fixed := native.FixedSize(); fixed > 0 {
		elemSize = fixed
	}
	if native == nca.NativeLong {
		elemSize = 0
	}

	n := uintptr(count)
	indOff := uintptr(0)
	lenOff := alignUp(indOff+2*n, 4)
	rcOff := lenOff + 4*n
	actOff := alignUp(rcOff+2*n, 4)
	dataOff := alignUp(actOff+4, 8)
	total := dataOff + n*uintptr(elemSize)

	block, err := a.Alloc(int(total))
	if err != nil {
		return nil, usageError(24, "memory allocation failed")
	}
	base := unsafe.Pointer(unsafe.SliceData(block))

	b := &varBuffer{adapter: a, block: block}
	b.Native = native
	b.DBType = dbType
	b.ElemSize = elemSize
	b.Count = count
	b.Indicator = unsafe.Slice((*int16)(unsafe.Add(base, indOff)), count)
	b.Length = unsafe.Slice((*uint32)(unsafe.Add(base, lenOff)), count)
	b.ReturnCode = unsafe.Slice((*uint16)(unsafe.Add(base, rcOff)), count)
	b.ActualCount = (*uint32)(unsafe.Add(base, actOff))
	b.Data = block[dataOff:total:total]
	if native == nca.NativeLong {
		b.Pieces = make([][]byte, count)
	}
	for i := range b.Indicator {
		b.Indicator[i] = nca.IndicatorNull
		b.Length[i] = elemSize
	}
	return b, nil
}

// allocSlots creates a native handle for every element of a LOB, cursor or
// object buffer.
func (b *varBuffer) allocSlots(ec nca.ErrorContext, conn nca.Handle) error {
	if !b.Native.HoldsHandle() {
		return nil
	}
	if b.slots == nil {
		b.slots = make([]nca.Handle, b.Count)
	}
	for i := range b.slots {
		if b.slots[i] != 0 {
			continue
		}
		h, err := b.adapter.AllocSlot(ec, conn, b.Native, b.DBType)
		if err != nil {
			return err
		}
		b.slots[i] = h
		b.SetHandle(uint32(i), h)
	}
	return nil
}

// takeSlot hands ownership of element i's handle to the caller. The slot is
// re-created by the next allocSlots.
func (b *varBuffer) takeSlot(i uint32) nca.Handle {
	h := b.slots[i]
	b.slots[i] = 0
	b.SetHandle(i, 0)
	return h
}

// setExternal stores a handle owned elsewhere at element i.
func (b *varBuffer) setExternal(i uint32, h nca.Handle) {
	b.SetHandle(i, h)
	b.Indicator[i] = nca.IndicatorNotNull
	b.Length[i] = nca.HandleSize
}

// release frees remaining slot handles and the memory block. It is safe to
// call more than once.
func (b *varBuffer) release(ec nca.ErrorContext) {
	if b == nil || b.released {
		return
	}
	b.released = true
	for _, h := range b.slots {
		if h != 0 {
			_ = b.adapter.FreeSlot(ec, b.Native, h)
		}
	}
	b.slots = nil
	b.adapter.Free(b.block)
	b.block = nil
	b.Data = nil
}
