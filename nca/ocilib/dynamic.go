package ocilib

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/semihalev/go-orabridge/nca"
)

// OCI callbacks receive an integer context; dynBinds maps it back to the
// bind state.
var (
	cbOnce      sync.Once
	inCB, outCB uintptr
	dynMu       sync.Mutex
	dynBinds    = make(map[uintptr]*dynBind)
	dynNext     uintptr
)

// dynBind is the state of one OCIBindDynamic registration.
type dynBind struct {
	id     uintptr
	a      *Adapter
	ec     nca.ErrorContext
	binder nca.DynamicBinder
	// mem holds the indicator handed to OCI for input pieces and a scratch
	// slot for iterations that return no rows.
	mem     []byte
	rows    uint32
	counted bool
	err     error
}

func (a *Adapter) newDynBind(ec nca.ErrorContext, binder nca.DynamicBinder) (*dynBind, error) {
	mem, err := a.Alloc(16)
	if err != nil {
		return nil, err
	}
	dynMu.Lock()
	dynNext++
	d := &dynBind{id: dynNext, a: a, ec: ec, binder: binder, mem: mem}
	dynBinds[d.id] = d
	dynMu.Unlock()
	return d, nil
}

func (d *dynBind) release() {
	dynMu.Lock()
	delete(dynBinds, d.id)
	dynMu.Unlock()
	d.a.Free(d.mem)
}

func lookupDyn(id uintptr) *dynBind {
	dynMu.Lock()
	defer dynMu.Unlock()
	return dynBinds[id]
}

// callbacks creates the two C entry points once per process.
func callbacks() (in, out uintptr) {
	cbOnce.Do(func() {
		inCB = purego.NewCallback(inBind)
		outCB = purego.NewCallback(outBind)
	})
	return inCB, outCB
}

func status(s int32) uintptr {
	return uintptr(uint32(s))
}

func inBind(ctx, bind uintptr, iter, index uint32, bufpp *unsafe.Pointer, alenp *uint32, piecep *uint8, indpp *unsafe.Pointer) uintptr {
	d := lookupDyn(ctx)
	if d == nil {
		return status(ociError)
	}
	p := d.binder.In(iter, index)
	ind := (*int16)(ptr(d.mem))
	*ind = p.Indicator
	*bufpp = ptr(p.Value)
	*alenp = uint32(len(p.Value))
	*piecep = p.Piece
	*indpp = unsafe.Pointer(ind)
	return status(ociContinue)
}

func outBind(ctx, bind uintptr, iter, index uint32, bufpp *unsafe.Pointer, alenpp **uint32, piecep *uint8, indpp *unsafe.Pointer, rcodepp **uint16) uintptr {
	d := lookupDyn(ctx)
	if d == nil {
		return status(ociError)
	}
	if index == 0 {
		d.counted = false
		n, err := d.returned(bind)
		if err != nil {
			d.err = err
			return status(ociError)
		}
		if n == 0 {
			// OCI asks for one slot even when the iteration returned no rows.
			scratch := d.mem[8:16]
			*bufpp = nil
			*alenpp = (*uint32)(unsafe.Pointer(&scratch[0]))
			*indpp = unsafe.Pointer(&scratch[4])
			*rcodepp = (*uint16)(unsafe.Pointer(&scratch[6]))
			*piecep = nca.OnePiece
			return status(ociContinue)
		}
	}
	slot, err := d.binder.Out(iter, index, func() (uint32, error) { return d.returned(bind) })
	if err != nil {
		d.err = err
		return status(ociError)
	}
	*bufpp = ptr(slot.Value)
	*alenpp = slot.Length
	*piecep = slot.Piece
	*indpp = unsafe.Pointer(slot.Indicator)
	*rcodepp = slot.ReturnCode
	return status(ociContinue)
}

// returned reads the number of rows the current iteration returned.
func (d *dynBind) returned(bind uintptr) (uint32, error) {
	if d.counted {
		return d.rows, nil
	}
	var n uint32
	st := d.a.lib.AttrGet(bind, htypeBind, unsafe.Pointer(&n), nil, attrRowsReturned, uintptr(d.ec))
	if err := d.a.check(d.ec, st, "OCIAttrGet(rows returned)"); err != nil {
		return 0, err
	}
	d.rows, d.counted = n, true
	return n, nil
}
