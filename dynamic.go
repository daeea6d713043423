package orabridge

import (
	"fmt"

	"github.com/semihalev/go-orabridge/nca"
)

// returnedRows holds the values returned for one iteration.
type returnedRows struct {
	count uint32
	buf   *varBuffer
}

// dynamicOutBind supplies per-row buffers for a DML RETURNING OUT bind.
// The row count of an iteration is only known once the server starts
// returning rows, so the buffer for an iteration is allocated on the first
// output callback of that iteration.
type dynamicOutBind struct {
	v  *bindVar
	tc *TaskContext

	iters []*returnedRows
	// cur is the iteration being filled; it is cleared after its last row.
	cur *returnedRows
	err error
}

var _ nca.DynamicBinder = (*dynamicOutBind)(nil)

func newDynamicOutBind(tc *TaskContext, v *bindVar, iters uint32) (*dynamicOutBind, error) {
	if v.native.HoldsHandle() || v.native == nca.NativeLong {
		return nil, usageError(28, "%s is not supported for DML RETURNING bind %s", v.dbType, v.slotName())
	}
	return &dynamicOutBind{
		v:     v,
		tc:    tc,
		iters: make([]*returnedRows, maxOf(iters, 1)),
	}, nil
}

// In reports a null input value; RETURNING binds carry no input.
func (d *dynamicOutBind) In(iter, index uint32) nca.InPiece {
	return nca.InPiece{Indicator: nca.IndicatorNull, Piece: nca.OnePiece}
}

// Out returns the slot for row index of iteration iter.
func (d *dynamicOutBind) Out(iter, index uint32, rows func() (uint32, error)) (nca.OutSlot, error) {
	if int(iter) >= len(d.iters) {
		return nca.OutSlot{}, d.fail(fmt.Errorf("iteration %d out of range", iter))
	}
	if index == 0 {
		n, err := rows()
		if err != nil {
			return nca.OutSlot{}, d.fail(err)
		}
		buf, err := newVarBuffer(d.tc.Adapter(), d.v.native, d.v.dbType, d.v.maxSize, n)
		if err != nil {
			return nca.OutSlot{}, d.fail(err)
		}
		d.tc.OwnBuffer(buf)
		d.cur = &returnedRows{count: n, buf: buf}
		d.iters[iter] = d.cur
	}
	cur := d.cur
	if cur == nil || index >= cur.count {
		return nca.OutSlot{}, d.fail(fmt.Errorf("row %d of iteration %d was not announced", index, iter))
	}

	buf := cur.buf
	off := index * buf.ElemSize
	buf.Length[index] = buf.ElemSize
	slot := nca.OutSlot{
		Value:      buf.Data[off : off+buf.ElemSize : off+buf.ElemSize],
		Length:     &buf.Length[index],
		Indicator:  &buf.Indicator[index],
		ReturnCode: &buf.ReturnCode[index],
		Piece:      nca.OnePiece,
	}
	if index == cur.count-1 {
		d.cur = nil
	}
	return slot, nil
}

func (d *dynamicOutBind) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return err
}

// reconcile checks every returned row against the declared size. Overflow
// reported by a return code, or a reported length beyond maxSize, is the
// insufficient-buffer condition.
func (d *dynamicOutBind) reconcile() error {
	if d.err != nil {
		return d.err
	}
	for _, it := range d.iters {
		if it == nil {
			continue
		}
		for i := uint32(0); i < it.count; i++ {
			if it.buf.ReturnCode[i] == nca.CodeValueTooLarge {
				return ErrInsufficientBufferForBinds
			}
			if variableLength(d.v.native) && !it.buf.IsNull(i) && it.buf.Length[i] > d.v.maxSize {
				return ErrInsufficientBufferForBinds
			}
		}
	}
	return nil
}

// values returns the rows returned for iter.
func (d *dynamicOutBind) values(iter int) ([]any, error) {
	it := d.iters[iter]
	if it == nil {
		return []any{}, nil
	}
	out := make([]any, it.count)
	for i := uint32(0); i < it.count; i++ {
		val, err := scalarValue(&it.buf.Buffer, i, false)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// checkStaticOut applies the same overflow rule to a statically bound OUT
// buffer.
func checkStaticOut(v *bindVar) error {
	if v.buf == nil || !v.dir.isOut() || !variableLength(v.native) {
		return nil
	}
	for i := uint32(0); i < v.buf.Elements(); i++ {
		if v.buf.ReturnCode[i] == nca.CodeValueTooLarge {
			return ErrInsufficientBufferForBinds
		}
	}
	return nil
}
