package ocilib

import (
	"unsafe"

	"github.com/semihalev/go-orabridge/nca"
)

// AllocSlot creates a LOB locator or a statement handle for a define or
// OUT bind element.
func (a *Adapter) AllocSlot(ec nca.ErrorContext, conn nca.Handle, native nca.NativeType, dbType nca.DBType) (nca.Handle, error) {
	var h uintptr
	switch native {
	case nca.NativeLob:
		dtype := uint32(dtypeLob)
		if dbType == nca.DBTypeBFile {
			dtype = dtypeFile
		}
		if st := a.lib.DescriptorAlloc(a.env, unsafe.Pointer(&h), dtype, 0, nil); st != ociSuccess {
			return 0, &nca.Error{Message: "allocate LOB locator", Func: "OCIDescriptorAlloc"}
		}
		a.mu.Lock()
		a.lobs[nca.Handle(h)] = dbType
		a.mu.Unlock()
	case nca.NativeStmt:
		if st := a.lib.HandleAlloc(a.env, unsafe.Pointer(&h), htypeStmt, 0, nil); st != ociSuccess {
			return 0, &nca.Error{Message: "allocate cursor handle", Func: "OCIHandleAlloc"}
		}
	default:
		return 0, nca.ErrNotSupported
	}
	return nca.Handle(h), nil
}

func (a *Adapter) FreeSlot(ec nca.ErrorContext, native nca.NativeType, h nca.Handle) error {
	switch native {
	case nca.NativeLob:
		dtype := uint32(dtypeLob)
		if a.lobType(h) == nca.DBTypeBFile {
			dtype = dtypeFile
		}
		a.forgetLob(h)
		a.lib.DescriptorFree(uintptr(h), dtype)
	case nca.NativeStmt:
		a.dropStmt(h)
		a.lib.HandleFree(uintptr(h), htypeStmt)
	default:
		return nca.ErrNotSupported
	}
	return nil
}

func (a *Adapter) lobType(h nca.Handle) nca.DBType {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lobs[h]
}

func (a *Adapter) forgetLob(h nca.Handle) {
	a.mu.Lock()
	delete(a.lobs, h)
	a.mu.Unlock()
}

func (a *Adapter) LobChunkSize(ec nca.ErrorContext, conn, lob nca.Handle) (uint32, error) {
	var n uint32
	st := a.lib.LobGetChunkSize(uintptr(conn), uintptr(ec), uintptr(lob), unsafe.Pointer(&n))
	return n, a.check(ec, st, "OCILobGetChunkSize")
}

func (a *Adapter) LobLength(ec nca.ErrorContext, conn, lob nca.Handle) (uint64, error) {
	var n uint64
	st := a.lib.LobGetLength2(uintptr(conn), uintptr(ec), uintptr(lob), unsafe.Pointer(&n))
	return n, a.check(ec, st, "OCILobGetLength2")
}

// LobRead reads in characters for CLOB and NCLOB locators and in bytes
// otherwise.
func (a *Adapter) LobRead(ec nca.ErrorContext, conn, lob nca.Handle, offset, amount uint64, buf []byte) (uint64, int, error) {
	dbType := a.lobType(lob)
	var byteAmt, charAmt uint64
	if dbType.IsCharacter() {
		charAmt = amount
	} else {
		byteAmt = amount
	}
	st := a.lib.LobRead2(uintptr(conn), uintptr(ec), uintptr(lob), unsafe.Pointer(&byteAmt), unsafe.Pointer(&charAmt),
		offset, ptr(buf), uint64(len(buf)), nca.OnePiece, 0, 0, 0, charsetForm(dbType))
	if st != ociNeedData && st != ociNoData {
		if err := a.check(ec, st, "OCILobRead2"); err != nil {
			return 0, 0, err
		}
	}
	if dbType.IsCharacter() {
		return charAmt, int(byteAmt), nil
	}
	return byteAmt, int(byteAmt), nil
}

func (a *Adapter) LobWrite(ec nca.ErrorContext, conn, lob nca.Handle, offset uint64, data []byte) (uint64, error) {
	dbType := a.lobType(lob)
	byteAmt, charAmt := uint64(len(data)), uint64(0)
	st := a.lib.LobWrite2(uintptr(conn), uintptr(ec), uintptr(lob), unsafe.Pointer(&byteAmt), unsafe.Pointer(&charAmt),
		offset, ptr(data), uint64(len(data)), nca.OnePiece, 0, 0, 0, charsetForm(dbType))
	if err := a.check(ec, st, "OCILobWrite2"); err != nil {
		return 0, err
	}
	if dbType.IsCharacter() {
		return charAmt, nil
	}
	return byteAmt, nil
}

func (a *Adapter) LobCreateTemp(ec nca.ErrorContext, conn nca.Handle, dbType nca.DBType) (nca.Handle, error) {
	h, err := a.AllocSlot(ec, conn, nca.NativeLob, dbType)
	if err != nil {
		return 0, err
	}
	lobType := uint8(tempClob)
	if dbType == nca.DBTypeBlob {
		lobType = tempBlob
	}
	st := a.lib.LobCreateTemp(uintptr(conn), uintptr(ec), uintptr(h), 0, charsetForm(dbType), lobType, 1, durationSess)
	if err := a.check(ec, st, "OCILobCreateTemporary"); err != nil {
		_ = a.FreeSlot(ec, nca.NativeLob, h)
		return 0, err
	}
	return h, nil
}

func (a *Adapter) LobFree(ec nca.ErrorContext, conn, lob nca.Handle, temp bool) error {
	var err error
	if temp {
		err = a.check(ec, a.lib.LobFreeTemp(uintptr(conn), uintptr(ec), uintptr(lob)), "OCILobFreeTemporary")
	}
	if ferr := a.FreeSlot(ec, nca.NativeLob, lob); err == nil {
		err = ferr
	}
	return err
}
