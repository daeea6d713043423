package ocilib

import (
	"bytes"
	"unsafe"

	"github.com/semihalev/go-orabridge/nca"
)

// check converts an OCI status into an error, reading the message from
// the error handle ec.
func (a *Adapter) check(ec nca.ErrorContext, status int32, fn string) error {
	switch status {
	case ociSuccess, ociSuccessInfo:
		return nil
	case ociInvalid:
		return &nca.Error{Code: nca.CodeInvalidHandle, Message: "OCI_INVALID_HANDLE", Func: fn}
	case ociNoData:
		return &nca.Error{Code: nca.CodeNoData, Message: "ORA-01403: no data found", Func: fn}
	}
	e := a.errorFrom(uintptr(ec), htypeError)
	e.Func = fn

	var off uint16
	a.lib.AttrGet(uintptr(ec), htypeError, unsafe.Pointer(&off), nil, attrParseErrOffset, uintptr(ec))
	e.Offset = uint32(off)
	var recoverable uint8
	a.lib.AttrGet(uintptr(ec), htypeError, unsafe.Pointer(&recoverable), nil, attrRecoverable, uintptr(ec))
	e.Recoverable = recoverable != 0
	return e
}

// errorFrom reads the first error record of h.
func (a *Adapter) errorFrom(h uintptr, htype uint32) *nca.Error {
	var code int32
	buf := make([]byte, 3072)
	a.lib.ErrorGet(h, 1, nil, unsafe.Pointer(&code), unsafe.Pointer(&buf[0]), uint32(len(buf)), htype)
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return &nca.Error{Code: int(code), Message: string(bytes.TrimRight(buf, "\n"))}
}
