package ocilib

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/semihalev/go-orabridge/nca"
)

// LongDefineSize is the per-row define size for LONG, LONG RAW and JSON
// columns.
const LongDefineSize = 64 * 1024

// Adapter implements nca.Adapter on one OCI environment created in
// threaded mode. Handles may be used from any worker, one call at a time.
type Adapter struct {
	lib *oci
	env uintptr

	mu     sync.Mutex
	pins   map[*byte]*runtime.Pinner
	stmts  map[nca.Handle]*stmt
	lobs   map[nca.Handle]nca.DBType
	closed bool
}

var _ nca.Adapter = (*Adapter)(nil)

// Open loads the client library at path, or from the default search
// locations when path is empty, and creates a UTF-8 environment.
func Open(path string) (*Adapter, error) {
	lib, err := loadOCI(path)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		lib:   lib,
		pins:  make(map[*byte]*runtime.Pinner),
		stmts: make(map[nca.Handle]*stmt),
		lobs:  make(map[nca.Handle]nca.DBType),
	}
	status := lib.EnvNlsCreate(unsafe.Pointer(&a.env), ociThreaded, 0, 0, 0, 0, 0, nil, charsetUTF, charsetUTF)
	if status != ociSuccess {
		closeLibrary(lib.handle)
		return nil, errors.Errorf("OCIEnvNlsCreate failed with status %d", status)
	}
	return a, nil
}

// Close frees the environment. Every handle must have been released.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.lib.HandleFree(a.env, htypeEnv)
	for p, pin := range a.pins {
		pin.Unpin()
		delete(a.pins, p)
	}
	return nil
}

// Alloc returns pinned Go memory; OCI keeps pointers into bind and define
// buffers between calls.
func (a *Adapter) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		size = 1
	}
	b := make([]byte, size)
	pin := new(runtime.Pinner)
	pin.Pin(&b[0])
	a.mu.Lock()
	a.pins[&b[0]] = pin
	a.mu.Unlock()
	return b, nil
}

// Free unpins memory returned by Alloc.
func (a *Adapter) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	p := &b[:1][0]
	a.mu.Lock()
	pin, ok := a.pins[p]
	delete(a.pins, p)
	a.mu.Unlock()
	if ok {
		pin.Unpin()
	}
}

func (a *Adapter) NewErrorContext() (nca.ErrorContext, error) {
	var h uintptr
	if status := a.lib.HandleAlloc(a.env, unsafe.Pointer(&h), htypeError, 0, nil); status != ociSuccess {
		return 0, errors.Errorf("allocate error handle: status %d", status)
	}
	return nca.ErrorContext(h), nil
}

func (a *Adapter) FreeErrorContext(ec nca.ErrorContext) {
	a.lib.HandleFree(uintptr(ec), htypeError)
}

func (a *Adapter) Connect(ec nca.ErrorContext, p nca.ConnectParams) (nca.Handle, error) {
	var svc uintptr
	status := a.lib.Logon2(a.env, uintptr(ec), unsafe.Pointer(&svc),
		p.Username, uint32(len(p.Username)),
		p.Password, uint32(len(p.Password)),
		p.ConnectString, uint32(len(p.ConnectString)), ociDefault)
	if err := a.check(ec, status, "OCILogon2"); err != nil {
		return 0, err
	}
	return nca.Handle(svc), nil
}

func (a *Adapter) Disconnect(ec nca.ErrorContext, conn nca.Handle) error {
	return a.check(ec, a.lib.Logoff(uintptr(conn), uintptr(ec)), "OCILogoff")
}

func (a *Adapter) Ping(ec nca.ErrorContext, conn nca.Handle) error {
	return a.check(ec, a.lib.Ping(uintptr(conn), uintptr(ec), ociDefault), "OCIPing")
}

// Break interrupts the call running on conn. It uses a private error
// handle because the running call owns the caller's.
func (a *Adapter) Break(conn nca.Handle) error {
	ec, err := a.NewErrorContext()
	if err != nil {
		return err
	}
	defer a.FreeErrorContext(ec)
	if err := a.check(ec, a.lib.Break(uintptr(conn), uintptr(ec)), "OCIBreak"); err != nil {
		return err
	}
	return a.check(ec, a.lib.Reset(uintptr(conn), uintptr(ec)), "OCIReset")
}

func (a *Adapter) Commit(ec nca.ErrorContext, conn nca.Handle) error {
	return a.check(ec, a.lib.TransCommit(uintptr(conn), uintptr(ec), ociDefault), "OCITransCommit")
}

func (a *Adapter) Rollback(ec nca.ErrorContext, conn nca.Handle) error {
	return a.check(ec, a.lib.TransRollback(uintptr(conn), uintptr(ec), ociDefault), "OCITransRollback")
}

// ServerVersion returns the five-part release number, for example
// 19.3.0.0.0.
func (a *Adapter) ServerVersion(ec nca.ErrorContext, conn nca.Handle) (string, error) {
	var v uint32
	buf := make([]byte, 512)
	status := a.lib.ServerRelease2(uintptr(conn), uintptr(ec), unsafe.Pointer(&buf[0]), uint32(len(buf)), htypeSvcCtx, unsafe.Pointer(&v), ociDefault)
	if err := a.check(ec, status, "OCIServerRelease2"); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d.%d.%d", v>>24&0xff, v>>16&0xff, v>>12&0x0f, v>>4&0xff, v&0x0f), nil
}

// DescribeObjectType is not supported.
func (a *Adapter) DescribeObjectType(ec nca.ErrorContext, conn nca.Handle, name string) (nca.ObjectTypeInfo, error) {
	return nca.ObjectTypeInfo{}, nca.ErrNotSupported
}

// NewObject is not supported.
func (a *Adapter) NewObject(ec nca.ErrorContext, conn nca.Handle, typ nca.ObjectTypeInfo, attrs map[string]any) (nca.Handle, error) {
	return 0, nca.ErrNotSupported
}

// ObjectAttributes is not supported.
func (a *Adapter) ObjectAttributes(ec nca.ErrorContext, conn, obj nca.Handle) (map[string]any, error) {
	return nil, nca.ErrNotSupported
}
