// Package ocilib implements nca.Adapter on the Oracle Call Interface. The
// client library (libclntsh, oci.dll) is loaded at run time with purego, so
// the package builds without cgo or Oracle headers.
//
// Object types are not supported; their calls return nca.ErrNotSupported.
// LONG, LONG RAW and JSON columns are fetched through a fixed-size define of
// LongDefineSize bytes per row.
package ocilib

import (
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// OCI handle, descriptor and attribute numbers from oci.h.
const (
	ociDefault     = 0
	ociThreaded    = 0x1
	ociSuccess     = 0
	ociSuccessInfo = 1
	ociNeedData    = 99
	ociNoData      = 100
	ociError       = -1
	ociInvalid     = -2
	ociContinue    = -24200

	htypeEnv    = 1
	htypeError  = 2
	htypeSvcCtx = 3
	htypeStmt   = 4
	htypeBind   = 5

	dtypeLob       = 50
	dtypeFile      = 56
	dtypeParam     = 53
	dtypeRowid     = 4
	dtypeTimestamp = 70
	dtypeIntervDS  = 63

	attrDataSize       = 1
	attrDataType       = 2
	attrName           = 4
	attrPrecision      = 5
	attrScale          = 6
	attrIsNull         = 7
	attrTypeName       = 8
	attrSchemaName     = 9
	attrParamCount     = 18
	attrRowid          = 19
	attrStmtType       = 24
	attrCharsetForm    = 32
	attrNumDMLErrors   = 73
	attrDMLRowOffset   = 74
	attrParseErrOffset = 129
	attrRowsFetched    = 197
	attrIsReturning    = 218
	attrCharSize       = 286
	attrRowsReturned   = 409
	attrUB8RowCount    = 457
	attrDMLRowCounts   = 469
	attrRecoverable    = 472

	ntvSyntax    = 1
	fetchNext    = 2
	dataAtExec   = 2
	durationSess = 10
	tempBlob     = 1
	tempClob     = 2

	csImplicit = 1
	csNChar    = 2
	charsetUTF = 873
)

// External data types used for binds and defines.
const (
	sqltChr      = 1
	sqltInt      = 3
	sqltBDouble  = 22
	sqltBin      = 23
	sqltUin      = 68
	sqltRset     = 116
	sqltClob     = 112
	sqltBlob     = 113
	sqltBFile    = 114
	sqltTSTZ     = 188
	sqltIntervDS = 190
	sqltBool     = 252
)

// oci holds the entry points used by the adapter.
type oci struct {
	handle uintptr

	EnvNlsCreate    func(envp unsafe.Pointer, mode uint32, ctx, malloc, realloc, free uintptr, xtra uintptr, usrmem unsafe.Pointer, charset, ncharset uint16) int32
	HandleAlloc     func(parent uintptr, hndlp unsafe.Pointer, typ uint32, xtra uintptr, usrmem unsafe.Pointer) int32
	HandleFree      func(h uintptr, typ uint32) int32
	DescriptorAlloc func(parent uintptr, descp unsafe.Pointer, typ uint32, xtra uintptr, usrmem unsafe.Pointer) int32
	DescriptorFree  func(d uintptr, typ uint32) int32
	ErrorGet        func(h uintptr, recordno uint32, sqlstate unsafe.Pointer, code unsafe.Pointer, buf unsafe.Pointer, size uint32, typ uint32) int32
	AttrGet         func(h uintptr, typ uint32, attr unsafe.Pointer, size unsafe.Pointer, attrtype uint32, errh uintptr) int32
	AttrSet         func(h uintptr, typ uint32, attr unsafe.Pointer, size uint32, attrtype uint32, errh uintptr) int32
	ParamGet        func(h uintptr, typ uint32, errh uintptr, parm unsafe.Pointer, pos uint32) int32
	Logon2          func(env, errh uintptr, svcp unsafe.Pointer, user string, ulen uint32, pass string, plen uint32, db string, dlen uint32, mode uint32) int32
	Logoff          func(svc, errh uintptr) int32
	Ping            func(svc, errh uintptr, mode uint32) int32
	Break           func(h, errh uintptr) int32
	Reset           func(h, errh uintptr) int32
	TransCommit     func(svc, errh uintptr, flags uint32) int32
	TransRollback   func(svc, errh uintptr, flags uint32) int32
	ServerRelease2  func(h, errh uintptr, buf unsafe.Pointer, size uint32, htype uint8, version unsafe.Pointer, mode uint32) int32
	StmtPrepare2    func(svc uintptr, stmtp unsafe.Pointer, errh uintptr, sql string, slen uint32, key unsafe.Pointer, klen uint32, lang uint32, mode uint32) int32
	StmtRelease     func(stmt, errh uintptr, key unsafe.Pointer, klen uint32, mode uint32) int32
	StmtGetBindInfo func(stmt, errh uintptr, size, start uint32, found unsafe.Pointer, names unsafe.Pointer, nameLens unsafe.Pointer, inds unsafe.Pointer, indLens unsafe.Pointer, dups unsafe.Pointer, binds unsafe.Pointer) int32
	BindByPos2      func(stmt uintptr, bindp unsafe.Pointer, errh uintptr, pos uint32, value unsafe.Pointer, size int64, dty uint16, ind, alen, rcode unsafe.Pointer, maxarr uint32, curele unsafe.Pointer, mode uint32) int32
	BindByName2     func(stmt uintptr, bindp unsafe.Pointer, errh uintptr, name string, nlen int32, value unsafe.Pointer, size int64, dty uint16, ind, alen, rcode unsafe.Pointer, maxarr uint32, curele unsafe.Pointer, mode uint32) int32
	BindDynamic     func(bind, errh uintptr, ictx uintptr, icb uintptr, octx uintptr, ocb uintptr) int32
	StmtExecute     func(svc, stmt, errh uintptr, iters, rowoff uint32, snapIn, snapOut uintptr, mode uint32) int32
	DefineByPos2    func(stmt uintptr, defnp unsafe.Pointer, errh uintptr, pos uint32, value unsafe.Pointer, size int64, dty uint16, ind, rlen, rcode unsafe.Pointer, mode uint32) int32
	StmtFetch2      func(stmt, errh uintptr, rows uint32, orientation uint16, offset int32, mode uint32) int32
	RowidToChar     func(rowid uintptr, buf unsafe.Pointer, size unsafe.Pointer, errh uintptr) int32
	DateTimeSet     func(env, errh, dt uintptr, year int16, month, day, hour, min, sec uint8, fsec uint32, tz unsafe.Pointer, tzlen uintptr) int32
	DateTimeGetDate func(env, errh, dt uintptr, year, month, day unsafe.Pointer) int32
	DateTimeGetTime func(env, errh, dt uintptr, hour, min, sec, fsec unsafe.Pointer) int32
	DateTimeGetTZ   func(env, errh, dt uintptr, hour, min unsafe.Pointer) int32
	IntervalSetDS   func(env, errh uintptr, dd, hh, mm, ss, fsec int32, result uintptr) int32
	IntervalGetDS   func(env, errh uintptr, dd, hh, mm, ss, fsec unsafe.Pointer, interval uintptr) int32
	LobGetChunkSize func(svc, errh, loc uintptr, size unsafe.Pointer) int32
	LobGetLength2   func(svc, errh, loc uintptr, length unsafe.Pointer) int32
	LobRead2        func(svc, errh, loc uintptr, byteAmt, charAmt unsafe.Pointer, offset uint64, buf unsafe.Pointer, buflen uint64, piece uint8, ctx, cb uintptr, csid uint16, csfrm uint8) int32
	LobWrite2       func(svc, errh, loc uintptr, byteAmt, charAmt unsafe.Pointer, offset uint64, buf unsafe.Pointer, buflen uint64, piece uint8, ctx, cb uintptr, csid uint16, csfrm uint8) int32
	LobCreateTemp   func(svc, errh, loc uintptr, csid uint16, csfrm, lobtype uint8, cache int32, duration uint16) int32
	LobFreeTemp     func(svc, errh, loc uintptr) int32
}

// symbols maps each entry point to its exported name.
func (o *oci) symbols() map[string]any {
	return map[string]any{
		"OCIEnvNlsCreate":              &o.EnvNlsCreate,
		"OCIHandleAlloc":               &o.HandleAlloc,
		"OCIHandleFree":                &o.HandleFree,
		"OCIDescriptorAlloc":           &o.DescriptorAlloc,
		"OCIDescriptorFree":            &o.DescriptorFree,
		"OCIErrorGet":                  &o.ErrorGet,
		"OCIAttrGet":                   &o.AttrGet,
		"OCIAttrSet":                   &o.AttrSet,
		"OCIParamGet":                  &o.ParamGet,
		"OCILogon2":                    &o.Logon2,
		"OCILogoff":                    &o.Logoff,
		"OCIPing":                      &o.Ping,
		"OCIBreak":                     &o.Break,
		"OCIReset":                     &o.Reset,
		"OCITransCommit":               &o.TransCommit,
		"OCITransRollback":             &o.TransRollback,
		"OCIServerRelease2":            &o.ServerRelease2,
		"OCIStmtPrepare2":              &o.StmtPrepare2,
		"OCIStmtRelease":               &o.StmtRelease,
		"OCIStmtGetBindInfo":           &o.StmtGetBindInfo,
		"OCIBindByPos2":                &o.BindByPos2,
		"OCIBindByName2":               &o.BindByName2,
		"OCIBindDynamic":               &o.BindDynamic,
		"OCIStmtExecute":               &o.StmtExecute,
		"OCIDefineByPos2":              &o.DefineByPos2,
		"OCIStmtFetch2":                &o.StmtFetch2,
		"OCIRowidToChar":               &o.RowidToChar,
		"OCIDateTimeConstruct":         &o.DateTimeSet,
		"OCIDateTimeGetDate":           &o.DateTimeGetDate,
		"OCIDateTimeGetTime":           &o.DateTimeGetTime,
		"OCIDateTimeGetTimeZoneOffset": &o.DateTimeGetTZ,
		"OCIIntervalSetDaySecond":      &o.IntervalSetDS,
		"OCIIntervalGetDaySecond":      &o.IntervalGetDS,
		"OCILobGetChunkSize":           &o.LobGetChunkSize,
		"OCILobGetLength2":             &o.LobGetLength2,
		"OCILobRead2":                  &o.LobRead2,
		"OCILobWrite2":                 &o.LobWrite2,
		"OCILobCreateTemporary":        &o.LobCreateTemp,
		"OCILobFreeTemporary":          &o.LobFreeTemp,
	}
}

// loadOCI opens the client library at path, or searches the usual
// locations when path is empty, and resolves every entry point.
func loadOCI(path string) (*oci, error) {
	if path == "" {
		path = findLibrary()
	}
	if path == "" {
		return nil, errors.Errorf("Oracle client library %s not found", libraryName())
	}
	h, err := openLibrary(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	o := &oci{handle: h}
	for name, fptr := range o.symbols() {
		sym, err := symbol(h, name)
		if err != nil {
			closeLibrary(h)
			return nil, errors.Wrapf(err, "resolve %s", name)
		}
		purego.RegisterFunc(fptr, sym)
	}
	return o, nil
}

// findLibrary looks for the client library next to the executable, in
// ORACLE_HOME and in the Instant Client directory, and falls back to the
// bare name for the system loader.
func findLibrary() string {
	name := libraryName()
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home := os.Getenv("ORACLE_HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, "lib"), home)
	}
	if ic := os.Getenv("OCI_LIB_DIR"); ic != "" {
		dirs = append(dirs, ic)
	}
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, filepath.Join(os.Getenv("HOME"), "Downloads", "instantclient"))
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return name
}
