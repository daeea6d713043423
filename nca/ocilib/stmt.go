package ocilib

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/semihalev/go-orabridge/nca"
)

const (
	htypeDefine   = 6
	bindInfoBatch = 64
	handleSize    = int64(nca.HandleSize)
)

// stmt is the adapter-side state of a statement or cursor handle.
type stmt struct {
	h       uintptr
	conn    uintptr
	kind    nca.StmtKind
	binds   []*bound
	defines map[int]*defined
}

// bound is one bind; shadow converts timestamp and interval slots to OCI
// descriptors around each execution.
type bound struct {
	buf    *nca.Buffer
	shadow *shadow
	dyn    *dynBind
}

type defined struct {
	buf    *nca.Buffer
	shadow *shadow
	// long and lens receive LONG data before it is copied to buf.Pieces.
	long []byte
	lens []byte
}

func ptr[T any](s []T) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}

func (a *Adapter) stmt(h nca.Handle) *stmt {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stmts[h]
	if !ok {
		s = &stmt{h: uintptr(h), defines: make(map[int]*defined)}
		a.stmts[h] = s
	}
	return s
}

func (a *Adapter) dropStmt(h nca.Handle) {
	a.mu.Lock()
	s, ok := a.stmts[h]
	delete(a.stmts, h)
	a.mu.Unlock()
	if !ok {
		return
	}
	for _, b := range s.binds {
		a.freeShadow(b.shadow)
		if b.dyn != nil {
			b.dyn.release()
		}
	}
	for _, d := range s.defines {
		a.freeDefine(d)
	}
}

func (a *Adapter) Prepare(ec nca.ErrorContext, conn nca.Handle, sql string) (nca.Handle, error) {
	var h uintptr
	status := a.lib.StmtPrepare2(uintptr(conn), unsafe.Pointer(&h), uintptr(ec), sql, uint32(len(sql)), nil, 0, ntvSyntax, ociDefault)
	if err := a.check(ec, status, "OCIStmtPrepare2"); err != nil {
		return 0, err
	}
	s := a.stmt(nca.Handle(h))
	s.conn = uintptr(conn)
	return nca.Handle(h), nil
}

func (a *Adapter) ReleaseStmt(ec nca.ErrorContext, h nca.Handle) error {
	a.dropStmt(h)
	return a.check(ec, a.lib.StmtRelease(uintptr(h), uintptr(ec), nil, 0, ociDefault), "OCIStmtRelease")
}

func stmtKind(t uint16) nca.StmtKind {
	switch t {
	case 1:
		return nca.StmtQuery
	case 2, 3, 4, 16:
		return nca.StmtDML
	case 8, 9, 10:
		return nca.StmtPLSQL
	case 5, 6, 7:
		return nca.StmtDDL
	}
	return nca.StmtOther
}

func (a *Adapter) StmtInfo(ec nca.ErrorContext, h nca.Handle) (nca.StmtInfo, error) {
	var info nca.StmtInfo
	var typ uint16
	if err := a.attr(ec, uintptr(h), htypeStmt, unsafe.Pointer(&typ), attrStmtType); err != nil {
		return info, err
	}
	info.Kind = stmtKind(typ)
	a.stmt(h).kind = info.Kind

	var returning uint8
	if err := a.attr(ec, uintptr(h), htypeStmt, unsafe.Pointer(&returning), attrIsReturning); err != nil {
		return info, err
	}
	info.IsReturning = returning != 0

	names, err := a.bindNames(ec, uintptr(h))
	if err != nil {
		return info, err
	}
	info.BindNames = names
	return info, nil
}

func (a *Adapter) attr(ec nca.ErrorContext, h uintptr, htype uint32, dst unsafe.Pointer, attr uint32) error {
	return a.check(ec, a.lib.AttrGet(h, htype, dst, nil, attr, uintptr(ec)), fmt.Sprintf("OCIAttrGet(%d)", attr))
}

// bindNames lists the distinct placeholder names in statement order.
func (a *Adapter) bindNames(ec nca.ErrorContext, h uintptr) ([]string, error) {
	var (
		out      []string
		names    = make([]*byte, bindInfoBatch)
		nameLens = make([]uint8, bindInfoBatch)
		inds     = make([]*byte, bindInfoBatch)
		indLens  = make([]uint8, bindInfoBatch)
		dups     = make([]uint8, bindInfoBatch)
		binds    = make([]uintptr, bindInfoBatch)
	)
	for start := uint32(1); ; start += bindInfoBatch {
		var found int32
		status := a.lib.StmtGetBindInfo(h, uintptr(ec), bindInfoBatch, start, unsafe.Pointer(&found),
			ptr(names), ptr(nameLens), ptr(inds), ptr(indLens), ptr(dups), ptr(binds))
		if status == ociNoData {
			return out, nil
		}
		if err := a.check(ec, status, "OCIStmtGetBindInfo"); err != nil {
			return nil, err
		}
		total := found
		if total < 0 {
			total = -total
		}
		n := min(int(total)-int(start)+1, bindInfoBatch)
		for i := 0; i < n; i++ {
			if dups[i] == 0 {
				out = append(out, string(unsafe.Slice(names[i], nameLens[i])))
			}
		}
		if found >= 0 || int(start)+bindInfoBatch > int(total) {
			return out, nil
		}
	}
}

// externalType picks the OCI data type for a slot.
func externalType(native nca.NativeType, dbType nca.DBType) (uint16, error) {
	switch native {
	case nca.NativeBytes, nca.NativeLong:
		if dbType.IsCharacter() || dbType == nca.DBTypeRowid {
			return sqltChr, nil
		}
		return sqltBin, nil
	case nca.NativeInt64:
		return sqltInt, nil
	case nca.NativeUint64:
		return sqltUin, nil
	case nca.NativeFloat64:
		return sqltBDouble, nil
	case nca.NativeBool:
		return sqltBool, nil
	case nca.NativeTimestamp:
		return sqltTSTZ, nil
	case nca.NativeIntervalDS:
		return sqltIntervDS, nil
	case nca.NativeStmt:
		return sqltRset, nil
	case nca.NativeLob:
		switch dbType {
		case nca.DBTypeBlob:
			return sqltBlob, nil
		case nca.DBTypeBFile:
			return sqltBFile, nil
		}
		return sqltClob, nil
	}
	return 0, nca.ErrNotSupported
}

func charsetForm(dbType nca.DBType) uint8 {
	switch dbType {
	case nca.DBTypeNVarchar, nca.DBTypeNChar, nca.DBTypeNClob:
		return csNChar
	}
	return csImplicit
}

// slotArgs returns the value pointer and element size OCI sees for buf.
func slotArgs(buf *nca.Buffer, sh *shadow) (unsafe.Pointer, int64) {
	if sh != nil {
		return ptr(sh.mem), handleSize
	}
	if buf.Native.HoldsHandle() {
		return ptr(buf.Data), handleSize
	}
	return ptr(buf.Data), int64(buf.ElemSize)
}

func (a *Adapter) Bind(ec nca.ErrorContext, h nca.Handle, target nca.BindTarget, buf *nca.Buffer) error {
	if buf.Native == nca.NativeLong || buf.Native == nca.NativeObject {
		return nca.ErrNotSupported
	}
	dty, err := externalType(buf.Native, buf.DBType)
	if err != nil {
		return err
	}
	sh, err := a.newShadow(ec, buf)
	if err != nil {
		return err
	}
	value, size := slotArgs(buf, sh)
	var alen unsafe.Pointer
	if sh == nil {
		alen = ptr(buf.Length)
	}
	var maxArr uint32
	var curEle unsafe.Pointer
	if buf.IsArray {
		maxArr = buf.Count
		curEle = unsafe.Pointer(buf.ActualCount)
	}

	var bind uintptr
	var status int32
	if target.ByName() {
		name := ":" + target.Name
		status = a.lib.BindByName2(uintptr(h), unsafe.Pointer(&bind), uintptr(ec), name, int32(len(name)),
			value, size, dty, ptr(buf.Indicator), alen, ptr(buf.ReturnCode), maxArr, curEle, ociDefault)
	} else {
		status = a.lib.BindByPos2(uintptr(h), unsafe.Pointer(&bind), uintptr(ec), uint32(target.Pos),
			value, size, dty, ptr(buf.Indicator), alen, ptr(buf.ReturnCode), maxArr, curEle, ociDefault)
	}
	if err := a.check(ec, status, "OCIBind"); err != nil {
		a.freeShadow(sh)
		return err
	}
	if err := a.setForm(ec, bind, htypeBind, buf.DBType); err != nil {
		a.freeShadow(sh)
		return err
	}
	s := a.stmt(h)
	s.binds = append(s.binds, &bound{buf: buf, shadow: sh})
	return nil
}

func (a *Adapter) setForm(ec nca.ErrorContext, h uintptr, htype uint32, dbType nca.DBType) error {
	form := charsetForm(dbType)
	if form == csImplicit {
		return nil
	}
	return a.check(ec, a.lib.AttrSet(h, htype, unsafe.Pointer(&form), 0, attrCharsetForm, uintptr(ec)), "OCIAttrSet(charset form)")
}

func (a *Adapter) BindDynamic(ec nca.ErrorContext, h nca.Handle, target nca.BindTarget, buf *nca.Buffer, binder nca.DynamicBinder) error {
	dty, err := externalType(buf.Native, buf.DBType)
	if err != nil {
		return err
	}
	var bind uintptr
	var status int32
	size := int64(buf.ElemSize)
	if target.ByName() {
		name := ":" + target.Name
		status = a.lib.BindByName2(uintptr(h), unsafe.Pointer(&bind), uintptr(ec), name, int32(len(name)),
			nil, size, dty, nil, nil, nil, 0, nil, dataAtExec)
	} else {
		status = a.lib.BindByPos2(uintptr(h), unsafe.Pointer(&bind), uintptr(ec), uint32(target.Pos),
			nil, size, dty, nil, nil, nil, 0, nil, dataAtExec)
	}
	if err := a.check(ec, status, "OCIBind"); err != nil {
		return err
	}
	d, err := a.newDynBind(ec, binder)
	if err != nil {
		return err
	}
	in, out := callbacks()
	status = a.lib.BindDynamic(bind, uintptr(ec), d.id, in, d.id, out)
	if err := a.check(ec, status, "OCIBindDynamic"); err != nil {
		d.release()
		return err
	}
	s := a.stmt(h)
	s.binds = append(s.binds, &bound{buf: buf, dyn: d})
	return nil
}

func (a *Adapter) Execute(ec nca.ErrorContext, h nca.Handle, iters uint32, mode nca.ExecMode) error {
	s := a.stmt(h)
	for _, b := range s.binds {
		if err := a.toShadow(ec, b.buf, b.shadow); err != nil {
			return err
		}
	}
	if s.kind == nca.StmtQuery {
		iters = 0
	}
	status := a.lib.StmtExecute(s.conn, s.h, uintptr(ec), iters, 0, 0, 0, uint32(mode))
	for _, b := range s.binds {
		if b.dyn != nil && b.dyn.err != nil {
			return b.dyn.err
		}
	}
	if err := a.check(ec, status, "OCIStmtExecute"); err != nil {
		return err
	}
	for _, b := range s.binds {
		if err := a.fromShadow(ec, b.buf, b.shadow, b.buf.Elements()); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) RowCount(ec nca.ErrorContext, h nca.Handle) (uint64, error) {
	var n uint64
	err := a.attr(ec, uintptr(h), htypeStmt, unsafe.Pointer(&n), attrUB8RowCount)
	return n, err
}

func (a *Adapter) RowCounts(ec nca.ErrorContext, h nca.Handle) ([]uint64, error) {
	var counts *uint64
	var n uint32
	status := a.lib.AttrGet(uintptr(h), htypeStmt, unsafe.Pointer(&counts), unsafe.Pointer(&n), attrDMLRowCounts, uintptr(ec))
	if err := a.check(ec, status, "OCIAttrGet(row counts)"); err != nil {
		return nil, err
	}
	if counts == nil || n == 0 {
		return nil, nil
	}
	return append([]uint64(nil), unsafe.Slice(counts, n)...), nil
}

func (a *Adapter) BatchErrors(ec nca.ErrorContext, h nca.Handle) ([]nca.BatchErrorInfo, error) {
	var n uint32
	if err := a.attr(ec, uintptr(h), htypeStmt, unsafe.Pointer(&n), attrNumDMLErrors); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	var rowErr uintptr
	if status := a.lib.HandleAlloc(a.env, unsafe.Pointer(&rowErr), htypeError, 0, nil); status != ociSuccess {
		return nil, &nca.Error{Message: "allocate batch error handle", Func: "OCIHandleAlloc"}
	}
	defer a.lib.HandleFree(rowErr, htypeError)

	out := make([]nca.BatchErrorInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		status := a.lib.ParamGet(uintptr(ec), htypeError, uintptr(ec), unsafe.Pointer(&rowErr), i)
		if err := a.check(ec, status, "OCIParamGet(batch error)"); err != nil {
			return nil, err
		}
		var offset uint32
		if err := a.attr(ec, rowErr, htypeError, unsafe.Pointer(&offset), attrDMLRowOffset); err != nil {
			return nil, err
		}
		e := a.errorFrom(rowErr, htypeError)
		e.Offset = offset
		out = append(out, nca.BatchErrorInfo{Offset: offset, Err: e})
	}
	return out, nil
}

func (a *Adapter) LastRowid(ec nca.ErrorContext, h nca.Handle) (string, error) {
	var rowid unsafe.Pointer
	if status := a.lib.DescriptorAlloc(a.env, unsafe.Pointer(&rowid), dtypeRowid, 0, nil); status != ociSuccess {
		return "", &nca.Error{Message: "allocate rowid descriptor", Func: "OCIDescriptorAlloc"}
	}
	defer a.lib.DescriptorFree(uintptr(rowid), dtypeRowid)
	status := a.lib.AttrGet(uintptr(h), htypeStmt, rowid, nil, attrRowid, uintptr(ec))
	if status == ociNoData {
		return "", nil
	}
	if err := a.check(ec, status, "OCIAttrGet(rowid)"); err != nil {
		return "", err
	}
	buf := make([]byte, 64)
	size := uint16(len(buf))
	if err := a.check(ec, a.lib.RowidToChar(uintptr(rowid), ptr(buf), unsafe.Pointer(&size), uintptr(ec)), "OCIRowidToChar"); err != nil {
		return "", err
	}
	return string(buf[:size]), nil
}

// columnType maps an OCI internal type code to a database type.
func columnType(code uint16, form uint8) nca.DBType {
	nchar := form == csNChar
	switch code {
	case 1:
		if nchar {
			return nca.DBTypeNVarchar
		}
		return nca.DBTypeVarchar
	case 96:
		if nchar {
			return nca.DBTypeNChar
		}
		return nca.DBTypeChar
	case 2:
		return nca.DBTypeNumber
	case 3:
		return nca.DBTypeBinaryInt
	case 12:
		return nca.DBTypeDate
	case 180, 187:
		return nca.DBTypeTimestamp
	case 181, 188:
		return nca.DBTypeTimestampTZ
	case 231, 232:
		return nca.DBTypeTimestampLTZ
	case 183, 190:
		return nca.DBTypeIntervalDS
	case 182, 189:
		return nca.DBTypeIntervalYM
	case 23:
		return nca.DBTypeRaw
	case 8:
		return nca.DBTypeLongVarchar
	case 24:
		return nca.DBTypeLongRaw
	case 100:
		return nca.DBTypeBinaryFloat
	case 101:
		return nca.DBTypeBinaryDouble
	case 11, 104, 208:
		return nca.DBTypeRowid
	case 112:
		if nchar {
			return nca.DBTypeNClob
		}
		return nca.DBTypeClob
	case 113:
		return nca.DBTypeBlob
	case 114:
		return nca.DBTypeBFile
	case 116:
		return nca.DBTypeStmt
	case 108:
		return nca.DBTypeObject
	case 58:
		return nca.DBTypeXMLType
	case 119:
		return nca.DBTypeJSON
	case 252:
		return nca.DBTypeBoolean
	}
	return nca.DBTypeNone
}

func (a *Adapter) Columns(ec nca.ErrorContext, h nca.Handle) ([]nca.ColumnInfo, error) {
	var n uint32
	if err := a.attr(ec, uintptr(h), htypeStmt, unsafe.Pointer(&n), attrParamCount); err != nil {
		return nil, err
	}
	cols := make([]nca.ColumnInfo, n)
	for pos := uint32(1); pos <= n; pos++ {
		col, err := a.column(ec, uintptr(h), pos)
		if err != nil {
			return nil, err
		}
		cols[pos-1] = col
	}
	return cols, nil
}

func (a *Adapter) column(ec nca.ErrorContext, h uintptr, pos uint32) (nca.ColumnInfo, error) {
	var col nca.ColumnInfo
	var param uintptr
	if err := a.check(ec, a.lib.ParamGet(h, htypeStmt, uintptr(ec), unsafe.Pointer(&param), pos), "OCIParamGet"); err != nil {
		return col, err
	}
	defer a.lib.DescriptorFree(param, dtypeParam)

	var (
		code      uint16
		size      uint16
		charSize  uint16
		precision int16
		scale     int8
		nullable  uint8
		form      uint8
	)
	for _, at := range []struct {
		dst  unsafe.Pointer
		attr uint32
	}{
		{unsafe.Pointer(&code), attrDataType},
		{unsafe.Pointer(&size), attrDataSize},
		{unsafe.Pointer(&charSize), attrCharSize},
		{unsafe.Pointer(&precision), attrPrecision},
		{unsafe.Pointer(&scale), attrScale},
		{unsafe.Pointer(&nullable), attrIsNull},
		{unsafe.Pointer(&form), attrCharsetForm},
	} {
		if err := a.attr(ec, param, dtypeParam, at.dst, at.attr); err != nil {
			return col, err
		}
	}
	name, err := a.textAttr(ec, param, dtypeParam, attrName)
	if err != nil {
		return col, err
	}
	col = nca.ColumnInfo{
		Name:      name,
		DBType:    columnType(code, form),
		Size:      uint32(size),
		CharSize:  uint32(charSize),
		Precision: precision,
		Scale:     scale,
		Nullable:  nullable != 0,
	}
	if col.DBType.IsCharacter() && charSize > 0 {
		col.Size = uint32(charSize) * 4
	}
	if col.DBType == nca.DBTypeObject {
		schema, err := a.textAttr(ec, param, dtypeParam, attrSchemaName)
		if err != nil {
			return col, err
		}
		typ, err := a.textAttr(ec, param, dtypeParam, attrTypeName)
		if err != nil {
			return col, err
		}
		col.TypeName = schema + "." + typ
	}
	return col, nil
}

func (a *Adapter) textAttr(ec nca.ErrorContext, h uintptr, htype uint32, attr uint32) (string, error) {
	var p *byte
	var n uint32
	status := a.lib.AttrGet(h, htype, unsafe.Pointer(&p), unsafe.Pointer(&n), attr, uintptr(ec))
	if err := a.check(ec, status, fmt.Sprintf("OCIAttrGet(%d)", attr)); err != nil {
		return "", err
	}
	if p == nil || n == 0 {
		return "", nil
	}
	return string(unsafe.Slice(p, n)), nil
}

func (a *Adapter) Define(ec nca.ErrorContext, h nca.Handle, pos int, buf *nca.Buffer) error {
	dty, err := externalType(buf.Native, buf.DBType)
	if err != nil {
		return err
	}
	s := a.stmt(h)
	if old, ok := s.defines[pos]; ok {
		a.freeDefine(old)
		delete(s.defines, pos)
	}
	d := &defined{buf: buf}
	if d.shadow, err = a.newShadow(ec, buf); err != nil {
		return err
	}
	value, size := slotArgs(buf, d.shadow)
	rlen := ptr(buf.Length)
	if d.shadow != nil {
		rlen = nil
	}
	if buf.Native == nca.NativeLong {
		if d.long, err = a.Alloc(int(buf.Count) * LongDefineSize); err != nil {
			return err
		}
		if d.lens, err = a.Alloc(int(buf.Count) * 4); err != nil {
			a.Free(d.long)
			return err
		}
		value, size, rlen = ptr(d.long), LongDefineSize, ptr(d.lens)
	}

	var defn uintptr
	status := a.lib.DefineByPos2(s.h, unsafe.Pointer(&defn), uintptr(ec), uint32(pos), value, size, dty,
		ptr(buf.Indicator), rlen, ptr(buf.ReturnCode), ociDefault)
	if err := a.check(ec, status, "OCIDefineByPos2"); err != nil {
		a.freeDefine(d)
		return err
	}
	if err := a.setForm(ec, defn, htypeDefine, buf.DBType); err != nil {
		a.freeDefine(d)
		return err
	}
	s.defines[pos] = d
	return nil
}

func (a *Adapter) freeDefine(d *defined) {
	a.freeShadow(d.shadow)
	if d.long != nil {
		a.Free(d.long)
		a.Free(d.lens)
	}
}

func (a *Adapter) Fetch(ec nca.ErrorContext, h nca.Handle, rows uint32) (uint32, error) {
	s := a.stmt(h)
	status := a.lib.StmtFetch2(s.h, uintptr(ec), rows, fetchNext, 0, ociDefault)
	if status != ociNoData {
		if err := a.check(ec, status, "OCIStmtFetch2"); err != nil {
			return 0, err
		}
	}
	var total uint32
	if err := a.attr(ec, s.h, htypeStmt, unsafe.Pointer(&total), attrRowsFetched); err != nil {
		return 0, err
	}
	for _, d := range s.defines {
		if err := a.fromShadow(ec, d.buf, d.shadow, total); err != nil {
			return 0, err
		}
		if d.long == nil {
			continue
		}
		lens := unsafe.Slice((*uint32)(ptr(d.lens)), d.buf.Count)
		for i := uint32(0); i < total; i++ {
			if d.buf.IsNull(i) {
				d.buf.SetNull(i)
				continue
			}
			off := int(i) * LongDefineSize
			d.buf.SetBytes(i, d.long[off:off+int(lens[i])])
		}
	}
	return total, nil
}

// shadow is an array of OCI descriptors standing in for the timestamp or
// interval encoding of a buffer.
type shadow struct {
	dtype uint32
	mem   []byte
	descs []uintptr
}

func (a *Adapter) newShadow(ec nca.ErrorContext, buf *nca.Buffer) (*shadow, error) {
	var dtype uint32
	switch buf.Native {
	case nca.NativeTimestamp:
		dtype = dtypeTimestamp
	case nca.NativeIntervalDS:
		dtype = dtypeIntervDS
	default:
		return nil, nil
	}
	mem, err := a.Alloc(int(buf.Count) * int(handleSize))
	if err != nil {
		return nil, err
	}
	sh := &shadow{dtype: dtype, mem: mem, descs: unsafe.Slice((*uintptr)(ptr(mem)), buf.Count)}
	for i := range sh.descs {
		if status := a.lib.DescriptorAlloc(a.env, unsafe.Pointer(&sh.descs[i]), dtype, 0, nil); status != ociSuccess {
			a.freeShadow(sh)
			return nil, &nca.Error{Message: fmt.Sprintf("allocate descriptor type %d", dtype), Func: "OCIDescriptorAlloc"}
		}
	}
	return sh, nil
}

func (a *Adapter) freeShadow(sh *shadow) {
	if sh == nil {
		return
	}
	for _, d := range sh.descs {
		if d != 0 {
			a.lib.DescriptorFree(d, sh.dtype)
		}
	}
	a.Free(sh.mem)
}

// toShadow copies non-null elements into the descriptors.
func (a *Adapter) toShadow(ec nca.ErrorContext, buf *nca.Buffer, sh *shadow) error {
	if sh == nil {
		return nil
	}
	for i := uint32(0); i < buf.Elements(); i++ {
		if buf.IsNull(i) {
			continue
		}
		var status int32
		if sh.dtype == dtypeIntervDS {
			d := time.Duration(buf.Interval(i))
			days := int32(d / (24 * time.Hour))
			d -= time.Duration(days) * 24 * time.Hour
			hours := int32(d / time.Hour)
			d -= time.Duration(hours) * time.Hour
			mins := int32(d / time.Minute)
			d -= time.Duration(mins) * time.Minute
			secs := int32(d / time.Second)
			d -= time.Duration(secs) * time.Second
			status = a.lib.IntervalSetDS(a.env, uintptr(ec), days, hours, mins, secs, int32(d), sh.descs[i])
		} else {
			t := nca.DecodeTimestamp(buf.Timestamp(i))
			_, off := t.Zone()
			sign := '+'
			if off < 0 {
				sign, off = '-', -off
			}
			tz := []byte(fmt.Sprintf("%c%02d:%02d", sign, off/3600, off%3600/60))
			status = a.lib.DateTimeSet(a.env, uintptr(ec), sh.descs[i], int16(t.Year()), uint8(t.Month()), uint8(t.Day()),
				uint8(t.Hour()), uint8(t.Minute()), uint8(t.Second()), uint32(t.Nanosecond()), ptr(tz), uintptr(len(tz)))
		}
		if err := a.check(ec, status, "descriptor encode"); err != nil {
			return err
		}
	}
	return nil
}

// fromShadow copies the first n non-null descriptors back into buf.
func (a *Adapter) fromShadow(ec nca.ErrorContext, buf *nca.Buffer, sh *shadow, n uint32) error {
	if sh == nil {
		return nil
	}
	for i := uint32(0); i < n && i < buf.Count; i++ {
		if buf.IsNull(i) {
			continue
		}
		if sh.dtype == dtypeIntervDS {
			var dd, hh, mm, ss, fs int32
			status := a.lib.IntervalGetDS(a.env, uintptr(ec), unsafe.Pointer(&dd), unsafe.Pointer(&hh),
				unsafe.Pointer(&mm), unsafe.Pointer(&ss), unsafe.Pointer(&fs), sh.descs[i])
			if err := a.check(ec, status, "OCIIntervalGetDaySecond"); err != nil {
				return err
			}
			d := time.Duration(dd)*24*time.Hour + time.Duration(hh)*time.Hour +
				time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second + time.Duration(fs)
			buf.SetInterval(i, int64(d))
			continue
		}
		var (
			year              int16
			month, day        uint8
			hour, minute, sec uint8
			fsec              uint32
			tzHour, tzMinute  int8
		)
		status := a.lib.DateTimeGetDate(a.env, uintptr(ec), sh.descs[i], unsafe.Pointer(&year), unsafe.Pointer(&month), unsafe.Pointer(&day))
		if err := a.check(ec, status, "OCIDateTimeGetDate"); err != nil {
			return err
		}
		status = a.lib.DateTimeGetTime(a.env, uintptr(ec), sh.descs[i], unsafe.Pointer(&hour), unsafe.Pointer(&minute), unsafe.Pointer(&sec), unsafe.Pointer(&fsec))
		if err := a.check(ec, status, "OCIDateTimeGetTime"); err != nil {
			return err
		}
		status = a.lib.DateTimeGetTZ(a.env, uintptr(ec), sh.descs[i], unsafe.Pointer(&tzHour), unsafe.Pointer(&tzMinute))
		if err := a.check(ec, status, "OCIDateTimeGetTimeZoneOffset"); err != nil {
			return err
		}
		loc := time.FixedZone("", int(tzHour)*3600+int(tzMinute)*60)
		t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(sec), int(fsec), loc)
		buf.SetTimestamp(i, nca.EncodeTimestamp(t))
	}
	return nil
}
