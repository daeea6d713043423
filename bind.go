package orabridge

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/semihalev/go-orabridge/nca"
)

// BindDir is the direction of a bind variable.
type BindDir int

const (
	BindIn    BindDir = 3001
	BindInOut BindDir = 3002
	BindOut   BindDir = 3003
)

func (d BindDir) String() string {
	switch d {
	case BindIn:
		return "IN"
	case BindInOut:
		return "IN OUT"
	case BindOut:
		return "OUT"
	}
	return fmt.Sprintf("BindDir(%d)", int(d))
}

func (d BindDir) isOut() bool { return d == BindOut || d == BindInOut }
func (d BindDir) isIn() bool  { return d == BindIn || d == BindInOut }

// Type hints for BindSpec.Type.
const (
	TypeString  = nca.DBTypeVarchar
	TypeNumber  = nca.DBTypeNumber
	TypeDate    = nca.DBTypeTimestampLTZ
	TypeBuffer  = nca.DBTypeRaw
	TypeClob    = nca.DBTypeClob
	TypeNClob   = nca.DBTypeNClob
	TypeBlob    = nca.DBTypeBlob
	TypeCursor  = nca.DBTypeStmt
	TypeBoolean = nca.DBTypeBoolean
	TypeObject  = nca.DBTypeObject
	TypeJSON    = nca.DBTypeJSON
	TypeDouble  = nca.DBTypeBinaryDouble
)

// BindSpec declares a bind variable explicitly. Zero fields are inferred
// from Val.
type BindSpec struct {
	// Name binds by name; empty binds by position.
	Name string
	// Dir defaults to BindIn.
	Dir  BindDir
	Type nca.DBType
	// MaxSize is the byte size of OUT and IN OUT variable-length values.
	MaxSize uint32
	// MaxArraySize makes the bind a PL/SQL array of up to this many elements.
	MaxArraySize uint32
	// TypeName names the object type of TypeObject binds.
	TypeName string
	Val      any
}

// inferred is the outcome of inspecting one host value.
type inferred struct {
	dbType   nca.DBType
	native   nca.NativeType
	size     uint32
	typeName string
	// isDefault marks the guess made for a null value, which later
	// non-null values override.
	isDefault bool
}

// bindVar is a resolved bind variable.
type bindVar struct {
	index        int
	target       nca.BindTarget
	dir          BindDir
	dbType       nca.DBType
	native       nca.NativeType
	maxSize      uint32
	isArray      bool
	maxArraySize uint32
	typeName     string

	// values holds one entry per iteration.
	values []any
	// dest receives the OUT value of a sql.Out bind.
	dest any

	buf *varBuffer
	dyn *dynamicOutBind
	// objType is resolved in the blocking body for object binds.
	objType *ObjectType
	// outAttrs and cursorCols hold, per element, the object attributes and
	// nested cursor columns read after execution.
	outAttrs   []map[string]any
	cursorCols [][]nca.ColumnInfo
}

func (v *bindVar) slotName() string {
	if v.target.ByName() {
		return v.target.Name
	}
	return fmt.Sprintf("%d", v.target.Pos)
}

// variableLength reports whether element size depends on the value.
func variableLength(native nca.NativeType) bool {
	return native == nca.NativeBytes
}

// nativeFor returns the representation used for an explicitly declared
// database type.
func nativeFor(dbType nca.DBType) (nca.NativeType, bool) {
	switch dbType {
	case nca.DBTypeVarchar, nca.DBTypeNVarchar, nca.DBTypeChar, nca.DBTypeNChar,
		nca.DBTypeRowid, nca.DBTypeRaw, nca.DBTypeJSON, nca.DBTypeLongVarchar, nca.DBTypeLongRaw:
		return nca.NativeBytes, true
	case nca.DBTypeNumber, nca.DBTypeBinaryDouble, nca.DBTypeBinaryFloat:
		return nca.NativeFloat64, true
	case nca.DBTypeBinaryInt:
		return nca.NativeInt64, true
	case nca.DBTypeBinaryUint:
		return nca.NativeUint64, true
	case nca.DBTypeDate, nca.DBTypeTimestamp, nca.DBTypeTimestampTZ, nca.DBTypeTimestampLTZ:
		return nca.NativeTimestamp, true
	case nca.DBTypeIntervalDS:
		return nca.NativeIntervalDS, true
	case nca.DBTypeBoolean:
		return nca.NativeBool, true
	case nca.DBTypeClob, nca.DBTypeNClob, nca.DBTypeBlob:
		return nca.NativeLob, true
	case nca.DBTypeStmt:
		return nca.NativeStmt, true
	case nca.DBTypeObject:
		return nca.NativeObject, true
	}
	return 0, false
}

// inferValue picks type, representation and size for a host value.
func inferValue(v any) (inferred, bool) {
	if valuer, ok := v.(driver.Valuer); ok {
		if _, isLob := v.(*Lob); !isLob {
			dv, err := valuer.Value()
			if err != nil {
				return inferred{}, false
			}
			v = dv
		}
	}
	switch x := v.(type) {
	case nil:
		return inferred{dbType: nca.DBTypeVarchar, native: nca.NativeBytes, size: 1, isDefault: true}, true
	case string:
		return inferred{dbType: nca.DBTypeVarchar, native: nca.NativeBytes, size: maxOf(uint32(len(x)), 1)}, true
	case []byte:
		return inferred{dbType: nca.DBTypeRaw, native: nca.NativeBytes, size: maxOf(uint32(len(x)), 1)}, true
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return inferred{dbType: nca.DBTypeNumber, native: nca.NativeInt64, size: 8}, true
	case uint, uint64:
		return inferred{dbType: nca.DBTypeNumber, native: nca.NativeUint64, size: 8}, true
	case float32, float64:
		return inferred{dbType: nca.DBTypeNumber, native: nca.NativeFloat64, size: 8}, true
	case bool:
		return inferred{dbType: nca.DBTypeBoolean, native: nca.NativeBool, size: 4}, true
	case time.Time:
		return inferred{dbType: nca.DBTypeTimestampLTZ, native: nca.NativeTimestamp, size: nca.TimestampSize}, true
	case time.Duration:
		return inferred{dbType: nca.DBTypeIntervalDS, native: nca.NativeIntervalDS, size: 8}, true
	case *Lob:
		if x == nil {
			return inferred{dbType: nca.DBTypeVarchar, native: nca.NativeBytes, size: 1, isDefault: true}, true
		}
		return inferred{dbType: x.dbType, native: nca.NativeLob, size: nca.HandleSize}, true
	case *Object:
		if x == nil || x.Type == nil {
			return inferred{}, false
		}
		return inferred{dbType: nca.DBTypeObject, native: nca.NativeObject, size: nca.HandleSize, typeName: x.Type.FullName()}, true
	case json.RawMessage:
		return inferred{dbType: nca.DBTypeJSON, native: nca.NativeBytes, size: maxOf(uint32(len(x)), 1)}, true
	case map[string]any:
		doc, err := json.Marshal(x)
		if err != nil {
			return inferred{}, false
		}
		return inferred{dbType: nca.DBTypeJSON, native: nca.NativeBytes, size: maxOf(uint32(len(doc)), 1)}, true
	}
	return inferred{}, false
}

// valueSize returns the encoded byte length of v for a variable-length
// slot of dbType.
func valueSize(dbType nca.DBType, v any) uint32 {
	switch x := v.(type) {
	case string:
		return uint32(len(x))
	case []byte:
		return uint32(len(x))
	case json.RawMessage:
		return uint32(len(x))
	case map[string]any:
		doc, _ := json.Marshal(x)
		return uint32(len(doc))
	}
	return 0
}

// isArrayValue reports whether v is a slice other than []byte.
func isArrayValue(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	if _, ok := v.(json.RawMessage); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func elements(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// inferArray infers an element type across all elements: the first
// non-default type wins and sizes take the maximum.
func inferArray(v *bindVar, items []any) (inferred, error) {
	var acc inferred
	have := false
	for i, item := range items {
		in, ok := inferValue(item)
		if !ok || in.native.HoldsHandle() || in.dbType == nca.DBTypeBoolean {
			if !ok {
				return acc, usageError(52, "invalid data type at array index %d for bind %q", i, v.slotName())
			}
			return acc, usageError(34, "data type is unsupported for array bind")
		}
		switch {
		case !have:
			acc, have = in, true
		case acc.isDefault && !in.isDefault:
			in.size = maxOf(in.size, acc.size)
			acc = in
		case !in.isDefault && (in.dbType != acc.dbType || in.native != acc.native):
			if in.dbType == acc.dbType && in.dbType == nca.DBTypeNumber {
				acc.native = nca.NativeFloat64
				continue
			}
			return acc, usageError(52, "invalid data type at array index %d for bind %q", i, v.slotName())
		default:
			acc.size = maxOf(acc.size, in.size)
		}
	}
	if !have {
		acc = inferred{dbType: nca.DBTypeVarchar, native: nca.NativeBytes, size: 1, isDefault: true}
	}
	return acc, nil
}

// outTypeFor infers the bind of a sql.Out destination from its static type.
func outTypeFor(dest any) (inferred, bool) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return inferred{}, false
	}
	switch dest.(type) {
	case *sql.NullString:
		return inferred{dbType: nca.DBTypeVarchar, native: nca.NativeBytes}, true
	case *sql.NullInt64, *sql.NullInt32:
		return inferred{dbType: nca.DBTypeNumber, native: nca.NativeInt64, size: 8}, true
	case *sql.NullFloat64:
		return inferred{dbType: nca.DBTypeNumber, native: nca.NativeFloat64, size: 8}, true
	case *sql.NullBool:
		return inferred{dbType: nca.DBTypeBoolean, native: nca.NativeBool, size: 4}, true
	case *sql.NullTime:
		return inferred{dbType: nca.DBTypeTimestampLTZ, native: nca.NativeTimestamp, size: nca.TimestampSize}, true
	case **ResultSet:
		return inferred{dbType: nca.DBTypeStmt, native: nca.NativeStmt, size: nca.HandleSize}, true
	case *any:
		return inferred{}, false
	}
	elem := rv.Elem()
	if elem.Kind() == reflect.Slice && elem.Type().Elem().Kind() != reflect.Uint8 {
		return inferred{}, false
	}
	return inferValue(reflect.Zero(elem.Type()).Interface())
}

// bindResolver turns caller arguments into bind variables.
type bindResolver struct {
	cfg Config
}

// normalizeArg splits a caller argument into name, declaration and value.
func normalizeArg(arg any) (name string, spec BindSpec, out *sql.Out) {
	switch a := arg.(type) {
	case BindSpec:
		return a.Name, a, nil
	case *BindSpec:
		return a.Name, *a, nil
	case sql.NamedArg:
		name = a.Name
		switch inner := a.Value.(type) {
		case sql.Out:
			return name, BindSpec{Name: name}, &inner
		case BindSpec:
			inner.Name = name
			return name, inner, nil
		}
		return name, BindSpec{Name: name, Val: a.Value}, nil
	case driver.NamedValue:
		if a.Name != "" {
			name = a.Name
		}
		if o, ok := a.Value.(sql.Out); ok {
			return name, BindSpec{Name: name}, &o
		}
		if s, ok := a.Value.(BindSpec); ok {
			s.Name = name
			return name, s, nil
		}
		return name, BindSpec{Name: name, Val: a.Value}, nil
	case sql.Out:
		return "", BindSpec{}, &a
	}
	return "", BindSpec{Val: arg}, nil
}

// resolve resolves the binds of a single execution.
func (r *bindResolver) resolve(args []any) ([]*bindVar, error) {
	vars := make([]*bindVar, 0, len(args))
	named, positional := false, false
	for i, arg := range args {
		name, spec, out := normalizeArg(arg)
		if name != "" {
			named = true
		} else {
			positional = true
		}
		if named && positional {
			return nil, ErrMixedBind
		}
		v := &bindVar{index: i, target: nca.BindTarget{Pos: i + 1, Name: name}}
		if name != "" {
			v.target.Pos = 0
		}
		if out != nil {
			if err := r.resolveOut(v, spec, out); err != nil {
				return nil, err
			}
		} else if err := r.resolveSpec(v, spec); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

func (r *bindResolver) resolveOut(v *bindVar, spec BindSpec, out *sql.Out) error {
	v.dest = out.Dest
	spec.Dir = BindOut
	if out.In {
		spec.Dir = BindInOut
		spec.Val = reflect.ValueOf(out.Dest).Elem().Interface()
		if valuer, ok := spec.Val.(driver.Valuer); ok {
			spec.Val, _ = valuer.Value()
		}
	}
	if spec.Type == 0 {
		in, ok := outTypeFor(out.Dest)
		if !ok {
			return r.typeRequired(v)
		}
		spec.Type = in.dbType
		if in.native == nca.NativeInt64 || in.native == nca.NativeUint64 {
			// Integer destinations fetch integers directly.
			if err := r.resolveSpec(v, spec); err != nil {
				return err
			}
			v.native = in.native
			return nil
		}
	}
	return r.resolveSpec(v, spec)
}

func (r *bindResolver) typeRequired(v *bindVar) error {
	if v.target.ByName() {
		return usageError(60, "type must be specified for bind %q", v.target.Name)
	}
	return usageError(59, "type must be specified for bind position %d", v.target.Pos)
}

func (r *bindResolver) maxSizeRequired(v *bindVar) error {
	if v.target.ByName() {
		return usageError(57, "maxSize must be specified and not zero for bind %q", v.target.Name)
	}
	return usageError(56, "maxSize must be specified and not zero for bind position %d", v.target.Pos)
}

// resolveSpec applies an explicit or inferred declaration to v.
func (r *bindResolver) resolveSpec(v *bindVar, spec BindSpec) error {
	v.dir = spec.Dir
	if v.dir == 0 {
		v.dir = BindIn
	}
	if v.dir != BindIn && v.dir != BindInOut && v.dir != BindOut {
		return usageError(13, "invalid bind direction")
	}
	v.typeName = spec.TypeName
	v.values = []any{spec.Val}

	// Array binds.
	if spec.MaxArraySize > 0 || isArrayValue(spec.Val) {
		return r.resolveArray(v, spec)
	}

	in, ok := inferred{}, false
	if v.dir.isIn() {
		in, ok = inferValue(spec.Val)
		if !ok {
			return usageError(12, "invalid bind data type in parameter %d", v.index+1)
		}
	}

	if spec.Type != 0 {
		native, known := nativeFor(spec.Type)
		if !known {
			return usageError(12, "invalid bind data type in parameter %d", v.index+1)
		}
		if ok && !in.isDefault && !compatible(spec.Type, in) {
			return usageError(11, "bind value and type mismatch")
		}
		v.dbType = spec.Type
		v.native = native
		if ok && !in.isDefault && in.native != native && spec.Type == nca.DBTypeNumber {
			v.native = in.native
		}
		if in.typeName != "" {
			v.typeName = in.typeName
		}
	} else {
		if !ok {
			return r.typeRequired(v)
		}
		v.dbType, v.native = in.dbType, in.native
		if in.typeName != "" {
			v.typeName = in.typeName
		}
	}
	if v.dbType == nca.DBTypeObject && v.typeName == "" {
		return usageError(12, "invalid bind data type in parameter %d", v.index+1)
	}

	return r.sizeScalar(v, spec, in, ok)
}

// compatible reports whether an inferred value may be sent as dbType.
func compatible(dbType nca.DBType, in inferred) bool {
	want, _ := nativeFor(dbType)
	switch {
	case want == in.native:
		return true
	case dbType.IsCharacter() && in.native == nca.NativeBytes:
		return true
	case dbType == nca.DBTypeRaw && in.native == nca.NativeBytes:
		return true
	case want == nca.NativeFloat64 && (in.native == nca.NativeInt64 || in.native == nca.NativeUint64):
		return true
	case dbType.IsLob() && in.native == nca.NativeBytes:
		// Strings and buffers are accepted for LOB binds and sent as data.
		return true
	}
	return false
}

// sizeScalar sets maxSize for a non-array bind.
func (r *bindResolver) sizeScalar(v *bindVar, spec BindSpec, in inferred, haveValue bool) error {
	if v.dbType.IsLob() && haveValue && !in.isDefault && in.native == nca.NativeBytes {
		// LOB data passed as a string or buffer binds as a long value.
		v.native = nca.NativeBytes
		v.dbType = lobDataType(v.dbType)
	}
	if !variableLength(v.native) {
		v.maxSize = v.native.FixedSize()
		return nil
	}
	size := uint32(0)
	if haveValue {
		size = maxOf(valueSize(v.dbType, spec.Val), 1)
	}
	switch v.dir {
	case BindIn:
		v.maxSize = size
	case BindInOut, BindOut:
		max := spec.MaxSize
		if max == 0 && (v.dbType == nca.DBTypeVarchar || v.dbType == nca.DBTypeNVarchar) {
			max = r.cfg.DefaultMaxOutSize
		}
		if max == 0 {
			return r.maxSizeRequired(v)
		}
		if v.dir == BindInOut && haveValue && size > max && !in.isDefault {
			return usageError(58, "maxSize of %d is too small for value of length %d in row %d", max, size, 0)
		}
		v.maxSize = max
	}
	return nil
}

func lobDataType(t nca.DBType) nca.DBType {
	if t == nca.DBTypeBlob {
		return nca.DBTypeLongRaw
	}
	return nca.DBTypeLongVarchar
}

func (r *bindResolver) resolveArray(v *bindVar, spec BindSpec) error {
	v.isArray = true
	var items []any
	if spec.Val != nil {
		if !isArrayValue(spec.Val) {
			return usageError(12, "invalid bind data type in parameter %d", v.index+1)
		}
		items = elements(spec.Val)
	}
	switch v.dir {
	case BindIn:
		v.maxArraySize = maxOf(uint32(len(items)), spec.MaxArraySize)
	default:
		if spec.MaxArraySize == 0 {
			return usageError(35, "maxArraySize is required for IN OUT array bind")
		}
		if uint32(len(items)) > spec.MaxArraySize {
			return usageError(36, "given array is of size greater than maxArraySize")
		}
		v.maxArraySize = spec.MaxArraySize
	}
	v.values = []any{items}

	in, err := inferArray(v, items)
	if err != nil {
		return err
	}
	if spec.Type != 0 {
		native, known := nativeFor(spec.Type)
		if !known || native.HoldsHandle() {
			return usageError(34, "data type is unsupported for array bind")
		}
		if !in.isDefault && !compatible(spec.Type, in) {
			return usageError(37, "invalid data type at array index %d", 0)
		}
		v.dbType, v.native = spec.Type, native
		if !in.isDefault && spec.Type == nca.DBTypeNumber {
			v.native = in.native
		}
	} else {
		if in.isDefault && v.dir != BindIn {
			return r.typeRequired(v)
		}
		v.dbType, v.native = in.dbType, in.native
	}

	if !variableLength(v.native) {
		v.maxSize = v.native.FixedSize()
		return nil
	}
	if v.dir == BindIn {
		v.maxSize = in.size
		return nil
	}
	if spec.MaxSize == 0 {
		return r.maxSizeRequired(v)
	}
	for i, item := range items {
		if n := valueSize(v.dbType, item); n > spec.MaxSize {
			return usageError(58, "maxSize of %d is too small for value of length %d in row %d", spec.MaxSize, n, i)
		}
	}
	v.maxSize = spec.MaxSize
	return nil
}

// rowShape describes how a batch row addresses its binds.
type rowShape struct {
	names []string
	count int
}

func shapeOf(row []any) rowShape {
	s := rowShape{count: len(row)}
	for _, arg := range row {
		name, _, _ := normalizeArg(arg)
		s.names = append(s.names, strings.ToUpper(name))
	}
	return s
}

func (s rowShape) equal(o rowShape) bool {
	if s.count != o.count {
		return false
	}
	for i := range s.names {
		if s.names[i] != o.names[i] {
			return false
		}
	}
	return true
}

// resolveBatch resolves binds for an array DML execution. Without
// definitions every row is scanned so types and sizes cover all of them.
func (r *bindResolver) resolveBatch(rows [][]any, defs []BindSpec) ([]*bindVar, error) {
	if len(rows) == 0 {
		return nil, usageError(4, "invalid value for parameter %s", "binds")
	}
	shape := shapeOf(rows[0])
	for i, row := range rows[1:] {
		if !shapeOf(row).equal(shape) {
			return nil, usagef("bind row %d does not match the shape of row 0", i+1)
		}
	}
	if defs != nil && len(defs) != shape.count {
		return nil, usagef("bind definitions list %d binds, rows have %d", len(defs), shape.count)
	}

	named := 0
	for _, name := range shape.names {
		if name != "" {
			named++
		}
	}
	if named > 0 && named < shape.count {
		return nil, ErrMixedBind
	}

	vars := make([]*bindVar, shape.count)
	for k := 0; k < shape.count; k++ {
		name, _, _ := normalizeArg(rows[0][k])
		v := &bindVar{index: k, target: nca.BindTarget{Pos: k + 1, Name: name}}
		if name != "" {
			v.target.Pos = 0
		}
		column := make([]any, len(rows))
		for i, row := range rows {
			_, spec, out := normalizeArg(row[k])
			if out != nil {
				return nil, usagef("sql.Out is not supported in batch binds")
			}
			column[i] = spec.Val
		}
		var err error
		if defs != nil {
			err = r.applyDef(v, defs[k], column)
		} else {
			err = r.scanColumn(v, column)
		}
		if err != nil {
			return nil, err
		}
		vars[k] = v
	}
	return vars, nil
}

// scanColumn infers one bind across every row of a batch.
func (r *bindResolver) scanColumn(v *bindVar, column []any) error {
	v.dir = BindIn
	var acc inferred
	have := false
	for i, val := range column {
		in, ok := inferValue(val)
		if !ok {
			return usageError(12, "invalid bind data type in parameter %d", v.index+1)
		}
		switch {
		case !have:
			acc, have = in, true
		case acc.isDefault && !in.isDefault:
			in.size = maxOf(in.size, acc.size)
			acc = in
		case !in.isDefault && in.dbType != acc.dbType:
			return usageError(37, "invalid data type at array index %d", i)
		case !in.isDefault && in.native != acc.native:
			// Mixed integer and float numbers bind as doubles.
			acc.native = nca.NativeFloat64
			acc.size = 8
		default:
			acc.size = maxOf(acc.size, in.size)
		}
	}
	v.dbType, v.native, v.typeName = acc.dbType, acc.native, acc.typeName
	v.maxSize = acc.size
	if !variableLength(v.native) {
		v.maxSize = v.native.FixedSize()
	}
	v.values = column
	return nil
}

// applyDef validates every row against an explicit definition.
func (r *bindResolver) applyDef(v *bindVar, def BindSpec, column []any) error {
	v.dir = def.Dir
	if v.dir == 0 {
		v.dir = BindIn
	}
	if def.Type == 0 {
		return r.typeRequired(v)
	}
	native, ok := nativeFor(def.Type)
	if !ok {
		return usageError(12, "invalid bind data type in parameter %d", v.index+1)
	}
	v.dbType, v.native, v.typeName = def.Type, native, def.TypeName
	v.values = column
	if !variableLength(native) {
		v.maxSize = native.FixedSize()
		return nil
	}
	if def.MaxSize == 0 {
		if v.dir != BindIn {
			return r.maxSizeRequired(v)
		}
	}
	v.maxSize = def.MaxSize
	for i, val := range column {
		if val == nil || !v.dir.isIn() {
			continue
		}
		in, ok := inferValue(val)
		if !ok || !compatible(def.Type, in) {
			return usageError(11, "bind value and type mismatch")
		}
		n := valueSize(v.dbType, val)
		if def.MaxSize == 0 {
			v.maxSize = maxOf(v.maxSize, maxOf(n, 1))
			continue
		}
		if n > def.MaxSize {
			return usageError(58, "maxSize of %d is too small for value of length %d in row %d", def.MaxSize, n, i)
		}
	}
	return nil
}
