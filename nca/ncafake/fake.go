// Package ncafake is a scripted, in-memory nca.Adapter. Statements are
// matched by their whitespace-normalized SQL text against registered
// Scripts; LOBs, cursors and objects live in maps keyed by handle. The
// adapter records allocation, release and concurrency statistics so tests
// can assert resource invariants.
package ncafake

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/semihalev/go-orabridge/nca"
)

// DefaultChunkSize is the LOB chunk size reported when Options leaves it 0.
const DefaultChunkSize = 8132

// Options tunes the fake.
type Options struct {
	// ChunkSize is the LOB chunk size in bytes (BLOB) or characters (CLOB).
	ChunkSize uint32
	// TruncateReturning makes RETURNING values that overflow their slot
	// report success with the full length instead of ORA-01406.
	TruncateReturning bool
	// LobDelay is slept inside every LOB read and write.
	LobDelay time.Duration
	// FetchDelay is slept inside every fetch.
	FetchDelay time.Duration
}

// Script is the canned behaviour of one SQL text.
type Script struct {
	Kind      nca.StmtKind
	BindNames []string
	Columns   []nca.ColumnInfo
	Rows      [][]any

	RowsAffected uint64
	// RowCounts is reported per iteration in array DML row count mode.
	RowCounts []uint64
	// Returning holds, per returned row, one value per dynamic OUT bind in
	// bind order. It applies to every iteration unless ReturningIters is set.
	Returning      [][]any
	ReturningIters [][][]any
	// Out holds PL/SQL OUT values by bind name or decimal position.
	Out map[string]any

	Err         *nca.Error
	BatchErrors map[uint32]*nca.Error
	LastRowid   string

	// Echo turns every IN bind into a result column.
	Echo  bool
	Delay time.Duration

	// OnExecute receives the decoded IN values of every iteration, keyed by
	// bind name or decimal position.
	OnExecute func(binds map[string][]any)
}

func (s *Script) returning() bool {
	return s.Returning != nil || s.ReturningIters != nil
}

func (s *Script) returnedRows(iter uint32) [][]any {
	if s.ReturningIters != nil {
		if int(iter) < len(s.ReturningIters) {
			return s.ReturningIters[iter]
		}
		return nil
	}
	return s.Returning
}

type conn struct {
	running int
	broken  bool
	commits int
	rolls   int
}

type bound struct {
	target nca.BindTarget
	buf    *nca.Buffer
	binder nca.DynamicBinder
}

type stmt struct {
	conn     nca.Handle
	script   *Script
	binds    []*bound
	defines  map[int]*nca.Buffer
	columns  []nca.ColumnInfo
	rows     [][]any
	cursor   int
	executed bool
	batch    []nca.BatchErrorInfo
	counts   []uint64
	affected uint64
}

type lob struct {
	dbType nca.DBType
	data   []byte
	temp   bool
}

type object struct {
	typ   nca.ObjectTypeInfo
	attrs map[string]any
}

// Adapter implements nca.Adapter in memory.
type Adapter struct {
	mu      sync.Mutex
	opts    Options
	scripts map[string]*Script
	types   map[string]nca.ObjectTypeInfo

	next    nca.Handle
	conns   map[nca.Handle]*conn
	stmts   map[nca.Handle]*stmt
	lobs    map[nca.Handle]*lob
	objects map[nca.Handle]*object

	allocs      map[*byte]int
	allocCount  int
	doubleFrees int
	badReleases int
	errCtx      int
	violations  int
	running     int
	maxRunning  int
}

var _ nca.Adapter = (*Adapter)(nil)

// New returns an empty fake adapter.
func New(opts Options) *Adapter {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Adapter{
		opts:    opts,
		scripts: make(map[string]*Script),
		types:   make(map[string]nca.ObjectTypeInfo),
		next:    0x1000,
		conns:   make(map[nca.Handle]*conn),
		stmts:   make(map[nca.Handle]*stmt),
		lobs:    make(map[nca.Handle]*lob),
		objects: make(map[nca.Handle]*object),
		allocs:  make(map[*byte]int),
	}
}

func normalize(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// Script registers the behaviour of sql and returns s for chaining.
func (a *Adapter) Script(sql string, s *Script) *Script {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[normalize(sql)] = s
	return s
}

// RegisterType makes a named object type describable.
func (a *Adapter) RegisterType(info nca.ObjectTypeInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	info.Handle = a.next
	a.types[strings.ToUpper(info.Name)] = info
}

func (a *Adapter) newHandle() nca.Handle {
	a.next++
	return a.next
}

// enter marks conn as running a native call and records overlapping use.
func (a *Adapter) enter(h nca.Handle) *conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.conns[h]
	if c == nil {
		return nil
	}
	c.running++
	if c.running > 1 {
		a.violations++
	}
	a.running++
	if a.running > a.maxRunning {
		a.maxRunning = a.running
	}
	return c
}

func (a *Adapter) leave(c *conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c.running--
	a.running--
	if c.running == 0 {
		c.broken = false
	}
}

// sleep waits d unless conn is broken, in which case it reports true.
func (a *Adapter) sleep(c *conn, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		broken := c.broken
		a.mu.Unlock()
		if broken {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func errCancelled() *nca.Error {
	return nca.NewError(nca.CodeUserCancelled, "user requested cancel of current operation")
}

func errInvalidHandle(what string) *nca.Error {
	return &nca.Error{Code: nca.CodeInvalidHandle, Message: "invalid " + what + " handle"}
}

// Alloc returns zeroed Go memory and tracks it until Free.
func (a *Adapter) Alloc(size int) ([]byte, error) {
	if size < 1 {
		size = 1
	}
	b := make([]byte, size)
	a.mu.Lock()
	a.allocs[&b[0]] = size
	a.allocCount++
	a.mu.Unlock()
	return b, nil
}

// Free forgets memory returned by Alloc. Unknown memory counts as a double free.
func (a *Adapter) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &b[:1][0]
	if _, ok := a.allocs[p]; !ok {
		a.doubleFrees++
		return
	}
	delete(a.allocs, p)
}

func (a *Adapter) NewErrorContext() (nca.ErrorContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errCtx++
	return nca.ErrorContext(a.newHandle()), nil
}

func (a *Adapter) FreeErrorContext(ec nca.ErrorContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errCtx--
}

func (a *Adapter) Connect(ec nca.ErrorContext, p nca.ConnectParams) (nca.Handle, error) {
	if p.Username == "invalid" {
		return 0, nca.NewError(1017, "invalid username/password; logon denied")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.newHandle()
	a.conns[h] = &conn{}
	return h, nil
}

func (a *Adapter) Disconnect(ec nca.ErrorContext, h nca.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.conns[h]; !ok {
		a.badReleases++
		return errInvalidHandle("connection")
	}
	delete(a.conns, h)
	return nil
}

func (a *Adapter) Ping(ec nca.ErrorContext, h nca.Handle) error {
	c := a.enter(h)
	if c == nil {
		return nca.NewError(nca.CodeNotConnected, "not connected to ORACLE")
	}
	a.leave(c)
	return nil
}

// Break interrupts the running call on h, if any.
func (a *Adapter) Break(h nca.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.conns[h]
	if c == nil {
		return errInvalidHandle("connection")
	}
	if c.running > 0 {
		c.broken = true
	}
	return nil
}

func (a *Adapter) Commit(ec nca.ErrorContext, h nca.Handle) error {
	c := a.enter(h)
	if c == nil {
		return errInvalidHandle("connection")
	}
	defer a.leave(c)
	a.mu.Lock()
	c.commits++
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Rollback(ec nca.ErrorContext, h nca.Handle) error {
	c := a.enter(h)
	if c == nil {
		return errInvalidHandle("connection")
	}
	defer a.leave(c)
	a.mu.Lock()
	c.rolls++
	a.mu.Unlock()
	return nil
}

func (a *Adapter) ServerVersion(ec nca.ErrorContext, h nca.Handle) (string, error) {
	return "19.3.0.0.0", nil
}

func (a *Adapter) Prepare(ec nca.ErrorContext, h nca.Handle, sql string) (nca.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.conns[h]; !ok {
		return 0, errInvalidHandle("connection")
	}
	s, ok := a.scripts[normalize(sql)]
	if !ok {
		return 0, nca.NewError(900, "invalid SQL statement")
	}
	sh := a.newHandle()
	a.stmts[sh] = &stmt{conn: h, script: s, defines: make(map[int]*nca.Buffer)}
	return sh, nil
}

func (a *Adapter) ReleaseStmt(ec nca.ErrorContext, h nca.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.stmts[h]; !ok {
		a.badReleases++
		return errInvalidHandle("statement")
	}
	delete(a.stmts, h)
	return nil
}

func (a *Adapter) stmt(h nca.Handle) (*stmt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stmts[h]
	if !ok {
		return nil, errInvalidHandle("statement")
	}
	return s, nil
}

func (a *Adapter) StmtInfo(ec nca.ErrorContext, h nca.Handle) (nca.StmtInfo, error) {
	s, err := a.stmt(h)
	if err != nil {
		return nca.StmtInfo{}, err
	}
	return nca.StmtInfo{
		Kind:        s.script.Kind,
		IsReturning: s.script.returning(),
		BindNames:   s.script.BindNames,
	}, nil
}

func (a *Adapter) Bind(ec nca.ErrorContext, h nca.Handle, target nca.BindTarget, buf *nca.Buffer) error {
	s, err := a.stmt(h)
	if err != nil {
		return err
	}
	s.binds = append(s.binds, &bound{target: target, buf: buf})
	return nil
}

func (a *Adapter) BindDynamic(ec nca.ErrorContext, h nca.Handle, target nca.BindTarget, buf *nca.Buffer, binder nca.DynamicBinder) error {
	s, err := a.stmt(h)
	if err != nil {
		return err
	}
	s.binds = append(s.binds, &bound{target: target, buf: buf, binder: binder})
	return nil
}

func bindKey(t nca.BindTarget) string {
	if t.ByName() {
		return strings.ToUpper(t.Name)
	}
	return strconv.Itoa(t.Pos)
}

func (a *Adapter) Execute(ec nca.ErrorContext, h nca.Handle, iters uint32, mode nca.ExecMode) error {
	s, err := a.stmt(h)
	if err != nil {
		return err
	}
	c := a.enter(s.conn)
	if c == nil {
		return errInvalidHandle("connection")
	}
	defer a.leave(c)

	sc := s.script
	if sc.Delay > 0 && a.sleep(c, sc.Delay) {
		return errCancelled()
	}
	if sc.Err != nil {
		return sc.Err
	}
	if iters == 0 {
		iters = 1
	}

	if sc.OnExecute != nil || sc.Echo {
		values := make(map[string][]any)
		for _, b := range s.binds {
			if b.binder != nil || b.buf.Native.HoldsHandle() {
				continue
			}
			n := iters
			if b.buf.IsArray {
				n = b.buf.Elements()
			}
			for i := uint32(0); i < n; i++ {
				values[bindKey(b.target)] = append(values[bindKey(b.target)], decodeValue(b.buf, i))
			}
		}
		if sc.OnExecute != nil {
			sc.OnExecute(values)
		}
		if sc.Echo {
			s.echo()
		}
	}

	s.executed = true
	s.cursor = 0
	s.batch = nil
	s.counts = nil
	s.affected = sc.RowsAffected
	if sc.Kind == nca.StmtQuery && !sc.Echo {
		s.columns = sc.Columns
		s.rows = sc.Rows
	}

	if len(sc.BatchErrors) > 0 {
		offsets := make([]int, 0, len(sc.BatchErrors))
		for off := range sc.BatchErrors {
			offsets = append(offsets, int(off))
		}
		slices.Sort(offsets)
		if mode&nca.ExecBatchErrors == 0 {
			e := *sc.BatchErrors[uint32(offsets[0])]
			e.Offset = uint32(offsets[0])
			return &e
		}
		for _, off := range offsets {
			s.batch = append(s.batch, nca.BatchErrorInfo{Offset: uint32(off), Err: sc.BatchErrors[uint32(off)]})
		}
	}
	if mode&nca.ExecArrayDMLRowCount != 0 {
		if sc.RowCounts != nil {
			s.counts = sc.RowCounts
		} else {
			s.counts = make([]uint64, iters)
			for i := range s.counts {
				s.counts[i] = sc.RowsAffected / uint64(iters)
			}
		}
	}

	if err := a.writeOut(s); err != nil {
		return err
	}
	if sc.returning() {
		if err := a.writeReturning(s, iters); err != nil {
			return err
		}
	}
	if mode&nca.ExecCommitOnSuccess != 0 {
		a.mu.Lock()
		c.commits++
		a.mu.Unlock()
	}
	return nil
}

func (s *stmt) echo() {
	s.columns = nil
	var row []any
	for i, b := range s.binds {
		if b.binder != nil {
			continue
		}
		col := nca.ColumnInfo{
			Name:     "COL" + strconv.Itoa(i+1),
			DBType:   b.buf.DBType,
			Size:     b.buf.ElemSize,
			Nullable: true,
		}
		if b.buf.Native == nca.NativeInt64 || b.buf.Native == nca.NativeUint64 {
			col.Precision = 18
		} else if b.buf.DBType == nca.DBTypeNumber {
			col.Scale = -127
		}
		s.columns = append(s.columns, col)
		row = append(row, decodeValue(b.buf, 0))
	}
	s.rows = [][]any{row}
}

func (a *Adapter) writeOut(s *stmt) error {
	if s.script.Out == nil {
		return nil
	}
	for _, b := range s.binds {
		if b.binder != nil {
			continue
		}
		v, ok := s.script.Out[bindKey(b.target)]
		if !ok {
			continue
		}
		if b.buf.IsArray {
			items, _ := v.([]any)
			if uint32(len(items)) > b.buf.Count {
				return nca.NewError(6513, "PL/SQL: index for PL/SQL table out of range for host language array")
			}
			for i, item := range items {
				if err := a.encodeValue(s.conn, b.buf, uint32(i), item); err != nil {
					return err
				}
			}
			*b.buf.ActualCount = uint32(len(items))
			continue
		}
		if err := a.encodeValue(s.conn, b.buf, 0, v); err != nil {
			if nca.IsCode(err, nca.CodeValueTooLarge) {
				return nca.NewError(6502, "PL/SQL: numeric or value error: character string buffer too small")
			}
			return err
		}
	}
	return nil
}

func (a *Adapter) writeReturning(s *stmt, iters uint32) error {
	var dynamic []*bound
	for _, b := range s.binds {
		if b.binder != nil {
			dynamic = append(dynamic, b)
		}
	}
	overflow := false
	for it := uint32(0); it < iters; it++ {
		rows := s.script.returnedRows(it)
		count := uint32(len(rows))
		for k, b := range dynamic {
			b.binder.In(it, 0)
			for idx := uint32(0); idx < count; idx++ {
				slot, err := b.binder.Out(it, idx, func() (uint32, error) { return count, nil })
				if err != nil {
					return err
				}
				var v any
				if k < len(rows[idx]) {
					v = rows[idx][k]
				}
				if writeSlot(slot, b.buf, v, a.opts.TruncateReturning) {
					overflow = true
				}
			}
		}
	}
	if overflow && !a.opts.TruncateReturning {
		return nca.NewError(nca.CodeValueTooLarge, "fetched column value was truncated")
	}
	return nil
}

// writeSlot stores v into a dynamic OUT slot and reports whether it overflowed.
func writeSlot(slot nca.OutSlot, tmpl *nca.Buffer, v any, silent bool) bool {
	*slot.ReturnCode = 0
	if v == nil {
		*slot.Indicator = nca.IndicatorNull
		*slot.Length = 0
		return false
	}
	*slot.Indicator = nca.IndicatorNotNull

	view := &nca.Buffer{
		Native:     tmpl.Native,
		DBType:     tmpl.DBType,
		ElemSize:   uint32(len(slot.Value)),
		Count:      1,
		Data:       slot.Value,
		Indicator:  []int16{0},
		Length:     []uint32{0},
		ReturnCode: []uint16{0},
	}
	raw := encodeBytes(tmpl.DBType, v)
	if tmpl.Native == nca.NativeBytes && raw != nil {
		n := copy(slot.Value, raw)
		*slot.Length = uint32(len(raw))
		if n < len(raw) {
			if !silent {
				*slot.ReturnCode = nca.CodeValueTooLarge
			}
			return true
		}
		return false
	}
	if err := encodeScalar(view, 0, v); err != nil {
		*slot.ReturnCode = nca.CodeValueTooLarge
		return true
	}
	*slot.Length = view.Length[0]
	return false
}

func (a *Adapter) RowCount(ec nca.ErrorContext, h nca.Handle) (uint64, error) {
	s, err := a.stmt(h)
	if err != nil {
		return 0, err
	}
	if s.script.Kind == nca.StmtQuery {
		return uint64(s.cursor), nil
	}
	return s.affected, nil
}

func (a *Adapter) RowCounts(ec nca.ErrorContext, h nca.Handle) ([]uint64, error) {
	s, err := a.stmt(h)
	if err != nil {
		return nil, err
	}
	return s.counts, nil
}

func (a *Adapter) BatchErrors(ec nca.ErrorContext, h nca.Handle) ([]nca.BatchErrorInfo, error) {
	s, err := a.stmt(h)
	if err != nil {
		return nil, err
	}
	return s.batch, nil
}

func (a *Adapter) LastRowid(ec nca.ErrorContext, h nca.Handle) (string, error) {
	s, err := a.stmt(h)
	if err != nil {
		return "", err
	}
	return s.script.LastRowid, nil
}

func (a *Adapter) Columns(ec nca.ErrorContext, h nca.Handle) ([]nca.ColumnInfo, error) {
	s, err := a.stmt(h)
	if err != nil {
		return nil, err
	}
	if s.columns == nil && s.script.Kind == nca.StmtQuery && !s.script.Echo {
		return s.script.Columns, nil
	}
	return s.columns, nil
}

func (a *Adapter) Define(ec nca.ErrorContext, h nca.Handle, pos int, buf *nca.Buffer) error {
	s, err := a.stmt(h)
	if err != nil {
		return err
	}
	if pos < 1 || pos > len(s.columns) {
		return nca.NewError(1007, "variable not in select list")
	}
	s.defines[pos] = buf
	return nil
}

func (a *Adapter) Fetch(ec nca.ErrorContext, h nca.Handle, rows uint32) (uint32, error) {
	s, err := a.stmt(h)
	if err != nil {
		return 0, err
	}
	c := a.enter(s.conn)
	if c == nil {
		return 0, errInvalidHandle("connection")
	}
	defer a.leave(c)

	if !s.executed {
		return 0, nca.NewError(24338, "statement handle not executed")
	}
	if a.opts.FetchDelay > 0 && a.sleep(c, a.opts.FetchDelay) {
		return 0, errCancelled()
	}
	for pos := range s.columns {
		buf := s.defines[pos+1]
		if buf == nil {
			return 0, nca.NewError(24374, "define not done before fetch or execute and fetch")
		}
		if buf.Count < rows {
			return 0, nca.NewError(24374, "define array of %d elements is smaller than fetch of %d rows", buf.Count, rows)
		}
	}

	var n uint32
	for n < rows && s.cursor < len(s.rows) {
		row := s.rows[s.cursor]
		for pos := range s.columns {
			var v any
			if pos < len(row) {
				v = row[pos]
			}
			if err := a.encodeValue(s.conn, s.defines[pos+1], n, v); err != nil {
				return n, err
			}
		}
		s.cursor++
		n++
	}
	return n, nil
}

func (a *Adapter) AllocSlot(ec nca.ErrorContext, h nca.Handle, native nca.NativeType, dbType nca.DBType) (nca.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sh := a.newHandle()
	switch native {
	case nca.NativeLob:
		a.lobs[sh] = &lob{dbType: dbType}
	case nca.NativeStmt:
		a.stmts[sh] = &stmt{conn: h, script: &Script{Kind: nca.StmtQuery}, defines: make(map[int]*nca.Buffer)}
	case nca.NativeObject:
		a.objects[sh] = &object{}
	default:
		return 0, nca.ErrNotSupported
	}
	return sh, nil
}

func (a *Adapter) FreeSlot(ec nca.ErrorContext, native nca.NativeType, h nca.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ok bool
	switch native {
	case nca.NativeLob:
		_, ok = a.lobs[h]
		delete(a.lobs, h)
	case nca.NativeStmt:
		_, ok = a.stmts[h]
		delete(a.stmts, h)
	case nca.NativeObject:
		_, ok = a.objects[h]
		delete(a.objects, h)
	}
	if !ok {
		a.badReleases++
		return errInvalidHandle("slot")
	}
	return nil
}

func (a *Adapter) lob(h nca.Handle) (*lob, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.lobs[h]
	if !ok {
		return nil, errInvalidHandle("LOB")
	}
	return l, nil
}

func (a *Adapter) LobChunkSize(ec nca.ErrorContext, ch, h nca.Handle) (uint32, error) {
	if _, err := a.lob(h); err != nil {
		return 0, err
	}
	return a.opts.ChunkSize, nil
}

func (a *Adapter) LobLength(ec nca.ErrorContext, ch, h nca.Handle) (uint64, error) {
	l, err := a.lob(h)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return l.units(), nil
}

func (a *Adapter) LobRead(ec nca.ErrorContext, ch, h nca.Handle, offset, amount uint64, buf []byte) (uint64, int, error) {
	l, err := a.lob(h)
	if err != nil {
		return 0, 0, err
	}
	c := a.enter(ch)
	if c == nil {
		return 0, 0, errInvalidHandle("connection")
	}
	defer a.leave(c)
	if a.opts.LobDelay > 0 && a.sleep(c, a.opts.LobDelay) {
		return 0, 0, errCancelled()
	}
	if offset == 0 {
		return 0, 0, nca.NewError(24801, "illegal parameter value in OCI lob function")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	start, end := l.span(offset, amount)
	if end-start > len(buf) {
		return 0, 0, nca.NewError(22993, "specified input amount is greater than actual source amount")
	}
	n := copy(buf, l.data[start:end])
	return l.count(l.data[start:end]), n, nil
}

func (a *Adapter) LobWrite(ec nca.ErrorContext, ch, h nca.Handle, offset uint64, data []byte) (uint64, error) {
	l, err := a.lob(h)
	if err != nil {
		return 0, err
	}
	c := a.enter(ch)
	if c == nil {
		return 0, errInvalidHandle("connection")
	}
	defer a.leave(c)
	if a.opts.LobDelay > 0 && a.sleep(c, a.opts.LobDelay) {
		return 0, errCancelled()
	}
	if offset == 0 {
		return 0, nca.NewError(24801, "illegal parameter value in OCI lob function")
	}
	if len(data) == 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	l.write(offset, data)
	return l.count(data), nil
}

func (a *Adapter) LobCreateTemp(ec nca.ErrorContext, ch nca.Handle, dbType nca.DBType) (nca.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.newHandle()
	a.lobs[h] = &lob{dbType: dbType, temp: true}
	return h, nil
}

func (a *Adapter) LobFree(ec nca.ErrorContext, ch, h nca.Handle, temp bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.lobs[h]; !ok {
		a.badReleases++
		return errInvalidHandle("LOB")
	}
	delete(a.lobs, h)
	return nil
}

func (a *Adapter) DescribeObjectType(ec nca.ErrorContext, ch nca.Handle, name string) (nca.ObjectTypeInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.types[strings.ToUpper(name)]
	if !ok {
		return nca.ObjectTypeInfo{}, nca.NewError(4043, "object %s does not exist", name)
	}
	return info, nil
}

func (a *Adapter) NewObject(ec nca.ErrorContext, ch nca.Handle, typ nca.ObjectTypeInfo, attrs map[string]any) (nca.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.newHandle()
	a.objects[h] = &object{typ: typ, attrs: copyAttrs(attrs)}
	return h, nil
}

func (a *Adapter) ObjectAttributes(ec nca.ErrorContext, ch, h nca.Handle) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.objects[h]
	if !ok {
		return nil, errInvalidHandle("object")
	}
	return copyAttrs(o.attrs), nil
}

func copyAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
