package orabridge

import (
	"context"

	"github.com/semihalev/go-orabridge/nca"
)

// ExecuteOptions tune a single Execute call. Zero values inherit the
// configuration.
type ExecuteOptions struct {
	// AutoCommit commits when the statement succeeds.
	AutoCommit bool
	// ResultSet returns queries as an open *ResultSet instead of rows.
	ResultSet      bool
	FetchArraySize uint32
	// MaxRows caps the rows returned by a query without ResultSet.
	MaxRows   uint32
	OutFormat OutFormat
	// FetchInfo overrides the representation of columns by name.
	FetchInfo     map[string]FetchInfo
	FetchAsString []nca.DBType
	FetchAsBuffer []nca.DBType
}

// ExecuteResult is the outcome of Execute.
type ExecuteResult struct {
	Columns []ColumnMeta
	// Rows holds the rows of a query in array format.
	Rows [][]any
	// RowMaps holds the rows of a query in object format.
	RowMaps   []map[string]any
	ResultSet *ResultSet

	RowsAffected uint64
	LastRowid    string
	// OutBinds holds OUT and IN OUT values in bind order. RETURNING binds
	// yield one []any of returned rows each.
	OutBinds []any
	// OutBindsByName holds the same values for binds made by name.
	OutBindsByName map[string]any
}

// execution is the state shared between the phases of an Execute or
// ExecuteMany task.
type execution struct {
	conn  *Connection
	sql   string
	vars  []*bindVar
	iters uint32
	mode  nca.ExecMode
	q     queryOptions

	info      nca.StmtInfo
	stmtID    HandleID
	columns   []nca.ColumnInfo
	affected  uint64
	rowCounts []uint64
	batchErrs []nca.BatchErrorInfo
	lastRowid string
}

// encodeBinds allocates and fills the buffers of IN and IN OUT binds.
// OUT buffers depend on the statement type and are made by run.
func (x *execution) encodeBinds(tc *TaskContext) error {
	for _, v := range x.vars {
		if !v.dir.isIn() {
			continue
		}
		if err := v.allocBuffer(tc, x.iters); err != nil {
			return err
		}
		if err := v.encodeInputs(tc); err != nil {
			return err
		}
	}
	return nil
}

// run is the blocking body: prepare, bind, execute and collect what the
// completion needs.
func (x *execution) run(tc *TaskContext) error {
	conn, err := x.conn.handle(tc)
	if err != nil {
		return err
	}
	a := tc.Adapter()
	stmt, err := a.Prepare(tc.EC, conn, x.sql)
	if err != nil {
		return wrapf(err, "prepare")
	}
	x.stmtID = tc.Own(stmt, func(ec nca.ErrorContext, h nca.Handle) error {
		return a.ReleaseStmt(ec, h)
	})
	if x.info, err = a.StmtInfo(tc.EC, stmt); err != nil {
		return wrapf(err, "statement info")
	}

	for _, v := range x.vars {
		if err := x.bind(tc, conn, stmt, v); err != nil {
			return err
		}
	}

	tc.log.Trace("executing", "iters", x.iters, "binds", len(x.vars))
	if err := a.Execute(tc.EC, stmt, x.iters, x.mode); err != nil {
		if nca.IsCode(err, nca.CodeValueTooLarge) && x.hasOutBinds() {
			return ErrInsufficientBufferForBinds
		}
		return wrapf(err, "execute")
	}

	for _, v := range x.vars {
		if v.dyn != nil {
			if err := v.dyn.reconcile(); err != nil {
				return err
			}
			continue
		}
		if err := checkStaticOut(v); err != nil {
			return err
		}
		if err := x.collectOut(tc, conn, v); err != nil {
			return err
		}
	}

	if x.info.Kind == nca.StmtQuery {
		x.columns, err = a.Columns(tc.EC, stmt)
		return wrapf(err, "columns")
	}
	if x.affected, err = a.RowCount(tc.EC, stmt); err != nil {
		return wrapf(err, "row count")
	}
	if x.mode&nca.ExecArrayDMLRowCount != 0 {
		if x.rowCounts, err = a.RowCounts(tc.EC, stmt); err != nil {
			return wrapf(err, "row counts")
		}
	}
	if x.mode&nca.ExecBatchErrors != 0 {
		if x.batchErrs, err = a.BatchErrors(tc.EC, stmt); err != nil {
			return wrapf(err, "batch errors")
		}
	}
	if x.info.Kind == nca.StmtDML && x.iters == 1 {
		if x.lastRowid, err = a.LastRowid(tc.EC, stmt); err != nil {
			return wrapf(err, "last rowid")
		}
	}
	return nil
}

// hasOutBinds reports whether any variable receives a value. ORA-01406
// from an execution with OUT binds is the insufficient-buffer condition.
func (x *execution) hasOutBinds() bool {
	for _, v := range x.vars {
		if v.dir.isOut() {
			return true
		}
	}
	return false
}

// bind registers one variable, creating OUT buffers and native objects.
func (x *execution) bind(tc *TaskContext, conn, stmt nca.Handle, v *bindVar) error {
	a := tc.Adapter()
	if v.dir == BindOut && x.info.IsReturning {
		d, err := newDynamicOutBind(tc, v, x.iters)
		if err != nil {
			return err
		}
		if err := v.allocBuffer(tc, 1); err != nil {
			return err
		}
		v.dyn = d
		return wrapf(a.BindDynamic(tc.EC, stmt, v.target, &v.buf.Buffer, d), "bind %s", v.slotName())
	}
	if v.buf == nil {
		if err := v.allocBuffer(tc, x.iters); err != nil {
			return err
		}
	}
	if v.native == nca.NativeObject {
		t, err := tc.env.types.describe(tc.EC, conn, v.typeName)
		if err != nil {
			return err
		}
		v.objType = t
		if err := v.createObjects(tc, conn); err != nil {
			return err
		}
	}
	if v.dir == BindOut && v.native.HoldsHandle() {
		if err := v.buf.allocSlots(tc.EC, conn); err != nil {
			return wrapf(err, "allocate slots for %s", v.slotName())
		}
	}
	return wrapf(a.Bind(tc.EC, stmt, v.target, &v.buf.Buffer), "bind %s", v.slotName())
}

// collectOut reads the native parts of OUT object and cursor values.
func (x *execution) collectOut(tc *TaskContext, conn nca.Handle, v *bindVar) error {
	if v.dir != BindOut {
		return nil
	}
	a := tc.Adapter()
	n := v.buf.Elements()
	switch v.native {
	case nca.NativeObject:
		v.outAttrs = make([]map[string]any, n)
		for i := uint32(0); i < n; i++ {
			if v.buf.IsNull(i) {
				continue
			}
			attrs, err := a.ObjectAttributes(tc.EC, conn, v.buf.Handle(i))
			if err != nil {
				return wrapf(err, "read %s attributes", v.typeName)
			}
			v.outAttrs[i] = attrs
		}
	case nca.NativeStmt:
		v.cursorCols = make([][]nca.ColumnInfo, n)
		for i := uint32(0); i < n; i++ {
			if v.buf.IsNull(i) {
				continue
			}
			cols, err := a.Columns(tc.EC, v.buf.Handle(i))
			if err != nil {
				return wrapf(err, "describe cursor %s", v.slotName())
			}
			v.cursorCols[i] = cols
		}
	}
	return nil
}

// outValue builds the Go value of element i of an OUT variable, or all
// returned rows of iteration i for RETURNING binds.
func (x *execution) outValue(v *bindVar, i uint32) (any, error) {
	if v.dyn != nil {
		return v.dyn.values(int(i))
	}
	buf := v.buf
	if v.isArray {
		n := buf.Elements()
		items := make([]any, n)
		for j := uint32(0); j < n; j++ {
			val, err := scalarValue(&buf.Buffer, j, false)
			if err != nil {
				return nil, err
			}
			items[j] = val
		}
		return items, nil
	}
	if buf.IsNull(i) {
		return nil, nil
	}
	switch v.native {
	case nca.NativeLob:
		if v.dir == BindInOut {
			return v.values[i], nil
		}
		return x.conn.adoptLob(buf.takeSlot(i), v.dbType), nil
	case nca.NativeStmt:
		return x.conn.adoptCursor(buf.takeSlot(i), v.cursorCols[i], x.q), nil
	case nca.NativeObject:
		if v.dir == BindInOut {
			return v.values[i], nil
		}
		return &Object{Type: v.objType, Attrs: v.outAttrs[i]}, nil
	}
	return scalarValue(&buf.Buffer, i, false)
}

// queryOptions resolves per-call settings against the configuration.
func (c *Connection) queryOptions(opts *ExecuteOptions) queryOptions {
	cfg := c.env.cfg
	q := queryOptions{
		fetchArraySize: cfg.FetchArraySize,
		maxRows:        cfg.MaxRows,
		format:         cfg.OutFormat,
		policy:         c.policy(opts),
	}
	if opts.FetchArraySize > 0 {
		q.fetchArraySize = opts.FetchArraySize
	}
	if opts.MaxRows > 0 {
		q.maxRows = opts.MaxRows
	}
	if opts.OutFormat != OutFormatDefault {
		q.format = opts.OutFormat
	}
	if q.format == OutFormatDefault {
		q.format = OutFormatArray
	}
	return q
}

// Execute runs one SQL or PL/SQL statement. binds holds BindSpec values,
// sql.NamedArg or sql.Out values, or plain values bound by position.
// Queries return all rows unless opts.ResultSet is set.
func (c *Connection) Execute(ctx context.Context, sql string, binds []any, opts *ExecuteOptions) (*ExecuteResult, error) {
	if opts == nil {
		opts = &ExecuteOptions{}
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.guard.release()

	x := &execution{conn: c, sql: sql, iters: 1, q: c.queryOptions(opts)}
	if opts.AutoCommit {
		x.mode |= nca.ExecCommitOnSuccess
	}
	resolver := &bindResolver{cfg: c.env.cfg}

	res, err := Run(ctx, c.env.sched, Task[*ExecuteResult]{
		Kind: TaskExecute,
		Prepare: func(tc *TaskContext) error {
			vars, err := resolver.resolve(binds)
			if err != nil {
				return err
			}
			x.vars = vars
			return x.encodeBinds(tc)
		},
		Blocking: x.run,
		Complete: func(tc *TaskContext) (*ExecuteResult, error) {
			return x.result(tc)
		},
		Interrupt: c.interrupt,
	})
	if err != nil {
		return nil, err
	}
	if res.ResultSet != nil && !opts.ResultSet {
		rows, err := res.ResultSet.fetchAll(ctx)
		res.ResultSet = nil
		if err != nil {
			return nil, err
		}
		if x.q.format == OutFormatObject {
			res.RowMaps = rowMaps(res.Columns, rows)
		} else {
			res.Rows = rows
		}
	}
	return res, nil
}

// result is the completion of Execute.
func (x *execution) result(tc *TaskContext) (*ExecuteResult, error) {
	res := &ExecuteResult{RowsAffected: x.affected, LastRowid: x.lastRowid}
	for _, v := range x.vars {
		if !v.dir.isOut() {
			continue
		}
		val, err := x.outValue(v, 0)
		if err != nil {
			return nil, err
		}
		res.OutBinds = append(res.OutBinds, val)
		if v.target.ByName() {
			if res.OutBindsByName == nil {
				res.OutBindsByName = make(map[string]any)
			}
			res.OutBindsByName[v.target.Name] = val
		}
		if v.dest != nil {
			if err := assignOut(v.dest, val); err != nil {
				return nil, err
			}
		}
	}
	if x.info.Kind != nca.StmtQuery {
		return res, nil
	}

	ds, err := newDefineSet(tc.Adapter(), x.columns, x.q.policy)
	if err != nil {
		return nil, err
	}
	id, err := tc.Transfer(x.stmtID)
	if err != nil {
		return nil, err
	}
	res.Columns = ds.metas()
	res.ResultSet = newResultSet(x.conn, id, ds, x.q)
	return res, nil
}
