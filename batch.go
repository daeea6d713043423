package orabridge

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/semihalev/go-orabridge/nca"
)

// ExecuteManyOptions tune ExecuteMany.
type ExecuteManyOptions struct {
	AutoCommit bool
	// BatchErrors reports failing rows in BatchResult instead of aborting
	// at the first one.
	BatchErrors bool
	// DMLRowCounts reports the rows affected by each iteration.
	DMLRowCounts bool
	// BindDefs declares every bind explicitly; rows are then checked
	// against the declarations instead of being scanned for types.
	BindDefs []BindSpec
	// Iterations runs the statement this many times without input rows.
	// It requires BindDefs.
	Iterations uint32
}

// BatchError is the failure of one row of an ExecuteMany call.
type BatchError struct {
	// Offset is the 0-based index of the failing row.
	Offset uint32
	Err    *Error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Offset, e.Err.Error())
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// BatchResult is the outcome of ExecuteMany.
type BatchResult struct {
	RowsAffected uint64
	DMLRowCounts []uint64
	BatchErrors  []*BatchError
	// OutBinds holds, per iteration, the OUT values in bind order.
	OutBinds [][]any
}

// Err combines the row errors into one error, or returns nil when every
// row succeeded.
func (r *BatchResult) Err() error {
	var result *multierror.Error
	for _, be := range r.BatchErrors {
		result = multierror.Append(result, be)
	}
	return result.ErrorOrNil()
}

// ExecuteMany runs sql once per row of rows using array binds in a single
// round trip. Every row must have the same shape.
func (c *Connection) ExecuteMany(ctx context.Context, sql string, rows [][]any, opts *ExecuteManyOptions) (*BatchResult, error) {
	if opts == nil {
		opts = &ExecuteManyOptions{}
	}
	if len(rows) == 0 && opts.Iterations > 0 {
		if opts.BindDefs == nil {
			return nil, usageError(4, "invalid value for parameter %s", "binds")
		}
		rows = placeholderRows(opts.BindDefs, opts.Iterations)
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.guard.release()

	x := &execution{conn: c, sql: sql, iters: uint32(len(rows)), q: c.queryOptions(&ExecuteOptions{})}
	if opts.AutoCommit {
		x.mode |= nca.ExecCommitOnSuccess
	}
	if opts.BatchErrors {
		x.mode |= nca.ExecBatchErrors
	}
	if opts.DMLRowCounts {
		x.mode |= nca.ExecArrayDMLRowCount
	}
	resolver := &bindResolver{cfg: c.env.cfg}

	return Run(ctx, c.env.sched, Task[*BatchResult]{
		Kind: TaskExecuteMany,
		Prepare: func(tc *TaskContext) error {
			vars, err := resolver.resolveBatch(rows, opts.BindDefs)
			if err != nil {
				return err
			}
			x.vars = vars
			return x.encodeBinds(tc)
		},
		Blocking:  x.run,
		Complete:  x.batchResult,
		Interrupt: c.interrupt,
	})
}

func placeholderRows(defs []BindSpec, n uint32) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		row := make([]any, len(defs))
		for k, d := range defs {
			row[k] = BindSpec{Name: d.Name}
		}
		rows[i] = row
	}
	return rows
}

// batchResult is the completion of ExecuteMany.
func (x *execution) batchResult(tc *TaskContext) (*BatchResult, error) {
	res := &BatchResult{RowsAffected: x.affected, DMLRowCounts: x.rowCounts}
	for _, be := range x.batchErrs {
		e := nativeError(be.Err)
		ee := &Error{Type: ErrNative, Message: e.Error()}
		if ne, ok := e.(*Error); ok {
			cp := *ne
			ee = &cp
		}
		ee.Offset = be.Offset
		res.BatchErrors = append(res.BatchErrors, &BatchError{Offset: be.Offset, Err: ee})
	}

	var outs []*bindVar
	for _, v := range x.vars {
		if v.dir.isOut() {
			outs = append(outs, v)
		}
	}
	if len(outs) == 0 {
		return res, nil
	}
	res.OutBinds = make([][]any, x.iters)
	for i := uint32(0); i < x.iters; i++ {
		row := make([]any, len(outs))
		for k, v := range outs {
			val, err := x.outValue(v, i)
			if err != nil {
				return nil, err
			}
			row[k] = val
		}
		res.OutBinds[i] = row
	}
	return res, nil
}
