package orabridge

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/go-orabridge/nca"
	"github.com/semihalev/go-orabridge/nca/ncafake"
)

var employeeColumns = []nca.ColumnInfo{
	{Name: "ID", DBType: nca.DBTypeNumber, Precision: 10, Nullable: false},
	{Name: "NAME", DBType: nca.DBTypeVarchar, Size: 20, Nullable: true},
	{Name: "SALARY", DBType: nca.DBTypeNumber, Precision: 8, Scale: 2, Nullable: true},
}

func employees(fake *ncafake.Adapter) {
	fake.Script("select id, name, salary from employees", &ncafake.Script{
		Kind:    nca.StmtQuery,
		Columns: employeeColumns,
		Rows: [][]any{
			{1, "King", 24000.5},
			{2, "Kochhar", nil},
			{3, "De Haan", 17000.0},
		},
	})
}

func TestExecuteQuery(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{FetchArraySize: 2})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Nil(t, res.ResultSet)
	assert.Equal(t, []any{int64(1), "King", 24000.5}, res.Rows[0])
	assert.Equal(t, []any{int64(2), "Kochhar", nil}, res.Rows[1])
	assert.Equal(t, "De Haan", res.Rows[2][1])

	require.Len(t, res.Columns, 3)
	assert.Equal(t, "NAME", res.Columns[1].Name)
	assert.Equal(t, nca.DBTypeVarchar, res.Columns[1].DBType)
	assert.Equal(t, int8(2), res.Columns[2].Scale)
}

func TestExecuteQueryWhitespaceAndMaxRows(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(context.Background(), "select id, name, salary\n  from employees", nil, &ExecuteOptions{MaxRows: 2})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestExecuteQueryObjectFormat(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(context.Background(), "select id, name, salary from employees", nil, &ExecuteOptions{OutFormat: OutFormatObject})
	require.NoError(t, err)
	assert.Nil(t, res.Rows)
	require.Len(t, res.RowMaps, 3)
	assert.Equal(t, "King", res.RowMaps[0]["NAME"])
	assert.Equal(t, int64(3), res.RowMaps[2]["ID"])
}

func TestResultSetFetchKeepsDefines(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{ResultSet: true, FetchArraySize: 2})
	require.NoError(t, err)
	rs := res.ResultSet
	require.NotNil(t, rs)

	rows, err := rs.fetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Zero(t, rs.ds.reallocs)

	// The cursor closed itself once drained.
	_, err = rs.GetRows(ctx, 1)
	assert.ErrorIs(t, err, ErrInvalidResultSet)
}

func TestResultSetGrowsDefines(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{ResultSet: true})
	require.NoError(t, err)
	rs := res.ResultSet
	defer rs.Close(ctx)

	rows, err := rs.GetRows(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = rs.GetRows(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, rs.ds.reallocs)

	rows, err = rs.GetRows(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, rs.Close(ctx))
	require.NoError(t, rs.Close(ctx))
}

func TestResultSetRejectsGetRowsWhileBusy(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{ResultSet: true})
	require.NoError(t, err)
	rs := res.ResultSet
	defer rs.Close(ctx)

	rows, err := rs.GetRows(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// An exhausted result set still checks the guard before reading its state.
	require.NoError(t, rs.guard.acquire())
	_, err = rs.GetRows(ctx, 10)
	assert.ErrorIs(t, err, ErrBusyResultSet)
	rs.guard.release()

	rows, err = rs.GetRows(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, rs.Close(ctx))
}

func TestResultSetGetRowAndMaps(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{ResultSet: true})
	require.NoError(t, err)
	rs := res.ResultSet
	defer rs.Close(ctx)

	row, err := rs.GetRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row[0])

	maps, err := rs.GetRowMaps(ctx, 5)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "De Haan", maps[1]["NAME"])

	row, err = rs.GetRow(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestResultSetBlocksConnection(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)

	res, err := conn.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{ResultSet: true})
	require.NoError(t, err)
	rs := res.ResultSet

	require.NoError(t, rs.guard.acquire())
	_, err = rs.GetRows(ctx, 1)
	assert.ErrorIs(t, err, ErrBusyResultSet)
	rs.guard.release()

	require.NoError(t, conn.guard.acquire())
	_, err = rs.GetRows(ctx, 1)
	assert.ErrorIs(t, err, ErrBusyConnection)
	assert.False(t, rs.guard.Active(), "result set guard must be rolled back")
	conn.guard.release()

	require.NoError(t, rs.Close(ctx))
}

func TestExecuteEchoRoundTrip(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("select :1, :2, :3, :4, :5, :6 from dual", &ncafake.Script{Kind: nca.StmtQuery, Echo: true})

	res, err := conn.Execute(context.Background(), "select :1, :2, :3, :4, :5, :6 from dual",
		[]any{42, "héllo wörld", 3.25, []byte{0xde, 0xad}, 90 * time.Minute, nil}, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{int64(42), "héllo wörld", 3.25, []byte{0xde, 0xad}, 90 * time.Minute, nil}, res.Rows[0])
}

func TestExecuteEchoTimestamp(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("select :1 from dual", &ncafake.Script{Kind: nca.StmtQuery, Echo: true})

	when := time.Date(2024, 2, 29, 13, 45, 10, 123456000, time.FixedZone("", 2*3600))
	res, err := conn.Execute(context.Background(), "select :1 from dual", []any{when}, nil)
	require.NoError(t, err)
	got, ok := res.Rows[0][0].(time.Time)
	require.True(t, ok, "got %T", res.Rows[0][0])
	assert.True(t, when.Equal(got), "%s != %s", when, got)
}

func TestInferredSizeCoversEncoding(t *testing.T) {
	r := &bindResolver{cfg: DefaultConfig()}
	doc := map[string]any{"name": "Ærø", "tags": []any{"a", "b"}}
	vars, err := r.resolve([]any{"ünïcödé", doc, ""})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, vars[0].maxSize, uint32(len("ünïcödé")))
	assert.Equal(t, nca.DBTypeJSON, vars[1].dbType)
	assert.GreaterOrEqual(t, vars[1].maxSize, valueSize(nca.DBTypeJSON, doc))
	assert.Equal(t, uint32(1), vars[2].maxSize)
}

func TestRawJSONBinds(t *testing.T) {
	r := &bindResolver{cfg: DefaultConfig()}
	raw := json.RawMessage(`{"a":1,"b":[true,null]}`)

	vars, err := r.resolve([]any{raw, BindSpec{Type: TypeJSON, Val: raw}})
	require.NoError(t, err)
	for _, v := range vars {
		assert.Equal(t, nca.DBTypeJSON, v.dbType)
		assert.Equal(t, nca.NativeBytes, v.native)
		assert.False(t, v.isArray)
		assert.Equal(t, uint32(len(raw)), v.maxSize)
	}

	_, err = r.resolve([]any{BindSpec{Type: TypeNumber, Val: raw}})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 11, e.Code)
}

func TestBindUsageErrors(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("begin proc(:1, :2); end;", &ncafake.Script{Kind: nca.StmtPLSQL})

	tests := []struct {
		name  string
		binds []any
		code  int
	}{
		{"mixed", []any{sql.Named("a", 1), 2}, 55},
		{"out raw without size", []any{BindSpec{Dir: BindOut, Type: TypeBuffer}}, 56},
		{"named out raw without size", []any{BindSpec{Name: "b", Dir: BindOut, Type: TypeBuffer}}, 57},
		{"in out too small", []any{BindSpec{Dir: BindInOut, Val: "abcdef", MaxSize: 3}}, 58},
		{"out without type", []any{sql.Out{Dest: new(any)}}, 59},
		{"named out without type", []any{sql.Named("c", sql.Out{Dest: new(any)})}, 60},
		{"type mismatch", []any{BindSpec{Type: TypeNumber, Val: "ten"}}, 11},
		{"unsupported value", []any{struct{}{}}, 12},
		{"out array without max", []any{BindSpec{Dir: BindOut, Type: TypeNumber, Val: []int{1}}}, 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conn.Execute(context.Background(), "begin proc(:1, :2); end;", tt.binds, nil)
			require.Error(t, err)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, ErrUsage, e.Type)
			assert.Equal(t, tt.code, e.Code, e.Message)
		})
	}
	assert.False(t, conn.guard.Active())
}

func TestExecutePLSQLOut(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	var seen map[string][]any
	fake.Script("begin :1 := :2 * 2; :3 := 'done'; end;", &ncafake.Script{
		Kind:      nca.StmtPLSQL,
		Out:       map[string]any{"1": int64(84), "3": "done"},
		OnExecute: func(b map[string][]any) { seen = b },
	})

	var n int64
	var s string
	res, err := conn.Execute(context.Background(), "begin :1 := :2 * 2; :3 := 'done'; end;",
		[]any{sql.Out{Dest: &n}, 42, sql.Out{Dest: &s}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(84), n)
	assert.Equal(t, "done", s)
	assert.Equal(t, []any{int64(84), "done"}, res.OutBinds)
	assert.Equal(t, []any{int64(42)}, seen["2"])
}

func TestExecutePLSQLNamedInOut(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("begin :greeting := :greeting || ' world'; end;", &ncafake.Script{
		Kind:      nca.StmtPLSQL,
		BindNames: []string{"GREETING"},
		Out:       map[string]any{"GREETING": "hello world"},
	})

	greeting := "hello"
	res, err := conn.Execute(context.Background(), "begin :greeting := :greeting || ' world'; end;",
		[]any{sql.Named("greeting", sql.Out{Dest: &greeting, In: true})}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", greeting)
	assert.Equal(t, "hello world", res.OutBindsByName["greeting"])
}

func TestExecutePLSQLArrayOut(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("begin pkg.get_ids(:ids); end;", &ncafake.Script{
		Kind: nca.StmtPLSQL,
		Out:  map[string]any{"IDS": []any{int64(7), int64(8), int64(9)}},
	})

	res, err := conn.Execute(context.Background(), "begin pkg.get_ids(:ids); end;",
		[]any{BindSpec{Name: "ids", Dir: BindOut, Type: nca.DBTypeBinaryInt, MaxArraySize: 5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), int64(8), int64(9)}, res.OutBindsByName["ids"])
}

func TestExecuteDML(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("update employees set salary = :1 where id = :2", &ncafake.Script{
		Kind:         nca.StmtDML,
		RowsAffected: 1,
		LastRowid:    "AAAR3sAAEAAAACXAAA",
	})

	res, err := conn.Execute(context.Background(), "update employees set salary = :1 where id = :2",
		[]any{25000, 1}, &ExecuteOptions{AutoCommit: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.RowsAffected)
	assert.Equal(t, "AAAR3sAAEAAAACXAAA", res.LastRowid)
	assert.Nil(t, res.Rows)
}

func TestExecuteNativeError(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("insert into t values (:1)", &ncafake.Script{
		Kind: nca.StmtDML,
		Err:  &nca.Error{Code: 1, Message: "ORA-00001: unique constraint (HR.T_PK) violated", Offset: 12},
	})

	_, err := conn.Execute(context.Background(), "insert into t values (:1)", []any{1}, nil)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrNative, e.Type)
	assert.Equal(t, 1, e.Code)
	assert.Equal(t, uint32(12), e.Offset)

	_, err = conn.Execute(context.Background(), "select * from nowhere", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-00900")
}

func TestReturningInto(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("update t set v = v + 1 returning id into :1", &ncafake.Script{
		Kind:         nca.StmtDML,
		RowsAffected: 2,
		Returning:    [][]any{{int64(7)}, {int64(8)}},
	})

	res, err := conn.Execute(context.Background(), "update t set v = v + 1 returning id into :1",
		[]any{BindSpec{Dir: BindOut, Type: TypeNumber}}, nil)
	require.NoError(t, err)
	require.Len(t, res.OutBinds, 1)
	assert.Equal(t, []any{7.0, 8.0}, res.OutBinds[0])
}

func TestReturningNoRows(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("delete from t where id = :1 returning name into :2", &ncafake.Script{
		Kind:      nca.StmtDML,
		Returning: [][]any{},
	})

	res, err := conn.Execute(context.Background(), "delete from t where id = :1 returning name into :2",
		[]any{99, BindSpec{Dir: BindOut, Type: TypeString, MaxSize: 10}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{}}, res.OutBinds)
}

func TestReturningOverflow(t *testing.T) {
	for _, truncate := range []bool{false, true} {
		conn, fake := newTestConn(t, ncafake.Options{TruncateReturning: truncate})
		fake.Script("update t set name = upper(name) returning name into :1", &ncafake.Script{
			Kind:      nca.StmtDML,
			Returning: [][]any{{"ok"}, {"much too long for the slot"}},
		})

		_, err := conn.Execute(context.Background(), "update t set name = upper(name) returning name into :1",
			[]any{BindSpec{Dir: BindOut, Type: TypeString, MaxSize: 4}}, nil)
		assert.ErrorIs(t, err, ErrInsufficientBufferForBinds, "truncate=%v", truncate)
		assert.True(t, IsError(err, ErrBuffer))
	}
}

func TestFetchTruncationStaysNative(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("select code from short_codes", &ncafake.Script{
		Kind:    nca.StmtQuery,
		Columns: []nca.ColumnInfo{{Name: "CODE", DBType: nca.DBTypeVarchar, Size: 2}},
		Rows:    [][]any{{"a value far longer than the column"}},
	})
	fake.Script("insert into t values (:1)", &ncafake.Script{
		Kind: nca.StmtDML,
		Err:  nca.NewError(nca.CodeValueTooLarge, "fetched column value was truncated"),
	})

	_, err := conn.Execute(context.Background(), "select code from short_codes", nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientBufferForBinds)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrNative, e.Type)
	assert.Equal(t, nca.CodeValueTooLarge, e.Code)

	// Without OUT binds an execution failure keeps its ORA code too.
	_, err = conn.Execute(context.Background(), "insert into t values (:1)", []any{1}, nil)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrNative, e.Type)
	assert.Equal(t, nca.CodeValueTooLarge, e.Code)
}

func TestReturningRejectsLob(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("insert into docs values (:1) returning body into :2", &ncafake.Script{
		Kind:      nca.StmtDML,
		Returning: [][]any{{"text"}},
	})

	_, err := conn.Execute(context.Background(), "insert into docs values (:1) returning body into :2",
		[]any{1, BindSpec{Dir: BindOut, Type: TypeClob}}, nil)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 28, e.Code)
}

func TestNestedCursor(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	inner := &ncafake.Script{
		Kind:    nca.StmtQuery,
		Columns: []nca.ColumnInfo{{Name: "EMP", DBType: nca.DBTypeVarchar, Size: 10}},
		Rows:    [][]any{{"King"}, {"Kochhar"}},
	}
	fake.Script("select d.name, cursor(select name from employees) from departments d", &ncafake.Script{
		Kind: nca.StmtQuery,
		Columns: []nca.ColumnInfo{
			{Name: "NAME", DBType: nca.DBTypeVarchar, Size: 30},
			{Name: "EMPS", DBType: nca.DBTypeStmt},
		},
		Rows: [][]any{{"Executive", inner}},
	})

	res, err := conn.Execute(ctx, "select d.name, cursor(select name from employees) from departments d", nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	nested, ok := res.Rows[0][1].(*ResultSet)
	require.True(t, ok, "got %T", res.Rows[0][1])
	defer nested.Close(ctx)

	assert.Equal(t, "EMP", nested.Columns()[0].Name)
	rows, err := nested.GetRows(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"King"}, {"Kochhar"}}, rows)
	require.NoError(t, nested.Close(ctx))
}

func TestRefCursorOut(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("begin open :1 for select id from t; end;", &ncafake.Script{
		Kind: nca.StmtPLSQL,
		Out: map[string]any{"1": &ncafake.Script{
			Kind:    nca.StmtQuery,
			Columns: []nca.ColumnInfo{{Name: "ID", DBType: nca.DBTypeNumber, Precision: 5}},
			Rows:    [][]any{{1}, {2}, {3}},
		}},
	})

	var rs *ResultSet
	_, err := conn.Execute(ctx, "begin open :1 for select id from t; end;", []any{sql.Out{Dest: &rs}}, nil)
	require.NoError(t, err)
	require.NotNil(t, rs)

	rows, err := rs.GetRows(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	require.NoError(t, rs.Close(ctx))
}

func TestObjectColumn(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.RegisterType(nca.ObjectTypeInfo{
		Schema:     "HR",
		Name:       "POINT",
		Attributes: []nca.ObjectAttr{{Name: "X", DBType: nca.DBTypeNumber}, {Name: "Y", DBType: nca.DBTypeNumber}},
	})
	fake.Script("select location from sites", &ncafake.Script{
		Kind:    nca.StmtQuery,
		Columns: []nca.ColumnInfo{{Name: "LOCATION", DBType: nca.DBTypeObject, TypeName: "POINT", Nullable: true}},
		Rows:    [][]any{{map[string]any{"X": 1, "Y": 2}}, {nil}},
	})

	res, err := conn.Execute(ctx, "select location from sites", nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	obj, ok := res.Rows[0][0].(*Object)
	require.True(t, ok, "got %T", res.Rows[0][0])
	assert.Equal(t, "HR.POINT", obj.Type.FullName())
	assert.Equal(t, map[string]any{"X": 1, "Y": 2}, obj.Attrs)
	assert.Nil(t, res.Rows[1][0])

	typ, err := conn.GetObjectType(ctx, "hr.point")
	require.NoError(t, err)
	assert.Same(t, obj.Type, typ)
	assert.Len(t, typ.Attributes(), 2)
}

func TestObjectBind(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.RegisterType(nca.ObjectTypeInfo{Name: "POINT", Attributes: []nca.ObjectAttr{{Name: "X", DBType: nca.DBTypeNumber}}})
	fake.Script("insert into sites values (:1)", &ncafake.Script{Kind: nca.StmtDML, RowsAffected: 1})

	typ, err := conn.GetObjectType(ctx, "POINT")
	require.NoError(t, err)
	res, err := conn.Execute(ctx, "insert into sites values (:1)", []any{typ.New(map[string]any{"X": 5})}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.RowsAffected)

	_, err = conn.GetObjectType(ctx, "MISSING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-04043")
}

func TestDescribe(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	employees(fake)
	fake.Script("commit", &ncafake.Script{Kind: nca.StmtOther})

	cols, err := conn.Describe("select id, name, salary from employees")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "SALARY", cols[2].Name)

	cols, err = conn.Describe("commit")
	require.NoError(t, err)
	assert.Nil(t, cols)
}

func TestFetchAsString(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("select amount, raw_id from ledger", &ncafake.Script{
		Kind: nca.StmtQuery,
		Columns: []nca.ColumnInfo{
			{Name: "AMOUNT", DBType: nca.DBTypeNumber, Precision: 10, Scale: 2},
			{Name: "RAW_ID", DBType: nca.DBTypeRaw, Size: 2},
		},
		Rows: [][]any{{12.5, []byte{0xab, 0x01}}},
	})

	res, err := conn.Execute(context.Background(), "select amount, raw_id from ledger", nil, &ExecuteOptions{
		FetchAsString: []nca.DBType{nca.DBTypeNumber},
		FetchInfo:     map[string]FetchInfo{"RAW_ID": {Type: FetchString}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"12.5", "AB01"}, res.Rows[0])
	assert.Equal(t, FetchString, res.Columns[0].FetchType)
}

func TestConnectionLifecycle(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t, ncafake.Options{})

	require.NoError(t, conn.Ping(ctx))
	require.NoError(t, conn.Commit(ctx))
	require.NoError(t, conn.Rollback(ctx))

	h, err := conn.env.arena.Get(conn.id)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Commits(h))
	assert.Equal(t, 1, fake.Rollbacks(h))

	v, err := conn.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 19, v.Major)
	assert.False(t, v.SupportsBoolean())

	require.NoError(t, conn.Close(ctx))
	assert.ErrorIs(t, conn.Close(ctx), ErrInvalidConnection)
	assert.ErrorIs(t, conn.Ping(ctx), ErrInvalidConnection)
	_, err = conn.Execute(ctx, "select 1 from dual", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConnection)
}
