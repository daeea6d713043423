package orabridge

import (
	"github.com/semihalev/go-orabridge/nca"
)

// materialize converts fetched rows 0..n-1 into Go values. It runs on the
// goroutine collecting the fetch result. LOB locators and nested cursors
// are taken out of the define buffers and wrapped; the buffers re-create
// their slots on the next fetch.
func (rs *ResultSet) materialize(n uint32) ([][]any, error) {
	rows := make([][]any, n)
	for i := uint32(0); i < n; i++ {
		row := make([]any, len(rs.ds.cols))
		for j, c := range rs.ds.cols {
			val, err := rs.value(c, i)
			if err != nil {
				return nil, err
			}
			row[j] = val
		}
		rows[i] = row
	}
	return rows, nil
}

func (rs *ResultSet) value(c *column, i uint32) (any, error) {
	buf := c.buf
	if buf.IsNull(i) {
		return nil, nil
	}
	switch c.native {
	case nca.NativeLob:
		if c.readAll {
			data := c.lobData[i]
			if c.fetch == FetchString {
				return string(data), nil
			}
			if data == nil {
				data = []byte{}
			}
			return data, nil
		}
		return rs.conn.adoptLob(buf.takeSlot(i), c.info.DBType), nil
	case nca.NativeStmt:
		return rs.conn.adoptCursor(buf.takeSlot(i), c.cursorCol[i], rs.opts), nil
	case nca.NativeObject:
		return &Object{Type: c.objType, Attrs: c.objAttrs[i]}, nil
	}
	return scalarValue(&buf.Buffer, i, c.fetch == FetchString)
}

// rowMaps converts array rows to maps keyed by column name.
func rowMaps(cols []ColumnMeta, rows [][]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			m[c.Name] = row[j]
		}
		out[i] = m
	}
	return out
}
