package engine

import (
	"context"
	"database/sql"

	"github.com/koustreak/djcore/internal/native"
)

type cursorRecord struct {
	conn    *connRecord
	rows    *sql.Rows
	cancel  context.CancelFunc
	columns []columnMeta

	done   bool // result set fully read or failed
	closed bool // released, possibly by a disconnect
}

// close releases the result set and frees the session for the next
// statement.
func (c *cursorRecord) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.rows.Close()
	c.cancel()
	if c.conn.cursor == c {
		c.conn.cursor = nil
	}
}

// finish marks the cursor exhausted and releases the result set.
func (c *cursorRecord) finish() {
	c.done = true
	c.close()
}

// CursorNext reads the next row into a freshly allocated row handle owned by
// the caller. End of data is reported as NoMoreRows.
func (e *Engine) CursorNext(c native.Cursor, out *native.Row) native.Status {
	cur, ok := get[*cursorRecord](e, uintptr(c))
	if !ok {
		return e.fail(uintptr(c), native.NullNotAllowed, "cursor handle is null or released")
	}
	if out == nil {
		return e.fail(uintptr(c), native.NullNotAllowed, "row output is null")
	}
	if cur.done {
		return e.fail(uintptr(c), native.NoMoreRows, "no more rows")
	}
	if cur.closed {
		return e.fail(uintptr(c), native.NotConnected, "connection was closed while the cursor was open")
	}

	if !cur.rows.Next() {
		err := cur.rows.Err()
		cur.finish()
		if err != nil {
			status, msg := cur.conn.backend.mapError(err)
			return e.fail(uintptr(c), status, msg)
		}
		return e.fail(uintptr(c), native.NoMoreRows, "no more rows")
	}

	values := make([]any, len(cur.columns))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := cur.rows.Scan(ptrs...); err != nil {
		cur.finish()
		status, msg := cur.conn.backend.mapError(err)
		return e.fail(uintptr(c), status, msg)
	}

	*out = native.Row(e.put(&rowRecord{
		dbType:  cur.conn.cfg.cfg.DatabaseType,
		columns: cur.columns,
		values:  values,
	}))
	return native.Success
}

// CursorFree releases c, discarding any rows not yet read.
func (e *Engine) CursorFree(c native.Cursor) {
	cur, ok := take[*cursorRecord](e, uintptr(c))
	if !ok {
		if c != 0 {
			e.reportMisuse("cursor_free", uintptr(c))
		}
		return
	}
	cur.close()
}
