package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koustreak/djcore/internal/native"
)

type connRecord struct {
	settings native.Settings
	cfg      *settingsRecord

	db      *sql.DB
	session *sql.Conn
	backend backend
	// cursor is the open result set on this session, or nil.
	cursor *cursorRecord
}

func (c *connRecord) connected() bool {
	return c.session != nil
}

// close releases the session and the pool behind it.
func (c *connRecord) close() {
	if c.cursor != nil {
		c.cursor.close()
		c.cursor = nil
	}
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

// ConnectionNew creates an unconnected connection that owns s from now on.
// It returns null when s is not a live, unattached settings record.
func (e *Engine) ConnectionNew(s native.Settings) native.Connection {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		e.fail(uintptr(s), native.NullNotAllowed, "settings handle is null or released")
		return 0
	}
	if rec.attached {
		e.fail(uintptr(s), native.NullNotAllowed, "settings already belong to a connection")
		return 0
	}
	rec.attached = true
	return native.Connection(e.put(&connRecord{settings: s, cfg: rec}))
}

// ConnectionFree disconnects c if needed and releases it together with the
// settings it owns.
func (e *Engine) ConnectionFree(c native.Connection) {
	conn, ok := take[*connRecord](e, uintptr(c))
	if !ok {
		if c != 0 {
			e.reportMisuse("connection_free", uintptr(c))
		}
		return
	}
	conn.close()
	e.drop(uintptr(conn.settings))
	e.log.DebugWith("connection freed", map[string]interface{}{"connection": uint64(c)})
}

func (e *Engine) conn(c native.Connection) (*connRecord, native.Status) {
	conn, ok := get[*connRecord](e, uintptr(c))
	if !ok {
		return nil, e.fail(uintptr(c), native.NullNotAllowed, "connection handle is null or released")
	}
	return conn, native.Success
}

func (e *Engine) ConnectionIsConnected(c native.Connection) bool {
	conn, ok := get[*connRecord](e, uintptr(c))
	return ok && conn.connected()
}

// ConnectionGetSettings returns the settings owned by c. The handle is
// borrowed and stays valid until c is freed.
func (e *Engine) ConnectionGetSettings(c native.Connection) native.Settings {
	conn, ok := get[*connRecord](e, uintptr(c))
	if !ok {
		return 0
	}
	return conn.settings
}

// ConnectionConnect opens a single-session pool from the current settings
// and verifies it. Connecting an already connected handle replaces the
// session.
func (e *Engine) ConnectionConnect(c native.Connection) native.Status {
	conn, st := e.conn(c)
	if st != native.Success {
		return st
	}
	conn.close()

	cfg := conn.cfg.cfg
	b, err := backendFor(cfg.DatabaseType)
	if err != nil {
		return e.fail(uintptr(c), native.ConfigurationError, err.Error())
	}
	connector, err := e.connector(cfg)
	if err != nil {
		return e.fail(uintptr(c), native.ConfigurationError, err.Error())
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), e.connectTimeout)
	defer cancel()

	session, err := db.Conn(ctx)
	if err == nil {
		err = session.PingContext(ctx)
		if err != nil {
			session.Close()
		}
	}
	if err != nil {
		db.Close()
		status, msg := b.mapError(err)
		e.log.WarnWith("connect failed", err, map[string]interface{}{
			"connection": uint64(c),
			"backend":    b.name(),
			"host":       cfg.Hostname,
			"status":     status.String(),
		})
		return e.fail(uintptr(c), status, msg)
	}

	conn.db = db
	conn.session = session
	conn.backend = b
	e.log.DebugWith("connected", map[string]interface{}{
		"connection": uint64(c),
		"backend":    b.name(),
		"host":       cfg.Hostname,
		"port":       cfg.Port,
	})
	return native.Success
}

func (e *Engine) ConnectionDisconnect(c native.Connection) native.Status {
	conn, st := e.conn(c)
	if st != native.Success {
		return st
	}
	if !conn.connected() {
		return e.fail(uintptr(c), native.NotConnected, "connection is not connected")
	}
	conn.close()
	e.log.DebugWith("disconnected", map[string]interface{}{"connection": uint64(c)})
	return native.Success
}

// ConnectionReconnect disconnects (when connected) and connects again.
func (e *Engine) ConnectionReconnect(c native.Connection) native.Status {
	conn, st := e.conn(c)
	if st != native.Success {
		return st
	}
	if conn.connected() {
		if st := e.ConnectionDisconnect(c); st != native.Success {
			return st
		}
	}
	return e.ConnectionConnect(c)
}

// ConnectionExecuteQuery runs query and stores the affected row count.
// Statements that produce a result set report zero affected rows. The
// argument vector is consumed whatever the outcome.
func (e *Engine) ConnectionExecuteQuery(c native.Connection, query []byte, args native.ArgVector, affected *uint64) native.Status {
	values, st := e.consumeArgs(c, args)
	if st != native.Success {
		return st
	}
	conn, q, st := e.prepareStatement(c, query)
	if st != native.Success {
		return st
	}
	if affected == nil {
		return e.fail(uintptr(c), native.NullNotAllowed, "affected row output is null")
	}

	ctx := context.Background()
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	n, err := conn.backend.exec(ctx, conn.session, q, values)
	if err != nil {
		return e.statementFailed(c, conn, err)
	}
	*affected = n
	e.log.DebugWith("statement executed", map[string]interface{}{
		"connection": uint64(c),
		"affected":   n,
		"args":       len(values),
	})
	return native.Success
}

// ConnectionFetchQuery starts streaming query's result set into a new
// cursor. The argument vector is consumed whatever the outcome.
func (e *Engine) ConnectionFetchQuery(c native.Connection, query []byte, args native.ArgVector, out *native.Cursor) native.Status {
	values, st := e.consumeArgs(c, args)
	if st != native.Success {
		return st
	}
	conn, q, st := e.prepareStatement(c, query)
	if st != native.Success {
		return st
	}
	if out == nil {
		return e.fail(uintptr(c), native.NullNotAllowed, "cursor output is null")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rows, err := conn.session.QueryContext(ctx, q, values...)
	if err != nil {
		cancel()
		return e.statementFailed(c, conn, err)
	}
	meta, err := columnMetadata(conn.cfg.cfg.DatabaseType, rows)
	if err != nil {
		rows.Close()
		cancel()
		return e.statementFailed(c, conn, err)
	}

	cur := &cursorRecord{conn: conn, rows: rows, cancel: cancel, columns: meta}
	conn.cursor = cur
	*out = native.Cursor(e.put(cur))
	e.log.DebugWith("cursor opened", map[string]interface{}{
		"connection": uint64(c),
		"cursor":     uint64(*out),
		"columns":    len(meta),
	})
	return native.Success
}

// prepareStatement checks that c can accept a statement now.
func (e *Engine) prepareStatement(c native.Connection, query []byte) (*connRecord, string, native.Status) {
	conn, st := e.conn(c)
	if st != native.Success {
		return nil, "", st
	}
	q, st := e.decodeCString(uintptr(c), query)
	if st != native.Success {
		return nil, "", st
	}
	if !conn.connected() {
		return nil, "", e.fail(uintptr(c), native.NotConnected, "connection is not connected")
	}
	if conn.cursor != nil {
		return nil, "", e.fail(uintptr(c), native.StatementInProgress,
			"a cursor is still open on this connection; exhaust or free it first")
	}
	return conn, q, native.Success
}

func (e *Engine) statementFailed(c native.Connection, conn *connRecord, err error) native.Status {
	status, msg := conn.backend.mapError(err)
	e.log.WarnWith("statement failed", err, map[string]interface{}{
		"connection": uint64(c),
		"status":     status.String(),
	})
	return e.fail(uintptr(c), status, msg)
}

func backendFor(t native.DatabaseType) (backend, error) {
	switch t {
	case native.DatabaseMySQL:
		return mysqlBackend{}, nil
	case native.DatabasePostgres:
		return postgresBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type %d", t)
	}
}
