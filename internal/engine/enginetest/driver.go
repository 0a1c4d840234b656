// Package enginetest provides a scripted database/sql driver so the engine,
// and everything built on it, can be tested without a database server.
//
// Usage:
//
//	db := enginetest.New().
//	    On("SELECT 1", enginetest.Result{
//	        Columns: []enginetest.Column{{Name: "1", Type: "BIGINT"}},
//	        Rows:    [][]driver.Value{{int64(1)}},
//	    })
//	eng := engine.New(db.Option())
package enginetest

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/koustreak/djcore/internal/engine"
)

// Column describes one result column as the driver reports it.
type Column struct {
	Name string
	Type string // DatabaseTypeName, e.g. "VARCHAR" or "UNSIGNED INT"
}

// Result is the scripted outcome of one query text.
type Result struct {
	Columns      []Column
	Rows         [][]driver.Value
	RowsAffected int64
	// Err fails the statement itself.
	Err error
	// RowErr fails iteration after all Rows were delivered.
	RowErr error
}

// Statement is one statement the driver received.
type Statement struct {
	Query string
	Args  []any
}

// DB is a scripted database. It is safe for concurrent use.
type DB struct {
	mu         sync.Mutex
	results    map[string]Result
	statements []Statement
	connectErr error
	configs    []engine.Config
	opens      int
	closes     int
}

// New returns a DB with no scripted queries.
func New() *DB {
	return &DB{results: make(map[string]Result)}
}

// On scripts the result for an exact query text.
func (d *DB) On(query string, r Result) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[query] = r
	return d
}

// FailConnect makes every following connection attempt fail with err. A nil
// err lets connections succeed again.
func (d *DB) FailConnect(err error) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
	return d
}

// Option wires d into an engine as its connector.
func (d *DB) Option() engine.Option {
	return engine.WithConnector(func(cfg engine.Config) (driver.Connector, error) {
		d.mu.Lock()
		d.configs = append(d.configs, cfg)
		d.mu.Unlock()
		return connector{db: d}, nil
	})
}

// Statements returns every statement received so far.
func (d *DB) Statements() []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Statement(nil), d.statements...)
}

// Configs returns the settings snapshot of every connect attempt.
func (d *DB) Configs() []engine.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]engine.Config(nil), d.configs...)
}

// OpenSessions returns the number of driver connections not yet closed.
func (d *DB) OpenSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens - d.closes
}

func (d *DB) record(query string, args []driver.NamedValue) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Statement{Query: query}
	for _, a := range args {
		st.Args = append(st.Args, a.Value)
	}
	d.statements = append(d.statements, st)
	r, ok := d.results[query]
	if !ok {
		return Result{}, fmt.Errorf("enginetest: unexpected query %q", query)
	}
	return r, r.Err
}

// --- database/sql driver plumbing ---

type connector struct{ db *DB }

func (c connector) Connect(context.Context) (driver.Conn, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.connectErr != nil {
		return nil, c.db.connectErr
	}
	c.db.opens++
	return &conn{db: c.db}, nil
}

func (c connector) Driver() driver.Driver { return drv{} }

type drv struct{}

func (drv) Open(string) (driver.Conn, error) {
	return nil, errors.New("enginetest: use a connector")
}

type conn struct{ db *DB }

var (
	_ driver.QueryerContext    = (*conn)(nil)
	_ driver.ExecerContext     = (*conn)(nil)
	_ driver.NamedValueChecker = (*conn)(nil)
	_ driver.Pinger            = (*conn)(nil)
)

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("enginetest: prepared statements are not supported")
}

func (c *conn) Close() error {
	c.db.mu.Lock()
	c.db.closes++
	c.db.mu.Unlock()
	return nil
}

func (c *conn) Begin() (driver.Tx, error) {
	return nil, errors.New("enginetest: transactions are not supported")
}

// CheckNamedValue accepts every argument unchanged so tests see the Go types
// the engine bound.
func (c *conn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (c *conn) Ping(context.Context) error { return nil }

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	r, err := c.db.record(query, args)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(r.RowsAffected), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	r, err := c.db.record(query, args)
	if err != nil {
		return nil, err
	}
	return &rows{result: r}, nil
}

type rows struct {
	result Result
	pos    int
}

func (r *rows) Columns() []string {
	names := make([]string, len(r.result.Columns))
	for i, c := range r.result.Columns {
		names[i] = c.Name
	}
	return names
}

func (r *rows) ColumnTypeDatabaseTypeName(i int) string {
	return r.result.Columns[i].Type
}

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.result.Rows) {
		if r.result.RowErr != nil {
			return r.result.RowErr
		}
		return io.EOF
	}
	copy(dest, r.result.Rows[r.pos])
	r.pos++
	return nil
}
