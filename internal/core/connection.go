package core

import (
	"strings"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/logger"
	"github.com/koustreak/djcore/internal/native"
)

// State is the lifecycle position of a Connection.
type State int

const (
	StateCreated State = iota
	StateConnected
	StateDisconnected
	// StateFailed follows a connect or reconnect that did not succeed. The
	// connection can be connected again.
	StateFailed
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger used for state transitions.
func WithLogger(l *logger.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.log = l.Component("core")
		}
	}
}

// Connection owns one native connection handle and the settings attached
// to it.
type Connection struct {
	lib      native.Library
	h        *OwnedHandle[native.Connection]
	settings *Settings
	state    State
	log      *logger.Logger
}

// NewConnection creates an unconnected connection from settings. Ownership
// of the settings record moves into the connection, so closing settings
// afterwards does nothing; read them back through Connection.Settings.
func NewConnection(lib native.Library, settings *Settings, opts ...Option) (*Connection, error) {
	sp, err := settings.ptr()
	if err != nil {
		return nil, err
	}
	if !settings.Owned() {
		return nil, errs.New(errs.ErrKindResource, "settings are borrowed from another connection")
	}
	cp := lib.ConnectionNew(sp)
	if cp == 0 {
		return nil, Translate(lib, sp, native.NullNotAllowed)
	}
	if _, err := settings.h.Transfer(); err != nil {
		lib.ConnectionFree(cp)
		return nil, err
	}

	c := &Connection{
		lib:      lib,
		h:        Acquire(cp, lib.ConnectionFree),
		settings: borrowSettings(lib, lib.ConnectionGetSettings(cp)),
		state:    StateCreated,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open creates a connection and connects it. On failure nothing is left to
// close.
func Open(lib native.Library, settings *Settings, opts ...Option) (*Connection, error) {
	c, err := NewConnection(lib, settings, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Connection) State() State {
	return c.state
}

// IsConnected asks the native side whether a session is open.
func (c *Connection) IsConnected() bool {
	p, err := c.h.Get()
	if err != nil {
		return false
	}
	return c.lib.ConnectionIsConnected(p)
}

// Settings returns the settings owned by the connection. The value is
// borrowed: it stays valid until the connection is closed and must not
// outlive it.
func (c *Connection) Settings() *Settings {
	return c.settings
}

// Connect opens a session from the current settings.
func (c *Connection) Connect() error {
	p, err := c.h.Get()
	if err != nil {
		return err
	}
	if c.lib.ConnectionIsConnected(p) {
		return errs.Wrap(errs.ErrKindAlreadyConnected, "connect", errs.ErrAlreadyConnected)
	}
	if err := Translate(c.lib, p, c.lib.ConnectionConnect(p)); err != nil {
		c.transition(StateFailed, err)
		return err
	}
	c.transition(StateConnected, nil)
	return nil
}

// Disconnect closes the session but keeps the connection and its settings
// usable. It fails with a NotConnected error, leaving the state as it was,
// when no session is open.
func (c *Connection) Disconnect() error {
	p, err := c.h.Get()
	if err != nil {
		return err
	}
	if err := Translate(c.lib, p, c.lib.ConnectionDisconnect(p)); err != nil {
		return err
	}
	c.transition(StateDisconnected, nil)
	return nil
}

// Reconnect replaces the session with a fresh one. An unconnected
// connection is simply connected.
func (c *Connection) Reconnect() error {
	p, err := c.h.Get()
	if err != nil {
		return err
	}
	if err := Translate(c.lib, p, c.lib.ConnectionReconnect(p)); err != nil {
		c.transition(StateFailed, err)
		return err
	}
	c.transition(StateConnected, nil)
	return nil
}

// Execute runs query with positional args and returns the number of
// affected rows. Statements that return rows report 0; use Fetch to read
// them.
func (c *Connection) Execute(query string, args ...any) (uint64, error) {
	a, err := c.bind(args)
	if err != nil {
		return 0, err
	}
	return c.ExecuteArgs(query, a)
}

// ExecuteArgs is Execute with a prepared argument list, which may be nil.
// The list is consumed even when the call fails.
func (c *Connection) ExecuteArgs(query string, args *Args) (uint64, error) {
	ap, err := args.take()
	if err != nil {
		return 0, err
	}
	p, q, err := c.statement(query)
	if err != nil {
		c.discardArgs(ap)
		return 0, err
	}
	var affected uint64
	if err := Translate(c.lib, p, c.lib.ConnectionExecuteQuery(p, q, ap, &affected)); err != nil {
		return 0, err
	}
	return affected, nil
}

// Fetch runs query with positional args and returns a cursor over its
// result set. No other statement can run on the connection until the
// cursor is exhausted or closed.
func (c *Connection) Fetch(query string, args ...any) (*Cursor, error) {
	a, err := c.bind(args)
	if err != nil {
		return nil, err
	}
	return c.FetchArgs(query, a)
}

// FetchArgs is Fetch with a prepared argument list, which may be nil. The
// list is consumed even when the call fails.
func (c *Connection) FetchArgs(query string, args *Args) (*Cursor, error) {
	ap, err := args.take()
	if err != nil {
		return nil, err
	}
	p, q, err := c.statement(query)
	if err != nil {
		c.discardArgs(ap)
		return nil, err
	}
	var cur native.Cursor
	if err := Translate(c.lib, p, c.lib.ConnectionFetchQuery(p, q, ap, &cur)); err != nil {
		return nil, err
	}
	return &Cursor{lib: c.lib, h: Acquire(cur, c.lib.CursorFree)}, nil
}

// Close frees the connection and its settings. Cursors and rows obtained
// from it must be closed first.
func (c *Connection) Close() {
	if c.state == StateFreed {
		return
	}
	c.settings.Close()
	c.h.Release()
	c.transition(StateFreed, nil)
}

func (c *Connection) bind(values []any) (*Args, error) {
	if len(values) == 0 {
		return nil, nil
	}
	a := NewArgs(c.lib)
	for _, v := range values {
		if err := a.Add(v); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (c *Connection) statement(query string) (native.Connection, []byte, error) {
	p, err := c.h.Get()
	if err != nil {
		return 0, nil, err
	}
	if strings.IndexByte(query, 0) >= 0 {
		return 0, nil, errs.New(errs.ErrKindArgument, "query must not contain a NUL byte")
	}
	return p, native.CStr(query), nil
}

// discardArgs frees an argument list that was taken for a call that never
// reached the library.
func (c *Connection) discardArgs(ap native.ArgVector) {
	if ap != 0 {
		c.lib.ArgVectorFree(ap)
	}
}

func (c *Connection) transition(to State, err error) {
	from := c.state
	c.state = to
	fields := map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	}
	if err != nil {
		c.log.WarnWith("connection state changed", err, fields)
		return
	}
	c.log.DebugWith("connection state changed", fields)
}
