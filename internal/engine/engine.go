// Package engine is a native database engine that implements native.Library.
//
// It owns every native-side object in a handle table: settings records,
// connections, argument vectors, cursors, rows, column references, decoded
// value buffers and C strings. Callers only ever see opaque handle numbers.
// Connections are single-session database/sql connections opened through
// go-sql-driver/mysql or pgx.
//
// Usage:
//
//	eng := engine.New(engine.WithLogger(log))
//	defer eng.Close()
//
//	conn, err := core.Open(eng, settings)
package engine

import (
	"database/sql/driver"
	"sync"
	"time"

	"github.com/koustreak/djcore/internal/logger"
	"github.com/koustreak/djcore/internal/native"
)

const defaultConnectTimeout = 10 * time.Second

// Config is the snapshot of a settings record used to open a session.
type Config struct {
	DatabaseType native.DatabaseType
	Hostname     string
	Username     string
	Password     string
	DatabaseName string
	Port         uint16
	UseTLS       native.TLSMode
}

// ConnectorFunc builds the driver.Connector for a session. The default
// dispatches on cfg.DatabaseType to the MySQL or Postgres backend.
type ConnectorFunc func(cfg Config) (driver.Connector, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l.Component("engine") }
}

// WithConnector replaces backend connector construction, typically with a
// scripted driver in tests.
func WithConnector(fn ConnectorFunc) Option {
	return func(e *Engine) { e.connector = fn }
}

// WithConnectTimeout bounds session establishment. Zero means the default.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.connectTimeout = d
		}
	}
}

// WithQueryTimeout bounds each execute. Zero, the default, means no limit.
// Fetch cursors are not bounded because they stream across calls.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) { e.queryTimeout = d }
}

// Engine implements native.Library. It is safe for concurrent use by
// multiple goroutines as long as each native object is driven by one
// goroutine at a time.
type Engine struct {
	log            *logger.Logger
	connector      ConnectorFunc
	connectTimeout time.Duration
	queryTimeout   time.Duration

	mu      sync.Mutex
	next    uintptr
	objects map[uintptr]any
	// lastErr holds the unread failure message per handle.
	lastErr map[uintptr]string
	misuse  int
}

var _ native.Library = (*Engine)(nil)

// New creates an engine with no live objects.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:            logger.Nop(),
		connectTimeout: defaultConnectTimeout,
		objects:        make(map[uintptr]any),
		lastErr:        make(map[uintptr]string),
	}
	e.connector = e.backendConnector
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Live returns the number of objects currently held in the handle table.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.objects)
}

// Misuse returns how many frees or lookups targeted a handle that was not
// live or had the wrong kind.
func (e *Engine) Misuse() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.misuse
}

// Close disconnects every live connection and drops all objects.
func (e *Engine) Close() error {
	e.mu.Lock()
	var conns []*connRecord
	for _, obj := range e.objects {
		if c, ok := obj.(*connRecord); ok {
			conns = append(conns, c)
		}
	}
	e.objects = make(map[uintptr]any)
	e.lastErr = make(map[uintptr]string)
	e.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return nil
}

// --- handle table ---

func (e *Engine) put(obj any) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.objects[e.next] = obj
	return e.next
}

// get returns the live object behind h if it has type T.
func get[T any](e *Engine, h uintptr) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[h].(T)
	if !ok && h != 0 {
		e.misuse++
	}
	return obj, ok
}

// take removes and returns the live object behind h if it has type T.
func take[T any](e *Engine, h uintptr) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[h].(T)
	if !ok {
		if h != 0 {
			e.misuse++
		}
		return obj, false
	}
	delete(e.objects, h)
	delete(e.lastErr, h)
	return obj, true
}

func (e *Engine) drop(h uintptr) {
	e.mu.Lock()
	delete(e.objects, h)
	delete(e.lastErr, h)
	e.mu.Unlock()
}

// countMisuse records a free of a handle the caller does not own.
func (e *Engine) countMisuse() {
	e.mu.Lock()
	e.misuse++
	e.mu.Unlock()
}

func (e *Engine) reportMisuse(what string, h uintptr) {
	e.log.ErrorWith("invalid handle", nil, map[string]interface{}{"op": what, "handle": h})
}

// --- last error ---

// fail records msg against h, the handle the failing call was made on, so
// failures on different objects never overwrite each other.
func (e *Engine) fail(h uintptr, status native.Status, msg string) native.Status {
	e.mu.Lock()
	e.lastErr[h] = msg
	e.mu.Unlock()
	return status
}

// LastErrorMessage hands the unread failure message recorded against h to
// the caller as a C string, or returns null when there is none.
func (e *Engine) LastErrorMessage(h uintptr) native.CString {
	e.mu.Lock()
	msg, has := e.lastErr[h]
	delete(e.lastErr, h)
	e.mu.Unlock()
	if !has {
		return 0
	}
	return e.newCString(msg)
}

// --- C strings ---

type cstring struct {
	data []byte // includes the terminator
}

func (e *Engine) newCString(s string) native.CString {
	return native.CString(e.put(&cstring{data: native.CStr(s)}))
}

func (e *Engine) CStringRead(s native.CString) []byte {
	cs, ok := get[*cstring](e, uintptr(s))
	if !ok {
		return nil
	}
	out := make([]byte, len(cs.data)-1)
	copy(out, cs.data)
	return out
}

func (e *Engine) CStringFree(s native.CString) {
	if _, ok := take[*cstring](e, uintptr(s)); !ok && s != 0 {
		e.reportMisuse("cstring_free", uintptr(s))
	}
}
