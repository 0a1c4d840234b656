// Package nativetest instruments a native.Library for ownership tests.
//
// Tracker counts every allocation and free per handle kind, follows
// ownership moves into the library (settings into a connection, argument
// vectors into a query), and records frees of handles the caller never owned
// or already freed.
package nativetest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/koustreak/djcore/internal/native"
)

// Handle kinds reported by Tracker.
const (
	KindSettings   = "settings"
	KindConnection = "connection"
	KindArgs       = "args"
	KindCursor     = "cursor"
	KindRow        = "row"
	KindColumn     = "column"
	KindDecoded    = "decoded_value"
	KindCString    = "cstring"
)

// Tracker wraps a native.Library. It is safe for concurrent use.
type Tracker struct {
	native.Library

	mu       sync.Mutex
	live     map[uintptr]string
	borrowed map[uintptr]string
	allocs   map[string]int
	frees    map[string]int
	moved    map[string]int
	misuse   []string
}

// Track wraps lib.
func Track(lib native.Library) *Tracker {
	return &Tracker{
		Library:  lib,
		live:     make(map[uintptr]string),
		borrowed: make(map[uintptr]string),
		allocs:   make(map[string]int),
		frees:    make(map[string]int),
		moved:    make(map[string]int),
	}
}

// Allocs returns how many handles of kind were handed to the caller.
func (t *Tracker) Allocs(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocs[kind]
}

// Frees returns how many handles of kind the caller freed.
func (t *Tracker) Frees(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frees[kind]
}

// Moved returns how many handles of kind the caller gave to the library.
func (t *Tracker) Moved(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moved[kind]
}

// Leaks lists the handles the caller still owns, sorted.
func (t *Tracker) Leaks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.live))
	for h, kind := range t.live {
		out = append(out, fmt.Sprintf("%s#%d", kind, h))
	}
	sort.Strings(out)
	return out
}

// Misuse lists double frees, frees of borrowed handles and frees of
// handles that were moved into the library.
func (t *Tracker) Misuse() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.misuse...)
}

func (t *Tracker) alloc(kind string, h uintptr) {
	if h == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[h] = kind
	t.allocs[kind]++
}

func (t *Tracker) borrow(kind string, h uintptr) {
	if h == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.borrowed[h] = kind
}

// release records a free and reports whether it may reach the library.
func (t *Tracker) release(kind string, h uintptr) bool {
	if h == 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if owned, ok := t.live[h]; ok && owned == kind {
		delete(t.live, h)
		t.frees[kind]++
		return true
	}
	if _, ok := t.borrowed[h]; ok {
		t.misuse = append(t.misuse, fmt.Sprintf("free of borrowed %s#%d", kind, h))
	} else {
		t.misuse = append(t.misuse, fmt.Sprintf("double free of %s#%d", kind, h))
	}
	return false
}

// move records ownership passing into the library.
func (t *Tracker) move(kind string, h uintptr) {
	if h == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if owned, ok := t.live[h]; ok && owned == kind {
		delete(t.live, h)
		t.moved[kind]++
		return
	}
	t.misuse = append(t.misuse, fmt.Sprintf("move of unowned %s#%d", kind, h))
}

// --- C strings ---

func (t *Tracker) LastErrorMessage(h uintptr) native.CString {
	s := t.Library.LastErrorMessage(h)
	t.alloc(KindCString, uintptr(s))
	return s
}

func (t *Tracker) CStringFree(s native.CString) {
	if t.release(KindCString, uintptr(s)) {
		t.Library.CStringFree(s)
	}
}

// --- settings ---

func (t *Tracker) SettingsNew() native.Settings {
	s := t.Library.SettingsNew()
	t.alloc(KindSettings, uintptr(s))
	return s
}

func (t *Tracker) SettingsFree(s native.Settings) {
	if t.release(KindSettings, uintptr(s)) {
		t.Library.SettingsFree(s)
	}
}

func (t *Tracker) SettingsGetHostname(s native.Settings) native.CString {
	c := t.Library.SettingsGetHostname(s)
	t.alloc(KindCString, uintptr(c))
	return c
}

func (t *Tracker) SettingsGetUsername(s native.Settings) native.CString {
	c := t.Library.SettingsGetUsername(s)
	t.alloc(KindCString, uintptr(c))
	return c
}

func (t *Tracker) SettingsGetPassword(s native.Settings) native.CString {
	c := t.Library.SettingsGetPassword(s)
	t.alloc(KindCString, uintptr(c))
	return c
}

func (t *Tracker) SettingsGetDatabaseName(s native.Settings) native.CString {
	c := t.Library.SettingsGetDatabaseName(s)
	t.alloc(KindCString, uintptr(c))
	return c
}

// --- connections ---

func (t *Tracker) ConnectionNew(s native.Settings) native.Connection {
	c := t.Library.ConnectionNew(s)
	if c != 0 {
		t.move(KindSettings, uintptr(s))
		t.alloc(KindConnection, uintptr(c))
	}
	return c
}

func (t *Tracker) ConnectionFree(c native.Connection) {
	if t.release(KindConnection, uintptr(c)) {
		t.Library.ConnectionFree(c)
	}
}

func (t *Tracker) ConnectionGetSettings(c native.Connection) native.Settings {
	s := t.Library.ConnectionGetSettings(c)
	t.borrow(KindSettings, uintptr(s))
	return s
}

func (t *Tracker) ConnectionExecuteQuery(c native.Connection, query []byte, args native.ArgVector, affected *uint64) native.Status {
	t.move(KindArgs, uintptr(args))
	return t.Library.ConnectionExecuteQuery(c, query, args, affected)
}

func (t *Tracker) ConnectionFetchQuery(c native.Connection, query []byte, args native.ArgVector, out *native.Cursor) native.Status {
	t.move(KindArgs, uintptr(args))
	st := t.Library.ConnectionFetchQuery(c, query, args, out)
	if st == native.Success {
		t.alloc(KindCursor, uintptr(*out))
	}
	return st
}

// --- argument vectors ---

func (t *Tracker) ArgVectorNew() native.ArgVector {
	v := t.Library.ArgVectorNew()
	t.alloc(KindArgs, uintptr(v))
	return v
}

func (t *Tracker) ArgVectorFree(v native.ArgVector) {
	if t.release(KindArgs, uintptr(v)) {
		t.Library.ArgVectorFree(v)
	}
}

// --- cursors and rows ---

func (t *Tracker) CursorNext(c native.Cursor, out *native.Row) native.Status {
	st := t.Library.CursorNext(c, out)
	if st == native.Success {
		t.alloc(KindRow, uintptr(*out))
	}
	return st
}

func (t *Tracker) CursorFree(c native.Cursor) {
	if t.release(KindCursor, uintptr(c)) {
		t.Library.CursorFree(c)
	}
}

func (t *Tracker) RowFree(r native.Row) {
	if t.release(KindRow, uintptr(r)) {
		t.Library.RowFree(r)
	}
}

func (t *Tracker) RowColumnWithName(r native.Row, name []byte, out *native.ColumnRef) native.Status {
	st := t.Library.RowColumnWithName(r, name, out)
	if st == native.Success {
		t.alloc(KindColumn, uintptr(*out))
	}
	return st
}

func (t *Tracker) RowColumnWithOrdinal(r native.Row, ordinal int, out *native.ColumnRef) native.Status {
	st := t.Library.RowColumnWithOrdinal(r, ordinal, out)
	if st == native.Success {
		t.alloc(KindColumn, uintptr(*out))
	}
	return st
}

func (t *Tracker) RowColumns(r native.Row, out []native.ColumnRef) native.Status {
	st := t.Library.RowColumns(r, out)
	if st == native.Success {
		for _, c := range out {
			t.borrow(KindColumn, uintptr(c))
		}
	}
	return st
}

func (t *Tracker) ColumnRefFree(c native.ColumnRef) {
	if t.release(KindColumn, uintptr(c)) {
		t.Library.ColumnRefFree(c)
	}
}

func (t *Tracker) ColumnRefName(c native.ColumnRef) native.CString {
	s := t.Library.ColumnRefName(c)
	t.alloc(KindCString, uintptr(s))
	return s
}

// --- decoded values ---

func (t *Tracker) DecodedValueNew() native.DecodedValue {
	v := t.Library.DecodedValueNew()
	t.alloc(KindDecoded, uintptr(v))
	return v
}

func (t *Tracker) DecodedValueFree(v native.DecodedValue) {
	if t.release(KindDecoded, uintptr(v)) {
		t.Library.DecodedValueFree(v)
	}
}
