package engine_test

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/engine"
	"github.com/koustreak/djcore/internal/engine/enginetest"
	"github.com/koustreak/djcore/internal/native"
)

const query = "SELECT id, label FROM item"

func newEngine(t *testing.T) (*engine.Engine, *enginetest.DB) {
	t.Helper()
	db := enginetest.New().On(query, enginetest.Result{
		Columns: []enginetest.Column{{Name: "id", Type: "INT"}, {Name: "label", Type: "VARCHAR"}},
		Rows: [][]driver.Value{
			{int64(1), "one"},
			{int64(2), "two"},
		},
	})
	eng := engine.New(db.Option())
	t.Cleanup(func() { eng.Close() })
	return eng, db
}

// lastError reads and frees the pending error message recorded against h.
func lastError(e *engine.Engine, h uintptr) string {
	s := e.LastErrorMessage(h)
	if s == 0 {
		return ""
	}
	defer e.CStringFree(s)
	return string(e.CStringRead(s))
}

func connect(t *testing.T, e *engine.Engine) native.Connection {
	t.Helper()
	s := e.SettingsNew()
	require.Equal(t, native.Success, e.SettingsSetDatabaseName(s, native.CStr("djtest")))
	c := e.ConnectionNew(s)
	require.NotZero(t, c)
	require.Equal(t, native.Success, e.ConnectionConnect(c))
	return c
}

func TestEngine_SettingsStrings(t *testing.T) {
	e, _ := newEngine(t)
	s := e.SettingsNew()

	require.Equal(t, native.Success, e.SettingsSetUsername(s, native.CStr("dj")))
	u := e.SettingsGetUsername(s)
	assert.Equal(t, []byte("dj"), e.CStringRead(u))
	e.CStringFree(u)

	assert.Equal(t, native.BufferNotEnough, e.SettingsSetHostname(s, []byte("no-terminator")))
	assert.Contains(t, lastError(e, uintptr(s)), "not null-terminated")
	assert.Equal(t, native.NullNotAllowed, e.SettingsSetHostname(s, nil))
	assert.Equal(t, native.InvalidUTF8String, e.SettingsSetHostname(s, []byte{0xff, 0}))
	assert.Equal(t, native.InvalidEnumArgument, e.SettingsSetUseTLS(s, native.TLSMode(5)))
	lastError(e, uintptr(s))

	e.SettingsFree(s)
	assert.Zero(t, e.Live())
	assert.Zero(t, e.Misuse())
}

func TestEngine_PortFollowsDatabaseType(t *testing.T) {
	e, db := newEngine(t)

	s := e.SettingsNew()
	assert.Equal(t, uint16(3306), e.SettingsGetPort(s))
	require.Equal(t, native.Success, e.SettingsSetDatabaseType(s, native.DatabasePostgres))
	assert.Equal(t, uint16(5432), e.SettingsGetPort(s))
	require.Equal(t, native.Success, e.SettingsSetDatabaseType(s, native.DatabaseMySQL))
	assert.Equal(t, uint16(3306), e.SettingsGetPort(s))
	e.SettingsFree(s)

	// An explicit port survives a later type change, even the other type's default.
	s = e.SettingsNew()
	require.Equal(t, native.Success, e.SettingsSetPort(s, 3306))
	require.Equal(t, native.Success, e.SettingsSetDatabaseType(s, native.DatabasePostgres))
	assert.Equal(t, uint16(3306), e.SettingsGetPort(s))

	c := e.ConnectionNew(s)
	require.NotZero(t, c)
	require.Equal(t, native.Success, e.ConnectionConnect(c))
	cfgs := db.Configs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, native.DatabasePostgres, cfgs[0].DatabaseType)
	assert.Equal(t, uint16(3306), cfgs[0].Port)
	e.ConnectionFree(c)
}

func TestEngine_LastErrorIsClearedByReading(t *testing.T) {
	e, _ := newEngine(t)
	assert.Zero(t, e.LastErrorMessage(0))

	assert.Equal(t, native.NullNotAllowed, e.ConnectionDisconnect(0))
	assert.NotEmpty(t, lastError(e, 0))
	assert.Empty(t, lastError(e, 0))
}

func TestEngine_LastErrorIsKeptPerHandle(t *testing.T) {
	e, _ := newEngine(t)
	a := connect(t, e)
	b := connect(t, e)
	defer e.ConnectionFree(b)

	var n uint64
	require.Equal(t, native.UnknownDatabaseError, e.ConnectionExecuteQuery(a, native.CStr("SELECT 'A'"), 0, &n))
	require.Equal(t, native.UnknownDatabaseError, e.ConnectionExecuteQuery(b, native.CStr("SELECT 'B'"), 0, &n))

	assert.Contains(t, lastError(e, uintptr(a)), `"SELECT 'A'"`)
	assert.Contains(t, lastError(e, uintptr(b)), `"SELECT 'B'"`)
	assert.Empty(t, lastError(e, uintptr(a)))

	// Freeing a handle discards its unread message.
	require.Equal(t, native.UnknownDatabaseError, e.ConnectionExecuteQuery(a, native.CStr("SELECT 'A'"), 0, &n))
	e.ConnectionFree(a)
	assert.Zero(t, e.LastErrorMessage(uintptr(a)))
}

func TestEngine_MisuseIsCounted(t *testing.T) {
	e, _ := newEngine(t)

	s := e.SettingsNew()
	c := e.ConnectionNew(s)
	require.NotZero(t, c)

	// The connection owns s now.
	e.SettingsFree(s)
	assert.Equal(t, 1, e.Misuse())
	assert.Zero(t, e.ConnectionNew(s), "settings cannot be attached twice")
	lastError(e, uintptr(s))

	e.ConnectionFree(c)
	e.ConnectionFree(c)
	assert.Equal(t, 2, e.Misuse())
	assert.Zero(t, e.Live())
}

func TestEngine_ConnectAndExecute(t *testing.T) {
	e, db := newEngine(t)
	db.On("UPDATE item SET label = ?", enginetest.Result{RowsAffected: 2})
	c := connect(t, e)
	defer e.ConnectionFree(c)

	assert.True(t, e.ConnectionIsConnected(c))
	require.Len(t, db.Configs(), 1)
	assert.Equal(t, "djtest", db.Configs()[0].DatabaseName)
	assert.Equal(t, "localhost", db.Configs()[0].Hostname)

	args := e.ArgVectorNew()
	require.Equal(t, native.Success, e.ArgVectorAdd(args, []byte("x"), native.TypeString))
	var affected uint64
	require.Equal(t, native.Success, e.ConnectionExecuteQuery(c, native.CStr("UPDATE item SET label = ?"), args, &affected))
	assert.Equal(t, uint64(2), affected)
	assert.Equal(t, []any{"x"}, db.Statements()[0].Args)

	// The vector was consumed by the call.
	e.ArgVectorFree(args)
	assert.Equal(t, 1, e.Misuse())
}

func TestEngine_ArgVectorRejectsBadValues(t *testing.T) {
	e, _ := newEngine(t)
	args := e.ArgVectorNew()
	defer e.ArgVectorFree(args)

	assert.Equal(t, native.BufferNotEnough, e.ArgVectorAdd(args, []byte{1, 2}, native.TypeInt32))
	assert.Equal(t, native.InvalidUTF8String, e.ArgVectorAdd(args, []byte{0xff}, native.TypeString))
	assert.Equal(t, native.InvalidNativeType, e.ArgVectorAdd(args, nil, native.NativeType(77)))
	assert.Contains(t, lastError(e, uintptr(args)), "cannot bind native type 77")
}

func TestEngine_CursorAndRows(t *testing.T) {
	e, db := newEngine(t)
	c := connect(t, e)

	var cur native.Cursor
	require.Equal(t, native.Success, e.ConnectionFetchQuery(c, native.CStr(query), 0, &cur))

	var statuses []native.Status
	var labels []string
	dv := e.DecodedValueNew()
	for {
		var r native.Row
		st := e.CursorNext(cur, &r)
		statuses = append(statuses, st)
		if st != native.Success {
			break
		}
		var ref native.ColumnRef
		require.Equal(t, native.Success, e.RowColumnWithName(r, native.CStr("label"), &ref))
		assert.Equal(t, 1, e.ColumnRefOrdinal(ref))
		assert.Equal(t, native.ColumnVarCharN, e.ColumnRefType(ref))
		require.Equal(t, native.Success, e.RowDecodeToAllocation(r, ref, dv))
		assert.Equal(t, native.TypeString, e.DecodedValueType(dv))
		labels = append(labels, string(e.DecodedValueData(dv)))
		e.ColumnRefFree(ref)
		e.RowFree(r)
	}
	e.DecodedValueFree(dv)

	assert.Equal(t, []native.Status{native.Success, native.Success, native.NoMoreRows}, statuses)
	assert.Equal(t, []string{"one", "two"}, labels)

	var r native.Row
	assert.Equal(t, native.NoMoreRows, e.CursorNext(cur, &r))
	lastError(e, uintptr(cur))

	e.CursorFree(cur)
	e.ConnectionFree(c)
	assert.Zero(t, e.Live())
	assert.Zero(t, e.Misuse())
	assert.Zero(t, db.OpenSessions())
}

func TestEngine_OneStatementPerConnection(t *testing.T) {
	e, _ := newEngine(t)
	c := connect(t, e)
	defer e.ConnectionFree(c)

	var cur native.Cursor
	require.Equal(t, native.Success, e.ConnectionFetchQuery(c, native.CStr(query), 0, &cur))

	var other native.Cursor
	assert.Equal(t, native.StatementInProgress, e.ConnectionFetchQuery(c, native.CStr(query), 0, &other))
	assert.Contains(t, lastError(e, uintptr(c)), "cursor is still open")

	e.CursorFree(cur)
	require.Equal(t, native.Success, e.ConnectionFetchQuery(c, native.CStr(query), 0, &other))
	e.CursorFree(other)
}

func TestEngine_DisconnectInvalidatesCursor(t *testing.T) {
	e, _ := newEngine(t)
	c := connect(t, e)
	defer e.ConnectionFree(c)

	var cur native.Cursor
	require.Equal(t, native.Success, e.ConnectionFetchQuery(c, native.CStr(query), 0, &cur))
	require.Equal(t, native.Success, e.ConnectionDisconnect(c))

	var r native.Row
	assert.Equal(t, native.NotConnected, e.CursorNext(cur, &r))
	lastError(e, uintptr(cur))
	e.CursorFree(cur)
	assert.Zero(t, e.Misuse())
}

func TestEngine_RowColumns(t *testing.T) {
	e, _ := newEngine(t)
	c := connect(t, e)
	defer e.ConnectionFree(c)

	var cur native.Cursor
	require.Equal(t, native.Success, e.ConnectionFetchQuery(c, native.CStr(query), 0, &cur))
	defer e.CursorFree(cur)
	var r native.Row
	require.Equal(t, native.Success, e.CursorNext(cur, &r))

	assert.Equal(t, native.BufferNotEnough, e.RowColumns(r, make([]native.ColumnRef, 1)))
	lastError(e, uintptr(r))

	refs := make([]native.ColumnRef, 2)
	require.Equal(t, native.Success, e.RowColumns(r, refs))
	name := e.ColumnRefName(refs[0])
	assert.Equal(t, "id", string(e.CStringRead(name)))
	e.CStringFree(name)

	// Borrowed references are released with the row.
	e.ColumnRefFree(refs[0])
	assert.Equal(t, 1, e.Misuse())
	before := e.Live()
	e.RowFree(r)
	assert.Equal(t, before-3, e.Live())

	var ref native.ColumnRef
	assert.Equal(t, native.NullNotAllowed, e.RowColumnWithOrdinal(r, 0, &ref))
	lastError(e, uintptr(r))
}
