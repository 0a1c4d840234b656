package core_test

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/engine"
	"github.com/koustreak/djcore/internal/engine/enginetest"
	"github.com/koustreak/djcore/internal/native/nativetest"
)

const sessionsQuery = "SELECT subject_id, subject_name, weight FROM session"

// sessionsResult is a three-column, three-row result used across tests.
var sessionsResult = enginetest.Result{
	Columns: []enginetest.Column{
		{Name: "subject_id", Type: "INT"},
		{Name: "subject_name", Type: "VARCHAR"},
		{Name: "weight", Type: "DOUBLE"},
	},
	Rows: [][]driver.Value{
		{int64(1), "mouse", 21.5},
		{int64(2), "rat", 310.0},
		{int64(3), nil, nil},
	},
}

type fixture struct {
	db  *enginetest.DB
	eng *engine.Engine
	lib *nativetest.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := enginetest.New().
		On("SELECT 1", enginetest.Result{}).
		On(sessionsQuery, sessionsResult)
	eng := engine.New(db.Option())
	t.Cleanup(func() { eng.Close() })
	return &fixture{db: db, eng: eng, lib: nativetest.Track(eng)}
}

// open returns a connected Connection closed at cleanup.
func (f *fixture) open(t *testing.T) *core.Connection {
	t.Helper()
	conn, err := core.Open(f.lib, core.NewSettings(f.lib))
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

// assertBalanced checks that every handle given to the caller was freed
// exactly once.
func (f *fixture) assertBalanced(t *testing.T) {
	t.Helper()
	assert.Empty(t, f.lib.Leaks(), "leaked handles")
	assert.Empty(t, f.lib.Misuse(), "ownership misuse")
	assert.Zero(t, f.eng.Misuse(), "engine saw misuse")
	for _, kind := range []string{
		nativetest.KindCursor, nativetest.KindRow, nativetest.KindColumn,
		nativetest.KindDecoded, nativetest.KindCString,
	} {
		assert.Equal(t, f.lib.Allocs(kind), f.lib.Frees(kind), "allocs and frees of %s", kind)
	}
}
