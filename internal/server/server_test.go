package server

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/config"
	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/engine"
	"github.com/koustreak/djcore/internal/engine/enginetest"
	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/filestore"
	"github.com/koustreak/djcore/internal/filestore/filestoretest"
	"github.com/koustreak/djcore/internal/hash"
	"github.com/koustreak/djcore/internal/logger"
	"github.com/koustreak/djcore/internal/native"
)

const sessionsQuery = "SELECT subject_id, subject_name FROM subject"

type fixture struct {
	db   *enginetest.DB
	eng  *engine.Engine
	conn *core.Connection
	mem  *filestoretest.Memory
	srv  *httptest.Server
	logs *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db: enginetest.New().
			On(sessionsQuery, enginetest.Result{
				Columns: []enginetest.Column{{Name: "subject_id", Type: "INT"}, {Name: "subject_name", Type: "VARCHAR"}},
				Rows: [][]driver.Value{
					{int64(1), "mouse"},
					{int64(2), "rat"},
					{int64(3), nil},
				},
			}).
			On("INSERT INTO subject VALUES (?, ?)", enginetest.Result{RowsAffected: 1}),
		mem:  filestoretest.New(),
		logs: &bytes.Buffer{},
	}
	f.eng = engine.New(f.db.Option())

	s := core.NewSettings(f.eng)
	require.NoError(t, s.Update(map[string]any{
		core.FieldDatabaseName: "djtest",
		core.FieldUsername:     "dj",
		core.FieldPassword:     "s3cret",
	}))
	conn, err := core.Open(f.eng, s)
	require.NoError(t, err)
	f.conn = conn

	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: f.logs})
	srv := New(conn, WithLogger(log), WithAttachments(filestore.NewAttachments(f.mem, "external")))
	f.srv = httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		f.srv.Close()
		conn.Close()
		f.eng.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[healthResponse](t, body)
	assert.Equal(t, healthResponse{Status: "ok", State: "connected", Connected: true}, got)
}

func TestSettings_HidesPassword(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/settings", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "s3cret")

	got := decode[settingsResponse](t, body)
	assert.Equal(t, settingsResponse{
		DatabaseType: "mysql",
		Hostname:     "localhost",
		Username:     "dj",
		DatabaseName: "djtest",
		Port:         3306,
		UseTLS:       "preferred",
	}, got)
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/execute", `{"query": "INSERT INTO subject VALUES (?, ?)", "args": [4, "vole"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, executeResponse{Affected: 1}, decode[executeResponse](t, body))

	stmts := f.db.Statements()
	assert.Equal(t, []any{int32(4), "vole"}, stmts[len(stmts)-1].Args)
}

func TestExecute_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed json", `{"query": `, http.StatusBadRequest, "argument"},
		{"unknown field", `{"sql": "SELECT 1"}`, http.StatusBadRequest, "argument"},
		{"empty query", `{"query": ""}`, http.StatusBadRequest, "argument"},
		{"object argument", `{"query": "INSERT INTO subject VALUES (?, ?)", "args": [{"a": 1}]}`, http.StatusBadRequest, "argument"},
		{"integer out of range", `{"query": "INSERT INTO subject VALUES (?, ?)", "args": [9999999999, "x"]}`, http.StatusBadRequest, "argument"},
		{"unscripted statement", `{"query": "DROP TABLE subject"}`, http.StatusUnprocessableEntity, "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp, body := f.do(t, http.MethodPost, "/execute", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, tt.kind, decode[errorResponse](t, body).Kind)
		})
	}
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/fetch", `{"query": "`+sessionsQuery+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got := decode[fetchResponse](t, body)
	assert.Equal(t, []string{"subject_id", "subject_name"}, got.Columns)
	assert.Equal(t, [][]any{
		{float64(1), "mouse"},
		{float64(2), "rat"},
		{float64(3), nil},
	}, got.Rows)
	assert.False(t, got.Truncated)

	// The cursor was closed, so the connection accepts the next statement.
	resp, _ = f.do(t, http.MethodPost, "/fetch", `{"query": "`+sessionsQuery+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetch_Limit(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/fetch", `{"query": "`+sessionsQuery+`", "limit": 2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got := decode[fetchResponse](t, body)
	assert.Len(t, got.Rows, 2)
	assert.True(t, got.Truncated)
}

func TestFetch_DecodeFailureIsPerColumn(t *testing.T) {
	f := newFixture(t)
	f.db.On("SELECT price FROM item", enginetest.Result{
		Columns: []enginetest.Column{{Name: "price", Type: "DECIMAL"}},
		Rows:    [][]driver.Value{{[]byte("1.10")}},
	})
	resp, body := f.do(t, http.MethodPost, "/fetch", `{"query": "SELECT price FROM item"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got := decode[fetchResponse](t, body)
	require.Len(t, got.Rows, 1)
	cell, ok := got.Rows[0][0].(map[string]any)
	require.True(t, ok, "got %#v", got.Rows[0][0])
	assert.Contains(t, cell["error"], "no decoder implemented")
}

func TestFetch_ConnectionLost(t *testing.T) {
	f := newFixture(t)
	f.db.On("SELECT * FROM big", enginetest.Result{
		Columns: []enginetest.Column{{Name: "n", Type: "INT"}},
		Rows:    [][]driver.Value{{int64(1)}},
		RowErr:  &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
	})
	resp, body := f.do(t, http.MethodPost, "/fetch", `{"query": "SELECT * FROM big"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))
	assert.Equal(t, "connection", decode[errorResponse](t, body).Kind)
}

func TestReconnect(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/reconnect", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decode[healthResponse](t, body).Connected)
	assert.Len(t, f.db.Configs(), 2)

	f.db.FailConnect(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	resp, body = f.do(t, http.MethodPost, "/reconnect", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(native.IoError), decode[errorResponse](t, body).Code)

	_, body = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "failed", decode[healthResponse](t, body).State)
}

func TestNotConnected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Disconnect())

	resp, body := f.do(t, http.MethodPost, "/execute", `{"query": "SELECT 1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not_connected", decode[errorResponse](t, body).Kind)
}

func TestAttachments(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/attachments?name=notes.txt", "abc")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	put := decode[attachmentResponse](t, body)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", put.Hex)

	resp, body = f.do(t, http.MethodGet, "/attachments/"+put.Hex, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", string(body))
	assert.Equal(t, `attachment; filename=notes.txt`, resp.Header.Get("Content-Disposition"))

	resp, body = f.do(t, http.MethodGet, "/attachments/"+put.ID+"/url", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "external/90/01/")

	missing := hash.Hex(hash.UUIDFromBuffer([]byte("nothing")))
	resp, _ = f.do(t, http.MethodGet, "/attachments/"+missing, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/attachments/not-a-hash", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttachments_DisabledWithoutStore(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(New(f.conn).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/attachments", "application/octet-stream", strings.NewReader("abc"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccessLog(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", "")
	out := f.logs.String()
	assert.Contains(t, out, `"component":"server"`)
	assert.Contains(t, out, `"path":"/healthz"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"request_id"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{errs.New(errs.ErrKindColumnNotFound, "x"), http.StatusNotFound},
		{errs.New(errs.ErrKindAlreadyConnected, "x"), http.StatusConflict},
		{errs.New(errs.ErrKindPermissionDenied, "x"), http.StatusForbidden},
		{errs.New(errs.ErrKindTimeout, "x"), http.StatusGatewayTimeout},
		{errs.New(errs.ErrKindResource, "x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), "%v", tt.err)
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(f.conn).ListenAndServe(ctx, config.Server{Addr: "127.0.0.1:0"})
	}()
	cancel()
	assert.NoError(t, <-done)
}
