package server

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/hash"
	"github.com/koustreak/djcore/internal/schema"
)

const (
	maxAttachmentBytes = 64 << 20
	presignTTL         = 15 * time.Minute
)

type healthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

type settingsResponse struct {
	DatabaseType string `json:"database_type"`
	Hostname     string `json:"hostname"`
	Username     string `json:"username"`
	DatabaseName string `json:"database_name"`
	Port         uint16 `json:"port"`
	UseTLS       string `json:"use_tls"`
}

type executeResponse struct {
	Affected uint64 `json:"affected"`
}

type fetchResponse struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

type tablesResponse struct {
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

type attachmentResponse struct {
	ID  string `json:"id"`
	Hex string `json:"hex"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		State:     s.conn.State().String(),
		Connected: s.conn.IsConnected(),
	})
}

// handleSettings reports the connection settings. The password is never
// returned.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.conn.Settings()
	var (
		resp settingsResponse
		err  error
	)
	t, err := st.DatabaseType()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.DatabaseType = t.String()
	if resp.Hostname, err = st.Hostname(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Username, err = st.Username(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.DatabaseName, err = st.DatabaseName(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Port, err = st.Port(); err != nil {
		s.writeError(w, r, err)
		return
	}
	tls, err := st.UseTLS()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.UseTLS = tls.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatement(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.conn.Execute(req.Query, req.Args...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Affected: n})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatement(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.conn.Fetch(req.Query, req.Args...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cur.Close()

	resp := fetchResponse{Columns: []string{}, Rows: [][]any{}}
	for row, err := range cur.All() {
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.Limit > 0 && len(resp.Rows) == req.Limit {
			resp.Truncated = true
			break
		}
		cols, err := row.Columns()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(resp.Rows) == 0 {
			for _, c := range cols {
				resp.Columns = append(resp.Columns, c.Name())
			}
		}
		vals := make([]any, len(cols))
		for i, c := range cols {
			v, err := row.Decode(c)
			if err != nil && errs.IsResource(err) {
				s.writeError(w, r, err)
				return
			}
			if err != nil {
				vals[i] = map[string]string{"error": err.Error()}
				continue
			}
			vals[i] = jsonValue(v)
		}
		resp.Rows = append(resp.Rows, vals)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Reconnect(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		State:     s.conn.State().String(),
		Connected: s.conn.IsConnected(),
	})
}

// introspector returns a Reader and the schema named by the request, or
// the connection's default schema.
func (s *Server) introspector(r *http.Request) (schema.Reader, string, error) {
	reader, err := schema.New(s.conn)
	if err != nil {
		return nil, "", err
	}
	name := r.URL.Query().Get("schema")
	if name == "" {
		if name, err = schema.DefaultSchema(s.conn); err != nil {
			return nil, "", err
		}
	}
	return reader, name, nil
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reader, name, err := s.introspector(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tables, err := reader.ListTables(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{Schema: name, Tables: tables})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reader, name, err := s.introspector(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := reader.InspectTable(name, chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- attachments ---

func (s *Server) handleAttachmentPut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAttachmentBytes))
	if err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindArgument, "failed to read attachment", err))
		return
	}
	name := r.URL.Query().Get("name")
	id, err := s.att.Put(r.Context(), name, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachmentResponse{ID: id.String(), Hex: hash.Hex(id)})
}

// handleAttachmentGet verifies the content hash before sending anything,
// so a corrupt object is reported as an error rather than a truncated body.
func (s *Server) handleAttachmentGet(w http.ResponseWriter, r *http.Request) {
	id, err := hash.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	name, err := s.att.Download(r.Context(), id, &buf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	if name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	id, err := hash.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	url, err := s.att.Presign(r.Context(), id, presignTTL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
