// Package server is a small HTTP console over one core.Connection. It runs
// statements, streams query results as JSON, reports the connection
// settings and introspects tables. When an attachment store is configured it
// also serves content-addressed uploads and downloads.
//
// Usage:
//
//	srv := server.New(conn, server.WithLogger(log), server.WithAttachments(att))
//	err := srv.ListenAndServe(ctx, cfg.Server)
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/djcore/internal/config"
	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/filestore"
	"github.com/koustreak/djcore/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Server serves the console API. Requests that touch the connection are
// serialized because a core.Connection must not be shared between
// goroutines.
type Server struct {
	mu   sync.Mutex
	conn *core.Connection
	att  *filestore.Attachments
	log  *logger.Logger

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for the access log and failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.Component("server") }
}

// WithAttachments enables the /attachments routes.
func WithAttachments(a *filestore.Attachments) Option {
	return func(s *Server) { s.att = a }
}

// New builds the router. The server does not own conn.
func New(conn *core.Connection, opts ...Option) *Server {
	s := &Server{conn: conn, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/settings", s.handleSettings)
	r.Post("/execute", s.handleExecute)
	r.Post("/fetch", s.handleFetch)
	r.Post("/reconnect", s.handleReconnect)
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", s.handleTables)
		r.Get("/{table}", s.handleTable)
	})
	if s.att != nil {
		r.Route("/attachments", func(r chi.Router) {
			r.Post("/", s.handleAttachmentPut)
			r.Get("/{id}", s.handleAttachmentGet)
			r.Get("/{id}/url", s.handleAttachmentURL)
		})
	}
	return r
}

// Handler returns the console's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.Server) error {
	hs := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("console listening", map[string]interface{}{"addr": cfg.Addr})
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// accessLog writes one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Access().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
