package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/protocol"
	"github.com/lazypower/lattice/internal/subconscious"
)

// Server is the lattice HTTP API server.
type Server struct {
	engine      *engine.Engine
	dispatcher  *protocol.Dispatcher
	runner      *subconscious.Runner // nil disables session close processing
	transcripts string               // root for posted transcript paths; empty rejects them
	gatherer    prometheus.Gatherer
	router      chi.Router
	version     string
	started     time.Time

	// background session runs
	wg sync.WaitGroup
}

// Options wires the optional parts of a Server.
type Options struct {
	Version string
	Runner  *subconscious.Runner
	// TranscriptDir is the only directory session-close transcripts are
	// read from. Empty disables transcriptPath.
	TranscriptDir string
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// New creates a new Server.
func New(e *engine.Engine, d *protocol.Dispatcher, opts Options) *Server {
	s := &Server{
		engine:      e,
		dispatcher:  d,
		runner:      opts.Runner,
		transcripts: opts.TranscriptDir,
		gatherer:    opts.Gatherer,
		version:     opts.Version,
		started:     time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until background session runs finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/operations", s.handleOperations)

		r.Route("/subjects/{subject}", func(r chi.Router) {
			r.Post("/ops/{op}", s.handleOperation)
			r.Post("/batch", s.handleBatch)
			r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
			r.Post("/sessions/{sessionID}/close", s.handleCloseSession)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	db := s.engine.DB()
	dbOK := db.PingContext(r.Context()) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"uptime":       time.Since(s.started).Seconds(),
		"db":           dbOK,
		"db_path":      db.Path,
		"embedding":    s.engine.Embeddings().Model(),
		"subconscious": s.runner != nil,
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": protocol.Schemas()})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("http: encode response")
	}
}
