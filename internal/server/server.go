package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/engine"
	"github.com/michaelv2/claude-cortex-core/internal/memerr"
)

// Server is the cortex HTTP API: the 15 engine operations as JSON endpoints.
type Server struct {
	eng      *engine.Engine
	router   chi.Router
	log      *zap.Logger
	validate *validator.Validate
	version  string
	started  time.Time
}

// New creates a Server over a running engine.
func New(eng *engine.Engine, log *zap.Logger, version string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		eng:      eng,
		log:      log,
		validate: validator.New(),
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/memories", s.handleRemember)
		r.Post("/memories/search", s.handleRecall)
		r.Post("/memories/forget", s.handleForget)
		r.Post("/memories/{id}/access", s.handleAccess)
		r.Get("/memories/{id}/related", s.handleRelated)
		r.Post("/links", s.handleLink)

		r.Get("/context", s.handleContext)
		r.Post("/sessions", s.handleStartSession)
		r.Post("/sessions/{sessionID}/end", s.handleEndSession)

		r.Post("/consolidate", s.handleConsolidate)
		r.Get("/stats", s.handleStats)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Get("/project", s.handleGetProject)
		r.Put("/project", s.handleSetProject)
	})

	s.router = r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.eng.DB().Ping(); err != nil {
		dbOK = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.eng.DB().Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders the stable error taxonomy. Unexpected errors get a
// generic message; the original text stays in the log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *memerr.Error
	if !errors.As(err, &e) {
		s.log.Error("internal error", zap.Error(err))
		e = &memerr.Error{Code: "INTERNAL", Message: "unexpected error"}
	}
	writeJSON(w, memerr.HTTPStatus(err), map[string]any{"error": e})
}

// decode parses and validates a JSON request body.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return memerr.InvalidQuery("malformed request body").WithCause(err)
	}
	if err := s.validate.Struct(v); err != nil {
		return memerr.InvalidQuery(err.Error()).WithCause(err)
	}
	return nil
}
