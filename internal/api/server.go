// Package api serves the council over HTTP. A master node exposes the council
// routes, a worker node exposes the generation routes, and both expose health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/ollama"
	"github.com/hugo-lorenzo-mato/llm-council/internal/catalog"
	"github.com/hugo-lorenzo-mato/llm-council/internal/config"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
	"github.com/hugo-lorenzo-mato/llm-council/internal/logging"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
)

const maxBodyBytes = 4 << 20

// Backend is the part of the inference backend the health and model routes use.
type Backend interface {
	BaseURL() string
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
}

// Server provides the HTTP endpoints of one node.
type Server struct {
	router      chi.Router
	role        string
	store       core.SessionStore
	council     *council.Orchestrator
	generator   core.Generator
	backend     Backend
	system      diagnostics.Collector
	models      []catalog.Model
	eventBus    *events.EventBus
	logger      *logging.Logger
	corsOrigins []string
	sessionWait time.Duration
	pollEvery   time.Duration
	version     string
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRole selects which routes are mounted.
func WithRole(role string) ServerOption {
	return func(s *Server) {
		s.role = role
	}
}

// WithCouncil sets the store and orchestrator behind the council routes.
func WithCouncil(store core.SessionStore, orch *council.Orchestrator) ServerOption {
	return func(s *Server) {
		s.store = store
		s.council = orch
	}
}

// WithGenerator sets the local generator behind the worker routes.
func WithGenerator(g core.Generator) ServerOption {
	return func(s *Server) {
		s.generator = g
	}
}

// WithBackend sets the backend probed by the health and model routes.
func WithBackend(b Backend) ServerOption {
	return func(s *Server) {
		s.backend = b
	}
}

// WithEventBus sets the bus the streaming routes subscribe to.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithSystemCollector overrides the host stats source.
func WithSystemCollector(c diagnostics.Collector) ServerOption {
	return func(s *Server) {
		s.system = c
	}
}

// WithCORSOrigins sets the allowed origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithSessionWait sets how long a stream waits for a session to appear.
func WithSessionWait(d time.Duration) ServerOption {
	return func(s *Server) {
		s.sessionWait = d
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a new API server.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		role:        config.RoleWorker,
		system:      diagnostics.NewSystemCollector(100 * time.Millisecond),
		models:      catalog.Recommended(),
		logger:      logging.NewNop(),
		corsOrigins: []string{"*"},
		sessionWait: 30 * time.Second,
		pollEvery:   250 * time.Millisecond,
		version:     "dev",
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.eventBus == nil {
		s.eventBus = events.New(100)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.handleHealth)
		r.Get("/ollama", s.handleOllamaHealth)
		r.Get("/system", s.handleSystemStats)
		r.Get("/models", s.handleInstalledModels)
	})

	if s.role == config.RoleMaster {
		r.Route("/api/council", func(r chi.Router) {
			r.Post("/query", s.handleQuery)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/session/{sessionID}", s.handleGetSession)
			r.Get("/models", s.handleRecommendedModels)
			r.Get("/ws/{sessionID}", s.handleWebSocket)
			r.Get("/events", s.handleSSE)
		})
	} else {
		r.Route("/api", func(r chi.Router) {
			r.Post("/generate", s.handleGenerate)
			r.Post("/generate/batch", s.handleGenerateBatch)
		})
	}

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps err to a status and writes its message.
func respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		status = http.StatusInternalServerError
	}
	body := map[string]string{"error": err.Error()}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		body["error"] = domErr.Message
		body["code"] = domErr.Code
	}
	respondJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return core.ErrValidation(core.CodeInvalidRequest, "invalid request body: "+err.Error())
	}
	return nil
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr, "role", s.role)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.eventBus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if s.council != nil {
		s.council.Wait()
	}
	return nil
}
