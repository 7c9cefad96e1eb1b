// Package server exposes the playground over HTTP: chat turns, stored
// conversations, live configuration, health and Prometheus metrics.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
	"github.com/haivivi/playground/pkg/turn"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	Turns    *turn.Coordinator
	Registry *registry.Registry
	Metrics  *Metrics

	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// StaticDir is served at / when it exists.
	StaticDir string

	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration

	Logger *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	if s.Metrics != nil {
		r.Use(s.Metrics.instrument)
	}
	if s.Timeout > 0 {
		r.Use(middleware.Timeout(s.Timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Get("/conversations", s.handleConversations)
	r.Get("/get_conversations", s.handleConversations)
	r.Post("/agent", s.handleAgent)
	r.Post("/strandsplayground_agent", s.handleAgent)

	r.Get("/system_prompt", s.handleGetSystemPrompt)
	r.Post("/system_prompt", s.handleSetSystemPrompt)
	r.Get("/model_settings", s.handleGetModelSettings)
	r.Post("/model_settings", s.handleSetModelSettings)
	r.Get("/available_tools", s.handleAvailableTools)
	r.Get("/get_available_tools", s.handleAvailableTools)
	r.Post("/update_tools", s.handleUpdateTools)

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if s.StaticDir != "" {
		if fi, err := os.Stat(s.StaticDir); err == nil && fi.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(s.StaticDir)))
		} else {
			s.logger().Warn("static dir not served", "dir", s.StaticDir, "err", err)
		}
	}
	return r
}

// requestLog tags each request with an id and logs it when done.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", id,
		)
	})
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// statusOf maps an error to its HTTP status. Missing credentials and
// other configuration faults are 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidIdentifier),
		errors.Is(err, registry.ErrUnknownTool),
		errors.Is(err, registry.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, turn.ErrAgentExecutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
