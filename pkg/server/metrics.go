package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/session"
)

// Metrics holds the Prometheus collectors of the server.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TurnsTotal      *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	TokensTotal     *prometheus.CounterVec
	ToolCallsTotal  *prometheus.CounterVec
	StorageDegraded *prometheus.CounterVec
	SaveErrorsTotal prometheus.Counter
	SettingsVersion prometheus.Gauge
	ServerStartTime prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playground_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	m.TurnsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_turns_total",
			Help: "Total number of agent turns by outcome",
		},
		[]string{"outcome"},
	)
	m.TurnDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playground_turn_duration_seconds",
			Help:    "Agent loop latency of successful turns",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)
	m.TokensTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_tokens_total",
			Help: "Model tokens used by turns",
		},
		[]string{"kind"},
	)
	m.ToolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_tool_calls_total",
			Help: "Tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)
	m.StorageDegraded = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_storage_degraded_total",
			Help: "Session storage failures absorbed instead of returned",
		},
		[]string{"backend", "op"},
	)
	m.SaveErrorsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "playground_history_save_errors_total",
			Help: "Finished turns whose history could not be saved",
		},
	)
	m.SettingsVersion = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "playground_config_version",
			Help: "Version of the live configuration snapshot",
		},
	)
	m.ServerStartTime = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "playground_start_time_seconds",
			Help: "Unix time the server started",
		},
	)
	m.ServerStartTime.SetToCurrentTime()
	return m
}

// ObserveDegraded counts an absorbed storage failure. It fits
// session.Options.OnDegraded.
func (m *Metrics) ObserveDegraded(e *session.StorageError) {
	m.StorageDegraded.WithLabelValues(e.Backend, e.Op).Inc()
}

// ObserveSaveError counts a failed history save. It fits
// turn.Coordinator.OnSaveError.
func (m *Metrics) ObserveSaveError(string, error) {
	m.SaveErrorsTotal.Inc()
}

func (m *Metrics) observeTurn(outcome string, am *agent.Metrics) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	if am == nil {
		return
	}
	m.TurnDuration.Observe(am.Latency.Seconds())
	m.TokensTotal.WithLabelValues("input").Add(float64(am.Usage.PromptTokenCount))
	m.TokensTotal.WithLabelValues("output").Add(float64(am.Usage.GeneratedTokenCount))
	for name, st := range am.Tools {
		m.ToolCallsTotal.WithLabelValues(name, "ok").Add(float64(st.Calls - st.Errors))
		m.ToolCallsTotal.WithLabelValues(name, "error").Add(float64(st.Errors))
	}
}

// instrument records request count and latency by chi route pattern.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
