package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// FlagEvaluations counts flag evaluations by flag key and outcome reason.
	FlagEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_evaluations_total",
			Help: "Total flag evaluations by flag and reason",
		},
		[]string{"flag", "reason"},
	)
	// ExperimentAssignments counts assignment attempts by experiment and reason.
	ExperimentAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_assignments_total",
			Help: "Total experiment assignment attempts by experiment and reason",
		},
		[]string{"experiment", "reason"},
	)
	// RegistryFlags tracks how many flag definitions are currently loaded.
	RegistryFlags = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_flags",
		Help: "Number of flags currently loaded from the registry",
	})
	// RegistryExperiments tracks how many experiment definitions are loaded.
	RegistryExperiments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_experiments",
		Help: "Number of experiments currently loaded from the registry",
	})
	// TrackingQueueDepth tracks pending events in the webhook dispatch queue.
	TrackingQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_queue_depth",
		Help: "Number of tracking events waiting for dispatch",
	})
)

func Init() {
	prometheus.MustRegister(httpReqs, httpDur,
		FlagEvaluations, ExperimentAssignments,
		RegistryFlags, RegistryExperiments, TrackingQueueDepth)
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// get route pattern if available
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
