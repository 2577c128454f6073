package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "moscow",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moscow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "moscow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	boardMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moscow",
			Subsystem: "board",
			Name:      "mutations_total",
			Help:      "Board mutations by kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	feedConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "moscow",
			Subsystem: "feed",
			Name:      "connections",
			Help:      "Open live feed connections.",
		},
	)

	feedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moscow",
			Subsystem: "feed",
			Name:      "events_published_total",
			Help:      "Events published to live subscribers.",
		},
		[]string{"type"},
	)

	archiveRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moscow",
			Subsystem: "archive",
			Name:      "runs_total",
			Help:      "Board archive uploads.",
		},
		[]string{"success"},
	)

	archiveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "moscow",
			Subsystem: "archive",
			Name:      "run_duration_seconds",
			Help:      "Duration of board archive uploads.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		boardMutations,
		feedConnections,
		feedEvents,
		archiveRuns,
		archiveDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request metrics labelled by chi route pattern,
// so ids in paths do not explode label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// RecordMutation counts an add or move attempt. result is "ok", "invalid"
// or "failed".
func RecordMutation(kind, result string) {
	boardMutations.WithLabelValues(kind, result).Inc()
}

func FeedConnected()    { feedConnections.Inc() }
func FeedDisconnected() { feedConnections.Dec() }

func RecordFeedEvent(eventType string) {
	feedEvents.WithLabelValues(eventType).Inc()
}

func RecordArchive(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	archiveRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	archiveDuration.Observe(duration.Seconds())
}
