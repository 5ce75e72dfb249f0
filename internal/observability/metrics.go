package observability

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
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flux_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flux_ws_active_connections",
			Help: "Number of connected UI sessions.",
		},
	)
	liveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flux_live_subscriptions",
			Help: "Number of open live queries.",
		},
		[]string{"collection"},
	)
	snapshotsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_snapshots_delivered_total",
			Help: "Total number of snapshots delivered to live queries.",
		},
		[]string{"collection"},
	)
	writeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_write_failures_total",
			Help: "Total number of failed writes by UI action.",
		},
		[]string{"action"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		liveSubscriptions,
		snapshotsDelivered,
		writeFailures,
		amqpPublishErrorsTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// collectionKind keeps label cardinality bounded: channels/123/messages -> channels/messages
func collectionKind(collection string) string {
	parts := strings.Split(collection, "/")
	kind := make([]string, 0, (len(parts)+1)/2)
	for i := 0; i < len(parts); i += 2 {
		kind = append(kind, parts[i])
	}
	return strings.Join(kind, "/")
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncSubscriptions(collection string) {
	liveSubscriptions.WithLabelValues(collectionKind(collection)).Inc()
}

func DecSubscriptions(collection string) {
	liveSubscriptions.WithLabelValues(collectionKind(collection)).Dec()
}

func IncSnapshot(collection string) {
	snapshotsDelivered.WithLabelValues(collectionKind(collection)).Inc()
}

func IncWriteFailure(action string) {
	writeFailures.WithLabelValues(action).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
