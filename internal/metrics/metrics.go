// Package metrics provides Prometheus metrics for the Infinite Cloud server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infinitecloud_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// Webhook / command metrics
	webhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_webhook_updates_total",
			Help: "Total webhook updates processed",
		},
		[]string{"kind"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_commands_total",
			Help: "Total recognized commands executed",
		},
		[]string{"command", "result"},
	)

	// Streaming metrics
	chunksServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_chunks_served_total",
			Help: "Total listing and content chunks served",
		},
		[]string{"kind"},
	)

	contentBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "infinitecloud_content_bytes_served_total",
			Help: "Total content bytes relayed from Telegram",
		},
	)

	// State metrics
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "infinitecloud_active_sessions",
			Help: "Number of active conversation sessions",
		},
	)

	filesystemNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "infinitecloud_filesystem_nodes",
			Help: "Total nodes across all conversation trees",
		},
	)

	// Snapshot metrics
	snapshotPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "infinitecloud_snapshot_persist_duration_seconds",
			Help:    "Time to persist a state snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	snapshotPersistsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_snapshot_persists_total",
			Help: "Total snapshot persist attempts",
		},
		[]string{"status"},
	)

	// Outbound Telegram API metrics
	telegramCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infinitecloud_telegram_calls_total",
			Help: "Total outbound Telegram Bot API calls",
		},
		[]string{"method", "status"},
	)

	telegramCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infinitecloud_telegram_call_duration_seconds",
			Help:    "Outbound Telegram Bot API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordWebhookUpdate records a processed webhook update by kind
// ("message", "callback", "other").
func RecordWebhookUpdate(kind string) {
	webhookUpdatesTotal.WithLabelValues(kind).Inc()
}

// RecordCommand records a command execution outcome.
func RecordCommand(command string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	commandsTotal.WithLabelValues(command, result).Inc()
}

// RecordChunkServed records a served chunk ("listing" or "content").
func RecordChunkServed(kind string) {
	chunksServedTotal.WithLabelValues(kind).Inc()
}

// RecordContentBytes adds to the relayed content byte counter.
func RecordContentBytes(n int64) {
	contentBytesServed.Add(float64(n))
}

// SetActiveSessions sets the active session gauge.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// SetFilesystemNodes sets the total tree node gauge.
func SetFilesystemNodes(count int) {
	filesystemNodes.Set(float64(count))
}

// RecordSnapshotPersist records a snapshot persist attempt.
func RecordSnapshotPersist(duration time.Duration, success bool) {
	snapshotPersistDuration.Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	snapshotPersistsTotal.WithLabelValues(status).Inc()
}

// RecordTelegramCall records an outbound Bot API call.
func RecordTelegramCall(method string, duration time.Duration, success bool) {
	telegramCallDuration.WithLabelValues(method).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	telegramCallsTotal.WithLabelValues(method, status).Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
