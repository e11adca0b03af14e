// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	FramesReceived prometheus.Counter
	FramesDropped  *prometheus.CounterVec
	EventsDecoded  *prometheus.CounterVec
	WSReconnects   prometheus.Counter

	// Latency metrics
	RPCCallLatency     *prometheus.HistogramVec
	EnrichmentDuration prometheus.Histogram

	// Enrichment metrics
	EnrichmentsInFlight prometheus.Gauge
	NotificationsSent   *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastFrameReceived    prometheus.Gauge
	LastNotificationSent prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "moonshot_watcher"
	}

	return &Metrics{
		// Stream metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total number of transaction notification frames received",
		}),
		FramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped by reason",
		}, []string{"reason"}),
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_decoded_total",
			Help:      "Total number of decoded events by kind",
		}, []string{"kind"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		EnrichmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "duration_seconds",
			Help:      "Time from Create event to notification in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),

		// Enrichment metrics
		EnrichmentsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "in_flight",
			Help:      "Number of Create events currently being enriched",
		}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of notifications by sink and status",
		}, []string{"sink", "status"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of mint origin cache lookups by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastFrameReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_frame_received_timestamp",
			Help:      "Unix timestamp of last received notification frame",
		}),
		LastNotificationSent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_notification_sent_timestamp",
			Help:      "Unix timestamp of last successful notification",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFrameReceived increments the frames received counter.
func RecordFrameReceived() {
	DefaultMetrics.FramesReceived.Inc()
	DefaultMetrics.LastFrameReceived.Set(float64(time.Now().Unix()))
}

// RecordFrameDropped records a frame dropped for reason.
func RecordFrameDropped(reason string) {
	DefaultMetrics.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordEventDecoded increments the decoded events counter for kind.
func RecordEventDecoded(kind string) {
	DefaultMetrics.EventsDecoded.WithLabelValues(kind).Inc()
}

// RecordWSReconnect increments the reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// EnrichmentStarted marks an enrichment task as in flight.
func EnrichmentStarted() {
	DefaultMetrics.EnrichmentsInFlight.Inc()
}

// EnrichmentFinished records a completed enrichment task.
func EnrichmentFinished(seconds float64) {
	DefaultMetrics.EnrichmentsInFlight.Dec()
	DefaultMetrics.EnrichmentDuration.Observe(seconds)
}

// RecordNotification records a notification attempt for sink.
func RecordNotification(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		DefaultMetrics.LastNotificationSent.Set(float64(time.Now().Unix()))
	}
	DefaultMetrics.NotificationsSent.WithLabelValues(sink, status).Inc()
}

// RecordCacheLookup records a mint origin cache lookup: "hit", "miss" or "error".
func RecordCacheLookup(result string) {
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
