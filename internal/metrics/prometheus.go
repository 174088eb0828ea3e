package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the EmotiBit decoder
type Metrics struct {
	// Record metrics
	RecordsReceived prometheus.Counter
	RecordsDecoded  prometheus.Counter
	DecodeErrors    *prometheus.CounterVec
	PacketsByTag    *prometheus.CounterVec
	QueueSize       prometheus.Gauge

	// Sync metrics
	SyncRoundTrip  prometheus.Histogram
	SyncMapsBuilt  prometheus.Counter
	SyncMapsFailed prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotibit_records_received_total",
			Help: "Total number of raw records received",
		}),
		RecordsDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotibit_records_decoded_total",
			Help: "Total number of records successfully decoded",
		}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotibit_decode_errors_total",
			Help: "Total number of records that failed to decode",
		}, []string{"reason"}),
		PacketsByTag: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotibit_packets_total",
			Help: "Decoded packets by type tag",
		}, []string{"type_tag"}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emotibit_record_queue_size",
			Help: "Current number of records in processing queue",
		}),

		SyncRoundTrip: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotibit_sync_round_trip_ms",
			Help:    "Round trip of RD/TL/AK handshakes in device milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms to ~2s
		}),
		SyncMapsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotibit_sync_maps_built_total",
			Help: "Total number of sync maps generated",
		}),
		SyncMapsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotibit_sync_maps_failed_total",
			Help: "Total number of batches where no sync map could be generated",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotibit_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emotibit_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotibit_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordReceived increments the records received counter
func (m *Metrics) RecordReceived() {
	m.RecordsReceived.Inc()
}

// RecordDecoded counts a decoded packet under its type tag
func (m *Metrics) RecordDecoded(tag string) {
	m.RecordsDecoded.Inc()
	m.PacketsByTag.WithLabelValues(tag).Inc()
}

// RecordDecodeError counts a failed record under reason
func (m *Metrics) RecordDecodeError(reason string) {
	m.DecodeErrors.WithLabelValues(reason).Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// RecordSyncRoundTrip observes one handshake round trip
func (m *Metrics) RecordSyncRoundTrip(ms float64) {
	m.SyncRoundTrip.Observe(ms)
}

// RecordSyncMap counts the outcome of a sync map generation
func (m *Metrics) RecordSyncMap(ok bool) {
	if ok {
		m.SyncMapsBuilt.Inc()
		return
	}
	m.SyncMapsFailed.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
