package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the voiceguard client. All
// methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Analysis metrics
	AnalysisRequests prometheus.Counter
	AnalysisFailures prometheus.Counter
	Predictions      *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	PayloadSize      prometheus.Histogram

	// Capture metrics
	RecordingsFinished prometheus.Counter
	CaptureFailures    prometheus.Counter

	// Console metrics
	HTTPRequests      *prometheus.CounterVec
	WebSocketClients  prometheus.Gauge
	WatchedFilesQueue prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceguard_analysis_requests_total",
			Help: "Total number of prediction requests sent",
		}),
		AnalysisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceguard_analysis_failures_total",
			Help: "Total number of prediction requests that failed",
		}),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceguard_predictions_total",
			Help: "Predictions received, by label",
		}, []string{"prediction"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceguard_analysis_duration_seconds",
			Help:    "Round-trip time of prediction requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		PayloadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceguard_payload_size_bytes",
			Help:    "Size of submitted audio payloads",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),

		RecordingsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceguard_recordings_total",
			Help: "Total number of finished microphone recordings",
		}),
		CaptureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceguard_capture_failures_total",
			Help: "Total number of failed microphone requests",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceguard_console_requests_total",
			Help: "Console HTTP requests, by route and status",
		}, []string{"route", "status"}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceguard_console_websocket_clients",
			Help: "Current number of connected websocket viewers",
		}),
		WatchedFilesQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceguard_console_queue_size",
			Help: "Current number of analyses waiting in the console queue",
		}),
	}
}

func (m *Metrics) ObserveRequest(size int) {
	if m == nil {
		return
	}
	m.AnalysisRequests.Inc()
	m.PayloadSize.Observe(float64(size))
}

func (m *Metrics) ObservePrediction(label string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(label).Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFailure(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisFailures.Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRecording() {
	if m == nil {
		return
	}
	m.RecordingsFinished.Inc()
}

func (m *Metrics) ObserveCaptureFailure() {
	if m == nil {
		return
	}
	m.CaptureFailures.Inc()
}

func (m *Metrics) ObserveHTTP(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}

func (m *Metrics) AddWebSocketClients(delta float64) {
	if m == nil {
		return
	}
	m.WebSocketClients.Add(delta)
}

func (m *Metrics) SetQueueSize(n int) {
	if m == nil {
		return
	}
	m.WatchedFilesQueue.Set(float64(n))
}
