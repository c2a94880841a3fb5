package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "barfeed"

// Recorder implements domain.repository.Metrics and the HTTP middleware
// recorder using Prometheus.
type Recorder struct {
	polls         *prometheus.CounterVec
	pollErrors    *prometheus.CounterVec
	events        *prometheus.CounterVec
	watermarkLag  *prometheus.GaugeVec
	subscriptions prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight *prometheus.GaugeVec
	httpSize     *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "polls_total",
			Help:      "Subscription polls issued against the store",
		}, []string{"type"}),
		pollErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "poll_errors_total",
			Help:      "Subscription polls that failed",
		}, []string{"type"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Events dispatched to listeners",
		}, []string{"event"}),
		watermarkLag: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "watermark_lag_seconds",
			Help:      "Age of the newest emitted row at emission time",
		}, []string{"type"}),
		subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_subscriptions",
			Help:      "Registered subscriptions",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "class"}),
		httpInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}, []string{"route", "method"}),
		httpSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000, 500_000, 1_000_000},
		}, []string{"route", "method", "class"}),
	}
}

func (r *Recorder) RecordPoll(subType string) {
	r.polls.WithLabelValues(subType).Inc()
}

func (r *Recorder) RecordPollError(subType string) {
	r.pollErrors.WithLabelValues(subType).Inc()
}

func (r *Recorder) RecordEvents(eventType string, n int) {
	if n <= 0 {
		return
	}
	r.events.WithLabelValues(eventType).Add(float64(n))
}

func (r *Recorder) RecordWatermarkLag(subType string, seconds float64) {
	r.watermarkLag.WithLabelValues(subType).Set(seconds)
}

func (r *Recorder) SetActiveSubscriptions(n int) {
	r.subscriptions.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) HTTPStarted(route, method string) {
	r.httpInFlight.WithLabelValues(route, method).Inc()
}

func (r *Recorder) HTTPFinished(route, method, status, class string, seconds float64, bytes int64) {
	r.httpInFlight.WithLabelValues(route, method).Dec()
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method, class).Observe(seconds)
	r.httpSize.WithLabelValues(route, method, class).Observe(float64(bytes))
}
