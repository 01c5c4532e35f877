package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// Content provider metrics (scrapers and LLM)
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderDurationSeconds *prometheus.HistogramVec

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec

	// Scheduler metrics
	SchedulerRunsTotal     *prometheus.CounterVec
	SchedulerPushesTotal   *prometheus.CounterVec
	SchedulerRunDuration   *prometheus.HistogramVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Webhook metrics
		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linebot_webhook_duration_seconds",
				Help:    "Webhook processing duration in seconds by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event_type"}, // event_type: message, postback, follow
		),

		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_webhook_requests_total",
				Help: "Total number of webhook events by event type and status",
			},
			[]string{"event_type", "status"}, // status: success, error
		),

		// Provider metrics
		ProviderRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_provider_requests_total",
				Help: "Total number of content provider requests by provider and status",
			},
			[]string{"provider", "status"}, // provider: news, movie, words, chat
		),

		ProviderDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linebot_provider_duration_seconds",
				Help:    "Content provider request duration in seconds by provider",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider"},
		),

		// Delivery metrics
		DeliveriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_deliveries_total",
				Help: "Total number of outbound message deliveries by kind and status",
			},
			[]string{"kind", "status"}, // kind: reply, push
		),

		// Scheduler metrics
		SchedulerRunsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_scheduler_runs_total",
				Help: "Total number of scheduler slot runs by job and status",
			},
			[]string{"job", "status"}, // job: reminder, subscription
		),

		SchedulerPushesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_scheduler_pushes_total",
				Help: "Total number of scheduled pushes by job and status",
			},
			[]string{"job", "status"},
		),

		SchedulerRunDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linebot_scheduler_run_duration_seconds",
				Help:    "Scheduler slot run duration in seconds by job",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),

		// HTTP metrics
		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: timeout, rate_limit, invalid_signature, etc.
		),

		// Rate limiter metrics
		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, global, cooldown
		),
	}

	return m
}

// RecordWebhook records a webhook event
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordProviderRequest records a content provider request with status
func (m *Metrics) RecordProviderRequest(provider, status string, duration float64) {
	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	m.ProviderDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordDelivery records an outbound reply or push
func (m *Metrics) RecordDelivery(kind, status string) {
	m.DeliveriesTotal.WithLabelValues(kind, status).Inc()
}

// RecordSchedulerRun records a completed scheduler slot run
func (m *Metrics) RecordSchedulerRun(job, status string, duration float64) {
	m.SchedulerRunsTotal.WithLabelValues(job, status).Inc()
	m.SchedulerRunDuration.WithLabelValues(job).Observe(duration)
}

// RecordSchedulerPush records one scheduled push attempt
func (m *Metrics) RecordSchedulerPush(job, status string) {
	m.SchedulerPushesTotal.WithLabelValues(job, status).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}
