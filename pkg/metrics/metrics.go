package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Feed metrics
	FeedFetchesTotal  *prometheus.CounterVec
	FeedFetchDuration *prometheus.HistogramVec
	FeedTicketsShown  prometheus.Gauge

	// Presentation metrics
	RendersTotal         prometheus.Counter
	ChartInstancesActive prometheus.Gauge
	DashboardSubscribers prometheus.Gauge

	// Analysis metrics
	AnalysisRequestsTotal *prometheus.CounterVec
	AnalysisLatency       *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitDecisions *prometheus.CounterVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with a private Prometheus registry
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		FeedFetchesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketfeed_fetches_total",
				Help: "Total number of ticket feed fetches by origin (live or fallback)",
			},
			[]string{"origin"},
		)

		FeedFetchDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketfeed_fetch_duration_seconds",
				Help:    "Time taken to fetch the ticket feed",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"origin"},
		)

		FeedTicketsShown = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticketfeed_tickets_rendered",
				Help: "Number of tickets in the most recent render",
			},
		)

		RendersTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ticketfeed_renders_total",
				Help: "Total number of dashboard render cycles",
			},
		)

		ChartInstancesActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticketfeed_chart_instances_active",
				Help: "Number of live sentiment chart instances",
			},
		)

		DashboardSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticketfeed_dashboard_subscribers",
				Help: "Number of connected dashboard WebSocket clients",
			},
		)

		AnalysisRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketfeed_analysis_requests_total",
				Help: "Total number of on-demand analysis submissions",
			},
			[]string{"variant", "status"},
		)

		AnalysisLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketfeed_analysis_latency_seconds",
				Help:    "Latency of scoring endpoint requests",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"variant"},
		)

		RateLimitDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketfeed_rate_limit_decisions_total",
				Help: "Rate limiter decisions on analysis endpoints by outcome (allowed, limited, blocked)",
			},
			[]string{"path", "outcome"},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketfeed_amqp_published_messages_total",
				Help: "Total number of analysis events published to AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ticketfeed_amqp_connection_status",
				Help: "AMQP connection status (1 = connected, 0 = disconnected)",
			},
		)

		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			FeedFetchesTotal,
			FeedFetchDuration,
			FeedTicketsShown,
			RendersTotal,
			ChartInstancesActive,
			DashboardSubscribers,
			AnalysisRequestsTotal,
			AnalysisLatency,
			RateLimitDecisions,
			AMQPPublishedMessages,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry, or nil before Init
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsEnabled enables or disables metrics collection
func SetMetricsEnabled(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are being recorded
func IsMetricsEnabled() bool {
	return metricsEnabled && registry != nil
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if !IsMetricsEnabled() {
		return
	}
	mux.Handle(defaultMetricsPath, promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	))
}

// RecordFetch records one ticket feed fetch and its duration
func RecordFetch(origin string, duration time.Duration) {
	if IsMetricsEnabled() {
		FeedFetchesTotal.WithLabelValues(origin).Inc()
		FeedFetchDuration.WithLabelValues(origin).Observe(duration.Seconds())
	}
}

// RecordRender records a completed render cycle and its ticket count
func RecordRender(tickets int) {
	if IsMetricsEnabled() {
		RendersTotal.Inc()
		FeedTicketsShown.Set(float64(tickets))
	}
}

// SetChartInstances sets the number of live chart instances
func SetChartInstances(n int) {
	if IsMetricsEnabled() {
		ChartInstancesActive.Set(float64(n))
	}
}

// SetDashboardSubscribers sets the number of connected dashboard clients
func SetDashboardSubscribers(n int) {
	if IsMetricsEnabled() {
		DashboardSubscribers.Set(float64(n))
	}
}

// RecordAnalysis records the outcome of an analysis submission
func RecordAnalysis(variant, status string) {
	if IsMetricsEnabled() {
		AnalysisRequestsTotal.WithLabelValues(variant, status).Inc()
	}
}

// ObserveAnalysisLatency returns a function that records the scoring latency when called
func ObserveAnalysisLatency(variant string) func() {
	if !IsMetricsEnabled() {
		return func() {}
	}

	start := time.Now()
	return func() {
		AnalysisLatency.WithLabelValues(variant).Observe(time.Since(start).Seconds())
	}
}

// RecordRateLimit records one rate limiter decision
func RecordRateLimit(path, outcome string) {
	if IsMetricsEnabled() {
		RateLimitDecisions.WithLabelValues(path, outcome).Inc()
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(queue, status string) {
	if IsMetricsEnabled() {
		AMQPPublishedMessages.WithLabelValues(queue, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if !IsMetricsEnabled() {
		return
	}
	if connected {
		AMQPConnectionStatus.Set(1)
	} else {
		AMQPConnectionStatus.Set(0)
	}
}
