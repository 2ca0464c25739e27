package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for postflow
type Metrics struct {
	// Job counters
	JobsCompletedTotal *prometheus.CounterVec
	JobsFailedTotal    *prometheus.CounterVec
	JobsRetriedTotal   *prometheus.CounterVec
	JobsCancelledTotal prometheus.Counter

	// Campaign counters
	CampaignsStartedTotal   prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter

	// Queue gauges
	QueueReady    prometheus.Gauge
	QueueDue      prometheus.Gauge
	QueueInFlight prometheus.Gauge
	QueueReaped   prometheus.Counter

	// Account health
	AccountsDowngradedTotal *prometheus.CounterVec

	// Task execution
	TaskDurationSeconds *prometheus.HistogramVec
	TasksDeferredTotal  *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postflow_jobs_completed_total",
				Help: "Total number of successfully completed upload jobs",
			},
			[]string{"campaign_id"},
		),
		JobsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postflow_jobs_failed_total",
				Help: "Total number of permanently failed upload jobs",
			},
			[]string{"campaign_id", "failure_kind"},
		),
		JobsRetriedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postflow_jobs_retried_total",
				Help: "Total number of jobs re-enqueued after a transient failure",
			},
			[]string{"campaign_id"},
		),
		JobsCancelledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postflow_jobs_cancelled_total",
				Help: "Total number of jobs cancelled with their campaign",
			},
		),
		CampaignsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postflow_campaigns_started_total",
				Help: "Total number of campaigns dispatched",
			},
		),
		CampaignsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postflow_campaigns_completed_total",
				Help: "Total number of campaigns whose jobs all finished",
			},
		),
		QueueReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postflow_queue_ready",
				Help: "Number of messages waiting in the ready index",
			},
		),
		QueueDue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postflow_queue_due",
				Help: "Number of ready messages whose delay has elapsed",
			},
		),
		QueueInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postflow_queue_in_flight",
				Help: "Number of claimed messages awaiting ack",
			},
		),
		QueueReaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postflow_queue_reaped_total",
				Help: "Total number of expired in-flight messages redelivered",
			},
		),
		AccountsDowngradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postflow_accounts_downgraded_total",
				Help: "Total number of account status downgrades from job outcomes",
			},
			[]string{"to_status"},
		),
		TaskDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postflow_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"task_class"},
		),
		TasksDeferredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postflow_tasks_deferred_total",
				Help: "Total number of claimed messages postponed without running",
			},
			[]string{"reason"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postflow_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postflow_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postflow_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postflow_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.JobsCompletedTotal,
		m.JobsFailedTotal,
		m.JobsRetriedTotal,
		m.JobsCancelledTotal,
		m.CampaignsStartedTotal,
		m.CampaignsCompletedTotal,
		m.QueueReady,
		m.QueueDue,
		m.QueueInFlight,
		m.QueueReaped,
		m.AccountsDowngradedTotal,
		m.TaskDurationSeconds,
		m.TasksDeferredTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, nil when metrics are disabled
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncJobCompleted increments the completed job counter
func IncJobCompleted(campaignID string) {
	if m := Global(); m != nil {
		m.JobsCompletedTotal.WithLabelValues(campaignID).Inc()
	}
}

// IncJobFailed increments the failed job counter
func IncJobFailed(campaignID, failureKind string) {
	if m := Global(); m != nil {
		m.JobsFailedTotal.WithLabelValues(campaignID, failureKind).Inc()
	}
}

// IncJobRetried increments the retried job counter
func IncJobRetried(campaignID string) {
	if m := Global(); m != nil {
		m.JobsRetriedTotal.WithLabelValues(campaignID).Inc()
	}
}

// AddJobsCancelled adds to the cancelled job counter
func AddJobsCancelled(n int) {
	if m := Global(); m != nil {
		m.JobsCancelledTotal.Add(float64(n))
	}
}

// IncCampaignStarted increments the started campaign counter
func IncCampaignStarted() {
	if m := Global(); m != nil {
		m.CampaignsStartedTotal.Inc()
	}
}

// IncCampaignCompleted increments the completed campaign counter
func IncCampaignCompleted() {
	if m := Global(); m != nil {
		m.CampaignsCompletedTotal.Inc()
	}
}

// AddReaped adds to the redelivered message counter
func AddReaped(n int) {
	if m := Global(); m != nil {
		m.QueueReaped.Add(float64(n))
	}
}

// IncAccountDowngraded increments the account downgrade counter
func IncAccountDowngraded(toStatus string) {
	if m := Global(); m != nil {
		m.AccountsDowngradedTotal.WithLabelValues(toStatus).Inc()
	}
}

// ObserveTaskDuration records one task execution duration
func ObserveTaskDuration(taskClass string, seconds float64) {
	if m := Global(); m != nil {
		m.TaskDurationSeconds.WithLabelValues(taskClass).Observe(seconds)
	}
}

// IncTaskDeferred increments the deferred task counter
func IncTaskDeferred(reason string) {
	if m := Global(); m != nil {
		m.TasksDeferredTotal.WithLabelValues(reason).Inc()
	}
}
