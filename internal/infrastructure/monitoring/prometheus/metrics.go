package prometheus

import (
	"strconv"
	"time"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
)

// Default buckets.
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	DefaultJobDurationBuckets  = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900}
)

// EngineMetrics holds every metric the obligation engine records. It
// implements the application Metrics port.
type EngineMetrics struct {
	// Engine
	InstancesGeneratedTotal  CounterVec
	StatusTransitionsTotal   CounterVec
	OverdueReconciledTotal   CounterVec
	ReconcileDuration        HistogramVec
	RemindersDispatchedTotal CounterVec
	DuplicatesResolvedTotal  CounterVec
	RegenerationRetriesTotal CounterVec
	EventPublishFailures     CounterVec
	TemplateCacheLookups     CounterVec

	// Jobs
	JobRunsTotal CounterVec
	JobDuration  HistogramVec

	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Infrastructure
	DBPoolConns       GaugeVec
	HealthCheckStatus GaugeVec
}

var _ app.Metrics = (*EngineMetrics)(nil)

// NewEngineMetrics registers the engine metric families on collector.
func NewEngineMetrics(collector MetricsCollector) *EngineMetrics {
	m := &EngineMetrics{}

	m.InstancesGeneratedTotal = collector.RegisterCounter("instances_generated_total", "Deadline instances created", "trigger")
	m.StatusTransitionsTotal = collector.RegisterCounter("status_transitions_total", "Instance status transitions", "to")
	m.OverdueReconciledTotal = collector.RegisterCounter("overdue_reconciled_total", "Instances flipped to OVERDUE by reconcile")
	m.ReconcileDuration = collector.RegisterHistogram("reconcile_duration_seconds", "Overdue reconcile duration", DefaultJobDurationBuckets)
	m.RemindersDispatchedTotal = collector.RegisterCounter("reminders_dispatched_total", "Reminder due events published")
	m.DuplicatesResolvedTotal = collector.RegisterCounter("duplicates_resolved_total", "Concurrent generations resolved to the existing instance")
	m.RegenerationRetriesTotal = collector.RegisterCounter("regeneration_retries_total", "Pending successor regeneration retries", "result")
	m.EventPublishFailures = collector.RegisterCounter("event_publish_failures_total", "Domain events that failed to publish", "event_type")
	m.TemplateCacheLookups = collector.RegisterCounter("template_cache_lookups_total", "Template cache lookups", "result")

	m.JobRunsTotal = collector.RegisterCounter("job_runs_total", "Scheduled job runs", "job", "outcome")
	m.JobDuration = collector.RegisterHistogram("job_duration_seconds", "Scheduled job duration", DefaultJobDurationBuckets, "job")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.DBPoolConns = collector.RegisterGauge("db_pool_connections", "Database pool connections", "state")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

func (m *EngineMetrics) InstancesGenerated(trigger string, n int) {
	if n > 0 {
		m.InstancesGeneratedTotal.WithLabelValues(trigger).Add(float64(n))
	}
}

func (m *EngineMetrics) StatusTransition(to domain.Status) {
	m.StatusTransitionsTotal.WithLabelValues(string(to)).Inc()
}

func (m *EngineMetrics) OverdueReconciled(n int) {
	m.OverdueReconciledTotal.WithLabelValues().Add(float64(n))
}

func (m *EngineMetrics) ObserveReconcile(d time.Duration) {
	m.ReconcileDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *EngineMetrics) RemindersDispatched(n int) {
	m.RemindersDispatchedTotal.WithLabelValues().Add(float64(n))
}

func (m *EngineMetrics) DuplicateResolved() {
	m.DuplicatesResolvedTotal.WithLabelValues().Inc()
}

func (m *EngineMetrics) RegenerationRetried(success bool) {
	m.RegenerationRetriesTotal.WithLabelValues(outcome(success)).Inc()
}

func (m *EngineMetrics) EventPublishFailed(t app.EventType) {
	m.EventPublishFailures.WithLabelValues(string(t)).Inc()
}

func (m *EngineMetrics) TemplateCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TemplateCacheLookups.WithLabelValues(result).Inc()
}

// ObserveJob records one scheduled job run.
func (m *EngineMetrics) ObserveJob(job string, d time.Duration, err error) {
	m.JobRunsTotal.WithLabelValues(job, outcome(err == nil)).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordHTTPRequest records one served request.
func (m *EngineMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetPoolConns publishes database pool occupancy.
func (m *EngineMetrics) SetPoolConns(total, idle, acquired int32) {
	m.DBPoolConns.WithLabelValues("total").Set(float64(total))
	m.DBPoolConns.WithLabelValues("idle").Set(float64(idle))
	m.DBPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

// SetHealth publishes the result of a component health check.
func (m *EngineMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

//Personal.AI order the ending
