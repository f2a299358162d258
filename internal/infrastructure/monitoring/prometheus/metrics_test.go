package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
)

func TestEngineMetrics_ApplicationPort(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	m.InstancesGenerated(app.TriggerEnsure, 2)
	m.InstancesGenerated(app.TriggerCompletion, 0)
	m.StatusTransition(domain.StatusDone)
	m.OverdueReconciled(4)
	m.ObserveReconcile(120 * time.Millisecond)
	m.RemindersDispatched(3)
	m.DuplicateResolved()
	m.RegenerationRetried(false)
	m.EventPublishFailed(app.EventReminderDue)
	m.TemplateCacheLookup(true)
	m.TemplateCacheLookup(false)
	m.TemplateCacheLookup(false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_instances_generated_total{trigger="ensure"} 2`)
	assert.NotContains(t, out, `trigger="completion"`)
	assert.Contains(t, out, `test_status_transitions_total{to="DONE"} 1`)
	assert.Contains(t, out, "test_overdue_reconciled_total 4")
	assert.Contains(t, out, "test_reconcile_duration_seconds_count 1")
	assert.Contains(t, out, "test_reminders_dispatched_total 3")
	assert.Contains(t, out, "test_duplicates_resolved_total 1")
	assert.Contains(t, out, `test_regeneration_retries_total{result="failure"} 1`)
	assert.Contains(t, out, `test_event_publish_failures_total{event_type="obligation.reminder.due"} 1`)
	assert.Contains(t, out, `test_template_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, out, `test_template_cache_lookups_total{result="miss"} 2`)
}

func TestEngineMetrics_Operational(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	m.ObserveJob("reconcile", time.Second, nil)
	m.ObserveJob("reminders", time.Second, errors.New("x"))
	m.RecordHTTPRequest("GET", "/readyz", 503, 10*time.Millisecond)
	m.SetPoolConns(10, 7, 3)
	m.SetHealth("postgres", true)
	m.SetHealth("redis", false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_job_runs_total{job="reconcile",outcome="success"} 1`)
	assert.Contains(t, out, `test_job_runs_total{job="reminders",outcome="failure"} 1`)
	assert.Contains(t, out, `test_http_requests_total{method="GET",path="/readyz",status_code="503"} 1`)
	assert.Contains(t, out, `test_db_pool_connections{state="acquired"} 3`)
	assert.Contains(t, out, `test_health_check_status{component="postgres"} 1`)
	assert.Contains(t, out, `test_health_check_status{component="redis"} 0`)
}

//Personal.AI order the ending
