package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
)

type fakeJobs struct {
	mu        sync.Mutex
	calls     map[string]int
	err       error
	skip      bool
	deadlines []bool
}

func newFakeJobs() *fakeJobs { return &fakeJobs{calls: map[string]int{}} }

func (f *fakeJobs) record(ctx context.Context, name string) (*app.JobReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
	return &app.JobReport{Job: name, Skipped: f.skip}, f.err
}

func (f *fakeJobs) ReconcileAll(ctx context.Context) (*app.JobReport, error) {
	return f.record(ctx, JobReconcile)
}

func (f *fakeJobs) DispatchReminders(ctx context.Context, asOf time.Time) (*app.JobReport, error) {
	if !asOf.IsZero() {
		return nil, errors.New("scheduler must let the job pick today")
	}
	return f.record(ctx, JobReminders)
}

func (f *fakeJobs) RetryRegenerations(ctx context.Context) (*app.JobReport, error) {
	return f.record(ctx, JobRegeneration)
}

func (f *fakeJobs) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) ObserveJob(job string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = map[string][]error{}
	}
	o.runs[job] = append(o.runs[job], err)
}

func TestNew_RejectsBadExpression(t *testing.T) {
	_, err := New(newFakeJobs(), config.SchedulerConfig{ReconcileCron: "not a cron"}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestNew_SkipsEmptyExpressions(t *testing.T) {
	s, err := New(newFakeJobs(), config.SchedulerConfig{ReconcileCron: "@hourly"}, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_FiresJobs(t *testing.T) {
	jobs := newFakeJobs()
	obs := &recordingObserver{}
	cfg := config.SchedulerConfig{
		ReconcileCron:    "@every 1s",
		ReminderCron:     "@every 1s",
		RegenerationCron: "@every 1s",
		JobTimeout:       time.Minute,
	}
	s, err := New(jobs, cfg, logging.NewNopLogger(), WithObserver(obs))
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool {
		return jobs.count(JobReconcile) > 0 && jobs.count(JobReminders) > 0 && jobs.count(JobRegeneration) > 0
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.NotEmpty(t, obs.runs[JobReminders])
	assert.NoError(t, obs.runs[JobReminders][0])
}

func TestRunOnce_AppliesTimeoutAndObservesFailure(t *testing.T) {
	jobs := newFakeJobs()
	jobs.err = errors.New("db down")
	obs := &recordingObserver{}
	s, err := New(jobs, config.SchedulerConfig{JobTimeout: time.Second}, nil, WithObserver(obs))
	require.NoError(t, err)

	s.RunOnce(context.Background(), JobReconcile, jobs.ReconcileAll)

	assert.Equal(t, []bool{true}, jobs.deadlines)
	require.Len(t, obs.runs[JobReconcile], 1)
	assert.EqualError(t, obs.runs[JobReconcile][0], "db down")
}

func TestRunOnce_SkippedRunIsNotObserved(t *testing.T) {
	jobs := newFakeJobs()
	jobs.skip = true
	obs := &recordingObserver{}
	s, err := New(jobs, config.SchedulerConfig{}, nil, WithObserver(obs))
	require.NoError(t, err)

	s.RunOnce(context.Background(), JobRegeneration, jobs.RetryRegenerations)
	assert.Equal(t, 1, jobs.count(JobRegeneration))
	assert.Empty(t, obs.runs)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 3, "next", "soon", "dangling"})
	require.Len(t, fields, 2)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, 3, fields[0].Value)
}

//Personal.AI order the ending
