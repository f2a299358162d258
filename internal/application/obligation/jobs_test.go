package obligation_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

type stubLock struct{ l *stubLocker }

func (s stubLock) Unlock(context.Context) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.unlocked++
	return nil
}

type stubLocker struct {
	mu       sync.Mutex
	deny     bool
	err      error
	keys     []string
	unlocked int
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (app.Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, false, l.err
	}
	if l.deny {
		return nil, false, nil
	}
	return stubLock{l: l}, true, nil
}

func newJobs(f *fixture, cfg app.JobConfig, locker app.Locker) *app.Jobs {
	opts := []app.JobOption{
		app.WithJobPublisher(f.pub),
		app.WithJobMetrics(f.metrics),
		app.WithJobLogger(f.log),
	}
	if locker != nil {
		opts = append(opts, app.WithLocker(locker))
	}
	return app.NewJobs(f.svc, f.store, cfg, opts...)
}

func TestJobs_ReconcileAll(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	seedListing(f)
	locker := &stubLocker{}
	jobs := newJobs(f, app.JobConfig{Concurrency: 2, RatePerSecond: 100, Burst: 2}, locker)

	report, err := jobs.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Organizations)
	assert.Equal(t, 2, report.Affected)
	assert.Empty(t, report.Failed)

	for _, id := range []string{"i1", "x1"} {
		inst, err := f.svc.GetInstance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOverdue, inst.Status, id)
	}
	assert.Equal(t, []string{app.LockKeyReconcile}, locker.keys)
	assert.Equal(t, 1, locker.unlocked)

	report, err = jobs.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Organizations)
}

func TestJobs_ReconcileAll_PartialFailure(t *testing.T) {
	f := newFixture(t, defaultConfig())
	seedListing(f)
	f.store.SetFault("MarkOverdue", stderrors.New("db down"))
	jobs := newJobs(f, app.JobConfig{}, nil)

	report, err := jobs.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"org-1", "org-2"}, report.Failed)
	assert.True(t, f.log.HasMessage("warn", "organization job failed"))
}

func TestJobs_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t, defaultConfig())
	seedListing(f)
	jobs := newJobs(f, app.JobConfig{}, &stubLocker{deny: true})

	report, err := jobs.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	inst, err := f.svc.GetInstance(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, inst.Status)
}

func TestJobs_LockErrorFailsRun(t *testing.T) {
	f := newFixture(t, defaultConfig())
	jobs := newJobs(f, app.JobConfig{}, &stubLocker{err: stderrors.New("redis down")})

	_, err := jobs.RetryRegenerations(context.Background())
	assert.Error(t, err)
}

func TestJobs_DispatchReminders(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.saveTemplate(t, globalTemplate("g-1", "Safety training"))
	_, err := f.svc.EnsureInstancesForSubject(ctx, personRequest("org-1", "p-1", datePtr(2024, 5, 18)))
	require.NoError(t, err)
	locker := &stubLocker{}
	jobs := newJobs(f, app.JobConfig{}, locker)

	report, err := jobs.DispatchReminders(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Organizations)
	assert.Equal(t, 3, report.Affected)
	assert.Equal(t, []string{app.LockKeyReminders + ":2024-06-10"}, locker.keys)

	events := f.pub.ofType(app.EventReminderDue)
	require.Len(t, events, 3)
	payload, ok := events[2].Payload.(app.ReminderDuePayload)
	require.True(t, ok)
	assert.Equal(t, 7, payload.DaysBefore)
	assert.Equal(t, "2024-06-17", payload.DueDate)
	assert.Equal(t, domain.UrgencyUrgent, payload.Urgency)
	assert.Equal(t, "Safety training", payload.Title)
	assert.Equal(t, payload.ReminderID, events[2].Key)
	assert.Equal(t, 3, f.metrics.dispatched)

	// Without acknowledgement the same reminders are offered again.
	report, err = jobs.DispatchReminders(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Affected)
}

func TestJobs_DispatchReminders_MarkOnDispatch(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.saveTemplate(t, globalTemplate("g-1", "Safety training"))
	_, err := f.svc.EnsureInstancesForSubject(ctx, personRequest("org-1", "p-1", datePtr(2024, 5, 18)))
	require.NoError(t, err)
	jobs := newJobs(f, app.JobConfig{MarkOnDispatch: true}, nil)

	report, err := jobs.DispatchReminders(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Affected)

	report, err = jobs.DispatchReminders(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, report.Organizations)
	assert.Len(t, f.pub.ofType(app.EventReminderDue), 3)
}

func TestJobs_DispatchReminders_PublishFailure(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.saveTemplate(t, globalTemplate("g-1", "Safety training"))
	_, err := f.svc.EnsureInstancesForSubject(ctx, personRequest("org-1", "p-1", datePtr(2024, 5, 18)))
	require.NoError(t, err)
	f.pub.err = stderrors.New("broker down")
	jobs := newJobs(f, app.JobConfig{MarkOnDispatch: true}, nil)

	report, err := jobs.DispatchReminders(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, report.Failed)
	assert.Zero(t, report.Affected)

	due, err := f.svc.DueReminders(ctx, "org-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestJobs_HandleReminderDelivered(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.saveTemplate(t, globalTemplate("g-1", "Safety training"))
	_, err := f.svc.EnsureInstancesForSubject(ctx, personRequest("org-1", "p-1", datePtr(2024, 5, 18)))
	require.NoError(t, err)
	due, err := f.svc.DueReminders(ctx, "org-1", time.Time{})
	require.NoError(t, err)
	jobs := newJobs(f, app.JobConfig{}, nil)

	delivered := fixedNow.Add(-time.Minute)
	require.NoError(t, jobs.HandleReminderDelivered(ctx, app.ReminderDelivery{ReminderID: due[0].ID, DeliveredAt: delivered}))
	require.NoError(t, jobs.HandleReminderDelivered(ctx, app.ReminderDelivery{ReminderID: due[0].ID, DeliveredAt: fixedNow}))

	r, err := f.store.GetReminder(ctx, due[0].ID)
	require.NoError(t, err)
	require.NotNil(t, r.TriggeredAt)
	assert.True(t, r.TriggeredAt.Equal(delivered))

	assert.NoError(t, jobs.HandleReminderDelivered(ctx, app.ReminderDelivery{ReminderID: "ghost"}))
	assert.True(t, f.log.HasMessage("warn", "delivery for unknown reminder dropped"))

	err = jobs.HandleReminderDelivered(ctx, app.ReminderDelivery{})
	assert.True(t, errors.IsValidation(err))
}

func TestJobs_RetryRegenerations(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.store.PutInstance(flagged("p1", domain.UnitMonth))
	f.store.PutInstance(flagged("p2", ""))
	jobs := newJobs(f, app.JobConfig{RegenerationBatch: 10}, nil)

	report, err := jobs.RetryRegenerations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "regeneration", report.Job)
	assert.Equal(t, 1, report.Affected)
	assert.Equal(t, []string{"p2"}, report.Failed)
}
