// internal/application/obligation/jobs.go
//
// Batch jobs driven by the worker's scheduler: overdue reconciliation across
// organizations, reminder dispatch, and successor regeneration retries. Each
// run holds a distributed lock so several worker replicas can share one
// schedule. Per-organization work fans out on a bounded errgroup and is paced
// by a token bucket so a large tenant set does not saturate the database.
//
// Dependencies:
//   Depends on: Service, domain/obligation, x/sync/errgroup, x/time/rate
//   Depended by: cmd/worker, interfaces/cli, messaging/kafka (delivery consumer)

package obligation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Lock keys. The reminder key is suffixed with the run date.
const (
	LockKeyReconcile    = "jobs:obligation:reconcile"
	LockKeyReminders    = "jobs:obligation:reminders"
	LockKeyRegeneration = "jobs:obligation:regeneration"
)

// JobConfig tunes the batch jobs.
type JobConfig struct {
	// Concurrency bounds the organizations processed at once.
	Concurrency int
	// RatePerSecond paces organization starts; <= 0 disables pacing.
	RatePerSecond float64
	Burst         int
	LockTTL       time.Duration
	// MarkOnDispatch records reminders as triggered once their event was
	// published instead of waiting for a delivery acknowledgement.
	MarkOnDispatch    bool
	RegenerationBatch int
}

// JobReport summarizes one job run.
type JobReport struct {
	Job           string        `json:"job"`
	Skipped       bool          `json:"skipped,omitempty"`
	Organizations int           `json:"organizations"`
	Affected      int           `json:"affected"`
	Failed        []string      `json:"failed,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// JobOption customizes Jobs.
type JobOption func(*Jobs)

// WithJobLogger sets the logger.
func WithJobLogger(l logging.Logger) JobOption {
	return func(j *Jobs) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithJobPublisher sets the publisher used for reminder events.
func WithJobPublisher(p EventPublisher) JobOption {
	return func(j *Jobs) {
		if p != nil {
			j.publisher = p
		}
	}
}

// WithJobMetrics sets the metrics recorder.
func WithJobMetrics(m Metrics) JobOption {
	return func(j *Jobs) {
		if m != nil {
			j.metrics = m
		}
	}
}

// WithLocker sets the distributed locker.
func WithLocker(l Locker) JobOption {
	return func(j *Jobs) {
		if l != nil {
			j.locker = l
		}
	}
}

// Jobs runs the engine's periodic work.
type Jobs struct {
	svc       Service
	repo      domain.Repository
	publisher EventPublisher
	metrics   Metrics
	locker    Locker
	logger    logging.Logger
	limiter   *rate.Limiter
	cfg       JobConfig
}

// NewJobs builds the job runner on top of svc and repo.
func NewJobs(svc Service, repo domain.Repository, cfg JobConfig, opts ...JobOption) *Jobs {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.RegenerationBatch <= 0 {
		cfg.RegenerationBatch = 100
	}
	j := &Jobs{
		svc:       svc,
		repo:      repo,
		publisher: NewNopPublisher(),
		metrics:   NewNopMetrics(),
		locker:    NewNopLocker(),
		logger:    logging.NewNopLogger(),
		limiter:   rate.NewLimiter(rate.Inf, 0),
		cfg:       cfg,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		j.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.Named("jobs")
	return j
}

// ReconcileAll marks overdue instances of every organization that has any.
func (j *Jobs) ReconcileAll(ctx context.Context) (*JobReport, error) {
	return j.run(ctx, "reconcile", LockKeyReconcile, func(ctx context.Context, report *JobReport) error {
		orgs, err := j.repo.ListOrganizationsWithStaleInstances(ctx, j.svc.Today())
		if err != nil {
			return err
		}
		return j.forEachOrg(ctx, orgs, report, func(ctx context.Context, orgID string) (int, error) {
			return j.svc.ReconcileOverdue(ctx, orgID)
		})
	})
}

// DispatchReminders publishes a reminder.due event for every reminder due on
// asOf (today when zero).
func (j *Jobs) DispatchReminders(ctx context.Context, asOf time.Time) (*JobReport, error) {
	if asOf.IsZero() {
		asOf = j.svc.Today()
	}
	asOf = common.DateOf(asOf)
	key := LockKeyReminders + ":" + common.FormatDate(asOf)
	return j.run(ctx, "reminders", key, func(ctx context.Context, report *JobReport) error {
		orgs, err := j.repo.ListOrganizationsWithDueReminders(ctx, asOf)
		if err != nil {
			return err
		}
		return j.forEachOrg(ctx, orgs, report, func(ctx context.Context, orgID string) (int, error) {
			return j.dispatchOrg(ctx, orgID, asOf)
		})
	})
}

// RetryRegenerations creates successors still owed by flagged instances.
func (j *Jobs) RetryRegenerations(ctx context.Context) (*JobReport, error) {
	return j.run(ctx, "regeneration", LockKeyRegeneration, func(ctx context.Context, report *JobReport) error {
		res, err := j.svc.RetryPendingRegenerations(ctx, j.cfg.RegenerationBatch)
		if res != nil {
			report.Affected = res.Recovered
			report.Failed = res.Failed
		}
		return err
	})
}

// HandleReminderDelivered records a delivery acknowledgement. Unknown
// reminders are logged and dropped so the consumer does not retry them.
func (j *Jobs) HandleReminderDelivered(ctx context.Context, d ReminderDelivery) error {
	if d.ReminderID == "" {
		return errors.Validation("reminder id is required")
	}
	_, changed, err := j.svc.MarkReminderTriggered(ctx, d.ReminderID, d.DeliveredAt)
	if err != nil {
		if errors.IsNotFound(err) {
			j.logger.Warn("delivery for unknown reminder dropped",
				logging.String(logging.KeyReminderID, d.ReminderID))
			return nil
		}
		return err
	}
	if !changed {
		j.logger.Debug("reminder already triggered",
			logging.String(logging.KeyReminderID, d.ReminderID))
	}
	return nil
}

func (j *Jobs) dispatchOrg(ctx context.Context, orgID string, asOf time.Time) (int, error) {
	reminders, err := j.svc.DueReminders(ctx, orgID, asOf)
	if err != nil {
		return 0, err
	}
	if len(reminders) == 0 {
		return 0, nil
	}

	instances := make(map[string]*domain.Instance)
	events := make([]Event, 0, len(reminders))
	for _, r := range reminders {
		inst, ok := instances[r.InstanceID]
		if !ok {
			inst, err = j.svc.GetInstance(ctx, r.InstanceID)
			if err != nil {
				return 0, err
			}
			instances[r.InstanceID] = inst
		}
		events = append(events, Event{
			Type:           EventReminderDue,
			OrganizationID: orgID,
			Key:            r.ID,
			OccurredAt:     time.Now().UTC(),
			Payload: ReminderDuePayload{
				ReminderID:  r.ID,
				InstanceID:  inst.ID,
				SubjectType: inst.SubjectType,
				SubjectID:   inst.SubjectID,
				Title:       inst.Title,
				DueDate:     common.FormatDate(inst.DueDate),
				DaysBefore:  r.DaysBefore,
				Message:     r.Message,
				Urgency:     j.svc.Classify(inst),
			},
		})
	}

	if err := j.publisher.Publish(ctx, events...); err != nil {
		j.metrics.EventPublishFailed(EventReminderDue)
		return 0, errors.Wrap(err, errors.CodeMessageQueueError, "failed to publish due reminders").
			WithDetailf("organization_id=%s", orgID)
	}
	j.metrics.RemindersDispatched(len(events))

	if j.cfg.MarkOnDispatch {
		for _, r := range reminders {
			if _, _, err := j.svc.MarkReminderTriggered(ctx, r.ID, time.Time{}); err != nil {
				return len(events), err
			}
		}
	}
	return len(events), nil
}

// run acquires key, executes fn, and logs the outcome. A lock held elsewhere
// yields a skipped report and no error.
func (j *Jobs) run(ctx context.Context, name, key string, fn func(context.Context, *JobReport) error) (*JobReport, error) {
	start := time.Now()
	report := &JobReport{Job: name}
	log := j.logger.With(logging.String("job", name))

	lock, ok, err := j.locker.TryLock(ctx, key, j.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		report.Skipped = true
		log.Debug("job lock held elsewhere, skipping")
		return report, nil
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logging.WithError(log, err).Warn("job lock release failed")
		}
	}()

	err = fn(ctx, report)
	report.Duration = time.Since(start)
	if err != nil {
		logging.WithError(log, err).Error("job failed",
			logging.Int("organizations", report.Organizations),
			logging.Int("affected", report.Affected))
		return report, err
	}
	fields := []logging.Field{
		logging.Int("organizations", report.Organizations),
		logging.Int("affected", report.Affected),
		logging.Int("failed", len(report.Failed)),
		logging.Duration("duration", report.Duration),
	}
	if report.Affected > 0 || len(report.Failed) > 0 {
		log.Info("job finished", fields...)
	} else {
		log.Debug("job finished", fields...)
	}
	return report, nil
}

// forEachOrg fans fn out over orgs. A failing organization is recorded and
// does not stop the others; only context cancellation aborts the run.
func (j *Jobs) forEachOrg(ctx context.Context, orgs []string, report *JobReport, fn func(context.Context, string) (int, error)) error {
	report.Organizations = len(orgs)
	if len(orgs) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for _, orgID := range orgs {
		orgID := orgID
		if err := j.limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			n, err := fn(gctx, orgID)
			mu.Lock()
			defer mu.Unlock()
			report.Affected += n
			if err != nil {
				report.Failed = append(report.Failed, orgID)
				logging.WithError(j.logger, err).Warn("organization job failed",
					logging.String(logging.KeyOrganizationID, orgID))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

//Personal.AI order the ending
