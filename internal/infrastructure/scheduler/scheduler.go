// Package scheduler drives the obligation batch jobs from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
)

// JobRunner is the subset of the application jobs the scheduler triggers.
type JobRunner interface {
	ReconcileAll(ctx context.Context) (*app.JobReport, error)
	DispatchReminders(ctx context.Context, asOf time.Time) (*app.JobReport, error)
	RetryRegenerations(ctx context.Context) (*app.JobReport, error)
}

// JobObserver records job outcomes.
type JobObserver interface {
	ObserveJob(job string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(string, time.Duration, error) {}

// Job names.
const (
	JobReconcile    = "reconcile"
	JobReminders    = "reminders"
	JobRegeneration = "regeneration"
)

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithObserver sets the job outcome recorder.
func WithObserver(o JobObserver) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLocation evaluates cron expressions in loc. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// Scheduler runs each job on its cron schedule. A run still in progress
// causes the next tick of the same job to be skipped.
type Scheduler struct {
	cron     *cron.Cron
	jobs     JobRunner
	cfg      config.SchedulerConfig
	observer JobObserver
	logger   logging.Logger
	location *time.Location
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// New registers the three jobs. It fails on an unparsable expression.
func New(jobs JobRunner, cfg config.SchedulerConfig, logger logging.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Scheduler{
		jobs:     jobs,
		cfg:      cfg,
		observer: nopObserver{},
		logger:   logger.Named("scheduler"),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{log: s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, e := range []struct {
		name string
		spec string
		fn   func(context.Context) (*app.JobReport, error)
	}{
		{JobReconcile, cfg.ReconcileCron, jobs.ReconcileAll},
		{JobReminders, cfg.ReminderCron, func(ctx context.Context) (*app.JobReport, error) {
			return jobs.DispatchReminders(ctx, time.Time{})
		}},
		{JobRegeneration, cfg.RegenerationCron, jobs.RetryRegenerations},
	} {
		if e.spec == "" {
			s.logger.Info("job disabled", logging.String("job", e.name))
			continue
		}
		name, fn := e.name, e.fn
		if _, err := s.cron.AddFunc(e.spec, func() { s.RunOnce(s.baseCtx, name, fn) }); err != nil {
			return nil, fmt.Errorf("scheduler: job %s: %w", name, err)
		}
	}
	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", logging.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling, cancels running jobs and waits for them until ctx
// ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes fn under the configured job timeout and records the
// outcome.
func (s *Scheduler) RunOnce(ctx context.Context, name string, fn func(context.Context) (*app.JobReport, error)) {
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	report, err := fn(ctx)
	if report != nil && report.Skipped {
		return
	}
	s.observer.ObserveJob(name, time.Since(start), err)
	if err != nil {
		logging.WithError(s.logger, err).Error("scheduled job failed", logging.String("job", name))
	}
}

// cronLogger adapts the engine logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), logging.Err(err))...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}

//Personal.AI order the ending
