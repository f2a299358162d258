// internal/application/obligation/service.go
//
// Application service for compliance obligations. It is the contract surface
// the CRUD and notification collaborators call: template resolution, instance
// generation per subject, completion and cancellation, listings, and reminder
// queries. Domain events are published after each committing operation.
//
// Dependencies:
//   Depends on: domain/obligation, monitoring/logging, pkg/errors, pkg/types/common
//   Depended by: interfaces/cli, cmd/worker (jobs), messaging/kafka (delivery acks)

package obligation

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// EnsureRequest asks for the current instances of every applicable template
// for one subject.
type EnsureRequest struct {
	OrganizationID string                `json:"organization_id"`
	SubjectType    domain.SubjectType    `json:"subject_type"`
	SubjectID      string                `json:"subject_id"`
	StructureID    string                `json:"structure_id,omitempty"`
	Anchors        domain.SubjectAnchors `json:"anchors"`
	// AsOf selects the template set; zero means today.
	AsOf time.Time `json:"as_of,omitempty"`
}

// ListFilter narrows ListInstances.
type ListFilter struct {
	Status      domain.Status `json:"status,omitempty"`
	SubjectID   string        `json:"subject_id,omitempty"`
	StructureID string        `json:"structure_id,omitempty"`
	TemplateID  string        `json:"template_id,omitempty"`
	// Upcoming selects open instances due today or later, bounded by
	// UpcomingDays when positive.
	Upcoming     bool `json:"upcoming,omitempty"`
	UpcomingDays int  `json:"upcoming_days,omitempty"`
	// Overdue selects OVERDUE instances and PENDING ones already past due.
	Overdue bool `json:"overdue,omitempty"`
}

// AdHocInstanceRequest creates an instance without a template.
type AdHocInstanceRequest struct {
	OrganizationID     string                `json:"organization_id"`
	SubjectType        domain.SubjectType    `json:"subject_type"`
	SubjectID          string                `json:"subject_id"`
	StructureID        string                `json:"structure_id,omitempty"`
	Title              string                `json:"title"`
	DueDate            time.Time             `json:"due_date"`
	Notes              string                `json:"notes,omitempty"`
	RecurrenceUnit     domain.RecurrenceUnit `json:"recurrence_unit,omitempty"`
	RecurrenceEvery    int                   `json:"recurrence_every,omitempty"`
	ReminderDaysBefore []int                 `json:"reminder_days_before,omitempty"`
	ReminderMessage    string                `json:"reminder_message,omitempty"`
}

// RegenerationReport summarizes a RetryPendingRegenerations run.
type RegenerationReport struct {
	Attempted int      `json:"attempted"`
	Recovered int      `json:"recovered"`
	Failed    []string `json:"failed,omitempty"`
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

// Service is the obligation engine's contract surface.
type Service interface {
	// GetApplicableTemplates returns the effective template set for scope.
	GetApplicableTemplates(ctx context.Context, orgID string, scope domain.SubjectType, asOf time.Time) ([]*domain.Template, error)

	// EnsureInstancesForSubject makes sure every applicable template has a
	// current instance for the subject and returns them. Re-running it is
	// safe and creates nothing new.
	EnsureInstancesForSubject(ctx context.Context, req *EnsureRequest) ([]*domain.Instance, error)

	// MarkDone completes an instance; recurring instances get a successor.
	MarkDone(ctx context.Context, instanceID string, completedAt time.Time) (*domain.CompletionResult, error)

	// Cancel closes an instance without a successor.
	Cancel(ctx context.Context, instanceID string) (*domain.Instance, error)

	// ListInstances returns one page of an organization's instances.
	ListInstances(ctx context.Context, orgID string, filter ListFilter, page, limit int) (*common.PaginatedResult[*domain.Instance], error)

	// DueReminders returns untriggered reminders of open instances due on asOf.
	DueReminders(ctx context.Context, orgID string, asOf time.Time) ([]*domain.Reminder, error)

	// MarkReminderTriggered records delivery. Repeated calls return the
	// reminder unchanged and report false.
	MarkReminderTriggered(ctx context.Context, reminderID string, at time.Time) (*domain.Reminder, bool, error)

	// SaveTemplate creates or edits a template.
	SaveTemplate(ctx context.Context, t *domain.Template) (*domain.Template, error)

	// GetTemplate loads one template.
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)

	// CreateAdHocInstance creates a template-less instance.
	CreateAdHocInstance(ctx context.Context, req *AdHocInstanceRequest) (*domain.Instance, error)

	// GetInstance loads one instance.
	GetInstance(ctx context.Context, id string) (*domain.Instance, error)

	// ReconcileOverdue persists OVERDUE for past-due PENDING instances.
	ReconcileOverdue(ctx context.Context, orgID string) (int, error)

	// RetryPendingRegenerations creates missing successors of flagged
	// instances, at most limit per call.
	RetryPendingRegenerations(ctx context.Context, limit int) (*RegenerationReport, error)

	// Classify buckets an instance's due date for display.
	Classify(inst *domain.Instance) domain.Urgency

	// Today is the current calendar date in the reporting time zone.
	Today() time.Time
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds engine tunables.
type Config struct {
	Location            *time.Location
	DefaultReminderDays []int
	UrgentDays          int
	SoonDays            int
	ReconcileOnRead     bool
	DefaultPageSize     int
	MaxPageSize         int
}

// Option customizes the service.
type Option func(*serviceImpl)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *serviceImpl) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTemplateCache enables resolved-template caching.
func WithTemplateCache(c domain.TemplateCache) Option {
	return func(s *serviceImpl) { s.cache = c }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *serviceImpl) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type serviceImpl struct {
	repo       domain.Repository
	resolver   *domain.TemplateResolver
	generator  *domain.InstanceGenerator
	lifecycle  *domain.LifecycleManager
	planner    *domain.ReminderPlanner
	classifier domain.UrgencyClassifier

	cache     domain.TemplateCache
	publisher EventPublisher
	metrics   Metrics
	logger    logging.Logger
	now       func() time.Time
	cfg       Config
}

// NewService wires the domain components into a Service.
func NewService(repo domain.Repository, orgs domain.OrganizationDirectory, cfg Config, opts ...Option) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	s := &serviceImpl{
		repo:       repo,
		classifier: domain.NewUrgencyClassifier(cfg.UrgentDays, cfg.SoonDays),
		publisher:  NewNopPublisher(),
		metrics:    NewNopMetrics(),
		logger:     logging.NewNopLogger(),
		now:        time.Now,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("obligation")

	var cache domain.TemplateCache
	if s.cache != nil {
		cache = instrumentedCache{inner: s.cache, metrics: s.metrics}
	}
	domainOpts := []domain.Option{
		domain.WithClock(s.now),
		domain.WithLocation(cfg.Location),
		domain.WithLogger(s.logger),
		domain.WithDuplicateHook(s.metrics.DuplicateResolved),
	}
	s.planner = domain.NewReminderPlanner(cfg.DefaultReminderDays)
	s.resolver = domain.NewTemplateResolver(repo, orgs, cache, domainOpts...)
	s.generator = domain.NewInstanceGenerator(s.planner, domainOpts...)
	s.lifecycle = domain.NewLifecycleManager(repo, s.generator, domainOpts...)
	return s
}

func (s *serviceImpl) Today() time.Time {
	return common.Today(s.now(), s.cfg.Location)
}

func (s *serviceImpl) Classify(inst *domain.Instance) domain.Urgency {
	return s.classifier.Classify(inst.DueDate, s.Today())
}

// GetApplicableTemplates returns the effective template set for scope.
func (s *serviceImpl) GetApplicableTemplates(ctx context.Context, orgID string, scope domain.SubjectType, asOf time.Time) ([]*domain.Template, error) {
	if asOf.IsZero() {
		asOf = s.Today()
	}
	return s.resolver.Resolve(ctx, orgID, scope, asOf)
}

// EnsureInstancesForSubject skips templates the subject's anchors cannot
// satisfy and reports them together in one validation error next to the
// instances that were ensured. Any other failure stops the loop.
func (s *serviceImpl) EnsureInstancesForSubject(ctx context.Context, req *EnsureRequest) ([]*domain.Instance, error) {
	if req == nil {
		return nil, errors.Validation("ensure request must not be nil")
	}
	subject := domain.Subject{
		OrganizationID: req.OrganizationID,
		Type:           req.SubjectType,
		ID:             strings.TrimSpace(req.SubjectID),
		StructureID:    req.StructureID,
	}
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.Today()
	}

	templates, err := s.resolver.Resolve(ctx, subject.OrganizationID, subject.Type, asOf)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		logging.String(logging.KeyOrganizationID, subject.OrganizationID),
		logging.String(logging.KeySubjectID, subject.ID))

	out := make([]*domain.Instance, 0, len(templates))
	var (
		events   []Event
		firstErr error
		skipped  []string
	)
	for _, tmpl := range templates {
		inst, created, err := s.generator.EnsureInstance(ctx, s.repo, tmpl, subject, req.Anchors)
		if err != nil {
			logging.WithError(log, err).Warn("instance generation failed",
				logging.String(logging.KeyTemplateID, tmpl.ID))
			if !errors.IsValidation(err) {
				s.publish(ctx, events...)
				return out, errors.Wrap(err, errors.CodeUnknown, "failed to ensure instance").
					WithDetailf("template_id=%s subject=%s", tmpl.ID, subject)
			}
			if firstErr == nil {
				firstErr = err
			}
			skipped = append(skipped, tmpl.ID)
			continue
		}
		if created {
			trigger := TriggerEnsure
			if inst.CycleIndex > 0 {
				trigger = TriggerRegeneration
			}
			s.metrics.InstancesGenerated(trigger, 1)
			events = append(events, s.instanceEvent(EventInstanceCreated, inst))
		}
		out = append(out, inst)
	}

	if len(events) > 0 {
		log.Info("instances ensured",
			logging.Int("templates", len(templates)),
			logging.Int("created", len(events)))
	}
	s.publish(ctx, events...)
	if firstErr != nil {
		return out, errors.Wrap(firstErr, errors.CodeUnknown,
			fmt.Sprintf("%d of %d templates could not be instantiated", len(skipped), len(templates))).
			WithDetailf("template_ids=%s subject=%s", strings.Join(skipped, ","), subject)
	}
	return out, nil
}

// MarkDone completes an instance; recurring instances get a successor.
func (s *serviceImpl) MarkDone(ctx context.Context, instanceID string, completedAt time.Time) (*domain.CompletionResult, error) {
	if instanceID == "" {
		return nil, errors.Validation("instance id is required")
	}
	res, err := s.lifecycle.MarkDone(ctx, instanceID, completedAt)
	if err != nil {
		return nil, err
	}
	s.metrics.StatusTransition(domain.StatusDone)

	completed := s.instanceEvent(EventInstanceCompleted, res.Instance)
	events := []Event{completed}
	if res.Successor != nil {
		payload := completed.Payload.(InstancePayload)
		payload.SuccessorID = res.Successor.ID
		events[0].Payload = payload
		if res.SuccessorCreated {
			s.metrics.InstancesGenerated(TriggerCompletion, 1)
			events = append(events, s.instanceEvent(EventInstanceCreated, res.Successor))
		}
	}
	s.publish(ctx, events...)
	return res, nil
}

// Cancel closes an instance without a successor.
func (s *serviceImpl) Cancel(ctx context.Context, instanceID string) (*domain.Instance, error) {
	if instanceID == "" {
		return nil, errors.Validation("instance id is required")
	}
	inst, err := s.lifecycle.Cancel(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	s.metrics.StatusTransition(domain.StatusCancelled)
	s.publish(ctx, s.instanceEvent(EventInstanceCancelled, inst))
	return inst, nil
}

// ListInstances returns one page of an organization's instances ordered by
// due date.
func (s *serviceImpl) ListInstances(ctx context.Context, orgID string, filter ListFilter, page, limit int) (*common.PaginatedResult[*domain.Instance], error) {
	if orgID == "" {
		return nil, errors.Validation("organization id is required")
	}
	if filter.Upcoming && filter.Overdue {
		return nil, errors.Validation("upcoming and overdue filters are mutually exclusive")
	}
	if filter.UpcomingDays < 0 {
		return nil, errors.Validation("upcoming_days must be >= 0")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, errors.Validation("invalid status filter").WithDetailf("status=%q", filter.Status)
	}

	if s.cfg.ReconcileOnRead {
		if _, err := s.ReconcileOverdue(ctx, orgID); err != nil {
			logging.WithError(s.logger, err).Warn("reconcile on read failed",
				logging.String(logging.KeyOrganizationID, orgID))
		}
	}

	today := s.Today()
	f := domain.InstanceFilter{
		SubjectID:   filter.SubjectID,
		StructureID: filter.StructureID,
		TemplateID:  filter.TemplateID,
	}
	if filter.Status != "" {
		f.Statuses = []domain.Status{filter.Status}
	}
	if filter.Upcoming {
		f.OpenOnly = true
		f.DueFrom = &today
		if filter.UpcomingDays > 0 {
			to := common.AddDays(today, filter.UpcomingDays)
			f.DueTo = &to
		}
	}
	if filter.Overdue {
		f.OverdueAsOf = &today
	}

	p := common.Pagination{Page: page, PageSize: limit}.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	items, total, err := s.repo.ListInstances(ctx, orgID, f,
		domain.WithLimit(p.PageSize), domain.WithOffset(p.Offset()))
	if err != nil {
		return nil, err
	}
	return common.NewPaginatedResult(items, p, total), nil
}

// DueReminders returns untriggered reminders of open instances due on asOf.
func (s *serviceImpl) DueReminders(ctx context.Context, orgID string, asOf time.Time) ([]*domain.Reminder, error) {
	if orgID == "" {
		return nil, errors.Validation("organization id is required")
	}
	if asOf.IsZero() {
		asOf = s.Today()
	}
	return s.repo.ListDueReminders(ctx, orgID, common.DateOf(asOf))
}

// MarkReminderTriggered records delivery of a reminder.
func (s *serviceImpl) MarkReminderTriggered(ctx context.Context, reminderID string, at time.Time) (*domain.Reminder, bool, error) {
	if reminderID == "" {
		return nil, false, errors.Validation("reminder id is required")
	}
	if at.IsZero() {
		at = s.now()
	}
	changed, err := s.repo.MarkReminderTriggered(ctx, reminderID, at.UTC())
	if err != nil {
		return nil, false, err
	}
	r, err := s.repo.GetReminder(ctx, reminderID)
	if err != nil {
		return nil, false, err
	}
	return r, changed, nil
}

// SaveTemplate validates t and stores it. Edits of a template that already
// issued instances may not change its scope, recurrence unit or anchor.
func (s *serviceImpl) SaveTemplate(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.OverridesTemplateID != nil {
		target, err := s.repo.GetTemplate(ctx, *t.OverridesTemplateID)
		if err != nil {
			return nil, err
		}
		if target.OwnerType != domain.OwnerGlobal {
			return nil, errors.Validation("only global templates can be overridden").
				WithDetailf("overrides_template_id=%s", target.ID)
		}
	}

	if t.ID == "" {
		t.ID = string(common.NewID())
	}
	// The row lock conflicts with the key-share lock an instance insert takes
	// through its foreign key, so no first instance can slip in between the
	// count and the write.
	err := s.repo.WithTx(ctx, func(repo domain.Repository) error {
		existing, err := repo.GetTemplateForUpdate(ctx, t.ID)
		switch {
		case err == nil:
			count, err := repo.CountInstancesForTemplate(ctx, t.ID)
			if err != nil {
				return err
			}
			if err := existing.CheckEdit(t, count); err != nil {
				return err
			}
		case errors.IsNotFound(err):
		default:
			return err
		}
		return repo.SaveTemplate(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Invalidate(ctx, t); err != nil {
		logging.WithError(s.logger, err).Warn("template cache invalidation failed",
			logging.String(logging.KeyTemplateID, t.ID))
	}
	s.logger.Info("template saved",
		logging.String(logging.KeyTemplateID, t.ID),
		logging.String("owner_type", string(t.OwnerType)))
	return t, nil
}

// GetTemplate loads one template.
func (s *serviceImpl) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	if id == "" {
		return nil, errors.Validation("template id is required")
	}
	return s.repo.GetTemplate(ctx, id)
}

// CreateAdHocInstance creates a template-less instance.
func (s *serviceImpl) CreateAdHocInstance(ctx context.Context, req *AdHocInstanceRequest) (*domain.Instance, error) {
	if req == nil {
		return nil, errors.Validation("ad-hoc request must not be nil")
	}
	adhoc := domain.AdHocRequest{
		Subject: domain.Subject{
			OrganizationID: req.OrganizationID,
			Type:           req.SubjectType,
			ID:             req.SubjectID,
			StructureID:    req.StructureID,
		},
		Title:              req.Title,
		DueDate:            req.DueDate,
		Notes:              req.Notes,
		ReminderDaysBefore: req.ReminderDaysBefore,
		ReminderMessage:    req.ReminderMessage,
	}
	if req.RecurrenceUnit != "" || req.RecurrenceEvery != 0 {
		adhoc.Recurrence = &domain.Recurrence{Unit: req.RecurrenceUnit, Every: req.RecurrenceEvery}
	}

	var inst *domain.Instance
	err := s.repo.WithTx(ctx, func(tx domain.Repository) error {
		var err error
		inst, err = s.generator.CreateAdHoc(ctx, tx, adhoc)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.InstancesGenerated(TriggerAdHoc, 1)
	s.publish(ctx, s.instanceEvent(EventInstanceCreated, inst))
	return inst, nil
}

// GetInstance loads one instance.
func (s *serviceImpl) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	if id == "" {
		return nil, errors.Validation("instance id is required")
	}
	return s.repo.GetInstance(ctx, id)
}

// ReconcileOverdue persists OVERDUE for past-due PENDING instances of orgID.
func (s *serviceImpl) ReconcileOverdue(ctx context.Context, orgID string) (int, error) {
	start := s.now()
	ids, err := s.lifecycle.ReconcileOverdue(ctx, orgID)
	s.metrics.ObserveReconcile(s.now().Sub(start))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	s.metrics.OverdueReconciled(len(ids))
	for range ids {
		s.metrics.StatusTransition(domain.StatusOverdue)
	}
	s.publish(ctx, Event{
		Type:           EventInstancesOverdue,
		OrganizationID: orgID,
		Key:            orgID,
		OccurredAt:     s.now().UTC(),
		Payload:        OverduePayload{AsOf: common.FormatDate(s.Today()), InstanceIDs: ids},
	})
	return len(ids), nil
}

// RetryPendingRegenerations walks flagged instances one transaction each.
func (s *serviceImpl) RetryPendingRegenerations(ctx context.Context, limit int) (*RegenerationReport, error) {
	if limit <= 0 {
		limit = 100
	}
	flagged, err := s.repo.ListPendingRegeneration(ctx, limit)
	if err != nil {
		return nil, err
	}
	report := &RegenerationReport{Attempted: len(flagged)}
	for _, inst := range flagged {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		next, created, err := s.lifecycle.RetryRegeneration(ctx, inst.ID)
		if err != nil {
			s.metrics.RegenerationRetried(false)
			report.Failed = append(report.Failed, inst.ID)
			logging.WithError(s.logger, err).Warn("regeneration retry failed",
				logging.String(logging.KeyInstanceID, inst.ID))
			continue
		}
		s.metrics.RegenerationRetried(true)
		report.Recovered++
		if created {
			s.metrics.InstancesGenerated(TriggerRegeneration, 1)
			s.publish(ctx, s.instanceEvent(EventInstanceCreated, next))
		}
	}
	return report, nil
}

func (s *serviceImpl) instanceEvent(t EventType, inst *domain.Instance) Event {
	return Event{
		Type:           t,
		OrganizationID: inst.OrganizationID,
		Key:            inst.ID,
		OccurredAt:     s.now().UTC(),
		Payload:        newInstancePayload(inst),
	}
}

// publish never fails the calling operation; the state change is already
// committed.
func (s *serviceImpl) publish(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		for _, e := range events {
			s.metrics.EventPublishFailed(e.Type)
		}
		logging.WithError(s.logger, err).Warn("event publish failed",
			logging.Int("events", len(events)),
			logging.String("event_type", string(events[0].Type)))
	}
}

//Personal.AI order the ending
