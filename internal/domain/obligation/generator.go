package obligation

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// InstanceGenerator materializes deadline instances from templates and rolls
// recurring instances forward. Every method takes the Repository to work on,
// so callers can pass a transaction-bound one.
type InstanceGenerator struct {
	planner *ReminderPlanner
	opts    options
}

// NewInstanceGenerator builds a generator using planner for reminder sets.
func NewInstanceGenerator(planner *ReminderPlanner, opts ...Option) *InstanceGenerator {
	if planner == nil {
		planner = NewReminderPlanner(nil)
	}
	return &InstanceGenerator{planner: planner, opts: applyOptions(opts)}
}

// EnsureInstance returns the current instance of tmpl for subject, creating
// it when missing. The second result reports whether a row was inserted.
//
//   - no instance yet: cycle 0 is created from the resolved anchor
//   - an open instance exists: it is returned unchanged
//   - the latest cycle is DONE and recurring: its successor is created
//   - otherwise (one-off DONE, CANCELLED): the latest instance is returned
//
// Calling it again with the same inputs never creates a second instance for
// the same cycle.
func (g *InstanceGenerator) EnsureInstance(ctx context.Context, repo Repository, tmpl *Template, subject Subject, anchors SubjectAnchors) (*Instance, bool, error) {
	if tmpl == nil {
		return nil, false, errors.Validation("template is required")
	}
	if err := subject.Validate(); err != nil {
		return nil, false, err
	}
	if tmpl.Scope != subject.Type {
		return nil, false, errors.Validation("template scope does not match subject type").
			WithDetailf("template_id=%s scope=%s subject_type=%s", tmpl.ID, tmpl.Scope, subject.Type)
	}

	latest, err := repo.FindLatestInstance(ctx, tmpl.ID, subject.ID)
	if err != nil {
		return nil, false, err
	}
	if latest != nil {
		switch {
		case latest.IsOpen():
			return latest, false, nil
		case latest.Status == StatusDone && latest.IsRecurring:
			return g.AdvanceCycle(ctx, repo, latest)
		default:
			return latest, false, nil
		}
	}

	inst, err := g.BuildFirst(tmpl, subject, anchors)
	if err != nil {
		return nil, false, err
	}
	reminders, err := g.planner.Plan(inst, g.planner.DaysFor(tmpl), "")
	if err != nil {
		return nil, false, err
	}
	return g.insert(ctx, repo, inst, reminders, func() (*Instance, error) {
		return repo.FindInstanceByCycle(ctx, tmpl.ID, subject.ID, 0)
	})
}

// BuildFirst computes the cycle-0 instance of tmpl for subject without
// persisting it.
func (g *InstanceGenerator) BuildFirst(tmpl *Template, subject Subject, anchors SubjectAnchors) (*Instance, error) {
	anchor, err := tmpl.AnchorVariant()
	if err != nil {
		return nil, err
	}
	base, err := anchor.Resolve(anchors)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "cannot resolve anchor date").
			WithDetailf("template_id=%s subject=%s", tmpl.ID, subject)
	}
	due, err := ComputeDueDate(base, tmpl.RecurrenceUnit, tmpl.RecurrenceEvery, tmpl.FirstDueOffsetDays)
	if err != nil {
		return nil, err
	}

	now := g.opts.now().UTC()
	templateID := tmpl.ID
	inst := &Instance{
		ID:              string(common.NewID()),
		OrganizationID:  subject.OrganizationID,
		TemplateID:      &templateID,
		SubjectType:     subject.Type,
		SubjectID:       subject.ID,
		StructureID:     subject.StructureID,
		Title:           tmpl.Title,
		DueDate:         due,
		Notes:           tmpl.Notes,
		Status:          StatusPending,
		IsRecurring:     tmpl.Recurring,
		RecurrenceUnit:  tmpl.RecurrenceUnit,
		RecurrenceEvery: tmpl.RecurrenceEvery,
		Anchor:          tmpl.Anchor,
		ScheduleStart:   due,
		CycleIndex:      0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return inst, nil
}

// BuildSuccessor computes the next cycle of prior without persisting it.
// Rolling anchors derive the date from the schedule start; LAST_COMPLETION
// restarts from the completion date and never lands on or before the prior
// due date.
func (g *InstanceGenerator) BuildSuccessor(prior *Instance) (*Instance, error) {
	if !prior.IsRecurring {
		return nil, errors.Validation("instance is not recurring").WithDetailf("instance_id=%s", prior.ID)
	}
	rec := prior.Recurrence()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	var (
		due   time.Time
		start time.Time
		err   error
	)
	if prior.Anchor == AnchorLastCompletion {
		if prior.CompletedAt == nil {
			return nil, errors.New(errors.ErrCodeAnchorDateMissing, "completion date is required to schedule the next cycle").
				WithDetailf("instance_id=%s", prior.ID)
		}
		due, err = NextAfterCompletion(*prior.CompletedAt, prior.DueDate, rec)
		if err != nil {
			return nil, err
		}
		start = due
	} else {
		start = prior.ScheduleStart
		if start.IsZero() {
			start = prior.DueDate
			due = AddInterval(prior.DueDate, rec.Unit, rec.Every)
		} else if due, err = CycleDueDate(start, rec, prior.CycleIndex+1); err != nil {
			return nil, err
		}
		if !due.After(prior.DueDate) {
			due = AddInterval(prior.DueDate, rec.Unit, rec.Every)
		}
	}

	now := g.opts.now().UTC()
	priorID := prior.ID
	next := &Instance{
		ID:              string(common.NewID()),
		OrganizationID:  prior.OrganizationID,
		TemplateID:      prior.TemplateID,
		SubjectType:     prior.SubjectType,
		SubjectID:       prior.SubjectID,
		StructureID:     prior.StructureID,
		Title:           prior.Title,
		DueDate:         due,
		Notes:           prior.Notes,
		Status:          StatusPending,
		IsRecurring:     true,
		RecurrenceUnit:  prior.RecurrenceUnit,
		RecurrenceEvery: prior.RecurrenceEvery,
		Anchor:          prior.Anchor,
		ScheduleStart:   start,
		CycleIndex:      prior.CycleIndex + 1,
		PredecessorID:   &priorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return next, nil
}

// AdvanceCycle creates the successor of a completed recurring instance, or
// returns the existing one. Non-recurring instances have no successor and
// yield (nil, false, nil).
func (g *InstanceGenerator) AdvanceCycle(ctx context.Context, repo Repository, prior *Instance) (*Instance, bool, error) {
	if !prior.IsRecurring {
		return nil, false, nil
	}
	if prior.Status != StatusDone {
		return nil, false, errors.New(errors.ErrCodeIllegalTransition, "only completed instances advance to the next cycle").
			WithDetailf("instance_id=%s status=%s", prior.ID, prior.Status)
	}
	existing, err := repo.FindSuccessor(ctx, prior)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	next, err := g.BuildSuccessor(prior)
	if err != nil {
		return nil, false, err
	}
	priorReminders, err := repo.ListReminders(ctx, prior.ID)
	if err != nil {
		return nil, false, err
	}
	reminders := g.planner.Carry(next, priorReminders)
	return g.insert(ctx, repo, next, reminders, func() (*Instance, error) {
		return repo.FindSuccessor(ctx, prior)
	})
}

// AdHocRequest describes an instance created without a template.
type AdHocRequest struct {
	Subject Subject
	Title   string
	DueDate time.Time
	Notes   string
	// Recurrence makes the instance recurring when set. Cycles roll from
	// DueDate.
	Recurrence *Recurrence
	// ReminderDaysBefore nil means the engine default; empty means none.
	ReminderDaysBefore []int
	ReminderMessage    string
}

// CreateAdHoc persists a template-less instance with its reminders.
func (g *InstanceGenerator) CreateAdHoc(ctx context.Context, repo Repository, req AdHocRequest) (*Instance, error) {
	if err := req.Subject.Validate(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.Validation("instance title is required")
	}
	if req.DueDate.IsZero() {
		return nil, errors.Validation("due date is required")
	}
	if req.Recurrence != nil {
		if err := req.Recurrence.Validate(); err != nil {
			return nil, err
		}
	}

	now := g.opts.now().UTC()
	due := common.DateOf(req.DueDate)
	inst := &Instance{
		ID:             string(common.NewID()),
		OrganizationID: req.Subject.OrganizationID,
		SubjectType:    req.Subject.Type,
		SubjectID:      req.Subject.ID,
		StructureID:    req.Subject.StructureID,
		Title:          title,
		DueDate:        due,
		Notes:          req.Notes,
		Status:         StatusPending,
		Anchor:         AnchorCustom,
		ScheduleStart:  due,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Recurrence != nil {
		inst.IsRecurring = true
		inst.RecurrenceUnit = req.Recurrence.Unit
		inst.RecurrenceEvery = req.Recurrence.Every
	}

	days := req.ReminderDaysBefore
	if days == nil {
		days = g.planner.DaysFor(nil)
	}
	reminders, err := g.planner.Plan(inst, days, req.ReminderMessage)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateInstance(ctx, inst, reminders); err != nil {
		return nil, err
	}
	return inst, nil
}

// insert stores inst. When a concurrent writer won the uniqueness race the
// winner is re-read and returned instead.
func (g *InstanceGenerator) insert(ctx context.Context, repo Repository, inst *Instance, reminders []*Reminder, reread func() (*Instance, error)) (*Instance, bool, error) {
	err := repo.CreateInstance(ctx, inst, reminders)
	if err == nil {
		g.opts.logger.Debug("deadline instance created",
			logging.String(logging.KeyInstanceID, inst.ID),
			logging.String(logging.KeyTemplateID, inst.TemplateIDValue()),
			logging.String(logging.KeySubjectID, inst.SubjectID),
			logging.Int("cycle", inst.CycleIndex),
			logging.Date("due_date", inst.DueDate))
		return inst, true, nil
	}
	if !errors.IsCode(err, errors.ErrCodeDuplicateInstance) {
		return nil, false, err
	}

	winner, rerr := reread()
	if rerr != nil {
		return nil, false, rerr
	}
	if winner == nil {
		return nil, false, errors.Wrap(err, errors.CodeInternal, "duplicate reported but no instance found")
	}
	if g.opts.onDuplicate != nil {
		g.opts.onDuplicate()
	}
	g.opts.logger.Debug("concurrent instance creation resolved",
		logging.String(logging.KeyInstanceID, winner.ID),
		logging.String(logging.KeySubjectID, winner.SubjectID),
		logging.Int("cycle", winner.CycleIndex))
	return winner, false, nil
}

//Personal.AI order the ending
