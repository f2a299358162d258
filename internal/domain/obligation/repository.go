package obligation

import (
	"context"
	"time"
)

// InstanceFilter narrows instance listings.
type InstanceFilter struct {
	Statuses    []Status
	SubjectID   string
	StructureID string
	TemplateID  string
	// DueFrom and DueTo bound the due date, inclusive. Nil is open.
	DueFrom *time.Time
	DueTo   *time.Time
	// OverdueAsOf selects OVERDUE instances plus PENDING ones due before the
	// given date, covering rows the reconciler has not reached yet.
	OverdueAsOf *time.Time
	// OpenOnly restricts to PENDING and OVERDUE.
	OpenOnly bool
}

// ListOptions carries pagination for repository listings.
type ListOptions struct {
	Limit  int
	Offset int
}

// ListOption is a functional option for ListOptions.
type ListOption func(*ListOptions)

// WithLimit sets the page size.
func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

// WithOffset sets the row offset.
func WithOffset(offset int) ListOption {
	return func(o *ListOptions) { o.Offset = offset }
}

// ApplyListOptions applies opts over the defaults (limit 20, max 500).
func ApplyListOptions(opts ...ListOption) ListOptions {
	o := ListOptions{Limit: 20}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// TemplateRepository persists templates.
type TemplateRepository interface {
	SaveTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	// GetTemplateForUpdate locks the row until the surrounding transaction ends.
	GetTemplateForUpdate(ctx context.Context, id string) (*Template, error)
	// ListCandidateTemplates returns active templates of scope that are
	// GLOBAL or owned by orgID. Window and region filtering happen in the
	// resolver.
	ListCandidateTemplates(ctx context.Context, orgID string, scope SubjectType) ([]*Template, error)
	CountInstancesForTemplate(ctx context.Context, templateID string) (int64, error)
}

// InstanceRepository persists deadline instances.
type InstanceRepository interface {
	// CreateInstance inserts inst with its reminders. Losing the
	// (template, subject, cycle) uniqueness race yields
	// ErrCodeDuplicateInstance and leaves the transaction usable.
	CreateInstance(ctx context.Context, inst *Instance, reminders []*Reminder) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	// GetInstanceForUpdate locks the row until the surrounding transaction ends.
	GetInstanceForUpdate(ctx context.Context, id string) (*Instance, error)
	// FindLatestInstance returns the highest cycle for (template, subject),
	// or nil when none exists.
	FindLatestInstance(ctx context.Context, templateID, subjectID string) (*Instance, error)
	// FindInstanceByCycle returns nil when the cycle does not exist.
	FindInstanceByCycle(ctx context.Context, templateID, subjectID string, cycle int) (*Instance, error)
	// FindSuccessor returns the next cycle of prior, or nil. Ad-hoc chains
	// are followed by their predecessor link.
	FindSuccessor(ctx context.Context, prior *Instance) (*Instance, error)
	// UpdateInstance writes the lifecycle fields using optimistic locking on
	// Version and increments it.
	UpdateInstance(ctx context.Context, inst *Instance) error
	ListInstances(ctx context.Context, orgID string, filter InstanceFilter, opts ...ListOption) ([]*Instance, int64, error)
	// MarkOverdue flips PENDING instances of orgID due before today to
	// OVERDUE and returns the affected ids.
	MarkOverdue(ctx context.Context, orgID string, today time.Time) ([]string, error)
	ListOrganizationsWithStaleInstances(ctx context.Context, today time.Time) ([]string, error)
	ListPendingRegeneration(ctx context.Context, limit int) ([]*Instance, error)
}

// ReminderRepository persists reminders.
type ReminderRepository interface {
	GetReminder(ctx context.Context, id string) (*Reminder, error)
	ListReminders(ctx context.Context, instanceID string) ([]*Reminder, error)
	// ListDueReminders returns untriggered reminders of open instances of
	// orgID whose trigger date is on or before asOf.
	ListDueReminders(ctx context.Context, orgID string, asOf time.Time) ([]*Reminder, error)
	ListOrganizationsWithDueReminders(ctx context.Context, asOf time.Time) ([]string, error)
	// MarkReminderTriggered sets triggered_at only when unset and reports
	// whether this call changed it.
	MarkReminderTriggered(ctx context.Context, id string, at time.Time) (bool, error)
}

// Repository is the full persistence contract of the engine.
type Repository interface {
	TemplateRepository
	InstanceRepository
	ReminderRepository

	// WithTx runs fn inside a transaction. fn receives a Repository bound to
	// it; returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// OrganizationDirectory exposes the organization attributes the engine
// needs from the CRUD collaborator.
type OrganizationDirectory interface {
	// Region returns the organization's region, "" when unset. Unknown
	// organizations yield ErrCodeOrganizationNotFound.
	Region(ctx context.Context, orgID string) (string, error)
}

// TemplateCache stores resolved template sets. Implementations must bound
// entry lifetime.
type TemplateCache interface {
	GetTemplates(ctx context.Context, key string) ([]*Template, bool, error)
	SetTemplates(ctx context.Context, key string, templates []*Template) error
	// InvalidatePrefix drops every entry whose key starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

//Personal.AI order the ending
