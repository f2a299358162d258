package obligation

import (
	"time"

	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// Instance is one dated occurrence of an obligation for one subject. The
// recurrence fields are copied at creation so the instance stays meaningful
// after its template is edited or deleted.
type Instance struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	TemplateID     *string     `json:"template_id,omitempty"`
	SubjectType    SubjectType `json:"subject_type"`
	SubjectID      string      `json:"subject_id"`
	StructureID    string      `json:"structure_id,omitempty"`

	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
	Notes   string    `json:"notes,omitempty"`
	Status  Status    `json:"status"`

	IsRecurring     bool           `json:"is_recurring"`
	RecurrenceUnit  RecurrenceUnit `json:"recurrence_unit,omitempty"`
	RecurrenceEvery int            `json:"recurrence_every,omitempty"`
	Anchor          AnchorKind     `json:"anchor"`
	// ScheduleStart is the cycle-0 due date of a rolling schedule.
	ScheduleStart time.Time `json:"schedule_start"`
	CycleIndex    int       `json:"cycle_index"`
	// PredecessorID links a successor to the cycle it was advanced from.
	PredecessorID *string `json:"predecessor_id,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// PendingRegeneration marks a DONE recurring instance whose successor
	// still has to be created.
	PendingRegeneration bool `json:"pending_regeneration,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateIDValue returns the template id or "" for ad-hoc instances.
func (i *Instance) TemplateIDValue() string {
	if i.TemplateID == nil {
		return ""
	}
	return *i.TemplateID
}

// Subject returns the subject the instance belongs to.
func (i *Instance) Subject() Subject {
	return Subject{
		OrganizationID: i.OrganizationID,
		Type:           i.SubjectType,
		ID:             i.SubjectID,
		StructureID:    i.StructureID,
	}
}

// Recurrence returns the copied recurrence rule.
func (i *Instance) Recurrence() Recurrence {
	return Recurrence{Unit: i.RecurrenceUnit, Every: i.RecurrenceEvery}
}

// IsOpen reports whether the instance still awaits completion.
func (i *Instance) IsOpen() bool {
	return i.Status.IsOpen()
}

// IsStale reports whether a PENDING instance is past due but not yet
// reconciled to OVERDUE.
func (i *Instance) IsStale(today time.Time) bool {
	return i.Status == StatusPending && i.DueDate.Before(today)
}

// EffectiveStatus is the persisted status, with unreconciled past-due PENDING
// instances reported as OVERDUE.
func (i *Instance) EffectiveStatus(today time.Time) Status {
	if i.IsStale(today) {
		return StatusOverdue
	}
	return i.Status
}

// Validate checks the fields every stored instance must carry.
func (i *Instance) Validate() error {
	if err := i.Subject().Validate(); err != nil {
		return err
	}
	if i.Title == "" {
		return errors.Validation("instance title is required")
	}
	if i.DueDate.IsZero() {
		return errors.Validation("instance due date is required")
	}
	if !i.Status.IsValid() {
		return errors.Validation("invalid instance status").WithDetailf("status=%q", i.Status)
	}
	if i.CycleIndex < 0 {
		return errors.Validation("cycle index must be >= 0")
	}
	if i.IsRecurring {
		if err := i.Recurrence().Validate(); err != nil {
			return err
		}
	}
	return nil
}

//Personal.AI order the ending
