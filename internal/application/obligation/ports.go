// internal/application/obligation/ports.go
//
// Outbound ports of the obligation application service: domain event
// publishing, metrics, and the distributed lock used by batch jobs. Each port
// has a no-op implementation so the service runs without Kafka, Prometheus or
// Redis.

package obligation

import (
	"context"
	"time"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// EventType names a domain event. The messaging adapter derives the topic
// from it.
type EventType string

const (
	EventInstanceCreated   EventType = "obligation.instance.created"
	EventInstanceCompleted EventType = "obligation.instance.completed"
	EventInstanceCancelled EventType = "obligation.instance.cancelled"
	EventInstancesOverdue  EventType = "obligation.instance.overdue"
	EventReminderDue       EventType = "obligation.reminder.due"
)

// Event is a domain event published after the producing transaction commits.
type Event struct {
	Type           EventType `json:"type"`
	OrganizationID string    `json:"organization_id"`
	// Key is the partition key.
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// InstancePayload is the event view of a deadline instance.
type InstancePayload struct {
	InstanceID  string                `json:"instance_id"`
	TemplateID  string                `json:"template_id,omitempty"`
	SubjectType domain.SubjectType    `json:"subject_type"`
	SubjectID   string                `json:"subject_id"`
	StructureID string                `json:"structure_id,omitempty"`
	Title       string                `json:"title"`
	DueDate     string                `json:"due_date"`
	Status      domain.Status         `json:"status"`
	CycleIndex  int                   `json:"cycle_index"`
	CompletedAt string                `json:"completed_at,omitempty"`
	SuccessorID string                `json:"successor_id,omitempty"`
	Recurring   bool                  `json:"recurring"`
	Unit        domain.RecurrenceUnit `json:"recurrence_unit,omitempty"`
	Every       int                   `json:"recurrence_every,omitempty"`
}

// OverduePayload lists the instances a reconcile run flipped to OVERDUE.
type OverduePayload struct {
	AsOf        string   `json:"as_of"`
	InstanceIDs []string `json:"instance_ids"`
}

// ReminderDuePayload asks the notification collaborator to deliver a reminder.
type ReminderDuePayload struct {
	ReminderID  string             `json:"reminder_id"`
	InstanceID  string             `json:"instance_id"`
	SubjectType domain.SubjectType `json:"subject_type"`
	SubjectID   string             `json:"subject_id"`
	Title       string             `json:"title"`
	DueDate     string             `json:"due_date"`
	DaysBefore  int                `json:"days_before"`
	Message     string             `json:"message,omitempty"`
	Urgency     domain.Urgency     `json:"urgency"`
}

// ReminderDelivery is the acknowledgement sent back once a reminder was
// delivered.
type ReminderDelivery struct {
	ReminderID  string    `json:"reminder_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func newInstancePayload(inst *domain.Instance) InstancePayload {
	p := InstancePayload{
		InstanceID:  inst.ID,
		TemplateID:  inst.TemplateIDValue(),
		SubjectType: inst.SubjectType,
		SubjectID:   inst.SubjectID,
		StructureID: inst.StructureID,
		Title:       inst.Title,
		DueDate:     common.FormatDate(inst.DueDate),
		Status:      inst.Status,
		CycleIndex:  inst.CycleIndex,
		Recurring:   inst.IsRecurring,
		Unit:        inst.RecurrenceUnit,
		Every:       inst.RecurrenceEvery,
	}
	if inst.CompletedAt != nil {
		p.CompletedAt = common.FormatDate(*inst.CompletedAt)
	}
	return p
}

// EventPublisher delivers domain events.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }

// NewNopPublisher returns a publisher that drops every event.
func NewNopPublisher() EventPublisher { return nopPublisher{} }

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Generation triggers reported to Metrics.InstancesGenerated.
const (
	TriggerEnsure       = "ensure"
	TriggerCompletion   = "completion"
	TriggerAdHoc        = "adhoc"
	TriggerRegeneration = "regeneration"
)

// Metrics records engine activity.
type Metrics interface {
	InstancesGenerated(trigger string, n int)
	StatusTransition(to domain.Status)
	OverdueReconciled(n int)
	ObserveReconcile(d time.Duration)
	RemindersDispatched(n int)
	DuplicateResolved()
	RegenerationRetried(success bool)
	EventPublishFailed(t EventType)
	TemplateCacheLookup(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) InstancesGenerated(string, int) {}
func (nopMetrics) StatusTransition(domain.Status) {}
func (nopMetrics) OverdueReconciled(int)          {}
func (nopMetrics) ObserveReconcile(time.Duration) {}
func (nopMetrics) RemindersDispatched(int)        {}
func (nopMetrics) DuplicateResolved()             {}
func (nopMetrics) RegenerationRetried(bool)       {}
func (nopMetrics) EventPublishFailed(EventType)   {}
func (nopMetrics) TemplateCacheLookup(bool)       {}

// NewNopMetrics returns a Metrics that records nothing.
func NewNopMetrics() Metrics { return nopMetrics{} }

// ---------------------------------------------------------------------------
// Locking
// ---------------------------------------------------------------------------

// Lock is a held distributed lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker acquires named locks that expire after ttl. TryLock reports false
// without error when another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

type localLock struct{}

func (localLock) Unlock(context.Context) error { return nil }

type nopLocker struct{}

func (nopLocker) TryLock(context.Context, string, time.Duration) (Lock, bool, error) {
	return localLock{}, true, nil
}

// NewNopLocker returns a Locker that always grants the lock. Suitable for a
// single worker process.
func NewNopLocker() Locker { return nopLocker{} }

// ---------------------------------------------------------------------------
// Instrumented template cache
// ---------------------------------------------------------------------------

type instrumentedCache struct {
	inner   domain.TemplateCache
	metrics Metrics
}

func (c instrumentedCache) GetTemplates(ctx context.Context, key string) ([]*domain.Template, bool, error) {
	ts, ok, err := c.inner.GetTemplates(ctx, key)
	if err == nil {
		c.metrics.TemplateCacheLookup(ok)
	}
	return ts, ok, err
}

func (c instrumentedCache) SetTemplates(ctx context.Context, key string, ts []*domain.Template) error {
	return c.inner.SetTemplates(ctx, key, ts)
}

func (c instrumentedCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	return c.inner.InvalidatePrefix(ctx, prefix)
}

//Personal.AI order the ending
