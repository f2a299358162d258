package obligation

import (
	"sort"
	"time"

	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Reminder is a planned notification point for one instance.
type Reminder struct {
	ID             string     `json:"id"`
	InstanceID     string     `json:"deadline_instance_id"`
	OrganizationID string     `json:"organization_id"`
	DaysBefore     int        `json:"days_before"`
	Message        string     `json:"message,omitempty"`
	TriggeredAt    *time.Time `json:"triggered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TriggerDate is the first day the reminder is due for an instance due on due.
func (r *Reminder) TriggerDate(due time.Time) time.Time {
	return common.AddDays(due, -r.DaysBefore)
}

// IsDue reports whether the reminder should fire on asOf for an instance due
// on due. Triggered reminders are never due again.
func (r *Reminder) IsDue(due, asOf time.Time) bool {
	if r.TriggeredAt != nil {
		return false
	}
	return !r.TriggerDate(due).After(common.DateOf(asOf))
}

// ReminderPlanner materializes reminder sets and answers due-reminder queries.
type ReminderPlanner struct {
	defaultDays []int
}

// NewReminderPlanner returns a planner that falls back to defaultDays for
// templates without their own list.
func NewReminderPlanner(defaultDays []int) *ReminderPlanner {
	return &ReminderPlanner{defaultDays: append([]int(nil), defaultDays...)}
}

// DaysFor picks the lead-time list for an instance of t. A nil template or a
// template with a nil list uses the default.
func (p *ReminderPlanner) DaysFor(t *Template) []int {
	if t != nil && t.ReminderDaysBefore != nil {
		return t.ReminderDaysBefore
	}
	return p.defaultDays
}

// Plan builds the reminder set for inst from days. Duplicates are dropped and
// reminders are ordered from the earliest trigger to the latest.
func (p *ReminderPlanner) Plan(inst *Instance, days []int, message string) ([]*Reminder, error) {
	uniq := dedupeDays(days)
	if err := ValidateReminderDays(uniq); err != nil {
		return nil, err
	}
	out := make([]*Reminder, 0, len(uniq))
	for _, d := range uniq {
		out = append(out, &Reminder{
			ID:             string(common.NewID()),
			InstanceID:     inst.ID,
			OrganizationID: inst.OrganizationID,
			DaysBefore:     d,
			Message:        message,
			CreatedAt:      inst.CreatedAt,
		})
	}
	return out, nil
}

// Carry copies the reminder set of a prior cycle onto its successor, keeping
// each lead time and message. Template edits made in between do not apply.
func (p *ReminderPlanner) Carry(inst *Instance, prior []*Reminder) []*Reminder {
	byDays := make(map[int]*Reminder, len(prior))
	for _, r := range prior {
		if _, ok := byDays[r.DaysBefore]; !ok {
			byDays[r.DaysBefore] = r
		}
	}
	out := make([]*Reminder, 0, len(byDays))
	for _, d := range ReminderDays(prior) {
		out = append(out, &Reminder{
			ID:             string(common.NewID()),
			InstanceID:     inst.ID,
			OrganizationID: inst.OrganizationID,
			DaysBefore:     d,
			Message:        byDays[d].Message,
			CreatedAt:      inst.CreatedAt,
		})
	}
	return out
}

// DueReminders returns the reminders of inst that are due on asOf. Reminders
// of closed instances are never due.
func (p *ReminderPlanner) DueReminders(inst *Instance, reminders []*Reminder, asOf time.Time) []*Reminder {
	if !inst.IsOpen() {
		return nil
	}
	var out []*Reminder
	for _, r := range reminders {
		if r.IsDue(inst.DueDate, asOf) {
			out = append(out, r)
		}
	}
	return out
}

// ReminderDays extracts the lead times of rs, largest first.
func ReminderDays(rs []*Reminder) []int {
	days := make([]int, 0, len(rs))
	for _, r := range rs {
		days = append(days, r.DaysBefore)
	}
	return dedupeDays(days)
}

func dedupeDays(days []int) []int {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

//Personal.AI order the ending
