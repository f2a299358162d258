package obligation

import (
	"time"

	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Urgency is a presentation bucket for a due date.
type Urgency string

const (
	UrgencyOverdue Urgency = "OVERDUE"
	UrgencyUrgent  Urgency = "URGENT"
	UrgencySoon    Urgency = "SOON"
	UrgencyNormal  Urgency = "NORMAL"
)

// Default bucket bounds in days.
const (
	DefaultUrgentDays = 7
	DefaultSoonDays   = 30
)

// UrgencyClassifier maps due dates to urgency buckets. The zero value uses the
// default bounds.
type UrgencyClassifier struct {
	UrgentDays int
	SoonDays   int
}

// NewUrgencyClassifier returns a classifier with the given bounds.
func NewUrgencyClassifier(urgentDays, soonDays int) UrgencyClassifier {
	return UrgencyClassifier{UrgentDays: urgentDays, SoonDays: soonDays}
}

// Classify buckets due relative to today: OVERDUE before today, URGENT within
// UrgentDays, SOON within SoonDays, NORMAL after.
func (c UrgencyClassifier) Classify(due, today time.Time) Urgency {
	urgent, soon := c.UrgentDays, c.SoonDays
	if urgent == 0 && soon == 0 {
		urgent, soon = DefaultUrgentDays, DefaultSoonDays
	}
	days := common.DaysBetween(today, due)
	switch {
	case days < 0:
		return UrgencyOverdue
	case days <= urgent:
		return UrgencyUrgent
	case days <= soon:
		return UrgencySoon
	default:
		return UrgencyNormal
	}
}

// Classify uses the default bounds.
func Classify(due, today time.Time) Urgency {
	return UrgencyClassifier{}.Classify(due, today)
}

//Personal.AI order the ending
