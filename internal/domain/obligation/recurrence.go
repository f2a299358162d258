package obligation

import (
	"time"

	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Recurrence describes how often an obligation repeats.
type Recurrence struct {
	Unit  RecurrenceUnit `json:"unit"`
	Every int            `json:"every"`
}

// Validate rejects unknown units and intervals below one.
func (r Recurrence) Validate() error {
	if !r.Unit.IsValid() {
		return errors.New(errors.ErrCodeInvalidRecurrence, "unknown recurrence unit").
			WithDetailf("unit=%q", r.Unit)
	}
	if r.Every < 1 {
		return errors.New(errors.ErrCodeInvalidRecurrence, "recurrence interval must be >= 1").
			WithDetailf("every=%d", r.Every)
	}
	return nil
}

// AddInterval shifts d by n units. MONTH and YEAR keep the day of month and
// clamp to the last day of the target month, so Jan 31 + 1 MONTH is Feb 28
// (Feb 29 in leap years) and Feb 29 + 1 YEAR is Feb 28.
func AddInterval(d time.Time, unit RecurrenceUnit, n int) time.Time {
	switch unit {
	case UnitDay:
		return common.AddDays(d, n)
	case UnitYear:
		return common.AddMonthsClamped(d, 12*n)
	default:
		return common.AddMonthsClamped(d, n)
	}
}

// ComputeDueDate returns the first (cycle 0) due date for an obligation
// anchored at anchorDate: the anchor shifted by offsetDays calendar days. The
// recurrence parameters are validated even though only later cycles use them.
func ComputeDueDate(anchorDate time.Time, unit RecurrenceUnit, every, offsetDays int) (time.Time, error) {
	if err := (Recurrence{Unit: unit, Every: every}).Validate(); err != nil {
		return time.Time{}, err
	}
	return common.AddDays(anchorDate, offsetDays), nil
}

// CycleDueDate returns the due date of cycle n of a rolling schedule whose
// cycle 0 falls on scheduleStart. Cycles are always derived from the start
// rather than chained, so month-end clamping never accumulates:
// Jan 31, Feb 29, Mar 31, Apr 30.
func CycleDueDate(scheduleStart time.Time, rec Recurrence, cycle int) (time.Time, error) {
	if err := rec.Validate(); err != nil {
		return time.Time{}, err
	}
	if cycle < 0 {
		return time.Time{}, errors.Validation("cycle index must be >= 0").WithDetailf("cycle=%d", cycle)
	}
	return AddInterval(scheduleStart, rec.Unit, rec.Every*cycle), nil
}

// NextAfterCompletion returns the due date of the cycle following a completion
// under LAST_COMPLETION semantics: one interval after completedAt. When an
// early completion would land on or before priorDue, the interval is applied
// to priorDue instead so successive due dates strictly increase.
func NextAfterCompletion(completedAt, priorDue time.Time, rec Recurrence) (time.Time, error) {
	if err := rec.Validate(); err != nil {
		return time.Time{}, err
	}
	next := AddInterval(completedAt, rec.Unit, rec.Every)
	if !next.After(common.DateOf(priorDue)) {
		next = AddInterval(priorDue, rec.Unit, rec.Every)
	}
	return next, nil
}

//Personal.AI order the ending
