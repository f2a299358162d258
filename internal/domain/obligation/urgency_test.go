package obligation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ComplyTrack/internal/domain/obligation"
)

func TestClassify_Buckets(t *testing.T) {
	today := date(2024, 6, 10)
	tests := []struct {
		due  int
		want obligation.Urgency
	}{
		{9, obligation.UrgencyOverdue},
		{10, obligation.UrgencyUrgent},
		{17, obligation.UrgencyUrgent},
		{18, obligation.UrgencySoon},
		{30, obligation.UrgencySoon},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, obligation.Classify(date(2024, 6, tt.due), today), "due June %d", tt.due)
	}
	assert.Equal(t, obligation.UrgencySoon, obligation.Classify(date(2024, 7, 10), today))
	assert.Equal(t, obligation.UrgencyNormal, obligation.Classify(date(2024, 7, 11), today))
}

func TestUrgencyClassifier_CustomBounds(t *testing.T) {
	c := obligation.NewUrgencyClassifier(3, 10)
	today := date(2024, 6, 10)

	assert.Equal(t, obligation.UrgencyUrgent, c.Classify(date(2024, 6, 13), today))
	assert.Equal(t, obligation.UrgencySoon, c.Classify(date(2024, 6, 14), today))
	assert.Equal(t, obligation.UrgencyNormal, c.Classify(date(2024, 6, 21), today))
}

func TestInstance_EffectiveStatus(t *testing.T) {
	inst := openInstance(9)
	today := date(2024, 6, 10)
	assert.True(t, inst.IsStale(today))
	assert.Equal(t, obligation.StatusOverdue, inst.EffectiveStatus(today))

	inst.DueDate = today
	assert.Equal(t, obligation.StatusPending, inst.EffectiveStatus(today))

	inst.DueDate = date(2024, 6, 1)
	inst.Status = obligation.StatusDone
	assert.Equal(t, obligation.StatusDone, inst.EffectiveStatus(today))
}
