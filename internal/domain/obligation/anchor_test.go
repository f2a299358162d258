package obligation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

func TestAnchorFor_Variants(t *testing.T) {
	anchors := obligation.SubjectAnchors{
		AssignmentStart: datePtr(2024, 3, 1),
		HireDate:        datePtr(2020, 7, 15),
		LastCompletion:  datePtr(2024, 5, 2),
		Custom:          datePtr(2024, 12, 31),
	}
	tests := []struct {
		kind    obligation.AnchorKind
		want    time.Time
		rolling bool
	}{
		{obligation.AnchorAssignmentStart, date(2024, 3, 1), true},
		{obligation.AnchorHireDate, date(2020, 7, 15), true},
		{obligation.AnchorLastCompletion, date(2024, 5, 2), false},
		{obligation.AnchorCustom, date(2024, 12, 31), true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			a, err := obligation.AnchorFor(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, a.Kind())
			assert.Equal(t, tt.rolling, a.Rolling())
			got, err := a.Resolve(anchors)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnchor_MissingDate(t *testing.T) {
	for _, kind := range []obligation.AnchorKind{
		obligation.AnchorAssignmentStart, obligation.AnchorHireDate,
		obligation.AnchorLastCompletion, obligation.AnchorCustom,
	} {
		a, err := obligation.AnchorFor(kind)
		require.NoError(t, err)
		_, err = a.Resolve(obligation.SubjectAnchors{})
		require.Error(t, err, kind)
		assert.True(t, errors.IsCode(err, errors.ErrCodeAnchorDateMissing), kind)
		assert.True(t, errors.IsValidation(err), kind)
	}
}

func TestLastCompletionAnchor_FallsBack(t *testing.T) {
	a := obligation.LastCompletionAnchor{}

	got, err := a.Resolve(obligation.SubjectAnchors{AssignmentStart: datePtr(2024, 3, 1), HireDate: datePtr(2020, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 1), got)

	got, err = a.Resolve(obligation.SubjectAnchors{HireDate: datePtr(2020, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, date(2020, 1, 1), got)
}

func TestAnchor_TruncatesToDate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 17, 45, 0, 0, time.UTC)
	got, err := obligation.CustomAnchor{}.Resolve(obligation.SubjectAnchors{Custom: &ts})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 1), got)
}

func TestAnchorFor_Unknown(t *testing.T) {
	_, err := obligation.AnchorFor("FIRST_DAY")
	assert.True(t, errors.IsValidation(err))
	assert.False(t, obligation.AnchorKind("FIRST_DAY").IsValid())
	assert.True(t, obligation.AnchorCustom.IsValid())
}
