package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	pkgerrors "github.com/turtacn/ComplyTrack/pkg/errors"
)

func TestRemindersDue(t *testing.T) {
	h := newHarness()
	h.backend.svc.On("DueReminders", mock.Anything, "org-1", date("2025-03-01")).
		Return([]*domain.Reminder{
			{ID: "rem-1", InstanceID: "inst-1", DaysBefore: 30, Message: "renew the certificate"},
		}, nil).Once()

	out, err := h.run(t, "reminders", "due", "--org", "org-1", "--as-of", "2025-03-01")
	require.NoError(t, err)
	h.backend.svc.AssertExpectations(t)
	assert.Regexp(t, `rem-1\s+inst-1\s+30\s+-\s+renew the certificate`, out)
}

func TestRemindersAck(t *testing.T) {
	at := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)

	t.Run("first delivery", func(t *testing.T) {
		h := newHarness()
		h.backend.svc.On("MarkReminderTriggered", mock.Anything, "rem-1", date("2025-03-02")).
			Return(&domain.Reminder{ID: "rem-1", InstanceID: "inst-1", DaysBefore: 7, TriggeredAt: &at}, true, nil).Once()

		out, err := h.run(t, "reminders", "ack", "rem-1", "--at", "2025-03-02")
		require.NoError(t, err)
		assert.NotContains(t, out, "already triggered")
		assert.Contains(t, out, "2025-03-02 09:30")
	})

	t.Run("repeated delivery", func(t *testing.T) {
		h := newHarness()
		h.backend.svc.On("MarkReminderTriggered", mock.Anything, "rem-1", time.Time{}).
			Return(&domain.Reminder{ID: "rem-1", InstanceID: "inst-1", DaysBefore: 7, TriggeredAt: &at}, false, nil).Once()

		out, err := h.run(t, "reminders", "ack", "rem-1")
		require.NoError(t, err)
		assert.Contains(t, out, "OK: reminder rem-1 was already triggered\n")
	})

	t.Run("unknown reminder", func(t *testing.T) {
		h := newHarness()
		h.backend.svc.On("MarkReminderTriggered", mock.Anything, "rem-x", time.Time{}).
			Return(nil, false, pkgerrors.NotFound("reminder not found")).Once()

		_, err := h.run(t, "reminders", "ack", "rem-x")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestRemindersDispatch(t *testing.T) {
	h := newHarness()
	h.backend.jobs.On("DispatchReminders", mock.Anything, time.Time{}).
		Return(&app.JobReport{Job: "dispatch_reminders", Organizations: 3, Affected: 12, Duration: 2 * time.Second}, nil).Once()

	out, err := h.run(t, "-o", "json", "reminders", "dispatch")
	require.NoError(t, err)
	h.backend.jobs.AssertExpectations(t)
	assert.Contains(t, out, `"job": "dispatch_reminders"`)
	assert.Contains(t, out, `"affected": 12`)
}

func TestReconcile(t *testing.T) {
	t.Run("single organization", func(t *testing.T) {
		h := newHarness()
		h.backend.svc.On("ReconcileOverdue", mock.Anything, "org-1").Return(4, nil).Once()

		out, err := h.run(t, "reconcile", "--org", "org-1")
		require.NoError(t, err)
		assert.Equal(t, "ORGANIZATION  RECONCILED\n------------  ----------\norg-1         4\n", out)
		h.backend.jobs.AssertNotCalled(t, "ReconcileAll", mock.Anything)
	})

	t.Run("all organizations", func(t *testing.T) {
		h := newHarness()
		h.backend.jobs.On("ReconcileAll", mock.Anything).
			Return(&app.JobReport{Job: "reconcile_overdue", Organizations: 2, Affected: 5, Failed: []string{"org-9"}}, nil).Once()

		out, err := h.run(t, "reconcile")
		require.NoError(t, err)
		h.backend.svc.AssertNotCalled(t, "ReconcileOverdue", mock.Anything, mock.Anything)
		assert.Regexp(t, `reconcile_overdue\s+false\s+2\s+5\s+org-9`, out)
	})
}

func TestRegenerate(t *testing.T) {
	h := newHarness()
	h.backend.svc.On("RetryPendingRegenerations", mock.Anything, 25).
		Return(&app.RegenerationReport{Attempted: 3, Recovered: 2, Failed: []string{"inst-4"}}, nil).Once()

	out, err := h.run(t, "regenerate", "--limit", "25")
	require.NoError(t, err)
	assert.Equal(t, "ATTEMPTED  RECOVERED  FAILED\n---------  ---------  ------\n3          2          inst-4\n", out)

	_, err = h.run(t, "regenerate", "--limit", "0")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

//Personal.AI order the ending
