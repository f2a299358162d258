package obligation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/testutil"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

func newGenerator(opts ...obligation.Option) *obligation.InstanceGenerator {
	opts = append([]obligation.Option{obligation.WithClock(fixedClock)}, opts...)
	return obligation.NewInstanceGenerator(obligation.NewReminderPlanner([]int{30, 14, 7, 1}), opts...)
}

func hireAnchors() obligation.SubjectAnchors {
	return obligation.SubjectAnchors{HireDate: datePtr(2024, 1, 15)}
}

func TestEnsureInstance_CreatesFirstCycle(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	tp := globalTemplate("g1", "Fire Safety")
	tp.FirstDueOffsetDays = 30
	tp.Notes = "bring ID"

	inst, created, err := g.EnsureInstance(context.Background(), store, tp, person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, date(2024, 2, 14), inst.DueDate)
	assert.Equal(t, date(2024, 2, 14), inst.ScheduleStart)
	assert.Equal(t, 0, inst.CycleIndex)
	assert.Equal(t, obligation.StatusPending, inst.Status)
	assert.Equal(t, "g1", inst.TemplateIDValue())
	assert.Equal(t, "Fire Safety", inst.Title)
	assert.Equal(t, "bring ID", inst.Notes)
	assert.True(t, inst.IsRecurring)
	assert.Equal(t, obligation.AnchorHireDate, inst.Anchor)
	assert.Nil(t, inst.PredecessorID)

	rs, err := store.ListReminders(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 14, 7, 1}, obligation.ReminderDays(rs))
}

func TestEnsureInstance_NegativeOffsetFallsBeforeAnchor(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	tp := globalTemplate("g1", "Pre-employment screening")
	tp.FirstDueOffsetDays = -5
	require.NoError(t, tp.Validate())

	inst, created, err := g.EnsureInstance(context.Background(), store, tp, person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, date(2024, 1, 10), inst.DueDate)
	assert.Equal(t, date(2024, 1, 10), inst.ScheduleStart)

	next, err := g.BuildSuccessor(inst)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 1, 10), next.DueDate)
}

func TestEnsureInstance_Idempotent(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	tp := globalTemplate("g1", "Fire Safety")
	ctx := context.Background()

	first, created, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.AllInstances(), 1)
}

func TestEnsureInstance_TemplateReminderOverride(t *testing.T) {
	store := testutil.NewMemoryStore()
	tp := globalTemplate("g1", "Fire Safety")
	tp.ReminderDaysBefore = []int{}

	inst, _, err := newGenerator().EnsureInstance(context.Background(), store, tp, person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)
	rs, err := store.ListReminders(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestEnsureInstance_Rejects(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	ctx := context.Background()
	tp := globalTemplate("g1", "Fire Safety")

	_, _, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), obligation.SubjectAnchors{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAnchorDateMissing))

	structure := obligation.Subject{OrganizationID: "org-1", Type: obligation.SubjectStructure, ID: "s-1"}
	_, _, err = g.EnsureInstance(ctx, store, tp, structure, hireAnchors())
	assert.True(t, errors.IsValidation(err))

	_, _, err = g.EnsureInstance(ctx, store, tp, person("", "p-1"), hireAnchors())
	assert.True(t, errors.IsValidation(err))

	_, _, err = g.EnsureInstance(ctx, store, nil, person("org-1", "p-1"), hireAnchors())
	assert.True(t, errors.IsValidation(err))

	assert.Empty(t, store.AllInstances())
}

func TestEnsureInstance_AfterCompletion(t *testing.T) {
	ctx := context.Background()
	g := newGenerator()

	t.Run("recurring advances", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		tp := globalTemplate("g1", "Fire Safety")
		inst, _, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
		require.NoError(t, err)

		inst.Status = obligation.StatusDone
		inst.CompletedAt = datePtr(2024, 1, 20)
		require.NoError(t, store.UpdateInstance(ctx, inst))

		next, created, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 1, next.CycleIndex)
		assert.Equal(t, date(2025, 1, 15), next.DueDate)
		require.NotNil(t, next.PredecessorID)
		assert.Equal(t, inst.ID, *next.PredecessorID)
	})

	t.Run("one-off stays done", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		tp := globalTemplate("g1", "Fire Safety")
		tp.Recurring = false
		inst, _, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
		require.NoError(t, err)

		inst.Status = obligation.StatusDone
		require.NoError(t, store.UpdateInstance(ctx, inst))

		got, created, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, inst.ID, got.ID)
		assert.Len(t, store.AllInstances(), 1)
	})

	t.Run("cancelled stays cancelled", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		tp := globalTemplate("g1", "Fire Safety")
		inst, _, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
		require.NoError(t, err)

		inst.Status = obligation.StatusCancelled
		require.NoError(t, store.UpdateInstance(ctx, inst))

		got, created, err := g.EnsureInstance(ctx, store, tp, person("org-1", "p-1"), hireAnchors())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, obligation.StatusCancelled, got.Status)
	})
}

func TestEnsureInstance_LostRaceReturnsWinner(t *testing.T) {
	store := testutil.NewMemoryStore()
	duplicates := 0
	g := newGenerator(obligation.WithDuplicateHook(func() { duplicates++ }))
	tp := globalTemplate("g1", "Fire Safety")

	store.BeforeCreate = func(inst *obligation.Instance) {
		store.BeforeCreate = nil
		winner := *inst
		winner.ID = "winner"
		store.PutInstance(&winner)
	}

	got, created, err := g.EnsureInstance(context.Background(), store, tp, person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", got.ID)
	assert.Equal(t, 1, duplicates)
	assert.Len(t, store.AllInstances(), 1)
}

func TestEnsureInstance_Concurrent(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	tp := globalTemplate("g1", "Fire Safety")

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, _, err := g.EnsureInstance(context.Background(), store, tp, person("org-1", "p-1"), hireAnchors())
			errs[i] = err
			if inst != nil {
				results[i] = inst.ID
			}
		}(i)
	}
	wg.Wait()

	all := store.AllInstances()
	require.Len(t, all, 1)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, all[0].ID, results[i])
	}
}

func TestBuildSuccessor_Rolling(t *testing.T) {
	g := newGenerator()
	prior := &obligation.Instance{
		ID:              "i-0",
		OrganizationID:  "org-1",
		SubjectType:     obligation.SubjectPerson,
		SubjectID:       "p-1",
		Title:           "Monthly check",
		DueDate:         date(2024, 2, 29),
		Status:          obligation.StatusDone,
		IsRecurring:     true,
		RecurrenceUnit:  obligation.UnitMonth,
		RecurrenceEvery: 1,
		Anchor:          obligation.AnchorCustom,
		ScheduleStart:   date(2024, 1, 31),
		CycleIndex:      1,
		CompletedAt:     datePtr(2024, 2, 10),
	}

	next, err := g.BuildSuccessor(prior)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 31), next.DueDate)
	assert.Equal(t, 2, next.CycleIndex)
	assert.Equal(t, date(2024, 1, 31), next.ScheduleStart)
	assert.Equal(t, obligation.StatusPending, next.Status)
	assert.Equal(t, "i-0", *next.PredecessorID)

	prior.ScheduleStart = time.Time{}
	next, err = g.BuildSuccessor(prior)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 29), next.DueDate)
}

func TestBuildSuccessor_LastCompletion(t *testing.T) {
	g := newGenerator()
	prior := &obligation.Instance{
		ID:              "i-0",
		OrganizationID:  "org-1",
		SubjectType:     obligation.SubjectPerson,
		SubjectID:       "p-1",
		Title:           "Medical check",
		DueDate:         date(2024, 3, 1),
		Status:          obligation.StatusDone,
		IsRecurring:     true,
		RecurrenceUnit:  obligation.UnitMonth,
		RecurrenceEvery: 6,
		Anchor:          obligation.AnchorLastCompletion,
		ScheduleStart:   date(2024, 3, 1),
		CompletedAt:     datePtr(2024, 5, 20),
	}

	next, err := g.BuildSuccessor(prior)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 11, 20), next.DueDate)
	assert.Equal(t, date(2024, 11, 20), next.ScheduleStart)

	prior.CompletedAt = nil
	_, err = g.BuildSuccessor(prior)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAnchorDateMissing))

	prior.IsRecurring = false
	_, err = g.BuildSuccessor(prior)
	assert.True(t, errors.IsValidation(err))
}

func TestAdvanceCycle_RequiresDone(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	inst, _, err := g.EnsureInstance(context.Background(), store, globalTemplate("g1", "x"), person("org-1", "p-1"), hireAnchors())
	require.NoError(t, err)

	_, _, err = g.AdvanceCycle(context.Background(), store, inst)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIllegalTransition))

	inst.IsRecurring = false
	next, created, err := g.AdvanceCycle(context.Background(), store, inst)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.False(t, created)
}

func TestCreateAdHoc(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	ctx := context.Background()

	inst, err := g.CreateAdHoc(ctx, store, obligation.AdHocRequest{
		Subject:         obligation.Subject{OrganizationID: "org-1", Type: obligation.SubjectStructure, ID: "s-1"},
		Title:           "  Renew permit ",
		DueDate:         date(2024, 9, 1),
		Recurrence:      &obligation.Recurrence{Unit: obligation.UnitYear, Every: 2},
		ReminderMessage: "permit",
	})
	require.NoError(t, err)
	assert.Nil(t, inst.TemplateID)
	assert.Equal(t, "Renew permit", inst.Title)
	assert.Equal(t, obligation.AnchorCustom, inst.Anchor)
	assert.True(t, inst.IsRecurring)

	rs, err := store.ListReminders(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 14, 7, 1}, obligation.ReminderDays(rs))
	assert.Equal(t, "permit", rs[0].Message)

	inst.Status = obligation.StatusDone
	inst.CompletedAt = datePtr(2024, 6, 1)
	require.NoError(t, store.UpdateInstance(ctx, inst))
	next, created, err := g.AdvanceCycle(ctx, store, inst)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, date(2026, 9, 1), next.DueDate)

	again, created, err := g.AdvanceCycle(ctx, store, inst)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, next.ID, again.ID)
}

func TestCreateAdHoc_Validation(t *testing.T) {
	store := testutil.NewMemoryStore()
	g := newGenerator()
	ctx := context.Background()
	subject := person("org-1", "p-1")

	_, err := g.CreateAdHoc(ctx, store, obligation.AdHocRequest{Subject: subject, DueDate: date(2024, 9, 1)})
	assert.True(t, errors.IsValidation(err))

	_, err = g.CreateAdHoc(ctx, store, obligation.AdHocRequest{Subject: subject, Title: "x"})
	assert.True(t, errors.IsValidation(err))

	_, err = g.CreateAdHoc(ctx, store, obligation.AdHocRequest{
		Subject: subject, Title: "x", DueDate: date(2024, 9, 1),
		Recurrence: &obligation.Recurrence{Unit: obligation.UnitDay, Every: 0},
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRecurrence))

	_, err = g.CreateAdHoc(ctx, store, obligation.AdHocRequest{
		Subject: subject, Title: "x", DueDate: date(2024, 9, 1), ReminderDaysBefore: []int{-1},
	})
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, store.AllInstances())
}
