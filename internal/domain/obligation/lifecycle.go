package obligation

import (
	"context"
	"time"

	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// State machine
// ─────────────────────────────────────────────────────────────────────────────

var transitions = map[Status][]Status{
	StatusPending: {StatusDone, StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusDone, StatusCancelled},
}

// CanTransition reports whether an instance may move from one status to
// another. DONE and CANCELLED are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition is CanTransition returning an ErrCodeIllegalTransition error.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return errors.New(errors.ErrCodeIllegalTransition, "illegal status transition").
		WithDetailf("from=%s to=%s", from, to)
}

// ─────────────────────────────────────────────────────────────────────────────
// LifecycleManager
// ─────────────────────────────────────────────────────────────────────────────

// CompletionResult is the outcome of MarkDone.
type CompletionResult struct {
	Instance *Instance `json:"instance"`
	// Successor is the next cycle, nil for one-off instances or when its
	// creation was deferred.
	Successor        *Instance `json:"successor,omitempty"`
	SuccessorCreated bool      `json:"successor_created"`
}

// LifecycleManager applies status transitions and keeps recurring schedules
// moving.
type LifecycleManager struct {
	repo      Repository
	generator *InstanceGenerator
	opts      options
}

// NewLifecycleManager builds a manager.
func NewLifecycleManager(repo Repository, generator *InstanceGenerator, opts ...Option) *LifecycleManager {
	return &LifecycleManager{repo: repo, generator: generator, opts: applyOptions(opts)}
}

// Today returns the current calendar date in the configured zone.
func (m *LifecycleManager) Today() time.Time {
	return m.opts.today()
}

// MarkDone completes an open instance on completedAt (today when zero) and,
// for recurring instances, creates the next cycle in the same transaction.
// If the successor cannot be computed the completion still commits and the
// instance is flagged for regeneration; storage failures roll both back.
func (m *LifecycleManager) MarkDone(ctx context.Context, id string, completedAt time.Time) (*CompletionResult, error) {
	today := m.opts.today()
	completed := today
	if !completedAt.IsZero() {
		completed = common.DateOf(completedAt)
	}
	if completed.After(today) {
		return nil, errors.Validation("completion date cannot be in the future").
			WithDetailf("completed_at=%s today=%s", common.FormatDate(completed), common.FormatDate(today))
	}
	log := m.opts.logger.With(logging.String(logging.KeyInstanceID, id))

	var result *CompletionResult
	err := m.repo.WithTx(ctx, func(tx Repository) error {
		inst, err := tx.GetInstanceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(inst.Status, StatusDone); err != nil {
			return err
		}
		inst.Status = StatusDone
		inst.CompletedAt = &completed
		inst.UpdatedAt = m.opts.now().UTC()
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		result = &CompletionResult{Instance: inst}
		if !inst.IsRecurring {
			return nil
		}

		next, created, err := m.generator.AdvanceCycle(ctx, tx, inst)
		if err == nil {
			result.Successor, result.SuccessorCreated = next, created
			return nil
		}
		if !deferrable(err) {
			return err
		}
		logging.WithError(log, err).Warn("successor deferred, instance flagged for regeneration")
		inst.PendingRegeneration = true
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel closes an open instance without completing it. No successor is
// created.
func (m *LifecycleManager) Cancel(ctx context.Context, id string) (*Instance, error) {
	var out *Instance
	err := m.repo.WithTx(ctx, func(tx Repository) error {
		inst, err := tx.GetInstanceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(inst.Status, StatusCancelled); err != nil {
			return err
		}
		today := m.opts.today()
		inst.Status = StatusCancelled
		inst.CancelledAt = &today
		inst.UpdatedAt = m.opts.now().UTC()
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReconcileOverdue persists OVERDUE for every PENDING instance of orgID whose
// due date is before today and returns the affected ids.
func (m *LifecycleManager) ReconcileOverdue(ctx context.Context, orgID string) ([]string, error) {
	if orgID == "" {
		return nil, errors.Validation("organization id is required")
	}
	today := m.opts.today()
	ids, err := m.repo.MarkOverdue(ctx, orgID, today)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		m.opts.logger.Info("instances marked overdue",
			logging.String(logging.KeyOrganizationID, orgID),
			logging.Int("count", len(ids)),
			logging.Date("today", today))
	}
	return ids, nil
}

// RetryRegeneration creates the missing successor of a DONE instance flagged
// for regeneration and clears the flag. It returns the successor and whether
// this call created it; the successor is nil when the instance no longer
// needs one.
func (m *LifecycleManager) RetryRegeneration(ctx context.Context, id string) (*Instance, bool, error) {
	var (
		out     *Instance
		created bool
	)
	err := m.repo.WithTx(ctx, func(tx Repository) error {
		inst, err := tx.GetInstanceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !inst.PendingRegeneration {
			return nil
		}
		if inst.Status == StatusDone && inst.IsRecurring {
			next, c, err := m.generator.AdvanceCycle(ctx, tx, inst)
			if err != nil {
				return err
			}
			out, created = next, c
		}
		inst.PendingRegeneration = false
		inst.UpdatedAt = m.opts.now().UTC()
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func deferrable(err error) bool {
	return errors.IsValidation(err) || errors.IsInvariantViolation(err)
}

//Personal.AI order the ending
