package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

const reminderColumns = `id, instance_id, organization_id, days_before, message, triggered_at, created_at`

func scanReminder(row scanner) (*domain.Reminder, error) {
	rem := &domain.Reminder{}
	if err := row.Scan(&rem.ID, &rem.InstanceID, &rem.OrganizationID, &rem.DaysBefore, &rem.Message, &rem.TriggeredAt, &rem.CreatedAt); err != nil {
		return nil, err
	}
	rem.TriggeredAt = utcPtr(rem.TriggeredAt)
	rem.CreatedAt = rem.CreatedAt.UTC()
	return rem, nil
}

func collectReminders(rows pgx.Rows) ([]*domain.Reminder, error) {
	defer rows.Close()
	var out []*domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, wrapDBError(err, "failed to scan reminder")
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "failed to iterate reminders")
	}
	return out, nil
}

func (r *ObligationRepository) GetReminder(ctx context.Context, id string) (*domain.Reminder, error) {
	rem, err := scanReminder(r.db.QueryRow(ctx, `SELECT `+reminderColumns+` FROM obligation_reminders WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeReminderNotFound, "reminder not found").WithDetailf("reminder_id=%s", id)
		}
		return nil, wrapDBError(err, "failed to load reminder")
	}
	return rem, nil
}

// ListReminders returns the reminders of one instance, earliest first.
func (r *ObligationRepository) ListReminders(ctx context.Context, instanceID string) ([]*domain.Reminder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM obligation_reminders
		WHERE instance_id = $1
		ORDER BY days_before DESC`, instanceID)
	if err != nil {
		return nil, wrapDBError(err, "failed to list reminders")
	}
	return collectReminders(rows)
}

// ListDueReminders returns untriggered reminders of open instances of orgID
// whose trigger date (due date minus lead time) is on or before asOf.
func (r *ObligationRepository) ListDueReminders(ctx context.Context, orgID string, asOf time.Time) ([]*domain.Reminder, error) {
	r.logger.Debug("ObligationRepository.ListDueReminders",
		logging.String(logging.KeyOrganizationID, orgID), logging.Date("as_of", asOf))

	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.instance_id, r.organization_id, r.days_before, r.message, r.triggered_at, r.created_at
		FROM obligation_reminders r
		JOIN obligation_instances i ON i.id = r.instance_id
		WHERE i.organization_id = $1
		  AND i.status IN ('PENDING', 'OVERDUE')
		  AND r.triggered_at IS NULL
		  AND i.due_date - r.days_before <= $2
		ORDER BY i.due_date ASC, r.days_before DESC, r.id ASC`, orgID, common.DateOf(asOf))
	if err != nil {
		return nil, wrapDBError(err, "failed to list due reminders")
	}
	return collectReminders(rows)
}

func (r *ObligationRepository) ListOrganizationsWithDueReminders(ctx context.Context, asOf time.Time) ([]string, error) {
	return r.listOrganizations(ctx, `
		SELECT DISTINCT i.organization_id
		FROM obligation_reminders r
		JOIN obligation_instances i ON i.id = r.instance_id
		WHERE i.status IN ('PENDING', 'OVERDUE')
		  AND r.triggered_at IS NULL
		  AND i.due_date - r.days_before <= $1
		ORDER BY i.organization_id`, common.DateOf(asOf))
}

// MarkReminderTriggered stamps triggered_at once. A second call reports
// false without touching the row.
func (r *ObligationRepository) MarkReminderTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE obligation_reminders SET triggered_at = $2
		WHERE id = $1 AND triggered_at IS NULL`, id, at.UTC())
	if err != nil {
		return false, wrapDBError(err, "failed to mark reminder triggered")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetReminder(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

//Personal.AI order the ending
