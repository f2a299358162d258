package repositories

import (
	"context"
	"time"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

const templateColumns = `
	id, owner_type, organization_id, scope, compliance_type,
	title, description, legal_reference, source_url, notes,
	recurrence_unit, recurrence_every, recurring, first_due_offset_days, anchor,
	region, effective_from, effective_to, active,
	reminder_days_before, overrides_template_id,
	created_at, updated_at`

func scanTemplate(row scanner) (*domain.Template, error) {
	t := &domain.Template{}
	err := row.Scan(
		&t.ID, &t.OwnerType, &t.OrganizationID, &t.Scope, &t.ComplianceType,
		&t.Title, &t.Description, &t.LegalReference, &t.SourceURL, &t.Notes,
		&t.RecurrenceUnit, &t.RecurrenceEvery, &t.Recurring, &t.FirstDueOffsetDays, &t.Anchor,
		&t.Region, &t.EffectiveFrom, &t.EffectiveTo, &t.Active,
		&t.ReminderDaysBefore, &t.OverridesTemplateID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SaveTemplate
// ─────────────────────────────────────────────────────────────────────────────

// SaveTemplate inserts t or replaces the stored row with the same id.
func (r *ObligationRepository) SaveTemplate(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		t.ID = string(common.NewID())
	}
	r.logger.Debug("ObligationRepository.SaveTemplate", logging.String(logging.KeyTemplateID, t.ID))

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	err := r.db.QueryRow(ctx, `
		INSERT INTO obligation_templates (`+templateColumns+`)
		VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,
			$16,$17,$18,$19,
			$20,$21,
			$22,$23
		)
		ON CONFLICT (id) DO UPDATE SET
			owner_type = EXCLUDED.owner_type,
			organization_id = EXCLUDED.organization_id,
			scope = EXCLUDED.scope,
			compliance_type = EXCLUDED.compliance_type,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			legal_reference = EXCLUDED.legal_reference,
			source_url = EXCLUDED.source_url,
			notes = EXCLUDED.notes,
			recurrence_unit = EXCLUDED.recurrence_unit,
			recurrence_every = EXCLUDED.recurrence_every,
			recurring = EXCLUDED.recurring,
			first_due_offset_days = EXCLUDED.first_due_offset_days,
			anchor = EXCLUDED.anchor,
			region = EXCLUDED.region,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to,
			active = EXCLUDED.active,
			reminder_days_before = EXCLUDED.reminder_days_before,
			overrides_template_id = EXCLUDED.overrides_template_id,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		t.ID, t.OwnerType, t.OrganizationID, t.Scope, t.ComplianceType,
		t.Title, t.Description, t.LegalReference, t.SourceURL, t.Notes,
		t.RecurrenceUnit, t.RecurrenceEvery, t.Recurring, t.FirstDueOffsetDays, t.Anchor,
		t.Region, t.EffectiveFrom, t.EffectiveTo, t.Active,
		t.ReminderDaysBefore, t.OverridesTemplateID,
		t.CreatedAt, t.UpdatedAt,
	).Scan(&t.CreatedAt)
	if err != nil {
		r.logger.Error("ObligationRepository.SaveTemplate", logging.Err(err))
		if pgErrorCode(err) == pgForeignKeyViolation {
			return errors.Wrap(err, errors.ErrCodeValidation, "template references an unknown organization or template").
				WithDetailf("template_id=%s", t.ID)
		}
		return wrapDBError(err, "failed to save template")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func (r *ObligationRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	return r.getTemplate(ctx, id, false)
}

func (r *ObligationRepository) GetTemplateForUpdate(ctx context.Context, id string) (*domain.Template, error) {
	return r.getTemplate(ctx, id, true)
}

func (r *ObligationRepository) getTemplate(ctx context.Context, id string, lock bool) (*domain.Template, error) {
	sql := `SELECT ` + templateColumns + ` FROM obligation_templates WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	t, err := scanTemplate(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeTemplateNotFound, "obligation template not found").WithDetailf("template_id=%s", id)
		}
		return nil, wrapDBError(err, "failed to load template")
	}
	return t, nil
}

// ListCandidateTemplates returns active templates of scope visible to orgID.
func (r *ObligationRepository) ListCandidateTemplates(ctx context.Context, orgID string, scope domain.SubjectType) ([]*domain.Template, error) {
	r.logger.Debug("ObligationRepository.ListCandidateTemplates",
		logging.String(logging.KeyOrganizationID, orgID), logging.String("scope", string(scope)))

	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM obligation_templates
		WHERE active AND scope = $1
		  AND (owner_type = 'GLOBAL' OR organization_id = $2)
		ORDER BY id`, scope, orgID)
	if err != nil {
		return nil, wrapDBError(err, "failed to list candidate templates")
	}
	defer rows.Close()

	var out []*domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, wrapDBError(err, "failed to scan template")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "failed to iterate templates")
	}
	return out, nil
}

func (r *ObligationRepository) CountInstancesForTemplate(ctx context.Context, templateID string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM obligation_instances WHERE template_id = $1`, templateID,
	).Scan(&n); err != nil {
		return 0, wrapDBError(err, "failed to count template instances")
	}
	return n, nil
}

//Personal.AI order the ending
