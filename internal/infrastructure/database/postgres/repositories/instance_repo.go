package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

const instanceColumns = `
	id, organization_id, template_id, subject_type, subject_id, structure_id,
	title, due_date, notes, status,
	is_recurring, recurrence_unit, recurrence_every, anchor, schedule_start, cycle_index, predecessor_id,
	completed_at, cancelled_at, pending_regeneration,
	version, created_at, updated_at`

func scanInstance(row scanner) (*domain.Instance, error) {
	inst := &domain.Instance{}
	err := row.Scan(
		&inst.ID, &inst.OrganizationID, &inst.TemplateID, &inst.SubjectType, &inst.SubjectID, &inst.StructureID,
		&inst.Title, &inst.DueDate, &inst.Notes, &inst.Status,
		&inst.IsRecurring, &inst.RecurrenceUnit, &inst.RecurrenceEvery, &inst.Anchor, &inst.ScheduleStart, &inst.CycleIndex, &inst.PredecessorID,
		&inst.CompletedAt, &inst.CancelledAt, &inst.PendingRegeneration,
		&inst.Version, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.CompletedAt = utcPtr(inst.CompletedAt)
	inst.CancelledAt = utcPtr(inst.CancelledAt)
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return inst, nil
}

func collectInstances(rows pgx.Rows) ([]*domain.Instance, error) {
	defer rows.Close()
	var out []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, wrapDBError(err, "failed to scan instance")
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "failed to iterate instances")
	}
	return out, nil
}

// queryOptionalInstance returns nil without error when no row matches.
func (r *ObligationRepository) queryOptionalInstance(ctx context.Context, msg, sql string, args ...any) (*domain.Instance, error) {
	inst, err := scanInstance(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, wrapDBError(err, msg)
	}
	return inst, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateInstance
// ─────────────────────────────────────────────────────────────────────────────

// CreateInstance inserts inst and its reminders in one transaction; outside
// WithTx it opens its own. ON CONFLICT DO NOTHING keeps the surrounding
// transaction usable when another writer already holds the same cycle or
// predecessor.
func (r *ObligationRepository) CreateInstance(ctx context.Context, inst *domain.Instance, reminders []*domain.Reminder) error {
	if !r.inTx && len(reminders) > 0 {
		return r.WithTx(ctx, func(tx domain.Repository) error {
			return tx.CreateInstance(ctx, inst, reminders)
		})
	}

	r.logger.Debug("ObligationRepository.CreateInstance",
		logging.String(logging.KeyInstanceID, inst.ID),
		logging.String(logging.KeySubjectID, inst.SubjectID),
		logging.Int("cycle_index", inst.CycleIndex))

	if inst.ID == "" {
		inst.ID = string(common.NewID())
	}
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = inst.CreatedAt
	}
	inst.Version = 1

	tag, err := r.db.Exec(ctx, `
		INSERT INTO obligation_instances (`+instanceColumns+`)
		VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,
			$21,$22,$23
		)
		ON CONFLICT DO NOTHING`,
		inst.ID, inst.OrganizationID, inst.TemplateID, inst.SubjectType, inst.SubjectID, inst.StructureID,
		inst.Title, inst.DueDate, inst.Notes, inst.Status,
		inst.IsRecurring, inst.RecurrenceUnit, inst.RecurrenceEvery, inst.Anchor, inst.ScheduleStart, inst.CycleIndex, inst.PredecessorID,
		inst.CompletedAt, inst.CancelledAt, inst.PendingRegeneration,
		inst.Version, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("ObligationRepository.CreateInstance", logging.Err(err))
		if pgErrorCode(err) == pgForeignKeyViolation {
			return errors.Wrap(err, errors.ErrCodeOrganizationNotFound, "instance references an unknown organization").
				WithDetailf("organization_id=%s", inst.OrganizationID)
		}
		return wrapDBError(err, "failed to insert instance")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeDuplicateInstance, "deadline instance already exists").
			WithDetailf("template_id=%s subject_id=%s cycle=%d", inst.TemplateIDValue(), inst.SubjectID, inst.CycleIndex)
	}

	if len(reminders) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rem := range reminders {
		rem.InstanceID = inst.ID
		if rem.OrganizationID == "" {
			rem.OrganizationID = inst.OrganizationID
		}
		if rem.CreatedAt.IsZero() {
			rem.CreatedAt = inst.CreatedAt
		}
		batch.Queue(`
			INSERT INTO obligation_reminders (`+reminderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (instance_id, days_before) DO NOTHING`,
			rem.ID, rem.InstanceID, rem.OrganizationID, rem.DaysBefore, rem.Message, rem.TriggeredAt, rem.CreatedAt)
	}
	br := r.db.SendBatch(ctx, batch)
	for range reminders {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return wrapDBError(err, "failed to insert reminder")
		}
	}
	if err := br.Close(); err != nil {
		return wrapDBError(err, "failed to insert reminders")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────────────────────

func (r *ObligationRepository) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	return r.getInstance(ctx, id, false)
}

func (r *ObligationRepository) GetInstanceForUpdate(ctx context.Context, id string) (*domain.Instance, error) {
	return r.getInstance(ctx, id, true)
}

func (r *ObligationRepository) getInstance(ctx context.Context, id string, lock bool) (*domain.Instance, error) {
	sql := `SELECT ` + instanceColumns + ` FROM obligation_instances WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	inst, err := scanInstance(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeInstanceNotFound, "deadline instance not found").WithDetailf("instance_id=%s", id)
		}
		return nil, wrapDBError(err, "failed to load instance")
	}
	return inst, nil
}

func (r *ObligationRepository) FindLatestInstance(ctx context.Context, templateID, subjectID string) (*domain.Instance, error) {
	return r.queryOptionalInstance(ctx, "failed to load latest instance", `
		SELECT `+instanceColumns+`
		FROM obligation_instances
		WHERE template_id = $1 AND subject_id = $2
		ORDER BY cycle_index DESC
		LIMIT 1`, templateID, subjectID)
}

func (r *ObligationRepository) FindInstanceByCycle(ctx context.Context, templateID, subjectID string, cycle int) (*domain.Instance, error) {
	return r.queryOptionalInstance(ctx, "failed to load instance cycle", `
		SELECT `+instanceColumns+`
		FROM obligation_instances
		WHERE template_id = $1 AND subject_id = $2 AND cycle_index = $3`, templateID, subjectID, cycle)
}

// FindSuccessor follows the predecessor link first, then the template cycle
// sequence.
func (r *ObligationRepository) FindSuccessor(ctx context.Context, prior *domain.Instance) (*domain.Instance, error) {
	next, err := r.queryOptionalInstance(ctx, "failed to load successor", `
		SELECT `+instanceColumns+` FROM obligation_instances WHERE predecessor_id = $1`, prior.ID)
	if err != nil || next != nil || prior.TemplateID == nil {
		return next, err
	}
	return r.FindInstanceByCycle(ctx, *prior.TemplateID, prior.SubjectID, prior.CycleIndex+1)
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateInstance
// ─────────────────────────────────────────────────────────────────────────────

// UpdateInstance writes the lifecycle fields when the stored version still
// matches inst.Version.
func (r *ObligationRepository) UpdateInstance(ctx context.Context, inst *domain.Instance) error {
	r.logger.Debug("ObligationRepository.UpdateInstance",
		logging.String(logging.KeyInstanceID, inst.ID), logging.String("status", string(inst.Status)))

	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE obligation_instances SET
			status = $3,
			notes = $4,
			completed_at = $5,
			cancelled_at = $6,
			pending_regeneration = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		inst.ID, inst.Version,
		inst.Status, inst.Notes, inst.CompletedAt, inst.CancelledAt, inst.PendingRegeneration, inst.UpdatedAt,
	)
	if err != nil {
		return wrapDBError(err, "failed to update instance")
	}
	if tag.RowsAffected() == 0 {
		var actual int
		err := r.db.QueryRow(ctx, `SELECT version FROM obligation_instances WHERE id = $1`, inst.ID).Scan(&actual)
		if isNoRows(err) {
			return errors.New(errors.ErrCodeInstanceNotFound, "deadline instance not found").WithDetailf("instance_id=%s", inst.ID)
		}
		if err != nil {
			return wrapDBError(err, "failed to check instance version")
		}
		return errors.Conflict("instance was modified concurrently").
			WithDetailf("instance_id=%s expected_version=%d actual_version=%d", inst.ID, inst.Version, actual)
	}
	inst.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ListInstances
// ─────────────────────────────────────────────────────────────────────────────

// buildInstanceWhere renders filter as a WHERE clause. Placeholders start at
// $1 with the organization id.
func buildInstanceWhere(orgID string, f domain.InstanceFilter) (string, []any) {
	conds := []string{"organization_id = $1"}
	args := []any{orgID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.OpenOnly {
		conds = append(conds, "status IN ('PENDING', 'OVERDUE')")
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.StructureID != "" {
		add("structure_id = $%d", f.StructureID)
	}
	if f.TemplateID != "" {
		add("template_id = $%d", f.TemplateID)
	}
	if f.DueFrom != nil {
		add("due_date >= $%d", common.DateOf(*f.DueFrom))
	}
	if f.DueTo != nil {
		add("due_date <= $%d", common.DateOf(*f.DueTo))
	}
	if f.OverdueAsOf != nil {
		add("(status = 'OVERDUE' OR (status = 'PENDING' AND due_date < $%d))", common.DateOf(*f.OverdueAsOf))
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListInstances returns one page of matching instances ordered by due date,
// plus the total match count.
func (r *ObligationRepository) ListInstances(ctx context.Context, orgID string, filter domain.InstanceFilter, opts ...domain.ListOption) ([]*domain.Instance, int64, error) {
	o := domain.ApplyListOptions(opts...)
	where, args := buildInstanceWhere(orgID, filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM obligation_instances `+where, args...).Scan(&total); err != nil {
		r.logger.Error("ObligationRepository.ListInstances: count", logging.Err(err))
		return nil, 0, wrapDBError(err, "count failed")
	}

	args = append(args, o.Limit, o.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM obligation_instances %s
		ORDER BY due_date ASC, id ASC
		LIMIT $%d OFFSET $%d`, instanceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		r.logger.Error("ObligationRepository.ListInstances: query", logging.Err(err))
		return nil, 0, wrapDBError(err, "query failed")
	}
	items, err := collectInstances(rows)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*domain.Instance{}
	}
	return items, total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reconciliation and regeneration
// ─────────────────────────────────────────────────────────────────────────────

// MarkOverdue flips stale PENDING rows of orgID in one statement.
func (r *ObligationRepository) MarkOverdue(ctx context.Context, orgID string, today time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE obligation_instances
		SET status = 'OVERDUE', version = version + 1, updated_at = NOW()
		WHERE organization_id = $1 AND status = 'PENDING' AND due_date < $2
		RETURNING id`, orgID, common.DateOf(today))
	if err != nil {
		return nil, wrapDBError(err, "failed to mark instances overdue")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapDBError(err, "failed to collect overdue ids")
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *ObligationRepository) ListOrganizationsWithStaleInstances(ctx context.Context, today time.Time) ([]string, error) {
	return r.listOrganizations(ctx, `
		SELECT DISTINCT organization_id
		FROM obligation_instances
		WHERE status = 'PENDING' AND due_date < $1
		ORDER BY organization_id`, common.DateOf(today))
}

// ListPendingRegeneration returns DONE instances whose successor is still
// missing. A non-positive limit returns all of them.
func (r *ObligationRepository) ListPendingRegeneration(ctx context.Context, limit int) ([]*domain.Instance, error) {
	sql := `
		SELECT ` + instanceColumns + `
		FROM obligation_instances
		WHERE pending_regeneration AND status = 'DONE'
		ORDER BY id`
	var args []any
	if limit > 0 {
		sql += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBError(err, "failed to list pending regenerations")
	}
	return collectInstances(rows)
}

func (r *ObligationRepository) listOrganizations(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBError(err, "failed to list organizations")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapDBError(err, "failed to collect organization ids")
	}
	return ids, nil
}

//Personal.AI order the ending
