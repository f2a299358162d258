package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// Organization is the slice of the organization record the engine reads.
// The full record is owned by the CRUD service.
type Organization struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Region    string    `json:"region,omitempty" yaml:"region,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// OrganizationRepository reads and seeds the organizations table.
type OrganizationRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

var _ domain.OrganizationDirectory = (*OrganizationRepository)(nil)

// NewOrganizationRepository constructs an OrganizationRepository.
func NewOrganizationRepository(pool *pgxpool.Pool, logger logging.Logger) *OrganizationRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &OrganizationRepository{pool: pool, logger: logger}
}

// Region returns the organization's region code, "" when unset.
func (r *OrganizationRepository) Region(ctx context.Context, orgID string) (string, error) {
	var region string
	err := r.pool.QueryRow(ctx, `SELECT region FROM organizations WHERE id = $1`, orgID).Scan(&region)
	if err != nil {
		if isNoRows(err) {
			return "", errors.New(errors.ErrCodeOrganizationNotFound, "organization not found").WithDetailf("organization_id=%s", orgID)
		}
		return "", wrapDBError(err, "failed to load organization")
	}
	return region, nil
}

// Upsert creates org or updates its name and region.
func (r *OrganizationRepository) Upsert(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		return errors.Validation("organization id is required")
	}
	r.logger.Debug("OrganizationRepository.Upsert", logging.String(logging.KeyOrganizationID, org.ID))

	err := r.pool.QueryRow(ctx, `
		INSERT INTO organizations (id, name, region)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, region = EXCLUDED.region
		RETURNING created_at`, org.ID, org.Name, org.Region).Scan(&org.CreatedAt)
	if err != nil {
		return wrapDBError(err, "failed to save organization")
	}
	org.CreatedAt = org.CreatedAt.UTC()
	return nil
}

// List returns every organization ordered by id.
func (r *OrganizationRepository) List(ctx context.Context) ([]*Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, region, created_at FROM organizations ORDER BY id`)
	if err != nil {
		return nil, wrapDBError(err, "failed to list organizations")
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		org := &Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.Region, &org.CreatedAt); err != nil {
			return nil, wrapDBError(err, "failed to scan organization")
		}
		org.CreatedAt = org.CreatedAt.UTC()
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "failed to iterate organizations")
	}
	return out, nil
}

//Personal.AI order the ending
