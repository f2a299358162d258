package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// ObligationRepository
// ─────────────────────────────────────────────────────────────────────────────

// ObligationRepository is the PostgreSQL implementation of the obligation
// domain's Repository interface. Templates, instances and reminders live in
// three tables; the (template, subject, cycle) and predecessor unique indexes
// arbitrate concurrent generation.
type ObligationRepository struct {
	pool   *pgxpool.Pool
	db     querier
	inTx   bool
	logger logging.Logger
}

var _ domain.Repository = (*ObligationRepository)(nil)

// NewObligationRepository constructs a repository bound to pool.
func NewObligationRepository(pool *pgxpool.Pool, logger logging.Logger) *ObligationRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &ObligationRepository{pool: pool, logger: logger.Named("obligation_repo")}
	if pool != nil {
		r.db = pool
	}
	return r
}

func (r *ObligationRepository) bind(tx pgx.Tx) *ObligationRepository {
	return &ObligationRepository{pool: r.pool, db: tx, inTx: true, logger: r.logger}
}

// WithTx runs fn in a transaction. Calls made on an already transactional
// repository open a savepoint instead.
func (r *ObligationRepository) WithTx(ctx context.Context, fn func(domain.Repository) error) error {
	if r.inTx {
		return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			return fn(r.bind(tx))
		})
	}
	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, _ context.Context) error {
		return fn(r.bind(tx))
	})
}

//Personal.AI order the ending
