package repositories

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// querier abstracts *pgxpool.Pool and pgx.Tx so one repository value can run
// against either.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// scanner abstracts pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// PostgreSQL SQLSTATE codes the repositories branch on.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// utcPtr converts a scanned timestamptz to UTC. pgx scans in the process
// time zone.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isNoRows(err error) bool {
	return stderrors.Is(err, pgx.ErrNoRows)
}

// wrapDBError maps constraint failures onto domain codes and everything else
// onto CodeDBQueryError.
func wrapDBError(err error, msg string) error {
	switch pgErrorCode(err) {
	case pgUniqueViolation:
		return errors.Wrap(err, errors.ErrCodeConflict, msg)
	case pgForeignKeyViolation, pgCheckViolation:
		return errors.Wrap(err, errors.ErrCodeValidation, msg)
	}
	return errors.Wrap(err, errors.CodeDBQueryError, msg)
}

//Personal.AI order the ending
