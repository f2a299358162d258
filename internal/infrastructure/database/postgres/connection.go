// Package postgres manages the PostgreSQL connection pool, transactions and
// schema migrations of the obligation engine.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// pingTimeout bounds the connectivity check performed at pool creation.
const pingTimeout = 5 * time.Second

// ─────────────────────────────────────────────────────────────────────────────
// Pool construction
// ─────────────────────────────────────────────────────────────────────────────

// NewConnectionPool creates a pgx connection pool from cfg and verifies that
// the server is reachable.
func NewConnectionPool(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	poolCfg, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "invalid database configuration")
	}
	configurePool(poolCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "failed to create connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "failed to ping database")
	}

	logger.Info("postgres connection pool established",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
		logging.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// buildConnString renders the pgx connection URL for cfg.
func buildConnString(cfg config.DatabaseConfig) string {
	return cfg.DSN()
}

// configurePool copies the pool tunables from cfg. Zero values keep the pgx
// defaults.
func configurePool(poolCfg *pgxpool.Config, cfg config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.StatementTimeout > 0 && poolCfg.ConnConfig != nil {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
}

// Close releases every connection held by pool. Nil is ignored.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// HealthCheck pings the database. The readiness check calls it.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New(errors.CodeDBConnectionError, "connection pool is not initialized")
	}
	if err := pool.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "database ping failed")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transactions
// ─────────────────────────────────────────────────────────────────────────────

type txKey struct{}

// TxFromContext returns the transaction stored on ctx by WithTransaction.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// WithTransaction runs fn in a transaction. When ctx already carries one
// started by an enclosing WithTransaction, fn runs inside a savepoint of it.
// The transaction commits when fn returns nil and rolls back on error or
// panic; panics are re-raised after the rollback.
func WithTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx, txCtx context.Context) error) (err error) {
	var tx pgx.Tx
	if outer, ok := TxFromContext(ctx); ok {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = pool.Begin(ctx)
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(tx, txCtx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "failed to commit transaction")
	}
	return nil
}

//Personal.AI order the ending
