package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // Postgres driver
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres/migrations"
)

// ─────────────────────────────────────────────────────────────────────────────
// Embedded source
// ─────────────────────────────────────────────────────────────────────────────

// migrationSource exposes the SQL files compiled into the binary.
func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return src, nil
}

func newMigrate(dbURL string) (*migrate.Migrate, error) {
	src, err := migrationSource()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate) {
	_, _ = m.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// RunMigrations
// ─────────────────────────────────────────────────────────────────────────────

// RunMigrations applies every pending migration. Nothing pending is not an
// error.
func RunMigrations(dbURL string) error {
	m, err := newMigrate(dbURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RollbackMigration
// ─────────────────────────────────────────────────────────────────────────────

// RollbackMigration reverts the given number of migrations.
func RollbackMigration(dbURL string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0, got %d", steps)
	}

	m, err := newMigrate(dbURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to roll back")
		}
		return fmt.Errorf("failed to rollback %d step(s): %w", steps, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MigrationStatus
// ─────────────────────────────────────────────────────────────────────────────

// MigrationStatus returns the applied schema version and whether a previous
// migration left it dirty. An untouched database reports version 0.
func MigrationStatus(dbURL string) (version uint, dirty bool, err error) {
	m, err := newMigrate(dbURL)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m)

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ForceMigrationVersion
// ─────────────────────────────────────────────────────────────────────────────

// ForceMigrationVersion records version as applied without running anything.
// It recovers a dirty schema after the failed migration was fixed by hand;
// -1 means no version.
func ForceMigrationVersion(dbURL string, version int) error {
	m, err := newMigrate(dbURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// ResetDatabase rolls every migration back and re-applies them. It drops all
// engine data and is meant for development databases only.
func ResetDatabase(dbURL string) error {
	m, err := newMigrate(dbURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back all migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to re-apply migrations: %w", err)
	}
	return nil
}

//Personal.AI order the ending
