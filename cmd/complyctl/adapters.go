package main

import (
	"context"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/bootstrap"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/internal/interfaces/cli"
)

// engineBackend exposes a bootstrapped engine to the command tree.
type engineBackend struct {
	engine *bootstrap.Engine
}

func openBackend(ctx context.Context, cfg *config.Config, logger logging.Logger) (cli.Backend, error) {
	e, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &engineBackend{engine: e}, nil
}

func (b *engineBackend) Service() app.Service                 { return b.engine.Service }
func (b *engineBackend) Jobs() cli.JobRunner                  { return b.engine.Jobs }
func (b *engineBackend) Organizations() cli.OrganizationStore { return b.engine.Orgs }
func (b *engineBackend) Close()                               { b.engine.Close() }

// schemaMigrator runs the embedded migrations against the configured
// database. It needs neither Redis nor Kafka.
type schemaMigrator struct {
	url string
}

func newMigrator(cfg *config.Config) cli.Migrator {
	return &schemaMigrator{url: bootstrap.MigrationURL(cfg)}
}

func (m *schemaMigrator) Up() error            { return postgres.RunMigrations(m.url) }
func (m *schemaMigrator) Down(steps int) error { return postgres.RollbackMigration(m.url, steps) }
func (m *schemaMigrator) Force(v int) error    { return postgres.ForceMigrationVersion(m.url, v) }

func (m *schemaMigrator) Status() (uint, bool, error) {
	return postgres.MigrationStatus(m.url)
}

//Personal.AI order the ending
