// complyctl is the operator CLI of the compliance obligation engine.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// A local .env is optional; COMPLY_* variables may come from the shell.
	_ = godotenv.Load()

	deps := cli.Dependencies{
		LoadConfig:  config.LoadOrEnv,
		OpenBackend: openBackend,
		NewMigrator: newMigrator,
	}
	if err := cli.Execute(deps); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}

//Personal.AI order the ending
