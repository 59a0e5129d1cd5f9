package main

import (
	"errors"
	"flag"
	"os"

	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const defaultMigrationsPath = "internal/infrastructure/postgres/migrations"

func main() {
	var (
		command string
		steps   int
		dbURL   string
		path    string
	)

	flag.StringVar(&command, "direction", "up", "up, down, steps or version")
	flag.IntVar(&steps, "n", 0, "number of migrations to apply with -direction steps (negative rolls back)")
	flag.StringVar(&dbURL, "db", os.Getenv("DATABASE_URL"), "database URL; defaults to the service config")
	flag.StringVar(&path, "path", defaultMigrationsPath, "directory holding the migration files")
	flag.Parse()

	logger := observability.InitLogger("info", os.Stdout)

	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal().Err(err).Msg("No -db given and config could not be loaded")
		}
		dbURL = cfg.Database.DatabaseURL()
	}

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("Failed to open migrations")
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if steps == 0 {
			logger.Fatal().Msg("-direction steps needs a non-zero -n")
		}
		err = m.Steps(steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Fatal().Err(verr).Msg("Failed to read schema version")
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
		return
	default:
		logger.Fatal().Str("direction", command).Msg("Unknown direction (use up, down, steps or version)")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Str("direction", command).Msg("Migration failed")
	}
	logger.Info().Str("direction", command).Msg("Migrations applied")
}
