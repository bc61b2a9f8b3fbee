package main

import (
	"embed"

	"github.com/lgulliver/filehold/pkg/config"
	"github.com/lgulliver/filehold/pkg/migrate"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	runner, err := migrate.NewRunner(&cfg.Database, migrationsFS, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect for migrations")
	}
	defer runner.Close()

	if err := runner.Apply(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}
	log.Info().Msg("Migrations completed successfully")
}
