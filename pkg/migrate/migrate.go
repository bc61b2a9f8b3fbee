// Package migrate applies the embedded SQL schema files in order. Rollbacks
// are not supported; a schema change that needs undoing ships as a new
// forward migration.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/lgulliver/filehold/pkg/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// Runner applies pending schema migrations
type Runner struct {
	db         *sql.DB
	schemaFS   fs.FS
	schemaPath string
}

// NewRunner connects to the database and prepares a migration runner over the
// given schema filesystem
func NewRunner(cfg *config.DatabaseConfig, schemaFS fs.FS, schemaPath string) (*Runner, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Runner{db: db, schemaFS: schemaFS, schemaPath: schemaPath}, nil
}

type migration struct {
	version int
	name    string
	sql     string
}

// Apply runs every schema file that has not been applied yet, in version
// order, each inside its own transaction
func (r *Runner) Apply() error {
	if err := r.ensureVersionTable(); err != nil {
		return err
	}

	applied, err := r.appliedVersions()
	if err != nil {
		return err
	}

	migrations, err := r.loadMigrations()
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := r.apply(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		log.Info().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
		pending++
	}

	if pending == 0 {
		log.Info().Msg("Schema is up to date")
	}
	return nil
}

func (r *Runner) ensureVersionTable() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func (r *Runner) appliedVersions() (map[int]bool, error) {
	rows, err := r.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// loadMigrations reads every NNN_name.sql file under the schema path and
// returns them sorted by version
func (r *Runner) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(r.schemaFS, r.schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseSchemaFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(r.schemaFS, r.schemaPath+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{version: version, name: name, sql: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// parseSchemaFilename splits "001_initial_schema.sql" into version 1 and
// name "initial_schema". Embedded files are part of the build, so a bad name
// is an error rather than something to skip.
func parseSchemaFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, name, ok := strings.Cut(base, "_")
	if !ok {
		return 0, "", fmt.Errorf("invalid schema filename: %s", filename)
	}

	var version int
	if _, err := fmt.Sscanf(prefix, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("invalid version prefix in %s: %w", filename, err)
	}
	return version, name, nil
}

func (r *Runner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute schema SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Close closes the database connection
func (r *Runner) Close() error {
	return r.db.Close()
}
