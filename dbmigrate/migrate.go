// Package dbmigrate runs the accounts schema's migrations against
// Postgres, tracked in a schema_migrations table — version-prefixed .sql
// files with an optional "-- DOWN Migration" marker splitting the up/down
// halves.
package dbmigrate

import (
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/pogoaccountserver/backend/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one version-tracked schema change.
type Migration struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
	DownSQL     string
	AppliedAt   *time.Time
}

// Migrator applies or rolls back migrations against db.
type Migrator struct {
	db      *sql.DB
	dryRun  bool
	logger  *logging.Logger
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithDryRun reports what would run without executing anything.
func WithDryRun(dryRun bool) MigratorOption {
	return func(m *Migrator) { m.dryRun = dryRun }
}

// NewMigrator builds a Migrator over an already-open *sql.DB.
func NewMigrator(db *sql.DB, logger *logging.Logger, opts ...MigratorOption) *Migrator {
	m := &Migrator{db: db, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens a lib/pq connection and verifies it with a ping.
func Connect(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Initialize creates the schema_migrations tracking table.
func (m *Migrator) Initialize() error {
	if m.dryRun {
		m.logger.Info("dry run: would create schema_migrations table")
		return nil
	}

	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			execution_time_ms INTEGER
		);
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return nil
}

// LoadMigrations reads every embedded migration file, sorted by version.
func (m *Migrator) LoadMigrations() ([]*Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []*Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migration, err := m.parseMigrationFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parsing migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (m *Migrator) parseMigrationFile(filename string) (*Migration, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid migration filename format: %s", filename)
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("parsing version from filename %s: %w", filename, err)
	}

	content, err := migrationsFS.ReadFile(filepath.Join("migrations", filename))
	if err != nil {
		return nil, fmt.Errorf("reading migration file: %w", err)
	}
	sqlContent := string(content)

	up, down := splitMigrationSQL(sqlContent)

	return &Migration{
		Version:     version,
		Name:        strings.TrimSuffix(filename, ".sql"),
		Description: extractDescription(sqlContent),
		UpSQL:       up,
		DownSQL:     down,
	}, nil
}

func splitMigrationSQL(content string) (up, down string) {
	const marker = "-- DOWN Migration"
	idx := strings.Index(content, marker)
	if idx == -1 {
		return content, ""
	}
	return strings.TrimSpace(content[:idx]), strings.TrimSpace(content[idx+len(marker):])
}

func extractDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}

// GetAppliedMigrations returns every already-applied migration, by version.
func (m *Migrator) GetAppliedMigrations() (map[int]*Migration, error) {
	rows, err := m.db.Query(`SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]*Migration)
	for rows.Next() {
		mig := &Migration{}
		if err := rows.Scan(&mig.Version, &mig.Name, &mig.Description, &mig.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[mig.Version] = mig
	}
	return applied, rows.Err()
}

// Up applies every migration not yet recorded in schema_migrations.
func (m *Migrator) Up() error {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return err
	}

	pending := 0
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; !ok {
			pending++
		}
	}
	if pending == 0 {
		m.logger.Info("database is up to date, no pending migrations")
		return nil
	}

	m.logger.Info("running pending migrations", logging.Int("count", pending))
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := m.run(mig, true); err != nil {
			return fmt.Errorf("migration %d failed: %w", mig.Version, err)
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		m.logger.Info("no migrations to roll back")
		return nil
	}

	maxVersion := 0
	for version := range applied {
		if version > maxVersion {
			maxVersion = version
		}
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}
	var target *Migration
	for _, mig := range migrations {
		if mig.Version == maxVersion {
			target = mig
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration file for version %d not found", maxVersion)
	}
	if target.DownSQL == "" {
		return fmt.Errorf("migration %d has no DOWN section", maxVersion)
	}

	return m.run(target, false)
}

func (m *Migrator) run(mig *Migration, up bool) error {
	sqlText := mig.UpSQL
	if !up {
		sqlText = mig.DownSQL
	}

	if m.dryRun {
		m.logger.Info("dry run: would execute migration", logging.Int("version", mig.Version))
		return nil
	}

	start := time.Now()
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqlText); err != nil {
		return fmt.Errorf("executing migration SQL: %w", err)
	}

	elapsedMs := time.Since(start).Milliseconds()
	if up {
		_, err = tx.Exec(
			`INSERT INTO schema_migrations (version, name, description, execution_time_ms) VALUES ($1, $2, $3, $4)`,
			mig.Version, mig.Name, mig.Description, elapsedMs,
		)
	} else {
		_, err = tx.Exec(`DELETE FROM schema_migrations WHERE version = $1`, mig.Version)
	}
	if err != nil {
		return fmt.Errorf("updating schema_migrations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	m.logger.Info("migration applied",
		logging.Int("version", mig.Version),
		logging.String("name", mig.Name),
		logging.Int64("duration_ms", elapsedMs),
	)
	return nil
}
