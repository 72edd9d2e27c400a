package storage

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"commenta.app/cloud/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

// Migrate applies embedded migrations. steps <= 0 migrates all the way in the
// given direction.
func (s *SQLStore) Migrate(direction MigrateDirection, steps int) error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", from)
	}

	switch {
	case direction == MigrateUp && steps <= 0:
		err = m.Up()
	case direction == MigrateDown && steps <= 0:
		err = m.Down()
	case direction == MigrateUp:
		err = m.Steps(steps)
	case direction == MigrateDown:
		err = m.Steps(-steps)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}

	to, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	logger.Info("Database migrations applied", map[string]interface{}{
		"dialect":      string(s.dialect),
		"direction":    string(direction),
		"from_version": from,
		"to_version":   to,
	})
	return nil
}

// MigrationVersion reports the applied schema version.
func (s *SQLStore) MigrationVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate builds a migrate instance on its own connection pool, since
// closing the instance closes the pool it was given.
func (s *SQLStore) newMigrate() (*migrate.Migrate, error) {
	dir := "migrations/" + string(s.dialect)
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	db, err := s.openPool()
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	var (
		driver database.Driver
		name   string
	)
	switch s.dialect {
	case DialectPostgres:
		driver, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
		name = "pgx5"
	default:
		driver, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		name = "sqlite3"
	}
	if err != nil {
		_ = source.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		logger.Warn("Failed to close migration resources", map[string]interface{}{
			"source_error":   fmt.Sprint(srcErr),
			"database_error": fmt.Sprint(dbErr),
		})
	}
}
