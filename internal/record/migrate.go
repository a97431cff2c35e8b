package record

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator manages the schema version of a sqlite record database
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() error
}

type sqliteMigrator struct {
	*migrate.Migrate
}

// Close releases the migration source and the database handle
func (m sqliteMigrator) Close() error {
	srcErr, dbErr := m.Migrate.Close()
	return errors.Join(srcErr, dbErr)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite", driver)
}

// NewSQLiteMigrator opens the sqlite record database at dbPath for schema management.
// Closing the migrator closes the database.
func NewSQLiteMigrator(dbPath string) (Migrator, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	m, err := newMigrate(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqliteMigrator{Migrate: m}, nil
}

// migrateUp applies pending migrations. The migrate instance is not closed because that
// would close db.
func migrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
