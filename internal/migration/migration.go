package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

var errNoHandle = errors.New("migration database handle is required")

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded Postgres migrations and reports the
// schema version afterwards.
func RunMigrations(db *sql.DB) (uint, error) {
	if db == nil {
		return 0, errNoHandle
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "innercircle_schema_migrations"})
	if err != nil {
		return 0, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// AutoMigrate creates the schema for MySQL and SQLite, which the SQL files do
// not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errNoHandle
	}
	return conn.AutoMigrate(
		&memberdomain.Member{},
		&accesskeydomain.AccessKey{},
		&auditdomain.AuditLog{},
	)
}
