// Package ops holds operator tasks run from fuegoctl: schema migrations,
// owner back-filling and row-level-security verification.
package ops

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	dbpostgres "github.com/fuego-app/fuego/internal/db/postgres"
)

// Migrator applies the embedded SQL migrations.
// Each file runs as one multi-statement query, which Postgres executes atomically;
// a failing file leaves the schema at the previous version and stops the run.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator binds the embedded migrations to db.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	src, err := iofs.New(dbpostgres.Migrations, dbpostgres.MigrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "create postgres migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, "create migrator")
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. Nothing to apply is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

// Down rolls back the last applied migration.
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil {
		return errors.Wrap(err, "migrate down")
	}
	return nil
}

// Version returns the applied version. A database without migrations reports 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "read migration version")
	}
	return version, dirty, nil
}

// Close releases the source and the database driver.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.CombineErrors(srcErr, dbErr)
}
