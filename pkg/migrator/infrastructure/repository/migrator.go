package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/database"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationsTable records the applied history schema version.
const MigrationsTable = "migrator_schema_migrations"

// SchemaMigrator applies the embedded history schema to a datasource.
// It opens a pool of its own because the migrate drivers close the pool they are handed.
type SchemaMigrator struct {
	dbType     string
	driverName string
	dsn        string
}

// NewSchemaMigrator creates a SchemaMigrator for the datasource described by dc.
func NewSchemaMigrator(dc database.DatabaseConfig) (*SchemaMigrator, error) {
	dsn, err := database.ConnectionString(dc, 0)
	if err != nil {
		return nil, err
	}
	return &SchemaMigrator{dbType: dc.Type, driverName: database.DriverName(dc.Type), dsn: dsn}, nil
}

func (m *SchemaMigrator) databaseDriver(db *sql.DB) (migratedb.Driver, error) {
	switch m.dbType {
	case database.TypePostgres, database.TypePgx:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	case database.TypeMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: MigrationsTable})
	case database.TypeSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for the run history: %s", m.dbType)
	}
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *SchemaMigrator) Up() error {
	logger.Infof("Applying run history schema (table: %s, type: %s)", MigrationsTable, m.dbType)

	db, err := sql.Open(m.driverName, m.dsn)
	if err != nil {
		return fmt.Errorf("failed to open history datasource: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	dbDriver, err := m.databaseDriver(db)
	if err != nil {
		sourceDriver.Close()
		db.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		sourceDriver.Close()
		dbDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer instance.Close()

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verr := instance.Version(); verr == nil {
			logger.Errorf("Run history schema left at version %d (dirty: %t)", version, dirty)
		}
		return fmt.Errorf("run history migration failed (type: %s): %w", m.dbType, err)
	}
	logger.Infof("Run history schema is up to date.")
	return nil
}
