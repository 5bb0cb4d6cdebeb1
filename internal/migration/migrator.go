// Package migration applies the embedded schema migrations for every
// supported dialect.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	database "github.com/tigerroll/powercast/internal/adapter/database"
	"github.com/tigerroll/powercast/internal/support/logger"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql migrations/sqlite3/*.sql
var migrationFS embed.FS

const migrationsTable = "powercast_schema_migrations"

// Migrator runs schema migrations against one resolved connection.
type Migrator struct {
	conn database.DBConnection
}

func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn}
}

func (m *Migrator) driver(sqlDB *sql.DB) (migratedb.Driver, string, error) {
	switch m.conn.Type() {
	case "postgres", "redshift":
		d, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
		return d, "postgres", err
	case "mysql":
		d, err := mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: migrationsTable})
		return d, "mysql", err
	case "sqlite":
		d, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: migrationsTable})
		return d, "sqlite3", err
	default:
		return nil, "", fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

// Up applies every pending migration. An already current schema is not an
// error.
func (m *Migrator) Up(ctx context.Context) error {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	dbDriver, dialectDir, err := m.driver(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, "migrations/"+dialectDir)
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations for %s: %w", dialectDir, err)
	}

	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer instance.Close()

	if err := instance.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed for %s: %w", m.conn.Type(), err)
	}
	logger.Infof("Schema is current for %s connection %s", m.conn.Type(), m.conn.Name())
	return nil
}
