package database

import (
	"database/sql"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/powercast/internal/adapter/database/config"
)

// DBConnection represents an abstraction of a database connection.
// Repositories obtain the underlying *gorm.DB through it.
type DBConnection interface {
	// Close closes the database connection.
	Close() error
	// Type returns the database type (e.g., "postgres", "sqlite").
	Type() string
	// Name returns the connection name (e.g., "primary").
	Name() string
	// DB returns the GORM handle for this connection.
	DB() *gorm.DB
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
}

// DBProvider is an interface responsible for providing database connections based on configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
	// ForceReconnect forces the closure and re-establishment of an existing connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is an Fx tag used to group all DBProvider implementations.
const DBProviderGroup = `group:"db_providers"`
