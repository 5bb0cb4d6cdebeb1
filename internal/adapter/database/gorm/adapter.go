package gorm

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	dbconfig "github.com/tigerroll/powercast/internal/adapter/database/config"
	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/adapter/database"
	"github.com/tigerroll/powercast/internal/support/logger"
)

// NewGormLogger creates a gorm.Logger instance based on the configured log level.
func NewGormLogger(level string) gorm_logger.Interface {
	var gormLevel gorm_logger.LogLevel
	switch config.LogLevel(level) {
	case config.LogLevelSilent:
		gormLevel = gorm_logger.Silent
	case config.LogLevelError:
		gormLevel = gorm_logger.Error
	case config.LogLevelWarn:
		gormLevel = gorm_logger.Warn
	case config.LogLevelInfo:
		gormLevel = gorm_logger.Info
	default:
		gormLevel = gorm_logger.Silent
	}

	writer := NewGormWriter()

	return gorm_logger.New(
		writer,
		gorm_logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter is an io.Writer that redirects GORM log output to the package logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Write implements io.Writer.
func (w *GormWriter) Write(p []byte) (n int, err error) {
	w.Printf("%s", string(p))
	return len(p), nil
}

// Printf implements the gorm logger Writer interface.
// SQL statement traces go to DEBUG, everything else to INFO.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if strings.Contains(msg, "SELECT") || strings.Contains(msg, "INSERT") || strings.Contains(msg, "UPDATE") || strings.Contains(msg, "DELETE") {
		logger.Debugf("[GORM] %s", msg)
	} else {
		logger.Infof("[GORM] %s", msg)
	}
}

// GormDBConnection implements database.DBConnection over a *gorm.DB.
type GormDBConnection struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBConnection creates a new GormDBConnection.
func NewGormDBConnection(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) database.DBConnection {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("Failed to get underlying *sql.DB: %v", err)
	}

	return &GormDBConnection{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		dbType: cfg.Type,
		name:   name,
	}
}

// DB returns the GORM handle for this connection.
func (c *GormDBConnection) DB() *gorm.DB {
	return c.db
}

// GetSQLDB returns the underlying *sql.DB connection.
func (c *GormDBConnection) GetSQLDB() (*sql.DB, error) {
	if c.sqlDB == nil {
		return nil, fmt.Errorf("no underlying *sql.DB for connection '%s'", c.name)
	}
	return c.sqlDB, nil
}

// Config returns the database configuration associated with this connection.
func (c *GormDBConnection) Config() dbconfig.DatabaseConfig {
	return c.cfg
}

// Type returns the database type.
func (c *GormDBConnection) Type() string {
	return c.dbType
}

// Name returns the connection name.
func (c *GormDBConnection) Name() string {
	return c.name
}

// Close closes the database connection.
func (c *GormDBConnection) Close() error {
	if c.sqlDB == nil {
		return nil
	}
	return c.sqlDB.Close()
}
