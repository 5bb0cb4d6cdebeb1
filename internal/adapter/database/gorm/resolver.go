package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/powercast/internal/adapter/database"
	dbconfig "github.com/tigerroll/powercast/internal/adapter/database/config"
	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/support/configbinder"
	"github.com/tigerroll/powercast/internal/support/logger"
)

// DBConnectionResolver resolves named database connections across the registered providers.
type DBConnectionResolver struct {
	dbProviders map[string]database.DBProvider // Keyed by database type.
	cfg         *config.Config
}

// NewDBConnectionResolver creates a new DBConnectionResolver.
// It receives all DBProvider implementations through Fx's group tag.
func NewDBConnectionResolver(p struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}) *DBConnectionResolver {
	providerMap := make(map[string]database.DBProvider)
	for _, provider := range p.DBProviders {
		providerMap[provider.Type()] = provider
	}

	return &DBConnectionResolver{
		dbProviders: providerMap,
		cfg:         p.Cfg,
	}
}

// Resolve resolves a database connection with the specified name.
// It verifies the connection is alive and reconnects through the owning provider when it is not.
func (r *DBConnectionResolver) Resolve(ctx context.Context, name string) (database.DBConnection, error) {
	var dbConfig dbconfig.DatabaseConfig
	rawConfig, ok := r.cfg.Powercast.Databases[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found under 'powercast.database' configs", name)
	}
	if err := configbinder.BindProperties(rawConfig, &dbConfig); err != nil {
		return nil, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}

	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("DBProvider for type '%s' not found for connection '%s'", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection '%s': %w", name, err)
	}

	sqlDB, getDBErr := conn.GetSQLDB()
	if getDBErr != nil {
		return conn, nil
	}

	if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		logger.Warnf("Connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		reconnectedConn, reconnectErr := provider.ForceReconnect(name)
		if reconnectErr != nil {
			return nil, fmt.Errorf("failed to reconnect connection '%s': %w", name, reconnectErr)
		}
		logger.Infof("Successfully reconnected connection '%s'.", name)
		return reconnectedConn, nil
	}

	return conn, nil
}

// ResolveDefault resolves the connection named by powercast.default_database.
func (r *DBConnectionResolver) ResolveDefault(ctx context.Context) (database.DBConnection, error) {
	return r.Resolve(ctx, r.cfg.Powercast.DefaultDatabase)
}
