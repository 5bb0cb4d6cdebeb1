package storage

import (
	"fmt"

	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/powercast/internal/adapter/storage/config"
	coreConfig "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/support/configbinder"
)

// ConnectionResolver resolves named storage connections across the registered providers.
type ConnectionResolver struct {
	providers map[string]StorageProvider // Keyed by storage type.
	cfg       *coreConfig.Config
}

// NewConnectionResolver creates a new ConnectionResolver.
// It receives all StorageProvider implementations through Fx's group tag.
func NewConnectionResolver(p struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}) *ConnectionResolver {
	providerMap := make(map[string]StorageProvider)
	for _, provider := range p.Providers {
		providerMap[provider.Type()] = provider
	}
	return &ConnectionResolver{
		providers: providerMap,
		cfg:       p.Cfg,
	}
}

// Resolve resolves a storage connection with the specified name.
func (r *ConnectionResolver) Resolve(name string) (StorageConnection, error) {
	rawConfig, ok := r.cfg.Powercast.Storages[name]
	if !ok {
		return nil, fmt.Errorf("storage configuration '%s' not found under 'powercast.storage' configs", name)
	}

	var storageCfg storageConfig.StorageConfig
	if err := configbinder.BindProperties(rawConfig, &storageCfg); err != nil {
		return nil, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}

	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("StorageProvider for type '%s' not found for connection '%s'", storageCfg.Type, name)
	}

	return provider.GetConnection(name)
}

// ResolveDefault resolves the connection named by powercast.default_storage.
func (r *ConnectionResolver) ResolveDefault() (StorageConnection, error) {
	return r.Resolve(r.cfg.Powercast.DefaultStorage)
}

// Module exports the storage resolver for dependency injection.
var Module = fx.Options(
	fx.Provide(NewConnectionResolver),
)
