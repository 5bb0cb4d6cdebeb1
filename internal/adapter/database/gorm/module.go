package gorm

import (
	"go.uber.org/fx"
)

// Module exports the components of the gorm adapter package for dependency injection
// (excluding concrete DB Providers, which register themselves per dialect).
var Module = fx.Options(
	fx.Provide(NewDBConnectionResolver),
)
