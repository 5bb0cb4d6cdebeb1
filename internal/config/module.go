// Package config provides core configuration structures and utilities.
// This module defines Fx providers for configuration-related components.
package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts and provides *LoggingConfig from *Config.
// This allows other Fx components to depend only on the logging configuration.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Powercast.System.Logging
}

// NewTrainingConfigProvider extracts and provides *TrainingConfig from *Config.
func NewTrainingConfigProvider(cfg *Config) *TrainingConfig {
	return &cfg.Powercast.Training
}

// NewForecastConfigProvider extracts and provides *ForecastConfig from *Config.
func NewForecastConfigProvider(cfg *Config) *ForecastConfig {
	return &cfg.Powercast.Forecast
}

// Module provides configuration-related components to Fx.
// The *Config instance itself is loaded in main and supplied via fx.Supply.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewTrainingConfigProvider),
	fx.Provide(NewForecastConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
