package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
// This is used when loading configuration from an embedded source (e.g., a compiled binary).
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the IANA zone the raw load/weather timestamps are recorded in.
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// TrainingConfig holds the model training hyperparameters.
type TrainingConfig struct {
	InputWindow    int     `yaml:"input_window"`    // InputWindow is the encoder history length in hours.
	Horizon        int     `yaml:"horizon"`         // Horizon is the decoder output length in hours.
	HiddenSize     int     `yaml:"hidden_size"`     // HiddenSize is the LSTM hidden state width.
	NumLayers      int     `yaml:"num_layers"`      // NumLayers is the number of stacked LSTM layers.
	Dropout        float64 `yaml:"dropout"`         // Dropout is the inter-layer dropout probability.
	Epochs         int     `yaml:"epochs"`          // Epochs is the maximum number of training epochs.
	BatchSize      int     `yaml:"batch_size"`      // BatchSize is the minibatch size.
	LearningRate   float64 `yaml:"learning_rate"`   // LearningRate is the Adam learning rate.
	TeacherForcing float64 `yaml:"teacher_forcing"` // TeacherForcing is the per-step ground-truth feed probability.
	Patience       int     `yaml:"patience"`        // Patience is the early-stopping patience in epochs.
	MinDelta       float64 `yaml:"min_delta"`       // MinDelta is the minimum validation-loss improvement.
	MinSequences   int     `yaml:"min_sequences"`   // MinSequences is the minimum sample count required to train.
	Seed           int64   `yaml:"seed"`            // Seed drives all training randomness.
}

// ForecastConfig holds inference defaults.
type ForecastConfig struct {
	// DefaultDays is the forecast length in days when the caller does not specify one.
	DefaultDays int `yaml:"default_days"`
	// ArtifactPrefix is the blob storage prefix for model artifacts.
	ArtifactPrefix string `yaml:"artifact_prefix"`
	// ExportPrefix is the blob storage prefix for exported forecast CSVs.
	ExportPrefix string `yaml:"export_prefix"`
}

// MetricsConfig holds the prometheus exposure settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig holds the OTLP trace exporter settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Insecure    bool   `yaml:"insecure"`
}

// PowercastConfig holds all configuration under the "powercast" top-level key.
type PowercastConfig struct {
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// Regions lists the region names the pipelines operate on.
	Regions []string `yaml:"regions"`
	// WeatherLocations maps a load region name to the location string its
	// weather rows were ingested under. Unmapped regions fall back to the
	// region name itself.
	WeatherLocations map[string]string `yaml:"weather_locations"`
	// Training contains the model training hyperparameters.
	Training TrainingConfig `yaml:"training"`
	// Forecast contains inference defaults.
	Forecast ForecastConfig `yaml:"forecast"`
	// Metrics contains the prometheus exposure settings.
	Metrics MetricsConfig `yaml:"metrics"`
	// Tracing contains the OTLP trace exporter settings.
	Tracing TracingConfig `yaml:"tracing"`
	// DefaultDatabase names the entry under Databases used by the repositories.
	DefaultDatabase string `yaml:"default_database"`
	// DefaultStorage names the entry under Storages used for artifacts and exports.
	DefaultStorage string `yaml:"default_storage"`
	// Databases holds named database connection configurations, bound lazily per provider.
	Databases map[string]interface{} `yaml:"database"`
	// Storages holds named blob storage configurations, bound lazily per provider.
	Storages map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Powercast contains the top-level application configuration.
	Powercast PowercastConfig `yaml:"powercast"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// GlobalConfig is a pointer to the configuration instance shared across the application.
// It is expected to be set via fx.Supply or fx.Provide.
var GlobalConfig *Config

// NewConfig returns a new instance of Config with default values.
// The training defaults mirror the hyperparameters the reference models were trained with.
func NewConfig() *Config {
	cfg := &Config{
		Powercast: PowercastConfig{
			System: SystemConfig{
				Timezone: "America/New_York",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Training: TrainingConfig{
				InputWindow:    168,
				Horizon:        168,
				HiddenSize:     128,
				NumLayers:      2,
				Dropout:        0.2,
				Epochs:         25,
				BatchSize:      64,
				LearningRate:   1e-3,
				TeacherForcing: 0.2,
				Patience:       6,
				MinDelta:       1e-6,
				MinSequences:   10,
				Seed:           42,
			},
			Forecast: ForecastConfig{
				DefaultDays:    7,
				ArtifactPrefix: "models/",
				ExportPrefix:   "forecasts/",
			},
			Metrics: MetricsConfig{
				Enabled:    true,
				ListenAddr: ":9090",
			},
			Tracing: TracingConfig{
				Enabled:     false,
				ServiceName: "powercast",
				SampleRatio: 1.0,
			},
			DefaultDatabase: "primary",
			DefaultStorage:  "artifacts",
		},
	}

	// Initialized as empty maps, to be populated by YAML or by mergeConfig.
	cfg.Powercast.Databases = map[string]interface{}{}
	cfg.Powercast.Storages = map[string]interface{}{}
	cfg.Powercast.WeatherLocations = map[string]string{
		"N.Y.C.": "New York City, NY",
	}
	return cfg
}
