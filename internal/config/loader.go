package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
)

// Package config provides utilities for loading and managing application configuration
// from various sources, including YAML files and environment variables.

const moduleName = "config"

// loadConfig loads configuration from a file and environment variables.
// This function is intended to be called only once during application startup.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	// 1. Defaults from NewConfig()

	// 2. Expand env placeholders, then load the embedded YAML into a temporary Config
	// so that values are parsed into their respective types.
	expanded, err := NewOsEnvironmentExpander().Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to expand environment variables in embedded config", err, false, false)
	}
	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	// 3. Merge YAML configuration into the default configuration.
	mergeConfig(cfg, &yamlConfig)

	// 4. Override with environment variables.
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// LoadConfig loads configuration from configuration files and environment variables.
// This function is expected to be called only once during application startup.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(envFilePath, embeddedConfig)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load configuration", err, false, false)
	}
	GlobalConfig = cfg
	return cfg, nil
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Values in sourceConfig overwrite corresponding values in destConfig
// if they are not zero/empty values for their type.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergePowercastConfig(&destConfig.Powercast, &sourceConfig.Powercast)
}

// mergePowercastConfig merges source into dest.
func mergePowercastConfig(dest, source *PowercastConfig) {
	mergeSystemConfig(&dest.System, &source.System)
	mergeTrainingConfig(&dest.Training, &source.Training)
	mergeForecastConfig(&dest.Forecast, &source.Forecast)
	mergeMetricsConfig(&dest.Metrics, &source.Metrics)
	mergeTracingConfig(&dest.Tracing, &source.Tracing)

	if source.Regions != nil {
		dest.Regions = source.Regions
	}
	if source.WeatherLocations != nil {
		if dest.WeatherLocations == nil {
			dest.WeatherLocations = make(map[string]string)
		}
		for key, value := range source.WeatherLocations {
			dest.WeatherLocations[key] = value
		}
	}
	if source.DefaultDatabase != "" {
		dest.DefaultDatabase = source.DefaultDatabase
	}
	if source.DefaultStorage != "" {
		dest.DefaultStorage = source.DefaultStorage
	}

	if source.Databases != nil {
		if dest.Databases == nil {
			dest.Databases = make(map[string]interface{})
		}
		for key, value := range source.Databases {
			dest.Databases[key] = value
		}
	}
	if source.Storages != nil {
		if dest.Storages == nil {
			dest.Storages = make(map[string]interface{})
		}
		for key, value := range source.Storages {
			dest.Storages[key] = value
		}
	}
}

// mergeSystemConfig merges source into dest.
func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" {
		dest.Timezone = source.Timezone
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
}

// mergeTrainingConfig merges source into dest.
func mergeTrainingConfig(dest, source *TrainingConfig) {
	if source.InputWindow != 0 {
		dest.InputWindow = source.InputWindow
	}
	if source.Horizon != 0 {
		dest.Horizon = source.Horizon
	}
	if source.HiddenSize != 0 {
		dest.HiddenSize = source.HiddenSize
	}
	if source.NumLayers != 0 {
		dest.NumLayers = source.NumLayers
	}
	if source.Dropout != 0 {
		dest.Dropout = source.Dropout
	}
	if source.Epochs != 0 {
		dest.Epochs = source.Epochs
	}
	if source.BatchSize != 0 {
		dest.BatchSize = source.BatchSize
	}
	if source.LearningRate != 0 {
		dest.LearningRate = source.LearningRate
	}
	if source.TeacherForcing != 0 {
		dest.TeacherForcing = source.TeacherForcing
	}
	if source.Patience != 0 {
		dest.Patience = source.Patience
	}
	if source.MinDelta != 0 {
		dest.MinDelta = source.MinDelta
	}
	if source.MinSequences != 0 {
		dest.MinSequences = source.MinSequences
	}
	if source.Seed != 0 {
		dest.Seed = source.Seed
	}
}

// mergeForecastConfig merges source into dest.
func mergeForecastConfig(dest, source *ForecastConfig) {
	if source.DefaultDays != 0 {
		dest.DefaultDays = source.DefaultDays
	}
	if source.ArtifactPrefix != "" {
		dest.ArtifactPrefix = source.ArtifactPrefix
	}
	if source.ExportPrefix != "" {
		dest.ExportPrefix = source.ExportPrefix
	}
}

// mergeMetricsConfig merges source into dest.
func mergeMetricsConfig(dest, source *MetricsConfig) {
	if source.Enabled {
		dest.Enabled = true
	}
	if source.ListenAddr != "" {
		dest.ListenAddr = source.ListenAddr
	}
}

// mergeTracingConfig merges source into dest.
func mergeTracingConfig(dest, source *TracingConfig) {
	if source.Enabled {
		dest.Enabled = true
	}
	if source.Endpoint != "" {
		dest.Endpoint = source.Endpoint
	}
	if source.ServiceName != "" {
		dest.ServiceName = source.ServiceName
	}
	if source.SampleRatio != 0 {
		dest.SampleRatio = source.SampleRatio
	}
	if source.Insecure {
		dest.Insecure = true
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name
// (e.g., POWERCAST_TRAINING_EPOCHS overrides Powercast.Training.Epochs).
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.SplitN(yamlTag, ",", 2)[0]
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, bool, and []string types.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
