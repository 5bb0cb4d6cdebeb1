package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "embed"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"go.uber.org/fx"

	"github.com/tigerroll/powercast/internal/adapter/database"
	"github.com/tigerroll/powercast/internal/app"
	"github.com/tigerroll/powercast/internal/support/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
// This file is used to load configuration at application startup.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// getDBProviderOptions selects the DB Provider to use based on environment variables.
// If the "DB_ADAPTORS" environment variable is set, it selects DB Providers based on its comma-separated value.
// If not set, Postgres, MySQL, and SQLite are used by default.
func getDBProviderOptions() []fx.Option {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}

	options := make([]fx.Option, 0)
	for _, adaptorName := range strings.Split(adaptors, ",") {
		adaptorName = strings.TrimSpace(adaptorName)
		if adaptorName == "" {
			continue
		}

		if provider, ok := app.DBProviderMap[adaptorName]; ok {
			options = append(options, fx.Provide(fx.Annotate(provider, fx.ResultTags(database.DBProviderGroup))))
			logger.Debugf("DB Provider '%s' selected and registered.", adaptorName)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", adaptorName)
		}
	}
	return options
}

// main is the entry point of the application.
// It manages signal handling and hands the parsed command line to the Fx container.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the pipeline...", sig)
		cancel()
	}()

	// Get the path to the .env file from environment variables. Use ".env" as default if not set.
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	dbProviderOptions := getDBProviderOptions()

	app.RunApplication(ctx, envFilePath, embeddedConfig, dbProviderOptions, os.Args[1:])
	os.Exit(0)
}
