package app

import (
	"context"

	"go.uber.org/fx"

	database "github.com/tigerroll/powercast/internal/adapter/database"
	gormadapter "github.com/tigerroll/powercast/internal/adapter/database/gorm"
	gormMySQL "github.com/tigerroll/powercast/internal/adapter/database/gorm/mysql"
	gormPostgres "github.com/tigerroll/powercast/internal/adapter/database/gorm/postgres"
	gormSQLite "github.com/tigerroll/powercast/internal/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/powercast/internal/adapter/storage"
	storageGCS "github.com/tigerroll/powercast/internal/adapter/storage/gcs"
	storageLocal "github.com/tigerroll/powercast/internal/adapter/storage/local"
	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/metrics"
	"github.com/tigerroll/powercast/internal/observability"
	"github.com/tigerroll/powercast/internal/support/logger"
)

// Module provides the application-level components to Fx.
var Module = fx.Options(
	fx.Provide(NewRunner),
)

// DBProviderMap maps adaptor names to their DBProvider constructors.
// main.go selects entries from it based on the DB_ADAPTORS environment variable.
var DBProviderMap = map[string]func(cfg *config.Config) database.DBProvider{
	"postgres": gormPostgres.NewProvider,
	"mysql":    gormMySQL.NewProvider,
	"sqlite":   gormSQLite.NewProvider,
}

// RunApplication sets up and runs the pipeline application using uber-fx.
// It loads configuration, parses the command line and executes the selected
// pipeline once, then shuts the container down.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, dbProviderOptions []fx.Option, args []string) {
	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLogLevel(cfg.Powercast.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Powercast.System.Logging.Level)

	cmd, err := ParseCommand(args, cfg)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	app := fx.New(
		fx.Supply(
			cfg,
			cmd,
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),

		fx.Options(dbProviderOptions...),
		logger.Module,
		config.Module,
		metrics.Module,
		gormadapter.Module,
		storageAdapter.Module,
		storageLocal.Module,
		storageGCS.Module,
		Module,

		fx.Invoke(fx.Annotate(startPipelineExecution, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // runner *Runner
			"",              // cfg *config.Config
			"",              // cmd Command
			"",              // m *metrics.Metrics
			`name:"appCtx"`, // appCtx context.Context
		))),
	)

	app.Run()

	if app.Err() != nil {
		logger.Fatalf("Application run failed: %v", app.Err())
	}
}

// startPipelineExecution is invoked by Fx to begin the pipeline execution.
func startPipelineExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	runner *Runner,
	cfg *config.Config,
	cmd Command,
	m *metrics.Metrics,
	appCtx context.Context,
) {
	var tracing *observability.Tracing

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			tracing = observability.Init(appCtx, cfg.Powercast.Tracing)
			if cfg.Powercast.Metrics.Enabled {
				m.Serve(cfg.Powercast.Metrics)
			}

			go func() {
				var runErr error
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in pipeline execution: %v", r)
						runErr = exitError{}
					}
					logger.Infof("Requesting application shutdown after pipeline completion.")

					code := 0
					if runErr != nil {
						code = 1
					}
					if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				logger.Infof("Starting pipeline '%s'...", cmd.Name)
				if runErr = runner.Run(appCtx, cmd); runErr != nil {
					logger.Errorf("Pipeline '%s' failed: %v", cmd.Name, runErr)
					return
				}
				logger.Infof("Pipeline '%s' finished successfully.", cmd.Name)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application shutting down.")
			if err := tracing.Shutdown(ctx); err != nil {
				logger.Warnf("Trace exporter shutdown failed: %v", err)
			}
			if err := m.Shutdown(ctx); err != nil {
				logger.Warnf("Metrics listener shutdown failed: %v", err)
			}
			return nil
		},
	})
}

// exitError marks a run that failed by panic so the deferred shutdown still
// reports a non-zero exit code.
type exitError struct{}

func (exitError) Error() string { return "pipeline panicked" }
