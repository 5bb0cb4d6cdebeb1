package app

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/powercast/internal/adapter/storage"
	storageLocal "github.com/tigerroll/powercast/internal/adapter/storage/local"
	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/export"
	"github.com/tigerroll/powercast/internal/forecast"
	"github.com/tigerroll/powercast/internal/ingest"
	"github.com/tigerroll/powercast/internal/metrics"
	"github.com/tigerroll/powercast/internal/migration"
	"github.com/tigerroll/powercast/internal/observability"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
	"github.com/tigerroll/powercast/internal/timeseries"
	"github.com/tigerroll/powercast/internal/train"

	gormadapter "github.com/tigerroll/powercast/internal/adapter/database/gorm"
)

const moduleName = "app"

// Command is one parsed CLI invocation.
type Command struct {
	Name       string // import, train, forecast, export or accuracy
	Files      ingest.Files
	Regions    []string
	From       time.Time
	To         time.Time
	Start      time.Time
	Days       int
	ModelID    string
	ForecastID string
}

// Usage is the one-line summary printed when no valid subcommand is given.
const Usage = "usage: powercast <import|train|forecast|export|accuracy|coverage> [flags]"

// maxForecastDays caps the horizon a single forecast run may cover.
const maxForecastDays = 7

var commandTimeLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15",
	"2006-01-02",
}

func parseCommandTime(value string) (time.Time, error) {
	for _, layout := range commandTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, exception.NewPipelineErrorf(moduleName,
		"unrecognized time %q (want 2006-01-02 or 2006-01-02T15:04:05Z)", value, exception.ErrInvalidInput)
}

func splitRegions(value string, fallback []string) []string {
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	regions := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			regions = append(regions, p)
		}
	}
	return regions
}

// ParseCommand turns CLI arguments into a Command, filling unset flags from
// the loaded configuration.
func ParseCommand(args []string, cfg *config.Config) (Command, error) {
	if len(args) == 0 {
		return Command{}, exception.NewPipelineError(moduleName, Usage, exception.ErrInvalidInput, false, false)
	}

	cmd := Command{Name: args[0]}
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)

	var regionsFlag, fromFlag, toFlag, startFlag string
	switch cmd.Name {
	case "import":
		fs.StringVar(&cmd.Files.Load, "load", "", "path to the raw load CSV")
		fs.StringVar(&cmd.Files.Weather, "weather", "", "path to the raw weather CSV")
		fs.StringVar(&cmd.Files.Holiday, "holiday", "", "path to the raw holiday file")
	case "train", "export":
		fs.StringVar(&regionsFlag, "regions", "", "comma-separated region names (default: configured regions)")
		fs.StringVar(&fromFlag, "from", "", "inclusive start of the date range")
		fs.StringVar(&toFlag, "to", "", "exclusive end of the date range")
	case "forecast":
		fs.StringVar(&regionsFlag, "regions", "", "comma-separated region names (default: configured regions)")
		fs.StringVar(&startFlag, "start", "", "first forecast hour (default: next hour)")
		fs.IntVar(&cmd.Days, "days", cfg.Powercast.Forecast.DefaultDays, "forecast length in days")
		fs.StringVar(&cmd.ModelID, "model-id", "", "model to use (default: latest per region)")
	case "accuracy":
		fs.StringVar(&cmd.ForecastID, "forecast-id", "", "forecast to score against stored actuals")
	case "coverage":
		fs.StringVar(&regionsFlag, "regions", "", "comma-separated region names (default: configured regions)")
	default:
		return Command{}, exception.NewPipelineErrorf(moduleName,
			"unknown command %q (%s)", cmd.Name, Usage, exception.ErrInvalidInput)
	}
	if err := fs.Parse(args[1:]); err != nil {
		return Command{}, exception.NewPipelineError(moduleName, "failed to parse command flags", err, false, false)
	}

	cmd.Regions = splitRegions(regionsFlag, cfg.Powercast.Regions)

	var err error
	switch cmd.Name {
	case "import":
		if cmd.Files.Load == "" && cmd.Files.Weather == "" && cmd.Files.Holiday == "" {
			return Command{}, exception.NewPipelineError(moduleName,
				"import needs at least one of -load, -weather, -holiday", exception.ErrInvalidInput, false, false)
		}
	case "train", "export":
		if fromFlag == "" || toFlag == "" {
			return Command{}, exception.NewPipelineErrorf(moduleName,
				"%s needs both -from and -to", cmd.Name, exception.ErrInvalidInput)
		}
		if cmd.From, err = parseCommandTime(fromFlag); err != nil {
			return Command{}, err
		}
		if cmd.To, err = parseCommandTime(toFlag); err != nil {
			return Command{}, err
		}
		if !cmd.To.After(cmd.From) {
			return Command{}, exception.NewPipelineErrorf(moduleName,
				"-to %s is not after -from %s", cmd.To.Format(time.RFC3339), cmd.From.Format(time.RFC3339), exception.ErrInvalidInput)
		}
	case "forecast":
		if startFlag == "" {
			cmd.Start = time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
		} else if cmd.Start, err = parseCommandTime(startFlag); err != nil {
			return Command{}, err
		}
		if cmd.Days < 1 || cmd.Days > maxForecastDays {
			return Command{}, exception.NewPipelineErrorf(moduleName,
				"-days must be between 1 and %d, got %d", maxForecastDays, cmd.Days, exception.ErrInvalidInput)
		}
	case "accuracy":
		if cmd.ForecastID == "" {
			return Command{}, exception.NewPipelineError(moduleName,
				"accuracy needs -forecast-id", exception.ErrInvalidInput, false, false)
		}
	}
	return cmd, nil
}

// Runner resolves the configured backends and dispatches one Command
// against them.
type Runner struct {
	cfg     *config.Config
	db      *gormadapter.DBConnectionResolver
	storage *storageAdapter.ConnectionResolver
	metrics *metrics.Metrics
}

// RunnerParams defines the dependencies for NewRunner.
type RunnerParams struct {
	fx.In
	Cfg     *config.Config
	DB      *gormadapter.DBConnectionResolver
	Storage *storageAdapter.ConnectionResolver
	Metrics *metrics.Metrics
}

// NewRunner creates a new Runner.
func NewRunner(p RunnerParams) *Runner {
	return &Runner{cfg: p.Cfg, db: p.DB, storage: p.Storage, metrics: p.Metrics}
}

// Run applies migrations, builds the pipeline named by cmd and executes it.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	ctx, span := observability.StartSpan(ctx, "pipeline."+cmd.Name,
		attribute.String("powercast.command", cmd.Name),
		attribute.StringSlice("powercast.regions", cmd.Regions),
	)
	defer span.End()

	conn, err := r.db.ResolveDefault(ctx)
	if err != nil {
		return exception.NewPipelineError(moduleName, "failed to resolve default database connection", err, false, true)
	}
	if err := migration.NewMigrator(conn).Up(ctx); err != nil {
		return err
	}

	storageConn, err := r.storage.ResolveDefault()
	if err != nil {
		return exception.NewPipelineError(moduleName, "failed to resolve default storage connection", err, false, true)
	}
	storageCfg, err := storageLocal.DecodeStorageConfig(r.cfg, r.cfg.Powercast.DefaultStorage)
	if err != nil {
		return err
	}

	normalizer, err := timeseries.NewTimeNormalizer(r.cfg.Powercast.System.Timezone)
	if err != nil {
		return err
	}

	db := conn.DB()
	series := repository.NewSeriesRepository(db)
	models := repository.NewModelRepository(db)
	forecasts := repository.NewForecastRepository(db)
	artifacts := repository.NewArtifactStore(storageConn, storageCfg.BucketName, r.cfg.Powercast.Forecast.ArtifactPrefix)

	switch cmd.Name {
	case "import":
		importer := ingest.NewImporter(series, normalizer, r.metrics)
		stats, err := importer.ImportFiles(ctx, cmd.Files)
		logger.Infof("Import finished: %d rows read, %d rows written, %d rows skipped", stats.Read, stats.Written, stats.Skipped)
		return err

	case "train":
		trainer := train.NewTrainer(series, models, artifacts, normalizer, r.cfg.Powercast.WeatherLocations, r.cfg.Powercast.Training, r.metrics)
		return trainer.Train(ctx, cmd.Regions, cmd.From, cmd.To)

	case "forecast":
		engine := forecast.NewEngine(series, models, forecasts, artifacts, normalizer, r.cfg.Powercast.WeatherLocations, r.cfg.Powercast.Forecast, r.metrics)
		var result *multierror.Error
		for _, region := range cmd.Regions {
			res, err := engine.Run(ctx, forecast.Request{
				Region:  region,
				Start:   cmd.Start,
				Days:    cmd.Days,
				ModelID: cmd.ModelID,
			})
			if err != nil {
				logger.Errorf("Forecast failed for region %s: %v", region, err)
				result = multierror.Append(result, fmt.Errorf("region %s: %w", region, err))
				continue
			}
			logger.Infof("Forecast %s stored for region %s (%d hourly values, csv %s)",
				res.Record.ID, region, len(res.Record.Values), res.CSVKey)
		}
		return result.ErrorOrNil()

	case "export":
		exporter := export.NewSeriesExporter(series, storageConn, export.Config{
			Bucket:  storageCfg.BucketName,
			BaseDir: "series",
		}, r.metrics)
		var result *multierror.Error
		for _, region := range cmd.Regions {
			objects, err := exporter.Export(ctx, region, cmd.From, cmd.To)
			if err != nil {
				logger.Errorf("Export failed for region %s: %v", region, err)
				result = multierror.Append(result, fmt.Errorf("region %s: %w", region, err))
				continue
			}
			logger.Infof("Exported %d parquet objects for region %s", len(objects), region)
		}
		return result.ErrorOrNil()

	case "accuracy":
		engine := forecast.NewEngine(series, models, forecasts, artifacts, normalizer, r.cfg.Powercast.WeatherLocations, r.cfg.Powercast.Forecast, r.metrics)
		mape, hours, err := engine.Accuracy(ctx, cmd.ForecastID)
		if err != nil {
			return err
		}
		logger.Infof("Forecast %s: MAPE %.2f%% over %d overlapping hours", cmd.ForecastID, mape, hours)
		return nil

	case "coverage":
		var result *multierror.Error
		for _, region := range cmd.Regions {
			cov, err := series.Coverage(ctx, region)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("region %s: %w", region, err))
				continue
			}
			if cov.Hours == 0 {
				logger.Infof("Region %s: no stored load hours", region)
				continue
			}
			logger.Infof("Region %s: %d load hours from %s to %s", region, cov.Hours,
				cov.FirstHour.UTC().Format(time.RFC3339), cov.LastHour.UTC().Format(time.RFC3339))
			recs, err := models.List(ctx, region, 5)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("region %s: %w", region, err))
				continue
			}
			for _, rec := range recs {
				logger.Infof("  model %s (%s) trained %s test MAPE %.2f%%",
					rec.ID, rec.Algo, rec.CreatedAt.UTC().Format(time.RFC3339), rec.TestMAPE)
			}
		}
		return result.ErrorOrNil()
	}

	return exception.NewPipelineErrorf(moduleName, "unknown command %q", cmd.Name, exception.ErrInvalidInput)
}
