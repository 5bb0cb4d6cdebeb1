// Package metrics exposes prometheus instrumentation for the pipelines.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	config "github.com/tigerroll/powercast/internal/config"
	logger "github.com/tigerroll/powercast/internal/support/logger"
)

// Metrics holds the collectors shared by all pipelines. A nil *Metrics is
// safe to call; every method no-ops.
type Metrics struct {
	Registry *prometheus.Registry

	importRows       *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	pipelineFailures *prometheus.CounterVec
	forecastHours    *prometheus.CounterVec
	trainEpochs      *prometheus.CounterVec

	server *http.Server
}

// New builds a registry with process and Go runtime collectors plus the
// pipeline collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powercast_import_rows_total",
			Help: "Rows handled by the import pipeline, by source and outcome.",
		}, []string{"source", "outcome"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "powercast_pipeline_duration_seconds",
			Help:    "Wall time of one pipeline run per region.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"pipeline", "region"}),
		pipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powercast_pipeline_failures_total",
			Help: "Failed pipeline runs per region.",
		}, []string{"pipeline", "region"}),
		forecastHours: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powercast_forecast_hours_total",
			Help: "Forecast hours produced per region.",
		}, []string{"region"}),
		trainEpochs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powercast_train_epochs_total",
			Help: "Training epochs completed per region.",
		}, []string{"region"}),
	}
	reg.MustRegister(m.importRows, m.pipelineDuration, m.pipelineFailures, m.forecastHours, m.trainEpochs)
	return m
}

func (m *Metrics) ObserveImport(source string, read, written, skipped int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(source, "read").Add(float64(read))
	m.importRows.WithLabelValues(source, "written").Add(float64(written))
	m.importRows.WithLabelValues(source, "skipped").Add(float64(skipped))
}

func (m *Metrics) ObservePipeline(pipeline, region string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(pipeline, region).Observe(d.Seconds())
	if err != nil {
		m.pipelineFailures.WithLabelValues(pipeline, region).Inc()
	}
}

func (m *Metrics) ObserveForecastHours(region string, hours int) {
	if m == nil {
		return
	}
	m.forecastHours.WithLabelValues(region).Add(float64(hours))
}

func (m *Metrics) ObserveTrainEpochs(region string, epochs int) {
	if m == nil {
		return
	}
	m.trainEpochs.WithLabelValues(region).Add(float64(epochs))
}

// Serve starts the /metrics listener when enabled. Listen failures are
// logged, not fatal; a batch run without a scrape endpoint still works.
func (m *Metrics) Serve(cfg config.MetricsConfig) {
	if m == nil || !cfg.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		logger.Infof("Serving metrics on %s", cfg.ListenAddr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warnf("Metrics listener stopped: %v", err)
		}
	}()
}

// Shutdown stops the listener if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
