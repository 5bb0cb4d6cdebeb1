// Package export writes joined load+weather snapshots to parquet files in
// blob storage, Hive-partitioned by day.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	storage "github.com/tigerroll/powercast/internal/adapter/storage"
	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/metrics"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
)

// Config controls the export target layout.
type Config struct {
	Bucket          string
	BaseDir         string
	CompressionType string // SNAPPY, GZIP or NONE
}

// SeriesExporter dumps the stored hourly series as parquet files, one file
// per day partition.
type SeriesExporter struct {
	series  repository.SeriesRepository
	exec    storage.StorageExecutor
	cfg     Config
	metrics *metrics.Metrics
}

func NewSeriesExporter(series repository.SeriesRepository, exec storage.StorageExecutor, cfg Config, m *metrics.Metrics) *SeriesExporter {
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	return &SeriesExporter{series: series, exec: exec, cfg: cfg, metrics: m}
}

// Export writes every snapshot row of the region in [from, to) and returns
// the uploaded object names. Failing partitions are collected, not fatal
// to the rest.
func (e *SeriesExporter) Export(ctx context.Context, region string, from, to time.Time) ([]string, error) {
	started := time.Now()
	rows, err := e.series.Snapshots(ctx, region, from, to)
	if err != nil {
		e.metrics.ObservePipeline("export", region, time.Since(started), err)
		return nil, err
	}
	if len(rows) == 0 {
		logger.Infof("No snapshot rows for region %s between %s and %s, skipping export",
			region, from.Format("2006-01-02"), to.Format("2006-01-02"))
		return nil, nil
	}

	codec, err := compressionCodec(e.cfg.CompressionType)
	if err != nil {
		return nil, err
	}

	partitions := map[string][]entity.HourlySeriesSnapshot{}
	for _, row := range rows {
		key := "dt=" + time.UnixMilli(row.TsHour).UTC().Format("2006-01-02")
		partitions[key] = append(partitions[key], row)
	}
	keys := make([]string, 0, len(partitions))
	for key := range partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var result *multierror.Error
	var uploaded []string
	for _, key := range keys {
		objectName, err := e.writePartition(ctx, region, key, partitions[key], codec)
		if err != nil {
			logger.Errorf("Failed to export partition %s for region %s: %v", key, region, err)
			result = multierror.Append(result, err)
			continue
		}
		uploaded = append(uploaded, objectName)
	}
	err = result.ErrorOrNil()
	e.metrics.ObservePipeline("export", region, time.Since(started), err)
	logger.Infof("Exported %d parquet partitions for region %s", len(uploaded), region)
	return uploaded, err
}

func (e *SeriesExporter) writePartition(ctx context.Context, region, partition string, rows []entity.HourlySeriesSnapshot, codec parquet.CompressionCodec) (string, error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(entity.HourlySeriesSnapshot), int64(len(rows)))
	if err != nil {
		return "", exception.NewPipelineErrorf("export", "failed to create parquet writer for %s", partition, err)
	}
	pw.CompressionType = codec

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return "", exception.NewPipelineErrorf("export", "failed to write parquet row in %s", partition, err)
		}
	}
	if err := stopWriter(pw, partition); err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("series_%s.parquet", time.Now().UTC().Format("20060102150405"))
	objectName := path.Join(e.cfg.BaseDir, region, partition, fileName)
	if err := e.exec.Upload(ctx, e.cfg.Bucket, objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.NewPipelineErrorf("export", "failed to upload parquet file %s", objectName, err)
	}
	return objectName, nil
}

// stopWriter finalizes the file, converting library panics into errors.
func stopWriter(pw *writer.ParquetWriter, partition string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewPipelineErrorf("export", "parquet writer panicked finalizing %s: %v", partition, r)
		}
	}()
	if stopErr := pw.WriteStop(); stopErr != nil {
		return exception.NewPipelineErrorf("export", "failed to finalize parquet file for %s", partition, stopErr)
	}
	return nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, exception.NewPipelineErrorf("export", "unsupported compression type %s", name)
	}
}
