package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/repository"
)

type fakeSeriesRepo struct {
	repository.SeriesRepository
	snapshots []entity.HourlySeriesSnapshot
}

func (f *fakeSeriesRepo) Snapshots(_ context.Context, _ string, _, _ time.Time) ([]entity.HourlySeriesSnapshot, error) {
	return f.snapshots, nil
}

type memExecutor struct {
	objects map[string][]byte
}

func (m *memExecutor) Upload(_ context.Context, _ string, objectName string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[objectName] = b
	return nil
}

func (m *memExecutor) Download(_ context.Context, _ string, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *memExecutor) ListObjects(_ context.Context, _ string, _ string, _ func(string) error) error {
	return nil
}

func (m *memExecutor) DeleteObject(_ context.Context, _ string, _ string) error {
	return nil
}

func snapshotAt(ts time.Time, load float64) entity.HourlySeriesSnapshot {
	return entity.HourlySeriesSnapshot{TsHour: ts.UnixMilli(), Name: "nyc", Load: load}
}

func TestExportPartitionsByDay(t *testing.T) {
	day1 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	repo := &fakeSeriesRepo{snapshots: []entity.HourlySeriesSnapshot{
		snapshotAt(day1, 1000),
		snapshotAt(day1.Add(time.Hour), 1010),
		snapshotAt(day2, 990),
	}}
	exec := &memExecutor{objects: map[string][]byte{}}
	exporter := NewSeriesExporter(repo, exec, Config{Bucket: "b", BaseDir: "series"}, nil)

	uploaded, err := exporter.Export(context.Background(), "nyc", day1, day2.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, uploaded, 2)

	assert.True(t, strings.HasPrefix(uploaded[0], "series/nyc/dt=2023-06-01/"))
	assert.True(t, strings.HasPrefix(uploaded[1], "series/nyc/dt=2023-06-02/"))

	// Uploaded files carry the parquet magic bytes.
	for _, name := range uploaded {
		data := exec.objects[name]
		require.NotEmpty(t, data)
		assert.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	}
}

func TestExportEmptyRangeIsNoop(t *testing.T) {
	exporter := NewSeriesExporter(&fakeSeriesRepo{}, &memExecutor{objects: map[string][]byte{}}, Config{Bucket: "b", BaseDir: "series"}, nil)

	uploaded, err := exporter.Export(context.Background(), "nyc", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, uploaded)
}

func TestExportRejectsUnknownCompression(t *testing.T) {
	repo := &fakeSeriesRepo{snapshots: []entity.HourlySeriesSnapshot{
		snapshotAt(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 1000),
	}}
	exporter := NewSeriesExporter(repo, &memExecutor{objects: map[string][]byte{}}, Config{
		Bucket: "b", BaseDir: "series", CompressionType: "LZMA",
	}, nil)

	_, err := exporter.Export(context.Background(), "nyc", time.Time{}, time.Now())
	assert.Error(t, err)
}
