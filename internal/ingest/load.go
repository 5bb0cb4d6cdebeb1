// Package ingest parses raw load, weather and holiday files and lands them
// as normalized hourly rows.
package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
	"github.com/tigerroll/powercast/internal/timeseries"
)

// Stats counts the outcome of one import.
type Stats struct {
	Read    int
	Written int
	Skipped int
}

// ParseLoadCSV reads rows of the form `Time Stamp,Name,Load`, normalizes
// each timestamp to its naive-UTC hour basis and returns the samples.
// Rows with an unparseable timestamp or load value are skipped and counted.
func ParseLoadCSV(r io.Reader, normalizer *timeseries.TimeNormalizer) ([]timeseries.Sample, Stats, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, Stats{}, exception.NewPipelineError("ingest", "failed to read load CSV header", err, false, false)
	}
	tsIdx, nameIdx, loadIdx := -1, -1, -1
	for i, col := range header {
		switch stripBOM(col) {
		case "Time Stamp":
			tsIdx = i
		case "Name":
			nameIdx = i
		case "Load":
			loadIdx = i
		}
	}
	if tsIdx < 0 || nameIdx < 0 || loadIdx < 0 {
		return nil, Stats{}, exception.NewPipelineErrorf("ingest",
			"load CSV header %v is missing Time Stamp, Name or Load", header)
	}

	var samples []timeseries.Sample
	var stats Stats
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, exception.NewPipelineError("ingest", "failed to read load CSV row", err, false, false)
		}
		stats.Read++

		ts, err := normalizer.Parse(record[tsIdx])
		if err != nil {
			logger.Debugf("Skipping load row with bad timestamp %q: %v", record[tsIdx], err)
			stats.Skipped++
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[loadIdx]), 64)
		if err != nil {
			logger.Debugf("Skipping load row with bad value %q", record[loadIdx])
			stats.Skipped++
			continue
		}
		samples = append(samples, timeseries.Sample{
			Entity: record[nameIdx],
			Ts:     ts,
			Value:  value,
		})
	}
	return samples, stats, nil
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
