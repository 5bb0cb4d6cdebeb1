package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/tigerroll/powercast/internal/feature"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
	"github.com/tigerroll/powercast/internal/timeseries"
)

var weatherTimeAliases = map[string]bool{
	"datetime": true, "date time": true, "timestamp": true, "time": true,
}

var weatherNameAliases = map[string]bool{
	"name": true, "city": true, "location": true,
}

// WeatherSamples groups normalized samples per recognized weather column.
type WeatherSamples struct {
	Columns map[string][]timeseries.Sample
}

// ParseWeatherCSV reads a wide weather CSV. The time and region columns are
// located by alias; the remaining recognized observation columns are kept,
// empty cells become gaps. Rows with an unparseable timestamp are skipped.
func ParseWeatherCSV(r io.Reader, normalizer *timeseries.TimeNormalizer) (*WeatherSamples, Stats, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, Stats{}, exception.NewPipelineError("ingest", "failed to read weather CSV header", err, false, false)
	}

	tsIdx, nameIdx := -1, -1
	valueIdx := map[string]int{} // column name -> CSV index
	for i, col := range header {
		lower := strings.ToLower(strings.TrimSpace(stripBOM(col)))
		switch {
		case weatherTimeAliases[lower]:
			tsIdx = i
		case weatherNameAliases[lower]:
			nameIdx = i
		default:
			for _, known := range feature.WeatherColumnOrder {
				if lower == known {
					valueIdx[known] = i
				}
			}
		}
	}
	if tsIdx < 0 || nameIdx < 0 {
		return nil, Stats{}, exception.NewPipelineErrorf("ingest",
			"weather CSV header %v has no recognizable time or region column", header)
	}
	if len(valueIdx) == 0 {
		return nil, Stats{}, exception.NewPipelineErrorf("ingest",
			"weather CSV header %v has no recognized observation columns", header)
	}

	out := &WeatherSamples{Columns: map[string][]timeseries.Sample{}}
	var stats Stats
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, exception.NewPipelineError("ingest", "failed to read weather CSV row", err, false, false)
		}
		stats.Read++

		ts, err := normalizer.Parse(record[tsIdx])
		if err != nil {
			logger.Debugf("Skipping weather row with bad timestamp %q: %v", record[tsIdx], err)
			stats.Skipped++
			continue
		}
		name := record[nameIdx]

		for col, idx := range valueIdx {
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				continue
			}
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			out.Columns[col] = append(out.Columns[col], timeseries.Sample{
				Entity: name,
				Ts:     ts,
				Value:  value,
			})
		}
	}
	return out, stats, nil
}
