package ingest

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/support/logger"
)

var holidayDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
}

// ParseHolidays reads the blocked holiday format: a line holding only a
// four-digit year opens a section, and the rows under it carry
// `dayname, MM/DD, holiday name`. Rows whose first field is already a full
// date are accepted anywhere. Unparseable rows are skipped and counted.
func ParseHolidays(r io.Reader) ([]entity.Holiday, Stats, error) {
	var out []entity.Holiday
	var stats Stats
	year := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if y, err := strconv.Atoi(line); err == nil && y >= 1900 && y <= 2999 {
			year = y
			continue
		}
		stats.Read++

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		if h, ok := parseDirectDateRow(fields); ok {
			out = append(out, h)
			continue
		}
		if h, ok := parseSectionRow(fields, year); ok {
			out = append(out, h)
			continue
		}
		logger.Debugf("Skipping unparseable holiday row %q", line)
		stats.Skipped++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// parseDirectDateRow handles `date, name` rows.
func parseDirectDateRow(fields []string) (entity.Holiday, bool) {
	if len(fields) < 2 {
		return entity.Holiday{}, false
	}
	for _, layout := range holidayDateLayouts {
		if d, err := time.Parse(layout, fields[0]); err == nil {
			return entity.Holiday{
				Date: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
				Name: strings.Join(fields[1:], ", "),
			}, true
		}
	}
	return entity.Holiday{}, false
}

// parseSectionRow handles `dayname, MM/DD, name` rows under a year section.
func parseSectionRow(fields []string, year int) (entity.Holiday, bool) {
	if year == 0 || len(fields) < 3 {
		return entity.Holiday{}, false
	}
	md, err := time.Parse("01/02", fields[1])
	if err != nil {
		return entity.Holiday{}, false
	}
	return entity.Holiday{
		Date: time.Date(year, md.Month(), md.Day(), 0, 0, 0, 0, time.UTC),
		Name: strings.Join(fields[2:], ", "),
	}, true
}
