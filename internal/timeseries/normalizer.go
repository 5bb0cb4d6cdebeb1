// Package timeseries normalizes raw timestamps into canonical naive-UTC hour keys
// and aggregates irregular observations into one value per (entity, hour).
package timeseries

import (
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/powercast/internal/support/exception"
)

const moduleName = "timeseries"

// timestampLayouts are the accepted wall-clock formats for raw input timestamps,
// tried in order.
var timestampLayouts = []string{
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TimeNormalizer resolves naive local wall-clock timestamps of a configured IANA zone
// into unambiguous UTC instants, then strips the zone for stable storage keys.
//
// DST policy: an ambiguous wall time (fall-back, repeated hour) resolves to the
// earlier occurrence, consistently for every row of a batch; a nonexistent wall
// time (spring-forward gap) shifts forward to the first valid instant.
type TimeNormalizer struct {
	loc *time.Location
}

// NewTimeNormalizer creates a TimeNormalizer for the given IANA zone name.
func NewTimeNormalizer(zone string) (*TimeNormalizer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "unknown timezone '%s'", zone, err)
	}
	return &TimeNormalizer{loc: loc}, nil
}

// Location returns the normalizer's local zone.
func (n *TimeNormalizer) Location() *time.Location {
	return n.loc
}

// Parse parses a raw timestamp string as local wall-clock time and normalizes it
// to a naive-UTC instant. An unparsable timestamp yields a skippable error so the
// caller can drop the row without aborting the batch.
func (n *TimeNormalizer) Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if wall, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return n.Localize(wall), nil
		}
	}
	return time.Time{}, exception.NewPipelineErrorf(moduleName, "unparsable timestamp '%s'", raw, true, false)
}

// Localize interprets wall (a zone-less wall-clock reading) in the configured local
// zone, resolves DST per the normalizer policy, converts to UTC, and drops the zone.
func (n *TimeNormalizer) Localize(wall time.Time) time.Time {
	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), n.loc)

	if !sameWall(t, wall) {
		// Nonexistent wall time inside a spring-forward gap. Go has already pushed
		// the reading past the gap; the policy wants the first valid instant, which
		// is the transition boundary itself.
		return asNaiveUTC(firstValidAfterGap(t, n.loc))
	}

	// An ambiguous wall time maps to two instants one transition-width apart.
	// If the instant one hour earlier shows the same wall clock, t is the later
	// occurrence; prefer the earlier one.
	if earlier := t.Add(-time.Hour); sameWall(earlier, wall) {
		return asNaiveUTC(earlier)
	}
	return asNaiveUTC(t)
}

// FloorHour truncates a naive-UTC instant to the containing hour.
func FloorHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

// LocalDayUTCMidnight maps a naive-UTC hour to the UTC-midnight representative of
// its local calendar day. This is the join key between hourly rows and holidays.
func (n *TimeNormalizer) LocalDayUTCMidnight(naiveUTC time.Time) time.Time {
	local := time.Date(naiveUTC.Year(), naiveUTC.Month(), naiveUTC.Day(), naiveUTC.Hour(), 0, 0, 0, time.UTC).In(n.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalClock converts a naive-UTC hour back into the local zone's calendar fields.
func (n *TimeNormalizer) LocalClock(naiveUTC time.Time) time.Time {
	return time.Date(naiveUTC.Year(), naiveUTC.Month(), naiveUTC.Day(), naiveUTC.Hour(), naiveUTC.Minute(), 0, 0, time.UTC).In(n.loc)
}

// sameWall reports whether the instant t reads the same wall clock as wall in t's zone.
func sameWall(t, wall time.Time) bool {
	return t.Year() == wall.Year() && t.Month() == wall.Month() && t.Day() == wall.Day() &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute() && t.Second() == wall.Second()
}

// firstValidAfterGap walks back from Go's gap-normalized instant to the transition
// boundary, the first instant that exists after a spring-forward gap.
func firstValidAfterGap(t time.Time, loc *time.Location) time.Time {
	// Transitions land on hour boundaries in every zone this pipeline targets,
	// so the boundary is the top of t's local hour.
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
}

// asNaiveUTC converts an instant to UTC and strips sub-hour zone context,
// keeping full minute/second resolution.
func asNaiveUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, time.UTC)
}

// String describes the normalizer for logs.
func (n *TimeNormalizer) String() string {
	return fmt.Sprintf("TimeNormalizer(%s)", n.loc)
}
