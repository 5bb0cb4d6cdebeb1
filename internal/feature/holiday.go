package feature

import "time"

// HolidayIndex answers holiday membership questions for local calendar days,
// keyed by their UTC-midnight representatives.
type HolidayIndex struct {
	days map[time.Time]struct{}
}

// NewHolidayIndex builds an index from holiday dates. Dates are normalized to
// UTC midnight; duplicates collapse. A nil or empty date set yields an index
// that answers false everywhere.
func NewHolidayIndex(dates []time.Time) *HolidayIndex {
	days := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		key := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		days[key] = struct{}{}
	}
	return &HolidayIndex{days: days}
}

// Contains reports whether the given local day (UTC-midnight key) is a holiday.
func (h *HolidayIndex) Contains(day time.Time) bool {
	if h == nil {
		return false
	}
	key := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	_, ok := h.days[key]
	return ok
}

// Flags returns the (is_holiday, pre_holiday, post_holiday) indicators for
// the given local day as 0/1 feature values.
func (h *HolidayIndex) Flags(day time.Time) (isHoliday, preHoliday, postHoliday float64) {
	if h.Contains(day) {
		isHoliday = 1
	}
	if h.Contains(day.AddDate(0, 0, 1)) {
		preHoliday = 1
	}
	if h.Contains(day.AddDate(0, 0, -1)) {
		postHoliday = 1
	}
	return isHoliday, preHoliday, postHoliday
}
