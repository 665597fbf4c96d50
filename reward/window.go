package reward

import "time"

// =============================================================================
// WINDOW - Calendar window for interval-restricted caps
// =============================================================================

// Window is a half-open time range [Start, End) in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowFor returns the calendar window containing now for the given
// interval. Day is the UTC calendar day, week starts Monday, month is the
// calendar month. The second result is false for the zero interval, which
// means "all time" and needs no window.
func WindowFor(iv Interval, now time.Time) (Window, bool) {
	now = now.UTC()
	switch iv {
	case IntervalDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(0, 0, 1)}, true

	case IntervalWeek:
		// Monday-based week.
		offset := int(now.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset += 7
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
		return Window{Start: start, End: start.AddDate(0, 0, 7)}, true

	case IntervalMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(0, 1, 0)}, true

	default:
		return Window{}, false
	}
}
