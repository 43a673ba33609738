package catalog

import (
	"time"
)

// timelineSince converts a Timeline into the lower bound of a created_at
// range, clamped to "now" per spec.md §4.4. A zero Timeline means no bound.
func timelineSince(t Timeline) (time.Time, bool) {
	now := time.Now()

	switch t {
	case TimelineToday:
		return now.AddDate(0, 0, -1), true
	case TimelineWeek:
		return now.AddDate(0, 0, -7), true
	case TimelineMonth:
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}
