// Package timerange maps named calendar views to concrete time windows.
package timerange

import "time"

// View selects the time window shown to the user. It also partitions the
// event cache: each view has its own cache entry.
type View string

const (
	ViewToday    View = "today"
	ViewTomorrow View = "tomorrow"
	ViewWeek     View = "week"
)

// ParseView normalizes a view name. Unknown names fall back to ViewToday;
// this is the documented default, not an error.
func ParseView(s string) View {
	switch View(s) {
	case ViewToday, ViewTomorrow, ViewWeek:
		return View(s)
	default:
		return ViewToday
	}
}

// Views lists all known views.
func Views() []View {
	return []View{ViewToday, ViewTomorrow, ViewWeek}
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// RangeFor computes the window for a view relative to now. Windows are
// anchored at local midnight in now's location; callers format them as
// RFC 3339 (UTC offset included) when querying the calendar API. The
// result must be recomputed on every request since now changes.
func RangeFor(view View, now time.Time) Window {
	midnight := Midnight(now)

	switch view {
	case ViewTomorrow:
		return Window{
			Start: midnight.AddDate(0, 0, 1),
			End:   midnight.AddDate(0, 0, 2),
		}
	case ViewWeek:
		// Week starts on the most recent Sunday at local midnight.
		start := midnight.AddDate(0, 0, -int(now.Weekday()))
		return Window{
			Start: start,
			End:   start.AddDate(0, 0, 7),
		}
	default:
		return Window{
			Start: midnight,
			End:   midnight.AddDate(0, 0, 1),
		}
	}
}

// Midnight truncates t to the start of its day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
