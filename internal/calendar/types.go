// Package calendar fetches events from the Google Calendar API.
package calendar

import "time"

// EventTime is either a timed instant (DateTime set) or an all-day
// date (Date set).
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// IsAllDay reports whether the time carries only a date.
func (t EventTime) IsAllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// Time parses the instant in local time. All-day dates resolve to
// local midnight. The zero time is returned when neither field parses.
func (t EventTime) Time() time.Time {
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.Local()
		}
	}
	if t.Date != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", t.Date, time.Local); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// Event is one calendar event as returned by the API.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	HangoutLink string    `json:"hangoutLink,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// IsAllDay reports whether the event spans whole days.
func (e Event) IsAllDay() bool {
	return e.Start.IsAllDay()
}

// EventList is the events response body.
type EventList struct {
	Items []Event `json:"items"`
}
