// Package render turns event lists into styled terminal output: one
// card per event for day views, date-bucketed groups for the week view.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"upnext/internal/calendar"
	"upnext/internal/timerange"
)

// Theme selects a lipgloss color profile.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Styles holds the lipgloss styles for one theme.
type Styles struct {
	Header   lipgloss.Style
	Card     lipgloss.Style
	Title    lipgloss.Style
	Time     lipgloss.Style
	Location lipgloss.Style
	Link     lipgloss.Style
	Empty    lipgloss.Style
	Footer   lipgloss.Style
}

// NewStyles builds the style set for theme.
func NewStyles(theme Theme) Styles {
	var accent, muted, link lipgloss.AdaptiveColor
	switch theme {
	case ThemeDark:
		accent = lipgloss.AdaptiveColor{Light: "27", Dark: "39"}
		muted = lipgloss.AdaptiveColor{Light: "245", Dark: "244"}
		link = lipgloss.AdaptiveColor{Light: "29", Dark: "42"}
	default:
		accent = lipgloss.AdaptiveColor{Light: "25", Dark: "33"}
		muted = lipgloss.AdaptiveColor{Light: "243", Dark: "246"}
		link = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	}

	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1),
		Card:     lipgloss.NewStyle().PaddingLeft(2),
		Title:    lipgloss.NewStyle().Bold(true),
		Time:     lipgloss.NewStyle().Foreground(accent),
		Location: lipgloss.NewStyle().Foreground(muted),
		Link:     lipgloss.NewStyle().Foreground(link).Underline(true),
		Empty:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		Footer:   lipgloss.NewStyle().Foreground(muted).MarginTop(1),
	}
}

// Renderer writes event views to an io.Writer.
type Renderer struct {
	styles Styles
	writer io.Writer
}

// NewRenderer creates a renderer with the given theme.
func NewRenderer(theme Theme, w io.Writer) *Renderer {
	return &Renderer{styles: NewStyles(theme), writer: w}
}

// RenderView writes the event list for view. Day views are a flat card
// list; the week view groups events by date.
func (r *Renderer) RenderView(view timerange.View, list *calendar.EventList, now time.Time) {
	if view == timerange.ViewWeek {
		r.renderWeek(list, now)
		return
	}
	r.renderDay(view, list, now)
}

// RenderFooter writes the "last updated" line when stamp is non-empty.
func (r *Renderer) RenderFooter(stamp string) {
	if stamp == "" {
		return
	}
	fmt.Fprintln(r.writer, r.styles.Footer.Render("Last updated "+stamp))
}

func (r *Renderer) renderDay(view timerange.View, list *calendar.EventList, now time.Time) {
	header := "Today"
	if view == timerange.ViewTomorrow {
		header = "Tomorrow"
	}
	fmt.Fprintln(r.writer, r.styles.Header.Render(header))

	if list == nil || len(list.Items) == 0 {
		fmt.Fprintln(r.writer, r.styles.Empty.Render("  No events"))
		return
	}
	for _, event := range list.Items {
		fmt.Fprint(r.writer, r.renderCard(event))
	}
}

func (r *Renderer) renderWeek(list *calendar.EventList, now time.Time) {
	if list == nil || len(list.Items) == 0 {
		fmt.Fprintln(r.writer, r.styles.Header.Render("This week"))
		fmt.Fprintln(r.writer, r.styles.Empty.Render("  No events"))
		return
	}

	for _, bucket := range GroupByDate(list.Items) {
		fmt.Fprintln(r.writer, r.styles.Header.Render(FormatDateHeader(bucket.Date, now)))
		for _, event := range bucket.Events {
			fmt.Fprint(r.writer, r.renderCard(event))
		}
	}
}

// renderCard formats one event as a two-line card.
func (r *Renderer) renderCard(event calendar.Event) string {
	var b strings.Builder

	title := event.Summary
	if title == "" {
		title = "(untitled)"
	}
	b.WriteString(r.styles.Title.Render(title))
	b.WriteString("\n")

	b.WriteString(r.styles.Time.Render(FormatEventTime(event)))
	if event.Location != "" {
		b.WriteString("  ")
		b.WriteString(r.styles.Location.Render(event.Location))
	}
	if event.HangoutLink != "" {
		b.WriteString("  ")
		b.WriteString(r.styles.Link.Render("Join: " + event.HangoutLink))
	}
	b.WriteString("\n")

	return r.styles.Card.Render(b.String()) + "\n"
}

// FormatEventTime renders an event's time span, or "All day".
func FormatEventTime(event calendar.Event) string {
	if event.IsAllDay() {
		return "All day"
	}

	start := event.Start.Time()
	end := event.End.Time()
	if start.IsZero() {
		return ""
	}
	if end.IsZero() {
		return start.Format("15:04")
	}
	return start.Format("15:04") + " - " + end.Format("15:04")
}

// DateBucket is one day's worth of events in the week view.
type DateBucket struct {
	Date   time.Time
	Events []calendar.Event
}

// GroupByDate buckets events by their local start date, ordered by
// date. Event order inside a bucket follows the input order, which the
// API already sorts by start time.
func GroupByDate(items []calendar.Event) []DateBucket {
	byDate := make(map[time.Time][]calendar.Event)
	for _, event := range items {
		start := event.Start.Time()
		if start.IsZero() {
			continue
		}
		day := timerange.Midnight(start)
		byDate[day] = append(byDate[day], event)
	}

	buckets := make([]DateBucket, 0, len(byDate))
	for day, events := range byDate {
		buckets = append(buckets, DateBucket{Date: day, Events: events})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})
	return buckets
}

// FormatDateHeader names a date relative to now: Today, Tomorrow, or
// the long-form weekday and date.
func FormatDateHeader(date, now time.Time) string {
	today := timerange.Midnight(now)
	switch timerange.Midnight(date) {
	case today:
		return "Today"
	case today.AddDate(0, 0, 1):
		return "Tomorrow"
	}
	return date.Format("Monday, January 2")
}
