// Package tui provides the interactive popup: a terminal view of
// upcoming events with view switching, reload, and logout.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"upnext/internal/calendar"
	"upnext/internal/events"
	"upnext/internal/render"
	"upnext/internal/timerange"
)

// autoRefreshInterval is how often the visible view is force-refreshed
// while a token is held.
const autoRefreshInterval = 30 * time.Second

// EventSource supplies events and the last-update stamp. The events
// service together with the cache satisfies it.
type EventSource interface {
	GetEvents(ctx context.Context, view timerange.View, opts events.Options) (*calendar.EventList, error)
	LastUpdate(ctx context.Context) string
}

// Session exposes the login state and the logout action.
type Session interface {
	HasToken() bool
	Logout(ctx context.Context) error
}

type eventsLoadedMsg struct {
	view  timerange.View
	list  *calendar.EventList
	stamp string
}

type errMsg struct {
	err error
}

type tickMsg time.Time

type loggedOutMsg struct{}

// Model is the popup state.
type Model struct {
	source  EventSource
	session Session
	ctx     context.Context

	view     timerange.View
	list     *calendar.EventList
	stamp    string
	err      error
	loading  bool
	loggedIn bool

	spinner spinner.Model
	styles  render.Styles
	theme   render.Theme
	width   int
}

// New creates the popup model.
func New(source EventSource, session Session, theme render.Theme) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		source:   source,
		session:  session,
		ctx:      context.Background(),
		view:     timerange.ViewToday,
		loggedIn: session.HasToken(),
		spinner:  sp,
		styles:   render.NewStyles(theme),
		theme:    theme,
	}
}

// Init starts the initial load and the auto-refresh timer.
func (m *Model) Init() tea.Cmd {
	if !m.loggedIn {
		return nil
	}
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load(m.view, false), tick())
}

func tick() tea.Cmd {
	return tea.Tick(autoRefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// load fetches events for view off the update loop.
func (m *Model) load(view timerange.View, force bool) tea.Cmd {
	return func() tea.Msg {
		list, err := m.source.GetEvents(m.ctx, view, events.Options{ForceRefresh: force})
		if err != nil {
			return errMsg{err}
		}
		return eventsLoadedMsg{view: view, list: list, stamp: m.source.LastUpdate(m.ctx)}
	}
}

func (m *Model) logout() tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Logout(m.ctx); err != nil {
			return errMsg{err}
		}
		return loggedOutMsg{}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventsLoadedMsg:
		// A slow load for a view the user already left is dropped.
		if msg.view != m.view {
			return m, nil
		}
		m.loading = false
		m.err = nil
		m.list = msg.list
		m.stamp = msg.stamp
		return m, nil

	case errMsg:
		m.loading = false
		m.err = msg.err
		m.list = nil
		return m, nil

	case tickMsg:
		if !m.loggedIn {
			return m, tick()
		}
		return m, tea.Batch(m.load(m.view, true), tick())

	case loggedOutMsg:
		m.loggedIn = false
		m.list = nil
		m.stamp = ""
		m.err = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "1":
		return m.switchView(timerange.ViewToday)
	case "2":
		return m.switchView(timerange.ViewTomorrow)
	case "3":
		return m.switchView(timerange.ViewWeek)

	case "r":
		if !m.loggedIn {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.load(m.view, true))

	case "L":
		if !m.loggedIn {
			return m, nil
		}
		return m, m.logout()
	}
	return m, nil
}

func (m *Model) switchView(view timerange.View) (tea.Model, tea.Cmd) {
	if !m.loggedIn || view == m.view {
		return m, nil
	}
	m.view = view
	m.loading = true
	return m, tea.Batch(m.spinner.Tick, m.load(view, false))
}

// View renders the popup.
func (m *Model) View() string {
	var b strings.Builder

	if !m.loggedIn {
		b.WriteString(m.styles.Header.Render("upnext"))
		b.WriteString("\n\n")
		b.WriteString(m.styles.Empty.Render("Not signed in. Run `upnext login` to connect your calendar."))
		b.WriteString("\n\n")
		b.WriteString(m.styles.Footer.Render("q quit"))
		return b.String()
	}

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View())
		b.WriteString(" Loading events...\n")

	case m.err != nil:
		b.WriteString(m.styles.Empty.Render("Could not load events: " + m.err.Error()))
		b.WriteString("\n")

	default:
		var body strings.Builder
		render.NewRenderer(m.theme, &body).RenderView(m.view, m.list, time.Now())
		b.WriteString(body.String())
	}

	if m.stamp != "" {
		b.WriteString(m.styles.Footer.Render("Last updated " + m.stamp))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Footer.Render("1 today  2 tomorrow  3 week  r reload  L logout  q quit"))
	return b.String()
}

func (m *Model) renderTabs() string {
	active := lipgloss.NewStyle().Bold(true).Underline(true)
	inactive := m.styles.Footer

	labels := []struct {
		view timerange.View
		name string
	}{
		{timerange.ViewToday, "Today"},
		{timerange.ViewTomorrow, "Tomorrow"},
		{timerange.ViewWeek, "Week"},
	}

	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		if l.view == m.view {
			parts = append(parts, active.Render(l.name))
		} else {
			parts = append(parts, inactive.Render(l.name))
		}
	}
	return strings.Join(parts, "  ")
}
