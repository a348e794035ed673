package tui_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"upnext/internal/calendar"
	"upnext/internal/events"
	"upnext/internal/render"
	"upnext/internal/timerange"
	"upnext/internal/tui"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

// mockSource serves canned events per view and records force flags.
type mockSource struct {
	mu     sync.Mutex
	byView map[timerange.View]*calendar.EventList
	calls  []timerange.View
	forced int
}

func (s *mockSource) GetEvents(_ context.Context, view timerange.View, opts events.Options) (*calendar.EventList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, view)
	if opts.ForceRefresh {
		s.forced++
	}
	if list, ok := s.byView[view]; ok {
		return list, nil
	}
	return &calendar.EventList{}, nil
}

func (s *mockSource) LastUpdate(_ context.Context) string {
	return "14:32"
}

func (s *mockSource) forceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forced
}

// mockSession flips to logged-out when Logout is called.
type mockSession struct {
	mu       sync.Mutex
	token    bool
	logouts  int
	logoutFn func() error
}

func (s *mockSession) HasToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *mockSession) Logout(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.token = false
	if s.logoutFn != nil {
		return s.logoutFn()
	}
	return nil
}

func newMockSource() *mockSource {
	start := time.Now().Add(2 * time.Hour)
	return &mockSource{byView: map[timerange.View]*calendar.EventList{
		timerange.ViewToday: {Items: []calendar.Event{{
			ID:      "standup",
			Summary: "Daily Standup",
			Start:   calendar.EventTime{DateTime: start.Format(time.RFC3339)},
			End:     calendar.EventTime{DateTime: start.Add(15 * time.Minute).Format(time.RFC3339)},
		}}},
		timerange.ViewTomorrow: {Items: []calendar.Event{{
			ID:      "review",
			Summary: "Design Review",
			Start:   calendar.EventTime{DateTime: start.Add(24 * time.Hour).Format(time.RFC3339)},
			End:     calendar.EventTime{DateTime: start.Add(25 * time.Hour).Format(time.RFC3339)},
		}}},
	}}
}

func startPopup(t *testing.T, source tui.EventSource, session tui.Session) *teatest.TestModel {
	t.Helper()
	model := tui.New(source, session, render.ThemeLight)
	return teatest.NewTestModel(t, model, teatest.WithInitialTermSize(80, 24))
}

// outputHistory preserves everything read from a test model's output so
// successive waitForOutput calls each see the full stream, not just the
// bytes written since the previous call consumed the reader.
type outputHistory struct {
	mu   sync.Mutex
	src  io.Reader
	hist bytes.Buffer
}

func (h *outputHistory) bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	io.Copy(&h.hist, h.src) //nolint:errcheck
	return h.hist.Bytes()
}

// historyReader replays an outputHistory from the start, picking up new
// output as it arrives.
type historyReader struct {
	hist *outputHistory
	off  int
}

func (r *historyReader) Read(p []byte) (int, error) {
	b := r.hist.bytes()
	if r.off >= len(b) {
		return 0, io.EOF
	}
	n := copy(p, b[r.off:])
	r.off += n
	return n, nil
}

var (
	historiesMu sync.Mutex
	histories   = map[*teatest.TestModel]*outputHistory{}
)

func historyFor(tm *teatest.TestModel) *outputHistory {
	historiesMu.Lock()
	defer historiesMu.Unlock()
	h, ok := histories[tm]
	if !ok {
		h = &outputHistory{src: tm.Output()}
		histories[tm] = h
	}
	return h
}

func waitForOutput(t *testing.T, tm *teatest.TestModel, want string) {
	t.Helper()
	teatest.WaitFor(t, &historyReader{hist: historyFor(tm)}, func(b []byte) bool {
		return bytes.Contains(b, []byte(want))
	}, teatest.WithDuration(3*time.Second))
}

func TestPopupShowsTodayEventsOnStart(t *testing.T) {
	tm := startPopup(t, newMockSource(), &mockSession{token: true})

	waitForOutput(t, tm, "Daily Standup")
	waitForOutput(t, tm, "Last updated 14:32")

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}

func TestPopupSwitchesViews(t *testing.T) {
	tm := startPopup(t, newMockSource(), &mockSession{token: true})

	waitForOutput(t, tm, "Daily Standup")

	sendRunesAndWait(tm, []rune{'2'})
	waitForOutput(t, tm, "Design Review")

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}

func TestPopupReloadForcesRefresh(t *testing.T) {
	source := newMockSource()
	tm := startPopup(t, source, &mockSession{token: true})

	waitForOutput(t, tm, "Daily Standup")

	before := source.forceCount()
	sendRunesAndWait(tm, []rune{'r'})
	waitForOutput(t, tm, "Daily Standup")
	if source.forceCount() <= before {
		t.Error("reload did not force a refresh")
	}

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}

func TestPopupLogoutReturnsToLoginState(t *testing.T) {
	session := &mockSession{token: true}
	tm := startPopup(t, newMockSource(), session)

	waitForOutput(t, tm, "Daily Standup")

	sendRunesAndWait(tm, []rune{'L'})
	waitForOutput(t, tm, "Not signed in")

	session.mu.Lock()
	logouts := session.logouts
	session.mu.Unlock()
	if logouts != 1 {
		t.Errorf("logouts = %d, want 1", logouts)
	}

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}

func TestPopupWithoutTokenShowsLoginPrompt(t *testing.T) {
	source := newMockSource()
	tm := startPopup(t, source, &mockSession{token: false})

	waitForOutput(t, tm, "Not signed in")

	source.mu.Lock()
	calls := len(source.calls)
	source.mu.Unlock()
	if calls != 0 {
		t.Errorf("logged-out popup made %d event calls, want 0", calls)
	}

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}

func TestPopupQuitsOnQ(t *testing.T) {
	tm := startPopup(t, newMockSource(), &mockSession{token: true})

	waitForOutput(t, tm, "Daily Standup")
	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	if _, err := io.ReadAll(tm.FinalOutput(t)); err != nil {
		t.Fatalf("failed to read final output: %v", err)
	}
}
