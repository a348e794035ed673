package scheduler_test

import (
	"context"
	"encoding/json"
	"io"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"upnext/internal/cache"
	"upnext/internal/calendar"
	"upnext/internal/events"
	"upnext/internal/identity"
	"upnext/internal/logging"
	"upnext/internal/metrics"
	"upnext/internal/notify"
	"upnext/internal/scheduler"
	"upnext/internal/settings"
	"upnext/internal/store"
	"upnext/internal/timerange"
)

type countingFetcher struct {
	calls atomic.Int64
	list  *calendar.EventList
	err   error
}

func (f *countingFetcher) FetchEvents(ctx context.Context, token string, window timerange.Window) (*calendar.EventList, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.list != nil {
		return f.list, nil
	}
	return &calendar.EventList{}, nil
}

// captureChannel collects every delivered notification.
type captureChannel struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureChannel) Send(n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureChannel) Close() error { return nil }

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type daemonHarness struct {
	client     *scheduler.Client
	fetcher    *countingFetcher
	store      store.Store
	cache      *cache.Cache
	socketPath string
}

type harnessConfig struct {
	notifyInterval time.Duration
	channel        notify.Channel
	fetchList      *calendar.EventList
	fetchErr       error
}

// startDaemon runs a daemon over in-memory collaborators and returns a
// connected client.
func startDaemon(t *testing.T) daemonHarness {
	return startDaemonWith(t, harnessConfig{notifyInterval: time.Hour})
}

func startDaemonWith(t *testing.T, hc harnessConfig) daemonHarness {
	t.Helper()

	dir := t.TempDir()
	cfg := &scheduler.Config{
		PIDPath:         filepath.Join(dir, "daemon.pid"),
		SocketPath:      filepath.Join(dir, "daemon.sock"),
		CleanupInterval: time.Hour,
		NotifyInterval:  hc.notifyInterval,
	}

	st := store.NewMemory()
	counters := metrics.NewCounters()
	fetcher := &countingFetcher{list: hc.fetchList, err: hc.fetchErr}
	provider := &identity.MockProvider{Tokens: []string{"tok"}}
	eventCache := cache.New(st)
	svc := events.NewService(eventCache, fetcher, provider, counters, logging.NewWithWriter(io.Discard, false))

	manager := notify.NewManager(false)
	var records *notify.Records
	if hc.channel != nil {
		manager = notify.NewManager(true, hc.channel)
		var err error
		records, err = notify.OpenRecords(filepath.Join(dir, "notified.db"))
		if err != nil {
			t.Fatalf("failed to open records: %v", err)
		}
		t.Cleanup(func() { _ = records.Close() })
	}

	deps := scheduler.Deps{
		Store:    st,
		Cache:    eventCache,
		Events:   svc,
		Fetcher:  fetcher,
		Settings: settings.NewManager(st),
		Provider: provider,
		Manager:  manager,
		Records:  records,
		Counters: counters,
		Log:      logging.NewDiscardLogger(),
	}

	daemon := scheduler.New(cfg, deps)
	done := make(chan error, 1)
	go func() { done <- daemon.Start(context.Background()) }()

	client := scheduler.NewClient(cfg.SocketPath)
	waitFor(t, func() bool {
		_, err := client.Status()
		return err == nil
	})

	t.Cleanup(func() {
		_ = client.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop within 2s")
		}
	})

	return daemonHarness{client: client, fetcher: fetcher, store: st, cache: eventCache, socketPath: cfg.SocketPath}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestStatusReportsRunning(t *testing.T) {
	h := startDaemon(t)

	resp, err := h.client.Status()
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !resp.Success || !resp.Running {
		t.Errorf("status = %+v, want success and running", resp)
	}
}

func TestForceSyncRefreshesNearTermViews(t *testing.T) {
	h := startDaemon(t)

	resp, err := h.client.ForceSync()
	if err != nil {
		t.Fatalf("force sync failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("force sync rejected: %+v", resp)
	}

	// One forced refresh per near-term view.
	waitFor(t, func() bool { return h.fetcher.calls.Load() >= 2 })

	waitFor(t, func() bool {
		status, err := h.client.Status()
		return err == nil && status.SyncCount >= 1
	})
}

func TestUpdateSettingsPersistsValues(t *testing.T) {
	h := startDaemon(t)

	resp, err := h.client.UpdateSettings(map[string]string{
		settings.KeySyncInterval: "30m",
		settings.KeyTheme:        "dark",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("update rejected: %+v", resp)
	}

	got, err := h.store.Get(context.Background(), []string{settings.KeySyncInterval, settings.KeyTheme})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got[settings.KeySyncInterval] != "30m" || got[settings.KeyTheme] != "dark" {
		t.Errorf("stored settings = %v", got)
	}
}

func TestUpdateSettingsRejectsInvalidValue(t *testing.T) {
	h := startDaemon(t)

	resp, err := h.client.UpdateSettings(map[string]string{settings.KeyTheme: "neon"})
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("invalid value accepted: %+v", resp)
	}
}

func TestUnknownActionReturnsError(t *testing.T) {
	h := startDaemon(t)

	conn, err := net.Dial("unix", h.socketPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := json.NewEncoder(conn).Encode(scheduler.Message{Action: "reboot"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var resp scheduler.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("unknown action accepted: %+v", resp)
	}
}

func inBandEvent(id string, startsIn time.Duration) calendar.Event {
	start := time.Now().Add(startsIn)
	return calendar.Event{
		ID:      id,
		Summary: "Standup",
		Start:   calendar.EventTime{DateTime: start.Format(time.RFC3339)},
		End:     calendar.EventTime{DateTime: start.Add(15 * time.Minute).Format(time.RFC3339)},
	}
}

func TestNotifyCheckQueriesAPIWithColdCache(t *testing.T) {
	ch := &captureChannel{}
	h := startDaemonWith(t, harnessConfig{
		notifyInterval: 50 * time.Millisecond,
		channel:        ch,
		fetchList:      &calendar.EventList{Items: []calendar.Event{inBandEvent("standup", 7*time.Minute)}},
	})

	// The cache is empty; the event must come from the API.
	waitFor(t, func() bool { return ch.count() >= 1 })
	if h.fetcher.calls.Load() == 0 {
		t.Error("notification check never queried the API")
	}

	// Later checks see the event as already notified.
	time.Sleep(150 * time.Millisecond)
	if got := ch.count(); got != 1 {
		t.Errorf("notifications sent = %d, want 1", got)
	}
}

func TestNotifyCheckFallsBackToCacheOnFetchFailure(t *testing.T) {
	ch := &captureChannel{}
	h := startDaemonWith(t, harnessConfig{
		notifyInterval: 50 * time.Millisecond,
		channel:        ch,
		fetchErr:       errors.New("api down"),
	})

	payload, err := json.Marshal(&calendar.EventList{Items: []calendar.Event{inBandEvent("review", 8*time.Minute)}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := h.cache.Write(context.Background(), timerange.ViewToday, payload, time.Now()); err != nil {
		t.Fatalf("cache write failed: %v", err)
	}

	waitFor(t, func() bool { return ch.count() >= 1 })
}

func TestIsRunningWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "daemon.pid")
	sock := filepath.Join(dir, "daemon.sock")

	if scheduler.IsRunning(pid, sock) {
		t.Error("reported running with no PID file")
	}
}
