// Package scheduler runs the background daemon: periodic calendar
// sync, cache cleanup, and upcoming-event notification checks, with a
// Unix socket for control messages from the CLI.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"upnext/internal/cache"
	"upnext/internal/calendar"
	"upnext/internal/events"
	"upnext/internal/identity"
	"upnext/internal/logging"
	"upnext/internal/metrics"
	"upnext/internal/notify"
	"upnext/internal/settings"
	"upnext/internal/store"
	"upnext/internal/timerange"
)

// notifyLookahead is how far ahead the notification duty queries the
// API each check.
const notifyLookahead = 15 * time.Minute

// Config holds daemon process configuration.
type Config struct {
	PIDPath         string
	SocketPath      string
	ConfigPath      string        // app config file passed to the forked process
	CleanupInterval time.Duration // cache eviction cadence
	NotifyInterval  time.Duration // upcoming-event check cadence
	Executable      string        // explicit executable path (tests)
}

// Message is an IPC request from the CLI.
type Message struct {
	Action   string            `json:"action"` // "forceSync", "updateSettings", "status", "stop"
	Settings map[string]string `json:"settings,omitempty"`
}

// Response is the daemon's IPC reply.
type Response struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Running   bool             `json:"running"`
	SyncCount int              `json:"sync_count,omitempty"`
	LastSync  string           `json:"last_sync,omitempty"`
	Counters  metrics.Snapshot `json:"counters"`
}

// Deps are the collaborators the daemon drives.
type Deps struct {
	Store    store.Store
	Cache    *cache.Cache
	Events   *events.Service
	Fetcher  events.Fetcher
	Settings *settings.Manager
	Provider identity.Provider
	Manager  *notify.Manager
	Records  *notify.Records
	Counters *metrics.Counters
	Log      *logging.FileLogger
}

// Daemon is a running background process.
type Daemon struct {
	cfg  *Config
	deps Deps

	mu        sync.RWMutex
	syncCount int
	lastSync  time.Time

	syncMu   sync.Mutex // serializes sync runs from ticker and IPC
	stopChan chan struct{}
	stopOnce sync.Once
	listener net.Listener

	// syncReset wakes the main loop to rebuild the sync ticker after a
	// syncInterval settings change.
	syncReset chan time.Duration
}

// New creates a daemon.
func New(cfg *Config, deps Deps) *Daemon {
	return &Daemon{
		cfg:       cfg,
		deps:      deps,
		stopChan:  make(chan struct{}),
		syncReset: make(chan time.Duration, 1),
	}
}

// Start runs the daemon until stopped by signal or IPC. It owns the
// PID file and control socket for its lifetime.
func (d *Daemon) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.cfg.PIDPath), 0700); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(d.cfg.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	_ = os.Remove(d.cfg.SocketPath)

	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	d.listener = listener

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	prefs, err := d.deps.Settings.Load(ctx)
	if err != nil {
		d.deps.Log.Printf("settings load failed, using defaults: %v", err)
	}

	d.deps.Log.Printf("daemon started (pid %d, sync every %v)", os.Getpid(), prefs.SyncInterval)

	go d.handleConnections()

	changes := d.deps.Store.Watch()
	go d.watchSettings(ctx, changes)

	syncTicker := time.NewTicker(prefs.SyncInterval)
	defer syncTicker.Stop()
	cleanupTicker := time.NewTicker(d.cfg.CleanupInterval)
	defer cleanupTicker.Stop()
	notifyTicker := time.NewTicker(d.cfg.NotifyInterval)
	defer notifyTicker.Stop()

	for {
		select {
		case <-sigChan:
			d.deps.Log.Printf("received shutdown signal")
			d.cleanup()
			return nil

		case <-d.stopChan:
			d.deps.Log.Printf("stop requested via socket")
			d.cleanup()
			return nil

		case <-ctx.Done():
			d.cleanup()
			return ctx.Err()

		case <-syncTicker.C:
			d.runSync(ctx)

		case <-cleanupTicker.C:
			d.runCleanup(ctx)

		case <-notifyTicker.C:
			d.runNotifyCheck(ctx)

		case interval := <-d.syncReset:
			syncTicker.Reset(interval)
			d.deps.Log.Printf("sync interval changed to %v", interval)
		}
	}
}

// Stop signals the daemon to shut down.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
}

// watchSettings reacts to store changes: a new syncInterval restarts
// the sync ticker.
func (d *Daemon) watchSettings(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-d.stopChan:
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Key != settings.KeySyncInterval || change.Removed {
				continue
			}
			if interval, err := time.ParseDuration(change.Value); err == nil && interval > 0 {
				select {
				case d.syncReset <- interval:
				default:
				}
			}
		}
	}
}

// runSync force-refreshes the near-term views. All failures are logged
// and swallowed so future cycles still run.
func (d *Daemon) runSync(ctx context.Context) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	prefs, err := d.deps.Settings.Load(ctx)
	if err != nil {
		d.deps.Log.Printf("sync skipped, settings unavailable: %v", err)
		return
	}
	if !prefs.AutoRefresh {
		return
	}
	if _, _, err := d.deps.Provider.Token(); err != nil {
		d.deps.Log.Printf("sync skipped, no token: %v", err)
		return
	}

	d.mu.Lock()
	d.syncCount++
	count := d.syncCount
	d.mu.Unlock()

	for _, view := range []timerange.View{timerange.ViewToday, timerange.ViewTomorrow} {
		if _, err := d.deps.Events.GetEvents(ctx, view, events.Options{ForceRefresh: true}); err != nil {
			d.deps.Log.Printf("sync %d: refresh of %s failed: %v", count, view, err)
		}
	}

	d.mu.Lock()
	d.lastSync = time.Now()
	d.mu.Unlock()
	d.deps.Log.Printf("sync %d completed", count)
}

// runCleanup evicts cache entries past the age bound and prunes old
// notification records.
func (d *Daemon) runCleanup(ctx context.Context) {
	now := time.Now()

	removed, err := d.deps.Cache.Cleanup(ctx, events.MaxCacheAge, now)
	if err != nil {
		d.deps.Log.Printf("cache cleanup failed: %v", err)
	} else if removed > 0 {
		d.deps.Log.Printf("cache cleanup removed %d entries", removed)
	}

	if d.deps.Records != nil {
		pruned, err := d.deps.Records.Prune(ctx, now.Add(-events.MaxCacheAge))
		if err != nil {
			d.deps.Log.Printf("record prune failed: %v", err)
		} else if pruned > 0 {
			d.deps.Log.Printf("pruned %d notification records", pruned)
		}
	}
}

// runNotifyCheck queries the API for events inside the lookahead
// window and notifies the ones starting soon.
func (d *Daemon) runNotifyCheck(ctx context.Context) {
	if d.deps.Records == nil {
		return
	}

	prefs, err := d.deps.Settings.Load(ctx)
	if err != nil || !prefs.Notifications {
		return
	}

	now := time.Now()
	items := d.upcomingEvents(ctx, now)
	if len(items) == 0 {
		return
	}

	checker := notify.NewChecker(d.deps.Records, d.deps.Manager, prefs.NotificationTiming)
	sent, err := checker.Check(ctx, items, now)
	if err != nil {
		d.deps.Log.Printf("notification check failed: %v", err)
	}
	if sent > 0 {
		d.deps.Log.Printf("sent %d notifications", sent)
	}
}

// upcomingEvents fetches the next notifyLookahead of events from the
// API, falling back to today's cached entry when no token is held or
// the fetch fails.
func (d *Daemon) upcomingEvents(ctx context.Context, now time.Time) []calendar.Event {
	if token, _, err := d.deps.Provider.Token(); err == nil {
		window := timerange.Window{Start: now, End: now.Add(notifyLookahead)}
		list, err := d.deps.Fetcher.FetchEvents(ctx, token, window)
		if err == nil {
			return list.Items
		}
		if errors.Is(err, calendar.ErrUnauthorized) {
			d.deps.Provider.Invalidate()
		}
		d.deps.Log.Printf("notification fetch failed, using cache: %v", err)
	}

	entry, err := d.deps.Cache.Read(ctx, timerange.ViewToday)
	if err != nil || entry == nil {
		return nil
	}
	var list calendar.EventList
	if err := json.Unmarshal(entry.Payload, &list); err != nil {
		return nil
	}
	return list.Items
}

func (d *Daemon) handleConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.stopChan:
				return
			default:
				select {
				case <-d.stopChan:
					return
				case <-time.After(time.Millisecond):
					d.deps.Log.Printf("accept error: %v", err)
				}
			}
			continue
		}
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var msg Message
	if err := decoder.Decode(&msg); err != nil {
		return
	}

	var resp Response
	switch msg.Action {
	case "forceSync":
		go d.runSync(context.Background())
		resp = Response{Success: true, Running: true}

	case "updateSettings":
		resp = d.applySettings(msg.Settings)

	case "status":
		d.mu.RLock()
		resp = Response{
			Success:   true,
			Running:   true,
			SyncCount: d.syncCount,
			Counters:  d.deps.Counters.Snapshot(),
		}
		if !d.lastSync.IsZero() {
			resp.LastSync = d.lastSync.Format(time.RFC3339)
		}
		d.mu.RUnlock()

	case "stop":
		resp = Response{Success: true, Running: false}
		_ = encoder.Encode(resp)
		d.Stop()
		return

	default:
		resp = Response{Success: false, Error: fmt.Sprintf("unknown action %q", msg.Action), Running: true}
	}

	_ = encoder.Encode(resp)
}

// applySettings writes the supplied settings; the store watch picks up
// interval changes from there.
func (d *Daemon) applySettings(values map[string]string) Response {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for key, value := range values {
		if err := d.deps.Settings.Set(ctx, key, value); err != nil {
			return Response{Success: false, Error: err.Error(), Running: true}
		}
	}
	return Response{Success: true, Running: true}
}

func (d *Daemon) cleanup() {
	d.Stop()

	if d.listener != nil {
		_ = d.listener.Close()
	}

	d.deps.Log.Printf("daemon stopped")

	// Give handleConnections a moment to observe the closed listener.
	time.Sleep(10 * time.Millisecond)

	_ = os.Remove(d.cfg.PIDPath)
	_ = os.Remove(d.cfg.SocketPath)
}

// Client talks to a running daemon over its control socket.
type Client struct {
	socketPath string
}

// NewClient creates a daemon client.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// ForceSync asks the daemon to refresh immediately.
func (c *Client) ForceSync() (*Response, error) {
	return c.roundTrip(Message{Action: "forceSync"})
}

// UpdateSettings pushes new settings values to the daemon.
func (c *Client) UpdateSettings(values map[string]string) (*Response, error) {
	return c.roundTrip(Message{Action: "updateSettings", Settings: values})
}

// Status reads the daemon's current state.
func (c *Client) Status() (*Response, error) {
	return c.roundTrip(Message{Action: "status"})
}

// Stop asks the daemon to shut down and waits for its acknowledgment.
func (c *Client) Stop() error {
	_, err := c.roundTrip(Message{Action: "stop"})
	return err
}

func (c *Client) roundTrip(msg Message) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Fork spawns the daemon as a detached process re-running this
// executable with the hidden daemon flags.
func Fork(cfg *Config) error {
	executable := cfg.Executable
	if executable == "" {
		var err error
		executable, err = os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
	}

	args := []string{
		"--daemon-mode",
		"--daemon-pid-path", cfg.PIDPath,
		"--daemon-socket-path", cfg.SocketPath,
	}
	if cfg.ConfigPath != "" {
		args = append(args, "--config", cfg.ConfigPath)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release daemon process: %w", err)
	}
	return nil
}

// IsRunning checks the PID file and control socket for a live daemon,
// removing stale files when the process is gone.
func IsRunning(pidPath, socketPath string) bool {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes liveness.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidPath)
		_ = os.Remove(socketPath)
		return false
	}

	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
