package cmd_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"upnext/cmd/upnext/cmd"
	"upnext/internal/identity"
)

// writeConfig points the CLI at a temp database and a test API server.
func writeConfig(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()

	content := strings.Join([]string{
		"database_path: " + filepath.Join(dir, "upnext.db"),
		"default_view: today",
		"api:",
		"  base_url: " + apiURL,
		"daemon:",
		"  enabled: false",
		"  log_file: " + filepath.Join(dir, "daemon.log"),
		"",
	}, "\n")

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// eventServer serves a single timed event for any range query.
func eventServer(t *testing.T) *httptest.Server {
	t.Helper()
	start := time.Now().Add(2 * time.Hour)
	body := `{"items":[{"id":"standup","summary":"Daily Standup","location":"Room 4",` +
		`"start":{"dateTime":"` + start.Format(time.RFC3339) + `"},` +
		`"end":{"dateTime":"` + start.Add(30*time.Minute).Format(time.RFC3339) + `"}}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, configPath string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cmd.Execute(append(args, "--config", configPath), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestTodayRendersFetchedEvents(t *testing.T) {
	t.Setenv(identity.EnvToken, "test-token")
	srv := eventServer(t)
	configPath := writeConfig(t, srv.URL)

	stdout, stderr, code := run(t, configPath, "today")
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Daily Standup") {
		t.Errorf("output missing event:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Room 4") {
		t.Errorf("output missing location:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Last updated") {
		t.Errorf("output missing footer:\n%s", stdout)
	}
}

func TestSecondRunServesFromCache(t *testing.T) {
	t.Setenv(identity.EnvToken, "test-token")

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()
	configPath := writeConfig(t, srv.URL)

	for i := 0; i < 2; i++ {
		if _, stderr, code := run(t, configPath, "today"); code != 0 {
			t.Fatalf("run %d failed: %s", i+1, stderr)
		}
	}
	if hits != 1 {
		t.Errorf("API hit %d times, want 1 (second run cached)", hits)
	}
}

func TestNoTokenSurfacesError(t *testing.T) {
	t.Setenv(identity.EnvToken, "")
	srv := eventServer(t)
	configPath := writeConfig(t, srv.URL)

	stdout, stderr, code := run(t, configPath, "today")
	if code == 0 {
		t.Fatal("expected failure without a token")
	}
	if !strings.Contains(stderr, "no token") {
		t.Errorf("stderr = %q, want token error", stderr)
	}
	// The failed fetch still draws an empty view.
	if !strings.Contains(stdout, "No events") {
		t.Errorf("stdout missing empty view:\n%s", stdout)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Setenv(identity.EnvToken, "test-token")
	srv := eventServer(t)
	configPath := writeConfig(t, srv.URL)

	if _, stderr, code := run(t, configPath, "settings", "set", "theme", "dark"); code != 0 {
		t.Fatalf("set failed: %s", stderr)
	}

	stdout, stderr, code := run(t, configPath, "settings", "get", "theme")
	if code != 0 {
		t.Fatalf("get failed: %s", stderr)
	}
	if strings.TrimSpace(stdout) != "dark" {
		t.Errorf("theme = %q, want dark", strings.TrimSpace(stdout))
	}
}

func TestSettingsRejectsBadValue(t *testing.T) {
	srv := eventServer(t)
	configPath := writeConfig(t, srv.URL)

	_, _, code := run(t, configPath, "settings", "set", "syncInterval", "often")
	if code == 0 {
		t.Error("invalid duration accepted")
	}
}

func TestCacheClearAndStats(t *testing.T) {
	t.Setenv(identity.EnvToken, "test-token")
	srv := eventServer(t)
	configPath := writeConfig(t, srv.URL)

	if _, stderr, code := run(t, configPath, "today"); code != 0 {
		t.Fatalf("prime failed: %s", stderr)
	}

	stdout, _, code := run(t, configPath, "cache", "stats")
	if code != 0 || !strings.Contains(stdout, "Entries:      1") {
		t.Errorf("stats after prime:\n%s", stdout)
	}

	if _, stderr, code := run(t, configPath, "cache", "clear"); code != 0 {
		t.Fatalf("clear failed: %s", stderr)
	}

	stdout, _, code = run(t, configPath, "cache", "stats")
	if code != 0 || !strings.Contains(stdout, "Entries:      0") {
		t.Errorf("stats after clear:\n%s", stdout)
	}
}

func TestHelpListsSubcommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cmd.Execute([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("help failed: %s", stderr.String())
	}
	for _, sub := range []string{"today", "tomorrow", "week", "popup", "login", "logout", "daemon", "settings", "cache"} {
		if !strings.Contains(stdout.String(), sub) {
			t.Errorf("help missing %q", sub)
		}
	}
}
