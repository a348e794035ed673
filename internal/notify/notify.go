// Package notify delivers upcoming-event notifications through OS and
// log channels, and decides which events are due for one.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Notification is one message to deliver.
type Notification struct {
	Title     string
	Message   string
	Timestamp time.Time
}

// Channel delivers notifications by one mechanism.
type Channel interface {
	Send(n Notification) error
	Close() error
}

// CommandExecutor runs a system command. Tests inject a mock.
type CommandExecutor interface {
	Execute(cmd string, args ...string) error
}

// MockCommandExecutor records or scripts command execution for tests.
type MockCommandExecutor struct {
	ExecuteFunc func(cmd string, args ...string) error
}

func (m *MockCommandExecutor) Execute(cmd string, args ...string) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(cmd, args...)
	}
	return nil
}

type realCommandExecutor struct{}

func (realCommandExecutor) Execute(cmd string, args ...string) error {
	return exec.Command(cmd, args...).Run()
}

// Manager fans a notification out to every channel.
type Manager struct {
	channels []Channel
	enabled  bool
}

// NewManager creates a manager over channels. A disabled manager
// accepts and drops everything.
func NewManager(enabled bool, channels ...Channel) *Manager {
	return &Manager{channels: channels, enabled: enabled}
}

// Send delivers n on every channel, returning the last failure.
func (m *Manager) Send(n Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes all channels.
func (m *Manager) Close() error {
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ChannelCount returns the number of attached channels.
func (m *Manager) ChannelCount() int {
	return len(m.channels)
}

// OSChannel sends desktop notifications with the platform's native
// mechanism.
type OSChannel struct {
	executor CommandExecutor
	platform string
}

// OSOption configures an OSChannel.
type OSOption func(*OSChannel)

// WithExecutor injects a command executor.
func WithExecutor(e CommandExecutor) OSOption {
	return func(c *OSChannel) { c.executor = e }
}

// WithPlatform overrides runtime.GOOS.
func WithPlatform(platform string) OSOption {
	return func(c *OSChannel) { c.platform = platform }
}

// NewOSChannel creates a desktop notification channel.
func NewOSChannel(opts ...OSOption) *OSChannel {
	ch := &OSChannel{platform: runtime.GOOS}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.executor == nil {
		ch.executor = realCommandExecutor{}
	}
	return ch
}

func (c *OSChannel) Send(n Notification) error {
	switch c.platform {
	case "linux":
		return c.executor.Execute("notify-send", n.Title, n.Message)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Message), escapeAppleScript(n.Title))
		return c.executor.Execute("osascript", "-e", script)
	case "windows":
		script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
$notification = New-Object System.Windows.Forms.NotifyIcon
$notification.Icon = [System.Drawing.SystemIcons]::Information
$notification.BalloonTipTitle = "%s"
$notification.BalloonTipText = "%s"
$notification.Visible = $true
$notification.ShowBalloonTip(5000)
`, escapePowerShell(n.Title), escapePowerShell(n.Message))
		return c.executor.Execute("powershell", "-Command", script)
	default:
		return fmt.Errorf("unsupported platform: %s", c.platform)
	}
}

func (c *OSChannel) Close() error {
	return nil
}

// escapeAppleScript escapes backslashes and double quotes so the text
// is safe inside an AppleScript string literal.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// escapePowerShell escapes backticks, quotes, and dollar signs so the
// text cannot break out of a PowerShell string.
func escapePowerShell(s string) string {
	s = strings.ReplaceAll(s, "`", "``")
	s = strings.ReplaceAll(s, `"`, "`\"")
	s = strings.ReplaceAll(s, "$", "`$")
	return s
}
