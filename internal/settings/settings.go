// Package settings persists user preferences as individual keys in the
// shared store. Setting key names never end in _events or _timestamp,
// which keeps them disjoint from cache keys in the flat namespace.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"upnext/internal/store"
)

// Setting keys in the shared store.
const (
	KeyTheme              = "theme"
	KeyAutoRefresh        = "autoRefresh"
	KeyNotifications      = "notifications"
	KeySyncInterval       = "syncInterval"
	KeyNotificationTiming = "notificationTiming"
)

// Keys lists every setting key.
func Keys() []string {
	return []string{KeyTheme, KeyAutoRefresh, KeyNotifications, KeySyncInterval, KeyNotificationTiming}
}

// IsSettingKey reports whether key names a setting.
func IsSettingKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Settings is the decoded preference set.
type Settings struct {
	Theme              string
	AutoRefresh        bool
	Notifications      bool
	SyncInterval       time.Duration
	NotificationTiming time.Duration
}

// Defaults returns the settings applied on first run.
func Defaults() Settings {
	return Settings{
		Theme:              "light",
		AutoRefresh:        true,
		Notifications:      true,
		SyncInterval:       15 * time.Minute,
		NotificationTiming: 10 * time.Minute,
	}
}

// Manager loads and saves settings through the store.
type Manager struct {
	store store.Store
}

// NewManager creates a settings manager over st.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// Load reads all settings, substituting defaults for missing or
// unparseable values.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	got, err := m.store.Get(ctx, Keys())
	if err != nil {
		return Defaults(), err
	}

	s := Defaults()
	if v, ok := got[KeyTheme]; ok && (v == "light" || v == "dark") {
		s.Theme = v
	}
	if v, ok := got[KeyAutoRefresh]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.AutoRefresh = b
		}
	}
	if v, ok := got[KeyNotifications]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Notifications = b
		}
	}
	if v, ok := got[KeySyncInterval]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.SyncInterval = d
		}
	}
	if v, ok := got[KeyNotificationTiming]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.NotificationTiming = d
		}
	}
	return s, nil
}

// Save writes every setting.
func (m *Manager) Save(ctx context.Context, s Settings) error {
	return m.store.Set(ctx, map[string]string{
		KeyTheme:              s.Theme,
		KeyAutoRefresh:        strconv.FormatBool(s.AutoRefresh),
		KeyNotifications:      strconv.FormatBool(s.Notifications),
		KeySyncInterval:       s.SyncInterval.String(),
		KeyNotificationTiming: s.NotificationTiming.String(),
	})
}

// Set validates and writes a single setting by key.
func (m *Manager) Set(ctx context.Context, key, value string) error {
	switch key {
	case KeyTheme:
		if value != "light" && value != "dark" {
			return fmt.Errorf("settings: theme must be light or dark, got %q", value)
		}
	case KeyAutoRefresh, KeyNotifications:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("settings: %s must be a boolean, got %q", key, value)
		}
	case KeySyncInterval, KeyNotificationTiming:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("settings: %s must be a positive duration, got %q", key, value)
		}
	default:
		return fmt.Errorf("settings: unknown key %q", key)
	}
	return m.store.Set(ctx, map[string]string{key: value})
}

// Get reads a single setting's raw value, or the default when unset.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if !IsSettingKey(key) {
		return "", fmt.Errorf("settings: unknown key %q", key)
	}
	got, err := m.store.Get(ctx, []string{key})
	if err != nil {
		return "", err
	}
	if v, ok := got[key]; ok {
		return v, nil
	}
	return defaultValue(key), nil
}

func defaultValue(key string) string {
	d := Defaults()
	switch key {
	case KeyTheme:
		return d.Theme
	case KeyAutoRefresh:
		return strconv.FormatBool(d.AutoRefresh)
	case KeyNotifications:
		return strconv.FormatBool(d.Notifications)
	case KeySyncInterval:
		return d.SyncInterval.String()
	case KeyNotificationTiming:
		return d.NotificationTiming.String()
	}
	return ""
}

// EnsureDefaults writes defaults for any setting not yet present,
// leaving existing values alone.
func (m *Manager) EnsureDefaults(ctx context.Context) error {
	got, err := m.store.Get(ctx, Keys())
	if err != nil {
		return err
	}

	missing := make(map[string]string)
	for _, key := range Keys() {
		if _, ok := got[key]; !ok {
			missing[key] = defaultValue(key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return m.store.Set(ctx, missing)
}
