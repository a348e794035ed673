// Package cache layers calendar-event caching on top of a key-value
// Store. Each view owns a pair of keys: <view>_events holds the raw
// event payload and <view>_timestamp holds the write time. The pair is
// always written and removed together; an entry missing either half is
// treated as absent.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"upnext/internal/store"
	"upnext/internal/timerange"
)

const (
	eventsSuffix    = "_events"
	timestampSuffix = "_timestamp"

	// LastUpdateKey records the wall-clock time of the most recent cache
	// write, formatted HH:MM for display.
	LastUpdateKey = "lastUpdateTime"
)

// EventsKey returns the payload key for a view.
func EventsKey(view timerange.View) string {
	return string(view) + eventsSuffix
}

// TimestampKey returns the timestamp key for a view.
func TimestampKey(view timerange.View) string {
	return string(view) + timestampSuffix
}

// IsCacheKey reports whether key belongs to the cache (as opposed to a
// settings key sharing the same store).
func IsCacheKey(key string) bool {
	return strings.HasSuffix(key, eventsSuffix) || strings.HasSuffix(key, timestampSuffix)
}

// Entry is one cached view payload with its write time.
type Entry struct {
	Payload   json.RawMessage
	Timestamp time.Time
}

// Fresh reports whether the entry was written within ttl of now.
func (e *Entry) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.Timestamp) < ttl
}

// Cache reads and writes view entries in a Store.
type Cache struct {
	store store.Store
}

// New creates a cache over st.
func New(st store.Store) *Cache {
	return &Cache{store: st}
}

// Read returns the cached entry for view, or nil when either half of
// the key pair is missing or the timestamp fails to parse.
func (c *Cache) Read(ctx context.Context, view timerange.View) (*Entry, error) {
	got, err := c.store.Get(ctx, []string{EventsKey(view), TimestampKey(view)})
	if err != nil {
		return nil, err
	}

	payload, okP := got[EventsKey(view)]
	stamp, okT := got[TimestampKey(view)]
	if !okP || !okT {
		return nil, nil
	}

	millis, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return nil, nil
	}

	return &Entry{
		Payload:   json.RawMessage(payload),
		Timestamp: time.UnixMilli(millis),
	}, nil
}

// IsFresh reports whether view has a cached entry written within ttl.
// A store failure counts as not fresh.
func (c *Cache) IsFresh(ctx context.Context, view timerange.View, ttl time.Duration, now time.Time) bool {
	entry, err := c.Read(ctx, view)
	if err != nil || entry == nil {
		return false
	}
	return entry.Fresh(ttl, now)
}

// Write stores payload for view stamped at now, and updates the
// last-update marker. The pair is written in one Set so a reader never
// observes half an entry.
func (c *Cache) Write(ctx context.Context, view timerange.View, payload json.RawMessage, now time.Time) error {
	return c.store.Set(ctx, map[string]string{
		EventsKey(view):    string(payload),
		TimestampKey(view): strconv.FormatInt(now.UnixMilli(), 10),
		LastUpdateKey:      now.Format("15:04"),
	})
}

// Invalidate removes the entry for a single view.
func (c *Cache) Invalidate(ctx context.Context, view timerange.View) error {
	return c.store.Remove(ctx, []string{EventsKey(view), TimestampKey(view)})
}

// Cleanup removes every cache entry older than maxAge, counting each
// removed pair once. Orphaned halves (a timestamp with no payload, or
// the reverse) are removed regardless of age. Settings keys in the
// shared store are never touched.
func (c *Cache) Cleanup(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	var doomed []string
	removed := 0
	for key, value := range all {
		if !strings.HasSuffix(key, timestampSuffix) {
			continue
		}
		view := strings.TrimSuffix(key, timestampSuffix)

		millis, err := strconv.ParseInt(value, 10, 64)
		stale := err != nil || now.Sub(time.UnixMilli(millis)) > maxAge
		if _, ok := all[view+eventsSuffix]; !ok {
			stale = true
		}
		if !stale {
			continue
		}

		doomed = append(doomed, key, view+eventsSuffix)
		removed++
	}
	for key := range all {
		if !strings.HasSuffix(key, eventsSuffix) {
			continue
		}
		view := strings.TrimSuffix(key, eventsSuffix)
		if _, ok := all[view+timestampSuffix]; !ok {
			doomed = append(doomed, key)
			removed++
		}
	}

	if len(doomed) == 0 {
		return 0, nil
	}
	if err := c.store.Remove(ctx, doomed); err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear removes all cache keys and the last-update marker, leaving
// settings keys in place.
func (c *Cache) Clear(ctx context.Context) error {
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return err
	}

	var doomed []string
	for key := range all {
		if IsCacheKey(key) || key == LastUpdateKey {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	return c.store.Remove(ctx, doomed)
}

// Stats describes the current cache contents.
type Stats struct {
	Entries    int
	Oldest     time.Time
	Newest     time.Time
	LastUpdate string
}

// Stats summarizes the cached entries currently in the store.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	st.LastUpdate = all[LastUpdateKey]
	for key, value := range all {
		if !strings.HasSuffix(key, timestampSuffix) {
			continue
		}
		millis, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		ts := time.UnixMilli(millis)
		st.Entries++
		if st.Oldest.IsZero() || ts.Before(st.Oldest) {
			st.Oldest = ts
		}
		if ts.After(st.Newest) {
			st.Newest = ts
		}
	}
	return st, nil
}

// IsUnavailable reports whether err is a store availability failure,
// which callers treat as a cache miss rather than a hard error.
func IsUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}
