// Package events decides, per view, whether to serve cached calendar
// data or refetch from the API, writing refreshed payloads back to the
// cache.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"upnext/internal/cache"
	"upnext/internal/calendar"
	"upnext/internal/identity"
	"upnext/internal/logging"
	"upnext/internal/metrics"
	"upnext/internal/timerange"
)

const (
	// FreshTTL is how long a cached view payload is served without a
	// network call.
	FreshTTL = 5 * time.Minute

	// MaxCacheAge is the eviction bound: entries older than this are
	// removed by cleanup. Deliberately much larger than FreshTTL so
	// stale-but-present data can still be shown while offline.
	MaxCacheAge = 24 * time.Hour
)

// Fetcher fetches events for a window. *calendar.Client satisfies it.
type Fetcher interface {
	FetchEvents(ctx context.Context, token string, window timerange.Window) (*calendar.EventList, error)
}

// Options modify a GetEvents call.
type Options struct {
	// ForceRefresh bypasses the freshness check and always fetches.
	ForceRefresh bool
}

// Service is the cache-and-refresh policy.
type Service struct {
	cache    *cache.Cache
	fetcher  Fetcher
	provider identity.Provider
	counters *metrics.Counters
	log      *logging.Logger

	// now is replaceable by tests.
	now func() time.Time
}

// NewService wires the policy over its collaborators.
func NewService(c *cache.Cache, f Fetcher, p identity.Provider, m *metrics.Counters, log *logging.Logger) *Service {
	return &Service{
		cache:    c,
		fetcher:  f,
		provider: p,
		counters: m,
		log:      log,
		now:      time.Now,
	}
}

// SetNow overrides the clock (used by tests).
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// GetEvents returns the events for view, from cache when fresh, from
// the API otherwise. A store failure is treated as a cache miss. A 401
// triggers exactly one token re-acquisition and refetch.
func (s *Service) GetEvents(ctx context.Context, view timerange.View, opts Options) (*calendar.EventList, error) {
	now := s.now()

	if !opts.ForceRefresh {
		if list := s.fromCache(ctx, view, now); list != nil {
			s.counters.RecordCacheHit()
			return list, nil
		}
		s.counters.RecordCacheMiss()
	}

	list, err := s.fetch(ctx, view, now)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return list, nil
	}
	if err := s.cache.Write(ctx, view, payload, s.now()); err != nil {
		// Fail open: a dead store never blocks showing fresh data.
		s.log.Warn("cache write for %s failed: %v", view, err)
	}
	return list, nil
}

// fromCache returns the cached list when present, fresh, and decodable.
func (s *Service) fromCache(ctx context.Context, view timerange.View, now time.Time) *calendar.EventList {
	entry, err := s.cache.Read(ctx, view)
	if err != nil {
		s.log.Debug("cache read for %s failed, treating as miss: %v", view, err)
		return nil
	}
	if entry == nil || !entry.Fresh(FreshTTL, now) {
		return nil
	}

	var list calendar.EventList
	if err := json.Unmarshal(entry.Payload, &list); err != nil {
		s.log.Debug("cached payload for %s undecodable, treating as miss: %v", view, err)
		return nil
	}
	return &list
}

// fetch performs the API call with the single unauthorized retry.
func (s *Service) fetch(ctx context.Context, view timerange.View, now time.Time) (*calendar.EventList, error) {
	window := timerange.RangeFor(view, now)

	token, _, err := s.provider.Token()
	if err != nil {
		return nil, err
	}

	list, err := s.fetcher.FetchEvents(ctx, token, window)
	if !errors.Is(err, calendar.ErrUnauthorized) {
		return list, err
	}

	// One shot at a new token, then surface.
	s.provider.Invalidate()
	token, _, err = s.provider.Token()
	if err != nil {
		return nil, calendar.ErrUnauthorized
	}
	return s.fetcher.FetchEvents(ctx, token, window)
}
