package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"upnext/internal/metrics"
	"upnext/internal/timerange"
)

const (
	// DefaultBaseURL is the Google Calendar API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

	// DefaultRevokeURL revokes an OAuth token.
	DefaultRevokeURL = "https://accounts.google.com/o/oauth2/revoke"

	maxAttempts    = 3
	maxBackoff     = 10 * time.Second
	maxResults     = 50
	requestTimeout = 30 * time.Second
)

var (
	// ErrUnauthorized means the token was rejected. Callers refresh the
	// token and retry once; the client itself never retries a 401.
	ErrUnauthorized = errors.New("calendar: unauthorized")

	// ErrMalformed means the API responded 200 with a body that does not
	// decode as an event list.
	ErrMalformed = errors.New("calendar: malformed response")
)

// StatusError is a non-retryable or retries-exhausted HTTP failure.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calendar: unexpected status %d", e.Status)
}

// Client calls the Calendar API with bounded retries. Transient
// failures back off exponentially, 429 honors Retry-After, and 401
// aborts immediately.
type Client struct {
	httpClient *http.Client
	baseURL    string
	revokeURL  string
	counters   *metrics.Counters

	// wait blocks for d or until ctx is done. Tests replace it to record
	// delays instead of sleeping.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates an API client recording attempts on counters.
func NewClient(counters *metrics.Counters) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    DefaultBaseURL,
		revokeURL:  DefaultRevokeURL,
		counters:   counters,
		wait:       sleepCtx,
	}
}

// SetBaseURL overrides the API endpoint (used by tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetRevokeURL overrides the revocation endpoint (used by tests).
func (c *Client) SetRevokeURL(u string) {
	c.revokeURL = u
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchEvents returns the primary calendar's events inside window,
// expanded to single instances and ordered by start time.
func (c *Client) FetchEvents(ctx context.Context, token string, window timerange.Window) (*EventList, error) {
	query := url.Values{}
	query.Set("timeMin", window.Start.Format(time.RFC3339))
	query.Set("timeMax", window.End.Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")
	query.Set("maxResults", strconv.Itoa(maxResults))

	endpoint := c.baseURL + "/calendars/primary/events?" + query.Encode()

	var (
		lastErr     error
		delay       time.Duration
		backoffStep int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		list, retryAfter, err := c.fetchOnce(ctx, endpoint, token, attempt)
		if err == nil {
			return list, nil
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err

		// A rate limit supplies its own delay and leaves the backoff
		// schedule where it was; everything else advances it.
		if retryAfter > 0 {
			delay = retryAfter
		} else {
			backoffStep++
			delay = backoffDelay(backoffStep)
		}
	}
	return nil, lastErr
}

// fetchOnce performs one HTTP attempt. retryAfter is non-zero only for
// a 429 response.
func (c *Client) fetchOnce(ctx context.Context, endpoint, token string, attempt int) (*EventList, time.Duration, error) {
	c.counters.RecordAPICall()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		var list EventList
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &list, 0, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, 0, ErrUnauthorized

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryAfterDelay(resp, attempt), &StatusError{Status: resp.StatusCode}

	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, 0, &StatusError{Status: resp.StatusCode}
	}
}

// backoffDelay returns the delay after the nth generic failure: 1s
// doubling per step, capped at maxBackoff.
func backoffDelay(n int) time.Duration {
	d := time.Second << (n - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// retryAfterDelay reads the Retry-After header of a 429, falling back
// to 2^attempt seconds when absent or unparseable.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<attempt) * time.Second
}

// Revoke invalidates token with the OAuth provider. A failure is
// reported but the caller proceeds with local logout regardless.
func (c *Client) Revoke(ctx context.Context, token string) error {
	endpoint := c.revokeURL + "?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}
