package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"upnext/internal/calendar"
)

// minimumLead is the lower edge of the notification band. Events
// starting sooner than this are considered already underway.
const minimumLead = 5 * time.Minute

// Records remembers which events have already been notified so a
// repeated check never fires twice for the same event.
type Records struct {
	db *sql.DB
}

// OpenRecords opens (and if necessary initializes) the notified-event
// database at path.
func OpenRecords(path string) (*Records, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open notification records: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notified (
			event_id TEXT PRIMARY KEY,
			starts_at INTEGER NOT NULL,
			notified_at INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize notification records: %w", err)
	}

	return &Records{db: db}, nil
}

// WasNotified reports whether eventID already got a notification.
func (r *Records) WasNotified(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM notified WHERE event_id = ?", eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records that eventID was notified at now.
func (r *Records) Mark(ctx context.Context, eventID string, startsAt, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notified (event_id, starts_at, notified_at) VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET notified_at = excluded.notified_at
	`, eventID, startsAt.UnixMilli(), now.UnixMilli())
	return err
}

// Prune drops records for events that started before cutoff, returning
// how many were removed.
func (r *Records) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM notified WHERE starts_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the records database.
func (r *Records) Close() error {
	return r.db.Close()
}

// Checker decides which upcoming events deserve a notification and
// sends it once per event.
type Checker struct {
	records *Records
	manager *Manager
	lead    time.Duration
}

// NewChecker creates a checker that fires when an event starts more
// than five minutes but no more than lead from now.
func NewChecker(records *Records, manager *Manager, lead time.Duration) *Checker {
	if lead <= minimumLead {
		lead = 2 * minimumLead
	}
	return &Checker{records: records, manager: manager, lead: lead}
}

// Check scans events and notifies for each timed event inside the
// band that has not been notified before. It returns how many
// notifications were sent.
func (c *Checker) Check(ctx context.Context, items []calendar.Event, now time.Time) (int, error) {
	sent := 0
	var lastErr error
	for _, event := range items {
		if event.IsAllDay() {
			continue
		}
		start := event.Start.Time()
		if start.IsZero() {
			continue
		}

		until := start.Sub(now)
		if until <= minimumLead || until > c.lead {
			continue
		}

		done, err := c.records.WasNotified(ctx, event.ID)
		if err != nil {
			lastErr = err
			continue
		}
		if done {
			continue
		}

		minutes := int(until.Round(time.Minute) / time.Minute)
		n := Notification{
			Title:     "Upcoming event",
			Message:   fmt.Sprintf("%s starts in %d minutes", title(event), minutes),
			Timestamp: now,
		}
		if err := c.manager.Send(n); err != nil {
			lastErr = err
			continue
		}
		if err := c.records.Mark(ctx, event.ID, start, now); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	return sent, lastErr
}

func title(e calendar.Event) string {
	if e.Summary != "" {
		return e.Summary
	}
	return "(untitled)"
}
