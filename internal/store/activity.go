package store

import (
	"sync"
	"time"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// ActivityLog is a bounded, newest-first list of activity entries.
type ActivityLog struct {
	mu      sync.RWMutex
	pub     events.Publisher
	opts    Options
	entries []telemetry.ActivityEntry
	last    time.Time
}

func NewActivityLog(pub events.Publisher, opts Options) *ActivityLog {
	if pub == nil {
		pub = events.Discard
	}
	return &ActivityLog{pub: pub, opts: opts.withDefaults()}
}

// Append assigns the id and timestamp, stores e at the head and truncates the
// log to its retention count. An empty category means info.
func (l *ActivityLog) Append(e telemetry.ActivityEntry) (telemetry.ActivityEntry, error) {
	if e.Category == "" {
		e.Category = telemetry.CategoryInfo
	}
	if !e.Category.Valid() {
		return telemetry.ActivityEntry{}, &telemetry.ValidationError{
			Field:  "category",
			Reason: "must be one of info, warning, error",
		}
	}
	if e.Message == "" {
		return telemetry.ActivityEntry{}, &telemetry.ValidationError{Field: "message", Reason: "is required"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = l.opts.NewID()
	e.OccurredAt = monotonic(l.opts.Now(), l.last)
	l.last = e.OccurredAt

	l.entries = append(l.entries, telemetry.ActivityEntry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = e
	if len(l.entries) > l.opts.ActivityRetained {
		l.entries = l.entries[:l.opts.ActivityRetained]
	}

	l.pub.Publish(events.ActivityEvent{Entry: e})
	return e, nil
}

// backfill inserts e keeping newest-first order by OccurredAt without
// publishing. Used for seeding.
func (l *ActivityLog) backfill(e telemetry.ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.ID == "" {
		e.ID = l.opts.NewID()
	}
	i := 0
	for i < len(l.entries) && l.entries[i].OccurredAt.After(e.OccurredAt) {
		i++
	}
	l.entries = append(l.entries, telemetry.ActivityEntry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
	if len(l.entries) > l.opts.ActivityRetained {
		l.entries = l.entries[:l.opts.ActivityRetained]
	}
	if e.OccurredAt.After(l.last) {
		l.last = e.OccurredAt
	}
}

// Recent returns up to limit entries, newest first. A non-positive limit
// means DefaultActivityLimit.
func (l *ActivityLog) Recent(limit int) []telemetry.ActivityEntry {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]telemetry.ActivityEntry, limit)
	copy(out, l.entries[:limit])
	return out
}
