// Package store keeps the process-wide, in-memory dashboard state: the
// latest reading per sensor with a bounded history, the settings singleton
// and the activity log. Every mutation is published to an events.Publisher.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// Default retention limits.
const (
	DefaultHistoryPerSensor = 500
	DefaultActivityRetained = 200
	DefaultHistoryLimit     = 50
	DefaultActivityLimit    = 20
	SnapshotActivityLimit   = 10
)

// Options tunes retention and injects the clock and id source.
type Options struct {
	HistoryPerSensor int
	ActivityRetained int
	Now              func() time.Time
	NewID            func() string
}

func (o Options) withDefaults() Options {
	if o.HistoryPerSensor <= 0 {
		o.HistoryPerSensor = DefaultHistoryPerSensor
	}
	if o.ActivityRetained <= 0 {
		o.ActivityRetained = DefaultActivityRetained
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Store bundles the three stores. It is created once at startup and passed to
// every component that needs it.
type Store struct {
	Readings *ReadingStore
	Settings *SettingsStore
	Activity *ActivityLog
}

// New builds the three stores publishing to pub.
func New(pub events.Publisher, opts Options) *Store {
	if pub == nil {
		pub = events.Discard
	}
	opts = opts.withDefaults()
	activity := NewActivityLog(pub, opts)
	return &Store{
		Readings: NewReadingStore(pub, opts),
		Settings: NewSettingsStore(pub, activity, opts),
		Activity: activity,
	}
}

// Snapshot is the full state sent to a newly connected viewer.
type Snapshot struct {
	Readings []telemetry.SensorReading `json:"sensors"`
	Settings telemetry.SystemSettings  `json:"settings"`
	Activity []telemetry.ActivityEntry `json:"activities"`
}

// Snapshot captures all latest readings, the settings and the most recent
// activity entries. Each part is read under its own store's lock.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Readings: s.Readings.LatestAll(),
		Settings: s.Settings.Get(),
		Activity: s.Activity.Recent(SnapshotActivityLimit),
	}
}

// monotonic returns now, or last if the clock went backwards.
func monotonic(now, last time.Time) time.Time {
	if now.Before(last) {
		return last
	}
	return now
}
