package store

import (
	"sort"
	"sync"
	"time"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// ReadingStore keeps the latest reading per sensor and a bounded,
// newest-first history per sensor.
type ReadingStore struct {
	mu      sync.RWMutex
	pub     events.Publisher
	opts    Options
	latest  map[string]telemetry.SensorReading
	history map[string][]telemetry.SensorReading
	last    time.Time
}

func NewReadingStore(pub events.Publisher, opts Options) *ReadingStore {
	if pub == nil {
		pub = events.Discard
	}
	return &ReadingStore{
		pub:     pub,
		opts:    opts.withDefaults(),
		latest:  make(map[string]telemetry.SensorReading),
		history: make(map[string][]telemetry.SensorReading),
	}
}

// Ingest stores r as the latest reading for its sensor and appends it to the
// sensor's history. ObservedAt is stamped when zero; values are stored as-is.
func (s *ReadingStore) Ingest(r telemetry.SensorReading) (telemetry.SensorReading, error) {
	if err := r.Validate(); err != nil {
		return telemetry.SensorReading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ObservedAt.IsZero() {
		r.ObservedAt = monotonic(s.opts.Now(), s.last)
	}
	if r.ObservedAt.After(s.last) {
		s.last = r.ObservedAt
	}
	if r.ID == "" {
		r.ID = s.opts.NewID()
	}

	// An explicitly back-dated reading goes into history but does not
	// replace a newer latest value.
	if cur, ok := s.latest[r.SensorID]; !ok || !r.ObservedAt.Before(cur.ObservedAt) {
		s.latest[r.SensorID] = r
	}
	s.history[r.SensorID] = insertNewestFirst(s.history[r.SensorID], r, s.opts.HistoryPerSensor)

	// Published under the lock so events leave in mutation order.
	s.pub.Publish(events.ReadingEvent{Reading: r})
	return r, nil
}

// insertNewestFirst keeps h ordered by ObservedAt descending. Equal stamps put
// the newest ingest first.
func insertNewestFirst(h []telemetry.SensorReading, r telemetry.SensorReading, max int) []telemetry.SensorReading {
	i := sort.Search(len(h), func(i int) bool { return !h[i].ObservedAt.After(r.ObservedAt) })
	h = append(h, telemetry.SensorReading{})
	copy(h[i+1:], h[i:])
	h[i] = r
	if len(h) > max {
		h = h[:max]
	}
	return h
}

// Latest returns the most recent reading for sensorID.
func (s *ReadingStore) Latest(sensorID string) (telemetry.SensorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[sensorID]
	return r, ok
}

// LatestAll returns one reading per known sensor, ordered by sensor id.
func (s *ReadingStore) LatestAll() []telemetry.SensorReading {
	s.mu.RLock()
	out := make([]telemetry.SensorReading, 0, len(s.latest))
	for _, r := range s.latest {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// History returns up to limit readings for sensorID, newest first. A
// non-positive limit means DefaultHistoryLimit. Unknown sensors yield an
// empty slice.
func (s *ReadingStore) History(sensorID string, limit int) []telemetry.SensorReading {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[sensorID]
	if limit > len(h) {
		limit = len(h)
	}
	out := make([]telemetry.SensorReading, limit)
	copy(out, h[:limit])
	return out
}

// Republish publishes the stored latest reading for sensorID again without
// creating a new history entry.
func (s *ReadingStore) Republish(sensorID string) (telemetry.SensorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[sensorID]
	if ok {
		s.pub.Publish(events.ReadingEvent{Reading: r})
	}
	return r, ok
}

// Len returns the number of distinct sensors seen.
func (s *ReadingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}
