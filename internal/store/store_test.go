package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind()
	}
	return out
}

// stepClock returns a clock advancing one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(pub events.Publisher) *Store {
	return New(pub, Options{Now: stepClock(epoch), NewID: sequentialIDs()})
}

func TestNewUsesDefaultSettings(t *testing.T) {
	s := newTestStore(nil)
	got := s.Settings.Get()
	want := telemetry.DefaultSettings(got.UpdatedAt)
	assert.Equal(t, want, got)
	assert.True(t, got.Armed)
	assert.Equal(t, 30.0, got.TemperatureThreshold)
	assert.Equal(t, 500.0, got.GasThreshold)
}

func TestSnapshotCombinesStores(t *testing.T) {
	s := newTestStore(nil)
	s.SeedSamples()

	snap := s.Snapshot()
	assert.Len(t, snap.Readings, len(sampleReadings))
	assert.Len(t, snap.Activity, len(sampleActivity))
	assert.Equal(t, "System armed successfully", snap.Activity[0].Message)
	assert.Equal(t, s.Settings.Get(), snap.Settings)
	assert.Equal(t, s.Readings.LatestAll(), snap.Readings)
}

func TestSnapshotCapsActivity(t *testing.T) {
	s := newTestStore(nil)
	for i := 0; i < 15; i++ {
		_, err := s.Activity.Append(telemetry.ActivityEntry{Message: fmt.Sprintf("entry %d", i)})
		require.NoError(t, err)
	}
	snap := s.Snapshot()
	require.Len(t, snap.Activity, SnapshotActivityLimit)
	assert.Equal(t, "entry 14", snap.Activity[0].Message)
}

func TestMonotonicClampsBackwardsClock(t *testing.T) {
	later := epoch.Add(time.Minute)
	assert.Equal(t, later, monotonic(epoch, later))
	assert.Equal(t, later, monotonic(later, epoch))
}
