package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

func TestIngestStampsAndPublishes(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(rec)

	got, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "temperature", Value: 32, Unit: "celsius", Status: "high"})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.ObservedAt.IsZero())

	require.Len(t, rec.events, 1)
	ev, ok := rec.events[0].(events.ReadingEvent)
	require.True(t, ok)
	assert.Equal(t, got, ev.Reading)
}

func TestIngestRejectsMissingFields(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(rec)

	_, err := s.Readings.Ingest(telemetry.SensorReading{Value: 1, Status: "normal"})
	require.Error(t, err)
	assert.True(t, telemetry.IsValidation(err))

	_, err = s.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: 1})
	require.Error(t, err)
	assert.True(t, telemetry.IsValidation(err))

	assert.Empty(t, rec.events)
	assert.Equal(t, 0, s.Readings.Len())
}

func TestIngestAcceptsOutOfRangeValues(t *testing.T) {
	s := newTestStore(nil)
	got, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "battery", Value: -250, Status: "low"})
	require.NoError(t, err)
	assert.Equal(t, -250.0, got.Value)
}

func TestLatestReturnsMaxObservedAt(t *testing.T) {
	s := newTestStore(nil)
	var last telemetry.SensorReading
	for i := 0; i < 5; i++ {
		r, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: float64(100 + i), Status: "low"})
		require.NoError(t, err)
		last = r
	}
	// A back-dated reading must not displace the newest one.
	_, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: 1, Status: "low", ObservedAt: epoch})
	require.NoError(t, err)

	got, ok := s.Readings.Latest("gas")
	require.True(t, ok)
	assert.Equal(t, last, got)

	_, ok = s.Readings.Latest("unknown")
	assert.False(t, ok)
}

func TestLatestTieFavoursMostRecentIngest(t *testing.T) {
	s := newTestStore(nil)
	at := epoch.Add(time.Hour)
	_, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "door_front", Value: 0, Status: "closed", ObservedAt: at})
	require.NoError(t, err)
	second, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "door_front", Value: 1, Status: "open", ObservedAt: at})
	require.NoError(t, err)

	got, _ := s.Readings.Latest("door_front")
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, second.ID, s.Readings.History("door_front", 1)[0].ID)
}

func TestLatestAllOnePerSensor(t *testing.T) {
	s := newTestStore(nil)
	want := map[string]float64{}
	for i, id := range []string{"temperature", "gas", "battery", "gas", "temperature", "gas"} {
		_, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: id, Value: float64(i), Status: "normal"})
		require.NoError(t, err)
		want[id] = float64(i)
	}

	all := s.Readings.LatestAll()
	require.Len(t, all, 3)
	seen := map[string]bool{}
	for _, r := range all {
		assert.False(t, seen[r.SensorID], "duplicate sensor %s", r.SensorID)
		seen[r.SensorID] = true
		assert.Equal(t, want[r.SensorID], r.Value)
	}
	assert.Equal(t, []string{"battery", "gas", "temperature"}, []string{all[0].SensorID, all[1].SensorID, all[2].SensorID})
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	s := New(nil, Options{Now: stepClock(epoch), NewID: sequentialIDs(), HistoryPerSensor: 8})
	for i := 0; i < 12; i++ {
		_, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "battery", Value: float64(i), Status: "good"})
		require.NoError(t, err)
	}

	h := s.Readings.History("battery", 5)
	require.Len(t, h, 5)
	assert.Equal(t, 11.0, h[0].Value)
	for i := 1; i < len(h); i++ {
		assert.False(t, h[i].ObservedAt.After(h[i-1].ObservedAt), "history must be non-increasing")
	}

	assert.Len(t, s.Readings.History("battery", 100), 8, "retention cap")
	assert.Len(t, s.Readings.History("battery", 0), 8, "default limit exceeds retention")
	assert.Empty(t, s.Readings.History("nope", 10))
	assert.NotNil(t, s.Readings.History("nope", 10))
}

func TestHistoryDefaultLimit(t *testing.T) {
	s := newTestStore(nil)
	for i := 0; i < DefaultHistoryLimit+10; i++ {
		_, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "temperature", Value: float64(i), Status: "normal"})
		require.NoError(t, err)
	}
	assert.Len(t, s.Readings.History("temperature", 0), DefaultHistoryLimit)
}

func TestHistoryOrdersBackdatedReadings(t *testing.T) {
	s := newTestStore(nil)
	_, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: 2, Status: "low", ObservedAt: epoch.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = s.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: 1, Status: "low", ObservedAt: epoch.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: 3, Status: "low", ObservedAt: epoch.Add(3 * time.Hour)})
	require.NoError(t, err)

	h := s.Readings.History("gas", 10)
	require.Len(t, h, 3)
	assert.Equal(t, []float64{3, 2, 1}, []float64{h[0].Value, h[1].Value, h[2].Value})
}

func TestRepublishDoesNotAddHistory(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(rec)
	stored, err := s.Readings.Ingest(telemetry.SensorReading{SensorID: "temperature", Value: 22, Status: "normal"})
	require.NoError(t, err)

	got, ok := s.Readings.Republish("temperature")
	require.True(t, ok)
	assert.Equal(t, stored, got)
	assert.Len(t, s.Readings.History("temperature", 10), 1)
	assert.Len(t, rec.events, 2)

	_, ok = s.Readings.Republish("missing")
	assert.False(t, ok)
	assert.Len(t, rec.events, 2)
}
