package viewer

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepherg/sentinel/internal/protocol"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// frame round-trips m through JSON the way it travels on the wire.
func frame(t *testing.T, m protocol.Message) protocol.Envelope {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(i int) telemetry.ActivityEntry {
	return telemetry.ActivityEntry{ID: fmt.Sprint(i), Category: telemetry.CategoryInfo, Message: fmt.Sprintf("entry %d", i), OccurredAt: at}
}

func TestCacheSnapshotReplacesWholesale(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Synced())
	require.NoError(t, c.Apply(frame(t, protocol.ReadingUpdate(telemetry.SensorReading{SensorID: "stale", Status: "normal"}))))

	snap := store.Snapshot{
		Readings: []telemetry.SensorReading{
			{ID: "2", SensorID: "temperature", Value: 22.4, Unit: "celsius", Status: "normal", ObservedAt: at},
			{ID: "1", SensorID: "gas", Value: 120, Unit: "ppm", Status: "low", ObservedAt: at},
		},
		Settings: telemetry.DefaultSettings(at),
		Activity: []telemetry.ActivityEntry{entry(1)},
	}
	require.NoError(t, c.Apply(frame(t, protocol.Snapshot(snap))))

	assert.True(t, c.Synced())
	_, stale := c.Reading("stale")
	assert.False(t, stale)
	got := c.Readings()
	require.Len(t, got, 2)
	assert.Equal(t, "gas", got[0].SensorID)
	assert.Equal(t, "temperature", got[1].SensorID)
	assert.True(t, c.Settings().Armed)
	assert.Len(t, c.Activity(), 1)
}

func TestCacheReadingUpdateReplacesOneSensor(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Apply(frame(t, protocol.Snapshot(store.Snapshot{
		Readings: []telemetry.SensorReading{
			{SensorID: "temperature", Value: 22, Status: "normal"},
			{SensorID: "battery", Value: 90, Status: "good"},
		},
	}))))
	require.NoError(t, c.Apply(frame(t, protocol.ReadingUpdate(telemetry.SensorReading{SensorID: "temperature", Value: 35, Status: "high"}))))

	temp, ok := c.Reading("temperature")
	require.True(t, ok)
	assert.Equal(t, 35.0, temp.Value)
	battery, ok := c.Reading("battery")
	require.True(t, ok)
	assert.Equal(t, 90.0, battery.Value)
}

func TestCacheSettingsUpdateReplaces(t *testing.T) {
	c := NewCache()
	s := telemetry.DefaultSettings(at)
	s.Armed = false
	s.GasThreshold = 800
	require.NoError(t, c.Apply(frame(t, protocol.SettingsUpdate(s))))
	assert.Equal(t, s, c.Settings())
}

func TestCacheActivityPrependsAndCaps(t *testing.T) {
	c := NewCache()
	for i := 0; i < ActivityCap+5; i++ {
		require.NoError(t, c.Apply(frame(t, protocol.ActivityUpdate(entry(i)))))
	}
	got := c.Activity()
	require.Len(t, got, ActivityCap)
	assert.Equal(t, fmt.Sprint(ActivityCap+4), got[0].ID)
	assert.Equal(t, "5", got[ActivityCap-1].ID)
}

func TestCacheIgnoresPongAndRejectsRequests(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Apply(frame(t, protocol.Pong())))
	assert.False(t, c.Synced())

	err := c.Apply(frame(t, protocol.SettingsChangeRequest(telemetry.SettingsPatch{})))
	assert.Error(t, err)
	assert.Error(t, c.Apply(protocol.Envelope{Kind: "bogus"}))
	assert.Empty(t, c.Readings())
}

func TestCacheRejectsMalformedPayload(t *testing.T) {
	c := NewCache()
	env := protocol.Envelope{Kind: protocol.KindReadingUpdate, Payload: json.RawMessage(`{"sensorId": 7}`)}
	err := c.Apply(env)
	require.Error(t, err)
	assert.True(t, telemetry.IsValidation(err))
}
