package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

func ptr[T any](v T) *T { return &v }

func TestUpdateMergesOnlyProvidedFields(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(rec)
	before := s.Settings.Get()

	got, err := s.Settings.Update(telemetry.SettingsPatch{GasThreshold: ptr(600.0)})
	require.NoError(t, err)

	assert.Equal(t, 600.0, got.GasThreshold)
	assert.True(t, got.UpdatedAt.After(before.UpdatedAt))
	before.GasThreshold = 600
	before.UpdatedAt = got.UpdatedAt
	assert.Equal(t, before, got)
	assert.Equal(t, got, s.Settings.Get())

	assert.Equal(t, []events.Kind{events.KindSettings, events.KindActivity}, rec.kinds())
	entry := s.Activity.Recent(1)[0]
	assert.Equal(t, telemetry.CategoryInfo, entry.Category)
	assert.Contains(t, entry.Message, "settings updated")
}

func TestEmptyUpdateOnlyMovesUpdatedAt(t *testing.T) {
	s := newTestStore(nil)
	before := s.Settings.Get()

	got, err := s.Settings.Update(telemetry.SettingsPatch{})
	require.NoError(t, err)

	assert.True(t, got.UpdatedAt.After(before.UpdatedAt))
	got.UpdatedAt = before.UpdatedAt
	assert.Equal(t, before, got)
}

func TestUpdateTogglesBooleans(t *testing.T) {
	s := newTestStore(nil)
	got, err := s.Settings.Update(telemetry.SettingsPatch{Armed: ptr(false), AlertBuzzer: ptr(false)})
	require.NoError(t, err)
	assert.False(t, got.Armed)
	assert.False(t, got.AlertBuzzer)
	assert.True(t, got.AutoLights)
	assert.True(t, got.DailyReminder)
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name  string
		patch telemetry.SettingsPatch
		field string
	}{
		{"temperature low", telemetry.SettingsPatch{TemperatureThreshold: ptr(19.9)}, "temperatureThreshold"},
		{"temperature high", telemetry.SettingsPatch{TemperatureThreshold: ptr(40.1)}, "temperatureThreshold"},
		{"gas low", telemetry.SettingsPatch{GasThreshold: ptr(199.0)}, "gasThreshold"},
		{"gas high", telemetry.SettingsPatch{GasThreshold: ptr(1001.0), Armed: ptr(false)}, "gasThreshold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			s := newTestStore(rec)
			before := s.Settings.Get()

			_, err := s.Settings.Update(tc.patch)
			require.Error(t, err)
			var ve *telemetry.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)

			assert.Equal(t, before, s.Settings.Get())
			assert.Empty(t, rec.events)
			assert.Empty(t, s.Activity.Recent(0))
		})
	}
}

func TestUpdateAcceptsRangeBounds(t *testing.T) {
	s := newTestStore(nil)
	got, err := s.Settings.Update(telemetry.SettingsPatch{TemperatureThreshold: ptr(20.0), GasThreshold: ptr(1000.0)})
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.TemperatureThreshold)
	assert.Equal(t, 1000.0, got.GasThreshold)
}
