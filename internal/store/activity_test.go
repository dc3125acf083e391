package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

func TestAppendAssignsIdentityAndPublishes(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(rec)

	got, err := s.Activity.Append(telemetry.ActivityEntry{
		Category: telemetry.CategoryWarning,
		Message:  "Motion detected in living area",
		IconHint: "fas fa-running",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.OccurredAt.IsZero())

	require.Len(t, rec.events, 1)
	ev := rec.events[0].(events.ActivityEvent)
	assert.Equal(t, got, ev.Entry)
}

func TestAppendDefaultsAndValidation(t *testing.T) {
	s := newTestStore(nil)

	got, err := s.Activity.Append(telemetry.ActivityEntry{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.CategoryInfo, got.Category)

	_, err = s.Activity.Append(telemetry.ActivityEntry{Category: "alert", Message: "x"})
	assert.True(t, telemetry.IsValidation(err))

	_, err = s.Activity.Append(telemetry.ActivityEntry{Category: telemetry.CategoryError})
	assert.True(t, telemetry.IsValidation(err))
}

func TestRecentNewestFirstAndBounded(t *testing.T) {
	s := New(nil, Options{Now: stepClock(epoch), NewID: sequentialIDs(), ActivityRetained: 25})
	for i := 0; i < 30; i++ {
		_, err := s.Activity.Append(telemetry.ActivityEntry{Message: fmt.Sprintf("entry %d", i)})
		require.NoError(t, err)
	}

	def := s.Activity.Recent(0)
	require.Len(t, def, DefaultActivityLimit)
	assert.Equal(t, "entry 29", def[0].Message)
	for i := 1; i < len(def); i++ {
		assert.False(t, def[i].OccurredAt.After(def[i-1].OccurredAt))
	}

	assert.Len(t, s.Activity.Recent(100), 25)
	assert.Equal(t, "entry 5", s.Activity.Recent(100)[24].Message)
	assert.Len(t, s.Activity.Recent(3), 3)
}

func TestRecentEmptyLog(t *testing.T) {
	s := newTestStore(nil)
	got := s.Activity.Recent(5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSeedActivityOrderedByTime(t *testing.T) {
	s := newTestStore(nil)
	s.SeedSamples()
	_, err := s.Activity.Append(telemetry.ActivityEntry{Message: "fresh"})
	require.NoError(t, err)

	got := s.Activity.Recent(0)
	require.Len(t, got, len(sampleActivity)+1)
	assert.Equal(t, "fresh", got[0].Message)
	assert.Equal(t, "Solar power system active", got[len(got)-1].Message)
}
