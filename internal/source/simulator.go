package source

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// Simulator stands in for real hardware: on every tick it refreshes the
// temperature, reports a battery level and occasionally a motion event.
type Simulator struct {
	Store    *store.Store
	Log      *zap.Logger
	Interval time.Duration
	// RepublishTemperature re-broadcasts the stored temperature reading
	// unchanged instead of leaving it alone.
	RepublishTemperature bool
	MotionProbability    float64
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.run(ctx, ticker.C)
	return nil
}

// run ticks from tick; ticks are handled one at a time so they never overlap.
func (s *Simulator) run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.tick()
		}
	}
}

func (s *Simulator) tick() {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	random := s.Rand
	if random == nil {
		random = rand.Float64
	}

	if s.RepublishTemperature {
		s.Store.Readings.Republish("temperature")
	}

	battery := telemetry.SensorReading{
		SensorID: "battery",
		Value:    85 + random()*15,
		Unit:     "percent",
		Status:   "good",
	}
	if _, err := s.Store.Readings.Ingest(battery); err != nil {
		log.Warn("simulator battery reading", zap.Error(err))
	}

	if random() >= s.MotionProbability {
		return
	}
	motion := telemetry.SensorReading{SensorID: "motion_pir", Value: 1, Unit: "boolean", Status: "detected"}
	if _, err := s.Store.Readings.Ingest(motion); err != nil {
		log.Warn("simulator motion reading", zap.Error(err))
		return
	}
	if _, err := s.Store.Activity.Append(telemetry.ActivityEntry{
		Category: telemetry.CategoryWarning,
		Message:  "Motion detected in living area",
		IconHint: "fas fa-running",
	}); err != nil {
		log.Warn("simulator motion activity", zap.Error(err))
	}
}
