package store

import (
	"time"

	"github.com/stepherg/sentinel/internal/telemetry"
)

var sampleReadings = []telemetry.SensorReading{
	{SensorID: "motion_laser", Value: 85, Unit: "percent", Status: "active"},
	{SensorID: "motion_pir", Value: 0, Unit: "boolean", Status: "inactive"},
	{SensorID: "temperature", Value: 22, Unit: "celsius", Status: "normal"},
	{SensorID: "gas", Value: 120, Unit: "ppm", Status: "low"},
	{SensorID: "door_front", Value: 0, Unit: "boolean", Status: "closed"},
	{SensorID: "door_back", Value: 0, Unit: "boolean", Status: "closed"},
	{SensorID: "window_living", Value: 0, Unit: "boolean", Status: "closed"},
	{SensorID: "window_bedroom", Value: 0, Unit: "boolean", Status: "closed"},
	{SensorID: "battery", Value: 87, Unit: "percent", Status: "good"},
	{SensorID: "solar_voltage", Value: 5.2, Unit: "volts", Status: "active"},
	{SensorID: "power_consumption", Value: 340, Unit: "mA", Status: "normal"},
}

var sampleActivity = []telemetry.ActivityEntry{
	{Category: telemetry.CategoryInfo, Message: "System armed successfully", IconHint: "fas fa-check-circle"},
	{Category: telemetry.CategoryWarning, Message: "Motion detected - snapshot taken", IconHint: "fas fa-camera"},
	{Category: telemetry.CategoryInfo, Message: "Temperature normal (22°C)", IconHint: "fas fa-thermometer-half"},
	{Category: telemetry.CategoryInfo, Message: "All entry points secured", IconHint: "fas fa-shield-alt"},
	{Category: telemetry.CategoryInfo, Message: "Solar power system active", IconHint: "fas fa-solar-panel"},
}

// SeedSamples loads a demo household: one reading per known sensor and a
// few activity entries spread over the past hours.
func (s *Store) SeedSamples() {
	for _, r := range sampleReadings {
		// Sample readings are well-formed.
		_, _ = s.Readings.Ingest(r)
	}
	now := s.Activity.opts.Now()
	for i, e := range sampleActivity {
		e.OccurredAt = now.Add(-time.Duration(i) * time.Hour)
		s.Activity.backfill(e)
	}
}
