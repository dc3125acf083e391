// Package telemetry holds the entities exchanged between the stores, the
// broadcast hub and the wire protocol.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// SensorReading is one observation reported for a sensor.
type SensorReading struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensorId"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Status     string    `json:"status"`
	ObservedAt time.Time `json:"observedAt"`
}

// Validate checks the fields the store cannot default.
func (r SensorReading) Validate() error {
	if r.SensorID == "" {
		return &ValidationError{Field: "sensorId", Reason: "is required"}
	}
	if r.Status == "" {
		return &ValidationError{Field: "status", Reason: "is required"}
	}
	return nil
}

// Threshold ranges accepted by SettingsPatch.
const (
	MinTemperatureThreshold = 20.0
	MaxTemperatureThreshold = 40.0
	MinGasThreshold         = 200.0
	MaxGasThreshold         = 1000.0
)

// SystemSettings is the singleton arm/automation record.
type SystemSettings struct {
	Armed                bool      `json:"armed"`
	AutoLights           bool      `json:"autoLights"`
	DailyReminder        bool      `json:"dailyReminder"`
	AlertBuzzer          bool      `json:"alertBuzzer"`
	TemperatureThreshold float64   `json:"temperatureThreshold"`
	GasThreshold         float64   `json:"gasThreshold"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// DefaultSettings returns the record every process starts with.
func DefaultSettings(now time.Time) SystemSettings {
	return SystemSettings{
		Armed:                true,
		AutoLights:           true,
		DailyReminder:        true,
		AlertBuzzer:          true,
		TemperatureThreshold: 30,
		GasThreshold:         500,
		UpdatedAt:            now,
	}
}

// SettingsPatch carries a partial settings update. Nil fields are left
// untouched by Apply.
type SettingsPatch struct {
	Armed                *bool    `json:"armed,omitempty"`
	AutoLights           *bool    `json:"autoLights,omitempty"`
	DailyReminder        *bool    `json:"dailyReminder,omitempty"`
	AlertBuzzer          *bool    `json:"alertBuzzer,omitempty"`
	TemperatureThreshold *float64 `json:"temperatureThreshold,omitempty"`
	GasThreshold         *float64 `json:"gasThreshold,omitempty"`
}

// Validate reports the first provided field that is out of range.
func (p SettingsPatch) Validate() error {
	if v := p.TemperatureThreshold; v != nil && (*v < MinTemperatureThreshold || *v > MaxTemperatureThreshold) {
		return &ValidationError{
			Field:  "temperatureThreshold",
			Reason: fmt.Sprintf("must be between %g and %g", MinTemperatureThreshold, MaxTemperatureThreshold),
		}
	}
	if v := p.GasThreshold; v != nil && (*v < MinGasThreshold || *v > MaxGasThreshold) {
		return &ValidationError{
			Field:  "gasThreshold",
			Reason: fmt.Sprintf("must be between %g and %g", MinGasThreshold, MaxGasThreshold),
		}
	}
	return nil
}

// Apply merges the provided fields into s. UpdatedAt is not touched.
func (p SettingsPatch) Apply(s SystemSettings) SystemSettings {
	if p.Armed != nil {
		s.Armed = *p.Armed
	}
	if p.AutoLights != nil {
		s.AutoLights = *p.AutoLights
	}
	if p.DailyReminder != nil {
		s.DailyReminder = *p.DailyReminder
	}
	if p.AlertBuzzer != nil {
		s.AlertBuzzer = *p.AlertBuzzer
	}
	if p.TemperatureThreshold != nil {
		s.TemperatureThreshold = *p.TemperatureThreshold
	}
	if p.GasThreshold != nil {
		s.GasThreshold = *p.GasThreshold
	}
	return s
}

// Category classifies an activity entry.
type Category string

const (
	CategoryInfo    Category = "info"
	CategoryWarning Category = "warning"
	CategoryError   Category = "error"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInfo, CategoryWarning, CategoryError:
		return true
	}
	return false
}

// ActivityEntry is one human readable line of the activity log.
type ActivityEntry struct {
	ID         string    `json:"id"`
	Category   Category  `json:"category"`
	Message    string    `json:"message"`
	IconHint   string    `json:"iconHint"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ValidationError reports malformed or out-of-schema input. It is always a
// client error and is never broadcast.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
