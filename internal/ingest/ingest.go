// Package ingest translates the sensor-push payload into readings.
//
// A payload is a JSON object with any of the numeric fields temperature, gas
// and battery. Each recognised number becomes one reading with a unit and a
// status derived from fixed thresholds. Non-numeric values are ignored.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// Status thresholds applied by Translate.
const (
	TemperatureHigh = 30.0
	GasHigh         = 500.0
	BatteryLow      = 20.0
)

// ErrNoSensorData is the reason reported when no recognised field is present.
const ErrNoSensorData = "No valid sensor data provided."

// field order is the order readings are produced and stored in.
var fields = []struct {
	key    string
	unit   string
	status func(float64) string
}{
	{"temperature", "celsius", func(v float64) string { return pick(v > TemperatureHigh, "high", "normal") }},
	{"gas", "ppm", func(v float64) string { return pick(v > GasHigh, "high", "low") }},
	{"battery", "percent", func(v float64) string { return pick(v < BatteryLow, "low", "good") }},
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

// Translate maps a decoded payload onto readings. Values may be float64 or
// json.Number.
func Translate(payload map[string]any) ([]telemetry.SensorReading, error) {
	out := make([]telemetry.SensorReading, 0, len(fields))
	for _, f := range fields {
		v, ok := number(payload[f.key])
		if !ok {
			continue
		}
		out = append(out, telemetry.SensorReading{
			SensorID: f.key,
			Value:    v,
			Unit:     f.unit,
			Status:   f.status(v),
		})
	}
	if len(out) == 0 {
		return nil, &telemetry.ValidationError{Reason: ErrNoSensorData}
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Decode parses a raw payload. Anything that is not a JSON object is a
// validation error.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, &telemetry.ValidationError{Field: "body", Reason: fmt.Sprintf("is not a JSON object: %v", err)}
	}
	return payload, nil
}

// Recorder counts accepted readings.
type Recorder interface {
	ReadingIngested(sensorID string)
}

// Ingester stores translated payloads. It is shared by every push input.
type Ingester struct {
	readings *store.ReadingStore
	rec      Recorder
	log      *zap.Logger
}

// New returns an Ingester writing to readings. rec may be nil.
func New(readings *store.ReadingStore, rec Recorder, log *zap.Logger) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{readings: readings, rec: rec, log: log}
}

// Ingest translates payload and stores every resulting reading in order.
func (i *Ingester) Ingest(payload map[string]any) ([]telemetry.SensorReading, error) {
	readings, err := Translate(payload)
	if err != nil {
		return nil, err
	}
	stored := make([]telemetry.SensorReading, 0, len(readings))
	for _, r := range readings {
		s, err := i.readings.Ingest(r)
		if err != nil {
			return stored, fmt.Errorf("ingest %s: %w", r.SensorID, err)
		}
		if i.rec != nil {
			i.rec.ReadingIngested(s.SensorID)
		}
		stored = append(stored, s)
	}
	i.log.Debug("readings ingested", zap.Int("count", len(stored)))
	return stored, nil
}

// IngestRaw decodes and ingests a raw JSON payload.
func (i *Ingester) IngestRaw(raw []byte) ([]telemetry.SensorReading, error) {
	payload, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return i.Ingest(payload)
}
