// Package protocol defines the JSON frames exchanged with dashboard viewers
// over the real-time connection.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// Kind is the wire discriminator of a frame.
type Kind string

const (
	KindSnapshot                 Kind = "full_state_snapshot"
	KindReadingUpdate            Kind = Kind(events.KindReading)
	KindSettingsUpdate           Kind = Kind(events.KindSettings)
	KindActivityUpdate           Kind = Kind(events.KindActivity)
	KindPing                     Kind = "ping"
	KindPong                     Kind = "pong"
	KindSettingsChangeRequest    Kind = "settings_change_request"
	KindReadingSubmissionRequest Kind = "reading_submission_request"
)

// Known reports whether k is part of the protocol.
func (k Kind) Known() bool {
	switch k {
	case KindSnapshot, KindReadingUpdate, KindSettingsUpdate, KindActivityUpdate,
		KindPing, KindPong, KindSettingsChangeRequest, KindReadingSubmissionRequest:
		return true
	}
	return false
}

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrMissingKind = errors.New("frame kind required")
)

// Message is an outbound frame. Payload is encoded when the frame is written.
type Message struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"payload,omitempty"`
}

// Envelope is an inbound frame with its payload left undecoded.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Known reports whether the envelope carries a recognised kind.
func (e Envelope) Known() bool { return e.Kind.Known() }

// Decode parses one frame. Unknown kinds are not an error; callers check
// Known.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Kind == "" {
		return Envelope{}, ErrMissingKind
	}
	return e, nil
}

// Into decodes the payload into v. An absent payload leaves v untouched.
// Unknown fields are rejected.
func (e Envelope) Into(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &telemetry.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return nil
}

// Snapshot is the first frame on every connection.
func Snapshot(s store.Snapshot) Message {
	return Message{Kind: KindSnapshot, Payload: s}
}

func ReadingUpdate(r telemetry.SensorReading) Message {
	return Message{Kind: KindReadingUpdate, Payload: r}
}

func SettingsUpdate(s telemetry.SystemSettings) Message {
	return Message{Kind: KindSettingsUpdate, Payload: s}
}

func ActivityUpdate(e telemetry.ActivityEntry) Message {
	return Message{Kind: KindActivityUpdate, Payload: e}
}

func Ping() Message { return Message{Kind: KindPing} }

func Pong() Message { return Message{Kind: KindPong} }

// SettingsChangeRequest asks the server to apply a partial settings update.
func SettingsChangeRequest(p telemetry.SettingsPatch) Message {
	return Message{Kind: KindSettingsChangeRequest, Payload: p}
}

// ReadingSubmission is one client-described reading, submitted over the
// real-time connection or POST /api/sensors.
type ReadingSubmission struct {
	SensorID string   `json:"sensorId"`
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	Status   string   `json:"status"`
}

// Reading converts the submission into a reading for the store. Value is
// required; the store checks the remaining fields.
func (s ReadingSubmission) Reading() (telemetry.SensorReading, error) {
	if s.Value == nil {
		return telemetry.SensorReading{}, &telemetry.ValidationError{Field: "value", Reason: "is required"}
	}
	return telemetry.SensorReading{SensorID: s.SensorID, Value: *s.Value, Unit: s.Unit, Status: s.Status}, nil
}

func ReadingSubmissionRequest(s ReadingSubmission) Message {
	return Message{Kind: KindReadingSubmissionRequest, Payload: s}
}

// FromEvent maps a hub event onto its incremental update frame.
func FromEvent(e events.Event) Message {
	switch ev := e.(type) {
	case events.ReadingEvent:
		return ReadingUpdate(ev.Reading)
	case events.SettingsEvent:
		return SettingsUpdate(ev.Settings)
	case events.ActivityEvent:
		return ActivityUpdate(ev.Entry)
	}
	// The event set is sealed; this is unreachable.
	panic(fmt.Sprintf("protocol: unhandled event %T", e))
}
