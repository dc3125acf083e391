// Package events fans store mutations out to every connected subscriber.
package events

import "github.com/stepherg/sentinel/internal/telemetry"

// Kind names an event type. The same names are used for the matching
// protocol message kinds.
type Kind string

const (
	KindReading  Kind = "reading_update"
	KindSettings Kind = "settings_update"
	KindActivity Kind = "activity_update"
)

// Event is a store change notification. The set of implementations is
// closed: ReadingEvent, SettingsEvent and ActivityEvent.
type Event interface {
	Kind() Kind
	sealed()
}

// ReadingEvent is raised by every ingest and by re-publishing a stored
// reading.
type ReadingEvent struct {
	Reading telemetry.SensorReading
}

// SettingsEvent is raised by every successful settings update.
type SettingsEvent struct {
	Settings telemetry.SystemSettings
}

// ActivityEvent is raised by every activity log append.
type ActivityEvent struct {
	Entry telemetry.ActivityEntry
}

func (ReadingEvent) Kind() Kind  { return KindReading }
func (SettingsEvent) Kind() Kind { return KindSettings }
func (ActivityEvent) Kind() Kind { return KindActivity }

func (ReadingEvent) sealed()  {}
func (SettingsEvent) sealed() {}
func (ActivityEvent) sealed() {}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event. Useful for stores that nobody listens to.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
