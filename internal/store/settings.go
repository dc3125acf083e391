package store

import (
	"sync"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// Activity recorded after every settings change.
const (
	settingsUpdatedMessage = "System settings updated"
	settingsUpdatedIcon    = "fas fa-cog"
)

// SettingsStore holds the settings singleton.
type SettingsStore struct {
	mu       sync.RWMutex
	pub      events.Publisher
	activity *ActivityLog
	opts     Options
	current  telemetry.SystemSettings
}

// NewSettingsStore starts with telemetry.DefaultSettings. activity may be nil,
// in which case settings changes are not logged.
func NewSettingsStore(pub events.Publisher, activity *ActivityLog, opts Options) *SettingsStore {
	if pub == nil {
		pub = events.Discard
	}
	opts = opts.withDefaults()
	return &SettingsStore{
		pub:      pub,
		activity: activity,
		opts:     opts,
		current:  telemetry.DefaultSettings(opts.Now()),
	}
}

// Get returns the current settings.
func (s *SettingsStore) Get() telemetry.SystemSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges the provided fields of p, stamps UpdatedAt and returns the
// full record. It then records an info activity entry; the two steps are not
// atomic with respect to readers.
func (s *SettingsStore) Update(p telemetry.SettingsPatch) (telemetry.SystemSettings, error) {
	if err := p.Validate(); err != nil {
		return telemetry.SystemSettings{}, err
	}

	s.mu.Lock()
	next := p.Apply(s.current)
	next.UpdatedAt = monotonic(s.opts.Now(), s.current.UpdatedAt)
	s.current = next
	s.pub.Publish(events.SettingsEvent{Settings: next})
	s.mu.Unlock()

	if s.activity != nil {
		// Cannot fail: category and message are fixed.
		_, _ = s.activity.Append(telemetry.ActivityEntry{
			Category: telemetry.CategoryInfo,
			Message:  settingsUpdatedMessage,
			IconHint: settingsUpdatedIcon,
		})
	}
	return next, nil
}
