package viewer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stepherg/sentinel/internal/protocol"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// ActivityCap bounds the activity entries a viewer keeps.
const ActivityCap = 20

// Cache is the viewer's local copy of the dashboard state, kept current by
// applying server frames in arrival order.
type Cache struct {
	mu       sync.RWMutex
	synced   bool
	readings map[string]telemetry.SensorReading
	settings telemetry.SystemSettings
	activity []telemetry.ActivityEntry
}

func NewCache() *Cache {
	return &Cache{readings: map[string]telemetry.SensorReading{}}
}

// Apply folds one server frame into the cache. Client-to-server kinds and
// unknown kinds are reported as errors and leave the cache unchanged.
func (c *Cache) Apply(env protocol.Envelope) error {
	switch env.Kind {
	case protocol.KindSnapshot:
		var s store.Snapshot
		if err := env.Into(&s); err != nil {
			return err
		}
		c.replace(s)
	case protocol.KindReadingUpdate:
		var r telemetry.SensorReading
		if err := env.Into(&r); err != nil {
			return err
		}
		c.mu.Lock()
		c.readings[r.SensorID] = r
		c.mu.Unlock()
	case protocol.KindSettingsUpdate:
		var s telemetry.SystemSettings
		if err := env.Into(&s); err != nil {
			return err
		}
		c.mu.Lock()
		c.settings = s
		c.mu.Unlock()
	case protocol.KindActivityUpdate:
		var e telemetry.ActivityEntry
		if err := env.Into(&e); err != nil {
			return err
		}
		c.mu.Lock()
		c.activity = prepend(c.activity, e)
		c.mu.Unlock()
	case protocol.KindPong, protocol.KindPing:
	default:
		return fmt.Errorf("viewer: unexpected frame %q", env.Kind)
	}
	return nil
}

func (c *Cache) replace(s store.Snapshot) {
	readings := make(map[string]telemetry.SensorReading, len(s.Readings))
	for _, r := range s.Readings {
		readings[r.SensorID] = r
	}
	activity := s.Activity
	if len(activity) > ActivityCap {
		activity = activity[:ActivityCap]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = true
	c.readings = readings
	c.settings = s.Settings
	c.activity = append([]telemetry.ActivityEntry(nil), activity...)
}

func prepend(list []telemetry.ActivityEntry, e telemetry.ActivityEntry) []telemetry.ActivityEntry {
	n := len(list) + 1
	if n > ActivityCap {
		n = ActivityCap
	}
	out := make([]telemetry.ActivityEntry, 0, n)
	out = append(out, e)
	return append(out, list[:n-1]...)
}

// Synced reports whether a snapshot has been applied.
func (c *Cache) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Readings returns the latest reading per sensor ordered by sensor id.
func (c *Cache) Readings() []telemetry.SensorReading {
	c.mu.RLock()
	out := make([]telemetry.SensorReading, 0, len(c.readings))
	for _, r := range c.readings {
		out = append(out, r)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

func (c *Cache) Reading(sensorID string) (telemetry.SensorReading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.readings[sensorID]
	return r, ok
}

func (c *Cache) Settings() telemetry.SystemSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Activity returns the cached entries, newest first.
func (c *Cache) Activity() []telemetry.ActivityEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]telemetry.ActivityEntry(nil), c.activity...)
}
