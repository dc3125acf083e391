package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// ContactReader reports door and window contacts. Read returns, per sensor
// id, whether the contact is open.
type ContactReader interface {
	Read() (map[string]bool, error)
	Close() error
}

// GPIOSource polls contact sensors and stores a reading whenever a contact
// changes state, plus one per contact on start.
type GPIOSource struct {
	Reader ContactReader
	Store  *store.Store
	Poll   time.Duration
	Log    *zap.Logger

	last map[string]bool
}

func (g *GPIOSource) Name() string { return "gpio" }

func (g *GPIOSource) Run(ctx context.Context) error {
	defer g.Reader.Close()
	if g.Log == nil {
		g.Log = zap.NewNop()
	}
	if err := g.poll(); err != nil {
		return fmt.Errorf("initial gpio read: %w", err)
	}
	ticker := time.NewTicker(g.Poll)
	defer ticker.Stop()
	g.run(ctx, ticker.C)
	return nil
}

func (g *GPIOSource) run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if err := g.poll(); err != nil {
				g.Log.Warn("gpio read", zap.Error(err))
			}
		}
	}
}

func (g *GPIOSource) poll() error {
	states, err := g.Reader.Read()
	if err != nil {
		return err
	}
	if g.last == nil {
		g.last = make(map[string]bool, len(states))
	}
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		open := states[id]
		if prev, seen := g.last[id]; seen && prev == open {
			continue
		}
		g.last[id] = open
		if _, err := g.Store.Readings.Ingest(contactReading(id, open)); err != nil {
			g.Log.Warn("gpio reading", zap.String("sensor", id), zap.Error(err))
		}
	}
	return nil
}

func contactReading(id string, open bool) telemetry.SensorReading {
	r := telemetry.SensorReading{SensorID: id, Unit: "boolean", Status: "closed"}
	if open {
		r.Value = 1
		r.Status = "open"
	}
	return r
}
