package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	wrp "github.com/xmidt-org/wrp-go/v3"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/metrics"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// SettingsRelay sends every settings change to a device service as a WRP
// SimpleEvent. Services are tried in order; the first one that accepts the
// event wins, which lets a renamed service fall back to its legacy name.
type SettingsRelay struct {
	Client     WRPDoer
	Source     string
	DeviceID   string
	DestPrefix string // e.g. "mac:" (may be empty)
	Services   []string
	Timeout    time.Duration // per-attempt timeout (default 8s)
	Log        *zap.Logger
	Metrics    *metrics.Metrics
}

var ErrNoServices = errors.New("relay: no services configured")

// Send relays s and returns the service that accepted it.
func (r *SettingsRelay) Send(ctx context.Context, s telemetry.SystemSettings) (string, error) {
	if len(r.Services) == 0 {
		return "", ErrNoServices
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	txID := uuid.NewString()

	var errs []error
	for _, svc := range r.Services {
		dest := fmt.Sprintf("%s%s/%s", r.DestPrefix, r.DeviceID, svc)
		msg := &wrp.Message{
			Type:            wrp.SimpleEventMessageType,
			Source:          r.Source,
			Destination:     dest,
			ServiceName:     svc,
			TransactionUUID: txID,
			ContentType:     "application/json",
			Payload:         payload,
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		_, sendErr := r.Client.Do(actx, msg)
		cancel()
		if sendErr == nil {
			return svc, nil
		}
		errs = append(errs, fmt.Errorf("svc=%s dest=%s: %w", svc, dest, sendErr))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}

// Run forwards settings events from hub until ctx is done. If the hub drops
// the relay for falling behind, it subscribes again.
func (r *SettingsRelay) Run(ctx context.Context, hub *events.Hub) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	for ctx.Err() == nil {
		sub := hub.Subscribe()
		r.drain(ctx, sub, log)
		hub.Unsubscribe(sub)
	}
}

func (r *SettingsRelay) drain(ctx context.Context, sub *events.Subscription, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				log.Warn("relay fell behind; resubscribing")
				return
			}
			se, isSettings := ev.(events.SettingsEvent)
			if !isSettings {
				continue
			}
			svc, err := r.Send(ctx, se.Settings)
			r.Metrics.Relayed(err == nil)
			if err != nil {
				log.Warn("settings relay failed", zap.Error(err))
				continue
			}
			log.Debug("settings relayed", zap.String("service", svc))
		}
	}
}
