package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/ingest"
)

// MessageHandler receives one MQTT message.
type MessageHandler func(topic string, payload []byte)

// Subscriber is the part of an MQTT client the source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Close() error
}

// DefaultConnectRetry paces broker connection attempts.
const DefaultConnectRetry = 5 * time.Second

// MQTTSource ingests push payloads published under <TopicPrefix>/<device>.
// Each payload uses the same JSON document as POST /api/sensor.
//
// Client is used as is when set. Otherwise Connect is called until it
// succeeds or the context ends, paced by Retry.
type MQTTSource struct {
	Client      Subscriber
	Connect     func() (Subscriber, error)
	Retry       backoff.BackOff
	Ingester    *ingest.Ingester
	TopicPrefix string
	QoS         byte
	Log         *zap.Logger
}

func (m *MQTTSource) Name() string { return "mqtt" }

func (m *MQTTSource) Topic() string {
	return strings.TrimRight(m.TopicPrefix, "/") + "/+"
}

func (m *MQTTSource) Run(ctx context.Context) error {
	if m.Log == nil {
		m.Log = zap.NewNop()
	}
	if m.Client == nil {
		client, err := m.connect(ctx)
		if err != nil {
			return err
		}
		m.Client = client
	}
	topic := m.Topic()
	if err := m.Client.Subscribe(topic, m.QoS, m.handle); err != nil {
		_ = m.Client.Close()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	m.Log.Info("mqtt source subscribed", zap.String("topic", topic))
	<-ctx.Done()
	return m.Client.Close()
}

var errNoConnect = errors.New("mqtt source: no client and no Connect func")

func (m *MQTTSource) connect(ctx context.Context) (Subscriber, error) {
	if m.Connect == nil {
		return nil, errNoConnect
	}
	b := m.Retry
	if b == nil {
		b = backoff.NewConstantBackOff(DefaultConnectRetry)
	}
	var client Subscriber
	op := func() error {
		c, err := m.Connect()
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		m.Log.Warn("mqtt connect failed", zap.Error(err), zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

func (m *MQTTSource) handle(topic string, payload []byte) {
	device := path.Base(topic)
	readings, err := m.Ingester.IngestRaw(payload)
	if err != nil {
		m.Log.Warn("mqtt payload rejected", zap.String("device", device), zap.Error(err))
		return
	}
	m.Log.Debug("mqtt readings", zap.String("device", device), zap.Int("count", len(readings)))
}
