package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wrp "github.com/xmidt-org/wrp-go/v3"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/metrics"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// fakeWRPClient fails every destination listed in fail.
type fakeWRPClient struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []*wrp.Message
}

func (f *fakeWRPClient) Do(ctx context.Context, m *wrp.Message) (*wrp.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	if f.fail[m.ServiceName] {
		return nil, errors.New("network unreachable")
	}
	return nil, nil
}

func (f *fakeWRPClient) messages() []*wrp.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wrp.Message(nil), f.sent...)
}

func TestSendFallsBackToNextService(t *testing.T) {
	f := &fakeWRPClient{fail: map[string]bool{"sentinel": true}}
	r := &SettingsRelay{Client: f, Source: "sentinel/gateway", DeviceID: "112233445566", DestPrefix: "mac:", Services: []string{"sentinel", "config"}}

	settings := telemetry.DefaultSettings(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc, err := r.Send(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, "config", svc)

	sent := f.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "mac:112233445566/sentinel", sent[0].Destination)
	assert.Equal(t, "mac:112233445566/config", sent[1].Destination)
	assert.Equal(t, wrp.SimpleEventMessageType, sent[1].Type)
	assert.Equal(t, sent[0].TransactionUUID, sent[1].TransactionUUID)

	var got telemetry.SystemSettings
	require.NoError(t, json.Unmarshal(sent[1].Payload, &got))
	assert.Equal(t, settings.GasThreshold, got.GasThreshold)
}

func TestSendAllServicesFail(t *testing.T) {
	f := &fakeWRPClient{fail: map[string]bool{"a": true, "b": true}}
	r := &SettingsRelay{Client: f, DeviceID: "dev1", Services: []string{"a", "b"}}
	_, err := r.Send(context.Background(), telemetry.SystemSettings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svc=a")
	assert.Contains(t, err.Error(), "svc=b")

	_, err = (&SettingsRelay{Client: f}).Send(context.Background(), telemetry.SystemSettings{})
	assert.ErrorIs(t, err, ErrNoServices)
}

func TestRunRelaysSettingsEventsOnly(t *testing.T) {
	hub := events.NewHub()
	st := store.New(hub, store.Options{})
	f := &fakeWRPClient{}
	m := metrics.New(prometheus.NewRegistry())
	r := &SettingsRelay{Client: f, DeviceID: "dev1", Services: []string{"config"}, Metrics: m}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, hub)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	_, err := st.Readings.Ingest(telemetry.SensorReading{SensorID: "gas", Value: 100, Status: "low"})
	require.NoError(t, err)
	armed := false
	_, err = st.Settings.Update(telemetry.SettingsPatch{Armed: &armed})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.messages()) == 1 }, time.Second, 5*time.Millisecond)
	var got telemetry.SystemSettings
	require.NoError(t, json.Unmarshal(f.messages()[0].Payload, &got))
	assert.False(t, got.Armed)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Equal(t, 0, hub.Len())
}
