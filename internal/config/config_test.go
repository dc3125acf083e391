package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5*time.Second, cfg.Simulator.Interval)
	assert.True(t, cfg.Simulator.RepublishTemperature)
	assert.True(t, cfg.Store.SeedSamples)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	yaml := `
listen: ":7000"
log:
  level: debug
simulator:
  interval: 2s
  republish_temperature: false
mqtt:
  broker: tcp://broker:1883
gpio:
  pins:
    door_front: 17
    window_living: 27
relay:
  services: [config, sentinel]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SENTINEL_MQTT_TOPIC_PREFIX", "home/sensors")
	t.Setenv("SENTINEL_LOG_LEVEL", "warn")

	cfg, err := Load([]string{"--config", path, "--listen", ":9000"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen, "flag beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, "home/sensors", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, 2*time.Second, cfg.Simulator.Interval)
	assert.False(t, cfg.Simulator.RepublishTemperature)
	assert.Equal(t, map[string]int{"door_front": 17, "window_living": 27}, cfg.GPIO.Pins)
	assert.Equal(t, []string{"config", "sentinel"}, cfg.Relay.Services)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip, "untouched default")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestLoadUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--nope"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Listen = " "
	cfg.Simulator.Interval = 0
	cfg.Simulator.MotionProbability = 2
	cfg.Webhook.Enable = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
	assert.Contains(t, err.Error(), "simulator.interval")
	assert.Contains(t, err.Error(), "motion_probability")
	assert.Contains(t, err.Error(), "webhook.argus_url")
}
