// Package config loads the gateway configuration. Values are layered:
// built-in defaults, then an optional YAML file, then SENTINEL_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds runtime configuration for the gateway.
type Config struct {
	Listen        string        `mapstructure:"listen"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`

	Log       Log       `mapstructure:"log"`
	Store     Store     `mapstructure:"store"`
	Simulator Simulator `mapstructure:"simulator"`
	MQTT      MQTT      `mapstructure:"mqtt"`
	GPIO      GPIO      `mapstructure:"gpio"`
	Webhook   Webhook   `mapstructure:"webhook"`
	Relay     Relay     `mapstructure:"relay"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
	// File enables a rotated log file alongside stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type Store struct {
	HistoryPerSensor int  `mapstructure:"history_per_sensor"`
	ActivityRetained int  `mapstructure:"activity_retained"`
	SeedSamples      bool `mapstructure:"seed_samples"`
	HubBuffer        int  `mapstructure:"hub_buffer"`
}

type Simulator struct {
	Enable               bool          `mapstructure:"enable"`
	Interval             time.Duration `mapstructure:"interval"`
	RepublishTemperature bool          `mapstructure:"republish_temperature"`
	MotionProbability    float64       `mapstructure:"motion_probability"`
}

// MQTT is disabled while Broker is empty.
type MQTT struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
}

// GPIO is disabled while Pins is empty. Pins maps a sensor id to a line
// offset on Chip.
type GPIO struct {
	Chip string         `mapstructure:"chip"`
	Poll time.Duration  `mapstructure:"poll"`
	Pins map[string]int `mapstructure:"pins"`
}

type Webhook struct {
	Enable         bool          `mapstructure:"enable"`
	UseAncla       bool          `mapstructure:"use_ancla"`
	ArgusURL       string        `mapstructure:"argus_url"`
	Bucket         string        `mapstructure:"bucket"`
	AuthBasic      string        `mapstructure:"auth_basic"`
	CallbackURL    string        `mapstructure:"callback_url"`
	Events         []string      `mapstructure:"events"`
	DeviceMatchers []string      `mapstructure:"device_matchers"`
	Duration       time.Duration `mapstructure:"duration"`
	TTL            int           `mapstructure:"ttl"`
	Retries        int           `mapstructure:"retries"`
}

// Relay is disabled while ScytaleURL is empty.
type Relay struct {
	ScytaleURL  string        `mapstructure:"scytale_url"`
	ScytaleAuth string        `mapstructure:"scytale_auth"`
	Source      string        `mapstructure:"source"`
	Device      string        `mapstructure:"device"`
	DestPrefix  string        `mapstructure:"dest_prefix"`
	Services    []string      `mapstructure:"services"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func Default() Config {
	return Config{
		Listen:        ":5000",
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		AllowedOrigin: "*",
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Store: Store{
			HistoryPerSensor: 500,
			ActivityRetained: 200,
			SeedSamples:      true,
			HubBuffer:        64,
		},
		Simulator: Simulator{
			Enable:               true,
			Interval:             5 * time.Second,
			RepublishTemperature: true,
			MotionProbability:    0.1,
		},
		MQTT: MQTT{
			ClientID:    "sentinel-gateway",
			TopicPrefix: "sentinel/sensors",
			QoS:         1,
		},
		GPIO: GPIO{
			Chip: "gpiochip0",
			Poll: 250 * time.Millisecond,
		},
		Webhook: Webhook{
			UseAncla:       true,
			Bucket:         "hooks",
			Events:         []string{".*"},
			DeviceMatchers: []string{".*"},
			TTL:            86400,
			Retries:        3,
		},
		Relay: Relay{
			Source:     "sentinel/gateway",
			Device:     "sentinel-hub",
			DestPrefix: "mac:",
			Services:   []string{"config"},
			Timeout:    10 * time.Second,
		},
	}
}

// Validate reports settings the gateway cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address required"))
	}
	if c.Simulator.Enable && c.Simulator.Interval <= 0 {
		errs = append(errs, fmt.Errorf("simulator.interval must be positive, got %s", c.Simulator.Interval))
	}
	if p := c.Simulator.MotionProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("simulator.motion_probability must be within [0,1], got %g", p))
	}
	if len(c.GPIO.Pins) > 0 && c.GPIO.Poll <= 0 {
		errs = append(errs, fmt.Errorf("gpio.poll must be positive, got %s", c.GPIO.Poll))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Webhook.Enable && (c.Webhook.ArgusURL == "" || c.Webhook.CallbackURL == "") {
		errs = append(errs, errors.New("webhook.argus_url and webhook.callback_url required when webhook.enable is set"))
	}
	return errors.Join(errs...)
}

// Load parses args (without the program name) and returns the layered
// configuration. A --config flag names an optional YAML file.
func Load(args []string) (Config, error) {
	def := Default()
	v := viper.New()
	setDefaults(v, def)

	fs := pflag.NewFlagSet("sentinel", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML configuration file")
	fs.String("listen", def.Listen, "listen address")
	fs.String("allowed_origin", def.AllowedOrigin, "allowed WebSocket origin (* for any)")
	fs.String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", def.Log.Format, "log encoding (console or json)")
	fs.String("log.file", def.Log.File, "optional rotated log file")
	fs.Bool("store.seed_samples", def.Store.SeedSamples, "load demo readings and activity at startup")
	fs.Bool("simulator.enable", def.Simulator.Enable, "run the background reading simulator")
	fs.Duration("simulator.interval", def.Simulator.Interval, "simulator tick interval")
	fs.String("mqtt.broker", def.MQTT.Broker, "MQTT broker URL (empty disables MQTT)")
	fs.Bool("webhook.enable", def.Webhook.Enable, "register with Argus and accept webhook events")
	fs.String("relay.scytale_url", def.Relay.ScytaleURL, "Scytale endpoint for settings relay (empty disables)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("listen", c.Listen)
	v.SetDefault("read_timeout", c.ReadTimeout)
	v.SetDefault("write_timeout", c.WriteTimeout)
	v.SetDefault("idle_timeout", c.IdleTimeout)
	v.SetDefault("allowed_origin", c.AllowedOrigin)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)

	v.SetDefault("store.history_per_sensor", c.Store.HistoryPerSensor)
	v.SetDefault("store.activity_retained", c.Store.ActivityRetained)
	v.SetDefault("store.seed_samples", c.Store.SeedSamples)
	v.SetDefault("store.hub_buffer", c.Store.HubBuffer)

	v.SetDefault("simulator.enable", c.Simulator.Enable)
	v.SetDefault("simulator.interval", c.Simulator.Interval)
	v.SetDefault("simulator.republish_temperature", c.Simulator.RepublishTemperature)
	v.SetDefault("simulator.motion_probability", c.Simulator.MotionProbability)

	v.SetDefault("mqtt.broker", c.MQTT.Broker)
	v.SetDefault("mqtt.client_id", c.MQTT.ClientID)
	v.SetDefault("mqtt.topic_prefix", c.MQTT.TopicPrefix)
	v.SetDefault("mqtt.username", c.MQTT.Username)
	v.SetDefault("mqtt.password", c.MQTT.Password)
	v.SetDefault("mqtt.qos", c.MQTT.QoS)

	v.SetDefault("gpio.chip", c.GPIO.Chip)
	v.SetDefault("gpio.poll", c.GPIO.Poll)

	v.SetDefault("webhook.enable", c.Webhook.Enable)
	v.SetDefault("webhook.use_ancla", c.Webhook.UseAncla)
	v.SetDefault("webhook.argus_url", c.Webhook.ArgusURL)
	v.SetDefault("webhook.bucket", c.Webhook.Bucket)
	v.SetDefault("webhook.auth_basic", c.Webhook.AuthBasic)
	v.SetDefault("webhook.callback_url", c.Webhook.CallbackURL)
	v.SetDefault("webhook.events", c.Webhook.Events)
	v.SetDefault("webhook.device_matchers", c.Webhook.DeviceMatchers)
	v.SetDefault("webhook.duration", c.Webhook.Duration)
	v.SetDefault("webhook.ttl", c.Webhook.TTL)
	v.SetDefault("webhook.retries", c.Webhook.Retries)

	v.SetDefault("relay.scytale_url", c.Relay.ScytaleURL)
	v.SetDefault("relay.scytale_auth", c.Relay.ScytaleAuth)
	v.SetDefault("relay.source", c.Relay.Source)
	v.SetDefault("relay.device", c.Relay.Device)
	v.SetDefault("relay.dest_prefix", c.Relay.DestPrefix)
	v.SetDefault("relay.services", c.Relay.Services)
	v.SetDefault("relay.timeout", c.Relay.Timeout)
}
