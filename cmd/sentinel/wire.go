package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/api"
	"github.com/stepherg/sentinel/internal/config"
	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/ingest"
	"github.com/stepherg/sentinel/internal/logging"
	"github.com/stepherg/sentinel/internal/metrics"
	"github.com/stepherg/sentinel/internal/relay"
	"github.com/stepherg/sentinel/internal/source"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/webhook"
	"github.com/stepherg/sentinel/internal/ws"
)

func newLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	log, flush, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		flush()
		return nil
	}})
	return log, nil
}

func newMetrics() *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg)
}

func newHub(cfg config.Config, m *metrics.Metrics) *events.Hub {
	return events.NewHub(events.WithBuffer(cfg.Store.HubBuffer), events.WithObserver(m))
}

func newStore(cfg config.Config, hub *events.Hub, log *zap.Logger) *store.Store {
	st := store.New(hub, store.Options{
		HistoryPerSensor: cfg.Store.HistoryPerSensor,
		ActivityRetained: cfg.Store.ActivityRetained,
	})
	if cfg.Store.SeedSamples {
		st.SeedSamples()
		log.Info("sample data loaded", zap.Int("readings", st.Readings.Len()))
	}
	return st
}

func newIngester(st *store.Store, m *metrics.Metrics, log *zap.Logger) *ingest.Ingester {
	return ingest.New(st.Readings, m, log.Named("ingest"))
}

func newWSHandler(cfg config.Config, st *store.Store, hub *events.Hub, m *metrics.Metrics, log *zap.Logger) *ws.Handler {
	return &ws.Handler{
		Upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      ws.CheckOrigin(cfg.AllowedOrigin),
		},
		Store:   st,
		Hub:     hub,
		Log:     log.Named("ws"),
		Metrics: m,
	}
}

func newRouter(cfg config.Config, st *store.Store, in *ingest.Ingester, hub *events.Hub, m *metrics.Metrics, wsh *ws.Handler, log *zap.Logger) http.Handler {
	opts := api.Options{
		Store:         st,
		Ingester:      in,
		Hub:           hub,
		Metrics:       m,
		Log:           log.Named("http"),
		AllowedOrigin: cfg.AllowedOrigin,
		WS:            wsh,
	}
	if cfg.Webhook.Enable {
		opts.Webhook = &webhook.Handler{Ingester: in, Log: log.Named("webhook")}
	}
	return api.NewRouter(opts)
}

func newServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Listen,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func startServer(lc fx.Lifecycle, srv *http.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			log.Info("sentinel gateway listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

// background runs fn from OnStart until OnStop, which cancels it and waits
// for it to return.
func background(lc fx.Lifecycle, log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info("starting", zap.String("component", name))
				if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("component stopped", zap.String("component", name), zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
}

func startSources(lc fx.Lifecycle, cfg config.Config, st *store.Store, in *ingest.Ingester, log *zap.Logger) {
	if cfg.Simulator.Enable {
		sim := &source.Simulator{
			Store:                st,
			Log:                  log.Named("simulator"),
			Interval:             cfg.Simulator.Interval,
			RepublishTemperature: cfg.Simulator.RepublishTemperature,
			MotionProbability:    cfg.Simulator.MotionProbability,
		}
		background(lc, log, sim.Name(), sim.Run)
	}

	if cfg.MQTT.Broker != "" {
		mlog := log.Named("mqtt").With(zap.String("broker", cfg.MQTT.Broker))
		opts := source.PahoOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}
		src := &source.MQTTSource{
			Connect: func() (source.Subscriber, error) {
				sub, err := source.NewPahoSubscriber(opts, mlog)
				if err != nil {
					return nil, err
				}
				return sub, nil
			},
			Ingester:    in,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Log:         mlog,
		}
		background(lc, log, src.Name(), src.Run)
	}

	if len(cfg.GPIO.Pins) > 0 {
		background(lc, log, "gpio", func(ctx context.Context) error {
			reader, err := source.NewChipReader(cfg.GPIO.Chip, cfg.GPIO.Pins)
			if err != nil {
				return err
			}
			src := &source.GPIOSource{Reader: reader, Store: st, Poll: cfg.GPIO.Poll, Log: log.Named("gpio")}
			return src.Run(ctx)
		})
	}
}

func startRelay(lc fx.Lifecycle, cfg config.Config, hub *events.Hub, m *metrics.Metrics, log *zap.Logger) {
	rc := cfg.Relay
	if rc.ScytaleURL == "" {
		return
	}
	r := &relay.SettingsRelay{
		Client:     &relay.WRPClient{URL: rc.ScytaleURL, Authorization: rc.ScytaleAuth},
		Source:     rc.Source,
		DeviceID:   rc.Device,
		DestPrefix: rc.DestPrefix,
		Services:   rc.Services,
		Timeout:    rc.Timeout,
		Log:        log.Named("relay").With(zap.String("scytale", rc.ScytaleURL)),
		Metrics:    m,
	}
	background(lc, log, "relay", func(ctx context.Context) error {
		r.Run(ctx, hub)
		return nil
	})
}

func registerWebhook(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) {
	wc := cfg.Webhook
	if !wc.Enable {
		return
	}
	reg := webhook.Config{
		Enable:         true,
		ArgusURL:       wc.ArgusURL,
		Bucket:         wc.Bucket,
		AuthBasic:      wc.AuthBasic,
		CallbackURL:    wc.CallbackURL,
		Events:         wc.Events,
		DeviceMatchers: wc.DeviceMatchers,
		Duration:       wc.Duration,
		TTL:            wc.TTL,
		Retries:        wc.Retries,
	}
	wlog := log.Named("webhook")
	background(lc, log, "webhook-registration", func(ctx context.Context) error {
		return reg.RegisterWithFallback(ctx, wlog, wc.UseAncla)
	})
}
