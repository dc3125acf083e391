// Command sentinel runs the home-security telemetry gateway: the REST and
// real-time dashboard endpoints, the sensor sources and the Xmidt
// integrations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentinel:", err)
		os.Exit(2)
	}

	fx.New(options(cfg)).Run()
}

// options is the complete application graph for cfg.
func options(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newMetrics,
			newHub,
			newStore,
			newIngester,
			newWSHandler,
			newRouter,
			newServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(
			startServer,
			startSources,
			startRelay,
			registerWebhook,
		),
	)
}
