// Command sentinel-watch follows a sentinel gateway from the terminal. It
// keeps a local copy of the dashboard state, prints every change and can
// arm or disarm the system.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/config"
	"github.com/stepherg/sentinel/internal/logging"
	"github.com/stepherg/sentinel/internal/protocol"
	"github.com/stepherg/sentinel/internal/telemetry"
	"github.com/stepherg/sentinel/internal/viewer"
)

func main() {
	fs := pflag.NewFlagSet("sentinel-watch", pflag.ContinueOnError)
	url := fs.String("url", "ws://localhost:5000/ws", "gateway real-time endpoint")
	level := fs.String("log-level", "warn", "log level")
	arm := fs.String("arm", "", "set armed state once connected (true or false)")
	ping := fs.Duration("ping", viewer.DefaultPingInterval, "liveness probe interval")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	log, flush, err := logging.New(config.Log{Level: *level, Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentinel-watch:", err)
		os.Exit(2)
	}
	defer flush()

	var patch *telemetry.SettingsPatch
	switch *arm {
	case "":
	case "true", "false":
		armed := *arm == "true"
		patch = &telemetry.SettingsPatch{Armed: &armed}
	default:
		fmt.Fprintf(os.Stderr, "sentinel-watch: --arm must be true or false, got %q\n", *arm)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &viewer.Client{
		URL:          *url,
		Cache:        viewer.NewCache(),
		Log:          log,
		PingInterval: *ping,
	}
	c.OnState = func(s viewer.State) {
		fmt.Fprintf(os.Stdout, "%s  connection %s\n", time.Now().Format(time.TimeOnly), s)
	}
	c.OnFrame = func(k protocol.Kind) {
		switch k {
		case protocol.KindSnapshot:
			render(os.Stdout, c.Cache)
			if patch != nil {
				if err := c.UpdateSettings(*patch); err != nil {
					log.Warn("settings change failed", zap.Error(err))
				}
				patch = nil
			}
		case protocol.KindReadingUpdate, protocol.KindSettingsUpdate, protocol.KindActivityUpdate:
			render(os.Stdout, c.Cache)
		}
	}

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("watch stopped", zap.Error(err))
		os.Exit(1)
	}
}

func render(w io.Writer, c *viewer.Cache) {
	s := c.Settings()
	fmt.Fprintf(w, "\narmed=%t autoLights=%t buzzer=%t tempThreshold=%g gasThreshold=%g\n",
		s.Armed, s.AutoLights, s.AlertBuzzer, s.TemperatureThreshold, s.GasThreshold)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tVALUE\tUNIT\tSTATUS\tOBSERVED")
	for _, r := range c.Readings() {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%s\t%s\n", r.SensorID, r.Value, r.Unit, r.Status, r.ObservedAt.Local().Format(time.TimeOnly))
	}
	_ = tw.Flush()

	if a := c.Activity(); len(a) > 0 {
		fmt.Fprintf(w, "latest activity: [%s] %s\n", a[0].Category, a[0].Message)
	}
}
