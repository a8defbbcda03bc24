// Lambrecht meteo reads a Lambrecht weather station on a serial port and
// serves the current reading over HTTP, WebSocket and optionally MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/config"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/interpreter"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/logging"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/pathing"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/poller"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/port_reader"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/publisher"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/readingcache"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/webapi"
)

var version = "dev"

func main() {
	cliApp := &cli.App{
		Name:    "lambrecht_meteo",
		Usage:   "serve the current reading of a Lambrecht meteo weather station",
		Version: version,
		UsageText: "lambrecht_meteo [--config <file>] [--dev-file <device>] [--replay <file>]" +
			"\n\nEXAMPLE:" +
			"\n\tread the station on the first USB serial adapter" +
			"\n\t\tlambrecht_meteo --dev-file /dev/ttyUSB0",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: pathing.GetConfigPath(), Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "dev-file", Aliases: []string{"d"}, Usage: "serial `DEVICE` of the station, overrides the config"},
			&cli.StringFlag{Name: "replay", Usage: "read station output from a capture `FILE` instead of the serial port"},
			&cli.DurationFlag{Name: "replay-interval", Value: time.Second, Usage: "pause before each replayed sentence"},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: "`LEVEL` (debug|info|warn|error), overrides the config"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "print the readings of a running service as JSON lines",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Value: "localhost:8888", Usage: "`HOST:PORT` of the service"},
					&cli.BoolFlag{Name: "tls", Usage: "connect with wss"},
					&cli.IntFlag{Name: "max-retries", Value: 10, Usage: "give up after `N` failed connection attempts, 0 retries forever"},
				},
				Action: watch,
			},
			{
				Name:  "sample",
				Usage: "write a synthetic station capture for --replay",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "rounds", Value: 60, Usage: "number of `N` sentence rounds"},
					&cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
				},
				Action: func(c *cli.Context) error {
					return port_reader.WriteSampleCapture(os.Stdout, c.Int("rounds"), c.Int64("seed"))
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dev := c.String("dev-file"); dev != "" {
		cfg.Serial.Device = dev
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, cfg.Validate()
}

func newTransport(c *cli.Context, cfg *config.Config, logger *slog.Logger) port_reader.Transport {
	if path := c.String("replay"); path != "" {
		return port_reader.NewReplay(path, c.Duration("replay-interval"), true, logger)
	}
	return port_reader.NewSerial(port_reader.SerialConfig{
		Device:      cfg.Serial.Device,
		Baudrate:    cfg.Serial.Baudrate,
		DataBits:    cfg.Serial.DataBits,
		Parity:      cfg.Serial.Parity,
		StopBits:    cfg.Serial.StopBits,
		RTSCTS:      cfg.Serial.RTSCTS,
		ReadTimeout: cfg.Serial.ReadTimeout.Duration,
	}, logger)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level).With("version", version)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := readingcache.New()
	p := poller.New(newTransport(c, cfg, logger), cache, poller.Config{
		FailureThreshold: cfg.Poller.FailureThreshold,
		BackoffBase:      cfg.Poller.BackoffBase.Duration,
		BackoffMax:       cfg.Poller.BackoffMax.Duration,
	}, logger)
	staleAfter := cfg.Poller.StaleAfter.Duration

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	pub, err := publisher.New(cfg.MQTT, cache, staleAfter, logger)
	switch {
	case errors.Is(err, publisher.ErrDisabled):
		logger.Info("mqtt disabled")
	case err != nil:
		return err
	default:
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mqtt publisher stopped", "error", err)
			}
		}()
	}

	api := webapi.New(cache, p.Stats, staleAfter, logger)
	listener := fmt.Sprintf("%s:%d", cfg.Web.ListenAddress, cfg.Web.ListenPort)
	err = api.ListenAndServe(ctx, listener)
	if err != nil {
		logger.Error("api stopped", "error", err)
	}

	// the poller and publisher stop with ctx
	stop()
	wg.Wait()
	logger.Info("shut down")
	return err
}

func watch(c *cli.Context) error {
	level, err := logging.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := interpreter.DefaultListenerConfig(c.String("host"))
	cfg.TLSEnabled = c.Bool("tls")
	cfg.MaxRetries = c.Int("max-retries")
	return interpreter.StartListener(ctx, cfg, logger, func(reading *readingcache.Payload) {
		fmt.Println(string(reading.ToJsonBytes()))
	})
}
