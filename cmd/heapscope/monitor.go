// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/heapscope/client"
	"github.com/bureau-foundation/heapscope/cmd/heapscope/cli"
	"github.com/bureau-foundation/heapscope/control"
	"github.com/bureau-foundation/heapscope/lib/config"
	"github.com/bureau-foundation/heapscope/monitor"
	"github.com/bureau-foundation/heapscope/transport"
)

// exitDisconnected is the monitor's exit code when the session ends
// with a connection or protocol failure rather than a shutdown.
const exitDisconnected = 2

func monitorCommand(globals *globalFlags) *cli.Command {
	var (
		address       string
		compression   string
		pauseAtStart  bool
		controlSocket string
		filtersFile   string
		maxEvents     int
		quiet         bool
		color         string
	)
	return &cli.Command{
		Name:    "monitor",
		Summary: "Watch a program's heap",
		Description: `Connect to a heapscope server and print the program's spaces and
events as they arrive.

With --control-socket, the monitor also serves a local control socket
through which "heapscope control" pauses, restarts, steps, or shuts
down the program and changes its event filters. With --filters, a
JSONC preset of filter changes is applied right after connecting.

The monitor exits when the program shuts the session down, the
connection drops, or it is interrupted.`,
		Usage: "heapscope monitor [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
			flagSet.StringVarP(&address, "address", "a", "", "server TCP address (default from config)")
			flagSet.StringVar(&compression, "compression", "", "codec to request: none, lz4, or zstd (default from config)")
			flagSet.BoolVar(&pauseAtStart, "pause-at-start", false, "pause the program at its first safepoint")
			flagSet.StringVar(&controlSocket, "control-socket", "", "serve control requests on this Unix socket (default from config)")
			flagSet.StringVar(&filtersFile, "filters", "", "JSONC filter preset to apply after connecting")
			flagSet.IntVar(&maxEvents, "max-events", 0, "request shutdown after this many events (0 for no limit)")
			flagSet.BoolVarP(&quiet, "quiet", "q", false, "print events only, without spaces")
			flagSet.StringVar(&color, "color", "auto", "colour output: auto, always, or never")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Watch the demo with zstd compression",
				Command:     "heapscope monitor --compression zstd",
			},
			{
				Description: "Start paused and step with the control socket",
				Command:     "heapscope monitor --pause-at-start --control-socket /tmp/heapscope.sock",
			},
			{
				Description: "Only report collection ends, ten of them",
				Command:     "heapscope monitor --filters ends.jsonc --max-events 10 --quiet",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			colored, err := useColor(color, os.Stdout)
			if err != nil {
				return err
			}
			cfg, logger, err := globals.load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Monitor.Address = address
			}
			if compression != "" {
				cfg.Monitor.Compression = compression
			}
			if pauseAtStart {
				cfg.Monitor.PauseAtStart = true
			}
			if controlSocket != "" {
				cfg.Monitor.ControlSocket = controlSocket
			}
			if filtersFile != "" {
				cfg.Monitor.FiltersFile = filtersFile
			}
			if maxEvents != 0 {
				cfg.Monitor.MaxEvents = maxEvents
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			printer := monitor.NewPrinter(os.Stdout, colored, monitor.DefaultTheme)
			return runMonitor(ctx, cfg.Monitor, printer, quiet, logger)
		},
	}
}

// useColor resolves the --color mode for out.
func useColor(mode string, out *os.File) (bool, error) {
	switch mode {
	case "auto":
		return cli.IsTerminal(out), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	default:
		return false, fmt.Errorf("--color must be auto, always, or never, got %q", mode)
	}
}

// runMonitor connects to section.Address and prints through printer
// until the session ends or ctx is done.
func runMonitor(ctx context.Context, section config.MonitorConfig, printer *monitor.Printer, quiet bool, logger *slog.Logger) error {
	codec, err := transport.ParseCompression(section.Compression)
	if err != nil {
		return err
	}
	var preset *monitor.Preset
	if section.FiltersFile != "" {
		preset, err = monitor.LoadPreset(section.FiltersFile)
		if err != nil {
			return err
		}
	}

	c, err := client.Connect(ctx, section.Address, client.Options{
		PauseAtStart:     section.PauseAtStart,
		Compression:      codec,
		MaxMessageLength: section.MaxMessageLength,
		DialTimeout:      section.DialTimeout,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Debug("connected",
		"program", c.Name(),
		"remote", c.RemoteAddress(),
		"compression", c.Compression(),
	)

	m := monitor.New(c, printer, monitor.Options{
		MaxEvents: section.MaxEvents,
		Quiet:     quiet,
		Logger:    logger,
	})
	m.Attach()
	defer m.Detach()

	if preset != nil {
		if err := preset.Apply(c); err != nil {
			return fmt.Errorf("applying %s: %w", section.FiltersFile, err)
		}
		logger.Info("filter preset applied", "path", section.FiltersFile, "updates", len(preset.Filters))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	controlDone := make(chan error, 1)
	if section.ControlSocket != "" {
		controlServer := control.NewServer(section.ControlSocket, c, control.Options{Logger: logger})
		go func() { controlDone <- controlServer.Serve(ctx) }()
	} else {
		controlDone <- nil
	}

	runErr := c.Run(ctx)
	cancel()
	controlErr := <-controlDone
	if controlErr != nil {
		return controlErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		// The disconnect listener has already printed the cause.
		logger.Debug("session ended", "error", runErr)
		return &cli.ExitError{Code: exitDisconnected}
	}
	return nil
}
