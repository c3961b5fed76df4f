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
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/heapscope/cmd/heapscope/cli"
	"github.com/bureau-foundation/heapscope/internal/demo"
	"github.com/bureau-foundation/heapscope/lib/config"
	"github.com/bureau-foundation/heapscope/server"
	"github.com/bureau-foundation/heapscope/transport"
)

func demoCommand(globals *globalFlags) *cli.Command {
	var (
		listen   string
		name     string
		interval time.Duration
	)
	return &cli.Command{
		Name:    "demo",
		Summary: "Serve a synthetic heap",
		Description: `Run a heapscope server over a synthetic two-space heap.

The heap collects every --interval, reporting "collection start" and
"collection end" events. Its main space grows through three sizes and
shrinks back, so a monitor sees both stream updates and resizes. One
monitor is served at a time; the program keeps running between them.`,
		Usage: "heapscope demo [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("demo", pflag.ContinueOnError)
			flagSet.StringVar(&listen, "listen", "", "TCP address to serve monitors on (default from config)")
			flagSet.StringVar(&name, "name", "", "program name shown to monitors (default from config)")
			flagSet.DurationVar(&interval, "interval", 500*time.Millisecond, "time between collections")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Serve on the default address",
				Command:     "heapscope demo",
			},
			{
				Description: "Collect quickly on another port",
				Command:     "heapscope demo --listen 127.0.0.1:4000 --interval 50ms",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			cfg, logger, err := globals.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if name != "" {
				cfg.Server.Name = name
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, cfg.Server, interval, logger)
		},
	}
}

// serverConfig converts the configuration's server section.
func serverConfig(section config.ServerConfig, logger *slog.Logger) (server.Config, error) {
	policy, err := server.ParseFailurePolicy(section.FailurePolicy)
	if err != nil {
		return server.Config{}, err
	}
	allowed := make([]transport.Compression, 0, len(section.Compression))
	for _, entry := range section.Compression {
		codec, err := transport.ParseCompression(entry)
		if err != nil {
			return server.Config{}, err
		}
		allowed = append(allowed, codec)
	}
	return server.Config{
		Name:               section.Name,
		GeneralInfo:        section.GeneralInfo,
		Events:             demo.Events,
		CollectStats:       section.CollectStats,
		PollInterval:       section.PollInterval,
		MaxMessageLength:   section.MaxMessageLength,
		FailurePolicy:      policy,
		AllowedCompression: allowed,
		Logger:             logger,
	}, nil
}

// runDemo serves the synthetic heap on section.Listen until ctx is
// done.
func runDemo(ctx context.Context, section config.ServerConfig, interval time.Duration, logger *slog.Logger) error {
	serverCfg, err := serverConfig(section, logger)
	if err != nil {
		return err
	}
	s, err := server.New(serverCfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	heap, err := demo.New(s, demo.Options{Logger: logger})
	if err != nil {
		return err
	}
	if section.GeneralInfo != "" {
		s.SetGeneralInfo(section.GeneralInfo)
	}

	listener, err := transport.NewTCPListener(section.Listen, section.MaxMessageLength)
	if err != nil {
		return err
	}
	logger.Info("serving synthetic heap",
		"address", listener.Address(),
		"name", section.Name,
		"interval", interval,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() {
		err := s.Serve(ctx, listener)
		if err != nil {
			cancel()
		}
		served <- err
	}()

	runErr := heap.Run(ctx, interval)
	cancel()
	serveErr := <-served
	logger.Info("synthetic heap stopped", "collections", heap.Cycle())
	return errors.Join(runErr, serveErr)
}
