// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/heapscope/cmd/heapscope/cli"
	"github.com/bureau-foundation/heapscope/lib/config"
	"github.com/bureau-foundation/heapscope/lib/version"
)

func rootCommand() *cli.Command {
	globals := &globalFlags{}
	return &cli.Command{
		Name: "heapscope",
		Description: `Heapscope: live heap visualisation for instrumented programs.

Connect to a program's heapscope server to watch its spaces and
collection events, and drive it through a local control socket.`,
		Inherited: globals.register,
		Subcommands: []*cli.Command{
			monitorCommand(globals),
			controlCommand(globals),
			demoCommand(globals),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("heapscope %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run a synthetic heap to watch",
				Command:     "heapscope demo",
			},
			{
				Description: "Watch it, with a control socket",
				Command:     "heapscope monitor --control-socket /tmp/heapscope.sock",
			},
			{
				Description: "Pause the program from another terminal",
				Command:     "heapscope control pause --socket /tmp/heapscope.sock",
			},
		},
	}
}

// globalFlags are inherited by every command in the tree.
type globalFlags struct {
	configPath string
	verbose    bool
}

func (g *globalFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&g.configPath, "config", "", "configuration file (default $"+config.EnvironmentVariable+")")
	flagSet.BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")
}

// load resolves the configuration and builds the command logger.
// Callers apply their flag overrides and then validate.
func (g *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Resolve(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cli.NewCommandLogger(g.verbose), nil
}
