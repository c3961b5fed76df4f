// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/heapscope/cmd/heapscope/cli"
	"github.com/bureau-foundation/heapscope/control"
	"github.com/bureau-foundation/heapscope/lib/codec"
	"github.com/bureau-foundation/heapscope/monitor"
	"github.com/bureau-foundation/heapscope/protocol"
)

const controlTimeout = time.Minute

// controlFlags are shared by every control subcommand.
type controlFlags struct {
	globals  *globalFlags
	socket   string
	diagnose bool
}

func (f *controlFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.socket, "socket", "s", "", "monitor control socket (default from config)")
	flagSet.BoolVar(&f.diagnose, "diagnose", false, "print the raw CBOR response in diagnostic notation")
}

// call sends action to the monitor's control socket and prints the
// response data to out.
func (f *controlFlags) call(out io.Writer, action string, fields map[string]any) error {
	cfg, logger, err := f.globals.load()
	if err != nil {
		return err
	}
	path := f.socket
	if path == "" {
		path = cfg.Monitor.ControlSocket
	}
	if path == "" {
		return errors.New("no control socket: pass --socket or set monitor.control_socket")
	}
	logger.Debug("control call", "socket", path, "action", action)

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	var raw codec.RawMessage
	if err := control.NewClient(path).Call(ctx, action, fields, &raw); err != nil {
		return err
	}
	return printResponse(out, raw, f.diagnose)
}

// printResponse writes response data as indented JSON, or as CBOR
// diagnostic notation with diagnose. Actions without data print "ok".
func printResponse(out io.Writer, raw codec.RawMessage, diagnose bool) error {
	if len(raw) == 0 {
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
	if diagnose {
		notation, err := codec.Diagnose(raw)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, notation)
		return err
	}
	var value any
	if err := codec.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return cli.WriteJSON(out, value)
}

// simpleControlCommand builds a subcommand sending action with no
// request fields.
func simpleControlCommand(globals *globalFlags, action, summary, description string) *cli.Command {
	flags := controlFlags{globals: globals}
	return &cli.Command{
		Name:        action,
		Summary:     summary,
		Description: description,
		Usage:       "heapscope control " + action + " [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(action, pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return flags.call(os.Stdout, action, nil)
		},
	}
}

func controlCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "control",
		Summary: "Drive a running monitor through its control socket",
		Description: `Send a request to the control socket of a running "heapscope monitor".

Queries print JSON. Commands to the program print "ok" once the monitor
has sent them; the program acts on them at its next safepoint.`,
		Subcommands: []*cli.Command{
			simpleControlCommand(globals, "status", "Show the session, event counts, and filters",
				"Show the program name, connection, pause state, and each event's count and filter."),
			simpleControlCommand(globals, "spaces", "List the mirrored spaces",
				"List every space with its tile counts, streams, and content digest."),
			spaceCommand(globals),
			simpleControlCommand(globals, "pause", "Pause the program at its next safepoint",
				"Ask the program to pause at its next safepoint. It stays paused until restart or play-one."),
			simpleControlCommand(globals, "restart", "Resume a paused program",
				"Resume a paused program."),
			simpleControlCommand(globals, "play-one", "Run a paused program to its next safepoint",
				"Let a paused program run until its next safepoint, where it pauses again."),
			simpleControlCommand(globals, "shutdown", "End the session",
				"Ask the program to end the monitoring session. The program keeps running."),
			simpleControlCommand(globals, "filters", "Show the event filters",
				"Show each event's count and filter."),
			setFiltersCommand(globals),
			simpleControlCommand(globals, "reset-filters", "Restore the default event filters",
				"Restore every event's filter to the default and send them to the program."),
		},
		Examples: []cli.Example{
			{
				Description: "Check what the monitor sees",
				Command:     "heapscope control status --socket /tmp/heapscope.sock",
			},
			{
				Description: "Step a paused program one boundary",
				Command:     "heapscope control play-one --socket /tmp/heapscope.sock",
			},
		},
	}
}

func spaceCommand(globals *globalFlags) *cli.Command {
	flags := controlFlags{globals: globals}
	return &cli.Command{
		Name:    "space",
		Summary: "Show one space's tiles and stream values",
		Description: `Show one space in detail: its description, a glyph per tile for the
tile's control state, and every stream's values.`,
		Usage: "heapscope control space <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("space", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: heapscope control space <id>")
			}
			id, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid space id %q: %w", args[0], err)
			}
			return flags.call(os.Stdout, "space", map[string]any{"id": uint8(id)})
		},
	}
}

func setFiltersCommand(globals *globalFlags) *cli.Command {
	flags := controlFlags{globals: globals}
	var (
		flagSet     *pflag.FlagSet
		event       string
		presetPath  string
		enabled     bool
		delayMillis int32
		pause       bool
		period      int32
	)
	return &cli.Command{
		Name:    "set-filters",
		Summary: "Change event filters",
		Description: `Change one event's filter with --event and the fields to set, or apply
a JSONC preset file with --file. Fields not given keep their value.

A filter's period makes the program report only every Nth occurrence;
its delay sleeps after each reported occurrence; pause stops the
program after it.`,
		Usage: "heapscope control set-filters (--event <name> [fields] | --file <preset>) [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("set-filters", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVarP(&event, "event", "e", "", "event to change")
			flagSet.StringVarP(&presetPath, "file", "f", "", "JSONC filter preset to apply")
			flagSet.BoolVar(&enabled, "enabled", true, "report the event")
			flagSet.Int32Var(&delayMillis, "delay-ms", 0, "milliseconds to sleep after each report")
			flagSet.BoolVar(&pause, "pause", false, "pause after each report")
			flagSet.Int32Var(&period, "period", 1, "report every Nth occurrence")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Report every tenth collection end",
				Command:     `heapscope control set-filters --event "collection end" --period 10`,
			},
			{
				Description: "Pause after each collection start",
				Command:     `heapscope control set-filters --event "collection start" --pause`,
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			updates, err := filterUpdates(flagSet, event, presetPath, enabled, delayMillis, pause, period)
			if err != nil {
				return err
			}
			return flags.call(os.Stdout, "set-filters", map[string]any{"filters": updates})
		},
	}
}

// filterUpdates builds the request from either a preset file or the
// field flags set on flagSet.
func filterUpdates(flagSet *pflag.FlagSet, event, presetPath string, enabled bool, delayMillis int32, pause bool, period int32) ([]protocol.FilterUpdate, error) {
	fieldFlags := []string{"enabled", "delay-ms", "pause", "period"}
	if presetPath != "" {
		if event != "" {
			return nil, errors.New("--file and --event are mutually exclusive")
		}
		for _, name := range fieldFlags {
			if flagSet.Changed(name) {
				return nil, fmt.Errorf("--%s requires --event", name)
			}
		}
		preset, err := monitor.LoadPreset(presetPath)
		if err != nil {
			return nil, err
		}
		if len(preset.Filters) == 0 {
			return nil, fmt.Errorf("%s has no filters", presetPath)
		}
		return preset.Filters, nil
	}
	if event == "" {
		return nil, errors.New("--event or --file is required")
	}
	update := protocol.FilterUpdate{Event: event}
	if flagSet.Changed("enabled") {
		update.Enabled = &enabled
	}
	if flagSet.Changed("delay-ms") {
		update.DelayMillis = &delayMillis
	}
	if flagSet.Changed("pause") {
		update.Pause = &pause
	}
	if flagSet.Changed("period") {
		update.Period = &period
	}
	if update.Enabled == nil && update.DelayMillis == nil && update.Pause == nil && update.Period == nil {
		return nil, errors.New("nothing to change: pass --enabled, --delay-ms, --pause, or --period")
	}
	return []protocol.FilterUpdate{update}, nil
}
