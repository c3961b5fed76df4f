// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/heapscope/cmd/heapscope/cli"
	"github.com/bureau-foundation/heapscope/control"
	"github.com/bureau-foundation/heapscope/internal/demo"
	"github.com/bureau-foundation/heapscope/lib/codec"
	"github.com/bureau-foundation/heapscope/lib/config"
	"github.com/bureau-foundation/heapscope/lib/testutil"
	"github.com/bureau-foundation/heapscope/monitor"
	"github.com/bureau-foundation/heapscope/server"
	"github.com/bureau-foundation/heapscope/transport"
)

const testTimeout = 10 * time.Second

// walkCommands recursively visits every command in the tree,
// calling visit for each node with the accumulated command path.
func walkCommands(command *cli.Command, path []string, visit func(*cli.Command, []string)) {
	current := make([]string, len(path)+1)
	copy(current, path)
	current[len(path)] = command.Name
	visit(command, current)
	for _, sub := range command.Subcommands {
		walkCommands(sub, current, visit)
	}
}

func TestCommandTreeIsDocumented(t *testing.T) {
	root := rootCommand()
	var help bytes.Buffer
	root.Output = &help
	walkCommands(root, nil, func(command *cli.Command, path []string) {
		name := strings.Join(path, " ")
		if len(path) > 1 && command.Summary == "" {
			t.Errorf("%s: missing Summary", name)
		}
		seen := make(map[string]bool)
		for _, sub := range command.Subcommands {
			if seen[sub.Name] {
				t.Errorf("%s: duplicate subcommand %q", name, sub.Name)
			}
			seen[sub.Name] = true
		}
		if command.Flags != nil {
			flagSet := command.Flags()
			if flagSet.Lookup("config") != nil || flagSet.Lookup("verbose") != nil {
				t.Errorf("%s: registers global flags itself", name)
			}
		}
		if command.Run == nil {
			return
		}
		help.Reset()
		if err := root.Execute(append(slices.Clone(path[1:]), "--help")); err != nil {
			t.Errorf("%s --help: %v", name, err)
			return
		}
		_, global, found := strings.Cut(help.String(), "Global Flags:")
		if !found || !strings.Contains(global, "--config") || !strings.Contains(global, "--verbose") {
			t.Errorf("%s: help lacks the global flags:\n%s", name, help.String())
		}
	})
}

func TestGlobalFlagsReachLeafCommands(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	for _, args := range [][]string{
		{"control", "status", "--socket", "/unused.sock", "--config", missing},
		{"control", "space", "1", "-v", "--config", missing},
		{"monitor", "--config", missing, "--quiet"},
		{"demo", "--config=" + missing},
	} {
		err := rootCommand().Execute(args)
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Execute(%v) = %v, want the missing config file reported", args, err)
		}
	}
}

func TestControlCommandsMatchActions(t *testing.T) {
	want := []string{
		"status", "spaces", "space", "pause", "restart", "play-one",
		"shutdown", "filters", "set-filters", "reset-filters",
	}
	var got []string
	for _, sub := range controlCommand(&globalFlags{}).Subcommands {
		got = append(got, sub.Name)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("control subcommands = %v, want %v", got, want)
	}
	if served := control.Actions(); !slices.Equal(slices.Sorted(slices.Values(got)), served) {
		t.Errorf("control subcommands %v do not match the served actions %v", got, served)
	}
}

func TestUseColor(t *testing.T) {
	tests := []struct {
		mode    string
		want    bool
		wantErr bool
	}{
		{mode: "always", want: true},
		{mode: "never", want: false},
		{mode: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		got, err := useColor(tt.mode, os.Stdout)
		if (err != nil) != tt.wantErr {
			t.Errorf("useColor(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("useColor(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func setFiltersFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	command := setFiltersCommand(&globalFlags{})
	flagSet := command.Flags()
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("parsing %v: %v", args, err)
	}
	return flagSet
}

func TestFilterUpdates(t *testing.T) {
	t.Parallel()

	flagSet := setFiltersFlags(t, "--event", "collection end", "--period", "10", "--pause")
	event, _ := flagSet.GetString("event")
	period, _ := flagSet.GetInt32("period")
	pause, _ := flagSet.GetBool("pause")
	updates, err := filterUpdates(flagSet, event, "", true, 0, pause, period)
	if err != nil {
		t.Fatalf("filterUpdates: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	update := updates[0]
	if update.Event != "collection end" {
		t.Errorf("event = %q", update.Event)
	}
	if update.Period == nil || *update.Period != 10 {
		t.Errorf("period = %v, want 10", update.Period)
	}
	if update.Pause == nil || !*update.Pause {
		t.Errorf("pause = %v, want true", update.Pause)
	}
	if update.Enabled != nil || update.DelayMillis != nil {
		t.Errorf("unset fields were sent: enabled=%v delay=%v", update.Enabled, update.DelayMillis)
	}
}

func TestFilterUpdatesFromPreset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ends.jsonc")
	preset := `{
		// only collection ends
		"filters": [
			{"event": "collection start", "enabled": false},
			{"event": "collection end", "period": 2},
		],
	}`
	if err := os.WriteFile(path, []byte(preset), 0o644); err != nil {
		t.Fatal(err)
	}
	flagSet := setFiltersFlags(t, "--file", path)
	updates, err := filterUpdates(flagSet, "", path, true, 0, false, 1)
	if err != nil {
		t.Fatalf("filterUpdates: %v", err)
	}
	if len(updates) != 2 || updates[0].Enabled == nil || *updates[0].Enabled {
		t.Errorf("updates = %+v", updates)
	}
}

func TestFilterUpdatesRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		args   []string
		event  string
		preset string
		want   string
	}{
		{name: "nothing", want: "--event or --file is required"},
		{name: "no fields", args: []string{"--event", "gc"}, event: "gc", want: "nothing to change"},
		{name: "both", args: []string{"--event", "gc", "--file", "x"}, event: "gc", preset: "x", want: "mutually exclusive"},
		{name: "field with file", args: []string{"--file", "x", "--period", "2"}, preset: "x", want: "--period requires --event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagSet := setFiltersFlags(t, tt.args...)
			_, err := filterUpdates(flagSet, tt.event, tt.preset, true, 0, false, 1)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestPrintResponse(t *testing.T) {
	t.Parallel()

	data, err := codec.Marshal(map[string]any{"program": "demo", "spaces": 2})
	if err != nil {
		t.Fatal(err)
	}

	var empty bytes.Buffer
	if err := printResponse(&empty, nil, false); err != nil {
		t.Fatal(err)
	}
	if empty.String() != "ok\n" {
		t.Errorf("empty response printed %q", empty.String())
	}

	var asJSON bytes.Buffer
	if err := printResponse(&asJSON, data, false); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(asJSON.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, asJSON.String())
	}
	if decoded["program"] != "demo" || decoded["spaces"] != float64(2) {
		t.Errorf("decoded = %v", decoded)
	}

	var diagnostic bytes.Buffer
	if err := printResponse(&diagnostic, data, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diagnostic.String(), `"program": "demo"`) {
		t.Errorf("diagnostic output = %q", diagnostic.String())
	}
}

// TestMonitorSessionWithControl runs the synthetic heap, a monitor
// started paused with a control socket, and control calls against it:
// the monitor reports the pause, restart lets events through, and the
// event limit ends the session.
func TestMonitorSessionWithControl(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := server.New(server.Config{
		Name:               "synthetic",
		Events:             demo.Events,
		AllowedCompression: []transport.Compression{transport.CompressionNone, transport.CompressionZstd},
		Logger:             logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	heap, err := demo.New(s, demo.Options{})
	if err != nil {
		t.Fatal(err)
	}
	listener, err := transport.NewTCPListener("127.0.0.1:0", 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, listener) }()
	program := make(chan error, 1)
	go func() { program <- heap.Run(ctx, time.Millisecond) }()

	socket := filepath.Join(testutil.SocketDir(t), "control.sock")
	var out bytes.Buffer
	monitored := make(chan error, 1)
	go func() {
		monitored <- runMonitor(ctx, config.MonitorConfig{
			Address:       listener.Address(),
			PauseAtStart:  true,
			Compression:   "zstd",
			DialTimeout:   testTimeout,
			ControlSocket: socket,
			MaxEvents:     4,
		}, monitor.NewPrinter(&out, false, monitor.DefaultTheme), true, logger)
	}()
	testutil.RequireSocket(t, socket, testTimeout)

	flags := controlFlags{globals: &globalFlags{}, socket: socket}
	client := control.NewClient(socket)
	var status control.Status
	testutil.RequireEventually(t, testTimeout, func() bool {
		callCtx, callCancel := context.WithTimeout(context.Background(), testTimeout)
		defer callCancel()
		if err := client.Call(callCtx, "status", nil, &status); err != nil {
			t.Fatalf("status: %v", err)
		}
		return status.Paused
	}, "waiting for the program to pause")
	if status.Compression != "zstd" || status.Program != "synthetic" || status.Spaces != 2 {
		t.Errorf("status = %+v", status)
	}

	var spaces bytes.Buffer
	if err := flags.call(&spaces, "spaces", nil); err != nil {
		t.Fatalf("spaces: %v", err)
	}
	if !strings.Contains(spaces.String(), `"main space"`) {
		t.Errorf("spaces output = %s", spaces.String())
	}

	var restarted bytes.Buffer
	if err := flags.call(&restarted, "restart", nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.String() != "ok\n" {
		t.Errorf("restart printed %q", restarted.String())
	}

	if err := testutil.RequireReceive(t, monitored, testTimeout, "waiting for the event limit to end the session"); err != nil {
		t.Errorf("runMonitor = %v, want nil", err)
	}
	text := out.String()
	for _, want := range []string{"synthetic @ ", "paused", "#4 collection"} {
		if !strings.Contains(text, want) {
			t.Errorf("monitor output missing %q:\n%s", want, text)
		}
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Errorf("control socket left behind: %v", err)
	}

	cancel()
	if err := testutil.RequireReceive(t, program, testTimeout, "waiting for the program loop"); err != nil {
		t.Errorf("Run = %v", err)
	}
	if err := testutil.RequireReceive(t, served, testTimeout, "waiting for Serve"); err != nil {
		t.Errorf("Serve = %v", err)
	}
}

func TestMonitorExitsOnDisconnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := server.New(server.Config{Name: "vanishing", Events: demo.Events, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	listener, err := transport.NewTCPListener("127.0.0.1:0", 0)
	if err != nil {
		t.Fatal(err)
	}
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	served := make(chan error, 1)
	go func() { served <- s.Serve(serveCtx, listener) }()

	var out bytes.Buffer
	monitored := make(chan error, 1)
	go func() {
		monitored <- runMonitor(context.Background(), config.MonitorConfig{
			Address:     listener.Address(),
			Compression: "none",
			DialTimeout: testTimeout,
		}, monitor.NewPrinter(&out, false, monitor.DefaultTheme), true, logger)
	}()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), testTimeout)
	defer waitCancel()
	if err := s.WaitConnected(waitCtx); err != nil {
		t.Fatal(err)
	}

	stopServing()
	err = testutil.RequireReceive(t, monitored, testTimeout, "waiting for the monitor to notice")
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != exitDisconnected {
		t.Errorf("runMonitor = %v, want exit code %d", err, exitDisconnected)
	}
	if !strings.Contains(out.String(), "disconnected: ") {
		t.Errorf("monitor output missing the disconnect:\n%s", out.String())
	}
	testutil.RequireReceive(t, served, testTimeout, "waiting for Serve")
}
