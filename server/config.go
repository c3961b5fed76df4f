// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/heapscope/lib/clock"
	"github.com/bureau-foundation/heapscope/lib/process"
	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/transport"
)

// DefaultPollInterval is how often a paused safepoint re-checks its
// flags when no state change wakes it earlier.
const DefaultPollInterval = 10 * time.Millisecond

// FailurePolicy selects what a transport failure while serving does.
type FailurePolicy int

const (
	// FailConnection closes the failed connection and returns to
	// accepting monitors.
	FailConnection FailurePolicy = iota

	// FailProcess logs the failure and terminates the process through
	// Config.Exit.
	FailProcess
)

func (p FailurePolicy) String() string {
	switch p {
	case FailConnection:
		return "connection"
	case FailProcess:
		return "process"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy maps "connection" and "process" to a policy.
func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch name {
	case "", "connection":
		return FailConnection, nil
	case "process":
		return FailProcess, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q (want connection or process)", name)
	}
}

// Config configures a Server.
type Config struct {
	// Name identifies the instrumented program to monitors.
	Name string

	// GeneralInfo is free text shown by monitors; it may be changed
	// later with SetGeneralInfo and reaches monitors on connect.
	GeneralInfo string

	// Events names every event the program reports, indexed by event
	// ID. At most 255.
	Events []string

	// SpaceCapacity is the maximum number of spaces AddServerSpace
	// accepts. Zero means protocol.MaxSpaces.
	SpaceCapacity int

	// CollectStats enables the elapsed and compensation timers used by
	// CountingEventBoundary.
	CollectStats bool

	// PollInterval bounds how long a paused safepoint waits between
	// flag checks. Zero means DefaultPollInterval.
	PollInterval time.Duration

	// MaxMessageLength bounds every message this server sends. Zero
	// means transport.DefaultMaxMessageLength.
	MaxMessageLength int

	// FailurePolicy applies to transport failures while serving.
	FailurePolicy FailurePolicy

	// AllowedCompression lists the codecs a monitor may select. Empty
	// allows only transport.CompressionNone.
	AllowedCompression []transport.Compression

	// Clock drives polling, delays, and statistics timers. Nil means
	// clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle logging. Nil discards.
	Logger *slog.Logger

	// Exit terminates the process under FailProcess. Nil means
	// process.Fatal.
	Exit func(error)
}

func (c *Config) validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(c.Events) > 0xff {
		errs = append(errs, fmt.Errorf("%d events exceeds 255", len(c.Events)))
	}
	if c.SpaceCapacity < 0 || c.SpaceCapacity > protocol.MaxSpaces {
		errs = append(errs, fmt.Errorf("space capacity %d outside [0, %d]", c.SpaceCapacity, protocol.MaxSpaces))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("negative poll interval %s", c.PollInterval))
	}
	if c.FailurePolicy != FailConnection && c.FailurePolicy != FailProcess {
		errs = append(errs, fmt.Errorf("unknown failure policy %d", int(c.FailurePolicy)))
	}
	for _, codec := range c.AllowedCompression {
		if !codec.Valid() {
			errs = append(errs, fmt.Errorf("unknown compression %d", uint8(codec)))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.SpaceCapacity == 0 {
		c.SpaceCapacity = protocol.MaxSpaces
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = transport.DefaultMaxMessageLength
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Exit == nil {
		c.Exit = process.Fatal
	}
}
