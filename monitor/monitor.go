// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/heapscope/client"
	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/transport"
)

// Session is the part of *client.Client the monitor drives.
type Session interface {
	Name() string
	GeneralInfo() string
	RemoteAddress() string
	Compression() transport.Compression
	Events() []string
	EventCounts() []int32
	Snapshot() []*space.Space

	OnPause(fn client.PauseListener) client.ListenerID
	OnEvent(fn client.EventListener) client.ListenerID
	OnDisconnect(fn client.DisconnectListener) client.ListenerID
	RemoveListener(id client.ListenerID) bool

	SendShutdownReq() error
}

// Options configures a Monitor.
type Options struct {
	// MaxEvents, when positive, makes the monitor send SHUTDOWN_REQ
	// once that many events have been printed.
	MaxEvents int

	// Quiet prints event lines only, without the spaces.
	Quiet bool

	// Logger receives shutdown failures. Nil discards.
	Logger *slog.Logger
}

// Monitor prints a session's events and spaces as they arrive.
type Monitor struct {
	session Session
	printer *Printer
	options Options
	logger  *slog.Logger

	mu           sync.Mutex
	seen         int
	shutdownSent bool
	listeners    []client.ListenerID
}

// New returns a monitor for session printing through printer. Call
// Attach to start receiving.
func New(session Session, printer *Printer, options Options) *Monitor {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{session: session, printer: printer, options: options, logger: logger}
}

// Attach prints the session header and every space, then registers
// the monitor's listeners.
func (m *Monitor) Attach() {
	spaces := m.session.Snapshot()
	m.printer.Connected(m.session.Name(), m.session.GeneralInfo(), m.session.RemoteAddress(),
		m.session.Compression().String(), m.session.Events(), len(spaces))
	if !m.options.Quiet {
		for _, sp := range spaces {
			m.printer.Space(sp)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners,
		m.session.OnPause(m.printer.Paused),
		m.session.OnEvent(m.onEvent),
		m.session.OnDisconnect(m.printer.Disconnected),
	)
}

// Detach removes the monitor's listeners.
func (m *Monitor) Detach() {
	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()
	for _, id := range listeners {
		m.session.RemoveListener(id)
	}
}

// Seen returns how many events have been printed.
func (m *Monitor) Seen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}

func (m *Monitor) onEvent(record protocol.EventRecord) {
	events := m.session.Events()
	counts := m.session.EventCounts()
	name := "?"
	var count int32
	if int(record.ID) < len(events) {
		name = events[record.ID]
	}
	if int(record.ID) < len(counts) {
		count = counts[record.ID]
	}

	m.mu.Lock()
	m.seen++
	sequence := m.seen
	limitReached := m.options.MaxEvents > 0 && m.seen >= m.options.MaxEvents && !m.shutdownSent
	if limitReached {
		m.shutdownSent = true
	}
	m.mu.Unlock()

	m.printer.Event(sequence, name, count, record)
	if !m.options.Quiet {
		for _, sp := range m.session.Snapshot() {
			m.printer.Space(sp)
		}
	}

	if limitReached {
		m.logger.Info("event limit reached, requesting shutdown", "events", sequence)
		if err := m.session.SendShutdownReq(); err != nil {
			m.logger.Error("sending shutdown request", "error", err)
		}
	}
}
