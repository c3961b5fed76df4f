// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/heapscope/lib/clock"
	"github.com/bureau-foundation/heapscope/lib/netutil"
	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/wire"
)

// ConnectionState is the server's position in the monitor connection
// lifecycle.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Handshaking
	Serving
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Handshaking:
		return "handshaking"
	case Serving:
		return "serving"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// peer is the part of transport.Conn the program-side operations use.
type peer interface {
	Send(message []byte) error
	Close() error
}

// Server is the interpreter embedded in the instrumented program. The
// program registers spaces, updates them, and reports event boundaries
// and safepoints from its own goroutines; Serve runs the connection
// loop on another goroutine and applies commands from the monitor.
type Server struct {
	config     Config
	logger     *slog.Logger
	clock      clock.Clock
	dispatcher *protocol.Dispatcher

	spacesMu    sync.Mutex
	spaces      []*ServerSpace
	generalInfo string

	// boundaryMu serializes the program-side operations that send:
	// Safepoint, EventBoundary, CountingEventBoundary, TransmitStreams.
	boundaryMu sync.Mutex

	// mu guards the connection and the state shared with the serve
	// loop. Sends happen with mu released.
	mu                sync.Mutex
	state             ConnectionState
	conn              peer
	connLogger        *slog.Logger
	pauseNow          bool
	paused            bool
	playOne           bool
	shutdownRequested bool
	shutdownSent      bool
	filters           *protocol.EventFilters
	eventCounts       []int32

	// wake is closed and replaced on every change to the state above,
	// releasing a paused safepoint before its poll interval expires.
	wake chan struct{}

	elapsed      *stopwatch
	compensation *stopwatch
}

// New returns a server for config. Register spaces with AddServerSpace
// and start the connection loop with Serve.
func New(config Config) (*Server, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	config.applyDefaults()
	config.Events = append([]string(nil), config.Events...)

	s := &Server{
		config:       config,
		logger:       config.Logger,
		clock:        config.Clock,
		generalInfo:  config.GeneralInfo,
		filters:      protocol.NewEventFilters(len(config.Events)),
		eventCounts:  make([]int32, len(config.Events)),
		wake:         make(chan struct{}),
		elapsed:      newStopwatch(config.Clock),
		compensation: newStopwatch(config.Clock),
	}
	s.dispatcher = s.newDispatcher()
	return s, nil
}

// newDispatcher installs the commands a monitor may send. Everything
// else is a protocol violation.
func (s *Server) newDispatcher() *protocol.Dispatcher {
	d := protocol.NewDispatcher("server")
	d.Handle(protocol.PauseReq, func(*wire.Reader) error {
		s.update(func() {
			if !s.shutdownRequested {
				s.pauseNow = true
			}
		})
		return nil
	})
	d.Handle(protocol.Restart, func(*wire.Reader) error {
		s.update(func() { s.paused = false })
		return nil
	})
	d.Handle(protocol.PlayOne, func(*wire.Reader) error {
		s.update(func() {
			if s.paused {
				s.playOne = true
			}
		})
		return nil
	})
	d.Handle(protocol.ShutdownReq, func(*wire.Reader) error {
		s.update(func() { s.shutdownRequested = true })
		return nil
	})
	d.Handle(protocol.EventFiltersCmd, func(r *wire.Reader) error {
		filters := protocol.DecodeEventFilters(r, len(s.config.Events))
		if filters == nil {
			return nil
		}
		s.update(func() { s.filters = filters })
		return nil
	})
	return d
}

// update runs change under mu and wakes waiters.
func (s *Server) update(change func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	change()
	s.notifyLocked()
}

func (s *Server) notifyLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// Name returns the configured program name.
func (s *Server) Name() string { return s.config.Name }

// Events returns the configured event names.
func (s *Server) Events() []string { return append([]string(nil), s.config.Events...) }

// AddServerSpace registers space and assigns it the next space ID.
// A space added while a monitor is connected reaches it with the next
// TransmitStreams.
func (s *Server) AddServerSpace(sp *ServerSpace) (uint8, error) {
	s.spacesMu.Lock()
	defer s.spacesMu.Unlock()
	if len(s.spaces) >= s.config.SpaceCapacity {
		return 0, fmt.Errorf("%w: server already holds %d spaces (capacity %d)",
			space.ErrOutOfRange, len(s.spaces), s.config.SpaceCapacity)
	}
	id := uint8(len(s.spaces))
	sp.setID(id)
	sp.FlagChanged()
	s.spaces = append(s.spaces, sp)
	return id, nil
}

// Space returns the space with the given ID.
func (s *Server) Space(id uint8) (*ServerSpace, error) {
	s.spacesMu.Lock()
	defer s.spacesMu.Unlock()
	if int(id) >= len(s.spaces) {
		return nil, fmt.Errorf("%w: space %d of %d", space.ErrOutOfRange, id, len(s.spaces))
	}
	return s.spaces[id], nil
}

// SpaceCount returns the number of registered spaces.
func (s *Server) SpaceCount() int {
	s.spacesMu.Lock()
	defer s.spacesMu.Unlock()
	return len(s.spaces)
}

func (s *Server) spaceList() []*ServerSpace {
	s.spacesMu.Lock()
	defer s.spacesMu.Unlock()
	return append([]*ServerSpace(nil), s.spaces...)
}

// SetGeneralInfo replaces the free text sent to monitors on connect.
func (s *Server) SetGeneralInfo(info string) {
	s.spacesMu.Lock()
	defer s.spacesMu.Unlock()
	s.generalInfo = info
}

// State returns the current connection state.
func (s *Server) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Filters returns a copy of the active event filters.
func (s *Server) Filters() *protocol.EventFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// EventCounts returns a copy of the per-event occurrence counters.
// Counters survive reconnection.
func (s *Server) EventCounts() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32(nil), s.eventCounts...)
}

func (s *Server) checkEvent(eventID int) error {
	if eventID < 0 || eventID >= len(s.config.Events) {
		return fmt.Errorf("%w: event %d of %d", space.ErrOutOfRange, eventID, len(s.config.Events))
	}
	return nil
}

// UpdateEventCounter counts one occurrence of eventID.
func (s *Server) UpdateEventCounter(eventID int) error {
	if err := s.checkEvent(eventID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventCounts[eventID]++
	return nil
}

// ShouldTransmit reports whether an occurrence of eventID triggers a
// flush: a monitor is being served, the event is enabled, and its
// counter is a multiple of its period. Counting boundaries increment
// the counter before asking, so period 3 transmits on occurrences 3,
// 6, 9.
func (s *Server) ShouldTransmit(eventID int) bool {
	if s.checkEvent(eventID) != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldTransmitLocked(eventID)
}

func (s *Server) shouldTransmitLocked(eventID int) bool {
	return s.state == Serving &&
		s.filters.Enabled[eventID] &&
		s.eventCounts[eventID]%s.filters.Periods[eventID] == 0
}

// StartCompensationTimer starts timing work the program wants
// reported separately from elapsed time, such as time spent feeding
// the monitor.
func (s *Server) StartCompensationTimer() { s.compensation.Start() }

// StopCompensationTimer stops the compensation timer.
func (s *Server) StopCompensationTimer() { s.compensation.Stop() }

func (s *Server) resetTimers() {
	s.compensation.Reset()
	s.elapsed.Reset()
	s.elapsed.Start()
}

// connection returns the served peer and its logger, or nil.
func (s *Server) connection() (peer, *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Serving {
		return nil, nil
	}
	return s.conn, s.connLogger
}

// attach starts serving conn with fresh per-connection state. Event
// counters are kept.
func (s *Server) attach(conn peer, logger *slog.Logger, pauseAtStart bool) {
	if s.config.CollectStats {
		s.resetTimers()
	}
	s.update(func() {
		s.state = Serving
		s.conn = conn
		s.connLogger = logger
		s.filters = protocol.NewEventFilters(len(s.config.Events))
		s.pauseNow = pauseAtStart
		s.paused = false
		s.playOne = false
		s.shutdownRequested = false
		s.shutdownSent = false
	})
}

// detach stops serving conn. A stale conn is ignored.
func (s *Server) detach(conn peer) {
	s.update(func() {
		if s.conn != conn {
			return
		}
		s.state = Disconnected
		s.conn = nil
		s.connLogger = nil
		s.paused = false
		s.pauseNow = false
		s.playOne = false
	})
}

func (s *Server) setState(state ConnectionState) {
	s.update(func() { s.state = state })
}

// connectionFailed applies the failure policy to a transport error on
// conn.
func (s *Server) connectionFailed(conn peer, logger *slog.Logger, err error) {
	if logger == nil {
		logger = s.logger
	}
	switch {
	case s.config.FailurePolicy == FailProcess:
		logger.Error("transport failure while serving monitor", "error", err, "policy", s.config.FailurePolicy)
		s.config.Exit(fmt.Errorf("serving monitor: %w", err))
	case netutil.IsExpectedCloseError(err):
		logger.Info("monitor connection closed", "error", err)
	default:
		logger.Warn("closing monitor connection after transport failure", "error", err)
	}
	s.detach(conn)
	_ = conn.Close()
}

func (s *Server) sendFrame(conn peer, build func(*protocol.Frame)) error {
	frame := protocol.NewFrame(s.config.MaxMessageLength)
	build(frame)
	message, err := frame.Bytes()
	if err != nil {
		return err
	}
	return conn.Send(message)
}

func (s *Server) sendSignal(conn peer, code protocol.Code) error {
	return s.sendFrame(conn, func(f *protocol.Frame) { f.Signal(code) })
}
