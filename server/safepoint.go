// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/heapscope/protocol"
)

// Safepoint is where the instrumented program lets the monitor stop
// it. Without a monitor it returns immediately. Otherwise, on the
// caller's goroutine, it delivers a requested shutdown (and returns),
// delivers a requested pause, and while paused waits until the monitor
// restarts the program, requests shutdown, or plays one boundary. A
// play-one wait ends once and the program is paused again at the next
// safepoint.
func (s *Server) Safepoint() {
	s.boundaryMu.Lock()
	defer s.boundaryMu.Unlock()
	s.safepoint()
}

func (s *Server) safepoint() {
	s.mu.Lock()
	if s.state != Serving {
		s.mu.Unlock()
		return
	}
	conn, logger := s.conn, s.connLogger

	if s.shutdownRequested {
		s.paused = false
		s.deliverShutdownLocked(conn)
		s.mu.Unlock()
		return
	}

	if s.pauseNow {
		s.pauseNow = false
		s.paused = true
		s.mu.Unlock()
		if err := s.sendSignal(conn, protocol.Pause); err != nil {
			s.connectionFailed(conn, logger, fmt.Errorf("sending pause: %w", err))
			return
		}
		logger.Info("paused")
		s.mu.Lock()
	}

	waited := false
	for s.paused && s.state == Serving && s.conn == conn {
		waited = true
		if s.shutdownRequested {
			s.paused = false
			s.deliverShutdownLocked(conn)
			break
		}
		if s.playOne {
			s.playOne = false
			logger.Debug("playing one boundary")
			s.mu.Unlock()
			return
		}
		wake := s.wake
		s.mu.Unlock()
		s.waitForChange(wake)
		s.mu.Lock()
	}
	restarted := waited && !s.paused && !s.shutdownRequested && s.conn == conn
	s.mu.Unlock()
	if restarted {
		logger.Info("restarted")
	}
}

// deliverShutdownLocked sends Shutdown once per connection. Called and
// returns with mu held; mu is released around the send.
func (s *Server) deliverShutdownLocked(conn peer) {
	if s.shutdownSent {
		return
	}
	logger := s.connLogger
	s.mu.Unlock()
	err := s.sendSignal(conn, protocol.Shutdown)
	if err != nil {
		s.connectionFailed(conn, logger, fmt.Errorf("sending shutdown: %w", err))
	} else {
		logger.Info("shutdown delivered")
	}
	s.mu.Lock()
	if err == nil {
		s.shutdownSent = true
		s.notifyLocked()
	}
}

// waitForChange blocks until wake is closed or one poll interval has
// passed on the server's clock.
func (s *Server) waitForChange(wake <-chan struct{}) {
	timer := s.clock.NewTimer(s.config.PollInterval)
	defer timer.Stop()
	select {
	case <-wake:
	case <-timer.C:
	}
}

// EventBoundary reports an occurrence of eventID with the given
// timings. If ShouldTransmit allows it, the boundary flushes every
// space with TransmitStreams, sends the event counts and the event,
// applies the event's delay and pause filters, then runs a safepoint.
func (s *Server) EventBoundary(eventID int, elapsed, compensation int32) error {
	if err := s.checkEvent(eventID); err != nil {
		return err
	}
	s.boundaryMu.Lock()
	defer s.boundaryMu.Unlock()
	s.eventBoundary(eventID, elapsed, compensation)
	return nil
}

// CountingEventBoundary counts an occurrence of eventID, then behaves
// like EventBoundary. With statistics collection enabled, the reported
// timings are the elapsed time since the previous transmitted boundary
// and the compensation time accumulated since then.
func (s *Server) CountingEventBoundary(eventID int) error {
	if err := s.UpdateEventCounter(eventID); err != nil {
		return err
	}
	s.boundaryMu.Lock()
	defer s.boundaryMu.Unlock()
	if !s.ShouldTransmit(eventID) {
		return nil
	}
	var elapsed, compensation int32
	if s.config.CollectStats {
		s.elapsed.Stop()
		elapsed = s.elapsed.Millis()
		compensation = s.compensation.Millis()
	}
	s.eventBoundary(eventID, elapsed, compensation)
	if s.config.CollectStats {
		s.resetTimers()
	}
	return nil
}

func (s *Server) eventBoundary(eventID int, elapsed, compensation int32) {
	s.mu.Lock()
	if !s.shouldTransmitLocked(eventID) {
		s.mu.Unlock()
		return
	}
	conn, logger := s.conn, s.connLogger
	counts := append([]int32(nil), s.eventCounts...)
	filter, _ := s.filters.At(eventID)
	s.mu.Unlock()

	err := s.transmitStreams(conn)
	if err == nil {
		err = s.sendFrame(conn, func(f *protocol.Frame) { f.EventCount(counts) })
	}
	if err == nil {
		err = s.sendFrame(conn, func(f *protocol.Frame) {
			f.Event(protocol.EventRecord{ID: uint8(eventID), Elapsed: elapsed, Compensation: compensation})
		})
	}
	if err != nil {
		s.connectionFailed(conn, logger, fmt.Errorf("event %q: %w", s.config.Events[eventID], err))
		return
	}

	if filter.DelayMillis > 0 {
		s.clock.Sleep(time.Duration(filter.DelayMillis) * time.Millisecond)
	}
	if filter.Pause {
		s.update(func() {
			if !s.shutdownRequested {
				s.pauseNow = true
			}
		})
	}
	s.safepoint()
}

// TransmitStreams pushes the current state of every space to the
// monitor: the description of each space flagged changed, data and
// summary of each stream that has data, then each space's info and
// control bytes. Without a monitor it does nothing.
func (s *Server) TransmitStreams() error {
	s.boundaryMu.Lock()
	defer s.boundaryMu.Unlock()
	conn, logger := s.connection()
	if conn == nil {
		return nil
	}
	if err := s.transmitStreams(conn); err != nil {
		s.connectionFailed(conn, logger, err)
		return err
	}
	return nil
}

func (s *Server) transmitStreams(conn peer) error {
	for _, sp := range s.spaceList() {
		messages, err := sp.transmission(s.config.MaxMessageLength)
		if err != nil {
			return fmt.Errorf("encoding streams: %w", err)
		}
		for _, message := range messages {
			if err := conn.Send(message); err != nil {
				return fmt.Errorf("sending streams: %w", err)
			}
		}
	}
	return nil
}

// WaitConnected blocks until a monitor is being served, then runs one
// safepoint so a monitor that asked to pause at start stops the
// program before it proceeds.
func (s *Server) WaitConnected(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state == Serving {
			s.mu.Unlock()
			s.Safepoint()
			return nil
		}
		wake := s.wake
		s.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
