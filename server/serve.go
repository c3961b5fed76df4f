// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/bureau-foundation/heapscope/lib/netutil"
	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/transport"
)

// Serve accepts monitors from listener and serves them one at a time
// until ctx is cancelled. It returns nil on cancellation and an error
// only when the listener itself fails. Serve closes listener.
func (s *Server) Serve(ctx context.Context, listener transport.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()
	defer listener.Close()

	for {
		s.logger.Info("waiting for monitor", "address", listener.Address())
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting monitor: %w", err)
		}
		s.serveConnection(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// serveConnection runs one monitor session: handshake, full state,
// then the command loop until the monitor leaves, breaks the protocol,
// or a requested shutdown has been delivered by a safepoint.
func (s *Server) serveConnection(ctx context.Context, conn *transport.Conn) {
	logger := s.logger.With("connection", uuid.NewString(), "remote", conn.RemoteAddress())
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	s.setState(Handshaking)
	request, reply, err := protocol.ServerHandshake(conn, s.config.Name, s.negotiate)
	if err != nil {
		logger.Warn("monitor handshake failed", "error", err)
		s.setState(Disconnected)
		return
	}
	if err := conn.SetCompression(reply.Compression); err != nil {
		logger.Error("activating compression", "error", err)
		s.setState(Disconnected)
		return
	}
	logger.Info("monitor connected",
		"pause_at_start", request.PauseAtStart,
		"compression", reply.Compression.String(),
	)

	if err := s.sendFullState(conn); err != nil {
		logger.Warn("sending full state", "error", err)
		s.setState(Disconnected)
		return
	}
	s.attach(conn, logger, request.PauseAtStart)

	if !s.receiveCommands(ctx, conn, logger) {
		return
	}

	logger.Info("shutdown requested, waiting for safepoint")
	s.waitShutdownSent(ctx, conn)
	s.detach(conn)
	logger.Info("monitor session ended")
}

// receiveCommands executes frames from conn until a shutdown request
// arrives (returns true) or the session ends otherwise (returns false,
// connection already detached).
func (s *Server) receiveCommands(ctx context.Context, conn *transport.Conn, logger *slog.Logger) bool {
	for {
		message, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				logger.Info("monitor disconnected")
				s.detach(conn)
				return false
			}
			s.connectionFailed(conn, logger, err)
			return false
		}
		if _, err := s.dispatcher.Execute(message); err != nil {
			level := slog.LevelError
			if errors.Is(err, protocol.ErrMalformedPayload) {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "closing connection after bad command", "error", err)
			s.detach(conn)
			return false
		}
		if s.shutdownPending() {
			return true
		}
	}
}

func (s *Server) shutdownPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownRequested
}

// waitShutdownSent blocks until a safepoint has delivered Shutdown on
// conn, the connection was dropped, or ctx ends.
func (s *Server) waitShutdownSent(ctx context.Context, conn *transport.Conn) {
	for {
		s.mu.Lock()
		if s.shutdownSent || s.conn != peer(conn) {
			s.mu.Unlock()
			return
		}
		wake := s.wake
		s.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return
		}
	}
}

// sendFullState sends the header and one message per space.
func (s *Server) sendFullState(conn *transport.Conn) error {
	spaces := s.spaceList()
	s.spacesMu.Lock()
	generalInfo := s.generalInfo
	s.spacesMu.Unlock()

	header, err := protocol.EncodeHeader(protocol.Header{
		Name:        s.config.Name,
		GeneralInfo: generalInfo,
		SpaceCount:  len(spaces),
		Events:      s.config.Events,
	}, s.config.MaxMessageLength)
	if err != nil {
		return err
	}
	if err := conn.Send(header); err != nil {
		return fmt.Errorf("sending header: %w", err)
	}
	for _, sp := range spaces {
		message, err := sp.fullState(s.config.MaxMessageLength)
		if err != nil {
			return err
		}
		if err := conn.Send(message); err != nil {
			return fmt.Errorf("sending space %d: %w", sp.ID(), err)
		}
	}
	return nil
}

// negotiate accepts the requested codec if the configuration allows it.
func (s *Server) negotiate(requested transport.Compression) transport.Compression {
	if slices.Contains(s.config.AllowedCompression, requested) {
		return requested
	}
	return transport.CompressionNone
}
