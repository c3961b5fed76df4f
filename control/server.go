// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/heapscope/lib/codec"
	"github.com/bureau-foundation/heapscope/protocol"
)

// Limits applied when the matching Options field is zero.
const (
	DefaultMaxRequestSize = 1 << 20
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Options tunes a Server.
type Options struct {
	// Logger receives accept failures and failed actions. Nil
	// discards.
	Logger *slog.Logger

	// MaxRequestSize bounds one encoded request in bytes.
	MaxRequestSize int64

	// ReadTimeout bounds how long a caller may take to send its
	// request after connecting. WriteTimeout bounds the response.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Request is the decoded form of every control request. Each action
// reads the fields it needs and ignores the rest.
type Request struct {
	Action  string                  `cbor:"action"`
	ID      *uint8                  `cbor:"id,omitempty"`
	Filters []protocol.FilterUpdate `cbor:"filters,omitempty"`
}

// Response is the envelope of every control socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// ErrRequestTooLarge is reported to callers whose request exceeds
// Options.MaxRequestSize.
var ErrRequestTooLarge = errors.New("request too large")

// Server answers control requests for one monitor session on a Unix
// socket. Each connection carries one request and one response.
type Server struct {
	socketPath string
	monitor    Monitor
	options    Options

	// commands serializes the actions that send to the session.
	commands sync.Mutex
}

// NewServer returns a server for m that will listen on socketPath.
func NewServer(socketPath string, m Monitor, options Options) *Server {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.MaxRequestSize <= 0 {
		options.MaxRequestSize = DefaultMaxRequestSize
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultReadTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{socketPath: socketPath, monitor: m, options: options}
}

// Serve accepts connections until ctx is done, then waits for the
// requests in flight. A stale socket file is replaced. The socket is
// readable and writable by the owner only, and is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.socketPath, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	listener.SetUnlinkOnClose(true)
	defer listener.Close()
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting %s: %w", s.socketPath, err)
	}
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.options.Logger.Info("control socket listening",
		"path", s.socketPath,
		"program", s.monitor.Name(),
		"max_request", humanize.IBytes(uint64(s.options.MaxRequestSize)),
	)

	var inFlight sync.WaitGroup
	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.options.Logger.Error("control accept failed", "error", err)
			continue
		}
		inFlight.Go(func() { s.serveConn(conn) })
	}
	inFlight.Wait()
	return nil
}

func (s *Server) serveConn(conn *net.UnixConn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
	request, err := s.readRequest(conn)
	if errors.Is(err, io.EOF) {
		return
	}
	response := s.respond(request, err)

	conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.options.Logger.Debug("writing control response", "action", request.Action, "error", err)
	}
}

// readRequest decodes one request of at most MaxRequestSize bytes.
// CBOR is self-delimiting, so the caller need not close its side.
func (s *Server) readRequest(conn io.Reader) (*Request, error) {
	limited := &io.LimitedReader{R: conn, N: s.options.MaxRequestSize}
	var raw codec.RawMessage
	if err := codec.NewDecoder(limited).Decode(&raw); err != nil {
		if limited.N == 0 {
			return &Request{}, fmt.Errorf("%w: limit is %s", ErrRequestTooLarge,
				humanize.IBytes(uint64(s.options.MaxRequestSize)))
		}
		return &Request{}, err
	}
	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return &request, err
	}
	return &request, nil
}

// respond runs request's action and builds the response. readErr is
// the error from reading the request, if any.
func (s *Server) respond(request *Request, readErr error) Response {
	if readErr != nil {
		return Response{Error: fmt.Sprintf("invalid request: %v", readErr)}
	}
	if request.Action == "" {
		return Response{Error: "missing required field: action"}
	}
	act, ok := actions[request.Action]
	if !ok {
		return Response{Error: fmt.Sprintf("unknown action %q", request.Action)}
	}

	if act.command {
		s.commands.Lock()
		defer s.commands.Unlock()
	}
	result, err := act.run(s.monitor, request)
	if err != nil {
		s.options.Logger.Debug("control action failed", "action", request.Action, "error", err)
		return Response{Error: err.Error()}
	}
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			return Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)}
		}
		response.Data = data
	}
	return response
}
