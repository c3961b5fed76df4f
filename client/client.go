// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/transport"
	"github.com/bureau-foundation/heapscope/wire"
)

// DefaultDialTimeout bounds connection establishment when Options
// leaves DialTimeout zero.
const DefaultDialTimeout = 10 * time.Second

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("client: receive loop already running")

// Options configures Connect.
type Options struct {
	// PauseAtStart asks the server to pause at its first safepoint.
	PauseAtStart bool

	// Compression is the codec requested in the handshake. The server
	// may decline and fall back to none.
	Compression transport.Compression

	// MaxMessageLength bounds messages in both directions. Zero means
	// transport.DefaultMaxMessageLength.
	MaxMessageLength int

	// DialTimeout bounds connection establishment. Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// Dialer opens the connection. Nil means TCP.
	Dialer transport.Dialer

	// Logger receives connection logging. Nil discards.
	Logger *slog.Logger
}

// Client is the monitor-side interpreter. Connect performs the
// handshake and receives the full state; Run then applies the server's
// command stream to the mirrored spaces and notifies listeners.
type Client struct {
	conn        *transport.Conn
	logger      *slog.Logger
	header      protocol.Header
	compression transport.Compression
	dispatcher  *protocol.Dispatcher
	maxLength   int

	// mu guards the space list and the client-side protocol state.
	// Individual spaces carry their own locks.
	mu          sync.Mutex
	spaces      []*ClientSpace
	eventCounts []int32
	filters     *protocol.EventFilters
	paused      bool

	running               atomic.Bool
	terminated            atomic.Bool
	eventListenersEnabled atomic.Bool

	listeners listeners
}

// Connect dials address, performs the handshake, and receives the
// server's full state. ctx bounds the whole setup; once Connect
// returns, the connection lives until Run returns or Close is called.
func Connect(ctx context.Context, address string, options Options) (*Client, error) {
	if !options.Compression.Valid() {
		return nil, fmt.Errorf("client: unknown compression %d", uint8(options.Compression))
	}
	if options.DialTimeout <= 0 {
		options.DialTimeout = DefaultDialTimeout
	}
	if options.MaxMessageLength <= 0 {
		options.MaxMessageLength = transport.DefaultMaxMessageLength
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	dialer := options.Dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: options.DialTimeout, MaxMessageLength: options.MaxMessageLength}
	}

	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	c, err := newClient(conn, options)
	if !stop() || err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connecting to %s: %w", address, ctx.Err())
		}
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	return c, nil
}

func newClient(conn *transport.Conn, options Options) (*Client, error) {
	reply, err := protocol.ClientHandshake(conn, protocol.BootRequest{
		PauseAtStart: options.PauseAtStart,
		Compression:  options.Compression,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.SetCompression(reply.Compression); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrHandshake, err)
	}
	header, spaces, err := protocol.ReceiveSnapshot[*ClientSpace](conn, spaceFactory)
	if err != nil {
		return nil, fmt.Errorf("receiving full state: %w", err)
	}

	logger := options.Logger.With(
		"connection", uuid.NewString(),
		"remote", conn.RemoteAddress(),
		"program", header.Name,
	)
	c := &Client{
		conn:        conn,
		logger:      logger,
		header:      header,
		compression: reply.Compression,
		maxLength:   options.MaxMessageLength,
		spaces:      spaces,
		eventCounts: make([]int32, len(header.Events)),
		filters:     protocol.NewEventFilters(len(header.Events)),
	}
	c.eventListenersEnabled.Store(true)
	c.dispatcher = c.newDispatcher()
	logger.Info("connected to server",
		"spaces", len(spaces),
		"events", len(header.Events),
		"compression", reply.Compression.String(),
	)
	return c, nil
}

// newDispatcher installs the commands a server may send. Everything
// else is a protocol violation.
func (c *Client) newDispatcher() *protocol.Dispatcher {
	d := protocol.NewDispatcher("client")
	d.Handle(protocol.Pause, func(*wire.Reader) error {
		c.mu.Lock()
		c.paused = true
		c.mu.Unlock()
		c.logger.Debug("server paused")
		c.firePause()
		return nil
	})
	d.Handle(protocol.Shutdown, func(*wire.Reader) error {
		c.terminated.Store(true)
		c.logger.Info("server shut down the session")
		return nil
	})
	d.Handle(protocol.Stream, func(r *wire.Reader) error {
		spaceID, streamID := protocol.DecodeStreamHeader(r)
		if r.Err() != nil {
			return nil
		}
		sp, err := c.Space(spaceID)
		if err != nil {
			return err
		}
		return sp.readStream(streamID, r)
	})
	d.Handle(protocol.Summary, func(r *wire.Reader) error {
		spaceID, streamID, summary := protocol.DecodeSummary(r)
		if r.Err() != nil {
			return nil
		}
		sp, err := c.Space(spaceID)
		if err != nil {
			return err
		}
		return sp.setSummary(streamID, summary)
	})
	d.Handle(protocol.Control, func(r *wire.Reader) error {
		spaceID, control := protocol.DecodeControl(r)
		if r.Err() != nil {
			return nil
		}
		sp, err := c.Space(spaceID)
		if err != nil {
			return err
		}
		return sp.setControl(control)
	})
	d.Handle(protocol.SpaceInfo, func(r *wire.Reader) error {
		spaceID, info := protocol.DecodeSpaceInfo(r)
		if r.Err() != nil {
			return nil
		}
		sp, err := c.Space(spaceID)
		if err != nil {
			return err
		}
		sp.setInfo(info)
		return nil
	})
	d.Handle(protocol.Space, func(r *wire.Reader) error {
		decoded, err := space.Decode(r)
		if err != nil {
			return err
		}
		sp, err := c.putSpace(decoded)
		if err != nil {
			return err
		}
		c.fireSpace(sp)
		return nil
	})
	d.Handle(protocol.EventCount, func(r *wire.Reader) error {
		counts := protocol.DecodeEventCount(r)
		if r.Err() != nil {
			return nil
		}
		if len(counts) != len(c.header.Events) {
			return fmt.Errorf("%w: %d event counts for %d events",
				protocol.ErrMalformedPayload, len(counts), len(c.header.Events))
		}
		c.mu.Lock()
		c.eventCounts = counts
		c.mu.Unlock()
		c.fireEventCount(counts)
		return nil
	})
	d.Handle(protocol.Event, func(r *wire.Reader) error {
		event := protocol.DecodeEvent(r)
		if r.Err() != nil {
			return nil
		}
		if int(event.ID) >= len(c.header.Events) {
			return fmt.Errorf("%w: event %d of %d", protocol.ErrOutOfRange, event.ID, len(c.header.Events))
		}
		if !c.eventListenersEnabled.Load() {
			return nil
		}
		for _, sp := range c.Spaces() {
			sp.calcMaxima()
		}
		c.fireEvent(event)
		return nil
	})
	return d
}

// putSpace installs a space received after the full state: it
// replaces the mirror of an existing ID in place, or appends the next
// ID for a space the server registered since.
func (c *Client) putSpace(decoded *space.Space) (*ClientSpace, error) {
	if err := decoded.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := int(decoded.ID)
	switch {
	case id < len(c.spaces):
		c.spaces[id].replace(decoded)
		return c.spaces[id], nil
	case id == len(c.spaces):
		sp := &ClientSpace{space: decoded}
		c.spaces = append(c.spaces, sp)
		c.logger.Info("server added space", "space", decoded.Name, "id", id)
		return sp, nil
	default:
		return nil, fmt.Errorf("%w: space %d with %d spaces known", protocol.ErrOutOfRange, id, len(c.spaces))
	}
}

// Run receives and executes frames until the server shuts the session
// down (returns nil), the connection fails, a frame cannot be executed,
// or ctx is cancelled. Disconnect listeners run before Run returns and
// the connection is closed either way.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	err := c.receiveLoop(ctx)
	stop()
	_ = c.conn.Close()
	if err != nil {
		c.logger.Info("receive loop ended", "error", err)
	}
	c.fireDisconnect(err)
	return err
}

func (c *Client) receiveLoop(ctx context.Context) error {
	for !c.conn.HasTerminated() {
		message, err := c.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receiving: %w", err)
		}
		if _, err := c.dispatcher.Execute(message); err != nil {
			return err
		}
		if c.terminated.Load() {
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return transport.ErrTerminated
}

// Close terminates the connection. Run returns soon after.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) send(build func(*protocol.Frame)) error {
	frame := protocol.NewFrame(c.maxLength)
	build(frame)
	message, err := frame.Bytes()
	if err != nil {
		return err
	}
	return c.conn.Send(message)
}

func (c *Client) signal(code protocol.Code) error {
	if err := c.send(func(f *protocol.Frame) { f.Signal(code) }); err != nil {
		return fmt.Errorf("sending %s: %w", code, err)
	}
	return nil
}

// SendPauseReq asks the server to pause at its next safepoint.
func (c *Client) SendPauseReq() error { return c.signal(protocol.PauseReq) }

// SendRestart resumes a paused server.
func (c *Client) SendRestart() error {
	if err := c.signal(protocol.Restart); err != nil {
		return err
	}
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	return nil
}

// SendPlayOne lets a paused server run to its next safepoint. The
// server stays paused.
func (c *Client) SendPlayOne() error { return c.signal(protocol.PlayOne) }

// SendShutdownReq asks the server to end the session. Run returns nil
// once the server's SHUTDOWN arrives.
func (c *Client) SendShutdownReq() error { return c.signal(protocol.ShutdownReq) }

// SendEventFilters replaces the server's event filters. filters must
// cover exactly the server's events; a normalized copy becomes the
// client's view of the active filters.
func (c *Client) SendEventFilters(filters *protocol.EventFilters) error {
	if filters.Len() != len(c.header.Events) {
		return fmt.Errorf("%w: filters for %d events, server has %d",
			protocol.ErrOutOfRange, filters.Len(), len(c.header.Events))
	}
	normalized := filters.Clone()
	normalized.Normalize()
	if err := c.send(func(f *protocol.Frame) { f.EventFilters(normalized) }); err != nil {
		return fmt.Errorf("sending %s: %w", protocol.EventFiltersCmd, err)
	}
	c.mu.Lock()
	c.filters = normalized
	c.mu.Unlock()
	return nil
}

// Name returns the instrumented program's name.
func (c *Client) Name() string { return c.header.Name }

// GeneralInfo returns the server's free-text description.
func (c *Client) GeneralInfo() string { return c.header.GeneralInfo }

// Events returns the server's event names, indexed by event ID.
func (c *Client) Events() []string { return slices.Clone(c.header.Events) }

// Compression returns the negotiated codec.
func (c *Client) Compression() transport.Compression { return c.compression }

// RemoteAddress returns the server's address.
func (c *Client) RemoteAddress() string { return c.conn.RemoteAddress() }

// Terminated reports whether the server has shut the session down.
func (c *Client) Terminated() bool { return c.terminated.Load() }

// Paused reports whether the server last reported itself paused and
// no restart has been sent since.
func (c *Client) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// EventCounts returns a copy of the last counters the server sent.
func (c *Client) EventCounts() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.eventCounts)
}

// Filters returns a copy of the filters last sent to the server, or the
// defaults if none were sent.
func (c *Client) Filters() *protocol.EventFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.Clone()
}

// Space returns the mirror of space id.
func (c *Client) Space(id uint8) (*ClientSpace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(id) >= len(c.spaces) {
		return nil, fmt.Errorf("%w: space %d of %d", protocol.ErrOutOfRange, id, len(c.spaces))
	}
	return c.spaces[id], nil
}

// Spaces returns the mirrored spaces in ID order.
func (c *Client) Spaces() []*ClientSpace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.spaces)
}

// Snapshot returns deep copies of every mirrored space in ID order.
func (c *Client) Snapshot() []*space.Space {
	spaces := c.Spaces()
	snapshot := make([]*space.Space, len(spaces))
	for i, sp := range spaces {
		snapshot[i] = sp.Snapshot()
	}
	return snapshot
}
