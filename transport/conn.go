// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/heapscope/lib/netutil"
)

// DefaultMaxMessageLength bounds a single message body when the caller
// does not choose a limit.
const DefaultMaxMessageLength = 4 * 1024 * 1024

// lengthPrefixSize is the big-endian uint32 that precedes every body.
const lengthPrefixSize = 4

var (
	// ErrTerminated is returned by Receive and Send once the peer has
	// gone away or the connection was closed. HasTerminated reports
	// true from then on.
	ErrTerminated = errors.New("transport: connection terminated")

	// ErrMessageTooLarge is returned when a message exceeds the
	// connection's maximum length. Receiving one terminates the
	// connection because the stream can no longer be resynchronized.
	ErrMessageTooLarge = errors.New("transport: message too large")
)

// Conn carries whole messages over a byte stream. Each message is a
// 4-byte big-endian length followed by the body. Receive is intended
// for a single reader goroutine; Send may be called from any number of
// goroutines.
type Conn struct {
	conn      net.Conn
	reader    *bufio.Reader
	maxLength int

	sendMutex   sync.Mutex
	terminated  atomic.Bool
	compression atomic.Uint32
	closeOnce   sync.Once
}

// NewConn wraps conn. A maxLength of zero or less selects
// DefaultMaxMessageLength.
func NewConn(conn net.Conn, maxLength int) *Conn {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Best effort: a full message fits in the kernel buffers.
		_ = tcp.SetReadBuffer(maxLength)
		_ = tcp.SetWriteBuffer(maxLength)
		_ = tcp.SetNoDelay(true)
	}
	return &Conn{
		conn:      conn,
		reader:    bufio.NewReaderSize(conn, 64*1024),
		maxLength: maxLength,
	}
}

// MaxMessageLength returns the largest message body this connection
// sends or accepts.
func (c *Conn) MaxMessageLength() int { return c.maxLength }

// RemoteAddress returns the peer's address.
func (c *Conn) RemoteAddress() string { return c.conn.RemoteAddr().String() }

// HasTerminated reports whether the connection has failed or been
// closed. It never blocks.
func (c *Conn) HasTerminated() bool { return c.terminated.Load() }

// SetCompression activates codec for every message sent and received
// from now on. Both peers switch at the same point in the exchange,
// right after the handshake.
func (c *Conn) SetCompression(codec Compression) error {
	if !codec.Valid() {
		return fmt.Errorf("transport: unknown compression %d", uint8(codec))
	}
	c.compression.Store(uint32(codec))
	return nil
}

// Compression returns the active codec.
func (c *Conn) Compression() Compression { return Compression(c.compression.Load()) }

// Receive blocks until one whole message arrives and returns its body.
// Any failure terminates the connection.
func (c *Conn) Receive() ([]byte, error) {
	if c.terminated.Load() {
		return nil, ErrTerminated
	}
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.reader, prefix[:]); err != nil {
		return nil, c.fail("reading message length", err)
	}
	length := binary.BigEndian.Uint32(prefix[:])
	limit := c.maxLength
	if c.Compression() != CompressionNone {
		limit += compressedHeaderLength
	}
	if uint64(length) > uint64(limit) {
		return nil, c.fail("reading message", fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, length, limit))
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, c.fail("reading message body", err)
	}
	if c.Compression() == CompressionNone {
		return body, nil
	}
	message, err := decodeBody(body, c.maxLength)
	if err != nil {
		return nil, c.fail("decompressing message", err)
	}
	return message, nil
}

// Send writes message as one framed message.
func (c *Conn) Send(message []byte) error {
	if len(message) > c.maxLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(message), c.maxLength)
	}
	body := message
	if codec := c.Compression(); codec != CompressionNone {
		var err error
		if body, err = encodeBody(message, codec); err != nil {
			return fmt.Errorf("compressing message: %w", err)
		}
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if c.terminated.Load() {
		return ErrTerminated
	}
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)
	if _, err := c.conn.Write(frame); err != nil {
		return c.fail("writing message", err)
	}
	return nil
}

// Close terminates the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.terminated.Store(true)
		err = c.conn.Close()
	})
	return err
}

// fail marks the connection terminated and closes it. Expected close
// errors (EOF, reset, broken pipe) and genuine faults both wrap
// ErrTerminated so callers need a single check.
func (c *Conn) fail(operation string, err error) error {
	c.terminated.Store(true)
	_ = c.Close()
	if netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("%w: %s: peer closed: %w", ErrTerminated, operation, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTerminated, operation, err)
}
