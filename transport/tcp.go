// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts monitor connections on a TCP address.
type TCPListener struct {
	listener  net.Listener
	maxLength int
}

// NewTCPListener listens on address (e.g., ":9000", or "127.0.0.1:0"
// for a random port). Accepted connections use maxLength as their
// message limit.
func NewTCPListener(address string, maxLength int) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &TCPListener{listener: listener, maxLength: maxLength}, nil
}

// Accept blocks until a peer connects or the listener is closed.
func (l *TCPListener) Accept() (*Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(conn, l.maxLength), nil
}

// Address returns the bound address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops accepting. A blocked Accept returns net.ErrClosed.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// TCPDialer connects to a listening instrumented program.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration

	// MaxMessageLength is the limit for the resulting Conn.
	MaxMessageLength int
}

// DialContext connects to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (*Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, d.MaxMessageLength), nil
}
