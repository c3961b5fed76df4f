// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Listener accepts inbound monitor connections for an instrumented
// program. The server interpreter's accept loop drives it.
type Listener interface {
	// Accept blocks until a peer connects. After Close it returns an
	// error wrapping net.ErrClosed.
	Accept() (*Conn, error)

	// Address returns the address monitors should dial.
	Address() string

	// Close stops accepting connections.
	Close() error
}

// Dialer opens connections to instrumented programs.
type Dialer interface {
	// DialContext connects to the program listening at address. The
	// address format matches what the program's Listener.Address
	// returns.
	DialContext(ctx context.Context, address string) (*Conn, error)
}
