// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/heapscope/wire"
)

// Handler executes one command. It decodes its payload from r and
// returns an error if the command cannot be applied. Payload read
// errors surface through r.Err and need not be returned.
type Handler func(r *wire.Reader) error

// Dispatcher maps command codes to handlers for one side of a
// connection. Every code starts out rejected: it fails with
// ErrProtocolViolation until a handler is installed with Handle.
type Dispatcher struct {
	side      string
	handlers  [CodeCount]Handler
	installed [CodeCount]bool
}

// NewDispatcher returns a dispatcher that rejects every command. side
// names the receiving side in errors ("server", "client").
func NewDispatcher(side string) *Dispatcher {
	d := &Dispatcher{side: side}
	for code := range CodeCount {
		d.Reject(Code(code))
	}
	return d
}

// Handle installs handler for code. Panics for End, for codes outside
// the table, and when code already has a handler.
func (d *Dispatcher) Handle(code Code, handler Handler) {
	if code == End || int(code) >= CodeCount {
		panic(fmt.Sprintf("protocol.Dispatcher: cannot handle %s", code))
	}
	if d.installed[code] {
		panic(fmt.Sprintf("protocol.Dispatcher: duplicate handler for %s on %s", code, d.side))
	}
	d.handlers[code] = handler
	d.installed[code] = true
}

// Reject installs the protocol-violation handler for code.
func (d *Dispatcher) Reject(code Code) {
	side := d.side
	d.handlers[code] = func(*wire.Reader) error {
		return fmt.Errorf("%w: %s never accepts %s", ErrProtocolViolation, side, code)
	}
	d.installed[code] = false
}

// Handles reports whether code has a handler other than the rejection.
func (d *Dispatcher) Handles(code Code) bool {
	return int(code) < CodeCount && d.installed[code]
}

// Execute runs every command in the frame in order and returns the
// number executed. It stops at the first failing command and returns
// a *CommandError wrapping ErrProtocolViolation, ErrMalformedPayload,
// ErrOutOfRange, or the handler's own error.
func (d *Dispatcher) Execute(message []byte) (int, error) {
	r := wire.NewReader(message)
	if marker := r.ReadUint32(); r.Err() == nil && marker != frameStartMarker {
		return 0, fmt.Errorf("%w: %s: bad frame start marker %#08x", ErrMalformedPayload, d.side, marker)
	}
	executed := 0
	for {
		raw := r.ReadUint8()
		if err := r.Err(); err != nil {
			return executed, fmt.Errorf("%s: reading command code: %w", d.side, asMalformed(err))
		}
		code := Code(raw)
		if code == End {
			break
		}
		if int(raw) >= CodeCount {
			return executed, &CommandError{Side: d.side, Code: code,
				Err: fmt.Errorf("%w: unknown command code %d", ErrProtocolViolation, raw)}
		}
		if err := d.handlers[code](r); err != nil {
			return executed, &CommandError{Side: d.side, Code: code, Err: asMalformed(err)}
		}
		if err := r.Err(); err != nil {
			return executed, &CommandError{Side: d.side, Code: code, Err: asMalformed(err)}
		}
		executed++
	}
	if marker := r.ReadUint32(); r.Err() == nil && marker != frameEndMarker {
		return executed, fmt.Errorf("%w: %s: bad frame end marker %#08x", ErrMalformedPayload, d.side, marker)
	}
	if err := r.Finish(); err != nil {
		return executed, fmt.Errorf("%s: %w", d.side, asMalformed(err))
	}
	return executed, nil
}
