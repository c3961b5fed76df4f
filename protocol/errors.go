// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/wire"
)

var (
	// ErrProtocolViolation is returned when a peer sends a command the
	// receiving side never accepts, or an unknown command code. The
	// connection cannot continue.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrMalformedPayload is returned when a frame or payload cannot
	// be decoded or is inconsistent with the receiver's state.
	ErrMalformedPayload = space.ErrMalformed

	// ErrOutOfRange is returned for a space, stream, tile, or event ID
	// the receiver does not know.
	ErrOutOfRange = space.ErrOutOfRange

	// ErrHandshake is returned when the boot exchange fails.
	ErrHandshake = errors.New("handshake failed")
)

// CommandError records which command failed and on which side.
type CommandError struct {
	Side string
	Code Code
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: command %s: %v", e.Side, e.Code, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// asMalformed folds codec-level decode errors into ErrMalformedPayload
// so callers classify every decoding failure with one sentinel.
func asMalformed(err error) error {
	if err == nil || errors.Is(err, ErrMalformedPayload) {
		return err
	}
	if errors.Is(err, wire.ErrShortBuffer) || errors.Is(err, wire.ErrInvalidLength) ||
		errors.Is(err, wire.ErrTrailingBytes) {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return err
}
