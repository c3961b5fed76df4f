// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/heapscope/transport"
	"github.com/bureau-foundation/heapscope/wire"
)

// Boot payload prefix: a magic string and an endianness probe, written
// by both peers.
const (
	bootMagic      = "HSCOPE01"
	bootEndianness = int32(1)
)

// MessageConn is the slice of transport.Conn the handshake needs.
type MessageConn interface {
	Send(message []byte) error
	Receive() ([]byte, error)
}

// BootRequest is what the connecting monitor sends first.
type BootRequest struct {
	// PauseAtStart asks the server to pause at its first safepoint.
	PauseAtStart bool

	// Compression is the codec the monitor would like to use.
	Compression transport.Compression
}

// BootReply is the server's answer.
type BootReply struct {
	// Name identifies the instrumented program.
	Name string

	// Compression is the codec both sides switch to once the
	// handshake completes; CompressionNone when the server declined.
	Compression transport.Compression
}

// ClientHandshake sends request and waits for the server's reply. Any
// deviation from a single well-formed Boot frame fails with
// ErrHandshake. The caller switches conn to reply.Compression.
func ClientHandshake(conn MessageConn, request BootRequest) (BootReply, error) {
	message, err := encodeBoot(func(w *wire.Writer) {
		w.WriteBool(request.PauseAtStart)
		w.WriteUint8(uint8(request.Compression))
	})
	if err != nil {
		return BootReply{}, err
	}
	if err := conn.Send(message); err != nil {
		return BootReply{}, fmt.Errorf("%w: sending boot request: %w", ErrHandshake, err)
	}
	response, err := conn.Receive()
	if err != nil {
		return BootReply{}, fmt.Errorf("%w: receiving boot reply: %w", ErrHandshake, err)
	}
	var reply BootReply
	err = decodeBoot("client", response, func(r *wire.Reader) {
		reply.Name = r.ReadString()
		reply.Compression = transport.Compression(r.ReadUint8())
	})
	if err != nil {
		return BootReply{}, err
	}
	if !reply.Compression.Valid() {
		return BootReply{}, fmt.Errorf("%w: server selected unknown compression %d", ErrHandshake, uint8(reply.Compression))
	}
	return reply, nil
}

// ServerHandshake waits for the monitor's request and replies with
// name and the codec chosen by negotiate. The caller switches conn to
// the returned reply's Compression.
func ServerHandshake(conn MessageConn, name string, negotiate func(requested transport.Compression) transport.Compression) (BootRequest, BootReply, error) {
	message, err := conn.Receive()
	if err != nil {
		return BootRequest{}, BootReply{}, fmt.Errorf("%w: receiving boot request: %w", ErrHandshake, err)
	}
	var request BootRequest
	err = decodeBoot("server", message, func(r *wire.Reader) {
		request.PauseAtStart = r.ReadBool()
		request.Compression = transport.Compression(r.ReadUint8())
	})
	if err != nil {
		return BootRequest{}, BootReply{}, err
	}

	reply := BootReply{Name: name, Compression: transport.CompressionNone}
	if request.Compression.Valid() && negotiate != nil {
		reply.Compression = negotiate(request.Compression)
	}
	response, err := encodeBoot(func(w *wire.Writer) {
		w.WriteString(reply.Name)
		w.WriteUint8(uint8(reply.Compression))
	})
	if err != nil {
		return BootRequest{}, BootReply{}, err
	}
	if err := conn.Send(response); err != nil {
		return BootRequest{}, BootReply{}, fmt.Errorf("%w: sending boot reply: %w", ErrHandshake, err)
	}
	return request, reply, nil
}

func encodeBoot(body func(*wire.Writer)) ([]byte, error) {
	frame := NewFrame(0)
	w := frame.Command(Boot)
	w.WriteString(bootMagic)
	w.WriteInt32(bootEndianness)
	body(w)
	return frame.Bytes()
}

// decodeBoot accepts exactly one Boot command with a valid prefix.
// Every other command is a protocol violation.
func decodeBoot(side string, message []byte, body func(*wire.Reader)) error {
	dispatcher := NewDispatcher(side + " handshake")
	seen := false
	dispatcher.Handle(Boot, func(r *wire.Reader) error {
		if seen {
			return fmt.Errorf("%w: repeated %s", ErrProtocolViolation, Boot)
		}
		magic := r.ReadString()
		endianness := r.ReadInt32()
		if r.Err() != nil {
			return nil
		}
		if magic != bootMagic {
			return fmt.Errorf("%w: bad magic %q", ErrMalformedPayload, magic)
		}
		if endianness != bootEndianness {
			return fmt.Errorf("%w: endianness probe %#x", ErrMalformedPayload, endianness)
		}
		body(r)
		seen = true
		return nil
	})
	if _, err := dispatcher.Execute(message); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if !seen {
		return fmt.Errorf("%w: no %s command in first frame", ErrHandshake, Boot)
	}
	return nil
}
