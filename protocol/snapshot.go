// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/wire"
)

// Full-state messages follow the handshake: one header message, then
// one message per space in ID order. They are bare encodings rather
// than command frames because their order is fixed.
const (
	headerMarker uint32 = 0x48534844 // "HSHD"
	spaceMarker  uint32 = 0x48535350 // "HSSP"
)

// MaxSpaces is the number of spaces one interpreter can carry; space
// IDs are a single byte in commands.
const MaxSpaces = 256

// Header describes the instrumented program.
type Header struct {
	Name        string
	GeneralInfo string
	SpaceCount  int
	Events      []string
}

// EncodeHeader returns the first full-state message.
func EncodeHeader(header Header, maxLength int) ([]byte, error) {
	if header.SpaceCount < 0 || header.SpaceCount > MaxSpaces {
		return nil, fmt.Errorf("%w: %d spaces", ErrOutOfRange, header.SpaceCount)
	}
	if len(header.Events) > 0xff {
		return nil, fmt.Errorf("%w: %d events exceeds 255", ErrOutOfRange, len(header.Events))
	}
	w := wire.NewWriter(maxLength)
	w.WriteUint32(headerMarker)
	w.WriteString(header.Name)
	w.WriteString(header.GeneralInfo)
	w.WriteUint16(uint16(header.SpaceCount))
	w.WriteUint16(uint16(len(header.Events)))
	for _, event := range header.Events {
		w.WriteString(event)
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	return w.Bytes(), nil
}

// DecodeHeader parses the first full-state message.
func DecodeHeader(message []byte) (Header, error) {
	r := wire.NewReader(message)
	if marker := r.ReadUint32(); r.Err() == nil && marker != headerMarker {
		return Header{}, fmt.Errorf("%w: bad header marker %#08x", ErrMalformedPayload, marker)
	}
	header := Header{
		Name:        r.ReadString(),
		GeneralInfo: r.ReadString(),
		SpaceCount:  int(r.ReadUint16()),
	}
	eventCount := int(r.ReadUint16())
	if r.Err() == nil && eventCount > 0 {
		header.Events = make([]string, 0, eventCount)
		for range eventCount {
			header.Events = append(header.Events, r.ReadString())
		}
	}
	if err := r.Finish(); err != nil {
		return Header{}, fmt.Errorf("decoding header: %w", asMalformed(err))
	}
	if header.SpaceCount > MaxSpaces {
		return Header{}, fmt.Errorf("%w: header declares %d spaces", ErrMalformedPayload, header.SpaceCount)
	}
	return header, nil
}

// EncodeSpaceMessage returns the full-state message for one space.
func EncodeSpaceMessage(s *space.Space, maxLength int) ([]byte, error) {
	w := wire.NewWriter(maxLength)
	w.WriteUint32(spaceMarker)
	s.Encode(w)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encoding space %d (%s): %w", s.ID, s.Name, err)
	}
	return w.Bytes(), nil
}

// DecodeSpaceMessage parses one full-state space message.
func DecodeSpaceMessage(message []byte) (*space.Space, error) {
	r := wire.NewReader(message)
	if marker := r.ReadUint32(); r.Err() == nil && marker != spaceMarker {
		return nil, fmt.Errorf("%w: bad space marker %#08x", ErrMalformedPayload, marker)
	}
	decoded, err := space.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding space: %w", asMalformed(err))
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decoding space %d: %w", decoded.ID, asMalformed(err))
	}
	return decoded, nil
}

// Receiver supplies whole messages.
type Receiver interface {
	Receive() ([]byte, error)
}

// ReceiveSnapshot reads the header and every space message from conn,
// wrapping each decoded space with factory. Space IDs must arrive as
// 0, 1, 2, and so on.
func ReceiveSnapshot[S any](conn Receiver, factory space.Factory[S]) (Header, []S, error) {
	message, err := conn.Receive()
	if err != nil {
		return Header{}, nil, fmt.Errorf("receiving header: %w", err)
	}
	header, err := DecodeHeader(message)
	if err != nil {
		return Header{}, nil, err
	}
	spaces := make([]S, 0, header.SpaceCount)
	for index := range header.SpaceCount {
		message, err := conn.Receive()
		if err != nil {
			return Header{}, nil, fmt.Errorf("receiving space %d: %w", index, err)
		}
		decoded, err := DecodeSpaceMessage(message)
		if err != nil {
			return Header{}, nil, err
		}
		if int(decoded.ID) != index {
			return Header{}, nil, fmt.Errorf("%w: space %d arrived in position %d", ErrMalformedPayload, decoded.ID, index)
		}
		wrapped, err := factory.FromDecoded(decoded)
		if err != nil {
			return Header{}, nil, fmt.Errorf("building space %d: %w", index, err)
		}
		spaces = append(spaces, wrapped)
	}
	return header, spaces, nil
}
