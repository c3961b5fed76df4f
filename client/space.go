// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/wire"
)

// ClientSpace is the monitor's mirror of one server space. The receive
// loop writes it; any goroutine may read it through Snapshot and the
// accessors.
type ClientSpace struct {
	mu    sync.RWMutex
	space *space.Space
}

// spaceFactory wraps decoded full-state spaces for the client.
var spaceFactory = space.FactoryFunc[*ClientSpace](newClientSpace)

func newClientSpace(decoded *space.Space) (*ClientSpace, error) {
	if err := decoded.Validate(); err != nil {
		return nil, err
	}
	return &ClientSpace{space: decoded}, nil
}

// ID returns the space ID.
func (s *ClientSpace) ID() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space.ID
}

// Name returns the space name.
func (s *ClientSpace) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space.Name
}

// TileCount returns the number of tiles.
func (s *ClientSpace) TileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space.TileCount
}

// Snapshot returns a deep copy of the mirrored space.
func (s *ClientSpace) Snapshot() *space.Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space.Clone()
}

// Digest returns the BLAKE3 digest of the mirrored space.
func (s *ClientSpace) Digest() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space.Digest()
}

func (s *ClientSpace) replace(decoded *space.Space) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space = decoded
}

func (s *ClientSpace) readStream(streamID uint8, r *wire.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.space.Stream(streamID)
	if err != nil {
		return err
	}
	return stream.ReadData(r, s.space.TileCount)
}

func (s *ClientSpace) setSummary(streamID uint8, summary []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.space.Stream(streamID)
	if err != nil {
		return err
	}
	stream.Summary = summary
	return nil
}

func (s *ClientSpace) setControl(control []uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(control) != s.space.TileCount {
		return fmt.Errorf("%w: space %q control has %d entries for %d tiles",
			protocol.ErrMalformedPayload, s.space.Name, len(control), s.space.TileCount)
	}
	s.space.Control = control
	return nil
}

func (s *ClientSpace) setInfo(info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space.Info = info
}

func (s *ClientSpace) calcMaxima() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space.CalcMaxima()
}
