// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
)

// ServerSpace is the program-side view of a space. The instrumented
// program mutates it between event boundaries; TransmitStreams reads
// it under the same lock, so a monitor never sees a half-applied
// update of a single call.
type ServerSpace struct {
	mu          sync.Mutex
	space       *space.Space
	changed     bool
	tilesToSend int
}

// NewServerSpace returns a space with tileCount tiles, every tile
// Used, and no streams. title and blockInfo label the space in
// monitors.
func NewServerSpace(name, driverName string, tileCount int, title, blockInfo string, main bool) *ServerSpace {
	s := space.New(name, driverName, tileCount, main)
	s.Title = title
	s.BlockInfo = blockInfo
	return &ServerSpace{space: s}
}

// ID returns the space's ID, assigned by Server.AddServerSpace.
func (s *ServerSpace) ID() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.ID
}

// Name returns the space's name.
func (s *ServerSpace) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.Name
}

// TileCount returns the current number of tiles.
func (s *ServerSpace) TileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.TileCount
}

// SetUnusedLabel changes the label monitors show for Unused tiles.
func (s *ServerSpace) SetUnusedLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space.UnusedLabel = label
}

// AddStream appends stream and returns its ID. The stream's summary is
// sized for its presentation and zeroed; its data stays unset until
// one of the data setters runs.
func (s *ServerSpace) AddStream(stream *space.Stream) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream.Summary == nil {
		stream.Summary = make([]int32, stream.SummaryLength())
	}
	return s.space.AddStream(stream)
}

func (s *ServerSpace) typedStreamLocked(id uint8, dataType space.DataType, length int) (*space.Stream, error) {
	stream, err := s.space.Stream(id)
	if err != nil {
		return nil, err
	}
	if stream.DataType != dataType {
		return nil, fmt.Errorf("space %q stream %q holds %s data, not %s",
			s.space.Name, stream.Name, stream.DataType, dataType)
	}
	if length != s.space.TileCount {
		return nil, fmt.Errorf("%w: space %q stream %q given %d values for %d tiles",
			space.ErrOutOfRange, s.space.Name, stream.Name, length, s.space.TileCount)
	}
	return stream, nil
}

// SetBytes replaces a byte stream's data. values must have one entry
// per tile and is copied.
func (s *ServerSpace) SetBytes(streamID uint8, values []uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.typedStreamLocked(streamID, space.DataByte, len(values))
	if err != nil {
		return err
	}
	stream.Bytes = append(make([]uint8, 0, len(values)), values...)
	return nil
}

// SetShorts replaces a short stream's data.
func (s *ServerSpace) SetShorts(streamID uint8, values []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.typedStreamLocked(streamID, space.DataShort, len(values))
	if err != nil {
		return err
	}
	stream.Shorts = append(make([]int16, 0, len(values)), values...)
	return nil
}

// SetInts replaces an int stream's data.
func (s *ServerSpace) SetInts(streamID uint8, values []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.typedStreamLocked(streamID, space.DataInt, len(values))
	if err != nil {
		return err
	}
	stream.Ints = append(make([]int32, 0, len(values)), values...)
	return nil
}

// SetValue sets one tile of a stream, allocating the stream's data
// first if it has none.
func (s *ServerSpace) SetValue(streamID uint8, tile int, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.space.Stream(streamID)
	if err != nil {
		return err
	}
	if !stream.HasData() {
		stream.Allocate(s.space.TileCount)
	}
	return stream.SetValue(tile, value)
}

// AddValue adds delta to one tile of a stream.
func (s *ServerSpace) AddValue(streamID uint8, tile int, delta int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.space.Stream(streamID)
	if err != nil {
		return err
	}
	if !stream.HasData() {
		stream.Allocate(s.space.TileCount)
	}
	current, err := stream.Value(tile)
	if err != nil {
		return err
	}
	return stream.SetValue(tile, current+delta)
}

// AllocateData gives every stream one default value per tile.
func (s *ServerSpace) AllocateData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stream := range s.space.Streams {
		stream.Allocate(s.space.TileCount)
	}
}

// ResetData sets every tile of every stream with data back to the
// stream's default value.
func (s *ServerSpace) ResetData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stream := range s.space.Streams {
		if stream.HasData() {
			stream.Allocate(s.space.TileCount)
		}
	}
}

// SetSummary replaces a stream's summary. Its length must match the
// stream's presentation.
func (s *ServerSpace) SetSummary(streamID uint8, summary []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, err := s.space.Stream(streamID)
	if err != nil {
		return err
	}
	if want := stream.SummaryLength(); len(summary) != want {
		return fmt.Errorf("space %q stream %q: summary has %d values, %s presentation needs %d",
			s.space.Name, stream.Name, len(summary), stream.Presentation, want)
	}
	stream.Summary = append(make([]int32, 0, len(summary)), summary...)
	return nil
}

// SetSpaceInfo replaces the space's free-text info.
func (s *ServerSpace) SetSpaceInfo(info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space.Info = info
}

// SetTileName names a tile. Names travel with the space description,
// so call FlagChanged for the monitor to see them.
func (s *ServerSpace) SetTileName(tile int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.SetTileName(tile, name)
}

// ResetControl marks every tile Used.
func (s *ServerSpace) ResetControl() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space.ResetControl()
}

// SetControl applies tag to one tile. Background and Unused clear Used.
func (s *ServerSpace) SetControl(tag uint8, tile int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.SetControl(tag, tile)
}

// SetControlRange applies tag to count tiles starting at start.
func (s *ServerSpace) SetControlRange(tag uint8, start, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.SetControlRange(tag, start, count)
}

// Resize changes the tile count and flags the space changed so the
// next transmission carries the new description.
func (s *ServerSpace) Resize(tileCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.space.Resize(tileCount); err != nil {
		return err
	}
	s.tilesToSend = min(s.tilesToSend, tileCount)
	s.changed = true
	return nil
}

// FlagChanged makes the next TransmitStreams resend the full space
// description.
func (s *ServerSpace) FlagChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = true
}

// Changed reports whether the space description is pending
// retransmission.
func (s *ServerSpace) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// SetTilesToSend limits stream transmissions to the first count tiles.
// Zero sends every tile.
func (s *ServerSpace) SetTilesToSend(count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count < 0 || count > s.space.TileCount {
		return fmt.Errorf("%w: space %q tiles to send %d of %d",
			space.ErrOutOfRange, s.space.Name, count, s.space.TileCount)
	}
	s.tilesToSend = count
	return nil
}

// Snapshot returns a deep copy of the space.
func (s *ServerSpace) Snapshot() *space.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space.Clone()
}

func (s *ServerSpace) setID(id uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space.ID = id
}

// fullState encodes the space for the post-handshake snapshot and
// clears the changed flag, since the monitor is about to hold the
// current description.
func (s *ServerSpace) fullState(maxLength int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, err := protocol.EncodeSpaceMessage(s.space, maxLength)
	if err != nil {
		return nil, err
	}
	s.changed = false
	return message, nil
}

// transmission encodes one TransmitStreams pass for this space: the
// description if changed, data and summary for each stream with data,
// then info and control. Each command is its own message.
func (s *ServerSpace) transmission(maxLength int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages [][]byte
	add := func(build func(*protocol.Frame)) error {
		frame := protocol.NewFrame(maxLength)
		build(frame)
		message, err := frame.Bytes()
		if err != nil {
			return fmt.Errorf("space %d (%s): %w", s.space.ID, s.space.Name, err)
		}
		messages = append(messages, message)
		return nil
	}

	if s.changed {
		if err := add(func(f *protocol.Frame) { f.Space(s.space) }); err != nil {
			return nil, err
		}
	}
	for _, stream := range s.space.Streams {
		if !stream.HasData() {
			continue
		}
		count := stream.DataLen()
		if s.tilesToSend > 0 {
			count = min(count, s.tilesToSend)
		}
		if err := add(func(f *protocol.Frame) { f.Stream(s.space.ID, stream, count) }); err != nil {
			return nil, err
		}
		if err := add(func(f *protocol.Frame) { f.Summary(s.space.ID, stream.ID, stream.Summary) }); err != nil {
			return nil, err
		}
	}
	if err := add(func(f *protocol.Frame) { f.SpaceInfo(s.space.ID, s.space.Info) }); err != nil {
		return nil, err
	}
	if err := add(func(f *protocol.Frame) { f.Control(s.space.ID, s.space.Control) }); err != nil {
		return nil, err
	}
	s.changed = false
	return messages, nil
}
