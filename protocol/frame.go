// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/wire"
)

// Frame markers bracket the command list of every frame. The transport
// already delimits messages, so the markers only guard against a
// desynchronized or foreign peer.
const (
	frameStartMarker uint32 = 0x48535452 // "HSTR"
	frameEndMarker   uint32 = 0x4853454e // "HSEN"
)

// Frame accumulates commands for one message:
//
//	start marker:u32, (code:u8 payload)*, End:u8, end marker:u32
//
// Build a frame with the command methods, then call Bytes once.
type Frame struct {
	writer   *wire.Writer
	commands int
	finished bool
}

// NewFrame starts a frame whose encoding may not exceed maxLength
// bytes (zero for unbounded).
func NewFrame(maxLength int) *Frame {
	writer := wire.NewWriter(maxLength)
	writer.WriteUint32(frameStartMarker)
	return &Frame{writer: writer}
}

// Len returns the number of commands added.
func (f *Frame) Len() int { return f.commands }

// Command appends code and returns the writer for its payload. The
// typed methods below cover every command; Command exists for tests
// and for payloads built elsewhere.
func (f *Frame) Command(code Code) *wire.Writer {
	if f.finished {
		panic("protocol: command added to a finished frame")
	}
	f.writer.WriteUint8(uint8(code))
	f.commands++
	return f.writer
}

// Bytes terminates the frame and returns its encoding, or the first
// encoding error.
func (f *Frame) Bytes() ([]byte, error) {
	if !f.finished {
		f.writer.WriteUint8(uint8(End))
		f.writer.WriteUint32(frameEndMarker)
		f.finished = true
	}
	if err := f.writer.Err(); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return f.writer.Bytes(), nil
}

// Signal appends a command without payload (PauseReq, Pause,
// Restart, PlayOne, ShutdownReq, Shutdown).
func (f *Frame) Signal(code Code) { f.Command(code) }

// Stream appends the first count values of stream.
func (f *Frame) Stream(spaceID uint8, stream *space.Stream, count int) {
	w := f.Command(Stream)
	w.WriteUint8(spaceID)
	w.WriteUint8(stream.ID)
	stream.WriteData(w, count)
}

// Event appends an event boundary report.
func (f *Frame) Event(event EventRecord) {
	w := f.Command(Event)
	w.WriteUint8(event.ID)
	w.WriteInt32(event.Elapsed)
	w.WriteInt32(event.Compensation)
}

// Control appends a space's control bytes.
func (f *Frame) Control(spaceID uint8, control []uint8) {
	w := f.Command(Control)
	w.WriteUint8(spaceID)
	w.WriteUint8Array(control)
}

// EventFilters appends the full filter table.
func (f *Frame) EventFilters(filters *EventFilters) {
	filters.encode(f.Command(EventFiltersCmd))
}

// EventCount appends per-event occurrence counts.
func (f *Frame) EventCount(counts []int32) {
	f.Command(EventCount).WriteInt32Array(counts)
}

// Summary appends a stream summary; nil encodes "no summary".
func (f *Frame) Summary(spaceID, streamID uint8, summary []int32) {
	w := f.Command(Summary)
	w.WriteUint8(spaceID)
	w.WriteUint8(streamID)
	w.WriteInt32Array(summary)
}

// SpaceInfo appends a space's free-text info.
func (f *Frame) SpaceInfo(spaceID uint8, info string) {
	w := f.Command(SpaceInfo)
	w.WriteUint8(spaceID)
	w.WriteString(info)
}

// Space appends a full space description.
func (f *Frame) Space(s *space.Space) {
	s.Encode(f.Command(Space))
}

// EventRecord is the payload of an Event command.
type EventRecord struct {
	ID           uint8
	Elapsed      int32
	Compensation int32
}

// DecodeEvent reads an Event payload.
func DecodeEvent(r *wire.Reader) EventRecord {
	return EventRecord{ID: r.ReadUint8(), Elapsed: r.ReadInt32(), Compensation: r.ReadInt32()}
}

// DecodeStreamHeader reads the space and stream IDs that precede a
// Stream payload's typed array. The caller decodes the array with the
// addressed stream's Stream.ReadData.
func DecodeStreamHeader(r *wire.Reader) (spaceID, streamID uint8) {
	return r.ReadUint8(), r.ReadUint8()
}

// DecodeControl reads a Control payload.
func DecodeControl(r *wire.Reader) (spaceID uint8, control []uint8) {
	spaceID = r.ReadUint8()
	control = r.ReadUint8Array()
	if r.Err() == nil && control == nil {
		r.Fail(fmt.Errorf("%w: control array missing for space %d", ErrMalformedPayload, spaceID))
	}
	return spaceID, control
}

// DecodeEventCount reads an EventCount payload.
func DecodeEventCount(r *wire.Reader) []int32 {
	return r.ReadInt32Array()
}

// DecodeSummary reads a Summary payload.
func DecodeSummary(r *wire.Reader) (spaceID, streamID uint8, summary []int32) {
	return r.ReadUint8(), r.ReadUint8(), r.ReadInt32Array()
}

// DecodeSpaceInfo reads a SpaceInfo payload.
func DecodeSpaceInfo(r *wire.Reader) (spaceID uint8, info string) {
	return r.ReadUint8(), r.ReadString()
}
