// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/heapscope/wire"
)

var (
	// ErrOutOfRange is returned for space, stream, tile, or event
	// indices outside their collection.
	ErrOutOfRange = errors.New("index out of range")

	// ErrMalformed is returned when decoded content violates the data
	// model: array lengths inconsistent with the tile count, unknown
	// enum values, or missing required data.
	ErrMalformed = errors.New("malformed payload")
)

// DefaultUnusedLabel is the label shown for tiles marked Unused.
const DefaultUnusedLabel = "NOT USED"

// MaxStreams is the number of streams a space can hold; stream IDs are
// a single byte on the wire.
const MaxStreams = 256

// Space is a named partition of the monitored program's state, split
// into TileCount tiles, each described by one value per stream and a
// control byte.
//
// Invariants: Streams[i].ID == i; len(Control) == TileCount; TileNames
// is nil or has at least TileCount entries.
type Space struct {
	ID          uint8
	Name        string
	DriverName  string
	Title       string
	BlockInfo   string
	TileCount   int
	UnusedLabel string
	Main        bool
	Info        string
	Streams     []*Stream
	Control     []uint8
	TileNames   []string
}

// New returns a space with every tile marked Used and no streams.
func New(name, driverName string, tileCount int, main bool) *Space {
	s := &Space{
		Name:        name,
		DriverName:  driverName,
		TileCount:   tileCount,
		UnusedLabel: DefaultUnusedLabel,
		Main:        main,
		Control:     make([]uint8, tileCount),
	}
	s.ResetControl()
	return s
}

// FullName returns "name (driver)".
func (s *Space) FullName() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.DriverName)
}

// AddStream appends stream, assigning it the next stream ID.
func (s *Space) AddStream(stream *Stream) (uint8, error) {
	if len(s.Streams) >= MaxStreams {
		return 0, fmt.Errorf("%w: space %q already has %d streams", ErrOutOfRange, s.Name, len(s.Streams))
	}
	if err := stream.Validate(); err != nil {
		return 0, err
	}
	stream.ID = uint8(len(s.Streams))
	s.Streams = append(s.Streams, stream)
	return stream.ID, nil
}

// Stream returns the stream with the given ID.
func (s *Space) Stream(id uint8) (*Stream, error) {
	if int(id) >= len(s.Streams) {
		return nil, fmt.Errorf("%w: space %q stream %d of %d", ErrOutOfRange, s.Name, id, len(s.Streams))
	}
	return s.Streams[id], nil
}

// ResetControl marks every tile Used and nothing else.
func (s *Space) ResetControl() {
	for i := range s.Control {
		s.Control[i] = ControlUsed
	}
}

// SetControl applies tag to tile index with the ApplyControl rule.
func (s *Space) SetControl(tag uint8, index int) error {
	return s.SetControlRange(tag, index, 1)
}

// SetControlRange applies tag to count tiles starting at start.
func (s *Space) SetControlRange(tag uint8, start, count int) error {
	if start < 0 || count < 0 || start+count > len(s.Control) {
		return fmt.Errorf("%w: space %q control range [%d, %d) of %d",
			ErrOutOfRange, s.Name, start, start+count, len(s.Control))
	}
	for i := start; i < start+count; i++ {
		s.Control[i] = ApplyControl(s.Control[i], tag)
	}
	return nil
}

// SetTileName names tile index, allocating the name table on first use.
func (s *Space) SetTileName(index int, name string) error {
	if index < 0 || index >= s.TileCount {
		return fmt.Errorf("%w: space %q tile %d of %d", ErrOutOfRange, s.Name, index, s.TileCount)
	}
	if len(s.TileNames) < s.TileCount {
		s.TileNames = resized(s.TileNames, s.TileCount)
	}
	s.TileNames[index] = name
	return nil
}

// TileName returns the name of tile index, or "" when unnamed.
func (s *Space) TileName(index int) string {
	if index < 0 || index >= len(s.TileNames) {
		return ""
	}
	return s.TileNames[index]
}

// Resize changes the tile count. Stream data and tile names keep their
// prefix; new tiles get default values, empty names, and Used control.
func (s *Space) Resize(tileCount int) error {
	if tileCount < 0 {
		return fmt.Errorf("%w: space %q resized to %d tiles", ErrOutOfRange, s.Name, tileCount)
	}
	old := s.TileCount
	s.Control = resized(s.Control, tileCount)
	for i := old; i < tileCount; i++ {
		s.Control[i] = ControlUsed
	}
	if s.TileNames != nil {
		s.TileNames = resized(s.TileNames, tileCount)
	}
	for _, stream := range s.Streams {
		stream.resize(tileCount)
	}
	s.TileCount = tileCount
	return nil
}

// TileMax returns the maximum value against which tile index of stream
// is displayed: the MaxStreamIndex stream's value for PresentPercentVar,
// MaxValue otherwise.
func (s *Space) TileMax(stream *Stream, index int) int32 {
	if stream.Presentation != PresentPercentVar {
		return stream.MaxValue
	}
	reference, err := s.Stream(stream.MaxStreamIndex)
	if err != nil {
		return stream.MaxValue
	}
	value, err := reference.Value(index)
	if err != nil {
		return stream.MaxValue
	}
	return value
}

// CalcMaxima recomputes every PresentMaxVar stream's maximum.
func (s *Space) CalcMaxima() {
	for _, stream := range s.Streams {
		stream.CalcMaxIfNecessary(s.Control)
	}
}

// Validate checks the data model invariants.
func (s *Space) Validate() error {
	if s.TileCount < 0 {
		return fmt.Errorf("%w: space %q has %d tiles", ErrMalformed, s.Name, s.TileCount)
	}
	if len(s.Control) != s.TileCount {
		return fmt.Errorf("%w: space %q control has %d entries for %d tiles",
			ErrMalformed, s.Name, len(s.Control), s.TileCount)
	}
	if s.TileNames != nil && len(s.TileNames) < s.TileCount {
		return fmt.Errorf("%w: space %q has %d tile names for %d tiles",
			ErrMalformed, s.Name, len(s.TileNames), s.TileCount)
	}
	for i, stream := range s.Streams {
		if int(stream.ID) != i {
			return fmt.Errorf("%w: space %q stream at index %d has ID %d",
				ErrMalformed, s.Name, i, stream.ID)
		}
		if stream.HasData() && stream.DataLen() != s.TileCount {
			return fmt.Errorf("%w: space %q stream %q has %d values for %d tiles",
				ErrMalformed, s.Name, stream.Name, stream.DataLen(), s.TileCount)
		}
	}
	return nil
}

// Encode writes the full space description: identity, labels, tile
// count, stream metadata, tile names, and control bytes. Stream data
// and summaries travel separately.
func (s *Space) Encode(w *wire.Writer) {
	w.WriteUint16(uint16(s.ID))
	w.WriteString(s.Name)
	w.WriteString(s.DriverName)
	w.WriteString(s.Title)
	w.WriteString(s.BlockInfo)
	w.WriteInt32(int32(s.TileCount))
	w.WriteString(s.UnusedLabel)
	w.WriteBool(s.Main)
	w.WriteString(s.Info)
	w.WriteUint16(uint16(len(s.Streams)))
	for _, stream := range s.Streams {
		stream.encode(w)
	}
	w.WriteStringArray(s.TileNames)
	w.WriteUint8Array(s.Control)
}

// Decode reads a space written by Encode and validates it.
func Decode(r *wire.Reader) (*Space, error) {
	id := r.ReadUint16()
	s := &Space{
		ID:          uint8(id),
		Name:        r.ReadString(),
		DriverName:  r.ReadString(),
		Title:       r.ReadString(),
		BlockInfo:   r.ReadString(),
		TileCount:   int(r.ReadInt32()),
		UnusedLabel: r.ReadString(),
		Main:        r.ReadBool(),
		Info:        r.ReadString(),
	}
	streamCount := int(r.ReadUint16())
	if err := r.Err(); err != nil {
		return nil, err
	}
	if id > 0xff {
		return nil, fmt.Errorf("%w: space ID %d", ErrMalformed, id)
	}
	if streamCount > MaxStreams {
		return nil, fmt.Errorf("%w: space %q declares %d streams", ErrMalformed, s.Name, streamCount)
	}
	s.Streams = make([]*Stream, 0, streamCount)
	for range streamCount {
		s.Streams = append(s.Streams, decodeStream(r))
		if err := r.Err(); err != nil {
			return nil, err
		}
	}
	s.TileNames = r.ReadStringArray()
	s.Control = r.ReadUint8Array()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if s.Control == nil {
		return nil, fmt.Errorf("%w: space %q has no control array", ErrMalformed, s.Name)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy of the space and its streams.
func (s *Space) Clone() *Space {
	c := *s
	c.Control = cloneSlice(s.Control)
	c.TileNames = cloneSlice(s.TileNames)
	c.Streams = make([]*Stream, len(s.Streams))
	for i, stream := range s.Streams {
		c.Streams[i] = stream.Clone()
	}
	return &c
}

// Digest returns a BLAKE3 hash over the encoded space plus every
// stream's data and summary. Two spaces with equal digests present
// identical state to a monitor.
func (s *Space) Digest() [32]byte {
	w := wire.NewWriter(0)
	s.Encode(w)
	for _, stream := range s.Streams {
		stream.WriteData(w, stream.DataLen())
		w.WriteInt32Array(stream.Summary)
	}
	return blake3.Sum256(w.Bytes())
}

// Factory builds a side-specific wrapper around a decoded space. The
// server and client interpreters each supply one when reconstructing
// full state.
type Factory[S any] interface {
	FromDecoded(decoded *Space) (S, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc[S any] func(decoded *Space) (S, error)

// FromDecoded calls f.
func (f FactoryFunc[S]) FromDecoded(decoded *Space) (S, error) { return f(decoded) }
