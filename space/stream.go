// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"fmt"

	"github.com/bureau-foundation/heapscope/wire"
)

// DataType is the element type of a stream's per-tile data.
type DataType uint8

const (
	DataByte  DataType = 0
	DataShort DataType = 1
	DataInt   DataType = 2
)

func (t DataType) String() string {
	switch t {
	case DataByte:
		return "byte"
	case DataShort:
		return "short"
	case DataInt:
		return "int"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Presentation selects how a stream's values and summary are read.
type Presentation uint8

const (
	// PresentPlain values are absolute; the summary is one total.
	PresentPlain Presentation = 0
	// PresentPlus is PresentPlain with a "+" marker on values above
	// the maximum.
	PresentPlus Presentation = 1
	// PresentMaxVar tracks the maximum over used tiles; see
	// CalcMaxIfNecessary.
	PresentMaxVar Presentation = 2
	// PresentPercent values are a fraction of MaxValue; the summary is
	// (total, capacity).
	PresentPercent Presentation = 3
	// PresentPercentVar values are a fraction of the same tile in the
	// stream named by MaxStreamIndex.
	PresentPercentVar Presentation = 4
	// PresentEnum values index EnumNames; the summary counts tiles per
	// enum value.
	PresentEnum Presentation = 5
)

func (p Presentation) String() string {
	switch p {
	case PresentPlain:
		return "plain"
	case PresentPlus:
		return "plus"
	case PresentMaxVar:
		return "max-var"
	case PresentPercent:
		return "percent"
	case PresentPercentVar:
		return "percent-var"
	case PresentEnum:
		return "enum"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// PaintStyle selects how a visualizer shades zero values.
type PaintStyle uint8

const (
	PaintPlain PaintStyle = 0
	PaintZero  PaintStyle = 1
)

// Color is an RGB display colour.
type Color struct {
	R, G, B uint8
}

// Stream is one typed per-tile data series within a Space. Exactly one
// of Bytes, Shorts, Ints holds data, selected by DataType; all three
// are nil until data is set.
type Stream struct {
	ID             uint8
	Name           string
	DataType       DataType
	MinValue       int32
	MaxValue       int32
	ZeroValue      int32
	DefaultValue   int32
	Prefix         string
	Suffix         string
	Presentation   Presentation
	PaintStyle     PaintStyle
	MaxStreamIndex uint8
	Color          Color
	EnumNames      []string

	Bytes  []uint8
	Shorts []int16
	Ints   []int32

	// Summary is nil until a summary has been set or received.
	Summary []int32
}

// HasData reports whether the stream's typed array has been set.
func (s *Stream) HasData() bool {
	switch s.DataType {
	case DataByte:
		return s.Bytes != nil
	case DataShort:
		return s.Shorts != nil
	default:
		return s.Ints != nil
	}
}

// DataLen returns the length of the typed array, 0 when unset.
func (s *Stream) DataLen() int {
	switch s.DataType {
	case DataByte:
		return len(s.Bytes)
	case DataShort:
		return len(s.Shorts)
	default:
		return len(s.Ints)
	}
}

// Value returns tile i's value widened to int32. Byte values are
// unsigned.
func (s *Stream) Value(i int) (int32, error) {
	if i < 0 || i >= s.DataLen() {
		return 0, fmt.Errorf("%w: stream %q tile %d of %d", ErrOutOfRange, s.Name, i, s.DataLen())
	}
	return s.value(i), nil
}

func (s *Stream) value(i int) int32 {
	switch s.DataType {
	case DataByte:
		return int32(s.Bytes[i])
	case DataShort:
		return int32(s.Shorts[i])
	default:
		return s.Ints[i]
	}
}

// SetValue stores value at tile i, truncating to the stream's type.
func (s *Stream) SetValue(i int, value int32) error {
	if i < 0 || i >= s.DataLen() {
		return fmt.Errorf("%w: stream %q tile %d of %d", ErrOutOfRange, s.Name, i, s.DataLen())
	}
	switch s.DataType {
	case DataByte:
		s.Bytes[i] = uint8(value)
	case DataShort:
		s.Shorts[i] = int16(value)
	default:
		s.Ints[i] = value
	}
	return nil
}

// Allocate replaces the typed array with tiles elements set to
// DefaultValue.
func (s *Stream) Allocate(tiles int) {
	s.Bytes, s.Shorts, s.Ints = nil, nil, nil
	switch s.DataType {
	case DataByte:
		s.Bytes = make([]uint8, tiles)
	case DataShort:
		s.Shorts = make([]int16, tiles)
	default:
		s.Ints = make([]int32, tiles)
	}
	s.fillDefault(0, tiles)
}

func (s *Stream) fillDefault(from, to int) {
	for i := from; i < to; i++ {
		_ = s.SetValue(i, s.DefaultValue)
	}
}

// ClearData drops the typed array.
func (s *Stream) ClearData() {
	s.Bytes, s.Shorts, s.Ints = nil, nil, nil
}

// resize keeps the first min(old, tiles) values and fills the rest
// with DefaultValue. Streams without data stay without data.
func (s *Stream) resize(tiles int) {
	if !s.HasData() {
		return
	}
	old := s.DataLen()
	switch s.DataType {
	case DataByte:
		s.Bytes = resized(s.Bytes, tiles)
	case DataShort:
		s.Shorts = resized(s.Shorts, tiles)
	default:
		s.Ints = resized(s.Ints, tiles)
	}
	if tiles > old {
		s.fillDefault(old, tiles)
	}
}

func resized[T any](values []T, length int) []T {
	next := make([]T, length)
	copy(next, values)
	return next
}

// SummaryLength returns the number of summary values the stream's
// presentation produces.
func (s *Stream) SummaryLength() int {
	switch s.Presentation {
	case PresentPercent, PresentPercentVar:
		return 2
	case PresentEnum:
		return len(s.EnumNames)
	default:
		return 1
	}
}

// CalcMaxIfNecessary recomputes MaxValue for PresentMaxVar streams as
// the largest value over used tiles, floored at MinValue+4 for
// PaintZero and MinValue+2 otherwise. Other presentations are left
// unchanged.
func (s *Stream) CalcMaxIfNecessary(control []uint8) {
	if s.Presentation != PresentMaxVar {
		return
	}
	maximum := s.MinValue - 1
	for i := 0; i < s.DataLen() && i < len(control); i++ {
		if !IsControlUsed(control[i]) {
			continue
		}
		if value := s.value(i); value > maximum {
			maximum = value
		}
	}
	limit := s.MinValue + 2
	if s.PaintStyle == PaintZero {
		limit = s.MinValue + 4
	}
	s.MaxValue = max(maximum, limit)
}

// WriteData encodes the first count values as a typed array. A stream
// without data encodes as the nil array.
func (s *Stream) WriteData(w *wire.Writer, count int) {
	switch s.DataType {
	case DataByte:
		w.WriteUint8ArrayPrefix(s.Bytes, count)
	case DataShort:
		w.WriteInt16ArrayPrefix(s.Shorts, count)
	default:
		w.WriteInt32ArrayPrefix(s.Ints, count)
	}
}

// ReadData decodes a typed array of the stream's type and stores it.
// An array of exactly tiles elements replaces the data; a shorter one
// overwrites a prefix of the existing data, allocating first if the
// stream had none. Longer arrays and the nil array are malformed.
func (s *Stream) ReadData(r *wire.Reader, tiles int) error {
	var length int
	var bytes []uint8
	var shorts []int16
	var ints []int32
	switch s.DataType {
	case DataByte:
		bytes = r.ReadUint8Array()
		length = len(bytes)
	case DataShort:
		shorts = r.ReadInt16Array()
		length = len(shorts)
	default:
		ints = r.ReadInt32Array()
		length = len(ints)
	}
	if err := r.Err(); err != nil {
		return err
	}
	if bytes == nil && shorts == nil && ints == nil {
		return fmt.Errorf("%w: stream %q data missing", ErrMalformed, s.Name)
	}
	if length > tiles {
		return fmt.Errorf("%w: stream %q data has %d elements for %d tiles",
			ErrMalformed, s.Name, length, tiles)
	}
	if length == tiles {
		s.Bytes, s.Shorts, s.Ints = bytes, shorts, ints
		return nil
	}
	if s.DataLen() != tiles {
		s.Allocate(tiles)
	}
	switch s.DataType {
	case DataByte:
		copy(s.Bytes, bytes)
	case DataShort:
		copy(s.Shorts, shorts)
	default:
		copy(s.Ints, ints)
	}
	return nil
}

// Clone returns a deep copy of the stream.
func (s *Stream) Clone() *Stream {
	c := *s
	c.EnumNames = cloneSlice(s.EnumNames)
	c.Bytes = cloneSlice(s.Bytes)
	c.Shorts = cloneSlice(s.Shorts)
	c.Ints = cloneSlice(s.Ints)
	c.Summary = cloneSlice(s.Summary)
	return &c
}

// cloneSlice copies values, preserving the nil/empty distinction.
func cloneSlice[T any](values []T) []T {
	if values == nil {
		return nil
	}
	return append(make([]T, 0, len(values)), values...)
}

func (s *Stream) encode(w *wire.Writer) {
	w.WriteUint8(s.ID)
	w.WriteUint8(uint8(s.DataType))
	w.WriteString(s.Name)
	w.WriteInt32(s.MinValue)
	w.WriteInt32(s.MaxValue)
	w.WriteInt32(s.ZeroValue)
	w.WriteInt32(s.DefaultValue)
	w.WriteString(s.Prefix)
	w.WriteString(s.Suffix)
	w.WriteUint8(uint8(s.Presentation))
	w.WriteUint8(uint8(s.PaintStyle))
	w.WriteUint8(s.MaxStreamIndex)
	w.WriteUint8(s.Color.R)
	w.WriteUint8(s.Color.G)
	w.WriteUint8(s.Color.B)
	w.WriteUint8(uint8(len(s.EnumNames)))
	for _, name := range s.EnumNames {
		w.WriteString(name)
	}
}

func decodeStream(r *wire.Reader) *Stream {
	s := &Stream{
		ID:       r.ReadUint8(),
		DataType: DataType(r.ReadUint8()),
	}
	s.Name = r.ReadString()
	s.MinValue = r.ReadInt32()
	s.MaxValue = r.ReadInt32()
	s.ZeroValue = r.ReadInt32()
	s.DefaultValue = r.ReadInt32()
	s.Prefix = r.ReadString()
	s.Suffix = r.ReadString()
	s.Presentation = Presentation(r.ReadUint8())
	s.PaintStyle = PaintStyle(r.ReadUint8())
	s.MaxStreamIndex = r.ReadUint8()
	s.Color = Color{R: r.ReadUint8(), G: r.ReadUint8(), B: r.ReadUint8()}
	enumCount := int(r.ReadUint8())
	if enumCount > 0 {
		s.EnumNames = make([]string, 0, enumCount)
		for range enumCount {
			s.EnumNames = append(s.EnumNames, r.ReadString())
		}
	}
	if s.DataType > DataInt {
		r.Fail(fmt.Errorf("%w: stream %q has data type %d", ErrMalformed, s.Name, uint8(s.DataType)))
	}
	if s.Presentation > PresentEnum {
		r.Fail(fmt.Errorf("%w: stream %q has presentation %d", ErrMalformed, s.Name, uint8(s.Presentation)))
	}
	if s.Presentation == PresentMaxVar {
		s.MaxValue = s.MinValue + 4
	}
	return s
}

// Validate checks that the stream's configuration is encodable.
func (s *Stream) Validate() error {
	if s.DataType > DataInt {
		return fmt.Errorf("stream %q: unknown data type %d", s.Name, uint8(s.DataType))
	}
	if s.Presentation > PresentEnum {
		return fmt.Errorf("stream %q: unknown presentation %d", s.Name, uint8(s.Presentation))
	}
	if s.Presentation == PresentEnum && len(s.EnumNames) == 0 {
		return fmt.Errorf("stream %q: enum presentation without enum names", s.Name)
	}
	if len(s.EnumNames) > 255 {
		return fmt.Errorf("stream %q: %d enum names exceeds 255", s.Name, len(s.EnumNames))
	}
	return nil
}
