// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/heapscope/wire"
)

func testSpace(t *testing.T) *Space {
	t.Helper()
	s := New("Old Generation", "Mark-Sweep", 6, true)
	s.Title = "Block Size: 64K"
	s.BlockInfo = "Block"
	s.Info = "capacity 384K"
	streams := []*Stream{
		{Name: "Used Space", DataType: DataInt, MaxValue: 65536, Presentation: PresentPercent,
			Suffix: " bytes", Color: Color{R: 255}},
		{Name: "Objects", DataType: DataShort, MinValue: 0, Presentation: PresentMaxVar,
			PaintStyle: PaintZero, Color: Color{G: 200}},
		{Name: "State", DataType: DataByte, MaxValue: 2, Presentation: PresentEnum,
			EnumNames: []string{"free", "live", "pinned"}, DefaultValue: 1},
	}
	for _, stream := range streams {
		if _, err := s.AddStream(stream); err != nil {
			t.Fatalf("AddStream(%q): %v", stream.Name, err)
		}
	}
	if err := s.SetTileName(2, "0x2000"); err != nil {
		t.Fatalf("SetTileName: %v", err)
	}
	return s
}

func TestSpaceRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func(t *testing.T) *Space
	}{
		{name: "populated", build: func(t *testing.T) *Space {
			s := testSpace(t)
			if err := s.SetControl(ControlBackground, 1); err != nil {
				t.Fatal(err)
			}
			if err := s.SetControlRange(ControlSeparator|ControlLink, 3, 2); err != nil {
				t.Fatal(err)
			}
			return s
		}},
		{name: "no streams no names", build: func(t *testing.T) *Space {
			return New("Nursery", "Copying", 3, false)
		}},
		{name: "zero tiles", build: func(t *testing.T) *Space {
			return New("Empty", "None", 0, false)
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			original := test.build(t)
			original.ID = 3

			w := wire.NewWriter(0)
			original.Encode(w)
			if err := w.Err(); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			r := wire.NewReader(w.Bytes())
			decoded, err := Decode(r)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if err := r.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}

			if decoded.ID != original.ID || decoded.Name != original.Name ||
				decoded.DriverName != original.DriverName || decoded.Title != original.Title ||
				decoded.BlockInfo != original.BlockInfo || decoded.Info != original.Info ||
				decoded.Main != original.Main || decoded.UnusedLabel != original.UnusedLabel {
				t.Errorf("labels differ:\n got %+v\nwant %+v", decoded, original)
			}
			if decoded.TileCount != original.TileCount {
				t.Errorf("TileCount = %d, want %d", decoded.TileCount, original.TileCount)
			}
			if !slices.Equal(decoded.Control, original.Control) {
				t.Errorf("Control = %v, want %v", decoded.Control, original.Control)
			}
			if !slices.Equal(decoded.TileNames, original.TileNames) {
				t.Errorf("TileNames = %q, want %q", decoded.TileNames, original.TileNames)
			}
			if len(decoded.Streams) != len(original.Streams) {
				t.Fatalf("%d streams, want %d", len(decoded.Streams), len(original.Streams))
			}
			for i, want := range original.Streams {
				got := decoded.Streams[i]
				if got.ID != want.ID || got.Name != want.Name || got.DataType != want.DataType ||
					got.MinValue != want.MinValue || got.ZeroValue != want.ZeroValue ||
					got.DefaultValue != want.DefaultValue || got.Prefix != want.Prefix ||
					got.Suffix != want.Suffix || got.Presentation != want.Presentation ||
					got.PaintStyle != want.PaintStyle || got.MaxStreamIndex != want.MaxStreamIndex ||
					got.Color != want.Color || !slices.Equal(got.EnumNames, want.EnumNames) {
					t.Errorf("stream %d metadata:\n got %+v\nwant %+v", i, got, want)
				}
				if want.Presentation == PresentMaxVar {
					if got.MaxValue != want.MinValue+4 {
						t.Errorf("stream %d MaxValue = %d, want MinValue+4", i, got.MaxValue)
					}
				} else if got.MaxValue != want.MaxValue {
					t.Errorf("stream %d MaxValue = %d, want %d", i, got.MaxValue, want.MaxValue)
				}
			}
		})
	}
}

func TestDecodeRejectsInconsistentControl(t *testing.T) {
	t.Parallel()

	s := New("Heap", "Test", 4, false)
	s.Control = s.Control[:3]
	w := wire.NewWriter(0)
	s.Encode(w)
	if _, err := Decode(wire.NewReader(w.Bytes())); !errors.Is(err, ErrMalformed) {
		t.Errorf("Decode = %v, want ErrMalformed", err)
	}
}

func TestControlClearsUsed(t *testing.T) {
	t.Parallel()

	for prior := 0; prior < 32; prior++ {
		for _, tag := range []uint8{ControlBackground, ControlUnused} {
			s := New("Heap", "Test", 1, false)
			s.Control[0] = uint8(prior)
			if err := s.SetControl(tag, 0); err != nil {
				t.Fatal(err)
			}
			if IsControlUsed(s.Control[0]) {
				t.Errorf("prior %05b tag %d: tile still used (%05b)", prior, tag, s.Control[0])
			}
			if s.Control[0]&tag == 0 {
				t.Errorf("prior %05b tag %d: tag not set", prior, tag)
			}
		}
	}
}

func TestControlSeparatorKeepsUsed(t *testing.T) {
	t.Parallel()

	got := ApplyControl(ControlUsed, ControlSeparator)
	if !IsControlUsed(got) || !IsControlSeparator(got) {
		t.Errorf("ApplyControl(Used, Separator) = %05b", got)
	}
}

func TestControlPredicatesAndGlyphs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		control uint8
		flags   [5]bool // used, background, unused, separator, link
		glyph   byte
	}{
		{0, [5]bool{}, '?'},
		{ControlUsed, [5]bool{true, false, false, false, false}, '#'},
		{ControlBackground, [5]bool{false, true, false, false, false}, '.'},
		{ControlUnused, [5]bool{false, false, true, false, false}, ' '},
		{ControlUsed | ControlSeparator, [5]bool{true, false, false, true, false}, '|'},
		{ControlUsed | ControlLink, [5]bool{true, false, false, false, true}, '~'},
	}
	for _, test := range tests {
		got := [5]bool{
			IsControlUsed(test.control),
			IsControlBackground(test.control),
			IsControlUnused(test.control),
			IsControlSeparator(test.control),
			IsControlLink(test.control),
		}
		if got != test.flags {
			t.Errorf("control %05b: predicates = %v, want %v", test.control, got, test.flags)
		}
		if glyph := ControlGlyph(test.control); glyph != test.glyph {
			t.Errorf("ControlGlyph(%05b) = %q, want %q", test.control, glyph, test.glyph)
		}
	}
}

func TestControlRangeBounds(t *testing.T) {
	t.Parallel()

	s := New("Heap", "Test", 4, false)
	if err := s.SetControlRange(ControlUnused, 2, 3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetControlRange past end = %v, want ErrOutOfRange", err)
	}
	if err := s.SetControl(ControlUnused, -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetControl(-1) = %v, want ErrOutOfRange", err)
	}
	if _, err := s.Stream(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Stream(0) on empty space = %v, want ErrOutOfRange", err)
	}
}

func TestResizeKeepsPrefix(t *testing.T) {
	t.Parallel()

	s := testSpace(t)
	used := s.Streams[0]
	used.Allocate(s.TileCount)
	for i := range s.TileCount {
		_ = used.SetValue(i, int32(i+10))
	}
	state := s.Streams[2]
	state.Allocate(s.TileCount)
	_ = s.SetControl(ControlUnused, 1)

	if err := s.Resize(8); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate after grow: %v", err)
	}
	if !slices.Equal(used.Ints, []int32{10, 11, 12, 13, 14, 15, 0, 0}) {
		t.Errorf("grown data = %v", used.Ints)
	}
	if state.Bytes[7] != 1 {
		t.Errorf("new tile default = %d, want 1", state.Bytes[7])
	}
	if !IsControlUsed(s.Control[7]) || IsControlUsed(s.Control[1]) {
		t.Errorf("control after grow = %v", s.Control)
	}
	if len(s.TileNames) != 8 || s.TileName(2) != "0x2000" {
		t.Errorf("tile names after grow = %q", s.TileNames)
	}
	if s.Streams[1].HasData() {
		t.Error("resize allocated data for a stream that had none")
	}

	if err := s.Resize(2); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if !slices.Equal(used.Ints, []int32{10, 11}) {
		t.Errorf("shrunk data = %v", used.Ints)
	}
}

func TestCalcMaxIfNecessary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		style   PaintStyle
		min     int32
		values  []int32
		control []uint8
		want    int32
	}{
		{name: "max over used", min: 0, values: []int32{3, 9, 4},
			control: []uint8{ControlUsed, ControlUsed, ControlUsed}, want: 9},
		{name: "unused tiles ignored", min: 0, values: []int32{3, 90, 4},
			control: []uint8{ControlUsed, ControlUnused, ControlUsed}, want: 4},
		{name: "plain floor", min: 0, values: []int32{1, 0},
			control: []uint8{ControlUsed, ControlUsed}, want: 2},
		{name: "zero style floor", style: PaintZero, min: 10, values: []int32{11},
			control: []uint8{ControlUsed}, want: 14},
		{name: "no used tiles", min: 5, values: []int32{100},
			control: []uint8{ControlBackground}, want: 7},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			stream := &Stream{DataType: DataInt, Presentation: PresentMaxVar,
				PaintStyle: test.style, MinValue: test.min, Ints: test.values}
			stream.CalcMaxIfNecessary(test.control)
			if stream.MaxValue != test.want {
				t.Errorf("MaxValue = %d, want %d", stream.MaxValue, test.want)
			}
		})
	}

	plain := &Stream{DataType: DataInt, Presentation: PresentPlain, MaxValue: 77, Ints: []int32{1000}}
	plain.CalcMaxIfNecessary([]uint8{ControlUsed})
	if plain.MaxValue != 77 {
		t.Errorf("plain stream MaxValue changed to %d", plain.MaxValue)
	}
}

func TestSummaryLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		presentation Presentation
		enumNames    []string
		want         int
	}{
		{PresentPlain, nil, 1},
		{PresentPlus, nil, 1},
		{PresentMaxVar, nil, 1},
		{PresentPercent, nil, 2},
		{PresentPercentVar, nil, 2},
		{PresentEnum, []string{"a", "b", "c"}, 3},
	}
	for _, test := range tests {
		stream := &Stream{Presentation: test.presentation, EnumNames: test.enumNames}
		if got := stream.SummaryLength(); got != test.want {
			t.Errorf("%s: SummaryLength = %d, want %d", test.presentation, got, test.want)
		}
	}
}

func TestReadData(t *testing.T) {
	t.Parallel()

	encode := func(values []int16) []byte {
		w := wire.NewWriter(0)
		w.WriteInt16Array(values)
		return w.Bytes()
	}

	stream := &Stream{Name: "Objects", DataType: DataShort, DefaultValue: -1}
	if err := stream.ReadData(wire.NewReader(encode([]int16{1, 2, 3, 4})), 4); err != nil {
		t.Fatalf("full update: %v", err)
	}
	if !slices.Equal(stream.Shorts, []int16{1, 2, 3, 4}) {
		t.Errorf("after full update = %v", stream.Shorts)
	}

	if err := stream.ReadData(wire.NewReader(encode([]int16{9, 8})), 4); err != nil {
		t.Fatalf("prefix update: %v", err)
	}
	if !slices.Equal(stream.Shorts, []int16{9, 8, 3, 4}) {
		t.Errorf("after prefix update = %v", stream.Shorts)
	}

	fresh := &Stream{Name: "Fresh", DataType: DataShort, DefaultValue: -1}
	if err := fresh.ReadData(wire.NewReader(encode([]int16{5})), 3); err != nil {
		t.Fatalf("prefix into empty: %v", err)
	}
	if !slices.Equal(fresh.Shorts, []int16{5, -1, -1}) {
		t.Errorf("prefix into empty = %v", fresh.Shorts)
	}

	if err := stream.ReadData(wire.NewReader(encode([]int16{1, 2, 3, 4, 5})), 4); !errors.Is(err, ErrMalformed) {
		t.Errorf("over-long update = %v, want ErrMalformed", err)
	}
	if err := stream.ReadData(wire.NewReader(encode(nil)), 4); !errors.Is(err, ErrMalformed) {
		t.Errorf("nil update = %v, want ErrMalformed", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := testSpace(t)
	s.Streams[0].Allocate(s.TileCount)
	s.Streams[0].Summary = []int32{1, 2}
	clone := s.Clone()

	s.Control[0] = ControlUnused
	s.Streams[0].Ints[0] = 99
	s.Streams[0].Summary[0] = 99
	s.TileNames[2] = "changed"

	if clone.Control[0] != ControlUsed || clone.Streams[0].Ints[0] != 0 ||
		clone.Streams[0].Summary[0] != 1 || clone.TileNames[2] != "0x2000" {
		t.Error("clone shares memory with the original")
	}
	if clone.Digest() == s.Digest() {
		t.Error("digest did not change after mutation")
	}
}

func TestTileMaxPercentVar(t *testing.T) {
	t.Parallel()

	s := New("Heap", "Test", 2, false)
	capacity := &Stream{Name: "Capacity", DataType: DataInt, Ints: []int32{100, 200}}
	used := &Stream{Name: "Used", DataType: DataInt, Presentation: PresentPercentVar,
		MaxStreamIndex: 0, MaxValue: 5, Ints: []int32{50, 50}}
	if _, err := s.AddStream(capacity); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddStream(used); err != nil {
		t.Fatal(err)
	}
	if got := s.TileMax(used, 1); got != 200 {
		t.Errorf("TileMax = %d, want 200", got)
	}
	if got := s.TileMax(capacity, 1); got != 0 {
		t.Errorf("TileMax on plain stream = %d, want MaxValue 0", got)
	}
}
