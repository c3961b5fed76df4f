// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"slices"
	"testing"
)

func TestScalarRoundTrip(t *testing.T) {
	t.Parallel()

	w := NewWriter(0)
	w.WriteUint8(0xfe)
	w.WriteInt8(-3)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteUint16(0xbeef)
	w.WriteInt16(-1234)
	w.WriteUint32(0xdeadbeef)
	w.WriteInt32(-666666)
	w.WriteString("Start GC")
	w.WriteString("")
	if err := w.Err(); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewReader(w.Bytes())
	if got := r.ReadUint8(); got != 0xfe {
		t.Errorf("ReadUint8 = %#x, want 0xfe", got)
	}
	if got := r.ReadInt8(); got != -3 {
		t.Errorf("ReadInt8 = %d, want -3", got)
	}
	if got := r.ReadBool(); !got {
		t.Error("first ReadBool = false, want true")
	}
	if got := r.ReadBool(); got {
		t.Error("second ReadBool = true, want false")
	}
	if got := r.ReadUint16(); got != 0xbeef {
		t.Errorf("ReadUint16 = %#x, want 0xbeef", got)
	}
	if got := r.ReadInt16(); got != -1234 {
		t.Errorf("ReadInt16 = %d, want -1234", got)
	}
	if got := r.ReadUint32(); got != 0xdeadbeef {
		t.Errorf("ReadUint32 = %#x, want 0xdeadbeef", got)
	}
	if got := r.ReadInt32(); got != -666666 {
		t.Errorf("ReadInt32 = %d, want -666666", got)
	}
	if got := r.ReadString(); got != "Start GC" {
		t.Errorf("ReadString = %q, want %q", got, "Start GC")
	}
	if got := r.ReadString(); got != "" {
		t.Errorf("ReadString = %q, want empty", got)
	}
	if err := r.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestBigEndianLayout(t *testing.T) {
	t.Parallel()

	w := NewWriter(0)
	w.WriteInt16(0x0102)
	w.WriteInt32(0x03040506)
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if !slices.Equal(w.Bytes(), want) {
		t.Errorf("bytes = %x, want %x", w.Bytes(), want)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	t.Parallel()

	for _, length := range []int{0, 1, 7, 1024} {
		bytes := make([]uint8, length)
		shorts := make([]int16, length)
		ints := make([]int32, length)
		for i := range length {
			bytes[i] = uint8(i * 7)
			shorts[i] = int16(i*31 - 500)
			ints[i] = int32(i*100003 - 1<<20)
		}

		w := NewWriter(0)
		w.WriteUint8Array(bytes)
		w.WriteInt16Array(shorts)
		w.WriteInt32Array(ints)
		if err := w.Err(); err != nil {
			t.Fatalf("length %d: write: %v", length, err)
		}

		r := NewReader(w.Bytes())
		gotBytes := r.ReadUint8Array()
		gotShorts := r.ReadInt16Array()
		gotInts := r.ReadInt32Array()
		if err := r.Finish(); err != nil {
			t.Fatalf("length %d: Finish: %v", length, err)
		}
		if gotBytes == nil || gotShorts == nil || gotInts == nil {
			t.Fatalf("length %d: decoded a nil array for a populated one", length)
		}
		if !slices.Equal(gotBytes, bytes) {
			t.Errorf("length %d: byte array mismatch", length)
		}
		if !slices.Equal(gotShorts, shorts) {
			t.Errorf("length %d: short array mismatch", length)
		}
		if !slices.Equal(gotInts, ints) {
			t.Errorf("length %d: int array mismatch", length)
		}
	}
}

func TestNilArrayIsDistinctFromEmpty(t *testing.T) {
	t.Parallel()

	w := NewWriter(0)
	w.WriteInt32Array(nil)
	w.WriteInt32Array([]int32{})
	w.WriteStringArray(nil)
	w.WriteStringArray([]string{})

	r := NewReader(w.Bytes())
	if got := r.ReadInt32Array(); got != nil {
		t.Errorf("nil int array decoded as %v", got)
	}
	if got := r.ReadInt32Array(); got == nil || len(got) != 0 {
		t.Errorf("empty int array decoded as %#v", got)
	}
	if got := r.ReadStringArray(); got != nil {
		t.Errorf("nil string array decoded as %v", got)
	}
	if got := r.ReadStringArray(); got == nil || len(got) != 0 {
		t.Errorf("empty string array decoded as %#v", got)
	}
	if err := r.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestArrayPrefix(t *testing.T) {
	t.Parallel()

	w := NewWriter(0)
	w.WriteInt16ArrayPrefix([]int16{5, 6, 7, 8}, 2)
	r := NewReader(w.Bytes())
	if got := r.ReadInt16Array(); !slices.Equal(got, []int16{5, 6}) {
		t.Errorf("prefix decoded as %v, want [5 6]", got)
	}

	w = NewWriter(0)
	w.WriteInt32ArrayPrefix([]int32{1}, 2)
	if !errors.Is(w.Err(), ErrInvalidLength) {
		t.Errorf("over-long prefix error = %v, want ErrInvalidLength", w.Err())
	}
}

func TestWriterLimit(t *testing.T) {
	t.Parallel()

	w := NewWriter(6)
	w.WriteInt32(1)
	w.WriteInt32(2)
	w.WriteUint8(3)
	if !errors.Is(w.Err(), ErrBufferFull) {
		t.Fatalf("Err = %v, want ErrBufferFull", w.Err())
	}
	if w.Len() != 4 {
		t.Errorf("Len = %d after overflow, want 4", w.Len())
	}
}

func TestReaderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message []byte
		read    func(*Reader)
		want    error
	}{
		{
			name:    "short scalar",
			message: []byte{0x01},
			read:    func(r *Reader) { r.ReadInt32() },
			want:    ErrShortBuffer,
		},
		{
			name:    "array longer than message",
			message: []byte{0, 0, 0, 3, 1, 2},
			read:    func(r *Reader) { r.ReadUint8Array() },
			want:    ErrShortBuffer,
		},
		{
			name:    "negative array count",
			message: []byte{0xff, 0xff, 0xff, 0xfe},
			read:    func(r *Reader) { r.ReadInt16Array() },
			want:    ErrInvalidLength,
		},
		{
			name:    "negative string length",
			message: []byte{0xff, 0xff, 0xff, 0xff},
			read:    func(r *Reader) { r.ReadString() },
			want:    ErrInvalidLength,
		},
		{
			name:    "trailing bytes",
			message: []byte{1, 2},
			read:    func(r *Reader) { r.ReadUint8() },
			want:    ErrTrailingBytes,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader(test.message)
			test.read(r)
			if err := r.Finish(); !errors.Is(err, test.want) {
				t.Errorf("Finish = %v, want %v", err, test.want)
			}
		})
	}
}

func TestReaderErrorIsSticky(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0, 0})
	r.ReadInt32()
	first := r.Err()
	if first == nil {
		t.Fatal("expected a short read")
	}
	if got := r.ReadUint8(); got != 0 {
		t.Errorf("read after error = %d, want 0", got)
	}
	if r.Err() != first {
		t.Errorf("sticky error replaced: %v", r.Err())
	}
}
