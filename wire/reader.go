// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
)

// Reader decodes values from a byte slice in order.
type Reader struct {
	buffer []byte
	offset int
	err    error
}

// NewReader returns a Reader over message. The Reader does not copy
// message; decoded arrays are always fresh slices.
func NewReader(message []byte) *Reader {
	return &Reader{buffer: message}
}

// Err returns the first error encountered, or nil.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buffer) - r.offset }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.offset }

// Finish returns the sticky error if any, otherwise ErrTrailingBytes
// if unread bytes remain.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if remaining := r.Remaining(); remaining != 0 {
		return fmt.Errorf("%w: %d unread at offset %d", ErrTrailingBytes, remaining, r.offset)
	}
	return nil
}

// Fail records err as the sticky error unless one is already set.
// Decoders use it to report semantic errors through the same channel
// as short reads.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.Remaining() {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortBuffer, n, r.offset, r.Remaining())
		return nil
	}
	b := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return b
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }

// ReadBool reads one byte; any non-zero value is true.
func (r *Reader) ReadBool() bool { return r.ReadUint8() != 0 }

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

// ReadInt16 reads a big-endian int16.
func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// ReadInt32 reads a big-endian int32.
func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }

// ReadString reads an int32 length followed by that many bytes.
func (r *Reader) ReadString() string {
	length := r.ReadInt32()
	if r.err != nil {
		return ""
	}
	if length < 0 {
		r.err = fmt.Errorf("%w: string length %d at offset %d", ErrInvalidLength, length, r.offset-4)
		return ""
	}
	return string(r.take(int(length)))
}

// ReadStringArray reads a string array written by WriteStringArray.
func (r *Reader) ReadStringArray() []string {
	count, ok := r.arrayHeader(4)
	if !ok {
		return nil
	}
	values := make([]string, 0, count)
	for range count {
		values = append(values, r.ReadString())
		if r.err != nil {
			return nil
		}
	}
	return values
}

// ReadUint8Array reads a byte array. NilLength decodes to nil.
func (r *Reader) ReadUint8Array() []uint8 {
	count, ok := r.arrayHeader(1)
	if !ok {
		return nil
	}
	b := r.take(count)
	if b == nil && count > 0 {
		return nil
	}
	values := make([]uint8, count)
	copy(values, b)
	return values
}

// ReadInt16Array reads a short array. NilLength decodes to nil.
func (r *Reader) ReadInt16Array() []int16 {
	count, ok := r.arrayHeader(2)
	if !ok {
		return nil
	}
	b := r.take(2 * count)
	if b == nil && count > 0 {
		return nil
	}
	values := make([]int16, count)
	for i := range values {
		values[i] = int16(binary.BigEndian.Uint16(b[2*i:]))
	}
	return values
}

// ReadInt32Array reads an int array. NilLength decodes to nil.
func (r *Reader) ReadInt32Array() []int32 {
	count, ok := r.arrayHeader(4)
	if !ok {
		return nil
	}
	b := r.take(4 * count)
	if b == nil && count > 0 {
		return nil
	}
	values := make([]int32, count)
	for i := range values {
		values[i] = int32(binary.BigEndian.Uint32(b[4*i:]))
	}
	return values
}

// arrayHeader reads an element count and validates it against the
// remaining bytes using the minimum encoded element size. Returns
// ok=false for NilLength and on error.
func (r *Reader) arrayHeader(minElementSize int) (int, bool) {
	count := r.ReadInt32()
	if r.err != nil || count == NilLength {
		return 0, false
	}
	if count < 0 {
		r.err = fmt.Errorf("%w: array count %d at offset %d", ErrInvalidLength, count, r.offset-4)
		return 0, false
	}
	if int64(count)*int64(minElementSize) > int64(r.Remaining()) {
		r.err = fmt.Errorf("%w: array of %d elements at offset %d, have %d bytes",
			ErrShortBuffer, count, r.offset-4, r.Remaining())
		return 0, false
	}
	return int(count), true
}
