// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// NilLength is the array count that encodes "no value".
const NilLength int32 = -1

var (
	// ErrBufferFull is reported when a write would grow the message
	// past the writer's limit.
	ErrBufferFull = errors.New("wire: message exceeds maximum length")

	// ErrShortBuffer is reported when a read needs more bytes than
	// remain in the message.
	ErrShortBuffer = errors.New("wire: short buffer")

	// ErrInvalidLength is reported for a negative array or string
	// length other than NilLength, and for a partial write whose
	// element count exceeds the source slice.
	ErrInvalidLength = errors.New("wire: invalid length")

	// ErrTrailingBytes is reported by Reader.Finish when the message
	// was not fully consumed.
	ErrTrailingBytes = errors.New("wire: trailing bytes")
)

// Writer appends encoded values to a growing byte slice bounded by a
// maximum length. The zero value is not usable; call NewWriter.
type Writer struct {
	buffer []byte
	limit  int
	err    error
}

// NewWriter returns a Writer that fails with ErrBufferFull once the
// encoded message would exceed limit bytes. A limit of zero or less
// means unbounded.
func NewWriter(limit int) *Writer {
	return &Writer{buffer: make([]byte, 0, 256), limit: limit}
}

// Bytes returns the encoded message. The slice aliases the writer's
// buffer and is invalidated by further writes.
func (w *Writer) Bytes() []byte { return w.buffer }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buffer) }

// Err returns the first error encountered, or nil.
func (w *Writer) Err() error { return w.err }

// extend reserves n bytes at the end of the buffer and returns them
// for the caller to fill. Returns nil after a sticky error.
func (w *Writer) extend(n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.limit > 0 && len(w.buffer)+n > w.limit {
		w.err = fmt.Errorf("%w: writing %d bytes at offset %d, limit %d",
			ErrBufferFull, n, len(w.buffer), w.limit)
		return nil
	}
	start := len(w.buffer)
	w.buffer = append(w.buffer, make([]byte, n)...)
	return w.buffer[start:]
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(value uint8) {
	if b := w.extend(1); b != nil {
		b[0] = value
	}
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(value int8) { w.WriteUint8(uint8(value)) }

// WriteBool writes 1 for true and 0 for false.
func (w *Writer) WriteBool(value bool) {
	if value {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteUint16 writes a big-endian uint16.
func (w *Writer) WriteUint16(value uint16) {
	if b := w.extend(2); b != nil {
		binary.BigEndian.PutUint16(b, value)
	}
}

// WriteInt16 writes a big-endian int16.
func (w *Writer) WriteInt16(value int16) { w.WriteUint16(uint16(value)) }

// WriteUint32 writes a big-endian uint32.
func (w *Writer) WriteUint32(value uint32) {
	if b := w.extend(4); b != nil {
		binary.BigEndian.PutUint32(b, value)
	}
}

// WriteInt32 writes a big-endian int32.
func (w *Writer) WriteInt32(value int32) { w.WriteUint32(uint32(value)) }

// WriteString writes an int32 byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(value string) {
	w.WriteInt32(int32(len(value)))
	if b := w.extend(len(value)); b != nil {
		copy(b, value)
	}
}

// WriteStringArray writes an int32 count followed by each string. A
// nil slice is written as NilLength.
func (w *Writer) WriteStringArray(values []string) {
	if values == nil {
		w.WriteInt32(NilLength)
		return
	}
	w.WriteInt32(int32(len(values)))
	for _, value := range values {
		w.WriteString(value)
	}
}

// WriteUint8Array writes every element of values.
func (w *Writer) WriteUint8Array(values []uint8) {
	w.WriteUint8ArrayPrefix(values, len(values))
}

// WriteUint8ArrayPrefix writes only the first count elements of
// values. A nil slice is written as NilLength regardless of count.
func (w *Writer) WriteUint8ArrayPrefix(values []uint8, count int) {
	if !w.arrayHeader(values == nil, len(values), count) {
		return
	}
	if b := w.extend(count); b != nil {
		copy(b, values[:count])
	}
}

// WriteInt16Array writes every element of values.
func (w *Writer) WriteInt16Array(values []int16) {
	w.WriteInt16ArrayPrefix(values, len(values))
}

// WriteInt16ArrayPrefix writes only the first count elements of
// values. A nil slice is written as NilLength regardless of count.
func (w *Writer) WriteInt16ArrayPrefix(values []int16, count int) {
	if !w.arrayHeader(values == nil, len(values), count) {
		return
	}
	b := w.extend(2 * count)
	if b == nil {
		return
	}
	for i, value := range values[:count] {
		binary.BigEndian.PutUint16(b[2*i:], uint16(value))
	}
}

// WriteInt32Array writes every element of values.
func (w *Writer) WriteInt32Array(values []int32) {
	w.WriteInt32ArrayPrefix(values, len(values))
}

// WriteInt32ArrayPrefix writes only the first count elements of
// values. A nil slice is written as NilLength regardless of count.
func (w *Writer) WriteInt32ArrayPrefix(values []int32, count int) {
	if !w.arrayHeader(values == nil, len(values), count) {
		return
	}
	b := w.extend(4 * count)
	if b == nil {
		return
	}
	for i, value := range values[:count] {
		binary.BigEndian.PutUint32(b[4*i:], uint32(value))
	}
}

// arrayHeader writes the element count and reports whether the
// caller should go on to write elements.
func (w *Writer) arrayHeader(isNil bool, available, count int) bool {
	if w.err != nil {
		return false
	}
	if isNil {
		w.WriteInt32(NilLength)
		return false
	}
	if count < 0 || count > available {
		w.err = fmt.Errorf("%w: writing %d of %d elements", ErrInvalidLength, count, available)
		return false
	}
	w.WriteInt32(int32(count))
	return w.err == nil
}
