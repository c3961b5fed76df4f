// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire encodes and decodes the primitive values carried inside
// heapscope protocol messages.
//
// All multi-byte integers are big-endian. Strings are an int32 byte
// length followed by UTF-8 bytes. Arrays are an int32 element count
// followed by the elements; a count of [NilLength] encodes "no value"
// and decodes to a nil slice, which is distinct from a populated
// zero-length array (count 0, decodes to an empty non-nil slice).
//
// [Writer] and [Reader] use sticky errors: once an operation fails,
// every later operation is a no-op and Err reports the first failure.
// Callers encode or decode a whole message and check the error once:
//
//	w := wire.NewWriter(maxLength)
//	w.WriteUint8(spaceID)
//	w.WriteInt32Array(values)
//	if err := w.Err(); err != nil {
//	    return err
//	}
//
// Every Read*Array call consumes exactly the bytes produced by the
// matching Write*Array call, so no out-of-band length is needed.
package wire
