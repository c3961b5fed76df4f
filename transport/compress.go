// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the codec applied to message bodies once a
// connection has negotiated it. Values are exchanged in the handshake
// and stored in each compressed body's header.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the String form of a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// Valid reports whether c is a known codec.
func (c Compression) Valid() bool { return c <= CompressionZstd }

// compressedHeaderLength is the body header used while compression is
// active: codec tag (1 byte) and uncompressed length (4 bytes).
const compressedHeaderLength = 5

var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("transport: zstd encoder initialization failed: " + err.Error())
	}
	// DecodeAll stops at the capacity of its destination, which
	// decompressZstd sizes from the body header. No header can declare
	// more than MaxUint32 bytes.
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecodeAllCapLimit(true),
		zstd.WithDecoderMaxMemory(math.MaxUint32),
	)
	if err != nil {
		panic("transport: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeBody wraps message in the compressed body format. Messages the
// codec cannot shrink are stored with CompressionNone.
func encodeBody(message []byte, codec Compression) ([]byte, error) {
	var compressed []byte
	var err error
	switch codec {
	case CompressionLZ4:
		compressed, err = compressLZ4(message)
	case CompressionZstd:
		compressed, err = compressZstd(message)
	default:
		err = errIncompressible
	}
	tag := codec
	if errors.Is(err, errIncompressible) {
		tag, compressed, err = CompressionNone, message, nil
	}
	if err != nil {
		return nil, err
	}
	body := make([]byte, compressedHeaderLength+len(compressed))
	body[0] = byte(tag)
	binary.BigEndian.PutUint32(body[1:5], uint32(len(message)))
	copy(body[compressedHeaderLength:], compressed)
	return body, nil
}

// decodeBody reverses encodeBody. maxLength bounds the declared
// uncompressed size.
func decodeBody(body []byte, maxLength int) ([]byte, error) {
	if len(body) < compressedHeaderLength {
		return nil, fmt.Errorf("compressed body of %d bytes is shorter than its header", len(body))
	}
	tag := Compression(body[0])
	size := int(binary.BigEndian.Uint32(body[1:5]))
	if size > maxLength {
		return nil, fmt.Errorf("%w: declared uncompressed size %d exceeds %d", ErrMessageTooLarge, size, maxLength)
	}
	payload := body[compressedHeaderLength:]
	switch tag {
	case CompressionNone:
		if len(payload) != size {
			return nil, fmt.Errorf("uncompressed body: size %d does not match declared %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		return decompressLZ4(payload, size)
	case CompressionZstd:
		return decompressZstd(payload, size)
	default:
		return nil, fmt.Errorf("unknown compression tag %d", uint8(tag))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
