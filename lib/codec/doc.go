// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR configuration for heapscope's
// local control socket.
//
// The monitor protocol between an instrumented program and a monitor
// has its own binary framing (package wire). CBOR is used only where a
// self-describing format is wanted: requests and responses on the
// control socket, and the CLI's raw diagnostic output. The encoder
// uses Core Deterministic Encoding, so the same logical value always
// produces the same bytes.
//
// For buffers:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For sockets:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
//   - `cbor` tag: the type is only ever CBOR, such as the control
//     response envelope.
//   - `json` tag: the type is serialized as both JSON and CBOR.
//     fxamacker/cbor reads `json` tags when `cbor` tags are absent, so
//     one tag controls naming for both. Control payloads the CLI
//     prints as JSON and filter presets use `json` tags.
//
// Never put both tags on one field.
package codec
