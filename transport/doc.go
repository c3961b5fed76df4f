// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries whole protocol messages between an
// instrumented program and a monitor.
//
// [Conn] frames each message as a 4-byte big-endian length followed by
// the body, enforces a maximum message length, and exposes a
// non-blocking liveness flag ([Conn.HasTerminated]) that flips as soon
// as a receive or send fails or the connection is closed. Every
// failure wraps [ErrTerminated]; no retries are attempted at this
// layer.
//
// After the handshake both peers may switch to a negotiated
// [Compression]. Compressed bodies carry a 1-byte codec tag and the
// 4-byte uncompressed length ahead of the payload; messages a codec
// cannot shrink are sent with [CompressionNone] inside the same
// envelope. LZ4 uses github.com/pierrec/lz4/v4 block mode and zstd uses
// github.com/klauspost/compress/zstd.
//
// [Listener] and [Dialer] abstract connection establishment;
// [TCPListener] and [TCPDialer] are the TCP implementations.
package transport
