// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the heapscope command protocol shared by
// the server interpreter (inside the instrumented program) and the
// client interpreter (inside the monitor).
//
// A connection proceeds in three phases:
//
//   - Handshake: the monitor sends a Boot frame ([ClientHandshake]), the
//     program answers with its own ([ServerHandshake]). Both then switch
//     to the negotiated compression.
//   - Full state: the program sends a [Header] message followed by one
//     message per space; the monitor rebuilds them with
//     [ReceiveSnapshot] and a side-specific factory.
//   - Commands: each message is one [Frame] holding any number of
//     commands, terminated by [End]. Each side executes incoming frames
//     through its own [Dispatcher].
//
// A Dispatcher starts with every [Code] rejected; each side installs
// handlers only for the commands it may legitimately receive, so a
// confused peer is caught on its first stray command with
// [ErrProtocolViolation].
package protocol
