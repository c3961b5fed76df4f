// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the monitor-side interpreter.
//
// [Connect] dials a server, performs the handshake, and receives the
// full state: the snapshot header and one [ClientSpace] per server
// space. [Client.Run] then executes the server's command stream on a
// single goroutine, keeping the mirrored spaces current and notifying
// listeners:
//
//   - pause listeners on PAUSE
//   - event listeners on EVENT, after max-tracking streams in every
//     space are recomputed, while enabled with
//     [Client.EnableEventListeners]
//   - space listeners on SPACE, filtered by space ID
//   - event count listeners on EVENT_COUNT
//   - disconnect listeners once, when Run returns
//
// Listener registries are copy-on-write. A listener may register or
// remove listeners, or send commands, from inside its callback.
//
// The Send methods may be called from any goroutine while Run is
// active.
package client
