// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control exposes a running monitor session on a local Unix
// socket so other processes can inspect and steer it.
//
// The wire format is one CBOR request per connection, a map with an
// "action" key plus action-specific fields, answered by one [Response].
// A [Server] is bound to one [Monitor] and answers the actions listed
// by [Actions]. Requests are capped at [DefaultMaxRequestSize] unless
// [Options] says otherwise, and actions that send to the session run
// one at a time. [Client] is the calling side used by
// "heapscope control".
package control
