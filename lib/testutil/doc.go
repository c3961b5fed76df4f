// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for heapscope packages.
//
// [SocketDir] creates a short temporary directory in /tmp for the
// control socket tests.
//
// [RequireReceive] and [RequireClosed] wrap the select with a
// wall-clock fallback that tests otherwise repeat; [RequireEventually]
// and [RequireSocket] poll for state that has no channel. They are the
// only real timeouts in the test suite. Safepoint polling and event
// delays run on the fake clock in lib/clock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
