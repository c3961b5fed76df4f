// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The server interpreter sleeps for event delays, polls while paused at
// a safepoint, and measures elapsed and compensation time. All of that
// goes through a Clock so tests can drive it deterministically:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go instrumented.EventBoundary(...) // sleeps for a filter delay
//	c.WaitForTimers(1)                 // the sleep has registered
//	c.Advance(250 * time.Millisecond)  // and now it returns
package clock
