// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"
	"time"

	"github.com/bureau-foundation/heapscope/lib/clock"
)

// stopwatch accumulates running time between Start and Stop calls.
type stopwatch struct {
	clock clock.Clock

	mu      sync.Mutex
	total   time.Duration
	started time.Time
	running bool
}

func newStopwatch(c clock.Clock) *stopwatch {
	return &stopwatch{clock: c}
}

func (w *stopwatch) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		w.started = w.clock.Now()
		w.running = true
	}
}

func (w *stopwatch) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.total += w.clock.Now().Sub(w.started)
		w.running = false
	}
}

func (w *stopwatch) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.total = 0
	w.running = false
}

// Millis returns the accumulated time, including a running interval,
// in whole milliseconds clamped to int32.
func (w *stopwatch) Millis() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := w.total
	if w.running {
		total += w.clock.Now().Sub(w.started)
	}
	millis := total.Milliseconds()
	if millis > int64(^uint32(0)>>1) {
		return int32(^uint32(0) >> 1)
	}
	return int32(millis)
}
