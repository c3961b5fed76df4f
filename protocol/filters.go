// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/heapscope/wire"
)

// Filter bounds.
const (
	MaxDelayMillis = 10000
	MinPeriod      = 1
	MaxPeriod      = 1000
)

// Filter is one event's configuration.
type Filter struct {
	// Enabled events are reported; disabled events are skipped
	// entirely, regardless of Period.
	Enabled bool `json:"enabled"`

	// DelayMillis is how long the instrumented program sleeps after
	// reporting the event.
	DelayMillis int32 `json:"delay_ms"`

	// Pause makes the program pause at the safepoint following the
	// event.
	Pause bool `json:"pause"`

	// Period reports only every Period-th occurrence.
	Period int32 `json:"period"`
}

// DefaultFilter is enabled, without delay or pause, every occurrence.
func DefaultFilter() Filter {
	return Filter{Enabled: true, Period: 1}
}

// EventFilters holds one Filter per event as parallel arrays indexed
// by event ID.
type EventFilters struct {
	Enabled []bool
	Delays  []int32
	Pauses  []bool
	Periods []int32
}

// NewEventFilters returns count filters set to DefaultFilter.
func NewEventFilters(count int) *EventFilters {
	f := &EventFilters{
		Enabled: make([]bool, count),
		Delays:  make([]int32, count),
		Pauses:  make([]bool, count),
		Periods: make([]int32, count),
	}
	f.RevertToDefaults()
	return f
}

// Len returns the number of events covered.
func (f *EventFilters) Len() int { return len(f.Enabled) }

// At returns event i's filter.
func (f *EventFilters) At(i int) (Filter, error) {
	if i < 0 || i >= f.Len() {
		return Filter{}, fmt.Errorf("%w: event %d of %d", ErrOutOfRange, i, f.Len())
	}
	return Filter{Enabled: f.Enabled[i], DelayMillis: f.Delays[i], Pause: f.Pauses[i], Period: f.Periods[i]}, nil
}

// Set replaces event i's filter, clamping delay and period into range.
func (f *EventFilters) Set(i int, filter Filter) error {
	if i < 0 || i >= f.Len() {
		return fmt.Errorf("%w: event %d of %d", ErrOutOfRange, i, f.Len())
	}
	f.Enabled[i] = filter.Enabled
	f.Delays[i] = clamp(filter.DelayMillis, 0, MaxDelayMillis)
	f.Pauses[i] = filter.Pause
	f.Periods[i] = clamp(filter.Period, MinPeriod, MaxPeriod)
	return nil
}

// RevertToDefaults sets every filter to DefaultFilter.
func (f *EventFilters) RevertToDefaults() {
	for i := range f.Enabled {
		_ = f.Set(i, DefaultFilter())
	}
}

// EnableAll enables every event.
func (f *EventFilters) EnableAll() { fill(f.Enabled, true) }

// DisableAll disables every event.
func (f *EventFilters) DisableAll() { fill(f.Enabled, false) }

// ClearDelays removes every delay.
func (f *EventFilters) ClearDelays() { fill(f.Delays, 0) }

// ClearPauses removes every forced pause.
func (f *EventFilters) ClearPauses() { fill(f.Pauses, false) }

// ResetPeriods reports every occurrence of every event.
func (f *EventFilters) ResetPeriods() { fill(f.Periods, 1) }

// Clone returns an independent copy.
func (f *EventFilters) Clone() *EventFilters {
	return &EventFilters{
		Enabled: append([]bool(nil), f.Enabled...),
		Delays:  append([]int32(nil), f.Delays...),
		Pauses:  append([]bool(nil), f.Pauses...),
		Periods: append([]int32(nil), f.Periods...),
	}
}

// Normalize clamps delays and periods into range. Decoded filters are
// normalized so a zero period can never reach a modulo.
func (f *EventFilters) Normalize() {
	for i := range f.Enabled {
		f.Delays[i] = clamp(f.Delays[i], 0, MaxDelayMillis)
		f.Periods[i] = clamp(f.Periods[i], MinPeriod, MaxPeriod)
	}
}

func (f *EventFilters) encode(w *wire.Writer) {
	w.WriteUint16(uint16(f.Len()))
	for i := range f.Enabled {
		w.WriteBool(f.Enabled[i])
		w.WriteInt32(f.Delays[i])
		w.WriteBool(f.Pauses[i])
		w.WriteInt32(f.Periods[i])
	}
}

// DecodeEventFilters reads an EventFilters payload. expected is the
// receiver's event count; a payload covering a different number of
// events is malformed. The result is normalized.
func DecodeEventFilters(r *wire.Reader, expected int) *EventFilters {
	count := int(r.ReadUint16())
	if r.Err() != nil {
		return nil
	}
	if count != expected {
		r.Fail(fmt.Errorf("%w: filters for %d events, expected %d", ErrMalformedPayload, count, expected))
		return nil
	}
	f := &EventFilters{
		Enabled: make([]bool, count),
		Delays:  make([]int32, count),
		Pauses:  make([]bool, count),
		Periods: make([]int32, count),
	}
	for i := range count {
		f.Enabled[i] = r.ReadBool()
		f.Delays[i] = r.ReadInt32()
		f.Pauses[i] = r.ReadBool()
		f.Periods[i] = r.ReadInt32()
	}
	if r.Err() != nil {
		return nil
	}
	f.Normalize()
	return f
}

func clamp(value, low, high int32) int32 {
	return min(max(value, low), high)
}

func fill[T any](values []T, value T) {
	for i := range values {
		values[i] = value
	}
}
