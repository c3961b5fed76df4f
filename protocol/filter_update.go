// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"slices"
)

// FilterUpdate overrides some fields of one event's filter, naming the
// event rather than its ID. Nil fields are left unchanged. Filter
// presets and the control socket both carry lists of updates.
type FilterUpdate struct {
	Event       string `json:"event"`
	Enabled     *bool  `json:"enabled,omitempty"`
	DelayMillis *int32 `json:"delay_ms,omitempty"`
	Pause       *bool  `json:"pause,omitempty"`
	Period      *int32 `json:"period,omitempty"`
}

// Apply applies updates in order to f. events names f's entries by
// ID. Every update naming an unknown event is reported; the others are
// still applied.
func (f *EventFilters) Apply(events []string, updates []FilterUpdate) error {
	if len(events) != f.Len() {
		return fmt.Errorf("%w: %d event names for %d filters", ErrOutOfRange, len(events), f.Len())
	}
	var errs []error
	for _, update := range updates {
		id := slices.Index(events, update.Event)
		if id < 0 {
			errs = append(errs, fmt.Errorf("%w: unknown event %q", ErrOutOfRange, update.Event))
			continue
		}
		filter, _ := f.At(id)
		if update.Enabled != nil {
			filter.Enabled = *update.Enabled
		}
		if update.DelayMillis != nil {
			filter.DelayMillis = *update.DelayMillis
		}
		if update.Pause != nil {
			filter.Pause = *update.Pause
		}
		if update.Period != nil {
			filter.Period = *update.Period
		}
		_ = f.Set(id, filter)
	}
	return errors.Join(errs...)
}
