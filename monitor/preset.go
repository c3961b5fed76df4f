// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/heapscope/protocol"
)

// Preset is a filter preset file: JSONC with per-event overrides keyed
// by event name, for example
//
//	{
//	  // stop at every full collection
//	  "filters": [
//	    {"event": "gc end", "pause": true},
//	    {"event": "gc start", "period": 10},
//	  ],
//	}
type Preset struct {
	Filters []protocol.FilterUpdate `json:"filters"`
}

// LoadPreset reads and parses a preset file. Unknown fields are
// rejected so typos in a key do not silently do nothing.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParsePreset(data, path)
}

// ParsePreset parses preset content; name labels errors.
func ParsePreset(data []byte, name string) (*Preset, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()

	var preset Preset
	if err := decoder.Decode(&preset); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	for i, update := range preset.Filters {
		if update.Event == "" {
			return nil, fmt.Errorf("parsing %s: filters[%d] has no event name", name, i)
		}
	}
	return &preset, nil
}

// FilterTarget is the session a preset is applied to.
type FilterTarget interface {
	Events() []string
	Filters() *protocol.EventFilters
	SendEventFilters(filters *protocol.EventFilters) error
}

// Apply merges the preset into target's current filters and sends the
// result. Nothing is sent if any update names an unknown event.
func (p *Preset) Apply(target FilterTarget) error {
	filters := target.Filters()
	if err := filters.Apply(target.Events(), p.Filters); err != nil {
		return err
	}
	return target.SendEventFilters(filters)
}
