// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/transport"
)

// Monitor is the session the control actions operate on.
// *client.Client satisfies it.
type Monitor interface {
	Name() string
	GeneralInfo() string
	Events() []string
	RemoteAddress() string
	Compression() transport.Compression
	Paused() bool
	Terminated() bool
	EventCounts() []int32
	Filters() *protocol.EventFilters
	Snapshot() []*space.Space

	SendPauseReq() error
	SendRestart() error
	SendPlayOne() error
	SendShutdownReq() error
	SendEventFilters(filters *protocol.EventFilters) error
}

// Status is the "status" action's response.
type Status struct {
	Program     string        `json:"program"`
	GeneralInfo string        `json:"general_info,omitempty"`
	Remote      string        `json:"remote"`
	Compression string        `json:"compression"`
	Paused      bool          `json:"paused"`
	Terminated  bool          `json:"terminated"`
	Spaces      int           `json:"spaces"`
	Events      []EventStatus `json:"events"`
}

// EventStatus is one event's counter and filter.
type EventStatus struct {
	Name   string          `json:"name"`
	Count  int32           `json:"count"`
	Filter protocol.Filter `json:"filter"`
}

// SpaceStatus summarizes one mirrored space. Digest is the hex BLAKE3
// digest of the space's encoding, so two calls can cheaply tell whether
// anything changed in between.
type SpaceStatus struct {
	ID         uint8          `json:"id"`
	Name       string         `json:"name"`
	Driver     string         `json:"driver"`
	Title      string         `json:"title,omitempty"`
	Info       string         `json:"info,omitempty"`
	Main       bool           `json:"main,omitempty"`
	Tiles      int            `json:"tiles"`
	Used       int            `json:"used"`
	Background int            `json:"background"`
	Unused     int            `json:"unused"`
	Streams    []StreamStatus `json:"streams"`
	Digest     string         `json:"digest"`
}

// StreamStatus summarizes one stream of a space.
type StreamStatus struct {
	ID           uint8   `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Presentation string  `json:"presentation"`
	HasData      bool    `json:"has_data"`
	Summary      []int32 `json:"summary,omitempty"`
}

// SpaceDetail is the "space" action's response: the summary plus the
// per-tile values and control glyphs.
type SpaceDetail struct {
	SpaceStatus
	Control string             `json:"control"`
	Values  map[string][]int32 `json:"values"`
}

// action is one entry of the action table. Commands change the
// session and run one at a time, so a set-filters read-modify-write
// never interleaves with another.
type action struct {
	command bool
	run     func(m Monitor, request *Request) (any, error)
}

var actions = map[string]action{
	"status": {run: func(m Monitor, _ *Request) (any, error) {
		return status(m), nil
	}},
	"spaces": {run: func(m Monitor, _ *Request) (any, error) {
		snapshot := m.Snapshot()
		spaces := make([]SpaceStatus, len(snapshot))
		for i, sp := range snapshot {
			spaces[i] = spaceStatus(sp)
		}
		return spaces, nil
	}},
	"space": {run: func(m Monitor, request *Request) (any, error) {
		if request.ID == nil {
			return nil, errors.New("missing required field: id")
		}
		snapshot := m.Snapshot()
		if int(*request.ID) >= len(snapshot) {
			return nil, fmt.Errorf("%w: space %d of %d", protocol.ErrOutOfRange, *request.ID, len(snapshot))
		}
		return spaceDetail(snapshot[*request.ID]), nil
	}},
	"filters": {run: func(m Monitor, _ *Request) (any, error) {
		return status(m).Events, nil
	}},

	"pause":    signal(Monitor.SendPauseReq),
	"restart":  signal(Monitor.SendRestart),
	"play-one": signal(Monitor.SendPlayOne),
	"shutdown": signal(Monitor.SendShutdownReq),

	"set-filters": {command: true, run: func(m Monitor, request *Request) (any, error) {
		if len(request.Filters) == 0 {
			return nil, errors.New("missing required field: filters")
		}
		filters := m.Filters()
		if err := filters.Apply(m.Events(), request.Filters); err != nil {
			return nil, err
		}
		if err := m.SendEventFilters(filters); err != nil {
			return nil, err
		}
		return status(m).Events, nil
	}},
	"reset-filters": {command: true, run: func(m Monitor, _ *Request) (any, error) {
		filters := m.Filters()
		filters.RevertToDefaults()
		if err := m.SendEventFilters(filters); err != nil {
			return nil, err
		}
		return status(m).Events, nil
	}},
}

// Actions returns the name of every action the server answers, sorted.
func Actions() []string {
	return slices.Sorted(maps.Keys(actions))
}

// signal is a command action that sends one payload-free command.
func signal(send func(Monitor) error) action {
	return action{command: true, run: func(m Monitor, _ *Request) (any, error) {
		return nil, send(m)
	}}
}

func status(m Monitor) Status {
	events := m.Events()
	counts := m.EventCounts()
	filters := m.Filters()
	result := Status{
		Program:     m.Name(),
		GeneralInfo: m.GeneralInfo(),
		Remote:      m.RemoteAddress(),
		Compression: m.Compression().String(),
		Paused:      m.Paused(),
		Terminated:  m.Terminated(),
		Spaces:      len(m.Snapshot()),
		Events:      make([]EventStatus, len(events)),
	}
	for i, name := range events {
		entry := EventStatus{Name: name}
		if i < len(counts) {
			entry.Count = counts[i]
		}
		if filter, err := filters.At(i); err == nil {
			entry.Filter = filter
		}
		result.Events[i] = entry
	}
	return result
}

func spaceStatus(sp *space.Space) SpaceStatus {
	digest := sp.Digest()
	result := SpaceStatus{
		ID:      sp.ID,
		Name:    sp.Name,
		Driver:  sp.DriverName,
		Title:   sp.Title,
		Info:    sp.Info,
		Main:    sp.Main,
		Tiles:   sp.TileCount,
		Streams: make([]StreamStatus, len(sp.Streams)),
		Digest:  hex.EncodeToString(digest[:]),
	}
	for _, control := range sp.Control {
		switch {
		case space.IsControlUsed(control):
			result.Used++
		case space.IsControlBackground(control):
			result.Background++
		case space.IsControlUnused(control):
			result.Unused++
		}
	}
	for i, stream := range sp.Streams {
		result.Streams[i] = StreamStatus{
			ID:           stream.ID,
			Name:         stream.Name,
			Type:         stream.DataType.String(),
			Presentation: stream.Presentation.String(),
			HasData:      stream.HasData(),
			Summary:      stream.Summary,
		}
	}
	return result
}

func spaceDetail(sp *space.Space) SpaceDetail {
	glyphs := make([]byte, len(sp.Control))
	for i, control := range sp.Control {
		glyphs[i] = space.ControlGlyph(control)
	}
	detail := SpaceDetail{
		SpaceStatus: spaceStatus(sp),
		Control:     string(glyphs),
		Values:      make(map[string][]int32),
	}
	for _, stream := range sp.Streams {
		if !stream.HasData() {
			continue
		}
		values := make([]int32, stream.DataLen())
		for i := range values {
			values[i], _ = stream.Value(i)
		}
		detail.Values[stream.Name] = values
	}
	return detail
}
