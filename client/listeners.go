// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
)

// ListenerID identifies a registered listener for RemoveListener.
type ListenerID uint64

// PauseListener is called when the server reports it has paused.
type PauseListener func()

// EventListener is called for every reported event boundary, after
// max-tracking streams in every space have been recomputed.
type EventListener func(event protocol.EventRecord)

// SpaceListener is called with a copy of a space whenever the server
// sends its full description.
type SpaceListener func(snapshot *space.Space)

// EventCountListener is called with a copy of the per-event counters
// each time the server sends them.
type EventCountListener func(counts []int32)

// DisconnectListener is called once when Run returns. err is nil after
// a clean shutdown.
type DisconnectListener func(err error)

type listener[F any] struct {
	id ListenerID
	fn F

	// spaceID filters space listeners; unused by the other roles.
	spaceID uint8
}

// registry is a copy-on-write listener list. Dispatch iterates an
// immutable snapshot, so a listener may add or remove listeners,
// including itself, while being called.
type registry[F any] struct {
	mu      sync.Mutex
	current atomic.Pointer[[]listener[F]]
}

func (r *registry[F]) add(entry listener[F]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next []listener[F]
	if current := r.current.Load(); current != nil {
		next = slices.Clone(*current)
	}
	next = append(next, entry)
	r.current.Store(&next)
}

func (r *registry[F]) remove(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.current.Load()
	if current == nil {
		return false
	}
	index := slices.IndexFunc(*current, func(entry listener[F]) bool { return entry.id == id })
	if index < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(*current), index, index+1)
	r.current.Store(&next)
	return true
}

func (r *registry[F]) snapshot() []listener[F] {
	if current := r.current.Load(); current != nil {
		return *current
	}
	return nil
}

type listeners struct {
	nextID     atomic.Uint64
	pause      registry[PauseListener]
	event      registry[EventListener]
	space      registry[SpaceListener]
	eventCount registry[EventCountListener]
	disconnect registry[DisconnectListener]
}

func (l *listeners) newID() ListenerID {
	return ListenerID(l.nextID.Add(1))
}

// OnPause registers fn for PAUSE.
func (c *Client) OnPause(fn PauseListener) ListenerID {
	id := c.listeners.newID()
	c.listeners.pause.add(listener[PauseListener]{id: id, fn: fn})
	return id
}

// OnEvent registers fn for EVENT. Event listeners only run while
// enabled with EnableEventListeners.
func (c *Client) OnEvent(fn EventListener) ListenerID {
	id := c.listeners.newID()
	c.listeners.event.add(listener[EventListener]{id: id, fn: fn})
	return id
}

// OnSpace registers fn for SPACE commands describing spaceID.
func (c *Client) OnSpace(spaceID uint8, fn SpaceListener) ListenerID {
	id := c.listeners.newID()
	c.listeners.space.add(listener[SpaceListener]{id: id, fn: fn, spaceID: spaceID})
	return id
}

// OnEventCount registers fn for EVENT_COUNT.
func (c *Client) OnEventCount(fn EventCountListener) ListenerID {
	id := c.listeners.newID()
	c.listeners.eventCount.add(listener[EventCountListener]{id: id, fn: fn})
	return id
}

// OnDisconnect registers fn to run when Run returns.
func (c *Client) OnDisconnect(fn DisconnectListener) ListenerID {
	id := c.listeners.newID()
	c.listeners.disconnect.add(listener[DisconnectListener]{id: id, fn: fn})
	return id
}

// RemoveListener unregisters a listener of any role. It reports
// whether the listener was registered. A listener removed while a
// dispatch is in progress may still receive that one notification.
func (c *Client) RemoveListener(id ListenerID) bool {
	l := &c.listeners
	return l.pause.remove(id) ||
		l.event.remove(id) ||
		l.space.remove(id) ||
		l.eventCount.remove(id) ||
		l.disconnect.remove(id)
}

// EnableEventListeners turns event listener dispatch on or off. It
// starts on.
func (c *Client) EnableEventListeners(enabled bool) {
	c.eventListenersEnabled.Store(enabled)
}

func (c *Client) firePause() {
	for _, entry := range c.listeners.pause.snapshot() {
		entry.fn()
	}
}

func (c *Client) fireEvent(event protocol.EventRecord) {
	for _, entry := range c.listeners.event.snapshot() {
		entry.fn(event)
	}
}

func (c *Client) fireSpace(sp *ClientSpace) {
	id := sp.ID()
	for _, entry := range c.listeners.space.snapshot() {
		if entry.spaceID == id {
			entry.fn(sp.Snapshot())
		}
	}
}

func (c *Client) fireEventCount(counts []int32) {
	for _, entry := range c.listeners.eventCount.snapshot() {
		entry.fn(slices.Clone(counts))
	}
}

func (c *Client) fireDisconnect(err error) {
	for _, entry := range c.listeners.disconnect.snapshot() {
		entry.fn(err)
	}
}
