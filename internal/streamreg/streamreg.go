/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package streamreg tracks live audio deliveries per player so that a stop
// can tear down both the encode task and the HTTP response it feeds.
package streamreg

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/events"
	"github.com/friendsincode/msx_bridge/internal/identity"
)

// Aborter forces an in-flight HTTP response to fail fast instead of
// lingering until the client gives up.
type Aborter interface {
	Abort()
}

// Handle is one registered delivery: the cancel func kills the encode task,
// the transport aborts the response writer.
type Handle struct {
	ID        uuid.UUID
	Key       identity.Key
	CreatedAt time.Time

	cancel    context.CancelFunc
	transport Aborter
}

// Registry is the authoritative set of live deliveries. All methods are
// safe for concurrent use.
type Registry struct {
	log zerolog.Logger
	bus *events.Bus

	mu      sync.Mutex
	handles map[identity.Key]map[uuid.UUID]*Handle
}

// New creates an empty registry.
func New(bus *events.Bus, log zerolog.Logger) *Registry {
	return &Registry{
		log:     log.With().Str("component", "stream_registry").Logger(),
		bus:     bus,
		handles: make(map[identity.Key]map[uuid.UUID]*Handle),
	}
}

// Register records a delivery for key and returns its handle. transport may
// be nil when the delivery has no abortable response (tests, internal fan-in).
func (r *Registry) Register(key identity.Key, cancel context.CancelFunc, transport Aborter) *Handle {
	h := &Handle{
		ID:        uuid.New(),
		Key:       key,
		CreatedAt: time.Now(),
		cancel:    cancel,
		transport: transport,
	}
	r.mu.Lock()
	byID := r.handles[key]
	if byID == nil {
		byID = make(map[uuid.UUID]*Handle)
		r.handles[key] = byID
	}
	byID[h.ID] = h
	r.mu.Unlock()

	r.log.Debug().
		Str("player_key", string(key)).
		Str("stream_id", h.ID.String()).
		Msg("Stream registered")
	if r.bus != nil {
		r.bus.Publish(events.EventStreamStarted, events.Payload{
			"player_key": string(key),
			"stream_id":  h.ID.String(),
		})
	}
	return h
}

// Release drops the handle without cancelling it. Safe to call after the
// handle was already removed by CancelAll; release runs on every delivery
// exit path, so double release is the common case, not the exception.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	removed := false
	if byID, ok := r.handles[h.Key]; ok {
		if _, ok := byID[h.ID]; ok {
			delete(byID, h.ID)
			removed = true
		}
		if len(byID) == 0 {
			delete(r.handles, h.Key)
		}
	}
	r.mu.Unlock()
	if removed && r.bus != nil {
		r.bus.Publish(events.EventStreamFinished, events.Payload{
			"player_key": string(h.Key),
			"stream_id":  h.ID.String(),
		})
	}
}

// CancelAll cancels every delivery for key: each encode task is cancelled
// and each transport aborted, then the entries are dropped. Returns the
// number of deliveries torn down.
func (r *Registry) CancelAll(key identity.Key) int {
	r.mu.Lock()
	byID := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	for _, h := range byID {
		if h.cancel != nil {
			h.cancel()
		}
		if h.transport != nil {
			h.transport.Abort()
		}
		if r.bus != nil {
			r.bus.Publish(events.EventStreamCancelled, events.Payload{
				"player_key": string(key),
				"stream_id":  h.ID.String(),
			})
		}
	}
	if n := len(byID); n > 0 {
		r.log.Info().
			Str("player_key", string(key)).
			Int("streams", n).
			Msg("Cancelled active streams")
		return n
	}
	return 0
}

// Count returns the number of live deliveries for key.
func (r *Registry) Count(key identity.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles[key])
}

// Total returns the number of live deliveries across all players.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, byID := range r.handles {
		total += len(byID)
	}
	return total
}
