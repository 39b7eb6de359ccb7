/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/events"
	"github.com/friendsincode/msx_bridge/internal/identity"
)

// Registrar announces directory changes to the upstream host. Registration
// happens exactly once per player creation; a failed registration rolls the
// creation back.
type Registrar interface {
	Register(ctx context.Context, key identity.Key, name string) error
	Unregister(ctx context.Context, key identity.Key) error
}

// Directory is the authoritative map of virtual players, keyed by stable
// player key. Creation is race-safe: concurrent GetOrCreate calls for the
// same key produce exactly one player and one Registrar call.
type Directory struct {
	registrar Registrar
	bus       *events.Bus
	log       zerolog.Logger

	mu      sync.Mutex
	players map[identity.Key]*Player
	pending map[identity.Key]*hostOp
}

// hostOp marks an in-flight host-facing operation (register or unregister)
// for one key. All host calls for a key serialize through this marker, so a
// removal's Unregister always completes before a new creation's Register
// can start. player is nil for removals.
type hostOp struct {
	done   chan struct{}
	player *Player
	err    error
}

// NewDirectory creates an empty directory.
func NewDirectory(registrar Registrar, bus *events.Bus, log zerolog.Logger) *Directory {
	return &Directory{
		registrar: registrar,
		bus:       bus,
		log:       log.With().Str("component", "player_directory").Logger(),
		players:   make(map[identity.Key]*Player),
		pending:   make(map[identity.Key]*hostOp),
	}
}

// Get returns the player for key, or nil.
func (d *Directory) Get(key identity.Key) *Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.players[key]
}

// GetOrCreate returns the existing player for key or creates, registers and
// stores a new one. Losers of a creation race wait for the winner's outcome
// instead of registering a duplicate.
func (d *Directory) GetOrCreate(ctx context.Context, key identity.Key, name string) (*Player, error) {
	for {
		d.mu.Lock()
		if p, ok := d.players[key]; ok {
			d.mu.Unlock()
			return p, nil
		}
		if c, ok := d.pending[key]; ok {
			d.mu.Unlock()
			select {
			case <-c.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if c.err != nil || c.player == nil {
				// Winner failed, or the marker was a removal; retry so
				// this caller can attempt its own registration.
				continue
			}
			return c.player, nil
		}
		c := &hostOp{done: make(chan struct{})}
		d.pending[key] = c
		d.mu.Unlock()

		c.player, c.err = d.create(ctx, key, name)

		d.mu.Lock()
		delete(d.pending, key)
		if c.err == nil {
			d.players[key] = c.player
		}
		d.mu.Unlock()
		close(c.done)

		if c.err != nil {
			return nil, c.err
		}
		return c.player, nil
	}
}

func (d *Directory) create(ctx context.Context, key identity.Key, name string) (*Player, error) {
	p := New(key, name)
	if err := d.registrar.Register(ctx, key, p.Name); err != nil {
		return nil, fmt.Errorf("registering player %s: %w", key, err)
	}
	d.log.Info().Str("player_key", string(key)).Msg("Player registered")
	if d.bus != nil {
		d.bus.Publish(events.EventPlayerRegistered, events.Payload{
			"player_key": string(key),
			"name":       p.Name,
		})
	}
	return p, nil
}

// Remove unregisters the player upstream and drops it from the directory.
// The removal holds the same per-key marker as creation, so a concurrent
// GetOrCreate cannot re-register at the host while the unregister is still
// in flight. A failed unregister keeps the local entry so host and
// directory stay consistent. Missing keys are a no-op.
func (d *Directory) Remove(ctx context.Context, key identity.Key) error {
	for {
		d.mu.Lock()
		if c, ok := d.pending[key]; ok {
			d.mu.Unlock()
			select {
			case <-c.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if _, ok := d.players[key]; !ok {
			d.mu.Unlock()
			return nil
		}
		c := &hostOp{done: make(chan struct{})}
		d.pending[key] = c
		d.mu.Unlock()

		err := d.registrar.Unregister(ctx, key)

		d.mu.Lock()
		delete(d.pending, key)
		if err == nil {
			delete(d.players, key)
		}
		d.mu.Unlock()
		close(c.done)

		if err != nil {
			d.log.Warn().Err(err).Str("player_key", string(key)).Msg("Unregister failed")
			return err
		}
		d.log.Info().Str("player_key", string(key)).Msg("Player removed")
		if d.bus != nil {
			d.bus.Publish(events.EventPlayerRemoved, events.Payload{"player_key": string(key)})
		}
		return nil
	}
}

// Touch refreshes the last-activity timestamp for key if present.
func (d *Directory) Touch(key identity.Key) {
	if p := d.Get(key); p != nil {
		p.Touch()
	}
}

// List returns a snapshot of all players.
func (d *Directory) List() []*Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Player, 0, len(d.players))
	for _, p := range d.players {
		out = append(out, p)
	}
	return out
}

// Len returns the player count.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.players)
}

// SetDisabled flips the disabled flag. The directory entry and playback
// state survive either way; re-enabling resumes where the player left off.
func (d *Directory) SetDisabled(key identity.Key, disabled bool) bool {
	p := d.Get(key)
	if p == nil {
		return false
	}
	p.SetDisabled(disabled)
	evt := events.EventPlayerEnabled
	if disabled {
		evt = events.EventPlayerDisabled
	}
	if d.bus != nil {
		d.bus.Publish(evt, events.Payload{"player_key": string(key)})
	}
	return true
}
