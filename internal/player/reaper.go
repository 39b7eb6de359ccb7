/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"time"

	"github.com/friendsincode/msx_bridge/internal/events"
	"github.com/friendsincode/msx_bridge/internal/identity"
)

// Reaper periodically removes players that have been idle past the timeout.
// Disabled players are never reaped; a TV that went dark while disabled
// keeps its entry until re-enabled.
type Reaper struct {
	dir      *Directory
	timeout  time.Duration
	interval time.Duration
	onReap   func(ctx context.Context, key identity.Key)
}

// NewReaper creates a reaper over dir. onReap, when non-nil, runs before
// removal so the caller can tear down streams and push channels.
func NewReaper(dir *Directory, timeout, interval time.Duration, onReap func(ctx context.Context, key identity.Key)) *Reaper {
	return &Reaper{dir: dir, timeout: timeout, interval: interval, onReap: onReap}
}

// Run blocks until ctx is cancelled, sweeping every interval. A timeout of
// zero disables reaping entirely.
func (r *Reaper) Run(ctx context.Context) {
	if r.timeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs a single reap pass and returns the number of players
// removed.
func (r *Reaper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-r.timeout)
	reaped := 0
	for _, p := range r.dir.List() {
		if p.Disabled() {
			continue
		}
		if p.LastActivity().After(cutoff) {
			continue
		}
		key := p.Key
		r.dir.log.Info().
			Str("player_key", string(key)).
			Time("last_activity", p.LastActivity()).
			Msg("Reaping idle player")
		if r.onReap != nil {
			r.onReap(ctx, key)
		}
		if err := r.dir.Remove(ctx, key); err != nil {
			continue
		}
		if r.dir.bus != nil {
			r.dir.bus.Publish(events.EventPlayerReaped, events.Payload{"player_key": string(key)})
		}
		reaped++
	}
	return reaped
}
