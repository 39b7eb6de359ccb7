/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player owns the in-memory directory of virtual MSX players: one
// entry per TV/browser endpoint, created lazily on first contact and
// reclaimed by the idle reaper.
package player

import (
	"sync"
	"time"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/mahost"
)

// State is the playback state of a virtual player.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Player represents one Smart TV running MSX as a controllable playback
// target. All mutators are safe for concurrent use.
type Player struct {
	Key  identity.Key
	Name string

	mu             sync.Mutex
	state          State
	media          *mahost.Media
	lastActivity   time.Time
	disabled       bool
	volume         int
	groupMembers   map[identity.Key]struct{}
	elapsed        float64
	elapsedUpdated time.Time

	// Queue-backed playlist bookkeeping: MSX playlists are rotated so the
	// started track sits at index 0; translating host queue indexes back
	// needs the original offset and size.
	playingFromQueue bool
	queueID          string
	playlistOffset   int
	playlistSize     int
}

// New creates a player for the given key.
func New(key identity.Key, name string) *Player {
	if name == "" {
		name = "MSX TV"
	}
	return &Player{
		Key:          key,
		Name:         name,
		state:        StateIdle,
		lastActivity: time.Now(),
		volume:       100,
		groupMembers: make(map[identity.Key]struct{}),
	}
}

// Touch updates the last-activity timestamp.
func (p *Player) Touch() {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

// LastActivity returns the last-activity timestamp.
func (p *Player) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Media returns the current media descriptor, nil when idle.
func (p *Player) Media() *mahost.Media {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.media
}

// SetPlaying records a new current media and moves the player to PLAYING.
func (p *Player) SetPlaying(media *mahost.Media) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePlaying
	p.media = media
	p.elapsed = 0
	p.elapsedUpdated = time.Now()
}

// SetPaused snapshots elapsed time and moves the player to PAUSED. The host
// queue position survives, so a later resume can pick up where it left off.
func (p *Player) SetPaused() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePlaying && !p.elapsedUpdated.IsZero() {
		p.elapsed += time.Since(p.elapsedUpdated).Seconds()
	}
	p.state = StatePaused
	p.elapsedUpdated = time.Now()
}

// SetIdle clears media and queue bookkeeping and moves the player to IDLE.
func (p *Player) SetIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIdle
	p.media = nil
	p.elapsed = 0
	p.elapsedUpdated = time.Time{}
	p.playingFromQueue = false
	p.queueID = ""
	p.playlistOffset = 0
	p.playlistSize = 0
}

// AdvanceElapsed moves the elapsed-time clock forward while playing.
func (p *Player) AdvanceElapsed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying || p.elapsedUpdated.IsZero() {
		return
	}
	now := time.Now()
	p.elapsed += now.Sub(p.elapsedUpdated).Seconds()
	p.elapsedUpdated = now
}

// Elapsed returns the elapsed playback seconds.
func (p *Player) Elapsed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePlaying && !p.elapsedUpdated.IsZero() {
		return p.elapsed + time.Since(p.elapsedUpdated).Seconds()
	}
	return p.elapsed
}

// SetDisabled marks the player disabled (or enabled). Disabled players keep
// their directory entry and full state; only streams and pushes stop.
func (p *Player) SetDisabled(disabled bool) {
	p.mu.Lock()
	p.disabled = disabled
	p.mu.Unlock()
}

// Disabled reports whether the player is disabled.
func (p *Player) Disabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

// SetVolume stores the volume level (0-100).
func (p *Player) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()
}

// Volume returns the volume level.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetQueuePlaylist records that the player plays from a host queue and the
// rotation bookkeeping of the pushed MSX playlist.
func (p *Player) SetQueuePlaylist(queueID string, offset, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playingFromQueue = true
	p.queueID = queueID
	p.playlistOffset = offset
	p.playlistSize = size
}

// QueuePlaylist reports whether the player plays from a queue and returns
// the queue id with the rotation bookkeeping.
func (p *Player) QueuePlaylist() (queueID string, offset, size int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueID, p.playlistOffset, p.playlistSize, p.playingFromQueue
}

// TranslateQueueIndex maps a host queue index to the rotated MSX playlist
// index.
func (p *Player) TranslateQueueIndex(hostIndex int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playlistSize <= 0 {
		return hostIndex
	}
	idx := (hostIndex - p.playlistOffset) % p.playlistSize
	if idx < 0 {
		idx += p.playlistSize
	}
	return idx
}

// SetMembers adds and removes group members.
func (p *Player) SetMembers(add, remove []identity.Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, key := range remove {
		delete(p.groupMembers, key)
	}
	for _, key := range add {
		if key != p.Key {
			p.groupMembers[key] = struct{}{}
		}
	}
}

// GroupMembers returns a snapshot of the group member keys, excluding self.
func (p *Player) GroupMembers() []identity.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	members := make([]identity.Key, 0, len(p.groupMembers))
	for key := range p.groupMembers {
		members = append(members, key)
	}
	return members
}

// Snapshot is an immutable view of a player for diagnostics.
type Snapshot struct {
	Key          identity.Key  `json:"player_key"`
	Name         string        `json:"name"`
	State        State         `json:"state"`
	Media        *mahost.Media `json:"media,omitempty"`
	LastActivity time.Time     `json:"last_activity"`
	Disabled     bool          `json:"disabled"`
	Volume       int           `json:"volume"`
	GroupMembers int           `json:"group_members"`
}

// Snapshot returns a point-in-time view of the player.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Key:          p.Key,
		Name:         p.Name,
		State:        p.state,
		Media:        p.media,
		LastActivity: p.lastActivity,
		Disabled:     p.disabled,
		Volume:       p.volume,
		GroupMembers: len(p.groupMembers),
	}
}
