/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notify pushes playback commands to MSX televisions over
// per-player WebSocket channels. The TV holds one socket open from its
// interaction plugin; the bridge tells it what to start and stop.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/msx_bridge/internal/events"
	"github.com/friendsincode/msx_bridge/internal/identity"
)

// Message types understood by the MSX interaction plugin.
const (
	TypePlay       = "play"
	TypeStop       = "stop"
	TypePlayUpdate = "play_update"
	TypePlaylist   = "playlist"
	TypeGotoIndex  = "goto_index"
)

// PlayMessage tells the TV to start (or update) audio playback.
type PlayMessage struct {
	Type       string `json:"type"`
	Path       string `json:"path"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	NextAction string `json:"next_action,omitempty"`
	PrevAction string `json:"prev_action,omitempty"`
}

// StopMessage tells the TV to stop its player panel.
type StopMessage struct {
	Type             string `json:"type"`
	ShowNotification bool   `json:"showNotification"`
}

// PlaylistMessage pushes a native MSX playlist to the TV.
type PlaylistMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// GotoIndexMessage moves the TV's native playlist cursor.
type GotoIndexMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Play  bool   `json:"play"`
}

// Canceler tears down live audio deliveries for a player. Satisfied by the
// stream registry.
type Canceler interface {
	CancelAll(key identity.Key) int
}

// Notifier fans push messages out to every socket subscribed for a player
// key and owns the stop ordering between push and stream teardown.
type Notifier struct {
	canceler           Canceler
	stopShared         func(key identity.Key)
	stopBroadcastFirst bool
	showStopNote       bool
	bus                *events.Bus
	log                zerolog.Logger

	mu      sync.Mutex
	clients map[identity.Key]map[*client]struct{}
}

type client struct {
	send chan []byte
}

// New creates a notifier. stopShared, when non-nil, tears down a shared
// group encode on stop.
func New(canceler Canceler, stopShared func(key identity.Key), stopBroadcastFirst, showStopNotification bool, bus *events.Bus, log zerolog.Logger) *Notifier {
	return &Notifier{
		canceler:           canceler,
		stopShared:         stopShared,
		stopBroadcastFirst: stopBroadcastFirst,
		showStopNote:       showStopNotification,
		bus:                bus,
		log:                log.With().Str("component", "notifier").Logger(),
		clients:            make(map[identity.Key]map[*client]struct{}),
	}
}

// Handle upgrades the request to a WebSocket and serves it until the TV
// disconnects. onActivity fires per received frame so the idle reaper sees
// the TV as alive while the socket chats.
func (n *Notifier) Handle(w http.ResponseWriter, r *http.Request, key identity.Key, onActivity func()) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		n.log.Error().Err(err).Str("player_key", string(key)).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c := &client{send: make(chan []byte, 16)}
	n.attach(key, c)
	defer n.detach(key, c)

	n.log.Info().Str("player_key", string(key)).Msg("Push channel connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: the TV sends pings and state acks; each frame counts as
	// activity. A read error means the socket is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
			if onActivity != nil {
				onActivity()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				if websocket.CloseStatus(err) == -1 {
					n.log.Debug().Err(err).Str("player_key", string(key)).Msg("websocket write error")
				}
				return
			}
		}
	}
}

func (n *Notifier) attach(key identity.Key, c *client) {
	n.mu.Lock()
	set := n.clients[key]
	if set == nil {
		set = make(map[*client]struct{})
		n.clients[key] = set
	}
	set[c] = struct{}{}
	n.mu.Unlock()
}

func (n *Notifier) detach(key identity.Key, c *client) {
	n.mu.Lock()
	if set, ok := n.clients[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(n.clients, key)
		}
	}
	n.mu.Unlock()
}

// Subscribers returns the socket count for key.
func (n *Notifier) Subscribers(key identity.Key) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients[key])
}

// TotalSubscribers returns the socket count across all keys.
func (n *Notifier) TotalSubscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, set := range n.clients {
		total += len(set)
	}
	return total
}

func (n *Notifier) broadcast(key identity.Key, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Msg("marshal push message")
		return 0
	}
	n.mu.Lock()
	set := n.clients[key]
	delivered := 0
	for c := range set {
		select {
		case c.send <- data:
			delivered++
		default:
			// Slow socket; this control message is superseded by the
			// next one anyway.
		}
	}
	n.mu.Unlock()
	return delivered
}

// NotifyPlay pushes a play command.
func (n *Notifier) NotifyPlay(key identity.Key, msg PlayMessage) {
	msg.Type = TypePlay
	sent := n.broadcast(key, msg)
	n.log.Debug().Str("player_key", string(key)).Int("sockets", sent).Str("path", msg.Path).Msg("Pushed play")
	if n.bus != nil {
		n.bus.Publish(events.EventPushPlay, events.Payload{"player_key": string(key), "path": msg.Path})
	}
}

// NotifyPlayUpdate pushes metadata for a mid-queue track change without
// restarting the TV's player panel.
func (n *Notifier) NotifyPlayUpdate(key identity.Key, msg PlayMessage) {
	msg.Type = TypePlayUpdate
	n.broadcast(key, msg)
	if n.bus != nil {
		n.bus.Publish(events.EventPushPlayUpdate, events.Payload{"player_key": string(key)})
	}
}

// NotifyPlaylist pushes a native playlist to the TV.
func (n *Notifier) NotifyPlaylist(key identity.Key, data any) {
	n.broadcast(key, PlaylistMessage{Type: TypePlaylist, Data: data})
}

// NotifyGotoIndex moves the TV's playlist cursor.
func (n *Notifier) NotifyGotoIndex(key identity.Key, index int, play bool) {
	n.broadcast(key, GotoIndexMessage{Type: TypeGotoIndex, Index: index, Play: play})
}

// NotifyStop stops playback on the TV and tears down live streams. Order
// matters: broadcasting first lets the TV close its player before the
// stream dies under it, which avoids an on-screen error. The fallback
// order (cancel first) exists for TVs that ignore the push while playing.
func (n *Notifier) NotifyStop(key identity.Key) {
	if n.stopBroadcastFirst {
		n.pushStop(key)
		n.cancelStreams(key)
	} else {
		n.cancelStreams(key)
		n.pushStop(key)
	}
}

func (n *Notifier) pushStop(key identity.Key) {
	sent := n.broadcast(key, StopMessage{Type: TypeStop, ShowNotification: n.showStopNote})
	n.log.Debug().Str("player_key", string(key)).Int("sockets", sent).Msg("Pushed stop")
	if n.bus != nil {
		n.bus.Publish(events.EventPushStop, events.Payload{"player_key": string(key)})
	}
}

func (n *Notifier) cancelStreams(key identity.Key) {
	if n.stopShared != nil {
		n.stopShared(key)
	}
	if n.canceler != nil {
		n.canceler.CancelAll(key)
	}
}
