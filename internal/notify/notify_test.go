/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/identity"
)

type recordingCanceler struct {
	mu    sync.Mutex
	calls []identity.Key
	hook  func()
}

func (r *recordingCanceler) CancelAll(key identity.Key) int {
	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.mu.Unlock()
	if r.hook != nil {
		r.hook()
	}
	return 1
}

// attachProbe registers a fake socket and returns its receive queue.
func attachProbe(n *Notifier, key identity.Key) chan []byte {
	c := &client{send: make(chan []byte, 16)}
	n.attach(key, c)
	return c.send
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal push %q: %v", raw, err)
	}
	return m
}

func TestNotifyPlayPayload(t *testing.T) {
	n := New(nil, nil, true, false, nil, zerolog.Nop())
	recv := attachProbe(n, "msx_tv")

	n.NotifyPlay("msx_tv", PlayMessage{
		Path:       "/msx/audio/msx_tv.mp3",
		Title:      "Song",
		Artist:     "Band",
		Duration:   200,
		NextAction: "content:request:interaction:next",
	})

	msg := decode(t, <-recv)
	if msg["type"] != "play" {
		t.Errorf("type = %v", msg["type"])
	}
	if msg["path"] != "/msx/audio/msx_tv.mp3" {
		t.Errorf("path = %v", msg["path"])
	}
	if msg["duration"] != float64(200) {
		t.Errorf("duration = %v", msg["duration"])
	}
	if _, ok := msg["image_url"]; ok {
		t.Error("empty image_url should be omitted")
	}
}

func TestNotifyStopBroadcastsBeforeCancel(t *testing.T) {
	var order []string
	var mu sync.Mutex
	canceler := &recordingCanceler{hook: func() {
		mu.Lock()
		order = append(order, "cancel")
		mu.Unlock()
	}}
	n := New(canceler, nil, true, true, nil, zerolog.Nop())
	recv := attachProbe(n, "msx_tv")

	n.NotifyStop("msx_tv")

	// The push was queued before CancelAll ran.
	select {
	case raw := <-recv:
		msg := decode(t, raw)
		if msg["type"] != "stop" {
			t.Fatalf("type = %v", msg["type"])
		}
		if msg["showNotification"] != true {
			t.Errorf("showNotification = %v", msg["showNotification"])
		}
	default:
		t.Fatal("stop push not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 1 {
		t.Fatalf("cancel calls = %v", order)
	}
}

func TestNotifyStopCancelFirstFallback(t *testing.T) {
	var seq []string
	canceler := &recordingCanceler{hook: func() { seq = append(seq, "cancel") }}
	n := New(canceler, nil, false, false, nil, zerolog.Nop())

	recv := attachProbe(n, "msx_tv")
	// Wrap broadcast observation: the push lands in recv only after
	// NotifyStop returns; cancel must already have happened by then.
	n.NotifyStop("msx_tv")

	if len(seq) != 1 || seq[0] != "cancel" {
		t.Fatalf("cancel not invoked: %v", seq)
	}
	select {
	case raw := <-recv:
		if decode(t, raw)["type"] != "stop" {
			t.Fatal("expected stop push")
		}
	default:
		t.Fatal("stop push missing in cancel-first mode")
	}
}

func TestNotifyStopTearsDownSharedEncode(t *testing.T) {
	var sharedStopped []identity.Key
	canceler := &recordingCanceler{}
	n := New(canceler, func(key identity.Key) { sharedStopped = append(sharedStopped, key) }, true, false, nil, zerolog.Nop())

	n.NotifyStop("msx_leader")
	if len(sharedStopped) != 1 || sharedStopped[0] != "msx_leader" {
		t.Fatalf("shared encode not stopped: %v", sharedStopped)
	}
}

func TestBroadcastScopedToKey(t *testing.T) {
	n := New(nil, nil, true, false, nil, zerolog.Nop())
	a := attachProbe(n, "msx_a")
	b := attachProbe(n, "msx_b")

	n.NotifyPlay("msx_a", PlayMessage{Path: "/msx/audio/msx_a.mp3"})

	if len(a) != 1 {
		t.Fatalf("target socket got %d messages", len(a))
	}
	if len(b) != 0 {
		t.Fatalf("unrelated socket got %d messages", len(b))
	}
}

func TestSlowSocketDoesNotBlockBroadcast(t *testing.T) {
	n := New(nil, nil, true, false, nil, zerolog.Nop())
	c := &client{send: make(chan []byte)} // zero capacity, never drained
	n.attach("msx_tv", c)

	done := make(chan struct{})
	go func() {
		n.NotifyPlay("msx_tv", PlayMessage{Path: "/x"})
		close(done)
	}()
	<-done // must return immediately, dropping the message
}

func TestGotoIndexPayload(t *testing.T) {
	n := New(nil, nil, true, false, nil, zerolog.Nop())
	recv := attachProbe(n, "msx_tv")

	n.NotifyGotoIndex("msx_tv", 4, true)
	msg := decode(t, <-recv)
	if msg["type"] != "goto_index" || msg["index"] != float64(4) || msg["play"] != true {
		t.Fatalf("payload = %v", msg)
	}
}
