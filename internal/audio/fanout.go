/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/identity"
)

// FanOut runs at most one encode per group leader and fans the output to
// every member's delivery through a SharedStream. Used in shared group
// stream mode; independent mode bypasses this entirely.
type FanOut struct {
	pipeline *Pipeline
	log      zerolog.Logger

	mu      sync.Mutex
	streams map[identity.Key]*fanOutEntry
}

type fanOutEntry struct {
	shared *SharedStream
	cancel context.CancelFunc
}

// NewFanOut creates a fan-out coordinator over pipeline.
func NewFanOut(pipeline *Pipeline, log zerolog.Logger) *FanOut {
	return &FanOut{
		pipeline: pipeline,
		log:      log.With().Str("component", "fanout").Logger(),
		streams:  make(map[identity.Key]*fanOutEntry),
	}
}

// Subscribe returns a reader over the leader's shared stream, starting the
// encode on first use. The encode runs detached from any single member's
// request context; it stops when cancelled via Stop or when the source ends.
func (f *FanOut) Subscribe(ctx context.Context, leader identity.Key) (*SharedReader, error) {
	f.mu.Lock()
	entry, ok := f.streams[leader]
	if ok && !entry.shared.Closed() {
		reader := entry.shared.Subscribe()
		f.mu.Unlock()
		return reader, nil
	}

	shared := NewSharedStream()
	encodeCtx, cancel := context.WithCancel(context.Background())
	entry = &fanOutEntry{shared: shared, cancel: cancel}
	f.streams[leader] = entry
	reader := shared.Subscribe()
	f.mu.Unlock()

	go f.run(encodeCtx, leader, shared)
	return reader, nil
}

func (f *FanOut) run(ctx context.Context, leader identity.Key, shared *SharedStream) {
	defer shared.Close()
	defer f.drop(leader, shared)

	pcm, err := f.pipeline.streams.OpenPCM(ctx, string(leader))
	if err != nil {
		f.log.Warn().Err(err).Str("player_key", string(leader)).Msg("Shared encode: source unavailable")
		return
	}
	defer pcm.Close()

	enc, err := NewEncoder(ctx, f.pipeline.ffmpegBin, f.pipeline.codec, f.log)
	if err != nil {
		f.log.Warn().Err(err).Str("player_key", string(leader)).Msg("Shared encode: encoder failed")
		return
	}
	defer enc.Close()

	go func() {
		io.Copy(enc.Stdin(), pcm)
		enc.CloseInput()
	}()

	buf := make([]byte, pumpChunk)
	for {
		n, err := enc.Stdout().Read(buf)
		if n > 0 {
			shared.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Stop tears down the leader's shared encode if one is running.
func (f *FanOut) Stop(leader identity.Key) {
	f.mu.Lock()
	entry, ok := f.streams[leader]
	delete(f.streams, leader)
	f.mu.Unlock()
	if ok {
		entry.cancel()
		entry.shared.Close()
	}
}

func (f *FanOut) drop(leader identity.Key, shared *SharedStream) {
	f.mu.Lock()
	if entry, ok := f.streams[leader]; ok && entry.shared == shared {
		delete(f.streams, leader)
	}
	f.mu.Unlock()
}
