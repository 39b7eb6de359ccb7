/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/mahost"
	"github.com/friendsincode/msx_bridge/internal/streamreg"
)

const (
	// mediaWaitTimeout bounds how long a delivery waits for the host to
	// expose the now-playing item before giving up with 404.
	mediaWaitTimeout = 10 * time.Second
	mediaWaitPoll    = 250 * time.Millisecond

	pumpChunk = 32 * 1024
)

// ErrNoMedia is returned when the host never produced a playable item
// within the wait window.
var ErrNoMedia = errors.New("no media available for player")

// NowPlayingFunc resolves the host's current queue item for a player.
type NowPlayingFunc func(ctx context.Context, playerID string) (*mahost.Media, error)

// Pipeline serves encoded audio to MSX televisions. One delivery is: wait
// for media, open host PCM, spawn an encoder, send headers with a synthetic
// Content-Length, prebuffer, pump until done. Every exit path releases the
// registry handle and reaps the encoder.
type Pipeline struct {
	streams    mahost.Streams
	nowPlaying NowPlayingFunc
	registry   *streamreg.Registry
	codec      Codec
	ffmpegBin  string
	prebuffer  int
	log        zerolog.Logger

	// onBytes, when set, observes delivered byte counts for metrics.
	onBytes func(n int)
}

// NewPipeline creates a delivery pipeline.
func NewPipeline(streams mahost.Streams, nowPlaying NowPlayingFunc, registry *streamreg.Registry, codec Codec, ffmpegBin string, prebuffer int, log zerolog.Logger) *Pipeline {
	if prebuffer <= 0 {
		prebuffer = 64 * 1024
	}
	return &Pipeline{
		streams:    streams,
		nowPlaying: nowPlaying,
		registry:   registry,
		codec:      codec,
		ffmpegBin:  ffmpegBin,
		prebuffer:  prebuffer,
		log:        log.With().Str("component", "audio_pipeline").Logger(),
	}
}

// SetBytesObserver installs a delivered-bytes callback.
func (p *Pipeline) SetBytesObserver(fn func(n int)) { p.onBytes = fn }

// Codec returns the pipeline's output codec.
func (p *Pipeline) Codec() Codec { return p.codec }

// WaitForMedia polls the host until the player has a current item, bounded
// by mediaWaitTimeout. MSX requests the audio URL the instant it receives a
// play push, often before the host finished loading the queue.
func (p *Pipeline) WaitForMedia(ctx context.Context, playerID string) (*mahost.Media, error) {
	deadline := time.Now().Add(mediaWaitTimeout)
	for {
		media, err := p.nowPlaying(ctx, playerID)
		if err == nil && media != nil && media.URI != "" {
			return media, nil
		}
		if err != nil && !errors.Is(err, mahost.ErrNotFound) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrNoMedia
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mediaWaitPoll):
		}
	}
}

// Serve delivers one track to w. transport lets a later stop abort the
// response mid-flight; media carries the duration used for the synthetic
// Content-Length.
func (p *Pipeline) Serve(w http.ResponseWriter, r *http.Request, key identity.Key, media *mahost.Media, transport streamreg.Aborter) error {
	ctx, cancel := context.WithCancel(r.Context())
	handle := p.registry.Register(key, cancel, transport)
	defer p.registry.Release(handle)
	defer cancel()

	pcm, err := p.streams.OpenPCM(ctx, string(key))
	if err != nil {
		http.Error(w, "stream source unavailable", http.StatusBadGateway)
		return fmt.Errorf("open pcm for %s: %w", key, err)
	}
	defer pcm.Close()

	enc, err := NewEncoder(ctx, p.ffmpegBin, p.codec, p.log)
	if err != nil {
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return err
	}
	defer enc.Close()

	go func() {
		io.Copy(enc.Stdin(), pcm)
		enc.CloseInput()
	}()

	return p.pump(ctx, w, key, media, enc.Stdout())
}

// ServeReader delivers an already-encoded stream, used by shared group
// fan-out where one encoder feeds many responses.
func (p *Pipeline) ServeReader(w http.ResponseWriter, r *http.Request, key identity.Key, media *mahost.Media, src io.ReadCloser, transport streamreg.Aborter) error {
	ctx, cancel := context.WithCancel(r.Context())
	handle := p.registry.Register(key, cancel, transport)
	defer p.registry.Release(handle)
	defer cancel()
	defer src.Close()

	go func() {
		<-ctx.Done()
		src.Close()
	}()

	return p.pump(ctx, w, key, media, src)
}

// pump sends headers, the prebuffered head, then the rest of the stream.
// Headers go out before the first payload byte; the prebuffer absorbs the
// encoder's spin-up so the TV's probe request sees immediate data.
func (p *Pipeline) pump(ctx context.Context, w http.ResponseWriter, key identity.Key, media *mahost.Media, src io.Reader) error {
	head := make([]byte, p.prebuffer)
	n, readErr := io.ReadAtLeast(src, head, p.prebuffer)
	if n == 0 && readErr != nil {
		http.Error(w, "stream produced no data", http.StatusBadGateway)
		return fmt.Errorf("prebuffer for %s: %w", key, readErr)
	}
	head = head[:n]

	h := w.Header()
	h.Set("Content-Type", p.codec.MIMEType)
	h.Set("Cache-Control", "no-store")
	h.Set("Accept-Ranges", "none")
	duration := 0
	if media != nil {
		duration = media.Duration
	}
	if length := p.codec.EstimateContentLength(duration); length > 0 {
		h.Set("Content-Length", strconv.FormatInt(length, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(head); err != nil {
		return nil // client went away, normal teardown
	}
	p.observe(len(head))
	flush(w)

	buf := make([]byte, pumpChunk)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return nil
			}
			p.observe(n)
			flush(w)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Debug().Str("player_key", string(key)).Msg("Stream finished")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream read for %s: %w", key, err)
		}
	}
}

func (p *Pipeline) observe(n int) {
	if p.onBytes != nil {
		p.onBytes(n)
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
