/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/config"
	"github.com/friendsincode/msx_bridge/internal/mahost"
	"github.com/friendsincode/msx_bridge/internal/streamreg"
)

func TestEstimateContentLength(t *testing.T) {
	mp3, err := CodecFor(config.FormatMP3)
	if err != nil {
		t.Fatalf("CodecFor(mp3): %v", err)
	}
	if got := mp3.EstimateContentLength(200); got != 8_000_000 {
		t.Fatalf("mp3 200s = %d, want 8000000", got)
	}
	aac, _ := CodecFor(config.FormatAAC)
	if got := aac.EstimateContentLength(200); got != 6_400_000 {
		t.Fatalf("aac 200s = %d, want 6400000", got)
	}
	flac, _ := CodecFor(config.FormatFLAC)
	if got := flac.EstimateContentLength(10); got != 1_200_000 {
		t.Fatalf("flac 10s = %d, want 1200000", got)
	}
	if got := mp3.EstimateContentLength(0); got != 0 {
		t.Fatalf("zero duration = %d, want 0", got)
	}
	if got := mp3.EstimateContentLength(-5); got != 0 {
		t.Fatalf("negative duration = %d, want 0", got)
	}
}

func TestCodecForUnknown(t *testing.T) {
	if _, err := CodecFor(config.OutputFormat("ogg")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestCodecMIMETypes(t *testing.T) {
	want := map[config.OutputFormat]string{
		config.FormatMP3:  "audio/mpeg",
		config.FormatAAC:  "audio/aac",
		config.FormatFLAC: "audio/flac",
	}
	for format, mime := range want {
		c, err := CodecFor(format)
		if err != nil {
			t.Fatalf("CodecFor(%s): %v", format, err)
		}
		if c.MIMEType != mime {
			t.Errorf("%s MIME = %s, want %s", format, c.MIMEType, mime)
		}
	}
}

type fakeStreams struct {
	data    []byte
	openErr error
	closed  chan struct{}
}

func (f *fakeStreams) OpenPCM(ctx context.Context, playerID string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &trackedReader{Reader: bytes.NewReader(f.data), closed: f.closed}, nil
}

type trackedReader struct {
	io.Reader
	closed chan struct{}
}

func (r *trackedReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func testPipeline(t *testing.T, streams mahost.Streams) (*Pipeline, *streamreg.Registry) {
	t.Helper()
	codec, err := CodecFor(config.FormatMP3)
	if err != nil {
		t.Fatalf("CodecFor: %v", err)
	}
	reg := streamreg.New(nil, zerolog.Nop())
	nowPlaying := func(ctx context.Context, playerID string) (*mahost.Media, error) {
		return &mahost.Media{URI: "library://track/1", Duration: 200}, nil
	}
	// "cat" copies stdin to stdout, standing in for ffmpeg so the pipeline
	// runs without an encoder binary on the test host.
	p := NewPipeline(streams, nowPlaying, reg, codec, "cat", 16, zerolog.Nop())
	return p, reg
}

func TestServeSetsHeadersBeforeBody(t *testing.T) {
	payload := []byte(strings.Repeat("pcm-data-", 100))
	streams := &fakeStreams{data: payload, closed: make(chan struct{})}
	p, reg := testPipeline(t, streams)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/msx/audio/msx_tv.mp3", nil)
	if err := p.Serve(rec, req, "msx_tv", &mahost.Media{URI: "x", Duration: 200}, nil); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "8000000" {
		t.Errorf("Content-Length = %q, want 8000000", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("body mismatch: got %d bytes, want %d", rec.Body.Len(), len(payload))
	}

	// Cleanup ran: registry empty, source closed.
	if reg.Count("msx_tv") != 0 {
		t.Error("registry handle leaked after successful delivery")
	}
	select {
	case <-streams.closed:
	case <-time.After(time.Second):
		t.Error("PCM source never closed")
	}
}

func TestServeOmitsContentLengthWithoutDuration(t *testing.T) {
	streams := &fakeStreams{data: []byte("short"), closed: make(chan struct{})}
	p, _ := testPipeline(t, streams)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/msx/audio/msx_tv.mp3", nil)
	if err := p.Serve(rec, req, "msx_tv", &mahost.Media{URI: "x"}, nil); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := rec.Header().Get("Content-Length"); got != "" {
		t.Errorf("Content-Length = %q, want unset", got)
	}
}

func TestServeCleansUpOnSourceFailure(t *testing.T) {
	streams := &fakeStreams{openErr: mahost.ErrSourceUnavailable, closed: make(chan struct{})}
	p, reg := testPipeline(t, streams)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/msx/audio/msx_tv.mp3", nil)
	if err := p.Serve(rec, req, "msx_tv", &mahost.Media{URI: "x"}, nil); err == nil {
		t.Fatal("expected error when source unavailable")
	}
	if rec.Code != 502 {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if reg.Count("msx_tv") != 0 {
		t.Error("registry handle leaked on failure path")
	}
}

func TestWaitForMediaBounded(t *testing.T) {
	codec, _ := CodecFor(config.FormatMP3)
	reg := streamreg.New(nil, zerolog.Nop())
	calls := 0
	nowPlaying := func(ctx context.Context, playerID string) (*mahost.Media, error) {
		calls++
		if calls < 3 {
			return nil, mahost.ErrNotFound
		}
		return &mahost.Media{URI: "library://track/1"}, nil
	}
	p := NewPipeline(&fakeStreams{}, nowPlaying, reg, codec, "cat", 16, zerolog.Nop())

	media, err := p.WaitForMedia(context.Background(), "msx_tv")
	if err != nil {
		t.Fatalf("WaitForMedia: %v", err)
	}
	if media.URI != "library://track/1" {
		t.Fatalf("unexpected media %+v", media)
	}
	if calls != 3 {
		t.Fatalf("expected 3 polls, got %d", calls)
	}
}

func TestWaitForMediaCancelled(t *testing.T) {
	codec, _ := CodecFor(config.FormatMP3)
	reg := streamreg.New(nil, zerolog.Nop())
	nowPlaying := func(ctx context.Context, playerID string) (*mahost.Media, error) {
		return nil, mahost.ErrNotFound
	}
	p := NewPipeline(&fakeStreams{}, nowPlaying, reg, codec, "cat", 16, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.WaitForMedia(ctx, "msx_tv"); err == nil {
		t.Fatal("expected error after context cancellation")
	}
}

func TestSharedStreamFanOut(t *testing.T) {
	s := NewSharedStream()
	a := s.Subscribe()
	b := s.Subscribe()

	payload := []byte("encoded-audio-chunk")
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s.Close()

	for name, r := range map[string]*SharedReader{"a": a, "b": b} {
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("reader %s: %v", name, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("reader %s got %q", name, got)
		}
	}
}

func TestSharedStreamLateJoinerCatchesUp(t *testing.T) {
	s := NewSharedStream()
	s.Write([]byte("first-"))
	s.Write([]byte("second"))

	late := s.Subscribe()
	s.Close()

	got, err := io.ReadAll(late)
	if err != nil {
		t.Fatalf("late reader: %v", err)
	}
	if string(got) != "first-second" {
		t.Errorf("late reader got %q, want catch-up from ring", got)
	}
}

func TestSharedStreamSlowReaderDropsOldest(t *testing.T) {
	s := NewSharedStream()
	r := s.Subscribe()

	// Overfill the reader's queue; the writer must not block and the
	// oldest chunks must give way.
	for i := 0; i < sharedChunkQueue*2; i++ {
		s.Write([]byte{byte(i)})
	}
	s.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) == 0 || len(got) > sharedChunkQueue {
		t.Fatalf("slow reader drained %d chunks, want 1..%d", len(got), sharedChunkQueue)
	}
	// The newest chunk survives the drops.
	if got[len(got)-1] != byte(sharedChunkQueue*2-1) {
		t.Errorf("final chunk = %d, want newest", got[len(got)-1])
	}
}

func TestSharedReaderCloseDuringBlockedRead(t *testing.T) {
	s := NewSharedStream()
	r := s.Subscribe()

	// One goroutine reads until the reader errors out; the close below
	// races it the way a cancellation watchdog would.
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := r.Read(buf); err != nil {
				done <- err
				return
			}
		}
	}()

	s.Write([]byte("chunk"))
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-done:
		if err != io.ErrClosedPipe {
			t.Fatalf("read after close = %v, want ErrClosedPipe", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not wake after Close")
	}

	// A read on the closed reader stays closed.
	if _, err := r.Read(make([]byte, 8)); err != io.ErrClosedPipe {
		t.Fatalf("second read = %v, want ErrClosedPipe", err)
	}
}

func TestSharedReaderCloseDetaches(t *testing.T) {
	s := NewSharedStream()
	r := s.Subscribe()
	if s.Readers() != 1 {
		t.Fatalf("readers = %d", s.Readers())
	}
	r.Close()
	if s.Readers() != 0 {
		t.Fatalf("readers after close = %d", s.Readers())
	}
	// Writes after the last reader left must still succeed.
	if _, err := s.Write([]byte("x")); err != nil {
		t.Fatalf("write after detach: %v", err)
	}
}
