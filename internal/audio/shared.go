/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"io"
	"sync"
)

const (
	// sharedChunkQueue bounds each reader's pending chunk queue. A reader
	// that falls behind loses its oldest chunks rather than stalling the
	// encode.
	sharedChunkQueue = 64

	// sharedCatchupBytes bounds the ring of recent output kept for late
	// joiners so a second group member starts mid-track instead of silent.
	sharedCatchupBytes = 256 * 1024
)

// SharedStream fans one encoded stream out to many readers. The writer is
// a single encode pump; readers are HTTP deliveries for each group member.
// Slow readers drop oldest data, late joiners catch up from a bounded ring.
type SharedStream struct {
	mu       sync.Mutex
	ring     [][]byte
	ringSize int
	readers  map[int]chan []byte
	nextID   int
	closed   bool
}

// NewSharedStream creates an empty shared stream.
func NewSharedStream() *SharedStream {
	return &SharedStream{readers: make(map[int]chan []byte)}
}

// Write appends a chunk and distributes it to all readers. Never blocks on
// a slow reader.
func (s *SharedStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.ring = append(s.ring, chunk)
	s.ringSize += len(chunk)
	for s.ringSize > sharedCatchupBytes && len(s.ring) > 1 {
		s.ringSize -= len(s.ring[0])
		s.ring = s.ring[1:]
	}
	for _, ch := range s.readers {
		select {
		case ch <- chunk:
		default:
			// Drop the oldest pending chunk to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- chunk:
			default:
			}
		}
	}
	s.mu.Unlock()
	return len(p), nil
}

// Close ends the stream; readers drain their pending chunks then see EOF.
func (s *SharedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, ch := range s.readers {
		close(ch)
		delete(s.readers, id)
	}
	return nil
}

// Closed reports whether the stream has ended.
func (s *SharedStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Readers returns the current reader count.
func (s *SharedStream) Readers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readers)
}

// Subscribe attaches a new reader, pre-seeded with the catch-up ring.
func (s *SharedStream) Subscribe() *SharedReader {
	ch := make(chan []byte, sharedChunkQueue)

	s.mu.Lock()
	pending := make([][]byte, len(s.ring))
	copy(pending, s.ring)
	if s.closed {
		close(ch)
	} else {
		id := s.nextID
		s.nextID++
		s.readers[id] = ch
		s.mu.Unlock()
		return &SharedReader{stream: s, id: id, ch: ch, pending: pending}
	}
	s.mu.Unlock()
	return &SharedReader{stream: s, id: -1, ch: ch, pending: pending}
}

// SharedReader is one subscriber's view of a SharedStream. Implements
// io.ReadCloser; Read returns io.EOF once the stream closes and pending
// data is drained. Read and Close may run on different goroutines: the
// delivery pump reads while a cancellation watchdog closes.
type SharedReader struct {
	stream *SharedStream
	id     int
	ch     chan []byte

	mu      sync.Mutex
	pending [][]byte
	current []byte
	closed  bool
}

func (r *SharedReader) Read(p []byte) (int, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if len(r.current) == 0 && len(r.pending) > 0 {
			r.current = r.pending[0]
			r.pending = r.pending[1:]
		}
		if len(r.current) > 0 {
			n := copy(p, r.current)
			r.current = r.current[n:]
			r.mu.Unlock()
			return n, nil
		}
		r.mu.Unlock()

		// Blocking receive outside the lock; Close wakes it by closing ch.
		chunk, ok := <-r.ch
		if !ok {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return 0, io.ErrClosedPipe
			}
			return 0, io.EOF
		}
		r.mu.Lock()
		if !r.closed {
			r.current = chunk
		}
		r.mu.Unlock()
	}
}

// Close detaches the reader from the stream. Safe to call while another
// goroutine is blocked in Read; that Read returns io.ErrClosedPipe.
func (r *SharedReader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	s := r.stream
	s.mu.Lock()
	if ch, ok := s.readers[r.id]; ok {
		delete(s.readers, r.id)
		close(ch)
	}
	s.mu.Unlock()
	return nil
}
