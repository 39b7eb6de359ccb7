/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer provides an in-memory ring buffer for capturing logs.
package logbuffer

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Raw       string         `json:"raw,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a new log buffer with the specified capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add adds a log entry to the buffer.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// GetAll returns all log entries in chronological order.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.capacity {
		start = b.head
	}

	for i := 0; i < b.count; i++ {
		idx := (start + i) % b.capacity
		result[i] = b.entries[idx]
	}

	return result
}

// QueryParams filters log entries.
type QueryParams struct {
	Level     string // Filter by level (debug, info, warn, error)
	Component string // Filter by component
	Search    string // Search in message
	Limit     int    // Max entries to return (0 = all)
}

// Query returns log entries matching the filter criteria, newest last.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	all := b.GetAll()

	filtered := make([]LogEntry, 0, len(all))
	for _, entry := range all {
		if params.Level != "" && entry.Level != params.Level {
			continue
		}
		if params.Component != "" && entry.Component != params.Component {
			continue
		}
		if params.Search != "" && !strings.Contains(strings.ToLower(entry.Message), strings.ToLower(params.Search)) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[len(filtered)-params.Limit:]
	}
	return filtered
}

// Writer returns an io.Writer that parses zerolog JSON lines into the buffer.
func (b *Buffer) Writer() io.Writer {
	return &bufferWriter{buffer: b}
}

type bufferWriter struct {
	buffer *Buffer
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		w.buffer.Add(LogEntry{Timestamp: time.Now(), Level: "info", Raw: string(p)})
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now(), Fields: map[string]any{}}
	for key, value := range raw {
		switch key {
		case "level":
			entry.Level, _ = value.(string)
		case "message":
			entry.Message, _ = value.(string)
		case "component":
			entry.Component, _ = value.(string)
		case "time":
			if ts, ok := value.(float64); ok {
				entry.Timestamp = time.Unix(int64(ts), 0)
			}
		default:
			entry.Fields[key] = value
		}
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	w.buffer.Add(entry)
	return len(p), nil
}
