// Package ops keeps recent log records in memory and serves them, together
// with session health, over HTTP.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogEntry is a single structured log record.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"msg"`
	Attrs   string    `json:"attrs,omitempty"`
}

// LogBuffer is a fixed-capacity ring buffer with fan-out to listeners.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	size    int

	listenerMu sync.RWMutex
	listeners  map[string]chan LogEntry
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{
		entries:   make([]LogEntry, capacity),
		listeners: make(map[string]chan LogEntry),
	}
}

// Add stores entry and offers it to every listener without blocking.
func (lb *LogBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	lb.entries[lb.head] = entry
	lb.head = (lb.head + 1) % len(lb.entries)
	if lb.size < len(lb.entries) {
		lb.size++
	}
	lb.mu.Unlock()

	lb.listenerMu.RLock()
	for _, ch := range lb.listeners {
		select {
		case ch <- entry:
		default:
		}
	}
	lb.listenerMu.RUnlock()
}

// Recent returns the last n entries in chronological order.
func (lb *LogBuffer) Recent(n int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	n = min(n, lb.size)
	if n <= 0 {
		return nil
	}
	out := make([]LogEntry, n)
	start := lb.head - n + len(lb.entries)
	for i := range out {
		out[i] = lb.entries[(start+i)%len(lb.entries)]
	}
	return out
}

// Listen registers a buffered channel receiving new entries. The returned
// func unregisters it and closes the channel.
func (lb *LogBuffer) Listen() (<-chan LogEntry, func()) {
	id := uuid.NewString()
	ch := make(chan LogEntry, 100)
	lb.listenerMu.Lock()
	lb.listeners[id] = ch
	lb.listenerMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			lb.listenerMu.Lock()
			delete(lb.listeners, id)
			lb.listenerMu.Unlock()
			close(ch)
		})
	}
}

// TeeHandler copies every record it handles into a LogBuffer.
type TeeHandler struct {
	inner slog.Handler
	buf   *LogBuffer
	attrs string
}

var _ slog.Handler = (*TeeHandler)(nil)

func NewTeeHandler(inner slog.Handler, buf *LogBuffer) *TeeHandler {
	return &TeeHandler{inner: inner, buf: buf}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "%s=%v ", a.Key, a.Value.Any())
		return true
	})

	h.buf.Add(LogEntry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   strings.TrimSpace(b.String()),
	})
	return h.inner.Handle(ctx, r)
}

// WithAttrs keeps the attrs in the buffered copy too, so a logger built
// with With("channel", "quote") still shows its channel.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		fmt.Fprintf(&b, "%s=%v ", a.Key, a.Value.Any())
	}
	return &TeeHandler{inner: h.inner.WithAttrs(attrs), buf: h.buf, attrs: b.String()}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{inner: h.inner.WithGroup(name), buf: h.buf, attrs: h.attrs}
}
