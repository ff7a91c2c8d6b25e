// Package logbuf keeps a bounded in-process tail of log records so the admin
// API can serve recent logs without touching disk.
package logbuf

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer retains the most recent capacity entries. Safe for concurrent use.
type Buffer struct {
	mu  sync.Mutex
	cap int
	buf []Entry
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	return &Buffer{cap: capacity}
}

func (b *Buffer) append(e Entry) {
	b.mu.Lock()
	b.buf = append(b.buf, e)
	if len(b.buf) > b.cap {
		// Drop the oldest half the slack at once to amortize copying.
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.cap:]...)
	}
	b.mu.Unlock()
}

// Query returns entries at or above minLevel recorded since the given time,
// oldest first. A zero since matches everything; limit <= 0 means no limit,
// otherwise the newest limit entries are kept.
func (b *Buffer) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	for _, e := range b.buf {
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if levelOf(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func levelOf(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Handler is an slog.Handler that records every entry into the buffer and
// forwards to inner for its own level filtering.
type Handler struct {
	inner slog.Handler
	buf   *Buffer
	bound []slog.Attr
	group string
}

// NewHandler wraps inner so records are also captured into buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled always reports true so the buffer sees every level; the inner
// handler applies its own filter in Handle.
func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.bound))
	put := func(key string, val slog.Value) {
		v := val.Resolve().Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs[key] = v
	}
	// Bound attrs were qualified when bound; only record attrs take the
	// current group prefix.
	for _, a := range h.bound {
		put(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		put(key, a.Value)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.buf.append(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Qualify with the group open right now; groups opened later must not
	// retroactively prefix these.
	bound := make([]slog.Attr, len(h.bound), len(h.bound)+len(attrs))
	copy(bound, h.bound)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		bound = append(bound, a)
	}
	return &Handler{
		inner: h.inner.WithAttrs(attrs),
		buf:   h.buf,
		bound: bound,
		group: h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	g := name
	if h.group != "" {
		g = h.group + "." + name
	}
	return &Handler{
		inner: h.inner.WithGroup(name),
		buf:   h.buf,
		bound: h.bound,
		group: g,
	}
}
