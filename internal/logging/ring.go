package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultRingSize is the number of entries a Ring keeps unless told otherwise.
const DefaultRingSize = 500

// Entry is one record captured by a Ring.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string
}

func (e Entry) String() string {
	line := fmt.Sprintf("%s %-5s %s", e.Time.Format("2006-01-02 15:04:05"), e.Level.String(), e.Message)
	if e.Attrs != "" {
		line += " " + e.Attrs
	}
	return line
}

type ringBuffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// Ring is a slog.Handler that keeps the most recent records in memory so
// the presentation layer can show them without reading log files.
type Ring struct {
	buf    *ringBuffer
	level  slog.Leveler
	attrs  []string
	prefix string
}

// NewRing creates a ring holding up to capacity entries at or above level.
func NewRing(capacity int, level slog.Leveler) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Ring{
		buf:   &ringBuffer{entries: make([]Entry, capacity)},
		level: level,
	}
}

func (r *Ring) Enabled(_ context.Context, l slog.Level) bool {
	return l >= r.level.Level()
}

func (r *Ring) Handle(_ context.Context, rec slog.Record) error {
	attrs := append([]string(nil), r.attrs...)
	rec.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, r.prefix, a)
		return true
	})

	e := Entry{Time: rec.Time, Level: rec.Level, Message: rec.Message, Attrs: strings.Join(attrs, " ")}

	b := r.buf
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
	return nil
}

func (r *Ring) WithAttrs(as []slog.Attr) slog.Handler {
	nr := *r
	nr.attrs = append([]string(nil), r.attrs...)
	for _, a := range as {
		nr.attrs = appendAttr(nr.attrs, r.prefix, a)
	}
	return &nr
}

func (r *Ring) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	nr := *r
	nr.prefix = r.prefix + name + "."
	return &nr
}

// Entries returns the captured records, oldest first.
func (r *Ring) Entries() []Entry {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		return append([]Entry(nil), b.entries[:b.next]...)
	}
	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Clear drops all captured records.
func (r *Ring) Clear() {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	b.next, b.full = 0, false
}

func appendAttr(dst []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, p, ga)
		}
		return dst
	}
	return append(dst, prefix+a.Key+"="+a.Value.String())
}
