package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configure New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "text" or "json". Empty means text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// RingSize is the capacity of the in-memory sink; 0 means DefaultRingSize.
	RingSize int
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// New builds the application logger: a text or JSON handler on Output, fanned
// out to an in-memory Ring that is returned alongside.
func New(opts Options) (*SlogLogger, *Ring) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: level}

	var primary slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		primary = slog.NewJSONHandler(out, hopts)
	} else {
		primary = slog.NewTextHandler(out, hopts)
	}

	ring := NewRing(opts.RingSize, level)
	return NewSlogLogger(slog.New(slogmulti.Fanout(primary, ring))), ring
}
