package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_KeepsMostRecentEntries(t *testing.T) {
	ring := NewRing(3, slog.LevelInfo)
	log := slog.New(ring)

	for _, m := range []string{"one", "two", "three", "four", "five"} {
		log.Info(m)
	}

	entries := ring.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "three", entries[0].Message)
	assert.Equal(t, "four", entries[1].Message)
	assert.Equal(t, "five", entries[2].Message)
}

func TestRing_PartialFillAndClear(t *testing.T) {
	ring := NewRing(10, nil)
	log := slog.New(ring)

	log.Info("a")
	log.Debug("filtered out")
	log.Warn("b")

	entries := ring.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, slog.LevelWarn, entries[1].Level)

	ring.Clear()
	assert.Empty(t, ring.Entries())
}

func TestRing_AttrsAndGroups(t *testing.T) {
	ring := NewRing(5, slog.LevelDebug)
	log := slog.New(ring).With("module", "folders").WithGroup("req")

	log.Info("created", "id", 7, slog.Group("parent", "id", 1))

	entries := ring.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "module=folders req.id=7 req.parent.id=1", entries[0].Attrs)
	assert.True(t, strings.HasSuffix(entries[0].String(), "created module=folders req.id=7 req.parent.id=1"))
}

func TestRing_DefaultCapacity(t *testing.T) {
	ring := NewRing(0, nil)
	assert.Len(t, ring.buf.entries, DefaultRingSize)
}

func TestNew_FansOutToOutputAndRing(t *testing.T) {
	var buf bytes.Buffer
	log, ring := New(Options{Level: "debug", Format: "json", Output: &buf, RingSize: 4})

	log.With("module", "test").Debug(context.Background(), "hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"module":"test"`)
	require.Len(t, ring.Entries(), 1)
	assert.Equal(t, "hello", ring.Entries()[0].Message)
}

func TestNew_TextFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, ring := New(Options{Level: "warn", Output: &buf})

	log.Info(context.Background(), "quiet")
	log.Warn(context.Background(), "loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "msg=loud")
	assert.Len(t, ring.Entries(), 1)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
