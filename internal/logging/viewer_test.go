package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, path string, fn func(*slog.Logger)) {
	t.Helper()
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)
	fn(logger)
	cleanup()
}

func TestViewer_TailFiltersByLevelAndPattern(t *testing.T) {
	// Given: a log with mixed levels
	path := filepath.Join(t.TempDir(), "amanrag.log")
	writeLog(t, path, func(l *slog.Logger) {
		l.Debug("corpus_cache_loaded", slog.Int("chunks", 3))
		l.Info("ingest_committed", slog.String("doc_id", "a"))
		l.Warn("vector_scoring_degraded", slog.String("error", "timeout"))
		l.Error("ingest_failed", slog.String("doc_id", "b"))
	})

	// When: tailing at warn level
	v := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{})
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)

	// Then: only warn and error remain
	require.Len(t, entries, 2)
	assert.Equal(t, "vector_scoring_degraded", entries[0].Msg)
	assert.Equal(t, "ingest_failed", entries[1].Msg)

	// When: filtering by pattern over the last two lines
	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`doc_id`)}, &bytes.Buffer{})
	entries, err = v.Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Attrs["doc_id"])
}

func TestViewer_FormatEntrySortsAttrs(t *testing.T) {
	e := ParseLine(`{"time":"2026-01-02T03:04:05.678Z","level":"INFO","msg":"run_finished","status":"succeeded","kind":"ingest"}`)
	require.True(t, e.Valid)

	out := NewViewer(ViewerConfig{}, nil).FormatEntry(e)

	assert.Equal(t, "03:04:05.678 INFO  run_finished kind=ingest status=succeeded", out)
}

func TestViewer_InvalidLineShownRaw(t *testing.T) {
	buf := &bytes.Buffer{}
	v := NewViewer(ViewerConfig{Level: "error"}, buf)

	e := ParseLine("panic: not json")
	v.Print([]LogEntry{e})

	assert.False(t, e.Valid)
	assert.Equal(t, "panic: not json\n", buf.String())
}

func TestViewer_FollowStreamsAppendedLines(t *testing.T) {
	// Given: an existing log being followed
	path := filepath.Join(t.TempDir(), "amanrag.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"level":"INFO","msg":"old"}`+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- NewViewer(ViewerConfig{}, nil).Follow(ctx, path, entries) }()
	time.Sleep(100 * time.Millisecond)

	// When: a line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"level":"INFO","msg":"new"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new line arrives
	select {
	case e := <-entries:
		assert.Equal(t, "new", e.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for followed entry")
	}
	cancel()
	assert.NoError(t, <-done)
}
