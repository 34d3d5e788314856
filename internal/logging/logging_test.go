package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath_UnderAmanragDir(t *testing.T) {
	path := DefaultLogPath()
	assert.Equal(t, "amanrag.log", filepath.Base(path))
	assert.Contains(t, path, ".amanrag")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestSetup_WritesJSONEvents(t *testing.T) {
	// Given: a file logger in a temp dir
	path := filepath.Join(t.TempDir(), "logs", "amanrag.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)

	// When: an event is logged
	logger.Info("ingest_committed", slog.String("doc_id", "abc"), slog.Int("doc_version", 2))
	cleanup()

	// Then: the file holds one JSON record with the event attributes
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "ingest_committed", rec["msg"])
	assert.Equal(t, "abc", rec["doc_id"])
	assert.EqualValues(t, 2, rec["doc_version"])
}

func TestRotatingWriter_RotatesAndCapsFiles(t *testing.T) {
	// Given: a writer with a tiny size budget
	path := filepath.Join(t.TempDir(), "amanrag.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	w.maxSize = 16
	defer func() { _ = w.Close() }()

	// When: writing more than three files' worth
	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("0123456789abcdef"))
		require.NoError(t, err)
	}

	// Then: current + two rotated files exist, no third
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
