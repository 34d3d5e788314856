package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

func TestWriter_StatusLevels(t *testing.T) {
	// Given: a writer over a buffer (never a terminal)
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each level
	w.Success("done")
	w.Warning("careful")
	w.Error("broken")
	w.Status("", "indented")

	// Then: icons and plain text appear without escape codes
	out := buf.String()
	assert.Contains(t, out, "✅ done")
	assert.Contains(t, out, "⚠️")
	assert.Contains(t, out, "❌ broken")
	assert.Contains(t, out, "   indented")
	assert.NotContains(t, out, "\x1b[")
}

func TestIsTTY_BufferIsNotTerminal(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", Excerpt("a\n b\t\tc", 10))
	assert.Equal(t, "abc…", Excerpt("abcdef", 3))
	assert.Equal(t, "abc", Excerpt("abc", 0))
}

func TestWriter_Results(t *testing.T) {
	// Given: one ranked result
	buf := &bytes.Buffer{}
	w := New(buf)
	results := []search.Result{{
		Chunk:        store.Chunk{ChunkID: "d:00000", DocID: "d", Idx: 0, Text: "Solar panels\nconvert sunlight."},
		Score:        0.875,
		LexicalScore: 1,
		VectorScore:  0.75,
		Citation:     store.Citation{DocID: "d", Title: "Solar", Source: "/docs/solar.md", Classification: "internal", DocVersion: 2},
	}}

	// When: rendering
	w.Results("solar", results)

	// Then: title, score, citation and excerpt are shown
	out := buf.String()
	assert.Contains(t, out, `1 result(s) for "solar"`)
	assert.Contains(t, out, "[0.875] Solar #0")
	assert.Contains(t, out, "/docs/solar.md")
	assert.Contains(t, out, "v2")
	assert.Contains(t, out, "Solar panels convert sunlight.")
}

func TestWriter_ResultsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Results("nothing", nil)
	assert.Contains(t, buf.String(), `No results for "nothing"`)
}

func TestWriter_RunListsFailuresSorted(t *testing.T) {
	// Given: a partial run with two failures
	buf := &bytes.Buffer{}
	sum := &index.RunSummary{
		Kind: store.RunKindIngest, Status: store.RunPartial, Seen: 3, Changed: 1, Failed: 2,
		Failures: map[string]string{"/b.csv": "ERR_408", "/a.txt": "ERR_210"},
	}

	// When: rendering the summary
	New(buf).Run(sum)

	// Then: counts are shown and failures appear in key order
	out := buf.String()
	assert.Contains(t, out, "ingest run partial: 3 seen, 1 changed, 2 failed")
	require.Less(t, strings.Index(out, "/a.txt"), strings.Index(out, "/b.csv"))
}

func TestWriter_CorpusStatusFlagsIncompatible(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).CorpusStatus(StatusInfo{
		Store:   "sqlite::memory:",
		Counts:  &store.Counts{Documents: 2, Chunks: 5},
		Current: index.Signature{Backend: "hash", Dim: 64},
	})

	out := buf.String()
	assert.Contains(t, out, "documents:")
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "amanrag reindex")
}

func TestWriter_EventsShowNotes(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Events([]*store.IngestEvent{
		{DocID: "d1", DocVersion: 2, Changed: true, NumChunks: 3, ValidationStatus: "pass"},
		{DocID: "d1", DocVersion: 1, Notes: "forced reprocess"},
	})

	out := buf.String()
	assert.Contains(t, out, "+ d1 v2 chunks=3 validation=pass")
	assert.Contains(t, out, "= d1 v1")
	assert.Contains(t, out, "forced reprocess")
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"n": 1}))
	assert.Contains(t, buf.String(), `"n": 1`)
}
