package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestChunk_EmptyText(t *testing.T) {
	assert.Empty(t, Chunk("", 100, 10))
	assert.Empty(t, Chunk("  \n\n \t\n", 100, 10))
	assert.NotNil(t, Chunk("", 100, 10))
}

func TestChunk_PacksSmallParagraphsTogether(t *testing.T) {
	// Given: three short paragraphs that fit in one chunk
	text := "alpha\n\nbeta\n\ngamma"

	// When: chunking with a generous size
	chunks := Chunk(text, 100, 10)

	// Then: a single chunk with paragraphs separated by a blank line
	require.Len(t, chunks, 1)
	assert.Equal(t, "alpha\n\nbeta\n\ngamma", chunks[0])
}

func TestChunk_FlushesWhenNextParagraphOverflows(t *testing.T) {
	p1 := strings.Repeat("a", 30)
	p2 := strings.Repeat("b", 30)

	cores := Cores(p1+"\n\n"+p2, 50, 10)
	chunks := Chunk(p1+"\n\n"+p2, 50, 10)

	require.Equal(t, []string{p1, p2}, cores)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0])
	// Second chunk is prefixed with the last 10 chars of the first.
	assert.Equal(t, strings.Repeat("a", 10)+"\n"+p2, chunks[1])
}

func TestChunk_PackingBoundaryIsInclusive(t *testing.T) {
	// 20 + 2 + 28 == 50 fits exactly
	p1 := strings.Repeat("x", 20)
	p2 := strings.Repeat("y", 28)

	cores := Cores(p1+"\n\n"+p2, 50, 0)

	require.Len(t, cores, 1)
	assert.Equal(t, 50, utf8.RuneCountInString(cores[0]))
}

func TestChunk_HardSplitsOversizedParagraph(t *testing.T) {
	// Given: one 25-char paragraph and size 10, overlap 3
	text := "abcdefghijklmnopqrstuvwxy"

	// When: computing cores
	cores := Cores(text, 10, 3)

	// Then: windows advance by 7 and overlap by 3
	assert.Equal(t, []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxy"}, cores)
	for _, c := range cores {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestChunk_HardSplitCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 12)

	cores := Cores(text, 5, 0)

	require.Len(t, cores, 3)
	assert.Equal(t, strings.Repeat("é", 5), cores[0])
	assert.Equal(t, strings.Repeat("é", 2), cores[2])
}

func TestChunk_IsDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40) +
		"\n\nSecond paragraph about retrieval.\n\n\n" +
		strings.Repeat("lorem ipsum ", 30)

	for _, params := range []Params{{50, 10}, {120, 0}, {300, 299}, {7, 3}} {
		first := params.Split(text)
		second := params.Split(text)
		assert.Equal(t, first, second, "params %+v", params)
	}
}

func TestCores_ReconstructParagraphSequence(t *testing.T) {
	// Given: paragraphs that each fit within size
	paragraphs := []string{
		"Ingestion is idempotent.",
		"Every document gets a stable id derived from its title and source.",
		"Chunks are replaced on change.",
		"Retrieval blends lexical and vector scores.",
	}
	text := strings.Join(paragraphs, "\n\n \n")

	for _, size := range []int{70, 90, 200} {
		// When: packing without the overlap pass
		cores := Cores(text, size, 10)

		// Then: splitting the joined cores yields the original paragraphs
		rebuilt := Paragraphs(strings.Join(cores, "\n\n"))
		assert.Equal(t, paragraphs, rebuilt, "size %d", size)
	}
}

func TestChunk_TwoParagraphScenario(t *testing.T) {
	text := "Solar panels convert sunlight into electricity for homes.\n\n" +
		"Wind turbines generate power from moving air currents."

	chunks := Chunk(text, 50, 10)

	assert.GreaterOrEqual(t, len(chunks), 2)
	assert.Contains(t, strings.Join(chunks, " "), "turbines")
}

func TestParagraphs_NormalizesCRLF(t *testing.T) {
	got := Paragraphs("one\r\n\r\ntwo\r\nstill two\n\n\n\nthree")
	assert.Equal(t, []string{"one", "two\nstill two", "three"}, got)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, Params{SizeChars: 50, OverlapChars: 10}.Validate())
	assert.NoError(t, Params{SizeChars: 50, OverlapChars: 0}.Validate())
	assert.Error(t, Params{SizeChars: 50, OverlapChars: 50}.Validate())
	assert.Error(t, Params{SizeChars: 0, OverlapChars: 0}.Validate())
	assert.Error(t, Params{SizeChars: 10, OverlapChars: -1}.Validate())
}

func TestValidateParams_IsConfigError(t *testing.T) {
	err := ValidateParams(100, 100)
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
	assert.NoError(t, ValidateParams(50, 10))
}
