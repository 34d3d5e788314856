package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocID_StableUnderTitleCaseAndWhitespace(t *testing.T) {
	a := DocID("  Energy Primer ", " docs/energy.md ")
	b := DocID("energy primer", "docs/energy.md")

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, DocID("energy primer", "docs/other.md"))
}

func TestDocID_SourceIsCaseSensitive(t *testing.T) {
	assert.NotEqual(t, DocID("t", "Docs/A.md"), DocID("t", "docs/a.md"))
}

func TestChunkID_ZeroPadded(t *testing.T) {
	assert.Equal(t, "abc:00000", ChunkID("abc", 0))
	assert.Equal(t, "abc:00042", ChunkID("abc", 42))
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"trailing spaces", "a  \nb\t\n", "a\nb"},
		{"leading blank lines", "\n\n  a\n", "a"},
		{"only whitespace", " \r\n\t ", ""},
		{"inner blank lines kept", "a\n\n\nb", "a\n\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContent(tt.in))
		})
	}
}

func TestContentSHA256_MatchesForEquivalentText(t *testing.T) {
	assert.Equal(t,
		ContentSHA256(NormalizeContent("hello \r\nworld")),
		ContentSHA256(NormalizeContent("hello\nworld\n")))
}
