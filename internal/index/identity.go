package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DocID derives the stable document id from title and source.
func DocID(title, source string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(title)) + "\x1f" + strings.TrimSpace(source)))
	return hex.EncodeToString(sum[:])[:32]
}

// ChunkID names the idx-th chunk of a document.
func ChunkID(docID string, idx int) string {
	return fmt.Sprintf("%s:%05d", docID, idx)
}

// NormalizeContent converts CRLF to LF, trims trailing whitespace on every
// line and trims the whole text.
func NormalizeContent(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ContentSHA256 hashes normalized content.
func ContentSHA256(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
