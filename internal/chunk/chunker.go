// Package chunk splits document text into overlapping passages.
//
// Boundaries depend only on the text and the two size parameters, so the
// same input always yields the same chunk ids downstream.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// paragraphSep is written between paragraphs packed into one chunk.
const paragraphSep = "\n\n"

// blankLine matches one or more blank (or whitespace-only) lines.
var blankLine = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)

// Params holds the chunking configuration. Both sizes are in characters (runes).
type Params struct {
	SizeChars    int
	OverlapChars int
}

// Validate rejects parameter combinations that would not make progress.
func (p Params) Validate() error {
	if p.SizeChars <= 0 {
		return fmt.Errorf("size_chars must be positive, got %d", p.SizeChars)
	}
	if p.OverlapChars < 0 {
		return fmt.Errorf("overlap_chars must be non-negative, got %d", p.OverlapChars)
	}
	if p.OverlapChars >= p.SizeChars {
		return fmt.Errorf("overlap_chars (%d) must be smaller than size_chars (%d)", p.OverlapChars, p.SizeChars)
	}
	return nil
}

// ValidateParams is Params.Validate as a configuration error.
func ValidateParams(sizeChars, overlapChars int) error {
	if err := (Params{SizeChars: sizeChars, OverlapChars: overlapChars}).Validate(); err != nil {
		return amerrors.ConfigError("chunking", err.Error())
	}
	return nil
}

// Split chunks text with p. Callers validate p first.
func (p Params) Split(text string) []string {
	return Chunk(text, p.SizeChars, p.OverlapChars)
}

// Chunk splits text into ordered passages of roughly sizeChars characters.
// Each passage after the first starts with the trailing overlapChars
// characters of its predecessor. Empty text yields an empty slice.
//
// overlapChars must be smaller than sizeChars; see Params.Validate.
func Chunk(text string, sizeChars, overlapChars int) []string {
	cores := Cores(text, sizeChars, overlapChars)
	if len(cores) == 0 {
		return []string{}
	}

	out := make([]string, 0, len(cores))
	for i, core := range cores {
		if i == 0 || overlapChars == 0 {
			out = append(out, strings.TrimSpace(core))
			continue
		}
		tail := lastRunes(cores[i-1], overlapChars)
		out = append(out, strings.TrimSpace(tail+"\n"+core))
	}
	return out
}

// Cores returns the packed passages before the overlap pass.
// Paragraphs that fit are joined with a blank line; oversized paragraphs are
// cut into windows advancing by sizeChars-overlapChars.
func Cores(text string, sizeChars, overlapChars int) []string {
	paragraphs := Paragraphs(text)
	if len(paragraphs) == 0 {
		return []string{}
	}

	var (
		cores  []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if bufLen > 0 {
			cores = append(cores, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	sepLen := utf8.RuneCountInString(paragraphSep)
	for _, p := range paragraphs {
		pLen := utf8.RuneCountInString(p)

		if pLen > sizeChars {
			flush()
			cores = append(cores, hardSplit(p, sizeChars, overlapChars)...)
			continue
		}

		if bufLen == 0 {
			buf.WriteString(p)
			bufLen = pLen
			continue
		}
		if bufLen+pLen+sepLen <= sizeChars {
			buf.WriteString(paragraphSep)
			buf.WriteString(p)
			bufLen += sepLen + pLen
			continue
		}
		flush()
		buf.WriteString(p)
		bufLen = pLen
	}
	flush()
	return cores
}

// Paragraphs splits text on blank lines and drops empty paragraphs.
func Paragraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := blankLine.Split(normalized, -1)

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardSplit cuts s into size-rune windows whose starts are size-overlap apart.
func hardSplit(s string, size, overlap int) []string {
	runes := []rune(s)
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var windows []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
