package store

import (
	"regexp"
	"strings"
	"unicode"
)

// wordRegex matches runs of letters, digits and underscores.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// stopWords are dropped from queries and documents before lexical scoring.
var stopWords = BuildStopWordMap([]string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "is", "it", "of", "on", "or", "that", "the", "to", "was", "with",
})

// Tokenize lowercases text and splits it into words. Identifiers written in
// camelCase or snake_case also contribute their parts, so "parseHTTPRequest"
// yields parsehttprequest, parse, http, request. Stop words and single
// characters are dropped.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		lower := strings.ToLower(strings.Trim(word, "_"))
		if keep(lower) {
			tokens = append(tokens, lower)
		}
		parts := SplitIdentifier(word)
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			if lp := strings.ToLower(p); keep(lp) {
				tokens = append(tokens, lp)
			}
		}
	}
	return tokens
}

func keep(tok string) bool {
	if len([]rune(tok)) < 2 {
		return false
	}
	_, stop := stopWords[tok]
	return !stop
}

// SplitIdentifier splits camelCase and snake_case identifiers.
func SplitIdentifier(token string) []string {
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordMap creates a lookup set from a word list.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// UniqueTokens returns tokens with duplicates removed, first occurrence kept.
func UniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ftsQuery builds an FTS5 MATCH expression that ORs the quoted query terms.
// Returns "" when nothing searchable remains.
func ftsQuery(text string) string {
	terms := UniqueTokens(Tokenize(text))
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
