package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches runs of lowercase alphanumerics joined by intra-word
// underscores or hyphens. Leading and trailing punctuation never survives,
// but "well-known" and "snake_case" stay whole.
var tokenRegex = regexp.MustCompile(`[a-z0-9]+(?:[-_][a-z0-9]+)*`)

// Tokenize lowercases text, strips punctuation (preserving intra-word
// underscores and hyphens), and drops stop words and single-rune tokens.
func Tokenize(text string, stopWords map[string]struct{}) []string {
	var tokens []string
	for _, tok := range tokenRegex.FindAllString(strings.ToLower(text), -1) {
		if len(tok) <= 1 {
			continue
		}
		if _, isStop := stopWords[tok]; isStop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// TokenizeDocument produces the token stream indexed for a document.
// Title and tag tokens are appended twice: duplication is the field
// weighting mechanism, so both sparse backends see the same stream
// instead of each doing its own per-field scoring.
func TokenizeDocument(doc *Document, stopWords map[string]struct{}) []string {
	var stream []string

	titleToks := Tokenize(doc.Title, stopWords)
	stream = append(stream, titleToks...)
	stream = append(stream, titleToks...)

	for _, tag := range doc.Tags {
		tagToks := Tokenize(tag, stopWords)
		stream = append(stream, tagToks...)
		stream = append(stream, tagToks...)
	}

	stream = append(stream, Tokenize(doc.Summary, stopWords)...)
	stream = append(stream, Tokenize(doc.Body, stopWords)...)
	stream = append(stream, Tokenize(doc.Extracted, stopWords)...)
	return stream
}

// KeywordText renders a document to a single string with title and tags
// repeated, mirroring the duplication in TokenizeDocument. Used by index
// backends that analyze raw text instead of a token stream.
func KeywordText(doc *Document) string {
	tags := strings.Join(doc.Tags, " ")
	parts := make([]string, 0, 7)
	for _, p := range []string{doc.Title, doc.Title, tags, tags, doc.Summary, doc.Body, doc.Extracted} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// BuildStopWordMap converts a stop word list to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
