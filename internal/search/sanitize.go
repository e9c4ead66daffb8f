package search

import "strings"

// Characters with query-syntax meaning in the keyword backend. Stripped
// before a query reaches the sparse index; hyphens and underscores inside
// words survive so compound identifiers keep matching.
const specialChars = `+*:^~?\/()[]{}&|!<>="`

// SanitizeQuery strips query-syntax characters, collapses whitespace, and
// wraps multi-word queries in quotes so they run as phrase queries. A query
// that is empty after stripping yields "".
func SanitizeQuery(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if strings.ContainsRune(specialChars, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	fields := strings.Fields(b.String())
	if len(fields) == 0 {
		return ""
	}
	joined := strings.Join(fields, " ")
	if len(fields) > 1 {
		return `"` + joined + `"`
	}
	return joined
}
