// Package lexical prepares text for full-text ranking. The ranking
// itself (BM25 over an inverted index) is the search store's job; this
// is only the deterministic cleanup applied to both chunk content at
// index time and queries at search time.
package lexical

import (
	"regexp"
	"strings"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Prepare strips punctuation, collapses whitespace and lowercases.
// Pure and side-effect free: Prepare(Prepare(s)) == Prepare(s).
func Prepare(text string) string {
	text = punctRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.ToLower(strings.TrimSpace(text))
}
