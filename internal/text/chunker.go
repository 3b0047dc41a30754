// Package text splits normalized document text into bounded, overlapping,
// semantically coherent passages. All sizes are in characters (runes),
// not bytes, so CJK and Latin text share one budget.
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// defaultMinSize is a soft target: buffers below it are held back in
	// the hope of growing, but the final chunk of a document may still be
	// shorter.
	defaultMinSize = 300

	// defaultFlushRatio flushes a buffer once it reaches this share of
	// MaxSize instead of waiting for it to overflow.
	defaultFlushRatio = 0.7

	// structuredMarkerMin is how many article/section markers a document
	// needs before it is chunked by those boundaries.
	structuredMarkerMin = 3
)

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
	paragraphRe  = regexp.MustCompile(`\n\s*\n`)

	structureMarkerRes = []*regexp.Regexp{
		regexp.MustCompile(`第[一二三四五六七八九十百]+條`),
		regexp.MustCompile(`(?i)Article\s+\d+`),
		regexp.MustCompile(`(?i)Section\s+\d+`),
		regexp.MustCompile(`第\d+條`),
	}
	articleMarkerRe = regexp.MustCompile(`(?i)第[一二三四五六七八九十百\d]+條|Article\s+\d+|Section\s+\d+`)

	sentenceEndRe = regexp.MustCompile(`[。！？.!?]+\s*`)
)

type Chunker struct {
	MaxSize    int
	Overlap    int
	MinSize    int
	FlushRatio float64
}

func NewChunker(maxSize, overlap int) *Chunker {
	return &Chunker{
		MaxSize:    maxSize,
		Overlap:    overlap,
		MinSize:    defaultMinSize,
		FlushRatio: defaultFlushRatio,
	}
}

// Normalize collapses runs of spaces/tabs to one space and runs of three
// or more newlines to a blank line, preserving paragraph boundaries.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk splits text into ordered passages. Empty input yields nil.
func (c *Chunker) Chunk(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var units []string
	if IsStructured(text) {
		units = splitByArticles(text)
	} else {
		units = splitByParagraphs(text)
	}

	return c.pack(units)
}

// IsStructured reports whether the document carries enough numbered
// article/section markers to be chunked by those boundaries.
func IsStructured(text string) bool {
	count := 0
	for _, re := range structureMarkerRes {
		count += len(re.FindAllStringIndex(text, -1))
		if count >= structuredMarkerMin {
			return true
		}
	}
	return false
}

// splitByArticles cuts the text at each article/section marker: a segment
// runs from one marker up to just before the next.
func splitByArticles(text string) []string {
	locs := articleMarkerRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var segments []string
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if seg := strings.TrimSpace(text[loc[0]:end]); seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func splitByParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return []string{text}
	}
	return paragraphs
}

// pack walks segments in order, accumulating them into a buffer that is
// flushed as a chunk when full. Each flush seeds the next buffer with the
// trailing Overlap characters of the previous one.
func (c *Chunker) pack(units []string) []string {
	minSize := c.MinSize
	if minSize <= 0 {
		minSize = defaultMinSize
	}
	flushRatio := c.FlushRatio
	if flushRatio <= 0 {
		flushRatio = defaultFlushRatio
	}
	flushAt := int(float64(c.MaxSize) * flushRatio)

	var chunks []string
	var current string

	for i, unit := range units {
		if utf8.RuneCountInString(unit) <= c.MaxSize {
			if current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(unit) > c.MaxSize {
				chunks = append(chunks, strings.TrimSpace(current))
				current = c.overlapTail(current)
			}

			if current != "" {
				current += "\n\n" + unit
			} else {
				current = unit
			}

			if n := utf8.RuneCountInString(current); n >= minSize && (n >= flushAt || i == len(units)-1) {
				chunks = append(chunks, strings.TrimSpace(current))
				current = ""
			}
		} else {
			// Oversized segment: flush what we have, then split the
			// segment by sentences under the same discipline.
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = ""
			}
			chunks = append(chunks, c.splitBySentences(unit)...)
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	out := chunks[:0]
	for _, ch := range chunks {
		if ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// splitBySentences repacks an oversized segment sentence by sentence. A
// single sentence longer than MaxSize stays intact as its own chunk; we
// do not cut inside a sentence.
func (c *Chunker) splitBySentences(text string) []string {
	var sentences []string
	for _, s := range sentenceEndRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	var chunks []string
	var current string

	for _, sentence := range sentences {
		switch {
		case current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence) > c.MaxSize:
			chunks = append(chunks, strings.TrimSpace(current))
			current = c.overlapTail(current) + " " + sentence
		case current != "":
			current += " " + sentence
		default:
			current = sentence
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

// overlapTail returns the trailing Overlap characters of text, advanced
// past the first space so no word is truncated at the front.
func (c *Chunker) overlapTail(text string) string {
	runes := []rune(text)
	if len(runes) <= c.Overlap {
		return text
	}

	tail := string(runes[len(runes)-c.Overlap:])
	if idx := strings.Index(tail, " "); idx > 0 {
		tail = strings.TrimSpace(tail[idx:])
	}
	return tail
}
