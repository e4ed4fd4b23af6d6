// Package chunker splits validated text into overlapping, sentence-bounded chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many trailing characters of a chunk may seed the next one.
	DefaultChunkOverlap = 200
	// DefaultMinChunkLength drops fragments shorter than this.
	DefaultMinChunkLength = 50
)

// Terminal punctuation, optional closing quotes or brackets, then whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?]+["')\]]*\s+`)

// Chunker is safe for concurrent use.
type Chunker struct {
	chunkSize int
	overlap   int
	minLength int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap window in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithMinChunkLength sets the minimum length a chunk needs to be kept.
func WithMinChunkLength(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minLength = n
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		minLength: DefaultMinChunkLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Split returns the chunks of text in document order.
// Text that already fits in one chunk is returned verbatim.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.chunkSize {
		return []string{text}
	}

	var (
		chunks     []string
		current    string
		currentLen int
	)
	for _, sentence := range c.sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if currentLen == 0 {
			current, currentLen = sentence, n
			continue
		}
		if currentLen+1+n <= c.chunkSize {
			current += " " + sentence
			currentLen += 1 + n
			continue
		}

		chunks = append(chunks, current)
		seed := c.overlapWindow(current)
		if seed == "" {
			current, currentLen = sentence, n
			continue
		}
		// Shrink the seed so the next chunk stays within size. When not
		// even one word fits, the whole seed is kept and the chunk runs over.
		if fitted := trimToWords(seed, c.chunkSize-1-n); fitted != "" {
			seed = fitted
		}
		current = seed + " " + sentence
		currentLen = utf8.RuneCountInString(current)
	}
	if currentLen > 0 {
		chunks = append(chunks, current)
	}

	kept := chunks[:0]
	for _, ch := range chunks {
		if utf8.RuneCountInString(ch) >= c.minLength {
			kept = append(kept, ch)
		}
	}
	return kept
}

// sentences splits text on terminal punctuation followed by whitespace.
// Sentences longer than the chunk size are broken on word boundaries.
func (c *Chunker) sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		out = c.appendSentence(out, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		out = c.appendSentence(out, text[start:])
	}
	return out
}

func (c *Chunker) appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	if utf8.RuneCountInString(s) <= c.chunkSize {
		return append(out, s)
	}
	return append(out, c.splitLong(s)...)
}

// pieceSize is the longest piece splitLong emits. It leaves room for a full
// overlap seed in front of the piece.
func (c *Chunker) pieceSize() int {
	if c.overlap == 0 {
		return c.chunkSize
	}
	if n := c.chunkSize - c.overlap - 1; n > 0 {
		return n
	}
	return 1
}

// splitLong packs the words of s into pieces no longer than pieceSize.
// A single word longer than that is cut by characters.
func (c *Chunker) splitLong(s string) []string {
	size := c.pieceSize()
	var (
		pieces []string
		b      strings.Builder
		bLen   int
	)
	flush := func() {
		if bLen > 0 {
			pieces = append(pieces, b.String())
			b.Reset()
			bLen = 0
		}
	}
	for _, word := range strings.Fields(s) {
		r := []rune(word)
		for len(r) > size {
			flush()
			pieces = append(pieces, string(r[:size]))
			r = r[size:]
		}
		if len(r) == 0 {
			continue
		}
		if bLen > 0 && bLen+1+len(r) > size {
			flush()
		}
		if bLen > 0 {
			b.WriteByte(' ')
			bLen++
		}
		b.WriteString(string(r))
		bLen += len(r)
	}
	flush()
	return pieces
}

// overlapWindow returns the tail of chunk that seeds the next chunk: the last
// overlap characters trimmed forward to the first sentence boundary inside
// them, or to the first word boundary when the window holds no sentence end.
func (c *Chunker) overlapWindow(chunk string) string {
	if c.overlap == 0 {
		return ""
	}
	r := []rune(chunk)
	if len(r) <= c.overlap {
		return strings.TrimSpace(chunk)
	}
	tail := string(r[len(r)-c.overlap:])

	if loc := sentenceBoundary.FindStringIndex(tail); loc != nil && loc[1] < len(tail) {
		return strings.TrimSpace(tail[loc[1]:])
	}

	// The window starts mid-word unless the preceding character is a space.
	if !unicode.IsSpace(r[len(r)-c.overlap-1]) {
		if i := strings.IndexFunc(tail, unicode.IsSpace); i >= 0 {
			return strings.TrimSpace(tail[i:])
		}
	}
	return strings.TrimSpace(tail)
}

// trimToWords returns the longest word-aligned suffix of s with at most limit
// characters, or "" when none exists.
func trimToWords(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	tail := string(r[len(r)-limit:])
	if unicode.IsSpace(r[len(r)-limit-1]) {
		return strings.TrimSpace(tail)
	}
	i := strings.IndexFunc(tail, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(tail[i:])
}
