package textclean

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Thresholds configures one validity predicate.
type Thresholds struct {
	// MinPrintableRatio is the lowest accepted share of printable runes. Whitespace counts as printable.
	MinPrintableRatio float64 `mapstructure:"min_printable_ratio"`
	// MaxControlRatio is the exclusive upper bound on control runes other than \n, \r and \t.
	MaxControlRatio float64 `mapstructure:"max_control_ratio"`
	// MinWords is how many meaningful words the text must contain.
	MinWords int `mapstructure:"min_words"`
	// MinWordLength is the rune length a word needs to count as meaningful.
	MinWordLength int `mapstructure:"min_word_length"`
}

var (
	// StorageThresholds gate persistence.
	StorageThresholds = Thresholds{MinPrintableRatio: 0.60, MaxControlRatio: 0.15, MinWords: 2, MinWordLength: 2}
	// EmbeddingThresholds gate what is sent to the embedding provider.
	EmbeddingThresholds = Thresholds{MinPrintableRatio: 0.70, MaxControlRatio: 0.10, MinWords: 3, MinWordLength: 3}
)

// Validator holds the storage and embedding predicates.
type Validator struct {
	Storage   Thresholds
	Embedding Thresholds
}

// NewValidator returns a Validator with the default thresholds.
func NewValidator() Validator {
	return Validator{Storage: StorageThresholds, Embedding: EmbeddingThresholds}
}

// ValidForStorage reports whether text may be persisted.
func (v Validator) ValidForStorage(text string) bool {
	return v.Storage.Accept(text)
}

// ValidForEmbedding reports whether text may be sent to the embedding provider.
func (v Validator) ValidForEmbedding(text string) bool {
	return v.Embedding.Accept(text)
}

// Stats summarizes the character make-up of a text.
type Stats struct {
	Runes           int
	PrintableRatio  float64
	ControlRatio    float64
	MeaningfulWords int
}

// Measure computes Stats, counting words of at least minWordLength runes that contain a letter.
func Measure(text string, minWordLength int) Stats {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return Stats{}
	}
	printable, control := 0, 0
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			printable++
		case unicode.IsControl(r):
			control++
		case unicode.IsPrint(r) || unicode.IsSpace(r):
			printable++
		}
	}
	words := 0
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) >= minWordLength && strings.IndexFunc(w, unicode.IsLetter) >= 0 {
			words++
		}
	}
	return Stats{
		Runes:           total,
		PrintableRatio:  float64(printable) / float64(total),
		ControlRatio:    float64(control) / float64(total),
		MeaningfulWords: words,
	}
}

// Accept applies the thresholds to text.
func (t Thresholds) Accept(text string) bool {
	s := Measure(text, t.MinWordLength)
	if s.Runes == 0 {
		return false
	}
	return s.PrintableRatio >= t.MinPrintableRatio &&
		s.ControlRatio < t.MaxControlRatio &&
		s.MeaningfulWords >= t.MinWords
}
