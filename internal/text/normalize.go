// Package text provides the canonicalization layer every analyzer reads
// through: unicode normalization, tokenization, and the language-tagged
// stopword and intent vocabularies.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options controls the normalization transform. The zero value disables
// everything except whitespace collapsing.
type Options struct {
	Lowercase        bool
	StripDiacritics  bool
	StripPunctuation bool
	Punctuation      string
}

// DefaultPunctuation is the set removed when StripPunctuation is on.
const DefaultPunctuation = `.,;:!?¡¿"'()[]{}<>/\|@#$%^&*+=~` + "`"

// DefaultOptions enables the full canonical form used by the pipeline.
func DefaultOptions() Options {
	return Options{
		Lowercase:        true,
		StripDiacritics:  true,
		StripPunctuation: true,
		Punctuation:      DefaultPunctuation,
	}
}

// Normalizer applies a deterministic canonical transform to raw keyword
// text. Pure: identical input always yields identical output, and the
// transform is idempotent.
type Normalizer struct {
	opts  Options
	punct map[rune]struct{}
}

// NewNormalizer builds a normalizer for the given options.
func NewNormalizer(opts Options) *Normalizer {
	if opts.StripPunctuation && opts.Punctuation == "" {
		opts.Punctuation = DefaultPunctuation
	}
	punct := make(map[rune]struct{}, len(opts.Punctuation))
	for _, r := range opts.Punctuation {
		punct[r] = struct{}{}
	}
	return &Normalizer{opts: opts, punct: punct}
}

// Normalize canonicalizes s: NFKC compatibility fold, optional diacritic
// strip (NFD-decompose, drop combining marks, NFC-recompose), optional
// lowercase, optional punctuation removal, then whitespace collapse.
func (n *Normalizer) Normalize(s string) string {
	s = norm.NFKC.String(s)

	if n.opts.StripDiacritics {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if out, _, err := transform.String(t, s); err == nil {
			s = out
		}
	}

	if n.opts.Lowercase {
		s = strings.ToLower(s)
	}

	if n.opts.StripPunctuation {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if _, drop := n.punct[r]; drop {
				b.WriteRune(' ')
				continue
			}
			b.WriteRune(r)
		}
		s = b.String()
	}

	return strings.Join(strings.Fields(s), " ")
}

// SignificantChars counts the non-space runes of a normalized string.
func SignificantChars(s string) int {
	count := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

// Tokenize splits normalized text into maximal runs of word characters
// (letters and digits). Any other rune is a separator.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
