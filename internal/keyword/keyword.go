package keyword

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Keyword is a normalized search phrase. Build one with Normalize.
type Keyword string

func (k Keyword) String() string { return string(k) }

// quoteRunes change search-operator semantics; they are stripped from input
// and never added.
var quoteRunes = map[rune]bool{
	'"': true, '\'': true,
	'“': true, '”': true, '‘': true, '’': true,
	'「': true, '」': true, '『': true, '』': true,
}

// Normalize folds width variants (full-width ASCII to half-width, half-width
// katakana to full-width), strips quote characters, lower-cases letters and
// collapses whitespace runs, including the ideographic space, to a single
// ASCII space.
func Normalize(raw string) Keyword {
	// Fold leaves half-width voiced marks as combining runes; NFC joins them.
	folded := norm.NFC.String(width.Fold.String(raw))

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case quoteRunes[r]:
			continue
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return Keyword(b.String())
}

// Dedupe normalizes raws, drops empties and keeps the first occurrence of each
// keyword, preserving input order.
func Dedupe(raws []string) []Keyword {
	seen := make(map[Keyword]struct{}, len(raws))
	out := make([]Keyword, 0, len(raws))
	for _, raw := range raws {
		k := Normalize(raw)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
