package brandmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText performs Unicode normalization, trims whitespace and drops
// control characters.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.TrimSpace(normed)
	normed = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, normed)
	return strings.TrimSpace(normed)
}

// NormalizeTerm returns the comparison key of a term: normalized, lowercased,
// with internal whitespace collapsed.
func NormalizeTerm(text string) string {
	normed := NormalizeText(text)
	if normed == "" {
		return ""
	}
	return strings.ToLower(strings.Join(strings.Fields(normed), " "))
}

// TitleCase renders a term for display.
func TitleCase(text string) string {
	return cases.Title(language.Spanish).String(text)
}

// FoldAccents strips combining marks, so "canción" becomes "cancion".
// The letter ñ is kept apart because it is a distinct Spanish phoneme.
func FoldAccents(text string) string {
	const placeholder = '\uE000'
	text = strings.Map(func(r rune) rune {
		if r == 'ñ' {
			return placeholder
		}
		if r == 'Ñ' {
			return placeholder + 1
		}
		return r
	}, norm.NFC.String(text))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case placeholder:
			return 'ñ'
		case placeholder + 1:
			return 'Ñ'
		}
		return r
	}, folded)
}

// alnumOnly lowercases text and keeps only letters and digits.
func alnumOnly(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
