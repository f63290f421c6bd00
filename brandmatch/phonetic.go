package brandmatch

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultPhoneticMinLength excludes terms too short to compare by sound.
	DefaultPhoneticMinLength = 4
	// DefaultSyllablePenalty is the score factor lost per syllable of difference.
	DefaultSyllablePenalty = 0.20
)

// SpanishPhonetic encodes text into a metaphone-style key tuned for Spanish
// (Latin American) pronunciation:
//
//	b/v -> B, c(e,i)/s/z -> S, c/k/q(u) -> K, ch -> X, g(e,i)/j -> J,
//	gu(e,i) -> G, ll/y(+vowel) -> Y, ñ -> NY, ph -> F, x -> KS (S initially),
//	w -> U, h is silent, vowels survive only as the leading sound and
//	repeated sounds collapse.
//
// Digits are kept so that "7up" and "seven up" stay distinguishable.
func SpanishPhonetic(text string) string {
	letters := phoneticLetters(text)
	n := len(letters)
	var b strings.Builder
	var last byte
	emit := func(code string) {
		if code == "" {
			return
		}
		if last != 0 && code[0] == last && len(code) == 1 {
			return
		}
		b.WriteString(code)
		last = code[len(code)-1]
	}
	at := func(i int) rune {
		if i < 0 || i >= n {
			return 0
		}
		return letters[i]
	}
	for i := 0; i < n; i++ {
		c := letters[i]
		next := at(i + 1)
		switch {
		case isVowel(c):
			if b.Len() == 0 {
				emit(string(unicode.ToUpper(c)))
			} else {
				last = 0
			}
		case unicode.IsDigit(c):
			emit(string(c))
		default:
			switch c {
			case 'b', 'v':
				emit("B")
			case 'c':
				switch {
				case next == 'h':
					emit("X")
					i++
				case next == 'e' || next == 'i':
					emit("S")
				default:
					emit("K")
				}
			case 'd':
				emit("D")
			case 'f':
				emit("F")
			case 'g':
				switch {
				case next == 'e' || next == 'i':
					emit("J")
				case next == 'u' && (at(i+2) == 'e' || at(i+2) == 'i'):
					emit("G")
					i++
				default:
					emit("G")
				}
			case 'h':
			case 'j':
				emit("J")
			case 'k':
				emit("K")
			case 'l':
				if next == 'l' {
					emit("Y")
					i++
				} else {
					emit("L")
				}
			case 'm':
				emit("M")
			case 'n':
				emit("N")
			case 'ñ':
				emit("NY")
			case 'p':
				if next == 'h' {
					emit("F")
					i++
				} else {
					emit("P")
				}
			case 'q':
				if next == 'u' {
					i++
				}
				emit("K")
			case 'r':
				emit("R")
			case 's', 'z':
				emit("S")
			case 't':
				emit("T")
			case 'w':
				emit("U")
			case 'x':
				if i == 0 {
					emit("S")
				} else {
					emit("KS")
				}
			case 'y':
				if isVowel(next) {
					emit("Y")
				} else if i == 0 {
					emit("I")
				} else {
					last = 0
				}
			default:
				emit(string(unicode.ToUpper(c)))
			}
		}
	}
	return b.String()
}

// phoneticLetters lowercases, folds accents and keeps letters and digits.
func phoneticLetters(text string) []rune {
	folded := FoldAccents(strings.ToLower(text))
	out := make([]rune, 0, len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// CountSyllables approximates the syllable count as the number of maximal
// vowel runs. Non-empty text always has at least one syllable.
func CountSyllables(text string) int {
	folded := FoldAccents(strings.ToLower(text))
	if strings.TrimSpace(folded) == "" {
		return 0
	}
	count := 0
	inVowel := false
	for _, r := range folded {
		if isVowel(r) {
			if !inVowel {
				count++
			}
			inVowel = true
			continue
		}
		inVowel = false
	}
	if count == 0 {
		return 1
	}
	return count
}

// SyllablePenalty returns max(0, 1 - perSyllable*|a-b|).
func SyllablePenalty(a, b int, perSyllable float64) float64 {
	diff := math.Abs(float64(a - b))
	return math.Max(0, 1-perSyllable*diff)
}

// PhoneticOptions tunes PhoneticStrategy.
type PhoneticOptions struct {
	SyllablePenalty bool
	PerSyllable     float64
	MinLength       int
}

// PhoneticStrategy compares Spanish phonetic keys with the edit ratio.
type PhoneticStrategy struct {
	opts PhoneticOptions
}

// NewPhoneticStrategy creates a phonetic strategy, filling zero options with defaults.
func NewPhoneticStrategy(opts PhoneticOptions) *PhoneticStrategy {
	if opts.PerSyllable <= 0 {
		opts.PerSyllable = DefaultSyllablePenalty
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultPhoneticMinLength
	}
	return &PhoneticStrategy{opts: opts}
}

func (*PhoneticStrategy) Name() string   { return StrategyPhonetic }
func (*PhoneticStrategy) Family() Family { return FamilyPhonetic }

type phoneticEntry struct {
	term      string
	code      string
	syllables int
}

type phoneticIndex []phoneticEntry

// Prepare encodes every eligible corpus term once. Terms shorter than the
// minimum length are left out and never appear in results.
func (s *PhoneticStrategy) Prepare(_ context.Context, corpus *Corpus) (StrategyContext, error) {
	return s.buildIndex(corpus), nil
}

func (s *PhoneticStrategy) buildIndex(corpus *Corpus) phoneticIndex {
	terms := corpus.Terms()
	idx := make(phoneticIndex, 0, len(terms))
	for _, term := range terms {
		if utf8.RuneCountInString(term) < s.opts.MinLength {
			continue
		}
		code := SpanishPhonetic(term)
		if code == "" {
			continue
		}
		idx = append(idx, phoneticEntry{term: term, code: code, syllables: CountSyllables(term)})
	}
	return idx
}

func (s *PhoneticStrategy) Search(ctx context.Context, query string, corpus *Corpus, sc StrategyContext) ([]Scored, error) {
	qcode := SpanishPhonetic(query)
	if qcode == "" {
		return nil, nil
	}
	idx, ok := sc.(phoneticIndex)
	if !ok {
		idx = s.buildIndex(corpus)
	}
	qsyl := CountSyllables(query)
	out := make([]Scored, 0, len(idx))
	for _, e := range idx {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := Ratio(qcode, e.code)
		if s.opts.SyllablePenalty {
			score *= SyllablePenalty(qsyl, e.syllables, s.opts.PerSyllable)
		}
		out = append(out, Scored{Term: e.term, Score: score})
	}
	return out, nil
}
