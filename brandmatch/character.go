package brandmatch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// DefaultNGramSize is the n used by NGramStrategy when none is configured.
const DefaultNGramSize = 3

// Ratio returns the indel-normalized edit similarity of a and b on the 0-100
// scale: 2*LCS / (len(a)+len(b)). Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	if a == b {
		return 100
	}
	return clampScore(float64(2*edlib.LCS(a, b)) / float64(total) * 100)
}

// EditStrategy scores raw lowercase strings by edit similarity.
type EditStrategy struct{}

// NewEditStrategy creates the character edit strategy.
func NewEditStrategy() *EditStrategy { return &EditStrategy{} }

func (*EditStrategy) Name() string   { return StrategyLevenshtein }
func (*EditStrategy) Family() Family { return FamilyCharacter }

// Prepare has nothing to precompute.
func (*EditStrategy) Prepare(context.Context, *Corpus) (StrategyContext, error) {
	return nil, nil
}

func (*EditStrategy) Search(ctx context.Context, query string, corpus *Corpus, _ StrategyContext) ([]Scored, error) {
	q := strings.ToLower(NormalizeText(query))
	terms := corpus.Terms()
	out := make([]Scored, 0, len(terms))
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, Scored{Term: term, Score: Ratio(q, term)})
	}
	return out, nil
}

// NGramSet returns the set of character n-grams of the cleaned text (lowercase,
// letters and digits only). Text shorter than n yields a singleton holding the
// whole cleaned string; empty text yields an empty set.
func NGramSet(text string, n int) map[string]struct{} {
	if n <= 0 {
		n = DefaultNGramSize
	}
	runes := []rune(alnumOnly(text))
	set := make(map[string]struct{})
	if len(runes) == 0 {
		return set
	}
	if len(runes) < n {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets score 1, one empty set 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// NGramStrategy scores terms by Jaccard similarity of character n-gram sets.
type NGramStrategy struct {
	n int
}

// NewNGramStrategy creates an n-gram strategy; n <= 0 uses DefaultNGramSize.
func NewNGramStrategy(n int) *NGramStrategy {
	if n <= 0 {
		n = DefaultNGramSize
	}
	return &NGramStrategy{n: n}
}

func (*NGramStrategy) Name() string   { return StrategyNGram }
func (*NGramStrategy) Family() Family { return FamilyCharacter }

// ngramIndex holds the n-gram set of every corpus term, in corpus order.
type ngramIndex []map[string]struct{}

// Prepare computes the n-gram set of every corpus term once.
func (s *NGramStrategy) Prepare(_ context.Context, corpus *Corpus) (StrategyContext, error) {
	terms := corpus.Terms()
	idx := make(ngramIndex, len(terms))
	for i, term := range terms {
		idx[i] = NGramSet(term, s.n)
	}
	return idx, nil
}

func (s *NGramStrategy) Search(ctx context.Context, query string, corpus *Corpus, sc StrategyContext) ([]Scored, error) {
	qs := NGramSet(query, s.n)
	terms := corpus.Terms()
	idx, _ := sc.(ngramIndex)
	if len(idx) != len(terms) {
		idx = nil
	}
	out := make([]Scored, 0, len(terms))
	for i, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ts map[string]struct{}
		if idx != nil {
			ts = idx[i]
		} else {
			ts = NGramSet(term, s.n)
		}
		out = append(out, Scored{Term: term, Score: Jaccard(qs, ts) * 100})
	}
	return out, nil
}
