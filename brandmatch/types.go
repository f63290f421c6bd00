package brandmatch

import "context"

// Family groups strategies whose results are deduplicated and capped together.
type Family string

const (
	// FamilySemantic covers embedding based strategies.
	FamilySemantic Family = "semantic"
	// FamilyCharacter covers edit distance and n-gram strategies.
	FamilyCharacter Family = "character"
	// FamilyPhonetic covers sound-alike strategies.
	FamilyPhonetic Family = "phonetic"
)

// Families lists the groups in presentation order.
var Families = []Family{FamilySemantic, FamilyCharacter, FamilyPhonetic}

// Strategy names used in reports and configuration.
const (
	StrategySBERT       = "sbert"
	StrategyBETO        = "beto"
	StrategyLevenshtein = "levenshtein"
	StrategyNGram       = "ngram"
	StrategyPhonetic    = "phonetic"
)

// Scored is a single corpus term with its similarity on the 0-100 scale.
type Scored struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Match is a scored term attributed to the strategy that produced it.
type Match struct {
	Term     string  `json:"term"`
	Display  string  `json:"display"`
	Score    float64 `json:"score"`
	Strategy string  `json:"strategy"`
	Family   Family  `json:"family"`
}

// Group holds the ranked matches of one strategy family.
type Group struct {
	Family  Family  `json:"family"`
	Matches []Match `json:"matches"`
}

// Report is the fused outcome of one query.
type Report struct {
	Query     string    `json:"query"`
	Threshold float64   `json:"threshold"`
	Matches   []Match   `json:"matches"`
	Groups    []Group   `json:"groups"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Group returns the matches of family f, or nil when the family produced none.
func (r Report) Group(f Family) []Match {
	for _, g := range r.Groups {
		if g.Family == f {
			return g.Matches
		}
	}
	return nil
}

// StrategyContext is whatever a strategy precomputes from a corpus.
type StrategyContext any

// Strategy computes one similarity signal between a query and every corpus term.
//
// Prepare runs at most once per corpus version. Search must tolerate a nil
// context when Prepare failed and return an empty result in that case.
type Strategy interface {
	Name() string
	Family() Family
	Prepare(ctx context.Context, corpus *Corpus) (StrategyContext, error)
	Search(ctx context.Context, query string, corpus *Corpus, sc StrategyContext) ([]Scored, error)
}

// FuseOptions controls thresholding and result caps.
type FuseOptions struct {
	Threshold  float64
	GroupLimit int
	FlatLimit  int
}
