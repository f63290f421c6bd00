package brandmatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// CosineScaling maps a cosine similarity in [-1, 1] onto the 0-100 score scale.
type CosineScaling string

const (
	// ScaleDirect multiplies the cosine by 100 and clamps to [0, 100].
	// Negative similarities therefore score 0.
	ScaleDirect CosineScaling = "direct"
	// ScaleShifted remaps [-1, 1] linearly onto [0, 100].
	ScaleShifted CosineScaling = "shifted"

	// DefaultCosineScaling is the convention used unless configured otherwise.
	DefaultCosineScaling = ScaleDirect
)

// ParseCosineScaling returns the scaling named v. Empty selects the default.
func ParseCosineScaling(v string) (CosineScaling, error) {
	switch sc := CosineScaling(strings.ToLower(strings.TrimSpace(v))); sc {
	case "":
		return DefaultCosineScaling, nil
	case ScaleDirect, ScaleShifted:
		return sc, nil
	default:
		return "", fmt.Errorf("unknown cosine scaling %q (want %s or %s)", v, ScaleDirect, ScaleShifted)
	}
}

// Scale converts cos to a score under s.
func (s CosineScaling) Scale(cos float64) float64 {
	if s == ScaleShifted {
		return clampScore((cos + 1) / 2 * 100)
	}
	return clampScore(cos * 100)
}

// SemanticStrategy scores terms by cosine similarity of sentence embeddings.
// The embedder is opened on first Prepare and shared by every corpus version.
type SemanticStrategy struct {
	name    string
	factory EmbedderFactory
	scaling CosineScaling

	once     sync.Once
	embedder Embedder
	openErr  error
}

// NewSemanticStrategy creates a semantic strategy named name.
func NewSemanticStrategy(name string, factory EmbedderFactory, scaling CosineScaling) *SemanticStrategy {
	if scaling == "" {
		scaling = DefaultCosineScaling
	}
	return &SemanticStrategy{name: name, factory: factory, scaling: scaling}
}

func (s *SemanticStrategy) Name() string   { return s.name }
func (s *SemanticStrategy) Family() Family { return FamilySemantic }

func (s *SemanticStrategy) open() (Embedder, error) {
	s.once.Do(func() {
		if s.factory == nil {
			s.openErr = fmt.Errorf("%w: no embedder configured for %s", ErrModelUnavailable, s.name)
			return
		}
		e, err := s.factory()
		switch {
		case err != nil && !errors.Is(err, ErrModelUnavailable):
			s.openErr = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		case err != nil:
			s.openErr = err
		case e == nil:
			s.openErr = fmt.Errorf("%w: %s factory returned no embedder", ErrModelUnavailable, s.name)
		default:
			s.embedder = e
		}
	})
	return s.embedder, s.openErr
}

// Prepare encodes every corpus term into an InMemoryIndex.
func (s *SemanticStrategy) Prepare(ctx context.Context, corpus *Corpus) (StrategyContext, error) {
	embedder, err := s.open()
	if err != nil {
		return nil, err
	}
	terms := corpus.Terms()
	if len(terms) == 0 {
		return NewInMemoryIndex(nil), nil
	}
	vecs, err := embedder.EmbedTexts(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if len(vecs) != len(terms) {
		return nil, fmt.Errorf("embed corpus: got %d vectors for %d terms", len(vecs), len(terms))
	}
	items := make([]VectorItem, len(terms))
	for i, term := range terms {
		items[i] = VectorItem{Term: term, Vector: vecs[i]}
	}
	return NewInMemoryIndex(items), nil
}

// Search encodes the query and scores it against the prepared index. A
// missing index yields no results.
func (s *SemanticStrategy) Search(ctx context.Context, query string, _ *Corpus, sc StrategyContext) ([]Scored, error) {
	idx, ok := sc.(*InMemoryIndex)
	if !ok || idx.Size() == 0 {
		return nil, nil
	}
	embedder, err := s.open()
	if err != nil {
		return nil, nil
	}
	q := strings.ToLower(NormalizeText(query))
	if q == "" {
		return nil, nil
	}
	vec, err := embedder.EmbedText(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits := idx.Search(vec, 0)
	out := make([]Scored, len(hits))
	for i, h := range hits {
		out[i] = Scored{Term: h.Term, Score: s.scaling.Scale(float64(h.Cosine))}
	}
	return out, nil
}

// Close releases the embedder if it was opened. It waits for an open in
// progress, and a strategy closed before first use never opens one.
func (s *SemanticStrategy) Close() error {
	s.once.Do(func() {
		s.openErr = fmt.Errorf("%w: %s is closed", ErrModelUnavailable, s.name)
	})
	if s.embedder != nil {
		return s.embedder.Close()
	}
	return nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
