package brandmatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps known texts to fixed vectors; anything else embeds to
// an orthogonal axis.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    error

	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if v, ok := f.vectors[text]; ok {
		return cloneVector(v), nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEmbedder) ModelID() string { return "fake" }

func factoryOf(e Embedder) EmbedderFactory {
	return func() (Embedder, error) { return e, nil }
}

func TestCosineScalingConventions(t *testing.T) {
	// cos([1,0,0], [0.6,0.8,0]) == 0.6
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"refresco": {1, 0, 0},
		"gaseosa":  {0.6, 0.8, 0},
		"opuesto":  {-1, 0, 0},
	}}
	corpus := NewCorpus([]string{"gaseosa", "opuesto"})

	tests := []struct {
		scaling     CosineScaling
		wantGaseosa float64
		wantOpuesto float64
	}{
		{ScaleDirect, 60, 0},
		{ScaleShifted, 80, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.scaling), func(t *testing.T) {
			s := NewSemanticStrategy(StrategySBERT, factoryOf(embedder), tt.scaling)
			sc, err := s.Prepare(context.Background(), corpus)
			require.NoError(t, err)
			scored, err := s.Search(context.Background(), "Refresco", corpus, sc)
			require.NoError(t, err)
			got := scoresByTerm(scored)
			assert.InDelta(t, tt.wantGaseosa, got["gaseosa"], 1e-4)
			assert.InDelta(t, tt.wantOpuesto, got["opuesto"], 1e-4)
		})
	}
	assert.Equal(t, ScaleDirect, DefaultCosineScaling)
	assert.InDelta(t, 50.0, ScaleShifted.Scale(0), 1e-9)
	assert.Equal(t, 100.0, ScaleDirect.Scale(1.2))
}

func TestSemanticStrategyModelUnavailable(t *testing.T) {
	corpus := NewCorpus([]string{"bimbo"})
	s := NewSemanticStrategy(StrategyBETO, func() (Embedder, error) {
		return nil, errors.New("onnxruntime not found")
	}, "")

	sc, err := s.Prepare(context.Background(), corpus)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Nil(t, sc)

	scored, err := s.Search(context.Background(), "bimbo", corpus, sc)
	require.NoError(t, err)
	assert.Empty(t, scored)
	assert.NoError(t, s.Close())
}

func TestSemanticStrategyWithoutFactory(t *testing.T) {
	s := NewSemanticStrategy(StrategySBERT, nil, ScaleDirect)
	_, err := s.Prepare(context.Background(), NewCorpus([]string{"x"}))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestSemanticStrategyOpensEmbedderOnce(t *testing.T) {
	opened := 0
	embedder := &fakeEmbedder{}
	s := NewSemanticStrategy(StrategySBERT, func() (Embedder, error) {
		opened++
		return embedder, nil
	}, ScaleDirect)

	for _, terms := range [][]string{{"uno"}, {"uno", "dos"}} {
		_, err := s.Prepare(context.Background(), NewCorpus(terms))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, opened)
	require.NoError(t, s.Close())
	assert.True(t, embedder.closed)
}

func TestSemanticStrategyEmbedFailure(t *testing.T) {
	embedder := &fakeEmbedder{fail: errors.New("session broken")}
	s := NewSemanticStrategy(StrategySBERT, factoryOf(embedder), ScaleDirect)
	_, err := s.Prepare(context.Background(), NewCorpus([]string{"uno"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed corpus")
}

func TestInMemoryIndexSearch(t *testing.T) {
	idx := NewInMemoryIndex([]VectorItem{
		{Term: "a", Vector: []float32{1, 0}},
		{Term: "b", Vector: []float32{0, 1}},
		{Term: "c", Vector: []float32{1, 1}},
	})
	hits := idx.Search([]float32{1, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Term)
	assert.Equal(t, "c", hits[1].Term)
	assert.Len(t, idx.Search([]float32{1, 0}, 0), 3)
	assert.Nil(t, idx.Search(nil, 1))
}

func TestSemanticStrategyCloseBeforeOpen(t *testing.T) {
	opened := 0
	s := NewSemanticStrategy(StrategySBERT, func() (Embedder, error) {
		opened++
		return &fakeEmbedder{}, nil
	}, ScaleDirect)

	require.NoError(t, s.Close())
	_, err := s.Prepare(context.Background(), NewCorpus([]string{"uno"}))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 0, opened)
}

func TestSemanticStrategyCloseDuringOpen(t *testing.T) {
	embedder := &fakeEmbedder{}
	s := NewSemanticStrategy(StrategySBERT, factoryOf(embedder), ScaleDirect)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = s.Prepare(context.Background(), NewCorpus([]string{"uno"}))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Close())
	}()
	wg.Wait()

	// Whichever ran first, a later Close releases an opened embedder.
	require.NoError(t, s.Close())
	if _, err := s.open(); err == nil {
		assert.True(t, embedder.closed)
	}
}
