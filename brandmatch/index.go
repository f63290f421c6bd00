package brandmatch

import (
	"math"
	"sort"
)

// VectorItem is a corpus term with its embedding.
type VectorItem struct {
	Term   string
	Vector []float32
}

// Hit is a raw cosine similarity for one indexed term.
type Hit struct {
	Term   string
	Cosine float32
}

// InMemoryIndex is a brute-force cosine index over a fixed set of vectors.
// It is built once and only read afterwards.
type InMemoryIndex struct {
	items []VectorItem
}

// NewInMemoryIndex copies items into a new index.
func NewInMemoryIndex(items []VectorItem) *InMemoryIndex {
	idx := &InMemoryIndex{items: make([]VectorItem, len(items))}
	for i, it := range items {
		idx.items[i] = VectorItem{Term: it.Term, Vector: cloneVector(it.Vector)}
	}
	return idx
}

// Size returns the number of indexed vectors.
func (idx *InMemoryIndex) Size() int {
	if idx == nil {
		return 0
	}
	return len(idx.items)
}

// Search compares vec against every item and returns hits ordered by cosine
// similarity. k <= 0 returns every item.
func (idx *InMemoryIndex) Search(vec []float32, k int) []Hit {
	if idx == nil || len(idx.items) == 0 || len(vec) == 0 {
		return nil
	}
	hits := make([]Hit, 0, len(idx.items))
	for _, it := range idx.items {
		hits = append(hits, Hit{Term: it.Term, Cosine: cosineSimilarity(vec, it.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Cosine > hits[j].Cosine
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
