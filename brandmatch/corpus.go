package brandmatch

import (
	"github.com/cespare/xxhash/v2"
)

// Corpus is an ordered set of unique normalized terms. It is immutable once built.
type Corpus struct {
	terms   []string
	display map[string]string
	version uint64
}

// NewCorpus normalizes raw entries, drops blanks and duplicates and keeps
// the first-seen spelling of every term for display.
func NewCorpus(raw []string) *Corpus {
	c := &Corpus{
		terms:   make([]string, 0, len(raw)),
		display: make(map[string]string, len(raw)),
	}
	h := xxhash.New()
	for _, entry := range raw {
		key := NormalizeTerm(entry)
		if key == "" {
			continue
		}
		if _, ok := c.display[key]; ok {
			continue
		}
		c.display[key] = NormalizeText(entry)
		c.terms = append(c.terms, key)
		_, _ = h.WriteString(key)
		_, _ = h.Write([]byte{0})
	}
	c.version = h.Sum64()
	return c
}

// Len returns the number of terms.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.terms)
}

// Terms returns the terms in corpus order. Callers must not modify the slice.
func (c *Corpus) Terms() []string {
	if c == nil {
		return nil
	}
	return c.terms
}

// Contains reports whether key is a corpus term.
func (c *Corpus) Contains(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.display[key]
	return ok
}

// Original returns the first-seen spelling of key.
func (c *Corpus) Original(key string) string {
	if c == nil {
		return key
	}
	if v, ok := c.display[key]; ok {
		return v
	}
	return key
}

// Display returns the title-cased form of key.
func (c *Corpus) Display(key string) string {
	return TitleCase(c.Original(key))
}

// Version fingerprints the term list. Derived indexes are keyed by it.
func (c *Corpus) Version() uint64 {
	if c == nil {
		return 0
	}
	return c.version
}
