package brandmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCorpusDedupesAndKeepsFirstSpelling(t *testing.T) {
	c := NewCorpus([]string{"Coca Cola", "", "  coca   cola ", "PEPSI", "Pepsi", "bimbo"})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"coca cola", "pepsi", "bimbo"}, c.Terms())
	assert.Equal(t, "Coca Cola", c.Original("coca cola"))
	assert.Equal(t, "PEPSI", c.Original("pepsi"))
	assert.Equal(t, "Pepsi", c.Display("pepsi"))
	assert.True(t, c.Contains("bimbo"))
	assert.False(t, c.Contains("Bimbo"))
	assert.Equal(t, "unknown", c.Original("unknown"))
}

func TestCorpusVersion(t *testing.T) {
	a := NewCorpus([]string{"uno", "dos"})
	b := NewCorpus([]string{"UNO", "dos", "Dos"})
	c := NewCorpus([]string{"dos", "uno"})

	assert.Equal(t, a.Version(), b.Version())
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestNilCorpus(t *testing.T) {
	var c *Corpus
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Terms())
	assert.False(t, c.Contains("x"))
	assert.Equal(t, uint64(0), c.Version())
	assert.Equal(t, "X", c.Display("x"))
}
