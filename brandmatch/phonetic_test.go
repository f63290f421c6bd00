package brandmatch

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanishPhoneticSoundAlikes(t *testing.T) {
	pairs := [][2]string{
		{"vaca", "baca"},
		{"cielo", "sielo"},
		{"zapato", "sapato"},
		{"gente", "jente"},
		{"llama", "yama"},
		{"hola", "ola"},
		{"casa", "kasa"},
		{"queso", "keso"},
		{"blanco", "balanoco"},
	}
	for _, p := range pairs {
		assert.Equal(t, SpanishPhonetic(p[0]), SpanishPhonetic(p[1]), "%s vs %s", p[0], p[1])
	}
}

func TestSpanishPhoneticCodes(t *testing.T) {
	tests := map[string]string{
		"blanco":    "BLNK",
		"Chocolate": "XKLT",
		"guitarra":  "GTR",
		"hola":      "OL",
		"España":    "ESPNY",
		"":          "",
		"--":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SpanishPhonetic(in), in)
	}
	assert.NotEqual(t, SpanishPhonetic("pepsi"), SpanishPhonetic("coca-cola"))
}

func TestCountSyllables(t *testing.T) {
	assert.Equal(t, 2, CountSyllables("blanco"))
	assert.Equal(t, 4, CountSyllables("balanoco"))
	assert.Equal(t, 1, CountSyllables("xyz"))
	assert.Equal(t, 0, CountSyllables(""))
	assert.Equal(t, 2, CountSyllables("Canción"))
}

func TestSyllablePenalty(t *testing.T) {
	assert.InDelta(t, 1.0, SyllablePenalty(3, 3, DefaultSyllablePenalty), 1e-9)
	assert.InDelta(t, 0.6, SyllablePenalty(2, 4, DefaultSyllablePenalty), 1e-9)
	assert.InDelta(t, 0.6, SyllablePenalty(4, 2, DefaultSyllablePenalty), 1e-9)
	assert.Equal(t, 0.0, SyllablePenalty(1, 9, DefaultSyllablePenalty))
}

func TestPhoneticStrategyPenalisesSyllableDifference(t *testing.T) {
	corpus := NewCorpus([]string{"blanco"})

	withPenalty := NewPhoneticStrategy(PhoneticOptions{SyllablePenalty: true})
	scored, err := withPenalty.Search(context.Background(), "balanoco", corpus, nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.InDelta(t, 100*0.6, scored[0].Score, 1e-9)

	without := NewPhoneticStrategy(PhoneticOptions{})
	scored, err = without.Search(context.Background(), "balanoco", corpus, nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, 100.0, scored[0].Score)
}

func TestPhoneticStrategyExcludesShortTerms(t *testing.T) {
	corpus := NewCorpus([]string{"oso", "sol", "ñu", "bimbo", "sole", "a b"})
	s := NewPhoneticStrategy(PhoneticOptions{SyllablePenalty: true})
	sc, err := s.Prepare(context.Background(), corpus)
	require.NoError(t, err)

	for _, q := range []string{"oso", "sol", "bimbo", "zole", "x"} {
		scored, err := s.Search(context.Background(), q, corpus, sc)
		require.NoError(t, err)
		for _, r := range scored {
			assert.GreaterOrEqual(t, utf8.RuneCountInString(r.Term), DefaultPhoneticMinLength, "query %q returned %q", q, r.Term)
		}
	}

	scored, err := s.Search(context.Background(), "zole", corpus, sc)
	require.NoError(t, err)
	assert.Equal(t, 100.0, scoresByTerm(scored)["sole"])
}

func TestPhoneticStrategyEmptyQuery(t *testing.T) {
	corpus := NewCorpus([]string{"bimbo"})
	scored, err := NewPhoneticStrategy(PhoneticOptions{}).Search(context.Background(), " ¿? ", corpus, nil)
	require.NoError(t, err)
	assert.Empty(t, scored)
}
