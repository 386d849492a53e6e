package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"É":           "e",
		"Olá Mundo":   "ola mundo",
		"São Paulo":   "sao paulo",
		"Grêmio":      "gremio",
		"CAZÉTV":      "cazetv",
		"Atlético-MG": "atletico-mg",
		"":            "",
		"sportv":      "sportv",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"Çãõ Ñandú", "Ünïcödé", "Paulistão 2026", "RedeTV!"}
	for c := rune(0x20); c < 0x7f; c++ {
		inputs = append(inputs, string(c))
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "not idempotent for %q", in)
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("Grêmio x Internacional", "gremio"))
	assert.True(t, Contains("sportv premiere", "SporTV"))
	assert.False(t, Contains("Palmeiras", "santos"))
}
