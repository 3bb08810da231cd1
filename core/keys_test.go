package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeadline(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Fed Holds Rates", "fed holds rates"},
		{"strips punctuation", "ACME, Inc. beats Q3 estimates!", "acme inc beats q3 estimates"},
		{"collapses whitespace", "  fed \t holds\n rates  ", "fed holds rates"},
		{"keeps digits", "CPI rises 3.2% YoY", "cpi rises 32 yoy"},
		{"empty", "", ""},
		{"punctuation only", "—!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeHeadline(tt.input))
		})
	}
}

func TestNormalizeHeadline_EquivalentForms(t *testing.T) {
	a := NormalizeHeadline("Fed holds rates steady")
	b := NormalizeHeadline("FED HOLDS RATES STEADY.")
	assert.Equal(t, a, b)
}

func TestCanonicalHash(t *testing.T) {
	type key struct {
		Question string   `json:"question"`
		Sources  []string `json:"sources"`
		TopK     int      `json:"top_k"`
	}

	t.Run("equal values hash equal", func(t *testing.T) {
		a := CanonicalHash(key{Question: "q", Sources: []string{"s1"}, TopK: 6})
		b := CanonicalHash(key{Question: "q", Sources: []string{"s1"}, TopK: 6})
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("different values hash different", func(t *testing.T) {
		a := CanonicalHash(key{Question: "q", TopK: 6})
		b := CanonicalHash(key{Question: "q", TopK: 7})
		assert.NotEqual(t, a, b)
	})
}
