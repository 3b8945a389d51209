package synth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/notesynth/pkg/extract"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty string", text: "", expected: 0},
		{name: "single char", text: "a", expected: 1},
		{name: "four chars = 1 token", text: "test", expected: 1},
		{name: "five chars = 2 tokens", text: "tests", expected: 2},
		{name: "typical sentence", text: "The quick brown fox jumps over the lazy dog.", expected: 11},
		{name: "1000 chars = 250 tokens", text: string(make([]byte, 1000)), expected: 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateMessagesTokens(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "Hello world"},       // 3
		{Role: RoleAssistant, Content: "Hi there!"},    // 3
		{Role: RoleUser, Content: "How are you doing"}, // 5
	}
	assert.Equal(t, 11, EstimateMessagesTokens(messages))
}

func material(n, size int) []extract.FileContents {
	out := make([]extract.FileContents, n)
	for i := range out {
		out[i] = extract.FileContents{File: "n", Contents: strings.Repeat("a", size)}
	}
	return out
}

func TestBudgetMaterial(t *testing.T) {
	// each file formats to 413 bytes, 104 tokens
	t.Run("no limit", func(t *testing.T) {
		kept, dropped := BudgetMaterial(material(3, 400), 0)
		assert.Len(t, kept, 3)
		assert.Zero(t, dropped)
	})

	t.Run("last file cut short", func(t *testing.T) {
		kept, dropped := BudgetMaterial(material(3, 400), 250)
		require.Len(t, kept, 3)
		assert.Zero(t, dropped)
		assert.Len(t, kept[0].Contents, 400)
		assert.Len(t, kept[2].Contents, 152)
	})

	t.Run("no room left drops the rest", func(t *testing.T) {
		kept, dropped := BudgetMaterial(material(3, 400), 105)
		assert.Len(t, kept, 1)
		assert.Equal(t, 2, dropped)
	})

	t.Run("input untouched", func(t *testing.T) {
		in := material(2, 400)
		BudgetMaterial(in, 110)
		assert.Len(t, in[1].Contents, 400)
	})
}

func TestTruncateKeepsCharacters(t *testing.T) {
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2), "never splits a two byte character")
	assert.Equal(t, "abc", truncate("abc", 9))
}
