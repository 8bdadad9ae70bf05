package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequency_EmptyAndShort(t *testing.T) {
	f := NewFrequency()

	got, err := f.Summarize("   ", 3)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = f.Summarize("One sentence.\nTwo   sentences!", 3)
	require.NoError(t, err)
	assert.Equal(t, "One sentence. Two sentences!", got)
}

func TestFrequency_PicksDominantTopicInOrder(t *testing.T) {
	text := "Transformers use attention layers. The weather was mild today. " +
		"Attention layers let transformers scale. Lunch was served at noon. " +
		"Scaling transformers needs attention to memory"

	got, err := NewFrequency().Summarize(text, 2)
	require.NoError(t, err)

	assert.Equal(t, "Transformers use attention layers. Attention layers let transformers scale.", got)
	assert.NotContains(t, got, "Lunch")
}

func TestFrequency_TrailingSentenceWithoutPunctuation(t *testing.T) {
	assert.Equal(t, []string{"First.", "second part"}, splitSentences("First. second part"))
}

func TestFrequency_DefaultLimit(t *testing.T) {
	text := strings.Repeat("Cats chase mice. ", 10)
	got, err := NewFrequency().Summarize(text, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSentences, strings.Count(got, "."))
}

func TestFrequency_Apostrophes(t *testing.T) {
	assert.Equal(t, []string{"model’s", "isn't"}, wordPattern.FindAllString("model’s isn't", -1))
}
