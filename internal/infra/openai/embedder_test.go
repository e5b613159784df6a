package openai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestNewEmbedderDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	assert.Equal(t, DefaultEmbeddingModel, embedder.ModelName())
	assert.Equal(t, DefaultEmbeddingDimension, embedder.Dimension())
}

func TestBatchEmbedRejectsInvalidBatch(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.Error(t, err)

	oversized := make([]string, MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = "text"
	}
	_, err = embedder.BatchEmbed(context.Background(), oversized)
	assert.Error(t, err)
}

func TestTruncateToTokenLimit(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	short := "a short job description"
	assert.Equal(t, short, embedder.truncateToTokenLimit(short))

	// 1語1トークン前後なので上限を大きく超える入力になる
	long := strings.Repeat("posting ", MaxInputTokens*2)
	truncated := embedder.truncateToTokenLimit(long)
	assert.Less(t, len(truncated), len(long))
	tokens := embedder.encoding.Encode(truncated, nil, nil)
	assert.LessOrEqual(t, len(tokens), MaxInputTokens)
}
