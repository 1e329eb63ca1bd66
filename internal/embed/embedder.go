// Package embed turns query and chunk text into vectors through pluggable
// embeddings providers (Ollama, OpenAI-compatible, offline hash embeddings),
// resolved per workspace by provider and model name.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per embeddings request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embeddings request.
	DefaultTimeout = 30 * time.Second

	// DefaultEmbeddingCacheSize is the default number of cached query vectors.
	DefaultEmbeddingCacheSize = 1000

	// DefaultStaticDimensions is the vector size of the static embedder.
	DefaultStaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for many texts, one per input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension, or 0 while unknown.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the provider is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length in place. Zero vectors are left as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
	return v
}
