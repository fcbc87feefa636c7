// Package embed maps chunk and query text to fixed-dimension, L2-normalized
// vectors, via either an on-device transformer (the default) or a hosted
// embeddings endpoint.
package embed

import (
	"context"
	"math"
)

// Dimensions is the output vector length for the default local model.
const Dimensions = 384

// MaxSeqLen is the token-sequence length (including [CLS]/[SEP]) the local
// model is run with.
const MaxSeqLen = 256

// DefaultBatchSize bounds how many texts are embedded in a single inference
// or HTTP call.
const DefaultBatchSize = 32

// Embedder maps text to an L2-normalized vector of fixed dimension.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds an ordered list of texts, returning vectors in the
	// same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used for cache keying and
	// status reporting.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// l2Normalize normalizes v to unit length in place. A zero vector is left
// unchanged, per the pooling invariant.
func l2Normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}
