// Package embedder defines the text-embedding interface consumed by the
// retrieval pipeline, plus a read-through cache decorator.
//
// The embedding dimension is fixed at setup time and must match across all
// writers and readers of a retrieval directory; the reference model is
// all-MiniLM-L6-v2 at 384 dimensions.
package embedder

import "context"

// Embedder converts text to a fixed-dimension vector. Implementations must
// be deterministic enough for consistent ranking: the same text should map
// to the same (or a negligibly different) vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
