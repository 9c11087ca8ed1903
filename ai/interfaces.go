package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Each call is a single attempt; callers decide whether to retry.
	// Any failure (transport, timeout, malformed response) is returned as an error.
	EmbedText(ctx context.Context, text string) ([]float64, error)
}
