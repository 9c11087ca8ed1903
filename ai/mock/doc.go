// Package mock provides a test double for the ai.Embedder interface.
//
// The mock allows tests to run without an external embedding service and
// enables controlled, deterministic behavior, including per-text failure
// injection for exercising the ingestion pipeline's failure isolation.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder()
//	vector, err := embedder.EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedder().
//	    WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
//	        if text == "a" {
//	            return nil, errors.New("boom")
//	        }
//	        return []float64{1.0}, nil
//	    })
//
//	// Check call counts
//	count := embedder.CallCount()
//	perText := embedder.CallsFor("a")
//
// # Default Behavior
//
// MockEmbedder returns unit-length vectors derived from an FNV hash of the text.
package mock
