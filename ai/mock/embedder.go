package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use from multiple pipeline workers.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float64, error)

	// Dimensions is the length of vectors produced by the default behavior.
	Dimensions int

	mu    sync.Mutex
	calls map[string]int
	total int
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Dimensions: 384,
		calls:      make(map[string]int),
	}
}

// WithEmbedTextFunc installs custom behavior and returns the mock for chaining.
func (m *MockEmbedder) WithEmbedTextFunc(fn func(ctx context.Context, text string) ([]float64, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedTextFunc = fn
	return m
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.total++
	m.calls[text]++
	fn := m.EmbedTextFunc
	dim := m.Dimensions
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}

	return GenerateDeterministicVector(text, dim), nil
}

// CallCount returns the number of times EmbedText was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// CallsFor returns how many times EmbedText was called with text.
func (m *MockEmbedder) CallsFor(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

// Calls returns a copy of the per-text call counts.
func (m *MockEmbedder) Calls() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.calls))
	for k, v := range m.calls {
		out[k] = v
	}
	return out
}

// Reset clears the call counts and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = 0
	m.calls = make(map[string]int)
	m.EmbedTextFunc = nil
}

// GenerateDeterministicVector creates a unit-length embedding vector from text.
// It uses an FNV hash so the same text always produces the same vector.
func GenerateDeterministicVector(text string, dim int) []float64 {
	if dim <= 0 {
		dim = 1
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float64, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float64(seed%1000)/1000.0 + 0.001
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += v * v
	}
	norm := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] /= norm
	}

	return vector
}
