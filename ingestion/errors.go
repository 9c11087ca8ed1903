package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/sentvec/core"
)

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrSourceRequired is returned when a nil source is passed to Run or SubmitSource.
	ErrSourceRequired = errors.New("source required")

	// ErrInvalidWorkerCount is returned when a worker pool size is below 1.
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")

	// ErrInvalidRateLimit is returned for a negative rate limit.
	ErrInvalidRateLimit = errors.New("rate limit cannot be negative")

	// ErrInvalidShutdownTimeout is returned for a non-positive shutdown timeout.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidState is returned when an operation is not allowed in the
	// pipeline's current state.
	ErrInvalidState = errors.New("invalid pipeline state")

	// ErrShutdownTimeout is returned when workers do not exit within the
	// shutdown timeout.
	ErrShutdownTimeout = errors.New("workers did not exit before shutdown timeout")

	// ErrWorkerPanic wraps a panic recovered from an Embedder or Store call.
	ErrWorkerPanic = errors.New("panic during item processing")
)

// logTextLen is how much of an item's text appears in errors and logs.
const logTextLen = 60

// EmbedError reports a failed embedding attempt for one item.
type EmbedError struct {
	Text string
	Err  error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed %q: %v", core.Truncate(e.Text, logTextLen), e.Err)
}

func (e *EmbedError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed persist attempt for one embedded item.
type StoreError struct {
	Text string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %q: %v", core.Truncate(e.Text, logTextLen), e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
