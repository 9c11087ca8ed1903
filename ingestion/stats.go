package ingestion

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Summary reports the outcome of a pipeline run.
type Summary struct {
	Submitted   int64 // items accepted by Submit
	Embedded    int64 // successful embeds, the progress counter
	EmbedFailed int64
	Stored      int64
	StoreFailed int64
	Elapsed     time.Duration
}

// Failed returns the number of items dropped in either stage.
func (s Summary) Failed() int64 {
	return s.EmbedFailed + s.StoreFailed
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("submitted", s.Submitted),
		slog.Int64("embedded", s.Embedded),
		slog.Int64("embed_failed", s.EmbedFailed),
		slog.Int64("stored", s.Stored),
		slog.Int64("store_failed", s.StoreFailed),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// stats holds the shared counters updated by the workers.
type stats struct {
	submitted   atomic.Int64
	embedded    atomic.Int64
	embedFailed atomic.Int64
	stored      atomic.Int64
	storeFailed atomic.Int64
}

func (s *stats) snapshot(elapsed time.Duration) Summary {
	return Summary{
		Submitted:   s.submitted.Load(),
		Embedded:    s.embedded.Load(),
		EmbedFailed: s.embedFailed.Load(),
		Stored:      s.stored.Load(),
		StoreFailed: s.storeFailed.Load(),
		Elapsed:     elapsed,
	}
}
