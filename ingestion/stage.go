package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/metrics"
	"github.com/poiesic/sentvec/queue"
	"github.com/poiesic/sentvec/storage"
)

// EmbeddedItem is a text with its embedding, waiting to be stored.
type EmbeddedItem struct {
	Text      string
	Vector    []float64
	CreatedAt time.Time
}

// stageHooks are the observers shared by both stages. All fields are optional.
type stageHooks struct {
	stats     *stats
	metrics   *metrics.Metrics
	progress  Progress
	onFailure func(error)
}

func (h *stageHooks) failed(err error) {
	if h.onFailure != nil {
		h.onFailure(err)
	}
}

func (h *stageHooks) observe(stage string, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	h.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	h.metrics.ItemsProcessed.WithLabelValues(stage, outcome).Inc()
}

func (h *stageHooks) depth(stage string, pending int64) {
	if h.metrics != nil {
		h.metrics.QueueDepth.WithLabelValues(stage).Set(float64(pending))
	}
}

// embedStage turns texts into embedded items. Each item gets exactly one
// Embedder call; failures are logged and the item is dropped.
type embedStage struct {
	in        *queue.Queue[string]
	out       *queue.Queue[EmbeddedItem]
	embedder  ai.Embedder
	rateLimit time.Duration
	hooks     *stageHooks
	logger    *slog.Logger
}

// run processes items until the input queue is closed and drained.
func (s *embedStage) run(ctx context.Context, worker int) {
	logger := s.logger.With("worker", worker)
	logger.Debug("embed worker started")
	defer logger.Debug("embed worker stopped")

	for {
		text, ok := s.in.Dequeue()
		if !ok {
			return
		}
		s.process(ctx, logger, text)
		s.throttle(ctx)
		s.in.Done()
		s.hooks.depth(metrics.StageEmbed, s.in.Pending())
	}
}

func (s *embedStage) process(ctx context.Context, logger *slog.Logger, text string) {
	start := time.Now()
	vector, err := s.embed(ctx, text)
	if err == nil && len(vector) == 0 {
		err = core.ErrEmptyVector
	}
	s.hooks.observe(metrics.StageEmbed, start, err)

	if err != nil {
		s.hooks.stats.embedFailed.Add(1)
		embedErr := &EmbedError{Text: text, Err: err}
		logger.Error("embed failed", "text", core.Truncate(text, logTextLen), "err", err)
		s.hooks.failed(embedErr)
		return
	}

	item := EmbeddedItem{Text: text, Vector: vector, CreatedAt: time.Now().UTC()}
	// Forward before this item is acknowledged so the store queue's pending
	// count covers it by the time the embed queue's count can reach zero.
	if err := s.out.Enqueue(ctx, item); err != nil {
		s.hooks.stats.storeFailed.Add(1)
		storeErr := &StoreError{Text: text, Err: fmt.Errorf("forwarding to store stage: %w", err)}
		logger.Error("dropping embedded item", "text", core.Truncate(text, logTextLen), "err", err)
		s.hooks.failed(storeErr)
		return
	}
	s.hooks.depth(metrics.StageStore, s.out.Pending())

	s.hooks.stats.embedded.Add(1)
	if s.hooks.progress != nil {
		s.hooks.progress.Increment(1)
	}
}

func (s *embedStage) embed(ctx context.Context, text string) (vector []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return s.embedder.EmbedText(ctx, text)
}

// throttle sleeps for the rate limit after every attempt, whatever its outcome.
func (s *embedStage) throttle(ctx context.Context) {
	if s.rateLimit <= 0 {
		return
	}
	timer := time.NewTimer(s.rateLimit)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// storeStage persists embedded items. Each item gets exactly one Persist
// call; failures are logged and the item is dropped.
type storeStage struct {
	in     *queue.Queue[EmbeddedItem]
	store  storage.Store
	hooks  *stageHooks
	logger *slog.Logger
}

// run processes items until the input queue is closed and drained.
func (s *storeStage) run(ctx context.Context, worker int) {
	logger := s.logger.With("worker", worker)
	logger.Debug("store worker started")
	defer logger.Debug("store worker stopped")

	for {
		item, ok := s.in.Dequeue()
		if !ok {
			return
		}
		s.process(ctx, logger, item)
		s.in.Done()
		s.hooks.depth(metrics.StageStore, s.in.Pending())
	}
}

func (s *storeStage) process(ctx context.Context, logger *slog.Logger, item EmbeddedItem) {
	start := time.Now()
	err := s.persist(ctx, item)
	s.hooks.observe(metrics.StageStore, start, err)

	if err != nil {
		s.hooks.stats.storeFailed.Add(1)
		storeErr := &StoreError{Text: item.Text, Err: err}
		logger.Error("store failed", "text", core.Truncate(item.Text, logTextLen), "err", err)
		s.hooks.failed(storeErr)
		return
	}
	s.hooks.stats.stored.Add(1)
}

func (s *storeStage) persist(ctx context.Context, item EmbeddedItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return s.store.Persist(ctx, item.Text, item.Vector, item.CreatedAt)
}
