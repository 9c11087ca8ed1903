package ingestion

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/metrics"
	"github.com/poiesic/sentvec/queue"
	"github.com/poiesic/sentvec/source"
	"github.com/poiesic/sentvec/storage"
)

// Defaults for a Pipeline.
const (
	DefaultEmbedWorkers    = 1
	DefaultStoreWorkers    = 25
	DefaultShutdownTimeout = 30 * time.Second
)

// State is a pipeline lifecycle state.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateDraining
	StateDrained
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateDraining:
		return "draining"
	case StateDrained:
		return "drained"
	case StateShutDown:
		return "shut down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pipeline moves text items through an embed stage and a store stage.
//
// Items submitted to the pipeline are embedded by a small pool of embed
// workers and persisted by a larger pool of store workers. A failure on one
// item is logged and the item is dropped; it never stops the pipeline.
type Pipeline struct {
	store    storage.Store
	embedder ai.Embedder

	embedWorkers    int
	storeWorkers    int
	rateLimit       time.Duration
	queueCapacity   int
	shutdownTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	progress        Progress
	onFailure       func(error)

	embedQueue *queue.Queue[string]
	storeQueue *queue.Queue[EmbeddedItem]
	embedPool  *ants.Pool
	storePool  *ants.Pool
	embedStage *embedStage
	storeStage *storeStage
	stats      stats

	mu        sync.Mutex
	state     State
	startedAt time.Time
	drainedAt time.Time
	cancel    context.CancelFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithEmbedWorkers sets the number of embed workers.
// Default is 1, which keeps calls to the embedder serialized and in
// submission order.
func WithEmbedWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: embed workers %d", ErrInvalidWorkerCount, n)
		}
		p.embedWorkers = n
		return nil
	}
}

// WithStoreWorkers sets the number of store workers.
// Default is 25.
func WithStoreWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: store workers %d", ErrInvalidWorkerCount, n)
		}
		p.storeWorkers = n
		return nil
	}
}

// WithRateLimit sets the delay each embed worker waits after every embed
// attempt. Default is 0 (no delay).
func WithRateLimit(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return ErrInvalidRateLimit
		}
		p.rateLimit = d
		return nil
	}
}

// WithQueueCapacity bounds both stage queues. Once the embed queue is full
// Submit blocks until an embed worker takes an item.
// Default is 0 (unbounded).
func WithQueueCapacity(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.queueCapacity = n
		return nil
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for each stage's
// workers to exit. Default is 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return ErrInvalidShutdownTimeout
		}
		p.shutdownTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithProgress sets an observer incremented once per successfully embedded item.
func WithProgress(progress Progress) Option {
	return func(p *Pipeline) error {
		p.progress = progress
		return nil
	}
}

// WithFailureHandler sets a callback receiving every *EmbedError and
// *StoreError. It is called from worker goroutines and must be safe for
// concurrent use.
func WithFailureHandler(fn func(error)) Option {
	return func(p *Pipeline) error {
		p.onFailure = fn
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. The pipeline does not own
// store or embedder; callers close them after Shutdown.
func NewPipeline(store storage.Store, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Create pipeline with defaults
	p := &Pipeline{
		store:           store,
		embedder:        embedder,
		embedWorkers:    DefaultEmbedWorkers,
		storeWorkers:    DefaultStoreWorkers,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	// Create pools after options are applied (so they get final config)
	embedPool, err := p.newPool(p.embedWorkers, "embed")
	if err != nil {
		return nil, err
	}
	storePool, err := p.newPool(p.storeWorkers, "store")
	if err != nil {
		embedPool.Release()
		return nil, err
	}
	p.embedPool = embedPool
	p.storePool = storePool

	p.embedQueue = queue.New[string](p.queueCapacity)
	p.storeQueue = queue.New[EmbeddedItem](p.queueCapacity)

	hooks := &stageHooks{
		stats:     &p.stats,
		metrics:   p.metrics,
		progress:  p.progress,
		onFailure: p.onFailure,
	}
	p.embedStage = &embedStage{
		in:        p.embedQueue,
		out:       p.storeQueue,
		embedder:  embedder,
		rateLimit: p.rateLimit,
		hooks:     hooks,
		logger:    p.logger.With("stage", metrics.StageEmbed),
	}
	p.storeStage = &storeStage{
		in:     p.storeQueue,
		store:  store,
		hooks:  hooks,
		logger: p.logger.With("stage", metrics.StageStore),
	}

	return p, nil
}

func (p *Pipeline) newPool(size int, stage string) (*ants.Pool, error) {
	logger := p.logger.With("stage", stage)
	return ants.NewPool(size,
		ants.WithLogger(&antsLoggerAdapter{logger: logger}),
		ants.WithPanicHandler(func(r any) {
			logger.Error("worker panicked", "panic", r)
		}),
	)
}

// antsLoggerAdapter adapts slog.Logger to the ants.Logger interface.
type antsLoggerAdapter struct {
	logger *slog.Logger
}

var _ ants.Logger = (*antsLoggerAdapter)(nil)

func (a *antsLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Progress returns the number of items embedded so far.
func (p *Pipeline) Progress() int64 {
	return p.stats.embedded.Load()
}

// Pending returns the pending counts of the embed and store queues.
func (p *Pipeline) Pending() (embed, store int64) {
	return p.embedQueue.Pending(), p.storeQueue.Pending()
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Summary {
	p.mu.Lock()
	elapsed := p.elapsedLocked()
	p.mu.Unlock()
	return p.stats.snapshot(elapsed)
}

func (p *Pipeline) elapsedLocked() time.Duration {
	switch {
	case p.startedAt.IsZero():
		return 0
	case !p.drainedAt.IsZero():
		return p.drainedAt.Sub(p.startedAt)
	default:
		return time.Since(p.startedAt)
	}
}

// Start launches the embed and store workers. ctx is passed to every
// Embedder and Store call; cancelling it fails in-flight and remaining
// items quickly instead of stopping the workers.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateCreated {
		return fmt.Errorf("%w: cannot start in state %s", ErrInvalidState, p.state)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	for i := 0; i < p.embedWorkers; i++ {
		worker := i
		if err := p.embedPool.Submit(func() { p.embedStage.run(workerCtx, worker) }); err != nil {
			cancel()
			return fmt.Errorf("starting embed worker %d: %w", i, err)
		}
	}
	for i := 0; i < p.storeWorkers; i++ {
		worker := i
		if err := p.storePool.Submit(func() { p.storeStage.run(workerCtx, worker) }); err != nil {
			cancel()
			return fmt.Errorf("starting store worker %d: %w", i, err)
		}
	}

	p.cancel = cancel
	p.startedAt = time.Now()
	p.state = StateStarted
	p.logger.Info("pipeline started",
		"embed_workers", p.embedWorkers,
		"store_workers", p.storeWorkers,
		"rate_limit", p.rateLimit)
	return nil
}

// Submit enqueues items for embedding. It returns once the items are queued,
// without waiting for them to be processed. With a bounded queue it blocks
// while the embed queue is full.
func (p *Pipeline) Submit(ctx context.Context, items ...string) error {
	p.mu.Lock()
	switch p.state {
	case StateStarted:
		p.state = StateDraining
	case StateDraining:
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot submit in state %s", ErrInvalidState, state)
	}
	p.mu.Unlock()

	for _, item := range items {
		if err := p.embedQueue.Enqueue(ctx, item); err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return fmt.Errorf("%w: %w", ErrInvalidState, err)
			}
			return err
		}
		p.stats.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.ItemsSubmitted.Inc()
			p.metrics.QueueDepth.WithLabelValues(metrics.StageEmbed).Set(float64(p.embedQueue.Pending()))
		}
	}
	return nil
}

// SubmitSource opens src and submits every item it yields. It returns the
// number of items submitted. Items read before an I/O error stay submitted.
func (p *Pipeline) SubmitSource(ctx context.Context, src source.Source) (int, error) {
	if src == nil {
		return 0, ErrSourceRequired
	}
	items, err := src.Open()
	if err != nil {
		return 0, err
	}
	return p.submitAll(ctx, items)
}

func (p *Pipeline) submitAll(ctx context.Context, items iter.Seq2[string, error]) (int, error) {
	count := 0
	for item, err := range items {
		if err != nil {
			p.logger.Error("source read failed", "submitted", count, "err", err)
			return count, err
		}
		if err := p.Submit(ctx, item); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// AwaitDrain blocks until every submitted item has been attempted by both
// stages, that is until both queues' pending counts are zero. It does not
// mean every item succeeded. The summary is logged once, on the first drain.
func (p *Pipeline) AwaitDrain(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	switch p.state {
	case StateStarted, StateDraining, StateDrained:
	default:
		state := p.state
		p.mu.Unlock()
		return Summary{}, fmt.Errorf("%w: cannot await drain in state %s", ErrInvalidState, state)
	}
	p.mu.Unlock()

	for {
		if err := p.embedQueue.Wait(ctx); err != nil {
			return p.Stats(), err
		}
		if err := p.storeQueue.Wait(ctx); err != nil {
			return p.Stats(), err
		}
		// A concurrent Submit may have refilled the embed queue.
		if p.embedQueue.Pending() == 0 && p.storeQueue.Pending() == 0 {
			break
		}
	}

	p.mu.Lock()
	first := p.state != StateDrained
	if first && (p.state == StateStarted || p.state == StateDraining) {
		p.drainedAt = time.Now()
		p.state = StateDrained
	}
	elapsed := p.elapsedLocked()
	p.mu.Unlock()

	summary := p.stats.snapshot(elapsed)
	if first {
		p.logger.Info("pipeline drained", "summary", summary)
	}
	return summary, nil
}

// Shutdown closes both queues and waits for the workers to exit, embed
// stage first. Items still queued are processed before the workers stop.
// It is safe to call from any state and more than once; only the first
// call does any work. ErrShutdownTimeout is returned if a stage's workers
// do not exit within the shutdown timeout.
func (p *Pipeline) Shutdown() error {
	p.mu.Lock()
	if p.state == StateShutDown {
		p.mu.Unlock()
		return nil
	}
	prev := p.state
	p.state = StateShutDown
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		cancel = func() {}
	}
	defer cancel()

	var errs []error

	p.embedQueue.Close()
	if err := p.releasePool(p.embedPool, metrics.StageEmbed); err != nil {
		// Unblock workers stuck in an embed call before giving up on them.
		cancel()
		errs = append(errs, err)
	}

	p.storeQueue.Close()
	if err := p.releasePool(p.storePool, metrics.StageStore); err != nil {
		cancel()
		errs = append(errs, err)
	}

	p.logger.Info("pipeline shut down", "from", prev.String(), "summary", p.Stats())
	return errors.Join(errs...)
}

func (p *Pipeline) releasePool(pool *ants.Pool, stage string) error {
	err := pool.ReleaseTimeout(p.shutdownTimeout)
	switch {
	case err == nil, errors.Is(err, ants.ErrPoolClosed):
		return nil
	case errors.Is(err, ants.ErrTimeout):
		p.logger.Error("workers did not exit in time", "stage", stage, "timeout", p.shutdownTimeout)
		return fmt.Errorf("%w: %s stage after %s", ErrShutdownTimeout, stage, p.shutdownTimeout)
	default:
		return fmt.Errorf("releasing %s pool: %w", stage, err)
	}
}

// Run ingests everything src yields and shuts the pipeline down.
//
// The source is opened before any worker starts, so an unavailable source
// fails with source.ErrSourceUnavailable and nothing runs. A read error after
// some items is returned together with the summary of the items that were
// read.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (Summary, error) {
	if src == nil {
		return Summary{}, ErrSourceRequired
	}
	items, err := src.Open()
	if err != nil {
		p.Shutdown()
		return Summary{}, err
	}

	if err := p.Start(ctx); err != nil {
		// Ranging once and stopping lets the source release what Open acquired.
		for range items {
			break
		}
		p.Shutdown()
		return Summary{}, err
	}

	_, srcErr := p.submitAll(ctx, items)

	summary, drainErr := p.AwaitDrain(ctx)
	shutdownErr := p.Shutdown()
	if drainErr != nil {
		summary = p.Stats()
	}
	return summary, errors.Join(srcErr, drainErr, shutdownErr)
}
