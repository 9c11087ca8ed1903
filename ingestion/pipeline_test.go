package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/sentvec/ai/mock"
	"github.com/poiesic/sentvec/metrics"
	"github.com/poiesic/sentvec/source"
	"github.com/poiesic/sentvec/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store unavailable")

// testStore records every Persist call and fails for configured texts.
type testStore struct {
	mu      sync.Mutex
	stored  []string
	calls   map[string]int
	failOn  map[string]bool
	delay   time.Duration
	panicOn string
}

func newTestStore(failOn ...string) *testStore {
	s := &testStore{calls: make(map[string]int), failOn: make(map[string]bool)}
	for _, text := range failOn {
		s.failOn[text] = true
	}
	return s
}

func (s *testStore) Persist(ctx context.Context, text string, vector []float64, createdAt time.Time) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if text == s.panicOn {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[text]++
	if s.failOn[text] {
		return errStore
	}
	s.stored = append(s.stored, text)
	return nil
}

func (s *testStore) Stored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stored...)
}

func (s *testStore) Calls() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.calls))
	for k, v := range s.calls {
		out[k] = v
	}
	return out
}

// stubEmbedder returns [1.0] for every input, failing for configured texts.
func stubEmbedder(failOn ...string) *mock.MockEmbedder {
	fail := make(map[string]bool)
	for _, text := range failOn {
		fail[text] = true
	}
	return mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		if fail[text] {
			return nil, errors.New("embedding service unavailable")
		}
		return []float64{1.0}, nil
	})
}

// failureRecorder collects errors passed to the failure handler.
type failureRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *failureRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *failureRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// countingProgress is a Progress that remembers every value it reached.
type countingProgress struct {
	mu     sync.Mutex
	value  int
	values []int
}

func (c *countingProgress) Increment(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	c.values = append(c.values, c.value)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item %d", i)
	}
	return out
}

func runBatch(t *testing.T, p *Pipeline, batch ...string) Summary {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Submit(ctx, batch...))
	summary, err := p.AwaitDrain(ctx)
	require.NoError(t, err)

	embedPending, storePending := p.Pending()
	assert.Zero(t, embedPending, "embed queue drained")
	assert.Zero(t, storePending, "store queue drained")

	require.NoError(t, p.Shutdown())
	return summary
}

func TestNewPipeline(t *testing.T) {
	store := newTestStore()
	embedder := stubEmbedder()

	_, err := NewPipeline(nil, embedder)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(store, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(store, embedder, WithEmbedWorkers(0))
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	_, err = NewPipeline(store, embedder, WithStoreWorkers(-1))
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	_, err = NewPipeline(store, embedder, WithRateLimit(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidRateLimit)

	_, err = NewPipeline(store, embedder, WithShutdownTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidShutdownTimeout)

	p, err := NewPipeline(store, embedder)
	require.NoError(t, err)
	assert.Equal(t, DefaultEmbedWorkers, p.embedWorkers)
	assert.Equal(t, DefaultStoreWorkers, p.storeWorkers)
	assert.Zero(t, p.rateLimit)
	assert.Equal(t, StateCreated, p.State())
	require.NoError(t, p.Shutdown())
}

func TestPipeline_AllSucceed(t *testing.T) {
	store := newTestStore()
	progress := &countingProgress{}
	p, err := NewPipeline(store, stubEmbedder(), WithLogger(quietLogger()), WithProgress(progress))
	require.NoError(t, err)

	summary := runBatch(t, p, "a", "b", "c")

	assert.ElementsMatch(t, []string{"a", "b", "c"}, store.Stored())
	assert.EqualValues(t, 3, summary.Submitted)
	assert.EqualValues(t, 3, summary.Embedded)
	assert.EqualValues(t, 3, summary.Stored)
	assert.Zero(t, summary.Failed())
	assert.EqualValues(t, 3, p.Progress())
	assert.Equal(t, 3, progress.value)
}

func TestPipeline_StoreFailureIsIsolated(t *testing.T) {
	store := newTestStore("b")
	failures := &failureRecorder{}
	p, err := NewPipeline(store, stubEmbedder(),
		WithLogger(quietLogger()),
		WithFailureHandler(failures.record))
	require.NoError(t, err)

	summary := runBatch(t, p, "a", "b", "c")

	assert.ElementsMatch(t, []string{"a", "c"}, store.Stored())
	assert.EqualValues(t, 2, summary.Stored)
	assert.EqualValues(t, 3, summary.Embedded, "embed succeeded for all three")
	assert.EqualValues(t, 1, summary.StoreFailed)
	assert.EqualValues(t, 3, p.Progress())

	errs := failures.all()
	require.Len(t, errs, 1)
	var storeErr *StoreError
	require.ErrorAs(t, errs[0], &storeErr)
	assert.Equal(t, "b", storeErr.Text)
	assert.ErrorIs(t, errs[0], errStore)
}

func TestPipeline_EmbedFailureIsIsolated(t *testing.T) {
	store := newTestStore()
	failures := &failureRecorder{}
	embedder := stubEmbedder("a")
	p, err := NewPipeline(store, embedder,
		WithLogger(quietLogger()),
		WithFailureHandler(failures.record))
	require.NoError(t, err)

	summary := runBatch(t, p, "a", "b", "c")

	assert.ElementsMatch(t, []string{"b", "c"}, store.Stored())
	assert.EqualValues(t, 2, summary.Stored)
	assert.EqualValues(t, 2, summary.Embedded)
	assert.EqualValues(t, 1, summary.EmbedFailed)
	assert.EqualValues(t, 2, p.Progress())
	assert.Equal(t, 1, embedder.CallsFor("a"), "no retry")

	errs := failures.all()
	require.Len(t, errs, 1)
	var embedErr *EmbedError
	require.ErrorAs(t, errs[0], &embedErr)
	assert.Equal(t, "a", embedErr.Text)
}

func TestPipeline_FailureLogsIdentifyText(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	long := strings.Repeat("x", 200)
	p, err := NewPipeline(newTestStore(), stubEmbedder(long), WithLogger(logger))
	require.NoError(t, err)
	runBatch(t, p, long)

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	assert.Contains(t, out, "embed failed")
	assert.Contains(t, out, strings.Repeat("x", logTextLen)+"...")
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "embedding service unavailable")
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

func TestPipeline_LaterItemsSurviveEarlyFailure(t *testing.T) {
	batch := items(20)
	store := newTestStore()
	p, err := NewPipeline(store, stubEmbedder(batch[0], batch[5]), WithLogger(quietLogger()))
	require.NoError(t, err)

	summary := runBatch(t, p, batch...)

	assert.EqualValues(t, 18, summary.Stored)
	assert.ElementsMatch(t, append(append([]string{}, batch[1:5]...), batch[6:]...), store.Stored())
}

func TestPipeline_PoolSizeInvariance(t *testing.T) {
	batch := items(50)
	for _, embedWorkers := range []int{1, 4} {
		for _, storeWorkers := range []int{1, 25} {
			t.Run(fmt.Sprintf("embed=%d/store=%d", embedWorkers, storeWorkers), func(t *testing.T) {
				store := newTestStore()
				embedder := stubEmbedder()
				p, err := NewPipeline(store, embedder,
					WithEmbedWorkers(embedWorkers),
					WithStoreWorkers(storeWorkers),
					WithLogger(quietLogger()))
				require.NoError(t, err)

				summary := runBatch(t, p, batch...)

				assert.EqualValues(t, 50, summary.Stored)
				assert.ElementsMatch(t, batch, store.Stored())

				// At-most-once: one Embedder call and one Persist call per item.
				assert.Equal(t, 50, embedder.CallCount())
				for _, item := range batch {
					assert.Equal(t, 1, embedder.CallsFor(item))
					assert.Equal(t, 1, store.Calls()[item])
				}
			})
		}
	}
}

func TestPipeline_SingleEmbedWorkerKeepsOrder(t *testing.T) {
	batch := items(30)
	var mu sync.Mutex
	var order []string
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		mu.Lock()
		order = append(order, text)
		mu.Unlock()
		return []float64{1}, nil
	})

	p, err := NewPipeline(newTestStore(), embedder, WithLogger(quietLogger()))
	require.NoError(t, err)
	runBatch(t, p, batch...)

	assert.Equal(t, batch, order)
}

func TestPipeline_ProgressIsMonotonic(t *testing.T) {
	batch := items(40)
	progress := &countingProgress{}
	p, err := NewPipeline(newTestStore(), stubEmbedder(batch[3], batch[17]),
		WithEmbedWorkers(4),
		WithProgress(progress),
		WithLogger(quietLogger()))
	require.NoError(t, err)

	runBatch(t, p, batch...)

	require.Len(t, progress.values, 38)
	for i := 1; i < len(progress.values); i++ {
		assert.Greater(t, progress.values[i], progress.values[i-1])
	}
	assert.Equal(t, 38, progress.value)
}

func TestPipeline_RateLimit(t *testing.T) {
	var mu sync.Mutex
	var calls []time.Time
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		if text == "fail" {
			return nil, errors.New("boom")
		}
		return []float64{1}, nil
	})

	const limit = 30 * time.Millisecond
	p, err := NewPipeline(newTestStore(), embedder, WithRateLimit(limit), WithLogger(quietLogger()))
	require.NoError(t, err)

	start := time.Now()
	runBatch(t, p, "a", "fail", "b")

	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), limit, "delay applies after failures too")
	}
	assert.GreaterOrEqual(t, time.Since(start), 3*limit)
}

func TestPipeline_PanicsBecomeItemFailures(t *testing.T) {
	store := newTestStore()
	store.panicOn = "b"
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		if text == "a" {
			panic("embedder exploded")
		}
		return []float64{1}, nil
	})
	failures := &failureRecorder{}
	p, err := NewPipeline(store, embedder, WithLogger(quietLogger()), WithFailureHandler(failures.record))
	require.NoError(t, err)

	summary := runBatch(t, p, "a", "b", "c")

	assert.Equal(t, []string{"c"}, store.Stored())
	assert.EqualValues(t, 1, summary.EmbedFailed)
	assert.EqualValues(t, 1, summary.StoreFailed)
	for _, err := range failures.all() {
		assert.ErrorIs(t, err, ErrWorkerPanic)
	}
}

func TestPipeline_EmptyVectorIsEmbedFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		return nil, nil
	})
	store := newTestStore()
	p, err := NewPipeline(store, embedder, WithLogger(quietLogger()))
	require.NoError(t, err)

	summary := runBatch(t, p, "a")
	assert.EqualValues(t, 1, summary.EmbedFailed)
	assert.Empty(t, store.Stored())
}

func TestPipeline_StateMachine(t *testing.T) {
	ctx := context.Background()
	p, err := NewPipeline(newTestStore(), stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Submit(ctx, "early"), ErrInvalidState)
	_, err = p.AwaitDrain(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, p.Start(ctx))
	assert.Equal(t, StateStarted, p.State())
	assert.ErrorIs(t, p.Start(ctx), ErrInvalidState)

	require.NoError(t, p.Submit(ctx, "a"))
	assert.Equal(t, StateDraining, p.State())
	require.NoError(t, p.Submit(ctx, "b"))

	_, err = p.AwaitDrain(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDrained, p.State())

	assert.ErrorIs(t, p.Submit(ctx, "late"), ErrInvalidState)

	// Draining again returns the same summary.
	again, err := p.AwaitDrain(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, again.Stored)

	require.NoError(t, p.Shutdown())
	assert.Equal(t, StateShutDown, p.State())
	assert.ErrorIs(t, p.Submit(ctx, "after"), ErrInvalidState)
	_, err = p.AwaitDrain(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPipeline_AwaitDrainWithNothingSubmitted(t *testing.T) {
	ctx := context.Background()
	p, err := NewPipeline(newTestStore(), stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))

	summary, err := p.AwaitDrain(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Submitted)
	assert.Equal(t, StateDrained, p.State())
	require.NoError(t, p.Shutdown())
}

func TestPipeline_AwaitDrainHonorsContext(t *testing.T) {
	release := make(chan struct{})
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		<-release
		return []float64{1}, nil
	})
	p, err := NewPipeline(newTestStore(), embedder, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Submit(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.AwaitDrain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDraining, p.State())

	close(release)
	_, err = p.AwaitDrain(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Shutdown())
}

func TestPipeline_ShutdownIdempotent(t *testing.T) {
	p, err := NewPipeline(newTestStore(), stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)
	runBatch(t, p, "a", "b")

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, p.Shutdown())
		assert.NoError(t, p.Shutdown())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("repeated Shutdown hung")
	}
}

func TestPipeline_ShutdownBeforeStart(t *testing.T) {
	p, err := NewPipeline(newTestStore(), stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Shutdown())
	assert.ErrorIs(t, p.Start(context.Background()), ErrInvalidState)
}

func TestPipeline_ShutdownWhileStartedDrainsQueuedItems(t *testing.T) {
	store := newTestStore()
	p, err := NewPipeline(store, stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Submit(context.Background(), items(10)...))

	require.NoError(t, p.Shutdown())
	assert.Len(t, store.Stored(), 10)
}

func TestPipeline_ShutdownTimeout(t *testing.T) {
	var cancelled atomic.Bool
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float64, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	})
	p, err := NewPipeline(newTestStore(), embedder,
		WithShutdownTimeout(50*time.Millisecond),
		WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Submit(context.Background(), "stuck"))

	err = p.Shutdown()
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond,
		"stuck calls are cancelled after the timeout")
	assert.NoError(t, p.Shutdown())
}

func TestPipeline_ConcurrentSubmitters(t *testing.T) {
	store := newTestStore()
	p, err := NewPipeline(store, stubEmbedder(),
		WithEmbedWorkers(4),
		WithQueueCapacity(8),
		WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	var wg sync.WaitGroup
	for s := 0; s < 5; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, p.Submit(ctx, fmt.Sprintf("s%d-%d", s, i)))
			}
		}(s)
	}
	wg.Wait()

	summary, err := p.AwaitDrain(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 100, summary.Submitted)
	assert.EqualValues(t, 100, summary.Stored)
	require.NoError(t, p.Shutdown())
}

func TestPipeline_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p, err := NewPipeline(newTestStore("c"), stubEmbedder("a"), WithMetrics(m), WithLogger(quietLogger()))
	require.NoError(t, err)

	runBatch(t, p, "a", "b", "c", "d")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.ItemsSubmitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsProcessed.WithLabelValues(metrics.StageEmbed, metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsProcessed.WithLabelValues(metrics.StageEmbed, metrics.OutcomeFailure)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsProcessed.WithLabelValues(metrics.StageStore, metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsProcessed.WithLabelValues(metrics.StageStore, metrics.OutcomeFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues(metrics.StageEmbed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues(metrics.StageStore)))
}

// erroringSource yields some items and then a read error.
type erroringSource struct {
	items []string
	err   error
}

func (s erroringSource) Open() (iter.Seq2[string, error], error) {
	return func(yield func(string, error) bool) {
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
		yield("", s.err)
	}, nil
}

func TestRun_SliceSource(t *testing.T) {
	store := newTestStore()
	p, err := NewPipeline(store, stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), source.SliceSource{"a", "", "b", "  c  "})
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.Submitted)
	assert.EqualValues(t, 3, summary.Stored)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, store.Stored())
	assert.Equal(t, StateShutDown, p.State())
}

func TestRun_SourceUnavailable(t *testing.T) {
	embedder := stubEmbedder()
	p, err := NewPipeline(newTestStore(), embedder, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), source.NewFileSource(t.TempDir()+"/missing.txt"))
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
	assert.Zero(t, embedder.CallCount())
	assert.Equal(t, StateShutDown, p.State())
}

func TestRun_PartialReadIsStillProcessed(t *testing.T) {
	readErr := errors.New("disk on fire")
	store := newTestStore()
	p, err := NewPipeline(store, stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), erroringSource{items: []string{"a", "b"}, err: readErr})
	assert.ErrorIs(t, err, readErr)
	assert.EqualValues(t, 2, summary.Stored)
	assert.ElementsMatch(t, []string{"a", "b"}, store.Stored())
}

// trackingSource records whether the sequence returned by Open was stopped.
type trackingSource struct {
	items    []string
	released bool
}

func (s *trackingSource) Open() (iter.Seq2[string, error], error) {
	return func(yield func(string, error) bool) {
		defer func() { s.released = true }()
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
	}, nil
}

func TestRun_StartFailureShutsDown(t *testing.T) {
	ctx := context.Background()
	embedder := stubEmbedder()
	p, err := NewPipeline(newTestStore(), embedder, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))

	src := &trackingSource{items: []string{"a", "b"}}
	summary, err := p.Run(ctx, src)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, summary.Submitted)
	assert.True(t, src.released)
	assert.Zero(t, embedder.CallCount())
	assert.Equal(t, StateShutDown, p.State())
}

func TestRun_NilSource(t *testing.T) {
	p, err := NewPipeline(newTestStore(), stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer p.Shutdown()

	_, err = p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSourceRequired)
}

func TestSubmitSource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p, err := NewPipeline(store, stubEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))

	n, err := p.SubmitSource(ctx, source.SliceSource{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.SubmitSource(ctx, source.NewFileSource(t.TempDir()+"/missing.txt"))
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
	assert.Zero(t, n)

	summary, err := p.AwaitDrain(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.Stored)
	require.NoError(t, p.Shutdown())
}

func TestRun_WithBadgerStore(t *testing.T) {
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	defer func() {
		repo.Close()
		backend.Close()
	}()

	batch := items(60)
	p, err := NewPipeline(repo, mock.NewMockEmbedder(), WithLogger(quietLogger()))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), source.SliceSource(batch))
	require.NoError(t, err)
	assert.EqualValues(t, 60, summary.Stored)

	count, err := repo.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, count)
}

func TestErrors_TruncateText(t *testing.T) {
	long := strings.Repeat("y", 100)
	cause := errors.New("cause")

	embedErr := &EmbedError{Text: long, Err: cause}
	assert.Contains(t, embedErr.Error(), strings.Repeat("y", logTextLen)+"...")
	assert.ErrorIs(t, embedErr, cause)

	storeErr := &StoreError{Text: "short", Err: cause}
	assert.Equal(t, `store "short": cause`, storeErr.Error())
	assert.ErrorIs(t, storeErr, cause)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "shut down", StateShutDown.String())
	assert.Equal(t, "state(42)", State(42).String())
}
