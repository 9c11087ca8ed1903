package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/metrics"
	"github.com/poiesic/sentvec/storage"
)

const (
	// DefaultLimit is the number of results returned when limit <= 0.
	DefaultLimit = 5

	// DefaultCacheTTL is how long a query embedding stays cached.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultCandidateFactor multiplies limit to size the candidate set
	// pulled from the index before exact re-scoring.
	DefaultCandidateFactor = 4

	// DefaultVerbatimBoost is added to the score of records that contain
	// every significant query word.
	DefaultVerbatimBoost = 0.05

	refreshBatchSize = 1000
)

// Searcher answers similarity queries over a RecordRepository.
type Searcher struct {
	repo            storage.RecordRepository
	embedder        ai.Embedder
	logger          *slog.Logger
	metrics         *metrics.Metrics
	exact           bool
	cacheTTL        time.Duration
	candidateFactor int
	verbatimBoost   float64

	cache *ttlcache.Cache[string, []float64]

	refreshMu sync.Mutex
	index     atomic.Pointer[vectorIndex]
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics records cache hits and index size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// WithExactSearch scores every stored record instead of querying the index.
func WithExactSearch(exact bool) Option {
	return func(s *Searcher) error {
		s.exact = exact
		return nil
	}
}

// WithCacheTTL sets how long query embeddings are cached.
// A zero TTL disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) error {
		if ttl < 0 {
			return fmt.Errorf("cache ttl must not be negative, got %s", ttl)
		}
		s.cacheTTL = ttl
		return nil
	}
}

// WithCandidateFactor sets how many index candidates are fetched per
// requested result.
func WithCandidateFactor(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("candidate factor must be at least 1, got %d", n)
		}
		s.candidateFactor = n
		return nil
	}
}

// WithVerbatimBoost sets the score bonus for records containing every
// significant query word. Zero disables it.
func WithVerbatimBoost(boost float64) Option {
	return func(s *Searcher) error {
		if boost < 0 {
			return fmt.Errorf("verbatim boost must not be negative, got %v", boost)
		}
		s.verbatimBoost = boost
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(repo storage.RecordRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		repo:            repo,
		embedder:        embedder,
		logger:          slog.Default(),
		cacheTTL:        DefaultCacheTTL,
		candidateFactor: DefaultCandidateFactor,
		verbatimBoost:   DefaultVerbatimBoost,
	}
	s.index.Store(newVectorIndex())

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.cacheTTL > 0 {
		s.cache = ttlcache.New[string, []float64](
			ttlcache.WithTTL[string, []float64](s.cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, []float64](),
		)
		go s.cache.Start()
	}
	return s, nil
}

// Close stops the query cache's expiry loop.
func (s *Searcher) Close() error {
	if s.cache != nil {
		s.cache.Stop()
	}
	return nil
}

// Indexed returns the number of vectors in the index.
func (s *Searcher) Indexed() int {
	return s.index.Load().len()
}

// Refresh adds records stored since the last refresh to the index.
// If the repository holds records the index has never examined, for example
// ones committed out of ID order, the whole repository is rescanned.
func (s *Searcher) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	return s.refreshLocked(ctx, s.index.Load())
}

func (s *Searcher) refreshLocked(ctx context.Context, index *vectorIndex) error {
	if err := s.scanFrom(ctx, index, index.watermark()); err != nil {
		return err
	}

	count, err := s.repo.CountRecords(ctx)
	if err != nil {
		return err
	}
	if seen := index.seen(); count > seen {
		s.logger.Debug("index missing records, rescanning", "stored", count, "seen", seen)
		if err := s.scanFrom(ctx, index, 0); err != nil {
			return err
		}
	}

	if s.metrics != nil {
		s.metrics.IndexedVectors.Set(float64(index.len()))
	}
	return nil
}

// Rebuild discards the index and builds it again from the repository.
// Use it after records have been deleted.
func (s *Searcher) Rebuild(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	index := newVectorIndex()
	if err := s.refreshLocked(ctx, index); err != nil {
		return err
	}
	s.index.Store(index)
	return nil
}

func (s *Searcher) scanFrom(ctx context.Context, index *vectorIndex, after core.ID) error {
	for {
		records, err := s.repo.ListRecords(ctx, after, refreshBatchSize)
		if err != nil {
			return fmt.Errorf("listing records after %d: %w", after, err)
		}
		if len(records) == 0 {
			return nil
		}
		added, skipped := index.add(records)
		if skipped > 0 {
			s.logger.Warn("records not indexable", "count", skipped)
		}
		s.logger.Debug("indexed records", "added", added, "batch", len(records))
		after = records[len(records)-1].Id
		if len(records) < refreshBatchSize {
			return nil
		}
	}
}

// Search returns up to limit records whose similarity to query is at least
// minSimilarity, best first. A limit <= 0 means DefaultLimit.
func (s *Searcher) Search(ctx context.Context, query string, minSimilarity float64, limit int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, minSimilarity, limit, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, minSimilarity float64, limit int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	monitor.Start(query)

	vector, cached, err := s.embedQuery(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", core.Truncate(query, 60), "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(cached)

	candidates, fromIndex, err := s.candidates(ctx, vector, limit*s.candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		return nil, err
	}
	ids := make([]core.ID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Id
	}
	monitor.AfterCandidateSearch(ids, fromIndex)

	terms := significantWords(query)
	results := make([]*core.SearchResult, 0, len(candidates))
	for _, record := range candidates {
		score := core.CosineSimilarity(vector, record.Vector)
		if score < minSimilarity {
			continue
		}
		if s.verbatimBoost > 0 && containsAllWords(record.Text, terms) {
			monitor.VerbatimHit(record)
			score += s.verbatimBoost
		}
		results = append(results, &core.SearchResult{Record: record, Score: score})
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.Id, b.Record.Id)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	monitor.Finish(results)
	return results, nil
}

func (s *Searcher) embedQuery(ctx context.Context, query string) (vector []float64, cached bool, err error) {
	if s.cache != nil {
		if item := s.cache.Get(query); item != nil {
			s.countRequest(metrics.CacheHit)
			return item.Value(), true, nil
		}
	}
	s.countRequest(metrics.CacheMiss)

	vector, err = s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, false, err
	}
	if len(vector) == 0 {
		return nil, false, core.ErrEmptyVector
	}
	if s.cache != nil {
		s.cache.Set(query, vector, ttlcache.DefaultTTL)
	}
	return vector, false, nil
}

func (s *Searcher) countRequest(cache string) {
	if s.metrics != nil {
		s.metrics.SearchRequests.WithLabelValues(cache).Inc()
	}
}

// candidates returns the records to score. Exact mode, an empty index, and a
// query whose dimension differs from the index all fall back to a full scan.
func (s *Searcher) candidates(ctx context.Context, vector []float64, k int) ([]*core.Record, bool, error) {
	if !s.exact {
		if err := s.Refresh(ctx); err != nil {
			return nil, false, err
		}
		if ids, ok := s.index.Load().search(vector, k); ok {
			records, err := s.repo.GetRecords(ctx, ids...)
			if err != nil {
				return nil, false, err
			}
			return records, true, nil
		}
		s.logger.Debug("index cannot serve query, scanning repository", "dims", len(vector))
	}

	// Filtering by minSimilarity happens in the caller for both paths.
	matches, err := s.repo.FindSimilar(ctx, vector, -1, k)
	if err != nil {
		return nil, false, err
	}
	records := make([]*core.Record, len(matches))
	for i, m := range matches {
		records[i] = m.Record
	}
	return records, false, nil
}
