// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentvec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/ai/openai"
	"github.com/poiesic/sentvec/ingestion"
	"github.com/poiesic/sentvec/reembed"
	"github.com/poiesic/sentvec/search"
	"github.com/poiesic/sentvec/storage"
	"github.com/poiesic/sentvec/storage/badger"
)

// Database bundles the record store and the embedder used to fill it.
type Database struct {
	backend     *badger.Backend
	repo        storage.RecordRepository
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig   *ai.Config
	embedder   ai.Embedder
	logger     *slog.Logger
	inMemory   bool
	retries    int
	retryDelay time.Duration
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithEmbedder uses embedder instead of building one from the AI config.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// WithLogger sets the logger handed to the store and to components created
// by the factory methods.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithInMemory keeps all data in memory; the path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithRetries wraps the embedder in an ai.RetryingEmbedder making up to
// attempts calls per text. attempts <= 1 leaves the embedder single-shot.
func WithRetries(attempts int, baseDelay time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.retries = attempts
		o.retryDelay = baseDelay
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	embedder := options.embedder
	if embedder == nil {
		var err error
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			return nil, err
		}
	}
	if options.retries > 1 {
		retrying, err := ai.NewRetryingEmbedder(embedder, options.retries, options.retryDelay)
		if err != nil {
			return nil, err
		}
		embedder = retrying
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory, options.logger)
	if err != nil {
		return nil, err
	}

	repo, err := badger.NewRecordRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:     backend,
		repo:        repo,
		checkpoints: badger.NewCheckpointRepository(backend),
		embedder:    embedder,
		logger:      options.logger,
	}, nil
}

func (db *Database) Close() error {
	var errs []error
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing record repository", "err", err)
		errs = append(errs, err)
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Repository() storage.RecordRepository {
	return db.repo
}

// Checkpoints returns the store used to resume long-running jobs.
func (db *Database) Checkpoints() storage.CheckpointRepository {
	return db.checkpoints
}

func (db *Database) Embedder() ai.Embedder {
	return db.embedder
}

// NewPipeline creates an ingestion pipeline that persists into this database.
// The database logger is applied first, so opts may override it.
func (db *Database) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(db.logger)}, opts...)
	return ingestion.NewPipeline(db.repo, db.embedder, opts...)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{search.WithLogger(db.logger)}, opts...)
	return search.NewSearcher(db.repo, db.embedder, opts...)
}

// NewReembedder creates a reembedder over this database that saves its
// progress as a checkpoint.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer, opts ...reembed.Option) (*reembed.Reembedder, error) {
	opts = append([]reembed.Option{reembed.WithLogger(db.logger), reembed.WithCheckpoints(db.checkpoints)}, opts...)
	return reembed.NewReembedder(db.repo, db.embedder, config, progress, opts...)
}

// Deduplicate removes records whose text is already stored under a lower ID,
// then reclaims the space they used on disk.
func (db *Database) Deduplicate(ctx context.Context, opts ...storage.DedupOption) (*storage.DedupReport, error) {
	opts = append([]storage.DedupOption{storage.WithDedupLogger(db.logger)}, opts...)
	report, err := storage.Deduplicate(ctx, db.repo, opts...)
	if err != nil || report.DryRun || report.Deleted == 0 {
		return report, err
	}
	if _, err := db.backend.CollectGarbage(badger.DefaultGCDiscardRatio); err != nil {
		db.logger.Warn("could not reclaim space after deduplication", "err", err)
	}
	return report, nil
}
