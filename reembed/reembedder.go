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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/ingestion"
	"github.com/poiesic/sentvec/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Resume continues after the last saved checkpoint instead of starting
	// from the first record. It has no effect without WithCheckpoints.
	Resume bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// CheckpointName is the checkpoint under which reembedding progress is saved.
const CheckpointName = "reembed"

// Result summarizes a reembedding run.
type Result struct {
	Total   int
	// Visited counts the records this run read, excluding those skipped by
	// a resumed checkpoint.
	Visited int
	Updated int
	Failed  int
	// ResumedAfter is the checkpointed ID the run continued from, or zero.
	ResumedAfter core.ID
	Elapsed      time.Duration
}

// Reembedder recomputes the embedding of every record in a repository.
type Reembedder struct {
	repo        storage.RecordRepository
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
	checkpoints storage.CheckpointRepository
	processor   *BatchProcessor
	iterator    *RecordIterator
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCheckpoints saves the last finished record ID after every batch so an
// interrupted run can be resumed. The checkpoint is removed once a run
// completes.
func WithCheckpoints(checkpoints storage.CheckpointRepository) Option {
	return func(r *Reembedder) {
		r.checkpoints = checkpoints
	}
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.RecordRepository, embedder ai.Embedder, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if progress == nil {
		progress = io.Discard
	}

	r := &Reembedder{
		repo:     repo,
		config:   config,
		progress: progress,
		logger:   slog.Default(),
		iterator: NewRecordIterator(repo, config.BatchSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.processor = NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay, r.logger)
	return r, nil
}

// startAfter returns the ID to resume after, or zero for a full run.
func (r *Reembedder) startAfter(ctx context.Context) (core.ID, error) {
	if r.checkpoints == nil || !r.config.Resume {
		return 0, nil
	}
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointName)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		r.logger.Info("no checkpoint found, starting from the beginning")
		return 0, nil
	}
	r.logger.Info("resuming from checkpoint", "after", checkpoint.LastID, "saved", checkpoint.UpdatedAt)
	return checkpoint.LastID, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, last core.ID) error {
	if r.checkpoints == nil {
		return nil
	}
	return r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{Name: CheckpointName, LastID: last})
}

// Run re-embeds all records. Progress is reported to the configured writer.
// Records whose embedding fails keep their previous vector.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	totalRecords, err := r.repo.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	if totalRecords == 0 {
		fmt.Fprintf(r.progress, "No records found in database (0 records)\n")
		return &Result{}, nil
	}

	after, err := r.startAfter(ctx)
	if err != nil {
		return nil, err
	}
	if after > 0 {
		fmt.Fprintf(r.progress, "Resuming reembedding after record %d\n", after)
	}
	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
		totalRecords, r.iterator.batchSize)

	tracker := ingestion.NewProgressTracker(r.progress, totalRecords, r.config.ReportInterval)
	tracker.Start()

	result := &Result{Total: totalRecords, ResumedAfter: after}
	visited := 0
	err = r.iterator.ForEachAfter(ctx, after, func(records []*core.Record) error {
		updated, failed, err := r.processor.Process(ctx, records)
		result.Updated += updated
		result.Failed += failed
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		if err := r.saveCheckpoint(ctx, records[len(records)-1].Id); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		visited += len(records)
		tracker.Update(visited)
		return nil
	})
	tracker.Finish()
	result.Visited = tracker.Current()
	result.Elapsed = tracker.Elapsed()
	if err != nil {
		return result, err
	}

	if r.checkpoints != nil {
		if err := r.checkpoints.DeleteCheckpoint(ctx, CheckpointName); err != nil {
			return result, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
	}

	fmt.Fprintf(r.progress, "Reembedding complete. Updated %d of %d records in %v (%d failed)\n",
		result.Updated, totalRecords, result.Elapsed.Round(time.Millisecond), result.Failed)
	return result, nil
}
