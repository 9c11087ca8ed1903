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
	"log/slog"
	"time"

	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/storage"
)

// BatchProcessor embeds a batch of records and writes the new vectors back.
type BatchProcessor struct {
	repo           storage.RecordRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.RecordRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Process embeds every record in the batch and updates the ones that
// succeeded. A record whose embedding fails after all retries keeps its old
// vector and is counted in failed. Only a storage error or cancellation aborts the batch.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.Record) (updated, failed int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	now := time.Now().UTC()
	batch := make([]*core.Record, 0, len(records))
	for _, record := range records {
		var vector []float64
		err := ai.RetryWithBackoff(ctx, func() error {
			var err error
			vector, err = bp.embedder.EmbedText(ctx, record.Text)
			if err == nil && len(vector) == 0 {
				err = core.ErrEmptyVector
			}
			return err
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			if ctx.Err() != nil {
				return 0, 0, ctx.Err()
			}
			bp.logger.Error("re-embedding failed, keeping old vector",
				"id", record.Id, "text", core.Truncate(record.Text, 60), "err", err)
			failed++
			continue
		}

		batch = append(batch, &core.Record{
			Id:        record.Id,
			Text:      record.Text,
			Vector:    core.Normalize(vector),
			CreatedAt: now,
		})
	}

	if len(batch) == 0 {
		return 0, failed, nil
	}
	if err := bp.repo.UpdateRecords(ctx, batch...); err != nil {
		return 0, failed, fmt.Errorf("failed to update records: %w", err)
	}
	return len(batch), failed, nil
}
