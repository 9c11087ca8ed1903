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

	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator pages through all records in ID order.
type RecordIterator struct {
	repo      storage.RecordRepository
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch in each batch (<= 0 means DefaultBatchSize)
func NewRecordIterator(repo storage.RecordRepository, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of records.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked between batches. Records added while
// iterating are visited if their ID is above the current cursor.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.Record) error) error {
	return it.ForEachAfter(ctx, 0, fn)
}

// ForEachAfter is ForEach starting with the first record whose ID is above after.
func (it *RecordIterator) ForEachAfter(ctx context.Context, after core.ID, fn func([]*core.Record) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.repo.ListRecords(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		if len(batch) < it.batchSize {
			return nil
		}
		after = batch[len(batch)-1].Id
	}
}
