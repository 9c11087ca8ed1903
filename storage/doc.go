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

// Package storage provides the storage abstraction layer for sentvec.
//
// The ingestion pipeline depends only on Store, a single Persist operation.
// RecordRepository extends it with the read, search and maintenance
// operations used by the searcher and the dedup command.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces to keep consumers decoupled from
// BadgerDB specifics:
//
//	repo, err := badger.NewRecordRepository(backend)  // returns storage.RecordRepository
//
// # Record Documents
//
// Records, checkpoints and IDs are encoded with the mus-go codecs generated
// into package core (see cmd/musgen). Timestamps keep microsecond precision.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	defer repo.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe. The store stage calls
// Persist from many workers at once.
package storage
