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

// Package search provides semantic lookup over stored records.
//
// A query is embedded with the same Embedder used at ingestion time (query
// embeddings are kept in a TTL cache), candidates are retrieved from an
// in-memory HNSW index built from the repository, and each candidate is
// re-scored with exact cosine similarity. Records containing every
// significant query word receive a small verbatim boost.
//
// The index is refreshed incrementally before every search, so records
// stored after the Searcher was created are found without a rebuild.
// WithExactSearch bypasses the index and scans the repository instead.
package search
