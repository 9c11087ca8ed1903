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

// Package reembed recomputes the embedding of every stored record.
//
// Run it after switching embedding models: vectors from different models
// are not comparable, and the search index refuses mixed dimensions.
// Records are read in ID order in batches, each text is embedded (with
// retries), vectors are normalized to unit length and written back in one
// transaction per batch. Text and IDs are never changed.
package reembed
