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

// Package ai provides the embedding abstraction used by sentvec.
//
// The ingestion pipeline and the searcher depend only on the Embedder
// interface defined here, never on a concrete provider.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test double for unit testing without external dependencies
//
// # Retries
//
// An Embedder call is a single attempt. RetryingEmbedder decorates any
// Embedder with exponential backoff for callers that prefer completeness
// over pipeline latency:
//
//	base, _ := openai.NewEmbedder(ai.DefaultConfig())
//	embedder, _ := ai.NewRetryingEmbedder(base, 3, time.Second)
package ai
