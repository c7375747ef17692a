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

// Package search answers queries from both the vector index and the
// knowledge graph.
//
// The Searcher classifies the query, runs the VectorRetriever and the
// GraphRetriever concurrently under independent timeouts, and fuses their
// ranked lists with weighted Reciprocal Rank Fusion:
//   - Vector retrieval embeds the query (cached) and ranks chunks by cosine
//     similarity
//   - Graph retrieval spots known entities in the query and ranks the paths
//     around them by edge confidence and length
//
// When one source fails or times out the answer is built from the other and
// marked partial. Only when both fail does the query fail.
package search
