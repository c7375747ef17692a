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

// Package storage provides the storage abstraction layer for graphrag.
//
// This package defines store interfaces that decouple storage implementation
// from the ingestion and retrieval logic:
//
//   - GraphStore: the canonical entity registry and the relation graph
//   - VectorStore: chunks with their embeddings and metadata
//   - CheckpointStore: progress markers for resumable maintenance runs
//
// # Implementations
//
// The badger subpackage implements all three on one BadgerDB instance. The
// pgvector subpackage implements VectorStore on PostgreSQL with pgvector.
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	graph, err := badger.NewGraphStore(backend)
//	vectors, err := badger.NewVectorStore(backend)
//
// Use in tests with in-memory storage:
//
//	stores := badger.NewMemoryStores(t)
//
// # Upsert Semantics
//
// GraphStore upserts are merges. A node is created if absent; otherwise its
// alias set and provenance list only grow, and its description and
// confidence are replaced only by higher-confidence input. Each upsert is a
// single atomic operation, so concurrent ingestion batches racing on the same
// entity converge on one record.
//
// # Thread Safety
//
// All store implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
