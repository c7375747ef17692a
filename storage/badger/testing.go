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

package badger

import "testing"

// MemoryStores bundles in-memory stores sharing one backend.
type MemoryStores struct {
	Backend     *Backend
	Graph       *GraphStore
	Vectors     *VectorStore
	Checkpoints *CheckpointStore
}

// OpenStores opens the graph, vector and checkpoint stores on a backend.
// On error the backend is left open.
func OpenStores(backend *Backend) (*MemoryStores, error) {
	graph, err := NewGraphStore(backend)
	if err != nil {
		return nil, err
	}
	return &MemoryStores{
		Backend:     backend,
		Graph:       graph,
		Vectors:     NewVectorStore(backend),
		Checkpoints: NewCheckpointStore(backend),
	}, nil
}

// Close releases the stores and then the backend.
func (m *MemoryStores) Close() error {
	m.Vectors.Close()
	if err := m.Graph.Close(); err != nil {
		m.Backend.Close()
		return err
	}
	return m.Backend.Close()
}

// NewMemoryStores creates in-memory stores for testing.
// They are closed when the test finishes.
func NewMemoryStores(t testing.TB) *MemoryStores {
	t.Helper()
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	stores, err := OpenStores(backend)
	if err != nil {
		backend.Close()
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })
	return stores
}
