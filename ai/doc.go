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

// Package ai defines the model services the engine depends on: an
// Embedder for chunk and query vectors and an EntityExtractor that turns a
// passage into typed entities and relations. An AIProvider hands out both.
//
// ai/openai implements them against OpenAI-compatible servers; ai/mock
// provides deterministic doubles whose constructors return concrete types
// so tests can set a lexicon and read call counts.
//
//	tax := core.DefaultTaxonomy()
//	out, err := provider.Extractor().Extract(ctx, ai.ExtractionRequest{
//	    Text:        "Stem rust affects wheat in Punjab.",
//	    EntityTypes: tax.EntityTypeNames(),
//	    Relations:   tax.RelationNames(),
//	})
package ai
