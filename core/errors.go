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

package core

import "errors"

var (
	// ErrServiceUnavailable indicates a remote dependency (extraction service,
	// embedder, vector store, graph store) could not be reached.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrMalformedExtraction indicates the extraction backend returned output
	// that could not be interpreted.
	ErrMalformedExtraction = errors.New("malformed extraction")

	// ErrResolutionAmbiguous marks a fuzzy match exactly at the threshold.
	// It is logged and resolved by tie-break, never returned to callers.
	ErrResolutionAmbiguous = errors.New("resolution ambiguous")

	// ErrRetrievalFailed indicates both retrieval sources failed for a query.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrInvalidID indicates an identifier could not be parsed.
	ErrInvalidID = errors.New("invalid id")

	// ErrUnknownEntityType indicates a type outside the taxonomy.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrUnknownRelation indicates a label outside the relation vocabulary.
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidMention indicates an EntityMention failed validation.
	ErrInvalidMention = errors.New("invalid mention")

	// ErrEmptyContent indicates the Text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyChunkID indicates the chunk Id field is empty.
	ErrEmptyChunkID = errors.New("chunk id cannot be empty")

	// ErrInvalidConfidence indicates a confidence outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)
