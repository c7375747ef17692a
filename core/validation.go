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

import (
	"fmt"
	"strings"
)

func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if strings.TrimSpace(chunk.Id) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkID)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	return nil
}

func ValidateMention(mention *EntityMention, taxonomy Taxonomy) error {
	if mention == nil {
		return fmt.Errorf("%w: mention is nil", ErrInvalidMention)
	}

	if strings.TrimSpace(mention.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMention, ErrEmptyContent)
	}

	if !taxonomy.HasEntityType(mention.Type) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidMention, ErrUnknownEntityType, mention.Type)
	}

	if !IsValidConfidence(mention.Confidence) {
		return fmt.Errorf("%w: %w", ErrInvalidMention, ErrInvalidConfidence)
	}

	return nil
}

func IsValidConfidence(c float64) bool {
	return c >= 0 && c <= 1
}
