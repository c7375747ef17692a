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
	"slices"
	"strings"
)

// EntityType is one kind from the closed entity taxonomy.
type EntityType string

const (
	EntityTypeCrop      EntityType = "Crop"
	EntityTypeDisease   EntityType = "Disease"
	EntityTypePest      EntityType = "Pest"
	EntityTypeRegion    EntityType = "Region"
	EntityTypeInput     EntityType = "Input"
	EntityTypeTechnique EntityType = "Technique"
	EntityTypeSeason    EntityType = "Season"
)

// RelationLabel is one label from the closed relation vocabulary.
type RelationLabel string

const (
	RelationAffects   RelationLabel = "AFFECTS"
	RelationTreatedBy RelationLabel = "TREATED_BY"
	RelationTreats    RelationLabel = "TREATS"
	RelationPrevents  RelationLabel = "PREVENTS"
	RelationCauses    RelationLabel = "CAUSES"
	RelationPartOf    RelationLabel = "PART_OF"
	RelationLocatedIn RelationLabel = "LOCATED_IN"
	RelationGrownIn   RelationLabel = "GROWN_IN"
	RelationAppliedTo RelationLabel = "APPLIED_TO"
	RelationOccursIn  RelationLabel = "OCCURS_IN"
	RelationRelatedTo RelationLabel = "RELATED_TO"
)

// categoryAliases maps the plural category names used by extraction prompts
// onto taxonomy types.
var categoryAliases = map[string]EntityType{
	"crops":      EntityTypeCrop,
	"diseases":   EntityTypeDisease,
	"pests":      EntityTypePest,
	"regions":    EntityTypeRegion,
	"locations":  EntityTypeRegion,
	"location":   EntityTypeRegion,
	"inputs":     EntityTypeInput,
	"chemicals":  EntityTypeInput,
	"chemical":   EntityTypeInput,
	"techniques": EntityTypeTechnique,
	"practices":  EntityTypeTechnique,
	"seasons":    EntityTypeSeason,
}

// Taxonomy is the closed set of entity types and relation labels that
// extraction output is validated against.
type Taxonomy struct {
	EntityTypes []EntityType
	Relations   []RelationLabel
}

// DefaultTaxonomy returns the agricultural taxonomy.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		EntityTypes: []EntityType{
			EntityTypeCrop,
			EntityTypeDisease,
			EntityTypePest,
			EntityTypeRegion,
			EntityTypeInput,
			EntityTypeTechnique,
			EntityTypeSeason,
		},
		Relations: []RelationLabel{
			RelationAffects,
			RelationTreatedBy,
			RelationTreats,
			RelationPrevents,
			RelationCauses,
			RelationPartOf,
			RelationLocatedIn,
			RelationGrownIn,
			RelationAppliedTo,
			RelationOccursIn,
			RelationRelatedTo,
		},
	}
}

// ParseEntityType maps raw extractor output onto a taxonomy type.
// Matching is case-insensitive and accepts plural category names.
func (t Taxonomy) ParseEntityType(raw string) (EntityType, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, et := range t.EntityTypes {
		if strings.EqualFold(string(et), s) {
			return et, true
		}
	}
	if et, ok := categoryAliases[strings.ToLower(s)]; ok && t.HasEntityType(et) {
		return et, true
	}
	return "", false
}

// ParseRelation maps raw extractor output onto a vocabulary label.
// "treated by", "treated-by" and "TREATED_BY" are equivalent.
func (t Taxonomy) ParseRelation(raw string) (RelationLabel, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if s == "" {
		return "", false
	}
	for _, rl := range t.Relations {
		if string(rl) == s {
			return rl, true
		}
	}
	return "", false
}

// HasEntityType reports whether et belongs to the taxonomy.
func (t Taxonomy) HasEntityType(et EntityType) bool {
	return slices.Contains(t.EntityTypes, et)
}

// EntityTypeNames returns the type names for prompts and flag help.
func (t Taxonomy) EntityTypeNames() []string {
	out := make([]string, len(t.EntityTypes))
	for i, et := range t.EntityTypes {
		out[i] = string(et)
	}
	return out
}

// RelationNames returns the relation labels for prompts.
func (t Taxonomy) RelationNames() []string {
	out := make([]string, len(t.Relations))
	for i, rl := range t.Relations {
		out[i] = string(rl)
	}
	return out
}
