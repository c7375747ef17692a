package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestEntityID(t *testing.T) {
	if EntityID(EntityTypeCrop, "wheat") == EntityID(EntityTypeDisease, "wheat") {
		t.Errorf("EntityID() should differ across types")
	}
	if EntityID(EntityTypeCrop, "wheat") != EntityID(EntityTypeCrop, "wheat") {
		t.Errorf("EntityID() should be deterministic")
	}
}

func TestParseID(t *testing.T) {
	id := IDFromContent("x")
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID() = %d, want %d", parsed, id)
	}

	if _, err := ParseID("not-a-number"); err == nil {
		t.Errorf("ParseID() expected error for invalid input")
	}
}

func TestAppendProvenance(t *testing.T) {
	p1 := Provenance{DocumentId: "doc", ChunkId: "c1", Offset: 3}
	p2 := Provenance{DocumentId: "doc", ChunkId: "c2", Offset: 0}

	list, added := AppendProvenance(nil, p1, p2)
	if added != 2 || len(list) != 2 {
		t.Fatalf("AppendProvenance() added %d, len %d; want 2, 2", added, len(list))
	}

	// Same source location with a different confidence is the same evidence.
	dup := p1
	dup.Confidence = 0.9
	list, added = AppendProvenance(list, dup)
	if added != 0 || len(list) != 2 {
		t.Errorf("AppendProvenance() should ignore duplicate keys, added %d len %d", added, len(list))
	}
}

func TestMetadataFilter_Matches(t *testing.T) {
	tests := []struct {
		name     string
		filter   MetadataFilter
		metadata map[string]string
		want     bool
	}{
		{"nil filter matches anything", nil, map[string]string{"region": "north"}, true},
		{"matching key", MetadataFilter{"region": "north"}, map[string]string{"region": "north"}, true},
		{"different value", MetadataFilter{"region": "north"}, map[string]string{"region": "south"}, false},
		{"missing key", MetadataFilter{"region": "north"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.metadata); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanonicalEntity_HasAlias(t *testing.T) {
	e := &CanonicalEntity{Aliases: []Alias{{Text: "Wheat", Key: "wheat"}}}
	if !e.HasAlias("wheat") {
		t.Errorf("HasAlias() = false, want true")
	}
	if e.HasAlias("barley") {
		t.Errorf("HasAlias() = true, want false")
	}
	if got := e.AliasTexts(); len(got) != 1 || got[0] != "Wheat" {
		t.Errorf("AliasTexts() = %v", got)
	}
}

func TestEdge_KeyAndOther(t *testing.T) {
	e := &Edge{Subject: 1, Label: RelationAffects, Object: 2}
	if e.Key() != "1-AFFECTS-2" {
		t.Errorf("Key() = %q", e.Key())
	}
	if e.Other(1) != 2 || e.Other(2) != 1 {
		t.Errorf("Other() returned wrong endpoint")
	}
}

func TestTaxonomy_Parse(t *testing.T) {
	tax := DefaultTaxonomy()

	typeTests := []struct {
		raw    string
		want   EntityType
		wantOK bool
	}{
		{"Crop", EntityTypeCrop, true},
		{"crop", EntityTypeCrop, true},
		{"  DISEASE ", EntityTypeDisease, true},
		{"chemicals", EntityTypeInput, true},
		{"locations", EntityTypeRegion, true},
		{"Vehicle", "", false},
		{"", "", false},
	}
	for _, tt := range typeTests {
		t.Run("type "+tt.raw, func(t *testing.T) {
			got, ok := tax.ParseEntityType(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseEntityType(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	relTests := []struct {
		raw    string
		want   RelationLabel
		wantOK bool
	}{
		{"AFFECTS", RelationAffects, true},
		{"treated by", RelationTreatedBy, true},
		{"treated-by", RelationTreatedBy, true},
		{"EATS", "", false},
	}
	for _, tt := range relTests {
		t.Run("relation "+tt.raw, func(t *testing.T) {
			got, ok := tax.ParseRelation(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRelation(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFusedContext_Empty(t *testing.T) {
	var nilCtx *FusedContext
	if !nilCtx.Empty() || nilCtx.Len() != 0 {
		t.Errorf("nil context should be empty")
	}
	ctx := &FusedContext{Items: []FusedItem{{Rank: 1}}}
	if ctx.Empty() || ctx.Len() != 1 {
		t.Errorf("context with items should not be empty")
	}
}

func TestGraphStats_Totals(t *testing.T) {
	s := &GraphStats{
		EntitiesByType: map[EntityType]int{EntityTypeCrop: 2, EntityTypeDisease: 1},
		EdgesByLabel:   map[RelationLabel]int{RelationAffects: 3},
	}
	if s.TotalEntities() != 3 {
		t.Errorf("TotalEntities() = %d, want 3", s.TotalEntities())
	}
	if s.TotalEdges() != 3 {
		t.Errorf("TotalEdges() = %d, want 3", s.TotalEdges())
	}
}
