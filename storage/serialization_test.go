package storage

import (
	"testing"
	"time"

	"github.com/poiesic/graphrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	id := core.IDFromContent("test content")
	data := MarshalID(id)
	require.Len(t, data, 8)

	decoded, err := UnmarshalID(data)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)

	_, err = UnmarshalID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestEntityRoundTripKeepsAliasesAndProvenance(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entity := &core.CanonicalEntity{
		Id:   core.EntityID(core.EntityTypeCrop, "wheat"),
		Type: core.EntityTypeCrop,
		Name: "wheat",
		Aliases: []core.Alias{
			{Text: "wheat", Key: "wheat"},
			{Text: "Triticum aestivum", Key: "triticum aestivum"},
		},
		Provenance: []core.Provenance{
			{DocumentId: "doc", ChunkId: "c1", Offset: 4, Confidence: 0.9, ExtractedAt: now},
		},
		Confidence: 0.9,
		Seq:        7,
		InsertedAt: now,
		UpdatedAt:  now,
	}

	data, err := MarshalEntity(entity)
	require.NoError(t, err)

	decoded, err := UnmarshalEntity(data)
	require.NoError(t, err)
	assert.Equal(t, entity.Id, decoded.Id)
	assert.Equal(t, entity.Type, decoded.Type)
	assert.Equal(t, entity.Aliases, decoded.Aliases)
	assert.Equal(t, entity.Seq, decoded.Seq)
	require.Len(t, decoded.Provenance, 1)
	assert.True(t, decoded.Provenance[0].ExtractedAt.Equal(now))
}

func TestChunkRoundTripKeepsVector(t *testing.T) {
	chunk := &core.Chunk{
		Id:         "doc-1",
		DocumentId: "doc",
		Text:       "Rust is a fungal disease of wheat.",
		Metadata:   map[string]string{"region": "punjab"},
		Vector:     []float32{0.25, -0.5, 1},
	}

	data, err := MarshalChunk(chunk)
	require.NoError(t, err)

	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk.Vector, decoded.Vector)
	assert.Equal(t, chunk.Metadata, decoded.Metadata)
}

func TestUnmarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"invalid data", []byte{0xFF, 0xFF, 0xFF}},
		{"truncated json", []byte(`{"Id":`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalEntity(tt.data)
			assert.Error(t, err)
			_, err = UnmarshalEdge(tt.data)
			assert.Error(t, err)
			_, err = UnmarshalChunk(tt.data)
			assert.Error(t, err)
		})
	}
}
