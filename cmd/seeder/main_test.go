package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/graphrag"
	"github.com/poiesic/graphrag/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Rust affects wheat."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("ignored"), 0o600))

	source, err := documentsFromDir(dir)
	require.NoError(t, err)

	var ids []string
	for doc, err := range source {
		require.NoError(t, err)
		ids = append(ids, doc.id)
	}
	assert.Equal(t, []string{"a"}, ids)
}

func TestIngestAll(t *testing.T) {
	extractor := mock.NewMockExtractor().
		WithTerm("wheat", "Crop").
		WithTerm("stem rust", "Disease").
		WithRelation("stem rust", "AFFECTS", "wheat")
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), extractor)
	engine, err := graphrag.Open(context.Background(), graphrag.WithInMemory(), graphrag.WithProvider(provider))
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, ingestAll(context.Background(), engine, documentsFromSlice(bulletins[:2])))

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.EdgesByLabel["AFFECTS"])
}
