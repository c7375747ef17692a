package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage/badger"
	"github.com/stretchr/testify/require"
)

// seedChunks stores n chunks without embeddings, ids c00..c(n-1).
func seedChunks(t *testing.T, stores *badger.MemoryStores, texts ...string) []*core.Chunk {
	t.Helper()
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			Id:         fmt.Sprintf("c%02d", i),
			DocumentId: "doc",
			Text:       text,
		}
	}
	require.NoError(t, stores.Vectors.UpsertChunks(context.Background(), chunks...))
	return chunks
}

func repeat(text string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", text, i)
	}
	return out
}

func storedChunks(t *testing.T, stores *badger.MemoryStores) []*core.Chunk {
	t.Helper()
	var all []*core.Chunk
	err := stores.Vectors.ForEachChunk(context.Background(), "", 100, func(batch []*core.Chunk) error {
		all = append(all, batch...)
		return nil
	})
	require.NoError(t, err)
	return all
}
