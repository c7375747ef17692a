package ingestion

import (
	"fmt"
	"strings"

	"github.com/poiesic/graphrag/core"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping windows measured in runes. A window
// ends at the last sentence end or newline inside it when there is one.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a Chunker with the default size and overlap.
func NewChunker() *Chunker {
	return &Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Split chunks text for documentID. Chunk ids are "<documentID>#<n>" and
// Offset is the rune offset of the window.
func (c *Chunker) Split(documentID, text string) []core.Chunk {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := min(max(c.Overlap, 0), size-1)

	runes := []rune(text)
	var chunks []core.Chunk
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			if cut := lastBreak(runes[start:end]); cut > 0 {
				end = start + cut + 1
			}
		}

		if body := strings.TrimSpace(string(runes[start:end])); body != "" {
			chunks = append(chunks, core.Chunk{
				Id:         fmt.Sprintf("%s#%d", documentID, len(chunks)),
				DocumentId: documentID,
				Text:       body,
				Offset:     start,
			})
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastBreak returns the index of the last '.' or '\n' in window, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
