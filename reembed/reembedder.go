package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

// Checkpoint names of the maintenance runs.
const (
	ReembedCheckpoint = "reembed"
	RebuildCheckpoint = "rebuild"
)

// Config holds configuration for a maintenance run.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int `yaml:"batch_size" validate:"gte=1"`

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int `yaml:"report_interval" validate:"gte=1"`

	// MaxRetries is the maximum number of attempts for AI calls
	MaxRetries int `yaml:"max_retries" validate:"gte=1"`

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder re-embeds every stored chunk with the configured embedder.
type Reembedder struct {
	store     storage.VectorStore
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewReembedder creates a new reembedder.
// checkpoints may be nil to disable resuming.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store storage.VectorStore, checkpoints storage.CheckpointStore, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(store, checkpoints, ReembedCheckpoint, config.BatchSize),
	}, nil
}

// Run re-embeds all chunks, resuming after the last checkpoint if a
// previous run was interrupted. Returns the number of chunks processed in
// this run.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	return runBatches(ctx, r.store, r.iterator, r.config, r.progress, "Reembedding", r.processor.Process)
}

// runBatches drives an iterator with progress reporting.
func runBatches(
	ctx context.Context,
	store storage.VectorStore,
	iterator *ChunkIterator,
	config *Config,
	progress io.Writer,
	verb string,
	process func(context.Context, []*core.Chunk) error,
) (int, error) {
	total, err := store.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(progress, "No chunks found in store (0 chunks)\n")
		return 0, nil
	}

	already := 0
	checkpoint, err := iterator.Resume(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint != nil {
		already = checkpoint.Processed
		fmt.Fprintf(progress, "Resuming after chunk %s (%d already done)\n", checkpoint.LastChunkId, already)
	}
	fmt.Fprintf(progress, "%s %d chunks (batch size: %d)\n", verb, total, config.BatchSize)

	tracker := NewProgressTracker(progress, total, config.ReportInterval, "chunks")
	tracker.Start(already)

	processed := 0
	err = iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		if err := process(ctx, chunks); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(chunks)
		tracker.Increment(len(chunks))
		return nil
	})
	if err != nil {
		return processed, err
	}
	rate := tracker.Rate()
	tracker.Finish()

	fmt.Fprintf(progress, "%s complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		verb, processed, tracker.Elapsed().Round(time.Millisecond), rate)
	return processed, nil
}
