package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/poiesic/graphrag/ingestion"
	"github.com/poiesic/graphrag/storage"
)

// RebuildReport summarizes a graph rebuild.
type RebuildReport struct {
	RunId            string
	ChunksProcessed  int
	EntitiesCreated  int
	EntitiesUpdated  int
	EdgesCreated     int
	EdgesUpdated     int
	RelationsDropped int
	// Failures lists chunks whose extraction failed after every retry.
	Failures []ingestion.ChunkFailure
}

func (r *RebuildReport) add(o *ingestion.ChunkOutcome) {
	r.ChunksProcessed++
	r.EntitiesCreated += o.EntitiesCreated
	r.EntitiesUpdated += o.EntitiesUpdated
	r.EdgesCreated += o.EdgesCreated
	r.EdgesUpdated += o.EdgesUpdated
	r.RelationsDropped += o.RelationsDropped
}

// Rebuilder re-runs extraction and graph building over every stored chunk.
// Provenance keys make the rebuild idempotent: chunks already reflected in
// the graph only raise confidences and fill in what a newer extractor finds.
type Rebuilder struct {
	store     storage.VectorStore
	extractor *extraction.Extractor
	builder   *ingestion.Builder
	config    *Config
	progress  io.Writer
	iterator  *ChunkIterator
	logger    *slog.Logger

	mu     sync.Mutex
	report *RebuildReport
}

// NewRebuilder creates a new rebuilder.
// checkpoints may be nil to disable resuming.
func NewRebuilder(
	store storage.VectorStore,
	checkpoints storage.CheckpointStore,
	extractor *extraction.Extractor,
	builder *ingestion.Builder,
	config *Config,
	progress io.Writer,
) (*Rebuilder, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if extractor == nil || builder == nil {
		return nil, ErrBuilderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Rebuilder{
		store:     store,
		extractor: extractor,
		builder:   builder,
		config:    config,
		progress:  progress,
		iterator:  NewChunkIterator(store, checkpoints, RebuildCheckpoint, config.BatchSize),
		logger:    slog.Default().With("component", "rebuilder"),
	}, nil
}

// Run rebuilds the graph from all chunks, resuming after the last
// checkpoint. A chunk whose extraction keeps failing is reported and
// skipped; a store failure stops the run.
func (r *Rebuilder) Run(ctx context.Context) (*RebuildReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report = &RebuildReport{RunId: uuid.NewString()}
	ctx = ingestion.ContextWithRunID(ctx, r.report.RunId)
	_, err := runBatches(ctx, r.store, r.iterator, r.config, r.progress, "Rebuilding graph from", r.process)
	return r.report, err
}

func (r *Rebuilder) process(ctx context.Context, chunks []*core.Chunk) error {
	for _, chunk := range chunks {
		result, err := Retry(ctx, r.config.MaxRetries, r.config.RetryDelay, func(ctx context.Context) (*extraction.Result, error) {
			return r.extractor.Extract(ctx, *chunk)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.logger.Warn("extraction failed, skipping chunk", "chunk", chunk.Id, "err", err)
			r.report.Failures = append(r.report.Failures, ingestion.ChunkFailure{
				ChunkId: chunk.Id, Stage: ingestion.StageExtract, Err: err,
			})
			continue
		}

		outcome, err := r.builder.BuildChunk(ctx, *chunk, result)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("build chunk %s: %w", chunk.Id, err)
		}
		r.report.add(outcome)
	}
	return nil
}
