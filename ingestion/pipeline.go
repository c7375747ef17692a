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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/poiesic/graphrag/metrics"
	"github.com/poiesic/graphrag/resolve"
	"github.com/poiesic/graphrag/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/poiesic/graphrag/ingestion"

	// DefaultEmbedTimeout bounds one embedding call.
	DefaultEmbedTimeout = 30 * time.Second
)

// Pipeline orchestrates document ingestion.
// Chunks are processed concurrently on a worker pool shared by all calls.
type Pipeline struct {
	vectors      storage.VectorStore
	graph        storage.GraphStore
	embedder     ai.Embedder
	extractor    *extraction.Extractor
	resolver     *resolve.Resolver
	builder      *Builder
	pool         *ants.Pool
	embedTimeout time.Duration
	metrics      *metrics.Collector
	tracer       trace.Tracer
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithResolver replaces the default resolver over the graph store.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Pipeline) error {
		p.resolver = r
		return nil
	}
}

// WithExtractor replaces the default extractor over the provider's backend.
func WithExtractor(e *extraction.Extractor) Option {
	return func(p *Pipeline) error {
		p.extractor = e
		return nil
	}
}

// WithEmbedTimeout bounds each embedding call. Zero disables the timeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.embedTimeout = d
		return nil
	}
}

// WithMetrics records ingestion metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) error {
		p.metrics = c
		return nil
	}
}

// WithTracerProvider sets the tracer provider. Default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) error {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	vectors storage.VectorStore,
	graph storage.GraphStore,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		vectors:      vectors,
		graph:        graph,
		embedder:     provider.Embedder(),
		pool:         pool,
		embedTimeout: DefaultEmbedTimeout,
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.extractor == nil {
		p.extractor, err = extraction.NewExtractor(provider.Extractor(), extraction.WithLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.resolver == nil {
		p.resolver, err = resolve.NewResolver(graph,
			resolve.WithTaxonomy(p.extractor.Taxonomy()), resolve.WithLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
	}
	p.builder, err = NewBuilder(p.resolver, graph, p.metrics, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// Resolver returns the resolver shared by ingestion and lookups.
func (p *Pipeline) Resolver() *resolve.Resolver {
	return p.resolver
}

// Extractor returns the validating extractor.
func (p *Pipeline) Extractor() *extraction.Extractor {
	return p.extractor
}

// IngestDocument processes chunks of one document concurrently and waits for
// all of them. Chunks without a DocumentId inherit documentID. The error is
// non-nil only for invalid arguments; per-chunk problems are listed in the
// report.
func (p *Pipeline) IngestDocument(ctx context.Context, documentID string, chunks []core.Chunk) (*IngestReport, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, ErrDocumentIDRequired
	}

	start := time.Now()
	report := &IngestReport{
		DocumentId: documentID,
		RunId:      uuid.NewString(),
	}
	ctx = ContextWithRunID(ctx, report.RunId)
	ctx, span := p.tracer.Start(ctx, "ingestion.IngestDocument", trace.WithAttributes(
		attribute.String("graphrag.document_id", documentID),
		attribute.String("graphrag.run_id", report.RunId),
		attribute.Int("graphrag.chunks", len(chunks)),
	))
	defer span.End()

	p.logger.Info("ingesting document", "document", documentID, "run", report.RunId, "chunks", len(chunks))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make([]*ChunkFailure, len(chunks))
	)
	for i := range chunks {
		chunk := chunks[i]
		if chunk.DocumentId == "" {
			chunk.DocumentId = documentID
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			outcome, failure := p.processChunk(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				failures[i] = failure
				p.metrics.ChunkFailed(string(failure.Stage))
				return
			}
			report.add(outcome)
			p.metrics.ChunkProcessed()
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			failures[i] = &ChunkFailure{ChunkId: chunk.Id, Stage: StageSchedule, Err: err}
			mu.Unlock()
		}
	}
	wg.Wait()

	for _, f := range failures {
		if f != nil {
			report.Failures = append(report.Failures, *f)
		}
	}
	report.Duration = time.Since(start)
	p.metrics.IngestFinished(report.Duration)

	span.SetAttributes(
		attribute.Int("graphrag.chunks_processed", report.ChunksProcessed),
		attribute.Int("graphrag.chunks_failed", len(report.Failures)),
	)
	if report.Failed() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d chunks failed", len(report.Failures)))
	}

	p.logger.Info("ingested document",
		"document", documentID, "run", report.RunId,
		"processed", report.ChunksProcessed, "failed", len(report.Failures),
		"entitiesCreated", report.EntitiesCreated, "edgesCreated", report.EdgesCreated,
		"duration", report.Duration)
	return report, nil
}

// processChunk runs every stage for one chunk. Only one of the results is
// non-nil.
func (p *Pipeline) processChunk(ctx context.Context, chunk core.Chunk) (*ChunkOutcome, *ChunkFailure) {
	ctx, span := p.tracer.Start(ctx, "ingestion.chunk",
		trace.WithAttributes(attribute.String("graphrag.chunk_id", chunk.Id)))
	defer span.End()

	fail := func(stage Stage, err error) (*ChunkOutcome, *ChunkFailure) {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		p.logger.Warn("chunk failed", "chunk", chunk.Id, "stage", stage, "err", err)
		return nil, &ChunkFailure{ChunkId: chunk.Id, Stage: stage, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageSchedule, err)
	}
	if err := core.ValidateChunk(&chunk); err != nil {
		return fail(StageValidate, err)
	}

	if err := p.embed(ctx, &chunk); err != nil {
		return fail(StageEmbed, err)
	}
	if err := p.vectors.UpsertChunks(ctx, &chunk); err != nil {
		return fail(StageStore, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err))
	}

	result, err := p.extractor.Extract(ctx, chunk)
	if err != nil {
		return fail(StageExtract, err)
	}

	outcome, err := p.builder.BuildChunk(ctx, chunk, result)
	if err != nil {
		return fail(StageBuild, err)
	}
	outcome.ItemsRejected += result.Dropped
	return outcome, nil
}

func (p *Pipeline) embed(ctx context.Context, chunk *core.Chunk) error {
	if p.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.embedTimeout)
		defer cancel()
	}
	vectors, err := p.embedder.EmbedTexts(ctx, []string{chunk.Text})
	if err != nil {
		return err
	}
	if len(vectors) != 1 {
		return fmt.Errorf("%w: expected 1, received %d", ErrEmbeddingMismatch, len(vectors))
	}
	chunk.Vector = vectors[0]
	return nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
