package graphrag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/ai/openai"
	"github.com/poiesic/graphrag/classify"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/poiesic/graphrag/fusion"
	"github.com/poiesic/graphrag/ingestion"
	"github.com/poiesic/graphrag/metrics"
	"github.com/poiesic/graphrag/reembed"
	"github.com/poiesic/graphrag/resolve"
	"github.com/poiesic/graphrag/search"
	"github.com/poiesic/graphrag/storage"
	"github.com/poiesic/graphrag/storage/badger"
	"github.com/poiesic/graphrag/storage/pgvector"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/poiesic/graphrag"

// ErrEngineClosed is returned by calls on a closed Engine.
var ErrEngineClosed = errors.New("engine closed")

// Direction tells which end of an edge the inspected entity sits on.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// RelatedEntity is one neighbor of an entity.
type RelatedEntity struct {
	Entity     *core.CanonicalEntity
	Label      core.RelationLabel
	Direction  Direction
	Confidence float64
}

// EntityDetails is an entity with its one-hop neighborhood.
type EntityDetails struct {
	Entity     *core.CanonicalEntity
	Related    []RelatedEntity
	Provenance []core.Provenance
}

type engineOptions struct {
	config         *Config
	ai             *ai.Config
	inMemory       bool
	provider       ai.AIProvider
	logger         *slog.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	dictionary     *resolve.Dictionary
	vectors        storage.VectorStore
}

// Option configures an Engine.
type Option func(*engineOptions) error

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(o *engineOptions) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		o.config = cfg
		return nil
	}
}

// WithAIConfig replaces the AI section of the configuration.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *engineOptions) error {
		if cfg == nil {
			return errors.New("ai config must not be nil")
		}
		o.ai = cfg
		return nil
	}
}

// WithInMemory keeps every store in memory.
func WithInMemory() Option {
	return func(o *engineOptions) error {
		o.inMemory = true
		return nil
	}
}

// WithProvider supplies the AI services. The engine closes the provider.
func WithProvider(p ai.AIProvider) Option {
	return func(o *engineOptions) error {
		o.provider = p
		return nil
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) error {
		o.logger = logger
		return nil
	}
}

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) error {
		o.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the tracer provider. Default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *engineOptions) error {
		o.tracerProvider = tp
		return nil
	}
}

// WithDictionary replaces the alias dictionary.
func WithDictionary(d *resolve.Dictionary) Option {
	return func(o *engineOptions) error {
		o.dictionary = d
		return nil
	}
}

// WithVectorStore puts chunks and embeddings in store instead of badger or
// Postgres. The caller keeps ownership of store.
func WithVectorStore(store storage.VectorStore) Option {
	return func(o *engineOptions) error {
		o.vectors = store
		return nil
	}
}

// Engine is the GraphRAG facade: ingestion, hybrid query answering and
// entity exploration over one knowledge graph.
type Engine struct {
	config      *Config
	stores      *badger.MemoryStores
	vectors     storage.VectorStore
	ownsVectors bool
	provider    ai.AIProvider
	extractor   *extraction.Extractor
	resolver    *resolve.Resolver
	pipeline    *ingestion.Pipeline
	vector      *search.VectorRetriever
	searcher    *search.Searcher
	metrics     *metrics.Collector
	tracer      trace.Tracer
	logger      *slog.Logger
	closed      atomic.Bool
}

// Open builds an Engine. Without WithProvider the OpenAI-compatible
// provider is created from the AI configuration.
func Open(ctx context.Context, opts ...Option) (*Engine, error) {
	o := &engineOptions{config: DefaultConfig()}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	cfg := new(Config)
	*cfg = *o.config
	if o.ai != nil {
		cfg.AI = *o.ai
	}
	if o.inMemory {
		cfg.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{config: cfg, logger: logger.With("component", "engine")}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	var err error
	e.provider = o.provider
	if e.provider == nil {
		if e.provider, err = openai.NewProvider(&cfg.AI); err != nil {
			return nil, fmt.Errorf("create ai provider: %w", err)
		}
	}

	backend, err := badger.OpenBackend(cfg.Path, cfg.InMemory)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if e.stores, err = badger.OpenStores(backend); err != nil {
		backend.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	switch {
	case o.vectors != nil:
		e.vectors = o.vectors
	case cfg.PostgresDSN != "":
		if e.vectors, err = pgvector.Open(ctx, cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		e.ownsVectors = true
	default:
		e.vectors = e.stores.Vectors
	}

	if o.registerer != nil {
		e.metrics = metrics.NewCollector(metrics.DefaultNamespace, o.registerer)
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	e.tracer = tp.Tracer(tracerName)

	dictionary := o.dictionary
	if dictionary == nil {
		taxonomy := core.DefaultTaxonomy()
		if path := cfg.Resolution.DictionaryPath; path != "" {
			if dictionary, err = resolve.LoadDictionary(path, taxonomy); err != nil {
				return nil, fmt.Errorf("load dictionary: %w", err)
			}
		} else {
			dictionary = resolve.DefaultDictionary()
		}
	}

	e.extractor, err = extraction.NewExtractor(e.provider.Extractor(),
		extraction.WithMinConfidence(cfg.Extraction.MinConfidence),
		extraction.WithDefaultConfidence(cfg.Extraction.DefaultConfidence),
		extraction.WithTimeout(cfg.Extraction.Timeout),
		extraction.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	e.resolver, err = resolve.NewResolver(e.stores.Graph,
		resolve.WithThreshold(cfg.Resolution.Threshold),
		resolve.WithFullScanLimit(cfg.Resolution.FullScanLimit),
		resolve.WithDictionary(dictionary),
		resolve.WithTaxonomy(e.extractor.Taxonomy()),
		resolve.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithResolver(e.resolver),
		ingestion.WithExtractor(e.extractor),
		ingestion.WithEmbedTimeout(cfg.Ingestion.EmbedTimeout),
		ingestion.WithMetrics(e.metrics),
		ingestion.WithTracerProvider(tp),
	}
	if cfg.Ingestion.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if e.pipeline, err = ingestion.NewPipeline(e.vectors, e.stores.Graph, e.provider, pipelineOpts...); err != nil {
		return nil, err
	}

	if e.searcher, err = e.newSearcher(logger, tp); err != nil {
		return nil, err
	}

	ok = true
	return e, nil
}

func (e *Engine) newSearcher(logger *slog.Logger, tp trace.TracerProvider) (*search.Searcher, error) {
	cfg := e.config.Retrieval

	var err error
	e.vector, err = search.NewVectorRetriever(e.vectors, e.provider.Embedder(), cfg.CacheEntries,
		search.WithVectorMetrics(e.metrics), search.WithVectorLogger(logger))
	if err != nil {
		return nil, err
	}

	var spotter search.Spotter
	switch cfg.Spotter {
	case "extractor":
		spotter = search.NewExtractorSpotter(e.extractor, e.resolver)
	default:
		spotter = search.NewNGramSpotter(e.resolver, search.DefaultMaxNGram)
	}
	graph, err := search.NewGraphRetriever(e.stores.Graph, spotter,
		search.WithMaxHops(cfg.MaxHops), search.WithGraphLogger(logger))
	if err != nil {
		return nil, err
	}

	weights, err := e.config.Fusion.weightTable()
	if err != nil {
		return nil, err
	}
	fuser := fusion.NewFuser(
		fusion.WithK(e.config.Fusion.K),
		fusion.WithBonus(e.config.Fusion.Bonus),
		fusion.WithLogger(logger),
	)

	return search.NewSearcher(e.vector, graph,
		search.WithLogger(logger),
		search.WithClassifier(classify.NewClassifier(classify.WithWeights(weights))),
		search.WithFuser(fuser),
		search.WithTimeouts(cfg.VectorTimeout, cfg.GraphTimeout),
		search.WithVectorExpansion(cfg.VectorExpansion),
		search.WithMetrics(e.metrics),
		search.WithTracerProvider(tp),
	)
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *Config {
	return e.config
}

// IngestDocument extracts, resolves and stores the chunks of one document.
// The error is non-nil only for invalid arguments; per-chunk failures are
// listed in the report.
func (e *Engine) IngestDocument(ctx context.Context, documentID string, chunks []core.Chunk) (*ingestion.IngestReport, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	return e.pipeline.IngestDocument(ctx, documentID, chunks)
}

// Query answers a question with a fused context from both retrievers.
func (e *Engine) Query(ctx context.Context, req search.QueryRequest) (*search.QueryResponse, error) {
	return e.QueryWithMonitor(ctx, req, nil)
}

// QueryWithMonitor is Query with progress callbacks.
func (e *Engine) QueryWithMonitor(ctx context.Context, req search.QueryRequest, monitor search.QueryMonitor) (*search.QueryResponse, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if req.TopKVector == 0 {
		req.TopKVector = e.config.Retrieval.TopKVector
	}
	if req.TopKGraph == 0 {
		req.TopKGraph = e.config.Retrieval.TopKGraph
	}
	if req.MaxContextSize == 0 {
		req.MaxContextSize = e.config.Retrieval.MaxContextSize
	}
	return e.searcher.QueryWithMonitor(ctx, req, monitor)
}

// SearchEntities finds entities whose name or an alias contains text.
// A nil entityType searches every type.
func (e *Engine) SearchEntities(ctx context.Context, text string, entityType *core.EntityType, limit int) ([]*core.CanonicalEntity, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	return e.stores.Graph.SearchEntities(ctx, text, entityType, limit)
}

// GetEntityDetails returns an entity with its direct neighbors, strongest
// relation first. When labels are given only relations carrying one of
// them are returned. Returns storage.ErrNotFound for an unknown id.
func (e *Engine) GetEntityDetails(ctx context.Context, id core.ID, labels ...core.RelationLabel) (*EntityDetails, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	ctx, span := e.tracer.Start(ctx, "graphrag.GetEntityDetails",
		trace.WithAttributes(attribute.String("entity.id", id.String())))
	defer span.End()

	graph := e.stores.Graph
	var (
		entity *core.CanonicalEntity
		edges  []*core.Edge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entity, err = graph.GetEntity(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = graph.EdgesOf(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(labels) > 0 {
		edges = slices.DeleteFunc(edges, func(edge *core.Edge) bool {
			return !slices.Contains(labels, edge.Label)
		})
	}
	ids := make([]core.ID, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.Other(id))
	}
	neighbors, err := graph.GetEntities(ctx, ids...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	byID := make(map[core.ID]*core.CanonicalEntity, len(neighbors))
	for _, n := range neighbors {
		byID[n.Id] = n
	}

	details := &EntityDetails{Entity: entity, Provenance: entity.Provenance}
	for _, edge := range edges {
		other, ok := byID[edge.Other(id)]
		if !ok {
			continue
		}
		dir := Outgoing
		if edge.Subject != id {
			dir = Incoming
		}
		details.Related = append(details.Related, RelatedEntity{
			Entity:     other,
			Label:      edge.Label,
			Direction:  dir,
			Confidence: edge.Confidence,
		})
	}
	slices.SortFunc(details.Related, func(a, b RelatedEntity) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity.Name, b.Entity.Name)
	})
	return details, nil
}

// Stats counts entities per type, edges per label and stored chunks.
func (e *Engine) Stats(ctx context.Context) (*core.GraphStats, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	stats, err := e.stores.Graph.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Chunks, err = e.vectors.CountChunks(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// Reembed recomputes every chunk embedding with embedder, or with the
// provider's embedder when nil. Queries keep using the provider's embedder,
// so switching models means reopening the engine with the new provider.
// A nil cfg uses the maintenance section of the configuration.
func (e *Engine) Reembed(ctx context.Context, embedder ai.Embedder, cfg *reembed.Config, progress io.Writer) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	if embedder == nil {
		embedder = e.provider.Embedder()
	}
	r, err := reembed.NewReembedder(e.vectors, e.stores.Checkpoints, embedder, e.maintenance(cfg), progress)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}

// Rebuild re-runs extraction and graph building over every stored chunk.
func (e *Engine) Rebuild(ctx context.Context, cfg *reembed.Config, progress io.Writer) (*reembed.RebuildReport, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	builder, err := ingestion.NewBuilder(e.resolver, e.stores.Graph, e.metrics, e.logger)
	if err != nil {
		return nil, err
	}
	r, err := reembed.NewRebuilder(e.vectors, e.stores.Checkpoints, e.extractor, builder, e.maintenance(cfg), progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

func (e *Engine) maintenance(cfg *reembed.Config) *reembed.Config {
	if cfg != nil {
		return cfg
	}
	return &e.config.Maintenance
}

// Close releases the worker pool, the stores and the AI provider.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.vector != nil {
		e.vector.Close()
	}
	if e.ownsVectors && e.vectors != nil {
		errs = append(errs, e.vectors.Close())
	}
	if e.stores != nil {
		errs = append(errs, e.stores.Close())
	}
	if e.provider != nil {
		errs = append(errs, e.provider.Close())
	}
	return errors.Join(errs...)
}
