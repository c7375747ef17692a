package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/graphrag/classify"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/fusion"
	"github.com/poiesic/graphrag/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/poiesic/graphrag/search"

	// Request defaults.
	DefaultTopKVector     = 5
	DefaultTopKGraph      = 10
	DefaultMaxContextSize = 10
	DefaultSourceTimeout  = 10 * time.Second

	// expansionChunks is how many top vector chunks feed vector expansion.
	expansionChunks = 3

	// historyTurns is how many prior turns enhance the retrieval text.
	historyTurns = 2
)

// QueryRequest is one question against the engine. Zero limits take the
// package defaults. History holds earlier turns of the conversation,
// oldest first.
type QueryRequest struct {
	Text           string
	History        []string
	TopKVector     int
	TopKGraph      int
	MaxContextSize int
	Filter         core.MetadataFilter
}

func (r QueryRequest) withDefaults() QueryRequest {
	if r.TopKVector <= 0 {
		r.TopKVector = DefaultTopKVector
	}
	if r.TopKGraph <= 0 {
		r.TopKGraph = DefaultTopKGraph
	}
	if r.MaxContextSize <= 0 {
		r.MaxContextSize = DefaultMaxContextSize
	}
	return r
}

// retrievalText is the text the retrievers see: the last historyTurns
// non-blank history entries followed by the question. Classification
// always uses Text alone.
func (r QueryRequest) retrievalText() string {
	var turns []string
	for i := len(r.History) - 1; i >= 0 && len(turns) < historyTurns; i-- {
		if h := strings.TrimSpace(r.History[i]); h != "" {
			turns = append(turns, h)
		}
	}
	if len(turns) == 0 {
		return r.Text
	}
	slices.Reverse(turns)
	return strings.Join(append(turns, r.Text), "\n")
}

// SourceStatus reports how one retrieval source fared.
type SourceStatus struct {
	Results  int
	Err      error
	TimedOut bool
	Duration time.Duration
}

// OK reports whether the source answered.
func (s SourceStatus) OK() bool {
	return s.Err == nil
}

// QueryResponse is the fused context plus how it was produced.
type QueryResponse struct {
	Context        *core.FusedContext
	Classification classify.Classification
	Entities       []*core.CanonicalEntity
	Vector         SourceStatus
	Graph          SourceStatus
}

// Searcher runs hybrid queries: classification, then vector and graph
// retrieval in parallel, then fusion.
type Searcher struct {
	vector        *VectorRetriever
	graph         *GraphRetriever
	classifier    *classify.Classifier
	fuser         *fusion.Fuser
	vectorTimeout time.Duration
	graphTimeout  time.Duration
	expansion     bool
	metrics       *metrics.Collector
	tracer        trace.Tracer
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(s *Searcher) error {
		if c != nil {
			s.classifier = c
		}
		return nil
	}
}

// WithFuser replaces the default fuser.
func WithFuser(f *fusion.Fuser) Option {
	return func(s *Searcher) error {
		if f != nil {
			s.fuser = f
		}
		return nil
	}
}

// WithTimeouts bounds each retrieval source.
func WithTimeouts(vector, graph time.Duration) Option {
	return func(s *Searcher) error {
		if vector <= 0 || graph <= 0 {
			return fmt.Errorf("retrieval timeouts must be positive, got %s and %s", vector, graph)
		}
		s.vectorTimeout = vector
		s.graphTimeout = graph
		return nil
	}
}

// WithVectorExpansion enables graph expansion from the top vector chunks
// when the query itself yields few paths.
func WithVectorExpansion(enabled bool) Option {
	return func(s *Searcher) error {
		s.expansion = enabled
		return nil
	}
}

// WithMetrics records query metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Searcher) error {
		s.metrics = c
		return nil
	}
}

// WithTracerProvider sets the tracer provider for query spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Searcher) error {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(vector *VectorRetriever, graph *GraphRetriever, opts ...Option) (*Searcher, error) {
	if vector == nil || graph == nil {
		return nil, ErrRetrieverRequired
	}

	s := &Searcher{
		vector:        vector,
		graph:         graph,
		classifier:    classify.NewClassifier(),
		fuser:         fusion.NewFuser(),
		vectorTimeout: DefaultSourceTimeout,
		graphTimeout:  DefaultSourceTimeout,
		tracer:        otel.Tracer(tracerName),
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Query answers req with a fused context.
func (s *Searcher) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	return s.QueryWithMonitor(ctx, req, nil)
}

type sourceOutcome struct {
	results  []core.RetrievalResult
	entities []*core.CanonicalEntity
	status   SourceStatus
}

// QueryWithMonitor answers req and reports each stage to monitor.
//
// A failing or slow source degrades the answer to the other source. Only
// when both fail does the query return core.ErrRetrievalFailed. Cancelling
// ctx returns ctx.Err() without waiting for pending retrievals.
func (s *Searcher) QueryWithMonitor(ctx context.Context, req QueryRequest, monitor QueryMonitor) (*QueryResponse, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyQuery
	}
	req = req.withDefaults()

	ctx, span := s.tracer.Start(ctx, "Query")
	defer span.End()

	monitor.Start(req.Text)
	classification := s.classifier.Classify(req.Text)
	monitor.Classified(classification)
	span.SetAttributes(
		attribute.String("query.type", string(classification.Type)),
		attribute.Bool("query.ambiguous", classification.Ambiguous),
	)

	text := req.retrievalText()
	vectorCh := make(chan sourceOutcome, 1)
	graphCh := make(chan sourceOutcome, 1)

	go func() {
		vectorCh <- s.runSource(ctx, core.SourceVector, s.vectorTimeout, func(ctx context.Context) ([]core.RetrievalResult, []*core.CanonicalEntity, error) {
			results, err := s.vector.Retrieve(ctx, text, req.TopKVector, req.Filter)
			return results, nil, err
		})
	}()
	go func() {
		graphCh <- s.runSource(ctx, core.SourceGraph, s.graphTimeout, func(ctx context.Context) ([]core.RetrievalResult, []*core.CanonicalEntity, error) {
			return s.graph.retrieve(ctx, text, req.TopKGraph)
		})
	}()

	var vector, graph sourceOutcome
	for pending := 2; pending > 0; pending-- {
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "cancelled")
			return nil, ctx.Err()
		case vector = <-vectorCh:
		case graph = <-graphCh:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	monitor.VectorRetrieved(vector.results, vector.status.Err)
	monitor.EntitiesSpotted(graph.entities)
	monitor.GraphRetrieved(graph.results, graph.status.Err)

	if vector.status.Err != nil && graph.status.Err != nil {
		err := fmt.Errorf("%w: %w", core.ErrRetrievalFailed, errors.Join(vector.status.Err, graph.status.Err))
		s.logger.Error("both retrieval sources failed", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		s.metrics.QueryAnswered(string(classification.Type), []string{string(core.SourceVector), string(core.SourceGraph)})
		return nil, err
	}

	graphResults := graph.results
	if s.expansion && graph.status.Err == nil && len(vector.results) > 0 && len(graphResults) < req.TopKGraph/2 {
		added := s.expand(ctx, vector.results, graphResults, req.TopKGraph-len(graphResults))
		monitor.Expanded(added)
		graphResults = append(graphResults, added...)
	}

	fused := s.fuser.Fuse(vector.results, graphResults, classification.Weights(), req.MaxContextSize)
	monitor.Finish(fused)

	missing := make([]string, len(fused.MissingSources))
	for i, m := range fused.MissingSources {
		missing[i] = string(m)
	}
	s.metrics.QueryAnswered(string(classification.Type), missing)
	span.SetAttributes(
		attribute.Int("query.items", fused.Len()),
		attribute.Bool("query.partial", fused.Partial),
	)

	s.logger.Debug("query answered",
		"type", classification.Type, "items", fused.Len(), "partial", fused.Partial,
		"vector", vector.status.Results, "graph", len(graphResults))

	graph.status.Results = len(graphResults)
	return &QueryResponse{
		Context:        fused,
		Classification: classification,
		Entities:       graph.entities,
		Vector:         vector.status,
		Graph:          graph.status,
	}, nil
}

// runSource runs one retrieval under its own timeout and span.
func (s *Searcher) runSource(
	ctx context.Context,
	source core.Source,
	timeout time.Duration,
	fn func(context.Context) ([]core.RetrievalResult, []*core.CanonicalEntity, error),
) sourceOutcome {
	ctx, span := s.tracer.Start(ctx, "Retrieve", trace.WithAttributes(attribute.String("source", string(source))))
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	results, entities, err := fn(sctx)
	out := sourceOutcome{
		results:  results,
		entities: entities,
		status: SourceStatus{
			Results:  len(results),
			Err:      err,
			Duration: time.Since(start),
		},
	}
	if err != nil {
		out.results = nil
		out.status.Results = 0
		out.status.TimedOut = errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		s.logger.Warn("retrieval source failed", "source", source, "timedOut", out.status.TimedOut, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
	}
	s.metrics.RetrievalFinished(string(source), out.status.Duration, out.status.Results, err)
	return out
}

// expand returns up to limit paths for entities found in the top vector
// chunks, ranked after the existing graph results.
func (s *Searcher) expand(ctx context.Context, vector, graph []core.RetrievalResult, limit int) []core.RetrievalResult {
	texts := make([]string, 0, expansionChunks)
	for _, r := range vector[:min(expansionChunks, len(vector))] {
		texts = append(texts, r.Content)
	}
	exclude := make(map[string]bool, len(graph))
	for _, r := range graph {
		exclude[r.Key] = true
	}

	ctx, cancel := context.WithTimeout(ctx, s.graphTimeout)
	defer cancel()
	added, err := s.graph.Expand(ctx, texts, limit, exclude)
	if err != nil {
		s.logger.Warn("vector expansion failed", "err", err)
		return nil
	}
	for i := range added {
		added[i].Rank = len(graph) + i + 1
	}
	return added
}
