// Package metrics exposes Prometheus collectors for ingestion and query.
//
// All methods are safe to call on a nil *Collector, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "graphrag"

// Collector holds the engine's metrics.
type Collector struct {
	chunksTotal       *prometheus.CounterVec
	entitiesTotal     *prometheus.CounterVec
	edgesTotal        *prometheus.CounterVec
	relationsDropped  prometheus.Counter
	ingestDuration    prometheus.Histogram
	queriesTotal      *prometheus.CounterVec
	degradedTotal     *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	retrievalResults  *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
}

// NewCollector registers the collectors on reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks processed by ingestion, by outcome",
		}, []string{"status"}),
		entitiesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_resolved_total",
			Help:      "Entity mentions resolved, by entity type and match method",
		}, []string{"type", "method"}),
		edgesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_upserted_total",
			Help:      "Edges upserted, by relation label and whether the edge was new",
		}, []string{"label", "created"}),
		relationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relations_dropped_total",
			Help:      "Relations dropped because an endpoint did not resolve",
		}),
		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of IngestDocument calls",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries answered, by classified type",
		}, []string{"type"}),
		degradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_degraded_total",
			Help:      "Queries answered from a single source, by missing source",
		}, []string{"missing"}),
		retrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency per source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "status"}),
		retrievalResults: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Results returned per source",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"source"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Query embedding cache lookups, by result",
		}, []string{"result"}),
	}
}

// ChunkProcessed counts a chunk that went through every stage.
func (c *Collector) ChunkProcessed() {
	if c == nil {
		return
	}
	c.chunksTotal.WithLabelValues("ok").Inc()
}

// ChunkFailed counts a chunk that failed at stage.
func (c *Collector) ChunkFailed(stage string) {
	if c == nil {
		return
	}
	c.chunksTotal.WithLabelValues("failed_" + stage).Inc()
}

// EntityResolved counts one resolved mention.
func (c *Collector) EntityResolved(entityType, method string) {
	if c == nil {
		return
	}
	c.entitiesTotal.WithLabelValues(entityType, method).Inc()
}

// EdgeUpserted counts one edge upsert.
func (c *Collector) EdgeUpserted(label string, created bool) {
	if c == nil {
		return
	}
	flag := "false"
	if created {
		flag = "true"
	}
	c.edgesTotal.WithLabelValues(label, flag).Inc()
}

// RelationsDropped counts relations whose endpoints did not resolve.
func (c *Collector) RelationsDropped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.relationsDropped.Add(float64(n))
}

// IngestFinished observes the duration of one document ingestion.
func (c *Collector) IngestFinished(d time.Duration) {
	if c == nil {
		return
	}
	c.ingestDuration.Observe(d.Seconds())
}

// QueryAnswered counts a query and, when degraded, its missing sources.
func (c *Collector) QueryAnswered(queryType string, missing []string) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(queryType).Inc()
	for _, m := range missing {
		c.degradedTotal.WithLabelValues(m).Inc()
	}
}

// RetrievalFinished observes one retrieval call.
func (c *Collector) RetrievalFinished(source string, d time.Duration, results int, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.retrievalDuration.WithLabelValues(source, status).Observe(d.Seconds())
	if err == nil {
		c.retrievalResults.WithLabelValues(source).Observe(float64(results))
	}
}

// CacheLookup counts an embedding cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}
