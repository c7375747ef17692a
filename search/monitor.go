package search

import (
	"github.com/poiesic/graphrag/classify"
	"github.com/poiesic/graphrag/core"
)

// QueryMonitor provides hooks to observe the query process.
// Implement this interface to track intermediate steps and results during a query.
// Retrieval callbacks run on the querying goroutine, after both sources finished.
type QueryMonitor interface {
	Start(text string)
	Classified(c classify.Classification)
	VectorRetrieved(results []core.RetrievalResult, err error)
	EntitiesSpotted(entities []*core.CanonicalEntity)
	GraphRetrieved(results []core.RetrievalResult, err error)
	Expanded(added []core.RetrievalResult)
	Finish(fused *core.FusedContext)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                    {}
func (n *noopMonitor) Classified(_ classify.Classification)              {}
func (n *noopMonitor) VectorRetrieved(_ []core.RetrievalResult, _ error) {}
func (n *noopMonitor) EntitiesSpotted(_ []*core.CanonicalEntity)         {}
func (n *noopMonitor) GraphRetrieved(_ []core.RetrievalResult, _ error)  {}
func (n *noopMonitor) Expanded(_ []core.RetrievalResult)                 {}
func (n *noopMonitor) Finish(_ *core.FusedContext)                       {}
