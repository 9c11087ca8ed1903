package search

import (
	"github.com/poiesic/sentvec/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterQueryEmbedding(cached bool)
	AfterCandidateSearch(ids []core.ID, fromIndex bool)
	VerbatimHit(record *core.Record)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                           {}
func (n *noopMonitor) AfterQueryEmbedding(_ bool)               {}
func (n *noopMonitor) AfterCandidateSearch(_ []core.ID, _ bool) {}
func (n *noopMonitor) VerbatimHit(_ *core.Record)               {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)            {}
