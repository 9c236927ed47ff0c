package search

import (
	"github.com/shaxb/tele-google/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterCandidates(candidates []core.Neighbor)
	AfterRerank(indices []int)
	RerankFallback(err error)
	// QueryFailed reports an embed or candidate lookup failure that left
	// the query without an answer. stage is "embed" or "candidates".
	QueryFailed(stage string, err error)
	Finish(query string, result *Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                    {}
func (n *noopMonitor) AfterCandidates(_ []core.Neighbor) {}
func (n *noopMonitor) AfterRerank(_ []int)               {}
func (n *noopMonitor) RerankFallback(_ error)            {}
func (n *noopMonitor) QueryFailed(_ string, _ error)     {}
func (n *noopMonitor) Finish(_ string, _ *Result)        {}
