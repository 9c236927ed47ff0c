package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaxb/tele-google/ai"
	"github.com/shaxb/tele-google/core"
)

// maxFallbackResults is how many similarity-ordered candidates are returned
// when reranking fails.
const maxFallbackResults = 5

// NeighborStore is the store capability the engine needs.
type NeighborStore interface {
	Nearest(ctx context.Context, vector []float32, k int) ([]core.Neighbor, error)
}

// Result is the outcome of a search.
type Result struct {
	Listings []*core.Listing
	Elapsed  time.Duration
	// Fallback is set when the reranker failed and the listings are the
	// closest candidates in similarity order.
	Fallback bool
}

// Engine answers free-text queries in two stages: vector candidates from
// the store, then reordering by the classifier.
type Engine struct {
	store              NeighborStore
	embedder           ai.Embedder
	classifier         ai.Classifier
	candidates         int
	valuationK         int
	valuationThreshold float32
	minSamples         int
	callTimeout        time.Duration
	monitor            SearchMonitor
	logger             *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithCandidates sets how many vector candidates go to the reranker.
// Default is 50.
func WithCandidates(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return ErrInvalidLimit
		}
		e.candidates = k
		return nil
	}
}

// WithValuationCandidates sets how many neighbours valuation looks at.
// Default is 30.
func WithValuationCandidates(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return ErrInvalidLimit
		}
		e.valuationK = k
		return nil
	}
}

// WithValuationThreshold sets the minimum similarity of a valuation sample.
// Default is 0.80.
func WithValuationThreshold(tau float32) Option {
	return func(e *Engine) error {
		e.valuationThreshold = tau
		return nil
	}
}

// WithMinSamples sets how many priced samples valuation requires.
// Default is 3.
func WithMinSamples(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return ErrInvalidLimit
		}
		e.minSamples = n
		return nil
	}
}

// WithCallTimeout bounds every embed, store and rerank call.
// Default is 30 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d > 0 {
			e.callTimeout = d
		}
		return nil
	}
}

// WithMonitor installs a monitor that observes every search.
func WithMonitor(m SearchMonitor) Option {
	return func(e *Engine) error {
		if m == nil {
			m = &noopMonitor{}
		}
		e.monitor = m
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(store NeighborStore, provider ai.AIProvider, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Engine{
		store:              store,
		embedder:           provider.Embedder(),
		classifier:         provider.Classifier(),
		candidates:         50,
		valuationK:         30,
		valuationThreshold: 0.80,
		minSamples:         3,
		callTimeout:        30 * time.Second,
		monitor:            &noopMonitor{},
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// Search returns up to limit listings for query, most relevant first.
// Embedding or store failures yield an empty result; a reranker failure
// falls back to the closest candidates.
func (e *Engine) Search(ctx context.Context, query string, limit int) *Result {
	start := time.Now()
	e.monitor.Start(query)

	result := &Result{Listings: []*core.Listing{}}
	defer func() {
		result.Elapsed = time.Since(start)
		e.monitor.Finish(query, result)
	}()

	if limit <= 0 {
		limit = maxFallbackResults
	}

	vector, ok := e.embedQuery(ctx, query)
	if !ok {
		return result
	}

	candidates, err := e.nearest(ctx, vector, e.candidates)
	if err != nil {
		e.logger.Error("error querying for candidates", "err", err)
		return result
	}
	e.monitor.AfterCandidates(candidates)
	if len(candidates) == 0 {
		return result
	}

	indices, err := e.rerank(ctx, query, candidates)
	if err != nil {
		e.logger.Warn("rerank failed, using similarity order", "err", err)
		e.monitor.RerankFallback(err)
		indices = make([]int, min(maxFallbackResults, len(candidates)))
		for i := range indices {
			indices[i] = i
		}
		result.Fallback = true
	} else {
		e.monitor.AfterRerank(indices)
	}

	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if len(result.Listings) == limit {
			break
		}
		if i < 0 || i >= len(candidates) {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		result.Listings = append(result.Listings, candidates[i].Listing)
	}
	return result
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	vector, err := e.embedder.EmbedText(callCtx, query)
	if err == nil && len(vector) == 0 {
		err = ai.ErrEmptyResponse
	}
	if err != nil {
		e.logger.Error("error generating embedding for query", "query", query, "err", err)
		e.queryFailed(ctx, "embed", err)
		return nil, false
	}
	return vector, true
}

func (e *Engine) nearest(ctx context.Context, vector []float32, k int) ([]core.Neighbor, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	neighbors, err := e.store.Nearest(callCtx, vector, k)
	if err != nil {
		e.queryFailed(ctx, "candidates", err)
	}
	return neighbors, err
}

// queryFailed reports err unless the caller gave up on the query.
func (e *Engine) queryFailed(ctx context.Context, stage string, err error) {
	if ctx.Err() != nil {
		return
	}
	e.monitor.QueryFailed(stage, err)
}

func (e *Engine) rerank(ctx context.Context, query string, candidates []core.Neighbor) ([]int, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	items := make([]ai.Candidate, len(candidates))
	for i, c := range candidates {
		items[i] = ai.CandidateFromListing(c.Listing)
	}
	return e.classifier.Rerank(callCtx, query, items)
}
