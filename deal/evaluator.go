// Package deal compares a listing's price with the prices of its nearest
// neighbours to flag bargains and overpriced offers.
package deal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/shaxb/tele-google/core"
)

// Verdict classifies a price relative to the neighbourhood median.
type Verdict string

const (
	VerdictDeal        Verdict = "deal"
	VerdictMarketPrice Verdict = "market_price"
	VerdictOverpriced  Verdict = "overpriced"
)

// NeighborFinder is the store capability the evaluator needs.
type NeighborFinder interface {
	Nearest(ctx context.Context, vector []float32, k int) ([]core.Neighbor, error)
}

// Result is the outcome of a successful evaluation.
type Result struct {
	MedianPrice    float64
	NeighborCount  int
	NeighborPrices []float64 // ascending
	Deviation      float64   // (price - median) / median
	Verdict        Verdict
}

// IsDeal reports whether the price is a bargain.
func (r *Result) IsDeal() bool {
	return r != nil && r.Verdict == VerdictDeal
}

// IsOverpriced reports whether the price is well above the median.
func (r *Result) IsOverpriced() bool {
	return r != nil && r.Verdict == VerdictOverpriced
}

// Evaluator scores prices against similar stored listings.
type Evaluator struct {
	store               NeighborFinder
	neighbors           int
	minSimilarity       float32
	minNeighbors        int
	dealThreshold       float64
	overpricedThreshold float64
	logger              *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator) error

// WithNeighbors sets how many nearest listings are fetched. Default 10.
func WithNeighbors(k int) Option {
	return func(e *Evaluator) error {
		if k < 1 {
			return fmt.Errorf("neighbors must be positive, got %d", k)
		}
		e.neighbors = k
		return nil
	}
}

// WithSimilarityThreshold sets the minimum similarity of a comparable
// listing. Default 0.85.
func WithSimilarityThreshold(tau float32) Option {
	return func(e *Evaluator) error {
		if tau < -1 || tau > 1 {
			return fmt.Errorf("similarity threshold out of range: %v", tau)
		}
		e.minSimilarity = tau
		return nil
	}
}

// WithMinNeighbors sets how many comparable listings are required. Default 3.
func WithMinNeighbors(n int) Option {
	return func(e *Evaluator) error {
		if n < 1 {
			return fmt.Errorf("min neighbors must be positive, got %d", n)
		}
		e.minNeighbors = n
		return nil
	}
}

// WithThresholds sets the deviation at or below which a price is a deal and
// at or above which it is overpriced. Defaults -0.15 and 0.15.
func WithThresholds(deal, overpriced float64) Option {
	return func(e *Evaluator) error {
		if deal >= overpriced {
			return fmt.Errorf("deal threshold %v must be below overpriced threshold %v", deal, overpriced)
		}
		e.dealThreshold = deal
		e.overpricedThreshold = overpriced
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEvaluator creates an evaluator reading neighbours from store.
func NewEvaluator(store NeighborFinder, opts ...Option) (*Evaluator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	e := &Evaluator{
		store:               store,
		neighbors:           10,
		minSimilarity:       0.85,
		minNeighbors:        3,
		dealThreshold:       -0.15,
		overpricedThreshold: 0.15,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "deal-evaluator")
	return e, nil
}

// Evaluate compares price with the median of comparable neighbours of
// embedding. Comparable means priced, same currency (case-insensitive) and
// at least as similar as the threshold. Returns nil without error when
// there are too few comparables or their median is zero.
func (e *Evaluator) Evaluate(ctx context.Context, embedding []float32, price float64, currency string) (*Result, error) {
	return e.evaluate(ctx, embedding, price, currency, 0)
}

// EvaluateListing evaluates a stored listing, leaving the listing itself out
// of its own neighbourhood. Returns nil without error for listings with no
// price.
func (e *Evaluator) EvaluateListing(ctx context.Context, l *core.Listing) (*Result, error) {
	if l == nil || l.Price == nil || *l.Price <= 0 {
		return nil, nil
	}
	return e.evaluate(ctx, l.Embedding, *l.Price, l.Currency, l.ID)
}

func (e *Evaluator) evaluate(ctx context.Context, embedding []float32, price float64, currency string, exclude core.ID) (*Result, error) {
	k := e.neighbors
	if exclude != 0 {
		k++
	}
	neighbors, err := e.store.Nearest(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("find neighbours: %w", err)
	}

	prices := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		l := n.Listing
		if l == nil || l.Price == nil {
			continue
		}
		if exclude != 0 && l.ID == exclude {
			continue
		}
		if !core.SameCurrency(l.Currency, currency) || n.Similarity < e.minSimilarity {
			continue
		}
		prices = append(prices, *l.Price)
		if len(prices) == e.neighbors {
			break
		}
	}

	if len(prices) < e.minNeighbors {
		e.logger.Debug("not enough comparable listings", "found", len(prices), "required", e.minNeighbors)
		return nil, nil
	}

	median := core.Median(prices)
	if median == 0 {
		return nil, nil
	}

	deviation := (price - median) / median
	slices.Sort(prices)
	return &Result{
		MedianPrice:    round(median, 2),
		NeighborCount:  len(prices),
		NeighborPrices: prices,
		Deviation:      round(deviation, 4),
		Verdict:        e.verdict(deviation),
	}, nil
}

func (e *Evaluator) verdict(deviation float64) Verdict {
	switch {
	case deviation <= e.dealThreshold:
		return VerdictDeal
	case deviation >= e.overpricedThreshold:
		return VerdictOverpriced
	default:
		return VerdictMarketPrice
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
