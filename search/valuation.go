package search

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/shaxb/tele-google/core"
)

// maxValuationSamples is how many example listings an estimate carries.
const maxValuationSamples = 5

// PriceEstimate summarizes the prices of listings similar to a query.
type PriceEstimate struct {
	Median      float64
	Mean        float64
	Min         float64
	Max         float64
	SpreadPct   float64 // (Max - Min) / Median
	Currency    string  // most common currency among samples
	SampleCount int
	// Samples are the listings priced closest to the median.
	Samples []core.Neighbor
}

// Valuate estimates the market price of the item described by query.
// currency, when set, restricts samples to that currency (case-insensitive).
// Returns nil without error when there isn't enough data, including when
// the query can't be embedded.
func (e *Engine) Valuate(ctx context.Context, query, currency string) (*PriceEstimate, error) {
	vector, ok := e.embedQuery(ctx, query)
	if !ok {
		return nil, nil
	}

	neighbors, err := e.nearest(ctx, vector, e.valuationK)
	if err != nil {
		return nil, fmt.Errorf("find neighbours: %w", err)
	}

	currency = strings.TrimSpace(currency)
	samples := make([]core.Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		l := n.Listing
		if l == nil || l.Price == nil || *l.Price <= 0 {
			continue
		}
		if n.Similarity < e.valuationThreshold {
			continue
		}
		if currency != "" && !core.SameCurrency(l.Currency, currency) {
			continue
		}
		samples = append(samples, n)
	}

	if len(samples) < e.minSamples {
		e.logger.Debug("not enough samples to valuate", "query", query, "found", len(samples), "required", e.minSamples)
		return nil, nil
	}

	prices := make([]float64, len(samples))
	currencies := make([]string, len(samples))
	for i, s := range samples {
		prices[i] = *s.Listing.Price
		currencies[i] = strings.ToUpper(s.Listing.Currency)
	}

	median := core.Median(prices)
	lo, hi := slices.Min(prices), slices.Max(prices)
	estimate := &PriceEstimate{
		Median:      median,
		Mean:        core.Mean(prices),
		Min:         lo,
		Max:         hi,
		SpreadPct:   (hi - lo) / median,
		Currency:    core.Mode(currencies),
		SampleCount: len(samples),
	}

	closest := slices.Clone(samples)
	slices.SortStableFunc(closest, func(a, b core.Neighbor) int {
		da := math.Abs(*a.Listing.Price - median)
		db := math.Abs(*b.Listing.Price - median)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	estimate.Samples = closest[:min(maxValuationSamples, len(closest))]
	return estimate, nil
}
