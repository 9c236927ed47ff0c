package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaxb/tele-google/ai/mock"
	"github.com/shaxb/tele-google/core"
)

func pricedNeighbor(id core.ID, price float64, currency string, similarity float32) core.Neighbor {
	p := price
	return core.Neighbor{
		Listing:    &core.Listing{ID: id, Price: &p, Currency: currency},
		Similarity: similarity,
	}
}

func TestValuate(t *testing.T) {
	store := &fakeStore{neighbors: []core.Neighbor{
		pricedNeighbor(1, 400, "USD", 0.95),
		pricedNeighbor(2, 500, "USD", 0.94),
		pricedNeighbor(3, 450, "usd", 0.93),
		pricedNeighbor(4, 600, "USD", 0.90),
		pricedNeighbor(5, 300, "UZS", 0.90),
		pricedNeighbor(6, 1000, "USD", 0.70),
		{Listing: &core.Listing{ID: 7, Currency: "USD"}, Similarity: 0.99},
		pricedNeighbor(8, 0, "USD", 0.99),
	}}
	e, err := NewEngine(store, mock.NewMockProvider())
	require.NoError(t, err)

	estimate, err := e.Valuate(context.Background(), "iPhone 13", "USD")
	require.NoError(t, err)
	require.NotNil(t, estimate)
	assert.Equal(t, 30, store.lastK)
	assert.Equal(t, 4, estimate.SampleCount)
	assert.Equal(t, 475.0, estimate.Median)
	assert.Equal(t, 487.5, estimate.Mean)
	assert.Equal(t, 400.0, estimate.Min)
	assert.Equal(t, 600.0, estimate.Max)
	assert.InDelta(t, 200.0/475.0, estimate.SpreadPct, 1e-9)
	assert.Equal(t, "USD", estimate.Currency)

	// 450 and 500 are 25 away, 400 is 75, 600 is 125.
	require.Len(t, estimate.Samples, 4)
	assert.Equal(t, core.ID(2), estimate.Samples[0].Listing.ID)
	assert.Equal(t, core.ID(3), estimate.Samples[1].Listing.ID)
	assert.Equal(t, core.ID(1), estimate.Samples[2].Listing.ID)
	assert.Equal(t, core.ID(4), estimate.Samples[3].Listing.ID)
}

func TestValuate_AnyCurrency(t *testing.T) {
	store := &fakeStore{neighbors: []core.Neighbor{
		pricedNeighbor(1, 100, "UZS", 0.95),
		pricedNeighbor(2, 110, "USD", 0.95),
		pricedNeighbor(3, 120, "USD", 0.95),
		pricedNeighbor(4, 130, "USD", 0.95),
		pricedNeighbor(5, 140, "USD", 0.95),
		pricedNeighbor(6, 150, "USD", 0.95),
		pricedNeighbor(7, 160, "USD", 0.95),
	}}
	e, err := NewEngine(store, mock.NewMockProvider())
	require.NoError(t, err)

	estimate, err := e.Valuate(context.Background(), "iPhone 13", "")
	require.NoError(t, err)
	require.NotNil(t, estimate)
	assert.Equal(t, 7, estimate.SampleCount)
	assert.Equal(t, "USD", estimate.Currency)
	assert.Len(t, estimate.Samples, 5)
	assert.Equal(t, 130.0, *estimate.Samples[0].Listing.Price)
}

func TestValuate_Insufficient(t *testing.T) {
	store := &fakeStore{neighbors: []core.Neighbor{
		pricedNeighbor(1, 400, "USD", 0.95),
		pricedNeighbor(2, 500, "USD", 0.94),
		pricedNeighbor(3, 450, "USD", 0.50),
	}}
	e, err := NewEngine(store, mock.NewMockProvider())
	require.NoError(t, err)

	estimate, err := e.Valuate(context.Background(), "iPhone 13", "")
	require.NoError(t, err)
	assert.Nil(t, estimate)

	e, err = NewEngine(store, mock.NewMockProvider(), WithMinSamples(2))
	require.NoError(t, err)
	estimate, err = e.Valuate(context.Background(), "iPhone 13", "")
	require.NoError(t, err)
	require.NotNil(t, estimate)
	assert.Equal(t, 2, estimate.SampleCount)
}

func TestValuate_EmbedFailure(t *testing.T) {
	provider := mock.NewMockProvider()
	provider.GetMockEmbedder().EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedder down")
	}
	monitor := &recordingMonitor{}
	e, err := NewEngine(&fakeStore{}, provider, WithMonitor(monitor))
	require.NoError(t, err)

	estimate, err := e.Valuate(context.Background(), "iPhone 13", "")
	assert.NoError(t, err)
	assert.Nil(t, estimate)
	assert.Equal(t, []string{"embed"}, monitor.failures)
}

func TestValuate_StoreError(t *testing.T) {
	monitor := &recordingMonitor{}
	e, err := NewEngine(&fakeStore{err: errors.New("db down")}, mock.NewMockProvider(), WithMonitor(monitor))
	require.NoError(t, err)

	_, err = e.Valuate(context.Background(), "iPhone 13", "")
	assert.Error(t, err)
	assert.Equal(t, []string{"candidates"}, monitor.failures)
}
