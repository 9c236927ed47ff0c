package deal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/storage/badger"
)

// fakeFinder returns a fixed neighbour list.
type fakeFinder struct {
	neighbors []core.Neighbor
	err       error
	lastK     int
}

func (f *fakeFinder) Nearest(_ context.Context, _ []float32, k int) ([]core.Neighbor, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.neighbors) {
		return f.neighbors[:k], nil
	}
	return f.neighbors, nil
}

func neighbor(id core.ID, price float64, currency string, similarity float32) core.Neighbor {
	p := price
	return core.Neighbor{
		Listing:    &core.Listing{ID: id, Price: &p, Currency: currency},
		Similarity: similarity,
	}
}

func newTestEvaluator(t *testing.T, f NeighborFinder, opts ...Option) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(f, opts...)
	require.NoError(t, err)
	return e
}

func TestEvaluate_Deal(t *testing.T) {
	f := &fakeFinder{neighbors: []core.Neighbor{
		neighbor(1, 100, "USD", 0.95),
		neighbor(2, 100, "usd", 0.92),
		neighbor(3, 100, "USD", 0.90),
	}}
	e := newTestEvaluator(t, f)

	result, err := e.Evaluate(context.Background(), []float32{1}, 80, "USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 100.0, result.MedianPrice)
	assert.Equal(t, 3, result.NeighborCount)
	assert.Equal(t, []float64{100, 100, 100}, result.NeighborPrices)
	assert.InDelta(t, -0.20, result.Deviation, 1e-9)
	assert.Equal(t, VerdictDeal, result.Verdict)
	assert.True(t, result.IsDeal())
	assert.Equal(t, 10, f.lastK)
}

func TestEvaluate_Verdicts(t *testing.T) {
	f := &fakeFinder{neighbors: []core.Neighbor{
		neighbor(1, 90, "USD", 0.95),
		neighbor(2, 100, "USD", 0.95),
		neighbor(3, 110, "USD", 0.95),
	}}
	e := newTestEvaluator(t, f)

	tests := []struct {
		price float64
		want  Verdict
	}{
		{85, VerdictDeal},
		{86, VerdictMarketPrice},
		{100, VerdictMarketPrice},
		{114, VerdictMarketPrice},
		{115, VerdictOverpriced},
		{200, VerdictOverpriced},
	}
	for _, tt := range tests {
		result, err := e.Evaluate(context.Background(), []float32{1}, tt.price, "USD")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, tt.want, result.Verdict, "price %v", tt.price)
	}
}

func TestEvaluate_FiltersNeighbors(t *testing.T) {
	f := &fakeFinder{neighbors: []core.Neighbor{
		neighbor(1, 100, "USD", 0.95),
		neighbor(2, 100, "EUR", 0.95),
		neighbor(3, 100, "USD", 0.80),
		{Listing: &core.Listing{ID: 4, Currency: "USD"}, Similarity: 0.99},
		neighbor(5, 100, "USD", 0.90),
	}}
	e := newTestEvaluator(t, f)

	result, err := e.Evaluate(context.Background(), []float32{1}, 80, "USD")
	require.NoError(t, err)
	assert.Nil(t, result, "only two comparable neighbours")
}

func TestEvaluate_ZeroMedian(t *testing.T) {
	f := &fakeFinder{neighbors: []core.Neighbor{
		neighbor(1, 0, "USD", 0.95),
		neighbor(2, 0, "USD", 0.95),
		neighbor(3, 0, "USD", 0.95),
	}}
	e := newTestEvaluator(t, f)

	result, err := e.Evaluate(context.Background(), []float32{1}, 80, "USD")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEvaluate_StoreError(t *testing.T) {
	e := newTestEvaluator(t, &fakeFinder{err: errors.New("boom")})

	_, err := e.Evaluate(context.Background(), []float32{1}, 80, "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEvaluateListing_ExcludesSelf(t *testing.T) {
	f := &fakeFinder{neighbors: []core.Neighbor{
		neighbor(42, 80, "USD", 1.0),
		neighbor(1, 100, "USD", 0.95),
		neighbor(2, 100, "USD", 0.95),
		neighbor(3, 100, "USD", 0.95),
	}}
	e := newTestEvaluator(t, f, WithNeighbors(3))

	price := 80.0
	result, err := e.EvaluateListing(context.Background(), &core.Listing{ID: 42, Price: &price, Currency: "USD", Embedding: []float32{1}})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 4, f.lastK)
	assert.Equal(t, 3, result.NeighborCount)
	assert.Equal(t, 100.0, result.MedianPrice)
	assert.True(t, result.IsDeal())
}

func TestEvaluateListing_NoPrice(t *testing.T) {
	f := &fakeFinder{}
	e := newTestEvaluator(t, f)

	result, err := e.EvaluateListing(context.Background(), &core.Listing{ID: 1})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, f.lastK, "store not queried")
}

func TestNewEvaluator_Options(t *testing.T) {
	_, err := NewEvaluator(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewEvaluator(&fakeFinder{}, WithThresholds(0.2, 0.1))
	assert.Error(t, err)

	_, err = NewEvaluator(&fakeFinder{}, WithNeighbors(0))
	assert.Error(t, err)

	e, err := NewEvaluator(&fakeFinder{},
		WithNeighbors(5), WithSimilarityThreshold(0.7), WithMinNeighbors(2), WithThresholds(-0.1, 0.1))
	require.NoError(t, err)
	assert.Equal(t, 5, e.neighbors)
	assert.Equal(t, float32(0.7), e.minSimilarity)
	assert.Equal(t, 2, e.minNeighbors)
}

func TestEvaluate_WithBadgerStore(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	for i, text := range []string{"iPhone 13 128GB a", "iPhone 13 128GB b", "iPhone 13 128GB c"} {
		price := 500.0
		l := core.NewListing("@shop", core.Message{ID: int64(i + 1), Text: text},
			core.Attributes{Price: &price, Currency: "USD"}, []float32{1, 0, float32(i) * 0.01})
		_, err := store.Insert(ctx, l)
		require.NoError(t, err)
	}

	e := newTestEvaluator(t, store)
	result, err := e.Evaluate(ctx, []float32{1, 0, 0}, 400, "USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 500.0, result.MedianPrice)
	assert.InDelta(t, -0.2, result.Deviation, 1e-9)
	assert.True(t, result.IsDeal())
}
