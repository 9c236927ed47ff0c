package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	lastLimit    int
	lastCurrency string
	estimate     *search.PriceEstimate
	valuateErr   error
}

func (f *fakeSearcher) Search(_ context.Context, query string, limit int) *search.Result {
	f.lastLimit = limit
	price := 450.0
	l := core.NewListing("@shop", core.Message{ID: 101, Text: query, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		core.Attributes{Title: "iPhone 13", Price: &price, Currency: "USD"}, []float32{1})
	return &search.Result{Listings: []*core.Listing{l}, Elapsed: 12 * time.Millisecond}
}

func (f *fakeSearcher) Valuate(_ context.Context, _, currency string) (*search.PriceEstimate, error) {
	f.lastCurrency = currency
	return f.estimate, f.valuateErr
}

type fakeStats struct {
	err error
}

func (f fakeStats) Count(context.Context) (int64, error) { return 12, f.err }

func (f fakeStats) CountWithPrice(context.Context) (int64, error) { return 7, nil }

func (f fakeStats) ListSourceStats(context.Context) ([]*core.SourceStats, error) {
	return []*core.SourceStats{
		{SourceID: "@shop", TotalIndexed: 12, LastMessageID: 340, LastScrapedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
	}, nil
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	srv := New(&fakeSearcher{}, fakeStats{})
	rec, body := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	srv := New(searcher, fakeStats{})

	rec, body := get(t, srv.Handler(), "/search?q=ayfon+13")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, defaultLimit, searcher.lastLimit)
	assert.Equal(t, "ayfon 13", body["query"])
	assert.EqualValues(t, 12, body["elapsed_ms"])

	results := body["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "@shop:101", first["id"])
	assert.Equal(t, "https://t.me/shop/101", first["link"])
	assert.Equal(t, "iPhone 13", first["title"])
	assert.EqualValues(t, 450, first["price"])
	assert.Equal(t, "2025-03-01T00:00:00Z", first["posted_at"])
}

func TestSearch_Validation(t *testing.T) {
	searcher := &fakeSearcher{}
	srv := New(searcher, fakeStats{})

	rec, _ := get(t, srv.Handler(), "/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, srv.Handler(), "/search?q=x&limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, srv.Handler(), "/search?q=x&limit=500")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxLimit, searcher.lastLimit)
}

func TestValuate(t *testing.T) {
	price := 500.0
	sample := core.NewListing("@shop", core.Message{ID: 7, Text: "iPhone 13"},
		core.Attributes{Price: &price, Currency: "USD"}, []float32{1})
	searcher := &fakeSearcher{estimate: &search.PriceEstimate{
		Median: 500, Mean: 510, Min: 450, Max: 600, SpreadPct: 0.3, Currency: "USD", SampleCount: 4,
		Samples: []core.Neighbor{{Listing: sample, Similarity: 0.93}},
	}}
	srv := New(searcher, fakeStats{})

	rec, body := get(t, srv.Handler(), "/valuate?q=iphone+13&currency=usd")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usd", searcher.lastCurrency)
	assert.EqualValues(t, 500, body["median"])
	assert.EqualValues(t, 4, body["sample_count"])
	samples := body["samples"].([]any)
	require.Len(t, samples, 1)
	assert.InDelta(t, 0.93, samples[0].(map[string]any)["similarity"], 1e-6)
}

func TestValuate_NotEnoughData(t *testing.T) {
	srv := New(&fakeSearcher{}, fakeStats{})
	rec, body := get(t, srv.Handler(), "/valuate?q=rare+thing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not enough comparable listings", body["error"])
}

func TestValuate_Error(t *testing.T) {
	srv := New(&fakeSearcher{valuateErr: errors.New("store offline")}, fakeStats{})
	rec, _ := get(t, srv.Handler(), "/valuate?q=x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStats(t *testing.T) {
	srv := New(&fakeSearcher{}, fakeStats{})
	rec, body := get(t, srv.Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 12, body["listings"])
	assert.EqualValues(t, 7, body["listings_with_price"])

	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	src := sources[0].(map[string]any)
	assert.Equal(t, "@shop", src["source"])
	assert.EqualValues(t, 340, src["last_message_id"])
	assert.Equal(t, "2025-03-01T08:00:00Z", src["last_scraped_at"])

	srv = New(&fakeSearcher{}, fakeStats{err: errors.New("down")})
	rec, _ = get(t, srv.Handler(), "/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORS(t *testing.T) {
	srv := New(&fakeSearcher{}, fakeStats{}, WithCORSOrigins("https://app.example"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := New(&fakeSearcher{}, fakeStats{}, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
