// Package server exposes search, valuation and ingestion statistics over
// HTTP for front-ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/search"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLimit = 5
	maxLimit     = 20
)

// Searcher answers queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) *search.Result
	Valuate(ctx context.Context, query, currency string) (*search.PriceEstimate, error)
}

// StatsSource reports ingestion totals.
type StatsSource interface {
	Count(ctx context.Context) (int64, error)
	CountWithPrice(ctx context.Context) (int64, error)
	ListSourceStats(ctx context.Context) ([]*core.SourceStats, error)
}

// Server serves the HTTP query surface.
type Server struct {
	searcher        Searcher
	stats           StatsSource
	addr            string
	corsOrigins     []string
	shutdownTimeout time.Duration
	logger          *slog.Logger
	router          chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithCORSOrigins sets the origins allowed to call the API.
// Default allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server.
func New(searcher Searcher, stats StatsSource, opts ...Option) *Server {
	s := &Server{
		searcher:        searcher,
		stats:           stats,
		addr:            ":8080",
		corsOrigins:     []string{"*"},
		shutdownTimeout: 10 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), s.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/search", s.handleSearch)
	r.Get("/valuate", s.handleValuate)
	r.Get("/stats", s.handleStats)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	result := s.searcher.Search(r.Context(), query, limit)
	resp := searchResponse{
		Query:     query,
		ElapsedMS: result.Elapsed.Milliseconds(),
		Fallback:  result.Fallback,
		Results:   make([]listingJSON, 0, len(result.Listings)),
	}
	for _, l := range result.Listings {
		resp.Results = append(resp.Results, toListingJSON(l))
	}
	s.logger.Debug("search served", "query", query, "results", len(resp.Results))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValuate(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	estimate, err := s.searcher.Valuate(r.Context(), query, r.URL.Query().Get("currency"))
	if err != nil {
		s.logger.Error("valuation failed", "query", query, "err", err)
		writeError(w, http.StatusInternalServerError, "valuation failed")
		return
	}
	if estimate == nil {
		writeError(w, http.StatusNotFound, "not enough comparable listings")
		return
	}

	resp := valuationResponse{
		Query:       query,
		Median:      estimate.Median,
		Mean:        estimate.Mean,
		Min:         estimate.Min,
		Max:         estimate.Max,
		SpreadPct:   estimate.SpreadPct,
		Currency:    estimate.Currency,
		SampleCount: estimate.SampleCount,
		Samples:     make([]listingJSON, 0, len(estimate.Samples)),
	}
	for _, n := range estimate.Samples {
		item := toListingJSON(n.Listing)
		item.Similarity = n.Similarity
		resp.Samples = append(resp.Samples, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := s.stats.Count(ctx)
	if err != nil {
		s.logger.Error("count failed", "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	withPrice, err := s.stats.CountWithPrice(ctx)
	if err != nil {
		s.logger.Error("count with price failed", "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	sources, err := s.stats.ListSourceStats(ctx)
	if err != nil {
		s.logger.Error("list source stats failed", "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	resp := statsResponse{
		Listings:          total,
		ListingsWithPrice: withPrice,
		Sources:           make([]sourceJSON, 0, len(sources)),
	}
	for _, st := range sources {
		item := sourceJSON{
			Source:        st.SourceID,
			TotalIndexed:  st.TotalIndexed,
			LastMessageID: st.LastMessageID,
		}
		if !st.LastScrapedAt.IsZero() {
			item.LastScrapedAt = st.LastScrapedAt.UTC().Format(time.RFC3339)
		}
		resp.Sources = append(resp.Sources, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
