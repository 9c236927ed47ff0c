package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	telegoogle "github.com/shaxb/tele-google"
	"github.com/shaxb/tele-google/config"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/ingestion"
	"github.com/shaxb/tele-google/notify"
	"github.com/shaxb/tele-google/server"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const crawlerName = "crawler"

// env holds what every command opens from configuration.
type env struct {
	cfg *config.Config
	svc *telegoogle.Service
}

func openEnv(ctx context.Context, c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	svc, err := telegoogle.OpenService(ctx, cfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return &env{cfg: cfg, svc: svc}, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func queryArg(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", errors.New("query is required")
	}
	return query, nil
}

func crawlCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.svc.Close()

	reg, closeRegistry, err := telegoogle.OpenRegistry(ctx, e.cfg.Registry, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer closeRegistry()

	opts := append(e.cfg.Pipeline.Options(),
		ingestion.WithConnectors(e.cfg.Preview.Connectors()...),
		ingestion.WithRegistry(reg))
	pipeline, err := e.svc.NewPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	// The notifier outlives the signal so the shutdown event is delivered
	// when the service closes.
	notifier := e.svc.Notifier()
	notifier.Start(context.WithoutCancel(ctx))
	notifier.Startup(crawlerName)
	defer notifier.Shutdown(crawlerName)

	health := e.svc.NewHealthReporter(notify.WithInterval(e.cfg.Notify.HealthInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return health.Run(gctx) })
	g.Go(func() error { return pipeline.RunWithCooldown(gctx) })
	return g.Wait()
}

func backfillCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	limit := c.Int("limit")
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.svc.Close()

	opts := append(e.cfg.Pipeline.Options(), ingestion.WithConnectors(e.cfg.Preview.Connectors()...))

	source := c.String("source")
	if source == "" {
		reg, closeRegistry, err := telegoogle.OpenRegistry(ctx, e.cfg.Registry, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to open registry: %w", err)
		}
		defer closeRegistry()
		opts = append(opts, ingestion.WithRegistry(reg))
	}

	pipeline, err := e.svc.NewPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	if err := pipeline.Connect(ctx); err != nil {
		return err
	}

	var inserted int
	if source != "" {
		inserted, err = pipeline.Backfill(ctx, source, limit, c.Int64("min-id"))
	} else {
		inserted, err = pipeline.BackfillAll(ctx, limit, c.Int64("min-id"))
	}
	pipeline.Wait()

	fmt.Fprintf(c.App.Writer, "Indexed %s new listings\n", humanize.Comma(int64(inserted)))
	return err
}

func searchCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.svc.Close()

	engine, err := e.svc.NewEngine("cli", e.cfg.Search.Options()...)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	result := engine.Search(ctx, query, c.Int("limit"))
	printListings(c, result.Listings)
	if result.Fallback {
		fmt.Fprintln(c.App.Writer, "(reranking unavailable, showing closest matches)")
	}
	fmt.Fprintf(c.App.Writer, "%d results in %s\n", len(result.Listings), result.Elapsed.Round(time.Millisecond))
	return nil
}

func printListings(c *cli.Context, listings []*core.Listing) {
	w := c.App.Writer
	for i, l := range listings {
		price := "no price"
		if l.Price != nil {
			price = humanize.CommafWithDigits(*l.Price, 2) + " " + l.Currency
		}
		fmt.Fprintf(w, "%d. %s | %s | %s\n", i+1, l.Title(), price, humanize.Time(l.CreatedAt))
		fmt.Fprintf(w, "   %s\n", l.MessageLink)
	}
}

func valuateCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.svc.Close()

	engine, err := e.svc.NewEngine("cli", e.cfg.Search.Options()...)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	estimate, err := engine.Valuate(ctx, query, c.String("currency"))
	if err != nil {
		return err
	}
	w := c.App.Writer
	if estimate == nil {
		fmt.Fprintln(w, "Not enough data to estimate a price")
		return nil
	}

	fmt.Fprintf(w, "Median: %s %s\n", humanize.CommafWithDigits(estimate.Median, 2), estimate.Currency)
	fmt.Fprintf(w, "Range:  %s - %s (spread %.0f%%)\n",
		humanize.CommafWithDigits(estimate.Min, 2),
		humanize.CommafWithDigits(estimate.Max, 2),
		estimate.SpreadPct*100)
	fmt.Fprintf(w, "Based on %d listings\n", estimate.SampleCount)
	for _, s := range estimate.Samples {
		fmt.Fprintf(w, "  %s  %s (%.2f)\n", s.Listing.MessageLink, s.Listing.Title(), s.Similarity)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.svc.Close()

	engine, err := e.svc.NewEngine("http", e.cfg.Search.Options()...)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	addr := c.String("addr")
	if addr == "" {
		addr = e.cfg.Server.Addr
	}

	e.svc.Notifier().Start(context.WithoutCancel(ctx))
	srv := server.New(engine, e.svc.Store(),
		server.WithAddr(addr),
		server.WithCORSOrigins(e.cfg.Server.CORSOrigins...),
		server.WithLogger(slog.Default()))
	return srv.Run(ctx)
}
