package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shaxb/tele-google/ai"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/deal"
	"github.com/shaxb/tele-google/notify"
	"github.com/shaxb/tele-google/registry"
	"github.com/shaxb/tele-google/storage"
)

// DealEvaluator scores a stored listing's price against similar listings.
type DealEvaluator interface {
	EvaluateListing(ctx context.Context, l *core.Listing) (*deal.Result, error)
}

// Pipeline orchestrates the ingestion and processing of marketplace posts.
// It manages concurrent classification, embedding and deal evaluation.
type Pipeline struct {
	store      storage.ListingStore
	stats      storage.SourceStatsStore
	embedder   ai.Embedder
	classifier ai.Classifier
	evaluator  DealEvaluator
	notifier   *notify.Notifier

	processPool *ants.Pool
	dealPool    *ants.Pool
	tasks       sync.WaitGroup

	queueSize         int
	callTimeout       time.Duration
	reconcileInterval time.Duration
	backfillDelay     time.Duration
	sourcePause       time.Duration
	rewatchDelay      time.Duration
	authCooldown      time.Duration
	connectors        []Connector
	registry          registry.Registry
	logger            *slog.Logger

	// Background work started by Reconcile lives under root.
	root     context.Context
	stopRoot context.CancelFunc
	workers  sync.WaitGroup
	fatal    chan error

	// active is owned by Reconcile; dispatch reads go through the sync.Maps.
	reconcileMu sync.Mutex
	active      map[string]*activeSource
	loaded      bool
	retry       bool
	nextConn    int
	queues      sync.Map // sourceID -> *activeSource
	chats       sync.Map // chat ID -> sourceID
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pools
		p.releasePools()

		processPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		dealPool, err := ants.NewPool(size, ants.WithNonblocking(true))
		if err != nil {
			processPool.Release()
			return err
		}

		p.processPool = processPool
		p.dealPool = dealPool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithQueueSize sets the capacity of each source's message queue.
// Default is 64.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		if size > 0 {
			p.queueSize = size
		}
		return nil
	}
}

// WithCallTimeout bounds every classifier, embedder and deal call.
// Default is 60 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d > 0 {
			p.callTimeout = d
		}
		return nil
	}
}

// WithReconcileInterval sets how often the registry is checked for changes.
// Default is 30 seconds.
func WithReconcileInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d > 0 {
			p.reconcileInterval = d
		}
		return nil
	}
}

// WithBackfillDelay sets the pause between backfilled messages and between
// backfilled sources. Defaults are 500ms and 2s.
func WithBackfillDelay(perMessage, perSource time.Duration) Option {
	return func(p *Pipeline) error {
		if perMessage >= 0 {
			p.backfillDelay = perMessage
		}
		if perSource >= 0 {
			p.sourcePause = perSource
		}
		return nil
	}
}

// WithAuthCooldown sets how long RunWithCooldown waits after a fatal error.
// Default is 300 seconds.
func WithAuthCooldown(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d >= 0 {
			p.authCooldown = d
		}
		return nil
	}
}

// WithConnectors sets the connections sources are distributed over.
func WithConnectors(connectors ...Connector) Option {
	return func(p *Pipeline) error {
		p.connectors = append(p.connectors[:0], connectors...)
		return nil
	}
}

// WithRegistry sets the source registry followed by Run and Reconcile.
func WithRegistry(r registry.Registry) Option {
	return func(p *Pipeline) error {
		p.registry = r
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. evaluator and notifier may
// be nil.
func NewPipeline(
	store storage.ListingStore,
	stats storage.SourceStatsStore,
	provider ai.AIProvider,
	evaluator DealEvaluator,
	notifier *notify.Notifier,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if stats == nil {
		return nil, ErrStatsStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if notifier == nil {
		notifier = notify.New(nil)
	}

	p := &Pipeline{
		store:             store,
		stats:             stats,
		embedder:          provider.Embedder(),
		classifier:        provider.Classifier(),
		evaluator:         evaluator,
		notifier:          notifier,
		queueSize:         64,
		callTimeout:       60 * time.Second,
		reconcileInterval: 30 * time.Second,
		backfillDelay:     500 * time.Millisecond,
		sourcePause:       2 * time.Second,
		rewatchDelay:      5 * time.Second,
		authCooldown:      300 * time.Second,
		logger:            slog.Default(),
		fatal:             make(chan error, 1),
		active:            make(map[string]*activeSource),
	}
	p.root, p.stopRoot = context.WithCancel(context.Background())

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	if err := WithPoolSize(poolSize)(p); err != nil {
		return nil, err
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Process runs one message through dedup, classification, embedding and
// persistence. An empty sourceID is resolved from the chat mapping. Only
// context cancellation is returned; every other failure is logged and
// reported to the notifier.
func (p *Pipeline) Process(ctx context.Context, msg core.Message, sourceID string) error {
	_, err := p.process(ctx, msg, sourceID)
	return err
}

// process is Process reporting whether a listing was inserted.
func (p *Pipeline) process(ctx context.Context, msg core.Message, sourceID string) (bool, error) {
	if sourceID == "" {
		sourceID = p.sourceFor(msg)
	}
	logger := p.logger.With("trace_id", uuid.NewString(), "source", sourceID, "message_id", msg.ID)
	if sourceID == "" {
		logger.Debug("discarding message from unmapped chat", "chat_id", msg.ChatID)
		return false, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.notifier.Count(notify.CounterMessagesSeen, 1)

	exists, err := p.store.Exists(ctx, sourceID, msg.ID)
	if err != nil {
		return false, p.fail(ctx, logger, "exists", err)
	}
	if exists {
		logger.Debug("message already indexed")
		return false, nil
	}

	start := time.Now()
	verdict, err := p.classify(ctx, text)
	if err != nil {
		return false, p.fail(ctx, logger, "classify", err)
	}
	if verdict == nil || !verdict.IsListing {
		logger.Debug("message is not a listing")
		p.notifier.Count(notify.CounterMessagesSkipped, 1)
		return false, nil
	}
	elapsed := time.Since(start)

	embedding, err := p.embed(ctx, text)
	if err != nil {
		return false, p.fail(ctx, logger, "embed", err)
	}

	msg.Text = text
	listing := core.NewListing(sourceID, msg, verdict.Attributes, embedding)
	listing.Confidence = verdict.Confidence
	listing.ProcessingTime = elapsed
	if verdict.Elapsed > 0 {
		listing.ProcessingTime = verdict.Elapsed
	}

	stored, err := p.store.Insert(ctx, listing)
	if errors.Is(err, storage.ErrDuplicateKey) {
		logger.Debug("concurrent insert won the race")
		p.notifier.Count(notify.CounterDuplicates, 1)
		return false, nil
	}
	if err != nil {
		return false, p.fail(ctx, logger, "insert", err)
	}

	logger.Info("indexed listing",
		"id", stored.ID,
		"title", stored.Title(),
		"confidence", stored.Confidence,
		"elapsed", stored.ProcessingTime)
	p.notifier.NewListing(notify.ListingEventFrom(stored))

	if err := p.stats.UpsertSourceStats(ctx, sourceID, msg.ID); err != nil {
		logger.Warn("error updating source stats", "err", err)
		p.notifier.Error("stats", err)
	}

	if stored.Price != nil && *stored.Price > 0 && stored.Currency != "" {
		p.submitDeal(stored, logger)
	}
	return true, nil
}

// fail logs and reports err. It returns the context error when ctx ended,
// so callers stop instead of reporting shutdown noise.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logger.Error("error processing message", "stage", stage, "err", err)
	p.notifier.Error(stage, err)
	return nil
}

func (p *Pipeline) classify(ctx context.Context, text string) (*ai.Classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.classifier.ClassifyAndExtract(callCtx, text)
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	embedding, err := p.embedder.EmbedText(callCtx, text)
	if err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, ai.ErrEmptyResponse
	}
	return embedding, nil
}

// submitDeal evaluates l on the deal pool. When the pool is saturated the
// evaluation is skipped.
func (p *Pipeline) submitDeal(l *core.Listing, logger *slog.Logger) {
	if p.evaluator == nil {
		return
	}

	p.tasks.Add(1)
	err := p.dealPool.Submit(func() {
		defer p.tasks.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.callTimeout)
		defer cancel()

		result, err := p.evaluator.EvaluateListing(ctx, l)
		if err != nil {
			logger.Warn("deal evaluation failed", "err", err)
			return
		}
		if result == nil {
			logger.Debug("not enough comparable listings for deal evaluation")
			return
		}

		if err := p.store.UpdateDealScore(ctx, l.ID, result.Deviation); err != nil {
			logger.Warn("error storing deal score", "err", err)
			return
		}
		if result.IsDeal() {
			logger.Info("deal detected",
				"title", l.Title(),
				"price", *l.Price,
				"median", result.MedianPrice,
				"deviation", result.Deviation)
			p.notifier.Deal(notify.DealEvent{
				Title:     l.Title(),
				Price:     *l.Price,
				Currency:  l.Currency,
				Median:    result.MedianPrice,
				Deviation: result.Deviation,
				Link:      l.MessageLink,
			})
		}
	})
	if err != nil {
		p.tasks.Done()
		logger.Debug("deal evaluation skipped", "err", err)
	}
}

// Wait blocks until submitted processing and deal evaluations finish.
func (p *Pipeline) Wait() {
	p.tasks.Wait()
}

// Release stops background work, waits for in-flight tasks and releases
// the worker pools. The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.stopRoot != nil {
		p.stopRoot()
	}
	p.workers.Wait()
	p.tasks.Wait()
	p.releasePools()
}

func (p *Pipeline) releasePools() {
	if p.processPool != nil {
		p.processPool.Release()
	}
	if p.dealPool != nil {
		p.dealPool.Release()
	}
}
