package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sendTimeout bounds a single delivery.
const sendTimeout = 10 * time.Second

// Notifier queues events for asynchronous, rate-limited delivery.
type Notifier struct {
	transport     Transport
	queueSize     int
	limiter       *rate.Limiter
	flushInterval time.Duration
	drainTimeout  time.Duration
	clock         func() time.Time
	counters      *Counters
	logger        *slog.Logger

	queue    chan Event
	draining chan struct{}

	errMu     sync.Mutex
	errCount  int
	errGroups map[string]int
	lastErr   errorEntry

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopped     bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithQueueSize sets the queue capacity. Default is 100.
func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queueSize = size
		}
	}
}

// WithRate sets the delivery rate. Default is one message per second.
func WithRate(limit rate.Limit) Option {
	return func(n *Notifier) {
		n.limiter = rate.NewLimiter(limit, 1)
	}
}

// WithFlushInterval sets how often buffered errors are sent.
// Default is 60 seconds.
func WithFlushInterval(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.flushInterval = d
		}
	}
}

// WithDrainTimeout bounds how long Stop keeps delivering queued events.
// Default is 5 seconds.
func WithDrainTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.drainTimeout = d
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCounters shares an existing counter set.
func WithCounters(c *Counters) Option {
	return func(n *Notifier) {
		if c != nil {
			n.counters = c
		}
	}
}

// New creates a notifier delivering through transport. A nil transport
// yields a disabled notifier.
func New(transport Transport, opts ...Option) *Notifier {
	n := &Notifier{
		transport:     transport,
		queueSize:     100,
		limiter:       rate.NewLimiter(rate.Every(time.Second), 1),
		flushInterval: 60 * time.Second,
		drainTimeout:  5 * time.Second,
		clock:         time.Now,
		counters:      &Counters{},
		logger:        slog.Default(),
		errGroups:     make(map[string]int),
		draining:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.queue = make(chan Event, n.queueSize)
	n.logger = n.logger.With("component", "notifier")
	return n
}

// Enabled reports whether events are delivered anywhere.
func (n *Notifier) Enabled() bool {
	return n != nil && n.transport != nil
}

// Counters returns the notifier's counter set.
func (n *Notifier) Counters() *Counters {
	return n.counters
}

// Count increments a pipeline counter.
func (n *Notifier) Count(name string, delta int64) {
	if !n.Enabled() {
		return
	}
	n.counters.Add(name, delta)
}

// Start launches the delivery and error flush loops. They stop when ctx is
// cancelled or Stop is called.
func (n *Notifier) Start(ctx context.Context) {
	if !n.Enabled() {
		return
	}

	n.lifecycleMu.Lock()
	defer n.lifecycleMu.Unlock()
	if n.cancel != nil || n.stopped {
		return
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(2)
	go n.deliverLoop(ctx)
	go n.flushLoop(ctx)
}

// Stop flushes buffered errors and keeps delivering queued events until the
// queue is empty or the drain timeout passes. It then stops the background
// loops and closes the transport.
func (n *Notifier) Stop() error {
	if !n.Enabled() {
		return nil
	}

	n.lifecycleMu.Lock()
	if n.stopped {
		n.lifecycleMu.Unlock()
		return nil
	}
	n.stopped = true
	cancel := n.cancel
	n.lifecycleMu.Unlock()

	if cancel != nil {
		n.FlushErrors()
		close(n.draining)
		deadline := time.AfterFunc(n.drainTimeout, cancel)
		n.wg.Wait()
		deadline.Stop()
		cancel()
	}
	return n.transport.Close()
}

// Pending returns the number of queued events.
func (n *Notifier) Pending() int {
	if !n.Enabled() {
		return 0
	}
	return len(n.queue)
}

// Startup announces that service started.
func (n *Notifier) Startup(service string) {
	if !n.Enabled() {
		return
	}
	n.enqueue(KindStartup, formatLifecycle(service, "started", "🟢", n.clock()))
}

// Shutdown announces that service is stopping.
func (n *Notifier) Shutdown(service string) {
	if !n.Enabled() {
		return
	}
	n.enqueue(KindShutdown, formatLifecycle(service, "stopping", "🔴", n.clock()))
}

// NewListing reports a newly indexed listing.
func (n *Notifier) NewListing(e ListingEvent) {
	if !n.Enabled() {
		return
	}
	n.counters.Add(CounterListingsIndexed, 1)
	n.enqueue(KindNewListing, formatListing(e))
}

// Deal reports a listing priced well below its neighbours.
func (n *Notifier) Deal(e DealEvent) {
	if !n.Enabled() {
		return
	}
	n.counters.Add(CounterDeals, 1)
	n.enqueue(KindDeal, formatDeal(e))
}

// Search reports an executed search.
func (n *Notifier) Search(e SearchEvent) {
	if !n.Enabled() {
		return
	}
	n.enqueue(KindSearch, formatSearch(e))
}

// Alert sends an operational alert.
func (n *Notifier) Alert(msg string) {
	if !n.Enabled() {
		return
	}
	n.enqueue(KindAlert, formatAlert(msg))
}

// Health sends a health report.
func (n *Notifier) Health(r HealthReport) {
	if !n.Enabled() {
		return
	}
	n.enqueue(KindHealth, r.Format())
}

// Error buffers err, raised in the named context, for the next flush.
func (n *Notifier) Error(where string, err error) {
	if !n.Enabled() || err == nil {
		return
	}
	n.counters.Add(CounterErrors, 1)

	entry := errorEntry{
		context: where,
		message: truncate(err.Error(), maxErrorRunes),
		at:      n.clock(),
	}

	n.errMu.Lock()
	n.errCount++
	n.errGroups[where]++
	n.lastErr = entry
	n.errMu.Unlock()
}

// FlushErrors enqueues the buffered errors: a detailed message for a single
// error, a grouped summary for several. Reports whether anything was
// buffered.
func (n *Notifier) FlushErrors() bool {
	if !n.Enabled() {
		return false
	}

	n.errMu.Lock()
	count, groups, last := n.errCount, n.errGroups, n.lastErr
	n.errCount = 0
	n.errGroups = make(map[string]int)
	n.lastErr = errorEntry{}
	n.errMu.Unlock()

	switch {
	case count == 0:
		return false
	case count == 1:
		n.enqueue(KindError, formatSingleError(last))
	default:
		n.enqueue(KindError, formatErrorSummary(count, groups, last, n.flushInterval))
	}
	return true
}

func (n *Notifier) enqueue(kind EventKind, text string) {
	ev := Event{Kind: kind, Text: text, Time: n.clock()}
	select {
	case n.queue <- ev:
	default:
		n.counters.Add(CounterNotifyDropped, 1)
		n.logger.Warn("notifier queue full, dropping message", "kind", kind)
	}
}

func (n *Notifier) deliverLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			if !n.deliver(ctx, ev) {
				return
			}
		case <-n.draining:
			for {
				select {
				case ev := <-n.queue:
					if !n.deliver(ctx, ev) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// deliver sends one event once the rate allows. It reports false when ctx
// ended first.
func (n *Notifier) deliver(ctx context.Context, ev Event) bool {
	if err := n.limiter.Wait(ctx); err != nil {
		n.counters.Add(CounterNotifyDropped, 1)
		return false
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err := n.transport.Send(sendCtx, ev)
	cancel()
	if err != nil {
		n.counters.Add(CounterNotifyFailed, 1)
		n.logger.Warn("notification delivery failed", "kind", ev.Kind, "err", err)
	}
	return true
}

func (n *Notifier) flushLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.draining:
			return
		case <-ticker.C:
			n.FlushErrors()
		}
	}
}
