package ingestion

import (
	"log/slog"
	"sync"
	"time"
)

// ProgressTracker tracks and logs progress of long-running operations such
// as backfills.
type ProgressTracker struct {
	logger         *slog.Logger
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	finishTime     time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// total: total number of items to process
// reportInterval: log progress every N items
func NewProgressTracker(logger *slog.Logger, total, reportInterval int) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		logger:         logger,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.finishTime = time.Time{}
	p.started = true
	p.current = 0
	p.lastReported = 0
}

// Increment increases the current progress by the specified amount.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current += delta
	if p.current > p.total {
		p.current = p.total
	}

	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Current returns the number of items processed so far.
func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish marks the operation as complete and logs final progress.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current = p.total
	p.report()
	p.started = false
	p.finishTime = time.Now()
}

// Elapsed returns the time elapsed since Start was called, or the total
// duration once Finish was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.started:
		return time.Since(p.startTime)
	case !p.finishTime.IsZero():
		return p.finishTime.Sub(p.startTime)
	}
	return 0
}

// report logs the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(p.current) / secs
	}

	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	p.logger.Info("progress",
		"current", p.current,
		"total", p.total,
		"percent", percentage,
		"per_second", rate)
}
