package notify

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// HealthReport is a point-in-time view of the service.
type HealthReport struct {
	Counters          map[string]int64 // since the previous report
	Listings          int64
	ListingsWithPrice int64
	HeapAlloc         uint64
	Sys               uint64
	Goroutines        int
	DataDir           string
	DataDirBytes      int64 // -1 when unknown
	Uptime            time.Duration
}

// Format renders the report as Telegram-HTML.
func (r HealthReport) Format() string {
	var b strings.Builder
	b.WriteString("🏥 <b>Health Report</b>\n<pre>")
	fmt.Fprintf(&b, "Heap: %s / Sys: %s\n", humanize.IBytes(r.HeapAlloc), humanize.IBytes(r.Sys))
	fmt.Fprintf(&b, "Goroutines: %d\n", r.Goroutines)
	if r.DataDir != "" && r.DataDirBytes >= 0 {
		fmt.Fprintf(&b, "Data: %s (%s)\n", humanize.IBytes(uint64(r.DataDirBytes)), esc(r.DataDir))
	}
	fmt.Fprintf(&b, "Uptime: %s", r.Uptime.Truncate(time.Second))
	b.WriteString("</pre>\n\n")

	fmt.Fprintf(&b, "📦 Total: %d listings (%d with price)\n", r.Listings, r.ListingsWithPrice)
	fmt.Fprintf(&b, "📊 Since last report: %d seen, %d indexed, %d errors",
		r.Counters[CounterMessagesSeen], r.Counters[CounterListingsIndexed], r.Counters[CounterErrors])

	var other []string
	for _, name := range sortedNames(r.Counters) {
		switch name {
		case CounterMessagesSeen, CounterListingsIndexed, CounterErrors:
			continue
		}
		if v := r.Counters[name]; v != 0 {
			other = append(other, fmt.Sprintf("%s=%d", esc(name), v))
		}
	}
	if len(other) > 0 {
		fmt.Fprintf(&b, "\n🧮 %s", strings.Join(other, ", "))
	}
	return b.String()
}

// ListingCounter is the store capability the health reporter needs.
type ListingCounter interface {
	Count(ctx context.Context) (int64, error)
	CountWithPrice(ctx context.Context) (int64, error)
}

// HealthReporter periodically sends a HealthReport through a Notifier.
type HealthReporter struct {
	notifier *Notifier
	store    ListingCounter
	dataDir  string
	interval time.Duration
	started  time.Time
	logger   *slog.Logger
}

// HealthOption configures a HealthReporter.
type HealthOption func(*HealthReporter)

// WithInterval sets the report period. Default is six hours.
func WithInterval(d time.Duration) HealthOption {
	return func(h *HealthReporter) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithDataDir sets the directory whose size is reported.
func WithDataDir(dir string) HealthOption {
	return func(h *HealthReporter) {
		h.dataDir = dir
	}
}

// WithHealthLogger sets a custom logger.
func WithHealthLogger(logger *slog.Logger) HealthOption {
	return func(h *HealthReporter) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHealthReporter creates a reporter. store may be nil.
func NewHealthReporter(n *Notifier, store ListingCounter, opts ...HealthOption) *HealthReporter {
	h := &HealthReporter{
		notifier: n,
		store:    store,
		interval: 6 * time.Hour,
		started:  time.Now(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "health")
	return h
}

// Collect gathers a report and resets the notifier counters.
func (h *HealthReporter) Collect(ctx context.Context) HealthReport {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	r := HealthReport{
		Counters:     h.notifier.Counters().SnapshotAndReset(),
		HeapAlloc:    mem.HeapAlloc,
		Sys:          mem.Sys,
		Goroutines:   runtime.NumGoroutine(),
		DataDir:      h.dataDir,
		DataDirBytes: -1,
		Uptime:       time.Since(h.started),
	}

	if h.store != nil {
		var err error
		if r.Listings, err = h.store.Count(ctx); err != nil {
			h.logger.Warn("error counting listings", "err", err)
		}
		if r.ListingsWithPrice, err = h.store.CountWithPrice(ctx); err != nil {
			h.logger.Warn("error counting priced listings", "err", err)
		}
	}

	if h.dataDir != "" {
		size, err := dirSize(h.dataDir)
		if err != nil {
			h.logger.Warn("error measuring data directory", "dir", h.dataDir, "err", err)
		} else {
			r.DataDirBytes = size
		}
	}
	return r
}

// Run sends a report every interval until ctx is cancelled.
func (h *HealthReporter) Run(ctx context.Context) error {
	if !h.notifier.Enabled() {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.notifier.Health(h.Collect(ctx))
		}
	}
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
