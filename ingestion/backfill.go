package ingestion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shaxb/tele-google/core"
	"golang.org/x/time/rate"
)

// Backfill processes the history of one source: up to limit messages with
// IDs above minID, oldest first, paced by the backfill delay. It returns the
// number of listings inserted.
func (p *Pipeline) Backfill(ctx context.Context, sourceID string, limit int, minID int64) (int, error) {
	if len(p.connectors) == 0 {
		return 0, ErrConnectorRequired
	}
	id := core.NormalizeSourceID(sourceID)
	conn := p.connectors[0]
	logger := p.logger.With("source", id, "connector", conn.Name())

	resolveCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	chat, err := conn.Resolve(resolveCtx, id)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnknownSource, id, err)
	}

	msgs, err := conn.History(ctx, chat, limit, minID)
	if err != nil {
		return 0, fmt.Errorf("history of %s: %w", id, err)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	logger.Info("backfilling source", "messages", len(msgs), "min_id", minID)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.backfillDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.backfillDelay), 1)
	}

	progress := NewProgressTracker(logger, len(msgs), max(1, len(msgs)/10))
	progress.Start()

	inserted := 0
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Text) == "" {
			progress.Increment(1)
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return inserted, err
		}
		ok, err := p.process(ctx, msg, id)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
		progress.Increment(1)
	}
	progress.Finish()

	logger.Info("backfill complete", "inserted", inserted, "elapsed", progress.Elapsed())
	return inserted, nil
}

// BackfillAll backfills every registry source in turn, pausing between
// sources. A failing source is logged and skipped.
func (p *Pipeline) BackfillAll(ctx context.Context, limit int, minID int64) (int, error) {
	if p.registry == nil {
		return 0, ErrRegistryRequired
	}
	ids, err := p.registry.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load registry: %w", err)
	}

	total := 0
	for i, id := range ids {
		if i > 0 && p.sourcePause > 0 {
			timer := time.NewTimer(p.sourcePause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return total, ctx.Err()
			case <-timer.C:
			}
		}

		n, err := p.Backfill(ctx, id, limit, minID)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			p.logger.Error("error backfilling source", "source", id, "err", err)
			p.notifier.Error("backfill", err)
		}
	}
	return total, nil
}
