package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shaxb/tele-google/core"
)

// ReconcileResult lists the sources a Reconcile call changed.
type ReconcileResult struct {
	Added   []string
	Removed []string
	Failed  []string // Could not be resolved; retried on the next call
}

// Changed reports whether anything was added or removed.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Reconcile brings the watched sources in line with the registry. Removed
// sources stop being watched; added sources are assigned round-robin to the
// connectors, resolved and watched. When the registry did not change since
// the last call and nothing failed to resolve, Reconcile does nothing.
func (p *Pipeline) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	if p.registry == nil {
		return result, ErrRegistryRequired
	}
	if len(p.connectors) == 0 {
		return result, ErrConnectorRequired
	}

	p.reconcileMu.Lock()
	defer p.reconcileMu.Unlock()

	if p.loaded && !p.retry {
		changed, err := p.registry.Changed(ctx)
		if err != nil {
			return result, fmt.Errorf("check registry: %w", err)
		}
		if !changed {
			return result, nil
		}
	}

	ids, err := p.registry.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("load registry: %w", err)
	}
	p.loaded = true

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	for id, src := range p.active {
		if _, ok := wanted[id]; ok {
			continue
		}
		p.stopSource(id, src)
		result.Removed = append(result.Removed, id)
	}
	sort.Strings(result.Removed)

	for _, id := range ids {
		if _, ok := p.active[id]; ok {
			continue
		}
		if err := p.startSource(ctx, id); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			p.logger.Warn("error resolving source", "source", id, "err", err)
			p.notifier.Error("resolve", err)
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Added = append(result.Added, id)
	}
	p.retry = len(result.Failed) > 0

	if result.Changed() || len(result.Failed) > 0 {
		p.logger.Info("reconciled sources",
			"added", result.Added,
			"removed", result.Removed,
			"failed", result.Failed,
			"active", len(p.active))
	}
	return result, nil
}

// startSource resolves id on the next connector and starts its queue,
// drain goroutine and watcher. Must be called with reconcileMu held.
func (p *Pipeline) startSource(ctx context.Context, id string) error {
	conn := p.connectors[p.nextConn%len(p.connectors)]
	p.nextConn++

	resolveCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	chat, err := conn.Resolve(resolveCtx, id)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %s via %s: %w", ErrUnknownSource, id, conn.Name(), err)
	}
	chat.SourceID = id

	srcCtx, stop := context.WithCancel(p.root)
	src := &activeSource{
		chat:      chat,
		connector: conn,
		queue:     make(chan core.Message, p.queueSize),
		cancel:    stop,
		drained:   make(chan struct{}),
		watched:   make(chan struct{}),
	}
	p.active[id] = src
	p.queues.Store(id, src)
	if chat.ID != 0 {
		p.chats.Store(chat.ID, id)
	}

	p.workers.Add(2)
	go func() {
		defer p.workers.Done()
		p.drain(srcCtx, src)
	}()
	go func() {
		defer p.workers.Done()
		p.watch(srcCtx, src)
	}()

	p.logger.Debug("watching source", "source", id, "chat_id", chat.ID, "connector", conn.Name())
	return nil
}

// stopSource stops watching a source. Processing already submitted to the
// pool completes. Must be called with reconcileMu held.
func (p *Pipeline) stopSource(id string, src *activeSource) {
	delete(p.active, id)
	p.queues.Delete(id)
	if src.chat.ID != 0 {
		p.chats.Delete(src.chat.ID)
	}
	src.cancel()
	<-src.drained
	<-src.watched
}

// stopSources stops every watched source and forgets the loaded set.
func (p *Pipeline) stopSources() {
	p.reconcileMu.Lock()
	defer p.reconcileMu.Unlock()
	for id, src := range p.active {
		p.stopSource(id, src)
	}
	p.loaded = false
}

// watch keeps the connector's watch running for src until ctx is done.
// ErrUnauthorized is reported to Run and ends the watch.
func (p *Pipeline) watch(ctx context.Context, src *activeSource) {
	defer close(src.watched)
	logger := p.logger.With("source", src.chat.SourceID, "connector", src.connector.Name())

	for {
		err := src.connector.Watch(ctx, src.chat, func(msg core.Message) {
			p.enqueue(src, msg)
		})
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			logger.Error("connector lost authorization", "err", err)
			select {
			case p.fatal <- err:
			default:
			}
			return
		}
		if err != nil {
			logger.Warn("watch ended with error", "err", err)
			p.notifier.Error("watch", err)
		}

		timer := time.NewTimer(p.rewatchDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// ActiveSources returns the watched source IDs in sorted order.
func (p *Pipeline) ActiveSources() []string {
	var ids []string
	p.queues.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}
