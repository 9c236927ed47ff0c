package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Connect establishes every connector's session. An unauthorized session
// is returned as ErrFatal.
func (p *Pipeline) Connect(ctx context.Context) error {
	if len(p.connectors) == 0 {
		return ErrConnectorRequired
	}
	for _, conn := range p.connectors {
		if err := conn.Connect(ctx); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return fmt.Errorf("%w: connector %s: %w", ErrFatal, conn.Name(), err)
			}
			return fmt.Errorf("connect %s: %w", conn.Name(), err)
		}
		p.logger.Info("connector ready", "connector", conn.Name())
	}
	return nil
}

// Run connects, watches the registry's sources and follows registry
// changes until ctx is cancelled or a connector loses authorization.
// Cancellation returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.registry == nil {
		return ErrRegistryRequired
	}
	if err := p.Connect(ctx); err != nil {
		return err
	}
	defer p.stopSources()

	if _, err := p.Reconcile(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.logger.Error("initial reconcile failed", "err", err)
		p.notifier.Error("reconcile", err)
	}
	p.logger.Info("pipeline running", "sources", len(p.ActiveSources()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(p.reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := p.Reconcile(gctx); err != nil && gctx.Err() == nil {
					p.logger.Warn("reconcile failed", "err", err)
					p.notifier.Error("reconcile", err)
				}
			}
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-p.fatal:
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
	})

	err := g.Wait()
	p.logger.Info("pipeline stopped", "err", err)
	return err
}

// RunWithCooldown runs the pipeline and, after a fatal error, waits for the
// auth cool-down before returning it so a supervisor restart does not hammer
// the network.
func (p *Pipeline) RunWithCooldown(ctx context.Context) error {
	err := p.Run(ctx)
	if !errors.Is(err, ErrFatal) || p.authCooldown <= 0 {
		return err
	}

	p.logger.Error("fatal pipeline error, cooling down", "cooldown", p.authCooldown, "err", err)
	p.notifier.Alert(fmt.Sprintf("Pipeline stopped: %v. Restarting after %s.", err, p.authCooldown))

	timer := time.NewTimer(p.authCooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return err
}
