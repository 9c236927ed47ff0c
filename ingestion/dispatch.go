package ingestion

import (
	"context"
	"strings"

	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/notify"
)

// activeSource is a source being watched.
type activeSource struct {
	chat      Chat
	connector Connector
	queue     chan core.Message
	cancel    context.CancelFunc
	drained   chan struct{}
	watched   chan struct{}
}

// Dispatch hands a live message to its source's queue. It never blocks: when
// the queue is full the message is dropped and counted.
func (p *Pipeline) Dispatch(msg core.Message) bool {
	sourceID := p.sourceFor(msg)
	if sourceID == "" {
		p.logger.Debug("discarding message from unmapped chat", "chat_id", msg.ChatID)
		return false
	}

	v, ok := p.queues.Load(sourceID)
	if !ok {
		return false
	}
	return p.enqueue(v.(*activeSource), msg)
}

func (p *Pipeline) enqueue(src *activeSource, msg core.Message) bool {
	select {
	case src.queue <- msg:
		return true
	default:
		p.notifier.Count(notify.CounterMessagesDropped, 1)
		p.logger.Warn("source queue full, dropping message",
			"source", src.chat.SourceID,
			"message_id", msg.ID)
		return false
	}
}

// sourceFor maps a message to its normalized source ID, by chat ID first and
// by public username second.
func (p *Pipeline) sourceFor(msg core.Message) string {
	if v, ok := p.chats.Load(msg.ChatID); ok {
		return v.(string)
	}
	if name := strings.TrimSpace(msg.ChatUsername); name != "" {
		id := core.NormalizeSourceID(name)
		if _, ok := p.queues.Load(id); ok {
			return id
		}
	}
	return ""
}

// drain feeds a source's queue to the process pool until ctx is done.
// Messages still queued at cancellation are dropped; processing that already
// started finishes even when the source is removed.
func (p *Pipeline) drain(ctx context.Context, src *activeSource) {
	defer close(src.drained)
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case msg := <-src.queue:
			// select picks randomly when both cases are ready.
			if ctx.Err() != nil {
				return
			}
			p.submit(ctx, msg, src.chat.SourceID)
		}
	}
}

// submit runs Process on the process pool, blocking while the pool is busy.
func (p *Pipeline) submit(ctx context.Context, msg core.Message, sourceID string) {
	processCtx := context.WithoutCancel(ctx)
	p.tasks.Add(1)
	err := p.processPool.Submit(func() {
		defer p.tasks.Done()
		_ = p.Process(processCtx, msg, sourceID)
	})
	if err != nil {
		p.tasks.Done()
		p.logger.Error("error submitting message", "source", sourceID, "message_id", msg.ID, "err", err)
		p.notifier.Error("submit", err)
	}
}
