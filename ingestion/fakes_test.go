package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shaxb/tele-google/ai/mock"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/notify"
	"github.com/shaxb/tele-google/storage"
	badgerstore "github.com/shaxb/tele-google/storage/badger"
	"github.com/stretchr/testify/require"
)

// fakeConnector serves chats and history from memory.
type fakeConnector struct {
	name       string
	connectErr error
	watchErr   error

	mu       sync.Mutex
	chats    map[string]Chat
	history  map[string][]core.Message
	handlers map[string]func(core.Message)
}

func newFakeConnector(name string) *fakeConnector {
	return &fakeConnector{
		name:     name,
		chats:    make(map[string]Chat),
		history:  make(map[string][]core.Message),
		handlers: make(map[string]func(core.Message)),
	}
}

func (c *fakeConnector) addChat(sourceID string, id int64, history ...core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[sourceID] = Chat{ID: id, SourceID: sourceID, Title: sourceID}
	c.history[sourceID] = history
}

func (c *fakeConnector) Name() string { return c.name }

func (c *fakeConnector) Connect(context.Context) error { return c.connectErr }

func (c *fakeConnector) Resolve(_ context.Context, sourceID string) (Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.chats[sourceID]
	if !ok {
		return Chat{}, errors.New("no such chat")
	}
	return chat, nil
}

func (c *fakeConnector) Watch(ctx context.Context, chat Chat, handler func(core.Message)) error {
	if c.watchErr != nil {
		return c.watchErr
	}
	c.mu.Lock()
	c.handlers[chat.SourceID] = handler
	c.mu.Unlock()

	<-ctx.Done()

	c.mu.Lock()
	delete(c.handlers, chat.SourceID)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeConnector) History(_ context.Context, chat Chat, limit int, minID int64) ([]core.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Message
	for _, msg := range c.history[chat.SourceID] {
		if msg.ID <= minID {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *fakeConnector) watching(sourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[sourceID]
	return ok
}

// push delivers msg to the watcher of sourceID.
func (c *fakeConnector) push(sourceID string, msg core.Message) bool {
	c.mu.Lock()
	handler, ok := c.handlers[sourceID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	handler(msg)
	return true
}

// fakeRegistry is an in-memory registry.
type fakeRegistry struct {
	mu      sync.Mutex
	ids     []string
	changed bool
	loads   int
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	return &fakeRegistry{ids: ids, changed: true}
}

func (r *fakeRegistry) Load(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	r.changed = false
	return append([]string(nil), r.ids...), nil
}

func (r *fakeRegistry) Changed(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed, nil
}

func (r *fakeRegistry) set(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = ids
	r.changed = true
}

func (r *fakeRegistry) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

// discardTransport accepts every event.
type discardTransport struct{}

func (discardTransport) Send(context.Context, notify.Event) error { return nil }

func (discardTransport) Close() error { return nil }

type testEnv struct {
	pipeline *Pipeline
	store    storage.Store
	provider *mock.MockProvider
	notifier *notify.Notifier
}

func (e *testEnv) counter(name string) int64 {
	return e.notifier.Counters().Get(name)
}

func newTestEnv(t *testing.T, evaluator DealEvaluator, opts ...Option) *testEnv {
	t.Helper()

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	provider := mock.NewMockProvider()
	notifier := notify.New(discardTransport{})

	base := []Option{WithPoolSize(4), WithBackfillDelay(0, 0)}
	p, err := NewPipeline(store, store, provider, evaluator, notifier, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &testEnv{pipeline: p, store: store, provider: provider, notifier: notifier}
}
