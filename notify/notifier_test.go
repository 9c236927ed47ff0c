package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// recordingTransport keeps every delivered event.
type recordingTransport struct {
	mu      sync.Mutex
	events  []Event
	sendErr error
	closed  bool
}

func (r *recordingTransport) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) delivered() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 12, 34, 56, 0, time.UTC)
}

func TestNotifier_Disabled(t *testing.T) {
	n := New(nil)
	assert.False(t, n.Enabled())

	n.Start(context.Background())
	n.Startup("crawler")
	n.NewListing(ListingEvent{Title: "x"})
	n.Error("classify", errors.New("boom"))
	n.Deal(DealEvent{})
	n.Search(SearchEvent{})
	n.Alert("a")
	n.Health(HealthReport{})
	n.Count(CounterMessagesSeen, 1)

	assert.False(t, n.FlushErrors())
	assert.Zero(t, n.Pending())
	assert.Empty(t, n.Counters().Snapshot())
	assert.NoError(t, n.Stop())
}

func TestNotifier_Backpressure(t *testing.T) {
	tr := &recordingTransport{}
	n := New(tr, WithQueueSize(3), WithRate(rate.Inf))

	for i := 0; i < 5; i++ {
		n.Alert("alert")
	}
	assert.Equal(t, 3, n.Pending())
	assert.Equal(t, int64(2), n.Counters().Get(CounterNotifyDropped))

	n.Start(context.Background())
	require.Eventually(t, func() bool { return len(tr.delivered()) == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, n.Stop())
	assert.True(t, tr.closed)
	assert.Len(t, tr.delivered(), 3)
}

func TestNotifier_RateLimited(t *testing.T) {
	tr := &recordingTransport{}
	n := New(tr, WithRate(rate.Every(time.Hour)), WithDrainTimeout(50*time.Millisecond))

	n.Alert("one")
	n.Alert("two")
	n.Start(context.Background())

	require.Eventually(t, func() bool { return len(tr.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, tr.delivered(), 1)

	done := make(chan struct{})
	go func() {
		n.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop waited past the drain timeout")
	}
	assert.Len(t, tr.delivered(), 1)
	assert.Equal(t, int64(1), n.Counters().Get(CounterNotifyDropped))
}

func TestNotifier_StopDeliversQueuedEvents(t *testing.T) {
	tr := &recordingTransport{}
	n := New(tr, WithRate(rate.Every(100*time.Millisecond)), WithDrainTimeout(time.Second), WithClock(fixedClock))
	n.Start(context.Background())

	n.Startup("crawler")
	n.Error("classify", errors.New("boom"))
	n.Shutdown("crawler")
	require.NoError(t, n.Stop())

	events := tr.delivered()
	require.Len(t, events, 3)
	assert.Equal(t, KindStartup, events[0].Kind)
	assert.Equal(t, KindShutdown, events[1].Kind)
	assert.Equal(t, KindError, events[2].Kind, "buffered errors are flushed on stop")
	assert.True(t, tr.closed)
}

func TestNotifier_StopAfterParentCancelDoesNotBlock(t *testing.T) {
	tr := &recordingTransport{}
	n := New(tr, WithRate(rate.Inf))
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		n.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after the parent context ended")
	}
}

func TestNotifier_DeliveryFailureIsCounted(t *testing.T) {
	tr := &recordingTransport{sendErr: ErrTransport}
	n := New(tr, WithRate(rate.Inf))
	n.Start(context.Background())
	defer n.Stop()

	n.Alert("a")
	require.Eventually(t, func() bool {
		return n.Counters().Get(CounterNotifyFailed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifier_ErrorBatching(t *testing.T) {
	n := New(&recordingTransport{}, WithClock(fixedClock))

	n.Error("classify", errors.New("timeout 1"))
	n.Error("embed", errors.New("rate limited"))
	n.Error("classify", errors.New("timeout <2>"))
	assert.Zero(t, n.Pending(), "errors are buffered, not queued")

	require.True(t, n.FlushErrors())
	require.Equal(t, 1, n.Pending())
	ev := <-n.queue
	assert.Equal(t, KindError, ev.Kind)
	assert.Contains(t, ev.Text, "<b>3 errors</b> in last 60s")
	assert.Contains(t, ev.Text, "classify: 2x")
	assert.Contains(t, ev.Text, "embed: 1x")
	assert.Less(t, strings.Index(ev.Text, "classify: 2x"), strings.Index(ev.Text, "embed: 1x"))
	assert.Contains(t, ev.Text, "Last: <code>timeout &lt;2&gt;</code>")
	assert.Equal(t, int64(3), n.Counters().Get(CounterErrors))

	assert.False(t, n.FlushErrors(), "buffer was cleared")
}

func TestNotifier_SingleError(t *testing.T) {
	n := New(&recordingTransport{}, WithClock(fixedClock))

	n.Error("insert", errors.New(strings.Repeat("x", 500)))
	require.True(t, n.FlushErrors())

	ev := <-n.queue
	assert.Contains(t, ev.Text, "<b>Error</b> in insert")
	assert.Contains(t, ev.Text, "<code>"+strings.Repeat("x", 200)+"</code>")
	assert.NotContains(t, ev.Text, strings.Repeat("x", 201))
	assert.Contains(t, ev.Text, "12:34:56")
}

func TestNotifier_FlushLoop(t *testing.T) {
	tr := &recordingTransport{}
	n := New(tr, WithRate(rate.Inf), WithFlushInterval(20*time.Millisecond))
	n.Start(context.Background())
	defer n.Stop()

	n.Error("classify", errors.New("boom"))
	require.Eventually(t, func() bool {
		events := tr.delivered()
		return len(events) == 1 && events[0].Kind == KindError
	}, time.Second, 5*time.Millisecond)
}

func TestNotifier_EventCounters(t *testing.T) {
	n := New(&recordingTransport{})

	n.NewListing(ListingEvent{Title: "iPhone"})
	n.Deal(DealEvent{Title: "iPhone"})
	n.Count(CounterMessagesSeen, 2)

	snapshot := n.Counters().Snapshot()
	assert.Equal(t, int64(1), snapshot[CounterListingsIndexed])
	assert.Equal(t, int64(1), snapshot[CounterDeals])
	assert.Equal(t, int64(2), snapshot[CounterMessagesSeen])
	assert.Equal(t, 2, n.Pending())
}

func TestNotifier_StopIsIdempotent(t *testing.T) {
	tr := &recordingTransport{}
	n := New(tr)
	n.Start(context.Background())

	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())
	n.Start(context.Background())
	assert.True(t, tr.closed)
}
