package notify

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Counter names used across the service.
const (
	CounterMessagesSeen    = "messages_seen"
	CounterMessagesSkipped = "messages_skipped"
	CounterMessagesDropped = "messages_dropped"
	CounterDuplicates      = "duplicates"
	CounterListingsIndexed = "listings_indexed"
	CounterDeals           = "deals"
	CounterErrors          = "errors"
	CounterNotifyDropped   = "notify_dropped"
	CounterNotifyFailed    = "notify_failed"
)

// Counters is a set of named monotonic counters safe for concurrent use.
// Increments never take a lock once a name has been seen.
type Counters struct {
	m sync.Map // string -> *atomic.Int64
}

func (c *Counters) counter(name string) *atomic.Int64 {
	if v, ok := c.m.Load(name); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.m.LoadOrStore(name, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Add increments name by n.
func (c *Counters) Add(name string, n int64) {
	c.counter(name).Add(n)
}

// Get returns the current value of name.
func (c *Counters) Get(name string) int64 {
	if v, ok := c.m.Load(name); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// SnapshotAndReset returns the current values and zeroes them. Increments
// racing with the reset land in either this snapshot or the next.
func (c *Counters) SnapshotAndReset() map[string]int64 {
	out := make(map[string]int64)
	c.m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Swap(0)
		return true
	})
	return out
}

// sortedNames returns the keys of m in lexical order.
func sortedNames(m map[string]int64) []string {
	return slices.Sorted(maps.Keys(m))
}
