package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounters_Concurrent(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Add("seen", 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(5000), c.Get("seen"))
	assert.Zero(t, c.Get("unknown"))
}

func TestCounters_SnapshotAndReset(t *testing.T) {
	var c Counters
	c.Add("a", 2)
	c.Add("b", 3)

	assert.Equal(t, map[string]int64{"a": 2, "b": 3}, c.SnapshotAndReset())
	assert.Equal(t, map[string]int64{"a": 0, "b": 0}, c.Snapshot())

	c.Add("a", 1)
	assert.Equal(t, int64(1), c.Get("a"))
}
