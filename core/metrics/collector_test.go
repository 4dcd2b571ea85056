package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/jobflow/core/metrics"
)

func TestCollector_Counters(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()

	c.JobProcessed("data-import", "import")
	c.JobProcessed("data-import", "import")
	c.JobProcessed("reports", "export")
	c.JobFailed("data-import", "import", "execution")

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Processed[metrics.SeriesKey{Queue: "data-import", Type: "import"}])
	assert.Equal(t, uint64(1), snap.Processed[metrics.SeriesKey{Queue: "reports", Type: "export"}])
	assert.Equal(t, uint64(1), snap.Failed[metrics.FailureKey{Queue: "data-import", Type: "import", Kind: "execution"}])
}

func TestCollector_QueueDepth(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()

	c.SetQueueDepth("data-import", 42)
	c.SetQueueDepth("data-import", 7)

	snap := c.Snapshot()
	assert.Equal(t, int64(7), snap.Depth["data-import"])
}

func TestCollector_Histogram(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()
	key := metrics.SeriesKey{Queue: "calc", Type: "calculate"}

	c.ObserveDuration("calc", "calculate", 50*time.Millisecond)  // <= 0.1
	c.ObserveDuration("calc", "calculate", 700*time.Millisecond) // <= 1
	c.ObserveDuration("calc", "calculate", 45*time.Second)       // overflow

	snap := c.Snapshot()
	h := snap.Durations[key]
	assert.Equal(t, metrics.DefaultBuckets, h.Buckets)
	assert.Equal(t, uint64(3), h.Count)
	assert.Equal(t, uint64(1), h.Counts[0])
	assert.Equal(t, uint64(1), h.Counts[2])
	assert.Equal(t, uint64(1), h.Counts[len(h.Counts)-1])
	assert.InDelta(t, 45.75, h.Sum, 0.001)
}

func TestCollector_SnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()
	c.JobProcessed("q", "import")

	snap := c.Snapshot()
	c.JobProcessed("q", "import")

	assert.Equal(t, uint64(1), snap.Processed[metrics.SeriesKey{Queue: "q", Type: "import"}])
	assert.Equal(t, uint64(2), c.Snapshot().Processed[metrics.SeriesKey{Queue: "q", Type: "import"}])
}

func TestCollector_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector()

	var wg sync.WaitGroup
	goroutines := 20
	perGoroutine := 100
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				c.JobProcessed("q", "import")
				c.ObserveDuration("q", "import", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	total := uint64(goroutines * perGoroutine)
	assert.Equal(t, total, snap.Processed[metrics.SeriesKey{Queue: "q", Type: "import"}])
	assert.Equal(t, total, snap.Durations[metrics.SeriesKey{Queue: "q", Type: "import"}].Count)
}
