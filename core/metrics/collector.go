package metrics

import (
	"maps"
	"sync"
	"time"
)

// DefaultBuckets are the fixed histogram bucket boundaries for job
// durations, in seconds. Observations above the last boundary land in the
// implicit overflow bucket.
var DefaultBuckets = []float64{0.1, 0.5, 1, 5, 10, 30}

// SeriesKey identifies a counter or histogram series by queue and job type.
type SeriesKey struct {
	Queue string
	Type  string
}

// FailureKey identifies a failure counter series. Kind classifies the error
// (for example "execution", "validation", "circuit_open").
type FailureKey struct {
	Queue string
	Type  string
	Kind  string
}

// Histogram is a fixed-bucket duration histogram.
type Histogram struct {
	Buckets []float64 // upper boundaries, seconds
	Counts  []uint64  // len(Buckets)+1, last is overflow
	Sum     float64   // total observed seconds
	Count   uint64
}

// Snapshot is a point-in-time copy of every series the collector holds.
type Snapshot struct {
	Processed map[SeriesKey]uint64
	Failed    map[FailureKey]uint64
	Depth     map[string]int64
	Durations map[SeriesKey]Histogram
	TakenAt   time.Time
}

// Collector accumulates queue metrics. The zero value is not usable;
// construct with NewCollector.
type Collector struct {
	mu        sync.Mutex
	buckets   []float64
	processed map[SeriesKey]uint64
	failed    map[FailureKey]uint64
	depth     map[string]int64
	durations map[SeriesKey]*Histogram
}

// Option configures a Collector.
type Option func(*Collector)

// WithBuckets overrides the histogram bucket boundaries. Boundaries must be
// sorted ascending; an empty slice keeps the defaults.
func WithBuckets(boundaries []float64) Option {
	return func(c *Collector) {
		if len(boundaries) > 0 {
			c.buckets = boundaries
		}
	}
}

// NewCollector creates an empty Collector with the default buckets.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		buckets:   DefaultBuckets,
		processed: make(map[SeriesKey]uint64),
		failed:    make(map[FailureKey]uint64),
		depth:     make(map[string]int64),
		durations: make(map[SeriesKey]*Histogram),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// JobProcessed increments the processed counter for the queue and job type.
func (c *Collector) JobProcessed(queue, jobType string) {
	defer swallow()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[SeriesKey{Queue: queue, Type: jobType}]++
}

// JobFailed increments the failed counter for the queue, job type, and
// error kind.
func (c *Collector) JobFailed(queue, jobType, errorKind string) {
	defer swallow()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[FailureKey{Queue: queue, Type: jobType, Kind: errorKind}]++
}

// SetQueueDepth records the current waiting+active count for a queue.
func (c *Collector) SetQueueDepth(queue string, depth int64) {
	defer swallow()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth[queue] = depth
}

// ObserveDuration records a job execution duration for the queue and type.
func (c *Collector) ObserveDuration(queue, jobType string, d time.Duration) {
	defer swallow()

	c.mu.Lock()
	defer c.mu.Unlock()

	key := SeriesKey{Queue: queue, Type: jobType}
	h, ok := c.durations[key]
	if !ok {
		h = &Histogram{
			Buckets: c.buckets,
			Counts:  make([]uint64, len(c.buckets)+1),
		}
		c.durations[key] = h
	}

	secs := d.Seconds()
	idx := len(h.Buckets) // overflow bucket
	for i, boundary := range h.Buckets {
		if secs <= boundary {
			idx = i
			break
		}
	}
	h.Counts[idx]++
	h.Sum += secs
	h.Count++
}

// Snapshot returns an independent copy of all accumulated series.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Processed: maps.Clone(c.processed),
		Failed:    maps.Clone(c.failed),
		Depth:     maps.Clone(c.depth),
		Durations: make(map[SeriesKey]Histogram, len(c.durations)),
		TakenAt:   time.Now(),
	}
	for key, h := range c.durations {
		copied := *h
		copied.Counts = make([]uint64, len(h.Counts))
		copy(copied.Counts, h.Counts)
		snap.Durations[key] = copied
	}
	return snap
}

// swallow absorbs panics from metric updates so observability can never
// take down the caller.
func swallow() {
	_ = recover()
}
