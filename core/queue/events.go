package queue

import (
	"sync"
	"time"
)

// EventKind identifies a queue lifecycle event.
type EventKind string

const (
	EventWaiting   EventKind = "waiting"   // job accepted into the queue
	EventActive    EventKind = "active"    // job claimed by a worker
	EventCompleted EventKind = "completed" // job finished successfully
	EventError     EventKind = "error"     // attempt failed, retry scheduled
	EventFailed    EventKind = "failed"    // job failed terminally
	EventStalled   EventKind = "stalled"   // active job lease expired, re-enqueued
	EventProgress  EventKind = "progress"  // handler-reported progress
	EventDrained   EventKind = "drained"   // queue ran empty
	EventRemoved   EventKind = "removed"   // job removed before execution
	EventCleaned   EventKind = "cleaned"   // terminal jobs purged
)

// Event is a queue lifecycle notification delivered over subscription
// channels. Job is nil for queue-level events (drained, cleaned).
type Event struct {
	Kind     EventKind
	Queue    string
	Job      *Job
	Err      error
	Progress int // 0-100, set for progress events
	Count    int // set for cleaned events
	At       time.Time
}

// defaultEventBuffer is the per-subscriber channel buffer. A full buffer
// drops events for that subscriber instead of blocking job processing.
const defaultEventBuffer = 64

// broadcaster fans queue events out to subscriber channels.
type broadcaster struct {
	queue  string
	buffer int

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newBroadcaster(queue string, buffer int) *broadcaster {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &broadcaster{
		queue:  queue,
		buffer: buffer,
		subs:   make(map[int]chan Event),
	}
}

// subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe or when the
// queue shuts down.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish delivers the event to every subscriber without blocking. Slow
// subscribers lose events once their buffer fills; processing never waits
// on consumers.
func (b *broadcaster) publish(ev Event) {
	ev.Queue = b.queue
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close shuts down all subscriber channels.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
