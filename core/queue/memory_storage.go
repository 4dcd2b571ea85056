package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage in process memory for tests and local
// development. It mirrors the Redis layout: a FIFO waiting list, a delayed
// set ordered by eligibility, an active map, and a terminal failed list.
type MemoryStorage struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	closed bool
}

type memQueue struct {
	waiting []*Job
	delayed []*Job
	active  map[uuid.UUID]*Job
	failed  []*Job
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{queues: make(map[string]*memQueue)}
}

func (s *MemoryStorage) queue(name string) *memQueue {
	q, ok := s.queues[name]
	if !ok {
		q = &memQueue{active: make(map[uuid.UUID]*Job)}
		s.queues[name] = q
	}
	return q
}

func cloneJob(j *Job) *Job {
	copied := *j
	if j.Payload != nil {
		copied.Payload = append([]byte(nil), j.Payload...)
	}
	return &copied
}

func (s *MemoryStorage) Enqueue(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrQueueClosed
	}
	q := s.queue(job.Queue)
	q.waiting = append(q.waiting, cloneJob(job))
	return nil
}

func (s *MemoryStorage) EnqueueDelayed(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrQueueClosed
	}
	q := s.queue(job.Queue)
	delete(q.active, job.ID)
	q.delayed = append(q.delayed, cloneJob(job))
	sort.SliceStable(q.delayed, func(i, k int) bool {
		return q.delayed[i].EligibleAt.Before(q.delayed[k].EligibleAt)
	})
	return nil
}

func (s *MemoryStorage) Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error) {
	deadline := time.Now().Add(block)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q := s.queue(queue)
		if len(q.waiting) > 0 {
			job := q.waiting[0]
			q.waiting = q.waiting[1:]
			job.Status = JobStatusActive
			job.ClaimedAt = time.Now()
			q.active[job.ID] = job
			out := cloneJob(job)
			s.mu.Unlock()
			return out, nil
		}
		s.mu.Unlock()

		if block <= 0 || !time.Now().Before(deadline) {
			return nil, ErrNoJob
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *MemoryStorage) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrQueueClosed
	}

	q := s.queue(queue)
	promoted := 0
	remaining := q.delayed[:0]
	for _, job := range q.delayed {
		if job.EligibleAt.After(now) {
			remaining = append(remaining, job)
			continue
		}
		job.Status = JobStatusWaiting
		q.waiting = append(q.waiting, job)
		promoted++
	}
	q.delayed = remaining
	return promoted, nil
}

func (s *MemoryStorage) Complete(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue(job.Queue).active, job.ID)
	return nil
}

func (s *MemoryStorage) Fail(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(job.Queue)
	delete(q.active, job.ID)
	q.failed = append(q.failed, cloneJob(job))
	return nil
}

func (s *MemoryStorage) Remove(ctx context.Context, queue string, id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	for i, job := range q.waiting {
		if job.ID == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return cloneJob(job), nil
		}
	}
	for i, job := range q.delayed {
		if job.ID == id {
			q.delayed = append(q.delayed[:i], q.delayed[i+1:]...)
			return cloneJob(job), nil
		}
	}
	return nil, ErrJobNotFound
}

func (s *MemoryStorage) RecoverStalled(ctx context.Context, queue string, lease time.Duration) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	cutoff := time.Now().Add(-lease)

	var stalled []*Job
	for id, job := range q.active {
		if job.ClaimedAt.After(cutoff) {
			continue
		}
		delete(q.active, id)
		job.Status = JobStatusWaiting
		job.ClaimedAt = time.Time{}
		q.waiting = append(q.waiting, job)
		stalled = append(stalled, cloneJob(job))
	}
	return stalled, nil
}

func (s *MemoryStorage) Depth(ctx context.Context, queue string) (Depth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(queue)
	return Depth{
		Waiting: int64(len(q.waiting)),
		Delayed: int64(len(q.delayed)),
		Active:  int64(len(q.active)),
		Failed:  int64(len(q.failed)),
	}, nil
}

func (s *MemoryStorage) Clean(ctx context.Context, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(queue)
	n := len(q.failed)
	q.failed = nil
	return n, nil
}

// FailedJobs returns the terminally failed jobs for a queue, oldest first.
// Useful for inspecting outcomes in tests.
func (s *MemoryStorage) FailedJobs(queue string) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(queue)
	out := make([]*Job, 0, len(q.failed))
	for _, job := range q.failed {
		out = append(out, cloneJob(job))
	}
	return out
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
