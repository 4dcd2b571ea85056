package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/jobflow/core/breaker"
	"github.com/dmitrymomot/jobflow/integration/database/redis"
)

// RedisStorage implements Storage on a Redis connection shared by every
// queue. Waiting jobs live in a list (LPUSH/BRPOP for FIFO), delayed jobs
// in a sorted set scored by eligibility time, active jobs in a hash keyed
// by job ID, and terminally failed jobs in a capped-retention list.
//
// Every operation routes through the circuit breaker; nothing reaches the
// store when the breaker is open. The blocking dequeue window must stay
// below the breaker call timeout or healthy blocking pops will be counted
// as failures.
type RedisStorage struct {
	handle *redis.Client
	cb     *breaker.CircuitBreaker
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix sets the key namespace. Default is "jobflow".
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithFailedRetention bounds how long terminally failed jobs are kept for
// inspection. Default is 7 days.
func WithFailedRetention(ttl time.Duration) RedisStorageOption {
	return func(s *RedisStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisStorageLogger sets the logger for storage operations.
func WithRedisStorageLogger(logger *slog.Logger) RedisStorageOption {
	return func(s *RedisStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStorage creates a Storage backed by the managed connection
// handle, protected by the given circuit breaker.
func NewRedisStorage(handle *redis.Client, cb *breaker.CircuitBreaker, opts ...RedisStorageOption) (*RedisStorage, error) {
	if handle == nil {
		return nil, ErrNilStorage
	}
	if cb == nil {
		return nil, fmt.Errorf("queue: circuit breaker is nil")
	}

	s := &RedisStorage{
		handle: handle,
		cb:     cb,
		prefix: "jobflow",
		ttl:    7 * 24 * time.Hour,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *RedisStorage) waitingKey(queue string) string { return s.prefix + ":" + queue + ":waiting" }
func (s *RedisStorage) delayedKey(queue string) string { return s.prefix + ":" + queue + ":delayed" }
func (s *RedisStorage) activeKey(queue string) string  { return s.prefix + ":" + queue + ":active" }
func (s *RedisStorage) failedKey(queue string) string  { return s.prefix + ":" + queue + ":failed" }

// do runs fn against a ready connection under the circuit breaker.
func (s *RedisStorage) do(ctx context.Context, fn func(ctx context.Context, rdb *goredis.Client) error) error {
	return s.cb.Do(ctx, func(ctx context.Context) error {
		rdb, err := s.handle.Get(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, rdb)
	})
}

func (s *RedisStorage) Enqueue(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		return rdb.LPush(ctx, s.waitingKey(job.Queue), raw).Err()
	})
}

func (s *RedisStorage) EnqueueDelayed(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.TxPipeline()
		pipe.HDel(ctx, s.activeKey(job.Queue), job.ID.String())
		pipe.ZAdd(ctx, s.delayedKey(job.Queue), goredis.Z{
			Score:  float64(job.EligibleAt.UnixMilli()),
			Member: raw,
		})
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStorage) Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error) {
	var job *Job
	err := s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		res, err := rdb.BRPop(ctx, block, s.waitingKey(queue)).Result()
		if err == goredis.Nil {
			// An empty queue is not a store failure.
			return nil
		}
		if err != nil {
			return err
		}
		if len(res) != 2 {
			return nil
		}

		var j Job
		if err := json.Unmarshal([]byte(res[1]), &j); err != nil {
			return fmt.Errorf("failed to unmarshal job from queue %q: %w", queue, err)
		}
		j.Status = JobStatusActive
		j.ClaimedAt = time.Now()

		raw, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		if err := rdb.HSet(ctx, s.activeKey(queue), j.ID.String(), raw).Err(); err != nil {
			return err
		}
		job = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNoJob
	}
	return job, nil
}

func (s *RedisStorage) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	promoted := 0
	err := s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		members, err := rdb.ZRangeByScore(ctx, s.delayedKey(queue), &goredis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(now.UnixMilli(), 10),
		}).Result()
		if err != nil || len(members) == 0 {
			return err
		}

		pipe := rdb.TxPipeline()
		for _, raw := range members {
			var j Job
			if err := json.Unmarshal([]byte(raw), &j); err != nil {
				// A corrupt member would block promotion forever; drop it.
				pipe.ZRem(ctx, s.delayedKey(queue), raw)
				continue
			}
			j.Status = JobStatusWaiting

			requeued, err := json.Marshal(&j)
			if err != nil {
				continue
			}
			pipe.LPush(ctx, s.waitingKey(queue), requeued)
			pipe.ZRem(ctx, s.delayedKey(queue), raw)
			promoted++
		}
		_, err = pipe.Exec(ctx)
		return err
	})
	return promoted, err
}

func (s *RedisStorage) Complete(ctx context.Context, job *Job) error {
	return s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.TxPipeline()
		pipe.HDel(ctx, s.activeKey(job.Queue), job.ID.String())
		pipe.Incr(ctx, s.prefix+":"+job.Queue+":processed")
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStorage) Fail(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.TxPipeline()
		pipe.HDel(ctx, s.activeKey(job.Queue), job.ID.String())
		pipe.LPush(ctx, s.failedKey(job.Queue), raw)
		pipe.Expire(ctx, s.failedKey(job.Queue), s.ttl)
		pipe.Incr(ctx, s.prefix+":"+job.Queue+":failed")
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStorage) Remove(ctx context.Context, queue string, id uuid.UUID) (*Job, error) {
	var removed *Job
	err := s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		// Waiting list first: values are full job documents, so locate the
		// exact member before LREM.
		members, err := rdb.LRange(ctx, s.waitingKey(queue), 0, -1).Result()
		if err != nil {
			return err
		}
		for _, raw := range members {
			var j Job
			if err := json.Unmarshal([]byte(raw), &j); err != nil {
				continue
			}
			if j.ID == id {
				if err := rdb.LRem(ctx, s.waitingKey(queue), 1, raw).Err(); err != nil {
					return err
				}
				removed = &j
				return nil
			}
		}

		delayed, err := rdb.ZRange(ctx, s.delayedKey(queue), 0, -1).Result()
		if err != nil {
			return err
		}
		for _, raw := range delayed {
			var j Job
			if err := json.Unmarshal([]byte(raw), &j); err != nil {
				continue
			}
			if j.ID == id {
				if err := rdb.ZRem(ctx, s.delayedKey(queue), raw).Err(); err != nil {
					return err
				}
				removed = &j
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removed == nil {
		return nil, ErrJobNotFound
	}
	return removed, nil
}

func (s *RedisStorage) RecoverStalled(ctx context.Context, queue string, lease time.Duration) ([]*Job, error) {
	var stalled []*Job
	err := s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		entries, err := rdb.HGetAll(ctx, s.activeKey(queue)).Result()
		if err != nil || len(entries) == 0 {
			return err
		}

		cutoff := time.Now().Add(-lease)
		pipe := rdb.TxPipeline()
		for field, raw := range entries {
			var j Job
			if err := json.Unmarshal([]byte(raw), &j); err != nil {
				continue
			}
			if j.ClaimedAt.After(cutoff) {
				continue
			}

			j.Status = JobStatusWaiting
			j.ClaimedAt = time.Time{}
			requeued, err := json.Marshal(&j)
			if err != nil {
				continue
			}
			pipe.HDel(ctx, s.activeKey(queue), field)
			pipe.LPush(ctx, s.waitingKey(queue), requeued)
			stalled = append(stalled, &j)
		}
		if len(stalled) == 0 {
			return nil
		}
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stalled, nil
}

func (s *RedisStorage) Depth(ctx context.Context, queue string) (Depth, error) {
	var d Depth
	err := s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.Pipeline()
		waiting := pipe.LLen(ctx, s.waitingKey(queue))
		delayed := pipe.ZCard(ctx, s.delayedKey(queue))
		active := pipe.HLen(ctx, s.activeKey(queue))
		failed := pipe.LLen(ctx, s.failedKey(queue))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		d = Depth{
			Waiting: waiting.Val(),
			Delayed: delayed.Val(),
			Active:  active.Val(),
			Failed:  failed.Val(),
		}
		return nil
	})
	return d, err
}

func (s *RedisStorage) Clean(ctx context.Context, queue string) (int, error) {
	var cleaned int64
	err := s.do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		n, err := rdb.LLen(ctx, s.failedKey(queue)).Result()
		if err != nil {
			return err
		}
		if err := rdb.Del(ctx, s.failedKey(queue)).Err(); err != nil {
			return err
		}
		cleaned = n
		return nil
	})
	return int(cleaned), err
}

// Close releases the shared connection handle.
func (s *RedisStorage) Close() error {
	return s.handle.Close()
}
