package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/redis/go-redis/v9"
)

// claimScript picks the highest priority job among the first visible ones
// and pushes its score to the visibility deadline.
//
// KEYS: ready zset, priority hash, inflight set
// ARGV: now ms, deadline ms, scan window
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
if #ids == 0 then
  return false
end
local prios = redis.call('HMGET', KEYS[2], unpack(ids))
local best = 1
local bestPrio = tonumber(prios[1]) or 0
for i = 2, #ids do
  local p = tonumber(prios[i]) or 0
  if p > bestPrio then
    best = i
    bestPrio = p
  end
end
redis.call('ZADD', KEYS[1], ARGV[2], ids[best])
redis.call('SADD', KEYS[3], ids[best])
return ids[best]
`)

const claimScanWindow = 50

// RedisQueue keeps message ids in a sorted set scored by the time they
// become visible, and job bodies in a hash. Ids are zero-padded sequence
// numbers, so ties on the millisecond score fall back to enqueue order.
type RedisQueue struct {
	client   redis.UniversalClient
	prefix   string
	opts     Options
	counters counters
	logger   *slog.Logger
}

func NewRedisQueue(client redis.UniversalClient, prefix string, opts Options) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: prefix,
		opts:   opts.withDefaults(),
		logger: slog.With("component", "queue", "driver", "redis"),
	}
}

func (q *RedisQueue) readyKey() string    { return q.prefix + ":ready" }
func (q *RedisQueue) jobsKey() string     { return q.prefix + ":jobs" }
func (q *RedisQueue) priorityKey() string { return q.prefix + ":priority" }
func (q *RedisQueue) inflightKey() string { return q.prefix + ":inflight" }
func (q *RedisQueue) seqKey() string      { return q.prefix + ":seq" }

func (q *RedisQueue) Enqueue(ctx context.Context, j job.Job) (string, error) {
	now := q.opts.Clock.Now()
	j, err := q.opts.prepare(j, now)
	if err != nil {
		return "", err
	}

	id, err := q.nextID(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(j)
	if err != nil {
		return "", errs.Mark(err, errs.ErrInvalidJob)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.add(ctx, pipe, id, j, body, now)
		return nil
	})
	if err != nil {
		return "", errs.Mark(errs.Wrap(err, "failed to enqueue job"), errs.ErrQueueUnavailable)
	}
	q.opts.Metrics.JobEnqueued(j.Type)
	return id, nil
}

func (q *RedisQueue) nextID(ctx context.Context) (string, error) {
	n, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return "", errs.Mark(errs.Wrap(err, "failed to allocate message id"), errs.ErrQueueUnavailable)
	}
	// fixed width so members with equal scores still sort in enqueue order
	return fmt.Sprintf("%020d", n), nil
}

func (q *RedisQueue) add(ctx context.Context, pipe redis.Pipeliner, id string, j job.Job, body []byte, now time.Time) {
	pipe.HSet(ctx, q.jobsKey(), id, body)
	pipe.HSet(ctx, q.priorityKey(), id, j.Priority)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(now.Add(j.Delay).UnixMilli()), Member: id})
}

func (q *RedisQueue) remove(ctx context.Context, pipe redis.Pipeliner, id string) {
	pipe.ZRem(ctx, q.readyKey(), id)
	pipe.HDel(ctx, q.jobsKey(), id)
	pipe.HDel(ctx, q.priorityKey(), id)
	pipe.SRem(ctx, q.inflightKey(), id)
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*job.Job, error) {
	now := q.opts.Clock.Now()
	deadline := now.Add(q.opts.VisibilityTimeout)

	res, err := claimScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.priorityKey(), q.inflightKey()},
		now.UnixMilli(), deadline.UnixMilli(), claimScanWindow,
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errs.Mark(errs.Wrap(err, "failed to claim job"), errs.ErrQueueUnavailable)
	}
	id, ok := res.(string)
	if !ok {
		return nil, nil
	}

	body, err := q.client.HGet(ctx, q.jobsKey(), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// completed between claim and read
			return nil, nil
		}
		return nil, errs.Mark(errs.Wrap(err, "failed to read claimed job"), errs.ErrQueueUnavailable)
	}

	var j job.Job
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "corrupt job body for message %s", id), errs.ErrInvalidJob)
	}
	j.MessageID = id
	j.VisibilityDeadline = time.UnixMilli(deadline.UnixMilli())

	q.opts.Metrics.JobDequeued(j.Type)
	return &j, nil
}

func (q *RedisQueue) Complete(ctx context.Context, messageID string) error {
	var removed *redis.IntCmd
	var body *redis.StringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		body = pipe.HGet(ctx, q.jobsKey(), messageID)
		removed = pipe.HDel(ctx, q.jobsKey(), messageID)
		pipe.ZRem(ctx, q.readyKey(), messageID)
		pipe.HDel(ctx, q.priorityKey(), messageID)
		pipe.SRem(ctx, q.inflightKey(), messageID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return errs.Mark(errs.Wrap(err, "failed to complete job"), errs.ErrQueueUnavailable)
	}

	if removed.Val() > 0 {
		q.counters.completed.Add(1)
		var j job.Job
		if json.Unmarshal([]byte(body.Val()), &j) == nil {
			q.opts.Metrics.JobCompleted(j.Type)
		}
	}
	return nil
}

// Fail swaps the claimed instance for its retry under WATCH so that a
// concurrent complete of the same message wins cleanly.
func (q *RedisQueue) Fail(ctx context.Context, messageID string, _ job.Job, cause error) error {
	now := q.opts.Clock.Now()

	var (
		current job.Job
		next    job.Job
		retry   bool
		found   bool
	)
	txf := func(tx *redis.Tx) error {
		body, err := tx.HGet(ctx, q.jobsKey(), messageID).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if err := json.Unmarshal(body, &current); err != nil {
			return err
		}
		current.MessageID = messageID

		next, retry = q.opts.retry(current, cause)
		var nextID string
		var nextBody []byte
		if retry {
			if nextID, err = q.nextID(ctx); err != nil {
				return err
			}
			if nextBody, err = json.Marshal(next); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			q.remove(ctx, pipe, messageID)
			if retry {
				q.add(ctx, pipe, nextID, next, nextBody, now)
			}
			return nil
		})
		return err
	}

	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = q.client.Watch(ctx, txf, q.jobsKey())
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return errs.Mark(errs.Wrap(err, "failed to fail job"), errs.ErrQueueUnavailable)
	}
	if !found {
		return nil
	}

	q.counters.failed.Add(1)
	q.opts.Metrics.JobFailed(current.Type, !retry)
	if !retry {
		q.counters.dropped.Add(1)
		logDropped(q.logger, current, cause)
		return nil
	}
	logRetry(q.logger, next, cause)
	return nil
}

func (q *RedisQueue) Stats(ctx context.Context) (shared.QueueStats, error) {
	now := q.opts.Clock.Now()
	nowScore := strconv.FormatInt(now.UnixMilli(), 10)

	var st shared.QueueStats
	pipe := q.client.Pipeline()
	visibleCmd := pipe.ZCount(ctx, q.readyKey(), "-inf", nowScore)
	totalCmd := pipe.ZCard(ctx, q.readyKey())
	inflightCmd := pipe.SMembers(ctx, q.inflightKey())
	bodiesCmd := pipe.HVals(ctx, q.jobsKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return st, errs.Mark(errs.Wrap(err, "failed to read queue stats"), errs.ErrQueueUnavailable)
	}

	st.Visible = int(visibleCmd.Val())
	hidden := int(totalCmd.Val()) - st.Visible

	if ids := inflightCmd.Val(); len(ids) > 0 {
		scores, err := q.client.ZMScore(ctx, q.readyKey(), ids...).Result()
		if err != nil {
			return st, errs.Mark(errs.Wrap(err, "failed to read in-flight jobs"), errs.ErrQueueUnavailable)
		}
		for _, sc := range scores {
			if sc > float64(now.UnixMilli()) {
				st.InFlight++
			}
		}
	}
	st.Delayed = hidden - st.InFlight
	st.TotalQueued = st.Visible + st.Delayed

	var oldest time.Time
	for _, raw := range bodiesCmd.Val() {
		var j job.Job
		if json.Unmarshal([]byte(raw), &j) != nil {
			continue
		}
		if oldest.IsZero() || j.CreatedAt.Before(oldest) {
			oldest = j.CreatedAt
		}
		if j.RetryCount > st.MaxRetryCount {
			st.MaxRetryCount = j.RetryCount
		}
	}
	if !oldest.IsZero() {
		st.OldestAge = now.Sub(oldest)
	}
	q.counters.fill(&st)
	return st, nil
}

func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return errs.Mark(err, errs.ErrQueueUnavailable)
	}
	return nil
}
