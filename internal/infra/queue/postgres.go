package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/infra"
	"jastip-market/internal/infra/db"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/pkg/pgconv"
	"jastip-market/internal/usecase/shared"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertJobSQL = `
INSERT INTO job_queue (type, payload, retry_count, max_retries, priority, last_error, created_at, visible_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

	// SKIP LOCKED lets concurrent pollers claim different rows without waiting.
	claimJobSQL = `
UPDATE job_queue
SET visible_at = $2, claimed_at = $1
WHERE id = (
    SELECT id FROM job_queue
    WHERE visible_at <= $1
    ORDER BY priority DESC, visible_at, id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, type, payload, retry_count, max_retries, priority, last_error, created_at, visible_at`

	deleteJobSQL = `DELETE FROM job_queue WHERE id = $1 RETURNING type`

	deleteJobReturningSQL = `
DELETE FROM job_queue WHERE id = $1
RETURNING type, payload, retry_count, max_retries, priority, last_error, created_at`

	statsSQL = `
SELECT
    count(*) FILTER (WHERE visible_at <= $1),
    count(*) FILTER (WHERE visible_at > $1 AND claimed_at IS NULL),
    count(*) FILTER (WHERE visible_at > $1 AND claimed_at IS NOT NULL),
    min(created_at),
    COALESCE(max(retry_count), 0)
FROM job_queue`
)

// PostgresQueue stores jobs in the job_queue table. A claim pushes
// visible_at forward by the visibility timeout; an unacknowledged job simply
// becomes visible again.
type PostgresQueue struct {
	pool     *pgxpool.Pool
	opts     Options
	counters counters
	logger   *slog.Logger
}

func NewPostgresQueue(pool *pgxpool.Pool, opts Options) *PostgresQueue {
	return &PostgresQueue{
		pool:   pool,
		opts:   opts.withDefaults(),
		logger: slog.With("component", "queue", "driver", "postgres"),
	}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, j job.Job) (string, error) {
	now := q.opts.Clock.Now()
	j, err := q.opts.prepare(j, now)
	if err != nil {
		return "", err
	}

	id, err := q.insert(ctx, q.pool, j, now)
	if err != nil {
		return "", err
	}
	q.opts.Metrics.JobEnqueued(j.Type)
	return id, nil
}

func (q *PostgresQueue) insert(ctx context.Context, dbtx db.DBTX, j job.Job, now time.Time) (string, error) {
	var id int64
	err := dbtx.QueryRow(ctx, insertJobSQL,
		string(j.Type),
		payloadOrNull(j.Payload),
		j.RetryCount,
		j.MaxRetries,
		j.Priority,
		pgconv.StringToPgtype(j.LastError),
		j.CreatedAt,
		now.Add(j.Delay),
	).Scan(&id)
	if err != nil {
		return "", errs.Mark(infra.WrapRepoErr("failed to enqueue job", err), errs.ErrQueueUnavailable)
	}
	return strconv.FormatInt(id, 10), nil
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*job.Job, error) {
	now := q.opts.Clock.Now()

	var (
		id        int64
		typ       string
		payload   []byte
		j         job.Job
		lastError pgtype.Text
		visibleAt time.Time
	)
	err := q.pool.QueryRow(ctx, claimJobSQL, now, now.Add(q.opts.VisibilityTimeout)).Scan(
		&id, &typ, &payload, &j.RetryCount, &j.MaxRetries, &j.Priority, &lastError, &j.CreatedAt, &visibleAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Mark(infra.WrapRepoErr("failed to claim job", err), errs.ErrQueueUnavailable)
	}

	j.MessageID = strconv.FormatInt(id, 10)
	j.Type = job.Type(typ)
	j.Payload = payload
	j.VisibilityDeadline = visibleAt
	j.LastError = pgconv.StringFromPgtype(lastError)

	q.opts.Metrics.JobDequeued(j.Type)
	return &j, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, messageID string) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		// not one of ours, so already gone
		return nil
	}
	var typ string
	if err := q.pool.QueryRow(ctx, deleteJobSQL, id).Scan(&typ); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return errs.Mark(infra.WrapRepoErr("failed to complete job", err), errs.ErrQueueUnavailable)
	}
	q.counters.completed.Add(1)
	q.opts.Metrics.JobCompleted(job.Type(typ))
	return nil
}

// Fail deletes the claimed row and inserts its retry in the same
// transaction. A row that is already gone is left alone.
func (q *PostgresQueue) Fail(ctx context.Context, messageID string, j job.Job, cause error) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return nil
	}
	now := q.opts.Clock.Now()

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return errs.Mark(infra.WrapRepoErr("failed to begin fail transaction", err), errs.ErrQueueUnavailable)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			q.logger.Warn("failed to rollback transaction", "error", rollbackErr)
		}
	}()

	var (
		typ       string
		payload   []byte
		current   job.Job
		lastError pgtype.Text
	)
	err = tx.QueryRow(ctx, deleteJobReturningSQL, id).Scan(
		&typ, &payload, &current.RetryCount, &current.MaxRetries, &current.Priority, &lastError, &current.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return errs.Mark(infra.WrapRepoErr("failed to remove failed job", err), errs.ErrQueueUnavailable)
	}
	current.MessageID = messageID
	current.Type = job.Type(typ)
	current.Payload = payload
	current.LastError = pgconv.StringFromPgtype(lastError)

	next, retry := q.opts.retry(current, cause)
	if retry {
		if _, err := q.insert(ctx, tx, next, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Mark(infra.WrapRepoErr("failed to commit failed job", err), errs.ErrQueueUnavailable)
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

func (q *PostgresQueue) Stats(ctx context.Context) (shared.QueueStats, error) {
	now := q.opts.Clock.Now()

	var (
		st     shared.QueueStats
		oldest *time.Time
	)
	err := q.pool.QueryRow(ctx, statsSQL, now).Scan(&st.Visible, &st.Delayed, &st.InFlight, &oldest, &st.MaxRetryCount)
	if err != nil {
		return shared.QueueStats{}, errs.Mark(infra.WrapRepoErr("failed to read queue stats", err), errs.ErrQueueUnavailable)
	}

	st.TotalQueued = st.Visible + st.Delayed
	if oldest != nil {
		st.OldestAge = now.Sub(*oldest)
	}
	q.counters.fill(&st)
	return st, nil
}

func (q *PostgresQueue) HealthCheck(ctx context.Context) error {
	if err := q.pool.Ping(ctx); err != nil {
		return errs.Mark(err, errs.ErrQueueUnavailable)
	}
	return nil
}

func payloadOrNull(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return []byte(p)
}
