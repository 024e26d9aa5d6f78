package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_at, locked_at, locked_by,
	last_error, idempotency_key, priority, user_id, created_at, updated_at`

type JobsRepo struct {
	base
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{base{pool: pool, prom: prom}}
}

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &status,
		&j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LockedBy,
		&j.LastError, &j.IdempotencyKey, &j.Priority, &j.UserID,
		&j.CreatedAt, &j.UpdatedAt,
	)
	j.Status = job.Status(status)
	return j, err
}

// Enqueue inserts a job outside any transaction. See EnqueueTx.
func (r *JobsRepo) Enqueue(ctx context.Context, req job.CreateRequest) (job.Job, bool, error) {
	return r.EnqueueTx(ctx, r.pool, req)
}

// EnqueueTx inserts a job using db, usually the transaction that produced
// the work. A job whose idempotency key already exists is not inserted and
// created is false.
func (r *JobsRepo) EnqueueTx(ctx context.Context, db DBTX, req job.CreateRequest) (j job.Job, created bool, err error) {
	j = job.New(req)

	err = r.observe("jobs.enqueue", func() error {
		tag, err := db.Exec(ctx, `
			INSERT INTO jobs (`+jobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt,
			j.LockedAt, j.LockedBy, j.LastError, j.IdempotencyKey, j.Priority, j.UserID,
			j.CreatedAt, j.UpdatedAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return job.Job{}, false, err
	}

	return j, created, nil
}

// ClaimNext claims one runnable job with FOR UPDATE SKIP LOCKED so
// concurrent workers never pick the same row. job.ErrJobNotFound means the
// queue is empty.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job

	err := r.observe("jobs.claim_next", func() error {
		var err error
		j, err = scanJob(r.pool.QueryRow(ctx, `
			WITH next AS (
				SELECT id
				FROM jobs
				WHERE status = 'pending'
				  AND run_at <= NOW()
				  AND attempts < max_attempts
				ORDER BY priority DESC, run_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE jobs
			SET status = 'processing',
			    locked_at = NOW(),
			    locked_by = $1,
			    updated_at = NOW()
			WHERE id = (SELECT id FROM next)
			RETURNING `+jobColumns, workerID))
		return err
	})
	if err != nil {
		return job.Job{}, mapNoRows(err, job.ErrJobNotFound)
	}

	return j, nil
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return r.execOne(ctx, "jobs.mark_done", `
		UPDATE jobs
		SET status = 'done',
		    attempts = attempts + 1,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1`, id)
}

// MarkFailed dead-letters a job.
func (r *JobsRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.execOne(ctx, "jobs.mark_failed", `
		UPDATE jobs
		SET status = 'failed',
		    attempts = attempts + 1,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1`, id, errMsg)
}

func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.execOne(ctx, "jobs.reschedule", `
		UPDATE jobs
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1`, id, runAt, errMsg)
}

func (r *JobsRepo) execOne(ctx context.Context, op, sql string, args ...any) error {
	var affected int64
	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// RequeueStaleProcessing puts back jobs whose worker stopped heartbeating
// for longer than lockTTL.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var n int64
	err := r.observe("jobs.requeue_stale", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending',
			    locked_at = NULL,
			    locked_by = NULL,
			    updated_at = NOW()
			WHERE status = 'processing'
			  AND locked_at IS NOT NULL
			  AND locked_at < NOW() - ($1 * INTERVAL '1 second')`, secs)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})

	return n, err
}

// ListCursor pages jobs newest-updated first. A nil cursor starts from the top.
func (r *JobsRepo) ListCursor(ctx context.Context, status *job.Status, limit int, cursor *utils.JobCursor) (items []job.Job, nextCursor *string, err error) {
	q := rowquery.Query{Table: "jobs"}
	if status != nil {
		q.And("status = ?", string(*status))
	}
	if cursor != nil {
		q.And("(updated_at, id) < (?, ?)", cursor.UpdatedAt, cursor.ID)
	}
	where, args := q.Where()

	sql := `SELECT ` + jobColumns + ` FROM jobs` + where +
		fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT %d", limit+1)

	out := make([]job.Job, 0, limit)
	err = r.observe("jobs.admin.list_cursor", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]

		cur, err := utils.EncodeJobCursor(last.UpdatedAt, last.ID)
		if err != nil {
			return nil, nil, err
		}
		nextCursor = &cur
	}

	return out, nextCursor, nil
}

func (r *JobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	var j job.Job
	err := r.observe("jobs.admin.get_by_id", func() error {
		var err error
		j, err = scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return job.Job{}, mapNoRows(err, job.ErrJobNotFound)
	}
	return j, nil
}

// Retry requeues one dead-lettered job with a fresh attempt budget.
func (r *JobsRepo) Retry(ctx context.Context, id string) error {
	return r.inTx(ctx, "jobs.admin.retry", func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			return mapNoRows(err, job.ErrJobNotFound)
		}
		if job.Status(status) != job.StatusFailed {
			return job.ErrJobNotFailed
		}

		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending',
			    attempts = 0,
			    run_at = NOW(),
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE id = $1`, id)
		return err
	})
}

// RetryManyFailed requeues up to limit dead-lettered jobs, newest first.
func (r *JobsRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var n int64
	err := r.observe("jobs.admin.retry_many_failed", func() error {
		tag, err := r.pool.Exec(ctx, `
			WITH picked AS (
				SELECT id
				FROM jobs
				WHERE status = 'failed'
				ORDER BY updated_at DESC
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE jobs
			SET status = 'pending',
			    attempts = 0,
			    run_at = NOW(),
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE id IN (SELECT id FROM picked)`, limit)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})

	return n, err
}

// CountByStatus feeds the worker stats endpoint.
func (r *JobsRepo) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	out := map[job.Status]int{}
	err := r.observe("jobs.count_by_status", func() error {
		rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s string
			var n int
			if err := rows.Scan(&s, &n); err != nil {
				return err
			}
			out[job.Status(s)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
