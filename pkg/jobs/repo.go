package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/northstarcredit/core/pkg/dbtx"
)

// repo is the storage layer behind Scheduler. It expects a `jobs` table
// (id, type, unique_per_type, created_at) and a `job_executions` table
// (id, data, state, attempt_index, execute_at, alive_at, completed_at),
// as created by the platform's migrations.
type repo struct {
	db *sql.DB
}

func newRepo(db *sql.DB) *repo {
	return &repo{db: db}
}

// schedule inserts a job and its first pending execution. It runs against
// whatever executor ctx carries, so callers can enqueue a job in the same
// transaction as the business event that triggered it.
func (r *repo) schedule(ctx context.Context, id, jobType string, uniquePerType bool, payload any, executeAt time.Time) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx,
		`INSERT INTO jobs (id, type, unique_per_type) VALUES ($1, $2, $3)`,
		id, jobType, uniquePerType); err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx,
		`INSERT INTO job_executions (id, data, state, attempt_index, execute_at)
		 VALUES ($1, $2, 'pending', 0, $3)`,
		id, data, executeAt)

	return err
}

type claimedRow struct {
	id      string
	jobType string
	data    json.RawMessage
	attempt int
}

// claimBatch atomically claims up to n pending executions whose
// execute_at has arrived, skipping rows any other worker already has
// locked, and marks them running.
func (r *repo) claimBatch(ctx context.Context, n int, now time.Time) ([]claimedRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH selected AS (
			SELECT je.id FROM job_executions je
			WHERE je.state = 'pending' AND je.execute_at <= $1
			ORDER BY je.execute_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		),
		updated AS (
			UPDATE job_executions je
			SET state = 'running', alive_at = $1, execute_at = NULL
			FROM selected
			WHERE je.id = selected.id
			RETURNING je.id, je.attempt_index
		)
		SELECT updated.id, jobs.type, job_executions.data, updated.attempt_index
		FROM updated
		JOIN jobs ON jobs.id = updated.id
		JOIN job_executions ON job_executions.id = updated.id`,
		now, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []claimedRow

	for rows.Next() {
		var c claimedRow
		if err := rows.Scan(&c.id, &c.jobType, &c.data, &c.attempt); err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// keepAlive renews a running job's lease so the lost-job reclaimer leaves
// it alone.
func (r *repo) keepAlive(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE job_executions SET alive_at = $2 WHERE id = $1 AND state = 'running'`,
		id, at)

	return err
}

// reclaimLost moves every running execution whose lease went stale back
// to pending, bumping its attempt counter, and returns the job type of
// each reclaimed execution (for the lost_total metric).
func (r *repo) reclaimLost(ctx context.Context, staleBefore, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH lost AS (
			UPDATE job_executions je
			SET state = 'pending', execute_at = $2, attempt_index = attempt_index + 1
			WHERE state = 'running' AND alive_at < $1
			RETURNING je.id
		)
		SELECT jobs.type FROM lost JOIN jobs ON jobs.id = lost.id`,
		staleBefore, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []string

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}

		types = append(types, t)
	}

	return types, rows.Err()
}

// complete marks an execution terminal, running op (if any) in the same
// transaction.
func (r *repo) complete(ctx context.Context, id string, now time.Time, op func(ctx context.Context) error) error {
	return dbtx.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		if op != nil {
			if err := op(ctx); err != nil {
				return err
			}
		}

		exec := dbtx.GetExecutor(ctx, r.db)
		_, err := exec.ExecContext(ctx,
			`UPDATE job_executions SET state = 'completed', completed_at = $2 WHERE id = $1`,
			id, now)

		return err
	})
}

// reschedule sets an execution's next execute_at without advancing its
// attempt counter (a voluntary reschedule is not a failure), running op
// (if any) in the same transaction.
func (r *repo) reschedule(ctx context.Context, id string, executeAt time.Time, op func(ctx context.Context) error) error {
	return dbtx.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		if op != nil {
			if err := op(ctx); err != nil {
				return err
			}
		}

		exec := dbtx.GetExecutor(ctx, r.db)
		_, err := exec.ExecContext(ctx,
			`UPDATE job_executions SET state = 'pending', execute_at = $2 WHERE id = $1`,
			id, executeAt)

		return err
	})
}

// retryOrDeadLetter advances the attempt counter after a failed run. If
// attempt has reached MaxAttempts the execution is marked 'failed'
// (dead-lettered) instead of rescheduled.
func (r *repo) retryOrDeadLetter(ctx context.Context, id string, attempt int, nextAttemptAt time.Time) (deadLettered bool, err error) {
	if attempt >= MaxAttempts {
		_, err = r.db.ExecContext(ctx,
			`UPDATE job_executions SET state = 'failed', attempt_index = $2 WHERE id = $1`,
			id, attempt)

		return true, err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE job_executions SET state = 'pending', execute_at = $2, attempt_index = $3 WHERE id = $1`,
		id, nextAttemptAt, attempt)

	return false, err
}
