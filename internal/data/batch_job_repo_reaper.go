package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/data/pgxutil"
	"github.com/target/cyano-batch/internal/domain/model"
	apperrors "github.com/target/cyano-batch/internal/errors"
)

// Advisory lock namespace for the reconciliation sweep.
// Two-arg pg_try_advisory_xact_lock(major, minor) keeps it apart from the migration lock.
const (
	advisoryLockReaperMajor     = 2000
	advisoryLockReaperReconcile = 1
)

// ReconcileStale locks up to BatchSize active jobs older than Before and lets fn
// decide their terminal status. Rows locked by another transaction are skipped.
// Returns (0, nil) when another instance holds the sweep lock.
func (r *BatchJobRepo) ReconcileStale(
	ctx context.Context,
	params core.StaleJobsParams,
	fn core.ReconcileFunc,
) (int64, error) {
	if fn == nil {
		return 0, errors.New("reconcile func is required")
	}
	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = model.ActiveJobStatuses()
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var transitioned int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperReconcile).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				r.logger.DebugContext(ctx, "reconcile lock held by another instance")
				return nil
			}

			jobs, err := selectStaleForUpdate(ctx, tx, staleQuery{
				statuses:  model.StatusStrings(statuses),
				params:    params,
				batchSize: batchSize,
			})
			if err != nil {
				return err
			}

			for _, job := range jobs {
				status, ok := fn(ctx, job)
				if !ok {
					continue
				}
				if !status.IsTerminal() {
					r.logger.WarnContext(ctx, "reconcile returned non-terminal status, skipping",
						"job_id", job.ID, "status", status)
					continue
				}
				done, updErr := r.finishInTx(ctx, tx, job, status)
				if updErr != nil {
					return updErr
				}
				if done {
					transitioned++
				}
			}
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile stale jobs: %w", apperrors.MapDBError(err))
	}
	return transitioned, nil
}

type staleQuery struct {
	statuses  []string
	params    core.StaleJobsParams
	batchSize int
}

func selectStaleForUpdate(ctx context.Context, tx *sql.Tx, q staleQuery) ([]*model.BatchJob, error) {
	rows, err := tx.QueryContext(ctx, `
    SELECT `+batchJobColumns+`
    FROM batch_jobs
    WHERE status = ANY($1::text[])
      AND COALESCE(started_at, received_at) < $2
    ORDER BY received_at
    LIMIT $3
    FOR UPDATE SKIP LOCKED`,
		q.statuses, q.params.Before.UTC(), q.batchSize)
	if err != nil {
		return nil, fmt.Errorf("select stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.BatchJob
	for rows.Next() {
		job, scanErr := scanBatchJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan stale job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale jobs: %w", err)
	}
	return jobs, nil
}

func (r *BatchJobRepo) finishInTx(ctx context.Context, tx *sql.Tx, job *model.BatchJob, status model.JobStatus) (bool, error) {
	now := r.timeProvider.Now()
	queue, exec := model.Durations(job.ReceivedAt, job.StartedAt, now)
	res, err := tx.ExecContext(ctx, `
    UPDATE batch_jobs
    SET status = $2, finished_at = $3, queue_time = $4, exec_time = $5
    WHERE id = $1 AND status = ANY($6::text[])`,
		job.ID, string(status), now.UTC(), queue, exec, finishPredecessors(status))
	if err != nil {
		return false, fmt.Errorf("finish stale job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

type batchJobScanner interface {
	Scan(dest ...any) error
}

func scanBatchJob(scanner batchJobScanner) (*model.BatchJob, error) {
	var (
		job                   model.BatchJob
		startedAt, finishedAt sql.NullTime
		queueTime, execTime   sql.NullInt32
	)
	if err := scanner.Scan(
		&job.ID,
		&job.UserID,
		&job.JobNum,
		&job.Status,
		&job.InputFile,
		&job.OutputFile,
		&job.NumLocations,
		&job.ReceivedAt,
		&startedAt,
		&finishedAt,
		&queueTime,
		&execTime,
	); err != nil {
		return nil, err
	}
	job.ReceivedAt = job.ReceivedAt.UTC()
	job.StartedAt = nullableTime(startedAt)
	job.FinishedAt = nullableTime(finishedAt)
	job.QueueTime = nullableInt(queueTime)
	job.ExecTime = nullableInt(execTime)
	return &job, nil
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullableInt(ni sql.NullInt32) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int32)
	return &v
}
