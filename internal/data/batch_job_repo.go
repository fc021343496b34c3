package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/data/pgxutil"
	"github.com/target/cyano-batch/internal/domain/model"
	apperrors "github.com/target/cyano-batch/internal/errors"
)

// Constraint names from the batch_jobs migration.
const (
	constraintBatchJobsPkey = "batch_jobs_pkey"
	constraintActivePerUser = "batch_jobs_one_active_per_user_idx"
	constraintUserJobNum    = "batch_jobs_user_job_num_key"
)

const batchJobColumns = `id, user_id, job_num, status, input_file, output_file, num_locations,
  received_at, started_at, finished_at, queue_time, exec_time`

// RepoConfig holds configuration options for the repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// BatchJobRepo provides database operations for batch job records.
type BatchJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var (
	_ core.BatchJobRepository    = (*BatchJobRepo)(nil)
	_ core.BatchReaperRepository = (*BatchJobRepo)(nil)
)

// NewBatchJobRepo creates a new BatchJobRepo with the given database connection and configuration.
func NewBatchJobRepo(db *sql.DB, cfg RepoConfig) *BatchJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchJobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "batch_job_repo"),
	}
}

// Create inserts a RECEIVED job with the next per-user job number.
// The user row is locked for the duration of the insert so concurrent requests
// for the same user are numbered sequentially; the partial unique index on
// active jobs rejects the loser of a race.
func (r *BatchJobRepo) Create(ctx context.Context, params model.CreateBatchJobParams) (*model.BatchJob, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	receivedAt := params.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.timeProvider.Now()
	}

	var job *model.BatchJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var uid int64
			if err := tx.QueryRow(ctx,
				`SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`, params.UserID,
			).Scan(&uid); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return model.ErrUserNotFound
				}
				return fmt.Errorf("lock user: %w", err)
			}

			rows, err := tx.Query(ctx, `
        INSERT INTO batch_jobs (id, user_id, job_num, status, input_file, output_file, num_locations, received_at)
        SELECT $1, $2, COALESCE(MAX(job_num), 0) + 1, $3, $4, $5, $6, $7
        FROM batch_jobs WHERE user_id = $2
        RETURNING `+batchJobColumns,
				params.ID,
				params.UserID,
				string(model.JobStatusReceived),
				params.InputFile,
				params.OutputFile,
				params.NumLocations,
				receivedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert batch job: %w", err)
			}
			job, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.BatchJob])
			return err
		},
	})
	if err != nil {
		return nil, mapCreateErr(err)
	}
	return job, nil
}

func mapCreateErr(err error) error {
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		return err
	case apperrors.IsUniqueViolation(err, constraintActivePerUser),
		apperrors.IsUniqueViolation(err, constraintUserJobNum):
		return ErrActiveJobExists
	case apperrors.IsUniqueViolation(err, constraintBatchJobsPkey):
		return ErrBatchJobExists
	case apperrors.IsForeignKeyViolation(err):
		return model.ErrUserNotFound
	default:
		return fmt.Errorf("create batch job: %w", apperrors.MapDBError(err))
	}
}

// GetByUserAndID returns the job when it exists and belongs to userID.
func (r *BatchJobRepo) GetByUserAndID(ctx context.Context, userID int64, jobID string) (*model.BatchJob, error) {
	return r.queryOne(ctx, `SELECT `+batchJobColumns+` FROM batch_jobs WHERE id = $1 AND user_id = $2`, jobID, userID)
}

// GetByID returns the job with the given id regardless of owner.
func (r *BatchJobRepo) GetByID(ctx context.Context, jobID string) (*model.BatchJob, error) {
	return r.queryOne(ctx, `SELECT `+batchJobColumns+` FROM batch_jobs WHERE id = $1`, jobID)
}

// GetActiveByUser returns the user's active job or ErrBatchJobNotFound.
func (r *BatchJobRepo) GetActiveByUser(ctx context.Context, userID int64) (*model.BatchJob, error) {
	return r.queryOne(ctx, `
    SELECT `+batchJobColumns+` FROM batch_jobs
    WHERE user_id = $1 AND status = ANY($2::text[])
    ORDER BY job_num DESC
    LIMIT 1`, userID, model.StatusStrings(model.ActiveJobStatuses()))
}

// ListByUser returns every job of the user, newest first.
func (r *BatchJobRepo) ListByUser(ctx context.Context, userID int64) ([]*model.BatchJob, error) {
	var jobs []*model.BatchJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
      SELECT `+batchJobColumns+` FROM batch_jobs
      WHERE user_id = $1
      ORDER BY job_num DESC`, userID)
		if err != nil {
			return err
		}
		jobs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.BatchJob])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", apperrors.MapDBError(err))
	}
	if jobs == nil {
		jobs = []*model.BatchJob{}
	}
	return jobs, nil
}

func (r *BatchJobRepo) queryOne(ctx context.Context, query string, args ...any) (*model.BatchJob, error) {
	var job *model.BatchJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		job, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.BatchJob])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// startablePredecessors are the statuses a worker may move to STARTED.
func startablePredecessors() []string {
	return model.StatusStrings([]model.JobStatus{
		model.JobStatusReceived, model.JobStatusPending, model.JobStatusRetry,
	})
}

// finishPredecessors returns the statuses from which status may be entered.
// SUCCESS requires a started job; FAILURE and REVOKED may end any active job.
func finishPredecessors(status model.JobStatus) []string {
	if status == model.JobStatusSuccess {
		return []string{string(model.JobStatusStarted)}
	}
	return model.StatusStrings(model.ActiveJobStatuses())
}

// MarkStarted moves an eligible job to STARTED and records the start time.
func (r *BatchJobRepo) MarkStarted(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
    UPDATE batch_jobs
    SET status = $2, started_at = $3
    WHERE id = $1
      AND status = ANY($4::text[])
      AND started_at IS NULL`,
		jobID, string(model.JobStatusStarted), startedAt.UTC(), startablePredecessors())
	if err != nil {
		return false, fmt.Errorf("mark batch job started: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkFinished moves an active job to a terminal status. Queue and execution
// times are derived in whole seconds from the stored timestamps.
func (r *BatchJobRepo) MarkFinished(ctx context.Context, jobID string, params model.FinishBatchJobParams) (bool, error) {
	if !params.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %s", ErrInvalidTransition, params.Status)
	}
	finishedAt := params.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = r.timeProvider.Now()
	}

	res, err := r.DB.ExecContext(ctx, `
    UPDATE batch_jobs
    SET status = $2,
        finished_at = $3::timestamptz,
        queue_time = CASE
          WHEN started_at IS NULL THEN NULL
          ELSE GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (started_at - received_at))))::integer
        END,
        exec_time = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($3::timestamptz - received_at))))::integer
    WHERE id = $1
      AND status = ANY($4::text[])`,
		jobID, string(params.Status), finishedAt.UTC(), finishPredecessors(params.Status))
	if err != nil {
		return false, fmt.Errorf("mark batch job finished: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "finish skipped, job not in an eligible state",
			"job_id", jobID, "status", params.Status)
	}
	return n == 1, nil
}
