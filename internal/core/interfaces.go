package core

import (
	"context"
	"time"

	"github.com/target/cyano-batch/internal/domain/model"
)

// This file contains the port definitions used by the batch services.
// Service implementations depend on these interfaces, not on concrete adapters,
// so tests can substitute gomock fakes from internal/mocks.

// BatchJobRepository defines the interface for batch job record operations.
type BatchJobRepository interface {
	// Create inserts a RECEIVED job and assigns the next per-user job number.
	// Returns model.ErrActiveJobExists when the user already owns an active job.
	Create(ctx context.Context, params model.CreateBatchJobParams) (*model.BatchJob, error)
	GetByUserAndID(ctx context.Context, userID int64, jobID string) (*model.BatchJob, error)
	GetByID(ctx context.Context, jobID string) (*model.BatchJob, error)
	// GetActiveByUser returns model.ErrBatchJobNotFound when the user has no active job.
	GetActiveByUser(ctx context.Context, userID int64) (*model.BatchJob, error)
	// ListByUser returns all jobs for the user, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*model.BatchJob, error)
	// MarkStarted moves an active, not yet started job to STARTED.
	// Returns false when the job is no longer eligible (already started, revoked or finished).
	MarkStarted(ctx context.Context, jobID string, startedAt time.Time) (bool, error)
	// MarkFinished moves an active job to a terminal status and records durations.
	// Returns false when the job was already terminal.
	MarkFinished(ctx context.Context, jobID string, params model.FinishBatchJobParams) (bool, error)
}

// StaleJobsParams selects jobs for reconciliation.
type StaleJobsParams struct {
	Statuses []model.JobStatus
	// Before is compared with started_at when set, received_at otherwise.
	Before    time.Time
	BatchSize int
}

// ReconcileFunc decides the terminal status for a stale job.
// Returning false leaves the job untouched.
type ReconcileFunc func(ctx context.Context, job *model.BatchJob) (model.JobStatus, bool)

// BatchReaperRepository defines the operations used by the reconciliation sweep.
type BatchReaperRepository interface {
	// ReconcileStale locks up to BatchSize stale jobs under an advisory lock and applies fn to each.
	// Returns the number of jobs transitioned; (0, nil) when another instance holds the lock.
	ReconcileStale(ctx context.Context, params StaleJobsParams, fn ReconcileFunc) (int64, error)
}

// UserRepository resolves account records owned by the account service.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// TaskBroker is the contract of the task queue used by the orchestrator and the workers.
type TaskBroker interface {
	// Submit schedules a task and returns immediately.
	// Connectivity failures are wrapped with model.ErrBrokerUnavailable.
	Submit(ctx context.Context, msg *model.TaskMessage) error
	// Status reports the broker-side state; unknown ids are PENDING.
	Status(ctx context.Context, jobID string) (model.TaskState, error)
	// Cancel marks a task revoked so it is never started. Running tasks are not interrupted.
	Cancel(ctx context.Context, jobID string) error
	// Reserve blocks up to wait for the next runnable task. Returns model.ErrNoTasks on timeout.
	Reserve(ctx context.Context, wait time.Duration) (*model.TaskMessage, error)
	// MarkState records worker progress in the result backend.
	MarkState(ctx context.Context, jobID string, state model.TaskState) error
	// Checkpoint records the last completed pipeline phase so a redelivery does not repeat it.
	Checkpoint(ctx context.Context, jobID string, phase model.TaskPhase) error
	Phase(ctx context.Context, jobID string) (model.TaskPhase, error)
	// Heartbeat refreshes the task's last-seen time while a worker is busy with it.
	Heartbeat(ctx context.Context, jobID string) error
	// LastSeen returns when the task was last updated, or the zero time for unknown ids.
	LastSeen(ctx context.Context, jobID string) (time.Time, error)
	// Requeue re-enqueues a tracked, unfinished task with Attempt incremented.
	Requeue(ctx context.Context, jobID string) (*model.TaskMessage, error)
	Stats(ctx context.Context) (*model.QueueStats, error)
	DeadLetters(ctx context.Context, limit int64) ([]model.DeadLetter, error)
}

// LocationFetcher retrieves water-quality data for one location from the external API.
type LocationFetcher interface {
	FetchLocation(ctx context.Context, loc model.LocationRequest) (model.LocationResponse, error)
}

// ResultAggregator turns fetched responses into the job's CSV artifact.
type ResultAggregator interface {
	CreateCSV(ctx context.Context, req CreateCSVRequest) (*model.Artifact, error)
	// RemoveCSV deletes the artifact derived from the input filename.
	// Returns false without error when the file is already gone.
	RemoveCSV(ctx context.Context, userID int64, inputFilename string) (bool, error)
}

// CreateCSVRequest groups the inputs for ResultAggregator.CreateCSV.
type CreateCSVRequest struct {
	UserID        int64
	InputFilename string
	Responses     []model.LocationResponse
}

// Mailer delivers an email through the configured relay.
type Mailer interface {
	Send(ctx context.Context, msg *model.Email) error
}

// JobNotifier tells job owners about finished jobs.
type JobNotifier interface {
	NotifyComplete(ctx context.Context, params NotifyParams) error
	NotifyFailed(ctx context.Context, params NotifyParams) error
}

// NotifyParams groups the inputs for JobNotifier calls.
type NotifyParams struct {
	JobID    string
	Email    string
	Artifact *model.Artifact
}

// ArtifactSweeper deletes result files left behind by failed or abandoned jobs.
type ArtifactSweeper interface {
	// Sweep removes artifacts older than maxAge and returns how many were removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}
