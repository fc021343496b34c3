package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	"github.com/target/cyano-batch/internal/observability/metrics"
	"github.com/target/cyano-batch/internal/observability/statsd"
)

// Response texts shared with the web client.
const (
	StatusSuccess          = "success"
	StatusJobNotFound      = "Failed - job not found."
	StatusUserNotFound     = "Failed - user not found."
	StatusJobFailed        = "Failed - error processing job."
	StatusStartFailed      = "Failed - error starting job"
	StatusActiveJobExists  = "Failed - user already has a job in progress"
	StatusCancelFailed     = "Failed - error canceling job"
	ErrorUserJobNotFound   = "User job not found"
	statusLimitExceededFmt = "Failed - number of locations exceeds limit (%d)"
	statusJobStartedFmt    = "Job started.\nAn email will be sent to %s when the job is complete"
)

const defaultLocationsLimit = 10000

// StartOutcome classifies the result of StartBatchJob for the transport layer.
type StartOutcome int

const (
	// StartAccepted means the job was recorded and queued.
	StartAccepted StartOutcome = iota
	// StartRejected means a business rule refused the request; nothing was recorded.
	StartRejected
	// StartFailed means the job was recorded but could not be queued.
	StartFailed
)

// StartBatchJobResult is the response of StartBatchJob.
type StartBatchJobResult struct {
	Outcome   StartOutcome    `json:"-"`
	Status    string          `json:"status"`
	JobStatus string          `json:"job_status"`
	JobID     string          `json:"job_id"`
	Job       *model.BatchJob `json:"job,omitempty"`
}

// BatchStatusResult is the response of GetBatchStatus.
type BatchStatusResult struct {
	Status    string          `json:"status"`
	JobID     string          `json:"job_id"`
	JobStatus string          `json:"job_status"`
	Message   string          `json:"message,omitempty"`
	Job       *model.BatchJob `json:"job,omitempty"`
}

// BatchJobsResult is the response of GetAllBatchJobs and GetBatchJob.
type BatchJobsResult struct {
	Status string            `json:"status"`
	Jobs   []*model.BatchJob `json:"jobs"`
}

// CancelBatchJobResult is the response of CancelBatchJob.
type CancelBatchJobResult struct {
	Error     string `json:"error,omitempty"`
	Status    string `json:"status,omitempty"`
	JobStatus string `json:"job_status,omitempty"`
}

// BatchServiceConfig holds tunables for BatchService.
type BatchServiceConfig struct {
	LocationsLimit int
	Now            func() time.Time
	NewID          func() string
}

// BatchServiceOptions groups dependencies for BatchService.
type BatchServiceOptions struct {
	Jobs    core.BatchJobRepository // Required
	Users   core.UserRepository     // Required
	Broker  core.TaskBroker         // Required
	Config  BatchServiceConfig
	Logger  *slog.Logger
	Metrics statsd.Sink // Optional
}

// BatchService accepts batch requests, records them and hands them to the task queue.
// It also answers status, listing and cancellation requests from job owners.
type BatchService struct {
	jobs    core.BatchJobRepository
	users   core.UserRepository
	broker  core.TaskBroker
	limit   int
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewBatchService constructs a BatchService.
func NewBatchService(opts BatchServiceOptions) (*BatchService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("BatchJobRepository is required")
	}
	if opts.Users == nil {
		return nil, errors.New("UserRepository is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("TaskBroker is required")
	}
	limit := opts.Config.LocationsLimit
	if limit <= 0 {
		limit = defaultLocationsLimit
	}
	now := opts.Config.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.Config.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchService{
		jobs:    opts.Jobs,
		users:   opts.Users,
		broker:  opts.Broker,
		limit:   limit,
		now:     now,
		newID:   newID,
		logger:  logger.With("component", "batch_service"),
		metrics: opts.Metrics,
	}, nil
}

// MustNewBatchService constructs a BatchService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewBatchService(opts BatchServiceOptions) *BatchService {
	svc, err := NewBatchService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create BatchService: %v", err))
	}
	return svc
}

// LocationsLimit returns the maximum number of locations per job.
func (s *BatchService) LocationsLimit() int { return s.limit }

// StartBatchJob validates the request, records a RECEIVED job and submits it to the broker.
//
// Returned errors are invalid requests (model.ErrInvalidRequest, model.ErrInvalidFilename)
// and store failures. Unknown users, business rule refusals and broker failures are
// reported through the result.
func (s *BatchService) StartBatchJob(ctx context.Context, req model.StartBatchJobRequest) (*StartBatchJobResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	outputFile, err := model.OutputFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByUsername(ctx, req.Username)
	if errors.Is(err, model.ErrUserNotFound) {
		s.emit(metrics.TransitionSubmit, metrics.ResultNoop, nil)
		return &StartBatchJobResult{Outcome: StartRejected, Status: StatusUserNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if len(req.Locations) > s.limit {
		s.emit(metrics.TransitionSubmit, metrics.ResultNoop, nil)
		return &StartBatchJobResult{
			Outcome: StartRejected,
			Status:  fmt.Sprintf(statusLimitExceededFmt, s.limit),
		}, nil
	}

	active, err := s.jobs.GetActiveByUser(ctx, user.ID)
	switch {
	case err == nil:
		return s.rejectActive(active), nil
	case !errors.Is(err, model.ErrBatchJobNotFound):
		return nil, fmt.Errorf("check active job: %w", err)
	}

	job, err := s.jobs.Create(ctx, model.CreateBatchJobParams{
		ID:           s.newID(),
		UserID:       user.ID,
		InputFile:    req.Filename,
		OutputFile:   outputFile,
		NumLocations: len(req.Locations),
		ReceivedAt:   s.now(),
	})
	if errors.Is(err, model.ErrActiveJobExists) {
		// Lost a race with a concurrent request for the same user.
		active, getErr := s.jobs.GetActiveByUser(ctx, user.ID)
		if getErr != nil {
			active = nil
		}
		return s.rejectActive(active), nil
	}
	if errors.Is(err, model.ErrUserNotFound) {
		// The account was removed between the lookup and the insert.
		return &StartBatchJobResult{Outcome: StartRejected, Status: StatusUserNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record batch job: %w", err)
	}

	msg := &model.TaskMessage{
		JobID:      job.ID,
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Filename:   req.Filename,
		Locations:  req.Locations,
		EnqueuedAt: s.now(),
	}
	if err := s.broker.Submit(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to submit batch task", "job_id", job.ID, "error", err)
		s.emit(metrics.TransitionSubmit, metrics.ResultError, err)
		return s.startFailed(job, string(job.Status)), nil
	}

	state, err := s.broker.Status(ctx, job.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read back task state", "job_id", job.ID, "error", err)
		s.emit(metrics.TransitionSubmit, metrics.ResultError, err)
		return s.startFailed(job, string(job.Status)), nil
	}
	if state.IsFailed() {
		s.emit(metrics.TransitionSubmit, metrics.ResultError, nil)
		return s.startFailed(job, string(state)), nil
	}

	s.logger.InfoContext(ctx, "batch job started",
		"job_id", job.ID, "user_id", user.ID, "job_num", job.JobNum, "locations", job.NumLocations)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionSubmit,
		Result:     metrics.ResultSuccess,
		Locations:  job.NumLocations,
	})
	return &StartBatchJobResult{
		Outcome:   StartAccepted,
		Status:    fmt.Sprintf(statusJobStartedFmt, user.Email),
		JobStatus: string(state),
		JobID:     job.ID,
		Job:       job,
	}, nil
}

func (s *BatchService) rejectActive(active *model.BatchJob) *StartBatchJobResult {
	s.emit(metrics.TransitionSubmit, metrics.ResultNoop, nil)
	res := &StartBatchJobResult{Outcome: StartRejected, Status: StatusActiveJobExists}
	if active != nil {
		res.JobStatus = string(active.Status)
		res.JobID = active.ID
	}
	return res
}

func (s *BatchService) startFailed(job *model.BatchJob, jobStatus string) *StartBatchJobResult {
	return &StartBatchJobResult{
		Outcome:   StartFailed,
		Status:    StatusStartFailed,
		JobStatus: jobStatus,
		JobID:     job.ID,
		Job:       job,
	}
}

// userJob loads a job owned by username. Unknown users and foreign jobs are both not found.
func (s *BatchService) userJob(ctx context.Context, username, jobID string) (*model.BatchJob, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, model.ErrBatchJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if jobID == "" {
		return nil, model.ErrBatchJobNotFound
	}
	return s.jobs.GetByUserAndID(ctx, user.ID, jobID)
}

// GetBatchStatus reports the stored status of one of the user's jobs with a queue message.
func (s *BatchService) GetBatchStatus(ctx context.Context, username, jobID string) (*BatchStatusResult, error) {
	job, err := s.userJob(ctx, username, jobID)
	if errors.Is(err, model.ErrBatchJobNotFound) {
		return &BatchStatusResult{Status: StatusJobNotFound, JobID: jobID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch status: %w", err)
	}

	res := &BatchStatusResult{
		JobID:     job.ID,
		JobStatus: string(job.Status),
		Job:       job,
	}
	if job.Status.IsFailed() {
		res.Status = StatusJobFailed
	}
	res.Message = model.TaskMessageFor(job.ID, s.queueState(ctx, job))
	return res, nil
}

// queueState prefers the stored status once the job is terminal; the broker
// forgets tasks after its retention window.
func (s *BatchService) queueState(ctx context.Context, job *model.BatchJob) model.TaskState {
	if job.Status.IsTerminal() {
		return job.Status
	}
	state, err := s.broker.Status(ctx, job.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "task state unavailable", "job_id", job.ID, "error", err)
		return ""
	}
	return state
}

// GetAllBatchJobs lists the user's jobs, newest first.
func (s *BatchService) GetAllBatchJobs(ctx context.Context, username string) (*BatchJobsResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, model.ErrUserNotFound) {
		return &BatchJobsResult{Status: StatusSuccess, Jobs: []*model.BatchJob{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	jobs, err := s.jobs.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	return &BatchJobsResult{Status: StatusSuccess, Jobs: jobs}, nil
}

// GetBatchJob returns a single job in the list shape used by GetAllBatchJobs.
func (s *BatchService) GetBatchJob(ctx context.Context, username, jobID string) (*BatchJobsResult, error) {
	job, err := s.userJob(ctx, username, jobID)
	if errors.Is(err, model.ErrBatchJobNotFound) {
		return &BatchJobsResult{Status: StatusJobNotFound, Jobs: []*model.BatchJob{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch job: %w", err)
	}
	return &BatchJobsResult{Status: StatusSuccess, Jobs: []*model.BatchJob{job}}, nil
}

// CancelBatchJob revokes the task and marks an active job REVOKED. Finished jobs
// keep their status. A running task is not interrupted; the worker notices the
// revocation at its next check and stops without emailing.
func (s *BatchService) CancelBatchJob(ctx context.Context, username, jobID string) (*CancelBatchJobResult, error) {
	job, err := s.userJob(ctx, username, jobID)
	if errors.Is(err, model.ErrBatchJobNotFound) {
		return &CancelBatchJobResult{Error: ErrorUserJobNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cancel batch job: %w", err)
	}
	if job.Status.IsTerminal() {
		return &CancelBatchJobResult{Status: StatusSuccess, JobStatus: string(job.Status)}, nil
	}

	status := StatusSuccess
	if err := s.broker.Cancel(ctx, job.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke task", "job_id", job.ID, "error", err)
		status = StatusCancelFailed
	}

	changed, err := s.jobs.MarkFinished(ctx, job.ID, model.FinishBatchJobParams{
		Status:     model.JobStatusRevoked,
		FinishedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("revoke batch job: %w", err)
	}
	final := model.JobStatusRevoked
	if !changed {
		// Finished concurrently; report what is stored.
		if cur, getErr := s.jobs.GetByID(ctx, job.ID); getErr == nil {
			final = cur.Status
		}
	}

	result := metrics.ResultSuccess
	if !changed {
		result = metrics.ResultNoop
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionCancel,
		Result:     result,
		Duration:   s.now().Sub(job.ReceivedAt),
	})
	s.logger.InfoContext(ctx, "batch job canceled", "job_id", job.ID, "status", final, "revoked", changed)
	return &CancelBatchJobResult{Status: status, JobStatus: string(final)}, nil
}

func (s *BatchService) emit(transition, result string, err error) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: transition, Result: result, Err: err})
}
