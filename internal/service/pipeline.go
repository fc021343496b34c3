package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	obserrors "github.com/target/cyano-batch/internal/observability/errors"
	"github.com/target/cyano-batch/internal/observability/metrics"
	"github.com/target/cyano-batch/internal/observability/notify"
	"github.com/target/cyano-batch/internal/observability/statsd"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
)

// ErrJobFailed is returned by Pipeline.Run after a job was marked FAILURE.
var ErrJobFailed = errors.New("batch job failed")

// PipelineConfig holds tunables for Pipeline.
type PipelineConfig struct {
	// FetchDelay is the pause between consecutive fetches. Zero disables it.
	FetchDelay time.Duration
	// FetchTimeout bounds each fetch attempt. Defaults to 30s.
	FetchTimeout time.Duration
	// FetchRetries is the number of extra attempts per location.
	FetchRetries int
	// FetchBackoff is the first retry delay; it doubles per attempt.
	FetchBackoff time.Duration
	// CancelCheckEvery is the number of fetches between revocation checks and
	// heartbeats. Defaults to 20.
	CancelCheckEvery int
	// NotifyOnFailure emails the owner when a job fails.
	NotifyOnFailure bool
	Now             func() time.Time
}

// PipelineOptions groups dependencies for Pipeline.
type PipelineOptions struct {
	Jobs            core.BatchJobRepository // Required
	Broker          core.TaskBroker         // Required
	Fetcher         core.LocationFetcher    // Required
	Aggregator      core.ResultAggregator   // Required
	Notifier        core.JobNotifier        // Required
	FailureNotifier *failurenotifier.Service
	Config          PipelineConfig
	Logger          *slog.Logger
	Metrics         statsd.Sink
}

// Pipeline executes one batch task: fetch every location, build the CSV,
// email it and record the outcome.
type Pipeline struct {
	jobs            core.BatchJobRepository
	broker          core.TaskBroker
	fetcher         core.LocationFetcher
	aggregator      core.ResultAggregator
	notifier        core.JobNotifier
	failureNotifier *failurenotifier.Service
	cfg             PipelineConfig
	logger          *slog.Logger
	metrics         statsd.Sink
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("BatchJobRepository is required")
	case opts.Broker == nil:
		return nil, errors.New("TaskBroker is required")
	case opts.Fetcher == nil:
		return nil, errors.New("LocationFetcher is required")
	case opts.Aggregator == nil:
		return nil, errors.New("ResultAggregator is required")
	case opts.Notifier == nil:
		return nil, errors.New("JobNotifier is required")
	}
	cfg := opts.Config
	if cfg.FetchDelay < 0 {
		cfg.FetchDelay = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = 500 * time.Millisecond
	}
	if cfg.CancelCheckEvery <= 0 {
		cfg.CancelCheckEvery = 20
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		jobs:            opts.Jobs,
		broker:          opts.Broker,
		fetcher:         opts.Fetcher,
		aggregator:      opts.Aggregator,
		notifier:        opts.Notifier,
		failureNotifier: opts.FailureNotifier,
		cfg:             cfg,
		logger:          logger.With("component", "batch_pipeline"),
		metrics:         opts.Metrics,
	}, nil
}

// MustNewPipeline constructs a Pipeline and panics on error.
func MustNewPipeline(opts PipelineOptions) *Pipeline {
	p, err := NewPipeline(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create Pipeline: %v", err))
	}
	return p
}

// run carries per-task state through the pipeline stages.
type run struct {
	msg    *model.TaskMessage
	job    *model.BatchJob
	logger *slog.Logger
}

// Run processes msg. Jobs that are missing, terminal or revoked mid-run are
// skipped and return nil. A stage failure marks the job FAILURE and returns an
// error wrapping ErrJobFailed. Cancellation of ctx leaves the job STARTED for
// the reaper or a requeue and returns the context error.
func (p *Pipeline) Run(ctx context.Context, msg *model.TaskMessage) error {
	if msg == nil {
		return errors.New("task message is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	r := &run{msg: msg, logger: p.logger.With("job_id", msg.JobID, "attempt", msg.Attempt)}

	job, err := p.jobs.GetByUserAndID(ctx, msg.UserID, msg.JobID)
	if errors.Is(err, model.ErrBatchJobNotFound) {
		r.logger.WarnContext(ctx, "task has no job record; dropping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}
	if job.Status.IsTerminal() {
		r.logger.InfoContext(ctx, "job already finished; skipping", "status", job.Status)
		p.markState(ctx, r, job.Status)
		return nil
	}
	r.job = job

	ok, err := p.start(ctx, r)
	if err != nil || !ok {
		return err
	}

	phase := model.PhaseNone
	if msg.Attempt > 0 {
		phase = p.phase(ctx, r)
	}
	if phase == model.PhaseNotified {
		r.logger.InfoContext(ctx, "completion email already sent; finalizing")
		return p.complete(ctx, r)
	}

	responses, stop, err := p.fetchAll(ctx, r)
	if err != nil {
		return p.fail(ctx, r, notify.StageFetch, err)
	}
	if stop {
		return nil
	}
	p.checkpoint(ctx, r, model.PhaseFetched)

	artifact, err := p.aggregator.CreateCSV(ctx, core.CreateCSVRequest{
		UserID:        msg.UserID,
		InputFilename: msg.Filename,
		Responses:     responses,
	})
	if err != nil {
		return p.fail(ctx, r, notify.StageAggregate, fmt.Errorf("create csv: %w", err))
	}

	revoked, err := p.revoked(ctx, r)
	if err != nil {
		return err
	}
	if revoked {
		p.discard(ctx, r)
		return nil
	}

	err = p.notifier.NotifyComplete(ctx, core.NotifyParams{JobID: msg.JobID, Email: msg.Email, Artifact: artifact})
	if err != nil {
		return p.fail(ctx, r, notify.StageNotify, err)
	}
	p.checkpoint(ctx, r, model.PhaseNotified)

	return p.complete(ctx, r)
}

// start moves the job to STARTED. A redelivered task resumes a job that is already STARTED.
func (p *Pipeline) start(ctx context.Context, r *run) (bool, error) {
	if r.job.Status == model.JobStatusStarted && r.msg.Attempt > 0 {
		r.logger.InfoContext(ctx, "resuming started job")
		p.markState(ctx, r, model.JobStatusStarted)
		return true, nil
	}

	now := p.cfg.Now()
	changed, err := p.jobs.MarkStarted(ctx, r.job.ID, now)
	if err != nil {
		return false, fmt.Errorf("mark job %s started: %w", r.job.ID, err)
	}
	if !changed {
		r.logger.InfoContext(ctx, "job is no longer startable; skipping")
		return false, nil
	}
	r.job.Status = model.JobStatusStarted
	r.job.StartedAt = &now
	p.markState(ctx, r, model.JobStatusStarted)

	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		Transition: metrics.TransitionStart,
		Result:     metrics.ResultSuccess,
		Duration:   now.Sub(r.job.ReceivedAt),
		Locations:  len(r.msg.Locations),
	})
	r.logger.InfoContext(ctx, "job started", "locations", len(r.msg.Locations))
	return true, nil
}

// fetchAll fetches every location in order. stop is true when the job was revoked meanwhile.
// Each revocation check that finds the job still running also refreshes the heartbeat.
func (p *Pipeline) fetchAll(ctx context.Context, r *run) ([]model.LocationResponse, bool, error) {
	responses := make([]model.LocationResponse, 0, len(r.msg.Locations))
	for i, loc := range r.msg.Locations {
		if i > 0 {
			if err := sleepCtx(ctx, p.cfg.FetchDelay); err != nil {
				return nil, false, err
			}
			if i%p.cfg.CancelCheckEvery == 0 {
				revoked, err := p.revoked(ctx, r)
				if err != nil {
					return nil, false, err
				}
				if revoked {
					return nil, true, nil
				}
				p.heartbeat(ctx, r)
			}
		}
		resp, err := p.fetch(ctx, loc)
		if err != nil {
			return nil, false, fmt.Errorf("fetch location %d (%v, %v): %w", i, loc.Latitude, loc.Longitude, err)
		}
		responses = append(responses, resp)
	}
	return responses, false, nil
}

func (p *Pipeline) fetch(ctx context.Context, loc model.LocationRequest) (model.LocationResponse, error) {
	start := time.Now()
	backoff := p.cfg.FetchBackoff
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff); err != nil {
				lastErr = err
				break
			}
			backoff *= 2
		}
		attempts++
		fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		resp, err := p.fetcher.FetchLocation(fctx, loc)
		cancel()
		if err == nil {
			metrics.EmitFetch(p.metrics, metrics.FetchMetric{Duration: time.Since(start), Attempts: attempts})
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	metrics.EmitFetch(p.metrics, metrics.FetchMetric{Duration: time.Since(start), Attempts: attempts, Err: lastErr})
	return nil, lastErr
}

// revoked re-reads the job so a cancel issued after pickup stops the run.
func (p *Pipeline) revoked(ctx context.Context, r *run) (bool, error) {
	job, err := p.jobs.GetByID(ctx, r.job.ID)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.logger.WarnContext(ctx, "revocation check failed", "error", err)
		return false, nil
	}
	if !job.Status.IsTerminal() {
		return false, nil
	}
	r.logger.InfoContext(ctx, "job finished elsewhere; stopping", "status", job.Status)
	p.markState(ctx, r, job.Status)
	return true, nil
}

// discard removes the artifact of a run that will not be delivered.
func (p *Pipeline) discard(ctx context.Context, r *run) {
	if _, err := p.aggregator.RemoveCSV(ctx, r.msg.UserID, r.msg.Filename); err != nil {
		r.logger.WarnContext(ctx, "failed to remove undelivered csv", "error", err)
	}
}

func (p *Pipeline) complete(ctx context.Context, r *run) error {
	if _, err := p.aggregator.RemoveCSV(ctx, r.msg.UserID, r.msg.Filename); err != nil {
		// Delivered already; the janitor removes leftovers.
		r.logger.WarnContext(ctx, "failed to remove result csv", "error", err)
	}

	finished := p.cfg.Now()
	changed, err := p.jobs.MarkFinished(ctx, r.job.ID, model.FinishBatchJobParams{
		Status:     model.JobStatusSuccess,
		FinishedAt: finished,
	})
	if err != nil {
		return fmt.Errorf("mark job %s complete: %w", r.job.ID, err)
	}
	if !changed {
		r.logger.WarnContext(ctx, "job finished elsewhere before completion was recorded")
		metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
			Transition: metrics.TransitionComplete,
			Result:     metrics.ResultNoop,
		})
		return nil
	}
	p.markState(ctx, r, model.JobStatusSuccess)

	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		Transition: metrics.TransitionComplete,
		Result:     metrics.ResultSuccess,
		Duration:   finished.Sub(r.job.ReceivedAt),
		Locations:  len(r.msg.Locations),
	})
	r.logger.InfoContext(ctx, "job complete", "duration_ms", finished.Sub(r.job.ReceivedAt).Milliseconds())
	return nil
}

// fail records a FAILURE for the job. Cancellation of ctx is not a job failure.
func (p *Pipeline) fail(ctx context.Context, r *run, stage string, cause error) error {
	if ctx.Err() != nil {
		r.logger.WarnContext(ctx, "job interrupted; leaving it for reconciliation", "stage", stage, "error", cause)
		return ctx.Err()
	}

	r.logger.ErrorContext(ctx, "job failed", "stage", stage, "error", cause)
	changed, err := p.jobs.MarkFinished(ctx, r.job.ID, model.FinishBatchJobParams{
		Status:     model.JobStatusFailure,
		FinishedAt: p.cfg.Now(),
	})
	if err != nil {
		return errors.Join(fmt.Errorf("%w: %s: %w", ErrJobFailed, stage, cause), fmt.Errorf("mark job failed: %w", err))
	}
	if !changed {
		r.logger.InfoContext(ctx, "job finished elsewhere; failure not recorded")
		return nil
	}
	p.markState(ctx, r, model.JobStatusFailure)

	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		Transition: metrics.TransitionFail,
		Result:     metrics.ResultError,
		Duration:   p.cfg.Now().Sub(r.job.ReceivedAt),
		Err:        cause,
	})

	if p.cfg.NotifyOnFailure && stage != notify.StageNotify {
		if err := p.notifier.NotifyFailed(ctx, core.NotifyParams{JobID: r.job.ID, Email: r.msg.Email}); err != nil {
			r.logger.WarnContext(ctx, "failure email not sent", "error", err)
		}
	}
	if p.failureNotifier != nil {
		p.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      r.job.ID,
			Username:   r.msg.Username,
			Stage:      stage,
			Locations:  len(r.msg.Locations),
			Attempt:    r.msg.Attempt,
			Error:      cause.Error(),
			ErrorClass: obserrors.Classify(cause),
			Metadata: map[string]string{
				"input_file": r.msg.Filename,
			},
		})
	}
	return fmt.Errorf("%w: %s: %w", ErrJobFailed, stage, cause)
}

func (p *Pipeline) phase(ctx context.Context, r *run) model.TaskPhase {
	phase, err := p.broker.Phase(ctx, r.job.ID)
	if err != nil {
		r.logger.WarnContext(ctx, "task phase unavailable; restarting from the beginning", "error", err)
		return model.PhaseNone
	}
	return phase
}

func (p *Pipeline) checkpoint(ctx context.Context, r *run, phase model.TaskPhase) {
	if err := p.broker.Checkpoint(ctx, r.job.ID, phase); err != nil {
		r.logger.WarnContext(ctx, "failed to record task phase", "phase", phase, "error", err)
	}
}

// heartbeat tells the reaper the run is alive. Best effort.
func (p *Pipeline) heartbeat(ctx context.Context, r *run) {
	if err := p.broker.Heartbeat(ctx, r.job.ID); err != nil {
		r.logger.WarnContext(ctx, "failed to record task heartbeat", "error", err)
	}
}

// markState mirrors the job status into the broker's result backend. Best effort.
func (p *Pipeline) markState(ctx context.Context, r *run, state model.TaskState) {
	if err := p.broker.MarkState(ctx, r.msg.JobID, state); err != nil {
		r.logger.WarnContext(ctx, "failed to record task state", "state", state, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
