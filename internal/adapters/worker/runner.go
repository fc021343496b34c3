// Package worker runs batch tasks pulled from the task broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	obserrors "github.com/target/cyano-batch/internal/observability/errors"
	"github.com/target/cyano-batch/internal/observability/metrics"
	"github.com/target/cyano-batch/internal/observability/statsd"
)

// TaskHandler executes one task. service.Pipeline implements it.
type TaskHandler interface {
	Run(ctx context.Context, msg *model.TaskMessage) error
}

// HandlerFunc adapts a function to TaskHandler.
type HandlerFunc func(ctx context.Context, msg *model.TaskMessage) error

// Run implements TaskHandler.
func (f HandlerFunc) Run(ctx context.Context, msg *model.TaskMessage) error { return f(ctx, msg) }

// RunnerOptions configures the worker runner.
type RunnerOptions struct {
	Broker  core.TaskBroker // Required
	Handler TaskHandler     // Required

	Concurrency int           // number of worker goroutines; defaults to 1
	PollWait    time.Duration // how long Reserve blocks; defaults to 5s
	// ErrorBackoff is the pause after a broker error; defaults to 1s.
	ErrorBackoff time.Duration
	// StatsInterval controls queue gauge emission; defaults to 30s. Needs Metrics.
	StatsInterval time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner reserves tasks and hands them to the handler on a fixed number of goroutines.
type Runner struct {
	broker        core.TaskBroker
	handler       TaskHandler
	workers       int
	pollWait      time.Duration
	errorBackoff  time.Duration
	statsInterval time.Duration
	logger        *slog.Logger
	metrics       statsd.Sink
}

// NewRunner validates the options and returns a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Broker == nil {
		return nil, errors.New("task broker is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("task handler is required")
	}
	r := &Runner{
		broker:        opts.Broker,
		handler:       opts.Handler,
		workers:       max(opts.Concurrency, 1),
		pollWait:      opts.PollWait,
		errorBackoff:  opts.ErrorBackoff,
		statsInterval: opts.StatsInterval,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	if r.pollWait <= 0 {
		r.pollWait = 5 * time.Second
	}
	if r.errorBackoff <= 0 {
		r.errorBackoff = time.Second
	}
	if r.statsInterval <= 0 {
		r.statsInterval = 30 * time.Second
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "batch_worker")
	return r, nil
}

// Run starts the workers and blocks until ctx is cancelled. Returns nil on shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting batch worker", "workers", r.workers, "poll_wait", r.pollWait)

	group, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		group.Go(func() error { return r.workerLoop(gctx, i) })
	}
	if r.metrics != nil {
		group.Go(func() error { return r.statsLoop(gctx) })
	}
	err := group.Wait()
	r.logger.InfoContext(ctx, "batch worker stopped")
	return err
}

func (r *Runner) workerLoop(ctx context.Context, id int) error {
	logger := r.logger.With("worker", id)
	for ctx.Err() == nil {
		msg, err := r.broker.Reserve(ctx, r.pollWait)
		switch {
		case err == nil:
			r.process(ctx, logger, msg)
		case errors.Is(err, model.ErrNoTasks):
		case ctx.Err() != nil:
			return nil
		default:
			logger.ErrorContext(ctx, "failed to reserve task", "error", err)
			if !sleep(ctx, r.errorBackoff) {
				return nil
			}
		}
	}
	return nil
}

// process runs the handler. Panics are contained so one bad task cannot stop the worker.
func (r *Runner) process(ctx context.Context, logger *slog.Logger, msg *model.TaskMessage) {
	logger = logger.With("job_id", msg.JobID)
	start := time.Now()
	err := r.safeRun(ctx, msg)
	elapsed := time.Since(start)

	result := metrics.ResultSuccess
	switch {
	case err == nil:
		logger.InfoContext(ctx, "task processed", "duration_ms", elapsed.Milliseconds())
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		result = metrics.ResultNoop
		logger.WarnContext(ctx, "task interrupted by shutdown", "duration_ms", elapsed.Milliseconds())
	default:
		result = metrics.ResultError
		logger.ErrorContext(ctx, "task failed", "error", err, "duration_ms", elapsed.Milliseconds())
	}
	r.emitTask(result, elapsed, err)
}

func (r *Runner) safeRun(ctx context.Context, msg *model.TaskMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "task handler panic",
				"job_id", msg.JobID, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("task handler panic: %v", rec)
			if markErr := r.broker.MarkState(context.WithoutCancel(ctx), msg.JobID, model.JobStatusFailure); markErr != nil {
				r.logger.WarnContext(ctx, "failed to record task state", "job_id", msg.JobID, "error", markErr)
			}
		}
	}()
	return r.handler.Run(ctx, msg)
}

func (r *Runner) emitTask(result string, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}
	tags := map[string]string{"result": result}
	if err != nil && result == metrics.ResultError {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	r.metrics.Count("batch.worker.task", 1, tags)
	r.metrics.Timing("batch.worker.task_duration", elapsed, metrics.CloneTags(tags))
}

// statsLoop periodically reports broker backlog.
func (r *Runner) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.statsInterval)
	defer ticker.Stop()
	for {
		r.reportStats(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) reportStats(ctx context.Context) {
	stats, err := r.broker.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.WarnContext(ctx, "failed to read queue stats", "error", err)
		}
		return
	}
	metrics.QueueGauges(r.metrics, stats.Queued, stats.Revoked, stats.DeadLetters)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
