// Package reaper provides adapters for running the batch job reconciliation sweep.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/data"
	"github.com/target/cyano-batch/internal/observability/statsd"
	"github.com/target/cyano-batch/internal/service"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
)

// Runner owns a ReaperService and runs it as a background loop or a single pass.
type Runner struct {
	reaper *service.ReaperService
	cfg    config.ReaperConfig
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Broker core.TaskBroker
	Config config.ReaperConfig
	Logger *slog.Logger

	// Repo defaults to a BatchJobRepo over DB.
	Repo            core.BatchReaperRepository
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewBatchJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:            repo,
		Broker:          opts.Broker,
		Config:          opts.Config,
		Logger:          opts.Logger,
		Metrics:         opts.Metrics,
		FailureNotifier: opts.FailureNotifier,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, cfg: opts.Config, logger: opts.Logger.With("component", "reaper_runner")}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection is required")
	}
	if opts.Broker == nil {
		return errors.New("task broker is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reconciliation sweep scheduled",
		"interval", r.cfg.Interval,
		"received_max_age", r.cfg.ReceivedMaxAge,
		"started_max_age", r.cfg.StartedMaxAge,
		"batch_size", r.cfg.BatchSize)
	return r.reaper.Run(ctx)
}

// RunOnce performs a single sweep and reports how many jobs it finished.
// The admin reconcile command uses it.
func (r *Runner) RunOnce(ctx context.Context) (int64, error) {
	n, err := r.reaper.RunOnce(ctx)
	if err != nil {
		return n, fmt.Errorf("reconcile batch jobs: %w", err)
	}
	r.logger.InfoContext(ctx, "reconciliation pass finished", "reconciled", n)
	return n, nil
}
