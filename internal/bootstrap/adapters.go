package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/adapters/janitor"
	"github.com/target/cyano-batch/internal/adapters/reaper"
	"github.com/target/cyano-batch/internal/adapters/worker"
	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/observability/statsd"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
)

// WorkerConfig contains configuration for the batch worker pool.
type WorkerConfig struct {
	Broker   core.TaskBroker
	Pipeline worker.TaskHandler
	Config   config.WorkerConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RunWorker consumes batch tasks until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	runner, err := worker.NewRunner(worker.RunnerOptions{
		Broker:      cfg.Broker,
		Handler:     cfg.Pipeline,
		Concurrency: cfg.Config.Concurrency,
		PollWait:    cfg.Config.PollWait,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB              *sql.DB
	Broker          core.TaskBroker
	Repo            core.BatchReaperRepository
	Logger          *slog.Logger
	Config          config.ReaperConfig
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// NewReaperRunner builds the reaper adapter; the admin CLI uses it for one-off sweeps.
func NewReaperRunner(cfg ReaperConfig) (*reaper.Runner, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:              cfg.DB,
		Broker:          cfg.Broker,
		Repo:            cfg.Repo,
		Config:          cfg.Config,
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper runner: %w", err)
	}
	return runner, nil
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := NewReaperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// JanitorConfig contains configuration for the artifact janitor.
type JanitorConfig struct {
	Sweeper core.ArtifactSweeper
	Config  config.JanitorConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// RunJanitor removes stale result files on the configured cron schedule.
func RunJanitor(ctx context.Context, cfg JanitorConfig) error {
	j, err := janitor.New(janitor.Options{
		Sweeper:  cfg.Sweeper,
		Schedule: cfg.Config.Schedule,
		MaxAge:   cfg.Config.MaxAge,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create artifact janitor: %w", err)
	}
	return j.Run(ctx)
}
