// Package janitor periodically removes result files that no job will deliver.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/observability/metrics"
	"github.com/target/cyano-batch/internal/observability/statsd"
)

// Options configures a Janitor.
type Options struct {
	Sweeper  core.ArtifactSweeper // Required
	Schedule string               // cron expression; descriptors such as "@every 30m" are accepted
	MaxAge   time.Duration        // files younger than this are kept
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Janitor runs the artifact sweep on a cron schedule.
type Janitor struct {
	sweeper  core.ArtifactSweeper
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// New validates the schedule and returns a Janitor.
func New(opts Options) (*Janitor, error) {
	if opts.Sweeper == nil {
		return nil, errors.New("artifact sweeper is required")
	}
	schedule := strings.TrimSpace(opts.Schedule)
	if schedule == "" {
		schedule = "@every 30m"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		sweeper:  opts.Sweeper,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger.With("component", "artifact_janitor"),
		metrics:  opts.Metrics,
	}, nil
}

// Run schedules the sweep and blocks until ctx is cancelled, then waits for a running sweep.
func (j *Janitor) Run(ctx context.Context) error {
	cl := cronLogger{logger: j.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(j.schedule, func() {
		if _, err := j.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.ErrorContext(ctx, "artifact sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}

	j.logger.InfoContext(ctx, "starting artifact janitor", "schedule", j.schedule, "max_age", j.maxAge)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.InfoContext(ctx, "artifact janitor stopped")
	return nil
}

// SweepOnce removes expired artifacts now and returns how many were removed.
func (j *Janitor) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := j.sweeper.Sweep(ctx, j.maxAge)
	j.emit(n, time.Since(start), err)
	if err != nil {
		return n, err
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "removed expired artifacts", "count", n, "max_age", j.maxAge)
	}
	return n, nil
}

func (j *Janitor) emit(n int, elapsed time.Duration, err error) {
	if j.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case n == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	j.metrics.Count("janitor.sweep", 1, tags)
	j.metrics.Timing("janitor.sweep_duration", elapsed, metrics.CloneTags(tags))
	if n > 0 {
		j.metrics.Count("janitor.artifacts_removed", int64(n), nil)
	}
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
