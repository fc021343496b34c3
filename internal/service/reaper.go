package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	obserrors "github.com/target/cyano-batch/internal/observability/errors"
	"github.com/target/cyano-batch/internal/observability/metrics"
	"github.com/target/cyano-batch/internal/observability/notify"
	"github.com/target/cyano-batch/internal/observability/statsd"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo            core.BatchReaperRepository // Required: reconciliation repository
	Broker          core.TaskBroker            // Required: consulted for the task state of stale jobs
	Config          config.ReaperConfig        // Required: reaper configuration
	Logger          *slog.Logger               // Optional: structured logger
	Metrics         statsd.Sink                // Optional: metrics sink (StatsD-compatible)
	FailureNotifier *failurenotifier.Service   // Optional: operator alerts for reconciled jobs
	Now             func() time.Time
}

// ReaperService reconciles batch jobs whose task was lost.
//
// This service manages:
// - Failing queued jobs whose task never reached the broker (submit failed after insert).
// - Failing started jobs whose worker died mid pipeline.
// - Copying terminal broker states onto rows that missed the update.
type ReaperService struct {
	repo            core.BatchReaperRepository
	broker          core.TaskBroker
	config          config.ReaperConfig
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
	now             func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("BatchReaperRepository is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("TaskBroker is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"received_max_age", opts.Config.ReceivedMaxAge,
		"started_max_age", opts.Config.StartedMaxAge,
		"batch_size", opts.Config.BatchSize,
	)

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &ReaperService{
		repo:            opts.Repo,
		broker:          opts.Broker,
		config:          opts.Config,
		logger:          logger,
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
		now:             now,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logSweepError(err, "sweep")
			}
		}
	}
}

// RunOnce performs one reconciliation pass and returns the number of jobs moved to a terminal status.
func (s *ReaperService) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	var (
		errs        []error
		allCanceled = true
		m           sweepMetrics
	)

	steps := []sweepStep{
		{fn: s.reconcileQueued, label: "reconcile queued jobs", count: &m.QueuedCount, metricErr: &m.QueuedErr},
		{fn: s.reconcileStarted, label: "reconcile started jobs", count: &m.StartedCount, metricErr: &m.StartedErr},
	}

	for _, step := range steps {
		count, err := step.fn(ctx)
		*step.count = count
		*step.metricErr = suppressContextCancellation(err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	m.Elapsed = time.Since(start)
	s.emitSweepMetrics(m)
	total := m.QueuedCount + m.StartedCount

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return total, context.Canceled
		}
		return total, fmt.Errorf("sweep failed: %w", joined)
	}
	return total, nil
}

type sweepStep struct {
	fn        func(context.Context) (int64, error)
	label     string
	count     *int64
	metricErr *error
}

// reconcileQueued handles jobs that never started. A job whose task the broker
// does not know was recorded but never enqueued and is failed. Jobs with a
// queued task are left for the workers.
func (s *ReaperService) reconcileQueued(ctx context.Context) (int64, error) {
	return s.reconcile(ctx, reconcilePass{
		name:     "queued",
		statuses: []model.JobStatus{model.JobStatusReceived, model.JobStatusPending, model.JobStatusRetry},
		maxAge:   s.config.ReceivedMaxAge,
		decide: func(state model.TaskState) (model.JobStatus, bool) {
			switch {
			case state.IsTerminal():
				return state, true
			case state == model.JobStatusPending:
				return model.JobStatusFailure, true
			default:
				return "", false
			}
		},
	})
}

// reconcileStarted fails jobs whose worker stopped reporting, unless the broker
// already knows a terminal outcome. A running task whose heartbeat is younger
// than StartedMaxAge is left alone whatever its started_at.
func (s *ReaperService) reconcileStarted(ctx context.Context) (int64, error) {
	return s.reconcile(ctx, reconcilePass{
		name:      "started",
		statuses:  []model.JobStatus{model.JobStatusStarted},
		maxAge:    s.config.StartedMaxAge,
		heartbeat: true,
		decide: func(state model.TaskState) (model.JobStatus, bool) {
			if state.IsTerminal() {
				return state, true
			}
			return model.JobStatusFailure, true
		},
	})
}

type reconcilePass struct {
	name      string
	statuses  []model.JobStatus
	maxAge    time.Duration
	heartbeat bool
	decide    func(model.TaskState) (model.JobStatus, bool)
}

type reconciledJob struct {
	job    *model.BatchJob
	status model.JobStatus
	state  model.TaskState
}

// reconcile loops in batches until a pass transitions nothing.
func (s *ReaperService) reconcile(ctx context.Context, pass reconcilePass) (int64, error) {
	var total int64
	for {
		var (
			mu      sync.Mutex
			decided []reconciledJob
		)
		count, err := s.repo.ReconcileStale(ctx, core.StaleJobsParams{
			Statuses:  pass.statuses,
			Before:    s.now().Add(-pass.maxAge),
			BatchSize: s.config.BatchSize,
		}, func(ctx context.Context, job *model.BatchJob) (model.JobStatus, bool) {
			state, err := s.broker.Status(ctx, job.ID)
			if err != nil {
				s.logger.WarnContext(ctx, "task state unavailable; skipping job", "job_id", job.ID, "error", err)
				return "", false
			}
			if pass.heartbeat && !state.IsTerminal() && s.alive(ctx, job, pass.maxAge) {
				return "", false
			}
			status, ok := pass.decide(state)
			if ok {
				mu.Lock()
				decided = append(decided, reconciledJob{job: job, status: status, state: state})
				mu.Unlock()
			}
			return status, ok
		})
		if err != nil {
			return total, err
		}
		total += count
		if count > 0 {
			s.afterReconcile(ctx, pass.name, decided)
		}
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "reconciled stale jobs", "pass", pass.name, "count", total, "max_age", pass.maxAge)
	}
	return total, nil
}

// alive reports whether the task's worker checked in within maxAge. A broker
// error counts as alive so an outage never fails running jobs.
func (s *ReaperService) alive(ctx context.Context, job *model.BatchJob, maxAge time.Duration) bool {
	seen, err := s.broker.LastSeen(ctx, job.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "task heartbeat unavailable; skipping job", "job_id", job.ID, "error", err)
		return true
	}
	if seen.IsZero() {
		return false
	}
	if s.now().Sub(seen) < maxAge {
		s.logger.DebugContext(ctx, "started job still heartbeating", "job_id", job.ID, "last_seen", seen)
		return true
	}
	return false
}

// afterReconcile mirrors outcomes into the broker and alerts operators about failed jobs.
func (s *ReaperService) afterReconcile(ctx context.Context, pass string, jobs []reconciledJob) {
	for _, rj := range jobs {
		if rj.state != rj.status {
			if err := s.broker.MarkState(ctx, rj.job.ID, rj.status); err != nil {
				s.logger.WarnContext(ctx, "failed to record task state", "job_id", rj.job.ID, "error", err)
			}
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionReconcile,
			Result:     metrics.ResultSuccess,
			Duration:   s.now().Sub(rj.job.ReceivedAt),
		})
		s.logger.InfoContext(ctx, "reconciled job",
			"job_id", rj.job.ID, "pass", pass, "from", rj.job.Status, "to", rj.status, "task_state", rj.state)

		if rj.status != model.JobStatusFailure || s.failureNotifier == nil {
			continue
		}
		s.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:     rj.job.ID,
			Stage:     notify.StageReconcile,
			Locations: rj.job.NumLocations,
			Error:     fmt.Sprintf("job stuck in %s since %s", rj.job.Status, staleSince(rj.job).Format(time.RFC3339)),
			Metadata: map[string]string{
				"pass":       pass,
				"task_state": string(rj.state),
				"input_file": rj.job.InputFile,
			},
		})
	}
}

func staleSince(job *model.BatchJob) time.Time {
	if job.StartedAt != nil {
		return *job.StartedAt
	}
	return job.ReceivedAt
}

type sweepMetrics struct {
	QueuedCount  int64
	QueuedErr    error
	StartedCount int64
	StartedErr   error
	Elapsed      time.Duration
}

func (s *ReaperService) emitSweepMetrics(m sweepMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.QueuedCount + m.StartedCount
	firstErr := firstError(m.QueuedErr, m.StartedErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.sweep", 1, tags)
	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.sweep_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitOperationMetric("reconcile_queued", m.QueuedCount, m.QueuedErr)
	s.emitOperationMetric("reconcile_started", m.StartedCount, m.StartedErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitOperationMetric(operation string, count int64, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.sweep_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_reconciled", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logSweepError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
