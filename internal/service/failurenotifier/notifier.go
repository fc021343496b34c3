// Package failurenotifier fans batch job failure alerts out to operator sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/cyano-batch/internal/observability/notify"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultDedupeWindow = 15 * time.Minute
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds delivery to all sinks. Defaults to 10s.
	Timeout time.Duration
	// DedupeWindow suppresses repeat alerts for the same job and stage, e.g.
	// when the reaper reconciles a job the pipeline already reported.
	// Zero uses 15m; negative disables suppression.
	DedupeWindow time.Duration
	Now          func() time.Time
}

// Service dispatches failure alerts to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	window  time.Duration
	now     func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewService constructs a failure notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	window := opts.DedupeWindow
	if window == 0 {
		window = defaultDedupeWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		timeout: timeout,
		window:  window,
		now:     now,
		sent:    make(map[string]time.Time),
	}
}

// NotifyJobFailure delivers payload to every sink concurrently and waits for them.
// Delivery errors are logged; the caller's outcome never depends on them.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	payload = s.withDefaults(payload)
	if s.suppressed(payload) {
		s.logger.DebugContext(ctx, "duplicate failure alert suppressed",
			"job_id", payload.JobID, "stage", payload.Stage)
		return
	}

	// Alerts still go out while the worker is shutting down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var g errgroup.Group
	for _, entry := range s.sinks {
		p := payload
		p.Metadata = maps.Clone(payload.Metadata)
		g.Go(func() error {
			if err := entry.Sink.SendJobFailure(ctx, p); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", p.JobID,
					"stage", p.Stage,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) withDefaults(p notify.JobFailurePayload) notify.JobFailurePayload {
	if p.Severity == "" {
		p.Severity = notify.SeverityCritical
		if p.Stage == notify.StageReconcile {
			p.Severity = notify.SeverityWarning
		}
	}
	if p.OccurredAt.IsZero() {
		p.OccurredAt = s.now().UTC()
	}
	return p
}

// suppressed records the alert and reports whether an identical one went out
// inside the dedupe window. Alerts without a job ID are never suppressed.
func (s *Service) suppressed(p notify.JobFailurePayload) bool {
	if s.window < 0 || p.JobID == "" {
		return false
	}
	key := p.JobID + "|" + p.Stage
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.sent {
		if now.Sub(at) >= s.window {
			delete(s.sent, k)
		}
	}
	if _, seen := s.sent[key]; seen {
		return true
	}
	s.sent[key] = now
	return false
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
