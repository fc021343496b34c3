package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the batch API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs batch job workers that consume the task queue.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the reconciliation sweep for stuck jobs.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeJanitor runs the scheduled cleanup of leftover result files.
	ServiceModeJanitor ServiceMode = "janitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
		ServiceModeJanitor,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper, ServiceModeJanitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper, janitor)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains batch worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines per process.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// PollWait is how long a worker blocks on the broker before looping.
	PollWait time.Duration `env:"WORKER_POLL_WAIT" envDefault:"5s"`

	// QueuePrefix namespaces broker keys in Redis.
	QueuePrefix string `env:"WORKER_QUEUE_PREFIX" envDefault:"cyano"`

	// StateTTL is how long task state is kept in the result backend.
	StateTTL time.Duration `env:"WORKER_STATE_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.PollWait < time.Second {
		w.PollWait = time.Second
	}
	w.QueuePrefix = strings.Trim(strings.TrimSpace(w.QueuePrefix), ":")
	if w.QueuePrefix == "" {
		w.QueuePrefix = "cyano"
	}
	if w.StateTTL < time.Hour {
		w.StateTTL = time.Hour
	}
}

// ReaperConfig contains the reconciliation sweep configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// ReceivedMaxAge is how long a job may wait in RECEIVED/PENDING/RETRY before it is
	// treated as orphaned (no task behind it) and failed.
	ReceivedMaxAge time.Duration `env:"REAPER_RECEIVED_MAX_AGE" envDefault:"1h"`

	// StartedMaxAge is how long a job may stay STARTED before the worker is presumed dead.
	StartedMaxAge time.Duration `env:"REAPER_STARTED_MAX_AGE" envDefault:"6h"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.ReceivedMaxAge < 5*time.Minute {
		r.ReceivedMaxAge = 5 * time.Minute
	}
	if r.StartedMaxAge < 30*time.Minute {
		r.StartedMaxAge = 30 * time.Minute
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// JanitorConfig controls removal of result files left behind by failed jobs.
type JanitorConfig struct {
	// Schedule is a cron expression (robfig/cron syntax, descriptors allowed).
	Schedule string `env:"JANITOR_SCHEDULE" envDefault:"@every 30m"`

	// MaxAge is the minimum age of a result file before it is removed.
	MaxAge time.Duration `env:"JANITOR_MAX_AGE" envDefault:"24h"`
}

// Sanitize applies guardrails to janitor configuration values.
func (j *JanitorConfig) Sanitize() {
	j.Schedule = strings.TrimSpace(j.Schedule)
	if j.Schedule == "" {
		j.Schedule = "@every 30m"
	}
	if j.MaxAge < time.Hour {
		j.MaxAge = time.Hour
	}
}
