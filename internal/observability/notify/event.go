// Package notify defines operator alerts raised when batch jobs fail.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Stages at which a batch job can fail.
const (
	StageFetch     = "fetch"
	StageAggregate = "aggregate"
	StageNotify    = "notify"
	StageReconcile = "reconcile"
)

// JobFailurePayload is what operators are told about a failed batch job.
type JobFailurePayload struct {
	JobID      string
	Username   string
	Stage      string
	Locations  int
	Attempt    int
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink delivers job failure alerts.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
