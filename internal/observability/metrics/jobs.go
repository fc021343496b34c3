// Package metrics emits batch job metrics through a statsd.Sink.
package metrics

import (
	"time"

	obserrors "github.com/target/cyano-batch/internal/observability/errors"
	"github.com/target/cyano-batch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names for batch job lifecycle metrics.
const (
	TransitionSubmit    = "submit"
	TransitionStart     = "start"
	TransitionComplete  = "complete"
	TransitionFail      = "fail"
	TransitionCancel    = "cancel"
	TransitionReconcile = "reconcile"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	// Locations is reported as a gauge when positive.
	Locations int
	Err       error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("batch.job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("batch.job.duration", in.Duration, CloneTags(tags))
	}
	if in.Locations > 0 {
		sink.Gauge("batch.job.locations", float64(in.Locations), CloneTags(tags))
	}
}

// FetchMetric describes one call to the external data API.
type FetchMetric struct {
	Duration time.Duration
	Attempts int
	Err      error
}

// EmitFetch records latency and outcome of an upstream location fetch.
func EmitFetch(sink statsd.Sink, in FetchMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	tags := map[string]string{}
	if in.Err != nil {
		result = ResultError
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	tags["result"] = result
	sink.Timing("batch.fetch.duration", in.Duration, tags)
	if in.Attempts > 1 {
		sink.Count("batch.fetch.retries", int64(in.Attempts-1), CloneTags(tags))
	}
}

// QueueGauges reports broker backlog.
func QueueGauges(sink statsd.Sink, queued, revoked, dead int64) {
	if sink == nil {
		return
	}
	sink.Gauge("batch.queue.depth", float64(queued), nil)
	sink.Gauge("batch.queue.revoked", float64(revoked), nil)
	sink.Gauge("batch.queue.dead_letters", float64(dead), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
