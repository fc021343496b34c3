package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoTasks is returned when the broker had nothing to hand out before the wait elapsed.
	ErrNoTasks = errors.New("no tasks available")
	// ErrBrokerUnavailable wraps connectivity failures talking to the broker.
	ErrBrokerUnavailable = errors.New("task broker unavailable")
	// ErrTaskNotFound is returned when the broker no longer tracks a task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotRequeueable is returned for revoked or finished tasks.
	ErrTaskNotRequeueable = errors.New("task cannot be requeued")
)

// TaskPhase is the last pipeline step a worker completed for a task.
// Redelivered tasks resume after it.
type TaskPhase string

const (
	// PhaseNone means no step has completed.
	PhaseNone TaskPhase = ""
	// PhaseFetched means every location was fetched.
	PhaseFetched TaskPhase = "fetched"
	// PhaseNotified means the completion email went out.
	PhaseNotified TaskPhase = "notified"
)

// TaskMessage is the unit of work placed on the broker for one batch job.
type TaskMessage struct {
	JobID      string            `json:"job_id"`
	UserID     int64             `json:"user_id"`
	Username   string            `json:"username"`
	Email      string            `json:"user_email"`
	Filename   string            `json:"filename"`
	Locations  []LocationRequest `json:"locations"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Attempt    int               `json:"attempt"`
}

// Validate checks that a decoded message is usable by the worker.
func (m *TaskMessage) Validate() error {
	if m.JobID == "" {
		return errors.New("task message missing job_id")
	}
	if m.UserID <= 0 {
		return errors.New("task message missing user_id")
	}
	if m.Filename == "" {
		return errors.New("task message missing filename")
	}
	return nil
}

// TaskState is the broker-side view of a task. It shares its vocabulary with JobStatus.
type TaskState = JobStatus

// TaskMessageFor builds the human readable queue message for a task in the given state.
func TaskMessageFor(jobID string, state TaskState) string {
	switch state {
	case JobStatusSuccess:
		return fmt.Sprintf("Job %s is complete.", jobID)
	case JobStatusFailure:
		return fmt.Sprintf("Job %s has failed.", jobID)
	case JobStatusRevoked:
		return fmt.Sprintf("Job %s has been canceled or an error has occurred.", jobID)
	case JobStatusPending, JobStatusReceived:
		return fmt.Sprintf("Job %s is in queue.", jobID)
	case JobStatusStarted:
		return fmt.Sprintf("Job %s is in progress.", jobID)
	default:
		return fmt.Sprintf("Error processing job %s", jobID)
	}
}

// QueueStats summarises broker backlog for operators.
type QueueStats struct {
	Queued      int64 `json:"queued"`
	Revoked     int64 `json:"revoked"`
	DeadLetters int64 `json:"dead_letters"`
}

// DeadLetter is a message the worker could not decode or validate.
type DeadLetter struct {
	Payload  string    `json:"payload"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
