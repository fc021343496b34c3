// Package model defines the core data types and structures used throughout the cyano batch job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a batch job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusReceived indicates the job was recorded and handed to the task queue.
	JobStatusReceived JobStatus = "RECEIVED"
	// JobStatusPending is reported by the queue for tasks it has not seen yet.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusStarted indicates a worker picked the job up.
	JobStatusStarted JobStatus = "STARTED"
	// JobStatusRetry is reported by the queue for tasks awaiting another attempt.
	JobStatusRetry JobStatus = "RETRY"
	// JobStatusSuccess indicates results were produced and delivered.
	JobStatusSuccess JobStatus = "SUCCESS"
	// JobStatusFailure indicates a pipeline stage failed.
	JobStatusFailure JobStatus = "FAILURE"
	// JobStatusRevoked indicates the user cancelled the job.
	JobStatusRevoked JobStatus = "REVOKED"
)

// ActiveJobStatuses are the non-terminal states. A user may own at most one job in any of them.
func ActiveJobStatuses() []JobStatus {
	return []JobStatus{JobStatusReceived, JobStatusStarted, JobStatusRetry, JobStatusPending}
}

// TerminalJobStatuses are the states a job never leaves.
func TerminalJobStatuses() []JobStatus {
	return []JobStatus{JobStatusSuccess, JobStatusFailure, JobStatusRevoked}
}

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusReceived, JobStatusPending, JobStatusStarted, JobStatusRetry,
		JobStatusSuccess, JobStatusFailure, JobStatusRevoked:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status counts towards the one-active-job rule.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusReceived, JobStatusPending, JobStatusStarted, JobStatusRetry:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure || s == JobStatusRevoked
}

// IsFailed reports whether status lookups should present the job as failed.
func (s JobStatus) IsFailed() bool {
	return s == JobStatusFailure || s == JobStatusRevoked
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses can be parsed from flags and env.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// StatusStrings renders statuses for SQL ANY($n) parameters.
func StatusStrings(statuses []JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var (
	// ErrInvalidFilename is returned when an input file name does not carry a .csv extension.
	ErrInvalidFilename = errors.New("batch input filename must be a .csv file")
	// ErrInvalidRequest is returned when a batch request misses required fields.
	ErrInvalidRequest = errors.New("invalid key in request")

	// ErrBatchJobNotFound is returned when a job id does not exist or belongs to another user.
	ErrBatchJobNotFound = errors.New("batch job not found")
	// ErrActiveJobExists is returned when inserting a job for a user that already owns an active one.
	ErrActiveJobExists = errors.New("user already has an active batch job")
	// ErrBatchJobExists is returned when a job id is reused.
	ErrBatchJobExists = errors.New("batch job id already exists")
	// ErrInvalidTransition is returned for a terminal transition to a non-terminal status.
	ErrInvalidTransition = errors.New("invalid batch job status transition")
)

// BatchJob is the durable record of one batch request.
type BatchJob struct {
	ID           string     `json:"jobId"            db:"id"`
	UserID       int64      `json:"-"                db:"user_id"`
	JobNum       int        `json:"jobNum"           db:"job_num"`
	Status       JobStatus  `json:"jobStatus"        db:"status"`
	InputFile    string     `json:"inputFile"        db:"input_file"`
	OutputFile   string     `json:"outputFile"       db:"output_file"`
	NumLocations int        `json:"jobNumLocations"  db:"num_locations"`
	ReceivedAt   time.Time  `json:"receivedDatetime" db:"received_at"`
	StartedAt    *time.Time `json:"startedDatetime"  db:"started_at"`
	FinishedAt   *time.Time `json:"finishedDatetime" db:"finished_at"`
	QueueTime    *int       `json:"queueTime"        db:"queue_time"`
	ExecTime     *int       `json:"execTime"         db:"exec_time"`
}

// CreateBatchJobParams carries the fields needed to record a new job.
type CreateBatchJobParams struct {
	ID           string
	UserID       int64
	InputFile    string
	OutputFile   string
	NumLocations int
	ReceivedAt   time.Time
}

// Validate validates the CreateBatchJobParams fields.
func (p *CreateBatchJobParams) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("job id is required")
	}
	if p.UserID <= 0 {
		return errors.New("user id is required")
	}
	if p.InputFile == "" || p.OutputFile == "" {
		return errors.New("input and output file are required")
	}
	if p.NumLocations < 0 {
		return errors.New("number of locations must be >= 0")
	}
	return nil
}

// FinishBatchJobParams describes a terminal transition.
type FinishBatchJobParams struct {
	Status     JobStatus
	FinishedAt time.Time
}

// Durations derives queue and execution times in whole seconds, clamped at zero.
// Queue time is started - received; execution time is finished - received.
func Durations(received time.Time, started *time.Time, finished time.Time) (queue *int, exec int) {
	exec = max(int(finished.Sub(received).Seconds()), 0)
	if started != nil {
		q := max(int(started.Sub(received).Seconds()), 0)
		queue = &q
	}
	return queue, exec
}
