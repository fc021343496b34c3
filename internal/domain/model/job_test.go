package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Sets(t *testing.T) {
	for _, s := range ActiveJobStatuses() {
		assert.True(t, s.IsActive(), "%s should be active", s)
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
	for _, s := range TerminalJobStatuses() {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
		assert.False(t, s.IsActive(), "%s should not be active", s)
	}
	assert.True(t, JobStatusFailure.IsFailed())
	assert.True(t, JobStatusRevoked.IsFailed())
	assert.False(t, JobStatusSuccess.IsFailed())
	assert.False(t, JobStatus("DONE").Valid())
}

func TestJobStatus_UnmarshalText(t *testing.T) {
	var s JobStatus
	require.NoError(t, s.UnmarshalText([]byte(" started ")))
	assert.Equal(t, JobStatusStarted, s)

	err := s.UnmarshalText([]byte("running"))
	require.Error(t, err)
	assert.Equal(t, JobStatusStarted, s, "value must be untouched on error")
}

func TestDurations(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := received.Add(90 * time.Second)
	finished := received.Add(5 * time.Minute)

	queue, exec := Durations(received, &started, finished)
	require.NotNil(t, queue)
	assert.Equal(t, 90, *queue)
	assert.Equal(t, 300, exec)

	queue, exec = Durations(received, nil, received.Add(-time.Second))
	assert.Nil(t, queue)
	assert.Equal(t, 0, exec, "clock skew must not produce negative durations")
}

func TestBatchJob_JSONFieldNames(t *testing.T) {
	finished := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	job := BatchJob{
		ID:         "job-1",
		UserID:     7,
		JobNum:     3,
		Status:     JobStatusSuccess,
		InputFile:  "lakes.csv",
		OutputFile: "lakes_results.csv",
		FinishedAt: &finished,
	}
	b, err := json.Marshal(job)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "job-1", m["jobId"])
	assert.Equal(t, "SUCCESS", m["jobStatus"])
	assert.Equal(t, "lakes_results.csv", m["outputFile"])
	assert.NotNil(t, m["finishedDatetime"])
	assert.NotContains(t, m, "UserID")
}

func TestCreateBatchJobParams_Validate(t *testing.T) {
	valid := CreateBatchJobParams{ID: "a", UserID: 1, InputFile: "x.csv", OutputFile: "x_results.csv"}
	require.NoError(t, valid.Validate())

	missingUser := valid
	missingUser.UserID = 0
	require.Error(t, missingUser.Validate())

	missingID := valid
	missingID.ID = " "
	require.Error(t, missingID.Validate())
}
