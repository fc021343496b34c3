package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cyano-batch/internal/cryptoutil"
	"github.com/target/cyano-batch/internal/domain/model"
)

func TestCommandsRegistered(t *testing.T) {
	cmds := commands()
	for _, name := range []string{
		"migrate", "ensure-user", "list-jobs", "queue-stats",
		"dead-letters", "requeue", "reconcile", "encrypt-secret",
	} {
		c, ok := cmds[name]
		require.True(t, ok, name)
		assert.Equal(t, name, c.name)
		assert.NotNil(t, c.run)
	}
}

func TestParseListJobsFlags(t *testing.T) {
	_, err := parseListJobsFlags(nil)
	require.Error(t, err)

	opts, err := parseListJobsFlags([]string{"-user", " alice ", "-limit", "5", "-json"})
	require.NoError(t, err)
	assert.Equal(t, listJobsOptions{Username: "alice", Limit: 5, JSON: true}, opts)

	_, err = parseListJobsFlags([]string{"-user", "alice", "-limit", "-1"})
	require.Error(t, err)
}

func TestParseRequeueFlags(t *testing.T) {
	_, err := parseRequeueFlags([]string{"-yes"})
	require.Error(t, err)

	opts, err := parseRequeueFlags([]string{"-job", "abc", "-yes"})
	require.NoError(t, err)
	assert.Equal(t, "abc", opts.JobID)
	assert.True(t, opts.Yes)
}

func TestParseEnsureUserFlags(t *testing.T) {
	_, err := parseEnsureUserFlags([]string{"-user", "alice"})
	require.Error(t, err)
	_, err = parseEnsureUserFlags([]string{"-user", "alice", "-email", "not-an-address"})
	require.Error(t, err)

	opts, err := parseEnsureUserFlags([]string{"-user", "alice", "-email", "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", opts.Email)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"-timeout", "0s"})
	require.Error(t, err)
}

func TestCheckRequeueable(t *testing.T) {
	require.NoError(t, checkRequeueable(&model.BatchJob{ID: "a", Status: model.JobStatusStarted}))

	err := checkRequeueable(&model.BatchJob{ID: "b", Status: model.JobStatusSuccess})
	require.ErrorIs(t, err, model.ErrTaskNotRequeueable)
}

func TestRenderJobsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJobsTable(&buf, nil))
	assert.Contains(t, buf.String(), "(no jobs found)")

	buf.Reset()
	received := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*model.BatchJob{{
		ID: "job-1", JobNum: 3, Status: model.JobStatusPending,
		InputFile: "lakes.csv", NumLocations: 12, ReceivedAt: received,
	}}
	require.NoError(t, renderJobsTable(&buf, jobs))
	out := buf.String()
	assert.Contains(t, out, "JOB ID")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "2024-06-01T12:00:00Z")
}

func TestPrintJobsJSON_UsesAPIFieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobsJSON(&buf, []*model.BatchJob{{ID: "job-1", Status: model.JobStatusSuccess}}))
	assert.Contains(t, buf.String(), `"jobId": "job-1"`)
	assert.Contains(t, buf.String(), `"jobStatus": "SUCCESS"`)
}

func TestRenderQueueStats(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, renderQueueStats(&buf, "cyano", nil))
	require.NoError(t, renderQueueStats(&buf, "cyano", &model.QueueStats{Queued: 4, Revoked: 1, DeadLetters: 2}))
	assert.Contains(t, buf.String(), "queued:       4")
	assert.Contains(t, buf.String(), "dead letters: 2")
}

func TestRenderDeadLetters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderDeadLetters(&buf, nil))
	assert.Contains(t, buf.String(), "(no dead letters)")

	buf.Reset()
	long := strings.Repeat("x", 200)
	require.NoError(t, renderDeadLetters(&buf, []model.DeadLetter{{Payload: long, Reason: "decode"}}))
	assert.Contains(t, buf.String(), "decode")
	assert.Contains(t, buf.String(), strings.Repeat("x", maxPayloadPreview)+"...")
	assert.NotContains(t, buf.String(), long)
}

func TestEncryptSecret(t *testing.T) {
	_, err := encryptSecret("", "hunter2")
	require.Error(t, err)

	key := strings.Repeat("k", 32)
	_, err = encryptSecret(key, "")
	require.Error(t, err)

	out, err := encryptSecret(key, "hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "v1:"))

	enc, err := cryptoutil.NewFromKey(key)
	require.NoError(t, err)
	plain, ok := cryptoutil.Reveal(enc, out)
	assert.True(t, ok)
	assert.Equal(t, "hunter2", plain)
}

func TestReadSecretLine(t *testing.T) {
	got, err := readSecretLine(strings.NewReader("s3cret\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	got, err = readSecretLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)
}

func TestConfirmFrom(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, confirmFrom(strings.NewReader("y\n"), &out, "requeue job x"))
	assert.Contains(t, out.String(), "requeue job x")

	err := confirmFrom(strings.NewReader("\n"), &out, "requeue job x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrTaskNotRequeueable))
}
