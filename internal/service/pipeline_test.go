package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	"github.com/target/cyano-batch/internal/mocks"
	"github.com/target/cyano-batch/internal/observability/notify"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
	"github.com/target/cyano-batch/internal/service/results"
	"github.com/target/cyano-batch/internal/testutil"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

type pipelineFixture struct {
	p          *Pipeline
	jobs       *mocks.MockBatchJobRepository
	broker     *mocks.MockTaskBroker
	fetcher    *mocks.MockLocationFetcher
	notifier   *mocks.MockJobNotifier
	aggregator *results.CSVAggregator
	alerts     []notify.JobFailurePayload
	mu         sync.Mutex
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig) *pipelineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	agg, err := results.NewCSVAggregator(results.CSVAggregatorOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	f := &pipelineFixture{
		jobs:       mocks.NewMockBatchJobRepository(ctrl),
		broker:     mocks.NewMockTaskBroker(ctrl),
		fetcher:    mocks.NewMockLocationFetcher(ctrl),
		notifier:   mocks.NewMockJobNotifier(ctrl),
		aggregator: agg,
	}
	alerts := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.alerts = append(f.alerts, p)
				return nil
			}),
		}},
	})
	if cfg.Now == nil {
		cfg.Now = stepClock(batchTestNow)
	}
	f.p = MustNewPipeline(PipelineOptions{
		Jobs:            f.jobs,
		Broker:          f.broker,
		Fetcher:         f.fetcher,
		Aggregator:      agg,
		Notifier:        f.notifier,
		FailureNotifier: alerts,
		Config:          cfg,
	})
	return f
}

func taskFor(n int) *model.TaskMessage {
	req := testutil.StartRequest("alice", n)
	return &model.TaskMessage{
		JobID:     "job-1",
		UserID:    testUser.ID,
		Username:  testUser.Username,
		Email:     testUser.Email,
		Filename:  req.Filename,
		Locations: req.Locations,
	}
}

func TestNewPipeline_RequiredDependencies(t *testing.T) {
	_, err := NewPipeline(PipelineOptions{})
	require.Error(t, err)
	assert.Panics(t, func() { MustNewPipeline(PipelineOptions{}) })
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()
	msg := taskFor(2)

	var startedAt, finishedAt time.Time
	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, at time.Time) (bool, error) {
			startedAt = at
			return true, nil
		})
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	for _, loc := range msg.Locations {
		f.fetcher.EXPECT().FetchLocation(gomock.Any(), loc).
			Return(testutil.LocationResponse(loc.Latitude, loc.Longitude, 2), nil)
	}
	f.broker.EXPECT().Checkpoint(ctx, "job-1", model.PhaseFetched).Return(nil)
	running := receivedJob("job-1")
	running.Status = model.JobStatusStarted
	f.jobs.EXPECT().GetByID(ctx, "job-1").Return(running, nil)
	f.notifier.EXPECT().NotifyComplete(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.NotifyParams) error {
			assert.Equal(t, "alice@example.com", p.Email)
			require.NotNil(t, p.Artifact)
			assert.Equal(t, "lakes_results.csv", p.Artifact.Filename)
			assert.Len(t, p.Artifact.DataRows(), 4)
			_, err := os.Stat(p.Artifact.Path)
			require.NoError(t, err, "artifact must exist while the email is sent")
			return nil
		})
	f.broker.EXPECT().Checkpoint(ctx, "job-1", model.PhaseNotified).Return(nil)
	f.jobs.EXPECT().MarkFinished(ctx, "job-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, p model.FinishBatchJobParams) (bool, error) {
			assert.Equal(t, model.JobStatusSuccess, p.Status)
			finishedAt = p.FinishedAt
			return true, nil
		})
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusSuccess).Return(nil)

	require.NoError(t, f.p.Run(ctx, msg))

	assert.True(t, batchTestNow.Before(startedAt))
	assert.True(t, startedAt.Before(finishedAt))
	path, err := f.aggregator.Path(testUser.ID, "lakes.csv")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist, "artifact is removed after delivery")
	assert.Empty(t, f.alerts)
}

func TestPipeline_Run_SkipsTerminalJob(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()
	job := receivedJob("job-1")
	job.Status = model.JobStatusRevoked

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(job, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusRevoked).Return(nil)

	require.NoError(t, f.p.Run(ctx, taskFor(1)))
}

func TestPipeline_Run_MissingJob(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()
	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(nil, model.ErrBatchJobNotFound)

	require.NoError(t, f.p.Run(ctx, taskFor(1)))
}

func TestPipeline_Run_InvalidMessage(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	require.Error(t, f.p.Run(context.Background(), nil))
	require.Error(t, f.p.Run(context.Background(), &model.TaskMessage{UserID: 1, Filename: "a.csv"}))
}

func TestPipeline_Run_NotStartable(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()
	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(false, nil)

	require.NoError(t, f.p.Run(ctx, taskFor(1)))
}

func TestPipeline_Run_FetchFailure(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{NotifyOnFailure: true})
	ctx := context.Background()
	upstream := errors.New("upstream returned 502")

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	f.fetcher.EXPECT().FetchLocation(gomock.Any(), gomock.Any()).Return(nil, upstream)
	f.jobs.EXPECT().MarkFinished(ctx, "job-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, p model.FinishBatchJobParams) (bool, error) {
			assert.Equal(t, model.JobStatusFailure, p.Status)
			return true, nil
		})
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusFailure).Return(nil)
	f.notifier.EXPECT().NotifyFailed(ctx, core.NotifyParams{JobID: "job-1", Email: "alice@example.com"}).Return(nil)

	err := f.p.Run(ctx, taskFor(3))
	require.ErrorIs(t, err, ErrJobFailed)
	require.ErrorIs(t, err, upstream)

	require.Len(t, f.alerts, 1)
	alert := f.alerts[0]
	assert.Equal(t, "job-1", alert.JobID)
	assert.Equal(t, "alice", alert.Username)
	assert.Equal(t, notify.StageFetch, alert.Stage)
	assert.Equal(t, 3, alert.Locations)
	assert.Equal(t, notify.SeverityCritical, alert.Severity)
	assert.Contains(t, alert.Error, "fetch location 0")
}

func TestPipeline_Run_FetchRetries(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{FetchRetries: 2, FetchBackoff: time.Millisecond})
	ctx := context.Background()
	msg := taskFor(1)

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", gomock.Any()).Return(nil).Times(2)
	gomock.InOrder(
		f.fetcher.EXPECT().FetchLocation(gomock.Any(), msg.Locations[0]).Return(nil, errors.New("timeout")),
		f.fetcher.EXPECT().FetchLocation(gomock.Any(), msg.Locations[0]).
			Return(testutil.LocationResponse(28.5, -81.6, 1), nil),
	)
	f.broker.EXPECT().Checkpoint(ctx, "job-1", gomock.Any()).Return(nil).Times(2)
	f.jobs.EXPECT().GetByID(ctx, "job-1").Return(receivedJob("job-1"), nil)
	f.notifier.EXPECT().NotifyComplete(ctx, gomock.Any()).Return(nil)
	f.jobs.EXPECT().MarkFinished(ctx, "job-1", gomock.Any()).Return(true, nil)

	require.NoError(t, f.p.Run(ctx, msg))
}

func TestPipeline_Run_RevokedDuringFetch(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{CancelCheckEvery: 1})
	ctx := context.Background()
	revoked := receivedJob("job-1")
	revoked.Status = model.JobStatusRevoked

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	f.fetcher.EXPECT().FetchLocation(gomock.Any(), gomock.Any()).Return(testutil.LocationResponse(1, 1, 1), nil)
	f.jobs.EXPECT().GetByID(ctx, "job-1").Return(revoked, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusRevoked).Return(nil)

	require.NoError(t, f.p.Run(ctx, taskFor(3)))
	assert.Empty(t, f.alerts)
}

func TestPipeline_Run_HeartbeatsWhileFetching(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{CancelCheckEvery: 2})
	ctx := context.Background()
	running := receivedJob("job-1")
	running.Status = model.JobStatusStarted
	revoked := receivedJob("job-1")
	revoked.Status = model.JobStatusRevoked

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	f.fetcher.EXPECT().FetchLocation(gomock.Any(), gomock.Any()).Return(testutil.LocationResponse(1, 1, 1), nil).Times(4)
	gomock.InOrder(
		f.jobs.EXPECT().GetByID(ctx, "job-1").Return(running, nil),
		f.broker.EXPECT().Heartbeat(ctx, "job-1").Return(errors.New("redis down")),
		f.jobs.EXPECT().GetByID(ctx, "job-1").Return(revoked, nil),
		f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusRevoked).Return(nil),
	)

	require.NoError(t, f.p.Run(ctx, taskFor(5)), "a failed heartbeat does not stop the run")
	assert.Empty(t, f.alerts)
}

func TestPipeline_Run_RevokedBeforeEmail(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()
	revoked := receivedJob("job-1")
	revoked.Status = model.JobStatusRevoked

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", gomock.Any()).Return(nil).Times(2)
	f.fetcher.EXPECT().FetchLocation(gomock.Any(), gomock.Any()).Return(testutil.LocationResponse(1, 1, 1), nil)
	f.broker.EXPECT().Checkpoint(ctx, "job-1", model.PhaseFetched).Return(nil)
	f.jobs.EXPECT().GetByID(ctx, "job-1").Return(revoked, nil)

	require.NoError(t, f.p.Run(ctx, taskFor(1)))

	path, err := f.aggregator.Path(testUser.ID, "lakes.csv")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPipeline_Run_EmailFailure(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{NotifyOnFailure: true})
	ctx := context.Background()

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	f.fetcher.EXPECT().FetchLocation(gomock.Any(), gomock.Any()).Return(testutil.LocationResponse(1, 1, 0), nil)
	f.broker.EXPECT().Checkpoint(ctx, "job-1", model.PhaseFetched).Return(nil)
	f.jobs.EXPECT().GetByID(ctx, "job-1").Return(receivedJob("job-1"), nil)
	f.notifier.EXPECT().NotifyComplete(ctx, gomock.Any()).Return(ErrNotificationFailed)
	f.jobs.EXPECT().MarkFinished(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusFailure).Return(nil)

	err := f.p.Run(ctx, taskFor(1))
	require.ErrorIs(t, err, ErrJobFailed)
	require.ErrorIs(t, err, ErrNotificationFailed)
	require.Len(t, f.alerts, 1)
	assert.Equal(t, notify.StageNotify, f.alerts[0].Stage)
}

func TestPipeline_Run_RedeliveryAfterEmail(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()
	msg := taskFor(2)
	msg.Attempt = 1
	job := receivedJob("job-1")
	job.Status = model.JobStatusStarted
	started := batchTestNow.Add(time.Second)
	job.StartedAt = &started

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(job, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	f.broker.EXPECT().Phase(ctx, "job-1").Return(model.PhaseNotified, nil)
	f.jobs.EXPECT().MarkFinished(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusSuccess).Return(nil)

	require.NoError(t, f.p.Run(ctx, msg))
}

func TestPipeline_Run_Interrupted(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	f.jobs.EXPECT().GetByUserAndID(ctx, testUser.ID, "job-1").Return(receivedJob("job-1"), nil)
	f.jobs.EXPECT().MarkStarted(ctx, "job-1", gomock.Any()).Return(true, nil)
	f.broker.EXPECT().MarkState(ctx, "job-1", model.JobStatusStarted).Return(nil)
	f.fetcher.EXPECT().FetchLocation(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, model.LocationRequest) (model.LocationResponse, error) {
			cancel()
			return nil, context.Canceled
		})

	err := f.p.Run(ctx, taskFor(2))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrJobFailed)
	assert.Empty(t, f.alerts)
}
