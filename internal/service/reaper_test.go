package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	"github.com/target/cyano-batch/internal/mocks"
	"github.com/target/cyano-batch/internal/observability/notify"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
)

// fakeReaperRepo keeps jobs in memory and applies ReconcileStale the way the SQL query does.
type fakeReaperRepo struct {
	mu    sync.Mutex
	jobs  map[string]*model.BatchJob
	calls []core.StaleJobsParams
	err   error
}

func newFakeReaperRepo(jobs ...*model.BatchJob) *fakeReaperRepo {
	r := &fakeReaperRepo{jobs: map[string]*model.BatchJob{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeReaperRepo) ReconcileStale(
	ctx context.Context,
	params core.StaleJobsParams,
	fn core.ReconcileFunc,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, params)
	if r.err != nil {
		return 0, r.err
	}

	var n int64
	selected := 0
	for _, job := range r.jobs {
		if selected >= params.BatchSize {
			break
		}
		if !containsStatus(params.Statuses, job.Status) || !staleSince(job).Before(params.Before) {
			continue
		}
		selected++
		status, ok := fn(ctx, job)
		if !ok || !status.IsTerminal() {
			continue
		}
		job.Status = status
		n++
	}
	return n, nil
}

func (r *fakeReaperRepo) status(id string) model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

func (r *fakeReaperRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func containsStatus(list []model.JobStatus, s model.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// recordingSink captures metric names for assertions.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (s *recordingSink) Count(name string, value int64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] += value
}

func (s *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

func (s *recordingSink) Timing(string, time.Duration, map[string]string) {}

func reaperTestConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:       time.Minute,
		ReceivedMaxAge: time.Hour,
		StartedMaxAge:  6 * time.Hour,
		BatchSize:      100,
	}
}

func staleJob(id string, status model.JobStatus, age time.Duration) *model.BatchJob {
	received := batchTestNow.Add(-age)
	job := &model.BatchJob{ID: id, UserID: 1, Status: status, InputFile: "lakes.csv", NumLocations: 3, ReceivedAt: received}
	if status == model.JobStatusStarted {
		started := received.Add(time.Minute)
		job.StartedAt = &started
	}
	return job
}

func TestNewReaperService(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockTaskBroker(ctrl)

	_, err := NewReaperService(ReaperServiceOptions{Broker: broker})
	require.Error(t, err)
	_, err = NewReaperService(ReaperServiceOptions{Repo: newFakeReaperRepo()})
	require.Error(t, err)
	assert.Panics(t, func() { MustNewReaperService(ReaperServiceOptions{}) })

	svc := MustNewReaperService(ReaperServiceOptions{Repo: newFakeReaperRepo(), Broker: broker, Config: reaperTestConfig()})
	assert.NotNil(t, svc)
}

func TestReaperService_RunOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockTaskBroker(ctrl)
	ctx := context.Background()

	repo := newFakeReaperRepo(
		staleJob("orphan", model.JobStatusReceived, 2*time.Hour),
		staleJob("queued", model.JobStatusReceived, 2*time.Hour),
		staleJob("fresh", model.JobStatusReceived, 10*time.Minute),
		staleJob("revoked-in-broker", model.JobStatusPending, 2*time.Hour),
		staleJob("stalled", model.JobStatusStarted, 7*time.Hour),
		staleJob("running", model.JobStatusStarted, time.Hour),
		staleJob("done", model.JobStatusSuccess, 48*time.Hour),
	)

	broker.EXPECT().Status(gomock.Any(), "orphan").Return(model.JobStatusPending, nil)
	broker.EXPECT().Status(gomock.Any(), "queued").Return(model.JobStatusReceived, nil).MinTimes(1)
	broker.EXPECT().Status(gomock.Any(), "revoked-in-broker").Return(model.JobStatusRevoked, nil)
	broker.EXPECT().Status(gomock.Any(), "stalled").Return(model.JobStatusStarted, nil)
	broker.EXPECT().LastSeen(gomock.Any(), "stalled").Return(batchTestNow.Add(-7*time.Hour+time.Minute), nil)
	broker.EXPECT().MarkState(gomock.Any(), "orphan", model.JobStatusFailure).Return(nil)
	broker.EXPECT().MarkState(gomock.Any(), "stalled", model.JobStatusFailure).Return(nil)

	var (
		mu     sync.Mutex
		alerts []notify.JobFailurePayload
	)
	sink := newRecordingSink()
	svc := MustNewReaperService(ReaperServiceOptions{
		Repo:    repo,
		Broker:  broker,
		Config:  reaperTestConfig(),
		Metrics: sink,
		Now:     func() time.Time { return batchTestNow },
		FailureNotifier: failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{
				Name: "capture",
				Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
					mu.Lock()
					defer mu.Unlock()
					alerts = append(alerts, p)
					return nil
				}),
			}},
		}),
	})

	n, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Equal(t, model.JobStatusFailure, repo.status("orphan"))
	assert.Equal(t, model.JobStatusReceived, repo.status("queued"))
	assert.Equal(t, model.JobStatusReceived, repo.status("fresh"))
	assert.Equal(t, model.JobStatusRevoked, repo.status("revoked-in-broker"))
	assert.Equal(t, model.JobStatusFailure, repo.status("stalled"))
	assert.Equal(t, model.JobStatusStarted, repo.status("running"))
	assert.Equal(t, model.JobStatusSuccess, repo.status("done"))

	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, notify.StageReconcile, a.Stage)
		assert.Equal(t, notify.SeverityWarning, a.Severity)
	}

	assert.Equal(t, int64(1), sink.counts["reaper.sweep"])
	assert.Equal(t, int64(3), sink.counts["reaper.jobs_reconciled"])
	assert.Equal(t, int64(3), sink.counts["batch.job.transition"])
	assert.Contains(t, sink.gauges, "reaper.last_success_epoch")
}

func TestReaperService_RunOnce_Cutoffs(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := newFakeReaperRepo()
	svc := MustNewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Broker: mocks.NewMockTaskBroker(ctrl),
		Config: reaperTestConfig(),
		Now:    func() time.Time { return batchTestNow },
	})

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.calls, 2)
	assert.Equal(t, batchTestNow.Add(-time.Hour), repo.calls[0].Before)
	assert.NotContains(t, repo.calls[0].Statuses, model.JobStatusStarted)
	assert.Equal(t, batchTestNow.Add(-6*time.Hour), repo.calls[1].Before)
	assert.Equal(t, []model.JobStatus{model.JobStatusStarted}, repo.calls[1].Statuses)
	assert.Equal(t, 100, repo.calls[1].BatchSize)
}

func TestReaperService_RunOnce_BrokerUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockTaskBroker(ctrl)
	repo := newFakeReaperRepo(staleJob("orphan", model.JobStatusReceived, 2*time.Hour))
	broker.EXPECT().Status(gomock.Any(), "orphan").Return(model.TaskState(""), model.ErrBrokerUnavailable)

	svc := MustNewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Broker: broker,
		Config: reaperTestConfig(),
		Now:    func() time.Time { return batchTestNow },
	})

	n, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.JobStatusReceived, repo.status("orphan"))
}

func TestReaperService_RunOnce_StartedHeartbeat(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockTaskBroker(ctrl)
	repo := newFakeReaperRepo(
		staleJob("long-running", model.JobStatusStarted, 9*time.Hour),
		staleJob("silent", model.JobStatusStarted, 9*time.Hour),
		staleJob("expired", model.JobStatusStarted, 9*time.Hour),
		staleJob("outage", model.JobStatusStarted, 9*time.Hour),
		staleJob("finished", model.JobStatusStarted, 9*time.Hour),
	)
	for _, id := range []string{"long-running", "silent", "outage"} {
		broker.EXPECT().Status(gomock.Any(), id).Return(model.JobStatusStarted, nil).AnyTimes()
	}
	broker.EXPECT().Status(gomock.Any(), "expired").Return(model.JobStatusPending, nil)
	broker.EXPECT().Status(gomock.Any(), "finished").Return(model.JobStatusSuccess, nil)

	broker.EXPECT().LastSeen(gomock.Any(), "long-running").Return(batchTestNow.Add(-2*time.Minute), nil).MinTimes(1)
	broker.EXPECT().LastSeen(gomock.Any(), "silent").Return(batchTestNow.Add(-6*time.Hour-time.Second), nil)
	broker.EXPECT().LastSeen(gomock.Any(), "expired").Return(time.Time{}, nil)
	broker.EXPECT().LastSeen(gomock.Any(), "outage").Return(time.Time{}, model.ErrBrokerUnavailable).MinTimes(1)
	broker.EXPECT().MarkState(gomock.Any(), "silent", model.JobStatusFailure).Return(nil)
	broker.EXPECT().MarkState(gomock.Any(), "expired", model.JobStatusFailure).Return(nil)

	svc := MustNewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Broker: broker,
		Config: reaperTestConfig(),
		Now:    func() time.Time { return batchTestNow },
	})

	n, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, model.JobStatusStarted, repo.status("long-running"), "a recent heartbeat outweighs an old started_at")
	assert.Equal(t, model.JobStatusFailure, repo.status("silent"))
	assert.Equal(t, model.JobStatusFailure, repo.status("expired"), "no broker state falls back to started_at")
	assert.Equal(t, model.JobStatusStarted, repo.status("outage"))
	assert.Equal(t, model.JobStatusSuccess, repo.status("finished"))
}

func TestReaperService_RunOnce_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := newFakeReaperRepo()
	repo.err = errors.New("connection reset")
	sink := newRecordingSink()
	svc := MustNewReaperService(ReaperServiceOptions{
		Repo:    repo,
		Broker:  mocks.NewMockTaskBroker(ctrl),
		Config:  reaperTestConfig(),
		Metrics: sink,
	})

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile queued jobs")
	assert.Contains(t, err.Error(), "reconcile started jobs")
	assert.NotContains(t, sink.gauges, "reaper.last_success_epoch")
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := newFakeReaperRepo()
		cfg := reaperTestConfig()
		cfg.Interval = 100 * time.Millisecond

		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Broker: mocks.NewMockTaskBroker(ctrl), Config: cfg})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
		assert.GreaterOrEqual(t, repo.callCount(), 2)
	})

	t.Run("continues running despite sweep errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := newFakeReaperRepo()
		repo.err = errors.New("test error")
		cfg := reaperTestConfig()
		cfg.Interval = 50 * time.Millisecond

		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Broker: mocks.NewMockTaskBroker(ctrl), Config: cfg})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, repo.callCount(), 4)
	})
}
