package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	"github.com/target/cyano-batch/internal/service/results"
	"github.com/target/cyano-batch/internal/testutil"
)

// memJobStore applies the same transition guards as the Postgres repository.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.BatchJob
}

func (s *memJobStore) Create(_ context.Context, p model.CreateBatchJobParams) (*model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := 1
	for _, j := range s.jobs {
		if j.UserID != p.UserID {
			continue
		}
		if j.Status.IsActive() {
			return nil, model.ErrActiveJobExists
		}
		next = max(next, j.JobNum+1)
	}
	job := &model.BatchJob{
		ID:           p.ID,
		UserID:       p.UserID,
		JobNum:       next,
		Status:       model.JobStatusReceived,
		InputFile:    p.InputFile,
		OutputFile:   p.OutputFile,
		NumLocations: p.NumLocations,
		ReceivedAt:   p.ReceivedAt,
	}
	s.jobs[job.ID] = job
	return copyJob(job), nil
}

func (s *memJobStore) GetByUserAndID(_ context.Context, userID int64, jobID string) (*model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, model.ErrBatchJobNotFound
	}
	return copyJob(j), nil
}

func (s *memJobStore) GetByID(_ context.Context, jobID string) (*model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, model.ErrBatchJobNotFound
	}
	return copyJob(j), nil
}

func (s *memJobStore) GetActiveByUser(_ context.Context, userID int64) (*model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.UserID == userID && j.Status.IsActive() {
			return copyJob(j), nil
		}
	}
	return nil, model.ErrBatchJobNotFound
}

func (s *memJobStore) ListByUser(_ context.Context, userID int64) ([]*model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.BatchJob{}
	for _, j := range s.jobs {
		if j.UserID == userID {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobNum > out[b].JobNum })
	return out, nil
}

func (s *memJobStore) MarkStarted(_ context.Context, jobID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || !j.Status.IsActive() || j.Status == model.JobStatusStarted {
		return false, nil
	}
	j.Status = model.JobStatusStarted
	j.StartedAt = &at
	return true, nil
}

func (s *memJobStore) MarkFinished(_ context.Context, jobID string, p model.FinishBatchJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status.IsTerminal() {
		return false, nil
	}
	queue, exec := model.Durations(j.ReceivedAt, j.StartedAt, p.FinishedAt)
	finished := p.FinishedAt
	j.Status = p.Status
	j.FinishedAt = &finished
	j.QueueTime = queue
	j.ExecTime = &exec
	return true, nil
}

func copyJob(j *model.BatchJob) *model.BatchJob {
	c := *j
	return &c
}

type memUsers map[string]*model.User

func (u memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if user, ok := u[username]; ok {
		return user, nil
	}
	return nil, model.ErrUserNotFound
}

// memBroker is an in-process queue with the revoke-skip semantics of the Redis broker.
type memBroker struct {
	mu      sync.Mutex
	queue   []*model.TaskMessage
	states  map[string]model.TaskState
	phases  map[string]model.TaskPhase
	revoked map[string]bool
}

func newMemBroker() *memBroker {
	return &memBroker{
		states:  map[string]model.TaskState{},
		phases:  map[string]model.TaskPhase{},
		revoked: map[string]bool{},
	}
}

func (b *memBroker) Submit(_ context.Context, msg *model.TaskMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, msg)
	b.states[msg.JobID] = model.JobStatusReceived
	return nil
}

func (b *memBroker) Status(_ context.Context, jobID string) (model.TaskState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[jobID]; ok {
		return s, nil
	}
	return model.JobStatusPending, nil
}

func (b *memBroker) Cancel(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jobID] = true
	if s, ok := b.states[jobID]; ok && (s == model.JobStatusReceived || s == model.JobStatusRetry) {
		b.states[jobID] = model.JobStatusRevoked
	}
	return nil
}

func (b *memBroker) Reserve(_ context.Context, _ time.Duration) (*model.TaskMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) > 0 {
		msg := b.queue[0]
		b.queue = b.queue[1:]
		if b.revoked[msg.JobID] {
			b.states[msg.JobID] = model.JobStatusRevoked
			continue
		}
		b.states[msg.JobID] = model.JobStatusStarted
		return msg, nil
	}
	return nil, model.ErrNoTasks
}

func (b *memBroker) MarkState(_ context.Context, jobID string, state model.TaskState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[jobID] = state
	return nil
}

func (b *memBroker) Checkpoint(_ context.Context, jobID string, phase model.TaskPhase) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phases[jobID] = phase
	return nil
}

func (b *memBroker) Phase(_ context.Context, jobID string) (model.TaskPhase, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phases[jobID], nil
}

func (b *memBroker) Heartbeat(context.Context, string) error { return nil }

func (b *memBroker) LastSeen(context.Context, string) (time.Time, error) { return time.Time{}, nil }

func (b *memBroker) Requeue(context.Context, string) (*model.TaskMessage, error) {
	return nil, model.ErrTaskNotRequeueable
}

func (b *memBroker) Stats(context.Context) (*model.QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &model.QueueStats{Queued: int64(len(b.queue))}, nil
}

func (b *memBroker) DeadLetters(context.Context, int64) ([]model.DeadLetter, error) {
	return nil, nil
}

type fixtureFetcher struct{}

func (fixtureFetcher) FetchLocation(_ context.Context, loc model.LocationRequest) (model.LocationResponse, error) {
	return testutil.LocationResponse(loc.Latitude, loc.Longitude, 1), nil
}

// outbox records completion emails and checks the artifact exists while sending.
type outbox struct {
	mu   sync.Mutex
	sent []core.NotifyParams
	rows []int
}

func (o *outbox) NotifyComplete(_ context.Context, p core.NotifyParams) error {
	if p.Artifact == nil {
		return fmt.Errorf("job %s: no artifact", p.JobID)
	}
	if _, err := os.Stat(p.Artifact.Path); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, p)
	o.rows = append(o.rows, len(p.Artifact.DataRows()))
	return nil
}

func (o *outbox) NotifyFailed(context.Context, core.NotifyParams) error { return nil }

type flowFixture struct {
	svc        *BatchService
	pipeline   *Pipeline
	jobs       *memJobStore
	broker     *memBroker
	mail       *outbox
	aggregator *results.CSVAggregator
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	agg, err := results.NewCSVAggregator(results.CSVAggregatorOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	f := &flowFixture{
		jobs:       &memJobStore{jobs: map[string]*model.BatchJob{}},
		broker:     newMemBroker(),
		mail:       &outbox{},
		aggregator: agg,
	}
	clock := stepClock(batchTestNow)
	var seq int
	f.svc = MustNewBatchService(BatchServiceOptions{
		Jobs:   f.jobs,
		Users:  memUsers{testUser.Username: testUser},
		Broker: f.broker,
		Config: BatchServiceConfig{
			LocationsLimit: 10,
			Now:            clock,
			NewID: func() string {
				seq++
				return fmt.Sprintf("job-%d", seq)
			},
		},
	})
	f.pipeline = MustNewPipeline(PipelineOptions{
		Jobs:       f.jobs,
		Broker:     f.broker,
		Fetcher:    fixtureFetcher{},
		Aggregator: agg,
		Notifier:   f.mail,
		Config:     PipelineConfig{Now: clock},
	})
	return f
}

// work reserves one task and runs it like a worker would.
func (f *flowFixture) work(t *testing.T) *model.TaskMessage {
	t.Helper()
	ctx := context.Background()
	msg, err := f.broker.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Run(ctx, msg))
	return msg
}

func TestBatchFlow_SubmitRunAndReport(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	started, err := f.svc.StartBatchJob(ctx, testutil.StartRequest("alice", 2))
	require.NoError(t, err)
	require.Equal(t, StartAccepted, started.Outcome)
	assert.Equal(t, "RECEIVED", started.JobStatus)
	jobID := started.JobID

	status, err := f.svc.GetBatchStatus(ctx, "alice", jobID)
	require.NoError(t, err)
	assert.Equal(t, "RECEIVED", status.JobStatus)
	assert.Nil(t, status.Job.FinishedAt)

	msg := f.work(t)
	assert.Equal(t, jobID, msg.JobID)

	status, err = f.svc.GetBatchStatus(ctx, "alice", jobID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status.JobStatus)
	assert.NotContains(t, status.Status, "Failed")
	require.NotNil(t, status.Job.StartedAt)
	require.NotNil(t, status.Job.FinishedAt)
	assert.True(t, status.Job.ReceivedAt.Before(*status.Job.StartedAt))
	assert.True(t, status.Job.StartedAt.Before(*status.Job.FinishedAt))
	require.NotNil(t, status.Job.ExecTime)

	state, err := f.broker.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, state)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, testUser.Email, f.mail.sent[0].Email)
	assert.Equal(t, 2, f.mail.rows[0], "one observation row per location")
	path, err := f.aggregator.Path(testUser.ID, "lakes.csv")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist, "artifact is removed after delivery")
}

func TestBatchFlow_CancelBeforeStartFreesTheUser(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartBatchJob(ctx, testutil.StartRequest("alice", 1))
	require.NoError(t, err)
	require.Equal(t, StartAccepted, first.Outcome)

	blocked, err := f.svc.StartBatchJob(ctx, testutil.StartRequest("alice", 1))
	require.NoError(t, err)
	assert.Equal(t, StartRejected, blocked.Outcome)
	assert.Equal(t, first.JobID, blocked.JobID)

	canceled, err := f.svc.CancelBatchJob(ctx, "alice", first.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, canceled.Status)
	assert.Equal(t, "REVOKED", canceled.JobStatus)

	status, err := f.svc.GetBatchStatus(ctx, "alice", first.JobID)
	require.NoError(t, err)
	assert.Equal(t, "REVOKED", status.JobStatus)

	second, err := f.svc.StartBatchJob(ctx, testutil.StartRequest("alice", 1))
	require.NoError(t, err)
	require.Equal(t, StartAccepted, second.Outcome, "a revoked job no longer counts as active")
	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Equal(t, 2, second.Job.JobNum)

	// The revoked task is skipped; the worker picks up the new one.
	msg := f.work(t)
	assert.Equal(t, second.JobID, msg.JobID)

	status, err = f.svc.GetBatchStatus(ctx, "alice", first.JobID)
	require.NoError(t, err)
	assert.Equal(t, "REVOKED", status.JobStatus, "cancelled job never runs")
	status, err = f.svc.GetBatchStatus(ctx, "alice", second.JobID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status.JobStatus)
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, second.JobID, f.mail.sent[0].JobID)
}
