package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	"github.com/target/cyano-batch/internal/testutil"
)

func newTestBatchRepo(t *testing.T) (*BatchJobRepo, *FixedTimeProvider, int64) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := NewFixedTimeProvider(testutil.TestTime())
	repo := NewBatchJobRepo(db, RepoConfig{TimeProvider: clock})
	userID := testutil.InsertUser(t, db, "alice", "alice@example.com")
	return repo, clock, userID
}

func createParams(userID int64, at time.Time) model.CreateBatchJobParams {
	return model.CreateBatchJobParams{
		ID:           uuid.NewString(),
		UserID:       userID,
		InputFile:    "lakes.csv",
		OutputFile:   "lakes_results.csv",
		NumLocations: 2,
		ReceivedAt:   at,
	}
}

func TestBatchJobRepo_CreateAndGet(t *testing.T) {
	repo, clock, userID := newTestBatchRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, createParams(userID, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusReceived, job.Status)
	assert.Equal(t, 1, job.JobNum)
	assert.Equal(t, 2, job.NumLocations)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
	assert.True(t, job.ReceivedAt.Equal(clock.Now()))

	got, err := repo.GetByUserAndID(ctx, userID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = repo.GetByUserAndID(ctx, userID+100, job.ID)
	require.ErrorIs(t, err, ErrBatchJobNotFound)

	active, err := repo.GetActiveByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, active.ID)
}

func TestBatchJobRepo_OneActiveJobPerUser(t *testing.T) {
	repo, clock, userID := newTestBatchRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, createParams(userID, clock.Now()))
	require.NoError(t, err)

	_, err = repo.Create(ctx, createParams(userID, clock.Now()))
	require.ErrorIs(t, err, ErrActiveJobExists)
}

func TestBatchJobRepo_ConcurrentCreateAdmitsOne(t *testing.T) {
	repo, clock, userID := newTestBatchRepo(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(ctx, createParams(userID, clock.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, ErrActiveJobExists):
				rejected++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, rejected)
}

func TestBatchJobRepo_UnknownUser(t *testing.T) {
	repo, clock, _ := newTestBatchRepo(t)
	_, err := repo.Create(context.Background(), createParams(999_999, clock.Now()))
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestBatchJobRepo_LifecycleAndNumbering(t *testing.T) {
	repo, clock, userID := newTestBatchRepo(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, createParams(userID, clock.Now()))
	require.NoError(t, err)

	startedAt := clock.Advance(90 * time.Second)
	ok, err := repo.MarkStarted(ctx, first.ID, startedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkStarted(ctx, first.ID, startedAt)
	require.NoError(t, err)
	assert.False(t, ok, "second start is a no-op")

	finishedAt := clock.Advance(210 * time.Second)
	ok, err = repo.MarkFinished(ctx, first.ID, model.FinishBatchJobParams{Status: model.JobStatusSuccess, FinishedAt: finishedAt})
	require.NoError(t, err)
	assert.True(t, ok)

	done, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, done.Status)
	require.NotNil(t, done.QueueTime)
	require.NotNil(t, done.ExecTime)
	assert.Equal(t, 90, *done.QueueTime)
	assert.Equal(t, 300, *done.ExecTime)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)
	assert.False(t, done.StartedAt.Before(done.ReceivedAt))
	assert.False(t, done.FinishedAt.Before(*done.StartedAt))

	ok, err = repo.MarkFinished(ctx, first.ID, model.FinishBatchJobParams{Status: model.JobStatusRevoked, FinishedAt: clock.Now()})
	require.NoError(t, err)
	assert.False(t, ok, "terminal jobs never move")

	_, err = repo.GetActiveByUser(ctx, userID)
	require.ErrorIs(t, err, ErrBatchJobNotFound)

	second, err := repo.Create(ctx, createParams(userID, clock.Advance(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 2, second.JobNum)

	jobs, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID, "newest first")
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestBatchJobRepo_RevokeBeforeStart(t *testing.T) {
	repo, clock, userID := newTestBatchRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, createParams(userID, clock.Now()))
	require.NoError(t, err)

	ok, err := repo.MarkFinished(ctx, job.ID, model.FinishBatchJobParams{Status: model.JobStatusRevoked, FinishedAt: clock.Advance(time.Second)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkStarted(ctx, job.ID, clock.Advance(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "revoked job is never started")

	ok, err = repo.MarkFinished(ctx, job.ID, model.FinishBatchJobParams{Status: model.JobStatusSuccess, FinishedAt: clock.Now()})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRevoked, got.Status)
	assert.Nil(t, got.QueueTime)

	next, err := repo.Create(ctx, createParams(userID, clock.Advance(time.Second)))
	require.NoError(t, err, "a revoked job does not block the next submission")
	assert.NotEqual(t, job.ID, next.ID)
	assert.Equal(t, job.JobNum+1, next.JobNum)
	assert.Equal(t, model.JobStatusReceived, next.Status)
}

func TestBatchJobRepo_MarkFinishedRejectsNonTerminal(t *testing.T) {
	repo := NewBatchJobRepo(nil, RepoConfig{})
	_, err := repo.MarkFinished(context.Background(), "x", model.FinishBatchJobParams{Status: model.JobStatusStarted})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBatchJobRepo_ReconcileStale(t *testing.T) {
	repo, clock, userID := newTestBatchRepo(t)
	ctx := context.Background()

	stale, err := repo.Create(ctx, createParams(userID, clock.Now()))
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	var seen []string
	n, err := repo.ReconcileStale(ctx, core.StaleJobsParams{
		Statuses:  []model.JobStatus{model.JobStatusReceived},
		Before:    clock.Now().Add(-time.Hour),
		BatchSize: 10,
	}, func(_ context.Context, job *model.BatchJob) (model.JobStatus, bool) {
		seen = append(seen, job.ID)
		return model.JobStatusFailure, true
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{stale.ID}, seen)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailure, got.Status)
	require.NotNil(t, got.ExecTime)
	assert.Equal(t, 7200, *got.ExecTime)

	fresh, err := repo.Create(ctx, createParams(userID, clock.Now()))
	require.NoError(t, err)
	n, err = repo.ReconcileStale(ctx, core.StaleJobsParams{
		Before:    clock.Now().Add(-time.Hour),
		BatchSize: 10,
	}, func(context.Context, *model.BatchJob) (model.JobStatus, bool) {
		t.Fatal("fresh jobs must not be offered")
		return "", false
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Hour)
	n, err = repo.ReconcileStale(ctx, core.StaleJobsParams{
		Before:    clock.Now().Add(-time.Hour),
		BatchSize: 10,
	}, func(context.Context, *model.BatchJob) (model.JobStatus, bool) {
		return model.JobStatusReceived, true
	})
	require.NoError(t, err)
	assert.Zero(t, n, "non-terminal decisions are ignored")

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusReceived, got.Status)
}
