package reaper

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/mocks"
)

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:       time.Minute,
		ReceivedMaxAge: time.Hour,
		StartedMaxAge:  6 * time.Hour,
		BatchSize:      10,
	}
}

func TestNewRunner_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewRunner(RunnerOptions{Broker: mocks.NewMockTaskBroker(ctrl)})
	require.ErrorContains(t, err, "database connection is required")

	_, err = NewRunner(RunnerOptions{Repo: mocks.NewMockBatchReaperRepository(ctrl)})
	require.ErrorContains(t, err, "task broker is required")
}

func TestRunner_RunOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBatchReaperRepository(ctrl)
	broker := mocks.NewMockTaskBroker(ctrl)

	repo.EXPECT().ReconcileStale(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	r, err := NewRunner(RunnerOptions{
		Repo:   repo,
		Broker: broker,
		Config: reaperConfig(),
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_RunOnceWrapsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBatchReaperRepository(ctrl)
	broker := mocks.NewMockTaskBroker(ctrl)

	repo.EXPECT().ReconcileStale(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), errors.New("db down")).AnyTimes()

	r, err := NewRunner(RunnerOptions{Repo: repo, Broker: broker, Config: reaperConfig()})
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.ErrorContains(t, err, "reconcile batch jobs")
}
