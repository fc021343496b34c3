// Package mocks provides gomock implementations of the ports in internal/core.
//
// The mocks are generated with go.uber.org/mock/mockgen. To regenerate them after
// interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	jobs := mocks.NewMockBatchJobRepository(ctrl)
//	jobs.EXPECT().GetActiveByUser(gomock.Any(), int64(7)).Return(nil, model.ErrBatchJobNotFound)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=batch_job_repository_mock.go github.com/target/cyano-batch/internal/core BatchJobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=batch_reaper_repository_mock.go github.com/target/cyano-batch/internal/core BatchReaperRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/target/cyano-batch/internal/core UserRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_broker_mock.go github.com/target/cyano-batch/internal/core TaskBroker
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=location_fetcher_mock.go github.com/target/cyano-batch/internal/core LocationFetcher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=result_aggregator_mock.go github.com/target/cyano-batch/internal/core ResultAggregator
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=mailer_mock.go github.com/target/cyano-batch/internal/core Mailer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_notifier_mock.go github.com/target/cyano-batch/internal/core JobNotifier
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=artifact_sweeper_mock.go github.com/target/cyano-batch/internal/core ArtifactSweeper
