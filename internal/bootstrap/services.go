package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/cyano-batch/config"
	"github.com/target/cyano-batch/internal/adapters/cyanapi"
	"github.com/target/cyano-batch/internal/adapters/mailer"
	redisadapter "github.com/target/cyano-batch/internal/adapters/redis"
	"github.com/target/cyano-batch/internal/data"
	"github.com/target/cyano-batch/internal/observability/notify/pagerduty"
	"github.com/target/cyano-batch/internal/observability/notify/slack"
	"github.com/target/cyano-batch/internal/observability/statsd"
	"github.com/target/cyano-batch/internal/service"
	"github.com/target/cyano-batch/internal/service/failurenotifier"
	"github.com/target/cyano-batch/internal/service/results"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Batch     *service.BatchService
	Pipeline  *service.Pipeline // nil unless the worker service is enabled
	Broker    *redisadapter.TaskBroker
	Jobs      *data.BatchJobRepo
	Users     *data.UserRepo
	Artifacts *results.CSVAggregator

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			GlobalTags:    cfg.Metrics.Tags,
			MaxPacketSize: cfg.Metrics.MaxPacketSize,
			FlushInterval: cfg.Metrics.FlushInterval,
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

// NewServices wires repositories, the task broker and the batch services.
// The worker pipeline and its mail and API clients are only built when the
// worker service is enabled.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)

	broker, err := redisadapter.NewTaskBroker(redisadapter.TaskBrokerOptions{
		Client:   deps.RedisClient,
		Prefix:   cfg.Worker.QueuePrefix,
		StateTTL: cfg.Worker.StateTTL,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create task broker: %w", err)
	}

	jobs := data.NewBatchJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	users := data.NewUserRepo(deps.DB)

	batch, err := service.NewBatchService(service.BatchServiceOptions{
		Jobs:    jobs,
		Users:   users,
		Broker:  broker,
		Config:  service.BatchServiceConfig{LocationsLimit: cfg.Batch.LocationsLimit},
		Logger:  logger,
		Metrics: metricsSink(observability, config.ServiceModeHTTP),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create batch service: %w", err)
	}

	artifacts, err := results.NewCSVAggregator(results.CSVAggregatorOptions{
		Dir:    cfg.Batch.ArtifactDir,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create result aggregator: %w", err)
	}

	container := ServiceContainer{
		Batch:         batch,
		Broker:        broker,
		Jobs:          jobs,
		Users:         users,
		Artifacts:     artifacts,
		Observability: observability,
	}

	if cfg.IsWorkerEnabled() {
		pipeline, pErr := newPipeline(pipelineDeps{
			cfg:       cfg,
			jobs:      jobs,
			broker:    broker,
			artifacts: artifacts,
			obs:       observability,
			logger:    logger,
		})
		if pErr != nil {
			return ServiceContainer{}, pErr
		}
		container.Pipeline = pipeline
	}

	return container, nil
}

// metricsSink tags metrics with the emitting service and avoids handing a typed
// nil to components that check for a nil sink.
//
//nolint:ireturn // Sink is the consumer-facing abstraction.
func metricsSink(obs ObservabilityContainer, mode config.ServiceMode) statsd.Sink {
	if obs.MetricsSink == nil {
		return nil
	}
	return statsd.Tagged(obs.MetricsSink, map[string]string{"service": string(mode)})
}

type pipelineDeps struct {
	cfg       *config.AppConfig
	jobs      *data.BatchJobRepo
	broker    *redisadapter.TaskBroker
	artifacts *results.CSVAggregator
	obs       ObservabilityContainer
	logger    *slog.Logger
}

func newPipeline(d pipelineDeps) (*service.Pipeline, error) {
	cfg := d.cfg

	fetcher, err := cyanapi.NewClient(cyanapi.ClientOptions{
		BaseURL:          cfg.CyanAPI.BaseURL,
		DataType:         cfg.CyanAPI.DataType,
		DefaultFrequency: cfg.CyanAPI.DefaultFrequency,
		UserAgent:        cfg.CyanAPI.UserAgent,
		Timeout:          cfg.Batch.FetchTimeout,
		Logger:           d.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create cyan api client: %w", err)
	}

	notifier, err := newNotificationService(cfg, d.logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := service.NewPipeline(service.PipelineOptions{
		Jobs:            d.jobs,
		Broker:          d.broker,
		Fetcher:         fetcher,
		Aggregator:      d.artifacts,
		Notifier:        notifier,
		FailureNotifier: d.obs.FailureNotifier,
		Config: service.PipelineConfig{
			FetchDelay:       cfg.Batch.FetchDelay,
			FetchTimeout:     cfg.Batch.FetchTimeout,
			FetchRetries:     cfg.Batch.FetchRetries,
			FetchBackoff:     cfg.Batch.FetchBackoff,
			CancelCheckEvery: cfg.Batch.CancelCheckEvery,
			NotifyOnFailure:  cfg.Batch.NotifyOnFailure,
		},
		Logger:  d.logger,
		Metrics: metricsSink(d.obs, config.ServiceModeWorker),
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return pipeline, nil
}

func newNotificationService(cfg *config.AppConfig, logger *slog.Logger) (*service.NotificationService, error) {
	enc := CreateEncryptor(cfg.EncryptionKey, logger)

	smtp, err := mailer.NewSMTPMailer(mailer.SMTPMailerOptions{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		From:     cfg.Mail.From,
		Password: revealSecret(enc, "EMAIL_PASS", cfg.Mail.Password, logger),
		StartTLS: cfg.Mail.StartTLS,
		Timeout:  cfg.Mail.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create smtp mailer: %w", err)
	}

	content := service.DefaultNotificationContent()
	content.CompleteSubject = cfg.Mail.Subject
	content.CompleteBody = cfg.Mail.Body

	notifier, err := service.NewNotificationService(service.NotificationServiceOptions{
		Mailer:  smtp,
		Content: content,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification service: %w", err)
	}
	return notifier, nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:       baseLogger,
		Sinks:        sinks,
		Timeout:      cfg.Timeout,
		DedupeWindow: cfg.DedupeWindow,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	// Workers finish the location they are fetching and return.
	shutdownWaitTimeout = 30 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := descriptor.start(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
		select {
		case deps.errCh <- errMsg:
		case <-ctx.Done():
		default:
			deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "batch worker",
		start: func(ctx context.Context) error {
			svcs := deps.cfg.Services
			if svcs.Pipeline == nil {
				return errors.New("worker enabled without a pipeline")
			}
			return RunWorker(ctx, WorkerConfig{
				Broker:   svcs.Broker,
				Pipeline: svcs.Pipeline,
				Config:   deps.cfg.Config.Worker,
				Logger:   deps.logger,
				Metrics:  metricsSink(svcs.Observability, config.ServiceModeWorker),
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			svcs := deps.cfg.Services
			return RunReaper(ctx, ReaperConfig{
				DB:              deps.cfg.DB,
				Broker:          svcs.Broker,
				Repo:            svcs.Jobs,
				Logger:          deps.logger,
				Config:          deps.cfg.Config.Reaper,
				Metrics:         metricsSink(svcs.Observability, config.ServiceModeReaper),
				FailureNotifier: svcs.Observability.FailureNotifier,
			})
		},
	}
}

func newJanitorBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeJanitor,
		name: "artifact janitor",
		start: func(ctx context.Context) error {
			svcs := deps.cfg.Services
			return RunJanitor(ctx, JanitorConfig{
				Sweeper: svcs.Artifacts,
				Config:  deps.cfg.Config.Janitor,
				Logger:  deps.logger,
				Metrics: metricsSink(svcs.Observability, config.ServiceModeJanitor),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
		newJanitorBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return err
	}

	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		httpStopTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	httpStopTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case <-cfg.ctx.Done():
		cfg.logger.Info("context cancelled, shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops the HTTP server and waits for background services.
// The service context is already cancelled here, so the HTTP drain gets a fresh one.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.httpServer != nil {
		stopErr = ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.httpStopTimeout,
			Logger:  cfg.logger,
		})
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return stopErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
