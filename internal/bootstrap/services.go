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

	"github.com/citypulse/weather-pipeline/config"
	"github.com/citypulse/weather-pipeline/internal/adapters/redisq"
	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/data"
	"github.com/citypulse/weather-pipeline/internal/observability/notify/webhook"
	"github.com/citypulse/weather-pipeline/internal/observability/statsd"
	"github.com/citypulse/weather-pipeline/internal/service"
	"github.com/citypulse/weather-pipeline/internal/service/eventpublisher"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Intake        *service.IntakeService
	Status        *service.StatusService
	Store         core.JobStore
	Queues        QueueContainer
	Observability ObservabilityContainer
}

// QueueContainer groups the stage hand-off queues.
type QueueContainer struct {
	Enrichment  *redisq.Queue
	Description *redisq.Queue
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
	Events        *eventpublisher.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and event fan-out adapters.
func buildObservability(logger *slog.Logger, cfg *config.AppConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	obsCfg := cfg.Observability

	var metricsSink *statsd.Client
	if obsCfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: obsCfg.Metrics.StatsdAddress,
			Prefix:  "citypulse",
			Logger:  obsLogger,
			GlobalTags: map[string]string{
				"env":     cfg.Environment(),
				"service": "citypulse",
			},
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	events := buildEventPublisher(obsLogger, obsCfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: obsCfg.Metrics,
		Events:        events,
	}
}

func buildEventPublisher(logger *slog.Logger, cfg config.NotificationsConfig) *eventpublisher.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	pubLogger := baseLogger.With("component", "event_publisher")

	if !cfg.IsEnabled() {
		return eventpublisher.NewService(eventpublisher.Options{Logger: pubLogger})
	}

	sinks := make([]eventpublisher.SinkRegistration, 0, 1)

	client, err := webhook.NewClient(webhook.Config{
		URL:        cfg.Webhook.URL,
		AuthHeader: cfg.Webhook.AuthHeader,
		AuthToken:  cfg.Webhook.AuthToken,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
	})
	if err != nil {
		baseLogger.Error("failed to initialise webhook notifier", "error", err)
	} else {
		sinks = append(sinks, eventpublisher.SinkRegistration{
			Name: "webhook",
			Sink: client,
		})
	}

	return eventpublisher.NewService(eventpublisher.Options{
		Logger: pubLogger,
		Sinks:  sinks,
	})
}

// buildQueues creates the Redis-backed stage queues.
func buildQueues(client redis.UniversalClient, cfg config.QueueConfig) (QueueContainer, error) {
	enrichment, err := redisq.New(client, redisq.Options{
		Name:        cfg.EnrichmentQueue,
		MaxReceives: cfg.MaxReceives,
	})
	if err != nil {
		return QueueContainer{}, fmt.Errorf("create enrichment queue: %w", err)
	}

	description, err := redisq.New(client, redisq.Options{
		Name:        cfg.DescriptionQueue,
		MaxReceives: cfg.MaxReceives,
	})
	if err != nil {
		return QueueContainer{}, fmt.Errorf("create description queue: %w", err)
	}

	return QueueContainer{Enrichment: enrichment, Description: description}, nil
}

// NewServices wires repositories, queues, and domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	observability := buildObservability(logger, appCfg)

	store := data.NewCityJobRepo(deps.DB, data.RepoConfig{Logger: logger})

	queues, err := buildQueues(deps.RedisClient, appCfg.Queue)
	if err != nil {
		return ServiceContainer{}, err
	}

	intake, err := service.NewIntakeService(service.IntakeOptions{
		Store:   store,
		Queue:   queues.Enrichment,
		BaseURL: appCfg.HTTP.BaseURL,
		Logger:  logger,
		Events:  observability.Events,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create intake service: %w", err)
	}

	status, err := service.NewStatusService(service.StatusOptions{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create status service: %w", err)
	}

	return ServiceContainer{
		Intake:        intake,
		Status:        status,
		Store:         store,
		Queues:        queues,
		Observability: observability,
	}, nil
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
	shutdownWaitTimeout = 15 * time.Second
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
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
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

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newEnrichmentBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeEnrichmentRunner,
		name: "enrichment runner",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			return RunEnrichmentRunner(ctx, StageRunnerConfig{
				Config:   deps.cfg.Config,
				Services: deps.cfg.Services,
				Logger:   deps.logger,
			})
		},
	}
}

func newDescriptionBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeDescriptionRunner,
		name: "description runner",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			return RunDescriptionRunner(ctx, StageRunnerConfig{
				Config:   deps.cfg.Config,
				Services: deps.cfg.Services,
				Logger:   deps.logger,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newEnrichmentBackgroundService(deps),
		newDescriptionBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		metrics:     cfg.Services.Observability.MetricsSink,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := len(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	metrics     *statsd.Client
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	// Close the metrics socket after runners stop
	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			cfg.logger.Warn("close statsd client", "error", err)
		}
	}

	return nil
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
