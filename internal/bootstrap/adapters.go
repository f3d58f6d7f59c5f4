package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/citypulse/weather-pipeline/config"
	"github.com/citypulse/weather-pipeline/internal/adapters/stagerunner"
	"github.com/citypulse/weather-pipeline/internal/providers/textgen"
	"github.com/citypulse/weather-pipeline/internal/providers/weather"
	"github.com/citypulse/weather-pipeline/internal/service"
)

// StageRunnerConfig contains configuration shared by the stage runners.
type StageRunnerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunEnrichmentRunner starts the weather enrichment stage worker. It consumes
// the enrichment queue and forwards enriched jobs to the description queue.
func RunEnrichmentRunner(ctx context.Context, cfg StageRunnerConfig) error {
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	provider, err := weather.NewClient(weather.Config{
		BaseURL: appCfg.Weather.BaseURL,
		APIKey:  appCfg.Weather.Key,
		Timeout: appCfg.Weather.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create weather client: %w", err)
	}

	stage, err := service.NewEnrichmentStage(service.EnrichmentStageOptions{
		Store:             cfg.Services.Store,
		Weather:           provider,
		Logger:            cfg.Logger,
		StrictTransitions: appCfg.Pipeline.StrictTransitions,
	})
	if err != nil {
		return fmt.Errorf("create enrichment stage: %w", err)
	}

	runner, err := stagerunner.NewRunner(stagerunner.Options{
		Source:                cfg.Services.Queues.Enrichment,
		Handler:               stage,
		Next:                  cfg.Services.Queues.Description,
		Logger:                cfg.Logger,
		Lease:                 appCfg.Queue.Lease,
		Concurrency:           appCfg.Runner.Concurrency,
		PollInterval:          appCfg.Runner.PollInterval,
		ReclaimInterval:       appCfg.Runner.ReclaimInterval,
		RetryBusinessFailures: appCfg.Pipeline.RetryBusinessFailures,
		Metrics:               cfg.Services.Observability.MetricsSink,
		Events:                cfg.Services.Observability.Events,
	})
	if err != nil {
		return fmt.Errorf("create enrichment runner: %w", err)
	}

	return runner.Run(ctx)
}

// RunDescriptionRunner starts the description generation stage worker. It
// consumes the description queue and completes jobs.
func RunDescriptionRunner(ctx context.Context, cfg StageRunnerConfig) error {
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	generator, err := textgen.NewClient(textgen.Config{
		BaseURL:      appCfg.TextGen.BaseURL,
		APIKey:       appCfg.TextGen.Key,
		Model:        appCfg.TextGen.Model,
		ResponsePath: appCfg.TextGen.ResponsePath,
		Timeout:      appCfg.TextGen.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create textgen client: %w", err)
	}

	stage, err := service.NewDescriptionStage(service.DescriptionStageOptions{
		Store:             cfg.Services.Store,
		Generator:         generator,
		Logger:            cfg.Logger,
		StrictTransitions: appCfg.Pipeline.StrictTransitions,
	})
	if err != nil {
		return fmt.Errorf("create description stage: %w", err)
	}

	runner, err := stagerunner.NewRunner(stagerunner.Options{
		Source:                cfg.Services.Queues.Description,
		Handler:               stage,
		Logger:                cfg.Logger,
		Lease:                 appCfg.Queue.Lease,
		Concurrency:           appCfg.Runner.Concurrency,
		PollInterval:          appCfg.Runner.PollInterval,
		ReclaimInterval:       appCfg.Runner.ReclaimInterval,
		RetryBusinessFailures: appCfg.Pipeline.RetryBusinessFailures,
		Metrics:               cfg.Services.Observability.MetricsSink,
		Events:                cfg.Services.Observability.Events,
	})
	if err != nil {
		return fmt.Errorf("create description runner: %w", err)
	}

	return runner.Run(ctx)
}
