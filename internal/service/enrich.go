package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
)

// EnrichmentStageOptions groups dependencies for the enrichment stage.
type EnrichmentStageOptions struct {
	Store             core.JobStore        // Required: durable job record store
	Weather           core.WeatherProvider // Required: external weather API
	Logger            *slog.Logger         // Optional: structured logger
	StrictTransitions bool                 // Optional: conditional status writes
	Now               func() time.Time     // Optional: clock override for tests
}

// EnrichmentStage consumes accepted jobs, fetches current weather conditions,
// and advances the enriched job toward description. Implements
// core.StageHandler.
type EnrichmentStage struct {
	weather core.WeatherProvider
	writer  stageWriter
	logger  *slog.Logger
}

// NewEnrichmentStage constructs the enrichment stage handler.
func NewEnrichmentStage(opts EnrichmentStageOptions) (*EnrichmentStage, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Weather == nil {
		return nil, errors.New("WeatherProvider is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "enrichment_stage")

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &EnrichmentStage{
		weather: opts.Weather,
		writer: stageWriter{
			store:  opts.Store,
			strict: opts.StrictTransitions,
			logger: logger,
			now:    now,
		},
		logger: logger,
	}, nil
}

// Name identifies the stage in logs, metrics, and events.
func (s *EnrichmentStage) Name() string { return "enrichment" }

// Consume processes one job: mark it enriching, fetch conditions, persist the
// weather payload, and advance. A provider failure is terminal for the job
// (recorded as failed); only a store failure on an outcome-carrying write is
// surfaced as an error.
func (s *EnrichmentStage) Consume(ctx context.Context, job *model.CityJob) (core.Outcome, error) {
	if job.Status.Terminal() {
		// Redelivered copy of an already-settled job; nothing to redo.
		return core.Terminate(job), nil
	}

	s.writer.markInProgress(ctx, job, model.JobStatusEnriching)

	weather, err := s.weather.CurrentWeather(ctx, job.CityName, job.CountryCode)
	if err != nil {
		cause := fmt.Errorf("weather lookup for %q: %w", job.CityName, err)
		if perr := s.writer.persistFailure(ctx, job, cause); perr != nil {
			return core.Outcome{}, perr
		}
		s.logger.ErrorContext(ctx, "enrichment failed",
			"city_id", job.CityID,
			"city_name", job.CityName,
			"error", err,
		)
		return core.Fail(job, cause), nil
	}

	// The record stays under enriching with the weather payload attached;
	// the description stage owns the next status move.
	job.Weather = weather
	ok, err := s.writer.persistTransition(ctx, job, model.JobStatusEnriching)
	if err != nil {
		return core.Outcome{}, err
	}
	if !ok {
		// Strict mode dropped the write: another copy already settled this
		// record, so there is nothing to advance.
		return core.Terminate(job), nil
	}

	s.logger.InfoContext(ctx, "city enriched",
		"city_id", job.CityID,
		"conditions", weather.Description,
		"temperature_c", weather.TemperatureC,
	)
	return core.Advance(job), nil
}
