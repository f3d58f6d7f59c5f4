package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

// DescriptionStageOptions groups dependencies for the description stage.
type DescriptionStageOptions struct {
	Store             core.JobStore             // Required: durable job record store
	Generator         core.DescriptionGenerator // Required: external text generation API
	Logger            *slog.Logger              // Optional: structured logger
	StrictTransitions bool                      // Optional: conditional status writes
	Now               func() time.Time          // Optional: clock override for tests
}

// DescriptionStage consumes enriched jobs, generates the prose weather
// description, and completes the pipeline. Implements core.StageHandler.
type DescriptionStage struct {
	generator core.DescriptionGenerator
	writer    stageWriter
	logger    *slog.Logger
}

// NewDescriptionStage constructs the description stage handler.
func NewDescriptionStage(opts DescriptionStageOptions) (*DescriptionStage, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("DescriptionGenerator is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "description_stage")

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &DescriptionStage{
		generator: opts.Generator,
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
func (s *DescriptionStage) Name() string { return "description" }

// Consume processes one enriched job: mark it describing, generate the text,
// and complete. A missing weather payload means the message skipped
// enrichment somehow and is terminal for the job.
func (s *DescriptionStage) Consume(ctx context.Context, job *model.CityJob) (core.Outcome, error) {
	if job.Status.Terminal() {
		return core.Terminate(job), nil
	}

	if job.Weather == nil {
		cause := apperrors.Validationf("job %s reached description without weather data", job.CityID)
		if perr := s.writer.persistFailure(ctx, job, cause); perr != nil {
			return core.Outcome{}, perr
		}
		return core.Fail(job, cause), nil
	}

	s.writer.markInProgress(ctx, job, model.JobStatusDescribing)

	text, err := s.generator.Describe(ctx, job.CityName, job.Weather)
	if err != nil {
		cause := fmt.Errorf("describe %q: %w", job.CityName, err)
		if perr := s.writer.persistFailure(ctx, job, cause); perr != nil {
			return core.Outcome{}, perr
		}
		s.logger.ErrorContext(ctx, "description failed",
			"city_id", job.CityID,
			"city_name", job.CityName,
			"error", err,
		)
		return core.Fail(job, cause), nil
	}

	job.LLMDescription = text
	if _, err := s.writer.persistTransition(ctx, job, model.JobStatusCompleted); err != nil {
		return core.Outcome{}, err
	}
	// A dropped completion write in strict mode means another copy settled
	// the record first; either way the pipeline is done with this job.

	s.logger.InfoContext(ctx, "city described",
		"city_id", job.CityID,
		"description_len", len(text),
	)
	return core.Terminate(job), nil
}
