package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

// StatusOptions groups dependencies for StatusService.
type StatusOptions struct {
	Store  core.JobStore // Required: durable job record store
	Logger *slog.Logger  // Optional: structured logger
}

// StatusService serves point-in-time job snapshots to polling clients.
type StatusService struct {
	store  core.JobStore
	logger *slog.Logger
}

// NewStatusService constructs a StatusService.
func NewStatusService(opts StatusOptions) (*StatusService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StatusService{
		store:  opts.Store,
		logger: logger.With("component", "status_service"),
	}, nil
}

// MustNewStatusService constructs a StatusService and panics on error.
func MustNewStatusService(opts StatusOptions) *StatusService {
	svc, err := NewStatusService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create StatusService: %v", err))
	}
	return svc
}

// Get returns the current snapshot for a city job. Unknown IDs come back as
// a quiet NotFound; polling for a not-yet-visible job is expected traffic,
// so it is not logged above debug.
func (s *StatusService) Get(ctx context.Context, cityID string) (*model.CityStatusResponse, error) {
	job, err := s.store.Get(ctx, cityID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.DebugContext(ctx, "status poll for unknown job", "city_id", cityID)
			return nil, err
		}
		return nil, fmt.Errorf("load job %s: %w", cityID, err)
	}
	return job.Snapshot(), nil
}
