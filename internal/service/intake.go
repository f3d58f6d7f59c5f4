package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
	"github.com/citypulse/weather-pipeline/internal/observability/notify"
	"github.com/citypulse/weather-pipeline/internal/service/eventpublisher"
)

// IntakeOptions groups dependencies for IntakeService.
type IntakeOptions struct {
	Store   core.JobStore           // Required: durable job record store
	Queue   core.Queue              // Required: enrichment hand-off queue
	BaseURL string                  // Optional: prefix for generated status URLs
	Logger  *slog.Logger            // Optional: structured logger
	Events  *eventpublisher.Service // Optional: best-effort event fan-out
	Now     func() time.Time        // Optional: clock override for tests
}

// IntakeService accepts city submissions: it persists the pending record,
// hands the job to the enrichment queue, and acknowledges with 202 semantics.
// Acceptance means durably recorded, not processed.
type IntakeService struct {
	store   core.JobStore
	queue   core.Queue
	baseURL string
	logger  *slog.Logger
	events  *eventpublisher.Service
	now     func() time.Time
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(opts IntakeOptions) (*IntakeService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("Queue is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &IntakeService{
		store:   opts.Store,
		queue:   opts.Queue,
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		logger:  logger.With("component", "intake_service"),
		events:  opts.Events,
		now:     now,
	}, nil
}

// MustNewIntakeService constructs an IntakeService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewIntakeService(opts IntakeOptions) *IntakeService {
	svc, err := NewIntakeService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create IntakeService: %v", err))
	}
	return svc
}

// Accept validates the request, persists the pending record, then enqueues
// the job for enrichment. Validation failures leave no trace. A persist or
// enqueue failure surfaces to the caller; the notification fan-out never does.
func (s *IntakeService) Accept(ctx context.Context, req *model.CreateCityRequest) (*model.CityAcceptedResponse, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	job := model.NewCityJob(req, s.now())

	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("persist pending job: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode job snapshot")
	}
	msg := &core.Message{
		Attributes: map[string]string{
			core.MessageAttrCityID:   job.CityID,
			core.MessageAttrCityName: job.CityName,
		},
		Body: body,
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		// The pending record stays behind; a stuck-pending job is visible
		// through the status API rather than silently lost.
		return nil, fmt.Errorf("enqueue job %s: %w", job.CityID, err)
	}

	s.logger.InfoContext(ctx, "city accepted",
		"city_id", job.CityID,
		"city_name", job.CityName,
	)

	if s.events.Enabled() {
		go s.events.Publish(context.WithoutCancel(ctx), notify.PipelineEvent{
			Kind:     notify.KindCityAccepted,
			CityID:   job.CityID,
			CityName: job.CityName,
			Status:   string(job.Status),
		})
	}

	return &model.CityAcceptedResponse{
		Message:   "City accepted for processing",
		CityID:    job.CityID,
		CityName:  job.CityName,
		Status:    job.Status,
		Timestamp: job.CreatedAt,
		StatusURL: s.statusURL(job.CityID),
	}, nil
}

func (s *IntakeService) statusURL(cityID string) string {
	if s.baseURL == "" {
		return "/status/" + cityID
	}
	return s.baseURL + "/status/" + cityID
}
