// Package eventpublisher fans pipeline events out to registered sinks.
// Delivery is best effort; callers never block on a failed sink.
package eventpublisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citypulse/weather-pipeline/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the event publisher.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches pipeline events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs an event publisher. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "event_publisher")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger: logger,
		sinks:  sinks,
	}
}

// Publish fans the event out to all sinks, stamping EventID and OccurredAt
// when the caller left them empty. Sink errors are logged, never returned.
func (s *Service) Publish(ctx context.Context, event notify.PipelineEvent) {
	if len(s.sinks) == 0 {
		return
	}

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendEvent(ctx, event); err != nil {
				s.logger.ErrorContext(ctx, "event delivery error",
					"sink", entry.Name,
					"event_id", event.EventID,
					"kind", event.Kind,
					"city_id", event.CityID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the publisher has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
