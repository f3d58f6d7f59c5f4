// Package notify defines the pipeline event payload and the sink contract
// for fire-and-forget delivery to external systems.
package notify

import (
	"context"
	"time"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
)

// Event kinds emitted by the pipeline.
const (
	KindCityAccepted  = "city.accepted"
	KindStageAdvanced = "stage.advanced"
	KindJobCompleted  = "job.completed"
	KindJobFailed     = "job.failed"
)

// PipelineEvent captures the canonical data we emit for pipeline
// notifications. Delivery is best effort; no pipeline operation depends on
// an event arriving.
type PipelineEvent struct {
	EventID    string            `json:"event_id"`
	Kind       string            `json:"kind"`
	CityID     string            `json:"city_id"`
	CityName   string            `json:"city_name,omitempty"`
	Stage      string            `json:"stage,omitempty"`
	Status     string            `json:"status,omitempty"`
	Error      string            `json:"error,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// Completion events carry the full result so consumers never need a
	// follow-up status poll.
	Weather     *model.WeatherData `json:"weather_data,omitempty"`
	Description string             `json:"llm_description,omitempty"`
}

// Sink describes a destination capable of consuming pipeline events.
type Sink interface {
	SendEvent(ctx context.Context, event PipelineEvent) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, event PipelineEvent) error

// SendEvent implements the Sink interface.
func (f SinkFunc) SendEvent(ctx context.Context, event PipelineEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
