package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
)

// This file contains the port interfaces (hexagonal architecture) between the
// pipeline's service layer and its external collaborators: the record store,
// the queue transport, the notification channel, and the enrichment providers.

// JobStore defines the durable record store for city jobs. Only the latest
// snapshot per CityID is addressable.
type JobStore interface {
	// Put writes the record unconditionally (last writer wins).
	Put(ctx context.Context, job *model.CityJob) error
	// PutIfStatus writes the record only when the stored status matches
	// expected. Returns false without error when the precondition fails.
	PutIfStatus(ctx context.Context, job *model.CityJob, expected model.JobStatus) (bool, error)
	// Get returns the latest snapshot, or a NotFound error.
	Get(ctx context.Context, cityID string) (*model.CityJob, error)
}

// Message is a queue envelope carrying a CityJob snapshot. Attributes duplicate
// identifying fields so consumers can filter without decoding the body.
type Message struct {
	ID           string            `json:"id"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ReceiveCount int               `json:"-"`
	Body         json.RawMessage   `json:"body"`
}

// MessageAttrCityID and MessageAttrCityName are the attribute keys set on every
// pipeline message.
const (
	MessageAttrCityID   = "city_id"
	MessageAttrCityName = "city_name"
)

// Queue is the hand-off mechanism between pipeline stages: durable,
// at-least-once, with lease-based redelivery and dead-lettering.
type Queue interface {
	// Enqueue appends a message to the queue.
	Enqueue(ctx context.Context, msg *Message) error
	// Receive leases the next message for the given duration. Returns nil when
	// the queue is empty. A received message stays invisible until Delete is
	// called or the lease expires.
	Receive(ctx context.Context, lease time.Duration) (*Message, error)
	// Delete acknowledges a received message, removing it permanently.
	Delete(ctx context.Context, msg *Message) error
	// ReclaimExpired returns lease-expired messages to the queue, moving any
	// that exceeded the maximum receive count to the dead-letter destination.
	// It reports how many were requeued and how many were dead-lettered.
	ReclaimExpired(ctx context.Context) (requeued, deadLettered int, err error)
}

// WeatherProvider is the external weather enrichment API.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, cityName, countryCode string) (*model.WeatherData, error)
}

// DescriptionGenerator is the external text generation API.
type DescriptionGenerator interface {
	Describe(ctx context.Context, cityName string, weather *model.WeatherData) (string, error)
}
