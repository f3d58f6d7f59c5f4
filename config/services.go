package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeEnrichmentRunner runs the weather enrichment stage worker.
	ServiceModeEnrichmentRunner ServiceMode = "enrichment-runner"
	// ServiceModeDescriptionRunner runs the description generation stage worker.
	ServiceModeDescriptionRunner ServiceMode = "description-runner"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeEnrichmentRunner,
		ServiceModeDescriptionRunner,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeEnrichmentRunner,
			ServiceModeDescriptionRunner:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, enrichment-runner, description-runner)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains queue configuration shared by the stage runners.
type QueueConfig struct {
	// EnrichmentQueue is the Redis list name for jobs awaiting weather enrichment.
	EnrichmentQueue string `env:"QUEUE_ENRICHMENT" envDefault:"citypulse:enrichment"`

	// DescriptionQueue is the Redis list name for jobs awaiting description generation.
	DescriptionQueue string `env:"QUEUE_DESCRIPTION" envDefault:"citypulse:description"`

	// MaxReceives is the number of deliveries before a message is moved
	// to the dead-letter list.
	MaxReceives int `env:"QUEUE_MAX_RECEIVES" envDefault:"3"`

	// Lease is the duration a received message stays invisible to other
	// consumers before it can be reclaimed.
	Lease time.Duration `env:"QUEUE_LEASE" envDefault:"60s"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.MaxReceives < 1 {
		q.MaxReceives = 1
	}
	if q.Lease < 5*time.Second {
		q.Lease = 5 * time.Second
	}
}

// RunnerConfig contains stage runner configuration.
type RunnerConfig struct {
	// Concurrency is the number of worker goroutines per runner.
	Concurrency int `env:"RUNNER_CONCURRENCY" envDefault:"2"`

	// PollInterval is how long a worker sleeps when its queue is empty.
	PollInterval time.Duration `env:"RUNNER_POLL_INTERVAL" envDefault:"1s"`

	// ReclaimInterval is how often expired leases are swept back onto the queue.
	ReclaimInterval time.Duration `env:"RUNNER_RECLAIM_INTERVAL" envDefault:"30s"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.PollInterval <= 0 {
		r.PollInterval = time.Second
	}
	if r.ReclaimInterval <= 0 {
		r.ReclaimInterval = 30 * time.Second
	}
}

// PipelineConfig contains pipeline behavior knobs.
type PipelineConfig struct {
	// RetryBusinessFailures leaves messages leased for redelivery when a
	// stage reports a business failure, instead of acknowledging them.
	RetryBusinessFailures bool `env:"PIPELINE_RETRY_BUSINESS_FAILURES" envDefault:"false"`

	// StrictTransitions makes stage status writes conditional on the
	// stored record still holding the expected prior status.
	StrictTransitions bool `env:"PIPELINE_STRICT_TRANSITIONS" envDefault:"false"`
}
