// Package metrics emits standardised pipeline lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/citypulse/weather-pipeline/internal/observability/errors"
	"github.com/citypulse/weather-pipeline/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess    = "success"
	ResultFailed     = "failed"
	ResultTerminated = "terminated"
	ResultRedelivery = "redelivery"
)

// StageMetric captures details about one processed pipeline message.
type StageMetric struct {
	Stage    string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStageLifecycle emits a count and timing for one stage consumption.
func EmitStageLifecycle(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}

	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("pipeline.stage", 1, tags)

	if in.Duration > 0 {
		sink.Timing("pipeline.stage.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepth gauges the current ready-list length for a queue.
func EmitQueueDepth(sink statsd.Sink, queue string, depth int64) {
	if sink == nil {
		return
	}
	sink.Gauge("pipeline.queue.depth", float64(depth), map[string]string{"queue": queue})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
