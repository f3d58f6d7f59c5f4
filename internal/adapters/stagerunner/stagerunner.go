// Package stagerunner drives a pipeline stage: it pulls leased messages from
// a queue, dispatches them to the stage handler, and enacts the returned
// outcome against the queues.
package stagerunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
	"github.com/citypulse/weather-pipeline/internal/observability/metrics"
	"github.com/citypulse/weather-pipeline/internal/observability/notify"
	"github.com/citypulse/weather-pipeline/internal/observability/statsd"
	"github.com/citypulse/weather-pipeline/internal/service/eventpublisher"
)

// lengther is implemented by queues that can report their ready depth.
type lengther interface {
	Len(ctx context.Context) (int64, error)
}

// Options configures a stage runner.
type Options struct {
	Source  core.Queue        // Required: queue this runner consumes
	Handler core.StageHandler // Required: stage business logic
	Next    core.Queue        // Optional: destination for advanced jobs

	Logger          *slog.Logger
	Lease           time.Duration // per-message lease; defaults to 60s
	Concurrency     int           // worker goroutines; defaults to 1
	PollInterval    time.Duration // empty-queue backoff; defaults to 1s
	ReclaimInterval time.Duration // expired-lease sweep cadence; defaults to 30s

	// RetryBusinessFailures leaves failed jobs' messages on the queue for
	// redelivery instead of acknowledging them. The default acknowledges:
	// the failed record is already durable, so retrying is usually waste.
	RetryBusinessFailures bool

	Metrics statsd.Sink
	Events  *eventpublisher.Service
}

// Runner consumes one queue and drives one stage handler.
type Runner struct {
	source  core.Queue
	next    core.Queue
	handler core.StageHandler

	logger          *slog.Logger
	lease           time.Duration
	workers         int
	pollInterval    time.Duration
	reclaimInterval time.Duration
	retryFailures   bool

	metrics statsd.Sink
	events  *eventpublisher.Service
}

// NewRunner constructs a stage runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("source queue is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("stage handler is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 60 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	reclaim := opts.ReclaimInterval
	if reclaim <= 0 {
		reclaim = 30 * time.Second
	}

	return &Runner{
		source:          opts.Source,
		next:            opts.Next,
		handler:         opts.Handler,
		logger:          logger.With("component", opts.Handler.Name()+"_runner"),
		lease:           lease,
		workers:         workers,
		pollInterval:    poll,
		reclaimInterval: reclaim,
		retryFailures:   opts.RetryBusinessFailures,
		metrics:         opts.Metrics,
		events:          opts.Events,
	}, nil
}

// Run starts the worker goroutines and the reclaim sweeper, blocking until
// the context is cancelled or a worker hits a fatal error (first error wins).
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting stage runner",
		"stage", r.handler.Name(),
		"workers", r.workers,
		"lease", r.lease,
	)

	g, ctx := errgroup.WithContext(ctx)

	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(ctx)
		})
	}
	g.Go(func() error {
		return r.reclaimLoop(ctx)
	})

	return g.Wait()
}

// workerLoop returns nil on context cancellation so a clean shutdown does not
// read as a runner failure.
func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		msg, err := r.source.Receive(ctx, r.lease)
		switch {
		case err == nil && msg != nil:
			r.processMessage(ctx, msg)
		case err == nil:
			if !r.sleep(ctx, r.pollInterval) {
				return nil
			}
		case apperrors.IsDecode(err):
			// The queue already dead-lettered the corrupt envelope.
			r.logger.WarnContext(ctx, "corrupt message dead-lettered", "error", err)
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("receive: %w", err)
		}
	}
	return nil
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// processMessage decodes one envelope and enacts the handler's outcome. A
// message is only acknowledged once its outcome is durably recorded; every
// other path leaves it leased so the reclaim sweep can redeliver it.
func (r *Runner) processMessage(ctx context.Context, msg *core.Message) {
	start := time.Now()
	emit := func(result string, err error) {
		metrics.EmitStageLifecycle(r.metrics, metrics.StageMetric{
			Stage:    r.handler.Name(),
			Result:   result,
			Duration: time.Since(start),
			Err:      err,
		})
	}

	var job model.CityJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		// Body does not decode to a job snapshot. Leave the message alone:
		// lease expiry redelivers it until the queue dead-letters it.
		r.logger.ErrorContext(ctx, "undecodable message body",
			"message_id", msg.ID,
			"receive_count", msg.ReceiveCount,
			"error", err,
		)
		emit(metrics.ResultRedelivery, apperrors.Decode("message body is not a job snapshot"))
		return
	}

	outcome, err := r.handler.Consume(ctx, &job)
	if err != nil {
		// Infrastructure failure: no outcome was recorded, so the message
		// stays leased and comes back.
		r.logger.ErrorContext(ctx, "stage infrastructure failure",
			"message_id", msg.ID,
			"city_id", job.CityID,
			"receive_count", msg.ReceiveCount,
			"error", err,
		)
		emit(metrics.ResultRedelivery, err)
		return
	}

	switch outcome.Kind {
	case core.OutcomeAdvance:
		if err := r.advance(ctx, msg, outcome.Job); err != nil {
			r.logger.ErrorContext(ctx, "advance failed; message left for redelivery",
				"message_id", msg.ID,
				"city_id", job.CityID,
				"error", err,
			)
			emit(metrics.ResultRedelivery, err)
			return
		}
		r.publishEvent(ctx, notify.KindStageAdvanced, outcome.Job, nil)
		emit(metrics.ResultSuccess, nil)

	case core.OutcomeTerminate:
		if err := r.source.Delete(ctx, msg); err != nil {
			r.logger.ErrorContext(ctx, "acknowledge failed", "message_id", msg.ID, "error", err)
			emit(metrics.ResultRedelivery, err)
			return
		}
		// Terminate also covers redelivered copies of already-settled jobs;
		// only a job that actually completed announces completion.
		if outcome.Job != nil && outcome.Job.Status == model.JobStatusCompleted {
			r.publishEvent(ctx, notify.KindJobCompleted, outcome.Job, nil)
		}
		emit(metrics.ResultTerminated, nil)

	case core.OutcomeFail:
		if r.retryFailures {
			r.logger.WarnContext(ctx, "business failure left for redelivery",
				"message_id", msg.ID,
				"city_id", job.CityID,
				"receive_count", msg.ReceiveCount,
				"error", outcome.Err,
			)
			emit(metrics.ResultRedelivery, outcome.Err)
			return
		}
		if err := r.source.Delete(ctx, msg); err != nil {
			r.logger.ErrorContext(ctx, "acknowledge failed", "message_id", msg.ID, "error", err)
			emit(metrics.ResultRedelivery, err)
			return
		}
		r.publishEvent(ctx, notify.KindJobFailed, outcome.Job, outcome.Err)
		emit(metrics.ResultFailed, outcome.Err)
	}
}

// advance enqueues the job for the next stage, then acknowledges the source
// message. Enqueue-then-delete means a crash in between duplicates the job
// downstream rather than losing it; stages tolerate redelivered copies.
func (r *Runner) advance(ctx context.Context, msg *core.Message, job *model.CityJob) error {
	if r.next == nil {
		return errors.New("no next queue configured for advance outcome")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job snapshot: %w", err)
	}
	nextMsg := &core.Message{
		Attributes: map[string]string{
			core.MessageAttrCityID:   job.CityID,
			core.MessageAttrCityName: job.CityName,
		},
		Body: body,
	}
	if err := r.next.Enqueue(ctx, nextMsg); err != nil {
		return fmt.Errorf("enqueue next stage: %w", err)
	}
	if err := r.source.Delete(ctx, msg); err != nil {
		return fmt.Errorf("acknowledge source: %w", err)
	}
	return nil
}

func (r *Runner) publishEvent(ctx context.Context, kind string, job *model.CityJob, cause error) {
	if !r.events.Enabled() || job == nil {
		return
	}
	event := notify.PipelineEvent{
		Kind:     kind,
		CityID:   job.CityID,
		CityName: job.CityName,
		Stage:    r.handler.Name(),
		Status:   string(job.Status),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if kind == notify.KindJobCompleted {
		event.Weather = job.Weather
		event.Description = job.LLMDescription
	}
	r.events.Publish(ctx, event)
}

// reclaimLoop periodically returns expired leases to the queue and reports
// the ready depth when the queue can measure it.
func (r *Runner) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			requeued, deadLettered, err := r.source.ReclaimExpired(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "reclaim sweep failed", "error", err)
				continue
			}
			if requeued > 0 || deadLettered > 0 {
				r.logger.InfoContext(ctx, "reclaimed expired leases",
					"requeued", requeued,
					"dead_lettered", deadLettered,
				)
			}
			if q, ok := r.source.(lengther); ok {
				if depth, err := q.Len(ctx); err == nil {
					metrics.EmitQueueDepth(r.metrics, r.handler.Name(), depth)
				}
			}
		}
	}
}
