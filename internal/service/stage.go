package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
)

// stageWriter is the persistence half shared by the stage handlers.
// With strict transitions on, in-progress writes become conditional on the
// stored status, so a redelivered copy cannot drag a record backwards.
type stageWriter struct {
	store  core.JobStore
	strict bool
	logger *slog.Logger
	now    func() time.Time
}

// persistTransition moves the job into next and writes it. With strict mode
// on, a failed precondition is logged and reported (false, nil) so the caller
// can decide whether to continue; an actual store failure is returned as-is.
func (w *stageWriter) persistTransition(ctx context.Context, job *model.CityJob, next model.JobStatus) (bool, error) {
	prev := job.Status
	job.Status = next
	job.UpdatedAt = w.now().UTC()

	if w.strict {
		ok, err := w.store.PutIfStatus(ctx, job, prev)
		if err != nil {
			job.Status = prev
			return false, fmt.Errorf("persist %s -> %s for %s: %w", prev, next, job.CityID, err)
		}
		if !ok {
			w.logger.WarnContext(ctx, "stale transition dropped",
				"city_id", job.CityID,
				"from", prev,
				"to", next,
			)
		}
		return ok, nil
	}

	if err := w.store.Put(ctx, job); err != nil {
		job.Status = prev
		return false, fmt.Errorf("persist %s -> %s for %s: %w", prev, next, job.CityID, err)
	}
	return true, nil
}

// markInProgress writes the transient in-stage status. The write is best
// effort: losing it only staled a status poll, so a store error is logged
// and the stage carries on to the provider call.
func (w *stageWriter) markInProgress(ctx context.Context, job *model.CityJob, next model.JobStatus) {
	if _, err := w.persistTransition(ctx, job, next); err != nil {
		w.logger.WarnContext(ctx, "in-progress status write failed",
			"city_id", job.CityID,
			"status", string(next),
			"error", err,
		)
	}
}

// persistFailure records the terminal failed state. Failed is reachable from
// any non-terminal status, so the write is unconditional even in strict mode.
func (w *stageWriter) persistFailure(ctx context.Context, job *model.CityJob, cause error) error {
	job.Status = model.JobStatusFailed
	job.LastError = cause.Error()
	job.UpdatedAt = w.now().UTC()
	if err := w.store.Put(ctx, job); err != nil {
		return fmt.Errorf("persist failure for %s: %w", job.CityID, err)
	}
	return nil
}
