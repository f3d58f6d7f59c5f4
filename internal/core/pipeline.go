package core

import (
	"context"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
)

// The pipeline has no single runnable coordinator; the protocol binding the
// stages together is this contract, enforced by the stage runner for every
// handler: consume one unit of work, then either advance it to the next queue,
// terminate it, or fail it. Persistence always precedes the outcome that makes
// it externally visible.

// OutcomeKind classifies what a stage decided about its unit of work.
type OutcomeKind int

const (
	// OutcomeAdvance hands the job to the next stage's queue.
	OutcomeAdvance OutcomeKind = iota
	// OutcomeTerminate ends the pipeline for this job (terminal record written).
	OutcomeTerminate
	// OutcomeFail marks the job failed (terminal record written with LastError).
	OutcomeFail
)

// Outcome is a stage's decision for one consumed job. For Advance, Job is the
// next stage's input snapshot; for Terminate and Fail it is the final record as
// persisted. Err is set for Fail only.
type Outcome struct {
	Kind OutcomeKind
	Job  *model.CityJob
	Err  error
}

// Advance builds an Outcome that hands the job to the next stage.
func Advance(job *model.CityJob) Outcome {
	return Outcome{Kind: OutcomeAdvance, Job: job}
}

// Terminate builds an Outcome that ends the pipeline for the job.
func Terminate(job *model.CityJob) Outcome {
	return Outcome{Kind: OutcomeTerminate, Job: job}
}

// Fail builds an Outcome that records a terminal failure.
func Fail(job *model.CityJob, err error) Outcome {
	return Outcome{Kind: OutcomeFail, Job: job, Err: err}
}

// StageHandler is the contract every pipeline stage implements. Consume must
// have durably recorded the outcome before returning: business failures are
// absorbed into the returned Outcome, never surfaced as errors. The error
// return is reserved for infrastructure failures where the stage could not
// record any outcome; the runner then leaves the message for redelivery.
type StageHandler interface {
	Name() string
	Consume(ctx context.Context, job *model.CityJob) (Outcome, error)
}
