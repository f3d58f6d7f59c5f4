package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

func pendingJob() *model.CityJob {
	return model.NewCityJob(&model.CreateCityRequest{CityName: "London", CountryCode: "GB"}, fixedNow()())
}

func newEnrichment(t *testing.T, store *fakeStore, weather *fakeWeather, strict bool) *EnrichmentStage {
	t.Helper()
	stage, err := NewEnrichmentStage(EnrichmentStageOptions{
		Store:             store,
		Weather:           weather,
		StrictTransitions: strict,
		Now:               fixedNow(),
	})
	require.NoError(t, err)
	return stage
}

func TestEnrichmentConsume_Success(t *testing.T) {
	store := newFakeStore()
	job := pendingJob()
	store.seed(job)

	stage := newEnrichment(t, store, &fakeWeather{data: testWeather()}, false)

	outcome, err := stage.Consume(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeAdvance, outcome.Kind)
	require.NotNil(t, outcome.Job)
	assert.Equal(t, model.JobStatusEnriching, outcome.Job.Status)
	require.NotNil(t, outcome.Job.Weather)
	assert.Equal(t, "scattered clouds", outcome.Job.Weather.Description)

	stored := store.stored(job.CityID)
	require.NotNil(t, stored)
	assert.Equal(t, model.JobStatusEnriching, stored.Status)
	require.NotNil(t, stored.Weather)
}

func TestEnrichmentConsume_ProviderFailureIsTerminal(t *testing.T) {
	store := newFakeStore()
	job := pendingJob()
	store.seed(job)

	stage := newEnrichment(t, store, &fakeWeather{err: apperrors.Provider("API down")}, false)

	outcome, err := stage.Consume(context.Background(), job)
	require.NoError(t, err, "business failures must not surface as errors")

	assert.Equal(t, core.OutcomeFail, outcome.Kind)
	require.Error(t, outcome.Err)

	stored := store.stored(job.CityID)
	require.NotNil(t, stored)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "API down")
}

func TestEnrichmentConsume_MissingCredentialIsTerminal(t *testing.T) {
	store := newFakeStore()
	job := pendingJob()
	store.seed(job)

	stage := newEnrichment(t, store, &fakeWeather{err: apperrors.ConfigMissing("no key")}, false)

	outcome, err := stage.Consume(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeFail, outcome.Kind)
	assert.Equal(t, model.JobStatusFailed, store.stored(job.CityID).Status)
}

func TestEnrichmentConsume_StoreFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.putErr = apperrors.Unavailable("db down")
	job := pendingJob()

	stage := newEnrichment(t, store, &fakeWeather{data: testWeather()}, false)

	_, err := stage.Consume(context.Background(), job)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestEnrichmentConsume_TransientWriteFailureStillEnriches(t *testing.T) {
	store := newFakeStore()
	store.putErrOnce = apperrors.Unavailable("db blip")
	job := pendingJob()
	store.seed(job)
	weather := &fakeWeather{data: testWeather()}

	stage := newEnrichment(t, store, weather, false)

	outcome, err := stage.Consume(context.Background(), job)
	require.NoError(t, err, "a failed in-progress write must not abort the stage")

	assert.Equal(t, []string{"London"}, weather.calls, "provider still consulted")
	assert.Equal(t, core.OutcomeAdvance, outcome.Kind)

	stored := store.stored(job.CityID)
	require.NotNil(t, stored)
	assert.Equal(t, model.JobStatusEnriching, stored.Status)
	require.NotNil(t, stored.Weather)
}

func TestEnrichmentConsume_TerminalJobPassesThrough(t *testing.T) {
	store := newFakeStore()
	weather := &fakeWeather{data: testWeather()}
	job := pendingJob()
	job.Status = model.JobStatusFailed
	store.seed(job)

	stage := newEnrichment(t, store, weather, false)

	outcome, err := stage.Consume(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTerminate, outcome.Kind)
	assert.Empty(t, weather.calls, "no provider call for settled jobs")
}

func TestEnrichmentConsume_StrictModeSettledElsewhere(t *testing.T) {
	store := newFakeStore()
	job := pendingJob()
	// Stored copy already settled by another consumer.
	settled := *job
	settled.Status = model.JobStatusFailed
	settled.LastError = "earlier failure"
	store.seed(&settled)

	stage := newEnrichment(t, store, &fakeWeather{data: testWeather()}, true)

	outcome, err := stage.Consume(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTerminate, outcome.Kind)

	stored := store.stored(job.CityID)
	assert.Equal(t, model.JobStatusFailed, stored.Status, "settled record must not be dragged backwards")
	assert.Equal(t, "earlier failure", stored.LastError)
}

func TestNewEnrichmentStageValidation(t *testing.T) {
	_, err := NewEnrichmentStage(EnrichmentStageOptions{Weather: &fakeWeather{}})
	require.Error(t, err)

	_, err = NewEnrichmentStage(EnrichmentStageOptions{Store: newFakeStore()})
	require.Error(t, err)
}
