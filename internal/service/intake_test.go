package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
	"github.com/citypulse/weather-pipeline/internal/observability/notify"
	"github.com/citypulse/weather-pipeline/internal/service/eventpublisher"
)

func newIntake(t *testing.T, store *fakeStore, queue *fakeQueue, events *eventpublisher.Service) *IntakeService {
	t.Helper()
	svc, err := NewIntakeService(IntakeOptions{
		Store:   store,
		Queue:   queue,
		BaseURL: "http://localhost:8080",
		Events:  events,
		Now:     fixedNow(),
	})
	require.NoError(t, err)
	return svc
}

func TestIntakeAccept(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newIntake(t, store, queue, nil)

	resp, err := svc.Accept(context.Background(), &model.CreateCityRequest{
		CityName:    "New York",
		CountryCode: "us",
	})
	require.NoError(t, err)

	assert.Equal(t, "new-york-1714564800000", resp.CityID)
	assert.Equal(t, "New York", resp.CityName)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.Equal(t, "http://localhost:8080/status/new-york-1714564800000", resp.StatusURL)
	assert.NotEmpty(t, resp.Message)

	stored := store.stored(resp.CityID)
	require.NotNil(t, stored)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	assert.Equal(t, "US", stored.CountryCode)

	msgs := queue.enqueued()
	require.Len(t, msgs, 1)
	assert.Equal(t, resp.CityID, msgs[0].Attributes[core.MessageAttrCityID])
	assert.Equal(t, "New York", msgs[0].Attributes[core.MessageAttrCityName])

	var snapshot model.CityJob
	require.NoError(t, json.Unmarshal(msgs[0].Body, &snapshot))
	assert.Equal(t, resp.CityID, snapshot.CityID)
	assert.Equal(t, model.JobStatusPending, snapshot.Status)
}

func TestIntakeAccept_ValidationNoSideEffects(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newIntake(t, store, queue, nil)

	tests := []struct {
		name string
		req  *model.CreateCityRequest
	}{
		{"nil request", nil},
		{"empty city name", &model.CreateCityRequest{CityName: "  "}},
		{"bad country code", &model.CreateCityRequest{CityName: "London", CountryCode: "GBR"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Accept(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	assert.Empty(t, store.jobs)
	assert.Empty(t, queue.enqueued())
}

func TestIntakeAccept_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.putErr = apperrors.Unavailable("db down")
	queue := &fakeQueue{}
	svc := newIntake(t, store, queue, nil)

	_, err := svc.Accept(context.Background(), &model.CreateCityRequest{CityName: "London"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Empty(t, queue.enqueued())
}

func TestIntakeAccept_EnqueueFailureKeepsRecord(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{enqueueErr: apperrors.Unavailable("redis down")}
	svc := newIntake(t, store, queue, nil)

	_, err := svc.Accept(context.Background(), &model.CreateCityRequest{CityName: "London"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))

	// The pending record survives so the failure is observable via status.
	stored := store.stored("london-1714564800000")
	require.NotNil(t, stored)
	assert.Equal(t, model.JobStatusPending, stored.Status)
}

func TestIntakeAccept_PublishesEvent(t *testing.T) {
	received := make(chan notify.PipelineEvent, 1)
	events := eventpublisher.NewService(eventpublisher.Options{
		Sinks: []eventpublisher.SinkRegistration{
			{Name: "capture", Sink: notify.SinkFunc(func(ctx context.Context, event notify.PipelineEvent) error {
				received <- event
				return nil
			})},
		},
	})

	svc := newIntake(t, newFakeStore(), &fakeQueue{}, events)

	_, err := svc.Accept(context.Background(), &model.CreateCityRequest{CityName: "Lisbon"})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, notify.KindCityAccepted, event.Kind)
		assert.Equal(t, "lisbon-1714564800000", event.CityID)
		assert.Equal(t, string(model.JobStatusPending), event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("expected accepted event")
	}
}

func TestIntakeAccept_NotifierFailureDoesNotFailIntake(t *testing.T) {
	events := eventpublisher.NewService(eventpublisher.Options{
		Sinks: []eventpublisher.SinkRegistration{
			{Name: "broken", Sink: notify.SinkFunc(func(ctx context.Context, event notify.PipelineEvent) error {
				return assert.AnError
			})},
		},
	})

	svc := newIntake(t, newFakeStore(), &fakeQueue{}, events)

	_, err := svc.Accept(context.Background(), &model.CreateCityRequest{CityName: "Oslo"})
	require.NoError(t, err)
}

func TestIntakeStatusURLWithoutBase(t *testing.T) {
	svc, err := NewIntakeService(IntakeOptions{
		Store: newFakeStore(),
		Queue: &fakeQueue{},
		Now:   fixedNow(),
	})
	require.NoError(t, err)

	resp, err := svc.Accept(context.Background(), &model.CreateCityRequest{CityName: "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "/status/berlin-1714564800000", resp.StatusURL)
}

func TestNewIntakeServiceValidation(t *testing.T) {
	_, err := NewIntakeService(IntakeOptions{Queue: &fakeQueue{}})
	require.Error(t, err)

	_, err = NewIntakeService(IntakeOptions{Store: newFakeStore()})
	require.Error(t, err)
}
