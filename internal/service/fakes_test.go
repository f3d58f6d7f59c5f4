package service

import (
	"context"
	"sync"
	"time"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

// fakeStore is an in-memory core.JobStore for service tests.
type fakeStore struct {
	mu         sync.Mutex
	jobs       map[string]*model.CityJob
	putErr     error
	putErrOnce error // returned by the next write only, then cleared
	getErr     error
}

func (f *fakeStore) writeErr() error {
	if f.putErrOnce != nil {
		err := f.putErrOnce
		f.putErrOnce = nil
		return err
	}
	return f.putErr
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*model.CityJob)}
}

func (f *fakeStore) Put(ctx context.Context, job *model.CityJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr(); err != nil {
		return err
	}
	cp := *job
	f.jobs[job.CityID] = &cp
	return nil
}

func (f *fakeStore) PutIfStatus(ctx context.Context, job *model.CityJob, expected model.JobStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr(); err != nil {
		return false, err
	}
	existing, ok := f.jobs[job.CityID]
	if !ok || existing.Status != expected {
		return false, nil
	}
	cp := *job
	f.jobs[job.CityID] = &cp
	return true, nil
}

func (f *fakeStore) Get(ctx context.Context, cityID string) (*model.CityJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[cityID]
	if !ok {
		return nil, apperrors.NotFoundf("city job %s not found", cityID)
	}
	cp := *job
	return &cp, nil
}

func (f *fakeStore) stored(cityID string) *model.CityJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[cityID]
}

func (f *fakeStore) seed(job *model.CityJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.CityID] = &cp
}

// fakeQueue records enqueued messages.
type fakeQueue struct {
	mu         sync.Mutex
	messages   []*core.Message
	enqueueErr error
}

func (f *fakeQueue) Enqueue(ctx context.Context, msg *core.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeQueue) Receive(ctx context.Context, lease time.Duration) (*core.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeQueue) Delete(ctx context.Context, msg *core.Message) error { return nil }

func (f *fakeQueue) ReclaimExpired(ctx context.Context) (int, int, error) { return 0, 0, nil }

func (f *fakeQueue) enqueued() []*core.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*core.Message(nil), f.messages...)
}

// fakeWeather returns canned conditions or an error.
type fakeWeather struct {
	data *model.WeatherData
	err  error

	mu    sync.Mutex
	calls []string
}

func (f *fakeWeather) CurrentWeather(ctx context.Context, cityName, countryCode string) (*model.WeatherData, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cityName)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.data
	return &cp, nil
}

// fakeGenerator returns canned text or an error.
type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Describe(ctx context.Context, cityName string, weather *model.WeatherData) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func testWeather() *model.WeatherData {
	return &model.WeatherData{
		TemperatureC: 18.5,
		FeelsLikeC:   17.2,
		Humidity:     72,
		Description:  "scattered clouds",
		WindSpeed:    4.1,
	}
}

func fixedNow() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}
