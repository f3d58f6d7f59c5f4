package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citypulse/weather-pipeline/internal/core"
	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
	"github.com/citypulse/weather-pipeline/internal/service"
)

type stubStore struct {
	mu   sync.Mutex
	jobs map[string]*model.CityJob
	err  error
}

func newStubStore() *stubStore {
	return &stubStore{jobs: make(map[string]*model.CityJob)}
}

func (s *stubStore) Put(ctx context.Context, job *model.CityJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *job
	s.jobs[job.CityID] = &cp
	return nil
}

func (s *stubStore) PutIfStatus(ctx context.Context, job *model.CityJob, expected model.JobStatus) (bool, error) {
	return true, s.Put(ctx, job)
}

func (s *stubStore) Get(ctx context.Context, cityID string) (*model.CityJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	job, ok := s.jobs[cityID]
	if !ok {
		return nil, apperrors.NotFoundf("city job %s not found", cityID)
	}
	cp := *job
	return &cp, nil
}

type stubQueue struct {
	mu   sync.Mutex
	msgs []*core.Message
	err  error
}

func (q *stubQueue) Enqueue(ctx context.Context, msg *core.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *stubQueue) Receive(ctx context.Context, lease time.Duration) (*core.Message, error) {
	return nil, nil
}

func (q *stubQueue) Delete(ctx context.Context, msg *core.Message) error { return nil }

func (q *stubQueue) ReclaimExpired(ctx context.Context) (int, int, error) { return 0, 0, nil }

type routerFixture struct {
	handler http.Handler
	store   *stubStore
	queue   *stubQueue
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	store := newStubStore()
	queue := &stubQueue{}

	intake, err := service.NewIntakeService(service.IntakeOptions{
		Store:   store,
		Queue:   queue,
		BaseURL: "http://localhost:8080",
	})
	require.NoError(t, err)

	status, err := service.NewStatusService(service.StatusOptions{Store: store})
	require.NoError(t, err)

	handler := NewRouter(RouterServices{
		Intake:      intake,
		Status:      status,
		Environment: "test",
		StartedAt:   time.Now().Add(-time.Minute),
	})

	return &routerFixture{handler: handler, store: store, queue: queue}
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateCity(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/cities", `{"cityName": "London", "countryCode": "GB"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp model.CityAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "London", resp.CityName)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.True(t, strings.HasPrefix(resp.CityID, "london-"), "got %q", resp.CityID)
	assert.Equal(t, "http://localhost:8080/status/"+resp.CityID, resp.StatusURL)

	f.queue.mu.Lock()
	defer f.queue.mu.Unlock()
	assert.Len(t, f.queue.msgs, 1)
}

func TestCreateCity_InvalidJSON(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/cities", `{"cityName": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestCreateCity_ValidationError(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/cities", `{"cityName": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation")
}

func TestCreateCity_StoreDown(t *testing.T) {
	f := newRouterFixture(t)
	f.store.err = apperrors.Unavailable("db down")

	rec := f.do(http.MethodPost, "/cities", `{"cityName": "London"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestGetStatus(t *testing.T) {
	f := newRouterFixture(t)
	f.store.jobs["london-1"] = &model.CityJob{
		CityID:         "london-1",
		CityName:       "London",
		Status:         model.JobStatusCompleted,
		Weather:        &model.WeatherData{TemperatureC: 18.5, Description: "clear sky"},
		LLMDescription: "A pleasant day.",
	}

	rec := f.do(http.MethodGet, "/status/london-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.CityStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, model.JobStatusCompleted, snap.Status)
	require.NotNil(t, snap.WeatherData)
	assert.Equal(t, "A pleasant day.", snap.LLMDescription)
}

func TestGetStatus_NotFound(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/status/unknown-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestHealth(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp["status"])
	assert.Equal(t, "test", resp["environment"])
	assert.NotEmpty(t, resp["uptime"])
	assert.NotEmpty(t, resp["timestamp"])
	assert.NotEmpty(t, resp["message"])
}

func TestCORSHeadersOnEveryResponse(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/status/missing", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodOptions, "/cities", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestUnknownRoute(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
