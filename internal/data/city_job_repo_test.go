package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
	"github.com/citypulse/weather-pipeline/internal/testutil"
)

func newTestRepo(t *testing.T) *CityJobRepo {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return NewCityJobRepo(db, RepoConfig{})
}

func TestCityJobRepo_PutAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := testutil.NewCityJob().WithID("london-100").Build()
	require.NoError(t, repo.Put(ctx, job))

	got, err := repo.Get(ctx, "london-100")
	require.NoError(t, err)
	assert.Equal(t, "london-100", got.CityID)
	assert.Equal(t, "London", got.CityName)
	assert.Equal(t, "GB", got.CountryCode)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Nil(t, got.Weather)
}

func TestCityJobRepo_PutOverwritesLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := testutil.NewCityJob().WithID("paris-1").WithName("Paris").Build()
	require.NoError(t, repo.Put(ctx, job))

	job.Status = model.JobStatusEnriching
	job.Weather = testutil.SampleWeather()
	require.NoError(t, repo.Put(ctx, job))

	got, err := repo.Get(ctx, "paris-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusEnriching, got.Status)
	require.NotNil(t, got.Weather)
	assert.Equal(t, "light rain", got.Weather.Description)
	assert.InDelta(t, 18.5, got.Weather.TemperatureC, 0.001)
}

func TestCityJobRepo_Get_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nowhere-0")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

// emptyDriver stands in for a reachable database that holds no matching
// record, so the no-rows path is covered without a live Postgres.
type emptyDriver struct{}

func (emptyDriver) Open(string) (driver.Conn, error) { return emptyConn{}, nil }

type emptyConn struct{}

func (emptyConn) Prepare(string) (driver.Stmt, error) { return emptyStmt{}, nil }
func (emptyConn) Close() error                        { return nil }
func (emptyConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

type emptyStmt struct{}

func (emptyStmt) Close() error                               { return nil }
func (emptyStmt) NumInput() int                              { return -1 }
func (emptyStmt) Exec([]driver.Value) (driver.Result, error) { return driver.ResultNoRows, nil }
func (emptyStmt) Query([]driver.Value) (driver.Rows, error)  { return emptyRows{}, nil }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return nil }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

func init() {
	sql.Register("cityjob-empty", emptyDriver{})
}

func TestCityJobRepo_Get_NotFound_NoRowsFromDriver(t *testing.T) {
	db, err := sql.Open("cityjob-empty", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewCityJobRepo(db, RepoConfig{})

	_, err = repo.Get(context.Background(), "nowhere-0")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err), "missing row must classify as not_found, got %v", err)
}

func TestCityJobRepo_Get_EmptyID(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCityJobRepo_Put_InvalidStatus(t *testing.T) {
	repo := newTestRepo(t)

	job := testutil.NewCityJob().Build()
	job.Status = model.JobStatus("bogus")
	err := repo.Put(context.Background(), job)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCityJobRepo_PutIfStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := testutil.NewCityJob().WithID("berlin-1").WithName("Berlin").Build()
	require.NoError(t, repo.Put(ctx, job))

	// Matching precondition applies the write.
	job.Status = model.JobStatusEnriching
	ok, err := repo.PutIfStatus(ctx, job, model.JobStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale transition (precondition no longer holds) is dropped.
	stale := testutil.NewCityJob().WithID("berlin-1").WithStatus(model.JobStatusEnriching).Build()
	ok, err = repo.PutIfStatus(ctx, stale, model.JobStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, "berlin-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusEnriching, got.Status)
}

func TestCityJobRepo_PutIfStatus_MissingRecord(t *testing.T) {
	repo := newTestRepo(t)

	job := testutil.NewCityJob().WithID("ghost-1").WithStatus(model.JobStatusEnriching).Build()
	ok, err := repo.PutIfStatus(context.Background(), job, model.JobStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCityJobRepo_UpdatedAtAdvances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := NewFixedTimeProvider(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	repo := NewCityJobRepo(db, RepoConfig{TimeProvider: clock})
	ctx := context.Background()

	job := testutil.NewCityJob().WithID("oslo-1").WithName("Oslo").Build()
	require.NoError(t, repo.Put(ctx, job))
	first := job.UpdatedAt

	clock.Advance(time.Minute)
	job.Status = model.JobStatusEnriching
	require.NoError(t, repo.Put(ctx, job))

	got, err := repo.Get(ctx, "oslo-1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(first), "updated_at should advance on rewrite")
}
