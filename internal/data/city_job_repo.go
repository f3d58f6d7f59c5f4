// Package data implements the durable record store over PostgreSQL.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

// recordKeyLatest is the sentinel sort key: each job exposes exactly one
// "current" record. A real per-version axis would replace this constant.
const recordKeyLatest = "latest"

// CityJobRepo provides record store operations for city jobs.
type CityJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// RepoConfig holds configuration options for the city job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewCityJobRepo creates a CityJobRepo with the given database connection.
func NewCityJobRepo(db *sql.DB, cfg RepoConfig) *CityJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &CityJobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const cityJobColumns = `
  city_id,
  city_name,
  country_code,
  status,
  weather_data,
  llm_description,
  last_error,
  created_at,
  updated_at
`

// Put writes the latest snapshot unconditionally (last writer wins). The
// pipeline's single-writer-per-stage design is what keeps this safe; a slow
// duplicate delivery can still overwrite a terminal record.
func (r *CityJobRepo) Put(ctx context.Context, job *model.CityJob) error {
	if err := validateJob(job); err != nil {
		return err
	}
	weather, err := marshalWeather(job.Weather)
	if err != nil {
		return err
	}

	now := r.timeProvider.Now().UTC()
	job.UpdatedAt = now

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO city_jobs (
			city_id, record_key, city_name, country_code, status,
			weather_data, llm_description, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (city_id, record_key) DO UPDATE SET
			city_name       = EXCLUDED.city_name,
			country_code    = EXCLUDED.country_code,
			status          = EXCLUDED.status,
			weather_data    = EXCLUDED.weather_data,
			llm_description = EXCLUDED.llm_description,
			last_error      = EXCLUDED.last_error,
			updated_at      = EXCLUDED.updated_at
	`, job.CityID, recordKeyLatest, job.CityName, job.CountryCode, job.Status,
		weather, job.LLMDescription, job.LastError, job.CreatedAt.UTC(), now)
	if err != nil {
		return apperrors.Wrap(apperrors.MapDBError(err), apperrors.ErrCodeUnavailable,
			fmt.Sprintf("put city job %s", job.CityID))
	}
	return nil
}

// PutIfStatus writes the snapshot only when the stored record's status matches
// expected (strict transition mode). A missing record counts as a failed
// precondition. Returns false without error when the write was dropped.
func (r *CityJobRepo) PutIfStatus(
	ctx context.Context,
	job *model.CityJob,
	expected model.JobStatus,
) (bool, error) {
	if err := validateJob(job); err != nil {
		return false, err
	}
	weather, err := marshalWeather(job.Weather)
	if err != nil {
		return false, err
	}

	now := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE city_jobs SET
			status          = $1,
			weather_data    = $2,
			llm_description = $3,
			last_error      = $4,
			updated_at      = $5
		WHERE city_id = $6 AND record_key = $7 AND status = $8
	`, job.Status, weather, job.LLMDescription, job.LastError, now,
		job.CityID, recordKeyLatest, expected)
	if err != nil {
		return false, apperrors.Wrap(apperrors.MapDBError(err), apperrors.ErrCodeUnavailable,
			fmt.Sprintf("conditional put city job %s", job.CityID))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		job.UpdatedAt = now
		return true, nil
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "dropped stale transition",
			"city_id", job.CityID, "expected_status", expected, "new_status", job.Status)
	}
	return false, nil
}

// Get returns the latest snapshot for the given city job identity.
func (r *CityJobRepo) Get(ctx context.Context, cityID string) (*model.CityJob, error) {
	if strings.TrimSpace(cityID) == "" {
		return nil, apperrors.Validation("city id is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+cityJobColumns+`
		FROM city_jobs
		WHERE city_id = $1 AND record_key = $2
	`, cityID, recordKeyLatest)

	job, err := scanCityJob(row)
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return nil, apperrors.NotFoundf("city job %s not found", cityID)
		}
		return nil, apperrors.Wrap(mapped, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("get city job %s", cityID))
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCityJob(row rowScanner) (*model.CityJob, error) {
	var (
		job     model.CityJob
		weather []byte
	)
	err := row.Scan(
		&job.CityID,
		&job.CityName,
		&job.CountryCode,
		&job.Status,
		&weather,
		&job.LLMDescription,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(weather) > 0 {
		var wd model.WeatherData
		if unmarshalErr := json.Unmarshal(weather, &wd); unmarshalErr != nil {
			return nil, fmt.Errorf("decode weather_data: %w", unmarshalErr)
		}
		job.Weather = &wd
	}
	return &job, nil
}

func validateJob(job *model.CityJob) error {
	if job == nil {
		return apperrors.Validation("city job is required")
	}
	if strings.TrimSpace(job.CityID) == "" {
		return apperrors.ValidationField("city_id", "city id is required")
	}
	if !job.Status.Valid() {
		return apperrors.Validationf("invalid job status %q", job.Status)
	}
	return nil
}

func marshalWeather(w *model.WeatherData) ([]byte, error) {
	if w == nil {
		return nil, nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode weather_data: %w", err)
	}
	return data, nil
}
