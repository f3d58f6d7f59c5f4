// Package model defines the core data types for the city weather pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current pipeline status of a city job.
type JobStatus string

const (
	// JobStatusPending indicates the job was accepted and is waiting for enrichment.
	JobStatusPending JobStatus = "pending"
	// JobStatusEnriching indicates the weather enrichment stage is processing the job.
	JobStatusEnriching JobStatus = "enriching"
	// JobStatusDescribing indicates the description stage is processing the job.
	JobStatusDescribing JobStatus = "describing"
	// JobStatusCompleted indicates the job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed terminally.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusEnriching, JobStatusDescribing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true once no further stage writes are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// forwardRank orders the single forward path of the state machine.
var forwardRank = map[JobStatus]int{
	JobStatusPending:    0,
	JobStatusEnriching:  1,
	JobStatusDescribing: 2,
	JobStatusCompleted:  3,
}

// CanTransitionTo reports whether moving from s to next honors the monotonic
// forward path. Failed is a side-exit reachable from any non-terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	from, ok := forwardRank[s]
	if !ok {
		return false
	}
	to, ok := forwardRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// WeatherData is the structured payload produced by the weather enrichment
// stage. Written once, by that stage only.
type WeatherData struct {
	TemperatureC float64 `json:"temperature_c"`
	FeelsLikeC   float64 `json:"feels_like_c"`
	Humidity     int     `json:"humidity"`
	Description  string  `json:"description"`
	WindSpeed    float64 `json:"wind_speed"`
	Pressure     int     `json:"pressure"`
	Visibility   int     `json:"visibility"`
	Sunrise      int64   `json:"sunrise"`
	Sunset       int64   `json:"sunset"`
}

// CityJob is the durable record of one city processing request, tracked
// end-to-end through the pipeline. Only the latest snapshot is stored.
type CityJob struct {
	CityID         string       `json:"city_id"                   db:"city_id"`
	CityName       string       `json:"city_name"                 db:"city_name"`
	CountryCode    string       `json:"country_code,omitempty"    db:"country_code"`
	Status         JobStatus    `json:"status"                    db:"status"`
	Weather        *WeatherData `json:"weather_data,omitempty"    db:"weather_data"`
	LLMDescription string       `json:"llm_description,omitempty" db:"llm_description"`
	LastError      string       `json:"last_error,omitempty"      db:"last_error"`
	CreatedAt      time.Time    `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"                db:"updated_at"`
}

// NewCityJob builds a pending job for the given request. The CityID is derived
// from the city name slug plus the creation time in milliseconds; distinct
// concurrent submissions get distinct IDs, but a literal same-millisecond
// duplicate of the same city collides (documented tolerance).
func NewCityJob(req *CreateCityRequest, now time.Time) *CityJob {
	return &CityJob{
		CityID:      fmt.Sprintf("%s-%d", Slugify(req.CityName), now.UnixMilli()),
		CityName:    strings.TrimSpace(req.CityName),
		CountryCode: strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		Status:      JobStatusPending,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

// Slugify lowercases the name and collapses anything outside [a-z0-9] into
// single hyphens, trimming leading and trailing hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// CreateCityRequest is the external intake request body.
type CreateCityRequest struct {
	CityName    string `json:"cityName"`
	CountryCode string `json:"countryCode,omitempty"`
}

// Validate validates the CreateCityRequest fields.
func (r *CreateCityRequest) Validate() error {
	if strings.TrimSpace(r.CityName) == "" {
		return errors.New("cityName is required")
	}
	if cc := strings.TrimSpace(r.CountryCode); cc != "" && len(cc) != 2 {
		return errors.New("countryCode must be a two-letter code")
	}
	return nil
}

// CityAcceptedResponse is the 202 acknowledgment returned by intake.
type CityAcceptedResponse struct {
	Message   string    `json:"message"`
	CityID    string    `json:"cityId"`
	CityName  string    `json:"cityName"`
	Status    JobStatus `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	StatusURL string    `json:"statusUrl"`
}

// CityStatusResponse is the client-facing snapshot returned by the status query.
type CityStatusResponse struct {
	CityID         string       `json:"cityId"`
	CityName       string       `json:"cityName"`
	Status         JobStatus    `json:"status"`
	Timestamp      time.Time    `json:"timestamp"`
	WeatherData    *WeatherData `json:"weatherData,omitempty"`
	LLMDescription string       `json:"llmDescription,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Snapshot projects the durable record into its client-facing form.
func (j *CityJob) Snapshot() *CityStatusResponse {
	return &CityStatusResponse{
		CityID:         j.CityID,
		CityName:       j.CityName,
		Status:         j.Status,
		Timestamp:      j.UpdatedAt,
		WeatherData:    j.Weather,
		LLMDescription: j.LLMDescription,
		Error:          j.LastError,
	}
}
