package testutil

import (
	"time"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
)

// CityJobBuilder provides a fluent interface for building CityJob records for tests.
type CityJobBuilder struct {
	job *model.CityJob
}

// NewCityJob creates a builder with sensible defaults.
func NewCityJob() *CityJobBuilder {
	now := time.Now().UTC()
	return &CityJobBuilder{
		job: &model.CityJob{
			CityID:      "london-1714564800000",
			CityName:    "London",
			CountryCode: "GB",
			Status:      model.JobStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// WithID sets the city job identity.
func (b *CityJobBuilder) WithID(id string) *CityJobBuilder {
	b.job.CityID = id
	return b
}

// WithName sets the city name.
func (b *CityJobBuilder) WithName(name string) *CityJobBuilder {
	b.job.CityName = name
	return b
}

// WithStatus sets the job status.
func (b *CityJobBuilder) WithStatus(status model.JobStatus) *CityJobBuilder {
	b.job.Status = status
	return b
}

// WithWeather sets the enrichment payload.
func (b *CityJobBuilder) WithWeather(w *model.WeatherData) *CityJobBuilder {
	b.job.Weather = w
	return b
}

// WithDescription sets the generated description.
func (b *CityJobBuilder) WithDescription(d string) *CityJobBuilder {
	b.job.LLMDescription = d
	return b
}

// WithError sets the terminal error message.
func (b *CityJobBuilder) WithError(msg string) *CityJobBuilder {
	b.job.LastError = msg
	return b
}

// Build returns the constructed job.
func (b *CityJobBuilder) Build() *model.CityJob {
	copied := *b.job
	return &copied
}

// SampleWeather returns a populated WeatherData payload for tests.
func SampleWeather() *model.WeatherData {
	return &model.WeatherData{
		TemperatureC: 18.5,
		FeelsLikeC:   17.9,
		Humidity:     72,
		Description:  "light rain",
		WindSpeed:    5.1,
		Pressure:     1012,
		Visibility:   10000,
		Sunrise:      1714536000,
		Sunset:       1714589000,
	}
}
