package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.True(t, JobStatusEnriching.Valid())
	assert.True(t, JobStatusDescribing.Valid())
	assert.True(t, JobStatusCompleted.Valid())
	assert.True(t, JobStatusFailed.Valid())
	assert.False(t, JobStatus("unknown").Valid())
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusDescribing.Terminal())
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusEnriching, true},
		{JobStatusEnriching, JobStatusDescribing, true},
		{JobStatusDescribing, JobStatusCompleted, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusEnriching, JobStatusFailed, true},
		{JobStatusDescribing, JobStatusFailed, true},
		// No skipping stages
		{JobStatusPending, JobStatusDescribing, false},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusEnriching, JobStatusCompleted, false},
		// No going back
		{JobStatusDescribing, JobStatusEnriching, false},
		{JobStatusEnriching, JobStatusPending, false},
		// Terminal states are immutable
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusPending, false},
		{JobStatusFailed, JobStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatus_UnmarshalText(t *testing.T) {
	var s JobStatus
	require.NoError(t, s.UnmarshalText([]byte(" Enriching ")))
	assert.Equal(t, JobStatusEnriching, s)

	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestNewCityJob(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := NewCityJob(&CreateCityRequest{CityName: "London", CountryCode: "gb"}, now)

	assert.Equal(t, "london-1714564800000", job.CityID)
	assert.Equal(t, "London", job.CityName)
	assert.Equal(t, "GB", job.CountryCode)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.Weather)
	assert.Empty(t, job.LastError)
}

func TestNewCityJob_IDPattern(t *testing.T) {
	job := NewCityJob(&CreateCityRequest{CityName: "New York"}, time.Now())
	assert.Regexp(t, regexp.MustCompile(`^new-york-\d+$`), job.CityID)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"London", "london"},
		{"New York", "new-york"},
		{"  Rio de Janeiro  ", "rio-de-janeiro"},
		{"St. John's", "st-john-s"},
		{"Frankfurt am Main!!", "frankfurt-am-main"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestCreateCityRequest_Validate(t *testing.T) {
	assert.NoError(t, (&CreateCityRequest{CityName: "London"}).Validate())
	assert.NoError(t, (&CreateCityRequest{CityName: "London", CountryCode: "GB"}).Validate())
	assert.Error(t, (&CreateCityRequest{}).Validate())
	assert.Error(t, (&CreateCityRequest{CityName: "   "}).Validate())
	assert.Error(t, (&CreateCityRequest{CityName: "London", CountryCode: "GBR"}).Validate())
}

func TestCityJob_Snapshot(t *testing.T) {
	now := time.Now().UTC()
	job := &CityJob{
		CityID:         "london-1",
		CityName:       "London",
		Status:         JobStatusCompleted,
		Weather:        &WeatherData{TemperatureC: 18.5, Description: "light rain"},
		LLMDescription: "A mild, drizzly day in London.",
		UpdatedAt:      now,
	}

	snap := job.Snapshot()
	assert.Equal(t, "london-1", snap.CityID)
	assert.Equal(t, JobStatusCompleted, snap.Status)
	assert.Equal(t, now, snap.Timestamp)
	require.NotNil(t, snap.WeatherData)
	assert.Equal(t, "light rain", snap.WeatherData.Description)
	assert.Empty(t, snap.Error)
}
