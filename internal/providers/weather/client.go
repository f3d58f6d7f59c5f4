// Package weather queries a current-conditions REST API compatible with the
// OpenWeatherMap wire shape.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

const maxResponseBytes = 1 << 20 // 1 MiB, plenty for a conditions payload

// Config captures the knobs the weather client needs.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// Client fetches current weather conditions for a city. Implements
// core.WeatherProvider.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient builds a weather client. A missing API key is not an error here;
// it is reported per-call so a pipeline without credentials still starts.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("weather base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  hc,
	}, nil
}

// conditionsResponse mirrors the subset of the OpenWeatherMap current-weather
// payload we consume.
type conditionsResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility int `json:"visibility"`
	Sys        struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// CurrentWeather looks up metric-unit conditions for the named city. The
// country code is optional and narrows the lookup when present.
func (c *Client) CurrentWeather(ctx context.Context, cityName, countryCode string) (*model.WeatherData, error) {
	if c.apiKey == "" {
		return nil, apperrors.ConfigMissing("weather api key is not configured")
	}

	query := strings.TrimSpace(cityName)
	if query == "" {
		return nil, apperrors.Validationf("city name is required")
	}
	if cc := strings.TrimSpace(countryCode); cc != "" {
		query = query + "," + cc
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	endpoint := c.baseURL + "/data/2.5/weather?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTimeout, "weather request aborted")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProvider, "weather request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProvider, "read weather response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerStatusError(resp.StatusCode, body)
	}

	var payload conditionsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProvider, "decode weather response")
	}

	data := &model.WeatherData{
		TemperatureC: payload.Main.Temp,
		FeelsLikeC:   payload.Main.FeelsLike,
		Humidity:     payload.Main.Humidity,
		Pressure:     payload.Main.Pressure,
		WindSpeed:    payload.Wind.Speed,
		Visibility:   payload.Visibility,
		Sunrise:      payload.Sys.Sunrise,
		Sunset:       payload.Sys.Sunset,
	}
	if len(payload.Weather) > 0 {
		data.Description = payload.Weather[0].Description
	}
	if data.Description == "" {
		return nil, apperrors.Provider("weather response missing conditions description")
	}

	return data, nil
}

// providerStatusError maps upstream HTTP statuses onto pipeline error codes.
// 404 means the city is unknown to the provider, which is a caller problem
// rather than a provider outage.
func providerStatusError(status int, body []byte) error {
	detail := upstreamMessage(body)
	switch status {
	case http.StatusNotFound:
		return apperrors.NotFound("city not recognized by weather provider")
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ConfigMissing("weather api key rejected by provider")
	default:
		if detail != "" {
			return apperrors.Providerf("weather provider returned %d: %s", status, detail)
		}
		return apperrors.Providerf("weather provider returned %d", status)
	}
}

// upstreamMessage pulls the human-readable message field many weather APIs
// include on errors. Best effort only.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}
