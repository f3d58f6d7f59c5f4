package config

import (
	"strings"
	"time"
)

// WeatherProviderConfig contains configuration for the upstream weather API.
type WeatherProviderConfig struct {
	// BaseURL is the weather API base URL.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openweathermap.org"`

	// Key is the weather API credential. Jobs fail at the enrichment
	// stage when it is unset.
	Key string `env:"KEY"`

	// Timeout bounds a single weather lookup.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to weather provider configuration values.
func (w *WeatherProviderConfig) Sanitize() {
	w.BaseURL = strings.TrimSpace(w.BaseURL)
	w.Key = strings.TrimSpace(w.Key)
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
}

// TextGenProviderConfig contains configuration for the text generation API
// used to produce weather descriptions.
type TextGenProviderConfig struct {
	// BaseURL is the text generation API base URL.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com"`

	// Key is the text generation API credential. Jobs fail at the
	// description stage when it is unset.
	Key string `env:"KEY"`

	// Model is the model identifier sent with each completion request.
	Model string `env:"MODEL" envDefault:"gpt-4o-mini"`

	// ResponsePath is a JMESPath expression selecting the generated text
	// from the provider response body.
	ResponsePath string `env:"RESPONSE_PATH"`

	// Timeout bounds a single description request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to text generation provider configuration values.
func (t *TextGenProviderConfig) Sanitize() {
	t.BaseURL = strings.TrimSpace(t.BaseURL)
	t.Key = strings.TrimSpace(t.Key)
	t.Model = strings.TrimSpace(t.Model)
	t.ResponsePath = strings.TrimSpace(t.ResponsePath)
	if t.Timeout <= 0 {
		t.Timeout = 30 * time.Second
	}
}
