// Package textgen turns structured weather conditions into a short prose
// description via a chat-completions-style REST API.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

// DefaultResponsePath extracts the generated text from the standard
// chat-completions response shape.
const DefaultResponsePath = "choices[0].message.content"

const maxResponseBytes = 1 << 20

// Config captures the knobs the text generation client needs.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	ResponsePath string
	Timeout      time.Duration
	MaxTokens    int
	Client       *http.Client
}

// Client generates city weather descriptions. Implements
// core.DescriptionGenerator.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	responsePath string
	maxTokens    int
	client       *http.Client
}

// NewClient builds a text generation client. The response path is compiled
// up front so a bad expression fails at startup rather than per message.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("textgen base url is required")
	}

	responsePath := strings.TrimSpace(cfg.ResponsePath)
	if responsePath == "" {
		responsePath = DefaultResponsePath
	}
	if _, err := jmespath.Compile(responsePath); err != nil {
		return nil, fmt.Errorf("invalid textgen response path %q: %w", responsePath, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		model:        strings.TrimSpace(cfg.Model),
		responsePath: responsePath,
		maxTokens:    maxTokens,
		client:       hc,
	}, nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Describe asks the model for a short human-readable summary of the given
// conditions.
func (c *Client) Describe(ctx context.Context, cityName string, weather *model.WeatherData) (string, error) {
	if c.apiKey == "" {
		return "", apperrors.ConfigMissing("textgen api key is not configured")
	}
	if c.model == "" {
		return "", apperrors.ConfigMissing("textgen model is not configured")
	}
	if weather == nil {
		return "", apperrors.Validationf("weather data is required")
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a concise weather reporter. Reply with a short, friendly paragraph and no preamble."},
			{Role: "user", Content: buildPrompt(cityName, weather)},
		},
		MaxTokens: c.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode textgen payload: %w", err)
	}

	endpoint := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create textgen request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTimeout, "textgen request aborted")
		}
		return "", apperrors.Wrap(err, apperrors.ErrCodeProvider, "textgen request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeProvider, "read textgen response")
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", apperrors.ConfigMissing("textgen api key rejected by provider")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Providerf("textgen provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return c.extractText(respBody)
}

// extractText applies the configured JMESPath expression to the decoded
// response and expects a non-empty string back.
func (c *Client) extractText(body []byte) (string, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeProvider, "decode textgen response")
	}

	result, err := jmespath.Search(c.responsePath, decoded)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeProvider, "evaluate textgen response path")
	}

	text, ok := result.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", apperrors.Providerf("textgen response path %q yielded no text", c.responsePath)
	}

	return strings.TrimSpace(text), nil
}

// buildPrompt renders the structured conditions into the user message. Keeping
// the shape deterministic makes generated descriptions easy to eyeball in
// tests and logs.
func buildPrompt(cityName string, w *model.WeatherData) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Write a brief weather description for %s based on these current conditions:\n", cityName)
	fmt.Fprintf(&b, "- Conditions: %s\n", w.Description)
	fmt.Fprintf(&b, "- Temperature: %.1f C (feels like %.1f C)\n", w.TemperatureC, w.FeelsLikeC)
	fmt.Fprintf(&b, "- Humidity: %d%%\n", w.Humidity)
	fmt.Fprintf(&b, "- Wind speed: %.1f m/s\n", w.WindSpeed)
	if w.Pressure > 0 {
		fmt.Fprintf(&b, "- Pressure: %d hPa\n", w.Pressure)
	}
	if w.Visibility > 0 {
		fmt.Fprintf(&b, "- Visibility: %d m\n", w.Visibility)
	}
	return b.String()
}
