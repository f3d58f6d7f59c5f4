package config

import (
	"strings"
	"time"
)

// ObservabilityConfig groups configuration that controls metrics and event fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications NotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// NotificationsConfig controls outbound pipeline event notifications.
// Events are delivered to a generic JSON webhook on a best-effort basis.
type NotificationsConfig struct {
	Enabled    bool          `env:"NOTIFY_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"NOTIFY_RETRY_LIMIT" envDefault:"3"`

	Webhook WebhookNotificationConfig `envPrefix:"NOTIFY_WEBHOOK_"`
}

// Sanitize normalises notification configuration values.
func (c *NotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Webhook.sanitize()

	if !c.Enabled {
		return
	}

	if c.Webhook.URL == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when event fan-out is active after sanitisation.
func (c *NotificationsConfig) IsEnabled() bool {
	return c.Enabled && c.Webhook.URL != ""
}

// WebhookNotificationConfig controls the JSON webhook event sink.
type WebhookNotificationConfig struct {
	// URL is the webhook endpoint that receives pipeline events.
	URL string `env:"URL"`

	// AuthHeader is the header used to carry the credential.
	AuthHeader string `env:"AUTH_HEADER" envDefault:"Authorization"`

	// AuthToken is the credential sent with each delivery. Bearer
	// prefixing is applied when the header is Authorization.
	AuthToken string `env:"AUTH_TOKEN"`
}

func (c *WebhookNotificationConfig) sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	c.AuthHeader = strings.TrimSpace(c.AuthHeader)
	c.AuthToken = strings.TrimSpace(c.AuthToken)
	if c.AuthHeader == "" {
		c.AuthHeader = "Authorization"
	}
}
