package generator

import (
	"studynotes/internal/config"
	"time"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel      = "gemini-3-flash-preview"
	defaultTimeout    = 10 * time.Minute
	defaultMaxRetries = 2
)

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey     string
	Model      string        // default: gemini-3-flash-preview
	BaseURL    string        // default: public Generative Language API
	Timeout    time.Duration // per-attempt request timeout (default: 10m)
	MaxRetries int           // retries on 429/5xx/transport errors (default: 2)
}

// LoadConfigFromEnv loads generator configuration from environment variables.
// GEMINI_API_KEY may also be supplied as a file via GEMINI_API_KEY_FILE.
func LoadConfigFromEnv() Config {
	cfg := Config{
		APIKey:     config.GetSecret("GEMINI_API_KEY"),
		Model:      config.GetEnv("GEMINI_MODEL", defaultModel),
		BaseURL:    config.GetEnv("GEMINI_BASE_URL", defaultBaseURL),
		Timeout:    config.GetDurationEnv("GEMINI_TIMEOUT", defaultTimeout),
		MaxRetries: config.GetIntEnv("GEMINI_MAX_RETRIES", defaultMaxRetries),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
// MaxRetries may be zero; only negative values are replaced.
func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}
