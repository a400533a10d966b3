package auth

import (
	"studynotes/internal/config"
	"time"
)

const defaultRedirectURL = "http://localhost:8000/auth/google/callback"

// Config holds token and Google login settings.
type Config struct {
	TokenTTL           time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	CookieSecure       bool // Set the Secure flag on the OAuth state cookie
}

// LoadConfigFromEnv loads auth configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		TokenTTL:           config.GetDurationEnv("JWT_TTL", DefaultTokenTTL),
		GoogleClientID:     config.GetEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: config.GetSecret("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  config.GetEnv("REDIRECT_URI", defaultRedirectURL),
		CookieSecure:       config.GetEnv("COOKIE_SECURE", "false") == "true",
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.GoogleRedirectURL == "" {
		c.GoogleRedirectURL = defaultRedirectURL
	}
	return c
}

// GoogleEnabled reports whether a Google OAuth client is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
