// Package title looks up display titles for videos.
package title

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"studynotes/internal/config"
	"studynotes/internal/note"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultEndpoint         = "https://www.youtube.com/oembed"
	defaultTimeout          = 5 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// ErrUnsupportedURL is returned for links oEmbed cannot describe.
var ErrUnsupportedURL = errors.New("not a YouTube URL")

// Config holds configuration for the oEmbed resolver.
type Config struct {
	Endpoint         string        // default: https://www.youtube.com/oembed
	Timeout          time.Duration // per-request timeout (default: 5s)
	BreakerThreshold uint32        // consecutive failures before the breaker opens (default: 5)
	BreakerCooldown  time.Duration // time the breaker stays open (default: 30s)
}

// LoadConfigFromEnv loads resolver configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Endpoint: config.GetEnv("OEMBED_ENDPOINT", defaultEndpoint),
		Timeout:  config.GetDurationEnv("OEMBED_TIMEOUT", defaultTimeout),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = defaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}

// clientError is a 4xx reply: the video is private or missing, the
// endpoint itself is healthy.
type clientError struct {
	code int
}

func (e *clientError) Error() string {
	return fmt.Sprintf("oembed returned %d", e.code)
}

// OEmbed resolves titles through the YouTube oEmbed endpoint. Calls go
// through a circuit breaker so an unreachable endpoint fails fast instead of
// holding up every submission for the full timeout.
type OEmbed struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// New creates a resolver.
func New(cfg Config) *OEmbed {
	cfg = cfg.withDefaults()
	logger := slog.With("component", "title")

	return &OEmbed{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "oembed",
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerThreshold
			},
			IsSuccessful: func(err error) bool {
				var ce *clientError
				return err == nil || errors.As(err, &ce)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Title lookup breaker changed state", "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Resolve implements note.TitleResolver.
func (o *OEmbed) Resolve(ctx context.Context, videoURL string) (string, error) {
	if !isYouTube(videoURL) {
		return "", ErrUnsupportedURL
	}

	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.fetch(ctx, videoURL)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// State reports the breaker state for diagnostics.
func (o *OEmbed) State() string {
	return o.breaker.State().String()
}

func (o *OEmbed) fetch(ctx context.Context, videoURL string) (string, error) {
	query := url.Values{"url": {videoURL}, "format": {"json"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", &clientError{code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed returned %d", resp.StatusCode)
	}

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode oembed response: %w", err)
	}
	return strings.TrimSpace(body.Title), nil
}

func isYouTube(videoURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(videoURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

var _ note.TitleResolver = (*OEmbed)(nil)
