// Package generator produces study notes from a video with the Gemini API.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"studynotes/pkg/backoff"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

const systemInstruction = `Write complete, detailed study notes in English for this tutorial video.
Cover every topic the presenter explains, without skipping any point.
Structure the notes with clear headings and lists so a student can revise from them later.
Paraphrase rather than transcribe, and explain the intuition behind each algorithm or idea.
Write them as a careful student would for classmates, not as a transcript.
Format the output as Markdown.`

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"fileData,omitempty"`
	Thought  bool      `json:"thought,omitempty"`
}

type fileData struct {
	FileURI  string `json:"fileUri"`
	MimeType string `json:"mimeType"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type thinkingConfig struct {
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// statusError is a non-2xx reply.
type statusError struct {
	Code       int
	Body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini returned %d: %s", e.Code, e.Body)
}

// RetryAfter implements backoff.RetryAfter.
func (e *statusError) RetryAfter() time.Duration {
	return e.retryAfter
}

func (e *statusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Gemini calls the generateContent endpoint with the video as file data.
type Gemini struct {
	config Config
	retry  *backoff.Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Gemini client.
func New(cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is not set")
	}
	return &Gemini{
		config: cfg,
		retry:  &backoff.Config{Initial: 2 * time.Second, Max: 30 * time.Second},
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          20,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: slog.With("component", "generator", "model", cfg.Model),
	}, nil
}

// Generate implements note.Generator. Transient failures are retried;
// the returned error is always a generation error.
func (g *Gemini) Generate(ctx context.Context, videoURL string) (string, error) {
	payload, err := json.Marshal(buildRequest(videoURL))
	if err != nil {
		return "", apperrors.Generation("gemini.generate", fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(g.config.BaseURL, "/"), url.PathEscape(g.config.Model))

	var text string
	attempt := 0
	err = backoff.Retry(ctx, g.config.MaxRetries, g.retry, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			g.logger.Warn("Retrying note generation", "attempt", attempt)
		}
		var callErr error
		text, callErr = g.call(ctx, endpoint, payload)
		return callErr
	})
	if err != nil {
		return "", apperrors.Generation("gemini.generate", err)
	}
	return text, nil
}

func (g *Gemini) call(ctx context.Context, endpoint string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.config.APIKey)

	resp, err := g.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &statusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if statusErr.retryable() {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text, err := extractText(&decoded)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return text, nil
}

func buildRequest(videoURL string) *generateRequest {
	return &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		Contents: []content{{
			Role:  "user",
			Parts: []part{{FileData: &fileData{FileURI: videoURL, MimeType: "video/*"}}},
		}},
		GenerationConfig: generationConfig{
			ThinkingConfig: &thinkingConfig{ThinkingLevel: "HIGH"},
		},
	}
}

// extractText joins the non-thought text parts of the first candidate.
func extractText(resp *generateResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("response has no candidates")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("empty response (finish reason %q)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}

// parseRetryAfter accepts delay-seconds; HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ note.Generator = (*Gemini)(nil)
