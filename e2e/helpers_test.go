//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"studynotes/internal/api"
	"studynotes/internal/artifacts"
	"studynotes/internal/auth"
	"studynotes/internal/generator"
	"studynotes/internal/health"
	"studynotes/internal/note"
	"studynotes/internal/records"
	"studynotes/internal/runner"
	"studynotes/internal/title"
	"sync/atomic"
	"testing"
	"time"
)

const noteText = "# Lecture\n\n## Ideas\n\n- first point"

// env is one running notes service plus a way to mint tokens for it.
type env struct {
	baseURL string
	tokens  *auth.TokenManager
	// geminiCalls counts generateContent requests; nil against an external service.
	geminiCalls *atomic.Int64
}

// newEnv targets E2E_API_URL when set (tokens signed with E2E_JWT_SECRET).
// Otherwise it runs the full stack in-process with fake Gemini and oEmbed
// upstreams.
func newEnv(tb testing.TB) *env {
	tb.Helper()
	if url := os.Getenv("E2E_API_URL"); url != "" {
		tokens, err := auth.NewTokenManager(os.Getenv("E2E_JWT_SECRET"), time.Hour)
		if err != nil {
			tb.Fatalf("E2E_JWT_SECRET is required with E2E_API_URL: %v", err)
		}
		tb.Logf("Using external API: %s", url)
		return &env{baseURL: url, tokens: tokens}
	}

	var calls atomic.Int64
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": noteText}}},
			}},
		})
	}))
	tb.Cleanup(gemini.Close)

	oembed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Lecture 1"}`))
	}))
	tb.Cleanup(oembed.Close)

	gen, err := generator.New(generator.Config{APIKey: "test", BaseURL: gemini.URL, Timeout: 10 * time.Second})
	if err != nil {
		tb.Fatalf("generator.New failed: %v", err)
	}

	recs := records.NewMemory()
	arts := artifacts.NewMemory()
	pool := runner.New(runner.Config{Workers: 4, BufferSize: 100}, nil)
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})

	svc := note.NewService(note.ServiceConfig{
		Orchestrator: note.NewOrchestrator(note.OrchestratorConfig{
			Records:   recs,
			Artifacts: arts,
			Generator: gen,
			Scheduler: pool,
		}),
		Watcher:   note.NewWatcher(recs, 20*time.Millisecond, nil),
		Records:   recs,
		Artifacts: arts,
		Titles:    title.New(title.Config{Endpoint: oembed.URL}),
	})

	tokens, _ := auth.NewTokenManager("e2e-secret", time.Hour)
	server := httptest.NewServer(api.NewRouter(api.RouterConfig{
		NoteService: svc,
		Tokens:      tokens,
		HealthChecker: health.NewChecker(map[string]health.ReadinessChecker{
			"records":   recs,
			"artifacts": arts,
		}),
	}))
	tb.Cleanup(server.Close)

	return &env{baseURL: server.URL, tokens: tokens, geminiCalls: &calls}
}

func (e *env) request(tb testing.TB, method, path, owner, body string) *http.Response {
	tb.Helper()
	resp, err := e.do(method, path, owner, body)
	if err != nil {
		tb.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// do is request for use off the test goroutine.
func (e *env) do(method, path, owner, body string) (*http.Response, error) {
	req, err := http.NewRequest(method, e.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		token, err := e.tokens.Issue(auth.Identity{OwnerID: owner})
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

// readEvents consumes an event stream until the server closes it.
func readEvents(resp *http.Response) ([]string, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var statuses []string
	for _, line := range strings.Split(string(body), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev note.StatusEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return statuses, fmt.Errorf("bad event %q: %w", data, err)
		}
		statuses = append(statuses, ev.Status)
	}
	return statuses, nil
}
