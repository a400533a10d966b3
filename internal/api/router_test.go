package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"studynotes/internal/artifacts"
	"studynotes/internal/auth"
	"studynotes/internal/health"
	"studynotes/internal/note"
	"studynotes/internal/records"
	"studynotes/internal/runner"
	"studynotes/internal/testutil"
	"testing"
	"time"
)

type gatedGenerator struct {
	release chan struct{}
	text    string
}

func (g *gatedGenerator) Generate(ctx context.Context, _ string) (string, error) {
	select {
	case <-g.release:
		return g.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type testServer struct {
	*httptest.Server
	records *records.Memory
	gen     *gatedGenerator
	tokens  *auth.TokenManager
	stop    context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	recs := records.NewMemory()
	arts := artifacts.NewMemory()
	gen := &gatedGenerator{release: make(chan struct{}), text: "# Notes\n\n- point"}

	pool := runner.New(runner.Config{Workers: 2, BufferSize: 10}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})

	orch := note.NewOrchestrator(note.OrchestratorConfig{
		Records:   recs,
		Artifacts: arts,
		Generator: gen,
		Scheduler: pool,
	})
	svc := note.NewService(note.ServiceConfig{
		Orchestrator: orch,
		Watcher:      note.NewWatcher(recs, 10*time.Millisecond, nil),
		Records:      recs,
		Artifacts:    arts,
	})
	tokens, _ := auth.NewTokenManager("test-secret", time.Hour)
	streams, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		NoteService: svc,
		Tokens:      tokens,
		HealthChecker: health.NewChecker(map[string]health.ReadinessChecker{
			"records":   recs,
			"artifacts": arts,
		}),
		CORSOrigins: []string{"*.youtube.com"},
		Streams:     streams,
	}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, records: recs, gen: gen, tokens: tokens, stop: stop}
}

func (s *testServer) do(t *testing.T, method, path, owner, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		token, err := s.tokens.Issue(auth.Identity{OwnerID: owner})
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) status(key note.RecordKey) note.Status {
	rec, err := s.records.Get(context.Background(), key)
	if err != nil {
		return ""
	}
	return rec.Status
}

func TestRouter_NoteLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	key := note.RecordKey{OwnerID: "u1", SubjectID: "abc123"}

	resp := s.do(t, http.MethodPost, "/v1/notes", "u1", `{"videoUrl":"https://www.youtube.com/watch?v=abc123"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, resp.StatusCode)
	}
	var submitted note.SubmitResponse
	_ = json.NewDecoder(resp.Body).Decode(&submitted)
	if submitted.VideoID != "abc123" || submitted.Message == "" {
		t.Errorf("unexpected submit response %+v", submitted)
	}

	// Not downloadable until ready.
	if resp := s.do(t, http.MethodGet, "/v1/notes/abc123/download", "u1", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status %d before ready, got %d", http.StatusNotFound, resp.StatusCode)
	}

	testutil.MustWaitFor(t, func() bool { return s.status(key) == note.StatusGenerating })

	events := s.do(t, http.MethodGet, "/v1/notes/abc123/events", "u1", "")
	if ct := events.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected event stream, got %q", ct)
	}
	close(s.gen.release)

	var statuses []string
	scanner := bufio.NewScanner(events.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev note.StatusEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event %q: %v", data, err)
		}
		statuses = append(statuses, ev.Status)
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != "ready" {
		t.Fatalf("Expected stream to end with ready, got %v", statuses)
	}
	if statuses[0] != "generating" && statuses[0] != "ready" {
		t.Errorf("Expected stream to start at generating, got %v", statuses)
	}

	resp = s.do(t, http.MethodGet, "/v1/notes/abc123", "u1", "")
	var rec note.StatusRecord
	_ = json.NewDecoder(resp.Body).Decode(&rec)
	if rec.Status != note.StatusReady || rec.Title != "YouTube Note" {
		t.Errorf("unexpected record %+v", rec)
	}

	dl := s.do(t, http.MethodGet, "/v1/notes/abc123/download", "u1", "")
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, dl.StatusCode)
	}
	body, _ := io.ReadAll(dl.Body)
	if string(body) != s.gen.text {
		t.Errorf("unexpected download %q", body)
	}
	if got := dl.Header.Get("Content-Disposition"); got != `attachment; filename="YouTube Note.md"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if got := dl.Header.Get("Content-Type"); got != note.MarkdownContentType {
		t.Errorf("unexpected Content-Type %q", got)
	}

	// Another owner sees nothing.
	if resp := s.do(t, http.MethodGet, "/v1/notes/abc123/download", "u2", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status %d for another owner, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/v1/notes/abc123", "/v1/notes/abc123/events", "/v1/notes/abc123/download"} {
		if resp := s.do(t, http.MethodGet, path, "", ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusUnauthorized, resp.StatusCode)
		}
	}
	if resp := s.do(t, http.MethodPost, "/v1/notes", "", `{"videoUrl":"https://youtu.be/abc123"}`); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, resp.StatusCode)
	}
	if s.records.Len() != 0 {
		t.Error("Expected no record for an unauthenticated submission")
	}
}

func TestRouter_SubmitValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"not a url", `{"videoUrl":"not a url"}`},
		{"no video id", `{"videoUrl":"https://example.com/page"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/v1/notes", "u1", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
			}
		})
	}
	if s.records.Len() != 0 {
		t.Error("Expected invalid submissions to create no record")
	}
}

func TestRouter_EventsForUnknownNote(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/v1/notes/missing/events", "u1", "")
	body, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(body)); got != `data: {"status":"error"}` {
		t.Errorf("Expected a single error event, got %q", got)
	}
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		if resp := s.do(t, http.MethodGet, path, "", ""); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusOK, resp.StatusCode)
		}
	}
	// Google routes are absent without a configured client.
	if resp := s.do(t, http.MethodGet, "/auth/google", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestRouter_StreamsEndOnShutdown(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	key := note.RecordKey{OwnerID: "u1", SubjectID: "abc123"}

	s.do(t, http.MethodPost, "/v1/notes", "u1", `{"videoUrl":"https://youtu.be/abc123"}`)
	testutil.MustWaitFor(t, func() bool { return s.status(key) == note.StatusGenerating })

	events := s.do(t, http.MethodGet, "/v1/notes/abc123/events", "u1", "")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(io.Discard, events.Body)
	}()

	s.stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream stayed open after streams were stopped")
	}

	// The job itself is unaffected.
	close(s.gen.release)
	testutil.MustWaitFor(t, func() bool { return s.status(key) == note.StatusReady })
}
