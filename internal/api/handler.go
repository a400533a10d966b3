// Package api provides the HTTP handlers and routing for the notes service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"studynotes/internal/apperrors"
	"studynotes/internal/auth"
	"studynotes/internal/health"
	"studynotes/internal/note"
	"time"
	"unicode"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

const stateCookie = "oauth_state"

var loginSuccessPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body>
<p>Signed in. You can close this window.</p>
<script>
if (window.opener) {
	window.opener.postMessage({type: "AUTH_SUCCESS", token: {{.Token}}}, "*");
}
window.close();
</script>
</body>
</html>
`))

// Handler contains HTTP handlers for the notes API
type Handler struct {
	svc          *note.Service
	health       *health.Checker
	login        *auth.GoogleLogin
	cookieSecure bool
	streams      context.Context
}

// NewHandler creates a new API handler. login may be nil when Google sign-in
// is not configured.
func NewHandler(svc *note.Service, healthChecker *health.Checker, login *auth.GoogleLogin, cookieSecure bool) *Handler {
	return &Handler{
		svc:          svc,
		health:       healthChecker,
		login:        login,
		cookieSecure: cookieSecure,
		streams:      context.Background(),
	}
}

// SubmitNote handles POST /v1/notes
func (h *Handler) SubmitNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req note.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Submit(r.Context(), auth.OwnerID(r.Context()), &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// GetNote handles GET /v1/notes/{videoId}
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), auth.OwnerID(r.Context()), r.PathValue("videoId"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// NoteEvents handles GET /v1/notes/{videoId}/events as a server-sent event
// stream. The stream ends after a terminal status or when the client leaves.
func (h *Handler) NoteEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if h.streams != nil {
		stop := context.AfterFunc(h.streams, cancel)
		defer stop()
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.WarnContext(r.Context(), "Failed to clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.WarnContext(r.Context(), "Streaming not supported", "error", err)
		return
	}

	for ev := range h.svc.Watch(ctx, auth.OwnerID(ctx), r.PathValue("videoId")) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to encode event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// DownloadNote handles GET /v1/notes/{videoId}/download
func (h *Handler) DownloadNote(w http.ResponseWriter, r *http.Request) {
	dl, err := h.svc.Retrieve(r.Context(), auth.OwnerID(r.Context()), r.PathValue("videoId"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(dl.Content); err != nil {
		slog.WarnContext(r.Context(), "Failed to write download", "error", err)
	}
}

// GoogleLogin handles GET /auth/google
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.login.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		writeError(w, http.StatusUnauthorized, "Google sign-in failed: "+reason)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		writeError(w, http.StatusUnauthorized, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/google", MaxAge: -1, HttpOnly: true, Secure: h.cookieSecure})

	token, _, err := h.login.Complete(r.Context(), q.Get("code"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := loginSuccessPage.Execute(w, struct{ Token string }{token}); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render login page", "error", err)
	}
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if a store is unreachable or the service is shutting down.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}

// contentDisposition quotes ASCII names and adds an RFC 5987 form otherwise.
func contentDisposition(filename string) string {
	ascii := make([]rune, 0, len(filename))
	plain := true
	for _, c := range filename {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) {
			plain = false
			c = '_'
		}
		ascii = append(ascii, c)
	}
	if plain {
		return fmt.Sprintf("attachment; filename=%q", filename)
	}
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", string(ascii), url.PathEscape(filename))
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps service errors to HTTP status codes. Server-side causes
// are logged but not echoed to the client.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
		if status != http.StatusServiceUnavailable {
			writeError(w, status, http.StatusText(status))
			return
		}
	} else {
		slog.WarnContext(r.Context(), "Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	writeError(w, status, err.Error())
}
