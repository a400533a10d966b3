package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"studynotes/internal/apperrors"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// GoogleUser is the subset of the userinfo response the service keeps.
type GoogleUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleLogin runs the authorization code flow and turns a Google account
// into a service token.
type GoogleLogin struct {
	oauth       *oauth2.Config
	userInfoURL string
	tokens      *TokenManager
	creds       CredentialStore
	logger      *slog.Logger
}

// NewGoogleLogin creates the login flow. cfg must have a Google client.
func NewGoogleLogin(cfg Config, tokens *TokenManager, creds CredentialStore) (*GoogleLogin, error) {
	cfg = cfg.withDefaults()
	if !cfg.GoogleEnabled() {
		return nil, errors.New("auth: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if tokens == nil || creds == nil {
		return nil, errors.New("auth: token manager and credential store are required")
	}
	return &GoogleLogin{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       googleScopes,
		},
		userInfoURL: userInfoURL,
		tokens:      tokens,
		creds:       creds,
		logger:      slog.With("component", "auth"),
	}, nil
}

// NewState returns a random value for the state parameter and cookie.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL is the consent page to redirect the browser to. Offline access
// with forced consent makes Google return a refresh token.
func (g *GoogleLogin) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Complete exchanges code, reads the user profile, stores the Google token
// and returns a signed service token.
func (g *GoogleLogin) Complete(ctx context.Context, code string) (string, *GoogleUser, error) {
	if code == "" {
		return "", nil, apperrors.Validation("code", "authorization code is required")
	}
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", nil, apperrors.Unauthorized(fmt.Sprintf("code exchange failed: %v", err))
	}

	user, err := g.fetchUser(ctx, tok)
	if err != nil {
		return "", nil, err
	}

	if err := g.creds.Save(ctx, user.ID, tok); err != nil {
		g.logger.Error("Failed to store Google credentials", "ownerId", user.ID, "error", err)
		return "", nil, err
	}

	signed, err := g.tokens.Issue(Identity{OwnerID: user.ID, Email: user.Email})
	if err != nil {
		return "", nil, err
	}
	g.logger.Info("User signed in", "ownerId", user.ID)
	return signed, user, nil
}

func (g *GoogleLogin) fetchUser(ctx context.Context, tok *oauth2.Token) (*GoogleUser, error) {
	client := g.oauth.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, apperrors.Internal("google.userinfo", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Unavailable("google.userinfo", "could not reach Google")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, apperrors.Unauthorized(fmt.Sprintf("userinfo returned %d: %s", resp.StatusCode, body))
	}
	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, apperrors.Internal("google.userinfo", err)
	}
	if user.ID == "" {
		return nil, apperrors.Unauthorized("userinfo has no account id")
	}
	return &user, nil
}
