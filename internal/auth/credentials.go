package auth

import (
	"context"
	"encoding/json"
	"errors"
	"studynotes/internal/apperrors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// CredentialStore keeps the Google tokens obtained at login, per owner.
// They are kept for later Google API calls made on the owner's behalf.
type CredentialStore interface {
	Save(ctx context.Context, ownerID string, token *oauth2.Token) error
	Load(ctx context.Context, ownerID string) (*oauth2.Token, error)
}

// MemoryCredentials is a process-local CredentialStore.
type MemoryCredentials struct {
	mu     sync.RWMutex
	tokens map[string]oauth2.Token
}

// NewMemoryCredentials creates an empty store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{tokens: make(map[string]oauth2.Token)}
}

// Save implements CredentialStore.
func (m *MemoryCredentials) Save(_ context.Context, ownerID string, token *oauth2.Token) error {
	if ownerID == "" || token == nil {
		return apperrors.Validation("credentials", "owner id and token are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[ownerID] = mergeToken(m.tokens[ownerID], *token)
	return nil
}

// Load implements CredentialStore.
func (m *MemoryCredentials) Load(_ context.Context, ownerID string) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[ownerID]
	if !ok {
		return nil, apperrors.NotFound("credentials", ownerID)
	}
	return &tok, nil
}

const credentialKeyPrefix = "credentials:"

// RedisCredentials stores tokens as JSON strings under credentials:<owner>.
type RedisCredentials struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCredentials wraps a connected client. A zero ttl keeps entries forever.
func NewRedisCredentials(client redis.UniversalClient, ttl time.Duration) *RedisCredentials {
	return &RedisCredentials{client: client, ttl: ttl}
}

// Save implements CredentialStore. A token without a refresh token keeps the
// previously stored one.
func (r *RedisCredentials) Save(ctx context.Context, ownerID string, token *oauth2.Token) error {
	if ownerID == "" || token == nil {
		return apperrors.Validation("credentials", "owner id and token are required")
	}
	merged := *token
	if prev, err := r.Load(ctx, ownerID); err == nil {
		merged = mergeToken(*prev, merged)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return apperrors.Internal("credentials.save", err)
	}
	if err := r.client.Set(ctx, credentialKeyPrefix+ownerID, data, r.ttl).Err(); err != nil {
		return apperrors.Storage("redis.credentials.save", err)
	}
	return nil
}

// Load implements CredentialStore.
func (r *RedisCredentials) Load(ctx context.Context, ownerID string) (*oauth2.Token, error) {
	data, err := r.client.Get(ctx, credentialKeyPrefix+ownerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("credentials", ownerID)
	}
	if err != nil {
		return nil, apperrors.Storage("redis.credentials.load", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, apperrors.Storage("redis.credentials.load", err)
	}
	return &tok, nil
}

// Google only returns a refresh token on first consent.
func mergeToken(prev, next oauth2.Token) oauth2.Token {
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}
	return next
}

var (
	_ CredentialStore = (*MemoryCredentials)(nil)
	_ CredentialStore = (*RedisCredentials)(nil)
)
