// Package artifacts provides stores for generated note text.
package artifacts

import (
	"context"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"sync"
)

// Memory is an in-process artifact store.
type Memory struct {
	mu    sync.RWMutex
	texts map[string]string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{texts: make(map[string]string)}
}

// Put implements note.ArtifactStore. Writing an existing key replaces it.
func (m *Memory) Put(_ context.Context, key, text string) (string, error) {
	if key == "" {
		return "", apperrors.Validation("key", "artifact key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[key] = text
	return key, nil
}

// Get implements note.ArtifactStore.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.texts[key]
	if !ok {
		return "", apperrors.NotFound("artifact", key)
	}
	return text, nil
}

// Ready implements health.ReadinessChecker. Always ready.
func (m *Memory) Ready(context.Context) error {
	return nil
}

var _ note.ArtifactStore = (*Memory)(nil)
