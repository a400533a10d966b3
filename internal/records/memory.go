// Package records provides StatusRecord stores.
package records

import (
	"context"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"sync"
	"time"
)

// Memory is an in-process record store.
// Records are copied on the way in and out so callers never share state.
type Memory struct {
	mu      sync.RWMutex
	records map[note.RecordKey]*note.StatusRecord
	now     func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[note.RecordKey]*note.StatusRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert implements note.RecordStore.
func (m *Memory) Upsert(_ context.Context, rec *note.StatusRecord) (*note.StatusRecord, error) {
	if rec == nil {
		return nil, apperrors.Validation("record", "record is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := rec.Clone()
	stored.ArtifactKey = ""
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = m.now()
	}
	if prev, ok := m.records[rec.Key()]; ok {
		stored.CreatedAt = prev.CreatedAt
		stored.Generation = prev.Generation + 1
	} else {
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = stored.UpdatedAt
		}
		stored.Generation = 1
	}
	m.records[rec.Key()] = stored
	return stored.Clone(), nil
}

// UpdateStatus implements note.RecordStore.
func (m *Memory) UpdateStatus(_ context.Context, key note.RecordKey, generation int64, status note.Status, artifactKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return apperrors.NotFound("note", key.SubjectID)
	}
	if rec.Generation != generation {
		return note.ErrStale
	}
	if !rec.Status.CanTransitionTo(status) {
		return note.ErrTransition
	}
	rec.Status = status
	rec.ArtifactKey = artifactKeyFor(status, artifactKey)
	rec.UpdatedAt = m.now()
	return nil
}

// Get implements note.RecordStore.
func (m *Memory) Get(_ context.Context, key note.RecordKey) (*note.StatusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, apperrors.NotFound("note", key.SubjectID)
	}
	return rec.Clone(), nil
}

// Ready implements health.ReadinessChecker. Always ready.
func (m *Memory) Ready(context.Context) error {
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// artifactKeyFor keeps the key only on ready records.
func artifactKeyFor(status note.Status, artifactKey string) string {
	if status != note.StatusReady {
		return ""
	}
	return artifactKey
}

var _ note.RecordStore = (*Memory)(nil)
