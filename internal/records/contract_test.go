package records

import (
	"context"
	"errors"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"sync"
	"testing"
	"time"
)

type store interface {
	note.RecordStore
	Ready(ctx context.Context) error
}

// runStoreContract exercises the behaviour every record store must share.
// key prefixes keep concurrent runs against a shared backend apart.
func runStoreContract(t *testing.T, s store, prefix string) {
	ctx := context.Background()

	newKey := func(name string) note.RecordKey {
		return note.RecordKey{OwnerID: prefix + "-owner", SubjectID: name}
	}
	pending := func(key note.RecordKey, title string) *note.StatusRecord {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &note.StatusRecord{
			OwnerID:   key.OwnerID,
			SubjectID: key.SubjectID,
			Title:     title,
			SourceURL: "https://youtu.be/" + key.SubjectID,
			Status:    note.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, newKey("missing"))
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("Expected not found, got %v", err)
		}
	})

	t.Run("upsert then get", func(t *testing.T) {
		key := newKey("first")
		stored, err := s.Upsert(ctx, pending(key, "Lecture 1"))
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if stored.Generation != 1 {
			t.Errorf("Expected generation 1, got %d", stored.Generation)
		}

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != note.StatusPending || got.Title != "Lecture 1" {
			t.Errorf("Unexpected record %+v", got)
		}
		if got.SourceURL != "https://youtu.be/first" {
			t.Errorf("Unexpected source url %q", got.SourceURL)
		}
	})

	t.Run("overwrite keeps created_at and bumps generation", func(t *testing.T) {
		key := newKey("overwrite")
		first, err := s.Upsert(ctx, pending(key, "Old"))
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if err := s.UpdateStatus(ctx, key, first.Generation, note.StatusGenerating, ""); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if err := s.UpdateStatus(ctx, key, first.Generation, note.StatusReady, "owner/x/overwrite.md"); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		later := pending(key, "New")
		later.CreatedAt = first.CreatedAt.Add(time.Hour)
		second, err := s.Upsert(ctx, later)
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if second.Generation != first.Generation+1 {
			t.Errorf("Expected generation %d, got %d", first.Generation+1, second.Generation)
		}

		got, _ := s.Get(ctx, key)
		if !got.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("Expected created_at %v kept, got %v", first.CreatedAt, got.CreatedAt)
		}
		if got.Status != note.StatusPending || got.ArtifactKey != "" || got.Title != "New" {
			t.Errorf("Expected fresh pending record, got %+v", got)
		}
	})

	t.Run("stale generation is rejected", func(t *testing.T) {
		key := newKey("stale")
		first, _ := s.Upsert(ctx, pending(key, ""))
		if _, err := s.Upsert(ctx, pending(key, "")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		err := s.UpdateStatus(ctx, key, first.Generation, note.StatusGenerating, "")
		if !errors.Is(err, note.ErrStale) {
			t.Fatalf("Expected ErrStale, got %v", err)
		}
		got, _ := s.Get(ctx, key)
		if got.Status != note.StatusPending {
			t.Errorf("Stale write must not change status, got %s", got.Status)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		err := s.UpdateStatus(ctx, newKey("never"), 1, note.StatusFailed, "")
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("Expected not found, got %v", err)
		}
	})

	t.Run("artifact key only on ready", func(t *testing.T) {
		key := newKey("artifact")
		rec, _ := s.Upsert(ctx, pending(key, ""))
		if err := s.UpdateStatus(ctx, key, rec.Generation, note.StatusFailed, "ignored.md"); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		got, _ := s.Get(ctx, key)
		if got.ArtifactKey != "" {
			t.Errorf("Expected no artifact key on failed record, got %q", got.ArtifactKey)
		}
	})

	t.Run("status only moves forward", func(t *testing.T) {
		key := newKey("forward")
		rec, _ := s.Upsert(ctx, pending(key, ""))
		if err := s.UpdateStatus(ctx, key, rec.Generation, note.StatusReady, "skip.md"); !errors.Is(err, note.ErrTransition) {
			t.Fatalf("Expected pending -> ready rejected, got %v", err)
		}
		if err := s.UpdateStatus(ctx, key, rec.Generation, note.StatusGenerating, ""); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if err := s.UpdateStatus(ctx, key, rec.Generation, note.StatusReady, "owner/x/forward.md"); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		tests := []struct {
			name string
			to   note.Status
		}{
			{"ready to failed", note.StatusFailed},
			{"ready to generating", note.StatusGenerating},
			{"ready to pending", note.StatusPending},
		}
		for _, tt := range tests {
			if err := s.UpdateStatus(ctx, key, rec.Generation, tt.to, ""); !errors.Is(err, note.ErrTransition) {
				t.Errorf("%s: expected ErrTransition, got %v", tt.name, err)
			}
		}
		got, _ := s.Get(ctx, key)
		if got.Status != note.StatusReady || got.ArtifactKey != "owner/x/forward.md" {
			t.Errorf("Expected ready record untouched, got %+v", got)
		}

		failedKey := newKey("forward-failed")
		failed, _ := s.Upsert(ctx, pending(failedKey, ""))
		if err := s.UpdateStatus(ctx, failedKey, failed.Generation, note.StatusFailed, ""); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if err := s.UpdateStatus(ctx, failedKey, failed.Generation, note.StatusGenerating, ""); !errors.Is(err, note.ErrTransition) {
			t.Errorf("Expected failed -> generating rejected, got %v", err)
		}
		if got, _ := s.Get(ctx, failedKey); got.Status != note.StatusFailed {
			t.Errorf("Expected failed record untouched, got %s", got.Status)
		}
	})

	t.Run("stale wins over transition", func(t *testing.T) {
		key := newKey("stale-ready")
		first, _ := s.Upsert(ctx, pending(key, ""))
		if _, err := s.Upsert(ctx, pending(key, "")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if err := s.UpdateStatus(ctx, key, first.Generation, note.StatusReady, ""); !errors.Is(err, note.ErrStale) {
			t.Errorf("Expected ErrStale, got %v", err)
		}
	})

	t.Run("owners are isolated", func(t *testing.T) {
		key := newKey("shared")
		if _, err := s.Upsert(ctx, pending(key, "")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		other := note.RecordKey{OwnerID: prefix + "-other", SubjectID: "shared"}
		if _, err := s.Get(ctx, other); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("Expected other owner to see nothing, got %v", err)
		}
	})

	t.Run("concurrent resubmission yields one record", func(t *testing.T) {
		key := newKey("concurrent")
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.Upsert(ctx, pending(key, ""))
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Generation != 10 {
			t.Errorf("Expected generation 10 after 10 upserts, got %d", got.Generation)
		}
	})

	t.Run("ready", func(t *testing.T) {
		if err := s.Ready(ctx); err != nil {
			t.Errorf("Expected store to be ready, got %v", err)
		}
	})
}
