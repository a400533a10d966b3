package note

import (
	"context"
	"errors"
)

// ErrStale is returned by conditional record writes when a newer submission
// has replaced the generation the writer was working on.
var ErrStale = errors.New("note record superseded by a newer submission")

// ErrTransition is returned by conditional record writes when the stored
// status cannot move to the requested one, for example ready -> failed.
var ErrTransition = errors.New("note status transition not allowed")

// RecordStore persists one StatusRecord per (owner, video).
type RecordStore interface {
	// Upsert creates the record or overwrites the mutable fields of an
	// existing one, keeping CreatedAt and incrementing Generation.
	// Returns the stored record.
	Upsert(ctx context.Context, rec *StatusRecord) (*StatusRecord, error)

	// UpdateStatus sets status (and artifactKey, cleared unless status is
	// ready) when the stored generation still equals generation.
	// Returns ErrStale on a generation mismatch, ErrTransition when the
	// stored status cannot move to status, and a not found error when the
	// record does not exist.
	UpdateStatus(ctx context.Context, key RecordKey, generation int64, status Status, artifactKey string) error

	// Get returns the record or a not found error.
	Get(ctx context.Context, key RecordKey) (*StatusRecord, error)
}

// ArtifactStore holds generated note text.
type ArtifactStore interface {
	// Put stores text under key and returns the key to record.
	Put(ctx context.Context, key, text string) (string, error)

	// Get returns the text under key or a not found error.
	Get(ctx context.Context, key string) (string, error)
}

// Generator turns a video reference into note text in one blocking call.
type Generator interface {
	Generate(ctx context.Context, videoURL string) (string, error)
}

// TitleResolver looks up a display title for a video.
type TitleResolver interface {
	Resolve(ctx context.Context, videoURL string) (string, error)
}

// Scheduler runs tasks off the request path. Schedule must not block.
type Scheduler interface {
	Schedule(name string, task func(ctx context.Context)) error
}
