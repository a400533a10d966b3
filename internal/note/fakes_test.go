package note

import (
	"context"
	"errors"
	"studynotes/internal/apperrors"
	"sync"
	"time"
)

// fakeRecords is a minimal RecordStore that keeps a write history.
type fakeRecords struct {
	mu        sync.Mutex
	recs      map[RecordKey]*StatusRecord
	history   []Status
	updateErr error
	getErr    error
	// lostAck makes the write of this status apply and then report an error.
	lostAck Status
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{recs: make(map[RecordKey]*StatusRecord)}
}

func (f *fakeRecords) Upsert(_ context.Context, rec *StatusRecord) (*StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := rec.Clone()
	stored.ArtifactKey = ""
	if prev, ok := f.recs[rec.Key()]; ok {
		stored.CreatedAt = prev.CreatedAt
		stored.Generation = prev.Generation + 1
	} else {
		stored.Generation = 1
	}
	f.recs[rec.Key()] = stored
	f.history = append(f.history, stored.Status)
	return stored.Clone(), nil
}

func (f *fakeRecords) UpdateStatus(_ context.Context, key RecordKey, generation int64, status Status, artifactKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.recs[key]
	if !ok {
		return apperrors.NotFound("note", key.SubjectID)
	}
	if rec.Generation != generation {
		return ErrStale
	}
	if !rec.Status.CanTransitionTo(status) {
		return ErrTransition
	}
	rec.Status = status
	rec.ArtifactKey = ""
	if status == StatusReady {
		rec.ArtifactKey = artifactKey
	}
	rec.UpdatedAt = time.Now().UTC()
	f.history = append(f.history, status)
	if status == f.lostAck {
		return apperrors.Storage("records.update", errBoom)
	}
	return nil
}

func (f *fakeRecords) Get(_ context.Context, key RecordKey) (*StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.recs[key]
	if !ok {
		return nil, apperrors.NotFound("note", key.SubjectID)
	}
	return rec.Clone(), nil
}

func (f *fakeRecords) set(rec *StatusRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[rec.Key()] = rec.Clone()
}

func (f *fakeRecords) setStatus(key RecordKey, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[key].Status = status
}

func (f *fakeRecords) statuses() []Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Status(nil), f.history...)
}

type fakeArtifacts struct {
	mu     sync.Mutex
	texts  map[string]string
	puts   int
	putErr error
	getErr error
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{texts: make(map[string]string)}
}

func (f *fakeArtifacts) Put(_ context.Context, key, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return "", f.putErr
	}
	f.texts[key] = text
	return key, nil
}

func (f *fakeArtifacts) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	text, ok := f.texts[key]
	if !ok {
		return "", apperrors.NotFound("artifact", key)
	}
	return text, nil
}

func (f *fakeArtifacts) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func (f *fakeArtifacts) putCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

type fakeGenerator struct {
	text string
	err  error
}

func (g fakeGenerator) Generate(context.Context, string) (string, error) {
	return g.text, g.err
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string) (string, error) {
	panic("generator exploded")
}

type fakeTitles struct {
	title string
	err   error
	delay time.Duration
}

func (f fakeTitles) Resolve(ctx context.Context, _ string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.title, f.err
}

// manualScheduler holds tasks until run is called.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func(context.Context)
	err   error
}

func (s *manualScheduler) Schedule(_ string, task func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *manualScheduler) run(i int) {
	s.mu.Lock()
	task := s.tasks[i]
	s.mu.Unlock()
	task(context.Background())
}

func (s *manualScheduler) runAll() {
	s.mu.Lock()
	tasks := append(([]func(context.Context))(nil), s.tasks...)
	s.mu.Unlock()
	for _, task := range tasks {
		task(context.Background())
	}
}

var errBoom = errors.New("boom")
