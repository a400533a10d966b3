package note

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"studynotes/internal/apperrors"
	"studynotes/internal/observability"
	"time"

	"github.com/google/uuid"
)

// Pipeline stages, used for error classification and metrics.
const (
	StageGenerate = "generate"
	StageStore    = "store"
	StagePersist  = "persist"
)

// Job outcomes reported to metrics.
const (
	outcomeReady      = "ready"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
	outcomeAborted    = "aborted"
)

// StageError records which pipeline stage a job failed in.
type StageError struct {
	Stage string
	Err   error
}

// Error formats the stage failure for logs.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// SubmitInput is a validated submission handed to the orchestrator.
type SubmitInput struct {
	OwnerID   string
	SubjectID string
	SourceURL string
	Title     string
}

// Job is everything Execute needs; nothing else is shared with the request.
type Job struct {
	Key        RecordKey
	SourceURL  string
	Generation int64
	RunID      string
}

// OrchestratorConfig holds the orchestrator's collaborators.
type OrchestratorConfig struct {
	Records   RecordStore
	Artifacts ArtifactStore
	Generator Generator
	Scheduler Scheduler
	Metrics   *observability.Metrics
}

// Orchestrator owns the note status state machine:
//
//	pending -> generating -> ready | failed
//
// Every transition is written to the RecordStore. Stage writes are
// conditional on the record generation captured at submission, so a job
// that has been overtaken by a resubmission stops instead of clobbering the
// newer record.
type Orchestrator struct {
	records   RecordStore
	artifacts ArtifactStore
	generator Generator
	scheduler Scheduler
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		records:   cfg.Records,
		artifacts: cfg.Artifacts,
		generator: cfg.Generator,
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit writes the record as pending and schedules its execution without
// waiting for it. The returned record is the acknowledged state.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*StatusRecord, error) {
	now := o.now()
	rec, err := o.records.Upsert(ctx, &StatusRecord{
		OwnerID:   in.OwnerID,
		SubjectID: in.SubjectID,
		Title:     in.Title,
		SourceURL: in.SourceURL,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	job := Job{
		Key:        rec.Key(),
		SourceURL:  in.SourceURL,
		Generation: rec.Generation,
		RunID:      uuid.NewString(),
	}
	logger := jobLogger(job)

	if err := o.scheduler.Schedule("note:"+job.Key.String(), func(taskCtx context.Context) {
		o.Execute(taskCtx, job)
	}); err != nil {
		logger.Error("Note job could not be scheduled", "error", err)
		o.markFailed(ctx, logger, job)
		return nil, apperrors.Unavailable("runner.schedule", "note generation is temporarily unavailable, try again later")
	}

	o.metrics.RecordNoteSubmitted(ctx)
	logger.Info("Note job scheduled")
	return rec, nil
}

// Execute runs one job to a terminal state. It never returns an error:
// stage failures become a failed record, and persistence failures are
// logged and reported. A panic in any stage is contained here and leaves
// the record failed.
func (o *Orchestrator) Execute(ctx context.Context, job Job) {
	logger := jobLogger(job)
	start := time.Now()
	o.metrics.RecordJobStarted(ctx)

	outcome := outcomeAborted
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Note job panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			observability.CapturePanic(r, jobTags(job))
			o.markFailed(ctx, logger, job)
		}
		o.metrics.RecordJobFinished(ctx, outcome, time.Since(start).Seconds())
		logger.Info("Note job finished", "outcome", outcome, "duration", time.Since(start))
	}()

	outcome = o.run(ctx, logger, job)
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, job Job) string {
	if outcome, ok := o.advance(ctx, logger, job, StatusGenerating, ""); !ok {
		return outcome
	}

	text, err := o.generator.Generate(ctx, job.SourceURL)
	if err != nil {
		return o.fail(ctx, logger, job, &StageError{Stage: StageGenerate, Err: err})
	}

	artifactKey, err := o.artifacts.Put(ctx, ArtifactKey(job.Key.OwnerID, job.Key.SubjectID), text)
	if err != nil {
		return o.fail(ctx, logger, job, &StageError{Stage: StageStore, Err: err})
	}

	if outcome, ok := o.advance(ctx, logger, job, StatusReady, artifactKey); !ok {
		return outcome
	}
	logger.Info("Note generated", "artifactKey", artifactKey, "bytes", len(text))
	return outcomeReady
}

// advance persists a transition. On a stale generation the job stops
// quietly; on any other persistence failure it makes a best-effort attempt
// to record the failure and stops. Writes outlive a cancelled job context
// so an aborted run still leaves a terminal record.
func (o *Orchestrator) advance(ctx context.Context, logger *slog.Logger, job Job, status Status, artifactKey string) (string, bool) {
	ctx = context.WithoutCancel(ctx)
	err := o.records.UpdateStatus(ctx, job.Key, job.Generation, status, artifactKey)
	if err == nil {
		return "", true
	}
	if errors.Is(err, ErrStale) {
		o.metrics.RecordStaleWrite(ctx)
		logger.Info("Note record superseded, stopping job", "status", status)
		return outcomeSuperseded, false
	}
	if errors.Is(err, ErrTransition) {
		logger.Warn("Note record already moved past this stage, stopping job", "status", status)
		return outcomeSuperseded, false
	}

	logger.Error("Failed to persist note status", "status", status, "error", err)
	o.metrics.RecordStageFailure(ctx, StagePersist)
	observability.CaptureError(&StageError{Stage: StagePersist, Err: err}, jobTags(job))
	if status != StatusFailed {
		o.markFailed(ctx, logger, job)
	}
	return outcomeAborted, false
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, job Job, stageErr *StageError) string {
	logger.Error("Note job failed", "stage", stageErr.Stage, "error", stageErr.Err)
	o.metrics.RecordStageFailure(ctx, stageErr.Stage)
	if outcome, ok := o.advance(ctx, logger, job, StatusFailed, ""); !ok {
		return outcome
	}
	return outcomeFailed
}

// markFailed is the last-resort failure write; its own errors are swallowed.
// A record that already reached ready stays ready.
func (o *Orchestrator) markFailed(ctx context.Context, logger *slog.Logger, job Job) {
	ctx = context.WithoutCancel(ctx)
	err := o.records.UpdateStatus(ctx, job.Key, job.Generation, StatusFailed, "")
	if err == nil || errors.Is(err, ErrStale) || errors.Is(err, ErrTransition) {
		return
	}
	logger.Error("Failed to record note failure", "error", err)
	observability.CaptureError(&StageError{Stage: StagePersist, Err: err}, jobTags(job))
}

func jobLogger(job Job) *slog.Logger {
	return slog.With(
		"ownerId", job.Key.OwnerID,
		"videoId", job.Key.SubjectID,
		"runId", job.RunID,
		"generation", job.Generation,
	)
}

func jobTags(job Job) map[string]string {
	return map[string]string{
		"component": "orchestrator",
		"videoId":   job.Key.SubjectID,
		"runId":     job.RunID,
	}
}
