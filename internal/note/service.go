package note

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"studynotes/internal/apperrors"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTitleTimeout bounds the title lookup on the request path.
const DefaultTitleTimeout = 5 * time.Second

const submitMessage = "Note generation started"

var validate = validator.New(validator.WithRequiredStructEnabled())

// ServiceConfig holds the service's collaborators.
type ServiceConfig struct {
	Orchestrator *Orchestrator
	Watcher      *Watcher
	Records      RecordStore
	Artifacts    ArtifactStore
	Titles       TitleResolver
	TitleTimeout time.Duration
}

// Service is the request-facing side of note generation.
type Service struct {
	orchestrator *Orchestrator
	watcher      *Watcher
	records      RecordStore
	artifacts    ArtifactStore
	titles       TitleResolver
	titleTimeout time.Duration
}

// NewService creates a new service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = DefaultTitleTimeout
	}
	return &Service{
		orchestrator: cfg.Orchestrator,
		watcher:      cfg.Watcher,
		records:      cfg.Records,
		artifacts:    cfg.Artifacts,
		titles:       cfg.Titles,
		titleTimeout: cfg.TitleTimeout,
	}
}

// Submit validates a request, records it as pending and starts generation.
// It returns once the job is scheduled, not when it finishes.
func (s *Service) Submit(ctx context.Context, ownerID string, req *SubmitRequest) (*SubmitResponse, error) {
	if ownerID == "" {
		return nil, apperrors.Unauthorized("missing user identity")
	}
	if req == nil {
		return nil, apperrors.Validation("body", "request body is required")
	}
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	req.VideoID = strings.TrimSpace(req.VideoID)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	subjectID := req.VideoID
	if subjectID == "" {
		id, err := DeriveSubjectID(req.VideoURL)
		if err != nil {
			return nil, err
		}
		subjectID = id
	} else if err := ValidateSubjectID(subjectID); err != nil {
		return nil, err
	}

	if _, err := s.orchestrator.Submit(ctx, SubmitInput{
		OwnerID:   ownerID,
		SubjectID: subjectID,
		SourceURL: req.VideoURL,
		Title:     s.resolveTitle(ctx, req.VideoURL),
	}); err != nil {
		return nil, err
	}

	return &SubmitResponse{Message: submitMessage, VideoID: subjectID}, nil
}

// Get returns the current record for an owner's video.
func (s *Service) Get(ctx context.Context, ownerID, subjectID string) (*StatusRecord, error) {
	if ownerID == "" {
		return nil, apperrors.Unauthorized("missing user identity")
	}
	return s.records.Get(ctx, RecordKey{OwnerID: ownerID, SubjectID: subjectID})
}

// Retrieve returns the generated note. Anything other than a ready record is
// reported as not found.
func (s *Service) Retrieve(ctx context.Context, ownerID, subjectID string) (*Download, error) {
	if ownerID == "" {
		return nil, apperrors.Unauthorized("missing user identity")
	}

	rec, err := s.records.Get(ctx, RecordKey{OwnerID: ownerID, SubjectID: subjectID})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotReady("note", subjectID)
		}
		return nil, err
	}
	if rec.Status != StatusReady {
		return nil, apperrors.NotReady("note", subjectID)
	}

	key := rec.ArtifactKey
	if key == "" {
		key = ArtifactKey(ownerID, subjectID)
	}
	text, err := s.artifacts.Get(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrStorage) {
			return nil, err
		}
		return nil, apperrors.Storage("artifacts.get", err)
	}

	return &Download{
		Filename:    Filename(rec.Title),
		ContentType: MarkdownContentType,
		Content:     []byte(text),
	}, nil
}

// Watch streams progress for an owner's video. See Watcher.Watch.
func (s *Service) Watch(ctx context.Context, ownerID, subjectID string) <-chan StatusEvent {
	return s.watcher.Watch(ctx, RecordKey{OwnerID: ownerID, SubjectID: subjectID})
}

// resolveTitle never fails: a slow or broken lookup falls back to the
// default title.
func (s *Service) resolveTitle(ctx context.Context, videoURL string) string {
	if s.titles == nil {
		return defaultTitle
	}
	ctx, cancel := context.WithTimeout(ctx, s.titleTimeout)
	defer cancel()

	title, err := s.titles.Resolve(ctx, videoURL)
	if err != nil {
		slog.Warn("Title lookup failed, using default", "videoUrl", videoURL, "error", err)
		return defaultTitle
	}
	if title = strings.TrimSpace(title); title == "" {
		return defaultTitle
	}
	return title
}

func validateRequest(req *SubmitRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := "videoUrl"
		if fe.StructField() == "VideoID" {
			field = "videoId"
		}
		return apperrors.Validation(field, field+" "+validationMessage(fe))
	}
	return apperrors.Validation("body", err.Error())
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
