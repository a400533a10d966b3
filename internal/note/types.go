package note

import (
	"net/url"
	"strings"
	"time"
)

// Status is the lifecycle state of a note generation job.
type Status string

// Status constants
const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// EventError is the status carried by the single event emitted when a watched
// note does not exist or cannot be read.
const EventError = "error"

// Terminal reports whether no further automatic transition follows s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusReady, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next.
// Pending is only ever entered through a new submission.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusGenerating || next == StatusFailed
	case StatusGenerating:
		return next == StatusReady || next == StatusFailed
	default:
		return false
	}
}

// Predecessors lists the states that may move to s, in the order the state
// machine visits them.
func (s Status) Predecessors() []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusGenerating, StatusReady, StatusFailed} {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

// RecordKey identifies one status record.
type RecordKey struct {
	OwnerID   string
	SubjectID string
}

// String renders the key for logs.
func (k RecordKey) String() string {
	return k.OwnerID + "/" + k.SubjectID
}

// StatusRecord is the persisted state of one (owner, video) note.
type StatusRecord struct {
	OwnerID     string    `json:"ownerId"`
	SubjectID   string    `json:"videoId"`
	Title       string    `json:"title,omitempty"`
	SourceURL   string    `json:"videoUrl,omitempty"`
	Status      Status    `json:"status"`
	ArtifactKey string    `json:"artifactKey,omitempty"`
	Generation  int64     `json:"generation"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Key returns the record's identity.
func (r *StatusRecord) Key() RecordKey {
	return RecordKey{OwnerID: r.OwnerID, SubjectID: r.SubjectID}
}

// Clone returns an independent copy.
func (r *StatusRecord) Clone() *StatusRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// StatusEvent is one progress stream payload.
type StatusEvent struct {
	Status string `json:"status"`
}

// SubmitRequest is the body of a note generation request.
type SubmitRequest struct {
	VideoURL string `json:"videoUrl" validate:"required,url,max=2048"`
	VideoID  string `json:"videoId,omitempty" validate:"omitempty,max=64"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	Message string `json:"message"`
	VideoID string `json:"videoId"`
}

// Download is a retrieved artifact ready to be served.
type Download struct {
	Filename    string
	ContentType string
	Content     []byte
}

// MarkdownContentType is the content type of every generated note.
const MarkdownContentType = "text/markdown; charset=utf-8"

const (
	defaultTitle    = "YouTube Note"
	defaultFilename = "Note"
)

// ArtifactKey derives the storage key for an owner's note on a video.
func ArtifactKey(ownerID, subjectID string) string {
	return "owner/" + url.PathEscape(ownerID) + "/" + url.PathEscape(subjectID) + ".md"
}

// Filename builds the attachment filename for a note title.
func Filename(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = defaultFilename
	}
	name = strings.NewReplacer("/", "-", "\\", "-", "\"", "'", "\r", " ", "\n", " ").Replace(name)
	return name + ".md"
}
