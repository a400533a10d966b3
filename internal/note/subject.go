package note

import (
	"net/url"
	"regexp"
	"strings"
	"studynotes/internal/apperrors"
)

// subjectIDPattern matches YouTube-style video ids.
var subjectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DeriveSubjectID extracts a video id from a watch URL (v=...), a youtu.be
// short link, or a /shorts/ link.
func DeriveSubjectID(videoURL string) (string, error) {
	raw := strings.TrimSpace(videoURL)

	if _, after, ok := strings.Cut(raw, "v="); ok {
		id, _, _ := strings.Cut(after, "&")
		id, _, _ = strings.Cut(id, "#")
		return checkSubjectID(id)
	}

	parsed, err := url.Parse(raw)
	if err == nil && parsed.Host != "" {
		host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
		path := strings.Trim(parsed.Path, "/")
		switch {
		case host == "youtu.be" && path != "":
			id, _, _ := strings.Cut(path, "/")
			return checkSubjectID(id)
		case strings.HasSuffix(host, "youtube.com") && strings.HasPrefix(path, "shorts/"):
			id, _, _ := strings.Cut(strings.TrimPrefix(path, "shorts/"), "/")
			return checkSubjectID(id)
		}
	}

	return "", apperrors.Validation("videoUrl", "could not extract video ID")
}

// ValidateSubjectID checks an explicitly supplied video id.
func ValidateSubjectID(id string) error {
	if !subjectIDPattern.MatchString(id) {
		return apperrors.Validation("videoId", "video ID must be 1-64 characters of letters, digits, '-' or '_'")
	}
	return nil
}

func checkSubjectID(id string) (string, error) {
	if !subjectIDPattern.MatchString(id) {
		return "", apperrors.Validation("videoUrl", "could not extract video ID")
	}
	return id, nil
}
