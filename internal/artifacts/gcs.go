package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores artifacts as objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewGCS creates a client using credentialsFile, or application default
// credentials when it is empty.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket name is empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

// Put implements note.ArtifactStore.
func (g *GCS) Put(ctx context.Context, key, text string) (string, error) {
	if key == "" {
		return "", apperrors.Validation("key", "artifact key is required")
	}

	writer := g.bucket.Object(key).NewWriter(ctx)
	writer.ContentType = note.MarkdownContentType

	if _, err := io.WriteString(writer, text); err != nil {
		writer.Close()
		return "", apperrors.Storage("gcs.put", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.Storage("gcs.put", err)
	}
	return key, nil
}

// Get implements note.ArtifactStore.
func (g *GCS) Get(ctx context.Context, key string) (string, error) {
	reader, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", apperrors.NotFound("artifact", key)
	}
	if err != nil {
		return "", apperrors.Storage("gcs.get", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", apperrors.Storage("gcs.get", err)
	}
	return string(data), nil
}

// Ready implements health.ReadinessChecker.
func (g *GCS) Ready(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", g.name, err)
	}
	return nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

var _ note.ArtifactStore = (*GCS)(nil)
