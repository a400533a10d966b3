package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Config configures the S3 artifact store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, e.g. a MinIO URL; enables path-style addressing
}

// S3 stores artifacts as objects in an S3-compatible bucket.
// Credentials come from the SDK's default chain.
type S3 struct {
	client s3iface.S3API
	bucket string
}

// NewS3 creates an S3 store.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket name is empty")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newS3WithClient(s3.New(sess), cfg.Bucket), nil
}

func newS3WithClient(client s3iface.S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// Put implements note.ArtifactStore.
func (s *S3) Put(ctx context.Context, key, text string) (string, error) {
	if key == "" {
		return "", apperrors.Validation("key", "artifact key is required")
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(text),
		ContentType: aws.String(note.MarkdownContentType),
	})
	if err != nil {
		return "", apperrors.Storage("s3.put", err)
	}
	return key, nil
}

// Get implements note.ArtifactStore.
func (s *S3) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNoSuchKey(err) {
		return "", apperrors.NotFound("artifact", key)
	}
	if err != nil {
		return "", apperrors.Storage("s3.get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", apperrors.Storage("s3.get", err)
	}
	return string(data), nil
}

// Ready implements health.ReadinessChecker.
func (s *S3) Ready(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3 bucket %s: %w", s.bucket, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}

var _ note.ArtifactStore = (*S3)(nil)
