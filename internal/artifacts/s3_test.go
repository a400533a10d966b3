package artifacts

import (
	"context"
	"errors"
	"io"
	"strings"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// fakeS3 implements the calls the store makes; anything else panics.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string), types: make(map[string]string)}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = string(data)
	f.types[aws.StringValue(in.Key)] = aws.StringValue(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(text))}, nil
}

func (f *fakeS3) HeadBucketWithContext(aws.Context, *s3.HeadBucketInput, ...request.Option) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func TestS3_PutGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newFakeS3()
	store := newS3WithClient(client, "notes")

	key, err := store.Put(ctx, "owner/u1/abc123.md", "# Notes")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if client.types[key] != note.MarkdownContentType {
		t.Errorf("Expected markdown content type, got %q", client.types[key])
	}

	text, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if text != "# Notes" {
		t.Errorf("Expected %q, got %q", "# Notes", text)
	}
}

func TestS3_MissingKeyIsNotFound(t *testing.T) {
	t.Parallel()
	store := newS3WithClient(newFakeS3(), "notes")

	if _, err := store.Get(context.Background(), "missing.md"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestS3_BackendErrorIsStorage(t *testing.T) {
	t.Parallel()
	client := newFakeS3()
	client.err = awserr.New("InternalError", "boom", nil)
	store := newS3WithClient(client, "notes")
	ctx := context.Background()

	if _, err := store.Put(ctx, "k.md", "x"); !errors.Is(err, apperrors.ErrStorage) {
		t.Errorf("Expected storage error from Put, got %v", err)
	}
	if _, err := store.Get(ctx, "k.md"); !errors.Is(err, apperrors.ErrStorage) {
		t.Errorf("Expected storage error from Get, got %v", err)
	}
	if err := store.Ready(ctx); err == nil {
		t.Error("Expected Ready to fail")
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	t.Parallel()
	if _, err := NewS3(S3Config{Region: "us-east-1"}); err == nil {
		t.Error("Expected error for empty bucket")
	}
}

func TestNewGCS_RequiresBucket(t *testing.T) {
	t.Parallel()
	if _, err := NewGCS(context.Background(), "", ""); err == nil {
		t.Error("Expected error for empty bucket")
	}
}
