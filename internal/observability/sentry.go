package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures error reporting. An empty DSN disables it.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initialises the global Sentry client when a DSN is configured.
// It returns a flush function to call on shutdown.
func InitSentry(opts SentryOptions) (func(), error) {
	if opts.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		AttachStacktrace: true,
		ServerName:       "notes-service",
		Release:          opts.Release,
		Environment:      opts.Environment,
	})
	if err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError reports an error that was handled locally and never surfaced
// to a client. Tags are attached as Sentry tags. Without an initialised
// client this is a no-op.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value.
func CapturePanic(recovered any, tags map[string]string) {
	CaptureError(fmt.Errorf("panic: %v", recovered), tags)
}
