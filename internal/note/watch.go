package note

import (
	"context"
	"log/slog"
	"studynotes/internal/observability"
	"time"
)

// DefaultWatchInterval is the sampling period of a progress stream.
const DefaultWatchInterval = 2 * time.Second

// Watcher turns repeated record reads into a progress stream.
type Watcher struct {
	records  RecordStore
	interval time.Duration
	metrics  *observability.Metrics
}

// NewWatcher creates a watcher sampling every interval.
// A non-positive interval uses DefaultWatchInterval.
func NewWatcher(records RecordStore, interval time.Duration, metrics *observability.Metrics) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{records: records, interval: interval, metrics: metrics}
}

// Watch samples the record immediately and then once per interval, sending
// one event per sample. The channel is closed after a terminal status, after
// a single error event when the record is missing or unreadable, or when ctx
// is done. Cancellation is observed between samples.
func (w *Watcher) Watch(ctx context.Context, key RecordKey) <-chan StatusEvent {
	events := make(chan StatusEvent)

	go func() {
		defer close(events)
		w.metrics.RecordWatchStarted(ctx)
		defer w.metrics.RecordWatchFinished(context.WithoutCancel(ctx))

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			if ctx.Err() != nil {
				return
			}

			event, done := w.sample(ctx, key)
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
			if done {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}

// sample reads the record once. done reports that the stream must end after
// the returned event.
func (w *Watcher) sample(ctx context.Context, key RecordKey) (StatusEvent, bool) {
	rec, err := w.records.Get(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("Watched note unavailable", "ownerId", key.OwnerID, "videoId", key.SubjectID, "error", err)
		}
		return StatusEvent{Status: EventError}, true
	}
	return StatusEvent{Status: string(rec.Status)}, rec.Status.Terminal()
}
