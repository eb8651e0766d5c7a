package notify

import (
	"context"
	"time"

	"github.com/heyjunin/vodforge/pkg/logger"
)

// Event types published by the pipeline.
const (
	EventThumbnailReady = "thumbnail_ready"
	EventProgress       = "progress"
	EventPlayable       = "playable"
	EventDone           = "done"
	EventFailed         = "failed"
)

// Event is the wire payload for one pipeline notification. Only the fields
// relevant to the event type are set.
type Event struct {
	Type         string   `json:"type"`
	AssetID      string   `json:"asset_id"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	MasterURL    string   `json:"master_url,omitempty"`
	Percent      *float64 `json:"percent,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// Sink delivers one formatted event to a downstream consumer.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier is the notification surface the pipeline reports through. Every
// call is best-effort: delivery failures are the sink's problem, never the
// pipeline's.
type Notifier interface {
	// ThumbnailReady fires once the poster frame is uploaded.
	ThumbnailReady(ctx context.Context, assetID, thumbnailURL string)
	// Progress forwards a throttled job-wide percentage.
	Progress(ctx context.Context, assetID string, percent float64)
	// Playable fires exactly once, when the first variant completes and the
	// master playlist first exists.
	Playable(ctx context.Context, assetID, masterURL string)
	// Done fires on full success, always carrying 100 percent.
	Done(ctx context.Context, assetID string)
	// Failed fires on a terminal failure; status distinguishes a partial
	// result (still playable) from a hard failure.
	Failed(ctx context.Context, assetID string, status string)
}

// Adapter formats pipeline events and hands them to its sinks. With a
// dispatch timeout set, publishing happens on a background goroutine and the
// caller never waits; errors are logged and dropped either way.
type Adapter struct {
	sinks   []Sink
	timeout time.Duration
}

// New returns an Adapter that publishes synchronously before returning.
// Sinks that fail are logged and do not affect the others.
func New(sinks ...Sink) *Adapter {
	return &Adapter{sinks: sinks}
}

// NewAsync returns an Adapter whose publishes run in the background, each
// bounded by timeout.
func NewAsync(timeout time.Duration, sinks ...Sink) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{sinks: sinks, timeout: timeout}
}

func (a *Adapter) ThumbnailReady(ctx context.Context, assetID, thumbnailURL string) {
	a.publish(ctx, Event{Type: EventThumbnailReady, AssetID: assetID, ThumbnailURL: thumbnailURL})
}

func (a *Adapter) Progress(ctx context.Context, assetID string, percent float64) {
	a.publish(ctx, Event{Type: EventProgress, AssetID: assetID, Percent: &percent})
}

func (a *Adapter) Playable(ctx context.Context, assetID, masterURL string) {
	a.publish(ctx, Event{Type: EventPlayable, AssetID: assetID, MasterURL: masterURL})
}

func (a *Adapter) Done(ctx context.Context, assetID string) {
	full := 100.0
	a.publish(ctx, Event{Type: EventDone, AssetID: assetID, Percent: &full})
}

func (a *Adapter) Failed(ctx context.Context, assetID string, status string) {
	a.publish(ctx, Event{Type: EventFailed, AssetID: assetID, Status: status})
}

func (a *Adapter) publish(ctx context.Context, event Event) {
	if a == nil || len(a.sinks) == 0 {
		return
	}
	if a.timeout <= 0 {
		a.deliver(ctx, event)
		return
	}
	go func() {
		// Detached from the caller's context: a cancelled job still gets
		// its terminal event out.
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.deliver(ctx, event)
	}()
}

func (a *Adapter) deliver(ctx context.Context, event Event) {
	for _, sink := range a.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			logger.Warn("Notification delivery failed", "notify", map[string]interface{}{
				"type":     event.Type,
				"asset_id": event.AssetID,
				"error":    err.Error(),
			})
		}
	}
}

// Noop discards every event. Used when no sink is configured and in tests.
type Noop struct{}

func (Noop) ThumbnailReady(ctx context.Context, assetID, thumbnailURL string) {}
func (Noop) Progress(ctx context.Context, assetID string, percent float64)   {}
func (Noop) Playable(ctx context.Context, assetID, masterURL string)         {}
func (Noop) Done(ctx context.Context, assetID string)                        {}
func (Noop) Failed(ctx context.Context, assetID string, status string)       {}
