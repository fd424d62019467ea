package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"playground-flow/internal/telemetry"
	"playground-flow/internal/telemetry/domain"
)

// recordEmitter is the part of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends story events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger("playground.storytelling"))
}

// NewEventEmitterWithLogger returns an emitter writing to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.StoryEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the story event to an OTel log record: the snapshot is the body, ids are attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.StoryEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetEventName("story.recorded")
	rec.SetSeverity(otellog.SeverityInfo)
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if len(event.Object) > 0 {
		rec.SetBody(otellog.BytesValue(event.Object))
	}
	rec.AddAttributes(
		otellog.String("story_id", event.StoryID),
		otellog.Int64("mapping_id", event.MappingID),
		otellog.String("event_name", event.EventName),
		otellog.Int("points", event.Points),
	)
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
