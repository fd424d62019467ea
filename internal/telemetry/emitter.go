package telemetry

import (
	"context"

	"go.uber.org/multierr"

	"playground-flow/internal/telemetry/domain"
)

// EventEmitter emits story events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.StoryEvent) error
}

// Multi fans an event out to every non-nil emitter. All emitters run; errors are combined.
type Multi []EventEmitter

// Emit implements EventEmitter.
func (m Multi) Emit(ctx context.Context, event *domain.StoryEvent) error {
	var errs error
	for _, e := range m {
		if e == nil {
			continue
		}
		errs = multierr.Append(errs, e.Emit(ctx, event))
	}
	return errs
}
