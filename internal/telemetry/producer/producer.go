// Package producer publishes recorded stories to Kafka and reads them back for the worker.
package producer

import (
	"context"

	"playground-flow/internal/telemetry/domain"
)

// Producer emits story events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single story event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.StoryEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
