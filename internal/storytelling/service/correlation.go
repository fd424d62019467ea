package service

import (
	"context"

	"playground-flow/internal/storytelling/domain"
)

type correlationKey struct{}

// Correlation bridges a before handler and its after handler within one dispatch cycle.
// Entries are keyed by event name and hold a *domain.Diff, an armed flag, or nothing.
// A Correlation belongs to a single dispatch and is not safe for concurrent use.
type Correlation struct {
	diffs map[string]*domain.Diff
	armed map[string]bool
}

// WithCorrelation returns a child context carrying a fresh, empty Correlation. The event
// ingress calls it once per dispatched request.
func WithCorrelation(ctx context.Context) context.Context {
	return context.WithValue(ctx, correlationKey{}, &Correlation{
		diffs: make(map[string]*domain.Diff),
		armed: make(map[string]bool),
	})
}

// CorrelationFrom returns the Correlation carried by ctx.
func CorrelationFrom(ctx context.Context) (*Correlation, bool) {
	c, ok := ctx.Value(correlationKey{}).(*Correlation)
	return c, ok && c != nil
}

// Diff returns the diff captured for a before event, or nil.
func (c *Correlation) Diff(event string) *domain.Diff {
	if c == nil {
		return nil
	}
	return c.diffs[event]
}

// Armed reports whether an opt-in was armed for an after event.
func (c *Correlation) Armed(event string) bool {
	return c != nil && c.armed[event]
}

func (c *Correlation) reset(event string) {
	delete(c.diffs, event)
}

func (c *Correlation) setDiff(event string, d *domain.Diff) {
	c.diffs[event] = d
}

func (c *Correlation) arm(event string) {
	c.armed[event] = true
}

func (c *Correlation) disarm(event string) {
	delete(c.armed, event)
}
