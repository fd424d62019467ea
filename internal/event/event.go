// Package event is an in-process shared event manager. Handlers subscribe by event name and
// target identifier; Trigger runs them synchronously in priority order.
package event

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Wildcard matches every target identifier.
const Wildcard = "*"

// Event is one dispatched application event.
type Event struct {
	// Name is the event name, e.g. "play.post".
	Name string
	// Target identifies the component that fired the event, e.g. "user.service".
	Target string
	// Params holds the event parameters keyed by name ("user", "data", "secretKey", object roles).
	Params map[string]any
}

// Param returns the named parameter or nil.
func (e *Event) Param(name string) any {
	if e == nil || e.Params == nil {
		return nil
	}
	return e.Params[name]
}

// StringParam returns the named parameter when it is a string, else "".
func (e *Event) StringParam(name string) string {
	s, _ := e.Param(name).(string)
	return s
}

// Handler reacts to an event. A non-nil error stops propagation.
type Handler func(ctx context.Context, e *Event) error

// Subscription is the handle returned by Attach and accepted by Detach.
type Subscription struct {
	seq         uint64
	identifiers []string
	name        string
	priority    int
	handler     Handler
}

// Name returns the subscribed event name.
func (s *Subscription) Name() string { return s.name }

// Priority returns the subscription priority.
func (s *Subscription) Priority() int { return s.priority }

func (s *Subscription) matches(target string) bool {
	for _, id := range s.identifiers {
		if id == Wildcard || id == target {
			return true
		}
	}
	return false
}

// Manager holds subscriptions for all event names. It is safe for concurrent use; handlers
// may trigger further events from inside Trigger.
type Manager struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[string][]*Subscription
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{subs: make(map[string][]*Subscription)}
}

// Attach subscribes h to name for the given target identifiers. An empty identifier list
// means Wildcard. Higher priority runs first; equal priorities run in attach order.
func (m *Manager) Attach(identifiers []string, name string, h Handler, priority int) *Subscription {
	if len(identifiers) == 0 {
		identifiers = []string{Wildcard}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s := &Subscription{
		seq:         m.seq,
		identifiers: append([]string(nil), identifiers...),
		name:        name,
		priority:    priority,
		handler:     h,
	}
	list := append(m.subs[name], s)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	m.subs[name] = list
	return s
}

// Detach removes s. Returns false if s is nil or was not attached to m.
func (m *Manager) Detach(s *Subscription) bool {
	if s == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[s.name]
	for i, cur := range list {
		if cur == s {
			m.subs[s.name] = append(list[:i:i], list[i+1:]...)
			if len(m.subs[s.name]) == 0 {
				delete(m.subs, s.name)
			}
			return true
		}
	}
	return false
}

// Listeners returns the number of subscriptions attached to name.
func (m *Manager) Listeners(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[name])
}

// Trigger dispatches name to every subscription matching target. The first handler error
// stops propagation and is returned.
func (m *Manager) Trigger(ctx context.Context, target, name string, params map[string]any) error {
	m.mu.RLock()
	list := make([]*Subscription, 0, len(m.subs[name]))
	for _, s := range m.subs[name] {
		if s.matches(target) {
			list = append(list, s)
		}
	}
	m.mu.RUnlock()

	e := &Event{Name: name, Target: target, Params: params}
	for _, s := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(ctx, e); err != nil {
			return fmt.Errorf("event %s: %w", name, err)
		}
	}
	return nil
}
