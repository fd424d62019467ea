// Package object maps object roles found in event parameters to typed attribute accessors.
//
// Each domain type registers a Kind listing the attribute codes it exposes. Story mappings
// resolve their (role, attribute) pairs against the Registry once, when the catalog loads,
// so recording never looks attributes up by name on a live instance.
package object

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

var (
	// ErrUnknownRole is returned when no Kind is registered for an object role.
	ErrUnknownRole = errors.New("object: unknown role")
	// ErrUnknownAttribute is returned when a Kind does not expose an attribute code.
	ErrUnknownAttribute = errors.New("object: unknown attribute")
)

// Accessor reads one attribute from an instance. ok is false when the instance is not of
// the accessor's type; callers skip the attribute in that case.
type Accessor func(instance any) (value any, ok bool)

// Kind describes one object type: its role code and its attribute accessors.
type Kind struct {
	code   string
	attrs  map[string]Accessor
	decode func(raw map[string]any) (any, error)
}

// NewKind builds a Kind for *T. Each getter reads one attribute from a *T.
func NewKind[T any](code string, getters map[string]func(*T) any) *Kind {
	attrs := make(map[string]Accessor, len(getters))
	for name, get := range getters {
		attrs[name] = func(instance any) (any, bool) {
			v, ok := instance.(*T)
			if !ok || v == nil {
				return nil, false
			}
			return get(v), true
		}
	}
	return &Kind{
		code:   code,
		attrs:  attrs,
		decode: func(raw map[string]any) (any, error) {
			v := new(T)
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           v,
				TagName:          "json",
				WeaklyTypedInput: true,
			})
			if err != nil {
				return nil, err
			}
			if err := dec.Decode(raw); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Attributes returns the exposed attribute codes, sorted.
func (k *Kind) Attributes() []string {
	out := make([]string, 0, len(k.attrs))
	for name := range k.attrs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Accessor returns the accessor for code.
func (k *Kind) Accessor(code string) (Accessor, bool) {
	a, ok := k.attrs[code]
	return a, ok
}

// Registry holds the Kinds known to the process, keyed by role code.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

// NewRegistry returns a registry holding kinds.
func NewRegistry(kinds ...*Kind) *Registry {
	r := &Registry{kinds: make(map[string]*Kind, len(kinds))}
	for _, k := range kinds {
		r.Register(k)
	}
	return r
}

// Register adds or replaces k.
func (r *Registry) Register(k *Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[k.code] = k
}

// Kind returns the Kind registered for role.
func (r *Registry) Kind(role string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[role]
	return k, ok
}

// Roles returns the registered role codes, sorted.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for code := range r.kinds {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the accessor for (role, attr). Unknown pairs return ErrUnknownRole or
// ErrUnknownAttribute.
func (r *Registry) Resolve(role, attr string) (Accessor, error) {
	k, ok := r.Kind(role)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownRole, role, strings.Join(r.Roles(), ", "))
	}
	a, ok := k.Accessor(attr)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s (known: %s)", ErrUnknownAttribute, role, attr, strings.Join(k.Attributes(), ", "))
	}
	return a, nil
}

// Decode converts a loosely typed parameter (e.g. a map decoded from JSON) into the typed
// instance registered for role. Values already of the right type and roles without a Kind
// are returned unchanged. Scalars are weakly typed the way host applications send them:
// {"id": 1} fills a string id, {"optin": "1"} or {"optin": true} fills an int flag.
func (r *Registry) Decode(role string, raw any) (any, error) {
	k, ok := r.Kind(role)
	if !ok || raw == nil {
		return raw, nil
	}
	m, isMap := raw.(map[string]any)
	if !isMap {
		return raw, nil
	}
	v, err := k.decode(m)
	if err != nil {
		return nil, fmt.Errorf("object: decode %s: %w", role, err)
	}
	return v, nil
}
