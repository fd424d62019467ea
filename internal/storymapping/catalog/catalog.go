// Package catalog keeps the active story mappings in memory, indexed by event name.
//
// A catalog is loaded from a YAML file or from Postgres. Every load validates the whole set
// and binds attribute accessors before it becomes visible; readers always see one complete,
// consistent set.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"playground-flow/internal/object"
	"playground-flow/internal/storymapping/domain"
)

// ErrAmbiguousBefore is returned when mappings sharing a before event disagree on the after event.
var ErrAmbiguousBefore = errors.New("catalog: before event must correlate with exactly one after event")

// Source lists stored mappings. Implemented by the storymapping Postgres repository.
type Source interface {
	ListAll(ctx context.Context) ([]*domain.StoryMapping, error)
}

// File is the YAML layout of a story mapping file.
type File struct {
	Mappings []*domain.StoryMapping `yaml:"mappings"`
}

type index struct {
	all      []*domain.StoryMapping
	byAfter  map[string][]*domain.StoryMapping
	byBefore map[string][]*domain.StoryMapping
}

// Catalog is safe for concurrent use.
type Catalog struct {
	reg   *object.Registry
	state atomic.Pointer[index]
}

// New returns an empty catalog binding accessors from reg.
func New(reg *object.Registry) *Catalog {
	c := &Catalog{reg: reg}
	c.state.Store(&index{})
	return c
}

// Replace validates and binds mappings, then makes them the active set. On error the active
// set is unchanged and every problem found is reported.
func (c *Catalog) Replace(mappings []*domain.StoryMapping) error {
	idx, err := build(c.reg, mappings)
	if err != nil {
		return err
	}
	c.state.Store(idx)
	return nil
}

// LoadFile reads a YAML mapping file and replaces the active set.
func (c *Catalog) LoadFile(path string) error {
	mappings, err := ReadFile(path)
	if err != nil {
		return err
	}
	return c.Replace(mappings)
}

// LoadSource reads all mappings from src and replaces the active set.
func (c *Catalog) LoadSource(ctx context.Context, src Source) error {
	mappings, err := src.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("catalog: list mappings: %w", err)
	}
	return c.Replace(mappings)
}

// FindByEventAfter returns the mappings recorded when name fires, ordered by id.
func (c *Catalog) FindByEventAfter(name string) []*domain.StoryMapping {
	return c.state.Load().byAfter[name]
}

// FindByEventBefore returns the mappings whose before event is name, ordered by id.
func (c *Catalog) FindByEventBefore(name string) []*domain.StoryMapping {
	return c.state.Load().byBefore[name]
}

// All returns every active mapping ordered by id.
func (c *Catalog) All() []*domain.StoryMapping {
	return c.state.Load().all
}

// ClientStories returns the browser story definitions keyed by story key.
func (c *Catalog) ClientStories() map[string]domain.ClientStory {
	out := make(map[string]domain.ClientStory)
	for _, m := range c.state.Load().all {
		if m.Client != nil {
			out[m.Client.Key] = *m.Client
		}
	}
	return out
}

// ReadFile decodes a YAML mapping file without validating it.
func ReadFile(path string) ([]*domain.StoryMapping, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return f.Mappings, nil
}

func build(reg *object.Registry, mappings []*domain.StoryMapping) (*index, error) {
	var errs error
	seen := make(map[int64]bool, len(mappings))
	afterOf := make(map[string]string)

	all := make([]*domain.StoryMapping, 0, len(mappings))
	for _, m := range mappings {
		if m == nil {
			continue
		}
		if err := m.Validate(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if seen[m.ID] {
			errs = multierr.Append(errs, fmt.Errorf("catalog: duplicate story mapping id %d", m.ID))
			continue
		}
		seen[m.ID] = true
		if err := m.Bind(reg); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if m.EventBeforeURL != "" {
			if prev, ok := afterOf[m.EventBeforeURL]; ok && prev != m.EventAfterURL {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s -> %s and %s (mapping %d)",
					ErrAmbiguousBefore, m.EventBeforeURL, prev, m.EventAfterURL, m.ID))
				continue
			}
			afterOf[m.EventBeforeURL] = m.EventAfterURL
		}
		all = append(all, m)
	}
	if errs != nil {
		return nil, errs
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	idx := &index{
		all:      all,
		byAfter:  make(map[string][]*domain.StoryMapping),
		byBefore: make(map[string][]*domain.StoryMapping),
	}
	for _, m := range all {
		idx.byAfter[m.EventAfterURL] = append(idx.byAfter[m.EventAfterURL], m)
		if m.EventBeforeURL != "" {
			idx.byBefore[m.EventBeforeURL] = append(idx.byBefore[m.EventBeforeURL], m)
		}
	}
	return idx, nil
}
