// Package domain holds the story mapping model: which events record a story, which object
// attributes the story snapshots and what the browser needs to detect it client side.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"playground-flow/internal/object"
)

// StoryMapping binds an optional before event and a required after event to the object
// attributes a story records and the points it awards.
type StoryMapping struct {
	ID             int64           `yaml:"id" json:"id"`
	Title          string          `yaml:"title" json:"title"`
	EventBeforeURL string          `yaml:"eventBeforeUrl" json:"eventBeforeUrl,omitempty"`
	EventAfterURL  string          `yaml:"eventAfterUrl" json:"eventAfterUrl"`
	Points         int             `yaml:"points" json:"points"`
	Objects        []ObjectMapping `yaml:"objects" json:"objects"`
	Client         *ClientStory    `yaml:"client,omitempty" json:"client,omitempty"`
}

// ObjectMapping names an object role in the event parameters and the attributes sampled from it.
type ObjectMapping struct {
	Code       string             `yaml:"code" json:"code"`
	Attributes []AttributeMapping `yaml:"attributes" json:"attributes"`
}

// AttributeMapping is one sampled attribute. It is encoded as its bare code; the accessor is
// bound by Bind.
type AttributeMapping struct {
	Code string
	get  object.Accessor
}

// Attr returns an unbound AttributeMapping for code.
func Attr(code string) AttributeMapping { return AttributeMapping{Code: code} }

// Read samples the attribute from instance. ok is false when the mapping is unbound or the
// instance does not expose the attribute.
func (a AttributeMapping) Read(instance any) (any, bool) {
	if a.get == nil || instance == nil {
		return nil, false
	}
	return a.get(instance)
}

// Bound reports whether Bind resolved the accessor.
func (a AttributeMapping) Bound() bool { return a.get != nil }

// MarshalJSON encodes the mapping as its code.
func (a AttributeMapping) MarshalJSON() ([]byte, error) { return json.Marshal(a.Code) }

// UnmarshalJSON decodes a bare code.
func (a *AttributeMapping) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &a.Code)
}

// MarshalYAML encodes the mapping as its code.
func (a AttributeMapping) MarshalYAML() (any, error) { return a.Code, nil }

// UnmarshalYAML accepts either a scalar code or a {code: ...} mapping.
func (a *AttributeMapping) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&a.Code)
	}
	var v struct {
		Code string `yaml:"code"`
	}
	if err := n.Decode(&v); err != nil {
		return err
	}
	a.Code = v.Code
	return nil
}

// ClientStory is the browser side definition of a story, served by the tracking endpoint.
type ClientStory struct {
	Key    string       `yaml:"key" json:"key"`
	URL    string       `yaml:"url,omitempty" json:"url,omitempty"`
	XPath  string       `yaml:"xpath,omitempty" json:"xpath,omitempty"`
	Object ClientObject `yaml:"objects" json:"objects"`
	Events ClientEvents `yaml:"events" json:"events"`
}

// ClientObject identifies the tracked object and the DOM properties read for it.
type ClientObject struct {
	ID         string           `yaml:"id" json:"id"`
	Properties []ClientProperty `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// ClientProperty is a named value read from the page at XPath.
type ClientProperty struct {
	Name  string `yaml:"name" json:"name"`
	XPath string `yaml:"xpath" json:"xpath"`
}

// ClientEvents holds the page conditions seen before and after the user action.
type ClientEvents struct {
	Before *Condition `yaml:"before,omitempty" json:"before,omitempty"`
	After  *Condition `yaml:"after,omitempty" json:"after,omitempty"`
}

// Condition matches the current page by URL substring and/or XPath presence.
type Condition struct {
	URL   string `yaml:"url,omitempty" json:"url,omitempty"`
	XPath string `yaml:"xpath,omitempty" json:"xpath,omitempty"`
}

var (
	// ErrAfterEventRequired is returned for a mapping without eventAfterUrl.
	ErrAfterEventRequired = errors.New("story mapping: eventAfterUrl is required")
	// ErrInvalidID is returned for a mapping whose id is not positive.
	ErrInvalidID = errors.New("story mapping: id must be positive")
)

// Validate checks the mapping on its own. Cross-mapping rules are checked by the catalog.
func (m *StoryMapping) Validate() error {
	if m.ID <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidID, m.ID)
	}
	if m.EventAfterURL == "" {
		return fmt.Errorf("%w (mapping %d)", ErrAfterEventRequired, m.ID)
	}
	for _, om := range m.Objects {
		if om.Code == "" {
			return fmt.Errorf("story mapping %d: object code is required", m.ID)
		}
		for _, am := range om.Attributes {
			if am.Code == "" {
				return fmt.Errorf("story mapping %d: attribute code is required on object %q", m.ID, om.Code)
			}
		}
	}
	if m.Client != nil && m.Client.Key == "" {
		return fmt.Errorf("story mapping %d: client story key is required", m.ID)
	}
	return nil
}

// Bind resolves every attribute accessor against reg. Unknown roles or attributes fail.
func (m *StoryMapping) Bind(reg *object.Registry) error {
	for i := range m.Objects {
		om := &m.Objects[i]
		for j := range om.Attributes {
			get, err := reg.Resolve(om.Code, om.Attributes[j].Code)
			if err != nil {
				return fmt.Errorf("story mapping %d: %w", m.ID, err)
			}
			om.Attributes[j].get = get
		}
	}
	return nil
}

// StoryEvent returns the name of the event triggered after a story for m is recorded.
func (m *StoryMapping) StoryEvent() string {
	return fmt.Sprintf("story.%d", m.ID)
}
