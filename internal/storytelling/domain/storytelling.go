// Package domain holds recorded stories and the snapshot shapes they carry.
package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// StoryTelling is one recorded story. It is immutable once created.
type StoryTelling struct {
	ID        string    `json:"id"`
	MappingID int64     `json:"mappingId"`
	UserID    string    `json:"userId"`
	Object    string    `json:"object"`
	Points    int       `json:"points"`
	SecretKey string    `json:"secretKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate validates the story for persistence. Returns an error describing the first validation failure.
func (s *StoryTelling) Validate() error {
	if s.ID == "" {
		return errors.New("story id is required")
	}
	if s.MappingID <= 0 {
		return errors.New("story mapping id is required")
	}
	if !json.Valid([]byte(s.Object)) {
		return errors.New("story object must be valid JSON")
	}
	return nil
}

// Snapshot maps object role to attribute code to value.
type Snapshot map[string]map[string]any

// Set stores value under [role][attr].
func (s Snapshot) Set(role, attr string, value any) {
	inner, ok := s[role]
	if !ok {
		inner = make(map[string]any)
		s[role] = inner
	}
	inner[attr] = value
}

// Diff is the before/after attribute change captured before an action commits.
type Diff struct {
	Before Snapshot `json:"before"`
	After  Snapshot `json:"after"`
}

// NewDiff returns an empty diff.
func NewDiff() *Diff {
	return &Diff{Before: Snapshot{}, After: Snapshot{}}
}

// Record stores one changed attribute.
func (d *Diff) Record(role, attr string, before, after any) {
	d.Before.Set(role, attr, before)
	d.After.Set(role, attr, after)
}

// Empty reports whether no attribute changed.
func (d *Diff) Empty() bool {
	return d == nil || len(d.Before) == 0
}
