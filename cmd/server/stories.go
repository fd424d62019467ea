package main

import (
	"context"

	"playground-flow/internal/storytelling/domain"
)

// discardStories stands in for the story store when no database is configured. Stories are
// still logged, triggered and emitted; none is remembered, so every opt-in counts as a first.
type discardStories struct{}

func (discardStories) FindBySecretKey(context.Context, string) (*domain.StoryTelling, error) {
	return nil, nil
}

func (discardStories) FindByMappingAndUser(context.Context, int64, string) ([]*domain.StoryTelling, error) {
	return nil, nil
}

func (discardStories) Create(_ context.Context, s *domain.StoryTelling) error {
	return s.Validate()
}
