package repository

import (
	"context"

	"playground-flow/internal/storymapping/domain"
)

// Repository defines persistence for story mappings.
type Repository interface {
	ListAll(ctx context.Context) ([]*domain.StoryMapping, error)
	Save(ctx context.Context, m *domain.StoryMapping) error
}
