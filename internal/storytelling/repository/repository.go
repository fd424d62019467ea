package repository

import (
	"context"

	"playground-flow/internal/storytelling/domain"
)

// Repository defines persistence for recorded stories.
type Repository interface {
	FindBySecretKey(ctx context.Context, secretKey string) (*domain.StoryTelling, error)
	FindByMappingAndUser(ctx context.Context, mappingID int64, userID string) ([]*domain.StoryTelling, error)
	Create(ctx context.Context, s *domain.StoryTelling) error
}
